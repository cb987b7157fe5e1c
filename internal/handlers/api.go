package handlers

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/keyforge/backend/internal/config"
	"github.com/keyforge/backend/internal/models"
	"github.com/keyforge/backend/internal/services"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// LicenseAPIHandler serves the public license endpoints consumed by
// installed products. Domain failures are returned with their stable
// numeric codes; infrastructure failures are logged with full context
// and surfaced as code 0 without detail leakage.
type LicenseAPIHandler struct {
	gate    *services.Gate
	ledger  *services.Ledger
	catalog *services.Catalog
	cfg     *config.Config
	db      *gorm.DB
	logger  zerolog.Logger
}

func NewLicenseAPIHandler(gate *services.Gate, ledger *services.Ledger, catalog *services.Catalog,
	cfg *config.Config, db *gorm.DB, logger zerolog.Logger) *LicenseAPIHandler {
	return &LicenseAPIHandler{
		gate:    gate,
		ledger:  ledger,
		catalog: catalog,
		cfg:     cfg,
		db:      db,
		logger:  logger.With().Str("component", "LicenseAPI").Logger(),
	}
}

// param reads a request value from the query string or form body, the
// historical key=value contract.
func param(c *fiber.Ctx, name string) string {
	if v := c.Query(name); v != "" {
		return v
	}
	return c.FormValue(name)
}

// fail renders a failure. Expected domain errors keep HTTP 200 with
// their stable code so legacy clients that only parse the body keep
// working; anything else becomes a generic code-0 response.
func (h *LicenseAPIHandler) fail(c *fiber.Ctx, op string, err error) error {
	if de, ok := services.AsDomain(err); ok {
		return c.JSON(fiber.Map{
			"success": false,
			"error":   de.Code,
			"message": de.Message,
		})
	}
	h.logger.Error().Err(err).
		Str("operation", op).
		Str("key", param(c, "key")).
		Msg("license api request failed")
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"success": false,
		"error":   services.CodeInternal,
		"message": "internal error",
	})
}

// Activate authorizes one install location against the key
func (h *LicenseAPIHandler) Activate(c *fiber.Ctx) error {
	key, _, err := h.gate.Authenticate(services.ModeActive, param(c, "key"), "")
	if err != nil {
		return h.fail(c, "activate", err)
	}

	location := param(c, "location")
	track := models.UpdateTrack(param(c, "track"))

	act, err := h.ledger.Activate(key, location, track)
	if err != nil {
		return h.fail(c, "activate", err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"activation_id": act.Token,
			"location":      act.Location,
			"track":         act.Track,
			"limit":         key.MaxActivations,
			"remaining":     key.RemainingActivations(),
		},
	})
}

// Deactivate releases an activation's slot; repeating it is a no-op
// success
func (h *LicenseAPIHandler) Deactivate(c *fiber.Ctx) error {
	key, _, err := h.gate.Authenticate(services.ModeExists, param(c, "key"), "")
	if err != nil {
		return h.fail(c, "deactivate", err)
	}

	act, err := h.ledger.FindForKey(key, param(c, "activation_id"))
	if err != nil {
		return h.fail(c, "deactivate", err)
	}

	if err := h.ledger.Deactivate(act); err != nil {
		return h.fail(c, "deactivate", err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Activation released",
	})
}

// Version reports the latest release available to the activation's
// update track
func (h *LicenseAPIHandler) Version(c *fiber.Ctx) error {
	key, act, err := h.gate.Authenticate(services.ModeValidActivation, param(c, "key"), param(c, "activation_id"))
	if err != nil {
		return h.fail(c, "version", err)
	}

	release, err := h.catalog.LatestForActivation(key, act)
	if err != nil {
		return h.fail(c, "version", err)
	}
	if release == nil {
		return c.JSON(fiber.Map{
			"success": true,
			"data":    nil,
			"message": "No release available",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"version":      release.Version,
			"type":         release.Type,
			"changelog":    release.Changelog,
			"published_at": release.PublishedAt,
		},
	})
}

// Download redirects to the latest release artifact with a short-lived
// signed token appended
func (h *LicenseAPIHandler) Download(c *fiber.Ctx) error {
	key, act, err := h.gate.Authenticate(services.ModeValidActivation, param(c, "key"), param(c, "activation_id"))
	if err != nil {
		return h.fail(c, "download", err)
	}

	release, err := h.catalog.LatestForActivation(key, act)
	if err != nil {
		return h.fail(c, "download", err)
	}
	if release == nil || release.ArtifactURL == "" {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "No downloadable release available",
		})
	}

	token, err := SignDownloadToken(h.cfg, key.Key, release.ID)
	if err != nil {
		return h.fail(c, "download", err)
	}

	return c.Redirect(fmt.Sprintf("%s?token=%s", release.ArtifactURL, token), fiber.StatusFound)
}

// ProductInfo returns the public descriptor of a product
func (h *LicenseAPIHandler) ProductInfo(c *fiber.Ctx) error {
	product, err := h.findProduct(c)
	if err != nil || product == nil {
		return err
	}

	latest, err := h.catalog.LatestFor(product.ID, models.TrackStable)
	if err != nil {
		return h.fail(c, "product-info", err)
	}

	data := fiber.Map{
		"id":    product.ID,
		"name":  product.Name,
		"slug":  product.Slug,
		"price": product.Price,
	}
	if latest != nil {
		data["latest_version"] = latest.Version
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    data,
	})
}

// Changelog returns the changelog of the product's latest stable
// release
func (h *LicenseAPIHandler) Changelog(c *fiber.Ctx) error {
	product, err := h.findProduct(c)
	if err != nil || product == nil {
		return err
	}

	changelog, err := h.catalog.Changelog(product.ID)
	if err != nil {
		return h.fail(c, "changelog", err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"changelog": changelog,
		},
	})
}

// findProduct resolves the :id param. On a miss it writes the 404
// response itself and returns a nil product.
func (h *LicenseAPIHandler) findProduct(c *fiber.Ctx) (*models.Product, error) {
	var product models.Product
	if err := h.db.First(&product, c.Params("id")).Error; err != nil {
		return nil, c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "No product found",
		})
	}
	return &product, nil
}

// downloadClaims binds a signed download to one key and release
type downloadClaims struct {
	Key       string `json:"key"`
	ReleaseID uint   `json:"release_id"`
	jwt.RegisteredClaims
}

// SignDownloadToken issues a short-lived token authorizing one artifact
// fetch
func SignDownloadToken(cfg *config.Config, keyString string, releaseID uint) (string, error) {
	claims := downloadClaims{
		Key:       keyString,
		ReleaseID: releaseID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Duration(cfg.DownloadTTLMinutes) * time.Minute)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "keyforge",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(cfg.DownloadSecret))
}

// VerifyDownloadToken validates a download token and returns the key
// string and release id it was issued for
func VerifyDownloadToken(cfg *config.Config, tokenString string) (string, uint, error) {
	token, err := jwt.ParseWithClaims(tokenString, &downloadClaims{}, func(t *jwt.Token) (interface{}, error) {
		return []byte(cfg.DownloadSecret), nil
	})
	if err != nil || !token.Valid {
		return "", 0, fmt.Errorf("invalid download token")
	}
	claims, ok := token.Claims.(*downloadClaims)
	if !ok {
		return "", 0, fmt.Errorf("invalid download token claims")
	}
	return claims.Key, claims.ReleaseID, nil
}

// VerifyDownload lets artifact hosts check a token they received
func (h *LicenseAPIHandler) VerifyDownload(c *fiber.Ctx) error {
	keyString, releaseID, err := VerifyDownloadToken(h.cfg, param(c, "token"))
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"message": "Invalid or expired download token",
		})
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"key":        keyString,
			"release_id": releaseID,
		},
	})
}
