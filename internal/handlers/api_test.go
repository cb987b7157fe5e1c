package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/keyforge/backend/internal/config"
	"github.com/keyforge/backend/internal/models"
	"github.com/keyforge/backend/internal/services"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type apiResponse struct {
	Success bool            `json:"success"`
	Error   *int            `json:"error"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newTestAPI(t *testing.T) (*fiber.App, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, models.AutoMigrate(db))

	cfg := &config.Config{
		DownloadSecret:     "test-download-secret",
		DownloadTTLMinutes: 10,
	}

	h := NewLicenseAPIHandler(
		services.NewGate(db),
		services.NewLedger(db),
		services.NewCatalog(db),
		cfg, db, zerolog.Nop(),
	)

	app := fiber.New()
	app.Post("/license/activate", h.Activate)
	app.Post("/license/deactivate", h.Deactivate)
	app.Get("/license/version", h.Version)
	app.Get("/license/download", h.Download)
	app.Get("/license/download/verify", h.VerifyDownload)
	app.Get("/products/:id/info", h.ProductInfo)
	app.Get("/products/:id/changelog", h.Changelog)
	return app, db
}

func apiProduct(t *testing.T, db *gorm.DB) *models.Product {
	t.Helper()
	p := &models.Product{
		Name:        "Widget Pro",
		Slug:        "widget-pro-" + uuid.NewString()[:8],
		Price:       100,
		KeyStrategy: models.KeyStrategyPattern,
		KeyPattern:  "XXXX-XXXX",
		IsActive:    true,
	}
	require.NoError(t, db.Create(p).Error)
	return p
}

func apiKey(t *testing.T, db *gorm.DB, product *models.Product, maxActivations int) *models.LicenseKey {
	t.Helper()
	expires := time.Now().UTC().AddDate(0, 0, 30)
	k := &models.LicenseKey{
		Key:            "KEY-" + uuid.NewString(),
		ProductID:      product.ID,
		Status:         models.KeyStatusActive,
		MaxActivations: maxActivations,
		ExpiresAt:      &expires,
	}
	require.NoError(t, db.Create(k).Error)
	return k
}

func doRequest(t *testing.T, app *fiber.App, method, target string) (*http.Response, apiResponse) {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	var body apiResponse
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 && resp.Header.Get("Content-Type") != "" &&
		strings.Contains(resp.Header.Get("Content-Type"), "json") {
		require.NoError(t, json.Unmarshal(raw, &body))
	}
	return resp, body
}

func requireCode(t *testing.T, body apiResponse, want int) {
	t.Helper()
	require.False(t, body.Success)
	require.NotNil(t, body.Error)
	assert.Equal(t, want, *body.Error)
}

func TestActivateCodes(t *testing.T) {
	app, db := newTestAPI(t)
	product := apiProduct(t, db)
	key := apiKey(t, db, product, 1)

	// Unknown key
	_, body := doRequest(t, app, "POST", "/license/activate?key=NO-SUCH-KEY&location=https://a.example.com")
	requireCode(t, body, 2)

	// Missing location
	_, body = doRequest(t, app, "POST", "/license/activate?key="+key.Key)
	requireCode(t, body, 3)

	// Success
	resp, body := doRequest(t, app, "POST", "/license/activate?key="+key.Key+"&location=https://a.example.com")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, body.Success)

	var data struct {
		ActivationID string `json:"activation_id"`
		Limit        int    `json:"limit"`
		Remaining    int    `json:"remaining"`
	}
	require.NoError(t, json.Unmarshal(body.Data, &data))
	assert.NotEmpty(t, data.ActivationID)
	assert.Equal(t, 1, data.Limit)
	assert.Equal(t, 0, data.Remaining)

	// Same location again
	_, body = doRequest(t, app, "POST", "/license/activate?key="+key.Key+"&location=https://a.example.com")
	requireCode(t, body, 5)

	// Cap reached
	_, body = doRequest(t, app, "POST", "/license/activate?key="+key.Key+"&location=https://b.example.com")
	requireCode(t, body, 1)
}

func TestDeactivateCodes(t *testing.T) {
	app, db := newTestAPI(t)
	product := apiProduct(t, db)
	key := apiKey(t, db, product, 2)

	_, body := doRequest(t, app, "POST", "/license/activate?key="+key.Key+"&location=https://a.example.com")
	require.True(t, body.Success)
	var data struct {
		ActivationID string `json:"activation_id"`
	}
	require.NoError(t, json.Unmarshal(body.Data, &data))

	// Unknown key
	_, body = doRequest(t, app, "POST", "/license/deactivate?key=NO-SUCH-KEY&activation_id="+data.ActivationID)
	requireCode(t, body, 2)

	// Missing activation id
	_, body = doRequest(t, app, "POST", "/license/deactivate?key="+key.Key)
	requireCode(t, body, 4)

	// Wrong activation id
	_, body = doRequest(t, app, "POST", "/license/deactivate?key="+key.Key+"&activation_id=bogus")
	requireCode(t, body, 5)

	// Success, then an idempotent repeat
	_, body = doRequest(t, app, "POST", "/license/deactivate?key="+key.Key+"&activation_id="+data.ActivationID)
	assert.True(t, body.Success)
	_, body = doRequest(t, app, "POST", "/license/deactivate?key="+key.Key+"&activation_id="+data.ActivationID)
	assert.True(t, body.Success)
}

func TestVersionCodes(t *testing.T) {
	app, db := newTestAPI(t)
	product := apiProduct(t, db)
	key := apiKey(t, db, product, 2)

	now := time.Now().UTC()
	require.NoError(t, db.Create(&models.Release{
		ProductID:   product.ID,
		Version:     "2.1.0",
		Type:        models.ReleaseTypeMinor,
		Changelog:   "bug fixes",
		ArtifactURL: "https://downloads.example.com/widget-2.1.0.zip",
		Status:      models.ReleaseStatusActive,
		PublishedAt: &now,
	}).Error)

	_, body := doRequest(t, app, "POST", "/license/activate?key="+key.Key+"&location=https://a.example.com")
	require.True(t, body.Success)
	var act struct {
		ActivationID string `json:"activation_id"`
	}
	require.NoError(t, json.Unmarshal(body.Data, &act))

	// Missing activation id
	_, body = doRequest(t, app, "GET", "/license/version?key="+key.Key)
	requireCode(t, body, 6)

	// Unknown activation id
	_, body = doRequest(t, app, "GET", "/license/version?key="+key.Key+"&activation_id=bogus")
	requireCode(t, body, 7)

	// Success
	_, body = doRequest(t, app, "GET", "/license/version?key="+key.Key+"&activation_id="+act.ActivationID)
	require.True(t, body.Success)
	var rel struct {
		Version   string `json:"version"`
		Changelog string `json:"changelog"`
	}
	require.NoError(t, json.Unmarshal(body.Data, &rel))
	assert.Equal(t, "2.1.0", rel.Version)
	assert.Equal(t, "bug fixes", rel.Changelog)
}

func TestDownloadRedirectsWithSignedToken(t *testing.T) {
	app, db := newTestAPI(t)
	product := apiProduct(t, db)
	key := apiKey(t, db, product, 2)

	now := time.Now().UTC()
	release := &models.Release{
		ProductID:   product.ID,
		Version:     "2.1.0",
		ArtifactURL: "https://downloads.example.com/widget-2.1.0.zip",
		Status:      models.ReleaseStatusActive,
		PublishedAt: &now,
	}
	require.NoError(t, db.Create(release).Error)

	_, body := doRequest(t, app, "POST", "/license/activate?key="+key.Key+"&location=https://a.example.com")
	require.True(t, body.Success)
	var act struct {
		ActivationID string `json:"activation_id"`
	}
	require.NoError(t, json.Unmarshal(body.Data, &act))

	resp, _ := doRequest(t, app, "GET", "/license/download?key="+key.Key+"&activation_id="+act.ActivationID)
	require.Equal(t, http.StatusFound, resp.StatusCode)

	location := resp.Header.Get("Location")
	require.True(t, strings.HasPrefix(location, release.ArtifactURL+"?token="))

	token := strings.TrimPrefix(location, release.ArtifactURL+"?token=")
	resp, body = doRequest(t, app, "GET", "/license/download/verify?token="+token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, body.Success)
	var verified struct {
		Key       string `json:"key"`
		ReleaseID uint   `json:"release_id"`
	}
	require.NoError(t, json.Unmarshal(body.Data, &verified))
	assert.Equal(t, key.Key, verified.Key)
	assert.Equal(t, release.ID, verified.ReleaseID)

	// Tampered tokens are rejected
	resp, _ = doRequest(t, app, "GET", "/license/download/verify?token="+token+"x")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestProductInfoAndChangelog(t *testing.T) {
	app, db := newTestAPI(t)
	product := apiProduct(t, db)

	now := time.Now().UTC()
	require.NoError(t, db.Create(&models.Release{
		ProductID:   product.ID,
		Version:     "1.4.2",
		Changelog:   "security fixes",
		Status:      models.ReleaseStatusActive,
		PublishedAt: &now,
	}).Error)

	resp, body := doRequest(t, app, "GET", "/products/999/info")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.False(t, body.Success)

	resp, body = doRequest(t, app, "GET", "/products/nope/info")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.False(t, body.Success)

	_, body = doRequest(t, app, "GET", "/products/"+uitoa(product.ID)+"/info")
	require.True(t, body.Success)
	var info struct {
		Name          string  `json:"name"`
		Slug          string  `json:"slug"`
		Price         float64 `json:"price"`
		LatestVersion string  `json:"latest_version"`
	}
	require.NoError(t, json.Unmarshal(body.Data, &info))
	assert.Equal(t, product.Name, info.Name)
	assert.Equal(t, "1.4.2", info.LatestVersion)

	_, body = doRequest(t, app, "GET", "/products/"+uitoa(product.ID)+"/changelog")
	require.True(t, body.Success)
	var cl struct {
		Changelog string `json:"changelog"`
	}
	require.NoError(t, json.Unmarshal(body.Data, &cl))
	assert.Equal(t, "security fixes", cl.Changelog)
}

func TestActivateDisabledAndExpiredKey(t *testing.T) {
	app, db := newTestAPI(t)
	product := apiProduct(t, db)

	disabled := apiKey(t, db, product, 2)
	require.NoError(t, db.Model(disabled).Update("status", models.KeyStatusDisabled).Error)

	expired := apiKey(t, db, product, 2)
	past := time.Now().UTC().AddDate(0, 0, -1)
	require.NoError(t, db.Model(expired).Update("expires_at", past).Error)

	_, body := doRequest(t, app, "POST", "/license/activate?key="+disabled.Key+"&location=https://a.example.com")
	requireCode(t, body, 2)

	_, body = doRequest(t, app, "POST", "/license/activate?key="+expired.Key+"&location=https://a.example.com")
	requireCode(t, body, 2)
}

func uitoa(v uint) string {
	return strconv.FormatUint(uint64(v), 10)
}
