package handlers

import (
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/keyforge/backend/internal/models"
	"github.com/keyforge/backend/internal/services"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// LicenseHandler is the admin surface over keys: manual issuance,
// inspection, disabling, renewal, and the activation ledger.
type LicenseHandler struct {
	db       *gorm.DB
	licenses *services.LicenseService
	renewals *services.RenewalEngine
	ledger   *services.Ledger
	logger   zerolog.Logger
}

func NewLicenseHandler(db *gorm.DB, licenses *services.LicenseService, renewals *services.RenewalEngine,
	ledger *services.Ledger, logger zerolog.Logger) *LicenseHandler {
	return &LicenseHandler{
		db:       db,
		licenses: licenses,
		renewals: renewals,
		ledger:   ledger,
		logger:   logger.With().Str("component", "LicenseHandler").Logger(),
	}
}

// List returns license keys with pagination and filters
func (h *LicenseHandler) List(c *fiber.Ctx) error {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "25"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 25
	}
	offset := (page - 1) * limit

	query := h.db.Model(&models.LicenseKey{})

	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if productID := c.Query("product_id"); productID != "" {
		query = query.Where("product_id = ?", productID)
	}
	if c.Query("superseded", "false") != "true" {
		query = query.Where("superseded = ?", false)
	}
	if search := c.Query("search"); search != "" {
		like := "%" + search + "%"
		query = query.Where("key LIKE ? OR customer_email LIKE ?", like, like)
	}

	var total int64
	query.Count(&total)

	var keys []models.LicenseKey
	if err := query.Preload("Product").
		Order("created_at DESC").
		Offset(offset).Limit(limit).
		Find(&keys).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to fetch license keys",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    keys,
		"pagination": fiber.Map{
			"page":       page,
			"limit":      limit,
			"total":      total,
			"totalPages": (total + int64(limit) - 1) / int64(limit),
		},
	})
}

// findKey resolves the :id param. On a bad id or a miss it writes the
// error response itself and returns a nil key.
func (h *LicenseHandler) findKey(c *fiber.Ctx) (*models.LicenseKey, error) {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return nil, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid license key ID",
		})
	}
	var key models.LicenseKey
	if err := h.db.Preload("Product").First(&key, id).Error; err != nil {
		return nil, c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "License key not found",
		})
	}
	return &key, nil
}

// Get returns a single key with its activations and order
func (h *LicenseHandler) Get(c *fiber.Ctx) error {
	key, err := h.findKey(c)
	if err != nil || key == nil {
		return err
	}

	h.db.Preload("Activations").Preload("Order").Preload("Order.Items").First(key, key.ID)

	activeCount, _ := h.ledger.CountActive(key.ID)

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"key":                key,
			"active_activations": activeCount,
			"remaining":          key.RemainingActivations(),
			"renewable":          h.renewals.IsEligible(key, &key.Product),
		},
	})
}

// CreateLicenseRequest issues a key outside the storefront flow
type CreateLicenseRequest struct {
	ProductID     uint   `json:"product_id" validate:"required"`
	CustomerID    uint   `json:"customer_id"`
	CustomerEmail string `json:"customer_email" validate:"omitempty,email"`
	CustomerName  string `json:"customer_name"`
	Quantity      int    `json:"quantity" validate:"gte=0,lte=100"`
}

// Create issues keys manually. A completed order is recorded behind the
// scenes so every key keeps an order trail.
func (h *LicenseHandler) Create(c *fiber.Ctx) error {
	var req CreateLicenseRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid request body",
		})
	}
	if err := validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": err.Error(),
		})
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	var product models.Product
	if err := h.db.First(&product, req.ProductID).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "Product not found",
		})
	}

	now := time.Now().UTC()
	order := models.Order{
		Reference:     uuid.New().String(),
		CustomerID:    req.CustomerID,
		CustomerEmail: req.CustomerEmail,
		CustomerName:  req.CustomerName,
		Total:         product.Price * float64(req.Quantity),
		Status:        models.OrderStatusCompleted,
		CompletedAt:   &now,
		Items: []models.OrderItem{{
			ProductID:   product.ID,
			ProductName: product.Name,
			Price:       product.Price,
			Quantity:    req.Quantity,
		}},
	}
	if err := h.db.Create(&order).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to record order",
		})
	}

	keys := make([]*models.LicenseKey, 0, req.Quantity)
	for i := 0; i < req.Quantity; i++ {
		key, err := h.licenses.Issue(&product, &order)
		if err != nil {
			h.logger.Error().Err(err).Uint("product_id", product.ID).Msg("manual key issuance failed")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"success": false,
				"message": "Failed to issue license key",
			})
		}
		keys = append(keys, key)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"order": order,
			"keys":  keys,
		},
	})
}

// Disable permanently revokes a key and releases its activations
func (h *LicenseHandler) Disable(c *fiber.Ctx) error {
	key, err := h.findKey(c)
	if err != nil || key == nil {
		return err
	}

	if err := h.licenses.Disable(key); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to disable license key",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "License key disabled",
	})
}

// RenewalQuote previews renewal terms for a key
func (h *LicenseHandler) RenewalQuote(c *fiber.Ctx) error {
	key, err := h.findKey(c)
	if err != nil || key == nil {
		return err
	}

	eligible := h.renewals.IsEligible(key, &key.Product)
	credit, err := h.renewals.UpgradeCredit(key)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to compute upgrade credit",
		})
	}

	data := fiber.Map{
		"eligible":       eligible,
		"price":          key.Product.Price,
		"upgrade_credit": credit,
	}
	if eligible {
		discount := h.renewals.DiscountFor(key, &key.Product)
		data["discount_type"] = discount.Type
		data["discount_amount"] = discount.Amount
		data["renewal_price"] = h.renewals.DiscountedPrice(key, &key.Product)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    data,
	})
}

// Renew issues a successor key with an extended expiry
func (h *LicenseHandler) Renew(c *fiber.Ctx) error {
	key, err := h.findKey(c)
	if err != nil || key == nil {
		return err
	}

	successor, err := h.renewals.Renew(key, &key.Product)
	if err != nil {
		if errors.Is(err, services.ErrNotRenewable) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"success": false,
				"message": "License key is not renewable",
			})
		}
		h.logger.Error().Err(err).Uint("key_id", key.ID).Msg("renewal failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to renew license key",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    successor,
	})
}

// ListActivations returns the ledger entries of a key
func (h *LicenseHandler) ListActivations(c *fiber.Ctx) error {
	key, err := h.findKey(c)
	if err != nil || key == nil {
		return err
	}

	var activations []models.Activation
	if err := h.db.Where("key_id = ?", key.ID).Order("activated_at DESC").Find(&activations).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to fetch activations",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    activations,
	})
}

// DeactivateActivation releases one activation slot on behalf of the
// customer
func (h *LicenseHandler) DeactivateActivation(c *fiber.Ctx) error {
	key, err := h.findKey(c)
	if err != nil || key == nil {
		return err
	}

	actID, err := strconv.Atoi(c.Params("activationId"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid activation ID",
		})
	}

	var act models.Activation
	if err := h.db.Where("id = ? AND key_id = ?", actID, key.ID).First(&act).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "Activation not found",
		})
	}

	if err := h.ledger.Deactivate(&act); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to deactivate",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Activation released",
	})
}
