package handlers

import (
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/keyforge/backend/internal/keygen"
	"github.com/keyforge/backend/internal/models"
	"gorm.io/gorm"
)

var validate = validator.New()

type ProductHandler struct {
	db *gorm.DB
}

func NewProductHandler(db *gorm.DB) *ProductHandler {
	return &ProductHandler{db: db}
}

// ProductRequest represents a product create/update body
type ProductRequest struct {
	Name  string  `json:"name" validate:"required"`
	Slug  string  `json:"slug" validate:"required"`
	Price float64 `json:"price" validate:"gte=0"`

	KeyStrategy models.KeyStrategy `json:"key_strategy" validate:"omitempty,oneof=pattern pool"`
	KeyPattern  string             `json:"key_pattern"`
	KeyPool     string             `json:"key_pool"`

	MaxActivations int `json:"max_activations" validate:"gte=0"`
	LicenseDays    int `json:"license_days" validate:"gte=0"`

	Renewable                 bool                `json:"renewable"`
	RenewalPeriodDays         int                 `json:"renewal_period_days" validate:"gte=0"`
	RenewalWindowDays         int                 `json:"renewal_window_days" validate:"gte=0"`
	RenewalDiscountType       models.DiscountType `json:"renewal_discount_type" validate:"omitempty,oneof=flat percent"`
	RenewalDiscountAmount     float64             `json:"renewal_discount_amount" validate:"gte=0"`
	RenewalDiscountExpiryDays int                 `json:"renewal_discount_expiry_days" validate:"gte=0"`

	IsActive *bool `json:"is_active"`
}

// List returns all products
func (h *ProductHandler) List(c *fiber.Ctx) error {
	query := h.db.Model(&models.Product{})

	if c.Query("all", "false") != "true" {
		query = query.Where("is_active = ?", true)
	}

	var products []models.Product
	if err := query.Order("name ASC").Find(&products).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to fetch products",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    products,
	})
}

// Get returns a single product with key and release counts
func (h *ProductHandler) Get(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid product ID",
		})
	}

	var product models.Product
	if err := h.db.First(&product, id).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "Product not found",
		})
	}

	var keyCount, releaseCount int64
	h.db.Model(&models.LicenseKey{}).Where("product_id = ?", id).Count(&keyCount)
	h.db.Model(&models.Release{}).Where("product_id = ?", id).Count(&releaseCount)

	poolRemaining := 0
	if product.KeyStrategy == models.KeyStrategyPool {
		for _, line := range strings.Split(product.KeyPool, "\n") {
			if strings.TrimSpace(line) != "" {
				poolRemaining++
			}
		}
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"product":        product,
			"key_count":      keyCount,
			"release_count":  releaseCount,
			"pool_remaining": poolRemaining,
		},
	})
}

// Create creates a new product
func (h *ProductHandler) Create(c *fiber.Ctx) error {
	var req ProductRequest
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

	if req.KeyStrategy == "" {
		req.KeyStrategy = models.KeyStrategyPattern
	}
	if req.KeyStrategy == models.KeyStrategyPattern && req.KeyPattern == "" {
		req.KeyPattern = keygen.DefaultPattern
	}

	var existing int64
	h.db.Model(&models.Product{}).Where("slug = ?", req.Slug).Count(&existing)
	if existing > 0 {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"success": false,
			"message": "A product with this slug already exists",
		})
	}

	product := models.Product{
		Name:                      req.Name,
		Slug:                      req.Slug,
		Price:                     req.Price,
		KeyStrategy:               req.KeyStrategy,
		KeyPattern:                req.KeyPattern,
		KeyPool:                   req.KeyPool,
		MaxActivations:            req.MaxActivations,
		LicenseDays:               req.LicenseDays,
		Renewable:                 req.Renewable,
		RenewalPeriodDays:         req.RenewalPeriodDays,
		RenewalWindowDays:         req.RenewalWindowDays,
		RenewalDiscountType:       req.RenewalDiscountType,
		RenewalDiscountAmount:     req.RenewalDiscountAmount,
		RenewalDiscountExpiryDays: req.RenewalDiscountExpiryDays,
		IsActive:                  true,
	}
	if req.IsActive != nil {
		product.IsActive = *req.IsActive
	}

	if err := h.db.Create(&product).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to create product",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data":    product,
	})
}

// Update updates a product
func (h *ProductHandler) Update(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid product ID",
		})
	}

	var product models.Product
	if err := h.db.First(&product, id).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "Product not found",
		})
	}

	var req ProductRequest
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

	if req.Slug != product.Slug {
		var existing int64
		h.db.Model(&models.Product{}).Where("slug = ? AND id != ?", req.Slug, id).Count(&existing)
		if existing > 0 {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"success": false,
				"message": "A product with this slug already exists",
			})
		}
	}

	product.Name = req.Name
	product.Slug = req.Slug
	product.Price = req.Price
	if req.KeyStrategy != "" {
		product.KeyStrategy = req.KeyStrategy
	}
	product.KeyPattern = req.KeyPattern
	product.KeyPool = req.KeyPool
	product.MaxActivations = req.MaxActivations
	product.LicenseDays = req.LicenseDays
	product.Renewable = req.Renewable
	product.RenewalPeriodDays = req.RenewalPeriodDays
	product.RenewalWindowDays = req.RenewalWindowDays
	if req.RenewalDiscountType != "" {
		product.RenewalDiscountType = req.RenewalDiscountType
	}
	product.RenewalDiscountAmount = req.RenewalDiscountAmount
	product.RenewalDiscountExpiryDays = req.RenewalDiscountExpiryDays
	if req.IsActive != nil {
		product.IsActive = *req.IsActive
	}

	if err := h.db.Save(&product).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to update product",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    product,
	})
}

// Delete deactivates a product. Products with issued keys are never
// removed from the database so the key history stays intact.
func (h *ProductHandler) Delete(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid product ID",
		})
	}

	var product models.Product
	if err := h.db.First(&product, id).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "Product not found",
		})
	}

	var keyCount int64
	h.db.Model(&models.LicenseKey{}).Where("product_id = ?", id).Count(&keyCount)
	if keyCount > 0 {
		if err := h.db.Model(&product).Update("is_active", false).Error; err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"success": false,
				"message": "Failed to deactivate product",
			})
		}
		return c.JSON(fiber.Map{
			"success": true,
			"message": "Product has issued keys and was deactivated instead of deleted",
		})
	}

	if err := h.db.Delete(&product).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to delete product",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Product deleted",
	})
}
