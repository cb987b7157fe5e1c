package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/keyforge/backend/internal/models"
	"github.com/keyforge/backend/internal/services"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// OrderHandler records storefront purchases and drives key issuance
// through completion and refund.
type OrderHandler struct {
	db       *gorm.DB
	licenses *services.LicenseService
	logger   zerolog.Logger
}

func NewOrderHandler(db *gorm.DB, licenses *services.LicenseService, logger zerolog.Logger) *OrderHandler {
	return &OrderHandler{
		db:       db,
		licenses: licenses,
		logger:   logger.With().Str("component", "OrderHandler").Logger(),
	}
}

// OrderItemRequest is one line item in an order create body
type OrderItemRequest struct {
	ProductID uint `json:"product_id" validate:"required"`
	Quantity  int  `json:"quantity" validate:"gte=0,lte=100"`
}

// OrderRequest represents an order create body
type OrderRequest struct {
	CustomerID    uint               `json:"customer_id"`
	CustomerEmail string             `json:"customer_email" validate:"omitempty,email"`
	CustomerName  string             `json:"customer_name"`
	Items         []OrderItemRequest `json:"items" validate:"required,min=1,dive"`
}

// List returns orders with pagination
func (h *OrderHandler) List(c *fiber.Ctx) error {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "25"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 25
	}
	offset := (page - 1) * limit

	query := h.db.Model(&models.Order{})
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if search := c.Query("search"); search != "" {
		like := "%" + search + "%"
		query = query.Where("reference LIKE ? OR customer_email LIKE ?", like, like)
	}

	var total int64
	query.Count(&total)

	var orders []models.Order
	if err := query.Preload("Items").
		Order("created_at DESC").
		Offset(offset).Limit(limit).
		Find(&orders).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to fetch orders",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    orders,
		"pagination": fiber.Map{
			"page":       page,
			"limit":      limit,
			"total":      total,
			"totalPages": (total + int64(limit) - 1) / int64(limit),
		},
	})
}

// findOrder resolves the :id param. On a bad id or a miss it writes the
// error response itself and returns a nil order.
func (h *OrderHandler) findOrder(c *fiber.Ctx) (*models.Order, error) {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return nil, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid order ID",
		})
	}
	var order models.Order
	if err := h.db.Preload("Items").First(&order, id).Error; err != nil {
		return nil, c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "Order not found",
		})
	}
	return &order, nil
}

// Get returns a single order with the keys it issued
func (h *OrderHandler) Get(c *fiber.Ctx) error {
	order, err := h.findOrder(c)
	if err != nil || order == nil {
		return err
	}

	var keys []models.LicenseKey
	h.db.Where("order_id = ?", order.ID).Find(&keys)

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"order": order,
			"keys":  keys,
		},
	})
}

// Create records a pending order. Keys are not issued until completion.
func (h *OrderHandler) Create(c *fiber.Ctx) error {
	var req OrderRequest
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

	order := models.Order{
		Reference:     uuid.New().String(),
		CustomerID:    req.CustomerID,
		CustomerEmail: req.CustomerEmail,
		CustomerName:  req.CustomerName,
		Status:        models.OrderStatusPending,
	}

	for _, item := range req.Items {
		var product models.Product
		if err := h.db.First(&product, item.ProductID).Error; err != nil {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"success": false,
				"message": "Product not found: " + strconv.Itoa(int(item.ProductID)),
			})
		}
		qty := item.Quantity
		if qty == 0 {
			qty = 1
		}
		order.Items = append(order.Items, models.OrderItem{
			ProductID:   product.ID,
			ProductName: product.Name,
			Price:       product.Price,
			Quantity:    qty,
		})
		order.Total += product.Price * float64(qty)
	}

	if err := h.db.Create(&order).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to create order",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data":    order,
	})
}

// Complete marks an order paid and issues its license keys
func (h *OrderHandler) Complete(c *fiber.Ctx) error {
	order, err := h.findOrder(c)
	if err != nil || order == nil {
		return err
	}

	if order.Status != models.OrderStatusPending {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"success": false,
			"message": "Only pending orders can be completed",
		})
	}

	keys, err := h.licenses.CompleteOrder(order)
	if err != nil {
		h.logger.Error().Err(err).Uint("order_id", order.ID).Msg("order completion failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to complete order",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"order": order,
			"keys":  keys,
		},
	})
}

// Refund marks an order refunded and disables every key it issued
func (h *OrderHandler) Refund(c *fiber.Ctx) error {
	order, err := h.findOrder(c)
	if err != nil || order == nil {
		return err
	}

	if order.Status != models.OrderStatusCompleted {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"success": false,
			"message": "Only completed orders can be refunded",
		})
	}

	if err := h.licenses.RefundOrder(order); err != nil {
		h.logger.Error().Err(err).Uint("order_id", order.ID).Msg("order refund failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to refund order",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Order refunded and keys disabled",
	})
}
