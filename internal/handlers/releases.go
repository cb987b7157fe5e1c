package handlers

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/keyforge/backend/internal/models"
	"gorm.io/gorm"
)

type ReleaseHandler struct {
	db *gorm.DB
}

func NewReleaseHandler(db *gorm.DB) *ReleaseHandler {
	return &ReleaseHandler{db: db}
}

// ReleaseRequest represents a release create/update body
type ReleaseRequest struct {
	ProductID   uint               `json:"product_id" validate:"required"`
	Version     string             `json:"version" validate:"required"`
	Type        models.ReleaseType `json:"type" validate:"omitempty,oneof=major minor security prerelease"`
	Changelog   string             `json:"changelog"`
	ArtifactURL string             `json:"artifact_url" validate:"omitempty,url"`
}

// List returns releases, optionally filtered by product and status
func (h *ReleaseHandler) List(c *fiber.Ctx) error {
	query := h.db.Model(&models.Release{})

	if productID := c.Query("product_id"); productID != "" {
		query = query.Where("product_id = ?", productID)
	}
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var releases []models.Release
	if err := query.Order("created_at DESC").Find(&releases).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to fetch releases",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    releases,
	})
}

// findRelease resolves the :id param. On a bad id or a miss it writes
// the error response itself and returns a nil release.
func (h *ReleaseHandler) findRelease(c *fiber.Ctx) (*models.Release, error) {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return nil, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid release ID",
		})
	}
	var release models.Release
	if err := h.db.First(&release, id).Error; err != nil {
		return nil, c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "Release not found",
		})
	}
	return &release, nil
}

// Get returns a single release
func (h *ReleaseHandler) Get(c *fiber.Ctx) error {
	release, err := h.findRelease(c)
	if err != nil || release == nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    release,
	})
}

// Create registers a new draft release
func (h *ReleaseHandler) Create(c *fiber.Ctx) error {
	var req ReleaseRequest
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

	var product models.Product
	if err := h.db.First(&product, req.ProductID).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "Product not found",
		})
	}

	var existing int64
	h.db.Model(&models.Release{}).
		Where("product_id = ? AND version = ?", req.ProductID, req.Version).
		Count(&existing)
	if existing > 0 {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"success": false,
			"message": "This version already exists for the product",
		})
	}

	if req.Type == "" {
		req.Type = models.ReleaseTypeMinor
	}

	release := models.Release{
		ProductID:   req.ProductID,
		Version:     req.Version,
		Type:        req.Type,
		Changelog:   req.Changelog,
		ArtifactURL: req.ArtifactURL,
		Status:      models.ReleaseStatusDraft,
	}

	if err := h.db.Create(&release).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to create release",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data":    release,
	})
}

// Update edits a release's metadata. Product and version are fixed once
// created.
func (h *ReleaseHandler) Update(c *fiber.Ctx) error {
	release, err := h.findRelease(c)
	if err != nil || release == nil {
		return err
	}

	var req struct {
		Type        models.ReleaseType `json:"type" validate:"omitempty,oneof=major minor security prerelease"`
		Changelog   *string            `json:"changelog"`
		ArtifactURL *string            `json:"artifact_url"`
	}
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

	if req.Type != "" {
		release.Type = req.Type
	}
	if req.Changelog != nil {
		release.Changelog = *req.Changelog
	}
	if req.ArtifactURL != nil {
		release.ArtifactURL = *req.ArtifactURL
	}

	if err := h.db.Save(release).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to update release",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    release,
	})
}

// Publish makes a release distributable. First publication stamps
// published_at; republishing a paused release keeps the original stamp.
func (h *ReleaseHandler) Publish(c *fiber.Ctx) error {
	release, err := h.findRelease(c)
	if err != nil || release == nil {
		return err
	}

	if release.Status == models.ReleaseStatusArchived {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"success": false,
			"message": "Archived releases cannot be republished",
		})
	}

	updates := map[string]interface{}{"status": models.ReleaseStatusActive}
	if release.PublishedAt == nil {
		now := time.Now().UTC()
		updates["published_at"] = now
	}

	if err := h.db.Model(release).Updates(updates).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to publish release",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    release,
	})
}

// Pause takes a release out of distribution without losing it
func (h *ReleaseHandler) Pause(c *fiber.Ctx) error {
	return h.setStatus(c, models.ReleaseStatusPaused, "Release paused")
}

// Archive permanently retires a release
func (h *ReleaseHandler) Archive(c *fiber.Ctx) error {
	return h.setStatus(c, models.ReleaseStatusArchived, "Release archived")
}

func (h *ReleaseHandler) setStatus(c *fiber.Ctx, status models.ReleaseStatus, message string) error {
	release, err := h.findRelease(c)
	if err != nil || release == nil {
		return err
	}

	if err := h.db.Model(release).Update("status", status).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to update release status",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": message,
	})
}
