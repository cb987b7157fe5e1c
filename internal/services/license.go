package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/keyforge/backend/internal/keygen"
	"github.com/keyforge/backend/internal/models"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// issueRetries bounds regeneration when a pattern collides with an
// existing key string
const issueRetries = 5

// LicenseService owns the key lifecycle: issuance on purchase
// completion, revocation on refund, and the time-driven expiry sweep.
type LicenseService struct {
	db     *gorm.DB
	gen    *keygen.Generator
	ledger *Ledger
	logger zerolog.Logger
}

func NewLicenseService(db *gorm.DB, gen *keygen.Generator, ledger *Ledger, logger zerolog.Logger) *LicenseService {
	return &LicenseService{
		db:     db,
		gen:    gen,
		ledger: ledger,
		logger: logger.With().Str("component", "LicenseService").Logger(),
	}
}

// Issue generates and persists a new key for the product and order.
// Key strings are globally unique: the insert runs against the unique
// index and pattern collisions are regenerated.
func (s *LicenseService) Issue(product *models.Product, order *models.Order) (*models.LicenseKey, error) {
	var expiresAt *time.Time
	if product.LicenseDays > 0 {
		t := time.Now().UTC().AddDate(0, 0, product.LicenseDays)
		expiresAt = &t
	}

	var lastErr error
	for attempt := 0; attempt < issueRetries; attempt++ {
		keyString, err := s.gen.Generate(product)
		if err != nil {
			return nil, err
		}

		key := &models.LicenseKey{
			Key:            keyString,
			ProductID:      product.ID,
			CustomerID:     order.CustomerID,
			CustomerEmail:  order.CustomerEmail,
			OrderID:        order.ID,
			Status:         models.KeyStatusActive,
			MaxActivations: product.MaxActivations,
			ExpiresAt:      expiresAt,
		}
		err = s.db.Create(key).Error
		if err == nil {
			return key, nil
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("create license key: %w", err)
		}
		lastErr = err
		s.logger.Warn().Str("key", keyString).Uint("product_id", product.ID).Msg("generated key collided, retrying")
	}
	return nil, fmt.Errorf("could not issue a unique key after %d attempts: %w", issueRetries, lastErr)
}

// Get loads a key by its string.
func (s *LicenseService) Get(keyString string) (*models.LicenseKey, error) {
	var key models.LicenseKey
	if err := s.db.Where("key = ?", keyString).First(&key).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidKey
		}
		return nil, fmt.Errorf("load license key: %w", err)
	}
	return &key, nil
}

// CompleteOrder marks the order paid and issues one key per unit of
// every line item. Called by the storefront when checkout settles.
func (s *LicenseService) CompleteOrder(order *models.Order) ([]*models.LicenseKey, error) {
	if order.Status == models.OrderStatusCompleted {
		return nil, errors.New("order already completed")
	}

	var keys []*models.LicenseKey
	for _, item := range order.Items {
		var product models.Product
		if err := s.db.First(&product, item.ProductID).Error; err != nil {
			return nil, fmt.Errorf("load product %d: %w", item.ProductID, err)
		}
		qty := item.Quantity
		if qty < 1 {
			qty = 1
		}
		for i := 0; i < qty; i++ {
			key, err := s.Issue(&product, order)
			if err != nil {
				return nil, err
			}
			keys = append(keys, key)
		}
	}

	now := time.Now().UTC()
	if err := s.db.Model(order).Updates(map[string]interface{}{
		"status":       models.OrderStatusCompleted,
		"completed_at": now,
	}).Error; err != nil {
		return nil, fmt.Errorf("complete order: %w", err)
	}
	order.Status = models.OrderStatusCompleted
	order.CompletedAt = &now

	s.logger.Info().Str("order", order.Reference).Int("keys", len(keys)).Msg("order completed, keys issued")
	return keys, nil
}

// RefundOrder marks the order refunded and disables every key it
// issued.
func (s *LicenseService) RefundOrder(order *models.Order) error {
	var keys []models.LicenseKey
	if err := s.db.Where("order_id = ?", order.ID).Find(&keys).Error; err != nil {
		return fmt.Errorf("load order keys: %w", err)
	}
	for i := range keys {
		if err := s.Disable(&keys[i]); err != nil {
			return err
		}
	}

	now := time.Now().UTC()
	if err := s.db.Model(order).Updates(map[string]interface{}{
		"status":      models.OrderStatusRefunded,
		"refunded_at": now,
	}).Error; err != nil {
		return fmt.Errorf("refund order: %w", err)
	}
	order.Status = models.OrderStatusRefunded
	order.RefundedAt = &now

	s.logger.Info().Str("order", order.Reference).Int("keys", len(keys)).Msg("order refunded, keys disabled")
	return nil
}

// Disable revokes a key and deactivates all of its active activations.
// Valid from both the active and expired states; disabling an already
// disabled key is a no-op.
func (s *LicenseService) Disable(key *models.LicenseKey) error {
	if key.Status == models.KeyStatusDisabled {
		return nil
	}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.LicenseKey{}).
			Where("id = ?", key.ID).
			Update("status", models.KeyStatusDisabled).Error; err != nil {
			return fmt.Errorf("disable license key: %w", err)
		}
		return s.ledger.DeactivateAllForKey(tx, key.ID)
	})
	if err != nil {
		return err
	}
	key.Status = models.KeyStatusDisabled
	key.ActivationsUsed = 0
	return nil
}

// ExpireOverdue flips past-due active keys to expired. The only
// time-driven status transition; run by the reminder worker.
func (s *LicenseService) ExpireOverdue() (int64, error) {
	res := s.db.Model(&models.LicenseKey{}).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at < ?",
			models.KeyStatusActive, time.Now().UTC()).
		Update("status", models.KeyStatusExpired)
	if res.Error != nil {
		return 0, fmt.Errorf("expire keys: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		s.logger.Info().Int64("keys", res.RowsAffected).Msg("expired overdue keys")
	}
	return res.RowsAffected, nil
}
