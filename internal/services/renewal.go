package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/keyforge/backend/internal/keygen"
	"github.com/keyforge/backend/internal/models"
	"gorm.io/gorm"
)

// Discount is computed per product+key pair at query time; it is never
// persisted.
type Discount struct {
	Type             models.DiscountType `json:"type"`
	Amount           float64             `json:"amount"`
	ExpiryWindowDays int                 `json:"expiry_window_days"` // 0 = no expiry constraint
}

// ValidAt reports whether the discount still applies to the key at the
// given time: either the window is unset, or fewer than that many days
// have passed since the key expired.
func (d Discount) ValidAt(key *models.LicenseKey, now time.Time) bool {
	if d.Amount <= 0 {
		return false
	}
	if d.ExpiryWindowDays == 0 {
		return true
	}
	if key.ExpiresAt == nil {
		return true
	}
	sinceExpiry := now.Sub(*key.ExpiresAt)
	return sinceExpiry < time.Duration(d.ExpiryWindowDays)*24*time.Hour
}

// Apply returns the price after the discount, floored at zero.
func (d Discount) Apply(price float64) float64 {
	var discounted float64
	switch d.Type {
	case models.DiscountTypeFlat:
		discounted = price - d.Amount
	case models.DiscountTypePercent:
		discounted = price - price*d.Amount/100
	default:
		discounted = price
	}
	if discounted < 0 {
		return 0
	}
	return discounted
}

// RenewalEngine computes renewal eligibility and pricing, and issues
// successor keys.
type RenewalEngine struct {
	db  *gorm.DB
	gen *keygen.Generator
}

func NewRenewalEngine(db *gorm.DB, gen *keygen.Generator) *RenewalEngine {
	return &RenewalEngine{db: db, gen: gen}
}

// IsEligible reports whether the key can be renewed now: the product
// allows renewal, the key has an expiration (perpetual keys are not
// renewable), it has not been revoked or superseded, and now falls
// inside the product's renewal window before expiry.
func (e *RenewalEngine) IsEligible(key *models.LicenseKey, product *models.Product) bool {
	if !product.Renewable || key.ExpiresAt == nil {
		return false
	}
	if key.Status == models.KeyStatusDisabled || key.Superseded {
		return false
	}
	windowOpens := key.ExpiresAt.AddDate(0, 0, -product.RenewalWindowDays)
	return !time.Now().Before(windowOpens)
}

// DiscountFor returns the product's configured renewal discount for the
// key. Validity is checked separately via Discount.ValidAt.
func (e *RenewalEngine) DiscountFor(key *models.LicenseKey, product *models.Product) Discount {
	return Discount{
		Type:             product.RenewalDiscountType,
		Amount:           product.RenewalDiscountAmount,
		ExpiryWindowDays: product.RenewalDiscountExpiryDays,
	}
}

// DiscountedPrice computes what a renewal costs the key's owner now.
func (e *RenewalEngine) DiscountedPrice(key *models.LicenseKey, product *models.Product) float64 {
	d := e.DiscountFor(key, product)
	if !d.ValidAt(key, time.Now()) {
		return product.Price
	}
	return d.Apply(product.Price)
}

// Renew issues a successor key: status active, expiration =
// max(now, old expiration) + renewal period, linked back to the
// original. The original key is only marked superseded; its own
// expiration is never touched.
func (e *RenewalEngine) Renew(key *models.LicenseKey, product *models.Product) (*models.LicenseKey, error) {
	if !e.IsEligible(key, product) {
		return nil, ErrNotRenewable
	}

	now := time.Now().UTC()
	base := now
	if key.ExpiresAt != nil && key.ExpiresAt.After(now) {
		base = *key.ExpiresAt
	}
	newExpiry := base.AddDate(0, 0, product.RenewalPeriodDays)

	var successor *models.LicenseKey
	var lastErr error
	for attempt := 0; attempt < issueRetries; attempt++ {
		keyString, err := e.gen.Generate(product)
		if err != nil {
			return nil, fmt.Errorf("generate renewal key: %w", err)
		}

		candidate := &models.LicenseKey{
			Key:            keyString,
			ProductID:      key.ProductID,
			CustomerID:     key.CustomerID,
			CustomerEmail:  key.CustomerEmail,
			OrderID:        key.OrderID,
			Status:         models.KeyStatusActive,
			MaxActivations: key.MaxActivations,
			ExpiresAt:      &newExpiry,
			RenewedFromID:  &key.ID,
		}

		err = e.db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(candidate).Error; err != nil {
				return err
			}
			if err := tx.Model(&models.LicenseKey{}).
				Where("id = ?", key.ID).
				Update("superseded", true).Error; err != nil {
				return fmt.Errorf("mark superseded: %w", err)
			}
			return nil
		})
		if err == nil {
			successor = candidate
			break
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("create renewal key: %w", err)
		}
		lastErr = err
	}
	if successor == nil {
		return nil, fmt.Errorf("could not issue a unique renewal key after %d attempts: %w", issueRetries, lastErr)
	}

	key.Superseded = true
	return successor, nil
}

// UpgradeCredit returns the base price attributable to the key's
// product in its originating order, used to prorate upgrades. A product
// missing from the order's line items yields zero credit; that is the
// documented expected case, not an error.
func (e *RenewalEngine) UpgradeCredit(key *models.LicenseKey) (float64, error) {
	if key.OrderID == 0 {
		return 0, nil
	}

	var items []models.OrderItem
	err := e.db.Where("order_id = ?", key.OrderID).Find(&items).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, fmt.Errorf("load order items: %w", err)
	}

	for _, item := range items {
		if item.ProductID == key.ProductID {
			return item.Price, nil
		}
	}
	return 0, nil
}
