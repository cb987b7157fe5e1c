package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/keyforge/backend/internal/models"
	"gorm.io/gorm"
)

// Ledger tracks per-location activations against a key's activation
// limit. Cap enforcement is an atomic conditional update on the key
// row's slot counter, so two concurrent activations cannot both pass a
// stale count check.
type Ledger struct {
	db *gorm.DB
}

func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

// Activate creates an active activation for the location, claiming one
// of the key's slots. Fails with ErrMaxActivations when the cap is met
// and ErrDuplicateLocation when the location already holds an active
// activation on this key.
func (l *Ledger) Activate(key *models.LicenseKey, location string, track models.UpdateTrack) (*models.Activation, error) {
	if location == "" {
		return nil, ErrLocationRequired
	}
	if track == "" {
		track = models.TrackStable
	}

	var act *models.Activation
	err := l.db.Transaction(func(tx *gorm.DB) error {
		// Claim a slot. The WHERE clause makes the cap check and the
		// increment one atomic statement, and the row lock it takes
		// serializes concurrent activations on the same key.
		res := tx.Model(&models.LicenseKey{}).
			Where("id = ? AND (max_activations = 0 OR activations_used < max_activations)", key.ID).
			UpdateColumn("activations_used", gorm.Expr("activations_used + 1"))
		if res.Error != nil {
			return fmt.Errorf("claim activation slot: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrMaxActivations
		}

		// Behind the key-row lock this sees every committed activation,
		// so two racing requests for one location cannot both pass. The
		// rollback on the duplicate path releases the claimed slot.
		var dup int64
		if err := tx.Model(&models.Activation{}).
			Where("key_id = ? AND location = ? AND status = ?", key.ID, location, models.ActivationStatusActive).
			Count(&dup).Error; err != nil {
			return fmt.Errorf("check location: %w", err)
		}
		if dup > 0 {
			return ErrDuplicateLocation
		}

		a := models.Activation{
			KeyID:       key.ID,
			Token:       uuid.NewString(),
			Location:    location,
			Track:       track,
			Status:      models.ActivationStatusActive,
			ActivatedAt: time.Now().UTC(),
		}
		if err := tx.Create(&a).Error; err != nil {
			return fmt.Errorf("create activation: %w", err)
		}
		act = &a
		return nil
	})
	if err != nil {
		return nil, err
	}

	key.ActivationsUsed++
	return act, nil
}

// Deactivate releases the activation's slot. Deactivating an already
// deactivated activation is a no-op success. Rows are never deleted.
func (l *Ledger) Deactivate(act *models.Activation) error {
	if !act.IsActive() {
		return nil
	}

	now := time.Now().UTC()
	return l.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Activation{}).
			Where("id = ? AND status = ?", act.ID, models.ActivationStatusActive).
			Updates(map[string]interface{}{
				"status":         models.ActivationStatusDeactivated,
				"deactivated_at": now,
			})
		if res.Error != nil {
			return fmt.Errorf("deactivate activation: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			// Lost a race with another deactivation; nothing left to do
			return nil
		}

		if err := tx.Model(&models.LicenseKey{}).
			Where("id = ? AND activations_used > 0", act.KeyID).
			UpdateColumn("activations_used", gorm.Expr("activations_used - 1")).Error; err != nil {
			return fmt.Errorf("release activation slot: %w", err)
		}

		act.Status = models.ActivationStatusDeactivated
		act.DeactivatedAt = &now
		return nil
	})
}

// CountActive returns the number of activations currently holding a
// slot on the key. Used for the cap display and admin screens.
func (l *Ledger) CountActive(keyID uint) (int64, error) {
	var n int64
	err := l.db.Model(&models.Activation{}).
		Where("key_id = ? AND status = ?", keyID, models.ActivationStatusActive).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count activations: %w", err)
	}
	return n, nil
}

// FindForKey resolves an activation on the key by its public token,
// returning ErrInvalidActivation when nothing matches.
func (l *Ledger) FindForKey(key *models.LicenseKey, token string) (*models.Activation, error) {
	if token == "" {
		return nil, ErrActivationIDMissing
	}
	var act models.Activation
	err := l.db.Where("key_id = ? AND token = ?", key.ID, token).First(&act).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidActivation
		}
		return nil, fmt.Errorf("load activation: %w", err)
	}
	return &act, nil
}

// DeactivateAllForKey flips every active activation on the key and
// zeroes its slot counter. Used when a key is disabled.
func (l *Ledger) DeactivateAllForKey(tx *gorm.DB, keyID uint) error {
	now := time.Now().UTC()
	if err := tx.Model(&models.Activation{}).
		Where("key_id = ? AND status = ?", keyID, models.ActivationStatusActive).
		Updates(map[string]interface{}{
			"status":         models.ActivationStatusDeactivated,
			"deactivated_at": now,
		}).Error; err != nil {
		return fmt.Errorf("deactivate activations: %w", err)
	}
	if err := tx.Model(&models.LicenseKey{}).
		Where("id = ?", keyID).
		UpdateColumn("activations_used", 0).Error; err != nil {
		return fmt.Errorf("reset activation counter: %w", err)
	}
	return nil
}
