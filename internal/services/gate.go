package services

import (
	"errors"
	"fmt"

	"github.com/keyforge/backend/internal/models"
	"gorm.io/gorm"
)

// AuthMode selects how much trust an endpoint demands before its logic
// runs.
type AuthMode string

const (
	// ModeExists only requires the key string to resolve; disabled and
	// expired keys pass
	ModeExists AuthMode = "exists"
	// ModeActive additionally requires status active and expiration in
	// the future
	ModeActive AuthMode = "active"
	// ModeValidActivation additionally requires the supplied activation
	// id or location to resolve to an active activation on the key
	ModeValidActivation AuthMode = "valid_activation"
)

// Gate authenticates inbound license API requests before any endpoint
// logic runs. Expected failures come back as DomainError; storage
// failures are returned unwrapped into the fatal category.
type Gate struct {
	db *gorm.DB
}

func NewGate(db *gorm.DB) *Gate {
	return &Gate{db: db}
}

// Authenticate resolves the key string under the given mode. location
// holds the activation token or install location for
// ModeValidActivation and is ignored otherwise. The activation is
// non-nil only for ModeValidActivation.
func (g *Gate) Authenticate(mode AuthMode, keyString, location string) (*models.LicenseKey, *models.Activation, error) {
	if keyString == "" {
		return nil, nil, ErrInvalidKey
	}

	var key models.LicenseKey
	if err := g.db.Where("key = ?", keyString).First(&key).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrInvalidKey
		}
		return nil, nil, fmt.Errorf("load license key: %w", err)
	}

	if mode == ModeExists {
		return &key, nil, nil
	}

	if !key.IsUsable() {
		return nil, nil, ErrInvalidKey
	}
	if mode == ModeActive {
		return &key, nil, nil
	}

	// ModeValidActivation
	if location == "" {
		return nil, nil, ErrActivationRequired
	}
	var act models.Activation
	err := g.db.Where("key_id = ? AND status = ? AND (token = ? OR location = ?)",
		key.ID, models.ActivationStatusActive, location, location).First(&act).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrUnknownActivation
		}
		return nil, nil, fmt.Errorf("load activation: %w", err)
	}

	return &key, &act, nil
}
