// Package keygen produces license key strings for products. Each
// product selects a strategy: pattern (template rendering) or pool
// (pre-provisioned list popped in order, falling back to the pattern
// when drained).
package keygen

import (
	"errors"
	"fmt"

	"github.com/keyforge/backend/internal/models"
	"gorm.io/gorm"
)

// ErrInvalidConfiguration is returned when a strategy's required
// options are missing (e.g. pattern strategy without a pattern)
var ErrInvalidConfiguration = errors.New("invalid key generation configuration")

// casRetries bounds the compare-and-swap loop on pool pops
const casRetries = 5

// Generator issues key strings per product configuration
type Generator struct {
	db *gorm.DB
}

func NewGenerator(db *gorm.DB) *Generator {
	return &Generator{db: db}
}

// Generate returns a fresh key string for the product. Pool pops are
// atomic with respect to concurrent purchases: the remainder is written
// back with a conditional update on the previous pool value, retried on
// contention.
func (g *Generator) Generate(product *models.Product) (string, error) {
	switch product.KeyStrategy {
	case models.KeyStrategyPool:
		key, err := g.popPooledKey(product)
		if err == nil {
			return key, nil
		}
		if !errors.Is(err, errPoolEmpty) {
			return "", err
		}
		// Drained pool falls back to the pattern strategy
		return FromPattern(product.KeyPattern)
	case models.KeyStrategyPattern, "":
		return FromPattern(product.KeyPattern)
	default:
		return "", fmt.Errorf("strategy %q: %w", product.KeyStrategy, ErrInvalidConfiguration)
	}
}

var errPoolEmpty = errors.New("key pool empty")

func (g *Generator) popPooledKey(product *models.Product) (string, error) {
	for attempt := 0; attempt < casRetries; attempt++ {
		var current models.Product
		if err := g.db.Select("id", "key_pool").First(&current, product.ID).Error; err != nil {
			return "", fmt.Errorf("load key pool: %w", err)
		}

		key, remainder, ok := PopPool(current.KeyPool)
		if !ok {
			return "", errPoolEmpty
		}

		res := g.db.Model(&models.Product{}).
			Where("id = ? AND key_pool = ?", current.ID, current.KeyPool).
			Update("key_pool", remainder)
		if res.Error != nil {
			return "", fmt.Errorf("persist key pool: %w", res.Error)
		}
		if res.RowsAffected == 1 {
			product.KeyPool = remainder
			return key, nil
		}
		// Lost the race to a concurrent purchase; reload and retry
	}
	return "", fmt.Errorf("key pool contention on product %d", product.ID)
}
