package keygen

import (
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/keyforge/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	// Every pooled connection would get its own in-memory database
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, models.AutoMigrate(db))
	return db
}

func TestFromPatternPlaceholders(t *testing.T) {
	key, err := FromPattern(`XX99\-XX`)
	require.NoError(t, err)

	require.Len(t, key, 7)
	assert.Contains(t, upperChars, string(key[0]))
	assert.Contains(t, upperChars, string(key[1]))
	assert.Contains(t, digitChars, string(key[2]))
	assert.Contains(t, digitChars, string(key[3]))
	assert.Equal(t, byte('-'), key[4], "escaped dash must be reproduced verbatim, not drawn from the symbol alphabet")
	assert.Contains(t, upperChars, string(key[5]))
	assert.Contains(t, upperChars, string(key[6]))
}

func TestFromPatternPassthrough(t *testing.T) {
	key, err := FromPattern("LIC-9999")
	require.NoError(t, err)

	require.Len(t, key, 8)
	assert.Equal(t, "LI", key[:2], "unmapped characters pass through unchanged")
	assert.Equal(t, "-", string(key[3]))
	for i := 4; i < 8; i++ {
		assert.Contains(t, digitChars, string(key[i]))
	}
}

func TestFromPatternEscapedPlaceholder(t *testing.T) {
	key, err := FromPattern(`\X\9\#`)
	require.NoError(t, err)
	assert.Equal(t, "X9#", key)
}

func TestFromPatternEmpty(t *testing.T) {
	_, err := FromPattern("")
	assert.ErrorIs(t, err, ErrInvalidConfiguration)

	_, err = FromPattern("   ")
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}

func TestPopPool(t *testing.T) {
	key, rest, ok := PopPool("A\nB\nC")
	require.True(t, ok)
	assert.Equal(t, "A", key)
	assert.Equal(t, "B\nC", rest)

	key, rest, ok = PopPool("\n\n  B \nC\n")
	require.True(t, ok)
	assert.Equal(t, "B", key)
	assert.Equal(t, "C", rest)

	_, _, ok = PopPool("\n \n")
	assert.False(t, ok)
}

func TestGeneratePooledOrderAndFallback(t *testing.T) {
	db := newTestDB(t)
	product := &models.Product{
		Name:        "Widget Pro",
		Slug:        "widget-pro",
		Price:       49,
		KeyStrategy: models.KeyStrategyPool,
		KeyPool:     "A\nB\nC",
		KeyPattern:  "XXXX-XXXX",
	}
	require.NoError(t, db.Create(product).Error)

	gen := NewGenerator(db)

	for _, want := range []string{"A", "B", "C"} {
		key, err := gen.Generate(product)
		require.NoError(t, err)
		assert.Equal(t, want, key)
	}

	// Pool state persisted back to the product row
	var stored models.Product
	require.NoError(t, db.First(&stored, product.ID).Error)
	assert.Empty(t, stored.KeyPool)

	// Fourth call falls back to the pattern strategy
	key, err := gen.Generate(product)
	require.NoError(t, err)
	require.Len(t, key, 9)
	assert.NotContains(t, []string{"A", "B", "C"}, key)
	assert.Equal(t, "-", string(key[4]))
}

func TestGeneratePatternStrategy(t *testing.T) {
	db := newTestDB(t)
	product := &models.Product{
		Name:        "Widget",
		Slug:        "widget",
		KeyStrategy: models.KeyStrategyPattern,
		KeyPattern:  "XXXX-9999",
	}
	require.NoError(t, db.Create(product).Error)

	key, err := NewGenerator(db).Generate(product)
	require.NoError(t, err)
	require.Len(t, key, 9)
	assert.Contains(t, upperChars, string(key[0]))
	assert.Contains(t, digitChars, string(key[8]))
}

func TestGenerateUnknownStrategy(t *testing.T) {
	db := newTestDB(t)
	_, err := NewGenerator(db).Generate(&models.Product{KeyStrategy: "tarot"})
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}

func TestFromPatternSymbols(t *testing.T) {
	key, err := FromPattern("##")
	require.NoError(t, err)
	require.Len(t, key, 2)
	for i := range key {
		assert.True(t, strings.ContainsRune(symbolChars, rune(key[i])))
	}
}
