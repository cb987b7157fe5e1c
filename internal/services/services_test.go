package services

import (
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/keyforge/backend/internal/models"
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

func seedProduct(t *testing.T, db *gorm.DB, mutate ...func(*models.Product)) *models.Product {
	t.Helper()
	p := &models.Product{
		Name:              "Widget Pro",
		Slug:              "widget-pro-" + uuid.NewString()[:8],
		Price:             100,
		KeyStrategy:       models.KeyStrategyPattern,
		KeyPattern:        "XXXX-XXXX-XXXX",
		MaxActivations:    2,
		LicenseDays:       365,
		Renewable:         true,
		RenewalPeriodDays: 365,
		RenewalWindowDays: 30,
		IsActive:          true,
	}
	for _, m := range mutate {
		m(p)
	}
	require.NoError(t, db.Create(p).Error)
	return p
}

func seedKey(t *testing.T, db *gorm.DB, product *models.Product, mutate ...func(*models.LicenseKey)) *models.LicenseKey {
	t.Helper()
	expires := time.Now().UTC().AddDate(0, 0, 30)
	k := &models.LicenseKey{
		Key:            "KEY-" + uuid.NewString(),
		ProductID:      product.ID,
		CustomerEmail:  "customer@example.com",
		Status:         models.KeyStatusActive,
		MaxActivations: product.MaxActivations,
		ExpiresAt:      &expires,
	}
	for _, m := range mutate {
		m(k)
	}
	require.NoError(t, db.Create(k).Error)
	return k
}

func seedRelease(t *testing.T, db *gorm.DB, productID uint, ver string, mutate ...func(*models.Release)) *models.Release {
	t.Helper()
	now := time.Now().UTC()
	r := &models.Release{
		ProductID:   productID,
		Version:     ver,
		Type:        models.ReleaseTypeMinor,
		Changelog:   "changes in " + ver,
		ArtifactURL: "https://downloads.example.com/" + ver + ".zip",
		Status:      models.ReleaseStatusActive,
		PublishedAt: &now,
	}
	for _, m := range mutate {
		m(r)
	}
	require.NoError(t, db.Create(r).Error)
	return r
}

func daysFromNow(d int) *time.Time {
	t := time.Now().UTC().AddDate(0, 0, d)
	return &t
}
