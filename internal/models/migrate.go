package models

import (
	"gorm.io/gorm"
)

// AutoMigrate creates or updates all tables. Keys carry a unique index
// on the key string, activations reference their key, releases their
// product; those constraints are part of the contract, the column
// layout is not.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Product{},
		&LicenseKey{},
		&Activation{},
		&Release{},
		&Order{},
		&OrderItem{},
		&User{},
	)
}
