package models

import (
	"time"
)

// KeyStrategy selects how license keys are generated for a product
type KeyStrategy string

const (
	KeyStrategyPattern KeyStrategy = "pattern"
	KeyStrategyPool    KeyStrategy = "pool"
)

// DiscountType represents the type of renewal discount
type DiscountType string

const (
	DiscountTypeFlat    DiscountType = "flat"
	DiscountTypePercent DiscountType = "percent"
)

// Product represents a licensed software product
type Product struct {
	ID    uint    `gorm:"column:id;primaryKey" json:"id"`
	Name  string  `gorm:"column:name;size:200;not null" json:"name"`
	Slug  string  `gorm:"column:slug;size:200;uniqueIndex;not null" json:"slug"`
	Price float64 `gorm:"column:price;type:decimal(15,2);not null" json:"price"`

	// Key generation
	KeyStrategy KeyStrategy `gorm:"column:key_strategy;size:20;default:pattern" json:"key_strategy"`
	KeyPattern  string      `gorm:"column:key_pattern;size:200" json:"key_pattern"`
	KeyPool     string      `gorm:"column:key_pool;type:text" json:"-"` // newline-separated pre-provisioned keys

	// Licensing defaults for new keys. Zero values carry meaning
	// (unlimited, perpetual), so no column defaults here.
	MaxActivations int `gorm:"column:max_activations" json:"max_activations"` // 0 = unlimited
	LicenseDays    int `gorm:"column:license_days" json:"license_days"`       // 0 = perpetual

	// Renewal configuration
	Renewable                 bool         `gorm:"column:renewable" json:"renewable"`
	RenewalPeriodDays         int          `gorm:"column:renewal_period_days" json:"renewal_period_days"`
	RenewalWindowDays         int          `gorm:"column:renewal_window_days" json:"renewal_window_days"`
	RenewalDiscountType       DiscountType `gorm:"column:renewal_discount_type;size:20;default:percent" json:"renewal_discount_type"`
	RenewalDiscountAmount     float64      `gorm:"column:renewal_discount_amount;type:decimal(15,2)" json:"renewal_discount_amount"`
	RenewalDiscountExpiryDays int          `gorm:"column:renewal_discount_expiry_days" json:"renewal_discount_expiry_days"` // 0 = no expiry constraint

	IsActive  bool      `gorm:"column:is_active" json:"is_active"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (Product) TableName() string {
	return "products"
}
