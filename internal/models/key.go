package models

import (
	"time"
)

// KeyStatus represents the lifecycle state of a license key
type KeyStatus string

const (
	KeyStatusActive   KeyStatus = "active"
	KeyStatusExpired  KeyStatus = "expired"
	KeyStatusDisabled KeyStatus = "disabled"
)

// LicenseKey is a license credential tying a customer to a purchased
// product, with an activation limit and optional expiration.
type LicenseKey struct {
	ID  uint   `gorm:"column:id;primaryKey" json:"id"`
	Key string `gorm:"column:key;size:200;uniqueIndex;not null" json:"key"`

	ProductID uint    `gorm:"column:product_id;not null;index" json:"product_id"`
	Product   Product `gorm:"foreignKey:ProductID" json:"product,omitempty"`

	CustomerID    uint   `gorm:"column:customer_id;index" json:"customer_id"`
	CustomerEmail string `gorm:"column:customer_email;size:255" json:"customer_email"`

	OrderID uint   `gorm:"column:order_id;index" json:"order_id"`
	Order   *Order `gorm:"foreignKey:OrderID" json:"order,omitempty"`

	Status KeyStatus `gorm:"column:status;size:20;default:active;index" json:"status"`

	// MaxActivations bounds simultaneously active activations; 0 = unlimited.
	// ActivationsUsed is the slot counter claimed/released atomically by the
	// activation ledger; the activation rows remain the display source.
	MaxActivations  int `gorm:"column:max_activations" json:"max_activations"`
	ActivationsUsed int `gorm:"column:activations_used" json:"activations_used"`

	ExpiresAt *time.Time `gorm:"column:expires_at;index" json:"expires_at"` // nil = perpetual

	// ReminderSentAt dedupes renewal reminder dispatch
	ReminderSentAt *time.Time `gorm:"column:reminder_sent_at" json:"reminder_sent_at"`

	RenewedFromID *uint       `gorm:"column:renewed_from_id" json:"renewed_from_id"`
	RenewedFrom   *LicenseKey `gorm:"foreignKey:RenewedFromID" json:"-"`
	Superseded    bool        `gorm:"column:superseded;default:false" json:"superseded"`

	Activations []Activation `gorm:"foreignKey:KeyID" json:"activations,omitempty"`

	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (LicenseKey) TableName() string {
	return "license_keys"
}

// IsPerpetual reports whether the key never expires
func (k *LicenseKey) IsPerpetual() bool {
	return k.ExpiresAt == nil
}

// IsExpired reports whether the key's expiration has passed
func (k *LicenseKey) IsExpired() bool {
	return k.ExpiresAt != nil && k.ExpiresAt.Before(time.Now())
}

// IsUsable reports whether the key is active and not past expiration
func (k *LicenseKey) IsUsable() bool {
	return k.Status == KeyStatusActive && !k.IsExpired()
}

// Unlimited reports whether the key has no activation cap
func (k *LicenseKey) Unlimited() bool {
	return k.MaxActivations == 0
}

// RemainingActivations returns how many slots are left, or -1 for unlimited
func (k *LicenseKey) RemainingActivations() int {
	if k.Unlimited() {
		return -1
	}
	remaining := k.MaxActivations - k.ActivationsUsed
	if remaining < 0 {
		return 0
	}
	return remaining
}
