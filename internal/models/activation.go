package models

import (
	"time"
)

// ActivationStatus represents the state of an activation record
type ActivationStatus string

const (
	ActivationStatusActive      ActivationStatus = "active"
	ActivationStatusDeactivated ActivationStatus = "deactivated"
)

// UpdateTrack is the update channel an activation is subscribed to
type UpdateTrack string

const (
	TrackStable     UpdateTrack = "stable"
	TrackPrerelease UpdateTrack = "prerelease"
)

// Activation records one installation/location consuming a slot of a
// key's activation limit. Rows are never deleted; deactivation flips the
// status and keeps the audit trail.
type Activation struct {
	ID    uint       `gorm:"column:id;primaryKey" json:"id"`
	KeyID uint       `gorm:"column:key_id;not null;index" json:"key_id"`
	Key   LicenseKey `gorm:"foreignKey:KeyID" json:"-"`

	// Token is the public identifier clients present on subsequent calls
	Token string `gorm:"column:token;size:64;uniqueIndex;not null" json:"token"`

	Location string           `gorm:"column:location;size:255;not null;index" json:"location"` // domain or device id
	Status   ActivationStatus `gorm:"column:status;size:20;default:active;index" json:"status"`
	Track    UpdateTrack      `gorm:"column:track;size:20;default:stable" json:"track"`

	ActivatedAt   time.Time  `gorm:"column:activated_at" json:"activated_at"`
	DeactivatedAt *time.Time `gorm:"column:deactivated_at" json:"deactivated_at"`
}

func (Activation) TableName() string {
	return "activations"
}

// IsActive reports whether the activation currently holds a slot
func (a *Activation) IsActive() bool {
	return a.Status == ActivationStatusActive
}
