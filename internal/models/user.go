package models

import (
	"encoding/json"
	"time"
)

// UserType represents the type of admin user
type UserType int

const (
	UserTypeSupport UserType = 1
	UserTypeAdmin   UserType = 2
)

// MarshalJSON converts UserType to string for JSON
func (ut UserType) MarshalJSON() ([]byte, error) {
	var s string
	switch ut {
	case UserTypeSupport:
		s = "support"
	case UserTypeAdmin:
		s = "admin"
	default:
		s = "unknown"
	}
	return json.Marshal(s)
}

// UnmarshalJSON converts string back to UserType for JSON parsing
func (ut *UserType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		// Try as integer for backward compatibility
		var i int
		if err := json.Unmarshal(data, &i); err != nil {
			return err
		}
		*ut = UserType(i)
		return nil
	}
	switch s {
	case "support":
		*ut = UserTypeSupport
	case "admin":
		*ut = UserTypeAdmin
	default:
		*ut = UserTypeSupport
	}
	return nil
}

// User is a staff account for the admin API
type User struct {
	ID       uint     `gorm:"column:id;primaryKey" json:"id"`
	Username string   `gorm:"column:username;size:100;uniqueIndex;not null" json:"username"`
	Password string   `gorm:"column:password;size:255;not null" json:"-"`
	Email    string   `gorm:"column:email;size:255" json:"email"`
	FullName string   `gorm:"column:full_name;size:255" json:"full_name"`
	UserType UserType `gorm:"column:user_type;default:1" json:"user_type"`

	TwoFactorSecret  string `gorm:"column:two_factor_secret;size:64" json:"-"`
	TwoFactorEnabled bool   `gorm:"column:two_factor_enabled;default:false" json:"two_factor_enabled"`

	IsActive    bool       `gorm:"column:is_active;default:true" json:"is_active"`
	LastLoginAt *time.Time `gorm:"column:last_login_at" json:"last_login_at"`

	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}
