package models

import (
	"time"
)

// ReleaseType categorizes a release
type ReleaseType string

const (
	ReleaseTypeMajor      ReleaseType = "major"
	ReleaseTypeMinor      ReleaseType = "minor"
	ReleaseTypeSecurity   ReleaseType = "security"
	ReleaseTypePrerelease ReleaseType = "prerelease"
)

// ReleaseStatus represents the distribution state of a release
type ReleaseStatus string

const (
	ReleaseStatusDraft    ReleaseStatus = "draft"
	ReleaseStatusActive   ReleaseStatus = "active"
	ReleaseStatusPaused   ReleaseStatus = "paused"
	ReleaseStatusArchived ReleaseStatus = "archived"
)

// Release is a versioned, downloadable build of a product. It is
// eligible for distribution only once published (published_at set) and
// status = active.
type Release struct {
	ID        uint    `gorm:"column:id;primaryKey" json:"id"`
	ProductID uint    `gorm:"column:product_id;not null;index;uniqueIndex:uniq_product_version" json:"product_id"`
	Product   Product `gorm:"foreignKey:ProductID" json:"-"`

	Version string      `gorm:"column:version;size:50;not null;uniqueIndex:uniq_product_version" json:"version"`
	Type    ReleaseType `gorm:"column:type;size:20;default:minor" json:"type"`

	Changelog   string `gorm:"column:changelog;type:text" json:"changelog"`
	ArtifactURL string `gorm:"column:artifact_url;size:500" json:"artifact_url"`

	Status      ReleaseStatus `gorm:"column:status;size:20;default:draft;index" json:"status"`
	PublishedAt *time.Time    `gorm:"column:published_at" json:"published_at"`

	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (Release) TableName() string {
	return "releases"
}

// IsDistributable reports whether the release may be served to clients
func (r *Release) IsDistributable() bool {
	return r.Status == ReleaseStatusActive && r.PublishedAt != nil
}
