package services

import (
	"fmt"

	"github.com/keyforge/backend/internal/models"
	"github.com/keyforge/backend/internal/version"
	"gorm.io/gorm"
)

// Catalog resolves which release a given activation should be served.
// Reads run without locking; a newly published release is visible once
// its publish transaction commits.
type Catalog struct {
	db *gorm.DB
}

func NewCatalog(db *gorm.DB) *Catalog {
	return &Catalog{db: db}
}

// LatestFor returns the highest-version distributable release of the
// product for the track, or nil when no release qualifies. Prerelease
// type releases are served only to the prerelease track.
func (c *Catalog) LatestFor(productID uint, track models.UpdateTrack) (*models.Release, error) {
	q := c.db.Where("product_id = ? AND status = ? AND published_at IS NOT NULL",
		productID, models.ReleaseStatusActive)
	if track != models.TrackPrerelease {
		q = q.Where("type <> ?", models.ReleaseTypePrerelease)
	}

	var releases []models.Release
	if err := q.Find(&releases).Error; err != nil {
		return nil, fmt.Errorf("load releases: %w", err)
	}
	if len(releases) == 0 {
		return nil, nil
	}

	best := 0
	for i := 1; i < len(releases); i++ {
		if version.Compare(releases[i].Version, releases[best].Version) > 0 {
			best = i
		}
	}
	return &releases[best], nil
}

// LatestForActivation resolves the latest release of the key's product
// on the activation's update track.
func (c *Catalog) LatestForActivation(key *models.LicenseKey, act *models.Activation) (*models.Release, error) {
	return c.LatestFor(key.ProductID, act.Track)
}

// Changelog returns the changelog of the product's latest stable
// release, empty when nothing is published.
func (c *Catalog) Changelog(productID uint) (string, error) {
	rel, err := c.LatestFor(productID, models.TrackStable)
	if err != nil {
		return "", err
	}
	if rel == nil {
		return "", nil
	}
	return rel.Changelog, nil
}
