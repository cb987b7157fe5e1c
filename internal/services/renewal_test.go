package services

import (
	"testing"
	"time"

	"github.com/keyforge/backend/internal/keygen"
	"github.com/keyforge/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newRenewalEngine(db *gorm.DB) *RenewalEngine {
	return NewRenewalEngine(db, keygen.NewGenerator(db))
}

func TestIsEligible(t *testing.T) {
	db := newTestDB(t)
	engine := newRenewalEngine(db)
	product := seedProduct(t, db) // window 30 days

	// Expiry well outside the window
	early := seedKey(t, db, product, func(k *models.LicenseKey) {
		k.ExpiresAt = daysFromNow(90)
	})
	assert.False(t, engine.IsEligible(early, product))

	// Inside the window
	inWindow := seedKey(t, db, product, func(k *models.LicenseKey) {
		k.ExpiresAt = daysFromNow(10)
	})
	assert.True(t, engine.IsEligible(inWindow, product))

	// Already expired keys can still renew
	expired := seedKey(t, db, product, func(k *models.LicenseKey) {
		k.ExpiresAt = daysFromNow(-10)
		k.Status = models.KeyStatusExpired
	})
	assert.True(t, engine.IsEligible(expired, product))

	// Perpetual keys never renew
	perpetual := seedKey(t, db, product, func(k *models.LicenseKey) {
		k.ExpiresAt = nil
	})
	assert.False(t, engine.IsEligible(perpetual, product))

	// Disabled and superseded keys are out
	disabled := seedKey(t, db, product, func(k *models.LicenseKey) {
		k.ExpiresAt = daysFromNow(10)
		k.Status = models.KeyStatusDisabled
	})
	assert.False(t, engine.IsEligible(disabled, product))

	superseded := seedKey(t, db, product, func(k *models.LicenseKey) {
		k.ExpiresAt = daysFromNow(10)
		k.Superseded = true
	})
	assert.False(t, engine.IsEligible(superseded, product))

	// Product opt-out wins
	fixed := seedProduct(t, db, func(p *models.Product) { p.Renewable = false })
	noRenew := seedKey(t, db, fixed, func(k *models.LicenseKey) {
		k.ExpiresAt = daysFromNow(10)
	})
	assert.False(t, engine.IsEligible(noRenew, fixed))
}

func TestRenewExtendsFromExpiry(t *testing.T) {
	db := newTestDB(t)
	engine := newRenewalEngine(db)
	product := seedProduct(t, db) // period 365 days

	oldExpiry := *daysFromNow(10)
	key := seedKey(t, db, product, func(k *models.LicenseKey) {
		k.ExpiresAt = &oldExpiry
	})

	successor, err := engine.Renew(key, product)
	require.NoError(t, err)
	require.NotNil(t, successor)

	// Remaining time carries over: new expiry = old expiry + period
	want := oldExpiry.AddDate(0, 0, product.RenewalPeriodDays)
	require.NotNil(t, successor.ExpiresAt)
	assert.WithinDuration(t, want, *successor.ExpiresAt, time.Second)

	assert.NotEqual(t, key.Key, successor.Key)
	require.NotNil(t, successor.RenewedFromID)
	assert.Equal(t, key.ID, *successor.RenewedFromID)
	assert.Equal(t, key.CustomerEmail, successor.CustomerEmail)
	assert.Equal(t, key.MaxActivations, successor.MaxActivations)

	// Original is only marked superseded; its expiry is untouched
	var original models.LicenseKey
	require.NoError(t, db.First(&original, key.ID).Error)
	assert.True(t, original.Superseded)
	assert.Equal(t, models.KeyStatusActive, original.Status)
	assert.WithinDuration(t, oldExpiry, *original.ExpiresAt, time.Second)

	// A superseded key cannot renew again
	_, err = engine.Renew(&original, product)
	assert.ErrorIs(t, err, ErrNotRenewable)
}

func TestRenewRetriesOnCollision(t *testing.T) {
	db := newTestDB(t)
	engine := newRenewalEngine(db)
	// A one-character digit pattern collides fast; ten slots total
	product := seedProduct(t, db, func(p *models.Product) { p.KeyPattern = "9" })

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		key := seedKey(t, db, product, func(k *models.LicenseKey) {
			k.ExpiresAt = daysFromNow(10)
		})
		successor, err := engine.Renew(key, product)
		require.NoError(t, err)
		assert.False(t, seen[successor.Key], "renewal keys must be unique")
		seen[successor.Key] = true
	}
}

func TestRenewLapsedKeyExtendsFromNow(t *testing.T) {
	db := newTestDB(t)
	engine := newRenewalEngine(db)
	product := seedProduct(t, db)

	key := seedKey(t, db, product, func(k *models.LicenseKey) {
		k.ExpiresAt = daysFromNow(-100)
		k.Status = models.KeyStatusExpired
	})

	successor, err := engine.Renew(key, product)
	require.NoError(t, err)

	// Lapsed time is not billed against the new term
	want := time.Now().UTC().AddDate(0, 0, product.RenewalPeriodDays)
	assert.WithinDuration(t, want, *successor.ExpiresAt, time.Minute)
	assert.Equal(t, models.KeyStatusActive, successor.Status)
}

func TestRenewIneligible(t *testing.T) {
	db := newTestDB(t)
	engine := newRenewalEngine(db)
	product := seedProduct(t, db)

	key := seedKey(t, db, product, func(k *models.LicenseKey) {
		k.ExpiresAt = daysFromNow(300)
	})

	_, err := engine.Renew(key, product)
	assert.ErrorIs(t, err, ErrNotRenewable)
}

func TestDiscountApply(t *testing.T) {
	percent := Discount{Type: models.DiscountTypePercent, Amount: 25}
	assert.InDelta(t, 75, percent.Apply(100), 0.001)

	flat := Discount{Type: models.DiscountTypeFlat, Amount: 30}
	assert.InDelta(t, 70, flat.Apply(100), 0.001)

	// Floored at zero, never negative
	bigFlat := Discount{Type: models.DiscountTypeFlat, Amount: 150}
	assert.Zero(t, bigFlat.Apply(100))

	bigPercent := Discount{Type: models.DiscountTypePercent, Amount: 150}
	assert.Zero(t, bigPercent.Apply(10))
}

func TestDiscountWindowBoundary(t *testing.T) {
	db := newTestDB(t)
	product := seedProduct(t, db)
	now := time.Now().UTC()

	day29 := seedKey(t, db, product, func(k *models.LicenseKey) {
		k.ExpiresAt = daysFromNow(-29)
	})
	day31 := seedKey(t, db, product, func(k *models.LicenseKey) {
		k.ExpiresAt = daysFromNow(-31)
	})

	for _, typ := range []models.DiscountType{models.DiscountTypeFlat, models.DiscountTypePercent} {
		d := Discount{Type: typ, Amount: 10, ExpiryWindowDays: 30}
		assert.True(t, d.ValidAt(day29, now), "%s discount valid 29 days after expiry", typ)
		assert.False(t, d.ValidAt(day31, now), "%s discount lapsed 31 days after expiry", typ)
	}
}

func TestDiscountValidAt(t *testing.T) {
	db := newTestDB(t)
	product := seedProduct(t, db)

	now := time.Now().UTC()

	d := Discount{Type: models.DiscountTypePercent, Amount: 20, ExpiryWindowDays: 7}

	// Not yet expired: window has not started running
	live := seedKey(t, db, product, func(k *models.LicenseKey) {
		k.ExpiresAt = daysFromNow(5)
	})
	assert.True(t, d.ValidAt(live, now))

	// Expired 3 days ago, inside the 7 day window
	fresh := seedKey(t, db, product, func(k *models.LicenseKey) {
		k.ExpiresAt = daysFromNow(-3)
	})
	assert.True(t, d.ValidAt(fresh, now))

	// Expired 10 days ago, window lapsed
	stale := seedKey(t, db, product, func(k *models.LicenseKey) {
		k.ExpiresAt = daysFromNow(-10)
	})
	assert.False(t, d.ValidAt(stale, now))

	// Window 0 means the discount never lapses
	open := Discount{Type: models.DiscountTypePercent, Amount: 20}
	assert.True(t, open.ValidAt(stale, now))

	// No discount configured
	none := Discount{Type: models.DiscountTypePercent, Amount: 0}
	assert.False(t, none.ValidAt(fresh, now))
}

func TestDiscountedPrice(t *testing.T) {
	db := newTestDB(t)
	engine := newRenewalEngine(db)

	product := seedProduct(t, db, func(p *models.Product) {
		p.Price = 200
		p.RenewalDiscountType = models.DiscountTypePercent
		p.RenewalDiscountAmount = 50
		p.RenewalDiscountExpiryDays = 7
	})

	inside := seedKey(t, db, product, func(k *models.LicenseKey) {
		k.ExpiresAt = daysFromNow(-3)
	})
	assert.InDelta(t, 100, engine.DiscountedPrice(inside, product), 0.001)

	// Lapsed discount falls back to full price
	outside := seedKey(t, db, product, func(k *models.LicenseKey) {
		k.ExpiresAt = daysFromNow(-30)
	})
	assert.InDelta(t, 200, engine.DiscountedPrice(outside, product), 0.001)
}

func TestUpgradeCredit(t *testing.T) {
	db := newTestDB(t)
	engine := newRenewalEngine(db)
	product := seedProduct(t, db)

	order := models.Order{
		Reference: "ord-upgrade-credit",
		Total:     79,
		Status:    models.OrderStatusCompleted,
		Items: []models.OrderItem{{
			ProductID:   product.ID,
			ProductName: product.Name,
			Price:       79,
			Quantity:    1,
		}},
	}
	require.NoError(t, db.Create(&order).Error)

	key := seedKey(t, db, product, func(k *models.LicenseKey) {
		k.OrderID = order.ID
	})

	credit, err := engine.UpgradeCredit(key)
	require.NoError(t, err)
	assert.InDelta(t, 79, credit, 0.001)

	// Product absent from the order's line items: zero credit, no error
	other := seedProduct(t, db)
	orphan := seedKey(t, db, other, func(k *models.LicenseKey) {
		k.OrderID = order.ID
	})
	credit, err = engine.UpgradeCredit(orphan)
	require.NoError(t, err)
	assert.Zero(t, credit)

	// No originating order at all
	manual := seedKey(t, db, product)
	credit, err = engine.UpgradeCredit(manual)
	require.NoError(t, err)
	assert.Zero(t, credit)
}
