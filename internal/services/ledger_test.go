package services

import (
	"fmt"
	"sync"
	"testing"

	"github.com/keyforge/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActivateCapEnforced(t *testing.T) {
	db := newTestDB(t)
	ledger := NewLedger(db)
	product := seedProduct(t, db)
	key := seedKey(t, db, product) // MaxActivations: 2

	a1, err := ledger.Activate(key, "https://one.example.com", models.TrackStable)
	require.NoError(t, err)
	assert.NotEmpty(t, a1.Token)

	_, err = ledger.Activate(key, "https://two.example.com", models.TrackStable)
	require.NoError(t, err)

	_, err = ledger.Activate(key, "https://three.example.com", models.TrackStable)
	require.ErrorIs(t, err, ErrMaxActivations)
	de, ok := AsDomain(err)
	require.True(t, ok)
	assert.Equal(t, CodeMaxActivations, de.Code)

	n, err := ledger.CountActive(key.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

func TestActivateLocationRequired(t *testing.T) {
	db := newTestDB(t)
	ledger := NewLedger(db)
	key := seedKey(t, db, seedProduct(t, db))

	_, err := ledger.Activate(key, "", models.TrackStable)
	require.ErrorIs(t, err, ErrLocationRequired)
	de, _ := AsDomain(err)
	assert.Equal(t, CodeLocationRequired, de.Code)
}

func TestActivateDuplicateLocation(t *testing.T) {
	db := newTestDB(t)
	ledger := NewLedger(db)
	key := seedKey(t, db, seedProduct(t, db))

	_, err := ledger.Activate(key, "https://one.example.com", models.TrackStable)
	require.NoError(t, err)

	_, err = ledger.Activate(key, "https://one.example.com", models.TrackStable)
	require.ErrorIs(t, err, ErrDuplicateLocation)

	// The rejected attempt must not leak a slot
	var stored models.LicenseKey
	require.NoError(t, db.First(&stored, key.ID).Error)
	assert.Equal(t, 1, stored.ActivationsUsed)
}

func TestActivateUnlimited(t *testing.T) {
	db := newTestDB(t)
	ledger := NewLedger(db)
	product := seedProduct(t, db, func(p *models.Product) { p.MaxActivations = 0 })
	key := seedKey(t, db, product)
	require.Equal(t, 0, key.MaxActivations)

	for i := 0; i < 10; i++ {
		_, err := ledger.Activate(key, fmt.Sprintf("https://site-%d.example.com", i), models.TrackStable)
		require.NoError(t, err)
	}
	assert.Equal(t, -1, key.RemainingActivations())
}

func TestDeactivateFreesSlot(t *testing.T) {
	db := newTestDB(t)
	ledger := NewLedger(db)
	product := seedProduct(t, db, func(p *models.Product) { p.MaxActivations = 1 })
	key := seedKey(t, db, product)

	act, err := ledger.Activate(key, "https://one.example.com", models.TrackStable)
	require.NoError(t, err)

	_, err = ledger.Activate(key, "https://two.example.com", models.TrackStable)
	require.ErrorIs(t, err, ErrMaxActivations)

	require.NoError(t, ledger.Deactivate(act))
	assert.False(t, act.IsActive())
	assert.NotNil(t, act.DeactivatedAt)

	// Slot is free again
	_, err = ledger.Activate(key, "https://two.example.com", models.TrackStable)
	require.NoError(t, err)

	// The deactivated row is kept for history, not deleted
	var total int64
	require.NoError(t, db.Model(&models.Activation{}).Where("key_id = ?", key.ID).Count(&total).Error)
	assert.EqualValues(t, 2, total)
}

func TestDeactivateIdempotent(t *testing.T) {
	db := newTestDB(t)
	ledger := NewLedger(db)
	key := seedKey(t, db, seedProduct(t, db))

	act, err := ledger.Activate(key, "https://one.example.com", models.TrackStable)
	require.NoError(t, err)

	require.NoError(t, ledger.Deactivate(act))
	require.NoError(t, ledger.Deactivate(act))

	var stored models.LicenseKey
	require.NoError(t, db.First(&stored, key.ID).Error)
	assert.Equal(t, 0, stored.ActivationsUsed, "repeated deactivation must not decrement below zero")
}

func TestActivateConcurrentNeverExceedsCap(t *testing.T) {
	db := newTestDB(t)
	ledger := NewLedger(db)
	product := seedProduct(t, db, func(p *models.Product) { p.MaxActivations = 3 })
	key := seedKey(t, db, product)

	const attempts = 10
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			k := *key
			_, errs[i] = ledger.Activate(&k, fmt.Sprintf("https://site-%d.example.com", i), models.TrackStable)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			require.ErrorIs(t, err, ErrMaxActivations)
		}
	}
	assert.Equal(t, 3, succeeded)

	n, err := ledger.CountActive(key.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
}

func TestActivateConcurrentSameLocation(t *testing.T) {
	db := newTestDB(t)
	ledger := NewLedger(db)
	product := seedProduct(t, db, func(p *models.Product) { p.MaxActivations = 0 })
	key := seedKey(t, db, product)

	const attempts = 8
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			k := *key
			_, errs[i] = ledger.Activate(&k, "https://same.example.com", models.TrackStable)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			require.ErrorIs(t, err, ErrDuplicateLocation)
		}
	}
	assert.Equal(t, 1, succeeded, "one location must hold at most one active activation")

	// Losing attempts roll back their slot claim
	var stored models.LicenseKey
	require.NoError(t, db.First(&stored, key.ID).Error)
	assert.Equal(t, 1, stored.ActivationsUsed)

	n, err := ledger.CountActive(key.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestFindForKey(t *testing.T) {
	db := newTestDB(t)
	ledger := NewLedger(db)
	key := seedKey(t, db, seedProduct(t, db))

	act, err := ledger.Activate(key, "https://one.example.com", models.TrackStable)
	require.NoError(t, err)

	_, err = ledger.FindForKey(key, "")
	require.ErrorIs(t, err, ErrActivationIDMissing)
	de, _ := AsDomain(err)
	assert.Equal(t, CodeActivationIDMissing, de.Code)

	_, err = ledger.FindForKey(key, "bogus")
	require.ErrorIs(t, err, ErrInvalidActivation)
	de, _ = AsDomain(err)
	assert.Equal(t, CodeInvalidActivation, de.Code)

	got, err := ledger.FindForKey(key, act.Token)
	require.NoError(t, err)
	assert.Equal(t, act.ID, got.ID)
}

func TestActivateDefaultsTrack(t *testing.T) {
	db := newTestDB(t)
	ledger := NewLedger(db)
	key := seedKey(t, db, seedProduct(t, db))

	act, err := ledger.Activate(key, "https://one.example.com", "")
	require.NoError(t, err)
	assert.Equal(t, models.TrackStable, act.Track)
}
