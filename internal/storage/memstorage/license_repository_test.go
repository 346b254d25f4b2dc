package memstorage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/makkenzo/license-manager/internal/domain/license"
	"github.com/makkenzo/license-manager/internal/ierr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleLicense(key string) *license.License {
	issued := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	hb := issued.Add(time.Hour)
	return &license.License{
		Key:             key,
		ProductName:     "OptimumLap",
		OwnerName:       "Velocity Labs",
		Tier:            license.TierStandard,
		Status:          license.StatusActive,
		IssuedAt:        issued,
		ExpiresAt:       issued.AddDate(1, 0, 0),
		ActivationLimit: 2,
		Activations: []license.Activation{
			{MachineID: "rig-1", ActivatedBy: "ops", ActivatedAt: issued, LastHeartbeat: &hb},
		},
		Notes: "sample",
	}
}

func TestUpsertThenGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := NewLicenseRepository()
	lic := sampleLicense("K-1")

	require.NoError(t, repo.Upsert(ctx, lic))

	got, err := repo.Get(ctx, "K-1")
	require.NoError(t, err)
	assert.Equal(t, lic, got)
}

func TestGetMissingKey(t *testing.T) {
	repo := NewLicenseRepository()

	got, err := repo.Get(context.Background(), "NOPE")
	assert.Nil(t, got)
	assert.ErrorIs(t, err, license.ErrNotFound)
	assert.ErrorIs(t, err, ierr.ErrNotFound)
}

func TestUpsertReplacesWholeRecord(t *testing.T) {
	ctx := context.Background()
	repo := NewLicenseRepository()
	require.NoError(t, repo.Upsert(ctx, sampleLicense("K-1")))

	replacement := &license.License{Key: "K-1", ProductName: "Other"}
	require.NoError(t, repo.Upsert(ctx, replacement))

	got, err := repo.Get(ctx, "K-1")
	require.NoError(t, err)
	assert.Equal(t, "Other", got.ProductName)
	assert.Empty(t, got.Activations)
	assert.Empty(t, got.Notes)
}

func TestReturnedCopiesAreIsolated(t *testing.T) {
	ctx := context.Background()
	repo := NewLicenseRepository()
	lic := sampleLicense("K-1")
	require.NoError(t, repo.Upsert(ctx, lic))

	lic.Activations[0].MachineID = "mutated-after-upsert"

	got, err := repo.Get(ctx, "K-1")
	require.NoError(t, err)
	got.Activations = nil

	again, err := repo.Get(ctx, "K-1")
	require.NoError(t, err)
	require.Len(t, again.Activations, 1)
	assert.Equal(t, "rig-1", again.Activations[0].MachineID)
}

func TestGetAllKeepsInsertionOrder(t *testing.T) {
	ctx := context.Background()
	repo := NewLicenseRepository()
	for _, key := range []string{"C", "A", "B"} {
		require.NoError(t, repo.Upsert(ctx, sampleLicense(key)))
	}
	require.NoError(t, repo.Upsert(ctx, sampleLicense("A")))

	all, err := repo.GetAll(ctx)
	require.NoError(t, err)
	keys := make([]string, len(all))
	for i, l := range all {
		keys[i] = l.Key
	}
	assert.Equal(t, []string{"C", "A", "B"}, keys)
}

func TestUpdateAppliesTransform(t *testing.T) {
	ctx := context.Background()
	repo := NewLicenseRepository()
	require.NoError(t, repo.Upsert(ctx, sampleLicense("K-1")))

	updated, err := repo.Update(ctx, "K-1", func(l *license.License) error {
		l.Notes = "touched"
		l.Key = "SOMETHING-ELSE"
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "touched", updated.Notes)
	assert.Equal(t, "K-1", updated.Key)

	got, err := repo.Get(ctx, "K-1")
	require.NoError(t, err)
	assert.Equal(t, "touched", got.Notes)

	_, err = repo.Get(ctx, "SOMETHING-ELSE")
	assert.ErrorIs(t, err, license.ErrNotFound)
}

func TestUpdateAbortLeavesStateUnchanged(t *testing.T) {
	ctx := context.Background()
	repo := NewLicenseRepository()
	require.NoError(t, repo.Upsert(ctx, sampleLicense("K-1")))

	boom := errors.New("boom")
	_, err := repo.Update(ctx, "K-1", func(l *license.License) error {
		l.Activations = nil
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := repo.Get(ctx, "K-1")
	require.NoError(t, err)
	assert.Len(t, got.Activations, 1)
}

func TestUpdateMissingKey(t *testing.T) {
	repo := NewLicenseRepository()
	called := false

	_, err := repo.Update(context.Background(), "NOPE", func(l *license.License) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, license.ErrNotFound)
	assert.False(t, called)
}

func TestConcurrentUpdatesDoNotLoseWrites(t *testing.T) {
	ctx := context.Background()
	repo := NewLicenseRepository()
	lic := sampleLicense("K-1")
	lic.Activations = nil
	require.NoError(t, repo.Upsert(ctx, lic))

	const workers = 50
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			_, err := repo.Update(ctx, "K-1", func(l *license.License) error {
				l.ActivationLimit++
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := repo.Get(ctx, "K-1")
	require.NoError(t, err)
	assert.Equal(t, 2+workers, got.ActivationLimit)
}
