package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/makkenzo/license-manager/internal/domain/license"
	"github.com/makkenzo/license-manager/internal/storage/memstorage"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type countingRepository struct {
	license.Repository
	gets int
}

func (r *countingRepository) Get(ctx context.Context, key string) (*license.License, error) {
	r.gets++
	return r.Repository.Get(ctx, key)
}

// pausingRepository holds its first Get between reading the record and
// returning it, so a write can land in that window.
type pausingRepository struct {
	license.Repository
	once    sync.Once
	loaded  chan struct{}
	release chan struct{}
}

func (r *pausingRepository) Get(ctx context.Context, key string) (*license.License, error) {
	lic, err := r.Repository.Get(ctx, key)
	r.once.Do(func() {
		close(r.loaded)
		<-r.release
	})
	return lic, err
}

func newCache(t *testing.T) (*CachedLicenseRepository, *countingRepository, *miniredis.Miniredis) {
	t.Helper()
	inner := &countingRepository{Repository: memstorage.NewLicenseRepository()}
	cache, mr := newCacheOver(t, inner)
	return cache, inner, mr
}

func newCacheOver(t *testing.T, inner license.Repository) (*CachedLicenseRepository, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	issued := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, inner.Upsert(context.Background(), &license.License{
		Key:             "OPT-PRO-001",
		ProductName:     "OptimumTire Pro",
		Tier:            license.TierProfessional,
		Status:          license.StatusActive,
		IssuedAt:        issued,
		ExpiresAt:       issued.AddDate(1, 0, 0),
		ActivationLimit: 3,
		Activations: []license.Activation{
			{MachineID: "ACME-RIG-01", ActivatedBy: "jane.doe", ActivatedAt: issued},
		},
	}))

	return NewCachedLicenseRepository(inner, client, time.Minute, zap.NewNop()), mr
}

func TestCacheServesRepeatedReads(t *testing.T) {
	cache, inner, mr := newCache(t)
	ctx := context.Background()

	first, err := cache.Get(ctx, "OPT-PRO-001")
	require.NoError(t, err)
	assert.True(t, mr.Exists("license:OPT-PRO-001"))
	assert.Equal(t, time.Minute, mr.TTL("license:OPT-PRO-001"))

	second, err := cache.Get(ctx, "OPT-PRO-001")
	require.NoError(t, err)

	assert.Equal(t, 1, inner.gets)
	assert.Equal(t, first.Key, second.Key)
	assert.True(t, first.ExpiresAt.Equal(second.ExpiresAt))
	require.Len(t, second.Activations, 1)
	assert.Equal(t, "ACME-RIG-01", second.Activations[0].MachineID)
}

func TestCacheMissPropagatesNotFound(t *testing.T) {
	cache, _, mr := newCache(t)

	_, err := cache.Get(context.Background(), "NO-SUCH-KEY")
	assert.ErrorIs(t, err, license.ErrNotFound)
	assert.False(t, mr.Exists("license:NO-SUCH-KEY"))
}

func TestUpdateInvalidatesEntry(t *testing.T) {
	cache, inner, mr := newCache(t)
	ctx := context.Background()

	_, err := cache.Get(ctx, "OPT-PRO-001")
	require.NoError(t, err)

	_, err = cache.Update(ctx, "OPT-PRO-001", func(l *license.License) error {
		l.Activations = append(l.Activations, license.Activation{MachineID: "ACME-RIG-02"})
		return nil
	})
	require.NoError(t, err)
	assert.False(t, mr.Exists("license:OPT-PRO-001"))

	lic, err := cache.Get(ctx, "OPT-PRO-001")
	require.NoError(t, err)
	assert.Len(t, lic.Activations, 2)
	assert.Equal(t, 2, inner.gets)
}

func TestUpsertInvalidatesEntry(t *testing.T) {
	cache, _, mr := newCache(t)
	ctx := context.Background()

	_, err := cache.Get(ctx, "OPT-PRO-001")
	require.NoError(t, err)

	require.NoError(t, cache.Upsert(ctx, &license.License{Key: "OPT-PRO-001", Notes: "replaced"}))
	assert.False(t, mr.Exists("license:OPT-PRO-001"))

	lic, err := cache.Get(ctx, "OPT-PRO-001")
	require.NoError(t, err)
	assert.Equal(t, "replaced", lic.Notes)
}

func TestCorruptEntryFallsBackToRepository(t *testing.T) {
	cache, inner, mr := newCache(t)
	require.NoError(t, mr.Set("license:OPT-PRO-001", "{not json"))

	lic, err := cache.Get(context.Background(), "OPT-PRO-001")
	require.NoError(t, err)
	assert.Equal(t, "OPT-PRO-001", lic.Key)
	assert.Equal(t, 1, inner.gets)
}

func TestRedisOutageFallsBackToRepository(t *testing.T) {
	cache, inner, mr := newCache(t)
	mr.Close()

	lic, err := cache.Get(context.Background(), "OPT-PRO-001")
	require.NoError(t, err)
	assert.Equal(t, "OPT-PRO-001", lic.Key)
	assert.Equal(t, 1, inner.gets)
}

func TestGetAllPassesThrough(t *testing.T) {
	cache, _, _ := newCache(t)

	all, err := cache.GetAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestMissReturnsCallerOwnedCopy(t *testing.T) {
	cache, _, mr := newCache(t)
	ctx := context.Background()

	first, err := cache.Get(ctx, "OPT-PRO-001")
	require.NoError(t, err)
	first.Activations[0].MachineID = "tampered"

	mr.FlushAll()
	second, err := cache.Get(ctx, "OPT-PRO-001")
	require.NoError(t, err)
	assert.Equal(t, "ACME-RIG-01", second.Activations[0].MachineID)
}

func TestMissRacingUpdateDoesNotCacheOldRecord(t *testing.T) {
	inner := &pausingRepository{
		Repository: memstorage.NewLicenseRepository(),
		loaded:     make(chan struct{}),
		release:    make(chan struct{}),
	}
	cache, mr := newCacheOver(t, inner)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := cache.Get(ctx, "OPT-PRO-001")
		done <- err
	}()

	<-inner.loaded
	_, err := cache.Update(ctx, "OPT-PRO-001", func(l *license.License) error {
		l.Activations = append(l.Activations, license.Activation{MachineID: "ACME-RIG-02"})
		return nil
	})
	require.NoError(t, err)
	close(inner.release)
	require.NoError(t, <-done)

	assert.False(t, mr.Exists("license:OPT-PRO-001"))

	lic, err := cache.Get(ctx, "OPT-PRO-001")
	require.NoError(t, err)
	assert.Len(t, lic.Activations, 2)
}
