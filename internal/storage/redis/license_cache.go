package redis

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/makkenzo/license-manager/internal/domain/license"
	"github.com/makkenzo/license-manager/internal/metrics"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const licenseKeyPrefix = "license:"

// CachedLicenseRepository serves Get from Redis and falls back to the wrapped
// repository on a miss. Writes go to the wrapped repository first and then
// drop the cached entry. Concurrent misses for one key share a single load.
//
// Every write bumps a per-key generation under mu before dropping the entry.
// A miss only fills the cache if the generation it started with is still
// current, so a load that raced a write never resurrects the old record.
type CachedLicenseRepository struct {
	next   license.Repository
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
	logger *zap.Logger

	mu          sync.Mutex
	generations map[string]uint64
}

func NewCachedLicenseRepository(next license.Repository, client *redis.Client, ttl time.Duration, logger *zap.Logger) *CachedLicenseRepository {
	return &CachedLicenseRepository{
		next:   next,
		client: client,
		ttl:    ttl,
		logger: logger.Named("LicenseCache"),

		generations: make(map[string]uint64),
	}
}

var _ license.Repository = (*CachedLicenseRepository)(nil)

func cacheKey(key string) string {
	return licenseKeyPrefix + key
}

func (r *CachedLicenseRepository) GetAll(ctx context.Context) ([]*license.License, error) {
	return r.next.GetAll(ctx)
}

func (r *CachedLicenseRepository) Get(ctx context.Context, key string) (*license.License, error) {
	data, err := r.client.Get(ctx, cacheKey(key)).Bytes()
	switch {
	case err == nil:
		var lic license.License
		if jsonErr := json.Unmarshal(data, &lic); jsonErr == nil {
			metrics.CacheRequestsTotal.WithLabelValues("hit").Inc()
			return &lic, nil
		}
		r.logger.Warn("Dropping undecodable cache entry", zap.String("license_key", key))
		r.invalidate(ctx, key)
	case !errors.Is(err, redis.Nil):
		r.logger.Warn("License cache read failed", zap.String("license_key", key), zap.Error(err))
	}

	metrics.CacheRequestsTotal.WithLabelValues("miss").Inc()

	v, err, _ := r.group.Do(key, func() (any, error) {
		gen := r.generation(key)
		lic, err := r.next.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		r.storeIfCurrent(ctx, lic, gen)
		return lic, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*license.License).Clone(), nil
}

func (r *CachedLicenseRepository) Upsert(ctx context.Context, lic *license.License) error {
	if err := r.next.Upsert(ctx, lic); err != nil {
		return err
	}
	r.bumpAndInvalidate(ctx, lic.Key)
	return nil
}

func (r *CachedLicenseRepository) Update(ctx context.Context, key string, fn license.UpdateFunc) (*license.License, error) {
	lic, err := r.next.Update(ctx, key, fn)
	if err != nil {
		return nil, err
	}
	r.bumpAndInvalidate(ctx, key)
	return lic, nil
}

func (r *CachedLicenseRepository) generation(key string) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.generations[key]
}

func (r *CachedLicenseRepository) bumpAndInvalidate(ctx context.Context, key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.generations[key]++
	r.invalidate(ctx, key)
}

func (r *CachedLicenseRepository) storeIfCurrent(ctx context.Context, lic *license.License, gen uint64) {
	data, err := json.Marshal(lic)
	if err != nil {
		r.logger.Warn("Failed to encode license for cache", zap.String("license_key", lic.Key), zap.Error(err))
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.generations[lic.Key] != gen {
		r.logger.Debug("Skipping cache fill for a license written during the load", zap.String("license_key", lic.Key))
		return
	}
	if err := r.client.Set(ctx, cacheKey(lic.Key), data, r.ttl).Err(); err != nil {
		r.logger.Warn("License cache write failed", zap.String("license_key", lic.Key), zap.Error(err))
	}
}

func (r *CachedLicenseRepository) invalidate(ctx context.Context, key string) {
	if err := r.client.Del(ctx, cacheKey(key)).Err(); err != nil {
		r.logger.Warn("License cache invalidation failed", zap.String("license_key", key), zap.Error(err))
	}
}
