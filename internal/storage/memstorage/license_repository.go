package memstorage

import (
	"context"
	"sync"

	"github.com/makkenzo/license-manager/internal/domain/license"
)

// LicenseRepository keeps licenses in process memory. GetAll returns them
// in insertion order.
type LicenseRepository struct {
	mu       sync.RWMutex
	licenses map[string]*license.License
	order    []string
}

func NewLicenseRepository() *LicenseRepository {
	return &LicenseRepository{
		licenses: make(map[string]*license.License),
	}
}

var _ license.Repository = (*LicenseRepository)(nil)

func (r *LicenseRepository) GetAll(ctx context.Context) ([]*license.License, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*license.License, 0, len(r.order))
	for _, key := range r.order {
		result = append(result, r.licenses[key].Clone())
	}
	return result, nil
}

func (r *LicenseRepository) Get(ctx context.Context, key string) (*license.License, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lic, ok := r.licenses[key]
	if !ok {
		return nil, license.ErrNotFound
	}
	return lic.Clone(), nil
}

func (r *LicenseRepository) Upsert(ctx context.Context, lic *license.License) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.put(lic.Clone())
	return nil
}

func (r *LicenseRepository) Update(ctx context.Context, key string, fn license.UpdateFunc) (*license.License, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.licenses[key]
	if !ok {
		return nil, license.ErrNotFound
	}

	working := current.Clone()
	if err := fn(working); err != nil {
		return nil, err
	}
	// the key is the identity; a transform cannot move the record
	working.Key = key

	r.put(working)
	return working.Clone(), nil
}

func (r *LicenseRepository) put(lic *license.License) {
	if _, exists := r.licenses[lic.Key]; !exists {
		r.order = append(r.order, lic.Key)
	}
	r.licenses[lic.Key] = lic
}
