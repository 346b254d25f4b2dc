package license

import (
	"context"
	"fmt"

	"github.com/makkenzo/license-manager/internal/ierr"
)

var ErrNotFound = fmt.Errorf("license %w", ierr.ErrNotFound)

// UpdateFunc mutates a license in place. Returning an error aborts the
// update and leaves the stored record untouched.
type UpdateFunc func(lic *License) error

// Repository is the license store. Implementations must be safe for
// concurrent use and must hand out copies, never their own records.
type Repository interface {
	GetAll(ctx context.Context) ([]*License, error)
	Get(ctx context.Context, key string) (*License, error)
	Upsert(ctx context.Context, lic *License) error
	Update(ctx context.Context, key string, fn UpdateFunc) (*License, error)
}
