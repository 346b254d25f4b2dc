package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/makkenzo/license-manager/internal/domain/license"
	"github.com/makkenzo/license-manager/internal/ierr"
	"go.uber.org/zap"
)

const schema = `
CREATE TABLE IF NOT EXISTS licenses (
    license_key      TEXT PRIMARY KEY,
    product_name     TEXT        NOT NULL DEFAULT '',
    owner_name       TEXT        NOT NULL DEFAULT '',
    tier             TEXT        NOT NULL,
    status           TEXT        NOT NULL,
    issued_at        TIMESTAMPTZ NOT NULL,
    expires_at       TIMESTAMPTZ NOT NULL,
    activation_limit INTEGER     NOT NULL DEFAULT 0 CHECK (activation_limit >= 0),
    activations      JSONB       NOT NULL DEFAULT '[]'::jsonb,
    notes            TEXT        NOT NULL DEFAULT '',
    created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const selectLicense = `
    SELECT
        license_key, product_name, owner_name, tier, status,
        issued_at, expires_at, activation_limit, activations, notes
    FROM licenses
`

type LicenseRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewLicenseRepository(db *pgxpool.Pool, logger *zap.Logger) *LicenseRepository {
	return &LicenseRepository{
		db:     db,
		logger: logger.Named("LicenseRepository"),
	}
}

var _ license.Repository = (*LicenseRepository)(nil)

func (r *LicenseRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schema); err != nil {
		r.logger.Error("Failed to create licenses table", zap.Error(err))
		return fmt.Errorf("database error creating schema: %w", err)
	}
	return nil
}

func (r *LicenseRepository) GetAll(ctx context.Context) ([]*license.License, error) {
	rows, err := r.db.Query(ctx, selectLicense+` ORDER BY created_at, license_key`)
	if err != nil {
		r.logger.Error("Failed to query list of licenses", zap.Error(err))
		return nil, fmt.Errorf("database error on list licenses: %w", err)
	}
	defer rows.Close()

	licenses := make([]*license.License, 0)
	for rows.Next() {
		lic, err := r.scanLicense(rows)
		if err != nil {
			return nil, fmt.Errorf("database scan error during list: %w", err)
		}
		licenses = append(licenses, lic)
	}

	if err = rows.Err(); err != nil {
		r.logger.Error("Error iterating license rows", zap.Error(err))
		return nil, fmt.Errorf("database iteration error on list licenses: %w", err)
	}

	return licenses, nil
}

func (r *LicenseRepository) Get(ctx context.Context, key string) (*license.License, error) {
	row := r.db.QueryRow(ctx, selectLicense+` WHERE license_key = $1`, key)
	return r.scanLicense(row)
}

func (r *LicenseRepository) Upsert(ctx context.Context, lic *license.License) error {
	query := `
        INSERT INTO licenses (
            license_key, product_name, owner_name, tier, status,
            issued_at, expires_at, activation_limit, activations, notes
        ) VALUES (
            $1, $2, $3, $4, $5, $6, $7, $8, $9, $10
        )
        ON CONFLICT (license_key) DO UPDATE SET
            product_name = EXCLUDED.product_name,
            owner_name = EXCLUDED.owner_name,
            tier = EXCLUDED.tier,
            status = EXCLUDED.status,
            issued_at = EXCLUDED.issued_at,
            expires_at = EXCLUDED.expires_at,
            activation_limit = EXCLUDED.activation_limit,
            activations = EXCLUDED.activations,
            notes = EXCLUDED.notes,
            updated_at = now()
    `

	activations, err := encodeActivations(lic.Activations)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx, query,
		lic.Key,
		lic.ProductName,
		lic.OwnerName,
		string(lic.Tier),
		string(lic.Status),
		lic.IssuedAt,
		lic.ExpiresAt,
		lic.ActivationLimit,
		activations,
		lic.Notes,
	)
	if err != nil {
		if mapped := mapWriteError(lic.Key, err); mapped != nil {
			r.logger.Warn("License upsert rejected by database", zap.String("license_key", lic.Key), zap.Error(err))
			return mapped
		}
		r.logger.Error("Failed to upsert license", zap.String("license_key", lic.Key), zap.Error(err))
		return fmt.Errorf("database error on upsert license: %w", err)
	}

	r.logger.Debug("License upserted", zap.String("license_key", lic.Key))
	return nil
}

// Update runs fn against the row locked with SELECT ... FOR UPDATE, so
// concurrent read-modify-write cycles on one key are serialized.
func (r *LicenseRepository) Update(ctx context.Context, key string, fn license.UpdateFunc) (*license.License, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("database error starting transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	lic, err := r.scanLicense(tx.QueryRow(ctx, selectLicense+` WHERE license_key = $1 FOR UPDATE`, key))
	if err != nil {
		return nil, err
	}

	if err := fn(lic); err != nil {
		return nil, err
	}
	lic.Key = key

	activations, err := encodeActivations(lic.Activations)
	if err != nil {
		return nil, err
	}

	query := `
        UPDATE licenses SET
            product_name = $1,
            owner_name = $2,
            tier = $3,
            status = $4,
            issued_at = $5,
            expires_at = $6,
            activation_limit = $7,
            activations = $8,
            notes = $9,
            updated_at = now()
        WHERE license_key = $10
    `
	cmdTag, err := tx.Exec(ctx, query,
		lic.ProductName,
		lic.OwnerName,
		string(lic.Tier),
		string(lic.Status),
		lic.IssuedAt,
		lic.ExpiresAt,
		lic.ActivationLimit,
		activations,
		lic.Notes,
		key,
	)
	if err != nil {
		if mapped := mapWriteError(key, err); mapped != nil {
			r.logger.Warn("License update rejected by database", zap.String("license_key", key), zap.Error(err))
			return nil, mapped
		}
		r.logger.Error("Failed to update license in database", zap.String("license_key", key), zap.Error(err))
		return nil, fmt.Errorf("database error on update license: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		r.logger.Warn("Attempted to update license, but no rows were affected", zap.String("license_key", key))
		return nil, license.ErrNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		if mapped := mapWriteError(key, err); mapped != nil {
			return nil, mapped
		}
		return nil, fmt.Errorf("database error committing license update: %w", err)
	}

	r.logger.Debug("License updated", zap.String("license_key", key))
	return lic, nil
}

// SQLSTATE codes the repository reacts to.
const (
	codeNotNullViolation     = "23502"
	codeUniqueViolation      = "23505"
	codeCheckViolation       = "23514"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// mapWriteError translates constraint and concurrency failures into the
// domain's sentinel errors. Anything else returns nil.
func mapWriteError(key string, err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return nil
	}
	switch pgErr.Code {
	case codeCheckViolation, codeNotNullViolation:
		return fmt.Errorf("%w: license %s violates constraint %s", ierr.ErrValidation, key, pgErr.ConstraintName)
	case codeUniqueViolation, codeSerializationFailure, codeDeadlockDetected:
		return fmt.Errorf("%w: license %s: %s", ierr.ErrConflict, key, pgErr.Message)
	}
	return nil
}

func (r *LicenseRepository) scanLicense(row pgx.Row) (*license.License, error) {
	var lic license.License
	var activations []byte

	err := row.Scan(
		&lic.Key,
		&lic.ProductName,
		&lic.OwnerName,
		&lic.Tier,
		&lic.Status,
		&lic.IssuedAt,
		&lic.ExpiresAt,
		&lic.ActivationLimit,
		&activations,
		&lic.Notes,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, license.ErrNotFound
		}
		r.logger.Error("Failed to scan license row", zap.Error(err))
		return nil, fmt.Errorf("database scan error: %w", err)
	}

	lic.Activations, err = decodeActivations(activations)
	if err != nil {
		return nil, err
	}
	return &lic, nil
}

func encodeActivations(activations []license.Activation) ([]byte, error) {
	if activations == nil {
		activations = []license.Activation{}
	}
	data, err := json.Marshal(activations)
	if err != nil {
		return nil, fmt.Errorf("failed to encode activations: %w", err)
	}
	return data, nil
}

func decodeActivations(data []byte) ([]license.Activation, error) {
	activations := []license.Activation{}
	if len(data) == 0 {
		return activations, nil
	}
	if err := json.Unmarshal(data, &activations); err != nil {
		return nil, fmt.Errorf("failed to decode activations: %w", err)
	}
	return activations, nil
}
