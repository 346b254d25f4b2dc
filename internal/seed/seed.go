// Package seed provides the fixed example licenses the service starts with
// until a persistent backing store is populated.
package seed

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/makkenzo/license-manager/internal/domain/license"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

//go:embed licenses.yaml
var defaultFixtures []byte

const day = 24 * time.Hour

type fixtureFile struct {
	Licenses []licenseFixture `yaml:"licenses"`
}

type licenseFixture struct {
	Key             string              `yaml:"key"`
	ProductName     string              `yaml:"productName"`
	OwnerName       string              `yaml:"ownerName"`
	Tier            string              `yaml:"tier"`
	Status          string              `yaml:"status"`
	IssuedDaysAgo   int                 `yaml:"issuedDaysAgo"`
	ExpiresInDays   int                 `yaml:"expiresInDays"`
	ActivationLimit int                 `yaml:"activationLimit"`
	Notes           string              `yaml:"notes"`
	Activations     []activationFixture `yaml:"activations"`
}

type activationFixture struct {
	MachineID        string `yaml:"machineId"`
	ActivatedBy      string `yaml:"activatedBy"`
	ActivatedDaysAgo int    `yaml:"activatedDaysAgo"`
	HeartbeatDaysAgo *int   `yaml:"heartbeatDaysAgo"`
}

// DefaultLicenses returns the built-in fixtures anchored at now.
func DefaultLicenses(now time.Time) ([]*license.License, error) {
	return Parse(defaultFixtures, now)
}

// LoadFile reads fixtures from a YAML file on disk.
func LoadFile(path string, now time.Time) ([]*license.License, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	return Parse(data, now)
}

func Parse(data []byte, now time.Time) ([]*license.License, error) {
	var file fixtureFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse seed fixtures: %w", err)
	}

	licenses := make([]*license.License, 0, len(file.Licenses))
	seen := make(map[string]struct{}, len(file.Licenses))
	for i, f := range file.Licenses {
		if f.Key == "" {
			return nil, fmt.Errorf("fixture %d: license key is required", i)
		}
		if _, dup := seen[f.Key]; dup {
			return nil, fmt.Errorf("fixture %q: duplicate license key", f.Key)
		}
		seen[f.Key] = struct{}{}

		lic, err := f.toLicense(now)
		if err != nil {
			return nil, fmt.Errorf("fixture %q: %w", f.Key, err)
		}
		licenses = append(licenses, lic)
	}
	return licenses, nil
}

func (f licenseFixture) toLicense(now time.Time) (*license.License, error) {
	tier, err := license.ParseTier(f.Tier)
	if err != nil {
		return nil, err
	}
	status, err := license.ParseStatus(f.Status)
	if err != nil {
		return nil, err
	}
	if f.ActivationLimit < 0 {
		return nil, fmt.Errorf("activation limit must not be negative")
	}

	lic := &license.License{
		Key:             f.Key,
		ProductName:     f.ProductName,
		OwnerName:       f.OwnerName,
		Tier:            tier,
		Status:          status,
		IssuedAt:        daysAgo(now, f.IssuedDaysAgo),
		ExpiresAt:       now.Add(time.Duration(f.ExpiresInDays) * day),
		ActivationLimit: f.ActivationLimit,
		Activations:     make([]license.Activation, 0, len(f.Activations)),
		Notes:           f.Notes,
	}

	for _, a := range f.Activations {
		if lic.FindActivation(a.MachineID) >= 0 {
			return nil, fmt.Errorf("duplicate activation for machine %q", a.MachineID)
		}
		activation := license.Activation{
			MachineID:   a.MachineID,
			ActivatedBy: a.ActivatedBy,
			ActivatedAt: daysAgo(now, a.ActivatedDaysAgo),
		}
		if a.HeartbeatDaysAgo != nil {
			hb := daysAgo(now, *a.HeartbeatDaysAgo)
			activation.LastHeartbeat = &hb
		}
		lic.Activations = append(lic.Activations, activation)
	}

	return lic, nil
}

func daysAgo(now time.Time, days int) time.Time {
	return now.Add(-time.Duration(days) * day)
}

// Apply inserts the fixtures whose keys are not stored yet. Existing
// licenses keep their activations and status, so restarting against a
// persistent store does not roll it back to the fixtures.
func Apply(ctx context.Context, repo license.Repository, licenses []*license.License, logger *zap.Logger) error {
	log := logger.Named("Seed")
	inserted := 0
	for _, lic := range licenses {
		_, err := repo.Get(ctx, lic.Key)
		switch {
		case err == nil:
			log.Debug("License already stored, keeping it", zap.String("license_key", lic.Key))
			continue
		case !errors.Is(err, license.ErrNotFound):
			log.Error("Failed to look up license before seeding", zap.String("license_key", lic.Key), zap.Error(err))
			return fmt.Errorf("seed license %s: %w", lic.Key, err)
		}

		if err := repo.Upsert(ctx, lic); err != nil {
			log.Error("Failed to seed license", zap.String("license_key", lic.Key), zap.Error(err))
			return fmt.Errorf("seed license %s: %w", lic.Key, err)
		}
		inserted++
	}
	log.Info("Seeded licenses", zap.Int("inserted", inserted), zap.Int("skipped", len(licenses)-inserted))
	return nil
}

// Replace upserts every fixture, overwriting stored licenses with the same key.
func Replace(ctx context.Context, repo license.Repository, licenses []*license.License, logger *zap.Logger) error {
	log := logger.Named("Seed")
	for _, lic := range licenses {
		if err := repo.Upsert(ctx, lic); err != nil {
			log.Error("Failed to seed license", zap.String("license_key", lic.Key), zap.Error(err))
			return fmt.Errorf("seed license %s: %w", lic.Key, err)
		}
	}
	log.Info("Replaced licenses with fixtures", zap.Int("count", len(licenses)))
	return nil
}
