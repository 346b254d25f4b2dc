package seed

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/makkenzo/license-manager/internal/domain/license"
	"github.com/makkenzo/license-manager/internal/storage/memstorage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var now = time.Date(2026, 6, 1, 8, 30, 0, 0, time.UTC)

func TestDefaultLicenses(t *testing.T) {
	licenses, err := DefaultLicenses(now)
	require.NoError(t, err)
	require.Len(t, licenses, 3)

	byKey := make(map[string]*license.License)
	for _, l := range licenses {
		byKey[l.Key] = l
	}

	pro := byKey["OPT-PRO-001"]
	require.NotNil(t, pro)
	assert.Equal(t, license.TierProfessional, pro.Tier)
	assert.Equal(t, 3, pro.ActivationLimit)
	assert.Len(t, pro.Activations, 2)
	assert.Equal(t, now.Add(120*day), pro.ExpiresAt)
	assert.Equal(t, now.Add(-45*day), pro.IssuedAt)
	assert.Nil(t, pro.Activations[0].LastHeartbeat)

	trial := byKey["OPT-TRIAL-041"]
	require.NotNil(t, trial)
	assert.Equal(t, license.StatusPending, trial.Status)
	assert.Empty(t, trial.Activations)

	std := byKey["OPT-STD-887"]
	require.NotNil(t, std)
	assert.Equal(t, now.Add(-2*day), std.ExpiresAt)
	require.Len(t, std.Activations, 1)
	require.NotNil(t, std.Activations[0].LastHeartbeat)
	assert.Equal(t, now.Add(-3*day), *std.Activations[0].LastHeartbeat)
}

func TestParseRejectsBadFixtures(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing key", "licenses:\n  - tier: trial\n    status: pending\n"},
		{"unknown tier", "licenses:\n  - key: A\n    tier: gold\n    status: pending\n"},
		{"unknown status", "licenses:\n  - key: A\n    tier: trial\n    status: paused\n"},
		{"negative limit", "licenses:\n  - key: A\n    tier: trial\n    status: pending\n    activationLimit: -1\n"},
		{"duplicate key", "licenses:\n  - key: A\n    tier: trial\n    status: pending\n  - key: A\n    tier: trial\n    status: pending\n"},
		{"duplicate machine", "licenses:\n  - key: A\n    tier: trial\n    status: pending\n    activations:\n      - machineId: m\n      - machineId: m\n"},
		{"not yaml", "licenses: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml), now)
			assert.Error(t, err)
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixtures.yaml")
	require.NoError(t, os.WriteFile(path, []byte("licenses:\n  - key: FILE-1\n    tier: enterprise\n    status: inactive\n    expiresInDays: 30\n    activationLimit: 10\n"), 0o600))

	licenses, err := LoadFile(path, now)
	require.NoError(t, err)
	require.Len(t, licenses, 1)
	assert.Equal(t, "FILE-1", licenses[0].Key)
	assert.Equal(t, license.TierEnterprise, licenses[0].Tier)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"), now)
	assert.Error(t, err)
}

func TestApply(t *testing.T) {
	ctx := context.Background()
	repo := memstorage.NewLicenseRepository()
	licenses, err := DefaultLicenses(now)
	require.NoError(t, err)

	require.NoError(t, Apply(ctx, repo, licenses, zap.NewNop()))

	all, err := repo.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestApplyKeepsStoredLicenses(t *testing.T) {
	ctx := context.Background()
	repo := memstorage.NewLicenseRepository()

	first, err := DefaultLicenses(now)
	require.NoError(t, err)
	require.NoError(t, Apply(ctx, repo, first, zap.NewNop()))

	_, err = repo.Update(ctx, "OPT-TRIAL-041", func(l *license.License) error {
		l.Activations = append(l.Activations, license.Activation{MachineID: "VL-01", ActivatedBy: "ops", ActivatedAt: now})
		l.Status = license.StatusActive
		return nil
	})
	require.NoError(t, err)

	restart, err := DefaultLicenses(now.Add(7 * day))
	require.NoError(t, err)
	require.NoError(t, Apply(ctx, repo, restart, zap.NewNop()))

	trial, err := repo.Get(ctx, "OPT-TRIAL-041")
	require.NoError(t, err)
	assert.Equal(t, license.StatusActive, trial.Status)
	require.Len(t, trial.Activations, 1)
	assert.Equal(t, "VL-01", trial.Activations[0].MachineID)
	assert.Equal(t, now.Add(10*day), trial.ExpiresAt)
}

func TestApplyInsertsMissingKeys(t *testing.T) {
	ctx := context.Background()
	repo := memstorage.NewLicenseRepository()

	licenses, err := DefaultLicenses(now)
	require.NoError(t, err)
	require.NoError(t, repo.Upsert(ctx, licenses[0]))

	require.NoError(t, Apply(ctx, repo, licenses, zap.NewNop()))

	all, err := repo.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestReplaceOverwritesStoredLicenses(t *testing.T) {
	ctx := context.Background()
	repo := memstorage.NewLicenseRepository()

	licenses, err := DefaultLicenses(now)
	require.NoError(t, err)
	require.NoError(t, Apply(ctx, repo, licenses, zap.NewNop()))

	_, err = repo.Update(ctx, "OPT-PRO-001", func(l *license.License) error {
		l.Activations = nil
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, Replace(ctx, repo, licenses, zap.NewNop()))

	pro, err := repo.Get(ctx, "OPT-PRO-001")
	require.NoError(t, err)
	assert.Len(t, pro.Activations, 2)
}
