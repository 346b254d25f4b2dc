package license

import (
	"fmt"
	"strings"
	"time"
)

type LicenseStatus string

const (
	StatusActive   LicenseStatus = "active"
	StatusInactive LicenseStatus = "inactive"
	StatusExpired  LicenseStatus = "expired"
	StatusPending  LicenseStatus = "pending"
	StatusRevoked  LicenseStatus = "revoked"
)

var AllStatuses = []LicenseStatus{StatusActive, StatusInactive, StatusExpired, StatusPending, StatusRevoked}

func ParseStatus(s string) (LicenseStatus, error) {
	status := LicenseStatus(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllStatuses {
		if status == known {
			return status, nil
		}
	}
	return "", fmt.Errorf("unknown license status %q", s)
}

type LicenseTier string

const (
	TierTrial        LicenseTier = "trial"
	TierStandard     LicenseTier = "standard"
	TierProfessional LicenseTier = "professional"
	TierEnterprise   LicenseTier = "enterprise"
)

var AllTiers = []LicenseTier{TierTrial, TierStandard, TierProfessional, TierEnterprise}

func ParseTier(s string) (LicenseTier, error) {
	tier := LicenseTier(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllTiers {
		if tier == known {
			return tier, nil
		}
	}
	return "", fmt.Errorf("unknown license tier %q", s)
}

// Activation binds a license to one machine.
type Activation struct {
	MachineID     string     `json:"machine_id"`
	ActivatedBy   string     `json:"activated_by"`
	ActivatedAt   time.Time  `json:"activated_at"`
	LastHeartbeat *time.Time `json:"last_heartbeat,omitempty"`
}

type License struct {
	Key             string        `db:"license_key" json:"key"`
	ProductName     string        `db:"product_name" json:"product_name"`
	OwnerName       string        `db:"owner_name" json:"owner_name"`
	Tier            LicenseTier   `db:"tier" json:"tier"`
	Status          LicenseStatus `db:"status" json:"status"`
	IssuedAt        time.Time     `db:"issued_at" json:"issued_at"`
	ExpiresAt       time.Time     `db:"expires_at" json:"expires_at"`
	ActivationLimit int           `db:"activation_limit" json:"activation_limit"`
	Activations     []Activation  `db:"activations" json:"activations"`
	Notes           string        `db:"notes" json:"notes"`
}

// Clone returns a deep copy, so callers never share activation slices or
// heartbeat pointers with a store.
func (l *License) Clone() *License {
	if l == nil {
		return nil
	}
	cp := *l
	cp.Activations = make([]Activation, len(l.Activations))
	for i, a := range l.Activations {
		if a.LastHeartbeat != nil {
			hb := *a.LastHeartbeat
			a.LastHeartbeat = &hb
		}
		cp.Activations[i] = a
	}
	return &cp
}

// FindActivation returns the index of machineID in Activations or -1.
func (l *License) FindActivation(machineID string) int {
	for i := range l.Activations {
		if l.Activations[i].MachineID == machineID {
			return i
		}
	}
	return -1
}

func (l *License) IsExpired(now time.Time) bool {
	return !now.Before(l.ExpiresAt)
}

// RemainingDays returns whole days left before expiry, 0 once expired.
func (l *License) RemainingDays(now time.Time) int {
	if l.IsExpired(now) {
		return 0
	}
	hours := int64(l.ExpiresAt.Sub(now) / time.Hour)
	return int(hours / 24)
}

// DetermineStatus derives the status from the stored fields at now.
// The stored status only counts when it is revoked or pending.
func DetermineStatus(l *License, now time.Time) LicenseStatus {
	switch {
	case l.Status == StatusRevoked:
		return StatusRevoked
	case l.IsExpired(now):
		return StatusExpired
	case len(l.Activations) > 0:
		return StatusActive
	case l.Status == StatusPending:
		return StatusPending
	default:
		return StatusInactive
	}
}
