package dto

import (
	"time"

	"github.com/makkenzo/license-manager/internal/domain/license"
)

// TimestampLayout is the UTC, second-precision format used on the wire.
const TimestampLayout = "2006-01-02T15:04:05Z"

func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

type DataResponse[T any] struct {
	Data T `json:"data"`
}

type ActivationResponse struct {
	MachineID     string  `json:"machineId"`
	ActivatedBy   string  `json:"activatedBy"`
	ActivatedAt   string  `json:"activatedAt"`
	LastHeartbeat *string `json:"lastHeartbeat"`
}

type LicenseResponse struct {
	Key             string                `json:"key"`
	ProductName     string                `json:"productName"`
	OwnerName       string                `json:"ownerName"`
	Tier            license.LicenseTier   `json:"tier"`
	Status          license.LicenseStatus `json:"status"`
	IssuedAt        string                `json:"issuedAt"`
	ExpiresAt       string                `json:"expiresAt"`
	ActivationLimit int                   `json:"activationLimit"`
	Notes           string                `json:"notes"`
	Activations     []ActivationResponse  `json:"activations"`
	RemainingDays   int                   `json:"remainingDays"`
}

func NewLicenseResponse(lic *license.License, remainingDays int) *LicenseResponse {
	resp := &LicenseResponse{
		Key:             lic.Key,
		ProductName:     lic.ProductName,
		OwnerName:       lic.OwnerName,
		Tier:            lic.Tier,
		Status:          lic.Status,
		IssuedAt:        FormatTimestamp(lic.IssuedAt),
		ExpiresAt:       FormatTimestamp(lic.ExpiresAt),
		ActivationLimit: lic.ActivationLimit,
		Notes:           lic.Notes,
		Activations:     make([]ActivationResponse, len(lic.Activations)),
		RemainingDays:   remainingDays,
	}
	for i, a := range lic.Activations {
		ar := ActivationResponse{
			MachineID:   a.MachineID,
			ActivatedBy: a.ActivatedBy,
			ActivatedAt: FormatTimestamp(a.ActivatedAt),
		}
		if a.LastHeartbeat != nil {
			hb := FormatTimestamp(*a.LastHeartbeat)
			ar.LastHeartbeat = &hb
		}
		resp.Activations[i] = ar
	}
	return resp
}

// ActivateLicenseRequest carries the activation payload. Any non-null
// lastHeartbeat value means "record a heartbeat now".
type ActivateLicenseRequest struct {
	MachineID     string `json:"machineId" binding:"required"`
	ActivatedBy   string `json:"activatedBy"`
	LastHeartbeat any    `json:"lastHeartbeat"`
}

func (r *ActivateLicenseRequest) HasHeartbeat() bool {
	return r.LastHeartbeat != nil
}

type DeactivateLicenseRequest struct {
	MachineID string `json:"machineId" binding:"required"`
}

type LicenseStatusResponse struct {
	Status        license.LicenseStatus `json:"status"`
	RemainingDays int                   `json:"remainingDays"`
	Expired       bool                  `json:"expired"`
	Found         bool                  `json:"found"`
}

type ExpirationResponse struct {
	Expired bool `json:"expired"`
}

type RemainingDaysResponse struct {
	RemainingDays int `json:"remainingDays"`
}
