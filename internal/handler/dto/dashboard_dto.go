package dto

import (
	"github.com/makkenzo/license-manager/internal/domain/license"
)

type DashboardSummaryResponse struct {
	TotalLicenses      int64                           `json:"totalLicenses"`
	StatusCounts       map[license.LicenseStatus]int64 `json:"statusCounts"`
	TierCounts         map[license.LicenseTier]int64   `json:"tierCounts"`
	ProductCounts      map[string]int64                `json:"productCounts"`
	TotalActivations   int64                           `json:"totalActivations"`
	ActivationCapacity int64                           `json:"activationCapacity"`
	ExpiringSoon       ExpiringSoonSummary             `json:"expiringSoon"`
}

type ExpiringSoonSummary struct {
	Count        int64        `json:"count"`
	PeriodDays   int          `json:"periodDays"`
	NextToExpire *LicenseInfo `json:"nextToExpire,omitempty"`
}

type LicenseInfo struct {
	LicenseKey    string `json:"licenseKey"`
	ExpiresAt     string `json:"expiresAt"`
	ProductName   string `json:"productName"`
	RemainingDays int    `json:"remainingDays"`
}
