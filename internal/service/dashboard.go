package service

import (
	"context"
	"fmt"
	"time"

	"github.com/makkenzo/license-manager/internal/domain/license"
	"github.com/makkenzo/license-manager/internal/handler/dto"
	"go.uber.org/zap"
)

const expiringSoonDays = 30

func (s *LicenseService) GetDashboardSummary(ctx context.Context) (*dto.DashboardSummaryResponse, error) {
	licenses, err := s.repo.GetAll(ctx)
	if err != nil {
		s.logger.Error("Failed to list licenses for dashboard summary", zap.Error(err))
		return nil, fmt.Errorf("repository error building dashboard summary: %w", err)
	}

	now := s.now()
	horizon := now.Add(expiringSoonDays * 24 * time.Hour)

	summary := &dto.DashboardSummaryResponse{
		TotalLicenses: int64(len(licenses)),
		StatusCounts:  make(map[license.LicenseStatus]int64, len(license.AllStatuses)),
		TierCounts:    make(map[license.LicenseTier]int64, len(license.AllTiers)),
		ProductCounts: make(map[string]int64),
		ExpiringSoon:  dto.ExpiringSoonSummary{PeriodDays: expiringSoonDays},
	}
	for _, status := range license.AllStatuses {
		summary.StatusCounts[status] = 0
	}

	var next *license.License
	for _, lic := range licenses {
		status := license.DetermineStatus(lic, now)
		summary.StatusCounts[status]++
		summary.TierCounts[lic.Tier]++
		summary.ProductCounts[lic.ProductName]++
		summary.TotalActivations += int64(len(lic.Activations))
		summary.ActivationCapacity += int64(lic.ActivationLimit)

		if status == license.StatusRevoked || lic.IsExpired(now) || lic.ExpiresAt.After(horizon) {
			continue
		}
		summary.ExpiringSoon.Count++
		if next == nil || lic.ExpiresAt.Before(next.ExpiresAt) {
			next = lic
		}
	}

	if next != nil {
		summary.ExpiringSoon.NextToExpire = &dto.LicenseInfo{
			LicenseKey:    next.Key,
			ExpiresAt:     dto.FormatTimestamp(next.ExpiresAt),
			ProductName:   next.ProductName,
			RemainingDays: next.RemainingDays(now),
		}
	}

	s.logger.Debug("Dashboard summary built", zap.Int64("total", summary.TotalLicenses))
	return summary, nil
}
