package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/makkenzo/license-manager/internal/domain/license"
	"github.com/makkenzo/license-manager/internal/events"
	"github.com/makkenzo/license-manager/internal/ierr"
	"github.com/makkenzo/license-manager/internal/metrics"
	"go.uber.org/zap"
)

// errStatusUnchanged aborts a refresh update when there is nothing to write.
var errStatusUnchanged = errors.New("status unchanged")

type LicenseService struct {
	repo      license.Repository
	publisher events.Publisher
	now       func() time.Time
	logger    *zap.Logger
}

type Option func(*LicenseService)

func WithClock(now func() time.Time) Option {
	return func(s *LicenseService) {
		s.now = now
	}
}

func WithPublisher(p events.Publisher) Option {
	return func(s *LicenseService) {
		s.publisher = p
	}
}

func NewLicenseService(repo license.Repository, logger *zap.Logger, opts ...Option) *LicenseService {
	s := &LicenseService{
		repo:      repo,
		publisher: events.NopPublisher{},
		now:       time.Now,
		logger:    logger.Named("LicenseService"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *LicenseService) Now() time.Time {
	return s.now()
}

func (s *LicenseService) DetermineStatus(lic *license.License) license.LicenseStatus {
	return license.DetermineStatus(lic, s.now())
}

// Activate registers a machine on a license, or refreshes its heartbeat when
// the machine is already registered. The caller's ActivatedAt is ignored.
func (s *LicenseService) Activate(ctx context.Context, key string, activation license.Activation) (*license.License, error) {
	if activation.MachineID == "" {
		return nil, fmt.Errorf("%w: machine id is required", ierr.ErrValidation)
	}

	now := s.now()
	eventType := events.EventActivated

	updated, err := s.repo.Update(ctx, key, func(lic *license.License) error {
		if license.DetermineStatus(lic, now) == license.StatusRevoked {
			return ierr.ErrLicenseRevoked
		}
		if lic.IsExpired(now) {
			return ierr.ErrLicenseExpired
		}

		if idx := lic.FindActivation(activation.MachineID); idx >= 0 {
			lic.Activations[idx].LastHeartbeat = copyTime(activation.LastHeartbeat)
			eventType = events.EventHeartbeat
			return nil
		}

		if len(lic.Activations) >= lic.ActivationLimit {
			return ierr.ErrActivationLimit
		}

		newActivation := activation
		newActivation.ActivatedAt = now
		newActivation.LastHeartbeat = copyTime(activation.LastHeartbeat)
		lic.Activations = append(lic.Activations, newActivation)
		lic.Status = license.DetermineStatus(lic, now)
		return nil
	})
	if err != nil {
		metrics.ActivationsTotal.WithLabelValues(outcomeOf(err)).Inc()
		s.logFailure("Machine activation rejected", err,
			zap.String("license_key", key),
			zap.String("machine_id", activation.MachineID),
		)
		return nil, fmt.Errorf("activate machine %s on license %s: %w", activation.MachineID, key, err)
	}

	metrics.ActivationsTotal.WithLabelValues(string(eventType)).Inc()
	updated.Status = license.DetermineStatus(updated, now)

	s.logger.Info("Machine activated",
		zap.String("license_key", key),
		zap.String("machine_id", activation.MachineID),
		zap.String("event", string(eventType)),
		zap.Int("activations", len(updated.Activations)),
	)
	s.publish(ctx, &events.LicenseEvent{
		Type:        eventType,
		LicenseKey:  key,
		MachineID:   activation.MachineID,
		ActivatedBy: activation.ActivatedBy,
		Status:      string(updated.Status),
		Activations: len(updated.Activations),
		Timestamp:   now.UTC(),
	})

	return updated, nil
}

func (s *LicenseService) ActivateMachine(ctx context.Context, key string, activation license.Activation) bool {
	_, err := s.Activate(ctx, key, activation)
	return err == nil
}

// Deactivate removes a machine's activation. Other activations keep their order.
func (s *LicenseService) Deactivate(ctx context.Context, key, machineID string) (*license.License, error) {
	now := s.now()

	updated, err := s.repo.Update(ctx, key, func(lic *license.License) error {
		idx := lic.FindActivation(machineID)
		if idx < 0 {
			return ierr.ErrMachineNotActivated
		}
		lic.Activations = append(lic.Activations[:idx], lic.Activations[idx+1:]...)
		lic.Status = license.DetermineStatus(lic, now)
		return nil
	})
	if err != nil {
		metrics.DeactivationsTotal.WithLabelValues(outcomeOf(err)).Inc()
		s.logFailure("Machine deactivation rejected", err,
			zap.String("license_key", key),
			zap.String("machine_id", machineID),
		)
		return nil, fmt.Errorf("deactivate machine %s on license %s: %w", machineID, key, err)
	}

	metrics.DeactivationsTotal.WithLabelValues(string(events.EventDeactivated)).Inc()
	updated.Status = license.DetermineStatus(updated, now)

	s.logger.Info("Machine deactivated",
		zap.String("license_key", key),
		zap.String("machine_id", machineID),
		zap.Int("activations", len(updated.Activations)),
	)
	s.publish(ctx, &events.LicenseEvent{
		Type:        events.EventDeactivated,
		LicenseKey:  key,
		MachineID:   machineID,
		Status:      string(updated.Status),
		Activations: len(updated.Activations),
		Timestamp:   now.UTC(),
	})

	return updated, nil
}

func (s *LicenseService) DeactivateMachine(ctx context.Context, key, machineID string) bool {
	_, err := s.Deactivate(ctx, key, machineID)
	return err == nil
}

// GetAllLicenses returns every license with its status derived at call time.
func (s *LicenseService) GetAllLicenses(ctx context.Context) ([]*license.License, error) {
	licenses, err := s.repo.GetAll(ctx)
	if err != nil {
		s.logger.Error("Failed to list licenses", zap.Error(err))
		return nil, fmt.Errorf("repository error listing licenses: %w", err)
	}

	now := s.now()
	for _, lic := range licenses {
		lic.Status = license.DetermineStatus(lic, now)
	}
	return licenses, nil
}

func (s *LicenseService) GetLicense(ctx context.Context, key string) (*license.License, error) {
	lic, err := s.repo.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, license.ErrNotFound) {
			s.logger.Error("Failed to get license", zap.String("license_key", key), zap.Error(err))
		}
		return nil, fmt.Errorf("get license %s: %w", key, err)
	}

	lic.Status = s.DetermineStatus(lic)
	return lic, nil
}

// CheckExpiration reports whether the license has expired. An unknown key
// reports false, the same as a license that has not expired yet.
func (s *LicenseService) CheckExpiration(ctx context.Context, key string) bool {
	lic, err := s.GetLicense(ctx, key)
	if err != nil {
		return false
	}
	return lic.IsExpired(s.now())
}

// GetRemainingDays returns whole days until expiry, 0 when expired and -1
// when the key is unknown.
func (s *LicenseService) GetRemainingDays(ctx context.Context, key string) int {
	lic, err := s.GetLicense(ctx, key)
	if err != nil {
		return -1
	}
	return lic.RemainingDays(s.now())
}

// LookupStatus reports the derived status and whether the license exists.
func (s *LicenseService) LookupStatus(ctx context.Context, key string) (license.LicenseStatus, bool, error) {
	lic, err := s.GetLicense(ctx, key)
	if err != nil {
		if errors.Is(err, license.ErrNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	return lic.Status, true, nil
}

// GetLicenseStatus returns the derived status, or revoked for an unknown key.
func (s *LicenseService) GetLicenseStatus(ctx context.Context, key string) license.LicenseStatus {
	status, found, err := s.LookupStatus(ctx, key)
	if err != nil || !found {
		return license.StatusRevoked
	}
	return status
}

type StatusSummary struct {
	Status        license.LicenseStatus
	RemainingDays int
	Expired       bool
	Found         bool
}

// GetStatusSummary evaluates status, expiry and remaining days against a
// single instant. Unknown keys keep the revoked/-1/false sentinels.
func (s *LicenseService) GetStatusSummary(ctx context.Context, key string) (*StatusSummary, error) {
	lic, err := s.repo.Get(ctx, key)
	if err != nil {
		if errors.Is(err, license.ErrNotFound) {
			return &StatusSummary{Status: license.StatusRevoked, RemainingDays: -1}, nil
		}
		s.logger.Error("Failed to get license for status summary", zap.String("license_key", key), zap.Error(err))
		return nil, fmt.Errorf("status summary for %s: %w", key, err)
	}

	now := s.now()
	return &StatusSummary{
		Status:        license.DetermineStatus(lic, now),
		RemainingDays: lic.RemainingDays(now),
		Expired:       lic.IsExpired(now),
		Found:         true,
	}, nil
}

// RefreshStatuses rewrites stored statuses that no longer match the derived
// one and returns how many were changed.
func (s *LicenseService) RefreshStatuses(ctx context.Context) (int, error) {
	licenses, err := s.repo.GetAll(ctx)
	if err != nil {
		s.logger.Error("Failed to list licenses for status refresh", zap.Error(err))
		return 0, fmt.Errorf("repository error listing licenses: %w", err)
	}

	now := s.now()
	counts := make(map[license.LicenseStatus]int, len(license.AllStatuses))
	updated := 0

	for _, lic := range licenses {
		var derived license.LicenseStatus
		_, err := s.repo.Update(ctx, lic.Key, func(current *license.License) error {
			derived = license.DetermineStatus(current, now)
			if derived == current.Status {
				return errStatusUnchanged
			}
			s.logger.Info("Refreshing stale license status",
				zap.String("license_key", current.Key),
				zap.String("stored_status", string(current.Status)),
				zap.String("derived_status", string(derived)),
			)
			current.Status = derived
			return nil
		})
		switch {
		case err == nil:
			updated++
		case errors.Is(err, errStatusUnchanged):
		case errors.Is(err, license.ErrNotFound):
			continue
		default:
			s.logger.Error("Failed to refresh license status", zap.String("license_key", lic.Key), zap.Error(err))
			return updated, fmt.Errorf("refresh status of %s: %w", lic.Key, err)
		}
		counts[derived]++
	}

	for _, status := range license.AllStatuses {
		metrics.LicensesByStatus.WithLabelValues(string(status)).Set(float64(counts[status]))
	}
	metrics.StatusRefreshTotal.Add(float64(updated))

	s.logger.Info("License status refresh finished", zap.Int("licenses", len(licenses)), zap.Int("updated", updated))
	return updated, nil
}

func (s *LicenseService) publish(ctx context.Context, event *events.LicenseEvent) {
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("Failed to publish license event",
			zap.String("type", string(event.Type)),
			zap.String("license_key", event.LicenseKey),
			zap.Error(err),
		)
	}
}

func (s *LicenseService) logFailure(msg string, err error, fields ...zap.Field) {
	fields = append(fields, zap.Error(err))
	if outcomeOf(err) == "error" {
		s.logger.Error(msg, fields...)
		return
	}
	s.logger.Info(msg, fields...)
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, license.ErrNotFound):
		return "not_found"
	case errors.Is(err, ierr.ErrLicenseExpired):
		return "expired"
	case errors.Is(err, ierr.ErrLicenseRevoked):
		return "revoked"
	case errors.Is(err, ierr.ErrActivationLimit):
		return "limit_reached"
	case errors.Is(err, ierr.ErrMachineNotActivated):
		return "not_activated"
	case errors.Is(err, ierr.ErrValidation):
		return "invalid"
	default:
		return "error"
	}
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}
