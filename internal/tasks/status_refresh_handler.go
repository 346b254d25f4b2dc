package tasks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

type StatusRefresher interface {
	RefreshStatuses(ctx context.Context) (int, error)
}

type LicenseStatusRefreshHandler struct {
	refresher StatusRefresher
	logger    *zap.Logger
}

func NewLicenseStatusRefreshHandler(refresher StatusRefresher, logger *zap.Logger) *LicenseStatusRefreshHandler {
	return &LicenseStatusRefreshHandler{
		refresher: refresher,
		logger:    logger.Named("LicenseStatusRefreshHandler"),
	}
}

func (h *LicenseStatusRefreshHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	if t.Type() != TypeLicenseStatusRefresh {
		return fmt.Errorf("unexpected task type: %s", t.Type())
	}

	var p StatusRefreshPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		h.logger.Error("Failed to unmarshal payload for status refresh task", zap.Error(err), zap.ByteString("payload", t.Payload()))
		return fmt.Errorf("invalid payload: %v: %w", err, asynq.SkipRetry)
	}

	h.logger.Info("Processing license status refresh task...")

	updated, err := h.refresher.RefreshStatuses(ctx)
	if err != nil {
		h.logger.Error("License status refresh failed", zap.Int("updated_before_failure", updated), zap.Error(err))
		return fmt.Errorf("status refresh: %w", err)
	}

	h.logger.Info("License status refresh task finished", zap.Int("updated", updated))
	return nil
}
