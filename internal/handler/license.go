package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/makkenzo/license-manager/internal/domain/license"
	"github.com/makkenzo/license-manager/internal/handler/dto"
	"github.com/makkenzo/license-manager/internal/ierr"
	"github.com/makkenzo/license-manager/internal/service"
	"go.uber.org/zap"
)

const defaultActivatedBy = "unknown"

type LicenseHandler struct {
	service *service.LicenseService
	logger  *zap.Logger
}

func NewLicenseHandler(service *service.LicenseService, logger *zap.Logger) *LicenseHandler {
	return &LicenseHandler{
		service: service,
		logger:  logger.Named("LicenseHandler"),
	}
}

func (h *LicenseHandler) List(c *gin.Context) {
	h.logger.Debug("Received request to list licenses")

	licenses, err := h.service.GetAllLicenses(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}

	now := h.service.Now()
	responses := make([]*dto.LicenseResponse, len(licenses))
	for i, lic := range licenses {
		responses[i] = dto.NewLicenseResponse(lic, lic.RemainingDays(now))
	}

	c.JSON(http.StatusOK, dto.DataResponse[[]*dto.LicenseResponse]{Data: responses})
}

func (h *LicenseHandler) Get(c *gin.Context) {
	key := c.Param("key")
	h.logger.Debug("Received request to get license", zap.String("license_key", key))

	lic, err := h.service.GetLicense(c.Request.Context(), key)
	if err != nil {
		_ = c.Error(err)
		return
	}

	h.respondWithLicense(c, lic)
}

func (h *LicenseHandler) Activate(c *gin.Context) {
	key := c.Param("key")
	h.logger.Debug("Received request to activate license", zap.String("license_key", key))

	var req dto.ActivateLicenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Failed to bind or validate activation body", zap.String("license_key", key), zap.Error(err))
		_ = c.Error(fmt.Errorf("%w: %w", ierr.ErrValidation, err))
		return
	}

	activation := license.Activation{
		MachineID:   req.MachineID,
		ActivatedBy: req.ActivatedBy,
	}
	if activation.ActivatedBy == "" {
		activation.ActivatedBy = defaultActivatedBy
	}
	if req.HasHeartbeat() {
		now := h.service.Now()
		activation.LastHeartbeat = &now
	}

	lic, err := h.service.Activate(c.Request.Context(), key, activation)
	if err != nil {
		_ = c.Error(err)
		return
	}

	h.respondWithLicense(c, lic)
}

func (h *LicenseHandler) Deactivate(c *gin.Context) {
	key := c.Param("key")
	h.logger.Debug("Received request to deactivate license", zap.String("license_key", key))

	var req dto.DeactivateLicenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Failed to bind or validate deactivation body", zap.String("license_key", key), zap.Error(err))
		_ = c.Error(fmt.Errorf("%w: %w", ierr.ErrValidation, err))
		return
	}

	lic, err := h.service.Deactivate(c.Request.Context(), key, req.MachineID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	h.respondWithLicense(c, lic)
}

// Status answers for unknown keys too: revoked with found=false.
func (h *LicenseHandler) Status(c *gin.Context) {
	key := c.Param("key")

	summary, err := h.service.GetStatusSummary(c.Request.Context(), key)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, dto.DataResponse[dto.LicenseStatusResponse]{Data: dto.LicenseStatusResponse{
		Status:        summary.Status,
		RemainingDays: summary.RemainingDays,
		Expired:       summary.Expired,
		Found:         summary.Found,
	}})
}

func (h *LicenseHandler) Expiration(c *gin.Context) {
	expired := h.service.CheckExpiration(c.Request.Context(), c.Param("key"))
	c.JSON(http.StatusOK, dto.DataResponse[dto.ExpirationResponse]{Data: dto.ExpirationResponse{Expired: expired}})
}

func (h *LicenseHandler) RemainingDays(c *gin.Context) {
	days := h.service.GetRemainingDays(c.Request.Context(), c.Param("key"))
	c.JSON(http.StatusOK, dto.DataResponse[dto.RemainingDaysResponse]{Data: dto.RemainingDaysResponse{RemainingDays: days}})
}

func (h *LicenseHandler) respondWithLicense(c *gin.Context, lic *license.License) {
	resp := dto.NewLicenseResponse(lic, lic.RemainingDays(h.service.Now()))
	c.JSON(http.StatusOK, dto.DataResponse[*dto.LicenseResponse]{Data: resp})
}
