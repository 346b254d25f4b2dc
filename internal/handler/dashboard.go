package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/makkenzo/license-manager/internal/handler/dto"
	"github.com/makkenzo/license-manager/internal/service"
	"go.uber.org/zap"
)

type DashboardHandler struct {
	licenseService *service.LicenseService
	logger         *zap.Logger
}

func NewDashboardHandler(licenseService *service.LicenseService, logger *zap.Logger) *DashboardHandler {
	return &DashboardHandler{
		licenseService: licenseService,
		logger:         logger.Named("DashboardHandler"),
	}
}

// GetSummary godoc
// @Summary      Get dashboard summary
// @Description  Counts licenses by derived status, tier and product, and reports those expiring within 30 days.
// @Tags         dashboard
// @Produce      json
// @Success      200 {object} dto.DataResponse[dto.DashboardSummaryResponse]
// @Failure      500 {object} dto.APIErrorResponse
// @Router       /dashboard/summary [get]
func (h *DashboardHandler) GetSummary(c *gin.Context) {
	h.logger.Debug("Received request for dashboard summary")

	summary, err := h.licenseService.GetDashboardSummary(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, dto.DataResponse[*dto.DashboardSummaryResponse]{Data: summary})
}
