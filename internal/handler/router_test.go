package handler

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/makkenzo/license-manager/internal/service"
	"github.com/makkenzo/license-manager/internal/storage/memstorage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRecoveryAnswersPanicsWithJSON500(t *testing.T) {
	router, _ := newTestRouter(t, nil)
	router.GET("/explode", func(c *gin.Context) {
		panic("nil map write")
	})

	rec := doRequest(router, http.MethodGet, "/explode", "")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, "INTERNAL_ERROR", body.Code)
	assert.NotEmpty(t, body.Message)
}

func TestNewRouterWithoutAllowedOrigins(t *testing.T) {
	logger := zap.NewNop()
	svc := service.NewLicenseService(memstorage.NewLicenseRepository(), logger)

	var router *gin.Engine
	require.NotPanics(t, func() {
		router = NewRouter(RouterDeps{
			License:   NewLicenseHandler(svc, logger),
			Dashboard: NewDashboardHandler(svc, logger),
			Health:    NewHealthHandler(nil, logger),
			Logger:    logger,
		})
	})

	rec := doRequest(router, http.MethodGet, "/api/v1/licenses", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
