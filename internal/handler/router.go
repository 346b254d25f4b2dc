package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/makkenzo/license-manager/internal/handler/dto"
	"github.com/makkenzo/license-manager/internal/handler/middleware"
	"github.com/makkenzo/license-manager/internal/ierr"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type RouterDeps struct {
	License        *LicenseHandler
	Dashboard      *DashboardHandler
	Health         *HealthHandler
	AllowedOrigins []string
	Logger         *zap.Logger
}

func NewRouter(deps RouterDeps) *gin.Engine {
	logger := deps.Logger

	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
			param.ClientIP,
			param.TimeStamp.Format(time.RFC1123),
			param.Method,
			param.Path,
			param.Request.Proto,
			param.StatusCode,
			param.Latency,
			param.Request.UserAgent(),
			param.ErrorMessage,
		)
	}))
	router.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logger.Error("Panic recovered",
			zap.Any("panic", recovered),
			zap.String("request_id", middleware.GetRequestID(c)),
			zap.Stack("stack"),
		)
		_ = c.Error(ierr.ErrInternalServer)
		c.AbortWithStatusJSON(http.StatusInternalServerError, dto.APIErrorResponse{
			Code:    "INTERNAL_ERROR",
			Message: "An unexpected error occurred.",
		})
	}))

	// cors.New panics on an empty origin list; without origins only
	// same-origin callers are served.
	if len(deps.AllowedOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     deps.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", middleware.RequestIDHeader},
			ExposeHeaders:    []string{"Content-Length", middleware.RequestIDHeader},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	} else {
		logger.Warn("No CORS origins configured, cross-origin requests will be rejected by browsers")
	}
	router.Use(middleware.ErrorHandlerMiddleware(logger))

	router.GET("/healthz", deps.Health.Check)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	apiV1 := router.Group("/api/v1")
	{
		licenseRoutes := apiV1.Group("/licenses")
		{
			licenseRoutes.GET("", deps.License.List)
			licenseRoutes.GET("/:key", deps.License.Get)
			licenseRoutes.POST("/:key/activate", deps.License.Activate)
			licenseRoutes.POST("/:key/deactivate", deps.License.Deactivate)
			licenseRoutes.GET("/:key/status", deps.License.Status)
			licenseRoutes.GET("/:key/expiration", deps.License.Expiration)
			licenseRoutes.GET("/:key/remaining-days", deps.License.RemainingDays)
		}
		apiV1.GET("/dashboard/summary", deps.Dashboard.GetSummary)
	}

	return router
}
