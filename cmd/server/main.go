package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/makkenzo/license-manager/internal/config"
	"github.com/makkenzo/license-manager/internal/discovery"
	"github.com/makkenzo/license-manager/internal/domain/license"
	"github.com/makkenzo/license-manager/internal/events"
	"github.com/makkenzo/license-manager/internal/handler"
	"github.com/makkenzo/license-manager/internal/seed"
	"github.com/makkenzo/license-manager/internal/service"
	"github.com/makkenzo/license-manager/internal/storage/memstorage"
	"github.com/makkenzo/license-manager/internal/storage/postgres"
	"github.com/makkenzo/license-manager/internal/storage/redis"
	"github.com/makkenzo/license-manager/internal/worker"
	"github.com/makkenzo/license-manager/pkg/logger"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "./configs/config.dev.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	appLogger, err := logger.NewZapLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer appLogger.Sync()

	sugarLogger := appLogger.Sugar()

	sugarLogger.Info("Starting application...")
	sugarLogger.Infof("Log level set to: %s", cfg.Log.Level)

	appCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	healthChecks := map[string]handler.PingFunc{}

	var licenseRepo license.Repository
	switch cfg.Storage.Driver {
	case config.StoragePostgres:
		dbPool, err := postgres.NewPgxPool(appCtx, &cfg.Database, appLogger)
		if err != nil {
			sugarLogger.Fatalf("Failed to connect to PostgreSQL: %v", err)
		}
		defer dbPool.Close()

		pgRepo := postgres.NewLicenseRepository(dbPool, appLogger)
		if err := pgRepo.EnsureSchema(appCtx); err != nil {
			sugarLogger.Fatalf("Failed to prepare license schema: %v", err)
		}
		licenseRepo = pgRepo
		healthChecks["database"] = dbPool.Ping
	default:
		licenseRepo = memstorage.NewLicenseRepository()
	}

	var redisClient *goredis.Client
	if cfg.Redis.Enabled() {
		redisClient, err = redis.NewRedisClient(appCtx, &cfg.Redis, appLogger)
		if err != nil {
			sugarLogger.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redisClient.Close()

		healthChecks["redis"] = func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}
		if cfg.Cache.Enabled {
			licenseRepo = redis.NewCachedLicenseRepository(licenseRepo, redisClient, cfg.Cache.TTL, appLogger)
		}
	}

	serviceOpts := []service.Option{}
	if cfg.NATS.URL != "" {
		publisher, err := events.NewNATSPublisher(cfg.NATS.URL, cfg.NATS.SubjectPrefix, appLogger)
		if err != nil {
			sugarLogger.Fatalf("Failed to connect to NATS: %v", err)
		}
		defer publisher.Close()
		serviceOpts = append(serviceOpts, service.WithPublisher(publisher))
	}

	licenseService := service.NewLicenseService(licenseRepo, appLogger, serviceOpts...)

	if cfg.Seed.Enabled {
		if err := seedLicenses(appCtx, cfg, licenseRepo, licenseService, appLogger); err != nil {
			sugarLogger.Fatalf("Failed to seed licenses: %v", err)
		}
	}

	router := handler.NewRouter(handler.RouterDeps{
		License:        handler.NewLicenseHandler(licenseService, appLogger),
		Dashboard:      handler.NewDashboardHandler(licenseService, appLogger),
		Health:         handler.NewHealthHandler(healthChecks, appLogger),
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Logger:         appLogger,
	})

	g, groupCtx := errgroup.WithContext(appCtx)

	httpServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g.Go(func() error {
		sugarLogger.Infof("HTTP server listening on %s", httpServer.Addr)

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugarLogger.Errorf("HTTP server ListenAndServe error: %v", err)
			return fmt.Errorf("http server failed: %w", err)
		}
		sugarLogger.Info("HTTP server stopped listening.")
		return nil
	})

	g.Go(func() error {
		<-groupCtx.Done()
		sugarLogger.Info("Shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownPeriod)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			sugarLogger.Errorf("HTTP server graceful shutdown failed: %v", err)
			return fmt.Errorf("http server shutdown error: %w", err)
		}
		sugarLogger.Info("HTTP server shutdown complete.")
		return nil
	})

	if cfg.Worker.Enabled {
		if redisClient == nil {
			sugarLogger.Warn("Worker enabled but Redis is not configured; status refresh will not run.")
		} else {
			g.Go(func() error {
				if err := worker.RunWorkers(groupCtx, cfg, licenseService, appLogger); err != nil {
					sugarLogger.Errorw("Asynq worker failed", "error", err)
					return fmt.Errorf("asynq worker error: %w", err)
				}
				sugarLogger.Info("Asynq workers finished gracefully.")
				return nil
			})
		}
	}

	if cfg.Consul.Address != "" {
		registration, err := discovery.Register(cfg, appLogger)
		if err != nil {
			sugarLogger.Errorf("Consul registration failed, continuing without it: %v", err)
		} else {
			defer func() {
				if err := registration.Deregister(); err != nil {
					sugarLogger.Errorf("Consul deregistration failed: %v", err)
				}
			}()
		}
	}

	sugarLogger.Info("Application started. Waiting for interrupt signal (Ctrl+C) or component error...")

	waitErr := g.Wait()

	sugarLogger.Info("Shutdown sequence finished.")

	if waitErr != nil {
		if errors.Is(waitErr, context.Canceled) {
			sugarLogger.Info("Shutdown reason: Context canceled (likely due to OS signal).")
		} else {
			sugarLogger.Errorf("Application shutdown finished with unexpected error: %v", waitErr)
		}
	} else {
		sugarLogger.Info("Application shutdown successfully (all components finished without errors).")
	}

	sugarLogger.Info("Application exiting now.")
}

func seedLicenses(ctx context.Context, cfg *config.Config, repo license.Repository, svc *service.LicenseService, logger *zap.Logger) error {
	var (
		licenses []*license.License
		err      error
	)
	if cfg.Seed.File != "" {
		licenses, err = seed.LoadFile(cfg.Seed.File, svc.Now())
	} else {
		licenses, err = seed.DefaultLicenses(svc.Now())
	}
	if err != nil {
		return err
	}
	return seed.Apply(ctx, repo, licenses, logger)
}
