package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"

	"medkit/internal/analytics"
	"medkit/internal/caching"
	"medkit/internal/config"
	"medkit/internal/handlers"
	"medkit/internal/jobs"
	"medkit/internal/jobs/background"
	"medkit/internal/logger"
	"medkit/internal/middleware"
	"medkit/internal/models"
	"medkit/internal/repositories"
	"medkit/internal/services"
	"medkit/migrations"
	"medkit/pkg/database"
)

const version = "1.0.0"

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := logger.Init(cfg.Logger.Level, cfg.Logger.AsJSON); err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := database.NewPool(ctx, cfg.Postgres.DSN(), cfg.Postgres.MaxConns)
	if err != nil {
		return err
	}
	defer pool.Close()

	if cfg.Postgres.RunMigrations {
		if err := database.NewMigrator(pool, migrations.FS).Up(ctx); err != nil {
			return err
		}
	}

	store := repositories.NewStore(pool)
	cacheSvc := caching.NewRedisCacheService(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)

	objects, err := services.NewMinioService(cfg.Minio.Endpoint, cfg.Minio.AccessKey, cfg.Minio.SecretKey, cfg.Minio.UseSSL)
	if err != nil {
		return err
	}
	if err := objects.EnsureBucketExists(ctx, cfg.Minio.ExportBucket); err != nil {
		// Exports fail until storage comes back; the lifecycle API does not depend on it.
		logger.Warn(ctx, "export bucket unavailable", logger.String("bucket", cfg.Minio.ExportBucket), logger.ErrorF(err))
	}

	opts := []services.Option{
		services.WithTimeouts(cfg.HTTP.DBReadTimeout, cfg.HTTP.DBWriteTimeout),
		services.WithDiscardRateCache(cacheSvc),
	}
	componentSvc := services.NewComponentService(store, opts...)
	kitSvc := services.NewKitService(store, opts...)
	distributionSvc := services.NewDistributionService(store, opts...)
	disassemblySvc := services.NewDisassemblyService(store, opts...)
	usageSvc := services.NewUsageService(store, opts...)
	distributorSvc := services.NewDistributorService(store, cacheSvc, opts...)
	auditSvc := services.NewAuditLogsService(store, opts...)

	discardRates := analytics.NewDiscardRateService(store, cacheSvc, cfg.Jobs.DiscardRateRefresh, cfg.HTTP.DBReadTimeout, nil)
	exporter := jobs.NewSnapshotExporter(store, objects, cfg.Minio.ExportBucket, cfg.Minio.URLExpiry, nil)

	var scheduler *background.JobScheduler
	if cfg.Jobs.Enabled {
		format, err := models.ParseExportFormat(cfg.Jobs.SnapshotExportFormat)
		if err != nil {
			return err
		}
		scheduler, err = background.NewJobScheduler(background.Config{
			RefreshInterval: cfg.Jobs.DiscardRateRefresh,
			RefreshMonths:   cfg.Jobs.DiscardRateMonths,
			ExportCron:      cfg.Jobs.SnapshotExportCron,
			ExportFormat:    format,
		}, discardRates, exporter)
		if err != nil {
			return err
		}
		scheduler.Start()
		defer func() {
			if err := scheduler.Stop(); err != nil {
				logger.Error(context.Background(), "scheduler shutdown failed", logger.ErrorF(err))
			}
		}()
	}

	var keyFunc jwt.Keyfunc
	if cfg.JWT.JWKSURL != "" {
		jwks, err := middleware.NewJWKSKeyfunc(ctx, cfg.JWT.JWKSURL)
		if err != nil {
			return err
		}
		defer jwks.EndBackground()
		keyFunc = jwks.Keyfunc
	}

	checks := map[string]handlers.Pinger{
		"database": pool,
		"redis":    cacheSvc,
		"storage": handlers.PingerFunc(func(ctx context.Context) error {
			return objects.Ping(ctx, cfg.Minio.ExportBucket)
		}),
	}
	var jobStatus handlers.JobStatusReporter
	if scheduler != nil {
		jobStatus = scheduler
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(echoMiddleware.Logger())
	e.Use(echoMiddleware.Recover())
	e.Use(echoMiddleware.RemoveTrailingSlash())

	handlers.RegisterRoutes(e, handlers.Handlers{
		Components:   handlers.NewComponentHandlers(componentSvc, usageSvc),
		Kits:         handlers.NewKitHandlers(kitSvc, distributionSvc, disassemblySvc),
		Distributors: handlers.NewDistributorHandlers(distributorSvc),
		Analytics:    handlers.NewAnalyticsHandlers(discardRates),
		AuditLogs:    handlers.NewAuditLogsHandlers(auditSvc),
		Exports:      handlers.NewExportHandlers(exporter),
		Health:       handlers.NewHealthHandlers(version, checks, jobStatus),
	}, middleware.JWTAuth(cfg.JWT.Secret, keyFunc))

	e.Server.ReadTimeout = cfg.HTTP.ReadTimeout

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "medkit server starting", logger.String("version", version), logger.String("addr", cfg.HTTP.Address()))
		if err := e.Start(cfg.HTTP.Address()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	logger.Info(context.Background(), "shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
