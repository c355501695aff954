package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/smetaflow/smetaflow/internal/app"
	"github.com/smetaflow/smetaflow/internal/catalog"
	"github.com/smetaflow/smetaflow/internal/estimates"
	"github.com/smetaflow/smetaflow/internal/observability"
	"github.com/smetaflow/smetaflow/internal/platform/cache"
	"github.com/smetaflow/smetaflow/internal/platform/db"
	"github.com/smetaflow/smetaflow/jobs"
)

// catalogSource adapts the catalog service to the estimates catalog port.
type catalogSource struct {
	service *catalog.Service
}

func (c catalogSource) Lookup(ctx context.Context, materialID uuid.UUID) (estimates.MaterialRecord, error) {
	material, err := c.service.Lookup(ctx, materialID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return estimates.MaterialRecord{}, estimates.ErrCatalogNotFound
		}
		return estimates.MaterialRecord{}, err
	}
	if !material.IsActive {
		return estimates.MaterialRecord{}, estimates.ErrCatalogNotFound
	}
	return estimates.MaterialRecord{
		Name:      material.Name,
		Unit:      material.Unit,
		Category:  material.Category,
		UnitPrice: material.UnitPrice,
	}, nil
}

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, catalog cache disabled", slog.Any("error", err))
		redisClient = nil
	}
	defer func() {
		if redisClient == nil {
			return
		}
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	catalogRepo := catalog.NewRepository(pool)
	catalogCache := catalog.NewCache(redisClient, cfg.CatalogCacheTTL)
	catalogService := catalog.NewService(catalogRepo, catalogCache)
	catalogHandler := catalog.NewHandler(logger, catalogService)

	estimatesRepo := estimates.NewRepository(pool)
	estimatesService := estimates.NewService(estimatesRepo, catalogSource{service: catalogService})
	estimatesHandler := estimates.NewHandler(logger, estimatesService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)
	metrics := observability.NewMetrics()

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		EstimatesHandler: estimatesHandler,
		CatalogHandler:   catalogHandler,
		JobHandler:       jobHandler,
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
