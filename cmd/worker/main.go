package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/smetaflow/smetaflow/internal/app"
	"github.com/smetaflow/smetaflow/internal/catalog"
	"github.com/smetaflow/smetaflow/internal/estimates"
	jobmetrics "github.com/smetaflow/smetaflow/internal/jobs"
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
		slog.Default().Info("test mode detected, skipping worker startup")
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
		logger.Error("connect database", slog.Any("error", err))
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

	estimatesRepo := estimates.NewRepository(pool)
	estimatesService := estimates.NewService(estimatesRepo, catalogSource{service: catalogService})

	sweepJob := jobs.NewExpireSweepJob(estimatesService, logger, jobmetrics.NewMetrics(nil))
	sweepTask, err := jobs.NewExpireSweepTask(jobs.ExpireSweepPayload{})
	if err != nil {
		logger.Error("build expire sweep task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskEstimateExpireSweep, Handler: sweepJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.ExpireSweepCron, Task: sweepTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
