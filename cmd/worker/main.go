package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/bsm/redislock"
	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/expensepay/internal/app"
	jobmetrics "github.com/odyssey-erp/expensepay/internal/jobs"
	"github.com/odyssey-erp/expensepay/internal/platform/cache"
	"github.com/odyssey-erp/expensepay/internal/platform/db"
	"github.com/odyssey-erp/expensepay/jobs"
)

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
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	services := app.NewServices(app.ServiceDeps{Pool: pool, Redis: redisClient, Config: cfg, Logger: logger})
	locker := redislock.New(redisClient)
	metrics := jobmetrics.NewMetrics(nil)

	correctionJob := jobs.NewCostCenterUpdateJob(services.Corrector, locker, logger, metrics)
	correctionJob.LockTTL = cfg.CorrectionLockTTL
	syncJob := jobs.NewGLSyncJob(services.Scanner, locker, logger, metrics)
	integrityJob := jobs.NewGLIntegrityJob(services.Ledger, logger, metrics)

	syncTask, err := jobs.NewGLSyncTask(jobs.GLSyncPayload{RequestedBy: "scheduler"})
	if err != nil {
		logger.Error("build gl sync task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskCostCenterUpdate, Handler: correctionJob.Handle},
			{Type: jobs.TaskCostCenterUpdateSingle, Handler: correctionJob.HandleSingle},
			{Type: jobs.TaskGLSync, Handler: syncJob.Handle},
			{Type: jobs.TaskGLIntegrity, Handler: integrityJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.GLSyncCron, Task: syncTask, Options: []asynq.Option{
				asynq.Queue(jobs.QueueLong), asynq.Timeout(jobs.GLSyncTimeout), asynq.MaxRetry(1),
			}},
			{Spec: cfg.GLIntegrityCron, Task: jobs.NewGLIntegrityTask(), Options: []asynq.Option{
				asynq.Queue(jobs.QueueDefault), asynq.MaxRetry(3),
			}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("worker starting", slog.Int("concurrency", cfg.WorkerConcurrency))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
