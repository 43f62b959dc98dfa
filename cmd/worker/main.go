package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"github.com/meridian-erp/meridian-pay/internal/app"
	"github.com/meridian-erp/meridian-pay/internal/ippay"
	jobmetrics "github.com/meridian-erp/meridian-pay/internal/jobs"
	"github.com/meridian-erp/meridian-pay/internal/platform/db"
	"github.com/meridian-erp/meridian-pay/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, db.PoolConfig{
		MaxConns:        cfg.PGMaxConns,
		MinConns:        cfg.PGMinConns,
		MaxConnLifetime: cfg.PGMaxConnLifetime,
		MaxConnIdleTime: cfg.PGMaxConnIdleTime,
	})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	ippayRepo := ippay.NewRepository(pool)
	ippayClient := ippay.NewClient(cfg.IPpayTimeout)
	ippayService := ippay.NewService(ippayRepo, ippayClient, nil, logger)

	expiryTask, err := jobs.NewTokenExpiryScanTask(time.Now().UTC())
	if err != nil {
		logger.Error("build expiry scan task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTokenExpiryScan, Handler: jobs.NewTokenExpiryScanHandler(ippayService, logger, jobmetrics.NewMetrics(nil))},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "45 1 * * *", Task: expiryTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
