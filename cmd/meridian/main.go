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

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"github.com/meridian-erp/meridian-pay/internal/app"
	"github.com/meridian-erp/meridian-pay/internal/batchpay"
	"github.com/meridian-erp/meridian-pay/internal/invoices"
	"github.com/meridian-erp/meridian-pay/internal/ippay"
	"github.com/meridian-erp/meridian-pay/internal/observability"
	"github.com/meridian-erp/meridian-pay/internal/platform/cache"
	"github.com/meridian-erp/meridian-pay/internal/platform/db"
	"github.com/meridian-erp/meridian-pay/internal/terms"
	"github.com/meridian-erp/meridian-pay/jobs"
	"github.com/meridian-erp/meridian-pay/migrations"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	// Local development convenience; missing .env is fine.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	if err := db.Migrate(migrations.Files, cfg.PGDSN); err != nil {
		logger.Error("run migrations", slog.Any("error", err))
		os.Exit(1)
	}

	dbpool, err := db.New(ctx, cfg.PGDSN, db.PoolConfig{
		MaxConns:        cfg.PGMaxConns,
		MinConns:        cfg.PGMinConns,
		MaxConnLifetime: cfg.PGMaxConnLifetime,
		MaxConnIdleTime: cfg.PGMaxConnIdleTime,
	})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

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

	metrics := observability.NewMetrics()

	invoiceRepo := invoices.NewRepository(dbpool)
	termsRepo := terms.NewRepository(dbpool)
	termsService := terms.NewService(termsRepo, redisClient, cfg.TermsCacheTTL)

	wizardStore := batchpay.NewRedisStore(redisClient, cfg.WizardTTL)
	batchService := batchpay.NewService(invoiceRepo, termsService, wizardStore, logger)
	batchHandler := batchpay.NewHandler(logger, batchService)

	ippayRepo := ippay.NewRepository(dbpool)
	ippayClient := ippay.NewClient(cfg.IPpayTimeout)
	ippayService := ippay.NewService(ippayRepo, ippayClient, metrics, logger)
	ippayHandler := ippay.NewHandler(logger, ippayService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	queueClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init queue client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := queueClient.Close(); err != nil {
			logger.Warn("queue client close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, queueClient, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		BatchPayHandler: batchHandler,
		IPpayHandler:    ippayHandler,
		JobHandler:      jobHandler,
		Metrics:         metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
