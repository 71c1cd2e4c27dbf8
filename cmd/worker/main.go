package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/theopen-institute/payroll/internal/app"
	"github.com/theopen-institute/payroll/internal/notify"
	"github.com/theopen-institute/payroll/internal/observability"
	"github.com/theopen-institute/payroll/internal/payroll/ledger"
	"github.com/theopen-institute/payroll/internal/payroll/slips"
	"github.com/theopen-institute/payroll/internal/payroll/voucher"
	"github.com/theopen-institute/payroll/internal/platform/db"
	"github.com/theopen-institute/payroll/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}

	progress := jobs.NewProgressTracker(redisClient, logger)

	mailer := notify.NewMailer(notify.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		User:     cfg.SMTPUser,
		Password: cfg.SMTPPassword,
		UseTLS:   cfg.SMTPUseTLS,
		From:     cfg.SMTPFrom,
	})
	notifier := notify.NewPayslipNotifier(mailer, notify.NewDirectory(pool), cfg.EmailPayslips, logger)

	calendar, err := cfg.FiscalCalendar()
	if err != nil {
		logger.Error("fiscal calendar", slog.Any("error", err))
		os.Exit(1)
	}

	slipRepo := slips.NewRepository(pool)
	poster := ledger.NewPoster(ledger.NewRepository(pool), logger)
	// Nil dispatcher: the worker always runs batches inline.
	voucherService := voucher.NewService(voucher.NewRepository(pool), slipRepo, poster,
		nil, progress, notifier, calendar, cfg.BatchThreshold, logger).
		WithMetrics(observability.NewMetrics())

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Runner:    voucherService,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("payroll worker started", "redis", cfg.RedisAddr)
	if err := worker.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("payroll worker stopped")
}
