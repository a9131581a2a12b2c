package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hmardones/ticketero-backend/internal/cron"
	"github.com/hmardones/ticketero-backend/internal/messaging"
	"github.com/hmardones/ticketero-backend/internal/recovery"
	"github.com/hmardones/ticketero-backend/pkg/config"
	"github.com/hmardones/ticketero-backend/pkg/db"
	"github.com/hmardones/ticketero-backend/pkg/logger"
	"github.com/hmardones/ticketero-backend/pkg/metrics"
	"github.com/hmardones/ticketero-backend/pkg/migrate"
	"github.com/hmardones/ticketero-backend/pkg/outbox"
	"github.com/hmardones/ticketero-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	registry, err := buildRegistry(cfg, logg, dbClient)
	if err != nil {
		logg.Error(context.Background(), "failed to build job registry", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Locks: func(task string) (cron.Lock, error) {
			return cron.NewRedisLock(redisClient, lockKey(cfg.App.Env, task), 0)
		},
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func buildRegistry(cfg *config.Config, logg *logger.Logger, dbClient *db.Client) (*cron.Registry, error) {
	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg, cfg.Outbox.MaxRetries)

	recoveryService, err := recovery.NewService(recovery.ServiceParams{
		Logger:           logg,
		DB:               dbClient,
		Repository:       recovery.NewRepository(),
		Outbox:           outboxService,
		HeartbeatTimeout: cfg.Recovery.HeartbeatTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("recovery service: %w", err)
	}

	sender, err := messaging.NewTelegramClient(cfg.Telegram)
	if err != nil {
		return nil, fmt.Errorf("telegram client: %w", err)
	}
	messagingService, err := messaging.NewService(messaging.ServiceParams{
		Logger:            logg,
		DB:                dbClient,
		Repository:        messaging.NewRepository(dbClient.DB()),
		Sender:            sender,
		PositionThreshold: cfg.Notifications.PositionThreshold,
		MaxSendAttempts:   cfg.Notifications.MaxSendAttempts,
	})
	if err != nil {
		return nil, fmt.Errorf("messaging service: %w", err)
	}

	recoveryJob, err := cron.NewRecoveryJob(cron.RecoveryJobParams{
		Logger:  logg,
		Monitor: recoveryService,
	})
	if err != nil {
		return nil, fmt.Errorf("recovery job: %w", err)
	}
	upcomingJob, err := cron.NewNotificationUpcomingJob(cron.NotificationUpcomingJobParams{
		Logger:    logg,
		Scheduler: messagingService,
	})
	if err != nil {
		return nil, fmt.Errorf("notification upcoming job: %w", err)
	}
	retryJob, err := cron.NewNotificationRetryJob(cron.NotificationRetryJobParams{
		Logger:    logg,
		Scheduler: messagingService,
	})
	if err != nil {
		return nil, fmt.Errorf("notification retry job: %w", err)
	}

	registry := cron.NewRegistry()
	registry.Register(recoveryJob, cfg.Recovery.CheckInterval)
	registry.Register(upcomingJob, cfg.Notifications.UpcomingInterval)
	registry.Register(retryJob, cfg.Notifications.RetryInterval)
	return registry, nil
}

func lockKey(env, task string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf("ticketero:cron:%s:%s", env, task)
}
