package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/hmardones/ticketero-backend/api/routes"
	"github.com/hmardones/ticketero-backend/internal/advisors"
	"github.com/hmardones/ticketero-backend/internal/messaging"
	"github.com/hmardones/ticketero-backend/internal/recovery"
	"github.com/hmardones/ticketero-backend/internal/tickets"
	"github.com/hmardones/ticketero-backend/pkg/config"
	"github.com/hmardones/ticketero-backend/pkg/db"
	"github.com/hmardones/ticketero-backend/pkg/logger"
	"github.com/hmardones/ticketero-backend/pkg/migrate"
	"github.com/hmardones/ticketero-backend/pkg/outbox"
)

const shutdownTimeout = 10 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "api"

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	handler, err := buildHandler(cfg, logg, dbClient)
	if err != nil {
		logg.Error(context.Background(), "failed to wire services", err)
		os.Exit(1)
	}

	server := &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"port":        cfg.App.Port,
	})

	errCh := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logg.Error(ctx, "forced shutdown", err)
		os.Exit(1)
	}
	logg.Info(ctx, "api server shutting down gracefully")
}

func buildHandler(cfg *config.Config, logg *logger.Logger, dbClient *db.Client) (http.Handler, error) {
	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg, cfg.Outbox.MaxRetries)
	advisorRepo := advisors.NewRepository(dbClient.DB())

	advisorService, err := advisors.NewService(advisors.ServiceParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: advisorRepo,
	})
	if err != nil {
		return nil, fmt.Errorf("advisor service: %w", err)
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

	ticketService, err := tickets.NewService(tickets.ServiceParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: tickets.NewRepository(dbClient.DB()),
		Advisors:   advisorRepo,
		Outbox:     outboxService,
		Messages:   messagingService,
	})
	if err != nil {
		return nil, fmt.Errorf("ticket service: %w", err)
	}

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

	return routes.NewRouter(logg, dbClient, ticketService, advisorService, recoveryService), nil
}
