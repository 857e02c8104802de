// Package main is the entry point for the notification worker. It consumes
// check and transmit tasks from RabbitMQ and delivers subscription
// notifications to aggregator endpoints.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gridmesh/csip-core/internal/azuread"
	"github.com/gridmesh/csip-core/internal/broker"
	"github.com/gridmesh/csip-core/internal/config"
	"github.com/gridmesh/csip-core/internal/database"
	"github.com/gridmesh/csip-core/internal/mrid"
	"github.com/gridmesh/csip-core/internal/notify"
	"github.com/gridmesh/csip-core/internal/repository"
	"github.com/gridmesh/csip-core/internal/sep2"
)

func main() {
	// Setup structured logger
	logLevel := slog.LevelInfo
	if os.Getenv("DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if !cfg.Notify.Enabled {
		log.Fatal("Notifications are disabled; nothing to do")
	}
	if cfg.Notify.RabbitMQBrokerURL == "" {
		log.Fatal("The worker requires a RabbitMQ broker URL; in-memory mode runs inside the API server")
	}

	tz, err := time.LoadLocation(cfg.Sep2.Timezone)
	if err != nil {
		log.Fatalf("Failed to load timezone %q: %v", cfg.Sep2.Timezone, err)
	}

	// Managed-identity database credential, when configured.
	var passwordProvider database.PasswordProvider
	if cfg.AzureAD.Enabled() {
		provider := azuread.NewTokenProvider(cfg.AzureAD)
		passwordProvider = provider.DatabasePassword
	}

	// Connect to PostgreSQL. Migrations belong to the API server.
	db, err := database.NewPostgres(cfg.Database, passwordProvider)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	logger.Info("Connected to PostgreSQL")

	taskBroker, err := broker.NewAMQPBroker(cfg.Notify.RabbitMQBrokerURL)
	if err != nil {
		log.Fatalf("Failed to connect to RabbitMQ: %v", err)
	}
	defer taskBroker.Close()
	logger.Info("Connected to RabbitMQ")

	pool := db.Pool()
	notifyRepo := repository.NewNotifyRepository(pool)
	subscriptionRepo := repository.NewSubscriptionRepository(pool)
	doeRepo := repository.NewDoeRepository(pool)
	transmitLogRepo := repository.NewTransmitLogRepository(pool)

	hrefs := sep2.NewHrefs(cfg.Sep2.HrefPrefix)
	codec := mrid.NewCodec(cfg.Sep2.IanaPEN)

	transmitter := notify.NewTransmitter(cfg.Notify.TransmitTimeout, transmitLogRepo, taskBroker, logger)
	dispatcher := notify.NewDispatcher(
		notifyRepo,
		subscriptionRepo,
		doeRepo,
		notify.NewMatcher(tz),
		notify.NewPayloadBuilder(hrefs, codec),
		hrefs,
		transmitter,
		taskBroker,
		logger,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Notification worker consuming")
		if err := taskBroker.Consume(gctx, dispatcher.HandleTask); err != nil && err != context.Canceled {
			return err
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("Worker error: %v", err)
	}
	logger.Info("Worker stopped gracefully")
}
