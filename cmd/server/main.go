// Package main is the entry point for the utility server.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gridmesh/csip-core/internal/azuread"
	"github.com/gridmesh/csip-core/internal/broker"
	"github.com/gridmesh/csip-core/internal/config"
	"github.com/gridmesh/csip-core/internal/database"
	"github.com/gridmesh/csip-core/internal/handler"
	"github.com/gridmesh/csip-core/internal/mrid"
	"github.com/gridmesh/csip-core/internal/nmi"
	"github.com/gridmesh/csip-core/internal/notify"
	"github.com/gridmesh/csip-core/internal/repository"
	"github.com/gridmesh/csip-core/internal/scope"
	"github.com/gridmesh/csip-core/internal/sep2"
	"github.com/gridmesh/csip-core/internal/service"
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

	logger.Info("Starting utility server",
		slog.String("environment", cfg.Server.Environment),
		slog.Int("port", cfg.Server.Port),
	)

	tz, err := time.LoadLocation(cfg.Sep2.Timezone)
	if err != nil {
		log.Fatalf("Failed to load timezone %q: %v", cfg.Sep2.Timezone, err)
	}

	// Managed-identity database credential, when configured.
	var passwordProvider database.PasswordProvider
	if cfg.AzureAD.Enabled() {
		provider := azuread.NewTokenProvider(cfg.AzureAD)
		passwordProvider = provider.DatabasePassword
		logger.Info("Managed-identity database authentication enabled")
	}

	// Connect to PostgreSQL
	db, err := database.NewPostgres(cfg.Database, passwordProvider)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	logger.Info("Connected to PostgreSQL")

	// Run migrations
	if err := db.RunMigrations(cfg.Database); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	logger.Info("Database migrations completed")

	// Connect to Redis
	redis, err := database.NewRedis(cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redis.Close()
	logger.Info("Connected to Redis")

	// Repositories
	pool := db.Pool()
	aggregatorRepo := repository.NewAggregatorRepository(pool)
	siteRepo := repository.NewSiteRepository(pool)
	derRepo := repository.NewDERRepository(pool)
	doeRepo := repository.NewDoeRepository(pool)
	logEventRepo := repository.NewLogEventRepository(pool)
	notifyRepo := repository.NewNotifyRepository(pool)
	readingRepo := repository.NewReadingRepository(pool)
	responseRepo := repository.NewResponseRepository(pool)
	runtimeRepo := repository.NewRuntimeConfigRepository(pool)
	subscriptionRepo := repository.NewSubscriptionRepository(pool)
	tariffRepo := repository.NewTariffRepository(pool)
	transmitLogRepo := repository.NewTransmitLogRepository(pool)

	deriver := scope.NewDeriver(aggregatorRepo, siteRepo, cfg.Sep2.AllowDeviceRegistration, scope.DefaultCacheTTL)

	// Notification transport. With RabbitMQ the worker fleet consumes the
	// queue; the in-memory broker runs the dispatcher inside this process.
	var taskBroker broker.Broker
	if cfg.Notify.Enabled {
		if cfg.Notify.RabbitMQBrokerURL != "" {
			taskBroker, err = broker.NewAMQPBroker(cfg.Notify.RabbitMQBrokerURL)
			if err != nil {
				log.Fatalf("Failed to connect to RabbitMQ: %v", err)
			}
			logger.Info("Connected to RabbitMQ")
		} else {
			taskBroker = broker.NewMemoryBroker()
			logger.Info("Using in-process notification broker")
		}
		defer taskBroker.Close()
	}
	publisher := notify.NewPublisher(taskBroker, logger)

	hrefs := sep2.NewHrefs(cfg.Sep2.HrefPrefix)
	codec := mrid.NewCodec(cfg.Sep2.IanaPEN)
	nmiValidator := nmi.New(cfg.NMI.ValidationEnabled, cfg.NMI.ValidationParticipantID)

	// Services
	runtimeSvc := service.NewRuntimeConfigService(runtimeRepo, logger)
	aggregatorSvc := service.NewAggregatorService(aggregatorRepo, deriver, logger)
	registrationSvc := service.NewRegistrationService(siteRepo, deriver, publisher, nmiValidator, cfg.Sep2, logger)
	doeSvc := service.NewDoeService(doeRepo, publisher, cfg.Sep2, logger)
	tariffSvc := service.NewTariffService(tariffRepo, publisher, logger)
	mupSvc := service.NewMupService(readingRepo, siteRepo, publisher, logger)
	subscriptionSvc := service.NewSubscriptionService(subscriptionRepo, aggregatorRepo, publisher, cfg.Sep2.HrefPrefix, logger)
	responseSvc := service.NewResponseService(responseRepo, doeRepo, tariffRepo, codec, logger)

	// Handlers
	h := handler.Handlers{
		DeviceCapability: handler.NewDeviceCapabilityHandler(runtimeSvc, registrationSvc, mupSvc, hrefs, tz),
		EndDevice:        handler.NewEndDeviceHandler(registrationSvc, runtimeSvc, logEventRepo, hrefs),
		DER:              handler.NewDERHandler(derRepo, runtimeSvc, hrefs),
		DERProgram:       handler.NewDERProgramHandler(doeSvc, tariffSvc, runtimeSvc, hrefs, codec),
		Pricing:          handler.NewPricingHandler(tariffSvc, hrefs, codec, tz),
		MirrorUsagePoint: handler.NewMirrorUsagePointHandler(mupSvc, runtimeSvc, hrefs),
		Subscription:     handler.NewSubscriptionHandler(subscriptionSvc, doeSvc, hrefs),
		Response:         handler.NewResponseHandler(responseSvc, registrationSvc, hrefs, codec),
		Admin:            handler.NewAdminHandler(aggregatorSvc, registrationSvc, doeSvc, tariffSvc, runtimeSvc, siteRepo, doeRepo, transmitLogRepo),
		Health:           handler.NewHealthHandler(db, redis),
	}
	router := handler.NewRouter(cfg, deriver, redis, logger, h)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  time.Minute,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Server listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	// In-process dispatcher for single-node deployments without RabbitMQ.
	if cfg.Notify.Enabled && cfg.Notify.RabbitMQBrokerURL == "" {
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
		g.Go(func() error {
			logger.Info("In-process notification dispatcher started")
			if err := taskBroker.Consume(gctx, dispatcher.HandleTask); err != nil && err != context.Canceled {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		log.Fatalf("Server error: %v", err)
	}
	logger.Info("Server stopped gracefully")
}
