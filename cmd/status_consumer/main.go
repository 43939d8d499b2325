package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"statusflow/internal/cache"
	"statusflow/internal/config"
	"statusflow/internal/db"
	"statusflow/internal/interfaces"
	"statusflow/internal/kafka"
	"statusflow/internal/metrics"
	"statusflow/internal/server"
	"statusflow/internal/service"
	"statusflow/internal/telemetry"
)

func main() {
	configPath := "config/config.yml"
	if env := os.Getenv("CONFIG_PATH"); env != "" {
		configPath = env
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Printf("Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	providers, err := telemetry.InitProviders(ctx, cfg.Telemetry)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize telemetry")
	}

	recorder, err := metrics.NewRecorder(providers.MeterProvider)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize metrics")
	}
	tracer := providers.TracerProvider.Tracer("statusflow/consumer")

	dbLogger := logger.With().Str("component", "database").Logger()
	database, err := db.NewDBWithConfig(ctx, cfg, &dbLogger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize database")
	}

	dlqLogger := logger.With().Str("component", "dead-letter-store").Logger()
	var store interfaces.DeadLetterStore
	if cfg.DeadLetter.Store == "memory" {
		logger.Warn().Msg("Dead-letter records are kept in memory and will be lost on restart")
		store = kafka.NewInMemoryDeadLetterStore(&dlqLogger)
	} else {
		store = db.NewDeadLetterRepo(database)
	}

	cacheLogger := logger.With().Str("component", "suppression-cache").Logger()
	suppression, err := cache.NewLRUManager(cfg.Suppression.Capacity, cfg.Suppression.TTL, &cacheLogger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize suppression cache")
	}

	serviceLogger := logger.With().Str("component", "status-service").Logger()
	statusService := service.NewStatusService(
		db.NewStatusRepo(database), suppression, cfg.CircuitBreaker, &serviceLogger,
	)
	registry := service.NewRegistry(
		service.NewEmailHandler(statusService),
		service.NewSMSHandler(statusService),
	)

	brokers := kafka.ParseBrokers(cfg.Kafka.Brokers)
	publisherLogger := logger.With().Str("component", "retry-publisher").Logger()
	publisher := kafka.NewPublisher(brokers, cfg.Kafka.PublishAttempts, &publisherLogger)

	consumers, err := buildConsumers(cfg, brokers, registry, publisher, store, recorder, tracer, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize consumers")
	}

	serverLogger := logger.With().Str("component", "http-server").Logger()
	httpServer := server.New(cfg, store, &serverLogger)

	errChan := make(chan error, 1)
	go func() {
		if err := httpServer.Start(); err != nil {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	for _, c := range consumers {
		if err := c.Start(ctx); err != nil {
			logger.Fatal().Err(err).Str("topic", c.Topic()).Msg("Failed to start consumer")
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info().Str("signal", sig.String()).Msg("Shutting down")
	case err := <-errChan:
		logger.Error().Err(err).Msg("Shutting down after component failure")
	}

	// per-task drain timeouts apply inside each consumer; this bounds the whole shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.DrainTimeout()+30*time.Second)
	defer shutdownCancel()

	g, gCtx := errgroup.WithContext(shutdownCtx)
	for _, c := range consumers {
		g.Go(func() error {
			if err := c.Stop(gCtx); err != nil {
				return fmt.Errorf("failed to stop consumer for %s: %w", c.Topic(), err)
			}
			return nil
		})
	}
	g.Go(func() error {
		return httpServer.Stop(gCtx)
	})
	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("Some components failed to stop gracefully")
	}

	if err := publisher.Close(); err != nil {
		logger.Error().Err(err).Msg("Failed to close retry publisher")
	}
	database.Close()
	if err := providers.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Failed to flush telemetry")
	}

	cancel()
}
