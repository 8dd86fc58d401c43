package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/procopio420/basecommerce/internal/common/config"
	"github.com/procopio420/basecommerce/internal/common/logging"
	"github.com/procopio420/basecommerce/internal/common/metrics"
	"github.com/procopio420/basecommerce/internal/platform/application"
	"github.com/procopio420/basecommerce/internal/platform/infrastructure/postgres"
	"github.com/procopio420/basecommerce/internal/platform/infrastructure/redisstream"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Setup structured logging
	logging.Setup(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logging.Info("Starting outbox relay",
		"environment", cfg.Environment,
		"batch_size", cfg.OutboxBatchSize,
		"poll_interval", cfg.RelayPollInterval.String(),
	)

	pool, err := cfg.NewPostgresPool(ctx)
	if err != nil {
		logging.Error("Failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	rdb, err := cfg.NewRedisClient(ctx)
	if err != nil {
		logging.Error("Failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer rdb.Close()

	// Metrics and health server
	go func() {
		addr := fmt.Sprintf(":%d", cfg.MetricsPort)
		logging.Info("Metrics server listening", "addr", addr)
		if err := metrics.Serve(addr); err != nil {
			logging.Error("Metrics server error", "error", err)
		}
	}()

	store := postgres.NewDataStore(pool)
	transport := redisstream.NewTransport(rdb, cfg.ConsumerBlockTimeout)

	relay := application.NewRelay(store.Outbox(), transport, application.RelayConfig{
		BatchSize:      cfg.OutboxBatchSize,
		PollInterval:   cfg.RelayPollInterval,
		MaxRetries:     cfg.RelayMaxRetries,
		ReclaimTimeout: cfg.RelayReclaimTimeout,
		StreamMaxLen:   cfg.StreamMaxLen,
		Retention:      cfg.OutboxRetention,
	})

	if err := relay.Run(ctx); err != nil {
		logging.Error("Relay stopped with error", "error", err)
		os.Exit(1)
	}

	logging.Info("Relay stopped")
}
