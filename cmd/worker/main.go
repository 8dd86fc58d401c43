package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/procopio420/basecommerce/internal/common/config"
	"github.com/procopio420/basecommerce/internal/common/logging"
	"github.com/procopio420/basecommerce/internal/common/metrics"
	"github.com/procopio420/basecommerce/internal/engines/delivery"
	"github.com/procopio420/basecommerce/internal/engines/sales"
	"github.com/procopio420/basecommerce/internal/engines/stock"
	"github.com/procopio420/basecommerce/internal/platform/application"
	"github.com/procopio420/basecommerce/internal/platform/domain"
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

	consumerName := cfg.ConsumerName
	if consumerName == "" {
		host, _ := os.Hostname()
		consumerName = fmt.Sprintf("worker-%s-%d", host, os.Getpid())
	}

	logging.Info("Starting engine worker",
		"environment", cfg.Environment,
		"group", cfg.ConsumerGroup,
		"consumer", consumerName,
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

	// Wire every engine to the kinds it projects. Registration order is
	// dispatch order within a kind.
	registry := application.NewRegistry()
	mustRegister(registry, domain.KindQuoteConverted, sales.NewProjector())
	mustRegister(registry, domain.KindQuoteConverted, delivery.NewProjector())
	mustRegister(registry, domain.KindSaleRecorded, sales.NewProjector())
	mustRegister(registry, domain.KindSaleRecorded, stock.NewProjector())
	mustRegister(registry, domain.KindOrderStatusChanged, delivery.NewProjector())
	registry.Freeze()

	consumer := application.NewConsumer(store, store.Ledger(), store.DeadLetters(), transport, registry, application.ConsumerConfig{
		Group:           cfg.ConsumerGroup,
		Name:            consumerName,
		MaxAttempts:     cfg.ConsumerMaxAttempts,
		HandlerDeadline: cfg.HandlerDeadline,
		ClaimMinIdle:    cfg.ConsumerClaimIdle,
	})

	// One consumer loop per subscribed kind.
	var wg sync.WaitGroup
	for _, kind := range registry.Kinds() {
		wg.Add(1)
		go func(kind domain.EventKind) {
			defer wg.Done()
			if err := consumer.Run(ctx, kind); err != nil {
				logging.Error("Consumer stopped with error", "kind", kind.String(), "error", err)
			}
		}(kind)
	}

	wg.Wait()
	logging.Info("Worker stopped")
}

func mustRegister(r *application.Registry, kind domain.EventKind, h domain.Handler) {
	if err := r.Register(kind, h); err != nil {
		logging.Error("Handler registration failed", "kind", kind.String(), "error", err)
		os.Exit(1)
	}
}
