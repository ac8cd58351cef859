package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/stockledger/internal/adjustments"
	"github.com/angelmondragon/stockledger/internal/consumers/fulfillment"
	"github.com/angelmondragon/stockledger/internal/flags"
	"github.com/angelmondragon/stockledger/internal/movements"
	"github.com/angelmondragon/stockledger/internal/stockitems"
	"github.com/angelmondragon/stockledger/pkg/config"
	"github.com/angelmondragon/stockledger/pkg/db"
	"github.com/angelmondragon/stockledger/pkg/kafka"
	"github.com/angelmondragon/stockledger/pkg/keylock"
	"github.com/angelmondragon/stockledger/pkg/logger"
	"github.com/angelmondragon/stockledger/pkg/metrics"
	"github.com/angelmondragon/stockledger/pkg/migrate"
	"github.com/angelmondragon/stockledger/pkg/outbox"
	"github.com/angelmondragon/stockledger/pkg/outbox/idempotency"
	"github.com/angelmondragon/stockledger/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "movement-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "movement-worker"

	logg = logger.New(logger.Options{
		ServiceName: "movement-worker",
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

	handler, err := buildHandler(cfg, logg, dbClient, redisClient)
	if err != nil {
		logg.Error(context.Background(), "failed to build fulfillment consumer", err)
		os.Exit(1)
	}

	consumer, err := kafka.NewConsumer(kafka.ConsumerConfig{
		Brokers: cfg.Kafka.Brokers,
		GroupID: cfg.Kafka.ConsumerGroup,
		Topic:   cfg.Kafka.FulfillmentTopic,
		Workers: cfg.Kafka.Workers,
	}, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create kafka consumer", err)
		os.Exit(1)
	}

	service, err := NewService(ServiceParams{
		Logger:   logg,
		DB:       dbClient,
		Redis:    redisClient,
		Consumer: consumer,
		Handler:  handler,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create movement worker", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"topic":       cfg.Kafka.FulfillmentTopic,
	})
	logg.Info(ctx, "starting movement worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "movement worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "movement worker shutting down gracefully")
}

func buildHandler(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client) (kafka.Handler, error) {
	conn := dbClient.DB()
	m := metrics.NewInventoryMetrics(prometheus.DefaultRegisterer)
	events := outbox.NewService(outbox.NewRepository(conn), logg)

	flagSvc, err := flags.NewService(flags.NewRepository(conn), dbClient, events, m, logg)
	if err != nil {
		return nil, err
	}
	adjSvc, err := adjustments.NewService(adjustments.ServiceParams{
		StockItems:        stockitems.NewRepository(conn),
		Movements:         movements.NewRepository(conn),
		Tx:                dbClient,
		Events:            events,
		Flags:             flagSvc,
		Locks:             keylock.New(),
		Metrics:           m,
		Logger:            logg,
		LowStockThreshold: cfg.Inventory.LowStockThreshold,
	})
	if err != nil {
		return nil, err
	}

	manager, err := idempotency.NewManager(redisClient, cfg.Eventing.OutboxIdempotencyTTL)
	if err != nil {
		return nil, err
	}
	consumer, err := fulfillment.NewConsumer(adjSvc, manager, logg)
	if err != nil {
		return nil, err
	}
	return consumer.Handle, nil
}
