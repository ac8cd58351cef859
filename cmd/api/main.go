package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/stockledger/api/routes"
	"github.com/angelmondragon/stockledger/internal/adjustments"
	"github.com/angelmondragon/stockledger/internal/cart"
	"github.com/angelmondragon/stockledger/internal/flags"
	"github.com/angelmondragon/stockledger/internal/movements"
	"github.com/angelmondragon/stockledger/internal/stats"
	"github.com/angelmondragon/stockledger/internal/stockitems"
	"github.com/angelmondragon/stockledger/pkg/config"
	"github.com/angelmondragon/stockledger/pkg/db"
	"github.com/angelmondragon/stockledger/pkg/keylock"
	"github.com/angelmondragon/stockledger/pkg/logger"
	"github.com/angelmondragon/stockledger/pkg/metrics"
	"github.com/angelmondragon/stockledger/pkg/migrate"
	"github.com/angelmondragon/stockledger/pkg/outbox"
	"github.com/angelmondragon/stockledger/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

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

	services, err := buildServices(cfg, logg, dbClient, redisClient)
	if err != nil {
		logg.Error(context.Background(), "failed to build services", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(cfg, logg, routes.Infra{
			DB:       dbClient,
			Redis:    redisClient,
			Gatherer: prometheus.DefaultGatherer,
		}, services),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-sigCtx.Done():
		logg.Info(ctx, "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "graceful shutdown failed", err)
		}
	}
}

func buildServices(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client) (routes.Services, error) {
	conn := dbClient.DB()
	m := metrics.NewInventoryMetrics(prometheus.DefaultRegisterer)
	events := outbox.NewService(outbox.NewRepository(conn), logg)
	locks := keylock.New()
	items := stockitems.NewRepository(conn)
	moves := movements.NewRepository(conn)

	flagSvc, err := flags.NewService(flags.NewRepository(conn), dbClient, events, m, logg)
	if err != nil {
		return routes.Services{}, err
	}

	cartSvc, err := cart.NewService(cart.ServiceParams{
		Carts:             cart.NewRepository(conn),
		StockItems:        items,
		Movements:         moves,
		Tx:                dbClient,
		Events:            events,
		Flags:             flagSvc,
		Locks:             locks,
		Metrics:           m,
		Logger:            logg,
		LowStockThreshold: cfg.Inventory.LowStockThreshold,
	})
	if err != nil {
		return routes.Services{}, err
	}

	adjSvc, err := adjustments.NewService(adjustments.ServiceParams{
		StockItems:        items,
		Movements:         moves,
		Tx:                dbClient,
		Events:            events,
		Flags:             flagSvc,
		Locks:             locks,
		Metrics:           m,
		Logger:            logg,
		LowStockThreshold: cfg.Inventory.LowStockThreshold,
	})
	if err != nil {
		return routes.Services{}, err
	}

	statsParams := stats.ServiceParams{
		Items:             items,
		Movements:         moves,
		LowStockThreshold: cfg.Inventory.LowStockThreshold,
		Logger:            logg,
	}
	if cfg.FeatureFlags.StatsCache {
		statsParams.Cache = redisClient
		statsParams.CacheTTL = cfg.Inventory.StatsCacheTTL
	}
	statsSvc, err := stats.NewService(statsParams)
	if err != nil {
		return routes.Services{}, err
	}

	return routes.Services{
		Cart:        cartSvc,
		Adjustments: adjSvc,
		Movements:   moves,
		Reconciler:  movements.NewReconciler(items, moves),
		Stats:       statsSvc,
		Flags:       flagSvc,
	}, nil
}
