package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/coralcart/loyalty-backend/api/routes"
	"github.com/coralcart/loyalty-backend/internal/checkoutguard"
	"github.com/coralcart/loyalty-backend/internal/ledger"
	"github.com/coralcart/loyalty-backend/internal/pointconfig"
	"github.com/coralcart/loyalty-backend/internal/redemption"
	"github.com/coralcart/loyalty-backend/pkg/commerce"
	"github.com/coralcart/loyalty-backend/pkg/config"
	"github.com/coralcart/loyalty-backend/pkg/db"
	"github.com/coralcart/loyalty-backend/pkg/lock"
	"github.com/coralcart/loyalty-backend/pkg/logger"
	"github.com/coralcart/loyalty-backend/pkg/metrics"
	"github.com/coralcart/loyalty-backend/pkg/migrate"
	"github.com/coralcart/loyalty-backend/pkg/redis"
)

const shutdownGrace = 15 * time.Second

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

	commerceClient, err := commerce.NewClient(cfg.Commerce)
	if err != nil {
		logg.Error(context.Background(), "failed to create commerce client", err)
		os.Exit(1)
	}

	lockManager, err := lock.NewManager(redisClient)
	if err != nil {
		logg.Error(context.Background(), "failed to create lock manager", err)
		os.Exit(1)
	}

	ledgerService, err := ledger.NewService(ledger.NewRepository(dbClient.DB()), dbClient, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create ledger service", err)
		os.Exit(1)
	}

	configService, err := pointconfig.NewService(pointconfig.NewRepository(dbClient.DB()), dbClient, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create point config service", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	sagaMetrics := metrics.NewSagaMetrics(registry)

	redemptionService, err := redemption.NewService(redemption.Options{
		Commerce: commerceClient,
		Ledger:   ledgerService,
		Configs:  configService,
		Locks:    lockManager,
		LockCfg:  cfg.Lock,
		Metrics:  sagaMetrics,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create redemption service", err)
		os.Exit(1)
	}

	guard, err := checkoutguard.NewGuard(commerceClient, ledgerService, configService, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create checkout guard", err)
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
		Handler: routes.NewRouter(routes.Deps{
			Config:     cfg,
			Logger:     logg,
			DB:         dbClient,
			Redis:      redisClient,
			Ledger:     ledgerService,
			Configs:    configService,
			Redemption: redemptionService,
			Guard:      guard,
			Commerce:   commerceClient,
			Registry:   registry,
		}),
	}

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-stopCtx.Done():
		logg.Info(ctx, "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "error during shutdown", err)
		}
	}
}
