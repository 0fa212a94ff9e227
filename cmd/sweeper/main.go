package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/stockroomhq/stockroom-backend/internal/inventory"
	"github.com/stockroomhq/stockroom-backend/internal/ledger"
	"github.com/stockroomhq/stockroom-backend/internal/reservations"
	"github.com/stockroomhq/stockroom-backend/internal/sweeper"
	"github.com/stockroomhq/stockroom-backend/pkg/config"
	"github.com/stockroomhq/stockroom-backend/pkg/db"
	"github.com/stockroomhq/stockroom-backend/pkg/logger"
	"github.com/stockroomhq/stockroom-backend/pkg/metrics"
	"github.com/stockroomhq/stockroom-backend/pkg/migrate"
	"github.com/stockroomhq/stockroom-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "sweeper"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "sweeper"

	logg = logger.New(logger.Options{
		ServiceName: "sweeper",
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

	invRepo := inventory.NewRepository(dbClient.DB())
	ledgerRepo := ledger.NewRepository(dbClient.DB())
	resRepo := reservations.NewRepository(dbClient.DB())

	inventoryService, err := inventory.NewService(invRepo, ledgerRepo, dbClient, resRepo, redisClient, cfg.Cache, cfg.Retry)
	if err != nil {
		logg.Error(context.Background(), "failed to create inventory service", err)
		os.Exit(1)
	}

	reservationService, err := reservations.NewService(resRepo, nil, ledgerRepo, dbClient, redisClient, cfg.Reservations, cfg.Retry)
	if err != nil {
		logg.Error(context.Background(), "failed to create reservation service", err)
		os.Exit(1)
	}

	sweeperMetrics := metrics.NewSweeperMetrics(prometheus.DefaultRegisterer)

	lock, err := sweeper.NewRedisLock(redisClient, redisClient.LockKey("sweeper"), cfg.Sweeper.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create sweeper lock", err)
		os.Exit(1)
	}

	expireJob, err := sweeper.NewExpireReservationsJob(sweeper.ExpireReservationsJobParams{
		Logger:    logg,
		Due:       resRepo,
		Expirer:   reservationService,
		Metrics:   sweeperMetrics,
		BatchSize: cfg.Sweeper.BatchSize,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create expiration job", err)
		os.Exit(1)
	}

	reconcileJob, err := sweeper.NewReconcileAuditJob(sweeper.ReconcileAuditJobParams{
		Logger:  logg,
		Items:   invRepo,
		Auditor: inventoryService,
		Metrics: sweeperMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create reconcile job", err)
		os.Exit(1)
	}

	service, err := sweeper.NewService(sweeper.ServiceParams{
		Logger:   logg,
		Registry: sweeper.NewRegistry(expireJob, reconcileJob),
		Lock:     lock,
		Metrics:  sweeperMetrics,
		Interval: cfg.Sweeper.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create sweeper service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting sweeper")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "sweeper stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "sweeper shutting down gracefully")
}
