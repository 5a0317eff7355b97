package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"github.com/adeyemiloye/chowhub-backend/internal/audit"
	"github.com/adeyemiloye/chowhub-backend/internal/cron"
	"github.com/adeyemiloye/chowhub-backend/internal/inventory"
	"github.com/adeyemiloye/chowhub-backend/internal/locks"
	"github.com/adeyemiloye/chowhub-backend/internal/notifications"
	"github.com/adeyemiloye/chowhub-backend/internal/orders"
	"github.com/adeyemiloye/chowhub-backend/internal/payments"
	"github.com/adeyemiloye/chowhub-backend/internal/reconcile"
	"github.com/adeyemiloye/chowhub-backend/pkg/config"
	"github.com/adeyemiloye/chowhub-backend/pkg/db"
	"github.com/adeyemiloye/chowhub-backend/pkg/logger"
	"github.com/adeyemiloye/chowhub-backend/pkg/metrics"
	"github.com/adeyemiloye/chowhub-backend/pkg/migrate"
	"github.com/adeyemiloye/chowhub-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
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

	queueMetrics := metrics.NewNotificationQueueMetrics(prometheus.DefaultRegisterer)

	auditService, err := audit.NewService(audit.NewRepository(dbClient.DB()), logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create audit service", err)
		os.Exit(1)
	}

	lockService, err := locks.NewService(locks.ServiceParams{
		Repository: locks.NewRepository(dbClient.DB()),
		DefaultTTL: cfg.Locks.DefaultTTL,
		MaxTTL:     cfg.Locks.MaxTTL,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create lock service", err)
		os.Exit(1)
	}

	notificationService, err := notifications.NewService(notifications.ServiceParams{
		Repository:        notifications.NewRepository(dbClient.DB()),
		Logger:            logg,
		Metrics:           queueMetrics,
		MaxAttempts:       cfg.Notifications.MaxAttempts,
		ProcessingTimeout: cfg.Notifications.ProcessingTimeout,
		ClaimBatchSize:    cfg.Notifications.ClaimBatchSize,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create notification service", err)
		os.Exit(1)
	}

	ordersRepo := orders.NewRepository(dbClient.DB())
	orderService, err := orders.NewService(orders.ServiceParams{
		DB:            dbClient,
		Repository:    ordersRepo,
		Locks:         lockService,
		Audit:         auditService,
		Notifications: notificationService,
		Logger:        logg,
		LockTTL:       cfg.Locks.DefaultTTL,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create order service", err)
		os.Exit(1)
	}

	paymentsRepo := payments.NewRepository(dbClient.DB())
	paymentService, err := payments.NewService(payments.ServiceParams{
		DB:              dbClient,
		Repository:      paymentsRepo,
		Orders:          ordersRepo,
		OrderMachine:    orderService,
		Inventory:       inventory.NewRepository(dbClient.DB()),
		Locks:           lockService,
		Audit:           auditService,
		Notifications:   notificationService,
		Logger:          logg,
		AmountTolerance: decimal.NewFromFloat(cfg.Payments.AmountTolerance),
		Currency:        cfg.Payments.Currency,
		LockTTL:         cfg.Locks.DefaultTTL,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payment service", err)
		os.Exit(1)
	}

	reconcileService, err := reconcile.NewService(reconcile.ServiceParams{
		DB:                  dbClient,
		Repository:          reconcile.NewRepository(dbClient.DB()),
		Payments:            paymentsRepo,
		Applier:             paymentService,
		Orders:              ordersRepo,
		Locks:               lockService,
		Audit:               auditService,
		Notifications:       notifications.NewRepository(dbClient.DB()),
		Logger:              logg,
		Metrics:             queueMetrics,
		BatchLimit:          cfg.Reconciliation.BatchLimit,
		StaleQueueThreshold: cfg.Reconciliation.StaleQueueThreshold,
		LockTTL:             cfg.Locks.DefaultTTL,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create reconcile service", err)
		os.Exit(1)
	}

	cronMetrics := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)

	lock, err := cron.NewRedisLock(redisClient, redisClient.CronLockKey(lockName(cfg.App.Env)), cfg.Cron.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	registry := cron.NewRegistry()

	reconcileJob, err := cron.NewReconcilePaymentsJob(cron.ReconcilePaymentsJobParams{
		Logger:     logg,
		Reconciler: reconcileService,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create reconcile job", err)
		os.Exit(1)
	}
	registry.Register(reconcileJob)

	janitorJob, err := cron.NewNotificationJanitorJob(cron.NotificationJanitorJobParams{
		Logger: logg,
		Queue:  notificationService,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create janitor job", err)
		os.Exit(1)
	}
	registry.Register(janitorJob)

	sweepJob, err := cron.NewLockSweepJob(cron.LockSweepJobParams{
		Logger: logg,
		Locks:  lockService,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create lock sweep job", err)
		os.Exit(1)
	}
	registry.Register(sweepJob)

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  cronMetrics,
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env": cfg.App.Env,
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func lockName(env string) string {
	if env == "" {
		env = "local"
	}
	return "cron-worker-" + env
}
