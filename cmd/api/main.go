package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"github.com/adeyemiloye/chowhub-backend/api/controllers"
	"github.com/adeyemiloye/chowhub-backend/api/routes"
	"github.com/adeyemiloye/chowhub-backend/internal/audit"
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

const webhookGuardTTL = 24 * time.Hour

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

	webhookGuard, err := payments.NewIdempotencyGuard(redisClient, webhookGuardTTL, "payment-webhook")
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook guard", err)
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
		Handler: routes.NewRouter(routes.RouterParams{
			Config: cfg,
			Logger: logg,
			Redis:  redisClient,
			Readies: map[string]controllers.Pinger{
				"database": dbClient,
				"redis":    redisClient,
			},
			Orders:        orderService,
			Locks:         lockService,
			Audit:         auditService,
			Notifications: notificationService,
			Payments:      paymentService,
			Reconcile:     reconcileService,
			WebhookGuard:  webhookGuard,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
