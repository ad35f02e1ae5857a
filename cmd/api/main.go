package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/lumenapps/lumen-backend/api/routes"
	"github.com/lumenapps/lumen-backend/internal/subscriptions"
	"github.com/lumenapps/lumen-backend/internal/webhooks"
	applewebhook "github.com/lumenapps/lumen-backend/internal/webhooks/apple"
	stripewebhook "github.com/lumenapps/lumen-backend/internal/webhooks/stripe"
	"github.com/lumenapps/lumen-backend/pkg/config"
	"github.com/lumenapps/lumen-backend/pkg/db"
	"github.com/lumenapps/lumen-backend/pkg/logger"
	"github.com/lumenapps/lumen-backend/pkg/metrics"
	"github.com/lumenapps/lumen-backend/pkg/migrate"
	"github.com/lumenapps/lumen-backend/pkg/redis"
)

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

	subscriptionRepo := subscriptions.NewRepository(dbClient.DB())

	subscriptionsService, err := subscriptions.NewService(subscriptions.ServiceParams{
		Repo:              subscriptionRepo,
		TransactionRunner: dbClient,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create subscriptions service", err)
		os.Exit(1)
	}

	appleService, err := applewebhook.NewService(applewebhook.ServiceParams{
		SubscriptionRepo:  subscriptionRepo,
		TransactionRunner: dbClient,
		Logger:            logg,
		BundleID:          cfg.Apple.BundleID,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create apple webhook service", err)
		os.Exit(1)
	}

	stripeService, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		SubscriptionRepo:  subscriptionRepo,
		TransactionRunner: dbClient,
		Logger:            logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create stripe webhook service", err)
		os.Exit(1)
	}

	appleGuard, err := webhooks.NewIdempotencyGuard(redisClient, cfg.Webhooks.TTL, "apple")
	if err != nil {
		logg.Error(context.Background(), "failed to create apple idempotency guard", err)
		os.Exit(1)
	}

	stripeGuard, err := webhooks.NewIdempotencyGuard(redisClient, cfg.Webhooks.TTL, "stripe")
	if err != nil {
		logg.Error(context.Background(), "failed to create stripe idempotency guard", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	webhookMetrics := metrics.NewWebhookMetrics(registry)

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
			Config:               cfg,
			Logger:               logg,
			DB:                   dbClient,
			Redis:                redisClient,
			SubscriptionsService: subscriptionsService,
			AppleWebhookService:  appleService,
			StripeWebhookService: stripeService,
			AppleWebhookGuard:    appleGuard,
			StripeWebhookGuard:   stripeGuard,
			WebhookMetrics:       webhookMetrics,
			MetricsGatherer:      registry,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
