package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gracechapelhq/gracechapel-backend/api/routes"
	"github.com/gracechapelhq/gracechapel-backend/internal/auth"
	"github.com/gracechapelhq/gracechapel-backend/internal/checkout"
	"github.com/gracechapelhq/gracechapel-backend/internal/donations"
	"github.com/gracechapelhq/gracechapel-backend/internal/reports"
	"github.com/gracechapelhq/gracechapel-backend/internal/subscriptions"
	"github.com/gracechapelhq/gracechapel-backend/internal/users"
	stripewebhook "github.com/gracechapelhq/gracechapel-backend/internal/webhooks/stripe"
	"github.com/gracechapelhq/gracechapel-backend/pkg/auth/session"
	"github.com/gracechapelhq/gracechapel-backend/pkg/config"
	"github.com/gracechapelhq/gracechapel-backend/pkg/db"
	"github.com/gracechapelhq/gracechapel-backend/pkg/logger"
	"github.com/gracechapelhq/gracechapel-backend/pkg/mailer"
	"github.com/gracechapelhq/gracechapel-backend/pkg/metrics"
	"github.com/gracechapelhq/gracechapel-backend/pkg/migrate"
	"github.com/gracechapelhq/gracechapel-backend/pkg/redis"
	pkgstripe "github.com/gracechapelhq/gracechapel-backend/pkg/stripe"
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

	sessionManager, err := session.NewManager(redisClient, cfg.JWT)
	if err != nil {
		logg.Error(context.Background(), "failed to create session manager", err)
		os.Exit(1)
	}

	stripeClient, err := pkgstripe.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create stripe client", err)
		os.Exit(1)
	}

	var receiptSender mailer.Sender
	if cfg.Mailer.APIKey != "" {
		mailClient, err := mailer.NewClient(cfg.Mailer)
		if err != nil {
			logg.Error(context.Background(), "failed to create mailer", err)
			os.Exit(1)
		}
		receiptSender = mailClient
	} else {
		logg.Warn(context.Background(), "mailer api key not set, donation receipts disabled")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	webhookMetrics := metrics.NewWebhookMetrics(registry)
	checkoutMetrics := metrics.NewCheckoutMetrics(registry)

	donationService, err := donations.NewService(donations.ServiceParams{
		Repo:              donations.NewRepository(dbClient.DB()),
		TransactionRunner: dbClient,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create donation store", err)
		os.Exit(1)
	}

	subscriptionService, err := subscriptions.NewService(subscriptions.ServiceParams{
		Repo:              subscriptions.NewRepository(dbClient.DB()),
		TransactionRunner: dbClient,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create subscription service", err)
		os.Exit(1)
	}

	webhookService, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		Donations:     donationService,
		Subscriptions: subscriptionService,
		Ledger:        stripewebhook.NewLedger(dbClient.DB()),
		Mailer:        receiptSender,
		Metrics:       webhookMetrics,
		Logger:        logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook dispatcher", err)
		os.Exit(1)
	}

	checkoutService, err := checkout.NewService(checkout.ServiceParams{
		Donations: donationService,
		Sessions:  checkout.NewSessionClient(stripeClient),
		Config:    cfg.Donations,
		Stripe:    cfg.Stripe,
		Metrics:   checkoutMetrics,
		Logger:    logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create checkout service", err)
		os.Exit(1)
	}

	reportService, err := reports.NewService(reports.ServiceParams{
		Donations:     donationService,
		Subscriptions: subscriptionService,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create reports service", err)
		os.Exit(1)
	}

	authService, err := auth.NewService(auth.ServiceParams{
		Users:       users.NewRepository(dbClient.DB()),
		Sessions:    sessionManager,
		RateLimiter: redisClient,
		JWT:         cfg.JWT,
		RateLimit:   cfg.AuthRateLimit,
		Logger:      logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create auth service", err)
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
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			sessionManager,
			authService,
			checkoutService,
			reportService,
			stripeClient,
			webhookService,
			webhookMetrics,
			promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
