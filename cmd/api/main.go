package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/auracommerce/aura-backend/api/controllers"
	webhookcontrollers "github.com/auracommerce/aura-backend/api/controllers/webhooks"
	"github.com/auracommerce/aura-backend/api/routes"
	"github.com/auracommerce/aura-backend/internal/cart"
	checkoutsvc "github.com/auracommerce/aura-backend/internal/checkout"
	"github.com/auracommerce/aura-backend/internal/coupons"
	"github.com/auracommerce/aura-backend/internal/inventory"
	"github.com/auracommerce/aura-backend/internal/notifications"
	"github.com/auracommerce/aura-backend/internal/orders"
	"github.com/auracommerce/aura-backend/internal/payments"
	"github.com/auracommerce/aura-backend/internal/reconciliation"
	"github.com/auracommerce/aura-backend/internal/returns"
	"github.com/auracommerce/aura-backend/internal/settings"
	"github.com/auracommerce/aura-backend/pkg/config"
	"github.com/auracommerce/aura-backend/pkg/db"
	"github.com/auracommerce/aura-backend/pkg/logger"
	"github.com/auracommerce/aura-backend/pkg/metrics"
	"github.com/auracommerce/aura-backend/pkg/migrate"
	"github.com/auracommerce/aura-backend/pkg/redis"
	"github.com/auracommerce/aura-backend/pkg/stripe"
)

// stripeRefunder adapts the stripe client to the reconciliation refund
// surface.
type stripeRefunder struct {
	client *stripe.Client
}

func (r stripeRefunder) Refund(ctx context.Context, intentID string) error {
	_, err := r.client.RefundIntent(ctx, intentID)
	return err
}

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

	stripeClient, err := stripe.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap stripe", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	checkoutMetrics := metrics.NewCheckoutMetrics(registry)
	webhookMetrics := metrics.NewWebhookMetrics(registry)

	conn := dbClient.DB()
	orderRepo := orders.NewRepository(conn)
	cartRepo := cart.NewRepository(conn)
	couponRepo := coupons.NewRepository(conn)
	inventorySvc := inventory.NewService()

	orderReads, err := orders.NewService(orderRepo)
	if err != nil {
		fatal(logg, "orders service", err)
	}
	cartSvc, err := cart.NewService(cartRepo, conn)
	if err != nil {
		fatal(logg, "cart service", err)
	}
	evaluator, err := coupons.NewEvaluator(couponRepo)
	if err != nil {
		fatal(logg, "coupon evaluator", err)
	}
	couponSvc, err := coupons.NewService(couponRepo, evaluator)
	if err != nil {
		fatal(logg, "coupons service", err)
	}
	settingsSvc, err := settings.NewService(settings.NewRepository(conn), cfg.Checkout.SettingsCacheTTL)
	if err != nil {
		fatal(logg, "settings service", err)
	}
	notificationsSvc, err := notifications.NewService(notifications.NewRepository(conn), logg)
	if err != nil {
		fatal(logg, "notifications service", err)
	}
	reconSvc, err := reconciliation.NewService(
		orderRepo,
		orderReads,
		dbClient,
		inventorySvc,
		couponRepo,
		stripeRefunder{client: stripeClient},
		notificationsSvc,
		logg,
	)
	if err != nil {
		fatal(logg, "reconciliation service", err)
	}
	checkoutSvc, err := checkoutsvc.NewService(
		checkoutsvc.NewRepository(conn),
		cartRepo,
		orderRepo,
		couponRepo,
		evaluator,
		inventorySvc,
		settingsSvc,
		dbClient,
		stripeClient,
		notificationsSvc,
		checkoutMetrics,
		cfg.Checkout.Currency,
		logg,
	)
	if err != nil {
		fatal(logg, "checkout service", err)
	}
	paymentsSvc, err := payments.NewService(orderRepo, orderReads, stripeClient, cfg.Checkout.Currency, logg)
	if err != nil {
		fatal(logg, "payments service", err)
	}
	returnsSvc, err := returns.NewService(
		returns.NewRepository(conn),
		orderRepo,
		settingsSvc,
		reconSvc,
		dbClient,
		notificationsSvc,
	)
	if err != nil {
		fatal(logg, "returns service", err)
	}

	router := routes.NewRouter(routes.Deps{
		Config:      cfg,
		Logger:      logg,
		Idempotency: redisClient,
		Registry:    registry,
		ReadyChecks: map[string]controllers.Pinger{
			"database": dbClient,
			"redis":    redisClient,
		},
		Cart:           cartSvc,
		Checkout:       checkoutSvc,
		Coupons:        couponSvc,
		Notifications:  notificationsSvc,
		Orders:         orderReads,
		Payments:       paymentsSvc,
		Reconciliation: reconSvc,
		Returns:        returnsSvc,
		Settings:       settingsSvc,
		StripeVerifier: stripeClient,
		WebhookGuard:   webhookcontrollers.NewGuard(redisClient),
		WebhookMetrics: webhookMetrics,
	})

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

	server := &http.Server{Addr: addr, Handler: router}
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func fatal(logg *logger.Logger, what string, err error) {
	logg.Error(context.Background(), "failed to create "+what, err)
	os.Exit(1)
}
