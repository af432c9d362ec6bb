package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/auracommerce/aura-backend/api/controllers"
	webhookcontrollers "github.com/auracommerce/aura-backend/api/controllers/webhooks"
	"github.com/auracommerce/aura-backend/api/middleware"
	"github.com/auracommerce/aura-backend/internal/cart"
	checkoutsvc "github.com/auracommerce/aura-backend/internal/checkout"
	"github.com/auracommerce/aura-backend/internal/coupons"
	"github.com/auracommerce/aura-backend/internal/notifications"
	"github.com/auracommerce/aura-backend/internal/orders"
	"github.com/auracommerce/aura-backend/internal/payments"
	"github.com/auracommerce/aura-backend/internal/reconciliation"
	"github.com/auracommerce/aura-backend/internal/returns"
	"github.com/auracommerce/aura-backend/internal/settings"
	"github.com/auracommerce/aura-backend/pkg/config"
	"github.com/auracommerce/aura-backend/pkg/enums"
	"github.com/auracommerce/aura-backend/pkg/logger"
	"github.com/auracommerce/aura-backend/pkg/metrics"
	"github.com/auracommerce/aura-backend/pkg/redis"
)

// Deps carries everything the router wires into handlers.
type Deps struct {
	Config      *config.Config
	Logger      *logger.Logger
	Idempotency redis.IdempotencyStore
	Registry    *prometheus.Registry

	ReadyChecks map[string]controllers.Pinger

	Cart           cart.Service
	Checkout       checkoutsvc.Service
	Coupons        coupons.Service
	Notifications  notifications.Service
	Orders         orders.Service
	Payments       payments.Service
	Reconciliation reconciliation.Service
	Returns        returns.Service
	Settings       settings.Service

	StripeVerifier webhookcontrollers.Verifier
	WebhookGuard   *webhookcontrollers.Guard
	WebhookMetrics *metrics.WebhookMetrics
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.ReadyChecks))
	})

	if deps.Registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(
			deps.Reconciliation, deps.StripeVerifier, deps.WebhookGuard, deps.WebhookMetrics, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(deps.Idempotency, logg))

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", controllers.CartGet(deps.Cart, logg))
			r.Delete("/", controllers.CartClear(deps.Cart, logg))
			r.Post("/items", controllers.CartAddItem(deps.Cart, logg))
			r.Patch("/items/{itemId}", controllers.CartUpdateItem(deps.Cart, logg))
			r.Delete("/items/{itemId}", controllers.CartRemoveItem(deps.Cart, logg))
		})

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", controllers.CheckoutCreateOrder(deps.Checkout, logg))
			r.Get("/", controllers.OrdersList(deps.Orders, logg))
			r.Get("/{orderId}", controllers.OrderDetail(deps.Orders, logg))
			r.With(middleware.RequireRole(logg, enums.UserRoleVendor, enums.UserRoleAdmin)).
				Patch("/{orderId}/status", controllers.OrderUpdateStatus(deps.Reconciliation, logg))
		})

		r.Route("/returns", func(r chi.Router) {
			r.Post("/", controllers.ReturnCreate(deps.Returns, logg))
			r.Get("/", controllers.ReturnsList(deps.Returns, logg))
			r.Get("/{returnId}", controllers.ReturnDetail(deps.Returns, logg))
			r.Post("/{returnId}/cancel", controllers.ReturnCancel(deps.Returns, logg))
			r.With(middleware.RequireRole(logg, enums.UserRoleVendor, enums.UserRoleAdmin)).
				Patch("/{returnId}/status", controllers.ReturnUpdateStatus(deps.Returns, logg))
		})

		r.Route("/payments", func(r chi.Router) {
			r.Post("/intent", controllers.PaymentIntentCreate(deps.Payments, logg))
			r.With(middleware.RequireRole(logg, enums.UserRoleAdmin)).
				Post("/{orderId}/refund", controllers.PaymentRefund(deps.Reconciliation, logg))
		})

		r.Post("/coupons/preview", controllers.CouponPreview(deps.Coupons, deps.Cart, logg))

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(deps.Notifications, logg))
			r.Post("/{notificationId}/read", controllers.MarkNotificationRead(deps.Notifications, logg))
			r.Post("/read-all", controllers.MarkAllNotificationsRead(deps.Notifications, logg))
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.UserRoleAdmin))
			r.Route("/coupons", func(r chi.Router) {
				r.Get("/", controllers.CouponList(deps.Coupons, logg))
				r.Post("/", controllers.CouponCreate(deps.Coupons, logg))
				r.Patch("/{couponId}", controllers.CouponUpdate(deps.Coupons, logg))
				r.Delete("/{couponId}", controllers.CouponDelete(deps.Coupons, logg))
			})
			r.Route("/settings", func(r chi.Router) {
				r.Get("/", controllers.SettingsGet(deps.Settings, logg))
				r.Patch("/", controllers.SettingsUpdate(deps.Settings, logg))
			})
		})
	})

	return r
}
