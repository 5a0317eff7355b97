package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/adeyemiloye/chowhub-backend/api/controllers"
	webhookcontrollers "github.com/adeyemiloye/chowhub-backend/api/controllers/webhooks"
	"github.com/adeyemiloye/chowhub-backend/api/middleware"
	"github.com/adeyemiloye/chowhub-backend/internal/audit"
	"github.com/adeyemiloye/chowhub-backend/internal/locks"
	"github.com/adeyemiloye/chowhub-backend/internal/notifications"
	"github.com/adeyemiloye/chowhub-backend/internal/orders"
	"github.com/adeyemiloye/chowhub-backend/internal/payments"
	"github.com/adeyemiloye/chowhub-backend/internal/reconcile"
	"github.com/adeyemiloye/chowhub-backend/pkg/config"
	"github.com/adeyemiloye/chowhub-backend/pkg/enums"
	"github.com/adeyemiloye/chowhub-backend/pkg/logger"
	"github.com/adeyemiloye/chowhub-backend/pkg/redis"
)

// RouterParams carries everything the HTTP surface needs. All services are
// constructed in cmd/api and passed down; the router only wires.
type RouterParams struct {
	Config *config.Config
	Logger *logger.Logger

	Redis   *redis.Client
	Readies map[string]controllers.Pinger

	Orders        orders.Service
	Locks         locks.Service
	Audit         audit.Service
	Notifications notifications.Service
	Payments      payments.Service
	Reconcile     reconcile.Service

	WebhookGuard *payments.IdempotencyGuard
}

func NewRouter(params RouterParams) http.Handler {
	cfg := params.Config
	logg := params.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, params.Readies))
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/ping", controllers.PublicPing())
	})

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/payments/{provider}", webhookcontrollers.PaymentWebhook(
			params.Payments,
			params.Audit,
			params.WebhookGuard,
			cfg.Payments.WebhookSecret,
			logg,
		))
	})

	r.Route("/api/v1/admin", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(string(enums.ActorRoleAdmin), logg))
		r.Use(middleware.Idempotency(params.Redis, logg))

		r.Get("/ping", controllers.AdminPing())
		r.Get("/health/snapshot", controllers.AdminHealthSnapshot(params.Reconcile, logg))
		r.Post("/health/reconcile", controllers.AdminReconcileNow(params.Reconcile, logg))
		r.Get("/notifications/failed", controllers.AdminFailedNotifications(params.Notifications, logg))

		r.Route("/orders/{orderId}", func(r chi.Router) {
			r.Get("/", controllers.AdminGetOrder(params.Orders, logg))
			r.Get("/audit", controllers.AdminOrderAudit(params.Audit, logg))
			r.Post("/transition", controllers.AdminTransitionOrder(params.Orders, logg))
			r.Post("/assign-courier", controllers.AdminAssignCourier(params.Orders, logg))
			r.Post("/lock", controllers.AdminAcquireLock(params.Locks, logg))
			r.Delete("/lock", controllers.AdminReleaseLock(params.Locks, logg))
			r.Get("/lock", controllers.AdminLockInfo(params.Locks, logg))
		})
	})

	r.Route("/api/v1/worker", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireAnyRole(logg, string(enums.ActorRoleWorker), string(enums.ActorRoleAdmin)))

		r.Get("/ping", controllers.WorkerPing())
		r.Route("/notifications", func(r chi.Router) {
			r.Post("/claim", controllers.WorkerClaimNotifications(params.Notifications, logg))
			r.Post("/{notificationId}/sent", controllers.WorkerMarkSent(params.Notifications, logg))
			r.Post("/{notificationId}/failed", controllers.WorkerMarkFailed(params.Notifications, logg))
		})
	})

	return r
}
