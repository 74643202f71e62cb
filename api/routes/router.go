package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/flowdesk-backend/api/controllers"
	webhookcontrollers "github.com/angelmondragon/flowdesk-backend/api/controllers/webhooks"
	"github.com/angelmondragon/flowdesk-backend/api/middleware"
	checkoutsvc "github.com/angelmondragon/flowdesk-backend/internal/checkout"
	"github.com/angelmondragon/flowdesk-backend/internal/orders"
	"github.com/angelmondragon/flowdesk-backend/pkg/config"
	"github.com/angelmondragon/flowdesk-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/flowdesk-backend/pkg/redis"
)

// Deps are the services the HTTP surface is wired to.
type Deps struct {
	DB               controllers.Pinger
	Redis            controllers.Pinger
	IdempotencyStore pkgredis.IdempotencyStore
	Gatherer         prometheus.Gatherer

	StripeWebhook webhookcontrollers.StripeWebhookParams
	Refresher     controllers.PaymentRefresher
	Orders        orders.Service
	Checkout      checkoutsvc.Service
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Deps) http.Handler {
	r := chi.NewRouter()
	// RequestID opens the scope the recoverer and access log read from
	r.Use(
		middleware.RequestID(logg),
		middleware.Recoverer(logg),
		middleware.Logging(logg),
	)

	readiness := map[string]controllers.Pinger{}
	if deps.DB != nil {
		readiness["db"] = deps.DB
	}
	if deps.Redis != nil {
		readiness["redis"] = deps.Redis
	}
	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readiness))
	})

	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	webhook := deps.StripeWebhook
	if webhook.Logger == nil {
		webhook.Logger = logg
	}
	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(webhook))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.CORS(cfg.App.CORSOrigins))

		r.Route("/payments", func(r chi.Router) {
			r.Post("/refresh", controllers.PaymentsRefresh(deps.Refresher, logg))
			r.Post("/refresh-transactions", controllers.PaymentsRefreshTransactions(deps.Refresher, logg))
		})
		r.Get("/orders/{orderId}", controllers.OrderDetail(deps.Orders, logg))
		r.With(middleware.Idempotency(deps.IdempotencyStore, cfg.Webhook.IdempotencyTTL, logg)).
			Post("/checkout", controllers.Checkout(deps.Checkout, logg))
	})

	return r
}
