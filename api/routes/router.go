package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lumenapps/lumen-backend/api/controllers"
	subscriptionControllers "github.com/lumenapps/lumen-backend/api/controllers/subscriptions"
	webhookcontrollers "github.com/lumenapps/lumen-backend/api/controllers/webhooks"
	"github.com/lumenapps/lumen-backend/api/middleware"
	subscriptionsvc "github.com/lumenapps/lumen-backend/internal/subscriptions"
	"github.com/lumenapps/lumen-backend/pkg/config"
	"github.com/lumenapps/lumen-backend/pkg/db"
	"github.com/lumenapps/lumen-backend/pkg/logger"
	"github.com/lumenapps/lumen-backend/pkg/metrics"
	"github.com/lumenapps/lumen-backend/pkg/redis"
)

// RouterParams carries everything the HTTP surface depends on.
type RouterParams struct {
	Config               *config.Config
	Logger               *logger.Logger
	DB                   *db.Client
	Redis                *redis.Client
	SubscriptionsService subscriptionsvc.Service
	AppleWebhookService  webhookcontrollers.AppleWebhookService
	StripeWebhookService webhookcontrollers.StripeWebhookService
	AppleWebhookGuard    webhookcontrollers.WebhookGuard
	StripeWebhookGuard   webhookcontrollers.WebhookGuard
	WebhookMetrics       *metrics.WebhookMetrics
	MetricsGatherer      prometheus.Gatherer
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
		r.Get("/ready", controllers.HealthReady(cfg, logg, readinessDeps(params)))
	})

	if params.MetricsGatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(params.MetricsGatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/webhooks", func(r chi.Router) {
		r.Post("/apple", webhookcontrollers.AppleWebhook(params.AppleWebhookService, params.AppleWebhookGuard, params.WebhookMetrics, logg))
		r.Post("/stripe", webhookcontrollers.StripeWebhook(params.StripeWebhookService, cfg.Stripe.WebhookSecret, params.StripeWebhookGuard, params.WebhookMetrics, logg))
	})

	receiptPolicy := middleware.NewRateLimitPolicy(
		"verify-receipt",
		cfg.RateLimit.ReceiptWindow,
		cfg.RateLimit.ReceiptIPLimit,
		cfg.RateLimit.ReceiptUserLimit,
	)

	r.Route("/api/v1/subscriptions", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Get("/", subscriptionControllers.Get(params.SubscriptionsService, logg))
		r.With(middleware.RateLimit(receiptPolicy, params.Redis, logg)).
			Post("/verify-receipt", subscriptionControllers.VerifyReceipt(params.SubscriptionsService, logg))
		r.Post("/cancel", subscriptionControllers.Cancel(params.SubscriptionsService, logg))
		r.Post("/restore", subscriptionControllers.Restore(params.SubscriptionsService, logg))
	})

	return r
}

func readinessDeps(params RouterParams) map[string]controllers.Pinger {
	deps := map[string]controllers.Pinger{}
	if params.DB != nil {
		deps["database"] = params.DB
	}
	if params.Redis != nil {
		deps["redis"] = params.Redis
	}
	return deps
}
