package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/gracechapelhq/gracechapel-backend/api/controllers"
	webhookcontrollers "github.com/gracechapelhq/gracechapel-backend/api/controllers/webhooks"
	"github.com/gracechapelhq/gracechapel-backend/api/middleware"
	"github.com/gracechapelhq/gracechapel-backend/internal/auth"
	checkoutsvc "github.com/gracechapelhq/gracechapel-backend/internal/checkout"
	"github.com/gracechapelhq/gracechapel-backend/internal/reports"
	stripewebhook "github.com/gracechapelhq/gracechapel-backend/internal/webhooks/stripe"
	"github.com/gracechapelhq/gracechapel-backend/pkg/auth/session"
	"github.com/gracechapelhq/gracechapel-backend/pkg/config"
	"github.com/gracechapelhq/gracechapel-backend/pkg/db"
	"github.com/gracechapelhq/gracechapel-backend/pkg/enums"
	"github.com/gracechapelhq/gracechapel-backend/pkg/logger"
	"github.com/gracechapelhq/gracechapel-backend/pkg/metrics"
	"github.com/gracechapelhq/gracechapel-backend/pkg/redis"
	"github.com/gracechapelhq/gracechapel-backend/pkg/stripe"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	sessions session.AccessSessionChecker,
	authService auth.Service,
	checkoutService checkoutsvc.Service,
	reportsService reports.Service,
	stripeClient *stripe.Client,
	webhookService *stripewebhook.Service,
	webhookMetrics *metrics.WebhookMetrics,
	metricsHandler http.Handler,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisClient))
	})

	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(webhookService, stripeClient, webhookMetrics, logg))
	})

	r.Route("/api/v1/checkout", func(r chi.Router) {
		r.Post("/session", controllers.CheckoutSession(checkoutService, logg))
	})

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Post("/login", controllers.AuthLogin(authService, logg))
		r.With(middleware.Auth(cfg.JWT, sessions, logg)).Post("/logout", controllers.AuthLogout(authService, logg))
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, sessions, logg))
		r.Use(middleware.RequireRole(string(enums.UserRoleAdmin), logg))

		r.Get("/donations", controllers.AdminDonations(reportsService, logg))
		r.Get("/donations/summary/compare", controllers.AdminDonationCompare(reportsService, logg))
		r.Get("/donations/{donationId}", controllers.AdminDonationDetail(reportsService, logg))
		r.Get("/subscriptions", controllers.AdminSubscriptions(reportsService, logg))
	})

	return r
}
