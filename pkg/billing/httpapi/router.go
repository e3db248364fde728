package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kdprince200-netizen/equiherds/pkg/billing"
	"github.com/kdprince200-netizen/equiherds/pkg/environment"
	"github.com/kdprince200-netizen/equiherds/pkg/logger"
	"github.com/kdprince200-netizen/equiherds/pkg/ratelimiter"
)

// Handler serves the billing trigger surface.
type Handler struct {
	reconciler *billing.Reconciler
	checkout   *billing.Checkout
	logger     *slog.Logger
}

// Option configures the router.
type Option func(*routerConfig)

type routerConfig struct {
	env     environment.Environment
	health  http.Handler
	timeout time.Duration
	limiter ratelimiter.Limiter
}

// WithEnvironment tags every request context with env.
func WithEnvironment(env environment.Environment) Option {
	return func(c *routerConfig) { c.env = env }
}

// WithHealth mounts h on GET /healthz.
func WithHealth(h http.Handler) Option {
	return func(c *routerConfig) { c.health = h }
}

// WithTimeout bounds request handling. Full reconciliation runs are exempt.
func WithTimeout(d time.Duration) Option {
	return func(c *routerConfig) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRateLimit throttles the endpoints that charge or start reconciliation,
// per account where the path names one and per client IP otherwise.
func WithRateLimit(l ratelimiter.Limiter) Option {
	return func(c *routerConfig) { c.limiter = l }
}

// NewRouter mounts the billing routes.
func NewRouter(r *billing.Reconciler, c *billing.Checkout, log *slog.Logger, opts ...Option) http.Handler {
	if r == nil || c == nil {
		panic("httpapi: reconciler and checkout are required")
	}
	if log == nil {
		log = slog.Default()
	}
	cfg := routerConfig{env: environment.Development, timeout: 30 * time.Second}
	for _, opt := range opts {
		opt(&cfg)
	}

	h := &Handler{reconciler: r, checkout: c, logger: log.With(logger.Component("billing.httpapi"))}

	mux := chi.NewRouter()
	mux.Use(middleware.RequestID)
	mux.Use(middleware.RealIP)
	mux.Use(middleware.Recoverer)
	mux.Use(environment.Middleware(cfg.env))

	if cfg.health != nil {
		mux.Method(http.MethodGet, "/healthz", cfg.health)
	}

	byClient := h.throttle(cfg.limiter, clientKey)
	byAccount := h.throttle(cfg.limiter, accountKey)

	mux.With(byClient).Post("/reconcile", h.reconcileAll)

	mux.Group(func(mux chi.Router) {
		mux.Use(middleware.Timeout(cfg.timeout))

		mux.Get("/plans", h.listPlans)
		mux.With(byClient).Post("/proposals/confirm", h.confirmProposal)

		mux.Route("/accounts/{accountID}", func(mux chi.Router) {
			mux.Get("/status", h.status)
			mux.Post("/status/sync", h.syncStatus)
			mux.Get("/quote", h.quote)

			mux.Group(func(mux chi.Router) {
				mux.Use(byAccount)
				mux.Post("/reconcile", h.reconcileAccount)
				mux.Put("/auto-renewal", h.setAutoRenewal)
				mux.Post("/payment-method", h.savePaymentMethod)
				mux.Post("/trial", h.startTrial)
				mux.Post("/proposals", h.propose)
			})
		})

		mux.Route("/diagnostics", func(mux chi.Router) {
			mux.Get("/expired", h.expiredSellers)
			mux.Get("/status", h.sellerStatuses)
			mux.Get("/customers", h.customerReferences)
		})
	})

	return mux
}
