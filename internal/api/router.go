package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/gabellehq/gabelle/internal/auth"
	"github.com/gabellehq/gabelle/internal/cache"
	"github.com/gabellehq/gabelle/internal/metrics"
	"github.com/gabellehq/gabelle/internal/ratelimit"
)

// Pinger checks reachability of the backing database.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RouterDeps holds all dependencies for the API router.
type RouterDeps struct {
	Reports    ReportBuilder
	Recorder   DeltaRecorder
	Budgets    BudgetConfig
	Businesses BusinessRegistry
	Cache      *cache.ReportCache
	Metrics    *metrics.Metrics
	Limiter    *ratelimit.Limiter

	AdminKeyHash     string
	ServiceKeyHashes []string
	AllowedOrigins   []string

	Pinger Pinger
	Now    func() time.Time
}

// NewRouter builds the chi router with all routes and middleware.
func NewRouter(deps RouterDeps) http.Handler {
	if deps.Now == nil {
		deps.Now = time.Now
	}

	r := chi.NewRouter()

	// Global middleware.
	r.Use(chimw.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(secureHeaders)
	r.Use(corsMiddleware(deps.AllowedOrigins))
	r.Use(slogRequestLogger)
	r.Use(metricsMiddleware(deps.Metrics))

	// Handlers.
	usage := newUsageHandler(deps.Reports, deps.Cache, deps.Metrics, deps.Now)
	ingest := newIngestHandler(deps.Recorder, deps.Metrics)
	budgets := newBudgetsHandler(deps.Budgets, deps.Businesses)

	// Health check.
	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
		defer cancel()
		if deps.Pinger != nil {
			if err := deps.Pinger.Ping(ctx); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Prometheus scrape endpoint.
	r.Handle("/metrics", deps.Metrics.PrometheusHandler())

	// Service routes (require service key + rate limiting).
	r.Route("/api/v1", func(sr chi.Router) {
		if len(deps.ServiceKeyHashes) > 0 {
			sr.Use(auth.ServiceAuthMiddleware(deps.ServiceKeyHashes))
		} else {
			// Unauthenticated operation is a deliberate choice for dev
			// setups, never a silent fallback.
			slog.Warn("service auth disabled: no service keys configured")
		}
		sr.Use(ratelimit.Middleware(deps.Limiter, deps.Metrics.RateLimitRejectionsTotal.Inc))

		sr.Get("/businesses/{businessID}/usage", usage.GetUsageReport)
		sr.Post("/usage/events", ingest.IngestEvents)
	})

	// Admin routes (require admin key).
	r.Route("/api/v1/admin", func(ar chi.Router) {
		ar.Use(auth.AdminAuthMiddleware(deps.AdminKeyHash))

		ar.Put("/businesses/{businessID}/budgets/{platform}", budgets.SetBudget)
		ar.Get("/businesses/{businessID}/budgets/{platform}", budgets.GetBudget)
		ar.Get("/businesses/{businessID}/budgets", budgets.ListBudgets)
		ar.Delete("/businesses/{businessID}/budgets/{platform}", budgets.DeleteBudget)

		ar.Get("/metrics", deps.Metrics.Handler())
	})

	return r
}
