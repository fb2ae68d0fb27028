package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/fleetcost/rightsize/internal/auth"
	"github.com/fleetcost/rightsize/internal/catalog"
	"github.com/fleetcost/rightsize/internal/metrics"
	"github.com/fleetcost/rightsize/internal/ratelimit"
)

// RouterDeps holds all dependencies for the API router.
type RouterDeps struct {
	SKUService *catalog.Service
	Runner     Runner
	Recorder   RunRecorder
	RunStore   RunStore
	Evaluator  Evaluator
	Limiter    *ratelimit.Limiter
	Verifier   *auth.Verifier
	Metrics    *metrics.Metrics
}

// NewRouter builds the chi router with all routes and middleware.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chimw.Recoverer)
	r.Use(secureHeaders)
	r.Use(requestIDMiddleware)
	r.Use(slogRequestLogger)
	if deps.Metrics != nil {
		r.Use(metricsMiddleware(deps.Metrics))
	}

	// Handlers.
	skus := newSKUsHandler(deps.SKUService)
	runs := newRunsHandler(deps.Runner, deps.Recorder, deps.RunStore, deps.Evaluator, observer(deps.Metrics))
	evaluate := newEvaluateHandler(deps.Evaluator, observer(deps.Metrics))

	// Health check.
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Metrics: JSON summary plus standard exposition for scrapers.
	if deps.Metrics != nil {
		r.Get("/metrics", deps.Metrics.Handler())
		r.Method(http.MethodGet, "/metrics/prometheus", deps.Metrics.PrometheusHandler())
	}

	// Public catalog routes.
	r.Get("/api/v1/skus", skus.ListSKUs)
	r.Get("/api/v1/skus/{name}", skus.GetSKU)

	// Run and evaluation routes (rate limited).
	r.Route("/api/v1", func(rr chi.Router) {
		if deps.Limiter != nil {
			rr.Use(ratelimit.Middleware(deps.Limiter, rejectCounter(deps.Metrics)))
		}

		rr.Post("/runs", runs.CreateRun)
		rr.Get("/runs", runs.ListRuns)
		rr.Get("/runs/{id}", runs.GetRun)
		rr.Get("/runs/{id}/trace", runs.GetTrace)
		rr.Post("/runs/{id}/evaluate", runs.EvaluateRun)
		rr.Get("/runs/{id}/evaluation", runs.GetEvaluation)
		rr.Post("/evaluate", evaluate.Evaluate)
	})

	// Admin routes (require admin key).
	verifier := deps.Verifier
	if verifier == nil {
		verifier = auth.NewVerifier("")
	}
	r.Route("/api/v1/admin", func(ar chi.Router) {
		ar.Use(auth.Middleware(verifier, authRecorder(deps.Metrics)))

		ar.Put("/skus/{name}", skus.UpsertSKU)
		ar.Delete("/skus/{name}", skus.DeleteSKU)
	})

	return r
}

// observer adapts the optional metrics dependency to the handler
// interfaces without forcing callers to pass a typed nil.
func observer(m *metrics.Metrics) EvaluationObserver {
	if m == nil {
		return nil
	}
	return m
}

func authRecorder(m *metrics.Metrics) auth.FailureRecorder {
	if m == nil {
		return nil
	}
	return m
}

func rejectCounter(m *metrics.Metrics) func() {
	return func() {
		if m != nil {
			m.IncRateLimitRejection("api")
		}
	}
}
