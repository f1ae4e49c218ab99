// Package httptransport assembles the HTTP surface: middleware chain,
// public endpoints and the authenticated review API.
package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	criteriahandler "amparo/internal/criteria/handler"
	evaluationhandler "amparo/internal/evaluation/handler"
	householdhandler "amparo/internal/household/handler"
	"amparo/internal/platform/metrics"
	"amparo/internal/platform/middleware"
	settingshandler "amparo/internal/settings/handler"
	statshandler "amparo/internal/stats/handler"
	"amparo/pkg/platform/httputil"
)

// Handlers groups the feature handlers the router mounts.
type Handlers struct {
	Households  *householdhandler.Handler
	Criteria    *criteriahandler.Handler
	Evaluations *evaluationhandler.Handler
	Settings    *settingshandler.Handler
	Stats       *statshandler.Handler
}

// NewRouter wires the full HTTP API. Everything under /api/v1 requires a
// reviewer token; health and metrics stay public.
func NewRouter(h Handlers, validator middleware.TokenValidator, httpMetrics *metrics.Metrics, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTime)
	r.Use(chimiddleware.Recoverer)
	r.Use(httpMetrics.Instrument)

	r.Get("/healthz", handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RequireReviewer(validator, logger))

		h.Households.Register(r)
		h.Criteria.Register(r)
		h.Evaluations.Register(r)
		h.Settings.Register(r)
		h.Stats.Register(r)
	})

	return r
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
