// Package handler exposes the reporting aggregates endpoint.
package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"amparo/internal/stats"
	dErrors "amparo/pkg/domain-errors"
	"amparo/pkg/platform/httputil"
)

// Service defines the stats operations the handler depends on.
type Service interface {
	Overview(ctx context.Context, filters stats.Filters) (*stats.Overview, error)
}

// Handler handles the stats endpoints.
type Handler struct {
	stats Service
}

func New(statsService Service) *Handler {
	return &Handler{stats: statsService}
}

// Register mounts the stats routes on the given router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/stats", h.handleOverview)
}

func (h *Handler) handleOverview(w http.ResponseWriter, r *http.Request) {
	filters := stats.Filters{
		Neighborhood: r.URL.Query().Get("neighborhood"),
	}
	if raw := r.URL.Query().Get("min_per_neighborhood"); raw != "" {
		minimum, err := strconv.Atoi(raw)
		if err != nil || minimum < 0 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput,
				"min_per_neighborhood must be a non-negative integer"))
			return
		}
		filters.MinPerNeighborhood = minimum
	}

	overview, err := h.stats.Overview(r.Context(), filters)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, overview)
}
