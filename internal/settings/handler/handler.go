// Package handler exposes the review configuration endpoints.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"amparo/internal/settings"
	"amparo/pkg/platform/httputil"
)

// Service defines the settings operations the handler depends on.
type Service interface {
	Get(ctx context.Context) (*settings.Settings, error)
	Update(ctx context.Context, input settings.UpdateInput) (*settings.UpdateResult, error)
}

// Handler handles the settings endpoints.
type Handler struct {
	settings Service
	logger   *slog.Logger
}

func New(settingsService Service, logger *slog.Logger) *Handler {
	return &Handler{settings: settingsService, logger: logger}
}

// Register mounts the settings routes on the given router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/settings", h.handleGet)
	r.Put("/settings", h.handleUpdate)
}

type settingsRequest struct {
	MinPassingScore int `json:"min_passing_score"`
	AvailableSlots  int `json:"available_slots"`
}

type settingsResponse struct {
	MinPassingScore int    `json:"min_passing_score"`
	AvailableSlots  int    `json:"available_slots"`
	UpdatedAt       string `json:"updated_at,omitempty"`
}

type reclassifyResponse struct {
	ApprovedToRejected int `json:"approved_to_rejected"`
	RejectedToApproved int `json:"rejected_to_approved"`
}

type updateResponse struct {
	Settings   settingsResponse    `json:"settings"`
	Reclassify *reclassifyResponse `json:"reclassify,omitempty"`
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	current, err := h.settings.Get(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toSettingsResponse(current))
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, err := httputil.Decode[settingsRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	result, err := h.settings.Update(ctx, settings.UpdateInput{
		MinPassingScore: req.MinPassingScore,
		AvailableSlots:  req.AvailableSlots,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "settings update failed",
			"min_passing_score", req.MinPassingScore, "error", err.Error())
		httputil.WriteError(w, err)
		return
	}

	resp := updateResponse{Settings: toSettingsResponse(result.Settings)}
	if result.Reclassify != nil {
		resp.Reclassify = &reclassifyResponse{
			ApprovedToRejected: result.Reclassify.ApprovedToRejected,
			RejectedToApproved: result.Reclassify.RejectedToApproved,
		}
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func toSettingsResponse(s *settings.Settings) settingsResponse {
	resp := settingsResponse{
		MinPassingScore: s.MinPassingScore,
		AvailableSlots:  s.AvailableSlots,
	}
	if !s.UpdatedAt.IsZero() {
		resp.UpdatedAt = s.UpdatedAt.Format(time.RFC3339)
	}
	return resp
}
