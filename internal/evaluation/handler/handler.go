// Package handler exposes the review workflow endpoints.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"amparo/internal/evaluation"
	id "amparo/pkg/domain"
	dErrors "amparo/pkg/domain-errors"
	"amparo/pkg/platform/httputil"
	"amparo/pkg/requestcontext"
)

// Service defines the evaluation operations the handler depends on.
type Service interface {
	Get(ctx context.Context, evaluationID id.EvaluationID) (*evaluation.Evaluation, error)
	GetByHousehold(ctx context.Context, householdID id.HouseholdID) (*evaluation.Evaluation, error)
	List(ctx context.Context, statuses ...evaluation.Status) ([]*evaluation.Evaluation, error)
	Links(ctx context.Context, evaluationID id.EvaluationID) ([]*evaluation.CriterionLink, error)
	StartReview(ctx context.Context, evaluationID id.EvaluationID, reviewer id.ReviewerID) (*evaluation.Evaluation, error)
	SaveProgress(ctx context.Context, evaluationID id.EvaluationID, reviewer id.ReviewerID, edits []evaluation.LinkEdit, notes *string) (*evaluation.Evaluation, error)
	DetailedScore(ctx context.Context, evaluationID id.EvaluationID) (map[id.CategoryID]evaluation.CategoryScore, error)
	Finalize(ctx context.Context, evaluationID id.EvaluationID, reviewer id.ReviewerID, minPassingScore int) (*evaluation.Evaluation, error)
	Release(ctx context.Context, evaluationID id.EvaluationID, reviewer id.ReviewerID) error
	Transfer(ctx context.Context, evaluationID id.EvaluationID, from, to id.ReviewerID) error
	EditFinalized(ctx context.Context, evaluationID id.EvaluationID, editor id.ReviewerID, input evaluation.EditInput) (*evaluation.HistoryEntry, error)
	History(ctx context.Context, evaluationID id.EvaluationID) ([]*evaluation.HistoryEntry, error)
}

// SettingsProvider supplies the passing threshold for finalization.
type SettingsProvider interface {
	MinPassingScore(ctx context.Context) (int, error)
}

// Handler handles review workflow endpoints.
type Handler struct {
	evaluations Service
	settings    SettingsProvider
	logger      *slog.Logger
}

func New(evaluations Service, settings SettingsProvider, logger *slog.Logger) *Handler {
	return &Handler{evaluations: evaluations, settings: settings, logger: logger}
}

// Register mounts the evaluation routes on the given router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/evaluations", h.handleList)
	r.Get("/evaluations/{evaluationID}", h.handleGet)
	r.Get("/evaluations/{evaluationID}/score", h.handleDetailedScore)
	r.Get("/evaluations/{evaluationID}/history", h.handleHistory)
	r.Post("/evaluations/{evaluationID}/review", h.handleStartReview)
	r.Put("/evaluations/{evaluationID}/progress", h.handleSaveProgress)
	r.Post("/evaluations/{evaluationID}/finalize", h.handleFinalize)
	r.Post("/evaluations/{evaluationID}/release", h.handleRelease)
	r.Post("/evaluations/{evaluationID}/transfer", h.handleTransfer)
	r.Post("/evaluations/{evaluationID}/edit", h.handleEditFinalized)
}

type linkResponse struct {
	ID          string `json:"id"`
	CriterionID string `json:"criterion_id"`
	Satisfied   bool   `json:"satisfied"`
	Applicable  bool   `json:"applicable"`
	Note        string `json:"note,omitempty"`
	DocumentRef string `json:"document_ref,omitempty"`
}

type evaluationResponse struct {
	ID            string         `json:"id"`
	HouseholdID   string         `json:"household_id"`
	Status        string         `json:"status"`
	Score         int            `json:"score"`
	Notes         string         `json:"notes,omitempty"`
	LockedBy      string         `json:"locked_by,omitempty"`
	LockStartedAt string         `json:"lock_started_at,omitempty"`
	FinalizedAt   string         `json:"finalized_at,omitempty"`
	FinalizedBy   string         `json:"finalized_by,omitempty"`
	Links         []linkResponse `json:"links,omitempty"`
}

type categoryScoreResponse struct {
	CategoryID string `json:"category_id"`
	Total      int    `json:"total"`
	Effective  int    `json:"effective"`
}

type linkEditRequest struct {
	LinkID      string  `json:"link_id"`
	Satisfied   bool    `json:"satisfied"`
	Note        *string `json:"note,omitempty"`
	DocumentRef *string `json:"document_ref,omitempty"`
}

type progressRequest struct {
	Links []linkEditRequest `json:"links"`
	Notes *string           `json:"notes,omitempty"`
}

type transferRequest struct {
	To string `json:"to"`
}

type editRequest struct {
	Justification string            `json:"justification"`
	Links         []linkEditRequest `json:"links"`
	Notes         *string           `json:"notes,omitempty"`
}

type fieldChangeResponse struct {
	Field  string `json:"field"`
	Before string `json:"before"`
	After  string `json:"after"`
}

type criterionChangeResponse struct {
	CriterionID string `json:"criterion_id"`
	Description string `json:"description"`
	Before      bool   `json:"before"`
	After       bool   `json:"after"`
}

type historyResponse struct {
	ID               string                    `json:"id"`
	EditedBy         string                    `json:"edited_by"`
	Justification    string                    `json:"justification,omitempty"`
	FieldChanges     []fieldChangeResponse     `json:"field_changes"`
	CriterionChanges []criterionChangeResponse `json:"criterion_changes"`
	CreatedAt        string                    `json:"created_at"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if rawHousehold := r.URL.Query().Get("household_id"); rawHousehold != "" {
		householdID, err := id.ParseHouseholdID(rawHousehold)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		e, err := h.evaluations.GetByHousehold(ctx, householdID)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, []evaluationResponse{toEvaluationResponse(e, nil)})
		return
	}

	var statuses []evaluation.Status
	if raw := r.URL.Query().Get("status"); raw != "" {
		statuses = append(statuses, evaluation.Status(raw))
	}
	evaluations, err := h.evaluations.List(ctx, statuses...)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	out := make([]evaluationResponse, 0, len(evaluations))
	for _, e := range evaluations {
		out = append(out, toEvaluationResponse(e, nil))
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	evaluationID, err := id.ParseEvaluationID(chi.URLParam(r, "evaluationID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	e, err := h.evaluations.Get(ctx, evaluationID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	links, err := h.evaluations.Links(ctx, evaluationID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toEvaluationResponse(e, links))
}

func (h *Handler) handleDetailedScore(w http.ResponseWriter, r *http.Request) {
	evaluationID, err := id.ParseEvaluationID(chi.URLParam(r, "evaluationID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	breakdown, err := h.evaluations.DetailedScore(r.Context(), evaluationID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	out := make([]categoryScoreResponse, 0, len(breakdown))
	for categoryID, score := range breakdown {
		out = append(out, categoryScoreResponse{
			CategoryID: categoryID.String(),
			Total:      score.Total,
			Effective:  score.Effective,
		})
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	evaluationID, err := id.ParseEvaluationID(chi.URLParam(r, "evaluationID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	entries, err := h.evaluations.History(r.Context(), evaluationID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	out := make([]historyResponse, 0, len(entries))
	for _, entry := range entries {
		out = append(out, toHistoryResponse(entry))
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) handleStartReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	evaluationID, reviewer, err := h.reviewParams(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	e, err := h.evaluations.StartReview(ctx, evaluationID, reviewer)
	if err != nil {
		h.logger.WarnContext(ctx, "start review failed",
			"evaluation_id", evaluationID.String(),
			"reviewer_id", reviewer.String(),
			"error", err.Error())
		httputil.WriteError(w, err)
		return
	}
	links, err := h.evaluations.Links(ctx, evaluationID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toEvaluationResponse(e, links))
}

func (h *Handler) handleSaveProgress(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	evaluationID, reviewer, err := h.reviewParams(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, err := httputil.Decode[progressRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	edits, err := toLinkEdits(req.Links)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	e, err := h.evaluations.SaveProgress(ctx, evaluationID, reviewer, edits, req.Notes)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toEvaluationResponse(e, nil))
}

func (h *Handler) handleFinalize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	evaluationID, reviewer, err := h.reviewParams(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	minScore, err := h.settings.MinPassingScore(ctx)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	e, err := h.evaluations.Finalize(ctx, evaluationID, reviewer, minScore)
	if err != nil {
		h.logger.WarnContext(ctx, "finalize failed",
			"evaluation_id", evaluationID.String(),
			"reviewer_id", reviewer.String(),
			"error", err.Error())
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toEvaluationResponse(e, nil))
}

func (h *Handler) handleRelease(w http.ResponseWriter, r *http.Request) {
	evaluationID, reviewer, err := h.reviewParams(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.evaluations.Release(r.Context(), evaluationID, reviewer); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleTransfer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	evaluationID, reviewer, err := h.reviewParams(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, err := httputil.Decode[transferRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	to, err := id.ParseReviewerID(req.To)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.evaluations.Transfer(ctx, evaluationID, reviewer, to); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleEditFinalized(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	evaluationID, reviewer, err := h.reviewParams(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, err := httputil.Decode[editRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	edits, err := toLinkEdits(req.Links)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	minScore, err := h.settings.MinPassingScore(ctx)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	entry, err := h.evaluations.EditFinalized(ctx, evaluationID, reviewer, evaluation.EditInput{
		Justification:   req.Justification,
		Notes:           req.Notes,
		Links:           edits,
		MinPassingScore: minScore,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "finalized edit failed",
			"evaluation_id", evaluationID.String(),
			"editor_id", reviewer.String(),
			"error", err.Error())
		httputil.WriteError(w, err)
		return
	}
	if entry == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toHistoryResponse(entry))
}

func (h *Handler) reviewParams(r *http.Request) (id.EvaluationID, id.ReviewerID, error) {
	evaluationID, err := id.ParseEvaluationID(chi.URLParam(r, "evaluationID"))
	if err != nil {
		return id.EvaluationID{}, id.ReviewerID{}, err
	}
	reviewer := requestcontext.ReviewerID(r.Context())
	if reviewer.IsZero() {
		return id.EvaluationID{}, id.ReviewerID{}, dErrors.New(dErrors.CodeUnauthorized, "reviewer identity missing")
	}
	return evaluationID, reviewer, nil
}

func toLinkEdits(reqs []linkEditRequest) ([]evaluation.LinkEdit, error) {
	edits := make([]evaluation.LinkEdit, 0, len(reqs))
	for _, req := range reqs {
		linkID, err := id.ParseLinkID(req.LinkID)
		if err != nil {
			return nil, err
		}
		edits = append(edits, evaluation.LinkEdit{
			LinkID:      linkID,
			Satisfied:   req.Satisfied,
			Note:        req.Note,
			DocumentRef: req.DocumentRef,
		})
	}
	return edits, nil
}

func toEvaluationResponse(e *evaluation.Evaluation, links []*evaluation.CriterionLink) evaluationResponse {
	resp := evaluationResponse{
		ID:          e.ID.String(),
		HouseholdID: e.HouseholdID.String(),
		Status:      string(e.Status),
		Score:       e.Score,
		Notes:       e.Notes,
	}
	if e.LockedBy != nil {
		resp.LockedBy = e.LockedBy.String()
	}
	if e.LockStartedAt != nil {
		resp.LockStartedAt = e.LockStartedAt.Format(time.RFC3339)
	}
	if e.FinalizedAt != nil {
		resp.FinalizedAt = e.FinalizedAt.Format(time.RFC3339)
	}
	if e.FinalizedBy != nil {
		resp.FinalizedBy = e.FinalizedBy.String()
	}
	for _, link := range links {
		resp.Links = append(resp.Links, linkResponse{
			ID:          link.ID.String(),
			CriterionID: link.CriterionID.String(),
			Satisfied:   link.Satisfied,
			Applicable:  link.Applicable,
			Note:        link.Note,
			DocumentRef: link.DocumentRef,
		})
	}
	return resp
}

func toHistoryResponse(entry *evaluation.HistoryEntry) historyResponse {
	resp := historyResponse{
		ID:               entry.ID.String(),
		EditedBy:         entry.EditedBy.String(),
		Justification:    entry.Justification,
		FieldChanges:     make([]fieldChangeResponse, 0, len(entry.FieldChanges)),
		CriterionChanges: make([]criterionChangeResponse, 0, len(entry.CriterionChanges)),
		CreatedAt:        entry.CreatedAt.Format(time.RFC3339),
	}
	for _, change := range entry.FieldChanges {
		resp.FieldChanges = append(resp.FieldChanges, fieldChangeResponse(change))
	}
	for _, change := range entry.CriterionChanges {
		resp.CriterionChanges = append(resp.CriterionChanges, criterionChangeResponse{
			CriterionID: change.CriterionID.String(),
			Description: change.Description,
			Before:      change.Before,
			After:       change.After,
		})
	}
	return resp
}
