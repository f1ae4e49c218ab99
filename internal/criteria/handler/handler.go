// Package handler exposes criterion and category management endpoints.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"amparo/internal/criteria"
	"amparo/internal/household"
	id "amparo/pkg/domain"
	"amparo/pkg/platform/httputil"
)

// Service defines the criteria operations the handler depends on.
type Service interface {
	CreateCategory(ctx context.Context, input criteria.CategoryInput) (*criteria.Category, error)
	ListCategories(ctx context.Context) ([]*criteria.Category, error)
	CreateCriterion(ctx context.Context, input criteria.CriterionInput) (*criteria.Criterion, error)
	UpdateCriterion(ctx context.Context, criterionID id.CriterionID, input criteria.CriterionInput) (*criteria.Criterion, error)
	GetCriterion(ctx context.Context, criterionID id.CriterionID) (*criteria.Criterion, error)
	ListCriteria(ctx context.Context, activeOnly bool) ([]*criteria.Criterion, error)
	AuditCategoryPoints(ctx context.Context) ([]criteria.CategoryPointAudit, error)
}

// Handler handles criteria management endpoints.
type Handler struct {
	criteria Service
	logger   *slog.Logger
}

func New(criteriaService Service, logger *slog.Logger) *Handler {
	return &Handler{criteria: criteriaService, logger: logger}
}

// Register mounts the criteria routes on the given router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/categories", h.handleCreateCategory)
	r.Get("/categories", h.handleListCategories)
	r.Get("/categories/audit", h.handleAudit)
	r.Post("/criteria", h.handleCreateCriterion)
	r.Get("/criteria", h.handleListCriteria)
	r.Get("/criteria/{criterionID}", h.handleGetCriterion)
	r.Put("/criteria/{criterionID}", h.handleUpdateCriterion)
}

type categoryRequest struct {
	Code         string `json:"code"`
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	DisplayOrder int    `json:"display_order"`
	Icon         string `json:"icon,omitempty"`
	Active       bool   `json:"active"`
}

type categoryResponse struct {
	ID           string `json:"id"`
	Code         string `json:"code"`
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	DisplayOrder int    `json:"display_order"`
	Icon         string `json:"icon,omitempty"`
	Active       bool   `json:"active"`
}

type criterionRequest struct {
	CategoryID  string  `json:"category_id"`
	Code        string  `json:"code"`
	Description string  `json:"description"`
	Active      bool    `json:"active"`
	BasePoints  int     `json:"base_points"`
	Weight      float64 `json:"weight"`

	AppliesToChildless    bool `json:"applies_to_childless"`
	AppliesToMaleHead     bool `json:"applies_to_male_head"`
	AppliesToSingleMember bool `json:"applies_to_single_member"`

	MinAge         *int   `json:"min_age,omitempty"`
	MaxAge         *int   `json:"max_age,omitempty"`
	RequiredSex    string `json:"required_sex,omitempty"`
	AllowedKinship string `json:"allowed_kinship,omitempty"`
}

type criterionResponse struct {
	ID          string  `json:"id"`
	CategoryID  string  `json:"category_id"`
	Code        string  `json:"code"`
	Description string  `json:"description"`
	Active      bool    `json:"active"`
	BasePoints  int     `json:"base_points"`
	Weight      float64 `json:"weight"`
	Points      int     `json:"points"`

	AppliesToChildless    bool `json:"applies_to_childless"`
	AppliesToMaleHead     bool `json:"applies_to_male_head"`
	AppliesToSingleMember bool `json:"applies_to_single_member"`

	MinAge         *int   `json:"min_age,omitempty"`
	MaxAge         *int   `json:"max_age,omitempty"`
	RequiredSex    string `json:"required_sex,omitempty"`
	AllowedKinship string `json:"allowed_kinship,omitempty"`
}

type auditResponse struct {
	CategoryID   string `json:"category_id"`
	CategoryName string `json:"category_name"`
	Total        int    `json:"total"`
	Target       int    `json:"target"`
	OnTarget     bool   `json:"on_target"`
}

func (h *Handler) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	req, err := httputil.Decode[categoryRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	category, err := h.criteria.CreateCategory(r.Context(), criteria.CategoryInput{
		Code:         req.Code,
		Name:         req.Name,
		Description:  req.Description,
		DisplayOrder: req.DisplayOrder,
		Icon:         req.Icon,
		Active:       req.Active,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toCategoryResponse(category))
}

func (h *Handler) handleListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.criteria.ListCategories(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	out := make([]categoryResponse, 0, len(categories))
	for _, category := range categories {
		out = append(out, toCategoryResponse(category))
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) handleAudit(w http.ResponseWriter, r *http.Request) {
	audits, err := h.criteria.AuditCategoryPoints(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	out := make([]auditResponse, 0, len(audits))
	for _, audit := range audits {
		out = append(out, auditResponse{
			CategoryID:   audit.CategoryID.String(),
			CategoryName: audit.CategoryName,
			Total:        audit.Total,
			Target:       audit.Target,
			OnTarget:     audit.OnTarget,
		})
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) handleCreateCriterion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, err := httputil.Decode[criterionRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	input, err := toCriterionInput(req)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	criterion, err := h.criteria.CreateCriterion(ctx, input)
	if err != nil {
		h.logger.WarnContext(ctx, "criterion create failed", "code", req.Code, "error", err.Error())
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toCriterionResponse(criterion))
}

func (h *Handler) handleListCriteria(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"
	criteriaList, err := h.criteria.ListCriteria(r.Context(), activeOnly)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	out := make([]criterionResponse, 0, len(criteriaList))
	for _, criterion := range criteriaList {
		out = append(out, toCriterionResponse(criterion))
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) handleGetCriterion(w http.ResponseWriter, r *http.Request) {
	criterionID, err := id.ParseCriterionID(chi.URLParam(r, "criterionID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	criterion, err := h.criteria.GetCriterion(r.Context(), criterionID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toCriterionResponse(criterion))
}

func (h *Handler) handleUpdateCriterion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	criterionID, err := id.ParseCriterionID(chi.URLParam(r, "criterionID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, err := httputil.Decode[criterionRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	input, err := toCriterionInput(req)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	criterion, err := h.criteria.UpdateCriterion(ctx, criterionID, input)
	if err != nil {
		h.logger.WarnContext(ctx, "criterion update failed",
			"criterion_id", criterionID.String(), "error", err.Error())
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toCriterionResponse(criterion))
}

func toCriterionInput(req criterionRequest) (criteria.CriterionInput, error) {
	categoryID, err := id.ParseCategoryID(req.CategoryID)
	if err != nil {
		return criteria.CriterionInput{}, err
	}
	return criteria.CriterionInput{
		CategoryID:            categoryID,
		Code:                  req.Code,
		Description:           req.Description,
		Active:                req.Active,
		BasePoints:            req.BasePoints,
		Weight:                req.Weight,
		AppliesToChildless:    req.AppliesToChildless,
		AppliesToMaleHead:     req.AppliesToMaleHead,
		AppliesToSingleMember: req.AppliesToSingleMember,
		MinAge:                req.MinAge,
		MaxAge:                req.MaxAge,
		RequiredSex:           household.Sex(req.RequiredSex),
		AllowedKinship:        req.AllowedKinship,
	}, nil
}

func toCategoryResponse(category *criteria.Category) categoryResponse {
	return categoryResponse{
		ID:           category.ID.String(),
		Code:         category.Code,
		Name:         category.Name,
		Description:  category.Description,
		DisplayOrder: category.DisplayOrder,
		Icon:         category.Icon,
		Active:       category.Active,
	}
}

func toCriterionResponse(criterion *criteria.Criterion) criterionResponse {
	return criterionResponse{
		ID:                    criterion.ID.String(),
		CategoryID:            criterion.CategoryID.String(),
		Code:                  criterion.Code,
		Description:           criterion.Description,
		Active:                criterion.Active,
		BasePoints:            criterion.BasePoints,
		Weight:                criterion.Weight,
		Points:                criterion.Points(),
		AppliesToChildless:    criterion.AppliesToChildless,
		AppliesToMaleHead:     criterion.AppliesToMaleHead,
		AppliesToSingleMember: criterion.AppliesToSingleMember,
		MinAge:                criterion.MinAge,
		MaxAge:                criterion.MaxAge,
		RequiredSex:           string(criterion.RequiredSex),
		AllowedKinship:        criterion.AllowedKinship,
	}
}
