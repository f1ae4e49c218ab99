// Package handler exposes household ingestion endpoints.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"amparo/internal/household"
	id "amparo/pkg/domain"
	dErrors "amparo/pkg/domain-errors"
	"amparo/pkg/platform/httputil"
)

// Service defines the household operations the handler depends on.
type Service interface {
	Create(ctx context.Context, input household.CreateInput) (*household.Household, error)
	Get(ctx context.Context, householdID id.HouseholdID) (*household.Household, error)
	GetByCode(ctx context.Context, code string) (*household.Household, error)
	List(ctx context.Context) ([]*household.Household, error)
	AddMember(ctx context.Context, householdID id.HouseholdID, input household.MemberInput) (*household.Member, error)
	Delete(ctx context.Context, householdID id.HouseholdID) error
}

// Handler handles household endpoints.
type Handler struct {
	households Service
	logger     *slog.Logger
}

func New(households Service, logger *slog.Logger) *Handler {
	return &Handler{households: households, logger: logger}
}

// Register mounts the household routes on the given router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/households", h.handleCreate)
	r.Get("/households", h.handleList)
	r.Get("/households/{householdID}", h.handleGet)
	r.Post("/households/{householdID}/members", h.handleAddMember)
	r.Delete("/households/{householdID}", h.handleDelete)
}

type memberRequest struct {
	Name       string `json:"name"`
	RegistryID string `json:"registry_id"`
	TaxID      string `json:"tax_id,omitempty"`
	BirthDate  string `json:"birth_date,omitempty"`
	Sex        string `json:"sex"`
	Kinship    int    `json:"kinship"`
}

type createRequest struct {
	Code             string          `json:"code"`
	UpdatedOn        string          `json:"updated_on"`
	AvgIncomeCents   int64           `json:"avg_income_cents"`
	TotalIncomeCents int64           `json:"total_income_cents"`
	Street           string          `json:"street,omitempty"`
	StreetNumber     string          `json:"street_number,omitempty"`
	Neighborhood     string          `json:"neighborhood,omitempty"`
	PostalCode       string          `json:"postal_code,omitempty"`
	DeclaredMembers  int             `json:"declared_members"`
	SourceBatch      string          `json:"source_batch,omitempty"`
	Members          []memberRequest `json:"members"`
}

type memberResponse struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	RegistryID string `json:"registry_id"`
	TaxID      string `json:"tax_id,omitempty"`
	BirthDate  string `json:"birth_date,omitempty"`
	Sex        string `json:"sex"`
	Kinship    int    `json:"kinship"`
}

type householdResponse struct {
	ID               string           `json:"id"`
	Code             string           `json:"code"`
	UpdatedOn        string           `json:"updated_on"`
	AvgIncomeCents   int64            `json:"avg_income_cents"`
	TotalIncomeCents int64            `json:"total_income_cents"`
	Street           string           `json:"street,omitempty"`
	StreetNumber     string           `json:"street_number,omitempty"`
	Neighborhood     string           `json:"neighborhood,omitempty"`
	PostalCode       string           `json:"postal_code,omitempty"`
	DeclaredMembers  int              `json:"declared_members"`
	SourceBatch      string           `json:"source_batch,omitempty"`
	Members          []memberResponse `json:"members"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, err := httputil.Decode[createRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	input, err := toCreateInput(req)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	created, err := h.households.Create(ctx, input)
	if err != nil {
		h.logger.WarnContext(ctx, "household create failed", "code", req.Code, "error", err.Error())
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toHouseholdResponse(created))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if code := r.URL.Query().Get("code"); code != "" {
		found, err := h.households.GetByCode(ctx, code)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, []householdResponse{toHouseholdResponse(found)})
		return
	}

	households, err := h.households.List(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "household list failed", "error", err.Error())
		httputil.WriteError(w, err)
		return
	}
	out := make([]householdResponse, 0, len(households))
	for _, found := range households {
		out = append(out, toHouseholdResponse(found))
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	householdID, err := id.ParseHouseholdID(chi.URLParam(r, "householdID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	found, err := h.households.Get(ctx, householdID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toHouseholdResponse(found))
}

func (h *Handler) handleAddMember(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	householdID, err := id.ParseHouseholdID(chi.URLParam(r, "householdID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, err := httputil.Decode[memberRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	input, err := toMemberInput(req)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	member, err := h.households.AddMember(ctx, householdID, input)
	if err != nil {
		h.logger.WarnContext(ctx, "add member failed",
			"household_id", householdID.String(), "error", err.Error())
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toMemberResponse(member))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	householdID, err := id.ParseHouseholdID(chi.URLParam(r, "householdID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.households.Delete(ctx, householdID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

const dateLayout = "2006-01-02"

func toCreateInput(req createRequest) (household.CreateInput, error) {
	updatedOn, err := time.Parse(dateLayout, req.UpdatedOn)
	if err != nil {
		return household.CreateInput{}, dErrors.New(dErrors.CodeBadRequest, "updated_on must be YYYY-MM-DD")
	}
	input := household.CreateInput{
		Code:             req.Code,
		UpdatedOn:        updatedOn,
		AvgIncomeCents:   req.AvgIncomeCents,
		TotalIncomeCents: req.TotalIncomeCents,
		Street:           req.Street,
		StreetNumber:     req.StreetNumber,
		Neighborhood:     req.Neighborhood,
		PostalCode:       req.PostalCode,
		DeclaredMembers:  req.DeclaredMembers,
		SourceBatch:      req.SourceBatch,
	}
	for _, m := range req.Members {
		memberInput, err := toMemberInput(m)
		if err != nil {
			return household.CreateInput{}, err
		}
		input.Members = append(input.Members, memberInput)
	}
	return input, nil
}

func toMemberInput(req memberRequest) (household.MemberInput, error) {
	input := household.MemberInput{
		Name:       req.Name,
		RegistryID: req.RegistryID,
		TaxID:      req.TaxID,
		Sex:        household.Sex(req.Sex),
		Kinship:    household.Kinship(req.Kinship),
	}
	if req.BirthDate != "" {
		birth, err := time.Parse(dateLayout, req.BirthDate)
		if err != nil {
			return household.MemberInput{}, dErrors.New(dErrors.CodeBadRequest, "birth_date must be YYYY-MM-DD")
		}
		input.BirthDate = &birth
	}
	return input, nil
}

func toHouseholdResponse(h *household.Household) householdResponse {
	resp := householdResponse{
		ID:               h.ID.String(),
		Code:             h.Code,
		UpdatedOn:        h.UpdatedOn.Format(dateLayout),
		AvgIncomeCents:   h.AvgIncomeCents,
		TotalIncomeCents: h.TotalIncomeCents,
		Street:           h.Street,
		StreetNumber:     h.StreetNumber,
		Neighborhood:     h.Neighborhood,
		PostalCode:       h.PostalCode,
		DeclaredMembers:  h.DeclaredMembers,
		SourceBatch:      h.SourceBatch,
		Members:          make([]memberResponse, 0, len(h.Members)),
	}
	for _, m := range h.Members {
		resp.Members = append(resp.Members, toMemberResponse(m))
	}
	return resp
}

func toMemberResponse(m *household.Member) memberResponse {
	resp := memberResponse{
		ID:         m.ID.String(),
		Name:       m.Name,
		RegistryID: m.RegistryID,
		TaxID:      m.TaxID,
		Sex:        string(m.Sex),
		Kinship:    int(m.Kinship),
	}
	if m.BirthDate != nil {
		resp.BirthDate = m.BirthDate.Format(dateLayout)
	}
	return resp
}
