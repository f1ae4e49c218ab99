package household

import (
	"context"
	"errors"
	"log/slog"
	"time"

	id "amparo/pkg/domain"
	dErrors "amparo/pkg/domain-errors"
	"amparo/pkg/platform/sentinel"
)

// EvaluationOpener opens a pending evaluation for a newly ingested
// household. Implemented by the evaluation service.
type EvaluationOpener interface {
	OpenForHousehold(ctx context.Context, householdID id.HouseholdID) error
}

// Service enforces household write invariants and orchestrates ingestion.
type Service struct {
	store       Store
	evaluations EvaluationOpener
	logger      *slog.Logger
}

func NewService(store Store, evaluations EvaluationOpener, logger *slog.Logger) *Service {
	return &Service{
		store:       store,
		evaluations: evaluations,
		logger:      logger,
	}
}

// CreateInput carries an ingested household with its members.
type CreateInput struct {
	Code             string
	UpdatedOn        time.Time
	AvgIncomeCents   int64
	TotalIncomeCents int64
	Street           string
	StreetNumber     string
	Neighborhood     string
	PostalCode       string
	DeclaredMembers  int
	SourceBatch      string
	Members          []MemberInput
}

// MemberInput carries one ingested member.
type MemberInput struct {
	Name       string
	RegistryID string
	TaxID      string
	BirthDate  *time.Time
	Sex        Sex
	Kinship    Kinship
}

// Create ingests a household and opens its pending evaluation.
func (s *Service) Create(ctx context.Context, input CreateInput) (*Household, error) {
	if input.Code == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "household code is required")
	}

	h := &Household{
		ID:               id.NewHouseholdID(),
		Code:             input.Code,
		UpdatedOn:        input.UpdatedOn,
		AvgIncomeCents:   input.AvgIncomeCents,
		TotalIncomeCents: input.TotalIncomeCents,
		Street:           input.Street,
		StreetNumber:     input.StreetNumber,
		Neighborhood:     input.Neighborhood,
		PostalCode:       input.PostalCode,
		DeclaredMembers:  input.DeclaredMembers,
		SourceBatch:      input.SourceBatch,
	}
	for _, memberInput := range input.Members {
		member, err := buildMember(h.ID, memberInput)
		if err != nil {
			return nil, err
		}
		h.Members = append(h.Members, member)
	}
	if err := validateMembers(h.Members); err != nil {
		return nil, err
	}

	if err := s.store.Create(ctx, h); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "household code already registered")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "create household")
	}

	if s.evaluations != nil {
		if err := s.evaluations.OpenForHousehold(ctx, h.ID); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "open evaluation")
		}
	}

	s.logger.Info("household created",
		"household_id", h.ID.String(),
		"code", h.Code,
		"members", len(h.Members))
	return h, nil
}

// Get fetches a household with its members.
func (s *Service) Get(ctx context.Context, householdID id.HouseholdID) (*Household, error) {
	h, err := s.store.Get(ctx, householdID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "household not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "get household")
	}
	return h, nil
}

// GetByCode fetches a household by its business code.
func (s *Service) GetByCode(ctx context.Context, code string) (*Household, error) {
	if code == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "household code is required")
	}
	h, err := s.store.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "household not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "get household by code")
	}
	return h, nil
}

// List returns all households with members.
func (s *Service) List(ctx context.Context) ([]*Household, error) {
	households, err := s.store.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list households")
	}
	return households, nil
}

// AddMember attaches a member to an existing household, preserving the
// single-head and registry-id invariants.
func (s *Service) AddMember(ctx context.Context, householdID id.HouseholdID, input MemberInput) (*Member, error) {
	h, err := s.Get(ctx, householdID)
	if err != nil {
		return nil, err
	}

	member, err := buildMember(householdID, input)
	if err != nil {
		return nil, err
	}
	if err := validateMembers(append(h.Members, member)); err != nil {
		return nil, err
	}

	if err := s.store.AddMember(ctx, member); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "registry id already present in household")
		}
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "household not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "add member")
	}
	return member, nil
}

// Delete removes a household and its members.
func (s *Service) Delete(ctx context.Context, householdID id.HouseholdID) error {
	if err := s.store.Delete(ctx, householdID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "household not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "delete household")
	}
	s.logger.Info("household deleted", "household_id", householdID.String())
	return nil
}

func buildMember(householdID id.HouseholdID, input MemberInput) (*Member, error) {
	if input.Name == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "member name is required")
	}
	if input.RegistryID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "member registry id is required")
	}
	if !input.Kinship.Valid() {
		return nil, dErrors.Newf(dErrors.CodeValidation, "unknown kinship code %d", input.Kinship)
	}
	return &Member{
		ID:          id.NewMemberID(),
		HouseholdID: householdID,
		Name:        input.Name,
		RegistryID:  input.RegistryID,
		TaxID:       input.TaxID,
		BirthDate:   input.BirthDate,
		Sex:         input.Sex,
		Kinship:     input.Kinship,
	}, nil
}

func validateMembers(members []*Member) error {
	heads := 0
	seen := make(map[string]struct{}, len(members))
	for _, m := range members {
		if m.Kinship == KinshipHead {
			heads++
		}
		if _, dup := seen[m.RegistryID]; dup {
			return dErrors.Newf(dErrors.CodeValidation, "duplicate registry id %s in household", m.RegistryID)
		}
		seen[m.RegistryID] = struct{}{}
	}
	if heads > 1 {
		return dErrors.New(dErrors.CodeValidation, "household has more than one head")
	}
	return nil
}
