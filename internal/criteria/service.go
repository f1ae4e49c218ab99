package criteria

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"amparo/internal/criteria/metrics"
	"amparo/internal/household"
	id "amparo/pkg/domain"
	dErrors "amparo/pkg/domain-errors"
	"amparo/pkg/platform/sentinel"
)

// Cascade receives criterion lifecycle notifications and propagates them
// across evaluations. Implemented by the evaluation associator; saving a
// criterion triggers these explicitly rather than through a storage hook.
type Cascade interface {
	// OnCriterionCreated links the new criterion to every existing
	// evaluation, returning the number of links created.
	OnCriterionCreated(ctx context.Context, criterion *Criterion) (int, error)
	// OnCriterionUpdated re-evaluates applicability and rescores every
	// evaluation already linked to the criterion.
	OnCriterionUpdated(ctx context.Context, criterion *Criterion) error
}

// Service manages the criterion registry and drives rule-change cascades.
type Service struct {
	store   Store
	cascade Cascade
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewService(store Store, cascade Cascade, metrics *metrics.Metrics, logger *slog.Logger) *Service {
	return &Service{
		store:   store,
		cascade: cascade,
		metrics: metrics,
		logger:  logger,
	}
}

// CategoryInput carries a new category definition.
type CategoryInput struct {
	Code         string
	Name         string
	Description  string
	DisplayOrder int
	Icon         string
	Active       bool
}

// CreateCategory registers a new category.
func (s *Service) CreateCategory(ctx context.Context, input CategoryInput) (*Category, error) {
	if input.Code == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "category code is required")
	}
	if input.Name == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "category name is required")
	}
	category := &Category{
		ID:           id.NewCategoryID(),
		Code:         input.Code,
		Name:         input.Name,
		Description:  input.Description,
		DisplayOrder: input.DisplayOrder,
		Icon:         input.Icon,
		Active:       input.Active,
	}
	if err := s.store.CreateCategory(ctx, category); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "category code already registered")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "create category")
	}
	return category, nil
}

// ListCategories returns all categories in display order.
func (s *Service) ListCategories(ctx context.Context) ([]*Category, error) {
	categories, err := s.store.ListCategories(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list categories")
	}
	return categories, nil
}

// CriterionInput carries a criterion definition for create or update.
type CriterionInput struct {
	CategoryID  id.CategoryID
	Code        string
	Description string
	Active      bool
	BasePoints  int
	Weight      float64

	AppliesToChildless    bool
	AppliesToMaleHead     bool
	AppliesToSingleMember bool

	MinAge         *int
	MaxAge         *int
	RequiredSex    household.Sex
	AllowedKinship string
}

// CreateCriterion registers a new criterion and, when active, links it to
// every existing evaluation.
func (s *Service) CreateCriterion(ctx context.Context, input CriterionInput) (*Criterion, error) {
	if err := s.validateCriterionInput(ctx, input); err != nil {
		return nil, err
	}
	criterion := criterionFromInput(id.NewCriterionID(), input)

	if err := s.store.CreateCriterion(ctx, criterion); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "criterion code already registered")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "create criterion")
	}
	s.metrics.IncrementSave("create")

	if criterion.Active && s.cascade != nil {
		start := time.Now()
		linked, err := s.cascade.OnCriterionCreated(ctx, criterion)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "associate new criterion")
		}
		s.metrics.ObserveCascadeDuration(time.Since(start))
		s.logger.Info("criterion created",
			"criterion_code", criterion.Code,
			"links_created", linked)
	}
	return criterion, nil
}

// UpdateCriterion replaces a criterion's definition and cascades the rule
// change across every evaluation already linked to it.
func (s *Service) UpdateCriterion(ctx context.Context, criterionID id.CriterionID, input CriterionInput) (*Criterion, error) {
	if err := s.validateCriterionInput(ctx, input); err != nil {
		return nil, err
	}
	criterion := criterionFromInput(criterionID, input)

	if err := s.store.UpdateCriterion(ctx, criterion); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "criterion not found")
		}
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "criterion code already registered")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "update criterion")
	}
	s.metrics.IncrementSave("update")

	if s.cascade != nil {
		start := time.Now()
		if err := s.cascade.OnCriterionUpdated(ctx, criterion); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "cascade criterion update")
		}
		s.metrics.ObserveCascadeDuration(time.Since(start))
		s.logger.Info("criterion updated and cascaded", "criterion_code", criterion.Code)
	}
	return criterion, nil
}

// GetCriterion fetches one criterion.
func (s *Service) GetCriterion(ctx context.Context, criterionID id.CriterionID) (*Criterion, error) {
	criterion, err := s.store.GetCriterion(ctx, criterionID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "criterion not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "get criterion")
	}
	return criterion, nil
}

// ListCriteria returns criteria in category display order.
func (s *Service) ListCriteria(ctx context.Context, activeOnly bool) ([]*Criterion, error) {
	criteria, err := s.store.ListCriteria(ctx, activeOnly)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list criteria")
	}
	return criteria, nil
}

// CategoryPointAudit reports one category's configured point total against
// the per-category design target.
type CategoryPointAudit struct {
	CategoryID   id.CategoryID
	CategoryName string
	Total        int
	Target       int
	OnTarget     bool
}

// CategoryPointTarget is the data-entry design target for the sum of a
// category's criterion points. Not enforced at runtime.
const CategoryPointTarget = 25

// AuditCategoryPoints sums each category's active criterion points and
// compares against the design target. Advisory only.
func (s *Service) AuditCategoryPoints(ctx context.Context) ([]CategoryPointAudit, error) {
	categories, err := s.store.ListCategories(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list categories")
	}
	criteria, err := s.store.ListCriteria(ctx, true)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list criteria")
	}

	totals := make(map[id.CategoryID]int)
	for _, criterion := range criteria {
		totals[criterion.CategoryID] += criterion.Points()
	}

	audits := make([]CategoryPointAudit, 0, len(categories))
	for _, category := range categories {
		total := totals[category.ID]
		audits = append(audits, CategoryPointAudit{
			CategoryID:   category.ID,
			CategoryName: category.Name,
			Total:        total,
			Target:       CategoryPointTarget,
			OnTarget:     total == CategoryPointTarget,
		})
	}
	return audits, nil
}

func (s *Service) validateCriterionInput(ctx context.Context, input CriterionInput) error {
	if input.Code == "" {
		return dErrors.New(dErrors.CodeValidation, "criterion code is required")
	}
	if input.Description == "" {
		return dErrors.New(dErrors.CodeValidation, "criterion description is required")
	}
	if input.BasePoints < 0 {
		return dErrors.New(dErrors.CodeValidation, "base points must not be negative")
	}
	if input.Weight < 0 {
		return dErrors.New(dErrors.CodeValidation, "weight must not be negative")
	}
	if input.RequiredSex != "" && input.RequiredSex != household.SexMale && input.RequiredSex != household.SexFemale {
		return dErrors.New(dErrors.CodeValidation, "required sex must be 1 or 2")
	}
	if input.MinAge != nil && input.MaxAge != nil && *input.MinAge > *input.MaxAge {
		return dErrors.New(dErrors.CodeValidation, "minimum age exceeds maximum age")
	}
	if input.CategoryID.IsZero() {
		return dErrors.New(dErrors.CodeValidation, "criterion requires a category")
	}
	if _, err := s.store.GetCategory(ctx, input.CategoryID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeValidation, "category does not exist")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "check category")
	}
	return nil
}

func criterionFromInput(criterionID id.CriterionID, input CriterionInput) *Criterion {
	return &Criterion{
		ID:                    criterionID,
		CategoryID:            input.CategoryID,
		Code:                  input.Code,
		Description:           input.Description,
		Active:                input.Active,
		BasePoints:            input.BasePoints,
		Weight:                input.Weight,
		AppliesToChildless:    input.AppliesToChildless,
		AppliesToMaleHead:     input.AppliesToMaleHead,
		AppliesToSingleMember: input.AppliesToSingleMember,
		MinAge:                input.MinAge,
		MaxAge:                input.MaxAge,
		RequiredSex:           input.RequiredSex,
		AllowedKinship:        input.AllowedKinship,
	}
}
