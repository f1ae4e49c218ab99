package criteria

import (
	"context"

	id "amparo/pkg/domain"
)

// Store persists categories and criterion definitions.
//
// Methods return sentinel.ErrNotFound for missing entities and
// sentinel.ErrConflict for uniqueness violations.
type Store interface {
	CreateCategory(ctx context.Context, category *Category) error
	GetCategory(ctx context.Context, categoryID id.CategoryID) (*Category, error)
	// ListCategories returns categories ordered by display order.
	ListCategories(ctx context.Context) ([]*Category, error)

	CreateCriterion(ctx context.Context, criterion *Criterion) error
	UpdateCriterion(ctx context.Context, criterion *Criterion) error
	GetCriterion(ctx context.Context, criterionID id.CriterionID) (*Criterion, error)
	GetCriterionByCode(ctx context.Context, code string) (*Criterion, error)
	// ListCriteria returns criteria ordered by category display order then
	// code. activeOnly narrows to active definitions.
	ListCriteria(ctx context.Context, activeOnly bool) ([]*Criterion, error)
}
