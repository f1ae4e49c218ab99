package evaluation

import (
	"context"

	id "amparo/pkg/domain"
)

// Store persists evaluations, criterion links, and history entries.
//
// Methods return sentinel.ErrNotFound for missing entities and
// sentinel.ErrConflict when the (evaluation, criterion) link uniqueness
// invariant rejects a write.
type Store interface {
	Create(ctx context.Context, e *Evaluation) error
	Get(ctx context.Context, evaluationID id.EvaluationID) (*Evaluation, error)
	// GetByHousehold returns the household's most recent evaluation.
	GetByHousehold(ctx context.Context, householdID id.HouseholdID) (*Evaluation, error)
	// List returns evaluations, narrowed to the given statuses when any
	// are passed.
	List(ctx context.Context, statuses ...Status) ([]*Evaluation, error)
	// Update persists status, score, notes, lock and finalization fields.
	Update(ctx context.Context, e *Evaluation) error
	// UpdateScore persists only the aggregate score.
	UpdateScore(ctx context.Context, evaluationID id.EvaluationID, score int) error

	CreateLink(ctx context.Context, link *CriterionLink) error
	UpdateLink(ctx context.Context, link *CriterionLink) error
	ListLinks(ctx context.Context, evaluationID id.EvaluationID) ([]*CriterionLink, error)
	// ListLinksByCriterion returns every evaluation's link to one
	// criterion; rule-change cascades iterate this.
	ListLinksByCriterion(ctx context.Context, criterionID id.CriterionID) ([]*CriterionLink, error)

	AddHistory(ctx context.Context, entry *HistoryEntry) error
	// ListHistory returns entries newest first.
	ListHistory(ctx context.Context, evaluationID id.EvaluationID) ([]*HistoryEntry, error)
}
