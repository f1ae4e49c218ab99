package household

import (
	"context"

	id "amparo/pkg/domain"
)

// Store persists households and their members.
//
// Error contract (teacher-wide): methods return sentinel.ErrNotFound when
// the entity does not exist, sentinel.ErrConflict when a uniqueness
// invariant rejects the write, and wrapped infrastructure errors otherwise.
type Store interface {
	Create(ctx context.Context, h *Household) error
	Get(ctx context.Context, householdID id.HouseholdID) (*Household, error)
	GetByCode(ctx context.Context, code string) (*Household, error)
	// List returns all households with members populated. Bulk criterion
	// cascades iterate this.
	List(ctx context.Context) ([]*Household, error)
	AddMember(ctx context.Context, m *Member) error
	// Delete removes the household and cascades to its members.
	Delete(ctx context.Context, householdID id.HouseholdID) error
}
