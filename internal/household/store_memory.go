package household

import (
	"context"
	"sync"
	"time"

	id "amparo/pkg/domain"
	"amparo/pkg/platform/sentinel"
)

// MemoryStore is an in-memory Store for tests and DSN-less development runs.
type MemoryStore struct {
	mu         sync.RWMutex
	households map[id.HouseholdID]*Household
	byCode     map[string]id.HouseholdID
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		households: make(map[id.HouseholdID]*Household),
		byCode:     make(map[string]id.HouseholdID),
	}
}

func (s *MemoryStore) Create(ctx context.Context, h *Household) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.households[h.ID]; exists {
		return sentinel.ErrConflict
	}
	if _, exists := s.byCode[h.Code]; exists {
		return sentinel.ErrConflict
	}

	now := time.Now()
	h.CreatedAt = now
	h.UpdatedAt = now
	for _, m := range h.Members {
		m.HouseholdID = h.ID
		m.CreatedAt = now
		m.UpdatedAt = now
	}

	s.households[h.ID] = cloneHousehold(h)
	s.byCode[h.Code] = h.ID
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, householdID id.HouseholdID) (*Household, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, ok := s.households[householdID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneHousehold(h), nil
}

func (s *MemoryStore) GetByCode(ctx context.Context, code string) (*Household, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	householdID, ok := s.byCode[code]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneHousehold(s.households[householdID]), nil
}

func (s *MemoryStore) List(ctx context.Context) ([]*Household, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Household, 0, len(s.households))
	for _, h := range s.households {
		out = append(out, cloneHousehold(h))
	}
	return out, nil
}

func (s *MemoryStore) AddMember(ctx context.Context, m *Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.households[m.HouseholdID]
	if !ok {
		return sentinel.ErrNotFound
	}
	for _, existing := range h.Members {
		if existing.RegistryID == m.RegistryID {
			return sentinel.ErrConflict
		}
	}

	now := time.Now()
	m.CreatedAt = now
	m.UpdatedAt = now
	h.Members = append(h.Members, cloneMember(m))
	h.UpdatedAt = now
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, householdID id.HouseholdID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.households[householdID]
	if !ok {
		return sentinel.ErrNotFound
	}
	delete(s.byCode, h.Code)
	delete(s.households, householdID)
	return nil
}

func cloneHousehold(h *Household) *Household {
	clone := *h
	clone.Members = make([]*Member, len(h.Members))
	for i, m := range h.Members {
		clone.Members[i] = cloneMember(m)
	}
	return &clone
}

func cloneMember(m *Member) *Member {
	clone := *m
	if m.BirthDate != nil {
		birth := *m.BirthDate
		clone.BirthDate = &birth
	}
	return &clone
}
