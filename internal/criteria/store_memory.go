package criteria

import (
	"context"
	"sort"
	"sync"
	"time"

	id "amparo/pkg/domain"
	"amparo/pkg/platform/sentinel"
)

// MemoryStore is an in-memory Store for tests and DSN-less development runs.
type MemoryStore struct {
	mu         sync.RWMutex
	categories map[id.CategoryID]*Category
	criteria   map[id.CriterionID]*Criterion
	byCode     map[string]id.CriterionID
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		categories: make(map[id.CategoryID]*Category),
		criteria:   make(map[id.CriterionID]*Criterion),
		byCode:     make(map[string]id.CriterionID),
	}
}

func (s *MemoryStore) CreateCategory(ctx context.Context, category *Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.categories[category.ID]; exists {
		return sentinel.ErrConflict
	}
	for _, existing := range s.categories {
		if existing.Code == category.Code {
			return sentinel.ErrConflict
		}
	}
	now := time.Now()
	category.CreatedAt = now
	category.UpdatedAt = now
	clone := *category
	s.categories[category.ID] = &clone
	return nil
}

func (s *MemoryStore) GetCategory(ctx context.Context, categoryID id.CategoryID) (*Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	category, ok := s.categories[categoryID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	clone := *category
	return &clone, nil
}

func (s *MemoryStore) ListCategories(ctx context.Context) ([]*Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Category, 0, len(s.categories))
	for _, category := range s.categories {
		clone := *category
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DisplayOrder != out[j].DisplayOrder {
			return out[i].DisplayOrder < out[j].DisplayOrder
		}
		return out[i].Code < out[j].Code
	})
	return out, nil
}

func (s *MemoryStore) CreateCriterion(ctx context.Context, criterion *Criterion) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.criteria[criterion.ID]; exists {
		return sentinel.ErrConflict
	}
	if _, exists := s.byCode[criterion.Code]; exists {
		return sentinel.ErrConflict
	}
	now := time.Now()
	criterion.CreatedAt = now
	criterion.UpdatedAt = now
	clone := cloneCriterion(criterion)
	s.criteria[criterion.ID] = clone
	s.byCode[criterion.Code] = criterion.ID
	return nil
}

func (s *MemoryStore) UpdateCriterion(ctx context.Context, criterion *Criterion) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.criteria[criterion.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if other, taken := s.byCode[criterion.Code]; taken && other != criterion.ID {
		return sentinel.ErrConflict
	}
	delete(s.byCode, existing.Code)
	criterion.CreatedAt = existing.CreatedAt
	criterion.UpdatedAt = time.Now()
	s.criteria[criterion.ID] = cloneCriterion(criterion)
	s.byCode[criterion.Code] = criterion.ID
	return nil
}

func (s *MemoryStore) GetCriterion(ctx context.Context, criterionID id.CriterionID) (*Criterion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	criterion, ok := s.criteria[criterionID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneCriterion(criterion), nil
}

func (s *MemoryStore) GetCriterionByCode(ctx context.Context, code string) (*Criterion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	criterionID, ok := s.byCode[code]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneCriterion(s.criteria[criterionID]), nil
}

func (s *MemoryStore) ListCriteria(ctx context.Context, activeOnly bool) ([]*Criterion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Criterion, 0, len(s.criteria))
	for _, criterion := range s.criteria {
		if activeOnly && !criterion.Active {
			continue
		}
		out = append(out, cloneCriterion(criterion))
	}
	sort.Slice(out, func(i, j int) bool {
		orderI, orderJ := s.categoryOrder(out[i].CategoryID), s.categoryOrder(out[j].CategoryID)
		if orderI != orderJ {
			return orderI < orderJ
		}
		return out[i].Code < out[j].Code
	})
	return out, nil
}

func (s *MemoryStore) categoryOrder(categoryID id.CategoryID) int {
	if category, ok := s.categories[categoryID]; ok {
		return category.DisplayOrder
	}
	return int(^uint(0) >> 1)
}

func cloneCriterion(c *Criterion) *Criterion {
	clone := *c
	if c.MinAge != nil {
		minAge := *c.MinAge
		clone.MinAge = &minAge
	}
	if c.MaxAge != nil {
		maxAge := *c.MaxAge
		clone.MaxAge = &maxAge
	}
	return &clone
}
