package evaluation

import (
	"context"
	"sort"
	"sync"
	"time"

	id "amparo/pkg/domain"
	"amparo/pkg/platform/sentinel"
)

// MemoryStore is an in-memory Store for tests and DSN-less development
// runs. Bulk cascades against it are not transactional; the PostgreSQL
// store provides the all-or-nothing guarantee.
type MemoryStore struct {
	mu          sync.RWMutex
	evaluations map[id.EvaluationID]*Evaluation
	links       map[id.LinkID]*CriterionLink
	history     map[id.EvaluationID][]*HistoryEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		evaluations: make(map[id.EvaluationID]*Evaluation),
		links:       make(map[id.LinkID]*CriterionLink),
		history:     make(map[id.EvaluationID][]*HistoryEntry),
	}
}

func (s *MemoryStore) Create(ctx context.Context, e *Evaluation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.evaluations[e.ID]; exists {
		return sentinel.ErrConflict
	}
	now := time.Now()
	e.CreatedAt = now
	e.UpdatedAt = now
	s.evaluations[e.ID] = cloneEvaluation(e)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, evaluationID id.EvaluationID) (*Evaluation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.evaluations[evaluationID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneEvaluation(e), nil
}

func (s *MemoryStore) GetByHousehold(ctx context.Context, householdID id.HouseholdID) (*Evaluation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *Evaluation
	for _, e := range s.evaluations {
		if e.HouseholdID != householdID {
			continue
		}
		if latest == nil || e.CreatedAt.After(latest.CreatedAt) {
			latest = e
		}
	}
	if latest == nil {
		return nil, sentinel.ErrNotFound
	}
	return cloneEvaluation(latest), nil
}

func (s *MemoryStore) List(ctx context.Context, statuses ...Status) ([]*Evaluation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Evaluation
	for _, e := range s.evaluations {
		if len(statuses) > 0 && !statusIn(e.Status, statuses) {
			continue
		}
		out = append(out, cloneEvaluation(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) Update(ctx context.Context, e *Evaluation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.evaluations[e.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	e.CreatedAt = existing.CreatedAt
	e.UpdatedAt = time.Now()
	s.evaluations[e.ID] = cloneEvaluation(e)
	return nil
}

func (s *MemoryStore) UpdateScore(ctx context.Context, evaluationID id.EvaluationID, score int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.evaluations[evaluationID]
	if !ok {
		return sentinel.ErrNotFound
	}
	e.Score = score
	e.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) CreateLink(ctx context.Context, link *CriterionLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.evaluations[link.EvaluationID]; !exists {
		return sentinel.ErrNotFound
	}
	for _, existing := range s.links {
		if existing.EvaluationID == link.EvaluationID && existing.CriterionID == link.CriterionID {
			return sentinel.ErrConflict
		}
	}
	now := time.Now()
	link.CreatedAt = now
	link.UpdatedAt = now
	clone := *link
	s.links[link.ID] = &clone
	return nil
}

func (s *MemoryStore) UpdateLink(ctx context.Context, link *CriterionLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.links[link.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	link.CreatedAt = existing.CreatedAt
	link.UpdatedAt = time.Now()
	clone := *link
	s.links[link.ID] = &clone
	return nil
}

func (s *MemoryStore) ListLinks(ctx context.Context, evaluationID id.EvaluationID) ([]*CriterionLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*CriterionLink
	for _, link := range s.links {
		if link.EvaluationID == evaluationID {
			clone := *link
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) ListLinksByCriterion(ctx context.Context, criterionID id.CriterionID) ([]*CriterionLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*CriterionLink
	for _, link := range s.links {
		if link.CriterionID == criterionID {
			clone := *link
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) AddHistory(ctx context.Context, entry *HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.evaluations[entry.EvaluationID]; !exists {
		return sentinel.ErrNotFound
	}
	clone := *entry
	s.history[entry.EvaluationID] = append(s.history[entry.EvaluationID], &clone)
	return nil
}

func (s *MemoryStore) ListHistory(ctx context.Context, evaluationID id.EvaluationID) ([]*HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.history[evaluationID]
	out := make([]*HistoryEntry, len(entries))
	for i, entry := range entries {
		clone := *entry
		out[len(entries)-1-i] = &clone
	}
	return out, nil
}

func statusIn(status Status, statuses []Status) bool {
	for _, candidate := range statuses {
		if status == candidate {
			return true
		}
	}
	return false
}

func cloneEvaluation(e *Evaluation) *Evaluation {
	clone := *e
	if e.LockedBy != nil {
		lockedBy := *e.LockedBy
		clone.LockedBy = &lockedBy
	}
	if e.LockStartedAt != nil {
		lockStartedAt := *e.LockStartedAt
		clone.LockStartedAt = &lockStartedAt
	}
	if e.FinalizedAt != nil {
		finalizedAt := *e.FinalizedAt
		clone.FinalizedAt = &finalizedAt
	}
	if e.FinalizedBy != nil {
		finalizedBy := *e.FinalizedBy
		clone.FinalizedBy = &finalizedBy
	}
	return &clone
}
