package settings

import (
	"context"
	"sync"
	"time"

	"amparo/pkg/platform/sentinel"
)

// MemoryStore holds the singleton settings in memory.
type MemoryStore struct {
	mu      sync.RWMutex
	current *Settings
}

// NewMemory constructs an empty in-memory settings store.
func NewMemory() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Get(_ context.Context) (*Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil, sentinel.ErrNotFound
	}
	clone := *s.current
	return &clone, nil
}

func (s *MemoryStore) Save(_ context.Context, settings *Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	settings.UpdatedAt = time.Now()
	clone := *settings
	s.current = &clone
	return nil
}
