package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/tenderline-labs/tenderline/internal/core/domain"
	"github.com/tenderline-labs/tenderline/internal/core/ports/driven"
)

// Ensure SourceConfigStore implements the interface.
var _ driven.SourceConfigStore = (*SourceConfigStore)(nil)

// SourceConfigStore is an in-memory implementation of driven.SourceConfigStore.
type SourceConfigStore struct {
	mu      sync.RWMutex
	configs map[string]domain.SourceConfig
}

// NewSourceConfigStore creates a new in-memory source config store.
func NewSourceConfigStore() *SourceConfigStore {
	return &SourceConfigStore{
		configs: make(map[string]domain.SourceConfig),
	}
}

// Save stores or updates a source config.
func (s *SourceConfigStore) Save(_ context.Context, cfg domain.SourceConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configs[cfg.ID] = cfg
	return nil
}

// Get retrieves a source config by ID.
func (s *SourceConfigStore) Get(_ context.Context, id string) (*domain.SourceConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.configs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &cfg, nil
}

// List returns all stored source configs sorted by ID.
func (s *SourceConfigStore) List(_ context.Context) ([]domain.SourceConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]domain.SourceConfig, 0, len(s.configs))
	for _, cfg := range s.configs {
		result = append(result, cfg)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// Delete removes a source config.
func (s *SourceConfigStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.configs, id)
	return nil
}
