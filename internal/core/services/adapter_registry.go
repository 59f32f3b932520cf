package services

import (
	"fmt"
	"sort"
	"sync"

	"github.com/tenderline-labs/tenderline/internal/core/domain"
	"github.com/tenderline-labs/tenderline/internal/core/ports/driven"
)

// Ensure AdapterRegistry implements the port.
var _ driven.AdapterRegistry = (*AdapterRegistry)(nil)

// AdapterRegistry holds the source adapters available to the
// orchestrator, keyed by adapter type.
type AdapterRegistry struct {
	mu       sync.RWMutex
	adapters map[string]driven.SourceAdapter
}

// NewAdapterRegistry creates an empty adapter registry.
func NewAdapterRegistry() *AdapterRegistry {
	return &AdapterRegistry{
		adapters: make(map[string]driven.SourceAdapter),
	}
}

// Register adds an adapter under its declared type, replacing any
// previous registration for that type.
func (r *AdapterRegistry) Register(adapter driven.SourceAdapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[adapter.Type()] = adapter
}

// Get returns the adapter for an adapter type.
func (r *AdapterRegistry) Get(adapterType string) (driven.SourceAdapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	adapter, ok := r.adapters[adapterType]
	if !ok {
		return nil, fmt.Errorf("%w: adapter type %q", domain.ErrUnsupportedType, adapterType)
	}
	return adapter, nil
}

// Types lists the registered adapter types sorted alphabetically.
func (r *AdapterRegistry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.adapters))
	for t := range r.adapters {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
