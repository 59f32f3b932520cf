package memory

import (
	"sync"

	"github.com/tenderline-labs/tenderline/internal/core/ports/driven"
)

// Ensure ConfigStore implements the interface.
var _ driven.ConfigStore = (*ConfigStore)(nil)

// ConfigStore is a map-backed driven.ConfigStore standing in for the
// TOML store in tests. Seeding at construction lets a test read like
// the config file it emulates.
type ConfigStore struct {
	mu     sync.RWMutex
	values map[string]any
}

// NewConfigStore creates an in-memory config store, optionally seeded
// with dotted-key settings.
func NewConfigStore(seed ...map[string]any) *ConfigStore {
	s := &ConfigStore{values: make(map[string]any)}
	for _, settings := range seed {
		for key, value := range settings {
			s.values[key] = value
		}
	}
	return s
}

// Get retrieves a configuration value by key.
func (s *ConfigStore) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.values[key]
	return value, ok
}

// GetString retrieves a string configuration value.
func (s *ConfigStore) GetString(key string) string {
	value, _ := s.Get(key)
	str, _ := value.(string)
	return str
}

// GetInt retrieves an integer configuration value, coercing the numeric
// shapes a TOML decode produces.
func (s *ConfigStore) GetInt(key string) int {
	value, ok := s.Get(key)
	if !ok {
		return 0
	}
	switch n := value.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}

// GetBool retrieves a boolean configuration value.
func (s *ConfigStore) GetBool(key string) bool {
	value, _ := s.Get(key)
	b, _ := value.(bool)
	return b
}

// Set stores a configuration value.
func (s *ConfigStore) Set(key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

// Save is a no-op; the store has no backing file.
func (s *ConfigStore) Save() error { return nil }

// Load is a no-op; the store has no backing file.
func (s *ConfigStore) Load() error { return nil }

// Path identifies the store in log output.
func (s *ConfigStore) Path() string { return ":memory:" }
