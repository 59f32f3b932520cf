package memory

import (
	"context"
	"sync"

	"github.com/tenderline-labs/tenderline/internal/core/domain"
	"github.com/tenderline-labs/tenderline/internal/core/ports/driven"
)

// Ensure RecordStore implements the interface.
var _ driven.RecordStore = (*RecordStore)(nil)

// RecordStore is an in-memory implementation of driven.RecordStore.
// Upsert is keyed by the record's dedup key, mirroring the ON CONFLICT
// semantics of the sqlite store.
type RecordStore struct {
	mu      sync.RWMutex
	nextID  int64
	ids     map[domain.RecordKey]int64
	records map[domain.RecordKey]domain.NormalizedRecord
}

// NewRecordStore creates a new in-memory record store.
func NewRecordStore() *RecordStore {
	return &RecordStore{
		nextID:  1,
		ids:     make(map[domain.RecordKey]int64),
		records: make(map[domain.RecordKey]domain.NormalizedRecord),
	}
}

// Upsert inserts or updates one record and returns its storage id.
// Re-ingesting an existing key keeps the original id and replaces the
// stored fields.
func (s *RecordStore) Upsert(_ context.Context, record *domain.NormalizedRecord) (int64, error) {
	if err := record.Key.Validate(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.ids[record.Key]
	if !ok {
		id = s.nextID
		s.nextID++
		s.ids[record.Key] = id
	}
	s.records[record.Key] = *record
	return id, nil
}

// Get retrieves one record by its dedup key.
func (s *RecordStore) Get(_ context.Context, key domain.RecordKey) (*domain.NormalizedRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &record, nil
}

// Query returns the records matching a filter.
func (s *RecordStore) Query(_ context.Context, filter driven.RecordFilter) ([]domain.NormalizedRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var keySet map[domain.RecordKey]struct{}
	if len(filter.Keys) > 0 {
		keySet = make(map[domain.RecordKey]struct{}, len(filter.Keys))
		for _, k := range filter.Keys {
			keySet[k] = struct{}{}
		}
	}

	var result []domain.NormalizedRecord
	for key, record := range s.records {
		if !matches(record, filter, keySet, key) {
			continue
		}
		result = append(result, record)
		if filter.Limit > 0 && len(result) >= filter.Limit {
			break
		}
	}
	return result, nil
}

// Count reports how many records match a filter.
func (s *RecordStore) Count(_ context.Context, filter driven.RecordFilter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var keySet map[domain.RecordKey]struct{}
	if len(filter.Keys) > 0 {
		keySet = make(map[domain.RecordKey]struct{}, len(filter.Keys))
		for _, k := range filter.Keys {
			keySet[k] = struct{}{}
		}
	}

	count := 0
	for key, record := range s.records {
		if matches(record, filter, keySet, key) {
			count++
		}
	}
	return count, nil
}

func matches(record domain.NormalizedRecord, filter driven.RecordFilter, keySet map[domain.RecordKey]struct{}, key domain.RecordKey) bool {
	if filter.SourceID != "" && record.Key.SourceID != filter.SourceID {
		return false
	}
	if filter.Type != "" && record.Type != filter.Type {
		return false
	}
	if filter.Agency != "" && record.Agency != filter.Agency {
		return false
	}
	if filter.Classification != "" && record.Classification != filter.Classification {
		return false
	}
	if keySet != nil {
		if _, ok := keySet[key]; !ok {
			return false
		}
	}
	return true
}
