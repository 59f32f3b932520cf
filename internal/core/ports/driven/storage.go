package driven

import (
	"context"

	"github.com/tenderline-labs/tenderline/internal/core/domain"
)

// RecordFilter selects records for enrichment lookups and query paths.
// Zero fields are ignored.
type RecordFilter struct {
	// SourceID restricts to one source.
	SourceID string

	// Type restricts to one record type.
	Type domain.RecordType

	// Agency and Classification select prior records for the same
	// buyer/category, the enrich stage's main lookup.
	Agency         string
	Classification string

	// Keys selects specific records by their dedup keys.
	Keys []domain.RecordKey

	// Limit caps the result set; zero means the store's default.
	Limit int
}

// RecordStore persists normalised records. Upsert is keyed by
// (source_id, source_external_id) with update-on-conflict semantics:
// re-ingesting the same key updates, never duplicates. This key, not
// job identity, is what makes pipeline reprocessing safe.
type RecordStore interface {
	// Upsert inserts or updates one record and returns its storage id.
	Upsert(ctx context.Context, record *domain.NormalizedRecord) (int64, error)

	// Get retrieves one record by its dedup key.
	Get(ctx context.Context, key domain.RecordKey) (*domain.NormalizedRecord, error)

	// Query returns the records matching a filter.
	Query(ctx context.Context, filter RecordFilter) ([]domain.NormalizedRecord, error)

	// Count reports how many records match a filter.
	Count(ctx context.Context, filter RecordFilter) (int, error)
}

// SourceConfigStore persists source configurations across restarts.
type SourceConfigStore interface {
	// Save stores or updates a source config.
	Save(ctx context.Context, cfg domain.SourceConfig) error

	// Get retrieves a source config by ID.
	// Returns domain.ErrNotFound if missing.
	Get(ctx context.Context, id string) (*domain.SourceConfig, error)

	// List returns all stored source configs.
	List(ctx context.Context) ([]domain.SourceConfig, error)

	// Delete removes a source config.
	Delete(ctx context.Context, id string) error
}
