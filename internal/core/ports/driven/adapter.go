package driven

import (
	"context"
	"net/http"

	"github.com/tenderline-labs/tenderline/internal/core/domain"
)

// SourceAdapter knows one provider's wire format. The core never
// inspects provider payloads: it executes the request the adapter
// builds and hands the raw batch straight back for parsing.
type SourceAdapter interface {
	// Type returns the adapter type identifier (e.g., "samgov").
	Type() string

	// BuildRequest constructs the next poll request for a source.
	// cursor is the opaque pagination token from the previous poll's
	// batch, empty for a fresh poll. prev carries the previous batch's
	// cache validators so the adapter can issue a conditional request.
	BuildRequest(ctx context.Context, cfg domain.SourceConfig, cursor string, prev *domain.RawBatch) (*http.Request, error)

	// Parse turns a raw batch into normalised records. On entry
	// batch.Cursor holds the cycle's cursor; Parse replaces it with the
	// next page's cursor, or clears it when the sweep is complete. A
	// parse failure fails the whole poll cycle; the next scheduled poll
	// retries naturally.
	Parse(batch *domain.RawBatch, cfg domain.SourceConfig) ([]domain.NormalizedRecord, error)
}

// AdapterRegistry selects the adapter for a source's configured type.
type AdapterRegistry interface {
	// Get returns the adapter for an adapter type.
	// Returns domain.ErrUnsupportedType for unknown types.
	Get(adapterType string) (SourceAdapter, error)

	// Types lists the registered adapter types.
	Types() []string
}
