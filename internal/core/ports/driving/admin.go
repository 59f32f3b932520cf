package driving

import (
	"context"
	"time"

	"github.com/tenderline-labs/tenderline/internal/core/domain"
)

// SourceAdmin is the administrative surface over source configurations.
// Configuration errors (unknown id, invalid field) fail fast and
// synchronously; nothing here is silently ignored.
type SourceAdmin interface {
	// Get returns one source's configuration.
	Get(ctx context.Context, id string) (*domain.SourceConfig, error)

	// List returns every registered source configuration.
	List(ctx context.Context) ([]domain.SourceConfig, error)

	// Add registers a new source and starts polling it if enabled.
	Add(ctx context.Context, cfg domain.SourceConfig) error

	// Update replaces a source's configuration. Cadence or quota edits
	// re-register the limiter and reschedule the poll timer atomically.
	Update(ctx context.Context, cfg domain.SourceConfig) error

	// Enable starts polling a source.
	Enable(ctx context.Context, id string) error

	// Disable stops polling a source. In-flight polls drain.
	Disable(ctx context.Context, id string) error

	// Remove deletes a disabled source.
	// Returns domain.ErrSourceEnabled while it still polls.
	Remove(ctx context.Context, id string) error

	// Status returns one source's config, metrics, and limiter state.
	Status(ctx context.Context, id string) (*domain.SourceStatus, error)

	// ResetQuota clears a source's rate-limit window administratively.
	ResetQuota(ctx context.Context, id string) error
}

// QueueStats is one pipeline stage's aggregate counters.
type QueueStats struct {
	Stage     domain.Stage
	Waiting   int
	Active    int
	Completed int
	Failed    int
	Retried   int
	Dropped   int
}

// PipelineStats exposes aggregate pipeline statistics.
type PipelineStats interface {
	// Stats returns per-stage counters in pipeline order.
	Stats() []QueueStats
}

// IngestControl starts and stops the poll orchestrator.
type IngestControl interface {
	// Start begins polling all enabled sources. Non-blocking.
	Start(ctx context.Context) error

	// Stop cancels pending poll timers and drains in-flight polls.
	Stop(ctx context.Context) error

	// PollNow triggers an immediate out-of-cadence poll for a source.
	PollNow(ctx context.Context, sourceID string) error

	// NextPoll reports when a source's next scheduled poll fires.
	NextPoll(sourceID string) (time.Time, bool)
}
