package driven

import (
	"context"

	"github.com/tenderline-labs/tenderline/internal/core/domain"
)

// Scorer is the pluggable analytics capability consumed by the analyze
// stage. Model internals live entirely behind this interface.
type Scorer interface {
	// Score returns a relevance score in [0, 1] for one record.
	Score(ctx context.Context, record *domain.NormalizedRecord) (float64, error)
}
