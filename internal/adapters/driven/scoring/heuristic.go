// Package scoring provides the default heuristic scorer behind the
// analyze stage. Scoring is a pluggable capability; deployments with a
// real model swap this adapter out at wiring time.
package scoring

import (
	"context"
	"math"
	"time"

	"github.com/tenderline-labs/tenderline/internal/core/domain"
	"github.com/tenderline-labs/tenderline/internal/core/ports/driven"
)

// Ensure HeuristicScorer implements the port.
var _ driven.Scorer = (*HeuristicScorer)(nil)

// HeuristicScorer ranks opportunities on recency, deadline pressure,
// contract value, and prior history with the same buyer. Scores land in
// [0, 1].
type HeuristicScorer struct {
	now func() time.Time
}

// NewHeuristicScorer creates the default scorer.
func NewHeuristicScorer() *HeuristicScorer {
	return &HeuristicScorer{now: time.Now}
}

// Score implements driven.Scorer.
func (s *HeuristicScorer) Score(_ context.Context, record *domain.NormalizedRecord) (float64, error) {
	now := s.now()
	score := 0.0

	// Recency: full weight inside a day, decaying over thirty days.
	if !record.PostedAt.IsZero() {
		age := now.Sub(record.PostedAt)
		score += 0.3 * decay(age, 30*24*time.Hour)
	}

	// Deadline pressure: closing soon ranks higher, already closed
	// ranks zero on this axis.
	if !record.CloseAt.IsZero() {
		remaining := record.CloseAt.Sub(now)
		if remaining > 0 {
			score += 0.3 * decay(remaining, 14*24*time.Hour)
		}
	}

	// Value: log-scaled so a ten-million award does not drown out
	// everything else.
	if record.Value > 0 {
		score += 0.2 * math.Min(math.Log10(record.Value)/7, 1)
	}

	// Prior history with the same agency/classification.
	if record.PriorCount > 0 {
		score += 0.1 * math.Min(float64(record.PriorCount)/10, 1)
	}

	if record.Urgent {
		score += 0.1
	}

	return math.Min(score, 1), nil
}

// decay maps an elapsed duration onto (0, 1], halving per horizon.
func decay(elapsed, horizon time.Duration) float64 {
	if elapsed <= 0 {
		return 1
	}
	return math.Exp2(-float64(elapsed) / float64(horizon))
}
