package domain

import "time"

// Stage names one step of the processing pipeline.
type Stage string

// Pipeline stages in execution order.
const (
	StageNormalize Stage = "normalize"
	StageEnrich    Stage = "enrich"
	StageCrossref  Stage = "crossref"
	StageAnalyze   Stage = "analyze"
)

// Next returns the stage a completed job feeds, or "" for the last stage.
// Crossref feeds analyze only for opportunity records; that routing rule
// lives with the pipeline, not here.
func (s Stage) Next() Stage {
	switch s {
	case StageNormalize:
		return StageEnrich
	case StageEnrich:
		return StageCrossref
	case StageCrossref:
		return StageAnalyze
	default:
		return ""
	}
}

// StagePayload is the closed set of per-stage job payloads. Stage workers
// dispatch with a type switch rather than string-keyed routing.
type StagePayload interface {
	// Stage reports which stage the payload belongs to.
	Stage() Stage

	// Records returns the chunk of normalised records the job carries.
	Records() []NormalizedRecord
}

// NormalizePayload carries records fresh from an adapter, not yet
// validated or persisted.
type NormalizePayload struct {
	Batch []NormalizedRecord
}

// Stage implements StagePayload.
func (NormalizePayload) Stage() Stage { return StageNormalize }

// Records implements StagePayload.
func (p NormalizePayload) Records() []NormalizedRecord { return p.Batch }

// EnrichPayload carries validated records awaiting prior-history lookups.
type EnrichPayload struct {
	Batch []NormalizedRecord
}

// Stage implements StagePayload.
func (EnrichPayload) Stage() Stage { return StageEnrich }

// Records implements StagePayload.
func (p EnrichPayload) Records() []NormalizedRecord { return p.Batch }

// CrossrefPayload carries enriched records awaiting organisation linking.
type CrossrefPayload struct {
	Batch []NormalizedRecord
}

// Stage implements StagePayload.
func (CrossrefPayload) Stage() Stage { return StageCrossref }

// Records implements StagePayload.
func (p CrossrefPayload) Records() []NormalizedRecord { return p.Batch }

// AnalyzePayload carries opportunity records awaiting scoring.
type AnalyzePayload struct {
	Batch []NormalizedRecord
}

// Stage implements StagePayload.
func (AnalyzePayload) Stage() Stage { return StageAnalyze }

// Records implements StagePayload.
func (p AnalyzePayload) Records() []NormalizedRecord { return p.Batch }

// Priority bonuses. Urgent dominates, then the fast-lane source bonus,
// then the opportunity record-type bonus.
const (
	PriorityUrgentBonus      = 100
	PriorityFastLaneBonus    = 25
	PriorityOpportunityBonus = 10
)

// JobPriority derives a job's integer priority from the stated rules.
func JobPriority(urgent, fastLane bool, recordType RecordType) int {
	p := 0
	if urgent {
		p += PriorityUrgentBonus
	}
	if fastLane {
		p += PriorityFastLaneBonus
	}
	if recordType == RecordOpportunity {
		p += PriorityOpportunityBonus
	}
	return p
}

// ProcessingJob is one chunk of normalised records plus routing metadata.
// Jobs are immutable once enqueued; a failed job is retried as a new
// attempt of the same logical job, never as a new job.
type ProcessingJob struct {
	// ID identifies the logical job across attempts.
	ID string

	// SourceID is the source the records came from.
	SourceID string

	// RecordType is the dominant record type in the chunk.
	RecordType RecordType

	// Payload is the stage-tagged record chunk.
	Payload StagePayload

	// ChunkIndex and TotalChunks locate this chunk within its batch.
	ChunkIndex  int
	TotalChunks int

	// Priority orders ready jobs; higher runs first, subject to aging.
	Priority int

	// Attempt counts executions of this logical job, starting at 0.
	Attempt int

	// EnqueuedAt is when the job entered its current queue.
	EnqueuedAt time.Time
}

// StageResult is what a stage function reports for one job. Per-record
// errors do not fail the job; they ride alongside the processed count.
type StageResult struct {
	Processed int
	Errored   int

	// RecordErrors maps record keys to their validation failures.
	RecordErrors map[RecordKey]error

	// Output is the record set to hand to the next stage.
	Output []NormalizedRecord
}
