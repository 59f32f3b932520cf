package domain

import "time"

// EventType tags an engine event.
type EventType string

// Events emitted by the orchestrator and the pipeline. Observers consume
// these from the event bus instead of polling internal state.
const (
	// EventDataReceived fires when a poll emits a non-empty batch.
	EventDataReceived EventType = "data_received"

	// EventPollSkipped fires when a cycle is skipped on quota denial.
	EventPollSkipped EventType = "poll_skipped"

	// EventPollError fires when a poll cycle fails after retries.
	EventPollError EventType = "poll_error"

	// EventStageProcessed fires when a stage completes a job.
	// The Stage field says which stage.
	EventStageProcessed EventType = "stage_processed"

	// EventJobFailed fires when a job exhausts its retries.
	EventJobFailed EventType = "job_failed"

	// EventJobStalled fires when a job has waited past the stall horizon.
	EventJobStalled EventType = "job_stalled"

	// EventAnalyticsUpdated fires when the analyze stage stores new scores.
	EventAnalyticsUpdated EventType = "analytics_updated"

	// EventPipelineDrained fires on shutdown and reports how many
	// queued-but-unstarted jobs were dropped.
	EventPipelineDrained EventType = "pipeline_drained"
)

// Event is the typed message published on the engine's outbound channel.
type Event struct {
	Type     EventType
	SourceID string
	Stage    Stage
	JobID    string

	// Count is event-specific: records received, records processed, or
	// jobs dropped.
	Count int

	// Err describes the failure for error events.
	Err string

	At time.Time
}
