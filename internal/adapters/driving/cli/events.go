package cli

import (
	"github.com/tenderline-labs/tenderline/internal/core/domain"
	"github.com/tenderline-labs/tenderline/internal/logger"
)

// logEvents drains the engine's event channel into the log. It returns
// when the bus closes the channel.
func logEvents(events <-chan domain.Event) {
	for ev := range events {
		switch ev.Type {
		case domain.EventDataReceived:
			logger.Info("source %s: received %d records", ev.SourceID, ev.Count)
		case domain.EventPollSkipped:
			logger.Debug("source %s: poll skipped, quota exhausted", ev.SourceID)
		case domain.EventPollError:
			logger.Warn("source %s: poll failed: %s", ev.SourceID, ev.Err)
		case domain.EventStageProcessed:
			logger.Debug("job %s: stage %s processed %d records", ev.JobID, ev.Stage, ev.Count)
		case domain.EventJobFailed:
			logger.Warn("job %s: failed at stage %s: %s", ev.JobID, ev.Stage, ev.Err)
		case domain.EventJobStalled:
			logger.Warn("job %s: stalled in %s queue", ev.JobID, ev.Stage)
		case domain.EventAnalyticsUpdated:
			logger.Debug("source %s: analytics updated for %d records", ev.SourceID, ev.Count)
		case domain.EventPipelineDrained:
			logger.Info("pipeline drained, %d jobs dropped", ev.Count)
		default:
			logger.Debug("event %s from %s", ev.Type, ev.SourceID)
		}
	}
}
