package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tenderline-labs/tenderline/internal/core/domain"
)

// Metrics holds the engine's Prometheus collectors. Collectors are bound
// to an explicit registerer so tests can use a private registry.
type Metrics struct {
	// pollsTotal counts poll cycles by outcome.
	// Labels: source, result (success, failure, skip)
	pollsTotal *prometheus.CounterVec

	// recordsTotal counts normalised records accepted or rejected at
	// ingestion. Labels: source, outcome (processed, rejected)
	recordsTotal *prometheus.CounterVec

	// stageJobsTotal counts pipeline jobs by terminal outcome.
	// Labels: stage, result (completed, failed, retried, dropped)
	stageJobsTotal *prometheus.CounterVec

	// queueDepth tracks jobs waiting per stage.
	// Labels: stage
	queueDepth *prometheus.GaugeVec

	// stageDuration measures per-job stage processing time.
	// Labels: stage
	stageDuration *prometheus.HistogramVec
}

// NewMetrics creates the engine collectors on a registerer. Passing
// prometheus.DefaultRegisterer wires them to the default /metrics
// handler.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		pollsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tenderline",
			Subsystem: "ingest",
			Name:      "polls_total",
			Help:      "Poll cycles by outcome",
		}, []string{"source", "result"}),
		recordsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tenderline",
			Subsystem: "ingest",
			Name:      "records_total",
			Help:      "Normalised records by ingestion outcome",
		}, []string{"source", "outcome"}),
		stageJobsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tenderline",
			Subsystem: "pipeline",
			Name:      "stage_jobs_total",
			Help:      "Pipeline jobs by stage and terminal outcome",
		}, []string{"stage", "result"}),
		queueDepth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "tenderline",
			Subsystem: "pipeline",
			Name:      "queue_depth",
			Help:      "Jobs waiting per stage",
		}, []string{"stage"}),
		stageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tenderline",
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Per-job stage processing time in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"stage"}),
	}
}

// ObservePoll records one poll cycle outcome.
func (m *Metrics) ObservePoll(sourceID, result string) {
	if m == nil {
		return
	}
	m.pollsTotal.WithLabelValues(sourceID, result).Inc()
}

// ObserveRecords records ingestion record counts for one poll.
func (m *Metrics) ObserveRecords(sourceID string, processed, rejected int) {
	if m == nil {
		return
	}
	m.recordsTotal.WithLabelValues(sourceID, "processed").Add(float64(processed))
	m.recordsTotal.WithLabelValues(sourceID, "rejected").Add(float64(rejected))
}

// ObserveJob records one job's terminal or retry outcome for a stage.
func (m *Metrics) ObserveJob(stage domain.Stage, result string) {
	if m == nil {
		return
	}
	m.stageJobsTotal.WithLabelValues(string(stage), result).Inc()
}

// SetQueueDepth updates the waiting gauge for a stage.
func (m *Metrics) SetQueueDepth(stage domain.Stage, depth int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(string(stage)).Set(float64(depth))
}

// ObserveStageDuration records one job's processing time for a stage.
func (m *Metrics) ObserveStageDuration(stage domain.Stage, seconds float64) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(string(stage)).Observe(seconds)
}
