package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tenderline-labs/tenderline/internal/cache"
	"github.com/tenderline-labs/tenderline/internal/core/domain"
	"github.com/tenderline-labs/tenderline/internal/core/ports/driven"
	"github.com/tenderline-labs/tenderline/internal/core/ports/driving"
	"github.com/tenderline-labs/tenderline/internal/logger"
)

// DefaultChunkSize bounds how many records one job carries.
const DefaultChunkSize = 100

// relatedKeyLimit caps the prior-history keys attached per record.
const relatedKeyLimit = 5

// Default per-stage worker counts. Normalize takes the ingestion
// firehose; analyze does the most work per item.
var defaultStageWorkers = map[domain.Stage]int{
	domain.StageNormalize: 8,
	domain.StageEnrich:    4,
	domain.StageCrossref:  4,
	domain.StageAnalyze:   2,
}

// Ensure Pipeline implements the stats port.
var _ driving.PipelineStats = (*Pipeline)(nil)

// PipelineConfig tunes the processing pipeline.
type PipelineConfig struct {
	// ChunkSize is the records-per-job split; zero means DefaultChunkSize.
	ChunkSize int

	// StageWorkers overrides per-stage worker counts; missing stages use
	// the defaults.
	StageWorkers map[domain.Stage]int
}

// Pipeline is the four-stage processing engine. Batches enter at
// normalize; completed stages hand derived jobs to the next stage
// in-process. Every stage upserts by the record's dedup key, so
// reprocessing a chunk is always safe.
type Pipeline struct {
	cfg     PipelineConfig
	store   driven.RecordStore
	scorer  driven.Scorer
	cache   *cache.Manager
	bus     *EventBus
	metrics *Metrics

	stages []*stageQueue

	// onOutcome reports per-source normalize results to whoever owns
	// the source metrics. Nil is fine; workers call it concurrently.
	onOutcome func(sourceID string, processed, rejected int)

	mu      sync.Mutex
	running bool
}

// NewPipeline assembles the pipeline over its collaborators.
func NewPipeline(cfg PipelineConfig, store driven.RecordStore, scorer driven.Scorer, cacheMgr *cache.Manager, bus *EventBus, metrics *Metrics) *Pipeline {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	p := &Pipeline{
		cfg:     cfg,
		store:   store,
		scorer:  scorer,
		cache:   cacheMgr,
		bus:     bus,
		metrics: metrics,
	}

	handlers := map[domain.Stage]stageHandler{
		domain.StageNormalize: p.normalizeStage,
		domain.StageEnrich:    p.enrichStage,
		domain.StageCrossref:  p.crossrefStage,
		domain.StageAnalyze:   p.analyzeStage,
	}
	for _, stage := range []domain.Stage{domain.StageNormalize, domain.StageEnrich, domain.StageCrossref, domain.StageAnalyze} {
		workers := defaultStageWorkers[stage]
		if w, ok := cfg.StageWorkers[stage]; ok && w > 0 {
			workers = w
		}
		queue := newStageQueue(stage, workers, handlers[stage], metrics, bus)
		queue.onResult = p.stageCompleted
		p.stages = append(p.stages, queue)
	}
	return p
}

// OnRecordOutcome installs the per-source validation-outcome callback.
// Set before Start.
func (p *Pipeline) OnRecordOutcome(fn func(sourceID string, processed, rejected int)) {
	p.onOutcome = fn
}

// Start launches every stage's worker pool. Idempotent.
func (p *Pipeline) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	p.running = true
	for _, queue := range p.stages {
		queue.start(ctx)
	}
	logger.Info("pipeline: started %d stages", len(p.stages))
}

// Stop drains in-flight jobs and drops queued-but-unstarted ones. The
// total drop count is reported on the event bus so the choice is
// observable, never implicit.
func (p *Pipeline) Stop() int {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return 0
	}
	p.running = false
	p.mu.Unlock()

	dropped := 0
	for _, queue := range p.stages {
		dropped += queue.stop()
	}
	p.bus.Publish(domain.Event{
		Type:  domain.EventPipelineDrained,
		Count: dropped,
		At:    time.Now(),
	})
	logger.Info("pipeline: stopped, dropped %d queued jobs", dropped)
	return dropped
}

// Submit chunks a normalised batch and enqueues it at the first stage.
// Returns the number of jobs created.
func (p *Pipeline) Submit(sourceID string, records []domain.NormalizedRecord, fastLane bool) int {
	if len(records) == 0 {
		return 0
	}
	chunks := chunkRecords(records, p.cfg.ChunkSize)
	for i, chunk := range chunks {
		urgent := false
		for _, rec := range chunk {
			if rec.Urgent {
				urgent = true
				break
			}
		}
		recordType := dominantType(chunk)
		job := &domain.ProcessingJob{
			ID:          uuid.NewString(),
			SourceID:    sourceID,
			RecordType:  recordType,
			Payload:     domain.NormalizePayload{Batch: chunk},
			ChunkIndex:  i,
			TotalChunks: len(chunks),
			Priority:    domain.JobPriority(urgent, fastLane, recordType),
		}
		p.stages[0].enqueue(job)
	}
	return len(chunks)
}

// Stats returns per-stage counters in pipeline order.
func (p *Pipeline) Stats() []driving.QueueStats {
	stats := make([]driving.QueueStats, 0, len(p.stages))
	for _, queue := range p.stages {
		waiting, active, counters := queue.snapshot()
		stats = append(stats, driving.QueueStats{
			Stage:     queue.stage,
			Waiting:   waiting,
			Active:    active,
			Completed: counters.completed,
			Failed:    counters.failed,
			Retried:   counters.retried,
			Dropped:   counters.dropped,
		})
	}
	return stats
}

// stageCompleted publishes the stage event and enqueues the derived
// next-stage job. Crossref feeds analyze only for opportunity records;
// everything else terminates there.
func (p *Pipeline) stageCompleted(job *domain.ProcessingJob, result *domain.StageResult) {
	stage := job.Payload.Stage()
	p.bus.Publish(domain.Event{
		Type:     domain.EventStageProcessed,
		SourceID: job.SourceID,
		Stage:    stage,
		JobID:    job.ID,
		Count:    result.Processed,
		At:       time.Now(),
	})

	output := result.Output
	if stage == domain.StageCrossref {
		kept := output[:0:0]
		for _, rec := range output {
			if rec.Type == domain.RecordOpportunity {
				kept = append(kept, rec)
			}
		}
		output = kept
	}
	next := stage.Next()
	if next == "" || len(output) == 0 {
		if stage == domain.StageAnalyze {
			p.bus.Publish(domain.Event{
				Type:     domain.EventAnalyticsUpdated,
				SourceID: job.SourceID,
				Count:    result.Processed,
				At:       time.Now(),
			})
		}
		return
	}

	derived := &domain.ProcessingJob{
		ID:          uuid.NewString(),
		SourceID:    job.SourceID,
		RecordType:  job.RecordType,
		Payload:     nextPayload(next, output),
		ChunkIndex:  job.ChunkIndex,
		TotalChunks: job.TotalChunks,
		Priority:    job.Priority,
	}
	p.queueFor(next).enqueue(derived)
}

func (p *Pipeline) queueFor(stage domain.Stage) *stageQueue {
	for _, queue := range p.stages {
		if queue.stage == stage {
			return queue
		}
	}
	return nil
}

func nextPayload(stage domain.Stage, records []domain.NormalizedRecord) domain.StagePayload {
	switch stage {
	case domain.StageEnrich:
		return domain.EnrichPayload{Batch: records}
	case domain.StageCrossref:
		return domain.CrossrefPayload{Batch: records}
	default:
		return domain.AnalyzePayload{Batch: records}
	}
}

// normalizeStage validates each record and performs the first idempotent
// upsert. Per-record validation failures ride in the result; a storage
// fault fails the whole job.
func (p *Pipeline) normalizeStage(ctx context.Context, job *domain.ProcessingJob) (*domain.StageResult, error) {
	result := &domain.StageResult{RecordErrors: make(map[domain.RecordKey]error)}
	for _, rec := range job.Payload.Records() {
		if err := rec.Validate(); err != nil {
			result.Errored++
			result.RecordErrors[rec.Key] = err
			continue
		}
		if rec.IngestedAt.IsZero() {
			rec.IngestedAt = time.Now()
		}
		if _, err := p.store.Upsert(ctx, &rec); err != nil {
			return nil, fmt.Errorf("normalize upsert %s: %w", rec.Key, err)
		}
		result.Processed++
		result.Output = append(result.Output, rec)
	}
	p.metrics.ObserveRecords(job.SourceID, result.Processed, result.Errored)
	if p.onOutcome != nil {
		p.onOutcome(job.SourceID, result.Processed, result.Errored)
	}
	return result, nil
}

// enrichStage attaches prior-history context: how many records the same
// agency/classification pair has produced before, and up to five related
// keys. The count lookup goes through the cache so a burst of records
// from one agency costs one storage read.
func (p *Pipeline) enrichStage(ctx context.Context, job *domain.ProcessingJob) (*domain.StageResult, error) {
	result := &domain.StageResult{RecordErrors: make(map[domain.RecordKey]error)}
	for _, rec := range job.Payload.Records() {
		if rec.Agency != "" && rec.Classification != "" {
			filter := driven.RecordFilter{Agency: rec.Agency, Classification: rec.Classification}
			count, err := p.priorCount(ctx, filter)
			if err != nil {
				return nil, fmt.Errorf("enrich prior count for %s: %w", rec.Key, err)
			}
			rec.PriorCount = count

			related, err := p.store.Query(ctx, driven.RecordFilter{
				Agency:         rec.Agency,
				Classification: rec.Classification,
				Limit:          relatedKeyLimit + 1,
			})
			if err != nil {
				return nil, fmt.Errorf("enrich related query for %s: %w", rec.Key, err)
			}
			rec.RelatedKeys = rec.RelatedKeys[:0]
			for _, prior := range related {
				if prior.Key == rec.Key {
					continue
				}
				rec.RelatedKeys = append(rec.RelatedKeys, prior.Key)
				if len(rec.RelatedKeys) == relatedKeyLimit {
					break
				}
			}
		}
		if _, err := p.store.Upsert(ctx, &rec); err != nil {
			return nil, fmt.Errorf("enrich upsert %s: %w", rec.Key, err)
		}
		result.Processed++
		result.Output = append(result.Output, rec)
	}
	return result, nil
}

func (p *Pipeline) priorCount(ctx context.Context, filter driven.RecordFilter) (int, error) {
	key := "query:prior:" + filter.Agency + ":" + filter.Classification
	value, err := p.cache.GetOrSet(ctx, key, func(ctx context.Context) (any, error) {
		return p.store.Count(ctx, filter)
	}, cache.Options{Tags: []string{"agency:" + filter.Agency}})
	if err != nil {
		return 0, err
	}
	count, _ := value.(int)
	return count, nil
}

// crossrefStage verifies each record's related keys still resolve and
// drops dangling ones. The surviving link count is cached for the query
// paths downstream of the engine.
func (p *Pipeline) crossrefStage(ctx context.Context, job *domain.ProcessingJob) (*domain.StageResult, error) {
	result := &domain.StageResult{RecordErrors: make(map[domain.RecordKey]error)}
	for _, rec := range job.Payload.Records() {
		linked := rec.RelatedKeys[:0:0]
		for _, key := range rec.RelatedKeys {
			_, err := p.store.Get(ctx, key)
			if err != nil {
				if errors.Is(err, domain.ErrNotFound) {
					continue
				}
				return nil, fmt.Errorf("crossref lookup %s: %w", key, err)
			}
			linked = append(linked, key)
		}
		rec.RelatedKeys = linked
		if _, err := p.store.Upsert(ctx, &rec); err != nil {
			return nil, fmt.Errorf("crossref upsert %s: %w", rec.Key, err)
		}
		p.cache.Set("stats:links:"+rec.Key.String(), len(linked), cache.Options{
			Tags: []string{"source:" + rec.Key.SourceID},
		})
		result.Processed++
		result.Output = append(result.Output, rec)
	}
	return result, nil
}

// analyzeStage scores opportunity records through the pluggable scorer.
// A scoring failure is per-record; the job carries on.
func (p *Pipeline) analyzeStage(ctx context.Context, job *domain.ProcessingJob) (*domain.StageResult, error) {
	result := &domain.StageResult{RecordErrors: make(map[domain.RecordKey]error)}
	for _, rec := range job.Payload.Records() {
		score, err := p.scorer.Score(ctx, &rec)
		if err != nil {
			result.Errored++
			result.RecordErrors[rec.Key] = err
			continue
		}
		rec.Score = score
		if _, err := p.store.Upsert(ctx, &rec); err != nil {
			return nil, fmt.Errorf("analyze upsert %s: %w", rec.Key, err)
		}
		p.cache.Set("scores:"+rec.Key.String(), score, cache.Options{
			Tags: []string{"source:" + rec.Key.SourceID},
		})
		result.Processed++
		result.Output = append(result.Output, rec)
	}
	return result, nil
}

// chunkRecords splits a batch into fixed-size chunks; the final chunk
// carries the remainder.
func chunkRecords(records []domain.NormalizedRecord, size int) [][]domain.NormalizedRecord {
	if size <= 0 {
		size = DefaultChunkSize
	}
	var chunks [][]domain.NormalizedRecord
	for start := 0; start < len(records); start += size {
		end := start + size
		if end > len(records) {
			end = len(records)
		}
		chunks = append(chunks, records[start:end])
	}
	return chunks
}

// dominantType returns the most common record type in a chunk.
func dominantType(records []domain.NormalizedRecord) domain.RecordType {
	counts := make(map[domain.RecordType]int)
	best := records[0].Type
	for _, rec := range records {
		counts[rec.Type]++
		if counts[rec.Type] > counts[best] {
			best = rec.Type
		}
	}
	return best
}
