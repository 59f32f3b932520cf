package services

import (
	"context"
	"sync"
	"time"

	"github.com/tenderline-labs/tenderline/internal/core/domain"
	"github.com/tenderline-labs/tenderline/internal/logger"
)

// Queue tuning defaults.
const (
	// defaultAgingStep is how long a waiting job takes to gain one
	// priority point. Aging keeps low-priority jobs from starving under
	// a steady stream of high-priority work.
	defaultAgingStep = 5 * time.Second

	// defaultJobMaxAttempts bounds executions of one logical job.
	defaultJobMaxAttempts = 3

	// defaultJobBackoff is the base delay before a job retry; it doubles
	// per attempt.
	defaultJobBackoff = 2 * time.Second

	// stallHorizon is how long a job may wait before a stall event fires.
	stallHorizon = 5 * time.Minute
)

// stageHandler processes one job. A returned error fails the whole job
// and triggers the queue's retry policy; per-record errors belong in the
// StageResult instead.
type stageHandler func(ctx context.Context, job *domain.ProcessingJob) (*domain.StageResult, error)

// stageQueue is one pipeline stage: a priority-ordered job buffer plus
// its own worker pool. Stages never share workers, so backpressure in
// one cannot block another.
type stageQueue struct {
	stage       domain.Stage
	workers     int
	maxAttempts int
	backoff     time.Duration
	agingStep   time.Duration

	handler  stageHandler
	onResult func(job *domain.ProcessingJob, result *domain.StageResult)
	onFailed func(job *domain.ProcessingJob, err error)
	metrics  *Metrics
	bus      *EventBus

	mu      sync.Mutex
	waiting []*queuedJob
	active  int
	stats   queueCounters
	timers  map[*time.Timer]struct{}
	stopped bool

	signal chan struct{}
	stopCh chan struct{}
	wg     sync.WaitGroup

	now func() time.Time
}

type queuedJob struct {
	job        *domain.ProcessingJob
	enqueuedAt time.Time
	stalled    bool
}

type queueCounters struct {
	completed int
	failed    int
	retried   int
	dropped   int
}

func newStageQueue(stage domain.Stage, workers int, handler stageHandler, metrics *Metrics, bus *EventBus) *stageQueue {
	if workers <= 0 {
		workers = 1
	}
	return &stageQueue{
		stage:       stage,
		workers:     workers,
		maxAttempts: defaultJobMaxAttempts,
		backoff:     defaultJobBackoff,
		agingStep:   defaultAgingStep,
		handler:     handler,
		metrics:     metrics,
		bus:         bus,
		timers:      make(map[*time.Timer]struct{}),
		// One buffered wake-up per worker, so a burst of enqueues can
		// rouse the whole pool, not just the first sleeper.
		signal: make(chan struct{}, workers),
		stopCh: make(chan struct{}),
		now:    time.Now,
	}
}

// start launches the worker pool. Workers run until stop.
func (q *stageQueue) start(ctx context.Context) {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx)
	}
}

// stop drains in-flight jobs and drops queued-but-unstarted ones,
// returning the drop count. Pending retry timers are cancelled; their
// jobs count as dropped too.
func (q *stageQueue) stop() int {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return 0
	}
	q.stopped = true
	for timer := range q.timers {
		if timer.Stop() {
			q.stats.dropped++
		}
	}
	q.timers = nil
	dropped := len(q.waiting) + q.stats.dropped
	q.stats.dropped = dropped
	q.waiting = nil
	q.mu.Unlock()

	close(q.stopCh)
	q.wg.Wait()
	q.metrics.SetQueueDepth(q.stage, 0)
	return dropped
}

// enqueue adds a job to the buffer and wakes one worker.
func (q *stageQueue) enqueue(job *domain.ProcessingJob) {
	q.mu.Lock()
	if q.stopped {
		q.stats.dropped++
		q.mu.Unlock()
		return
	}
	job.EnqueuedAt = q.now()
	q.waiting = append(q.waiting, &queuedJob{job: job, enqueuedAt: job.EnqueuedAt})
	depth := len(q.waiting)
	q.mu.Unlock()

	q.metrics.SetQueueDepth(q.stage, depth)
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// requeueAfter schedules a failed job's next attempt.
func (q *stageQueue) requeueAfter(job *domain.ProcessingJob, delay time.Duration) {
	q.mu.Lock()
	if q.stopped {
		q.stats.dropped++
		q.mu.Unlock()
		return
	}
	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		q.mu.Lock()
		delete(q.timers, timer)
		q.mu.Unlock()
		q.enqueue(job)
	})
	q.timers[timer] = struct{}{}
	q.mu.Unlock()
}

// pop removes and returns the ready job with the highest effective
// priority, preferring earlier arrivals on ties. Effective priority is
// the job's own priority plus one point per agingStep waited; a linear
// scan keeps the aging arithmetic trivially correct and the buffer is
// small enough that it costs nothing measurable.
func (q *stageQueue) pop() *domain.ProcessingJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.waiting) == 0 {
		return nil
	}

	now := q.now()
	best := 0
	bestPri := q.effectivePriority(q.waiting[0], now)
	for i := 1; i < len(q.waiting); i++ {
		pri := q.effectivePriority(q.waiting[i], now)
		if pri > bestPri || (pri == bestPri && q.waiting[i].enqueuedAt.Before(q.waiting[best].enqueuedAt)) {
			best = i
			bestPri = pri
		}
	}

	picked := q.waiting[best]
	q.waiting = append(q.waiting[:best], q.waiting[best+1:]...)
	q.active++
	return picked.job
}

func (q *stageQueue) effectivePriority(item *queuedJob, now time.Time) int {
	waited := now.Sub(item.enqueuedAt)
	pri := item.job.Priority + int(waited/q.agingStep)
	if waited > stallHorizon && !item.stalled {
		item.stalled = true
		q.bus.Publish(domain.Event{
			Type:     domain.EventJobStalled,
			SourceID: item.job.SourceID,
			Stage:    q.stage,
			JobID:    item.job.ID,
			At:       now,
		})
	}
	return pri
}

func (q *stageQueue) worker(ctx context.Context) {
	defer q.wg.Done()
	for {
		job := q.pop()
		if job == nil {
			select {
			case <-q.stopCh:
				return
			case <-ctx.Done():
				return
			case <-q.signal:
				continue
			}
		}
		q.metrics.SetQueueDepth(q.stage, q.depth())

		// Another job may be ready; wake a sleeping sibling before
		// settling into this one.
		select {
		case q.signal <- struct{}{}:
		default:
		}
		q.process(ctx, job)
	}
}

func (q *stageQueue) process(ctx context.Context, job *domain.ProcessingJob) {
	defer func() {
		q.mu.Lock()
		q.active--
		q.mu.Unlock()
	}()

	started := q.now()
	result, err := q.handler(ctx, job)
	q.metrics.ObserveStageDuration(q.stage, q.now().Sub(started).Seconds())

	if err == nil {
		q.mu.Lock()
		q.stats.completed++
		q.mu.Unlock()
		q.metrics.ObserveJob(q.stage, "completed")
		if q.onResult != nil {
			q.onResult(job, result)
		}
		return
	}

	// Whole-job failure. Retry as a new attempt of the same logical job
	// until attempts run out, then mark it permanently failed. It must
	// never vanish silently.
	if job.Attempt+1 < q.maxAttempts {
		q.mu.Lock()
		q.stats.retried++
		q.mu.Unlock()
		q.metrics.ObserveJob(q.stage, "retried")
		retry := *job
		retry.Attempt++
		delay := q.backoff << job.Attempt
		logger.Debug("pipeline: %s job %s attempt %d failed, retrying in %s: %v",
			q.stage, job.ID, job.Attempt, delay, err)
		q.requeueAfter(&retry, delay)
		return
	}

	q.mu.Lock()
	q.stats.failed++
	q.mu.Unlock()
	q.metrics.ObserveJob(q.stage, "failed")
	logger.Error("pipeline: %s job %s failed permanently after %d attempts: %v",
		q.stage, job.ID, job.Attempt+1, err)
	q.bus.Publish(domain.Event{
		Type:     domain.EventJobFailed,
		SourceID: job.SourceID,
		Stage:    q.stage,
		JobID:    job.ID,
		Err:      err.Error(),
		At:       q.now(),
	})
	if q.onFailed != nil {
		q.onFailed(job, err)
	}
}

func (q *stageQueue) depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.waiting)
}

// snapshot returns the stage's counters for the stats surface.
func (q *stageQueue) snapshot() (waiting, active int, counters queueCounters) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.waiting), q.active, q.stats
}
