package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/tenderline-labs/tenderline/internal/core/domain"
	"github.com/tenderline-labs/tenderline/internal/core/ports/driven"
	"github.com/tenderline-labs/tenderline/internal/core/ports/driving"
	"github.com/tenderline-labs/tenderline/internal/logger"
	"github.com/tenderline-labs/tenderline/internal/retry"
)

// DefaultMaxConcurrentPolls bounds how many sources may fetch at once.
const DefaultMaxConcurrentPolls = 8

// Ensure Ingestor implements the control port.
var _ driving.IngestControl = (*Ingestor)(nil)

// Ingestor is the poll orchestrator. Each source runs a small
// Idle/Polling state machine with one outstanding timer handle;
// rescheduling and cancellation are explicit operations on that handle,
// so an overrunning poll can never overlap the next one and a config
// update can never leave a duplicate timer behind.
type Ingestor struct {
	registry *SourceRegistry
	adapters driven.AdapterRegistry
	fetcher  *Fetcher
	pipeline *Pipeline
	bus      *EventBus
	metrics  *Metrics
	sem      *semaphore.Weighted

	mu      sync.Mutex
	running bool
	states  map[string]*pollState
	wg      sync.WaitGroup

	// pollCtx outlives the Start context: in-flight fetches drain on
	// Stop rather than being hard-aborted, to avoid partial writes.
	// hardCancel aborts stragglers only once the stop deadline passes.
	pollCtx    context.Context
	hardCancel context.CancelFunc
}

// pollState is one source's scheduling state. Only ever touched under
// the ingestor's lock.
type pollState struct {
	timer   *time.Timer
	polling bool
	next    time.Time
	cursor  string
	prev    *domain.RawBatch
}

// NewIngestor creates the orchestrator. maxConcurrent bounds parallel
// polls across all sources; zero means DefaultMaxConcurrentPolls.
func NewIngestor(registry *SourceRegistry, adapters driven.AdapterRegistry, fetcher *Fetcher, pipeline *Pipeline, bus *EventBus, metrics *Metrics, maxConcurrent int) *Ingestor {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentPolls
	}
	return &Ingestor{
		registry: registry,
		adapters: adapters,
		fetcher:  fetcher,
		pipeline: pipeline,
		bus:      bus,
		metrics:  metrics,
		sem:      semaphore.NewWeighted(int64(maxConcurrent)),
		states:   make(map[string]*pollState),
	}
}

// Start schedules an initial poll for every enabled source. Non-blocking.
func (i *Ingestor) Start(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.running {
		return nil
	}
	i.running = true
	i.pollCtx, i.hardCancel = context.WithCancel(context.WithoutCancel(ctx))

	scheduled := 0
	for _, cfg := range i.registry.List() {
		if !cfg.Enabled {
			continue
		}
		i.scheduleLocked(cfg.ID, 0)
		scheduled++
	}
	logger.Info("ingest: started, %d sources scheduled", scheduled)
	return nil
}

// Stop cancels pending poll timers and waits for in-flight polls to
// drain. The drain respects ctx: a deadline abandons the wait but the
// polls still finish in the background.
func (i *Ingestor) Stop(ctx context.Context) error {
	i.mu.Lock()
	if !i.running {
		i.mu.Unlock()
		return nil
	}
	i.running = false
	for _, state := range i.states {
		if state.timer != nil {
			state.timer.Stop()
			state.timer = nil
		}
	}
	i.mu.Unlock()

	done := make(chan struct{})
	go func() {
		i.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		logger.Info("ingest: stopped, all polls drained")
		return nil
	case <-ctx.Done():
		logger.Warn("ingest: stop deadline reached, aborting in-flight polls")
		i.hardCancel()
		<-done
		return ctx.Err()
	}
}

// Schedule arms a source's first poll. Used when a source is added or
// enabled while the orchestrator runs.
func (i *Ingestor) Schedule(id string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if !i.running {
		return
	}
	i.scheduleLocked(id, 0)
}

// Reschedule cancels a source's pending timer and re-arms it under the
// current config. In-flight polls are untouched; they re-arm themselves
// on completion against the updated interval.
func (i *Ingestor) Reschedule(id string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if !i.running {
		return
	}
	state, ok := i.states[id]
	if ok && state.polling {
		return
	}
	cfg, err := i.registry.Get(id)
	if err != nil || !cfg.Enabled {
		i.cancelLocked(id)
		return
	}
	i.scheduleLocked(id, cfg.PollInterval)
}

// Cancel stops a source's pending timer. An in-flight poll drains and
// does not re-arm once the source is disabled.
func (i *Ingestor) Cancel(id string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.cancelLocked(id)
}

// PollNow triggers an immediate out-of-cadence poll.
// Returns domain.ErrPollInFlight if the source is already polling.
func (i *Ingestor) PollNow(ctx context.Context, sourceID string) error {
	cfg, err := i.registry.Get(sourceID)
	if err != nil {
		return err
	}
	if !cfg.Enabled {
		return fmt.Errorf("%w: source %s", domain.ErrSourceDisabled, sourceID)
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	if !i.running {
		return domain.ErrStopped
	}
	if state, ok := i.states[sourceID]; ok && state.polling {
		return fmt.Errorf("%w: source %s", domain.ErrPollInFlight, sourceID)
	}
	i.scheduleLocked(sourceID, 0)
	return nil
}

// NextPoll reports when a source's next scheduled poll fires.
func (i *Ingestor) NextPoll(sourceID string) (time.Time, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	state, ok := i.states[sourceID]
	if !ok || state.timer == nil {
		return time.Time{}, false
	}
	return state.next, true
}

// scheduleLocked arms the single outstanding timer for a source. Any
// previous timer is stopped first, so a reschedule race cannot leave two
// timers for one source.
func (i *Ingestor) scheduleLocked(id string, delay time.Duration) {
	state, ok := i.states[id]
	if !ok {
		state = &pollState{}
		i.states[id] = state
	}
	if state.polling {
		return
	}
	if state.timer != nil {
		state.timer.Stop()
	}
	state.next = time.Now().Add(delay)
	state.timer = time.AfterFunc(delay, func() { i.firePoll(id) })
}

func (i *Ingestor) cancelLocked(id string) {
	state, ok := i.states[id]
	if !ok {
		return
	}
	if state.timer != nil {
		state.timer.Stop()
		state.timer = nil
	}
	state.next = time.Time{}
}

// firePoll transitions a source from Idle to Polling and runs one poll
// cycle in its own goroutine.
func (i *Ingestor) firePoll(id string) {
	i.mu.Lock()
	if !i.running {
		i.mu.Unlock()
		return
	}
	state, ok := i.states[id]
	if !ok || state.polling {
		i.mu.Unlock()
		return
	}
	state.polling = true
	state.timer = nil
	cursor, prev := state.cursor, state.prev
	ctx := i.pollCtx
	i.mu.Unlock()

	i.registry.BeginPoll(id)
	i.wg.Add(1)
	go func() {
		defer i.wg.Done()
		i.pollOnce(ctx, id, cursor, prev)
	}()
}

// pollOnce runs one poll cycle for a source and always re-arms the next
// one afterwards while the source stays enabled.
func (i *Ingestor) pollOnce(ctx context.Context, id, cursor string, prev *domain.RawBatch) {
	cfg, err := i.registry.Get(id)
	if err != nil {
		i.finish(id, "", nil)
		return
	}
	next := time.Now().Add(cfg.PollInterval)

	// Quota gate. A denial skips the cycle; it is control flow, not a
	// failure, and must leave the failure streak untouched.
	if !i.registry.Limiter().Admit(id) {
		logger.Debug("ingest: source %s quota denied, skipping cycle", id)
		i.registry.FinishPollSkip(id, next)
		i.metrics.ObservePoll(id, "skip")
		i.bus.Publish(domain.Event{Type: domain.EventPollSkipped, SourceID: id, At: time.Now()})
		i.finish(id, cursor, prev)
		return
	}

	adapter, err := i.adapters.Get(cfg.Type)
	if err != nil {
		i.failPoll(id, err, next)
		i.finish(id, cursor, prev)
		return
	}

	// Fetch through the retry executor; it retries only transient
	// faults, each attempt respecting the concurrency budget acquired
	// here for the whole cycle.
	if err := i.sem.Acquire(ctx, 1); err != nil {
		i.finish(id, cursor, prev)
		return
	}
	var batch *domain.RawBatch
	exec := retry.New(cfg.Retry)
	fetchErr := exec.Do(ctx, func(ctx context.Context) error {
		req, err := adapter.BuildRequest(ctx, *cfg, cursor, prev)
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrAdapterParse, err)
		}
		batch, err = i.fetcher.Fetch(ctx, id, req)
		return err
	})
	i.sem.Release(1)

	if fetchErr != nil {
		i.failPoll(id, fetchErr, next)
		i.finish(id, cursor, prev)
		return
	}

	if batch.NotModified {
		logger.Debug("ingest: source %s not modified upstream", id)
		i.registry.FinishPollSuccess(id, next)
		i.metrics.ObservePoll(id, "success")
		i.finish(id, cursor, prev)
		return
	}

	// Hand the current cursor to the adapter; Parse replaces it with
	// the next page's cursor, or clears it when the sweep is done.
	batch.Cursor = cursor
	records, err := adapter.Parse(batch, *cfg)
	if err != nil {
		// A parse failure fails the whole cycle and is never retried
		// within it; the next scheduled poll retries naturally.
		i.failPoll(id, fmt.Errorf("%w: %v", domain.ErrAdapterParse, err), next)
		i.finish(id, batch.Cursor, batch)
		return
	}

	jobs := i.pipeline.Submit(id, records, cfg.FastLane)
	i.registry.FinishPollSuccess(id, next)
	i.metrics.ObservePoll(id, "success")
	if len(records) > 0 {
		i.bus.Publish(domain.Event{
			Type:     domain.EventDataReceived,
			SourceID: id,
			Count:    len(records),
			At:       time.Now(),
		})
	}
	logger.Debug("ingest: source %s emitted %d records as %d jobs", id, len(records), jobs)
	i.finish(id, batch.Cursor, batch)
}

func (i *Ingestor) failPoll(id string, err error, next time.Time) {
	logger.Warn("ingest: source %s poll failed: %v", id, err)
	i.registry.FinishPollFailure(id, err, next)
	i.metrics.ObservePoll(id, "failure")
	i.bus.Publish(domain.Event{
		Type:     domain.EventPollError,
		SourceID: id,
		Err:      err.Error(),
		At:       time.Now(),
	})
}

// finish transitions the source back to Idle and re-arms its timer if
// it is still enabled and the orchestrator still runs.
func (i *Ingestor) finish(id, cursor string, prev *domain.RawBatch) {
	i.mu.Lock()
	defer i.mu.Unlock()
	state, ok := i.states[id]
	if !ok {
		return
	}
	state.polling = false
	state.cursor = cursor
	if prev != nil && !prev.NotModified {
		state.prev = prev
	}
	if !i.running {
		return
	}
	cfg, err := i.registry.Get(id)
	if err != nil || !cfg.Enabled {
		return
	}
	state.next = time.Now().Add(cfg.PollInterval)
	state.timer = time.AfterFunc(cfg.PollInterval, func() { i.firePoll(id) })
}
