package services

import (
	"sync"
	"sync/atomic"

	"github.com/tenderline-labs/tenderline/internal/core/domain"
	"github.com/tenderline-labs/tenderline/internal/logger"
)

// DefaultEventBuffer is the per-subscriber channel depth.
const DefaultEventBuffer = 256

// EventBus fans engine events out to subscribers. Publish never blocks:
// a subscriber that falls behind loses events rather than stalling the
// orchestrator or a pipeline worker.
type EventBus struct {
	mu      sync.RWMutex
	subs    []chan domain.Event
	buffer  int
	closed  bool
	dropped atomic.Uint64
}

// NewEventBus creates an event bus with the given per-subscriber buffer.
// A non-positive buffer falls back to DefaultEventBuffer.
func NewEventBus(buffer int) *EventBus {
	if buffer <= 0 {
		buffer = DefaultEventBuffer
	}
	return &EventBus{buffer: buffer}
}

// Subscribe registers a new subscriber and returns its event channel.
// The channel is closed when the bus closes.
func (b *EventBus) Subscribe() <-chan domain.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan domain.Event, b.buffer)
	if b.closed {
		close(ch)
		return ch
	}
	b.subs = append(b.subs, ch)
	return ch
}

// Publish delivers an event to every subscriber without blocking.
func (b *EventBus) Publish(ev domain.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.dropped.Add(1)
			logger.Debug("eventbus: subscriber full, dropped %s event", ev.Type)
		}
	}
}

// Dropped reports how many events were lost to full subscribers.
func (b *EventBus) Dropped() uint64 {
	return b.dropped.Load()
}

// Close closes all subscriber channels. Publish after Close is a no-op.
func (b *EventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, ch := range b.subs {
		close(ch)
	}
	b.subs = nil
}
