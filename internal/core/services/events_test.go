package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tenderline-labs/tenderline/internal/core/domain"
)

func TestEventBus_PublishToSubscriber(t *testing.T) {
	bus := NewEventBus(4)
	defer bus.Close()

	events := bus.Subscribe()
	bus.Publish(domain.Event{Type: domain.EventDataReceived, SourceID: "sam", Count: 3})

	select {
	case ev := <-events:
		assert.Equal(t, domain.EventDataReceived, ev.Type)
		assert.Equal(t, "sam", ev.SourceID)
		assert.Equal(t, 3, ev.Count)
	case <-time.After(time.Second):
		t.Fatal("expected an event")
	}
}

func TestEventBus_FanOut(t *testing.T) {
	bus := NewEventBus(4)
	defer bus.Close()

	first := bus.Subscribe()
	second := bus.Subscribe()
	bus.Publish(domain.Event{Type: domain.EventPollError, SourceID: "sam"})

	for _, ch := range []<-chan domain.Event{first, second} {
		select {
		case ev := <-ch:
			assert.Equal(t, domain.EventPollError, ev.Type)
		case <-time.After(time.Second):
			t.Fatal("expected both subscribers to receive the event")
		}
	}
}

func TestEventBus_PublishNeverBlocks(t *testing.T) {
	bus := NewEventBus(1)
	defer bus.Close()

	// Nobody drains this subscriber; the second publish must drop,
	// not block.
	bus.Subscribe()
	bus.Publish(domain.Event{Type: domain.EventDataReceived})

	done := make(chan struct{})
	go func() {
		bus.Publish(domain.Event{Type: domain.EventDataReceived})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
	assert.Equal(t, uint64(1), bus.Dropped())
}

func TestEventBus_CloseClosesChannels(t *testing.T) {
	bus := NewEventBus(1)
	events := bus.Subscribe()
	bus.Close()

	_, open := <-events
	assert.False(t, open)

	// Publish after close is a no-op.
	bus.Publish(domain.Event{Type: domain.EventDataReceived})

	// Subscribe after close returns a closed channel.
	late := bus.Subscribe()
	_, open = <-late
	require.False(t, open)
}
