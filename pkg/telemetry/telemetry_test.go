package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubPublishSubscribe(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	events, cancel := hub.Subscribe()
	defer cancel()

	hub.Publish(Event{Type: EventStreamConnected, ExecutionID: "exec-1"})

	select {
	case evt := <-events:
		assert.Equal(t, EventStreamConnected, evt.Type)
		assert.Equal(t, "exec-1", evt.ExecutionID)
		assert.False(t, evt.Timestamp.IsZero())
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestHubUnsubscribeStopsDelivery(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	events, cancel := hub.Subscribe()
	cancel()

	hub.Publish(Event{Type: EventStepCompleted})

	_, open := <-events
	assert.False(t, open, "channel should be closed after unsubscribe")
}

func TestHubCloseClosesSubscribers(t *testing.T) {
	hub := NewHub()
	events, cancel := hub.Subscribe()
	defer cancel()

	hub.Close()
	_, open := <-events
	assert.False(t, open)

	// Publishing after close is a no-op.
	hub.Publish(Event{Type: EventStreamError})
}

func TestHubDropsWhenSubscriberFull(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	events, cancel := hub.Subscribe()
	defer cancel()

	for i := 0; i < 200; i++ {
		hub.Publish(Event{Type: EventStepCompleted})
	}

	// The buffer holds 64; the rest were dropped rather than blocking.
	drained := 0
	for {
		select {
		case <-events:
			drained++
		default:
			require.LessOrEqual(t, drained, 64)
			return
		}
	}
}

func TestNilHubIsSafe(t *testing.T) {
	var hub *Hub
	hub.Publish(Event{Type: EventStreamConnected})
}
