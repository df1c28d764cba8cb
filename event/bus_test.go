package event

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPublishSubscribe(t *testing.T) {
	bus := NewBus(testLogger())
	defer bus.Close()

	ch, cancel := bus.Subscribe(4)
	defer cancel()

	bus.Publish(Event{Type: PipelineStarted, PipelineID: "p1"})

	select {
	case ev := <-ch:
		assert.Equal(t, PipelineStarted, ev.Type)
		assert.Equal(t, "p1", ev.PipelineID)
		assert.False(t, ev.Timestamp.IsZero())
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestPublishNeverBlocksOnFullSubscriber(t *testing.T) {
	bus := NewBus(testLogger())
	defer bus.Close()

	// Subscriber with capacity 1 that never reads
	_, cancel := bus.Subscribe(1)
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			bus.Publish(Event{Type: DataIngested})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}
}

func TestFanOutToMultipleSubscribers(t *testing.T) {
	bus := NewBus(testLogger())
	defer bus.Close()

	ch1, cancel1 := bus.Subscribe(4)
	ch2, cancel2 := bus.Subscribe(4)
	defer cancel1()
	defer cancel2()

	bus.Publish(Event{Type: SourceRegistered, SourceID: "s1"})

	for _, ch := range []<-chan Event{ch1, ch2} {
		select {
		case ev := <-ch:
			assert.Equal(t, SourceRegistered, ev.Type)
		case <-time.After(time.Second):
			t.Fatal("subscriber missed event")
		}
	}
}

func TestCancelStopsDelivery(t *testing.T) {
	bus := NewBus(testLogger())
	defer bus.Close()

	ch, cancel := bus.Subscribe(4)
	cancel()
	// Cancel is idempotent
	cancel()

	assert.Equal(t, 0, bus.SubscriberCount())

	// Channel closed after cancel
	_, open := <-ch
	assert.False(t, open)
}

func TestCloseTerminatesSubscribers(t *testing.T) {
	bus := NewBus(testLogger())

	ch, _ := bus.Subscribe(4)
	bus.Close()

	_, open := <-ch
	assert.False(t, open)

	// Publishing after close is a no-op
	bus.Publish(Event{Type: PipelineStopped})

	// Subscribing after close yields a closed channel
	ch2, _ := bus.Subscribe(4)
	_, open = <-ch2
	assert.False(t, open)
}

func TestPublishPreservesExplicitTimestamp(t *testing.T) {
	bus := NewBus(testLogger())
	defer bus.Close()

	ch, cancel := bus.Subscribe(1)
	defer cancel()

	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	bus.Publish(Event{Type: DataProcessed, Timestamp: ts})

	ev := <-ch
	require.Equal(t, ts, ev.Timestamp)
}
