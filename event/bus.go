// Package event provides the engine's in-process lifecycle event bus. Each
// subscriber owns a bounded channel; publishing never blocks and a full
// subscriber channel drops the delivery (counted, never stalls the emitter).
package event

import (
	"log/slog"
	"sync"
	"time"

	"github.com/c360/dataforge/metric"
)

// Type identifies a lifecycle or ingestion event.
type Type string

// Event types emitted by the engine
const (
	SourceRegistered Type = "source_registered"
	SourceRemoved    Type = "source_removed"
	PipelineCreated  Type = "pipeline_created"
	PipelineStarted  Type = "pipeline_started"
	PipelineStopped  Type = "pipeline_stopped"
	PipelinePaused   Type = "pipeline_paused"
	PipelineResumed  Type = "pipeline_resumed"
	DataIngested     Type = "data_ingested"
	DataProcessed    Type = "data_processed"
)

// Event is a fire-and-forget notification. Payload carries per-tick details
// such as records processed, latency or checkpoint id.
type Event struct {
	Type       Type           `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	PipelineID string         `json:"pipeline_id,omitempty"`
	SourceID   string         `json:"source_id,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// DefaultSubscriberBuffer is the channel capacity used when Subscribe is
// called with a non-positive buffer size.
const DefaultSubscriberBuffer = 64

type subscriber struct {
	ch chan Event
}

// Bus fans events out to subscribers without ever blocking the publisher.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]*subscriber
	nextID int
	closed bool

	logger *slog.Logger
	core   *metric.Core
}

// Option configures a Bus.
type Option func(*Bus)

// WithMetrics wires the dropped-delivery counter to the core metrics.
func WithMetrics(core *metric.Core) Option {
	return func(b *Bus) { b.core = core }
}

// NewBus creates an event bus. logger may not be nil.
func NewBus(logger *slog.Logger, opts ...Option) *Bus {
	b := &Bus{
		subs:   make(map[int]*subscriber),
		logger: logger,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a new subscriber and returns its receive channel plus a
// cancel function. The channel is closed when cancelled or when the bus
// closes. buffer <= 0 selects DefaultSubscriberBuffer.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		ch := make(chan Event)
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	sub := &subscriber{ch: make(chan Event, buffer)}
	b.subs[id] = sub

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if s, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(s.ch)
			}
		})
	}
	return sub.ch, cancel
}

// Publish delivers ev to every subscriber. A subscriber whose channel is full
// misses the event; the drop is counted and logged at debug, and the
// publisher is never delayed. Publishing on a closed bus is a no-op.
func (b *Bus) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for _, sub := range b.subs {
		select {
		case sub.ch <- ev:
		default:
			if b.core != nil {
				b.core.RecordEventDropped()
			}
			b.logger.Debug("event dropped, subscriber channel full",
				"type", string(ev.Type),
				"pipeline_id", ev.PipelineID)
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close terminates all subscriptions and rejects further publishes.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		delete(b.subs, id)
		close(sub.ch)
	}
}
