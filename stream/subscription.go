package stream

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/dataforge/types"
)

// latencyAlpha is the EMA smoothing factor for handler latency.
const latencyAlpha = 0.1

// Status is the lifecycle state of a subscription.
type Status string

// Subscription states
const (
	StatusActive  Status = "active"
	StatusPaused  Status = "paused"
	StatusStopped Status = "stopped"
)

// Handler consumes records delivered by a flush, one at a time, in arrival
// order. A returned error marks the record failed; delivery continues with
// the next record.
type Handler interface {
	OnRecord(ctx context.Context, rec types.Record) error
}

// ErrorHandler optionally receives per-record delivery errors.
type ErrorHandler interface {
	OnError(err error, rec types.Record)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, rec types.Record) error

// OnRecord implements Handler.
func (f HandlerFunc) OnRecord(ctx context.Context, rec types.Record) error {
	return f(ctx, rec)
}

// Options configures a subscription.
type Options struct {
	// BufferSize is the nominal buffer capacity. Default 1000.
	BufferSize int
	// FlushInterval is the timer-driven flush period. Default 1s.
	FlushInterval time.Duration
	// Backpressure governs PushRecord on a full buffer. Default drop.
	Backpressure types.BackpressurePolicy
	// Window is optional pass-through windowing configuration.
	Window *types.WindowConfig
}

func (o Options) withDefaults() Options {
	if o.BufferSize <= 0 {
		o.BufferSize = 1000
	}
	if o.FlushInterval <= 0 {
		o.FlushInterval = time.Second
	}
	if o.Backpressure == "" {
		o.Backpressure = types.BackpressureDrop
	}
	return o
}

// Metrics is a point-in-time snapshot of a subscription's counters.
type Metrics struct {
	RecordsReceived    int64   `json:"records_received"`
	RecordsProcessed   int64   `json:"records_processed"`
	RecordsDropped     int64   `json:"records_dropped"`
	Errors             int64   `json:"errors"`
	BackpressureEvents int64   `json:"backpressure_events"`
	AvgLatencyMs       float64 `json:"avg_latency_ms"`
}

// Subscription owns one buffered delivery channel from a named source to a
// handler. All fields are owned exclusively by the subscription; callers
// interact through the Processor.
type Subscription struct {
	id      string
	source  string
	handler Handler
	opts    Options
	buf     *recordBuffer

	received     atomic.Int64
	processed    atomic.Int64
	dropped      atomic.Int64
	errors       atomic.Int64
	backpressure atomic.Int64

	latencyMu    sync.Mutex
	avgLatencyMs float64

	statusMu sync.Mutex
	status   Status

	// flushMu serializes flushes: timer-driven, forced by the block policy,
	// and the final drain on unsubscribe never interleave.
	flushMu sync.Mutex

	cancel context.CancelFunc
	done   chan struct{}
}

// ID returns the subscription id.
func (s *Subscription) ID() string { return s.id }

// Source returns the source name the subscription is bound to.
func (s *Subscription) Source() string { return s.source }

// Status returns the current lifecycle state.
func (s *Subscription) Status() Status {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	return s.status
}

// BufferLen returns the current buffer length.
func (s *Subscription) BufferLen() int {
	return s.buf.Len()
}

// Metrics returns a snapshot of the subscription's counters.
func (s *Subscription) Metrics() Metrics {
	s.latencyMu.Lock()
	avg := s.avgLatencyMs
	s.latencyMu.Unlock()

	return Metrics{
		RecordsReceived:    s.received.Load(),
		RecordsProcessed:   s.processed.Load(),
		RecordsDropped:     s.dropped.Load(),
		Errors:             s.errors.Load(),
		BackpressureEvents: s.backpressure.Load(),
		AvgLatencyMs:       avg,
	}
}

func (s *Subscription) setStatus(st Status) {
	s.statusMu.Lock()
	s.status = st
	s.statusMu.Unlock()
}

// recordLatency folds one handler invocation latency into the EMA.
func (s *Subscription) recordLatency(d time.Duration) {
	sample := float64(d.Microseconds()) / 1000.0

	s.latencyMu.Lock()
	if s.avgLatencyMs == 0 {
		s.avgLatencyMs = sample
	} else {
		s.avgLatencyMs = s.avgLatencyMs*(1-latencyAlpha) + sample*latencyAlpha
	}
	s.latencyMu.Unlock()
}
