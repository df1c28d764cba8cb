// Package types defines the shared value and configuration types exchanged
// between the source registry, batch/stream processors and pipeline manager.
// Runtime entities (sources, pipelines, subscriptions) live with their owning
// component; only plain data crosses package boundaries.
package types

import (
	"fmt"
	"time"
)

// SourceType classifies where a data source's records originate.
type SourceType string

// Known source types
const (
	SourceOnChain     SourceType = "on_chain"
	SourceOffChain    SourceType = "off_chain"
	SourceMarket      SourceType = "market"
	SourceAlternative SourceType = "alternative"
	SourceCrossChain  SourceType = "cross_chain"
)

// Valid reports whether st is a known source type.
func (st SourceType) Valid() bool {
	switch st {
	case SourceOnChain, SourceOffChain, SourceMarket, SourceAlternative, SourceCrossChain:
		return true
	}
	return false
}

// SourceStatus is the health/availability state of a registered source.
type SourceStatus string

// Source states
const (
	SourceActive   SourceStatus = "active"
	SourceInactive SourceStatus = "inactive"
	SourceDegraded SourceStatus = "degraded"
	SourceError    SourceStatus = "error"
)

// Valid reports whether ss is a known source status.
func (ss SourceStatus) Valid() bool {
	switch ss {
	case SourceActive, SourceInactive, SourceDegraded, SourceError:
		return true
	}
	return false
}

// SinkType classifies where processed records are delivered.
type SinkType string

// Known sink types
const (
	SinkDatabase     SinkType = "database"
	SinkCache        SinkType = "cache"
	SinkMessageQueue SinkType = "message_queue"
	SinkAPI          SinkType = "api"
	SinkFile         SinkType = "file"
	SinkEventBus     SinkType = "event_bus"
)

// Valid reports whether st is a known sink type.
func (st SinkType) Valid() bool {
	switch st {
	case SinkDatabase, SinkCache, SinkMessageQueue, SinkAPI, SinkFile, SinkEventBus:
		return true
	}
	return false
}

// PipelineMode is the execution cadence of a pipeline.
type PipelineMode string

// Pipeline modes
const (
	ModeStreaming PipelineMode = "streaming" // continuous micro-batches
	ModeBatch     PipelineMode = "batch"     // periodic large batches
	ModeHybrid    PipelineMode = "hybrid"    // both loops concurrently
)

// Valid reports whether pm is a known pipeline mode.
func (pm PipelineMode) Valid() bool {
	switch pm {
	case ModeStreaming, ModeBatch, ModeHybrid:
		return true
	}
	return false
}

// PipelineStatus is the lifecycle state of a pipeline.
type PipelineStatus string

// Pipeline lifecycle states
const (
	PipelineStopped PipelineStatus = "stopped"
	PipelineRunning PipelineStatus = "running"
	PipelinePaused  PipelineStatus = "paused"
	PipelineError   PipelineStatus = "error"
)

// BackpressurePolicy governs PushRecord behavior on a full stream buffer.
type BackpressurePolicy string

// Backpressure policies
const (
	// BackpressureDrop discards the newest record when the buffer is full.
	BackpressureDrop BackpressurePolicy = "drop"
	// BackpressureBuffer appends past the nominal capacity. Growth is
	// unbounded, logged and counted rather than silent.
	BackpressureBuffer BackpressurePolicy = "buffer"
	// BackpressureBlock forces an immediate synchronous flush before
	// appending, approximating blocking without suspending the producer.
	BackpressureBlock BackpressurePolicy = "block"
)

// Valid reports whether bp is a known backpressure policy.
func (bp BackpressurePolicy) Valid() bool {
	switch bp {
	case BackpressureDrop, BackpressureBuffer, BackpressureBlock:
		return true
	}
	return false
}

// ErrorPolicy governs what happens to a record that exhausts its retries.
type ErrorPolicy string

// Error policies
const (
	// ErrorRetry records the failure after retries are exhausted.
	ErrorRetry ErrorPolicy = "retry"
	// ErrorSkip silently drops the record; it is counted as skipped,
	// not failed.
	ErrorSkip ErrorPolicy = "skip"
	// ErrorDeadLetter records the failure for a downstream dead-letter stage.
	ErrorDeadLetter ErrorPolicy = "dead_letter"
	// ErrorFail records the failure.
	ErrorFail ErrorPolicy = "fail"
)

// WindowType classifies stream windowing configuration. Window semantics are
// provided by a stage consuming delivered records; the engine only validates
// and carries the configuration.
type WindowType string

// Window types
const (
	WindowTumbling WindowType = "tumbling"
	WindowSliding  WindowType = "sliding"
	WindowSession  WindowType = "session"
)

// RetryPolicy configures per-record retry with capped exponential backoff.
// The delay before retry n is min(InitialDelay * Multiplier^(n-1), MaxDelay).
type RetryPolicy struct {
	MaxRetries   int           `json:"max_retries"`
	InitialDelay time.Duration `json:"initial_delay"`
	MaxDelay     time.Duration `json:"max_delay"`
	Multiplier   float64       `json:"multiplier"`
}

// DefaultRetryPolicy returns the engine-wide default retry policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:   3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
	}
}

// DataSourceConfig describes a source to register with the registry.
type DataSourceConfig struct {
	ID              string        `json:"id"`
	Type            SourceType    `json:"type"`
	Provider        string        `json:"provider"`
	Endpoint        string        `json:"endpoint,omitempty"`
	APIKey          string        `json:"api_key,omitempty"`
	RefreshInterval time.Duration `json:"refresh_interval"`
	BatchSize       int           `json:"batch_size"`
	RetryPolicy     RetryPolicy   `json:"retry_policy"`
	Transformers    []string      `json:"transformers,omitempty"`
}

// Validate checks the source config for required fields.
func (c DataSourceConfig) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("source config: id is required")
	}
	if !c.Type.Valid() {
		return fmt.Errorf("source config %s: unknown type %q", c.ID, c.Type)
	}
	if c.Provider == "" {
		return fmt.Errorf("source config %s: provider is required", c.ID)
	}
	return nil
}

// DataSinkConfig describes a sink attached to a pipeline.
type DataSinkConfig struct {
	Type          SinkType      `json:"type"`
	Endpoint      string        `json:"endpoint,omitempty"`
	BatchSize     int           `json:"batch_size"`
	FlushInterval time.Duration `json:"flush_interval"`
	RetryPolicy   RetryPolicy   `json:"retry_policy"`
}

// Validate checks the sink config for required fields.
func (c DataSinkConfig) Validate() error {
	if !c.Type.Valid() {
		return fmt.Errorf("sink config: unknown type %q", c.Type)
	}
	return nil
}

// WindowConfig carries pass-through windowing configuration for a stream
// subscription.
type WindowConfig struct {
	Type WindowType    `json:"type"`
	Size time.Duration `json:"size,omitempty"`
	// Slide applies to sliding windows only.
	Slide time.Duration `json:"slide,omitempty"`
	// Gap applies to session windows only.
	Gap time.Duration `json:"gap,omitempty"`
}

// Validate checks window configuration consistency.
func (w WindowConfig) Validate() error {
	switch w.Type {
	case WindowTumbling:
		if w.Size <= 0 {
			return fmt.Errorf("window config: tumbling window requires size > 0")
		}
	case WindowSliding:
		if w.Size <= 0 || w.Slide <= 0 {
			return fmt.Errorf("window config: sliding window requires size and slide > 0")
		}
	case WindowSession:
		if w.Gap <= 0 {
			return fmt.Errorf("window config: session window requires gap > 0")
		}
	default:
		return fmt.Errorf("window config: unknown type %q", w.Type)
	}
	return nil
}
