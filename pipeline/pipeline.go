// Package pipeline implements the pipeline manager: lifecycle state machine,
// tick loops for streaming and batch execution, per-pipeline rolling metrics
// and sink delivery. Pipelines pull records from registered sources, run them
// through an ordered stage chain via the batch processor, and deliver the
// survivors to every attached sink.
package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/c360/dataforge/batch"
	"github.com/c360/dataforge/types"
)

// latencyAlpha is the EMA smoothing factor for tick latency.
const latencyAlpha = 0.1

// Stage is one named transformation in a pipeline's processing chain. Stages
// run in order; a stage returning (nil, nil) drops the record from the rest
// of the chain.
type Stage struct {
	Name  string
	Apply batch.Processor
}

// Config describes a pipeline to create. Sources reference ids already
// registered with the source registry.
type Config struct {
	Name        string                 `json:"name"`
	Mode        types.PipelineMode     `json:"mode"`
	Sources     []string               `json:"sources"`
	Sinks       []types.DataSinkConfig `json:"sinks,omitempty"`
	Stages      []Stage                `json:"-"`
	BatchSize   int                    `json:"batch_size,omitempty"`
	Parallelism int                    `json:"parallelism,omitempty"`
	RetryPolicy types.RetryPolicy      `json:"retry_policy"`
	OnError     types.ErrorPolicy      `json:"on_error,omitempty"`
	// CheckpointInterval overrides the batch tick period for this pipeline.
	// Zero keeps the manager default.
	CheckpointInterval time.Duration `json:"checkpoint_interval,omitempty"`
}

// Metrics is a point-in-time snapshot of a pipeline's rolling metrics.
// RecordsProcessed counts every record that entered processing, so ErrorRate
// (RecordsFailed / RecordsProcessed) always lands in [0, 1].
type Metrics struct {
	RecordsProcessed int64     `json:"records_processed"`
	RecordsFailed    int64     `json:"records_failed"`
	BytesProcessed   int64     `json:"bytes_processed"`
	AvgLatencyMs     float64   `json:"avg_latency_ms"`
	ThroughputPerSec float64   `json:"throughput_per_sec"`
	ErrorRate        float64   `json:"error_rate"`
	LastProcessedAt  time.Time `json:"last_processed_at"`
	CheckpointID     string    `json:"checkpoint_id,omitempty"`
}

// SinkView is the caller-visible snapshot of an attached sink.
type SinkView struct {
	ID     string         `json:"id"`
	Type   types.SinkType `json:"type"`
	Status SinkStatus     `json:"status"`
}

// View is the caller-visible snapshot of a pipeline. Mutable pipeline state
// never leaves the manager; callers always receive copies.
type View struct {
	ID        string               `json:"id"`
	Name      string               `json:"name"`
	Mode      types.PipelineMode   `json:"mode"`
	Status    types.PipelineStatus `json:"status"`
	Sources   []string             `json:"sources"`
	Stages    []string             `json:"stages,omitempty"`
	Sinks     []SinkView           `json:"sinks,omitempty"`
	CreatedAt time.Time            `json:"created_at"`
	UpdatedAt time.Time            `json:"updated_at"`
	Metrics   Metrics              `json:"metrics"`
}

// Pipeline is the manager-owned runtime entity. All mutable state is guarded
// by mu; the tick loops read it through snapshots.
type Pipeline struct {
	id   string
	name string
	mode types.PipelineMode

	mu        sync.RWMutex
	status    types.PipelineStatus
	sourceIDs []string
	stages    []Stage
	sinks     []*Sink
	createdAt time.Time
	updatedAt time.Time

	batchSize          int
	parallelism        int
	retryPolicy        types.RetryPolicy
	onError            types.ErrorPolicy
	checkpointInterval time.Duration

	recordsProcessed int64
	recordsFailed    int64
	bytesProcessed   int64
	avgLatencyMs     float64
	throughputPerSec float64
	errorRate        float64
	lastProcessedAt  time.Time
	checkpointID     string

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// ID returns the pipeline id.
func (p *Pipeline) ID() string { return p.id }

// Status returns the current lifecycle state.
func (p *Pipeline) Status() types.PipelineStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status
}

// Metrics returns a snapshot of the pipeline's rolling metrics.
func (p *Pipeline) Metrics() Metrics {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.metricsLocked()
}

func (p *Pipeline) metricsLocked() Metrics {
	return Metrics{
		RecordsProcessed: p.recordsProcessed,
		RecordsFailed:    p.recordsFailed,
		BytesProcessed:   p.bytesProcessed,
		AvgLatencyMs:     p.avgLatencyMs,
		ThroughputPerSec: p.throughputPerSec,
		ErrorRate:        p.errorRate,
		LastProcessedAt:  p.lastProcessedAt,
		CheckpointID:     p.checkpointID,
	}
}

// view builds a caller-visible snapshot.
func (p *Pipeline) view() View {
	p.mu.RLock()
	defer p.mu.RUnlock()

	stages := make([]string, len(p.stages))
	for i, st := range p.stages {
		stages[i] = st.Name
	}
	sinks := make([]SinkView, len(p.sinks))
	for i, s := range p.sinks {
		sinks[i] = SinkView{ID: s.ID(), Type: s.Type(), Status: s.Status()}
	}

	return View{
		ID:        p.id,
		Name:      p.name,
		Mode:      p.mode,
		Status:    p.status,
		Sources:   append([]string(nil), p.sourceIDs...),
		Stages:    stages,
		Sinks:     sinks,
		CreatedAt: p.createdAt,
		UpdatedAt: p.updatedAt,
		Metrics:   p.metricsLocked(),
	}
}

// snapshotForTick returns the stage chain, source ids and sinks a tick needs,
// read once under the lock so a concurrent AddProcessor cannot interleave
// mid-tick.
func (p *Pipeline) snapshotForTick() (stages []Stage, sourceIDs []string, sinks []*Sink) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	stages = append([]Stage(nil), p.stages...)
	sourceIDs = append([]string(nil), p.sourceIDs...)
	sinks = append([]*Sink(nil), p.sinks...)
	return stages, sourceIDs, sinks
}

// composeStages folds the stage chain into a single record processor. With no
// stages the pipeline passes records through unchanged.
func composeStages(stages []Stage) batch.Processor {
	return func(ctx context.Context, rec types.Record) (*types.Record, error) {
		current := &rec
		for _, stage := range stages {
			out, err := stage.Apply(ctx, *current)
			if err != nil {
				return nil, err
			}
			if out == nil {
				// Dropped by a filter stage
				return nil, nil
			}
			current = out
		}
		return current, nil
	}
}

// applyTick folds one tick outcome into the rolling metrics. attempted is the
// number of records that entered processing; checkpoint is non-empty only for
// batch-mode ticks.
func (p *Pipeline) applyTick(attempted int, res batch.Result, checkpoint string, now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.recordsProcessed += int64(attempted)
	p.recordsFailed += int64(len(res.Failed))
	for _, rec := range res.Processed {
		p.bytesProcessed += int64(rec.ByteSize())
	}

	sample := float64(res.Duration.Microseconds()) / 1000.0
	if p.avgLatencyMs == 0 {
		p.avgLatencyMs = sample
	} else {
		p.avgLatencyMs = p.avgLatencyMs*(1-latencyAlpha) + sample*latencyAlpha
	}

	if secs := res.Duration.Seconds(); secs > 0 {
		p.throughputPerSec = float64(len(res.Processed)) / secs
	}
	if p.recordsProcessed > 0 {
		p.errorRate = float64(p.recordsFailed) / float64(p.recordsProcessed)
	}

	if attempted > 0 {
		p.lastProcessedAt = now
	}
	if checkpoint != "" {
		p.checkpointID = checkpoint
	}
}
