package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/c360/dataforge/batch"
	"github.com/c360/dataforge/errors"
	"github.com/c360/dataforge/event"
	"github.com/c360/dataforge/metric"
	"github.com/c360/dataforge/pkg/clock"
	"github.com/c360/dataforge/source"
	"github.com/c360/dataforge/types"
)

// Tick cadences. Batch ticks additionally run once eagerly on start so a
// freshly started batch pipeline does not sit idle for a full interval.
const (
	DefaultStreamInterval = time.Second
	DefaultBatchInterval  = time.Minute
)

// Default records-per-source-per-tick when the pipeline config leaves
// BatchSize unset.
const (
	defaultStreamTickSize = 10
	defaultBatchTickSize  = 100
)

// Prometheus gauge values for pipeline status.
const (
	gaugeStopped = 0
	gaugeRunning = 1
	gaugePaused  = 2
	gaugeError   = 3
)

// Manager owns all pipelines and drives their tick loops. The pipelines map
// is the only shared state; each pipeline guards its own fields.
type Manager struct {
	mu        sync.RWMutex
	pipelines map[string]*Pipeline

	registry *source.Registry
	bus      *event.Bus
	logger   *slog.Logger
	clk      clock.Clock
	core     *metric.Core
	ingestor Ingestor

	streamInterval time.Duration
	batchInterval  time.Duration
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces the system clock, used by tests to drive tick loops.
func WithClock(c clock.Clock) Option {
	return func(m *Manager) { m.clk = c }
}

// WithMetrics wires pipeline gauges and tick counters to the core metrics.
func WithMetrics(core *metric.Core) Option {
	return func(m *Manager) { m.core = core }
}

// WithIngestor replaces the default simulated ingestor.
func WithIngestor(g Ingestor) Option {
	return func(m *Manager) { m.ingestor = g }
}

// WithIntervals overrides the tick cadences. Non-positive values keep the
// defaults.
func WithIntervals(stream, batchInterval time.Duration) Option {
	return func(m *Manager) {
		if stream > 0 {
			m.streamInterval = stream
		}
		if batchInterval > 0 {
			m.batchInterval = batchInterval
		}
	}
}

// NewManager creates a pipeline manager bound to a source registry.
func NewManager(registry *source.Registry, bus *event.Bus, logger *slog.Logger, opts ...Option) *Manager {
	m := &Manager{
		pipelines:      make(map[string]*Pipeline),
		registry:       registry,
		bus:            bus,
		logger:         logger,
		clk:            clock.New(),
		ingestor:       NewSimulatedIngestor(),
		streamInterval: DefaultStreamInterval,
		batchInterval:  DefaultBatchInterval,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CreatePipeline validates the config and creates a pipeline in the stopped
// state. Every referenced source must already be registered.
func (m *Manager) CreatePipeline(_ context.Context, cfg Config) (View, error) {
	if cfg.Name == "" {
		return View{}, errors.WrapInvalidState(
			errors.ErrMissingConfig, "Manager", "CreatePipeline", "name is required")
	}
	if !cfg.Mode.Valid() {
		return View{}, errors.WrapInvalidState(
			fmt.Errorf("unknown mode %q", cfg.Mode),
			"Manager", "CreatePipeline", "validate mode")
	}
	if len(cfg.Sources) == 0 {
		return View{}, errors.WrapInvalidState(
			errors.ErrMissingConfig, "Manager", "CreatePipeline", "at least one source is required")
	}
	for _, id := range cfg.Sources {
		if _, err := m.registry.Get(id); err != nil {
			return View{}, errors.WrapNotFound(err, "Manager", "CreatePipeline", "resolve source "+id)
		}
	}
	for _, st := range cfg.Stages {
		if st.Name == "" || st.Apply == nil {
			return View{}, errors.WrapInvalidState(
				fmt.Errorf("stage needs a name and a processor"),
				"Manager", "CreatePipeline", "validate stages")
		}
	}

	sinks := make([]*Sink, 0, len(cfg.Sinks))
	for _, sc := range cfg.Sinks {
		s, err := newSink(sc)
		if err != nil {
			return View{}, err
		}
		sinks = append(sinks, s)
	}

	retryPolicy := cfg.RetryPolicy
	if retryPolicy == (types.RetryPolicy{}) {
		retryPolicy = types.DefaultRetryPolicy()
	}

	now := m.clk.Now()
	p := &Pipeline{
		id:                 uuid.NewString(),
		name:               cfg.Name,
		mode:               cfg.Mode,
		status:             types.PipelineStopped,
		sourceIDs:          append([]string(nil), cfg.Sources...),
		stages:             append([]Stage(nil), cfg.Stages...),
		sinks:              sinks,
		createdAt:          now,
		updatedAt:          now,
		batchSize:          cfg.BatchSize,
		parallelism:        cfg.Parallelism,
		retryPolicy:        retryPolicy,
		onError:            cfg.OnError,
		checkpointInterval: cfg.CheckpointInterval,
	}

	m.mu.Lock()
	m.pipelines[p.id] = p
	m.mu.Unlock()

	if m.core != nil {
		m.core.RecordPipelineStatus(p.id, gaugeStopped)
	}
	m.logger.Info("pipeline created",
		"pipeline_id", p.id,
		"name", cfg.Name,
		"mode", string(cfg.Mode),
		"sources", len(cfg.Sources),
		"sinks", len(sinks))
	m.bus.Publish(event.Event{
		Type:       event.PipelineCreated,
		PipelineID: p.id,
		Payload:    map[string]any{"name": cfg.Name, "mode": string(cfg.Mode)},
	})

	return p.view(), nil
}

// StartPipeline transitions a pipeline to running and launches its tick
// loops: a streaming loop for streaming/hybrid modes, a batch loop (with one
// eager tick) for batch/hybrid modes. Starting a running pipeline is a no-op.
func (m *Manager) StartPipeline(_ context.Context, id string) error {
	p, err := m.get(id, "StartPipeline")
	if err != nil {
		return err
	}

	p.mu.Lock()
	if p.status == types.PipelineRunning {
		p.mu.Unlock()
		return nil
	}
	p.status = types.PipelineRunning
	p.updatedAt = m.clk.Now()
	for _, s := range p.sinks {
		s.setStatus(SinkActive)
	}
	m.startLoopsLocked(p)
	p.mu.Unlock()

	if m.core != nil {
		m.core.RecordPipelineStatus(p.id, gaugeRunning)
	}
	m.logger.Info("pipeline started", "pipeline_id", id, "mode", string(p.mode))
	m.bus.Publish(event.Event{Type: event.PipelineStarted, PipelineID: id})
	return nil
}

// StopPipeline transitions a pipeline to stopped, cancels its tick loops and
// marks its sinks inactive. Rolling metrics are retained. Stopping a stopped
// pipeline is a no-op.
func (m *Manager) StopPipeline(_ context.Context, id string) error {
	p, err := m.get(id, "StopPipeline")
	if err != nil {
		return err
	}

	p.mu.Lock()
	if p.status == types.PipelineStopped {
		p.mu.Unlock()
		return nil
	}
	p.status = types.PipelineStopped
	p.updatedAt = m.clk.Now()
	cancel := p.cancel
	p.cancel = nil
	for _, s := range p.sinks {
		s.setStatus(SinkInactive)
	}
	p.mu.Unlock()

	if cancel != nil {
		cancel()
		p.wg.Wait()
	}

	if m.core != nil {
		m.core.RecordPipelineStatus(p.id, gaugeStopped)
	}
	m.logger.Info("pipeline stopped", "pipeline_id", id)
	m.bus.Publish(event.Event{Type: event.PipelineStopped, PipelineID: id})
	return nil
}

// PausePipeline suspends a running pipeline's tick loops. Metrics and sink
// attachments are retained. Pausing a paused pipeline is a no-op; pausing a
// stopped one is an invalid transition.
func (m *Manager) PausePipeline(_ context.Context, id string) error {
	p, err := m.get(id, "PausePipeline")
	if err != nil {
		return err
	}

	p.mu.Lock()
	switch p.status {
	case types.PipelinePaused:
		p.mu.Unlock()
		return nil
	case types.PipelineRunning:
	default:
		st := p.status
		p.mu.Unlock()
		return errors.WrapInvalidState(
			fmt.Errorf("%w: cannot pause from %s", errors.ErrInvalidTransition, st),
			"Manager", "PausePipeline", "pipeline "+id)
	}
	p.status = types.PipelinePaused
	p.updatedAt = m.clk.Now()
	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
		p.wg.Wait()
	}

	if m.core != nil {
		m.core.RecordPipelineStatus(p.id, gaugePaused)
	}
	m.logger.Info("pipeline paused", "pipeline_id", id)
	m.bus.Publish(event.Event{Type: event.PipelinePaused, PipelineID: id})
	return nil
}

// ResumePipeline restarts a paused pipeline's tick loops. Resuming is only
// legal from paused.
func (m *Manager) ResumePipeline(_ context.Context, id string) error {
	p, err := m.get(id, "ResumePipeline")
	if err != nil {
		return err
	}

	p.mu.Lock()
	if p.status != types.PipelinePaused {
		st := p.status
		p.mu.Unlock()
		return errors.WrapInvalidState(
			fmt.Errorf("%w: cannot resume from %s", errors.ErrInvalidTransition, st),
			"Manager", "ResumePipeline", "pipeline "+id)
	}
	p.status = types.PipelineRunning
	p.updatedAt = m.clk.Now()
	m.startLoopsLocked(p)
	p.mu.Unlock()

	if m.core != nil {
		m.core.RecordPipelineStatus(p.id, gaugeRunning)
	}
	m.logger.Info("pipeline resumed", "pipeline_id", id)
	m.bus.Publish(event.Event{Type: event.PipelineResumed, PipelineID: id})
	return nil
}

// DeletePipeline stops a pipeline if needed and removes it.
func (m *Manager) DeletePipeline(ctx context.Context, id string) error {
	if err := m.StopPipeline(ctx, id); err != nil {
		return err
	}

	m.mu.Lock()
	delete(m.pipelines, id)
	m.mu.Unlock()

	m.logger.Info("pipeline deleted", "pipeline_id", id)
	return nil
}

// AddProcessor appends a stage to the pipeline's chain. Allowed in any state;
// the next tick picks it up.
func (m *Manager) AddProcessor(id string, stage Stage) error {
	if stage.Name == "" || stage.Apply == nil {
		return errors.WrapInvalidState(
			fmt.Errorf("stage needs a name and a processor"),
			"Manager", "AddProcessor", "validate stage")
	}

	p, err := m.get(id, "AddProcessor")
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.stages = append(p.stages, stage)
	p.updatedAt = m.clk.Now()
	p.mu.Unlock()

	m.logger.Info("processor added", "pipeline_id", id, "stage", stage.Name)
	return nil
}

// RemoveProcessor removes a stage by name.
func (m *Manager) RemoveProcessor(id, stageName string) error {
	p, err := m.get(id, "RemoveProcessor")
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for i, st := range p.stages {
		if st.Name == stageName {
			p.stages = append(p.stages[:i], p.stages[i+1:]...)
			p.updatedAt = m.clk.Now()
			return nil
		}
	}
	return errors.WrapNotFound(errors.ErrProcessorNotFound,
		"Manager", "RemoveProcessor", "lookup stage "+stageName)
}

// AddSink attaches a sink built from config. A sink added to a running
// pipeline becomes active immediately.
func (m *Manager) AddSink(id string, cfg types.DataSinkConfig) (SinkView, error) {
	p, err := m.get(id, "AddSink")
	if err != nil {
		return SinkView{}, err
	}

	s, err := newSink(cfg)
	if err != nil {
		return SinkView{}, err
	}

	p.mu.Lock()
	if p.status == types.PipelineRunning {
		s.setStatus(SinkActive)
	}
	p.sinks = append(p.sinks, s)
	p.updatedAt = m.clk.Now()
	p.mu.Unlock()

	m.logger.Info("sink added", "pipeline_id", id, "sink_id", s.ID(), "type", string(cfg.Type))
	return SinkView{ID: s.ID(), Type: s.Type(), Status: s.Status()}, nil
}

// RemoveSink detaches a sink by id.
func (m *Manager) RemoveSink(id, sinkID string) error {
	p, err := m.get(id, "RemoveSink")
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for i, s := range p.sinks {
		if s.ID() == sinkID {
			s.setStatus(SinkInactive)
			p.sinks = append(p.sinks[:i], p.sinks[i+1:]...)
			p.updatedAt = m.clk.Now()
			return nil
		}
	}
	return errors.WrapNotFound(errors.ErrSinkNotFound,
		"Manager", "RemoveSink", "lookup sink "+sinkID)
}

// GetPipeline returns a snapshot of a pipeline.
func (m *Manager) GetPipeline(id string) (View, error) {
	p, err := m.get(id, "GetPipeline")
	if err != nil {
		return View{}, err
	}
	return p.view(), nil
}

// ListPipelines returns snapshots of all pipelines.
func (m *Manager) ListPipelines() []View {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]View, 0, len(m.pipelines))
	for _, p := range m.pipelines {
		out = append(out, p.view())
	}
	return out
}

// Metrics returns a snapshot of a pipeline's rolling metrics.
func (m *Manager) Metrics(id string) (Metrics, error) {
	p, err := m.get(id, "Metrics")
	if err != nil {
		return Metrics{}, err
	}
	return p.Metrics(), nil
}

// Count returns the number of pipelines.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.pipelines)
}

// Close stops every pipeline.
func (m *Manager) Close(ctx context.Context) {
	m.mu.RLock()
	ids := make([]string, 0, len(m.pipelines))
	for id := range m.pipelines {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	for _, id := range ids {
		_ = m.StopPipeline(ctx, id)
	}
}

func (m *Manager) get(id, op string) (*Pipeline, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.pipelines[id]
	if !ok {
		return nil, errors.WrapNotFound(errors.ErrPipelineNotFound, "Manager", op, "lookup "+id)
	}
	return p, nil
}

// startLoopsLocked launches the tick loops matching the pipeline's mode
// under a fresh cancellable context. Callers hold p.mu, so the running
// transition and the loop launch form one atomic step: a concurrent stop
// or pause always finds the cancel it must fire and a waitgroup that
// already covers every spawned loop.
func (m *Manager) startLoopsLocked(p *Pipeline) {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	if p.mode == types.ModeStreaming || p.mode == types.ModeHybrid {
		ticker := m.clk.NewTicker(m.streamInterval)
		p.wg.Add(1)
		go m.streamLoop(ctx, p, ticker)
	}
	if p.mode == types.ModeBatch || p.mode == types.ModeHybrid {
		interval := m.batchInterval
		if p.checkpointInterval > 0 {
			interval = p.checkpointInterval
		}
		ticker := m.clk.NewTicker(interval)
		p.wg.Add(1)
		go m.batchLoop(ctx, p, ticker)
	}
}

// streamLoop runs micro-batch ticks on the stream cadence. The ticker is
// created by the caller before this goroutine starts so the timer exists as
// soon as the start transition completes.
func (m *Manager) streamLoop(ctx context.Context, p *Pipeline, ticker clock.Ticker) {
	defer p.wg.Done()

	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			m.executeTick(ctx, p, types.ModeStreaming)
		}
	}
}

// batchLoop runs one eager tick, then ticks on the batch cadence. The ticker
// (on the manager cadence or the pipeline's checkpoint-interval override) is
// created by the caller before this goroutine starts so the timer exists as
// soon as the start transition completes.
func (m *Manager) batchLoop(ctx context.Context, p *Pipeline, ticker clock.Ticker) {
	defer p.wg.Done()
	defer ticker.Stop()

	m.executeTick(ctx, p, types.ModeBatch)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			m.executeTick(ctx, p, types.ModeBatch)
		}
	}
}

// executeTick runs one ingest-process-deliver cycle. A tick arriving after
// the pipeline left the running state is skipped. Batch-mode ticks mint a new
// checkpoint id. Sink failures are contained: logged, never aborting the
// tick.
func (m *Manager) executeTick(ctx context.Context, p *Pipeline, mode types.PipelineMode) {
	if p.Status() != types.PipelineRunning {
		return
	}

	stages, sourceIDs, sinks := p.snapshotForTick()

	sources := make([]source.DataSource, 0, len(sourceIDs))
	for _, sid := range sourceIDs {
		src, err := m.registry.Get(sid)
		if err != nil {
			// Removed from the registry after pipeline creation
			m.logger.Warn("tick skipping unknown source", "pipeline_id", p.id, "source_id", sid)
			continue
		}
		sources = append(sources, src)
	}

	records := m.ingestor.Ingest(ctx, p.id, sources, m.tickSize(p, mode))
	if len(records) > 0 {
		m.bus.Publish(event.Event{
			Type:       event.DataIngested,
			PipelineID: p.id,
			Payload:    map[string]any{"records_ingested": len(records), "mode": string(mode)},
		})
	}

	result, err := batch.Process(ctx, records, composeStages(stages), batch.Options{
		BatchSize:   p.batchSize,
		Parallelism: p.parallelism,
		RetryPolicy: p.retryPolicy,
		OnError:     p.onError,
	})
	if err != nil {
		m.logger.Error("tick processing failed", "pipeline_id", p.id, "error", err)
		return
	}

	for _, s := range sinks {
		if err := s.write(ctx, result.Processed); err != nil {
			m.logger.Warn("sink delivery failed",
				"pipeline_id", p.id,
				"sink_id", s.ID(),
				"error", err)
		}
	}

	var checkpoint string
	if mode == types.ModeBatch {
		checkpoint = uuid.NewString()
	}
	p.applyTick(len(records), result, checkpoint, m.clk.Now())

	if m.core != nil {
		bytes := 0
		for _, rec := range result.Processed {
			bytes += rec.ByteSize()
		}
		m.core.RecordTick(p.id, string(mode),
			len(result.Processed), len(result.Failed), bytes, result.Duration)
	}

	payload := map[string]any{
		"records_processed": len(result.Processed),
		"records_failed":    len(result.Failed),
		"records_skipped":   result.Skipped,
		"latency_ms":        float64(result.Duration.Microseconds()) / 1000.0,
		"mode":              string(mode),
	}
	if checkpoint != "" {
		payload["checkpoint_id"] = checkpoint
	}
	m.bus.Publish(event.Event{Type: event.DataProcessed, PipelineID: p.id, Payload: payload})

	m.logger.Debug("tick complete",
		"pipeline_id", p.id,
		"mode", string(mode),
		"processed", len(result.Processed),
		"failed", len(result.Failed),
		"skipped", result.Skipped,
		"duration", result.Duration)
}

// tickSize decides how many records per source to pull for one tick.
func (m *Manager) tickSize(p *Pipeline, mode types.PipelineMode) int {
	if p.batchSize > 0 {
		return p.batchSize
	}
	if mode == types.ModeBatch {
		return defaultBatchTickSize
	}
	return defaultStreamTickSize
}
