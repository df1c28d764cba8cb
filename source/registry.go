// Package source implements the source registry: registration, health
// probing and status tracking for the heterogeneous data sources pipelines
// draw from. The registry's map is the only state shared across pipelines;
// concurrent reads are supported and writes serialized, and callers always
// receive copies.
package source

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/c360/dataforge/errors"
	"github.com/c360/dataforge/event"
	"github.com/c360/dataforge/health"
	"github.com/c360/dataforge/metric"
	"github.com/c360/dataforge/types"
)

// reliabilityAlpha smooths reliability toward the latest probe outcome.
const reliabilityAlpha = 0.1

// DataSource is the registry's runtime record for a registered source.
type DataSource struct {
	ID          string             `json:"id"`
	Type        types.SourceType   `json:"type"`
	Provider    string             `json:"provider"`
	Endpoint    string             `json:"endpoint,omitempty"`
	Status      types.SourceStatus `json:"status"`
	LatencyMs   float64            `json:"latency_ms"`
	Reliability float64            `json:"reliability"` // 0-100
	LastUpdate  time.Time          `json:"last_update"`
}

// HealthCheckResult reports one health probe. Health checks are a reporting
// operation: they never fail, an unknown source yields healthy=false.
type HealthCheckResult struct {
	SourceID     string    `json:"source_id"`
	Healthy      bool      `json:"healthy"`
	LatencyMs    float64   `json:"latency_ms"`
	ErrorMessage string    `json:"error_message,omitempty"`
	LastCheck    time.Time `json:"last_check"`
}

// Registry owns all registered sources and their health state.
type Registry struct {
	mu      sync.RWMutex
	sources map[string]*DataSource

	prober  Prober
	bus     *event.Bus
	logger  *slog.Logger
	monitor *health.Monitor
	core    *metric.Core
}

// Option configures a Registry.
type Option func(*Registry)

// WithProber replaces the default simulated prober.
func WithProber(p Prober) Option {
	return func(r *Registry) { r.prober = p }
}

// WithMetrics wires source health gauges to the core metrics.
func WithMetrics(core *metric.Core) Option {
	return func(r *Registry) { r.core = core }
}

// WithHealthMonitor publishes per-source statuses to a shared monitor.
func WithHealthMonitor(m *health.Monitor) Option {
	return func(r *Registry) { r.monitor = m }
}

// NewRegistry creates a source registry.
func NewRegistry(bus *event.Bus, logger *slog.Logger, opts ...Option) *Registry {
	r := &Registry{
		sources: make(map[string]*DataSource),
		prober:  NewSimulatedProber(),
		bus:     bus,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register creates a source from config, probes it once, and returns the
// resulting source. Status is active or error after registration, never
// inactive. Registering an id twice is an invalid-state error.
func (r *Registry) Register(ctx context.Context, cfg types.DataSourceConfig) (DataSource, error) {
	if err := cfg.Validate(); err != nil {
		return DataSource{}, errors.WrapInvalidState(err, "Registry", "Register", "validate config")
	}

	r.mu.Lock()
	if _, exists := r.sources[cfg.ID]; exists {
		r.mu.Unlock()
		return DataSource{}, errors.WrapInvalidState(
			fmt.Errorf("source %s already registered", cfg.ID),
			"Registry", "Register", "check identity")
	}

	src := &DataSource{
		ID:          cfg.ID,
		Type:        cfg.Type,
		Provider:    cfg.Provider,
		Endpoint:    cfg.Endpoint,
		Status:      types.SourceInactive,
		Reliability: 100,
		LastUpdate:  time.Now(),
	}
	r.sources[cfg.ID] = src
	r.mu.Unlock()

	// Initial probe promotes the source out of inactive before returning.
	result := r.CheckHealth(ctx, cfg.ID)

	r.logger.Info("source registered",
		"source_id", cfg.ID,
		"type", string(cfg.Type),
		"provider", cfg.Provider,
		"healthy", result.Healthy)

	r.bus.Publish(event.Event{
		Type:     event.SourceRegistered,
		SourceID: cfg.ID,
		Payload: map[string]any{
			"type":     string(cfg.Type),
			"provider": cfg.Provider,
			"healthy":  result.Healthy,
		},
	})

	return r.snapshot(cfg.ID)
}

// Remove deletes a source. Idempotent; reports whether a source existed.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	_, existed := r.sources[id]
	delete(r.sources, id)
	r.mu.Unlock()

	if existed {
		if r.monitor != nil {
			r.monitor.Remove(id)
		}
		r.logger.Info("source removed", "source_id", id)
		r.bus.Publish(event.Event{Type: event.SourceRemoved, SourceID: id})
	}
	return existed
}

// Get returns a copy of the source or a not-found error.
func (r *Registry) Get(id string) (DataSource, error) {
	return r.snapshot(id)
}

// List returns copies of all sources, optionally filtered by type.
// An empty filter returns everything.
func (r *Registry) List(filter types.SourceType) []DataSource {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]DataSource, 0, len(r.sources))
	for _, src := range r.sources {
		if filter != "" && src.Type != filter {
			continue
		}
		out = append(out, *src)
	}
	return out
}

// UpdateStatus sets a source's status explicitly and stamps LastUpdate.
func (r *Registry) UpdateStatus(id string, status types.SourceStatus) error {
	if !status.Valid() {
		return errors.WrapInvalidState(
			fmt.Errorf("unknown status %q", status),
			"Registry", "UpdateStatus", "validate status")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	src, ok := r.sources[id]
	if !ok {
		return errors.WrapNotFound(errors.ErrSourceNotFound, "Registry", "UpdateStatus", "lookup "+id)
	}
	src.Status = status
	src.LastUpdate = time.Now()
	return nil
}

// CheckHealth probes a source and returns the result. Never returns an
// error: an unknown source reports healthy=false with a message. Probe
// outcomes update the source's status, latency and reliability.
func (r *Registry) CheckHealth(ctx context.Context, id string) HealthCheckResult {
	now := time.Now()

	r.mu.RLock()
	src, ok := r.sources[id]
	var probeTarget DataSource
	if ok {
		probeTarget = *src
	}
	r.mu.RUnlock()

	if !ok {
		return HealthCheckResult{
			SourceID:     id,
			Healthy:      false,
			ErrorMessage: "Source not found",
			LastCheck:    now,
		}
	}

	probe := r.prober.Probe(ctx, probeTarget)
	latencyMs := float64(probe.Latency.Microseconds()) / 1000.0

	result := HealthCheckResult{
		SourceID:  id,
		Healthy:   probe.Err == nil,
		LatencyMs: latencyMs,
		LastCheck: now,
	}
	if probe.Err != nil {
		result.ErrorMessage = probe.Err.Error()
	}

	r.applyProbe(id, result)
	return result
}

// applyProbe folds a probe outcome into the source's mutable state.
func (r *Registry) applyProbe(id string, result HealthCheckResult) {
	r.mu.Lock()
	src, ok := r.sources[id]
	if !ok {
		// Removed between probe and apply; nothing to update.
		r.mu.Unlock()
		return
	}

	src.LatencyMs = result.LatencyMs
	src.LastUpdate = result.LastCheck

	target := 0.0
	if result.Healthy {
		target = 100.0
		src.Status = types.SourceActive
	} else {
		src.Status = types.SourceError
	}
	src.Reliability = src.Reliability*(1-reliabilityAlpha) + target*reliabilityAlpha
	r.mu.Unlock()

	if r.core != nil {
		r.core.RecordSourceHealth(id, result.Healthy)
	}
	if r.monitor != nil {
		if result.Healthy {
			r.monitor.Update(id, health.NewHealthy(id, "probe ok"))
		} else {
			r.monitor.Update(id, health.NewUnhealthy(id, result.ErrorMessage))
		}
	}
}

// Count returns the number of registered sources.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sources)
}

func (r *Registry) snapshot(id string) (DataSource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	src, ok := r.sources[id]
	if !ok {
		return DataSource{}, errors.WrapNotFound(errors.ErrSourceNotFound, "Registry", "Get", "lookup "+id)
	}
	return *src, nil
}
