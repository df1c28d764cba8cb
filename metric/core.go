package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Core contains the engine-level metrics shared by all components.
// Per-pipeline and per-subscription rolling metrics live with their owners;
// these are the aggregate counters exposed for scraping.
type Core struct {
	PipelineStatus     *prometheus.GaugeVec
	RecordsProcessed   *prometheus.CounterVec
	RecordsFailed      *prometheus.CounterVec
	BytesProcessed     *prometheus.CounterVec
	TickDuration       *prometheus.HistogramVec
	SourceHealth       *prometheus.GaugeVec
	StreamBufferSize   *prometheus.GaugeVec
	StreamBackpressure *prometheus.CounterVec
	EventsDropped      prometheus.Counter
}

// NewCore creates the core engine metrics
func NewCore() *Core {
	return &Core{
		PipelineStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "dataforge",
				Subsystem: "pipeline",
				Name:      "status",
				Help:      "Pipeline status (0=stopped, 1=running, 2=paused, 3=error)",
			},
			[]string{"pipeline"},
		),

		RecordsProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "dataforge",
				Subsystem: "records",
				Name:      "processed_total",
				Help:      "Total number of records processed",
			},
			[]string{"pipeline", "mode"},
		),

		RecordsFailed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "dataforge",
				Subsystem: "records",
				Name:      "failed_total",
				Help:      "Total number of records that failed processing",
			},
			[]string{"pipeline", "mode"},
		),

		BytesProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "dataforge",
				Subsystem: "records",
				Name:      "bytes_total",
				Help:      "Total bytes of processed records",
			},
			[]string{"pipeline"},
		),

		TickDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "dataforge",
				Subsystem: "pipeline",
				Name:      "tick_duration_seconds",
				Help:      "Pipeline tick execution duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"pipeline", "mode"},
		),

		SourceHealth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "dataforge",
				Subsystem: "source",
				Name:      "healthy",
				Help:      "Source health check status (0=unhealthy, 1=healthy)",
			},
			[]string{"source"},
		),

		StreamBufferSize: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "dataforge",
				Subsystem: "stream",
				Name:      "buffer_size",
				Help:      "Current stream subscription buffer size",
			},
			[]string{"subscription"},
		),

		StreamBackpressure: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "dataforge",
				Subsystem: "stream",
				Name:      "backpressure_events_total",
				Help:      "Total backpressure events per subscription",
			},
			[]string{"subscription", "policy"},
		),

		EventsDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "dataforge",
				Subsystem: "events",
				Name:      "dropped_total",
				Help:      "Lifecycle events dropped because a subscriber channel was full",
			},
		),
	}
}

// RecordPipelineStatus updates the pipeline status gauge
func (c *Core) RecordPipelineStatus(pipeline string, status int) {
	c.PipelineStatus.WithLabelValues(pipeline).Set(float64(status))
}

// RecordTick records the outcome of one pipeline tick
func (c *Core) RecordTick(pipeline, mode string, processed, failed int, bytes int, duration time.Duration) {
	c.RecordsProcessed.WithLabelValues(pipeline, mode).Add(float64(processed))
	c.RecordsFailed.WithLabelValues(pipeline, mode).Add(float64(failed))
	c.BytesProcessed.WithLabelValues(pipeline).Add(float64(bytes))
	c.TickDuration.WithLabelValues(pipeline, mode).Observe(duration.Seconds())
}

// RecordSourceHealth updates the source health gauge
func (c *Core) RecordSourceHealth(source string, healthy bool) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	c.SourceHealth.WithLabelValues(source).Set(value)
}

// RecordStreamBuffer updates the buffer size gauge for a subscription
func (c *Core) RecordStreamBuffer(subscription string, size int) {
	c.StreamBufferSize.WithLabelValues(subscription).Set(float64(size))
}

// RecordBackpressure increments the backpressure counter for a subscription
func (c *Core) RecordBackpressure(subscription, policy string) {
	c.StreamBackpressure.WithLabelValues(subscription, policy).Inc()
}

// RecordEventDropped increments the dropped-event counter
func (c *Core) RecordEventDropped() {
	c.EventsDropped.Inc()
}
