// Package dataforge is a data pipeline orchestration core. It registers
// heterogeneous data sources, runs streaming and batch pipelines over them,
// and delivers processed records to attached sinks.
//
// # Architecture
//
//	┌─────────────────────────────────────┐
//	│        Pipeline Manager             │  Lifecycle state machine,
//	│  (create, start, stop, pause, tick) │  rolling metrics
//	└─────────────────────────────────────┘
//	           ↓ pulls from                ↓ delivers to
//	┌──────────────────┐        ┌──────────────────┐
//	│  Source Registry │        │      Sinks       │
//	│ (health, status) │        │ (memory, file)   │
//	└──────────────────┘        └──────────────────┘
//	           ↓ records flow through
//	┌─────────────────────────────────────┐
//	│   Batch / Stream Processors         │  Chunked parallelism, retry,
//	│  (chunks, buffers, backpressure)    │  buffered FIFO delivery
//	└─────────────────────────────────────┘
//
// The batch processor applies a transformation over a bounded record set with
// chunked parallelism and per-record capped exponential-backoff retry. The
// stream processor owns per-subscription FIFO buffers flushed on a timer,
// with explicit backpressure policies for bursty producers.
//
// Cross-cutting concerns live in their own packages: errors (classified
// error taxonomy), event (in-process lifecycle bus), health (component
// status aggregation), metric (Prometheus registry) and pkg/clock
// (injectable time source).
package dataforge
