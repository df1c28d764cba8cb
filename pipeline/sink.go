package pipeline

import (
	"context"
	"encoding/json"
	"os"
	"sync"

	"github.com/google/uuid"

	"github.com/c360/dataforge/errors"
	"github.com/c360/dataforge/types"
)

// SinkStatus mirrors the owning pipeline's run state.
type SinkStatus string

// Sink states
const (
	SinkActive   SinkStatus = "active"
	SinkInactive SinkStatus = "inactive"
)

// Writer is the pluggable transport behind a sink. Real transports (queues,
// databases, APIs) implement this; the engine ships in-memory and file
// writers.
type Writer interface {
	Write(ctx context.Context, records []types.Record) error
}

// Sink is a pipeline-owned delivery target. Its status follows the
// pipeline's lifecycle; its writer does the actual delivery.
type Sink struct {
	id     string
	config types.DataSinkConfig

	mu     sync.Mutex
	status SinkStatus
	writer Writer
}

// newSink builds a sink from config. File sinks write JSON lines to the
// configured endpoint path; every other type defaults to an in-memory
// writer until a real transport is plugged in.
func newSink(cfg types.DataSinkConfig) (*Sink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.WrapInvalidState(err, "Sink", "newSink", "validate config")
	}

	var writer Writer
	if cfg.Type == types.SinkFile && cfg.Endpoint != "" {
		writer = &FileWriter{Path: cfg.Endpoint}
	} else {
		writer = NewMemoryWriter(0)
	}

	return &Sink{
		id:     uuid.NewString(),
		config: cfg,
		status: SinkInactive,
		writer: writer,
	}, nil
}

// ID returns the sink id.
func (s *Sink) ID() string { return s.id }

// Type returns the sink type.
func (s *Sink) Type() types.SinkType { return s.config.Type }

// Status returns the sink's current status.
func (s *Sink) Status() SinkStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Sink) setStatus(status SinkStatus) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}

// SetWriter replaces the sink's transport.
func (s *Sink) SetWriter(w Writer) {
	s.mu.Lock()
	s.writer = w
	s.mu.Unlock()
}

// write delivers records through the sink's writer.
func (s *Sink) write(ctx context.Context, records []types.Record) error {
	s.mu.Lock()
	w := s.writer
	s.mu.Unlock()

	if err := w.Write(ctx, records); err != nil {
		return errors.WrapDelivery(err, "Sink", "write", "deliver batch")
	}
	return nil
}

// MemoryWriter retains delivered batches in memory, bounded to the most
// recent limit batches. It backs non-file sinks and test assertions.
type MemoryWriter struct {
	mu      sync.Mutex
	batches [][]types.Record
	limit   int
}

// NewMemoryWriter creates a memory writer keeping at most limit batches
// (<= 0 selects 100).
func NewMemoryWriter(limit int) *MemoryWriter {
	if limit <= 0 {
		limit = 100
	}
	return &MemoryWriter{limit: limit}
}

// Write implements Writer.
func (m *MemoryWriter) Write(_ context.Context, records []types.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	batch := make([]types.Record, len(records))
	copy(batch, records)
	m.batches = append(m.batches, batch)
	if len(m.batches) > m.limit {
		m.batches = m.batches[len(m.batches)-m.limit:]
	}
	return nil
}

// Batches returns copies of the retained batches.
func (m *MemoryWriter) Batches() [][]types.Record {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([][]types.Record, len(m.batches))
	for i, b := range m.batches {
		out[i] = append([]types.Record(nil), b...)
	}
	return out
}

// RecordCount returns the total records delivered so far.
func (m *MemoryWriter) RecordCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	total := 0
	for _, b := range m.batches {
		total += len(b)
	}
	return total
}

// FileWriter appends records to a file as JSON lines.
type FileWriter struct {
	Path string
	mu   sync.Mutex
}

// Write implements Writer.
func (f *FileWriter) Write(_ context.Context, records []types.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	file, err := os.OpenFile(f.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()

	enc := json.NewEncoder(file)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return err
		}
	}
	return nil
}
