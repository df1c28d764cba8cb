package pipeline

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/c360/dataforge/source"
	"github.com/c360/dataforge/types"
)

// Ingestor pulls one tick's worth of records from a pipeline's sources.
// Implementations must honor context cancellation. The engine ships a
// simulated ingestor; deployments with real feeds plug in their own without
// any manager change.
type Ingestor interface {
	Ingest(ctx context.Context, pipelineID string, sources []source.DataSource, count int) []types.Record
}

// IngestorFunc adapts a function to the Ingestor interface.
type IngestorFunc func(ctx context.Context, pipelineID string, sources []source.DataSource, count int) []types.Record

// Ingest implements Ingestor.
func (f IngestorFunc) Ingest(ctx context.Context, pipelineID string, sources []source.DataSource, count int) []types.Record {
	return f(ctx, pipelineID, sources, count)
}

// SimulatedIngestor synthesizes count records per source per tick. Sources in
// error status are skipped; a degraded or active source still yields records.
type SimulatedIngestor struct {
	mu  sync.Mutex
	rng *rand.Rand
	seq int64
}

// NewSimulatedIngestor returns the default ingestor.
func NewSimulatedIngestor() *SimulatedIngestor {
	return &SimulatedIngestor{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// NewSeededIngestor returns a deterministic ingestor for tests.
func NewSeededIngestor(seed int64) *SimulatedIngestor {
	return &SimulatedIngestor{rng: rand.New(rand.NewSource(seed))}
}

// Ingest implements Ingestor.
func (g *SimulatedIngestor) Ingest(ctx context.Context, _ string, sources []source.DataSource, count int) []types.Record {
	if ctx.Err() != nil || count <= 0 {
		return nil
	}

	out := make([]types.Record, 0, count*len(sources))
	now := time.Now()

	g.mu.Lock()
	defer g.mu.Unlock()

	for _, src := range sources {
		if src.Status == types.SourceError {
			continue
		}
		for i := 0; i < count; i++ {
			g.seq++
			out = append(out, types.Record{
				ID:        uuid.NewString(),
				SourceID:  src.ID,
				Timestamp: now,
				Payload: map[string]any{
					"provider": src.Provider,
					"sequence": g.seq,
					"value":    g.rng.Float64() * 1000,
				},
			})
		}
	}
	return out
}
