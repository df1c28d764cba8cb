// Package batch implements a reusable chunked-parallel apply operation over a
// bounded record set. It decouples what transformation to run from how safely
// to run it: batches execute sequentially to preserve caller backpressure,
// chunks within a batch run concurrently up to the configured parallelism,
// and every record gets capped exponential-backoff retries.
package batch

import (
	"context"
	"sync"
	"time"

	"github.com/c360/dataforge/errors"
	"github.com/c360/dataforge/pkg/retry"
	"github.com/c360/dataforge/types"
)

// Processor transforms one record. Returning (nil, nil) drops the record
// without error; returning an error triggers retry.
type Processor func(ctx context.Context, rec types.Record) (*types.Record, error)

// Options configures one Process invocation.
type Options struct {
	// BatchSize partitions the input; batch N+1 does not start until batch N
	// completes. <= 0 processes the whole input as one batch.
	BatchSize int
	// Parallelism bounds concurrent chunk execution within a batch. <= 0
	// means sequential.
	Parallelism int
	// RetryPolicy governs per-record retries.
	RetryPolicy types.RetryPolicy
	// OnError decides what happens to a record that exhausts retries:
	// ErrorSkip drops it silently (counted skipped), everything else records
	// it in Failed.
	OnError types.ErrorPolicy
}

// FailedRecord is a record that exhausted its retries, tagged with the last
// error and the retry count actually consumed.
type FailedRecord struct {
	Record  types.Record `json:"record"`
	Error   string       `json:"error"`
	Retries int          `json:"retries"`
}

// Result is the immutable outcome of one Process invocation. The
// conservation guarantee is len(input) == len(Processed) + len(Failed) +
// Skipped; no record is processed twice.
type Result struct {
	Processed []types.Record `json:"processed"`
	Failed    []FailedRecord `json:"failed"`
	// Skipped counts filter drops (processor returned nil) plus records
	// dropped by the skip error policy.
	Skipped  int           `json:"skipped"`
	Duration time.Duration `json:"duration"`
}

// chunkResult accumulates one chunk's outcome; merged under the batch lock.
type chunkResult struct {
	processed []types.Record
	failed    []FailedRecord
	skipped   int
}

// Process applies proc to every record under opts. Per-record failures are
// contained in the Result; the only returned errors are structural (nil
// processor).
func Process(ctx context.Context, records []types.Record, proc Processor, opts Options) (Result, error) {
	start := time.Now()

	if proc == nil {
		return Result{}, errors.WrapInvalidState(
			errors.ErrMissingConfig, "batch", "Process", "processor is required")
	}

	result := Result{
		Processed: make([]types.Record, 0, len(records)),
	}
	if len(records) == 0 {
		result.Duration = time.Since(start)
		return result, nil
	}

	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = len(records)
	}
	parallelism := opts.Parallelism
	if parallelism <= 0 {
		parallelism = 1
	}

	retryCfg := retry.Config{
		MaxAttempts:  opts.RetryPolicy.MaxRetries + 1,
		InitialDelay: opts.RetryPolicy.InitialDelay,
		MaxDelay:     opts.RetryPolicy.MaxDelay,
		Multiplier:   opts.RetryPolicy.Multiplier,
		// The backpressure contract is the pure cap formula
		// min(initial*mult^(n-1), max); jitter stays off.
		AddJitter: false,
	}

	for batchStart := 0; batchStart < len(records); batchStart += batchSize {
		batchEnd := batchStart + batchSize
		if batchEnd > len(records) {
			batchEnd = len(records)
		}
		br := processBatch(ctx, records[batchStart:batchEnd], proc, retryCfg, opts.OnError, parallelism)

		result.Processed = append(result.Processed, br.processed...)
		result.Failed = append(result.Failed, br.failed...)
		result.Skipped += br.skipped
	}

	result.Duration = time.Since(start)
	return result, nil
}

// processBatch splits one batch into ceil-sized chunks and runs them
// concurrently. Chunks are sequential internally, so peak concurrency is
// exactly the chunk count.
func processBatch(
	ctx context.Context,
	batch []types.Record,
	proc Processor,
	retryCfg retry.Config,
	onError types.ErrorPolicy,
	parallelism int,
) chunkResult {
	chunkSize := (len(batch) + parallelism - 1) / parallelism

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	merged := chunkResult{}

	for chunkStart := 0; chunkStart < len(batch); chunkStart += chunkSize {
		chunkEnd := chunkStart + chunkSize
		if chunkEnd > len(batch) {
			chunkEnd = len(batch)
		}
		chunk := batch[chunkStart:chunkEnd]

		wg.Add(1)
		go func() {
			defer wg.Done()
			cr := processChunk(ctx, chunk, proc, retryCfg, onError)

			mu.Lock()
			merged.processed = append(merged.processed, cr.processed...)
			merged.failed = append(merged.failed, cr.failed...)
			merged.skipped += cr.skipped
			mu.Unlock()
		}()
	}

	wg.Wait()
	return merged
}

// processChunk handles records one at a time with per-record retry.
func processChunk(
	ctx context.Context,
	chunk []types.Record,
	proc Processor,
	retryCfg retry.Config,
	onError types.ErrorPolicy,
) chunkResult {
	cr := chunkResult{}

	for _, rec := range chunk {
		var out *types.Record
		attempts, err := retry.DoWithAttempts(ctx, retryCfg, func() error {
			var procErr error
			out, procErr = proc(ctx, rec)
			return procErr
		})

		switch {
		case err == nil && out == nil:
			// Filtered by the processor
			cr.skipped++
		case err == nil:
			cr.processed = append(cr.processed, *out)
		case onError == types.ErrorSkip:
			cr.skipped++
		default:
			cr.failed = append(cr.failed, FailedRecord{
				Record:  rec,
				Error:   err.Error(),
				Retries: attempts - 1,
			})
		}
	}

	return cr
}
