package stream

import (
	"sync"

	"github.com/c360/dataforge/types"
)

// recordBuffer is the mutex-guarded FIFO backing one subscription. It has a
// nominal capacity but never refuses an append; capacity enforcement is the
// backpressure policy's job in PushRecord, which is why this differs from a
// circular buffer: flush needs an atomic swap-drain and the buffer policy
// needs growth past the cap.
type recordBuffer struct {
	mu       sync.Mutex
	items    []types.Record
	capacity int
	closed   bool
}

func newRecordBuffer(capacity int) *recordBuffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &recordBuffer{
		items:    make([]types.Record, 0, capacity),
		capacity: capacity,
	}
}

// Len returns the current number of buffered records.
func (b *recordBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// Full reports whether the buffer is at or past its nominal capacity.
func (b *recordBuffer) Full() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items) >= b.capacity
}

// Append adds a record in arrival order and returns the new length. A
// closed buffer refuses the record so nothing can slip in behind the final
// unsubscribe drain.
func (b *recordBuffer) Append(rec types.Record) (int, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return len(b.items), false
	}
	b.items = append(b.items, rec)
	return len(b.items), true
}

// Close marks the buffer closed. Records already buffered stay drainable
// via Swap; further appends are refused.
func (b *recordBuffer) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
}

// Swap atomically replaces the buffer with an empty one and returns the
// drained records in arrival order.
func (b *recordBuffer) Swap() []types.Record {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.items) == 0 {
		return nil
	}
	drained := b.items
	b.items = make([]types.Record, 0, b.capacity)
	return drained
}

// Capacity returns the nominal capacity.
func (b *recordBuffer) Capacity() int {
	return b.capacity
}
