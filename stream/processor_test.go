package stream

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dferrors "github.com/c360/dataforge/errors"
	"github.com/c360/dataforge/pkg/clock"
	"github.com/c360/dataforge/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// collectingHandler records every delivered record and optionally fails on
// selected ids.
type collectingHandler struct {
	mu       sync.Mutex
	got      []types.Record
	failIDs  map[string]bool
	panicIDs map[string]bool
	errs     []error
}

func (h *collectingHandler) OnRecord(_ context.Context, rec types.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.panicIDs[rec.ID] {
		panic("handler exploded on " + rec.ID)
	}
	if h.failIDs[rec.ID] {
		return fmt.Errorf("rejected %s", rec.ID)
	}
	h.got = append(h.got, rec)
	return nil
}

func (h *collectingHandler) OnError(err error, _ types.Record) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errs = append(h.errs, err)
}

func (h *collectingHandler) ids() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.got))
	for i, rec := range h.got {
		out[i] = rec.ID
	}
	return out
}

func (h *collectingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.got)
}

func rec(id string) types.Record {
	return types.Record{ID: id, SourceID: "test", Timestamp: time.Now()}
}

func newTestProcessor(t *testing.T) (*Processor, *clock.FakeClock) {
	t.Helper()
	fc := clock.NewFake()
	p := NewProcessor(testLogger(), WithClock(fc))
	t.Cleanup(func() { p.Close(context.Background()) })
	return p, fc
}

func TestSubscribeDefaults(t *testing.T) {
	p, _ := newTestProcessor(t)

	sub, err := p.Subscribe("market", &collectingHandler{}, Options{})
	require.NoError(t, err)
	assert.NotEmpty(t, sub.ID())
	assert.Equal(t, "market", sub.Source())
	assert.Equal(t, StatusActive, sub.Status())
}

func TestSubscribeNilHandler(t *testing.T) {
	p, _ := newTestProcessor(t)

	_, err := p.Subscribe("market", nil, Options{})
	assert.Error(t, err)
}

func TestSubscribeInvalidWindow(t *testing.T) {
	p, _ := newTestProcessor(t)

	_, err := p.Subscribe("market", &collectingHandler{}, Options{
		Window: &types.WindowConfig{Type: types.WindowTumbling},
	})
	assert.Error(t, err)
}

func TestFIFODelivery(t *testing.T) {
	p, _ := newTestProcessor(t)
	h := &collectingHandler{}

	sub, err := p.Subscribe("market", h, Options{BufferSize: 10})
	require.NoError(t, err)

	for _, id := range []string{"1", "2", "3"} {
		require.NoError(t, p.PushRecord(sub.ID(), rec(id)))
	}
	require.NoError(t, p.Flush(context.Background(), sub.ID()))

	assert.Equal(t, []string{"1", "2", "3"}, h.ids())
}

func TestTimerDrivenFlush(t *testing.T) {
	p, fc := newTestProcessor(t)
	h := &collectingHandler{}

	sub, err := p.Subscribe("market", h, Options{
		BufferSize:    10,
		FlushInterval: time.Second,
	})
	require.NoError(t, err)

	require.NoError(t, p.PushRecord(sub.ID(), rec("a")))
	assert.Equal(t, 0, h.count())

	fc.Advance(time.Second)
	require.Eventually(t, func() bool { return h.count() == 1 },
		time.Second, time.Millisecond)
}

func TestBackpressureDrop(t *testing.T) {
	p, _ := newTestProcessor(t)
	h := &collectingHandler{}

	sub, err := p.Subscribe("market", h, Options{
		BufferSize:   3,
		Backpressure: types.BackpressureDrop,
	})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, p.PushRecord(sub.ID(), rec(fmt.Sprintf("r%d", i))))
	}
	require.Equal(t, 3, sub.BufferLen())

	// One past capacity: dropped, buffer stays at capacity
	require.NoError(t, p.PushRecord(sub.ID(), rec("overflow")))
	assert.Equal(t, 3, sub.BufferLen())

	m := sub.Metrics()
	assert.Equal(t, int64(4), m.RecordsReceived)
	assert.Equal(t, int64(1), m.RecordsDropped)
	assert.Equal(t, int64(0), m.BackpressureEvents)
}

func TestBackpressureBufferGrowsUnbounded(t *testing.T) {
	p, _ := newTestProcessor(t)
	h := &collectingHandler{}

	sub, err := p.Subscribe("market", h, Options{
		BufferSize:   2,
		Backpressure: types.BackpressureBuffer,
	})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, p.PushRecord(sub.ID(), rec(fmt.Sprintf("r%d", i))))
	}

	// Grows past nominal capacity, nothing dropped
	assert.Equal(t, 5, sub.BufferLen())
	m := sub.Metrics()
	assert.Equal(t, int64(0), m.RecordsDropped)
	assert.Equal(t, int64(3), m.BackpressureEvents)

	require.NoError(t, p.Flush(context.Background(), sub.ID()))
	assert.Equal(t, 5, h.count())
}

func TestBackpressureBlockForcesFlush(t *testing.T) {
	p, _ := newTestProcessor(t)
	h := &collectingHandler{}

	sub, err := p.Subscribe("market", h, Options{
		BufferSize:   2,
		Backpressure: types.BackpressureBlock,
	})
	require.NoError(t, err)

	require.NoError(t, p.PushRecord(sub.ID(), rec("1")))
	require.NoError(t, p.PushRecord(sub.ID(), rec("2")))

	// Full: this push flushes 1,2 synchronously, then appends 3
	require.NoError(t, p.PushRecord(sub.ID(), rec("3")))

	assert.Equal(t, []string{"1", "2"}, h.ids())
	assert.Equal(t, 1, sub.BufferLen())
	assert.Equal(t, int64(1), sub.Metrics().BackpressureEvents)

	// FIFO preserved across the forced flush
	require.NoError(t, p.Flush(context.Background(), sub.ID()))
	assert.Equal(t, []string{"1", "2", "3"}, h.ids())
}

func TestDeliveryErrorDoesNotStopFlush(t *testing.T) {
	p, _ := newTestProcessor(t)
	h := &collectingHandler{failIDs: map[string]bool{"bad": true}}

	sub, err := p.Subscribe("market", h, Options{BufferSize: 10})
	require.NoError(t, err)

	for _, id := range []string{"1", "bad", "2"} {
		require.NoError(t, p.PushRecord(sub.ID(), rec(id)))
	}
	require.NoError(t, p.Flush(context.Background(), sub.ID()))

	assert.Equal(t, []string{"1", "2"}, h.ids())
	m := sub.Metrics()
	assert.Equal(t, int64(1), m.Errors)
	assert.Equal(t, int64(2), m.RecordsProcessed)
	require.Len(t, h.errs, 1)
	assert.True(t, dferrors.IsDelivery(h.errs[0]))
}

func TestHandlerPanicContained(t *testing.T) {
	p, _ := newTestProcessor(t)
	h := &collectingHandler{panicIDs: map[string]bool{"boom": true}}

	sub, err := p.Subscribe("market", h, Options{BufferSize: 10})
	require.NoError(t, err)

	for _, id := range []string{"boom", "ok"} {
		require.NoError(t, p.PushRecord(sub.ID(), rec(id)))
	}
	require.NoError(t, p.Flush(context.Background(), sub.ID()))

	assert.Equal(t, []string{"ok"}, h.ids())
	assert.Equal(t, int64(1), sub.Metrics().Errors)
}

func TestUnsubscribeDrains(t *testing.T) {
	p, _ := newTestProcessor(t)
	h := &collectingHandler{}

	sub, err := p.Subscribe("market", h, Options{BufferSize: 10})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, p.PushRecord(sub.ID(), rec(fmt.Sprintf("r%d", i))))
	}

	require.NoError(t, p.Unsubscribe(context.Background(), sub.ID()))

	// All buffered records delivered before removal
	assert.Equal(t, 5, h.count())
	assert.Equal(t, StatusStopped, sub.Status())

	// Gone from the processor
	err = p.PushRecord(sub.ID(), rec("late"))
	assert.True(t, dferrors.IsNotFound(err))

	err = p.Unsubscribe(context.Background(), sub.ID())
	assert.True(t, dferrors.IsNotFound(err))
}

func TestUnsubscribeRefusesLateAppend(t *testing.T) {
	p, _ := newTestProcessor(t)
	h := &collectingHandler{}

	sub, err := p.Subscribe("market", h, Options{BufferSize: 10})
	require.NoError(t, err)
	require.NoError(t, p.PushRecord(sub.ID(), rec("r0")))

	require.NoError(t, p.Unsubscribe(context.Background(), sub.ID()))
	assert.Equal(t, 1, h.count())

	// The final drain closed the buffer; nothing can land behind it.
	_, ok := sub.buf.Append(rec("ghost"))
	assert.False(t, ok)
	assert.Equal(t, 0, sub.BufferLen())
}

func TestPushAgainstClosedBufferCountsDrop(t *testing.T) {
	p, _ := newTestProcessor(t)
	h := &collectingHandler{}

	sub, err := p.Subscribe("market", h, Options{BufferSize: 10})
	require.NoError(t, err)

	// A producer caught mid-push by teardown gets refused with accounting
	// rather than silently buffering into a drained subscription.
	sub.buf.Close()
	err = p.PushRecord(sub.ID(), rec("late"))
	assert.True(t, dferrors.IsInvalidState(err))

	m := sub.Metrics()
	assert.Equal(t, int64(1), m.RecordsReceived)
	assert.Equal(t, int64(1), m.RecordsDropped)
}

func TestPauseResume(t *testing.T) {
	p, fc := newTestProcessor(t)
	h := &collectingHandler{}

	sub, err := p.Subscribe("market", h, Options{
		BufferSize:    10,
		FlushInterval: time.Second,
	})
	require.NoError(t, err)

	require.NoError(t, p.Pause(sub.ID()))
	require.NoError(t, p.PushRecord(sub.ID(), rec("held")))

	// Paused: timer ticks do not flush
	fc.Advance(3 * time.Second)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 0, h.count())

	require.NoError(t, p.Resume(sub.ID()))
	fc.Advance(time.Second)
	require.Eventually(t, func() bool { return h.count() == 1 },
		time.Second, time.Millisecond)

	// Resume is only legal from paused
	err = p.Resume(sub.ID())
	assert.True(t, dferrors.IsInvalidState(err))
}

func TestMetricsLatencyEMA(t *testing.T) {
	p, _ := newTestProcessor(t)

	slow := HandlerFunc(func(_ context.Context, _ types.Record) error {
		time.Sleep(2 * time.Millisecond)
		return nil
	})
	sub, err := p.Subscribe("market", slow, Options{BufferSize: 10})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, p.PushRecord(sub.ID(), rec(fmt.Sprintf("r%d", i))))
	}
	require.NoError(t, p.Flush(context.Background(), sub.ID()))

	assert.Greater(t, sub.Metrics().AvgLatencyMs, 0.0)
}

func TestUnknownSubscription(t *testing.T) {
	p, _ := newTestProcessor(t)

	assert.True(t, dferrors.IsNotFound(p.PushRecord("ghost", rec("x"))))
	assert.True(t, dferrors.IsNotFound(p.Flush(context.Background(), "ghost")))
	_, err := p.Metrics("ghost")
	assert.True(t, dferrors.IsNotFound(err))
}
