package clock

import (
	"sync"
	"time"
)

// FakeClock is a manually-advanced Clock for tests. Tickers created from it
// fire only when Advance moves time past their deadlines, in deadline order.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*fakeTicker
}

// NewFake returns a FakeClock starting at a fixed, arbitrary instant.
func NewFake() *FakeClock {
	return &FakeClock{
		now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// Now returns the fake current time.
func (f *FakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// NewTicker returns a ticker driven by Advance.
func (f *FakeClock) NewTicker(d time.Duration) Ticker {
	f.mu.Lock()
	defer f.mu.Unlock()

	if d <= 0 {
		d = time.Nanosecond
	}
	ft := &fakeTicker{
		clock:    f,
		interval: d,
		next:     f.now.Add(d),
		// Buffered so Advance never blocks on a consumer mid-tick.
		// Matches time.Ticker, which also drops ticks on a slow receiver.
		ch: make(chan time.Time, 1),
	}
	f.tickers = append(f.tickers, ft)
	return ft
}

// Advance moves the fake time forward by d, firing due tickers in deadline
// order. Delivery is non-blocking; a ticker whose previous tick has not been
// consumed drops the new one, like time.Ticker.
func (f *FakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.now.Add(d)

	for {
		var earliest *fakeTicker
		for _, ft := range f.tickers {
			if ft.stopped {
				continue
			}
			if !ft.next.After(target) && (earliest == nil || ft.next.Before(earliest.next)) {
				earliest = ft
			}
		}
		if earliest == nil {
			break
		}

		f.now = earliest.next
		earliest.next = earliest.next.Add(earliest.interval)
		select {
		case earliest.ch <- f.now:
		default:
		}
	}

	f.now = target
	f.mu.Unlock()
}

// BlockingAdvance moves time forward like Advance but yields between tick
// deliveries, giving consumer goroutines a chance to observe each tick.
// Tests that assert on per-tick effects should pair this with
// require.Eventually rather than relying on scheduling order.
func (f *FakeClock) BlockingAdvance(d time.Duration) {
	f.Advance(d)
	time.Sleep(time.Millisecond)
}

type fakeTicker struct {
	clock    *FakeClock
	interval time.Duration
	next     time.Time
	ch       chan time.Time
	stopped  bool
}

func (ft *fakeTicker) C() <-chan time.Time { return ft.ch }

func (ft *fakeTicker) Stop() {
	ft.clock.mu.Lock()
	ft.stopped = true
	ft.clock.mu.Unlock()
}
