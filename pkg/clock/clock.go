// Package clock provides an injectable time source so components driven by
// periodic ticks can be tested without wall-clock waits. Production code uses
// New(); tests use NewFake() and advance time explicitly.
package clock

import "time"

// Clock abstracts time observation and ticker creation.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// NewTicker returns a ticker firing every d.
	NewTicker(d time.Duration) Ticker
}

// Ticker abstracts time.Ticker so fakes can drive tick channels.
type Ticker interface {
	// C returns the tick channel.
	C() <-chan time.Time

	// Stop cancels the ticker. No more ticks are delivered after Stop
	// returns, though one may already be buffered.
	Stop()
}

// New returns a Clock backed by the system clock.
func New() Clock {
	return systemClock{}
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) NewTicker(d time.Duration) Ticker {
	return &systemTicker{t: time.NewTicker(d)}
}

type systemTicker struct {
	t *time.Ticker
}

func (st *systemTicker) C() <-chan time.Time { return st.t.C }
func (st *systemTicker) Stop()               { st.t.Stop() }
