package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSystemClock(t *testing.T) {
	c := New()
	before := time.Now()
	now := c.Now()
	assert.False(t, now.Before(before))

	ticker := c.NewTicker(time.Millisecond)
	defer ticker.Stop()

	select {
	case <-ticker.C():
	case <-time.After(time.Second):
		t.Fatal("system ticker never fired")
	}
}

func TestFakeClock_AdvanceFiresTicker(t *testing.T) {
	fc := NewFake()
	ticker := fc.NewTicker(time.Second)
	defer ticker.Stop()

	// No tick before the interval elapses
	fc.Advance(500 * time.Millisecond)
	select {
	case <-ticker.C():
		t.Fatal("ticker fired early")
	default:
	}

	fc.Advance(500 * time.Millisecond)
	select {
	case tick := <-ticker.C():
		assert.Equal(t, fc.Now(), tick)
	default:
		t.Fatal("ticker did not fire")
	}
}

func TestFakeClock_DropsUnconsumedTicks(t *testing.T) {
	fc := NewFake()
	ticker := fc.NewTicker(time.Second)
	defer ticker.Stop()

	// Three intervals with nobody reading: only one buffered tick survives
	fc.Advance(3 * time.Second)

	count := 0
	for {
		select {
		case <-ticker.C():
			count++
			continue
		default:
		}
		break
	}
	assert.Equal(t, 1, count)
}

func TestFakeClock_StoppedTickerDoesNotFire(t *testing.T) {
	fc := NewFake()
	ticker := fc.NewTicker(time.Second)
	ticker.Stop()

	fc.Advance(5 * time.Second)
	select {
	case <-ticker.C():
		t.Fatal("stopped ticker fired")
	default:
	}
}

func TestFakeClock_NowAdvances(t *testing.T) {
	fc := NewFake()
	start := fc.Now()
	fc.Advance(time.Minute)
	require.Equal(t, start.Add(time.Minute), fc.Now())
}

func TestFakeClock_MultipleTickersFireInOrder(t *testing.T) {
	fc := NewFake()
	fast := fc.NewTicker(time.Second)
	slow := fc.NewTicker(time.Minute)
	defer fast.Stop()
	defer slow.Stop()

	fc.Advance(time.Minute)

	select {
	case <-fast.C():
	default:
		t.Fatal("fast ticker did not fire")
	}
	select {
	case <-slow.C():
	default:
		t.Fatal("slow ticker did not fire")
	}
}
