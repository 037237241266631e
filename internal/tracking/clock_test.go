package tracking

import (
	"testing"
	"time"
)

type fakeTicker struct {
	ch      chan time.Time
	stopped chan struct{}
}

func newFakeTicker() *fakeTicker {
	return &fakeTicker{ch: make(chan time.Time, 1), stopped: make(chan struct{})}
}

func (f *fakeTicker) C() <-chan time.Time { return f.ch }
func (f *fakeTicker) Stop()               { close(f.stopped) }

func useFakeTickers(t *testing.T) chan *fakeTicker {
	t.Helper()
	created := make(chan *fakeTicker, 8)
	old := newTickerFn
	newTickerFn = func(time.Duration) Ticker {
		ft := newFakeTicker()
		created <- ft
		return ft
	}
	t.Cleanup(func() { newTickerFn = old })
	return created
}

func TestClockManualTicks(t *testing.T) {
	c := NewClock(0)
	c.Tick()
	if c.Elapsed() != 0 {
		t.Fatalf("idle clock must not tick")
	}

	c.Start()
	c.Tick()
	c.Tick()
	c.Tick()
	if c.Elapsed() != 3 {
		t.Fatalf("expected 3, got %d", c.Elapsed())
	}

	c.Pause()
	c.Tick()
	if c.Elapsed() != 3 || c.Running() {
		t.Fatalf("paused clock must keep elapsed and not tick")
	}

	c.Start()
	c.Tick()
	if c.Elapsed() != 4 {
		t.Fatalf("resume must continue counting, got %d", c.Elapsed())
	}

	c.Reset()
	if c.Elapsed() != 0 || c.Running() {
		t.Fatalf("reset must stop and zero")
	}
}

func TestClockStartTwiceKeepsOneRun(t *testing.T) {
	c := NewClock(0)
	c.Start()
	first := c.run
	c.Start()
	if c.run != first {
		t.Fatalf("second start must not replace the running run")
	}
}

func TestClockTickerDrivesOnTick(t *testing.T) {
	created := useFakeTickers(t)
	c := NewClock(time.Second)
	got := make(chan int64, 1)
	c.OnTick(func(n int64) { got <- n })

	c.Start()
	ft := <-created
	ft.ch <- time.Now()

	select {
	case n := <-got:
		if n != 1 {
			t.Fatalf("expected first tick, got %d", n)
		}
	case <-time.After(time.Second):
		t.Fatalf("tick callback not called")
	}

	c.Pause()
	select {
	case <-ft.stopped:
	case <-time.After(time.Second):
		t.Fatalf("ticker not stopped on pause")
	}
}

func TestClockStaleRunCannotTick(t *testing.T) {
	c := NewClock(0)
	c.Start()
	stale := c.run
	c.Pause()
	c.Start()

	c.tick(stale)
	if c.Elapsed() != 0 {
		t.Fatalf("tick from an earlier run must be discarded")
	}
	c.Tick()
	if c.Elapsed() != 1 {
		t.Fatalf("current run must tick")
	}
}
