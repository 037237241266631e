package tracking

import (
	"sync"
	"time"
)

type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct {
	t *time.Ticker
}

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

var newTickerFn = func(d time.Duration) Ticker {
	return timeTicker{t: time.NewTicker(d)}
}

// Clock counts ticks while running. Each Start launches a ticker goroutine
// tied to that run; ticks from an earlier run are discarded.
// An interval of zero or less disables the ticker and Tick drives the clock.
type Clock struct {
	mu       sync.Mutex
	interval time.Duration
	elapsed  int64
	run      chan struct{}
	onTick   func(elapsed int64)
}

func NewClock(interval time.Duration) *Clock {
	return &Clock{interval: interval}
}

// OnTick sets a callback invoked after every tick, outside the clock lock.
func (c *Clock) OnTick(fn func(elapsed int64)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onTick = fn
}

func (c *Clock) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.run != nil {
		return
	}
	run := make(chan struct{})
	c.run = run
	if c.interval > 0 {
		go c.loop(newTickerFn(c.interval), run)
	}
}

func (c *Clock) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

func (c *Clock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
	c.elapsed = 0
}

// Tick advances the clock by one tick if it is running.
func (c *Clock) Tick() {
	c.mu.Lock()
	run := c.run
	c.mu.Unlock()
	if run != nil {
		c.tick(run)
	}
}

func (c *Clock) Elapsed() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.elapsed
}

func (c *Clock) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.run != nil
}

func (c *Clock) stopLocked() {
	if c.run != nil {
		close(c.run)
		c.run = nil
	}
}

func (c *Clock) loop(t Ticker, run chan struct{}) {
	defer t.Stop()
	for {
		select {
		case <-run:
			return
		case <-t.C():
			c.tick(run)
		}
	}
}

func (c *Clock) tick(run chan struct{}) {
	c.mu.Lock()
	if c.run != run {
		c.mu.Unlock()
		return
	}
	c.elapsed++
	elapsed, fn := c.elapsed, c.onTick
	c.mu.Unlock()

	if fn != nil {
		fn(elapsed)
	}
}
