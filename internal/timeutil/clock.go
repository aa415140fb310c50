// Package timeutil provides the wall clock and the wrapping millisecond
// counter used by the occupancy engine.
package timeutil

import (
	"sync"
	"time"
)

// Clock is the time source for everything that sleeps or ticks, so tests can
// drive it by hand.
type Clock interface {
	Now() time.Time
	Since(t time.Time) time.Duration
	Sleep(d time.Duration)
	NewTicker(d time.Duration) Ticker
}

// Ticker delivers ticks on C until stopped.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// RealClock is the process wall clock.
type RealClock struct{}

func (RealClock) Now() time.Time                  { return time.Now() }
func (RealClock) Since(t time.Time) time.Duration { return time.Since(t) }
func (RealClock) Sleep(d time.Duration)           { time.Sleep(d) }

func (RealClock) NewTicker(d time.Duration) Ticker {
	return wallTicker{time.NewTicker(d)}
}

type wallTicker struct{ t *time.Ticker }

func (w wallTicker) C() <-chan time.Time { return w.t.C }
func (w wallTicker) Stop()               { w.t.Stop() }

// MockClock only moves when told to. Advance and Sleep deliver ticks to every
// live ticker whose deadline has passed.
type MockClock struct {
	mu      sync.Mutex
	now     time.Time
	slept   []time.Duration
	tickers map[*MockTicker]struct{}
}

// NewMockClock returns a clock reading t.
func NewMockClock(t time.Time) *MockClock {
	return &MockClock{now: t, tickers: make(map[*MockTicker]struct{})}
}

func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *MockClock) Since(t time.Time) time.Duration {
	return c.Now().Sub(t)
}

// Advance moves the clock forward by d.
func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	due := make([]*MockTicker, 0, len(c.tickers))
	for t := range c.tickers {
		due = append(due, t)
	}
	c.mu.Unlock()

	for _, t := range due {
		t.deliver(now)
	}
}

// Sleep returns at once after recording d and advancing by it.
func (c *MockClock) Sleep(d time.Duration) {
	c.mu.Lock()
	c.slept = append(c.slept, d)
	c.mu.Unlock()
	c.Advance(d)
}

// Sleeps lists every Sleep duration so far.
func (c *MockClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, len(c.slept))
	copy(out, c.slept)
	return out
}

func (c *MockClock) NewTicker(d time.Duration) Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &MockTicker{clock: c, ch: make(chan time.Time, 1), period: d, deadline: c.now.Add(d)}
	c.tickers[t] = struct{}{}
	return t
}

func (c *MockClock) remove(t *MockTicker) {
	c.mu.Lock()
	delete(c.tickers, t)
	c.mu.Unlock()
}

// MockTicker holds at most one pending tick; like time.Ticker it drops ticks
// for a slow reader rather than queueing them.
type MockTicker struct {
	clock  *MockClock
	ch     chan time.Time
	period time.Duration

	mu       sync.Mutex
	deadline time.Time
}

func (t *MockTicker) C() <-chan time.Time { return t.ch }

func (t *MockTicker) Stop() { t.clock.remove(t) }

func (t *MockTicker) deliver(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if now.Before(t.deadline) {
		return
	}
	select {
	case t.ch <- now:
	default:
	}
	t.deadline = now.Add(t.period)
}
