package timeutil

import (
	"sync"
	"time"
)

// MilliClock is a free-running unsigned 32-bit millisecond counter that wraps
// after about 49.7 days. Elapsed times must be computed as now-start in
// uint32 arithmetic, which stays correct across a single wrap.
type MilliClock interface {
	Millis() uint32
}

type clockMillis struct {
	clock Clock
	epoch time.Time
}

// NewMilliClock returns a counter that starts at zero now and follows c.
func NewMilliClock(c Clock) MilliClock {
	return &clockMillis{clock: c, epoch: c.Now()}
}

func (m *clockMillis) Millis() uint32 {
	return uint32(m.clock.Since(m.epoch).Milliseconds())
}

// Elapsed returns now-start modulo 2^32.
func Elapsed(now, start uint32) uint32 {
	return now - start
}

// ManualMillis is a MilliClock driven by tests.
type ManualMillis struct {
	mu  sync.Mutex
	now uint32
}

// NewManualMillis returns a counter reading start.
func NewManualMillis(start uint32) *ManualMillis {
	return &ManualMillis{now: start}
}

func (m *ManualMillis) Millis() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance adds d milliseconds, wrapping at 2^32.
func (m *ManualMillis) Advance(d uint32) {
	m.mu.Lock()
	m.now += d
	m.mu.Unlock()
}

// Set moves the counter to v.
func (m *ManualMillis) Set(v uint32) {
	m.mu.Lock()
	m.now = v
	m.mu.Unlock()
}
