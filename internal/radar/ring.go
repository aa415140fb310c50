package radar

// ring is a fixed-capacity float64 ring buffer that overwrites its oldest
// value when full.
type ring struct {
	data []float64
	pos  int
	full bool
}

func newRing(capacity int) *ring {
	return &ring{data: make([]float64, capacity)}
}

// push stores v and returns the value it displaced, if the ring was full.
func (r *ring) push(v float64) (evicted float64, ok bool) {
	if r.full {
		evicted, ok = r.data[r.pos], true
	}
	r.data[r.pos] = v
	r.pos++
	if r.pos == len(r.data) {
		r.pos = 0
		r.full = true
	}
	return evicted, ok
}

func (r *ring) len() int {
	if r.full {
		return len(r.data)
	}
	return r.pos
}

// oldest returns the least recently pushed value still held.
func (r *ring) oldest() float64 {
	if r.full {
		return r.data[r.pos]
	}
	return r.data[0]
}

// slice returns the contents in insertion order.
func (r *ring) slice() []float64 {
	out := make([]float64, r.len())
	if r.full {
		n := copy(out, r.data[r.pos:])
		copy(out[n:], r.data[:r.pos])
	} else {
		copy(out, r.data[:r.pos])
	}
	return out
}

func (r *ring) reset() {
	r.pos = 0
	r.full = false
}

// movingAverage keeps a rolling sum over the last window values in a ring one
// element larger than the window, so the value leaving the window is always
// the ring's oldest entry after a push.
type movingAverage struct {
	window int
	ring   *ring
	sum    float64
	primed bool
}

func newMovingAverage(window int) *movingAverage {
	return &movingAverage{window: window, ring: newRing(window + 1)}
}

// add pushes v and returns the mean of the last window values once at least
// window values have been seen.
func (m *movingAverage) add(v float64) (float64, bool) {
	m.ring.push(v)
	switch {
	case m.ring.len() < m.window:
		return 0, false
	case !m.primed:
		for _, x := range m.ring.slice() {
			m.sum += x
		}
		m.primed = true
	default:
		m.sum += v - m.ring.oldest()
	}
	return m.sum / float64(m.window), true
}

func (m *movingAverage) reset() {
	m.ring.reset()
	m.sum = 0
	m.primed = false
}
