package occupancy

import (
	"context"
	"errors"
	"runtime/debug"
	"time"

	"github.com/banshee-data/stallsensor/internal/monitoring"
	"github.com/banshee-data/stallsensor/internal/timeutil"
)

// DefaultTickPeriod is the tick loop period.
const DefaultTickPeriod = 50 * time.Millisecond

// ErrNotRunning is returned by Do once the runner has stopped.
var ErrNotRunning = errors.New("occupancy runner not running")

// Runner owns a Machine and steps it on a ticker. Everything else reaches the
// machine through Do, which runs on the tick goroutine between steps.
type Runner struct {
	machine *Machine
	clock   timeutil.Clock
	period  time.Duration
	ctrl    chan func(*Machine)
	done    chan struct{}
}

// NewRunner returns a runner for m. A zero period uses DefaultTickPeriod.
func NewRunner(m *Machine, clock timeutil.Clock, period time.Duration) *Runner {
	if period <= 0 {
		period = DefaultTickPeriod
	}
	return &Runner{
		machine: m,
		clock:   clock,
		period:  period,
		ctrl:    make(chan func(*Machine)),
		done:    make(chan struct{}),
	}
}

// Run steps the machine until ctx is done.
func (r *Runner) Run(ctx context.Context) error {
	defer close(r.done)
	ticker := r.clock.NewTicker(r.period)
	defer ticker.Stop()

	monitoring.Logf("occupancy: tick loop started, period %s", r.period)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C():
			r.safely(func(m *Machine) { m.Step() })
		case fn := <-r.ctrl:
			r.safely(fn)
		}
	}
}

// safely keeps a panic in one step from stopping the loop.
func (r *Runner) safely(fn func(*Machine)) {
	defer func() {
		if p := recover(); p != nil {
			monitoring.Errorf("occupancy: recovered panic: %v\n%s", p, debug.Stack())
		}
	}()
	fn(r.machine)
}

// Do runs fn on the tick goroutine and waits for it to finish.
func (r *Runner) Do(ctx context.Context, fn func(*Machine)) error {
	finished := make(chan struct{})
	wrapped := func(m *Machine) {
		defer close(finished)
		fn(m)
	}
	select {
	case r.ctrl <- wrapped:
	case <-r.done:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
