// Package watchdog restarts the process when the occupancy engine allows a
// reset for a full period, or immediately on request.
package watchdog

import (
	"context"
	"sync"
	"time"

	"github.com/banshee-data/stallsensor/internal/monitoring"
	"github.com/banshee-data/stallsensor/internal/timeutil"
)

// DefaultPeriod is how long a reset must stay allowed before it fires.
const DefaultPeriod = 2 * time.Minute

// ReasonWatchdog is passed to the expiry callback when the period lapses.
const ReasonWatchdog = "WATCHDOG"

// Watchdog is the engine's Resetter. AllowReset and Reset may be called from
// any goroutine; Run fires the callback at most once.
type Watchdog struct {
	clock    timeutil.Clock
	period   time.Duration
	onExpire func(reason string)

	mu           sync.Mutex
	allowed      bool
	allowedSince time.Time

	reset chan string
}

// New returns a watchdog that calls onExpire from Run.
func New(clock timeutil.Clock, period time.Duration, onExpire func(reason string)) *Watchdog {
	if period <= 0 {
		period = DefaultPeriod
	}
	return &Watchdog{
		clock:    clock,
		period:   period,
		onExpire: onExpire,
		reset:    make(chan string, 1),
	}
}

// AllowReset arms or disarms the expiry. Arming starts the period.
func (w *Watchdog) AllowReset(allow bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if allow && !w.allowed {
		w.allowedSince = w.clock.Now()
	}
	w.allowed = allow
	monitoring.Debugf("watchdog: reset allowed=%v", allow)
}

// Reset requests an immediate restart. Only the first request is kept.
func (w *Watchdog) Reset(reason string) {
	select {
	case w.reset <- reason:
	default:
	}
}

// Allowed reports whether the expiry is armed.
func (w *Watchdog) Allowed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.allowed
}

func (w *Watchdog) expired() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.allowed && w.clock.Since(w.allowedSince) >= w.period
}

// Run checks the expiry four times per period until ctx is done or the
// callback fires.
func (w *Watchdog) Run(ctx context.Context) error {
	ticker := w.clock.NewTicker(w.period / 4)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case reason := <-w.reset:
			w.fire(reason)
			return nil
		case <-ticker.C():
			if w.expired() {
				w.fire(ReasonWatchdog)
				return nil
			}
		}
	}
}

func (w *Watchdog) fire(reason string) {
	monitoring.Warnf("watchdog: restarting, reason %s", reason)
	if w.onExpire != nil {
		w.onExpire(reason)
	}
}
