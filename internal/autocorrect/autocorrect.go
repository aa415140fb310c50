// Package autocorrect retunes the stillness threshold from the radar's
// baseline in an empty, closed stall.
package autocorrect

import (
	"fmt"
	"math"

	"github.com/banshee-data/stallsensor/internal/monitoring"
)

// Config holds the correction constants.
type Config struct {
	UpdateInterval   uint32 // ms between corrections
	MarginMultiplier float64
	MarginMinimum    float64
	MinThreshold     float64
	MaxThreshold     float64
	MinSamples       int
}

// DefaultConfig returns the constants tuned for the INS radar.
func DefaultConfig() Config {
	return Config{
		UpdateInterval:   30000,
		MarginMultiplier: 2.0,
		MarginMinimum:    15,
		MinThreshold:     10,
		MaxThreshold:     50,
		MinSamples:       50,
	}
}

// Validate checks the bounds are usable.
func (c Config) Validate() error {
	if c.UpdateInterval == 0 || c.MinSamples <= 0 {
		return fmt.Errorf("auto-correct interval and sample count must be positive")
	}
	if c.MinThreshold <= 0 || c.MaxThreshold < c.MinThreshold {
		return fmt.Errorf("auto-correct bounds [%g, %g] invalid", c.MinThreshold, c.MaxThreshold)
	}
	return nil
}

// Candidate returns the threshold proposed for a baseline average: the larger
// of the multiplied and offset baselines, floored to a whole number and
// clamped to the configured bounds.
func (c Config) Candidate(average float64) float64 {
	v := math.Floor(math.Max(average*c.MarginMultiplier, average+c.MarginMinimum))
	return math.Min(math.Max(v, c.MinThreshold), c.MaxThreshold)
}

// Corrector accumulates magnitude while Idle with the door closed.
type Corrector struct {
	cfg        Config
	enabled    bool
	sum        float64
	count      int
	lastUpdate uint32
	updated    bool
}

// New returns an enabled corrector.
func New(cfg Config) *Corrector {
	return &Corrector{cfg: cfg, enabled: true}
}

// Process feeds one Idle-state magnitude. It returns the threshold to use and
// whether it changed from current.
func (c *Corrector) Process(magnitude float64, doorClosed bool, now uint32, current float64) (float64, bool) {
	if !c.enabled {
		return current, false
	}
	if !doorClosed {
		if c.count > 0 {
			c.Reset()
		}
		return current, false
	}

	c.sum += magnitude
	c.count++

	if c.count < c.cfg.MinSamples {
		return current, false
	}
	if c.updated && now-c.lastUpdate < c.cfg.UpdateInterval {
		return current, false
	}

	// The baseline keeps growing across updates until the door opens.
	avg := c.Average()
	next := c.cfg.Candidate(avg)
	c.lastUpdate, c.updated = now, true
	if next == current {
		return current, false
	}
	monitoring.Logf("stillness threshold auto-corrected %g -> %g (baseline %.2f)", current, next, avg)
	return next, true
}

// Reset discards accumulated samples and the update timer.
func (c *Corrector) Reset() {
	c.sum, c.count = 0, 0
	c.lastUpdate, c.updated = 0, false
}

// SetEnabled turns correction on or off; either change clears accumulation.
func (c *Corrector) SetEnabled(enabled bool) {
	c.enabled = enabled
	c.Reset()
}

// Enabled reports whether correction is on.
func (c *Corrector) Enabled() bool { return c.enabled }

// Average returns the mean of the accumulated samples, or 0 with none.
func (c *Corrector) Average() float64 {
	if c.count == 0 {
		return 0
	}
	return c.sum / float64(c.count)
}

// SampleCount returns the number of accumulated samples.
func (c *Corrector) SampleCount() int { return c.count }

// Config returns the active constants.
func (c *Corrector) Config() Config { return c.cfg }
