package occupancy

import (
	"fmt"

	"github.com/banshee-data/stallsensor/internal/config"
	"github.com/banshee-data/stallsensor/internal/door"
	"github.com/banshee-data/stallsensor/internal/monitoring"
	"github.com/banshee-data/stallsensor/internal/radar"
	"github.com/banshee-data/stallsensor/internal/telemetry"
)

// ForceReset publishes a Reset record and asks the resetter to restart the
// process.
func (m *Machine) ForceReset() {
	m.pub.Publish(telemetry.EventReset, encode(ResetRecord{Reason: "USER", State: m.session.State}))
	monitoring.Warnf("occupancy: user requested reset")
	if m.resetter != nil {
		m.resetter.Reset("USER")
	}
}

// ResetSession returns to Idle with all session state zeroed and holds off
// the occupied transition until the door is next seen closing. Calling it
// repeatedly has the same effect as calling it once.
func (m *Machine) ResetSession() {
	now := m.clock.Millis()
	if m.session.State != Idle {
		monitoring.Logf("occupancy: session reset from %s", m.session.State)
	}
	m.session = Session{State: Idle, StateEntered: now, AlertsActive: true}
	if m.corrector != nil {
		m.corrector.Reset()
	}
}

// ResetMonitoring clears the alert counters and restarts the current state's
// timer. It applies only in Monitoring and Stillness.
func (m *Machine) ResetMonitoring() error {
	s := &m.session
	if s.State != Monitoring && s.State != Stillness {
		return fmt.Errorf("%w: reset monitoring in %s", ErrInvalidState, s.State)
	}
	now := m.clock.Millis()
	s.DurationAlerts, s.StillnessAlerts = 0, 0
	s.AlertsActive = true
	s.DurationAlertSent, s.LastDurationAlert = false, 0
	s.StateEntered, s.TimeInState = now, 0
	return nil
}

// SetVerbose turns debug publishing on or off. It switches itself off after
// the debug timeout.
func (m *Machine) SetVerbose(on bool) {
	m.verbose = on
	m.verboseSince = m.clock.Millis()
	m.debugSent = false
}

// Verbose reports whether debug publishing is on.
func (m *Machine) Verbose() bool { return m.verbose }

// Thresholds returns the active thresholds.
func (m *Machine) Thresholds() config.Thresholds { return m.th }

// SetThresholds replaces the thresholds. Invalid values are rejected without
// changing anything.
func (m *Machine) SetThresholds(t config.Thresholds) error {
	if err := t.Validate(); err != nil {
		return err
	}
	m.th = t
	m.metrics.SetStillnessThreshold(t.StillnessThreshold)
	return nil
}

// AutoCorrectEnabled reports whether stillness auto-correction is on.
func (m *Machine) AutoCorrectEnabled() bool {
	return m.corrector != nil && m.corrector.Enabled()
}

// SetAutoCorrectEnabled turns stillness auto-correction on or off.
func (m *Machine) SetAutoCorrectEnabled(on bool) {
	if m.corrector == nil {
		return
	}
	m.corrector.SetEnabled(on)
}

// Snapshot is a point-in-time copy of the engine state.
type Snapshot struct {
	Now         uint32            `json:"now"`
	State       string            `json:"state"`
	Session     Session           `json:"session"`
	Reading     radar.Reading     `json:"reading"`
	Door        door.Event        `json:"door"`
	DoorHealth  door.Health       `json:"door_health"`
	Thresholds  config.Thresholds `json:"thresholds"`
	Verbose     bool              `json:"verbose"`
	AutoCorrect bool              `json:"auto_correct"`
	PendingLog  int               `json:"pending_state_log"`
}

// Snapshot copies the current state.
func (m *Machine) Snapshot() Snapshot {
	return Snapshot{
		Now:         m.now,
		State:       m.session.State.String(),
		Session:     m.session,
		Reading:     m.reading,
		Door:        m.doorEvent,
		DoorHealth:  m.door.Health(),
		Thresholds:  m.th,
		Verbose:     m.verbose,
		AutoCorrect: m.AutoCorrectEnabled(),
		PendingLog:  len(m.log.entries),
	}
}

// HistoryPoint is one tick of the magnitude history.
type HistoryPoint struct {
	Time      uint32
	Magnitude float64
	State     State
}

const historySize = 1200

// history keeps the most recent ticks for the debug chart.
type history struct {
	points []HistoryPoint
	next   int
}

func (h *history) add(now uint32, mag float64, s State) {
	p := HistoryPoint{Time: now, Magnitude: mag, State: s}
	if len(h.points) < historySize {
		h.points = append(h.points, p)
		return
	}
	h.points[h.next] = p
	h.next = (h.next + 1) % historySize
}

func (h *history) snapshot() []HistoryPoint {
	out := make([]HistoryPoint, 0, len(h.points))
	out = append(out, h.points[h.next:]...)
	return append(out, h.points[:h.next]...)
}

// History returns the recent magnitude history, oldest first.
func (m *Machine) History() []HistoryPoint {
	return m.history.snapshot()
}
