package occupancy

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/banshee-data/stallsensor/internal/autocorrect"
	"github.com/banshee-data/stallsensor/internal/config"
	"github.com/banshee-data/stallsensor/internal/door"
	"github.com/banshee-data/stallsensor/internal/metrics"
	"github.com/banshee-data/stallsensor/internal/monitoring"
	"github.com/banshee-data/stallsensor/internal/radar"
	"github.com/banshee-data/stallsensor/internal/telemetry"
	"github.com/banshee-data/stallsensor/internal/timeutil"
)

const (
	// DefaultHeartbeatInterval is the longest gap between heartbeats.
	DefaultHeartbeatInterval uint32 = 660000
	// DefaultDebugInterval rate-limits debug records.
	DefaultDebugInterval uint32 = 1500
	// DefaultDebugTimeout turns verbose publishing off after 8 h.
	DefaultDebugTimeout uint32 = 28800000

	// ResetThreshold is how long the door sensor may stay silent before
	// a self-reset is allowed while Idle.
	ResetThreshold uint32 = 540000

	// heartbeatPublishDelay lets the sensor's repeated broadcasts of one
	// message collapse into a single early heartbeat.
	heartbeatPublishDelay uint32 = 1000

	// alignmentWindow is the width of the duration-alert firing window.
	alignmentWindow uint32 = 1000

	missHistorySize      = 4
	missFrequentlyCutoff = 1
)

// ErrInvalidState is returned for a manual control that does not apply to
// the current state.
var ErrInvalidState = errors.New("invalid state for operation")

// RadarSource yields the latest filtered reading without blocking.
type RadarSource interface {
	Poll(now uint32) radar.Reading
}

// DoorSource is the door event tracker as seen by the machine.
type DoorSource interface {
	Poll(now uint32) door.Update
	Health() door.Health
	MessagePending() bool
	ClearMessagePending()
	TakeMissed() int
}

// Resetter arms or fires the process restart.
type Resetter interface {
	AllowReset(allow bool)
	Reset(reason string)
}

// Options wires a Machine. Radar, Door, Publisher and Clock are required.
type Options struct {
	Thresholds config.Thresholds
	Radar      RadarSource
	Door       DoorSource
	Publisher  telemetry.Publisher
	Clock      timeutil.MilliClock

	Corrector *autocorrect.Corrector
	// Store receives auto-corrected stillness thresholds.
	Store    config.Store
	Resetter Resetter
	Metrics  *metrics.Metrics

	// ResetReason is reported in the first heartbeat only.
	ResetReason  string
	NewSessionID func() string

	HeartbeatInterval uint32
	DebugInterval     uint32
	DebugTimeout      uint32
}

// Session is the state of one occupancy session. It is zeroed on every
// return to Idle.
type Session struct {
	ID                string `json:"session_id"`
	State             State  `json:"state"`
	StateEntered      uint32 `json:"state_entered"`
	TimeInState       uint32 `json:"time_in_state"`
	Started           uint32 `json:"started"`
	DurationAlerts    int    `json:"duration_alerts"`
	StillnessAlerts   int    `json:"stillness_alerts"`
	AlertsActive      bool   `json:"alerts_active"`
	OccupyEnabled     bool   `json:"occupy_enabled"`
	LastDurationAlert uint32 `json:"last_duration_alert"`
	DurationAlertSent bool   `json:"duration_alert_sent"`
}

// Machine is the occupancy state machine. It is not safe for concurrent
// use; the Runner owns it.
type Machine struct {
	th        config.Thresholds
	radar     RadarSource
	door      DoorSource
	pub       telemetry.Publisher
	clock     timeutil.MilliClock
	corrector *autocorrect.Corrector
	store     config.Store
	resetter  Resetter
	metrics   *metrics.Metrics
	newID     func() string

	heartbeatInterval uint32
	debugInterval     uint32
	debugTimeout      uint32

	session   Session
	reading   radar.Reading
	doorEvent door.Event
	now       uint32

	log stateLog

	heartbeatSent bool
	lastHeartbeat uint32
	missHistory   []bool
	resetReason   string

	verbose      bool
	verboseSince uint32
	debugSent    bool
	lastDebug    uint32

	resetAllowed bool
	resetKnown   bool

	history history
}

// New validates opts and returns a machine in Idle with the occupied
// transition enabled.
func New(opts Options) (*Machine, error) {
	if opts.Radar == nil || opts.Door == nil || opts.Publisher == nil || opts.Clock == nil {
		return nil, fmt.Errorf("%w: radar, door, publisher and clock are required", config.ErrInvalidInput)
	}
	if err := opts.Thresholds.Validate(); err != nil {
		return nil, err
	}
	m := &Machine{
		th:                opts.Thresholds,
		radar:             opts.Radar,
		door:              opts.Door,
		pub:               opts.Publisher,
		clock:             opts.Clock,
		corrector:         opts.Corrector,
		store:             opts.Store,
		resetter:          opts.Resetter,
		metrics:           opts.Metrics,
		newID:             opts.NewSessionID,
		heartbeatInterval: opts.HeartbeatInterval,
		debugInterval:     opts.DebugInterval,
		debugTimeout:      opts.DebugTimeout,
		doorEvent:         door.UnknownEvent,
		resetReason:       opts.ResetReason,
	}
	if m.newID == nil {
		m.newID = func() string { return uuid.NewString() }
	}
	if m.heartbeatInterval == 0 {
		m.heartbeatInterval = DefaultHeartbeatInterval
	}
	if m.debugInterval == 0 {
		m.debugInterval = DefaultDebugInterval
	}
	if m.debugTimeout == 0 {
		m.debugTimeout = DefaultDebugTimeout
	}
	if m.resetReason == "" {
		m.resetReason = "UNKNOWN"
	}

	now := m.clock.Millis()
	m.now = now
	m.log.last = now
	m.session = Session{State: Idle, StateEntered: now, AlertsActive: true, OccupyEnabled: true}
	m.metrics.SetStillnessThreshold(m.th.StillnessThreshold)
	return m, nil
}

// Step runs one tick: poll both sensors, advance the current state, then
// service the reset gate, debug publishing and the heartbeat.
func (m *Machine) Step() {
	now := m.clock.Millis()
	m.now = now

	m.reading = m.radar.Poll(now)
	u := m.door.Poll(now)
	m.doorEvent = u.Event
	if u.Closed {
		m.session.OccupyEnabled = true
	}
	if u.Missed {
		m.pub.Publish(telemetry.EventDoorWarning, encode(DoorWarningRecord{
			PrevSequence: statusHex(u.Previous.Sequence),
			CurrSequence: statusHex(u.Event.Sequence),
		}))
	}

	s := &m.session
	s.TimeInState = now - s.StateEntered

	var (
		next   State
		reason Reason
	)
	switch s.State {
	case Idle:
		next, reason = m.idle(now)
	case InitialCountdown:
		next, reason = m.initialCountdown(now)
	case Monitoring:
		next, reason = m.monitoring(now)
	case Stillness:
		next, reason = m.stillness(now)
	default:
		monitoring.Errorf("occupancy: unknown state %d, recovering to idle", int(s.State))
		next, reason = Idle, ReasonDoorOpened
	}
	if next != s.State {
		m.transition(next, reason, now)
	}

	m.history.add(now, m.reading.Magnitude, s.State)
	m.serviceReset(now)
	m.publishDebug(now)
	m.heartbeat(now)
}

func (m *Machine) idle(now uint32) (State, Reason) {
	s := &m.session
	s.DurationAlerts, s.StillnessAlerts = 0, 0
	s.AlertsActive = true
	s.DurationAlertSent, s.LastDurationAlert = false, 0

	closed := m.doorEvent.Closed()
	mag := m.reading.Magnitude
	if m.corrector != nil {
		if th, changed := m.corrector.Process(mag, closed, now, m.th.StillnessThreshold); changed {
			m.applyStillnessThreshold(th)
		}
	}

	var timeClosed uint32
	if closed {
		timeClosed = now - m.door.Health().DoorClosedSince
	}
	if timeClosed < m.th.ConfirmationWindow && mag > m.th.OccupancyThreshold && closed && s.OccupyEnabled {
		return InitialCountdown, ReasonMovementAbove
	}
	return Idle, 0
}

func (m *Machine) initialCountdown(now uint32) (State, Reason) {
	mag := m.reading.Magnitude
	switch {
	case mag > 0 && mag < m.th.OccupancyThreshold:
		return Idle, ReasonMovementBelow
	case m.doorEvent.Open():
		return Idle, ReasonDoorOpened
	case m.session.TimeInState >= m.th.InitialCountdown:
		return Monitoring, ReasonInitialTimer
	}
	return InitialCountdown, 0
}

func (m *Machine) monitoring(now uint32) (State, Reason) {
	mag := m.reading.Magnitude
	switch {
	case m.doorEvent.Open():
		m.publishAlert(telemetry.EventDoorOpened, now)
		return Idle, ReasonDoorOpened
	case mag > 0 && mag < m.th.StillnessThreshold:
		return Stillness, ReasonMovementBelow
	case m.durationAlertDue(now):
		m.sendDurationAlert(now)
	}
	return Monitoring, 0
}

func (m *Machine) stillness(now uint32) (State, Reason) {
	mag := m.reading.Magnitude
	switch {
	case m.doorEvent.Open():
		m.publishAlert(telemetry.EventDoorOpened, now)
		return Idle, ReasonDoorOpened
	case mag > m.th.StillnessThreshold:
		return Monitoring, ReasonMovementAbove
	case m.durationAlertDue(now):
		m.sendDurationAlert(now)
	case m.stillnessAlertDue():
		m.sendStillnessAlert(now)
	}
	return Stillness, 0
}

func (m *Machine) transition(next State, reason Reason, now uint32) {
	s := &m.session
	prev := s.State
	m.pub.Publish(telemetry.EventStateTransition, encode(TransitionRecord{
		PrevState:  prev,
		NextState:  next,
		DoorStatus: statusHex(m.doorEvent.Status),
		Magnitude:  m.reading.Magnitude,
	}))
	m.log.add(prev, reason, now)
	m.metrics.Transition(prev.String(), next.String(), int(next))
	monitoring.Logf("occupancy: %s -> %s (%s) door=%s magnitude=%.2f",
		prev, next, reason, statusHex(m.doorEvent.Status), m.reading.Magnitude)

	if next == InitialCountdown {
		s.ID = m.newID()
		s.Started = now
	}
	s.State = next
	s.StateEntered = now
	s.TimeInState = 0
}

func (m *Machine) applyStillnessThreshold(v float64) {
	m.th.StillnessThreshold = v
	m.metrics.SetStillnessThreshold(v)
	if m.store == nil {
		return
	}
	if err := m.store.Put(config.KeyStillnessThreshold, strconv.FormatUint(uint64(v), 10)); err != nil {
		monitoring.Warnf("persist auto-corrected stillness threshold: %v", err)
	}
}

// serviceReset arms the self-reset while Idle with a silent door sensor and
// disarms it otherwise.
func (m *Machine) serviceReset(now uint32) {
	if m.resetter == nil {
		return
	}
	allow := m.session.State == Idle && now-m.door.Health().LastHeartbeatTime > ResetThreshold
	if m.resetKnown && allow == m.resetAllowed {
		return
	}
	m.resetAllowed, m.resetKnown = allow, true
	m.resetter.AllowReset(allow)
}

func (m *Machine) publishDebug(now uint32) {
	if !m.verbose {
		return
	}
	if now-m.verboseSince > m.debugTimeout {
		m.verbose = false
		monitoring.Logf("occupancy: debug publishing timed out")
		return
	}
	if m.debugSent && now-m.lastDebug <= m.debugInterval {
		return
	}
	m.pub.Publish(telemetry.EventDebugMessage, encode(DebugRecord{
		State:                  m.session.State,
		DoorStatus:             statusHex(m.doorEvent.Status),
		TimeInState:            m.session.TimeInState,
		Magnitude:              m.reading.Magnitude,
		OccupancyThreshold:     m.th.OccupancyThreshold,
		StillnessThreshold:     m.th.StillnessThreshold,
		ConfirmationWindow:     m.th.ConfirmationWindow,
		InitialCountdown:       m.th.InitialCountdown,
		DurationAlertInterval:  m.th.DurationAlertInterval,
		StillnessAlertInterval: m.th.StillnessAlertInterval,
	}))
	m.debugSent, m.lastDebug = true, now
}
