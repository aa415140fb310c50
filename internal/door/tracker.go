package door

import (
	"github.com/banshee-data/stallsensor/internal/metrics"
	"github.com/banshee-data/stallsensor/internal/monitoring"
)

// MessageTriggerInterval is how long the sensor may go quiet before its next
// message is flagged for an early heartbeat report.
const MessageTriggerInterval uint32 = 540000

// Health summarises the sensor's link and battery condition.
type Health struct {
	LastEventTime             uint32 `json:"last_event_time"`
	HasEvent                  bool   `json:"has_event"`
	LastHeartbeatTime         uint32 `json:"last_heartbeat_time"`
	HasHeartbeat              bool   `json:"has_heartbeat"`
	MissedEventCount          int    `json:"missed_event_count"`
	ConsecutiveOpenHeartbeats int    `json:"consecutive_open_heartbeats"`
	Tampered                  bool   `json:"tampered"`
	LowBattery                bool   `json:"low_battery"`
	DoorClosedSince           uint32 `json:"door_closed_since"`
}

// Update is the result of one Poll.
type Update struct {
	// Event is the latest accepted event, or UnknownEvent before the first.
	Event Event
	// Fresh is set when Event was accepted on this poll.
	Fresh bool
	// Closed is set when this poll saw a closed status that was not a
	// closed heartbeat, which re-enables the occupied transition. Repeated
	// transmissions count.
	Closed bool
	// Missed is set when a sequence gap was detected; Previous holds the
	// last accepted event before the gap.
	Missed   bool
	Previous Event
}

// Tracker consumes at most one door event per tick and maintains Health. It
// is owned by the tick loop.
type Tracker struct {
	events  <-chan Event
	metrics *metrics.Metrics

	current        Event
	seenFirst      bool
	health         Health
	lastMessage    uint32
	messagePending bool
}

// NewTracker returns a tracker draining events.
func NewTracker(events <-chan Event, m *metrics.Metrics) *Tracker {
	return &Tracker{events: events, metrics: m, current: UnknownEvent}
}

// Poll takes the next queued event, if any, without blocking.
func (t *Tracker) Poll(now uint32) Update {
	select {
	case ev := <-t.events:
		return t.Process(ev, now)
	default:
		return Update{Event: t.current}
	}
}

// Process applies one event.
func (t *Tracker) Process(ev Event, now uint32) Update {
	t.health.Tampered = ev.Status&StatusTamper != 0
	t.health.LowBattery = ev.Status&StatusLowBattery != 0
	t.health.LastEventTime = now
	t.health.HasEvent = true
	heartbeat := ev.Status&StatusHeartbeat != 0
	if heartbeat {
		t.health.LastHeartbeatTime = now
		t.health.HasHeartbeat = true
	}

	// Close detection and the message trigger see every event, including
	// repeats of the current sequence number.
	u := Update{Previous: t.current}
	if !ev.Open() {
		if !heartbeat || t.current.Open() {
			t.health.DoorClosedSince = now
			u.Closed = true
		}
		t.health.ConsecutiveOpenHeartbeats = 0
	}
	if now-t.lastMessage >= MessageTriggerInterval {
		if ev.Open() {
			t.health.ConsecutiveOpenHeartbeats++
		}
		t.messagePending = true
	}
	t.lastMessage = now

	switch {
	case !t.seenFirst:
		t.seenFirst = true
	case int(ev.Sequence) == int(t.current.Sequence)+1:
	case int(ev.Sequence) > int(t.current.Sequence)+1:
		missed := int(ev.Sequence) - int(t.current.Sequence) - 1
		t.health.MissedEventCount++
		t.metrics.DoorEventsMissed(missed)
		monitoring.Warnf("door sensor sequence gap: %#02x -> %#02x", t.current.Sequence, ev.Sequence)
		u.Missed = true
	case t.current.Sequence == 0xFF && ev.Sequence == 0x00:
	default:
		// Duplicate or stale transmission: the current event stands.
		u.Event = t.current
		return u
	}

	ev.Timestamp = now
	t.current = ev
	u.Event = ev
	u.Fresh = true
	return u
}

// Current returns the latest accepted event.
func (t *Tracker) Current() Event {
	return t.current
}

// Health returns the current health summary.
func (t *Tracker) Health() Health {
	return t.health
}

// MessagePending reports whether a message arrived after a long quiet period
// and has not yet been reported.
func (t *Tracker) MessagePending() bool {
	return t.messagePending
}

// ClearMessagePending acknowledges the pending message.
func (t *Tracker) ClearMessagePending() {
	t.messagePending = false
}

// TakeMissed returns the missed-event count and resets it.
func (t *Tracker) TakeMissed() int {
	n := t.health.MissedEventCount
	t.health.MissedEventCount = 0
	return n
}
