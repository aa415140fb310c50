package occupancy

import (
	"encoding/json"
	"fmt"

	"github.com/banshee-data/stallsensor/internal/monitoring"
)

// heartbeatStatesCutoff caps the encoded heartbeat size at which no further
// state-log entries are added; the remainder goes out with the next heartbeat.
const heartbeatStatesCutoff = 603

// maxStateLog bounds the state log between heartbeats.
const maxStateLog = 256

// TransitionRecord is published on every state change.
type TransitionRecord struct {
	PrevState  State   `json:"prev_state"`
	NextState  State   `json:"next_state"`
	DoorStatus string  `json:"door_status"`
	Magnitude  float64 `json:"radar_magnitude"`
}

// AlertRecord is published for Duration and Stillness alerts and as the
// session summary when the door opens.
type AlertRecord struct {
	SessionID          string `json:"session_id"`
	AlertState         State  `json:"alert_state"`
	NumDurationAlerts  int    `json:"num_duration_alerts"`
	NumStillnessAlerts int    `json:"num_stillness_alerts"`
	OccupancyDuration  uint32 `json:"occupancy_duration"` // minutes
}

// DebugRecord is the opt-in periodic diagnostic.
type DebugRecord struct {
	State                  State   `json:"state"`
	DoorStatus             string  `json:"door_status"`
	TimeInState            uint32  `json:"time_in_state"`
	Magnitude              float64 `json:"radar_magnitude"`
	OccupancyThreshold     float64 `json:"occupancy_threshold"`
	StillnessThreshold     float64 `json:"stillness_threshold"`
	ConfirmationWindow     uint32  `json:"occupant_detection_timer"`
	InitialCountdown       uint32  `json:"initial_timer"`
	DurationAlertInterval  uint32  `json:"duration_timer"`
	StillnessAlertInterval uint32  `json:"stillness_timer"`
}

// DoorWarningRecord reports a gap in the door sensor's sequence numbers.
type DoorWarningRecord struct {
	PrevSequence string `json:"prev_sequence"`
	CurrSequence string `json:"curr_sequence"`
}

// ResetRecord is published before a user-requested restart.
type ResetRecord struct {
	Reason string `json:"reason"`
	State  State  `json:"state"`
}

// HeartbeatRecord is the periodic health report. The door fields are -1
// until the first door message has been received.
type HeartbeatRecord struct {
	IsINSZero            bool            `json:"isINSZero"`
	DoorMissedMsg        int             `json:"doorMissedMsg"`
	DoorMissedFrequently bool            `json:"doorMissedFrequently"`
	DoorLastMessage      int64           `json:"doorLastMessage"`
	DoorLowBatt          int             `json:"doorLowBatt"`
	DoorTampered         int             `json:"doorTampered"`
	ConsecutiveOpen      int             `json:"consecutiveOpenDoorHeartbeatCount"`
	ResetReason          string          `json:"resetReason"`
	States               []StateLogEntry `json:"states"`
}

// StateLogEntry records the state being left (or alerted from), why, and the
// time since the previous entry. It encodes as [state, reason, ms].
type StateLogEntry struct {
	State       State
	Reason      Reason
	TimeInState uint32
}

func (e StateLogEntry) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf("[%d,%d,%d]", e.State, e.Reason, e.TimeInState)), nil
}

func (e *StateLogEntry) UnmarshalJSON(b []byte) error {
	var v [3]uint32
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	e.State, e.Reason, e.TimeInState = State(v[0]), Reason(v[1]), v[2]
	return nil
}

// stateLog queues entries until the next heartbeat drains them.
type stateLog struct {
	entries []StateLogEntry
	last    uint32
}

func (l *stateLog) add(s State, r Reason, now uint32) {
	if len(l.entries) >= maxStateLog {
		l.entries = l.entries[1:]
	}
	l.entries = append(l.entries, StateLogEntry{State: s, Reason: r, TimeInState: now - l.last})
	l.last = now
}

// drain moves entries into rec until the encoded record reaches the cutoff,
// leaving the rest queued.
func (l *stateLog) drain(rec *HeartbeatRecord) {
	rec.States = []StateLogEntry{}
	base, err := json.Marshal(rec)
	if err != nil {
		return
	}
	size := len(base)
	n := 0
	for _, e := range l.entries {
		if size >= heartbeatStatesCutoff {
			monitoring.Warnf("heartbeat full, %d state entries deferred", len(l.entries)-n)
			break
		}
		enc, _ := e.MarshalJSON()
		size += len(enc) + 1
		rec.States = append(rec.States, e)
		n++
	}
	l.entries = append(l.entries[:0], l.entries[n:]...)
}

func statusHex(b byte) string {
	return fmt.Sprintf("0x%02X", b)
}

func encode(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		monitoring.Errorf("encode %T: %v", v, err)
		return "{}"
	}
	return string(b)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
