// Package occupancy is the stall's occupancy engine: a four-state machine
// driven once per tick by the filtered radar reading and the door tracker.
package occupancy

import "fmt"

// State is the occupancy state. The numeric values appear in published
// records and must not change.
type State int

const (
	Idle State = iota
	InitialCountdown
	Monitoring
	Stillness
)

var stateNames = [...]string{
	Idle:             "idle",
	InitialCountdown: "initial_countdown",
	Monitoring:       "monitoring",
	Stillness:        "stillness",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// Reason explains a state change or alert in the heartbeat state log.
type Reason int

const (
	ReasonMovementAbove Reason = iota
	ReasonMovementBelow
	ReasonDoorOpened
	ReasonInitialTimer
	ReasonDurationAlert
	ReasonStillnessAlert
)

func (r Reason) String() string {
	switch r {
	case ReasonMovementAbove:
		return "movement_above"
	case ReasonMovementBelow:
		return "movement_below"
	case ReasonDoorOpened:
		return "door_opened"
	case ReasonInitialTimer:
		return "initial_timer"
	case ReasonDurationAlert:
		return "duration_alert"
	case ReasonStillnessAlert:
		return "stillness_alert"
	default:
		return fmt.Sprintf("reason(%d)", int(r))
	}
}
