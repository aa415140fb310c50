package config

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput is returned for configuration values outside their
	// valid range.
	ErrInvalidInput = errors.New("invalid input")
	// ErrUninitialized is returned by a Store for a key that was never
	// written.
	ErrUninitialized = errors.New("config key uninitialized")
)

// Thresholds are the operator-tunable limits of the occupancy engine. Radar
// thresholds compare against the filtered magnitude; intervals are in
// milliseconds.
type Thresholds struct {
	OccupancyThreshold     float64 `json:"occupancy_threshold"`
	StillnessThreshold     float64 `json:"stillness_threshold"`
	ConfirmationWindow     uint32  `json:"confirmation_window_ms"`
	InitialCountdown       uint32  `json:"initial_countdown_ms"`
	DurationAlertInterval  uint32  `json:"duration_alert_interval_ms"`
	StillnessAlertInterval uint32  `json:"stillness_alert_interval_ms"`
}

// DefaultThresholds returns the values seeded on first boot.
func DefaultThresholds() Thresholds {
	return Thresholds{
		OccupancyThreshold:     60,
		StillnessThreshold:     30,
		ConfirmationWindow:     172800000, // 48 h
		InitialCountdown:       15000,
		DurationAlertInterval:  1800000, // 30 min
		StillnessAlertInterval: 300000,  // 5 min
	}
}

// Validate requires every value to be strictly positive.
func (t Thresholds) Validate() error {
	switch {
	case t.OccupancyThreshold <= 0:
		return fmt.Errorf("%w: occupancy threshold must be positive, got %g", ErrInvalidInput, t.OccupancyThreshold)
	case t.StillnessThreshold <= 0:
		return fmt.Errorf("%w: stillness threshold must be positive, got %g", ErrInvalidInput, t.StillnessThreshold)
	case t.ConfirmationWindow == 0:
		return fmt.Errorf("%w: confirmation window must be positive", ErrInvalidInput)
	case t.InitialCountdown == 0:
		return fmt.Errorf("%w: initial countdown must be positive", ErrInvalidInput)
	case t.DurationAlertInterval == 0:
		return fmt.Errorf("%w: duration alert interval must be positive", ErrInvalidInput)
	case t.StillnessAlertInterval == 0:
		return fmt.Errorf("%w: stillness alert interval must be positive", ErrInvalidInput)
	}
	return nil
}
