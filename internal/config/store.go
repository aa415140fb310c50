package config

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
)

// Store keys. They are persisted, so never renumber or rename them.
const (
	KeyOccupancyThreshold     = "occupancy_threshold"
	KeyStillnessThreshold     = "stillness_threshold"
	KeyConfirmationWindow     = "confirmation_window_ms"
	KeyInitialCountdown       = "initial_countdown_ms"
	KeyDurationAlertInterval  = "duration_alert_interval_ms"
	KeyStillnessAlertInterval = "stillness_alert_interval_ms"
	KeyDoorDeviceID           = "door_device_id"
	KeyResetReason            = "reset_reason"
	KeyAutoCorrect            = "auto_correct_enabled"
)

// Store persists configuration values by stable key. Get returns
// ErrUninitialized for keys that were never written.
type Store interface {
	Get(key string) (string, error)
	Put(key, value string) error
}

// GetUint reads an unsigned value.
func GetUint(s Store, key string) (uint64, error) {
	v, err := s.Get(key)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("stored %s %q: %w", key, v, err)
	}
	return n, nil
}

// PutUint writes an unsigned value.
func PutUint(s Store, key string, v uint64) error {
	return s.Put(key, strconv.FormatUint(v, 10))
}

// GetOrSeed returns the stored value for key, writing def first when the key
// is uninitialized.
func GetOrSeed(s Store, key, def string) (string, error) {
	v, err := s.Get(key)
	if errors.Is(err, ErrUninitialized) {
		if err := s.Put(key, def); err != nil {
			return "", fmt.Errorf("seed %s: %w", key, err)
		}
		return def, nil
	}
	return v, err
}

// LoadThresholds reads the thresholds, seeding defaults for any key never
// written. Stored values that fail validation are replaced with defaults.
func LoadThresholds(s Store) (Thresholds, error) {
	def := DefaultThresholds()
	t := def
	fields := []struct {
		key string
		def uint64
		set func(uint64)
	}{
		{KeyOccupancyThreshold, uint64(def.OccupancyThreshold), func(v uint64) { t.OccupancyThreshold = float64(v) }},
		{KeyStillnessThreshold, uint64(def.StillnessThreshold), func(v uint64) { t.StillnessThreshold = float64(v) }},
		{KeyConfirmationWindow, uint64(def.ConfirmationWindow), func(v uint64) { t.ConfirmationWindow = uint32(v) }},
		{KeyInitialCountdown, uint64(def.InitialCountdown), func(v uint64) { t.InitialCountdown = uint32(v) }},
		{KeyDurationAlertInterval, uint64(def.DurationAlertInterval), func(v uint64) { t.DurationAlertInterval = uint32(v) }},
		{KeyStillnessAlertInterval, uint64(def.StillnessAlertInterval), func(v uint64) { t.StillnessAlertInterval = uint32(v) }},
	}
	for _, f := range fields {
		raw, err := GetOrSeed(s, f.key, strconv.FormatUint(f.def, 10))
		if err != nil {
			return def, err
		}
		v, err := strconv.ParseUint(raw, 10, 32)
		if err != nil || v == 0 {
			v = f.def
		}
		f.set(v)
	}
	if err := t.Validate(); err != nil {
		return def, err
	}
	return t, nil
}

// MemStore is an in-memory Store used by tests.
type MemStore struct {
	mu sync.Mutex
	m  map[string]string
}

// NewMemStore returns an empty store.
func NewMemStore() *MemStore {
	return &MemStore{m: make(map[string]string)}
}

func (s *MemStore) Get(key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.m[key]
	if !ok {
		return "", ErrUninitialized
	}
	return v, nil
}

func (s *MemStore) Put(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = value
	return nil
}
