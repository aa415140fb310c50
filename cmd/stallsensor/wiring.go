package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/banshee-data/stallsensor/internal/autocorrect"
	"github.com/banshee-data/stallsensor/internal/config"
	"github.com/banshee-data/stallsensor/internal/console"
	"github.com/banshee-data/stallsensor/internal/door"
	"github.com/banshee-data/stallsensor/internal/monitoring"
	"github.com/banshee-data/stallsensor/internal/occupancy"
	"github.com/banshee-data/stallsensor/internal/radar"
	"github.com/banshee-data/stallsensor/internal/timeutil"
)

// loadDoorID returns the door sensor ID, seeding the default on first boot.
// A non-empty override replaces the stored ID.
func loadDoorID(s config.Store, override string) (door.DeviceID, error) {
	if override != "" {
		id, err := door.ParseDeviceID(override)
		if err != nil {
			return door.DeviceID{}, err
		}
		if err := s.Put(config.KeyDoorDeviceID, id.String()); err != nil {
			return door.DeviceID{}, fmt.Errorf("persist door id: %w", err)
		}
		return id, nil
	}
	raw, err := config.GetOrSeed(s, config.KeyDoorDeviceID, door.DefaultDeviceID.String())
	if err != nil {
		return door.DeviceID{}, err
	}
	id, err := door.ParseDeviceID(raw)
	if err != nil {
		monitoring.Warnf("stored door id %q invalid, using default: %v", raw, err)
		return door.DefaultDeviceID, nil
	}
	return id, nil
}

// takeResetReason returns the reason recorded by the previous process and
// records UNKNOWN in its place, so a crash is reported as such next boot.
func takeResetReason(s config.Store) (string, error) {
	reason, err := s.Get(config.KeyResetReason)
	if errors.Is(err, config.ErrUninitialized) {
		reason, err = resetReasonBoot, nil
	}
	if err != nil {
		return "", err
	}
	if err := s.Put(config.KeyResetReason, resetReasonBoot); err != nil {
		return "", fmt.Errorf("persist reset reason: %w", err)
	}
	return reason, nil
}

func doorSource(dev bool, fixture string, id door.DeviceID, clock timeutil.Clock) (door.Source, error) {
	if !dev {
		return door.NewBluetoothSource(), nil
	}
	events := door.DevReplay()
	if fixture != "" {
		f, err := os.Open(fixture)
		if err != nil {
			return nil, fmt.Errorf("open door fixture: %w", err)
		}
		defer f.Close()
		events, err = door.ParseReplay(f)
		if err != nil {
			return nil, fmt.Errorf("parse door fixture %s: %w", fixture, err)
		}
	}
	return &door.ReplaySource{
		Address: id.Addresses()[0],
		Events:  events,
		Clock:   clock,
		Loop:    true,
	}, nil
}

func processorConfig(t *config.TuningConfig) radar.ProcessorConfig {
	return radar.ProcessorConfig{
		QuartileWindow:   t.GetQuartileWindow(),
		QuartileInterval: t.GetQuartileInterval(),
		IQRMultiplier:    t.GetIQRMultiplier(),
		MedianWindow:     t.GetMedianWindow(),
		AverageWindow:    t.GetAverageWindow(),
	}
}

func autocorrectConfig(t *config.TuningConfig) autocorrect.Config {
	return autocorrect.Config{
		UpdateInterval:   durationMillis(t.GetAutoCorrectInterval()),
		MarginMultiplier: t.GetAutoCorrectMultiplier(),
		MarginMinimum:    t.GetAutoCorrectMargin(),
		MinThreshold:     t.GetAutoCorrectMin(),
		MaxThreshold:     t.GetAutoCorrectMax(),
		MinSamples:       t.GetAutoCorrectMinSamples(),
	}
}

func durationMillis(d time.Duration) uint32 {
	return uint32(d / time.Millisecond)
}

// consoleExec runs console functions on the tick goroutine. It reports
// console.Invalid when the engine does not answer within timeout.
func consoleExec(r *occupancy.Runner, timeout time.Duration) console.Exec {
	return func(fn func(console.Controls) int) int {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		result := console.Invalid
		if err := r.Do(ctx, func(m *occupancy.Machine) { result = fn(m) }); err != nil {
			monitoring.Warnf("console: engine unavailable: %v", err)
			return console.Invalid
		}
		return result
	}
}
