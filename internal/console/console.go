// Package console maps operator commands to the engine's manual controls and
// persisted thresholds. Every function takes a string argument and returns an
// integer result; -1 means the input was rejected and nothing changed.
package console

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/banshee-data/stallsensor/internal/config"
	"github.com/banshee-data/stallsensor/internal/door"
	"github.com/banshee-data/stallsensor/internal/monitoring"
)

// Echo asks a function for its current stored value.
const Echo = "e"

// Invalid is returned for rejected input.
const Invalid = -1

// ErrUnknownFunction is returned by Call for an unregistered name.
var ErrUnknownFunction = errors.New("unknown console function")

// Controls are the engine operations the console drives.
type Controls interface {
	ForceReset()
	ResetSession()
	ResetMonitoring() error
	SetVerbose(on bool)
	Verbose() bool
	Thresholds() config.Thresholds
	SetThresholds(t config.Thresholds) error
	AutoCorrectEnabled() bool
	SetAutoCorrectEnabled(on bool)
}

// Exec runs fn against the live controls, serialised with the tick loop, and
// returns its result. It returns Invalid when the engine is unavailable.
type Exec func(fn func(Controls) int) int

// DeviceIDSetter retargets the door scanner.
type DeviceIDSetter interface {
	SetDeviceID(id door.DeviceID)
}

// Func is one console function.
type Func func(input string) int

// Console holds the registered functions.
type Console struct {
	store config.Store
	exec  Exec
	door  DeviceIDSetter
	funcs map[string]Func
}

// New registers the standard functions.
func New(store config.Store, exec Exec, scanner DeviceIDSetter) *Console {
	c := &Console{store: store, exec: exec, door: scanner}
	c.funcs = map[string]Func{
		"Force_Reset":                      c.forceReset,
		"Toggle_Debug_Publish":             c.toggleDebug,
		"Occupant_Detection_INS_Threshold": c.radarThreshold(config.KeyOccupancyThreshold, func(t *config.Thresholds, v float64) { t.OccupancyThreshold = v }),
		"Stillness_INS_Threshold":          c.radarThreshold(config.KeyStillnessThreshold, func(t *config.Thresholds, v float64) { t.StillnessThreshold = v }),
		"Occupant_Detection_Timer":         c.timer(config.KeyConfirmationWindow, func(t *config.Thresholds, v uint32) { t.ConfirmationWindow = v }),
		"Initial_Timer":                    c.timer(config.KeyInitialCountdown, func(t *config.Thresholds, v uint32) { t.InitialCountdown = v }),
		"Duration_Timer":                   c.timer(config.KeyDurationAlertInterval, func(t *config.Thresholds, v uint32) { t.DurationAlertInterval = v }),
		"Stillness_Timer":                  c.timer(config.KeyStillnessAlertInterval, func(t *config.Thresholds, v uint32) { t.StillnessAlertInterval = v }),
		"IM21_Door_ID":                     c.doorID,
		"Reset_Monitoring":                 c.resetMonitoring,
		"Reset_State_To_Zero":              c.resetSession,
		"Auto_Correct":                     c.autoCorrect,
	}
	return c
}

// Call runs the named function.
func (c *Console) Call(name, input string) (int, error) {
	f, ok := c.funcs[name]
	if !ok {
		return Invalid, fmt.Errorf("%w: %s", ErrUnknownFunction, name)
	}
	result := f(strings.TrimSpace(input))
	monitoring.Logf("console: %s(%q) = %d", name, input, result)
	return result, nil
}

// Names lists the registered functions in order.
func (c *Console) Names() []string {
	names := make([]string, 0, len(c.funcs))
	for n := range c.funcs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// parsePositive accepts a strictly positive decimal integer.
func parsePositive(input string) (uint64, bool) {
	n, err := strconv.ParseInt(input, 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return uint64(n), true
}

// parseFlag accepts "0" or "1".
func parseFlag(input string) (bool, bool) {
	switch input {
	case "0":
		return false, true
	case "1":
		return true, true
	}
	return false, false
}

func boolResult(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (c *Console) forceReset(input string) int {
	if input != "1" {
		return Invalid
	}
	return c.exec(func(ctl Controls) int {
		ctl.ForceReset()
		return 1
	})
}

func (c *Console) toggleDebug(input string) int {
	if input == Echo {
		return c.exec(func(ctl Controls) int { return boolResult(ctl.Verbose()) })
	}
	on, ok := parseFlag(input)
	if !ok {
		return Invalid
	}
	return c.exec(func(ctl Controls) int {
		ctl.SetVerbose(on)
		return boolResult(on)
	})
}

func (c *Console) autoCorrect(input string) int {
	if input == Echo {
		v, err := c.store.Get(config.KeyAutoCorrect)
		if err != nil {
			return c.exec(func(ctl Controls) int { return boolResult(ctl.AutoCorrectEnabled()) })
		}
		return boolResult(v == "1")
	}
	on, ok := parseFlag(input)
	if !ok {
		return Invalid
	}
	if err := c.store.Put(config.KeyAutoCorrect, input); err != nil {
		monitoring.Warnf("console: persist auto-correct: %v", err)
		return Invalid
	}
	return c.exec(func(ctl Controls) int {
		ctl.SetAutoCorrectEnabled(on)
		return boolResult(on)
	})
}

// update validates the modified thresholds, persists key and applies them.
// The read and the write happen in one exec so a tick in between cannot
// overwrite a concurrent change such as an auto-correct retune.
func (c *Console) update(key string, stored uint64, modify func(*config.Thresholds)) int {
	return c.exec(func(ctl Controls) int {
		next := ctl.Thresholds()
		modify(&next)
		if err := next.Validate(); err != nil {
			return Invalid
		}
		if err := config.PutUint(c.store, key, stored); err != nil {
			monitoring.Warnf("console: persist %s: %v", key, err)
			return Invalid
		}
		if err := ctl.SetThresholds(next); err != nil {
			return Invalid
		}
		return 0
	})
}

func (c *Console) echo(key string, div uint64) int {
	v, err := config.GetUint(c.store, key)
	if err != nil {
		monitoring.Warnf("console: read %s: %v", key, err)
		return Invalid
	}
	return int(v / div)
}

func (c *Console) radarThreshold(key string, set func(*config.Thresholds, float64)) Func {
	return func(input string) int {
		if input == Echo {
			return c.echo(key, 1)
		}
		v, ok := parsePositive(input)
		if !ok || v > math.MaxInt32 {
			return Invalid
		}
		if c.update(key, v, func(t *config.Thresholds) { set(t, float64(v)) }) == Invalid {
			return Invalid
		}
		return int(v)
	}
}

// timer takes seconds and stores milliseconds.
func (c *Console) timer(key string, set func(*config.Thresholds, uint32)) Func {
	return func(input string) int {
		if input == Echo {
			return c.echo(key, 1000)
		}
		secs, ok := parsePositive(input)
		if !ok || secs > math.MaxUint32/1000 {
			return Invalid
		}
		ms := secs * 1000
		if c.update(key, ms, func(t *config.Thresholds) { set(t, uint32(ms)) }) == Invalid {
			return Invalid
		}
		return int(secs)
	}
}

// doorID echoes or sets the door sensor ID and returns it as a 24-bit integer.
func (c *Console) doorID(input string) int {
	if input == Echo {
		raw, err := c.store.Get(config.KeyDoorDeviceID)
		if err != nil {
			return Invalid
		}
		id, err := door.ParseDeviceID(raw)
		if err != nil {
			return Invalid
		}
		return int(id.Uint())
	}
	id, err := door.ParseDeviceID(input)
	if err != nil {
		return Invalid
	}
	if err := c.store.Put(config.KeyDoorDeviceID, id.String()); err != nil {
		monitoring.Warnf("console: persist door id: %v", err)
		return Invalid
	}
	if c.door != nil {
		c.door.SetDeviceID(id)
	}
	return int(id.Uint())
}

func (c *Console) resetMonitoring(input string) int {
	if input != "1" {
		return Invalid
	}
	return c.exec(func(ctl Controls) int {
		if err := ctl.ResetMonitoring(); err != nil {
			return Invalid
		}
		return 1
	})
}

func (c *Console) resetSession(input string) int {
	if input != "1" {
		return Invalid
	}
	return c.exec(func(ctl Controls) int {
		ctl.ResetSession()
		return 1
	})
}
