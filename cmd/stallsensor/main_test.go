package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/stallsensor/internal/config"
	"github.com/banshee-data/stallsensor/internal/console"
	"github.com/banshee-data/stallsensor/internal/door"
	"github.com/banshee-data/stallsensor/internal/monitoring"
	"github.com/banshee-data/stallsensor/internal/occupancy"
	"github.com/banshee-data/stallsensor/internal/radar"
	"github.com/banshee-data/stallsensor/internal/serialport"
	"github.com/banshee-data/stallsensor/internal/timeutil"
	"github.com/banshee-data/stallsensor/internal/watchdog"
)

// TestFlagDefaults verifies the flags exist with the expected defaults.
func TestFlagDefaults(t *testing.T) {
	assert.Equal(t, ":8080", *listen)
	assert.False(t, *devMode)
	assert.Equal(t, serialport.DefaultBaudRate, *baudRate)
	assert.Equal(t, watchdog.DefaultPeriod, *watchdogDur)
	assert.Empty(t, *mqttBroker, "telemetry must not need a broker by default")
	assert.Equal(t, 1, *mqttQoS)
}

func TestLoadDoorID(t *testing.T) {
	monitoring.SetLogger(nil)

	t.Run("seeds default", func(t *testing.T) {
		s := config.NewMemStore()
		id, err := loadDoorID(s, "")
		require.NoError(t, err)
		assert.Equal(t, door.DefaultDeviceID, id)
		v, err := s.Get(config.KeyDoorDeviceID)
		require.NoError(t, err)
		assert.Equal(t, "AA,AA,AA", v)
	})

	t.Run("override persisted", func(t *testing.T) {
		s := config.NewMemStore()
		id, err := loadDoorID(s, "12:34:56")
		require.NoError(t, err)
		assert.Equal(t, door.DeviceID{0x12, 0x34, 0x56}, id)
		v, _ := s.Get(config.KeyDoorDeviceID)
		assert.Equal(t, "12,34,56", v)
	})

	t.Run("bad override", func(t *testing.T) {
		_, err := loadDoorID(config.NewMemStore(), "nope")
		assert.True(t, errors.Is(err, door.ErrInvalidDeviceID))
	})

	t.Run("corrupt stored value falls back", func(t *testing.T) {
		s := config.NewMemStore()
		require.NoError(t, s.Put(config.KeyDoorDeviceID, "zz"))
		id, err := loadDoorID(s, "")
		require.NoError(t, err)
		assert.Equal(t, door.DefaultDeviceID, id)
	})
}

func TestTakeResetReason(t *testing.T) {
	s := config.NewMemStore()

	reason, err := takeResetReason(s)
	require.NoError(t, err)
	assert.Equal(t, "UNKNOWN", reason)

	require.NoError(t, s.Put(config.KeyResetReason, "USER"))
	reason, err = takeResetReason(s)
	require.NoError(t, err)
	assert.Equal(t, "USER", reason)

	// Reported once: the next boot sees UNKNOWN unless something records a
	// new reason.
	v, _ := s.Get(config.KeyResetReason)
	assert.Equal(t, "UNKNOWN", v)
}

func TestTuningConversions(t *testing.T) {
	empty := &config.TuningConfig{}
	assert.Equal(t, radar.DefaultProcessorConfig(), processorConfig(empty))
	assert.NoError(t, autocorrectConfig(empty).Validate())
	assert.Equal(t, uint32(30000), autocorrectConfig(empty).UpdateInterval)
	assert.Equal(t, uint32(occupancy.DefaultHeartbeatInterval), durationMillis(empty.GetHeartbeatInterval()))
	assert.Equal(t, uint32(occupancy.DefaultDebugInterval), durationMillis(empty.GetDebugInterval()))
	assert.Equal(t, uint32(occupancy.DefaultDebugTimeout), durationMillis(empty.GetDebugTimeout()))
}

func TestDefaultTuningFileMatchesBuiltins(t *testing.T) {
	tc, err := config.LoadTuningConfig(filepath.Join("..", "..", config.DefaultConfigPath))
	require.NoError(t, err)
	empty := &config.TuningConfig{}
	assert.Equal(t, processorConfig(empty), processorConfig(tc))
	assert.Equal(t, autocorrectConfig(empty), autocorrectConfig(tc))
	assert.Equal(t, empty.GetTickInterval(), tc.GetTickInterval())
}

func TestDoorSource(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	id := door.DeviceID{1, 2, 3}

	src, err := doorSource(false, "", id, clock)
	require.NoError(t, err)
	assert.IsType(t, &door.BluetoothSource{}, src)

	src, err = doorSource(true, "", id, clock)
	require.NoError(t, err)
	replay, ok := src.(*door.ReplaySource)
	require.True(t, ok)
	assert.True(t, id.Matches(replay.Address))
	assert.Equal(t, door.DevReplay(), replay.Events)

	path := filepath.Join(t.TempDir(), "fixture.txt")
	require.NoError(t, os.WriteFile(path, []byte("# one event\n1s 00 05\n"), 0o644))
	src, err = doorSource(true, path, id, clock)
	require.NoError(t, err)
	assert.Equal(t, []door.ReplayEvent{{Delay: time.Second, Status: 0x00, Sequence: 0x05}},
		src.(*door.ReplaySource).Events)

	_, err = doorSource(true, filepath.Join(t.TempDir(), "missing.txt"), id, clock)
	assert.Error(t, err)
}

func TestConsoleExec_EngineUnavailable(t *testing.T) {
	monitoring.SetLogger(nil)
	// A runner that never runs cannot answer.
	r := occupancy.NewRunner(nil, timeutil.NewMockClock(time.Unix(0, 0)), 0)
	exec := consoleExec(r, 10*time.Millisecond)
	called := false
	got := exec(func(console.Controls) int {
		called = true
		return 1
	})
	assert.Equal(t, console.Invalid, got)
	assert.False(t, called)
}
