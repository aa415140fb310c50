package door

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/stallsensor/internal/metrics"
)

func TestTracker_NoEventKeepsUnknown(t *testing.T) {
	tr := NewTracker(make(chan Event), nil)
	u := tr.Poll(100)
	assert.Equal(t, UnknownEvent, u.Event)
	assert.False(t, u.Fresh)
}

func TestTracker_OneEventPerPoll(t *testing.T) {
	events := make(chan Event, 4)
	events <- Event{Status: 0x00, Sequence: 1}
	events <- Event{Status: 0x02, Sequence: 2}
	tr := NewTracker(events, nil)

	assert.Equal(t, byte(1), tr.Poll(10).Event.Sequence)
	assert.Len(t, events, 1)
	assert.Equal(t, byte(2), tr.Poll(20).Event.Sequence)
	u := tr.Poll(30)
	assert.False(t, u.Fresh)
	assert.Equal(t, byte(2), u.Event.Sequence, "event is sticky")
}

func TestTracker_SequenceLoss(t *testing.T) {
	m, err := metrics.New(prometheus.NewRegistry())
	require.NoError(t, err)
	tr := NewTracker(nil, m)

	tr.Process(Event{Sequence: 0x10}, 1)
	u := tr.Process(Event{Sequence: 0x13}, 2)
	assert.True(t, u.Missed)
	assert.Equal(t, byte(0x10), u.Previous.Sequence)
	assert.Equal(t, byte(0x13), u.Event.Sequence)
	assert.Equal(t, 1, tr.Health().MissedEventCount)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.DoorMissed))

	assert.Equal(t, 1, tr.TakeMissed())
	assert.Equal(t, 0, tr.Health().MissedEventCount)
}

func TestTracker_NeverFlagsConsecutiveSequences(t *testing.T) {
	for prev := 0; prev < 256; prev++ {
		tr := NewTracker(nil, nil)
		tr.Process(Event{Sequence: byte(prev)}, 0)
		u := tr.Process(Event{Sequence: byte(prev + 1)}, 1)
		if u.Missed {
			t.Errorf("sequence %#02x -> %#02x flagged as loss", prev, byte(prev+1))
		}
		if !u.Fresh {
			t.Errorf("sequence %#02x -> %#02x not accepted", prev, byte(prev+1))
		}
	}
}

func TestTracker_WrapAndStale(t *testing.T) {
	tr := NewTracker(nil, nil)
	tr.Process(Event{Sequence: 0xFF}, 0)

	u := tr.Process(Event{Sequence: 0x00}, 1)
	assert.True(t, u.Fresh)
	assert.False(t, u.Missed)

	u = tr.Process(Event{Sequence: 0x00, Status: StatusOpen}, 2)
	assert.False(t, u.Fresh, "duplicate is ignored")
	assert.False(t, u.Event.Open(), "previous event retained")

	tr.Process(Event{Sequence: 0x05}, 3)
	u = tr.Process(Event{Sequence: 0x03}, 4)
	assert.False(t, u.Fresh)
	assert.False(t, u.Missed)
	assert.Equal(t, byte(0x05), u.Event.Sequence)
}

func TestTracker_FirstEventAccepted(t *testing.T) {
	tr := NewTracker(nil, nil)
	u := tr.Process(Event{Sequence: 0x99, Status: StatusOpen}, 5)
	assert.True(t, u.Fresh)
	assert.False(t, u.Missed)
	assert.True(t, tr.Current().Open())
	assert.Equal(t, uint32(5), tr.Current().Timestamp)
}

func TestTracker_CloseDetection(t *testing.T) {
	tr := NewTracker(nil, nil)

	// Closed heartbeat as first event does not mark a close.
	u := tr.Process(Event{Status: StatusHeartbeat, Sequence: 1}, 100)
	assert.False(t, u.Closed)
	assert.Equal(t, uint32(0), tr.Health().DoorClosedSince)
	assert.Equal(t, uint32(100), tr.Health().LastHeartbeatTime)

	tr.Process(Event{Status: StatusOpen, Sequence: 2}, 200)
	u = tr.Process(Event{Status: 0x00, Sequence: 3}, 300)
	assert.True(t, u.Closed)
	assert.Equal(t, uint32(300), tr.Health().DoorClosedSince)

	// Heartbeat while still closed keeps the original close time.
	u = tr.Process(Event{Status: StatusHeartbeat, Sequence: 4}, 400)
	assert.False(t, u.Closed)
	assert.Equal(t, uint32(300), tr.Health().DoorClosedSince)

	// Closed heartbeat right after open counts as a close.
	tr.Process(Event{Status: StatusOpen, Sequence: 5}, 500)
	u = tr.Process(Event{Status: StatusHeartbeat, Sequence: 6}, 600)
	assert.True(t, u.Closed)
	assert.Equal(t, uint32(600), tr.Health().DoorClosedSince)
}

func TestTracker_RepeatedCloseStillDetected(t *testing.T) {
	tr := NewTracker(nil, nil)
	tr.Process(Event{Status: 0x00, Sequence: 1}, 100)
	tr.Process(Event{Status: 0x00, Sequence: 2}, 200)

	u := tr.Process(Event{Status: 0x00, Sequence: 2}, 300)
	assert.False(t, u.Fresh)
	assert.True(t, u.Closed, "retransmitted close")
	assert.Equal(t, uint32(300), tr.Health().DoorClosedSince)
	assert.Equal(t, byte(2), tr.Current().Sequence)
	assert.Equal(t, uint32(200), tr.Current().Timestamp)

	u = tr.Process(Event{Status: StatusHeartbeat, Sequence: 1}, 400)
	assert.False(t, u.Closed, "stale closed heartbeat")
	assert.Equal(t, uint32(300), tr.Health().DoorClosedSince)
}

func TestTracker_RepeatedEventArmsMessageTrigger(t *testing.T) {
	tr := NewTracker(nil, nil)
	tr.Process(Event{Status: StatusOpen | StatusHeartbeat, Sequence: 7}, 1000)

	now := 1000 + MessageTriggerInterval
	u := tr.Process(Event{Status: StatusOpen | StatusHeartbeat | StatusLowBattery, Sequence: 7}, now)
	assert.False(t, u.Fresh)
	assert.True(t, tr.MessagePending())
	assert.Equal(t, 1, tr.Health().ConsecutiveOpenHeartbeats)
	assert.True(t, tr.Health().LowBattery)
	assert.Equal(t, now, tr.Health().LastHeartbeatTime)
}

func TestTracker_FlagsAndMessageTrigger(t *testing.T) {
	tr := NewTracker(nil, nil)

	tr.Process(Event{Status: StatusOpen | StatusHeartbeat | StatusLowBattery | StatusTamper, Sequence: 1}, 1000)
	h := tr.Health()
	assert.True(t, h.LowBattery)
	assert.True(t, h.Tampered)
	assert.False(t, tr.MessagePending(), "message within the first interval after boot")

	now := 1000 + MessageTriggerInterval
	tr.Process(Event{Status: StatusOpen | StatusHeartbeat, Sequence: 2}, now)
	assert.True(t, tr.MessagePending())
	assert.Equal(t, 1, tr.Health().ConsecutiveOpenHeartbeats)
	assert.False(t, tr.Health().LowBattery)

	tr.ClearMessagePending()
	tr.Process(Event{Status: StatusOpen | StatusHeartbeat, Sequence: 3}, now+1000)
	assert.False(t, tr.MessagePending(), "message soon after the previous one")

	tr.Process(Event{Status: StatusOpen | StatusHeartbeat, Sequence: 4}, now+1000+MessageTriggerInterval)
	assert.Equal(t, 2, tr.Health().ConsecutiveOpenHeartbeats)

	tr.Process(Event{Status: 0x00, Sequence: 5}, now+2000+MessageTriggerInterval)
	assert.Equal(t, 0, tr.Health().ConsecutiveOpenHeartbeats)
}
