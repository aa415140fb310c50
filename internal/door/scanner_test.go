package door

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/banshee-data/stallsensor/internal/metrics"
	"github.com/banshee-data/stallsensor/internal/timeutil"
)

func advert(addr string, status, seq byte) Advertisement {
	return Advertisement{Address: addr, ManufacturerData: []byte{0x59, 0x00, 0, 0, 0, status, seq}}
}

func TestScanner_FiltersAndQueues(t *testing.T) {
	m, err := metrics.New(prometheus.NewRegistry())
	require.NoError(t, err)
	clock := timeutil.NewManualMillis(4242)
	id := DeviceID{0x01, 0x02, 0x03}
	s := NewScanner(nil, id, 2, clock, m)

	s.Handle(advert("11:22:33:01:02:03", StatusOpen, 1)) // wrong prefix
	s.Handle(advert("B8:7C:6F:01:02:03", StatusOpen, 1))
	s.Handle(Advertisement{Address: "80:FB:F1:01:02:03", ManufacturerData: []byte{1, 2}})
	s.Handle(advert("80:fb:f1:01:02:03", 0x00, 2))
	s.Handle(advert("80:FB:F1:01:02:03", 0x00, 3)) // queue full

	require.Len(t, s.Events(), 2)
	assert.Equal(t, Event{Status: StatusOpen, Sequence: 1, Timestamp: 4242}, <-s.Events())
	assert.Equal(t, byte(2), (<-s.Events()).Sequence)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DoorAdverts.WithLabelValues("malformed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DoorDropped))
}

func TestScanner_SetDeviceID(t *testing.T) {
	s := NewScanner(nil, DefaultDeviceID, 0, timeutil.NewManualMillis(0), nil)
	s.Handle(advert("B8:7C:6F:0A:0B:0C", 0, 1))
	assert.Empty(t, s.Events())

	s.SetDeviceID(DeviceID{0x0A, 0x0B, 0x0C})
	assert.Equal(t, DeviceID{0x0A, 0x0B, 0x0C}, s.DeviceID())
	s.Handle(advert("B8:7C:6F:0A:0B:0C", 0, 1))
	assert.Len(t, s.Events(), 1)
}

func TestParseReplay(t *testing.T) {
	events, err := ParseReplay(strings.NewReader("# comment\n\n1s 08 00\n250ms 0a ff\n"))
	require.NoError(t, err)
	assert.Equal(t, []ReplayEvent{
		{Delay: time.Second, Status: 0x08, Sequence: 0x00},
		{Delay: 250 * time.Millisecond, Status: 0x0A, Sequence: 0xFF},
	}, events)

	_, err = ParseReplay(strings.NewReader("1s 08\n"))
	assert.Error(t, err)
	_, err = ParseReplay(strings.NewReader("soon 08 00\n"))
	assert.Error(t, err)

	assert.NotEmpty(t, DevReplay())
}

func TestReplaySource_ScanLoopsWithoutGaps(t *testing.T) {
	defer goleak.VerifyNone(t)

	src := &ReplaySource{
		Address: "B8:7C:6F:AA:AA:AA",
		Events: []ReplayEvent{
			{Delay: time.Millisecond, Status: 0x08, Sequence: 0x10},
			{Delay: time.Millisecond, Status: 0x02, Sequence: 0x11},
		},
		Clock: timeutil.RealClock{},
		Loop:  true,
	}
	s := NewScanner(src, DefaultDeviceID, 8, timeutil.NewManualMillis(0), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	tr := NewTracker(s.Events(), nil)
	var seqs []byte
	deadline := time.After(time.Second)
	for len(seqs) < 5 {
		select {
		case ev := <-s.Events():
			u := tr.Process(ev, 0)
			assert.False(t, u.Missed)
			seqs = append(seqs, ev.Sequence)
		case <-deadline:
			t.Fatalf("received only %v", seqs)
		}
	}
	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, []byte{0x10, 0x11, 0x12, 0x13, 0x14}, seqs)
}
