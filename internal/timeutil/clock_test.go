package timeutil

import (
	"testing"
	"time"
)

func TestRealClock_Since(t *testing.T) {
	clock := RealClock{}
	past := time.Now().Add(-time.Second)
	if d := clock.Since(past); d < time.Second {
		t.Errorf("Since() returned %v, expected >= 1s", d)
	}
}

func TestRealClock_NewTicker(t *testing.T) {
	ticker := RealClock{}.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	select {
	case <-ticker.C():
	case <-time.After(time.Second):
		t.Error("ticker did not fire")
	}
}

func TestMockClock_TickerFiresOnAdvance(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := NewMockClock(start)
	ticker := clock.NewTicker(50 * time.Millisecond)

	clock.Advance(49 * time.Millisecond)
	select {
	case <-ticker.C():
		t.Fatal("ticker fired early")
	default:
	}

	clock.Advance(time.Millisecond)
	select {
	case got := <-ticker.C():
		if want := start.Add(50 * time.Millisecond); !got.Equal(want) {
			t.Errorf("tick = %v, want %v", got, want)
		}
	default:
		t.Fatal("ticker did not fire")
	}

	ticker.Stop()
	clock.Advance(time.Second)
	select {
	case <-ticker.C():
		t.Error("stopped ticker fired")
	default:
	}
}

func TestMockClock_SleepRecordsAndAdvances(t *testing.T) {
	start := time.Unix(0, 0)
	clock := NewMockClock(start)
	clock.Sleep(100 * time.Millisecond)
	clock.Sleep(time.Second)

	sleeps := clock.Sleeps()
	if len(sleeps) != 2 || sleeps[0] != 100*time.Millisecond || sleeps[1] != time.Second {
		t.Errorf("Sleeps() = %v", sleeps)
	}
	if got := clock.Since(start); got != 1100*time.Millisecond {
		t.Errorf("Since(start) = %v, want 1.1s", got)
	}
}

func TestMilliClock_FollowsClock(t *testing.T) {
	clock := NewMockClock(time.Unix(100, 0))
	ms := NewMilliClock(clock)
	if got := ms.Millis(); got != 0 {
		t.Fatalf("Millis() at start = %d, want 0", got)
	}
	clock.Advance(1500 * time.Millisecond)
	if got := ms.Millis(); got != 1500 {
		t.Errorf("Millis() = %d, want 1500", got)
	}
}

func TestMilliClock_Wraps(t *testing.T) {
	clock := NewMockClock(time.Unix(0, 0))
	ms := NewMilliClock(clock)
	clock.Advance(time.Duration(1<<32+5) * time.Millisecond)
	if got := ms.Millis(); got != 5 {
		t.Errorf("Millis() after wrap = %d, want 5", got)
	}
}

func TestElapsed_AcrossWrap(t *testing.T) {
	tests := []struct {
		name       string
		now, start uint32
		want       uint32
	}{
		{"no wrap", 5000, 1000, 4000},
		{"wrap", 100, 0xFFFFFF00, 356},
		{"equal", 42, 42, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Elapsed(tt.now, tt.start); got != tt.want {
				t.Errorf("Elapsed(%d, %d) = %d, want %d", tt.now, tt.start, got, tt.want)
			}
		})
	}
}

func TestManualMillis(t *testing.T) {
	m := NewManualMillis(0xFFFFFFF0)
	m.Advance(0x20)
	if got := m.Millis(); got != 0x10 {
		t.Errorf("Millis() = %#x, want 0x10", got)
	}
	m.Set(7)
	if got := m.Millis(); got != 7 {
		t.Errorf("Millis() = %d, want 7", got)
	}
}

func TestMockClock_SlowReaderDropsTicks(t *testing.T) {
	clock := NewMockClock(time.Unix(0, 0))
	ticker := clock.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for i := 0; i < 5; i++ {
		clock.Advance(10 * time.Millisecond)
	}
	got := <-ticker.C()
	if want := time.Unix(0, 0).Add(10 * time.Millisecond); !got.Equal(want) {
		t.Errorf("first pending tick = %v, want %v", got, want)
	}
	select {
	case <-ticker.C():
		t.Error("ticks queued behind a full channel")
	default:
	}
}
