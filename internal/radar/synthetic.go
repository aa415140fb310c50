package radar

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"github.com/banshee-data/stallsensor/internal/timeutil"
)

// FrameSink accepts raw bytes as if they arrived on the radar UART.
type FrameSink interface {
	AddReadData(data []byte)
}

// Profile returns the movement amplitude to synthesize at elapsed.
type Profile func(elapsed time.Duration) float64

// DefaultProfile cycles through an empty room, an active occupant and a
// still occupant, eight minutes each.
func DefaultProfile(elapsed time.Duration) float64 {
	switch (elapsed / (8 * time.Minute)) % 3 {
	case 1:
		return 180
	case 2:
		return 12
	default:
		return 3
	}
}

// Synthesizer writes frames for dev mode.
type Synthesizer struct {
	Sink    FrameSink
	Clock   timeutil.Clock
	Period  time.Duration
	Profile Profile
}

// Run emits one frame per Period until ctx is done.
func (s *Synthesizer) Run(ctx context.Context) error {
	profile := s.Profile
	if profile == nil {
		profile = DefaultProfile
	}
	start := s.Clock.Now()
	ticker := s.Clock.NewTicker(s.Period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C():
			amp := profile(now.Sub(start))
			phase := rand.Float64() * 2 * math.Pi
			i := int16(amp*math.Cos(phase) + rand.NormFloat64())
			q := int16(amp*math.Sin(phase) + rand.NormFloat64())
			s.Sink.AddReadData(EncodeFrame(i, q))
		}
	}
}
