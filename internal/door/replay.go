package door

import (
	"bufio"
	"context"
	_ "embed"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/stallsensor/internal/timeutil"
)

//go:embed testdata/dev_session.txt
var devFixture string

// ReplayEvent is one scripted advertisement, sent Delay after the previous.
type ReplayEvent struct {
	Delay    time.Duration
	Status   byte
	Sequence byte
}

// ParseReplay reads a fixture of "delay status sequence" lines, where delay is
// a Go duration and status and sequence are hex bytes. Blank lines and lines
// starting with '#' are ignored.
func ParseReplay(r io.Reader) ([]ReplayEvent, error) {
	var out []ReplayEvent
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		f := strings.Fields(text)
		if len(f) != 3 {
			return nil, fmt.Errorf("replay line %d: want 3 fields, got %d", line, len(f))
		}
		d, err := time.ParseDuration(f[0])
		if err != nil {
			return nil, fmt.Errorf("replay line %d: %w", line, err)
		}
		status, err := strconv.ParseUint(f[1], 16, 8)
		if err != nil {
			return nil, fmt.Errorf("replay line %d: status: %w", line, err)
		}
		seq, err := strconv.ParseUint(f[2], 16, 8)
		if err != nil {
			return nil, fmt.Errorf("replay line %d: sequence: %w", line, err)
		}
		out = append(out, ReplayEvent{Delay: d, Status: byte(status), Sequence: byte(seq)})
	}
	return out, sc.Err()
}

// DevReplay returns the built-in dev-mode fixture.
func DevReplay() []ReplayEvent {
	events, err := ParseReplay(strings.NewReader(devFixture))
	if err != nil {
		panic(err)
	}
	return events
}

// ReplaySource plays scripted events as advertisements from Address.
type ReplaySource struct {
	Address string
	Events  []ReplayEvent
	Clock   timeutil.Clock
	// Loop restarts the script after the last event. Sequence numbers
	// continue from the last one sent so the tracker sees no gap.
	Loop bool
}

// Scan implements Source.
func (r *ReplaySource) Scan(ctx context.Context, fn func(Advertisement)) error {
	var offset byte
	for {
		var last byte
		for _, ev := range r.Events {
			if err := r.wait(ctx, ev.Delay); err != nil {
				return nil
			}
			last = ev.Sequence + offset
			fn(Advertisement{
				Address:          r.Address,
				ManufacturerData: []byte{0x59, 0x00, 0x00, 0x00, 0x00, ev.Status, last},
			})
		}
		if !r.Loop || len(r.Events) == 0 {
			<-ctx.Done()
			return nil
		}
		offset = last + 1 - r.Events[0].Sequence
	}
}

func (r *ReplaySource) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := r.Clock.NewTicker(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C():
		return nil
	}
}
