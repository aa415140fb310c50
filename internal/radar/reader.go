package radar

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/banshee-data/stallsensor/internal/metrics"
	"github.com/banshee-data/stallsensor/internal/monitoring"
)

// DefaultQueueSize is the capacity of the radar sample queue.
const DefaultQueueSize = 128

// Reader pumps bytes from the radar port through a Decoder into a bounded
// queue. When the queue is full the newest sample is dropped; the reader
// never blocks on its consumer.
type Reader struct {
	port    io.Reader
	queue   chan Sample
	metrics *metrics.Metrics
	dec     Decoder
}

// NewReader returns a reader over port with a queue of the given capacity.
func NewReader(port io.Reader, capacity int, m *metrics.Metrics) *Reader {
	if capacity <= 0 {
		capacity = DefaultQueueSize
	}
	return &Reader{
		port:    port,
		queue:   make(chan Sample, capacity),
		metrics: m,
	}
}

// Samples is the consumer side of the queue.
func (r *Reader) Samples() <-chan Sample {
	return r.queue
}

// Run reads until ctx is done, the port reports io.EOF, or a read fails.
// Reads must be bounded by a port timeout (or the port closed) for
// cancellation to be observed.
func (r *Reader) Run(ctx context.Context) error {
	buf := make([]byte, 64)
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		n, err := r.port.Read(buf)
		for _, b := range buf[:n] {
			if s, ok := r.dec.Feed(b); ok {
				r.push(s)
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read radar port: %w", err)
		}
	}
}

func (r *Reader) push(s Sample) {
	r.metrics.RadarFrame(s.Valid)
	if !s.Valid {
		monitoring.Debugf("radar frame failed checksum")
	}
	select {
	case r.queue <- s:
	default:
		r.metrics.RadarSampleDropped()
	}
}
