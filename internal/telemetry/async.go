package telemetry

import (
	"context"
	"time"

	"github.com/banshee-data/stallsensor/internal/metrics"
	"github.com/banshee-data/stallsensor/internal/monitoring"
)

// Sink delivers one record, possibly blocking on I/O.
type Sink interface {
	Name() string
	Send(ctx context.Context, event, payload string) error
}

// DefaultQueueSize bounds the records waiting for a sink.
const DefaultQueueSize = 64

// sendTimeout bounds a single delivery.
const sendTimeout = 10 * time.Second

// Async decouples a Sink from the tick loop with a bounded queue. Publish
// never blocks; a full queue drops the newest record.
type Async struct {
	sink    Sink
	queue   chan Record
	metrics *metrics.Metrics
}

// NewAsync returns a publisher in front of sink. Run must be started to
// drain it.
func NewAsync(sink Sink, capacity int, m *metrics.Metrics) *Async {
	if capacity <= 0 {
		capacity = DefaultQueueSize
	}
	return &Async{sink: sink, queue: make(chan Record, capacity), metrics: m}
}

// Publish implements Publisher.
func (a *Async) Publish(event, payload string) {
	select {
	case a.queue <- Record{Event: event, Payload: payload}:
	default:
		a.metrics.PublishDrop()
		monitoring.Warnf("%s queue full, dropped %q", a.sink.Name(), event)
	}
}

// Run delivers queued records until ctx is done. Records still queued at
// cancellation are discarded.
func (a *Async) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case rec := <-a.queue:
			sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
			err := a.sink.Send(sendCtx, rec.Event, rec.Payload)
			cancel()
			a.metrics.Publish(a.sink.Name(), err)
			if err != nil {
				monitoring.Warnf("%s: publish %q: %v", a.sink.Name(), rec.Event, err)
			}
		}
	}
}

// LogSink writes records to the diagnostic log.
type LogSink struct{}

func (LogSink) Name() string { return "log" }

func (LogSink) Send(_ context.Context, event, payload string) error {
	monitoring.Logf("publish %s: %s", event, payload)
	return nil
}
