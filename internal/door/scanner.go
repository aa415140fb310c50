package door

import (
	"context"
	"sync"

	"github.com/banshee-data/stallsensor/internal/metrics"
	"github.com/banshee-data/stallsensor/internal/monitoring"
	"github.com/banshee-data/stallsensor/internal/timeutil"
)

// DefaultQueueSize is the capacity of the door event queue.
const DefaultQueueSize = 25

// Advertisement is a raw broadcast from any nearby device.
type Advertisement struct {
	Address          string
	ManufacturerData []byte
}

// Source delivers advertisements to fn until ctx is done.
type Source interface {
	Scan(ctx context.Context, fn func(Advertisement)) error
}

// Scanner filters advertisements down to the configured sensor, decodes them
// and queues the events for the tick loop. It drops events when the queue is
// full.
type Scanner struct {
	source  Source
	clock   timeutil.MilliClock
	metrics *metrics.Metrics
	queue   chan Event

	mu sync.RWMutex
	id DeviceID
}

// NewScanner returns a scanner for the sensor with the given ID.
func NewScanner(source Source, id DeviceID, capacity int, clock timeutil.MilliClock, m *metrics.Metrics) *Scanner {
	if capacity <= 0 {
		capacity = DefaultQueueSize
	}
	return &Scanner{
		source:  source,
		clock:   clock,
		metrics: m,
		queue:   make(chan Event, capacity),
		id:      id,
	}
}

// Events is the consumer side of the queue.
func (s *Scanner) Events() <-chan Event {
	return s.queue
}

// DeviceID returns the sensor currently listened for.
func (s *Scanner) DeviceID() DeviceID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id
}

// SetDeviceID switches to a different sensor.
func (s *Scanner) SetDeviceID(id DeviceID) {
	s.mu.Lock()
	s.id = id
	s.mu.Unlock()
	monitoring.Logf("door sensor id set to %s", id)
}

// Run scans until ctx is done.
func (s *Scanner) Run(ctx context.Context) error {
	return s.source.Scan(ctx, s.Handle)
}

// Handle processes one advertisement.
func (s *Scanner) Handle(adv Advertisement) {
	if !s.DeviceID().Matches(adv.Address) {
		return
	}
	ev, err := DecodeAdvertisement(adv.ManufacturerData)
	s.metrics.DoorAdvert(err == nil)
	if err != nil {
		monitoring.Warnf("door advertisement from %s: %v", adv.Address, err)
		return
	}
	ev.Timestamp = s.clock.Millis()
	select {
	case s.queue <- ev:
	default:
		s.metrics.DoorEventDropped()
	}
}
