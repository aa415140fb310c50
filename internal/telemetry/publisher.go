// Package telemetry delivers the engine's records to the outside world
// without ever blocking the tick loop.
package telemetry

import (
	"strings"
	"sync"
)

// Event names of the published records.
const (
	EventStateTransition = "State Transition"
	EventDurationAlert   = "Duration Alert"
	EventStillnessAlert  = "Stillness Alert"
	EventDoorOpened      = "Door Opened"
	EventDebugMessage    = "Debug Message"
	EventHeartbeat       = "Heartbeat"
	EventDoorWarning     = "Door Sensor Warning"
	EventReset           = "Reset"
)

// Publisher accepts a record for best-effort delivery. Implementations must
// return promptly.
type Publisher interface {
	Publish(event, payload string)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(event, payload string)

func (f PublisherFunc) Publish(event, payload string) { f(event, payload) }

// Fanout publishes every record to each publisher in turn.
type Fanout []Publisher

func (f Fanout) Publish(event, payload string) {
	for _, p := range f {
		p.Publish(event, payload)
	}
}

// Slug turns an event name into a topic segment, e.g. "Duration Alert" to
// "duration-alert".
func Slug(event string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(event)), " ", "-")
}

// Record is one captured publication.
type Record struct {
	Event   string `json:"event"`
	Payload string `json:"payload"`
}

// Recorder keeps every publication in memory. Tests use it to assert on
// emitted records.
type Recorder struct {
	mu      sync.Mutex
	records []Record
}

func (r *Recorder) Publish(event, payload string) {
	r.mu.Lock()
	r.records = append(r.records, Record{Event: event, Payload: payload})
	r.mu.Unlock()
}

// Records returns a copy of everything published so far.
func (r *Recorder) Records() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Record(nil), r.records...)
}

// Named returns the records published under event.
func (r *Recorder) Named(event string) []Record {
	var out []Record
	for _, rec := range r.Records() {
		if rec.Event == event {
			out = append(out, rec)
		}
	}
	return out
}

// Reset forgets all records.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.records = nil
	r.mu.Unlock()
}
