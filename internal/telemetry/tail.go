package telemetry

import (
	crand "crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"tailscale.com/tsweb"

	"github.com/banshee-data/stallsensor/internal/httputil"
)

// tailBuffer is how many records a slow subscriber may fall behind before
// records are skipped for it.
const tailBuffer = 32

// Tail is a Publisher that copies every record to live subscribers, such as
// the /debug/telemetry-tail event stream. Publish never blocks; a subscriber
// whose buffer is full misses the record.
type Tail struct {
	mu     sync.Mutex
	subs   map[string]chan Record
	closed bool
}

// NewTail returns a tail with no subscribers.
func NewTail() *Tail {
	return &Tail{subs: make(map[string]chan Record)}
}

func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

// Subscribe registers a subscriber. The channel is closed by Unsubscribe or
// Close.
func (t *Tail) Subscribe() (string, <-chan Record) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := randomID()
	ch := make(chan Record, tailBuffer)
	if t.closed {
		close(ch)
		return id, ch
	}
	t.subs[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber. Unknown IDs are ignored.
func (t *Tail) Unsubscribe(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if ch, ok := t.subs[id]; ok {
		close(ch)
		delete(t.subs, id)
	}
}

// Subscribers returns the number of live subscribers.
func (t *Tail) Subscribers() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subs)
}

// Publish implements Publisher.
func (t *Tail) Publish(event, payload string) {
	rec := Record{Event: event, Payload: payload}
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, ch := range t.subs {
		select {
		case ch <- rec:
		default:
		}
	}
}

// Close ends every subscription.
func (t *Tail) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	for id, ch := range t.subs {
		close(ch)
		delete(t.subs, id)
	}
}

// AttachAdminRoutes serves published records as server-sent events.
func (t *Tail) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	debug.HandleFunc("telemetry-tail", "Live telemetry records (server-sent events)", t.handleTail)
}

func (t *Tail) handleTail(w http.ResponseWriter, r *http.Request) {
	if !httputil.Allow(w, r, http.MethodGet) {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.InternalServerError(w, "streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	id, ch := t.Subscribe()
	defer t.Unsubscribe(id)

	if _, err := w.Write([]byte(": ping\n\n")); err != nil {
		return
	}
	flusher.Flush()

	for {
		select {
		case rec, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(rec)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", Slug(rec.Event), data); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}
