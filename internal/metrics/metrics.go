// Package metrics provides the Prometheus metrics of the stall sensor.
package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "stallsensor"

// Metrics contains every collector exported by the sensor. All methods are
// safe on a nil receiver so components can run without metrics in tests.
type Metrics struct {
	RadarFrames        *prometheus.CounterVec
	RadarDropped       prometheus.Counter
	RadarOutliers      prometheus.Counter
	RadarMagnitude     prometheus.Gauge
	DoorAdverts        *prometheus.CounterVec
	DoorDropped        prometheus.Counter
	DoorMissed         prometheus.Counter
	State              prometheus.Gauge
	Transitions        *prometheus.CounterVec
	Alerts             *prometheus.CounterVec
	StillnessThreshold prometheus.Gauge
	Published          *prometheus.CounterVec
	PublishDropped     prometheus.Counter
	registry           *prometheus.Registry
}

// New creates the collectors and registers them on registry.
func New(registry *prometheus.Registry) (*Metrics, error) {
	m := &Metrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register stall sensor metrics: %w", err)
	}
	return m, nil
}

func (m *Metrics) initMetrics() {
	m.RadarFrames = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "radar_frames_total",
		Help:      "Radar frames decoded, by checksum result",
	}, []string{"result"})
	m.RadarDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "radar_samples_dropped_total",
		Help:      "Radar samples dropped because the queue was full",
	})
	m.RadarOutliers = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "radar_outliers_total",
		Help:      "Radar samples rejected by the interquartile range filter",
	})
	m.RadarMagnitude = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "radar_magnitude",
		Help:      "Latest filtered radar magnitude",
	})
	m.DoorAdverts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "door_adverts_total",
		Help:      "Door sensor advertisements from the configured device, by decode result",
	}, []string{"result"})
	m.DoorDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "door_events_dropped_total",
		Help:      "Door events dropped because the queue was full",
	})
	m.DoorMissed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "door_events_missed_total",
		Help:      "Door events inferred lost from sequence gaps",
	})
	m.State = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "occupancy_state",
		Help:      "Current occupancy state (0 idle, 1 initial countdown, 2 monitoring, 3 stillness)",
	})
	m.Transitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "occupancy_transitions_total",
		Help:      "Occupancy state transitions",
	}, []string{"from", "to"})
	m.Alerts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "occupancy_alerts_total",
		Help:      "Alerts raised, by kind",
	}, []string{"kind"})
	m.StillnessThreshold = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "stillness_threshold",
		Help:      "Active stillness threshold",
	})
	m.Published = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "telemetry_published_total",
		Help:      "Telemetry records handed to a sink, by sink and result",
	}, []string{"sink", "result"})
	m.PublishDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "telemetry_dropped_total",
		Help:      "Telemetry records dropped because a sink queue was full",
	})
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.RadarFrames, m.RadarDropped, m.RadarOutliers, m.RadarMagnitude,
		m.DoorAdverts, m.DoorDropped, m.DoorMissed,
		m.State, m.Transitions, m.Alerts, m.StillnessThreshold,
		m.Published, m.PublishDropped,
	}
}

// Describe implements the prometheus.Collector interface.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors() {
		c.Describe(ch)
	}
}

// Collect implements the prometheus.Collector interface.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors() {
		c.Collect(ch)
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RadarFrame counts a decoded frame.
func (m *Metrics) RadarFrame(valid bool) {
	if m == nil {
		return
	}
	if valid {
		m.RadarFrames.WithLabelValues("valid").Inc()
	} else {
		m.RadarFrames.WithLabelValues("invalid").Inc()
	}
}

// RadarSampleDropped counts a sample lost to a full queue.
func (m *Metrics) RadarSampleDropped() {
	if m == nil {
		return
	}
	m.RadarDropped.Inc()
}

// RadarOutlier counts a rejected sample.
func (m *Metrics) RadarOutlier() {
	if m == nil {
		return
	}
	m.RadarOutliers.Inc()
}

// ObserveMagnitude records the latest filtered magnitude.
func (m *Metrics) ObserveMagnitude(v float64) {
	if m == nil {
		return
	}
	m.RadarMagnitude.Set(v)
}

// DoorAdvert counts an advertisement from the configured sensor.
func (m *Metrics) DoorAdvert(decoded bool) {
	if m == nil {
		return
	}
	if decoded {
		m.DoorAdverts.WithLabelValues("decoded").Inc()
	} else {
		m.DoorAdverts.WithLabelValues("malformed").Inc()
	}
}

// DoorEventDropped counts an event lost to a full queue.
func (m *Metrics) DoorEventDropped() {
	if m == nil {
		return
	}
	m.DoorDropped.Inc()
}

// DoorEventsMissed adds n inferred lost events.
func (m *Metrics) DoorEventsMissed(n int) {
	if m == nil {
		return
	}
	m.DoorMissed.Add(float64(n))
}

// Transition records a state change.
func (m *Metrics) Transition(from, to string, state int) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(from, to).Inc()
	m.State.Set(float64(state))
}

// Alert counts a raised alert of the given kind.
func (m *Metrics) Alert(kind string) {
	if m == nil {
		return
	}
	m.Alerts.WithLabelValues(kind).Inc()
}

// SetStillnessThreshold records the active stillness threshold.
func (m *Metrics) SetStillnessThreshold(v float64) {
	if m == nil {
		return
	}
	m.StillnessThreshold.Set(v)
}

// Publish counts a record delivered to, or rejected by, sink.
func (m *Metrics) Publish(sink string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Published.WithLabelValues(sink, result).Inc()
}

// PublishDrop counts a record dropped before reaching its sink.
func (m *Metrics) PublishDrop() {
	if m == nil {
		return
	}
	m.PublishDropped.Inc()
}
