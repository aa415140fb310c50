package radar

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/stallsensor/internal/metrics"
)

// Reading is the filtered radar output. It is sticky: Poll keeps returning
// the last reading until a new sample makes it through every stage.
type Reading struct {
	IAverage  float64 `json:"i_average"`
	QAverage  float64 `json:"q_average"`
	Magnitude float64 `json:"magnitude"`
	Timestamp uint32  `json:"timestamp"`
}

// ProcessorConfig sizes the filter stages.
type ProcessorConfig struct {
	QuartileWindow   int     // samples of history for the IQR bands
	QuartileInterval int     // samples between band recomputations
	IQRMultiplier    float64 // band half-width beyond Q1/Q3 in IQRs
	MedianWindow     int
	AverageWindow    int
}

// DefaultProcessorConfig returns the stage sizes tuned for the INS radar.
func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		QuartileWindow:   50,
		QuartileInterval: 10,
		IQRMultiplier:    1.5,
		MedianWindow:     5,
		AverageWindow:    25,
	}
}

// Validate rejects stage sizes that cannot produce output.
func (c ProcessorConfig) Validate() error {
	if c.QuartileWindow < 4 {
		return fmt.Errorf("quartile window must be at least 4, got %d", c.QuartileWindow)
	}
	if c.QuartileInterval < 1 {
		return fmt.Errorf("quartile interval must be positive, got %d", c.QuartileInterval)
	}
	if c.IQRMultiplier <= 0 {
		return fmt.Errorf("iqr multiplier must be positive, got %g", c.IQRMultiplier)
	}
	if c.MedianWindow < 1 || c.AverageWindow < 1 {
		return fmt.Errorf("median and average windows must be positive, got %d and %d", c.MedianWindow, c.AverageWindow)
	}
	return nil
}

// Band is an inclusive acceptance interval on a sample component.
type Band struct {
	Low, High float64
}

func (b Band) contains(v float64) bool {
	return v >= b.Low && v <= b.High
}

// channel carries one of the I or Q components through the outlier, median
// and average stages.
type channel struct {
	history *ring
	band    Band
	median  *ring
	average *movingAverage
}

func newChannel(cfg ProcessorConfig) *channel {
	return &channel{
		history: newRing(cfg.QuartileWindow),
		median:  newRing(cfg.MedianWindow),
		average: newMovingAverage(cfg.AverageWindow),
	}
}

func (c *channel) recomputeBand(k float64) {
	sorted := c.history.slice()
	sort.Float64s(sorted)
	q1 := stat.Quantile(0.25, stat.Empirical, sorted, nil)
	q3 := stat.Quantile(0.75, stat.Empirical, sorted, nil)
	iqr := q3 - q1
	c.band = Band{Low: q1 - k*iqr, High: q3 + k*iqr}
}

// filter runs v through the median and average stages.
func (c *channel) filter(v float64) (float64, bool) {
	c.median.push(v)
	if c.median.len() < len(c.median.data) {
		return 0, false
	}
	sorted := c.median.slice()
	sort.Float64s(sorted)
	return c.average.add(stat.Quantile(0.5, stat.Empirical, sorted, nil))
}

// Processor turns raw samples into filtered readings. It is owned by the
// tick loop and is not safe for concurrent use.
type Processor struct {
	cfg     ProcessorConfig
	samples <-chan Sample
	metrics *metrics.Metrics

	i, q          *channel
	bandsReady    bool
	sinceQuartile int

	reading Reading
}

// NewProcessor returns a processor draining samples.
func NewProcessor(samples <-chan Sample, cfg ProcessorConfig, m *metrics.Metrics) (*Processor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Processor{
		cfg:     cfg,
		samples: samples,
		metrics: m,
		i:       newChannel(cfg),
		q:       newChannel(cfg),
	}, nil
}

// Poll takes at most one queued sample without blocking and returns the
// latest reading. The filter windows therefore span ticks, not frames.
func (p *Processor) Poll(now uint32) Reading {
	select {
	case s := <-p.samples:
		p.Process(s, now)
	default:
	}
	return p.reading
}

// Process runs one sample through the pipeline and reports whether it
// produced a new reading.
func (p *Processor) Process(s Sample, now uint32) bool {
	if !s.Valid {
		return false
	}
	ai := math.Abs(float64(s.InPhase))
	aq := math.Abs(float64(s.Quadrature))

	if p.bandsReady && (!p.i.band.contains(ai) || !p.q.band.contains(aq)) {
		p.metrics.RadarOutlier()
		return false
	}

	// Only accepted samples enter the quartile history and count towards
	// the next band recomputation.
	p.i.history.push(ai)
	p.q.history.push(aq)
	p.sinceQuartile++
	if p.i.history.full && p.sinceQuartile >= p.cfg.QuartileInterval {
		p.i.recomputeBand(p.cfg.IQRMultiplier)
		p.q.recomputeBand(p.cfg.IQRMultiplier)
		p.bandsReady = true
		p.sinceQuartile = 0
	}

	iAvg, iok := p.i.filter(ai)
	qAvg, qok := p.q.filter(aq)
	if !iok || !qok {
		return false
	}
	p.reading = Reading{
		IAverage:  iAvg,
		QAverage:  qAvg,
		Magnitude: math.Hypot(iAvg, qAvg),
		Timestamp: now,
	}
	p.metrics.ObserveMagnitude(p.reading.Magnitude)
	return true
}

// Reading returns the latest reading without polling.
func (p *Processor) Reading() Reading {
	return p.reading
}

// Bands returns the current I and Q acceptance bands. ok is false until the
// quartile history has filled once.
func (p *Processor) Bands() (i, q Band, ok bool) {
	return p.i.band, p.q.band, p.bandsReady
}
