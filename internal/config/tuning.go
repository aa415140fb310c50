package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig holds the signal-processing and timing constants that operators
// rarely touch. Omitted fields fall back to the built-in defaults through the
// Get* methods, so partial files are safe.
type TuningConfig struct {
	// Radar filter stages
	QuartileWindow   *int     `json:"quartile_window,omitempty"`
	QuartileInterval *int     `json:"quartile_interval,omitempty"`
	IQRMultiplier    *float64 `json:"iqr_multiplier,omitempty"`
	MedianWindow     *int     `json:"median_window,omitempty"`
	AverageWindow    *int     `json:"average_window,omitempty"`
	RadarQueueSize   *int     `json:"radar_queue_size,omitempty"`
	DoorQueueSize    *int     `json:"door_queue_size,omitempty"`

	// Stillness threshold auto-correction
	AutoCorrectInterval   *string  `json:"auto_correct_interval,omitempty"` // duration string like "30s"
	AutoCorrectMultiplier *float64 `json:"auto_correct_multiplier,omitempty"`
	AutoCorrectMargin     *float64 `json:"auto_correct_margin,omitempty"`
	AutoCorrectMin        *float64 `json:"auto_correct_min,omitempty"`
	AutoCorrectMax        *float64 `json:"auto_correct_max,omitempty"`
	AutoCorrectMinSamples *int     `json:"auto_correct_min_samples,omitempty"`

	// Engine timing
	TickInterval      *string `json:"tick_interval,omitempty"`
	HeartbeatInterval *string `json:"heartbeat_interval,omitempty"`
	DebugInterval     *string `json:"debug_interval,omitempty"`
	DebugTimeout      *string `json:"debug_timeout,omitempty"`
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file must have a .json extension and be under 1MB.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &TuningConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	positiveInts := map[string]*int{
		"quartile_window":          c.QuartileWindow,
		"quartile_interval":        c.QuartileInterval,
		"median_window":            c.MedianWindow,
		"average_window":           c.AverageWindow,
		"radar_queue_size":         c.RadarQueueSize,
		"door_queue_size":          c.DoorQueueSize,
		"auto_correct_min_samples": c.AutoCorrectMinSamples,
	}
	for name, v := range positiveInts {
		if v != nil && *v <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %d", ErrInvalidInput, name, *v)
		}
	}
	if c.QuartileWindow != nil && *c.QuartileWindow < 4 {
		return fmt.Errorf("%w: quartile_window must be at least 4, got %d", ErrInvalidInput, *c.QuartileWindow)
	}

	positiveFloats := map[string]*float64{
		"iqr_multiplier":          c.IQRMultiplier,
		"auto_correct_multiplier": c.AutoCorrectMultiplier,
		"auto_correct_min":        c.AutoCorrectMin,
		"auto_correct_max":        c.AutoCorrectMax,
	}
	for name, v := range positiveFloats {
		if v != nil && *v <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %g", ErrInvalidInput, name, *v)
		}
	}
	if c.GetAutoCorrectMax() < c.GetAutoCorrectMin() {
		return fmt.Errorf("%w: auto_correct_max %g below auto_correct_min %g", ErrInvalidInput, c.GetAutoCorrectMax(), c.GetAutoCorrectMin())
	}
	if c.AutoCorrectMargin != nil && *c.AutoCorrectMargin < 0 {
		return fmt.Errorf("%w: auto_correct_margin must be non-negative, got %g", ErrInvalidInput, *c.AutoCorrectMargin)
	}

	durations := map[string]*string{
		"auto_correct_interval": c.AutoCorrectInterval,
		"tick_interval":         c.TickInterval,
		"heartbeat_interval":    c.HeartbeatInterval,
		"debug_interval":        c.DebugInterval,
		"debug_timeout":         c.DebugTimeout,
	}
	for name, v := range durations {
		if v == nil || *v == "" {
			continue
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("%w: invalid %s '%s': %v", ErrInvalidInput, name, *v, err)
		}
		if d <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %s", ErrInvalidInput, name, *v)
		}
	}
	return nil
}

func intOr(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}

func floatOr(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

func durationOr(p *string, def time.Duration) time.Duration {
	if p == nil || *p == "" {
		return def
	}
	d, err := time.ParseDuration(*p)
	if err != nil {
		return def
	}
	return d
}

func (c *TuningConfig) GetQuartileWindow() int {
	return intOr(c.QuartileWindow, 50)
}

func (c *TuningConfig) GetQuartileInterval() int {
	return intOr(c.QuartileInterval, 10)
}

func (c *TuningConfig) GetIQRMultiplier() float64 {
	return floatOr(c.IQRMultiplier, 1.5)
}

func (c *TuningConfig) GetMedianWindow() int {
	return intOr(c.MedianWindow, 5)
}

func (c *TuningConfig) GetAverageWindow() int {
	return intOr(c.AverageWindow, 25)
}

func (c *TuningConfig) GetRadarQueueSize() int {
	return intOr(c.RadarQueueSize, 128)
}

func (c *TuningConfig) GetDoorQueueSize() int {
	return intOr(c.DoorQueueSize, 25)
}

func (c *TuningConfig) GetAutoCorrectMargin() float64 {
	return floatOr(c.AutoCorrectMargin, 15)
}

func (c *TuningConfig) GetAutoCorrectMin() float64 {
	return floatOr(c.AutoCorrectMin, 10)
}

func (c *TuningConfig) GetAutoCorrectMax() float64 {
	return floatOr(c.AutoCorrectMax, 50)
}

func (c *TuningConfig) GetAutoCorrectMinSamples() int {
	return intOr(c.AutoCorrectMinSamples, 50)
}

func (c *TuningConfig) GetAutoCorrectMultiplier() float64 {
	return floatOr(c.AutoCorrectMultiplier, 2.0)
}

func (c *TuningConfig) GetAutoCorrectInterval() time.Duration {
	return durationOr(c.AutoCorrectInterval, 30*time.Second)
}

func (c *TuningConfig) GetTickInterval() time.Duration {
	return durationOr(c.TickInterval, 50*time.Millisecond)
}

func (c *TuningConfig) GetHeartbeatInterval() time.Duration {
	return durationOr(c.HeartbeatInterval, 11*time.Minute)
}

func (c *TuningConfig) GetDebugInterval() time.Duration {
	return durationOr(c.DebugInterval, 1500*time.Millisecond)
}

func (c *TuningConfig) GetDebugTimeout() time.Duration {
	return durationOr(c.DebugTimeout, 8*time.Hour)
}
