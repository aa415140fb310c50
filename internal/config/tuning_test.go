package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestEmptyTuningConfigDefaults(t *testing.T) {
	cfg := &TuningConfig{}

	if got := cfg.GetQuartileWindow(); got != 50 {
		t.Errorf("GetQuartileWindow() = %d, want 50", got)
	}
	if got := cfg.GetIQRMultiplier(); got != 1.5 {
		t.Errorf("GetIQRMultiplier() = %g, want 1.5", got)
	}
	if got := cfg.GetAverageWindow(); got != 25 {
		t.Errorf("GetAverageWindow() = %d, want 25", got)
	}
	if got := cfg.GetAutoCorrectInterval(); got != 30*time.Second {
		t.Errorf("GetAutoCorrectInterval() = %v, want 30s", got)
	}
	if got := cfg.GetHeartbeatInterval(); got != 11*time.Minute {
		t.Errorf("GetHeartbeatInterval() = %v, want 11m", got)
	}
	if got := cfg.GetDebugTimeout(); got != 8*time.Hour {
		t.Errorf("GetDebugTimeout() = %v, want 8h", got)
	}
}

func TestLoadDefaultsFile(t *testing.T) {
	cfg, err := LoadTuningConfig(filepath.Join("..", "..", DefaultConfigPath))
	if err != nil {
		t.Fatalf("LoadTuningConfig() error = %v", err)
	}
	if cfg.QuartileWindow == nil || *cfg.QuartileWindow != 50 {
		t.Errorf("QuartileWindow = %v, want 50", cfg.QuartileWindow)
	}
	if got := cfg.GetDebugInterval(); got != 1500*time.Millisecond {
		t.Errorf("GetDebugInterval() = %v, want 1.5s", got)
	}
	if got := cfg.GetTickInterval(); got != 50*time.Millisecond {
		t.Errorf("GetTickInterval() = %v, want 50ms", got)
	}
}

func TestLoadTuningConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "tuning.json")
	testJSON := `{
  "median_window": 7,
  "auto_correct_max": 80,
  "tick_interval": "20ms"
}`
	if err := os.WriteFile(configPath, []byte(testJSON), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := LoadTuningConfig(configPath)
	if err != nil {
		t.Fatalf("LoadTuningConfig() error = %v", err)
	}
	if got := cfg.GetMedianWindow(); got != 7 {
		t.Errorf("GetMedianWindow() = %d, want 7", got)
	}
	if got := cfg.GetAutoCorrectMax(); got != 80 {
		t.Errorf("GetAutoCorrectMax() = %g, want 80", got)
	}
	if got := cfg.GetTickInterval(); got != 20*time.Millisecond {
		t.Errorf("GetTickInterval() = %v, want 20ms", got)
	}
	// Omitted fields keep their defaults.
	if got := cfg.GetQuartileWindow(); got != 50 {
		t.Errorf("GetQuartileWindow() = %d, want 50", got)
	}
}

func TestLoadTuningConfig_Errors(t *testing.T) {
	tmpDir := t.TempDir()

	write := func(name, body string) string {
		p := filepath.Join(tmpDir, name)
		if err := os.WriteFile(p, []byte(body), 0644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
		return p
	}

	tests := []struct {
		name      string
		path      string
		wantInput bool
	}{
		{"extension", write("tuning.yaml", "{}"), false},
		{"missing", filepath.Join(tmpDir, "missing.json"), false},
		{"bad json", write("bad.json", "{"), false},
		{"negative window", write("neg.json", `{"median_window": -1}`), true},
		{"small quartile", write("q.json", `{"quartile_window": 3}`), true},
		{"bounds", write("bounds.json", `{"auto_correct_min": 60}`), true},
		{"duration", write("dur.json", `{"tick_interval": "soon"}`), true},
		{"zero duration", write("zero.json", `{"heartbeat_interval": "0s"}`), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadTuningConfig(tt.path)
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.wantInput && !errors.Is(err, ErrInvalidInput) {
				t.Errorf("error %v does not wrap ErrInvalidInput", err)
			}
		})
	}
}

func TestLoadTuningConfig_TooLarge(t *testing.T) {
	p := filepath.Join(t.TempDir(), "large.json")
	if err := os.WriteFile(p, make([]byte, 1024*1024+1), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadTuningConfig(p); err == nil {
		t.Error("expected size error")
	}
}
