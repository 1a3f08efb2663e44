package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tuning.json")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestEmptyConfigDefaults(t *testing.T) {
	cfg := EmptyTuningConfig()

	if got := cfg.GetMinWindowSamples(); got != 16 {
		t.Errorf("GetMinWindowSamples() = %d, want 16", got)
	}
	if got := cfg.GetSpikeSigma(); got != 2.0 {
		t.Errorf("GetSpikeSigma() = %f, want 2.0", got)
	}
	if got := cfg.GetCacheTTL(); got != 5*time.Minute {
		t.Errorf("GetCacheTTL() = %v, want 5m", got)
	}
	if got := cfg.GetKeyPrecision(); got != 4 {
		t.Errorf("GetKeyPrecision() = %d, want 4", got)
	}

	sum := cfg.GetWeightVariance() + cfg.GetWeightSpikes() + cfg.GetWeightJerk() +
		cfg.GetWeightFrequency() + cfg.GetWeightKurtosis()
	if sum < 0.999 || sum > 1.001 {
		t.Errorf("default weights sum to %f, want 1", sum)
	}
}

func TestLoadPartialConfig(t *testing.T) {
	path := writeConfig(t, `{"queue_capacity": 32, "cache_ttl": "90s"}`)

	cfg, err := LoadTuningConfig(path)
	if err != nil {
		t.Fatalf("LoadTuningConfig() error: %v", err)
	}
	if got := cfg.GetQueueCapacity(); got != 32 {
		t.Errorf("GetQueueCapacity() = %d, want 32", got)
	}
	if got := cfg.GetCacheTTL(); got != 90*time.Second {
		t.Errorf("GetCacheTTL() = %v, want 90s", got)
	}
	// Untouched fields keep defaults.
	if got := cfg.GetWorkerCount(); got != 4 {
		t.Errorf("GetWorkerCount() = %d, want 4", got)
	}
}

func TestLoadRejectsNonJSONExtension(t *testing.T) {
	if _, err := LoadTuningConfig("tuning.yaml"); err == nil {
		t.Fatal("expected error for non-.json extension")
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name     string
		contents string
		wantSub  string
	}{
		{"negative queue", `{"queue_capacity": 0}`, "queue_capacity"},
		{"bad ttl", `{"cache_ttl": "soon"}`, "cache_ttl"},
		{"weights off unity", `{"weight_variance": 0.9, "weight_spikes": 0.9, "weight_jerk": 0.1, "weight_frequency": 0.05, "weight_kurtosis": 0.05}`, "sum to 1"},
		{"inverted thresholds", `{"good_threshold": 30, "fair_threshold": 50}`, "thresholds"},
		{"precision out of range", `{"key_precision": 12}`, "key_precision"},
		{"tiny window", `{"min_window_samples": 1}`, "min_window_samples"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.contents)
			_, err := LoadTuningConfig(path)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("error %q does not mention %q", err, tt.wantSub)
			}
		})
	}
}

func TestValidatePartialWeightOverride(t *testing.T) {
	// Overriding a single weight must not trip the unity check; the
	// scorer re-normalizes at construction.
	cfg := &TuningConfig{WeightVariance: ptrFloat64(0.4)}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
}

func TestValidateDirectOverrides(t *testing.T) {
	// Configs built in code rather than loaded from JSON go through the
	// same validation and accessors.
	cfg := &TuningConfig{
		QueueCapacity: ptrInt(64),
		WorkerCount:   ptrInt(8),
		CacheTTL:      ptrString("2m"),
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	if got := cfg.GetQueueCapacity(); got != 64 {
		t.Errorf("GetQueueCapacity() = %d, want 64", got)
	}
	if got := cfg.GetWorkerCount(); got != 8 {
		t.Errorf("GetWorkerCount() = %d, want 8", got)
	}
	if got := cfg.GetCacheTTL(); got != 2*time.Minute {
		t.Errorf("GetCacheTTL() = %v, want 2m", got)
	}

	if err := (&TuningConfig{WorkerCount: ptrInt(0)}).Validate(); err == nil {
		t.Error("Validate() accepted zero worker_count")
	}
	if err := (&TuningConfig{CacheTTL: ptrString("never")}).Validate(); err == nil {
		t.Error("Validate() accepted unparseable cache_ttl")
	}
}

func TestMustLoadDefaultConfig(t *testing.T) {
	cfg := MustLoadDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults file failed validation: %v", err)
	}
	if got := cfg.GetGoodThreshold(); got != 80 {
		t.Errorf("GetGoodThreshold() = %f, want 80", got)
	}
}
