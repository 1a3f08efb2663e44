package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the root configuration for tuning parameters.
// All fields are pointers so a partial JSON file can override a subset
// of values while the Get* accessors supply defaults for the rest.
type TuningConfig struct {
	// Feature extraction params
	MinWindowSamples *int     `json:"min_window_samples,omitempty"`
	SpikeSigma       *float64 `json:"spike_sigma,omitempty"`

	// Scoring weights (must sum to 1)
	WeightVariance  *float64 `json:"weight_variance,omitempty"`
	WeightSpikes    *float64 `json:"weight_spikes,omitempty"`
	WeightJerk      *float64 `json:"weight_jerk,omitempty"`
	WeightFrequency *float64 `json:"weight_frequency,omitempty"`
	WeightKurtosis  *float64 `json:"weight_kurtosis,omitempty"`

	// Scoring normalizer scales (half-saturation points)
	VarianceScale  *float64 `json:"variance_scale,omitempty"`
	SpikeScale     *float64 `json:"spike_scale,omitempty"`
	JerkScale      *float64 `json:"jerk_scale,omitempty"`
	FrequencyScale *float64 `json:"frequency_scale,omitempty"`
	KurtosisScale  *float64 `json:"kurtosis_scale,omitempty"`

	// Category cut points on the 0-100 quality score
	GoodThreshold *float64 `json:"good_threshold,omitempty"`
	FairThreshold *float64 `json:"fair_threshold,omitempty"`
	PoorThreshold *float64 `json:"poor_threshold,omitempty"`

	// Records below this confidence are not persisted
	ConfidenceFloor *float64 `json:"confidence_floor,omitempty"`

	// Ingestion params
	QueueCapacity *int `json:"queue_capacity,omitempty"`
	WorkerCount   *int `json:"worker_count,omitempty"`
	MaxBatchSize  *int `json:"max_batch_size,omitempty"`

	// Query/cache params
	CacheTTL       *string  `json:"cache_ttl,omitempty"` // duration string like "5m"
	KeyPrecision   *int     `json:"key_precision,omitempty"`
	MaxQueryRadius *float64 `json:"max_query_radius_meters,omitempty"`
	MaxQueryLimit  *int     `json:"max_query_limit,omitempty"`
	RangeScanCap   *int     `json:"range_scan_cap,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrInt(v int) *int             { return &v }
func ptrString(v string) *string    { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under
// the max file size. Fields omitted from the JSON file retain their
// default values, so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from
// DefaultConfigPath. It searches for the file in the current directory
// and common parent directories. Panics if the file cannot be loaded,
// intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath, // from internal/<pkg>/
		"../../../" + DefaultConfigPath,
		"../../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.MinWindowSamples != nil && *c.MinWindowSamples < 2 {
		return fmt.Errorf("min_window_samples must be at least 2, got %d", *c.MinWindowSamples)
	}
	if c.SpikeSigma != nil && *c.SpikeSigma <= 0 {
		return fmt.Errorf("spike_sigma must be positive, got %f", *c.SpikeSigma)
	}

	weights := map[string]*float64{
		"weight_variance":  c.WeightVariance,
		"weight_spikes":    c.WeightSpikes,
		"weight_jerk":      c.WeightJerk,
		"weight_frequency": c.WeightFrequency,
		"weight_kurtosis":  c.WeightKurtosis,
	}
	sum := 0.0
	for name, w := range weights {
		if w == nil {
			continue
		}
		if *w < 0 || *w > 1 {
			return fmt.Errorf("%s must be between 0 and 1, got %f", name, *w)
		}
		sum += *w
	}
	// Unity is only checked when the file overrides every weight; a
	// partial override mixes with defaults and is checked again at
	// scorer construction.
	allSet := c.WeightVariance != nil && c.WeightSpikes != nil && c.WeightJerk != nil &&
		c.WeightFrequency != nil && c.WeightKurtosis != nil
	if allSet && (sum < 0.999 || sum > 1.001) {
		return fmt.Errorf("score weights must sum to 1, got %f", sum)
	}

	for name, s := range map[string]*float64{
		"variance_scale":  c.VarianceScale,
		"spike_scale":     c.SpikeScale,
		"jerk_scale":      c.JerkScale,
		"frequency_scale": c.FrequencyScale,
		"kurtosis_scale":  c.KurtosisScale,
	} {
		if s != nil && *s <= 0 {
			return fmt.Errorf("%s must be positive, got %f", name, *s)
		}
	}

	good, fair, poor := c.GetGoodThreshold(), c.GetFairThreshold(), c.GetPoorThreshold()
	if !(good > fair && fair > poor && poor > 0 && good <= 100) {
		return fmt.Errorf("category thresholds must satisfy 0 < poor < fair < good <= 100, got %f/%f/%f", poor, fair, good)
	}

	if c.ConfidenceFloor != nil && (*c.ConfidenceFloor < 0 || *c.ConfidenceFloor > 1) {
		return fmt.Errorf("confidence_floor must be between 0 and 1, got %f", *c.ConfidenceFloor)
	}
	if c.QueueCapacity != nil && *c.QueueCapacity < 1 {
		return fmt.Errorf("queue_capacity must be at least 1, got %d", *c.QueueCapacity)
	}
	if c.WorkerCount != nil && *c.WorkerCount < 1 {
		return fmt.Errorf("worker_count must be at least 1, got %d", *c.WorkerCount)
	}
	if c.MaxBatchSize != nil && *c.MaxBatchSize < 1 {
		return fmt.Errorf("max_batch_size must be at least 1, got %d", *c.MaxBatchSize)
	}
	if c.CacheTTL != nil {
		if _, err := time.ParseDuration(*c.CacheTTL); err != nil {
			return fmt.Errorf("invalid cache_ttl %q: %w", *c.CacheTTL, err)
		}
	}
	if c.KeyPrecision != nil && (*c.KeyPrecision < 0 || *c.KeyPrecision > 8) {
		return fmt.Errorf("key_precision must be between 0 and 8, got %d", *c.KeyPrecision)
	}
	if c.MaxQueryRadius != nil && *c.MaxQueryRadius <= 0 {
		return fmt.Errorf("max_query_radius_meters must be positive, got %f", *c.MaxQueryRadius)
	}
	if c.MaxQueryLimit != nil && *c.MaxQueryLimit < 1 {
		return fmt.Errorf("max_query_limit must be at least 1, got %d", *c.MaxQueryLimit)
	}
	if c.RangeScanCap != nil && *c.RangeScanCap < 1 {
		return fmt.Errorf("range_scan_cap must be at least 1, got %d", *c.RangeScanCap)
	}

	return nil
}

// Accessors with fallback defaults. Defaults here mirror the values in
// config/tuning.defaults.json.

func (c *TuningConfig) GetMinWindowSamples() int {
	if c.MinWindowSamples != nil {
		return *c.MinWindowSamples
	}
	return 16
}

func (c *TuningConfig) GetSpikeSigma() float64 {
	if c.SpikeSigma != nil {
		return *c.SpikeSigma
	}
	return 2.0
}

func (c *TuningConfig) GetWeightVariance() float64 {
	if c.WeightVariance != nil {
		return *c.WeightVariance
	}
	return 0.30
}

func (c *TuningConfig) GetWeightSpikes() float64 {
	if c.WeightSpikes != nil {
		return *c.WeightSpikes
	}
	return 0.25
}

func (c *TuningConfig) GetWeightJerk() float64 {
	if c.WeightJerk != nil {
		return *c.WeightJerk
	}
	return 0.20
}

func (c *TuningConfig) GetWeightFrequency() float64 {
	if c.WeightFrequency != nil {
		return *c.WeightFrequency
	}
	return 0.15
}

func (c *TuningConfig) GetWeightKurtosis() float64 {
	if c.WeightKurtosis != nil {
		return *c.WeightKurtosis
	}
	return 0.10
}

func (c *TuningConfig) GetVarianceScale() float64 {
	if c.VarianceScale != nil {
		return *c.VarianceScale
	}
	return 0.5
}

func (c *TuningConfig) GetSpikeScale() float64 {
	if c.SpikeScale != nil {
		return *c.SpikeScale
	}
	return 3.0
}

func (c *TuningConfig) GetJerkScale() float64 {
	if c.JerkScale != nil {
		return *c.JerkScale
	}
	return 1.0
}

func (c *TuningConfig) GetFrequencyScale() float64 {
	if c.FrequencyScale != nil {
		return *c.FrequencyScale
	}
	return 1.0
}

func (c *TuningConfig) GetKurtosisScale() float64 {
	if c.KurtosisScale != nil {
		return *c.KurtosisScale
	}
	return 3.0
}

func (c *TuningConfig) GetGoodThreshold() float64 {
	if c.GoodThreshold != nil {
		return *c.GoodThreshold
	}
	return 80
}

func (c *TuningConfig) GetFairThreshold() float64 {
	if c.FairThreshold != nil {
		return *c.FairThreshold
	}
	return 50
}

func (c *TuningConfig) GetPoorThreshold() float64 {
	if c.PoorThreshold != nil {
		return *c.PoorThreshold
	}
	return 20
}

func (c *TuningConfig) GetConfidenceFloor() float64 {
	if c.ConfidenceFloor != nil {
		return *c.ConfidenceFloor
	}
	return 0.5
}

func (c *TuningConfig) GetQueueCapacity() int {
	if c.QueueCapacity != nil {
		return *c.QueueCapacity
	}
	return 256
}

func (c *TuningConfig) GetWorkerCount() int {
	if c.WorkerCount != nil {
		return *c.WorkerCount
	}
	return 4
}

func (c *TuningConfig) GetMaxBatchSize() int {
	if c.MaxBatchSize != nil {
		return *c.MaxBatchSize
	}
	return 1000
}

func (c *TuningConfig) GetCacheTTL() time.Duration {
	if c.CacheTTL != nil {
		if d, err := time.ParseDuration(*c.CacheTTL); err == nil {
			return d
		}
	}
	return 5 * time.Minute
}

func (c *TuningConfig) GetKeyPrecision() int {
	if c.KeyPrecision != nil {
		return *c.KeyPrecision
	}
	return 4
}

func (c *TuningConfig) GetMaxQueryRadius() float64 {
	if c.MaxQueryRadius != nil {
		return *c.MaxQueryRadius
	}
	return 50000
}

func (c *TuningConfig) GetMaxQueryLimit() int {
	if c.MaxQueryLimit != nil {
		return *c.MaxQueryLimit
	}
	return 200
}

func (c *TuningConfig) GetRangeScanCap() int {
	if c.RangeScanCap != nil {
		return *c.RangeScanCap
	}
	return 5000
}
