// Package score maps extracted feature sets to a bounded road quality
// score and severity category. Scoring is deterministic and monotone:
// rougher features can only lower the score.
package score

import (
	"errors"
	"fmt"
	"math"

	"github.com/goodroad-data/roadscan/internal/config"
	"github.com/goodroad-data/roadscan/internal/signal"
)

// ErrInvalidFeature is returned when a feature set contains a non-finite
// value.
var ErrInvalidFeature = errors.New("score: non-finite feature value")

// Category is the severity classification derived from the quality score.
type Category string

const (
	CategoryGood   Category = "good"
	CategoryFair   Category = "fair"
	CategoryPoor   Category = "poor"
	CategorySevere Category = "severe"
)

// Weights are the relative contributions of each penalizing feature.
// They must sum to 1.
type Weights struct {
	Variance  float64
	Spikes    float64
	Jerk      float64
	Frequency float64
	Kurtosis  float64
}

// Scales are the half-saturation points of the normalizers: a feature
// equal to its scale contributes half of its weight to the penalty.
type Scales struct {
	Variance  float64
	Spikes    float64
	Jerk      float64
	Frequency float64
	Kurtosis  float64
}

// Thresholds are the category cut points on the 0-100 score.
type Thresholds struct {
	Good float64
	Fair float64
	Poor float64
}

// Scorer converts FeatureSets into (score, category) pairs.
type Scorer struct {
	weights    Weights
	scales     Scales
	thresholds Thresholds
}

// NewScorer builds a Scorer from explicit parameters. Weights are
// required to sum to 1 so the penalty stays in [0,1].
func NewScorer(w Weights, s Scales, t Thresholds) (*Scorer, error) {
	sum := w.Variance + w.Spikes + w.Jerk + w.Frequency + w.Kurtosis
	if sum < 0.999 || sum > 1.001 {
		return nil, fmt.Errorf("score weights must sum to 1, got %f", sum)
	}
	for name, v := range map[string]float64{
		"variance": s.Variance, "spikes": s.Spikes, "jerk": s.Jerk,
		"frequency": s.Frequency, "kurtosis": s.Kurtosis,
	} {
		if v <= 0 {
			return nil, fmt.Errorf("%s scale must be positive, got %f", name, v)
		}
	}
	if !(t.Good > t.Fair && t.Fair > t.Poor && t.Poor > 0) {
		return nil, fmt.Errorf("thresholds must satisfy good > fair > poor > 0, got %+v", t)
	}
	return &Scorer{weights: w, scales: s, thresholds: t}, nil
}

// NewScorerFromTuning builds a Scorer from a loaded tuning config.
func NewScorerFromTuning(cfg *config.TuningConfig) (*Scorer, error) {
	return NewScorer(
		Weights{
			Variance:  cfg.GetWeightVariance(),
			Spikes:    cfg.GetWeightSpikes(),
			Jerk:      cfg.GetWeightJerk(),
			Frequency: cfg.GetWeightFrequency(),
			Kurtosis:  cfg.GetWeightKurtosis(),
		},
		Scales{
			Variance:  cfg.GetVarianceScale(),
			Spikes:    cfg.GetSpikeScale(),
			Jerk:      cfg.GetJerkScale(),
			Frequency: cfg.GetFrequencyScale(),
			Kurtosis:  cfg.GetKurtosisScale(),
		},
		Thresholds{
			Good: cfg.GetGoodThreshold(),
			Fair: cfg.GetFairThreshold(),
			Poor: cfg.GetPoorThreshold(),
		},
	)
}

// Score returns the 0-100 quality score (100 = smoothest) and its
// severity category for a feature set.
func (s *Scorer) Score(fs signal.FeatureSet) (float64, Category, error) {
	if !fs.Finite() {
		return 0, "", fmt.Errorf("%w: %+v", ErrInvalidFeature, fs)
	}

	// Each normalizer is a saturating map v/(v+scale): zero for a flat
	// road, approaching one as the feature grows, strictly increasing
	// in between. The weighted sum is therefore a penalty in [0,1) that
	// never decreases when any feature worsens.
	penalty := s.weights.Variance*saturate(fs.Variance, s.scales.Variance) +
		s.weights.Spikes*saturate(float64(fs.SpikeCount), s.scales.Spikes) +
		s.weights.Jerk*saturate(fs.JerkRMS, s.scales.Jerk) +
		s.weights.Frequency*saturate(fs.DominantFreqMag, s.scales.Frequency) +
		s.weights.Kurtosis*saturate(math.Max(0, fs.Kurtosis), s.scales.Kurtosis)

	value := 100 * (1 - penalty)
	if value < 0 {
		value = 0
	} else if value > 100 {
		value = 100
	}

	return value, s.Categorize(value), nil
}

// Categorize maps a 0-100 score to its severity category.
func (s *Scorer) Categorize(value float64) Category {
	switch {
	case value >= s.thresholds.Good:
		return CategoryGood
	case value >= s.thresholds.Fair:
		return CategoryFair
	case value >= s.thresholds.Poor:
		return CategoryPoor
	default:
		return CategorySevere
	}
}

// saturate maps v >= 0 to [0,1) with half-saturation at scale. Negative
// inputs clamp to zero.
func saturate(v, scale float64) float64 {
	if v <= 0 {
		return 0
	}
	return v / (v + scale)
}

// Confidence estimates how trustworthy a feature set is, from 0 to 1.
// Longer windows and consistent (low-variance) signals raise it.
func Confidence(fs signal.FeatureSet) float64 {
	c := 0.5
	switch {
	case fs.SampleCount >= 50:
		c += 0.3
	case fs.SampleCount >= 20:
		c += 0.2
	case fs.SampleCount >= 10:
		c += 0.1
	}
	if fs.Variance >= 0 {
		c += 0.2 / (1 + fs.Variance)
	}
	if c > 1 {
		c = 1
	}
	return c
}
