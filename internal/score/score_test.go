package score

import (
	"errors"
	"math"
	"testing"

	"github.com/goodroad-data/roadscan/internal/config"
	"github.com/goodroad-data/roadscan/internal/signal"
)

func defaultScorer(t *testing.T) *Scorer {
	t.Helper()
	s, err := NewScorerFromTuning(config.EmptyTuningConfig())
	if err != nil {
		t.Fatalf("NewScorerFromTuning() error: %v", err)
	}
	return s
}

func TestScoreSmoothRoad(t *testing.T) {
	s := defaultScorer(t)
	fs := signal.FeatureSet{
		Variance:   0.001,
		JerkRMS:    0.01,
		Smoothness: 0.99,
		SpikeCount: 0,
	}
	value, cat, err := s.Score(fs)
	if err != nil {
		t.Fatalf("Score() error: %v", err)
	}
	if value < 80 {
		t.Errorf("smooth road scored %f, want >= 80", value)
	}
	if cat != CategoryGood {
		t.Errorf("smooth road category = %q, want good", cat)
	}
}

func TestScoreRoughRoad(t *testing.T) {
	s := defaultScorer(t)
	fs := signal.FeatureSet{
		Variance:        6.0,
		Kurtosis:        9.0,
		SpikeCount:      12,
		JerkRMS:         4.0,
		DominantFreqMag: 3.0,
		Smoothness:      0.2,
	}
	value, cat, err := s.Score(fs)
	if err != nil {
		t.Fatalf("Score() error: %v", err)
	}
	if value >= 50 {
		t.Errorf("rough road scored %f, want < 50", value)
	}
	if cat != CategoryPoor && cat != CategorySevere {
		t.Errorf("rough road category = %q, want poor or severe", cat)
	}
}

func TestScoreDeterministic(t *testing.T) {
	s := defaultScorer(t)
	fs := signal.FeatureSet{Variance: 1.3, SpikeCount: 4, JerkRMS: 0.8, Kurtosis: 2.1, DominantFreqMag: 0.6}

	v1, c1, err := s.Score(fs)
	if err != nil {
		t.Fatal(err)
	}
	v2, c2, err := s.Score(fs)
	if err != nil {
		t.Fatal(err)
	}
	if v1 != v2 || c1 != c2 {
		t.Errorf("score not deterministic: (%f,%s) vs (%f,%s)", v1, c1, v2, c2)
	}
}

// Increasing variance or spike count (all else fixed) must never raise
// the score.
func TestScoreMonotone(t *testing.T) {
	s := defaultScorer(t)

	prev := math.Inf(1)
	for variance := 0.0; variance <= 10; variance += 0.25 {
		v, _, err := s.Score(signal.FeatureSet{Variance: variance, JerkRMS: 0.5, SpikeCount: 2})
		if err != nil {
			t.Fatal(err)
		}
		if v > prev {
			t.Fatalf("score increased with variance at %f: %f > %f", variance, v, prev)
		}
		prev = v
	}

	prev = math.Inf(1)
	for spikes := 0; spikes <= 30; spikes++ {
		v, _, err := s.Score(signal.FeatureSet{Variance: 0.5, JerkRMS: 0.5, SpikeCount: spikes})
		if err != nil {
			t.Fatal(err)
		}
		if v > prev {
			t.Fatalf("score increased with spike count at %d: %f > %f", spikes, v, prev)
		}
		prev = v
	}
}

func TestScoreRejectsNonFinite(t *testing.T) {
	s := defaultScorer(t)
	bad := []signal.FeatureSet{
		{Variance: math.NaN()},
		{JerkRMS: math.Inf(1)},
		{Kurtosis: math.Inf(-1)},
	}
	for _, fs := range bad {
		if _, _, err := s.Score(fs); !errors.Is(err, ErrInvalidFeature) {
			t.Errorf("Score(%+v) error = %v, want ErrInvalidFeature", fs, err)
		}
	}
}

func TestCategorize(t *testing.T) {
	s := defaultScorer(t)
	tests := []struct {
		value float64
		want  Category
	}{
		{100, CategoryGood},
		{80, CategoryGood},
		{79.9, CategoryFair},
		{50, CategoryFair},
		{49.9, CategoryPoor},
		{20, CategoryPoor},
		{19.9, CategorySevere},
		{0, CategorySevere},
	}
	for _, tt := range tests {
		if got := s.Categorize(tt.value); got != tt.want {
			t.Errorf("Categorize(%f) = %q, want %q", tt.value, got, tt.want)
		}
	}
}

func TestNewScorerRejectsBadWeights(t *testing.T) {
	_, err := NewScorer(
		Weights{Variance: 0.9, Spikes: 0.9},
		Scales{Variance: 1, Spikes: 1, Jerk: 1, Frequency: 1, Kurtosis: 1},
		Thresholds{Good: 80, Fair: 50, Poor: 20},
	)
	if err == nil {
		t.Fatal("expected error for weights not summing to 1")
	}
}

func TestConfidence(t *testing.T) {
	long := Confidence(signal.FeatureSet{SampleCount: 100, Variance: 0.1})
	short := Confidence(signal.FeatureSet{SampleCount: 16, Variance: 0.1})
	if long <= short {
		t.Errorf("longer window should raise confidence: %f vs %f", long, short)
	}

	noisy := Confidence(signal.FeatureSet{SampleCount: 100, Variance: 50})
	if noisy >= long {
		t.Errorf("high variance should lower confidence: %f vs %f", noisy, long)
	}

	if c := Confidence(signal.FeatureSet{SampleCount: 100, Variance: 0}); c > 1 {
		t.Errorf("confidence exceeds 1: %f", c)
	}
}
