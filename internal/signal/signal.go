// Package signal turns windowed accelerometer batches into the fixed
// feature set consumed by the quality scorer. Extraction is deterministic:
// the same batch always yields the same FeatureSet.
package signal

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/stat"
)

// ErrInsufficientData is returned when a batch is too short for stable
// variance and spectral estimates.
var ErrInsufficientData = errors.New("signal: insufficient samples for feature extraction")

// DefaultMinWindow is the smallest batch the extractor accepts.
const DefaultMinWindow = 16

// DefaultSpikeSigma is the number of standard deviations above the mean
// absolute level at which a sample counts as a spike.
const DefaultSpikeSigma = 2.0

// Sample is one accelerometer reading, optionally georeferenced.
type Sample struct {
	TimestampMs int64    `json:"timestamp"`
	X           float64  `json:"x"`
	Y           float64  `json:"y"`
	Z           float64  `json:"z"`
	Lat         *float64 `json:"latitude,omitempty"`
	Lon         *float64 `json:"longitude,omitempty"`
	Speed       *float64 `json:"speed,omitempty"`
}

// Magnitude returns the triaxial acceleration magnitude.
func (s Sample) Magnitude() float64 {
	return math.Sqrt(s.X*s.X + s.Y*s.Y + s.Z*s.Z)
}

// Batch is a time-ordered run of samples from one device session.
type Batch struct {
	SessionID string   `json:"sessionId"`
	Samples   []Sample `json:"samples"`
}

// LastPosition returns the most recent georeferenced sample's coordinates.
// ok is false when no sample carries a position.
func (b Batch) LastPosition() (lat, lon float64, ok bool) {
	for i := len(b.Samples) - 1; i >= 0; i-- {
		s := b.Samples[i]
		if s.Lat != nil && s.Lon != nil {
			return *s.Lat, *s.Lon, true
		}
	}
	return 0, 0, false
}

// FeatureSet holds the derived statistics for one batch. Fields are
// packed verbatim from extraction; normalization belongs to the scorer.
type FeatureSet struct {
	Variance        float64 `json:"variance"`
	Skewness        float64 `json:"skewness"`
	Kurtosis        float64 `json:"kurtosis"`
	DominantFreqHz  float64 `json:"dominant_freq_hz"`
	DominantFreqMag float64 `json:"dominant_freq_mag"`
	SpikeCount      int     `json:"spike_count"`
	JerkRMS         float64 `json:"jerk_rms"`
	Smoothness      float64 `json:"smoothness"`
	SampleCount     int     `json:"sample_count"`
}

// Finite reports whether every feature value is a finite number.
func (f FeatureSet) Finite() bool {
	for _, v := range []float64{
		f.Variance, f.Skewness, f.Kurtosis,
		f.DominantFreqHz, f.DominantFreqMag,
		f.JerkRMS, f.Smoothness,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Extractor computes FeatureSets from batches.
type Extractor struct {
	MinWindow  int
	SpikeSigma float64
}

// NewExtractor returns an Extractor with the package defaults.
func NewExtractor() *Extractor {
	return &Extractor{MinWindow: DefaultMinWindow, SpikeSigma: DefaultSpikeSigma}
}

// Extract derives the feature set for a batch. The steps run in a fixed
// order (detrend, moments, spectrum, spikes, jerk) so results are
// reproducible for identical input.
func (e *Extractor) Extract(batch Batch) (FeatureSet, error) {
	n := len(batch.Samples)
	minWindow := e.MinWindow
	if minWindow <= 0 {
		minWindow = DefaultMinWindow
	}
	if n < minWindow {
		return FeatureSet{}, fmt.Errorf("%w: got %d samples, need %d", ErrInsufficientData, n, minWindow)
	}

	mags := make([]float64, n)
	for i, s := range batch.Samples {
		mags[i] = s.Magnitude()
	}

	// Remove the gravity/tilt baseline before any statistics.
	detrended := detrend(mags)

	fs := FeatureSet{
		Variance:    stat.Variance(detrended, nil),
		SampleCount: n,
	}
	// Skew and kurtosis divide by the standard deviation; a flat series
	// has none, so report zero rather than NaN.
	if fs.Variance > 0 {
		fs.Skewness = stat.Skew(detrended, nil)
		fs.Kurtosis = stat.ExKurtosis(detrended, nil)
	}

	fs.DominantFreqHz, fs.DominantFreqMag = dominantFrequency(detrended, sampleRateHz(batch.Samples))
	fs.SpikeCount = countSpikes(detrended, e.spikeSigma())
	fs.JerkRMS, fs.Smoothness = jerkMetrics(detrended)

	return fs, nil
}

func (e *Extractor) spikeSigma() float64 {
	if e.SpikeSigma > 0 {
		return e.SpikeSigma
	}
	return DefaultSpikeSigma
}

// detrend subtracts the least-squares line from the series, removing the
// DC offset and any slow linear drift.
func detrend(xs []float64) []float64 {
	n := len(xs)
	idx := make([]float64, n)
	for i := range idx {
		idx[i] = float64(i)
	}
	alpha, beta := stat.LinearRegression(idx, xs, nil, false)

	out := make([]float64, n)
	for i, x := range xs {
		out[i] = x - (alpha + beta*float64(i))
	}
	return out
}

// sampleRateHz estimates the sampling rate from the median inter-sample
// interval. Returns 1 when timestamps are degenerate so the dominant
// frequency degrades to cycles-per-sample rather than failing.
func sampleRateHz(samples []Sample) float64 {
	if len(samples) < 2 {
		return 1
	}
	deltas := make([]float64, 0, len(samples)-1)
	for i := 1; i < len(samples); i++ {
		d := float64(samples[i].TimestampMs - samples[i-1].TimestampMs)
		if d > 0 {
			deltas = append(deltas, d)
		}
	}
	if len(deltas) == 0 {
		return 1
	}
	sort.Float64s(deltas)
	medianMs := deltas[len(deltas)/2]
	return 1000 / medianMs
}

// dominantFrequency returns the strongest non-DC bin of the real FFT and
// its amplitude.
func dominantFrequency(xs []float64, rateHz float64) (freqHz, amplitude float64) {
	n := len(xs)
	fft := fourier.NewFFT(n)
	coeffs := fft.Coefficients(nil, xs)

	bestBin := 0
	bestMag := 0.0
	for i := 1; i < len(coeffs); i++ {
		if m := cmplxAbs(coeffs[i]); m > bestMag {
			bestMag = m
			bestBin = i
		}
	}
	if bestBin == 0 {
		return 0, 0
	}
	// fft.Freq is in cycles per sample; scale to Hz. Amplitude is the
	// coefficient magnitude normalised to the window length.
	return fft.Freq(bestBin) * rateHz, 2 * bestMag / float64(n)
}

func cmplxAbs(c complex128) float64 {
	return math.Hypot(real(c), imag(c))
}

// countSpikes counts samples whose absolute deviation exceeds
// mean(|x|) + sigma*stddev(x).
func countSpikes(xs []float64, sigma float64) int {
	var absSum float64
	for _, x := range xs {
		absSum += math.Abs(x)
	}
	meanAbs := absSum / float64(len(xs))
	std := math.Sqrt(stat.Variance(xs, nil))
	threshold := meanAbs + sigma*std

	count := 0
	for _, x := range xs {
		if math.Abs(x) > threshold {
			count++
		}
	}
	return count
}

// jerkMetrics derives the RMS of the first difference (discrete jerk)
// and the inverse-dispersion smoothness indicator.
func jerkMetrics(xs []float64) (rms, smoothness float64) {
	if len(xs) < 2 {
		return 0, 1
	}
	diffs := make([]float64, len(xs)-1)
	var sq float64
	for i := 1; i < len(xs); i++ {
		d := xs[i] - xs[i-1]
		diffs[i-1] = d
		sq += d * d
	}
	rms = math.Sqrt(sq / float64(len(diffs)))
	smoothness = 1 / (1 + math.Sqrt(stat.Variance(diffs, nil)))
	return rms, smoothness
}
