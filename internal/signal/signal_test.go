package signal

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// makeBatch builds a batch of n samples at 50Hz with the given magnitude
// generator. The magnitude is put on the Z axis with X=Y=0 so the
// triaxial magnitude equals the generated value.
func makeBatch(n int, mag func(i int) float64) Batch {
	samples := make([]Sample, n)
	for i := 0; i < n; i++ {
		samples[i] = Sample{
			TimestampMs: int64(i) * 20,
			Z:           mag(i),
		}
	}
	return Batch{SessionID: "test-session", Samples: samples}
}

func TestExtractTooFewSamples(t *testing.T) {
	e := NewExtractor()
	for _, n := range []int{0, 1, 5, 15} {
		_, err := e.Extract(makeBatch(n, func(int) float64 { return 9.81 }))
		require.Error(t, err, "n=%d", n)
		assert.True(t, errors.Is(err, ErrInsufficientData), "n=%d: got %v", n, err)
	}
}

func TestExtractDeterministic(t *testing.T) {
	e := NewExtractor()
	batch := makeBatch(64, func(i int) float64 {
		return 9.81 + 0.5*math.Sin(float64(i)*0.7) + 0.1*float64(i%3)
	})

	a, err := e.Extract(batch)
	require.NoError(t, err)
	b, err := e.Extract(batch)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestExtractConstantSignal(t *testing.T) {
	e := NewExtractor()
	fs, err := e.Extract(makeBatch(32, func(int) float64 { return 9.81 }))
	require.NoError(t, err)

	assert.InDelta(t, 0, fs.Variance, 1e-9)
	assert.Equal(t, 0, fs.SpikeCount)
	assert.InDelta(t, 0, fs.JerkRMS, 1e-9)
	assert.InDelta(t, 1, fs.Smoothness, 1e-9)
}

// A pure linear ramp is entirely trend; detrending must leave nothing.
func TestDetrendRemovesRamp(t *testing.T) {
	e := NewExtractor()
	fs, err := e.Extract(makeBatch(32, func(i int) float64 { return 9.0 + 0.25*float64(i) }))
	require.NoError(t, err)
	assert.InDelta(t, 0, fs.Variance, 1e-9)
}

func TestExtractCountsSpikes(t *testing.T) {
	e := NewExtractor()
	spikeAt := map[int]bool{10: true, 25: true, 40: true}
	fs, err := e.Extract(makeBatch(50, func(i int) float64 {
		base := 9.81 + 0.05*math.Sin(float64(i))
		if spikeAt[i] {
			return base + 8
		}
		return base
	}))
	require.NoError(t, err)
	assert.Equal(t, 3, fs.SpikeCount)
}

func TestExtractDominantFrequency(t *testing.T) {
	// 5Hz sine sampled at 50Hz over 100 samples: the dominant bin must
	// land on 5Hz.
	e := NewExtractor()
	fs, err := e.Extract(makeBatch(100, func(i int) float64 {
		tSec := float64(i) * 0.02
		return 9.81 + 2*math.Sin(2*math.Pi*5*tSec)
	}))
	require.NoError(t, err)
	assert.InDelta(t, 5.0, fs.DominantFreqHz, 0.6)
	assert.InDelta(t, 2.0, fs.DominantFreqMag, 0.3)
}

func TestRoughSignalFeaturesExceedSmooth(t *testing.T) {
	e := NewExtractor()
	smooth, err := e.Extract(makeBatch(64, func(i int) float64 {
		return 9.81 + 0.02*math.Sin(float64(i)*0.3)
	}))
	require.NoError(t, err)

	rough, err := e.Extract(makeBatch(64, func(i int) float64 {
		v := 9.81 + 1.5*math.Sin(float64(i)*2.9)
		if i%7 == 0 {
			v += 6
		}
		return v
	}))
	require.NoError(t, err)

	assert.Greater(t, rough.Variance, smooth.Variance)
	assert.Greater(t, rough.JerkRMS, smooth.JerkRMS)
	assert.Less(t, rough.Smoothness, smooth.Smoothness)
}

func TestFeatureSetFinite(t *testing.T) {
	fs := FeatureSet{Variance: 1, Smoothness: 0.5}
	assert.True(t, fs.Finite())

	fs.JerkRMS = math.NaN()
	assert.False(t, fs.Finite())

	fs.JerkRMS = math.Inf(1)
	assert.False(t, fs.Finite())
}

func TestLastPosition(t *testing.T) {
	lat1, lon1 := 40.0, -73.0
	lat2, lon2 := 40.1, -73.1
	b := Batch{Samples: []Sample{
		{TimestampMs: 1, Lat: &lat1, Lon: &lon1},
		{TimestampMs: 2},
		{TimestampMs: 3, Lat: &lat2, Lon: &lon2},
		{TimestampMs: 4},
	}}

	lat, lon, ok := b.LastPosition()
	require.True(t, ok)
	assert.Equal(t, lat2, lat)
	assert.Equal(t, lon2, lon)

	_, _, ok = Batch{Samples: []Sample{{TimestampMs: 1}}}.LastPosition()
	assert.False(t, ok)
}
