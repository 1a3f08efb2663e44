package geo

import (
	"math"
	"testing"
)

func TestDistanceKnownPairs(t *testing.T) {
	tests := []struct {
		name                   string
		lat1, lon1, lat2, lon2 float64
		wantMeters             float64
		tolerance              float64
	}{
		{"same point", 40.0, -73.0, 40.0, -73.0, 0, 0.001},
		{"one degree latitude", 40.0, -73.0, 41.0, -73.0, 111195, 50},
		{"nyc to la", 40.7128, -74.0060, 34.0522, -118.2437, 3935746, 10000},
		{"short hop manhattan", 40.7580, -73.9855, 40.7614, -73.9776, 770, 15},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Distance(tt.lat1, tt.lon1, tt.lat2, tt.lon2)
			if math.Abs(got-tt.wantMeters) > tt.tolerance {
				t.Errorf("Distance() = %f, want %f ± %f", got, tt.wantMeters, tt.tolerance)
			}
		})
	}
}

// The equirectangular fast path must stay within a meter of haversine
// everywhere it is used.
func TestFastPathMatchesHaversine(t *testing.T) {
	centers := [][2]float64{{0, 0}, {40, -73}, {-33.9, 151.2}, {59.9, 10.7}}
	offsets := []float64{0.0001, 0.001, 0.005, 0.0099}

	for _, c := range centers {
		for _, dLat := range offsets {
			for _, dLon := range offsets {
				lat2 := c[0] + dLat
				lon2 := c[1] + dLon
				approx := Distance(c[0], c[1], lat2, lon2)
				exact := Haversine(c[0], c[1], lat2, lon2)
				if math.Abs(approx-exact) > 1.0 {
					t.Errorf("at (%f,%f)+(%f,%f): approx %f vs haversine %f diff > 1m",
						c[0], c[1], dLat, dLon, approx, exact)
				}
			}
		}
	}
}

// Crossing the 0.01 degree switch point must not introduce a jump.
func TestDistanceContinuousAtThreshold(t *testing.T) {
	const lat, lon = 40.0, -73.0
	below := Distance(lat, lon, lat+0.009999, lon)
	above := Distance(lat, lon, lat+0.010001, lon)
	if above <= below {
		t.Fatalf("distance not increasing across threshold: below=%f above=%f", below, above)
	}
	if above-below > 5.0 {
		t.Errorf("discontinuity at threshold: below=%f above=%f", below, above)
	}
}

// For a fixed center, greater angular separation must never produce a
// smaller distance, including across the approximation switch.
func TestDistanceMonotone(t *testing.T) {
	const lat, lon = 40.0, -73.0
	prev := -1.0
	for d := 0.0005; d < 0.05; d += 0.0005 {
		got := Distance(lat, lon, lat+d, lon+d/2)
		if got < prev {
			t.Fatalf("distance decreased at offset %f: %f < %f", d, got, prev)
		}
		prev = got
	}
}

func TestBoundingBoxCoversRadius(t *testing.T) {
	const lat, lon, radius = 40.0, -73.0, 500.0
	box := NewBoundingBox(lat, lon, radius)

	// Walk the circle boundary; every point within the radius must be
	// inside the box (the prefilter may over-admit but never exclude).
	for deg := 0; deg < 360; deg += 5 {
		theta := float64(deg) * math.Pi / 180
		dLat := radius / EarthRadiusMeters * 180 / math.Pi * math.Sin(theta)
		dLon := radius / (EarthRadiusMeters * math.Cos(lat*math.Pi/180)) * 180 / math.Pi * math.Cos(theta)
		// Pull slightly inside the circle to dodge rounding at the literal edge.
		if !box.Contains(lat+dLat*0.999, lon+dLon*0.999) {
			t.Errorf("boundary point at bearing %d excluded from box", deg)
		}
	}
}

func TestBoundingBoxIntersects(t *testing.T) {
	a := NewBoundingBox(40.0, -73.0, 1000)
	tests := []struct {
		name string
		b    BoundingBox
		want bool
	}{
		{"self", a, true},
		{"nearby overlapping", NewBoundingBox(40.005, -73.005, 1000), true},
		{"far away", NewBoundingBox(41.0, -74.0, 1000), false},
		{"touching edge", BoundingBox{MinLat: a.MaxLat, MaxLat: a.MaxLat + 0.01, MinLon: -73.1, MaxLon: -72.9}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := a.Intersects(tt.b); got != tt.want {
				t.Errorf("Intersects() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBoundingBoxHighLatitudeClamp(t *testing.T) {
	box := NewBoundingBox(89.9, 0, 1000)
	if math.IsInf(box.MaxLon, 0) || math.IsNaN(box.MaxLon) {
		t.Fatalf("degenerate box at high latitude: %+v", box)
	}
	if !box.Contains(89.9, 0) {
		t.Errorf("box must contain its own center")
	}
}
