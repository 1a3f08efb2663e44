// Package geo provides geodesic distance and bounding box math for the
// road condition pipeline.
package geo

import "math"

// EarthRadiusMeters is the mean Earth radius used for all conversions.
const EarthRadiusMeters = 6371000.0

// fastPathThresholdDeg is the per-axis coordinate delta (degrees) below
// which the equirectangular approximation is used instead of haversine.
// 0.01 degrees is roughly 1.1km at the equator.
const fastPathThresholdDeg = 0.01

// Distance returns the distance in meters between two coordinates.
// Nearby points (both deltas under fastPathThresholdDeg) use a flat-earth
// equirectangular approximation; everything else falls back to haversine.
// The approximation error at the threshold is well under a meter, so the
// result is continuous and order-preserving across the switch.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	if math.Abs(lat1-lat2) < fastPathThresholdDeg && math.Abs(lon1-lon2) < fastPathThresholdDeg {
		latRad := (lat1 + lat2) / 2 * math.Pi / 180
		x := (lon2 - lon1) * math.Cos(latRad)
		y := lat2 - lat1
		return math.Sqrt(x*x+y*y) * EarthRadiusMeters * math.Pi / 180
	}
	return Haversine(lat1, lon1, lat2, lon2)
}

// Haversine returns the great-circle distance in meters between two
// coordinates.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	sinPhi := math.Sin(dPhi / 2)
	sinLambda := math.Sin(dLambda / 2)
	a := sinPhi*sinPhi + math.Cos(phi1)*math.Cos(phi2)*sinLambda*sinLambda
	return 2 * EarthRadiusMeters * math.Asin(math.Sqrt(a))
}

// BoundingBox is an axis-aligned lat/lon rectangle.
type BoundingBox struct {
	MinLat float64 `json:"min_lat"`
	MaxLat float64 `json:"max_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLon float64 `json:"max_lon"`
}

// NewBoundingBox returns the smallest axis-aligned box guaranteed to
// contain the circle of radiusMeters around (lat, lon). The box is an
// over-approximation: corner points may lie outside the circle, but no
// in-radius point is ever outside the box.
func NewBoundingBox(lat, lon, radiusMeters float64) BoundingBox {
	latDelta := radiusMeters / EarthRadiusMeters * 180 / math.Pi

	// Longitude degrees shrink with latitude. Clamp the cosine so boxes
	// near the poles stay finite; they simply over-cover.
	cosLat := math.Cos(lat * math.Pi / 180)
	if cosLat < 0.01 {
		cosLat = 0.01
	}
	lonDelta := radiusMeters / (EarthRadiusMeters * cosLat) * 180 / math.Pi

	return BoundingBox{
		MinLat: lat - latDelta,
		MaxLat: lat + latDelta,
		MinLon: lon - lonDelta,
		MaxLon: lon + lonDelta,
	}
}

// Contains reports whether the point lies inside the box (inclusive).
func (b BoundingBox) Contains(lat, lon float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lon >= b.MinLon && lon <= b.MaxLon
}

// Intersects reports whether two boxes overlap (inclusive of edges).
func (b BoundingBox) Intersects(o BoundingBox) bool {
	return b.MinLat <= o.MaxLat && b.MaxLat >= o.MinLat &&
		b.MinLon <= o.MaxLon && b.MaxLon >= o.MinLon
}
