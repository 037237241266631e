package geo

import "math"

const earthRadiusM = 6371000.0

// Point is a WGS84 coordinate in degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// HaversineKm returns the great-circle distance between two coordinates in kilometers.
func HaversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	return haversineM(lat1, lng1, lat2, lng2) / 1000
}

func HaversineMeters(a, b Point) float64 {
	return haversineM(a.Lat, a.Lng, b.Lat, b.Lng)
}

// StepKm is the distance added by moving from prev to next. A nil prev is the
// first point of a route and contributes nothing.
func StepKm(prev *Point, next Point) float64 {
	if prev == nil {
		return 0
	}
	return HaversineMeters(*prev, next) / 1000
}

// PathKm sums StepKm over consecutive points.
func PathKm(points []Point) float64 {
	total := 0.0
	for i := 1; i < len(points); i++ {
		total += StepKm(&points[i-1], points[i])
	}
	return total
}

func haversineM(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLng := toRad(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	// rounding can push a a hair past 1 for antipodal points
	a = math.Min(1, math.Max(0, a))
	return 2 * earthRadiusM * math.Asin(math.Sqrt(a))
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
