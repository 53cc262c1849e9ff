package spatial

import (
	"math"
)

const earthRadiusKm = 6371.0

// Point is a WGS84 coordinate
type Point struct {
	Lat float64
	Lng float64
}

// Pair returns the point as [lat, lng]
func (p Point) Pair() [2]float64 {
	return [2]float64{p.Lat, p.Lng}
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}

func toDeg(rad float64) float64 {
	return rad * 180 / math.Pi
}

// Bearing returns the initial compass bearing from a to b in degrees [0, 360).
// The bearing of a point to itself is meaningless; it comes out as 0.
func Bearing(a, b Point) float64 {
	phi1 := toRad(a.Lat)
	phi2 := toRad(b.Lat)
	deltaLambda := toRad(b.Lng - a.Lng)

	y := math.Sin(deltaLambda) * math.Cos(phi2)
	x := math.Cos(phi1)*math.Sin(phi2) - math.Sin(phi1)*math.Cos(phi2)*math.Cos(deltaLambda)

	return normalizeBearing(toDeg(math.Atan2(y, x)))
}

func normalizeBearing(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	// -0 and values that round up to 360
	if deg >= 360 {
		deg -= 360
	}
	return deg
}

// DistanceKm returns the great-circle distance between a and b using haversine
func DistanceKm(a, b Point) float64 {
	dLat := toRad(b.Lat - a.Lat)
	dLng := toRad(b.Lng - a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(a.Lat))*math.Cos(toRad(b.Lat))*
			math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusKm * c
}

// Interpolate returns the point a fraction t of the way from a to b.
// Linear in lat/lng, which is fine at street scale.
func Interpolate(a, b Point, t float64) Point {
	if t >= 1 {
		return b
	}
	return Point{
		Lat: a.Lat + (b.Lat-a.Lat)*t,
		Lng: a.Lng + (b.Lng-a.Lng)*t,
	}
}

// PathLengthKm sums the segment distances of a path
func PathLengthKm(path []Point) float64 {
	var total float64
	for i := 1; i < len(path); i++ {
		total += DistanceKm(path[i-1], path[i])
	}
	return total
}

// TurnAngle returns the absolute difference between two bearings, folded to [0, 180]
func TurnAngle(from, to float64) float64 {
	diff := math.Abs(from - to)
	return math.Min(diff, 360-diff)
}
