package domain

import "math"

// EarthRadiusMiles is the mean Earth radius in statute miles.
const EarthRadiusMiles = 3958.8

// HaversineMiles returns the great-circle distance between two coordinates
// given in degrees.
func HaversineMiles(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := degreesToRadians(lat1)
	phi2 := degreesToRadians(lat2)
	deltaPhi := degreesToRadians(lat2 - lat1)
	deltaLambda := degreesToRadians(lon2 - lon1)

	a := math.Sin(deltaPhi/2)*math.Sin(deltaPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(deltaLambda/2)*math.Sin(deltaLambda/2)
	// Rounding can push a fractionally outside [0, 1] for antipodal or identical points.
	a = math.Min(math.Max(a, 0), 1)

	return EarthRadiusMiles * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// Distance returns the haversine distance between two points in miles.
func Distance(a, b LocationPoint) float64 {
	return HaversineMiles(a.Lat, a.Lon, b.Lat, b.Lon)
}

func degreesToRadians(d float64) float64 {
	return d * math.Pi / 180
}
