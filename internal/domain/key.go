package domain

import (
	"strconv"
	"strings"
)

const (
	// KeyPrecision is the number of decimal places in a primary cache key.
	KeyPrecision = 5
	// LegacyKeyPrecision is the rounding used by caches from older releases.
	LegacyKeyPrecision = 4

	waterPrefix = "water:"
)

// CoordinateKey rounds lat/lon to the given number of decimal places and
// formats them as "lat,lon".
func CoordinateKey(lat, lon float64, precision int) string {
	return formatCoord(roundTo(lat, precision)) + "," + formatCoord(roundTo(lon, precision))
}

// PlaceKeys returns the primary and legacy cache keys for a place lookup.
func PlaceKeys(lat, lon float64) (primary, legacy string) {
	return CoordinateKey(lat, lon, KeyPrecision), CoordinateKey(lat, lon, LegacyKeyPrecision)
}

// WaterKeys returns the primary and legacy cache keys for a water lookup.
func WaterKeys(lat, lon float64) (primary, legacy string) {
	p, l := PlaceKeys(lat, lon)
	return waterPrefix + p, waterPrefix + l
}

// IsWaterKey reports whether key lives in the water namespace.
func IsWaterKey(key string) bool {
	return strings.HasPrefix(key, waterPrefix)
}

// roundTo rounds the exact binary value of v to precision decimal places,
// ties to even.
func roundTo(v float64, precision int) float64 {
	r, err := strconv.ParseFloat(strconv.FormatFloat(v, 'f', precision, 64), 64)
	if err != nil {
		return v
	}
	return r
}

// formatCoord writes the shortest representation of v. Magnitudes below 1e-4
// use exponent form with a two-digit exponent ("1e-05"); everything else is
// plain decimal with at least one fractional digit ("40.0").
func formatCoord(v float64) string {
	s := strconv.FormatFloat(v, 'g', -1, 64)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}
