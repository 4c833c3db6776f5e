package domain

import "time"

// LocationPoint is a single raw location-history sample.
type LocationPoint struct {
	Lat       float64   `json:"lat"`
	Lon       float64   `json:"lon"`
	Timestamp time.Time `json:"timestamp"`
}

// EnrichedPoint pairs a LocationPoint with the place it resolved to.
type EnrichedPoint struct {
	LocationPoint
	Place   PlaceResult `json:"place"`
	IsWater bool        `json:"is_water"`
}

// Resolved reports whether any provider (or the open-water sentinel)
// produced data for the point.
func (p EnrichedPoint) Resolved() bool {
	return !p.Place.IsEmpty()
}

// PlaceResult is the place metadata for a coordinate. The zero value is the
// "unknown, not water" sentinel stored when every provider failed.
type PlaceResult struct {
	State   string `json:"state,omitempty"`
	City    string `json:"city,omitempty"`
	Country string `json:"country,omitempty"`
	Place   string `json:"place,omitempty"`
	IsWater bool   `json:"is_water,omitempty"`
}

// OpenWaterPlace is the label used for zero-result responses.
const OpenWaterPlace = "open water"

// OpenWater returns the sentinel stored when a provider answers with no results.
func OpenWater() PlaceResult {
	return PlaceResult{Place: OpenWaterPlace, IsWater: true}
}

// IsEmpty reports whether r carries no data at all.
func (r PlaceResult) IsEmpty() bool {
	return r == PlaceResult{}
}
