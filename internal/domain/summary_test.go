package domain

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC)

func enriched(lat, lon float64, minutes int, place PlaceResult) EnrichedPoint {
	return EnrichedPoint{
		LocationPoint: LocationPoint{Lat: lat, Lon: lon, Timestamp: baseTime.Add(time.Duration(minutes) * time.Minute)},
		Place:         place,
		IsWater:       place.IsWater,
	}
}

func TestAggregator_SumsConsecutiveSegments(t *testing.T) {
	a := enriched(40.0, -74.0, 0, PlaceResult{City: "A"})
	b := enriched(40.1, -74.0, 10, PlaceResult{City: "B"})
	c := enriched(40.1, -74.1, 20, PlaceResult{City: "C"})

	agg := NewAggregator(GroupByCity, true)
	agg.Add(a)
	agg.Add(b)
	agg.Add(c)
	s := agg.Summary()

	want := Distance(a.LocationPoint, b.LocationPoint) + Distance(b.LocationPoint, c.LocationPoint)
	assert.InDelta(t, want, s.TotalDistanceMiles, 1e-9)
	assert.Greater(t, s.TotalDistanceMiles, Distance(a.LocationPoint, c.LocationPoint))
	assert.Equal(t, 3, s.TotalPoints)
	assert.Equal(t, baseTime, s.Start)
	assert.Equal(t, baseTime.Add(20*time.Minute), s.End)
}

func TestAggregator_GroupsByCity(t *testing.T) {
	springfield := PlaceResult{City: "Springfield", State: "Illinois", Country: "United States"}
	chicago := PlaceResult{City: "Chicago", State: "Illinois", Country: "United States"}

	agg := NewAggregator(GroupByCity, true)
	agg.Add(enriched(39.78, -89.65, 0, springfield))
	agg.Add(enriched(39.79, -89.65, 5, springfield))
	agg.Add(enriched(41.88, -87.63, 180, chicago))
	agg.Add(enriched(0, 0, 200, PlaceResult{}))
	agg.Add(enriched(0, 1, 210, OpenWater()))
	s := agg.Summary()

	require.Len(t, s.Groups, 4)
	assert.Equal(t, "Springfield, Illinois, United States", s.Groups[0].Key)
	assert.Equal(t, 2, s.Groups[0].Points)
	assert.InDelta(t, HaversineMiles(39.78, -89.65, 39.79, -89.65), s.Groups[0].DistanceMiles, 1e-9)

	keys := make([]string, 0, len(s.Groups))
	for _, g := range s.Groups {
		keys = append(keys, g.Key)
	}
	assert.Contains(t, keys, "Unknown")
	assert.Contains(t, keys, "Open Water")

	assert.Equal(t, 4, s.ResolvedPoints)
	assert.Equal(t, 1, s.UnresolvedPoints)
	assert.Equal(t, 1, s.WaterPoints)
}

func TestAggregator_GroupByCity_NoCityIsUnknown(t *testing.T) {
	agg := NewAggregator(GroupByCity, true)
	agg.Add(enriched(40.71, -74.0, 0, PlaceResult{City: "New York", State: "New York", Country: "United States"}))
	agg.Add(enriched(42.0, -75.0, 30, PlaceResult{State: "New York", Country: "United States"}))
	agg.Add(enriched(41.0, -72.0, 60, PlaceResult{Country: "United States", Place: "long island sound", IsWater: true}))
	s := agg.Summary()

	require.Len(t, s.Groups, 3)
	byKey := make(map[string]GroupStats, len(s.Groups))
	for _, g := range s.Groups {
		byKey[g.Key] = g
	}

	unknown, ok := byKey["Unknown"]
	require.True(t, ok, "city-less land point belongs to Unknown")
	assert.Equal(t, 1, unknown.Points)
	assert.Empty(t, unknown.State)
	assert.InDelta(t, HaversineMiles(40.71, -74.0, 42.0, -75.0), unknown.DistanceMiles, 1e-9)

	water, ok := byKey["Open Water"]
	require.True(t, ok, "city-less water point belongs to Open Water")
	assert.Equal(t, 1, water.Points)

	assert.NotContains(t, byKey, "New York, United States")
	assert.Equal(t, 3, s.ResolvedPoints)
}

func TestAggregator_GroupByState(t *testing.T) {
	agg := NewAggregator(GroupByState, false)
	agg.Add(enriched(39.78, -89.65, 0, PlaceResult{City: "Springfield", State: "Illinois", Country: "US"}))
	agg.Add(enriched(41.88, -87.63, 10, PlaceResult{City: "Chicago", State: "Illinois", Country: "US"}))
	s := agg.Summary()

	require.Len(t, s.Groups, 1)
	assert.Equal(t, "Illinois, US", s.Groups[0].Key)
	assert.Equal(t, 2, s.Groups[0].Points)
	assert.Zero(t, s.TotalDistanceMiles, "distance disabled")
	assert.False(t, s.DistanceIncluded)
}

func TestAggregator_GroupByCell(t *testing.T) {
	agg := NewAggregator(GroupByCell, true)
	agg.Add(enriched(40.00000, -74.00000, 0, PlaceResult{City: "A"}))
	agg.Add(enriched(40.00001, -74.00001, 1, PlaceResult{City: "A"}))
	agg.Add(enriched(45.00000, -70.00000, 2, PlaceResult{City: "B"}))
	s := agg.Summary()

	require.Len(t, s.Groups, 2)
	assert.Equal(t, 2, s.Groups[0].Points)
	assert.NotEmpty(t, s.Groups[0].Cell)
	assert.Equal(t, s.Groups[0].Cell, s.Groups[0].Key)
}

func TestAggregator_IdenticalPointsAddNoDistance(t *testing.T) {
	agg := NewAggregator(GroupByCity, true)
	agg.Add(enriched(40.0, -74.0, 0, PlaceResult{City: "A"}))
	agg.Add(enriched(40.0, -74.0, 1, PlaceResult{City: "A"}))
	assert.Equal(t, 0.0, agg.Summary().TotalDistanceMiles)
}

func TestAggregator_SummaryUsesClock(t *testing.T) {
	fake := clockwork.NewFakeClockAt(time.Date(2025, time.January, 2, 3, 4, 5, 0, time.UTC))
	SetClock(fake)
	t.Cleanup(func() { SetClock(nil) })

	s := NewAggregator("", true).Summary()
	assert.Equal(t, fake.Now(), s.GeneratedAt)
	assert.Equal(t, GroupByCity, s.GroupBy)
	assert.Empty(t, s.Groups)
}

func TestParseGroupMode(t *testing.T) {
	m, err := ParseGroupMode("")
	require.NoError(t, err)
	assert.Equal(t, GroupByCity, m)

	m, err = ParseGroupMode("BY_CELL")
	require.NoError(t, err)
	assert.Equal(t, GroupByCell, m)

	_, err = ParseGroupMode("by_planet")
	assert.Error(t, err)
}
