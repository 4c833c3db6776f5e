package domain

import (
	"sort"
	"time"
)

// GroupStats is one bucket of an AnalysisSummary.
type GroupStats struct {
	Key           string    `json:"key"`
	City          string    `json:"city,omitempty"`
	State         string    `json:"state,omitempty"`
	Country       string    `json:"country,omitempty"`
	Cell          string    `json:"cell,omitempty"`
	Points        int       `json:"points"`
	DistanceMiles float64   `json:"distance_miles"`
	FirstSeen     time.Time `json:"first_seen"`
	LastSeen      time.Time `json:"last_seen"`
}

// AnalysisSummary is the result of one engine run.
type AnalysisSummary struct {
	ID                 string       `json:"id"`
	GroupBy            GroupMode    `json:"group_by"`
	InputPoints        int          `json:"input_points"`
	TotalPoints        int          `json:"total_points"`
	ResolvedPoints     int          `json:"resolved_points"`
	UnresolvedPoints   int          `json:"unresolved_points"`
	WaterPoints        int          `json:"water_points"`
	DistanceIncluded   bool         `json:"distance_included"`
	TotalDistanceMiles float64      `json:"total_distance_miles"`
	Groups             []GroupStats `json:"groups"`
	Start              time.Time    `json:"start,omitzero"`
	End                time.Time    `json:"end,omitzero"`
	Cancelled          bool         `json:"cancelled"`
	GeneratedAt        time.Time    `json:"generated_at"`
}

// Aggregator accumulates enriched points, in timestamp order, into a summary.
type Aggregator struct {
	mode            GroupMode
	includeDistance bool

	prev       *EnrichedPoint
	total      float64
	groups     map[string]*GroupStats
	count      int
	resolved   int
	unresolved int
	water      int
	start, end time.Time
}

// NewAggregator creates an Aggregator. When includeDistance is false, only
// counts are accumulated.
func NewAggregator(mode GroupMode, includeDistance bool) *Aggregator {
	if mode == "" {
		mode = GroupByCity
	}
	return &Aggregator{
		mode:            mode,
		includeDistance: includeDistance,
		groups:          make(map[string]*GroupStats),
	}
}

// Add folds one point into the running totals. The segment from the previous
// point is attributed to the group of p.
func (a *Aggregator) Add(p EnrichedPoint) {
	a.count++
	if p.Resolved() {
		a.resolved++
	} else {
		a.unresolved++
	}
	if p.IsWater {
		a.water++
	}
	if a.start.IsZero() || p.Timestamp.Before(a.start) {
		a.start = p.Timestamp
	}
	if p.Timestamp.After(a.end) {
		a.end = p.Timestamp
	}

	label := groupFor(p, a.mode)
	key := label.key()
	g, ok := a.groups[key]
	if !ok {
		g = &GroupStats{
			Key:       key,
			City:      label.City,
			State:     label.State,
			Country:   label.Country,
			Cell:      label.Cell,
			FirstSeen: p.Timestamp,
		}
		a.groups[key] = g
	}
	g.Points++
	if p.Timestamp.Before(g.FirstSeen) {
		g.FirstSeen = p.Timestamp
	}
	if p.Timestamp.After(g.LastSeen) {
		g.LastSeen = p.Timestamp
	}

	if a.includeDistance && a.prev != nil {
		d := Distance(a.prev.LocationPoint, p.LocationPoint)
		a.total += d
		g.DistanceMiles += d
	}
	a.prev = &p
}

// Summary builds the immutable summary of everything added so far. Groups are
// ordered by point count, then key.
func (a *Aggregator) Summary() AnalysisSummary {
	groups := make([]GroupStats, 0, len(a.groups))
	for _, g := range a.groups {
		groups = append(groups, *g)
	}
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].Points != groups[j].Points {
			return groups[i].Points > groups[j].Points
		}
		return groups[i].Key < groups[j].Key
	})

	return AnalysisSummary{
		GroupBy:            a.mode,
		InputPoints:        a.count,
		TotalPoints:        a.count,
		ResolvedPoints:     a.resolved,
		UnresolvedPoints:   a.unresolved,
		WaterPoints:        a.water,
		DistanceIncluded:   a.includeDistance,
		TotalDistanceMiles: a.total,
		Groups:             groups,
		Start:              a.start,
		End:                a.end,
		GeneratedAt:        clock.Now().UTC(),
	}
}
