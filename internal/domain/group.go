package domain

import (
	"fmt"
	"strings"

	"github.com/uber/h3-go/v4"
)

// GroupMode selects how points are bucketed in a summary.
type GroupMode string

const (
	GroupByCity    GroupMode = "by_city"
	GroupByState   GroupMode = "by_state"
	GroupByCountry GroupMode = "by_country"
	GroupByCell    GroupMode = "by_cell"
)

// CellResolution is the H3 resolution used by GroupByCell (≈ 5 km² cells).
const CellResolution = 7

const (
	unknownGroup   = "Unknown"
	openWaterGroup = "Open Water"
)

// ParseGroupMode validates a grouping mode name. An empty name selects GroupByCity.
func ParseGroupMode(s string) (GroupMode, error) {
	switch m := GroupMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return GroupByCity, nil
	case GroupByCity, GroupByState, GroupByCountry, GroupByCell:
		return m, nil
	default:
		return "", fmt.Errorf("unknown group mode %q", s)
	}
}

// groupLabel is the identity of a summary bucket.
type groupLabel struct {
	City    string
	State   string
	Country string
	Cell    string
}

func (g groupLabel) key() string {
	if g.Cell != "" {
		return g.Cell
	}
	parts := make([]string, 0, 3)
	for _, p := range []string{g.City, g.State, g.Country} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

func groupFor(p EnrichedPoint, mode GroupMode) groupLabel {
	if mode == GroupByCell {
		cell, err := h3.LatLngToCell(h3.NewLatLng(p.Lat, p.Lon), CellResolution)
		if err != nil {
			return groupLabel{City: unknownGroup}
		}
		return groupLabel{Cell: cell.String(), City: p.Place.City, State: p.Place.State, Country: p.Place.Country}
	}

	place := p.Place
	var g groupLabel
	var missing bool
	switch mode {
	case GroupByCountry:
		g = groupLabel{Country: place.Country}
		missing = g.key() == ""
	case GroupByState:
		g = groupLabel{State: place.State, Country: place.Country}
		missing = g.key() == ""
	default:
		// A city bucket needs a city; state or country alone is not one.
		g = groupLabel{City: place.City, State: place.State, Country: place.Country}
		missing = place.City == ""
	}

	if missing {
		if p.IsWater {
			return groupLabel{City: openWaterGroup}
		}
		return groupLabel{City: unknownGroup}
	}
	return g
}
