// Package takeout reads Google location-history exports into location points.
//
// Three layouts are recognized: the Records export ({"locations": [...]}),
// the Semantic Location History export ({"timelineObjects": [...]}), and the
// on-device Timeline export, either as a bare array of segments or wrapped in
// {"semanticSegments": [...]}. Entries that cannot be parsed are skipped.
package takeout

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/location-enrichment/internal/domain"
)

// ErrUnrecognized means the document matched none of the known layouts.
var ErrUnrecognized = errors.New("unrecognized location history format")

const (
	e7       = 1e7
	maxLatE7 = 900000000
	maxLonE7 = 1800000000
)

// ReadFile parses the export at path.
func ReadFile(path string) ([]domain.LocationPoint, error) {
	f, err := os.Open(path) //nolint:gosec // path is operator or upload supplied
	if err != nil {
		return nil, fmt.Errorf("open location file: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only

	points, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return points, nil
}

// Parse decodes an export from r. Points are returned in document order.
func Parse(r io.Reader) ([]domain.LocationPoint, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read location file: %w", err)
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, ErrUnrecognized
	}

	if data[0] == '[' {
		var segments []segment
		if err := json.Unmarshal(data, &segments); err != nil {
			return nil, fmt.Errorf("decode timeline segments: %w", err)
		}
		return fromSegments(segments), nil
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode location history: %w", err)
	}
	switch {
	case doc.Locations != nil:
		return fromRecords(doc.Locations), nil
	case doc.TimelineObjects != nil:
		return fromTimelineObjects(doc.TimelineObjects), nil
	case doc.SemanticSegments != nil:
		return fromSegments(doc.SemanticSegments), nil
	default:
		return nil, ErrUnrecognized
	}
}

// DateRange returns the earliest and latest timestamps among points.
// ok is false when points is empty.
func DateRange(points []domain.LocationPoint) (first, last time.Time, ok bool) {
	for i, p := range points {
		if i == 0 || p.Timestamp.Before(first) {
			first = p.Timestamp
		}
		if i == 0 || p.Timestamp.After(last) {
			last = p.Timestamp
		}
	}
	return first, last, len(points) > 0
}

type document struct {
	Locations        []record         `json:"locations"`
	TimelineObjects  []timelineObject `json:"timelineObjects"`
	SemanticSegments []segment        `json:"semanticSegments"`
}

// Records.json

type record struct {
	LatitudeE7  *int64 `json:"latitudeE7"`
	LongitudeE7 *int64 `json:"longitudeE7"`
	Timestamp   string `json:"timestamp"`
	TimestampMs string `json:"timestampMs"`
}

func fromRecords(records []record) []domain.LocationPoint {
	points := make([]domain.LocationPoint, 0, len(records))
	for _, r := range records {
		if r.LatitudeE7 == nil || r.LongitudeE7 == nil {
			continue
		}
		ts, ok := parseTimestamp(r.Timestamp, r.TimestampMs)
		if !ok {
			continue
		}
		if p, ok := fromE7(*r.LatitudeE7, *r.LongitudeE7, ts); ok {
			points = append(points, p)
		}
	}
	return points
}

// Semantic Location History

type timelineObject struct {
	PlaceVisit      *placeVisit      `json:"placeVisit"`
	ActivitySegment *activitySegment `json:"activitySegment"`
}

type placeVisit struct {
	Location e7Location `json:"location"`
	Duration duration   `json:"duration"`
}

type activitySegment struct {
	StartLocation e7Location `json:"startLocation"`
	EndLocation   e7Location `json:"endLocation"`
	Duration      duration   `json:"duration"`
}

type e7Location struct {
	LatitudeE7  *int64 `json:"latitudeE7"`
	LongitudeE7 *int64 `json:"longitudeE7"`
}

type duration struct {
	StartTimestamp   string `json:"startTimestamp"`
	StartTimestampMs string `json:"startTimestampMs"`
	EndTimestamp     string `json:"endTimestamp"`
	EndTimestampMs   string `json:"endTimestampMs"`
}

func fromTimelineObjects(objects []timelineObject) []domain.LocationPoint {
	var points []domain.LocationPoint
	add := func(loc e7Location, ts time.Time, ok bool) {
		if !ok || loc.LatitudeE7 == nil || loc.LongitudeE7 == nil {
			return
		}
		if p, ok := fromE7(*loc.LatitudeE7, *loc.LongitudeE7, ts); ok {
			points = append(points, p)
		}
	}

	for _, obj := range objects {
		switch {
		case obj.PlaceVisit != nil:
			v := obj.PlaceVisit
			ts, ok := parseTimestamp(v.Duration.StartTimestamp, v.Duration.StartTimestampMs)
			add(v.Location, ts, ok)
		case obj.ActivitySegment != nil:
			a := obj.ActivitySegment
			start, ok := parseTimestamp(a.Duration.StartTimestamp, a.Duration.StartTimestampMs)
			add(a.StartLocation, start, ok)
			end, ok := parseTimestamp(a.Duration.EndTimestamp, a.Duration.EndTimestampMs)
			add(a.EndLocation, end, ok)
		}
	}
	return points
}

// On-device Timeline

type segment struct {
	StartTime    string      `json:"startTime"`
	EndTime      string      `json:"endTime"`
	Visit        *visit      `json:"visit"`
	Activity     *activity   `json:"activity"`
	TimelinePath []pathPoint `json:"timelinePath"`
}

type visit struct {
	TopCandidate struct {
		PlaceLocation geoValue `json:"placeLocation"`
	} `json:"topCandidate"`
}

type activity struct {
	Start geoValue `json:"start"`
	End   geoValue `json:"end"`
}

type pathPoint struct {
	Point                              geoValue `json:"point"`
	Time                               string   `json:"time"`
	DurationMinutesOffsetFromStartTime string   `json:"durationMinutesOffsetFromStartTime"`
}

func fromSegments(segments []segment) []domain.LocationPoint {
	var points []domain.LocationPoint
	for _, s := range segments {
		start, startOK := parseRFC3339(s.StartTime)
		end, endOK := parseRFC3339(s.EndTime)

		switch {
		case s.Visit != nil:
			if lat, lon, ok := s.Visit.TopCandidate.PlaceLocation.coords(); ok && startOK {
				points = append(points, domain.LocationPoint{Lat: lat, Lon: lon, Timestamp: start})
			}
		case s.Activity != nil:
			if lat, lon, ok := s.Activity.Start.coords(); ok && startOK {
				points = append(points, domain.LocationPoint{Lat: lat, Lon: lon, Timestamp: start})
			}
			if lat, lon, ok := s.Activity.End.coords(); ok && endOK {
				points = append(points, domain.LocationPoint{Lat: lat, Lon: lon, Timestamp: end})
			}
		case s.TimelinePath != nil:
			for _, p := range s.TimelinePath {
				lat, lon, ok := p.Point.coords()
				if !ok {
					continue
				}
				ts, ok := pathTime(p, start, startOK)
				if !ok {
					continue
				}
				points = append(points, domain.LocationPoint{Lat: lat, Lon: lon, Timestamp: ts})
			}
		}
	}
	return points
}

func pathTime(p pathPoint, start time.Time, startOK bool) (time.Time, bool) {
	if p.Time != "" {
		return parseRFC3339(p.Time)
	}
	if !startOK {
		return time.Time{}, false
	}
	if p.DurationMinutesOffsetFromStartTime == "" {
		return start, true
	}
	mins, err := strconv.Atoi(p.DurationMinutesOffsetFromStartTime)
	if err != nil {
		return time.Time{}, false
	}
	return start.Add(time.Duration(mins) * time.Minute), true
}

// geoValue holds a coordinate written as "geo:lat,lng", "lat°, lng°", or an
// object with a latLng field in either form.
type geoValue string

func (g *geoValue) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*g = geoValue(s)
		return nil
	}
	var obj struct {
		LatLng string `json:"latLng"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*g = geoValue(obj.LatLng)
	return nil
}

func (g geoValue) coords() (lat, lon float64, ok bool) {
	s := strings.TrimPrefix(strings.TrimSpace(string(g)), "geo:")
	s = strings.ReplaceAll(s, "°", "")
	latStr, lonStr, found := strings.Cut(s, ",")
	if !found {
		return 0, 0, false
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(latStr), 64)
	if err != nil {
		return 0, 0, false
	}
	lon, err = strconv.ParseFloat(strings.TrimSpace(lonStr), 64)
	if err != nil {
		return 0, 0, false
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return 0, 0, false
	}
	return lat, lon, true
}

// fromE7 converts E7 coordinates. Some Records exports carry values that
// overflowed a signed 32-bit field (latitudes above 900000000, longitudes
// above 1800000000); those are corrected by subtracting 2^32. Anything still
// out of range is rejected.
func fromE7(latE7, lonE7 int64, ts time.Time) (domain.LocationPoint, bool) {
	if latE7 > maxLatE7 {
		latE7 -= 1 << 32
	}
	if lonE7 > maxLonE7 {
		lonE7 -= 1 << 32
	}
	if latE7 < -maxLatE7 || latE7 > maxLatE7 || lonE7 < -maxLonE7 || lonE7 > maxLonE7 {
		return domain.LocationPoint{}, false
	}
	return domain.LocationPoint{
		Lat:       float64(latE7) / e7,
		Lon:       float64(lonE7) / e7,
		Timestamp: ts,
	}, true
}

// parseTimestamp accepts an RFC 3339 string or, failing that, epoch milliseconds.
func parseTimestamp(rfc, ms string) (time.Time, bool) {
	if rfc != "" {
		return parseRFC3339(rfc)
	}
	if ms == "" {
		return time.Time{}, false
	}
	n, err := strconv.ParseInt(ms, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(n).UTC(), true
}

func parseRFC3339(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
