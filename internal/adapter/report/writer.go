// Package report exports an analysis as CSV and JSON files.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/couchcryptid/location-enrichment/internal/domain"
)

// File names written into the output directory.
const (
	PointsFile  = "points.csv"
	SummaryFile = "summary.json"
)

// GroupsFile returns the per-group CSV name for a grouping mode.
func GroupsFile(mode domain.GroupMode) string {
	return fmt.Sprintf("groups_%s.csv", mode)
}

// Write exports points and summary into dir, creating it if needed, and
// returns the names of the files written.
func Write(dir string, points []domain.EnrichedPoint, summary domain.AnalysisSummary) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	groupsFile := GroupsFile(summary.GroupBy)
	if err := writeCSV(filepath.Join(dir, PointsFile), pointRows(points)); err != nil {
		return nil, err
	}
	if err := writeCSV(filepath.Join(dir, groupsFile), groupRows(summary)); err != nil {
		return nil, err
	}
	if err := writeJSON(filepath.Join(dir, SummaryFile), summary); err != nil {
		return nil, err
	}
	return []string{PointsFile, groupsFile, SummaryFile}, nil
}

func pointRows(points []domain.EnrichedPoint) [][]string {
	rows := make([][]string, 0, len(points)+1)
	rows = append(rows, []string{"timestamp", "lat", "lon", "city", "state", "country", "place", "is_water"})
	for _, p := range points {
		rows = append(rows, []string{
			p.Timestamp.UTC().Format(time.RFC3339),
			formatFloat(p.Lat),
			formatFloat(p.Lon),
			p.Place.City,
			p.Place.State,
			p.Place.Country,
			p.Place.Place,
			strconv.FormatBool(p.IsWater),
		})
	}
	return rows
}

func groupRows(s domain.AnalysisSummary) [][]string {
	rows := make([][]string, 0, len(s.Groups)+1)
	rows = append(rows, []string{"group", "city", "state", "country", "cell", "points", "distance_miles", "first_seen", "last_seen"})
	for _, g := range s.Groups {
		rows = append(rows, []string{
			g.Key,
			g.City,
			g.State,
			g.Country,
			g.Cell,
			strconv.Itoa(g.Points),
			strconv.FormatFloat(g.DistanceMiles, 'f', 2, 64),
			g.FirstSeen.UTC().Format(time.RFC3339),
			g.LastSeen.UTC().Format(time.RFC3339),
		})
	}
	return rows
}

func writeCSV(path string, rows [][]string) error {
	f, err := os.Create(path) //nolint:gosec // path is built from the configured output dir
	if err != nil {
		return fmt.Errorf("create %s: %w", filepath.Base(path), err)
	}
	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		f.Close() //nolint:errcheck,gosec // write error takes precedence
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", filepath.Base(path), err)
	}
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil { //nolint:gosec // report files are meant to be shared
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
