package pipeline_test

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/location-enrichment/internal/cache"
	"github.com/couchcryptid/location-enrichment/internal/domain"
	"github.com/couchcryptid/location-enrichment/internal/geocode"
	"github.com/couchcryptid/location-enrichment/internal/observability"
	"github.com/couchcryptid/location-enrichment/internal/pipeline"
)

// --- mocks ---

// mockPlaces answers by latitude and counts calls.
type mockPlaces struct {
	byLat map[float64]domain.PlaceResult
	calls int
}

func (m *mockPlaces) Name() string { return "mock" }

func (m *mockPlaces) ResolvePlace(_ context.Context, lat, _ float64) (domain.PlaceResult, error) {
	m.calls++
	if r, ok := m.byLat[lat]; ok {
		return r, nil
	}
	return domain.PlaceResult{}, errors.New("no data")
}

type mockWater struct {
	water bool
	calls int
}

func (m *mockWater) Name() string { return "mock-water" }

func (m *mockWater) IsWater(context.Context, float64, float64) (bool, error) {
	m.calls++
	return m.water, nil
}

func factory(places domain.PlaceProvider, water domain.WaterProvider) geocode.ProviderFactory {
	return func(domain.Credentials, domain.ReportFunc) ([]domain.PlaceProvider, domain.WaterProvider) {
		return []domain.PlaceProvider{places}, water
	}
}

type mockPublisher struct {
	published []domain.AnalysisSummary
	err       error
}

func (m *mockPublisher) Publish(_ context.Context, s domain.AnalysisSummary) error {
	m.published = append(m.published, s)
	return m.err
}

func newTestMetrics() *observability.Metrics {
	return observability.NewMetricsForTesting()
}

func newStore(t *testing.T) *cache.FileStore {
	t.Helper()
	return cache.NewFileStore(filepath.Join(t.TempDir(), "geo_cache.json"), slog.Default())
}

var creds = domain.Credentials{Geoapify: "key"}

var (
	nyc     = domain.PlaceResult{City: "New York", State: "New York", Country: "United States"}
	hoboken = domain.PlaceResult{City: "Hoboken", State: "New Jersey", Country: "United States"}
)

func day(d int, hour int) time.Time {
	return time.Date(2024, time.March, d, hour, 0, 0, 0, time.UTC)
}

// threePoints is A→B→C: two in New York, one in Hoboken.
func threePoints() []domain.LocationPoint {
	return []domain.LocationPoint{
		{Lat: 40.7128, Lon: -74.006, Timestamp: day(1, 9)},
		{Lat: 40.7306, Lon: -73.9866, Timestamp: day(1, 10)},
		{Lat: 40.7440, Lon: -74.0324, Timestamp: day(1, 11)},
	}
}

func threePlaces() *mockPlaces {
	return &mockPlaces{byLat: map[float64]domain.PlaceResult{
		40.7128: nyc,
		40.7306: nyc,
		40.7440: hoboken,
	}}
}

// --- tests ---

func TestEngine_Run_HappyPath(t *testing.T) {
	places := threePlaces()
	pub := &mockPublisher{}
	var events []domain.ProgressEvent

	e := pipeline.New(newStore(t), factory(places, nil), slog.Default(), newTestMetrics(), pipeline.WithPublisher(pub))

	res, err := e.Run(context.Background(), pipeline.Request{
		Points:          threePoints(),
		Credentials:     creds,
		IncludeDistance: true,
		Progress:        func(ev domain.ProgressEvent) { events = append(events, ev) },
	})
	require.NoError(t, err)

	s := res.Summary
	assert.Equal(t, domain.GroupByCity, s.GroupBy)
	assert.NotEmpty(t, s.ID)
	assert.Equal(t, 3, s.TotalPoints)
	assert.Equal(t, 3, s.ResolvedPoints)
	assert.False(t, s.Cancelled)

	pts := threePoints()
	want := domain.Distance(pts[0], pts[1]) + domain.Distance(pts[1], pts[2])
	assert.InDelta(t, want, s.TotalDistanceMiles, 1e-9, "sum of consecutive segments")
	assert.Greater(t, s.TotalDistanceMiles, domain.Distance(pts[0], pts[2]))

	require.Len(t, s.Groups, 2)
	assert.Equal(t, "New York, New York, United States", s.Groups[0].Key)
	assert.Equal(t, 2, s.Groups[0].Points)

	require.Len(t, pub.published, 1)
	assert.Equal(t, 3, pub.published[0].TotalPoints)
	assert.NoError(t, e.CheckReadiness(context.Background()))

	require.NotEmpty(t, events)
	assert.Equal(t, domain.PhaseLoading, events[0].Phase)
	last := events[len(events)-1]
	assert.Equal(t, domain.PhaseComplete, last.Phase)
	assert.Equal(t, 100, last.Percent())
	for i := 1; i < len(events); i++ {
		assert.GreaterOrEqual(t, events[i].Fraction, events[i-1].Fraction, "progress never moves backwards")
	}
}

func TestEngine_Run_SecondRunHitsCache(t *testing.T) {
	places := threePlaces()
	e := pipeline.New(newStore(t), factory(places, nil), slog.Default(), newTestMetrics())

	req := pipeline.Request{Points: threePoints(), Credentials: creds}
	first, err := e.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 3, places.calls)

	second, err := e.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 3, places.calls, "no network calls on a warm cache")

	if diff := cmp.Diff(first.Points, second.Points); diff != "" {
		t.Errorf("points differ (-first +second):\n%s", diff)
	}
}

func TestEngine_Run_CancelAfterN(t *testing.T) {
	const n = 2
	places := threePlaces()
	e := pipeline.New(newStore(t), factory(places, nil), slog.Default(), newTestMetrics())

	res, err := e.Run(context.Background(), pipeline.Request{
		Points:          threePoints(),
		Credentials:     creds,
		IncludeDistance: true,
		Cancelled:       func() bool { return places.calls >= n },
	})
	require.NoError(t, err)

	pts := threePoints()
	assert.True(t, res.Summary.Cancelled)
	assert.Equal(t, n, res.Summary.TotalPoints)
	assert.Equal(t, 3, res.Summary.InputPoints)
	assert.Len(t, res.Points, n)
	assert.InDelta(t, domain.Distance(pts[0], pts[1]), res.Summary.TotalDistanceMiles, 1e-9)
	assert.Equal(t, n, places.calls)
}

func TestEngine_Run_MissingCredentials(t *testing.T) {
	places := threePlaces()
	e := pipeline.New(newStore(t), factory(places, nil), slog.Default(), newTestMetrics())

	_, err := e.Run(context.Background(), pipeline.Request{
		Points:      threePoints(),
		Credentials: domain.Credentials{OnWater: "only-water"},
	})
	require.ErrorIs(t, err, domain.ErrMissingCredentials)
	assert.Zero(t, places.calls)
}

func TestEngine_Run_NoInput(t *testing.T) {
	e := pipeline.New(newStore(t), factory(threePlaces(), nil), slog.Default(), newTestMetrics())

	_, err := e.Run(context.Background(), pipeline.Request{Credentials: creds})
	require.ErrorIs(t, err, domain.ErrNoInput)
}

func TestEngine_Run_InvalidGroupMode(t *testing.T) {
	e := pipeline.New(newStore(t), factory(threePlaces(), nil), slog.Default(), newTestMetrics())

	_, err := e.Run(context.Background(), pipeline.Request{Points: threePoints(), Credentials: creds, GroupBy: "by_planet"})
	require.Error(t, err)
}

func TestEngine_Run_ReadError(t *testing.T) {
	readErr := errors.New("permission denied")
	e := pipeline.New(newStore(t), factory(threePlaces(), nil), slog.Default(), newTestMetrics(),
		pipeline.WithReader(func(string) ([]domain.LocationPoint, error) { return nil, readErr }))

	_, err := e.Run(context.Background(), pipeline.Request{FilePath: "history.json", Credentials: creds})
	require.ErrorIs(t, err, readErr)
}

func TestEngine_Run_DateFilterAndOrdering(t *testing.T) {
	places := &mockPlaces{byLat: map[float64]domain.PlaceResult{1: nyc, 2: nyc, 3: hoboken, 4: hoboken}}
	e := pipeline.New(newStore(t), factory(places, nil), slog.Default(), newTestMetrics())

	points := []domain.LocationPoint{
		{Lat: 4, Lon: 0, Timestamp: day(4, 12)},
		{Lat: 3, Lon: 0, Timestamp: day(3, 23)},
		{Lat: 2, Lon: 0, Timestamp: day(2, 0)},
		{Lat: 1, Lon: 0, Timestamp: day(1, 12)},
	}
	res, err := e.Run(context.Background(), pipeline.Request{
		Points:      points,
		Credentials: creds,
		Start:       day(2, 0),
		End:         day(3, 0),
	})
	require.NoError(t, err)

	require.Len(t, res.Points, 2)
	assert.InDelta(t, 2.0, res.Points[0].Lat, 0)
	assert.InDelta(t, 3.0, res.Points[1].Lat, 0, "end date is inclusive for the whole day")
	assert.Equal(t, 4, res.Summary.InputPoints)
}

func TestEngine_Run_EndBeforeStart(t *testing.T) {
	e := pipeline.New(newStore(t), factory(threePlaces(), nil), slog.Default(), newTestMetrics())

	_, err := e.Run(context.Background(), pipeline.Request{
		Points:      threePoints(),
		Credentials: creds,
		Start:       day(5, 0),
		End:         day(1, 0),
	})
	require.Error(t, err)
}

func TestEngine_Run_ClassifyWater(t *testing.T) {
	places := threePlaces()
	water := &mockWater{water: true}
	e := pipeline.New(newStore(t), factory(places, water), slog.Default(), newTestMetrics())

	res, err := e.Run(context.Background(), pipeline.Request{
		Points:        threePoints(),
		Credentials:   creds,
		ClassifyWater: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, water.calls)
	assert.Equal(t, 3, res.Summary.WaterPoints)

	// Without the flag the water provider is never consulted.
	_, err = e.Run(context.Background(), pipeline.Request{Points: threePoints(), Credentials: creds})
	require.NoError(t, err)
	assert.Equal(t, 3, water.calls)
}

func TestEngine_Run_ExportsReport(t *testing.T) {
	out := t.TempDir()
	e := pipeline.New(newStore(t), factory(threePlaces(), nil), slog.Default(), newTestMetrics())

	res, err := e.Run(context.Background(), pipeline.Request{
		Points:      threePoints(),
		Credentials: creds,
		OutputDir:   out,
		GroupBy:     domain.GroupByState,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"points.csv", "groups_by_state.csv", "summary.json"}, res.Files)
	assert.FileExists(t, filepath.Join(out, "summary.json"))
}

func TestEngine_Run_ExportFailureIsFatal(t *testing.T) {
	e := pipeline.New(newStore(t), factory(threePlaces(), nil), slog.Default(), newTestMetrics(),
		pipeline.WithExporter(func(string, []domain.EnrichedPoint, domain.AnalysisSummary) ([]string, error) {
			return nil, errors.New("disk full")
		}))

	_, err := e.Run(context.Background(), pipeline.Request{Points: threePoints(), Credentials: creds, OutputDir: "out"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestEngine_Run_PublishFailureIsNotFatal(t *testing.T) {
	pub := &mockPublisher{err: errors.New("broker down")}
	e := pipeline.New(newStore(t), factory(threePlaces(), nil), slog.Default(), newTestMetrics(), pipeline.WithPublisher(pub))

	_, err := e.Run(context.Background(), pipeline.Request{Points: threePoints(), Credentials: creds})
	require.NoError(t, err)
	assert.Len(t, pub.published, 1)
}

func TestEngine_Run_DelayUsesClock(t *testing.T) {
	fc := clockwork.NewFakeClock()
	places := threePlaces()
	e := pipeline.New(newStore(t), factory(places, nil), slog.Default(), newTestMetrics(), pipeline.WithClock(fc))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		_, err := e.Run(ctx, pipeline.Request{
			Points:      threePoints()[:1],
			Credentials: creds,
			Delay:       500 * time.Millisecond,
		})
		errCh <- err
	}()

	require.NoError(t, fc.BlockUntilContext(ctx, 1))
	fc.Advance(500 * time.Millisecond)
	require.NoError(t, <-errCh)
}

func TestEngine_CheckReadiness_BeforeLoad(t *testing.T) {
	e := pipeline.New(newStore(t), factory(threePlaces(), nil), slog.Default(), newTestMetrics())
	require.Error(t, e.CheckReadiness(context.Background()))

	require.NoError(t, e.LoadCache(context.Background()))
	require.NoError(t, e.CheckReadiness(context.Background()))
}
