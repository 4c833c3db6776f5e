// Package pipeline runs one enrichment analysis: load points, filter them by
// date, resolve each through the geocode cache and providers, aggregate, and
// export.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/location-enrichment/internal/adapter/report"
	"github.com/couchcryptid/location-enrichment/internal/adapter/takeout"
	"github.com/couchcryptid/location-enrichment/internal/domain"
	"github.com/couchcryptid/location-enrichment/internal/geocode"
	"github.com/couchcryptid/location-enrichment/internal/observability"
)

// DefaultBatchSize is used when a request does not set one.
const DefaultBatchSize = 50

// Progress checkpoints, as fractions of a whole run.
const (
	fracStarted  = 0.05
	fracLoaded   = 0.10
	fracFiltered = 0.20
	fracResolved = 0.70
	fracTotals   = 0.85
	fracExported = 0.95
)

// ReadFunc loads the points in a location-history file.
type ReadFunc func(path string) ([]domain.LocationPoint, error)

// ExportFunc writes an analysis into dir and returns the file names written.
type ExportFunc func(dir string, points []domain.EnrichedPoint, summary domain.AnalysisSummary) ([]string, error)

// SummaryPublisher hands a finished summary to a downstream system.
type SummaryPublisher interface {
	Publish(ctx context.Context, summary domain.AnalysisSummary) error
}

// Request is one analysis invocation.
type Request struct {
	// ID labels the run in its summary. A random UUID is used when empty.
	ID string

	// FilePath is read when Points is nil.
	FilePath string
	Points   []domain.LocationPoint

	// Start and End bound the analysis by calendar date (UTC), inclusive.
	// A zero bound is open.
	Start time.Time
	End   time.Time

	// OutputDir receives the report files. Empty skips the export.
	OutputDir string
	GroupBy   domain.GroupMode

	Credentials domain.Credentials
	Delay       time.Duration
	BatchSize   int

	Progress  domain.ProgressFunc
	Cancelled domain.CancelFunc

	IncludeDistance bool
	// ClassifyWater runs a separate water lookup per point instead of using
	// the place result's water flag.
	ClassifyWater bool
}

// Result is what a completed or cancelled run produced.
type Result struct {
	Summary domain.AnalysisSummary
	Points  []domain.EnrichedPoint
	Files   []string
}

// Engine executes analysis requests against one cache store. Runs are
// synchronous; callers that need concurrency run the engine on their own
// goroutine. Concurrent runs against the same store are not supported.
type Engine struct {
	store     geocode.Store
	providers geocode.ProviderFactory
	readFile  ReadFunc
	export    ExportFunc
	publisher SummaryPublisher
	clock     clockwork.Clock
	logger    *slog.Logger
	metrics   *observability.Metrics

	loadMu sync.Mutex
	loaded atomic.Bool
}

// Option customizes an Engine.
type Option func(*Engine)

// WithReader replaces the location-history reader.
func WithReader(fn ReadFunc) Option {
	return func(e *Engine) { e.readFile = fn }
}

// WithExporter replaces the report exporter.
func WithExporter(fn ExportFunc) Option {
	return func(e *Engine) { e.export = fn }
}

// WithPublisher publishes every finished summary.
func WithPublisher(p SummaryPublisher) Option {
	return func(e *Engine) { e.publisher = p }
}

// WithClock sets the clock used for provider delays.
func WithClock(c clockwork.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// New creates an Engine.
func New(store geocode.Store, providers geocode.ProviderFactory, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Engine {
	e := &Engine{
		store:     store,
		providers: providers,
		readFile:  takeout.ReadFile,
		export:    report.Write,
		clock:     clockwork.NewRealClock(),
		logger:    logger,
		metrics:   metrics,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// LoadCache loads the cache store. It is called once at startup and again,
// as a no-op, at the start of every run.
func (e *Engine) LoadCache(ctx context.Context) error {
	if e.loaded.Load() {
		return nil
	}
	e.loadMu.Lock()
	defer e.loadMu.Unlock()
	if e.loaded.Load() {
		return nil
	}
	if err := e.store.Load(ctx); err != nil {
		return fmt.Errorf("load geocode cache: %w", err)
	}
	e.loaded.Store(true)
	return nil
}

// CheckReadiness returns nil once the cache store has been loaded.
func (e *Engine) CheckReadiness(_ context.Context) error {
	if !e.loaded.Load() {
		return errors.New("geocode cache not loaded")
	}
	return nil
}

// Run executes req. Configuration problems are returned before any network
// activity. A single point's provider failures never fail the run; cache
// write and file I/O failures do. When req.Cancelled reports true between
// points, Run stops and returns a summary of the points resolved so far.
func (e *Engine) Run(ctx context.Context, req Request) (Result, error) {
	mode, err := e.validate(&req)
	if err != nil {
		return Result{}, err
	}

	e.metrics.AnalysesRunning.Inc()
	defer e.metrics.AnalysesRunning.Dec()
	start := time.Now()

	r := newRun(req)
	r.emit(domain.PhaseLoading, fracStarted, "Starting analysis")

	if err := e.LoadCache(ctx); err != nil {
		return Result{}, err
	}

	points := req.Points
	if points == nil {
		points, err = e.readFile(req.FilePath)
		if err != nil {
			return Result{}, fmt.Errorf("read location file: %w", err)
		}
	}
	r.emit(domain.PhaseLoading, fracLoaded, fmt.Sprintf("Found %d location points", len(points)))

	selected := filterByDate(points, req.Start, req.End)
	r.emit(domain.PhaseFiltering, fracFiltered, fmt.Sprintf("Filtered to %d points in date range", len(selected)))

	places, water := e.providers(req.Credentials, r.report)
	resolverOpts := []geocode.Option{
		geocode.WithDelay(req.Delay),
		geocode.WithClock(e.clock),
		geocode.WithReporter(r.report),
	}
	if water != nil {
		resolverOpts = append(resolverOpts, geocode.WithWaterProvider(water))
	}
	resolver := geocode.NewResolver(e.store, places, e.metrics, e.logger, resolverOpts...)

	agg := domain.NewAggregator(mode, req.IncludeDistance)
	r.emit(domain.PhaseResolving, fracFiltered, fmt.Sprintf("Resolving %d points in batches of %d", len(selected), req.BatchSize))
	enriched, cancelled, err := e.resolveAll(ctx, r, resolver, agg, selected)
	if err != nil {
		return Result{}, err
	}
	r.emit(domain.PhaseResolving, fracResolved, fmt.Sprintf("Geocoded %d of %d points", len(enriched), len(selected)))

	summary := agg.Summary()
	summary.ID = req.ID
	summary.InputPoints = len(points)
	summary.Cancelled = cancelled
	if req.IncludeDistance {
		r.emit(domain.PhaseAggregating, fracTotals, fmt.Sprintf("Total distance: %.2f miles", summary.TotalDistanceMiles))
	} else {
		r.emit(domain.PhaseAggregating, fracTotals, fmt.Sprintf("Grouped %d points into %d groups", summary.TotalPoints, len(summary.Groups)))
	}

	result := Result{Summary: summary, Points: enriched}
	if req.OutputDir != "" {
		files, err := e.export(req.OutputDir, enriched, summary)
		if err != nil {
			e.metrics.SummariesReported.WithLabelValues("report", "error").Inc()
			return Result{}, fmt.Errorf("export report: %w", err)
		}
		e.metrics.SummariesReported.WithLabelValues("report", "success").Inc()
		result.Files = files
		r.emit(domain.PhaseExporting, fracExported, fmt.Sprintf("Results exported to %s", req.OutputDir))
	}

	e.publish(ctx, summary)

	e.metrics.AnalysisDuration.Observe(time.Since(start).Seconds())
	e.logger.Info("analysis finished",
		"points", summary.TotalPoints,
		"resolved", summary.ResolvedPoints,
		"unresolved", summary.UnresolvedPoints,
		"miles", summary.TotalDistanceMiles,
		"cancelled", cancelled,
	)
	r.emit(domain.PhaseComplete, 1, "Analysis complete")
	return result, nil
}

func (e *Engine) validate(req *Request) (domain.GroupMode, error) {
	if err := req.Credentials.Validate(); err != nil {
		return "", err
	}
	if req.Points == nil && req.FilePath == "" {
		return "", domain.ErrNoInput
	}
	mode, err := domain.ParseGroupMode(string(req.GroupBy))
	if err != nil {
		return "", err
	}
	if !req.Start.IsZero() && !req.End.IsZero() && day(req.End).Before(day(req.Start)) {
		return "", fmt.Errorf("end date %s is before start date %s", req.End.Format(time.DateOnly), req.Start.Format(time.DateOnly))
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.BatchSize <= 0 {
		req.BatchSize = DefaultBatchSize
	}
	if req.Cancelled == nil {
		req.Cancelled = domain.NeverCancel
	}
	return mode, nil
}

// resolveAll resolves points in order, in batches, polling for cancellation
// before each point.
func (e *Engine) resolveAll(ctx context.Context, r *run, resolver *geocode.Resolver, agg *domain.Aggregator, points []domain.LocationPoint) ([]domain.EnrichedPoint, bool, error) {
	enriched := make([]domain.EnrichedPoint, 0, len(points))
	batch := r.req.BatchSize

	for i, p := range points {
		if r.req.Cancelled() {
			r.emit(domain.PhaseResolving, r.fraction, fmt.Sprintf("Cancelled after %d of %d points", i, len(points)))
			e.logger.Info("analysis cancelled", "resolved", i, "total", len(points))
			return enriched, true, nil
		}

		ep, err := e.enrich(ctx, resolver, r.req.ClassifyWater, p)
		if err != nil {
			return nil, false, err
		}
		agg.Add(ep)
		enriched = append(enriched, ep)

		e.metrics.PointsProcessed.Inc()
		if !ep.Resolved() {
			e.metrics.PointsUnresolved.Inc()
		}

		done := i + 1
		if done%batch == 0 || done == len(points) {
			frac := fracFiltered + (fracResolved-fracFiltered)*float64(done)/float64(len(points))
			r.emit(domain.PhaseResolving, frac, fmt.Sprintf("Resolved %d of %d points", done, len(points)))
		}
	}
	return enriched, false, nil
}

func (e *Engine) enrich(ctx context.Context, resolver *geocode.Resolver, classifyWater bool, p domain.LocationPoint) (domain.EnrichedPoint, error) {
	place, err := resolver.ResolvePlace(ctx, p.Lat, p.Lon)
	if err != nil {
		return domain.EnrichedPoint{}, err
	}
	ep := domain.EnrichedPoint{LocationPoint: p, Place: place, IsWater: place.IsWater}
	if classifyWater {
		water, err := resolver.ResolveWater(ctx, p.Lat, p.Lon)
		if err != nil {
			return domain.EnrichedPoint{}, err
		}
		ep.IsWater = water
	}
	return ep, nil
}

func (e *Engine) publish(ctx context.Context, summary domain.AnalysisSummary) {
	if e.publisher == nil {
		return
	}
	if err := e.publisher.Publish(ctx, summary); err != nil {
		e.metrics.SummariesReported.WithLabelValues("kafka", "error").Inc()
		e.logger.Error("publish summary failed", "error", err)
		return
	}
	e.metrics.SummariesReported.WithLabelValues("kafka", "success").Inc()
}

// run carries the per-invocation progress state.
type run struct {
	req      Request
	fraction float64
	phase    domain.Phase
}

func newRun(req Request) *run {
	return &run{req: req, phase: domain.PhaseLoading}
}

func (r *run) emit(phase domain.Phase, fraction float64, msg string) {
	r.phase = phase
	r.fraction = fraction
	if r.req.Progress != nil {
		r.req.Progress(domain.ProgressEvent{Phase: phase, Fraction: fraction, Message: msg})
	}
}

// report forwards resolver messages at the current phase and fraction.
func (r *run) report(msg string) {
	if r.req.Progress != nil {
		r.req.Progress(domain.ProgressEvent{Phase: r.phase, Fraction: r.fraction, Message: msg})
	}
}

// filterByDate keeps points whose UTC calendar date lies in [start, end] and
// returns them stably sorted by timestamp.
func filterByDate(points []domain.LocationPoint, start, end time.Time) []domain.LocationPoint {
	out := make([]domain.LocationPoint, 0, len(points))
	for _, p := range points {
		d := day(p.Timestamp)
		if !start.IsZero() && d.Before(day(start)) {
			continue
		}
		if !end.IsZero() && d.After(day(end)) {
			continue
		}
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

func day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
