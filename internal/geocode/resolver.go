// Package geocode resolves coordinates to places and water flags through a
// durable cache and an ordered chain of provider adapters.
package geocode

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/location-enrichment/internal/domain"
	"github.com/couchcryptid/location-enrichment/internal/observability"
)

// Store is the persistent cache contract. Put must not return until the value
// is durable.
type Store interface {
	Load(ctx context.Context) error
	Get(ctx context.Context, key string) (domain.CacheValue, bool)
	Put(ctx context.Context, key string, v domain.CacheValue) error
}

// Resolver consults the cache, then the providers, and writes every miss back.
// It is not safe for concurrent use against the same store.
type Resolver struct {
	store   Store
	places  []domain.PlaceProvider
	water   domain.WaterProvider
	delay   time.Duration
	clock   clockwork.Clock
	report  domain.ReportFunc
	metrics *observability.Metrics
	logger  *slog.Logger
}

// Option customizes a Resolver.
type Option func(*Resolver)

// WithWaterProvider sets the dedicated water classifier tried before deriving
// water status from a place lookup.
func WithWaterProvider(p domain.WaterProvider) Option {
	return func(r *Resolver) { r.water = p }
}

// WithDelay sets the pause that follows a provider network call. Cache hits
// never pause.
func WithDelay(d time.Duration) Option {
	return func(r *Resolver) { r.delay = d }
}

// WithClock sets the clock used for the inter-call delay.
func WithClock(c clockwork.Clock) Option {
	return func(r *Resolver) { r.clock = c }
}

// WithReporter sets the callback that receives decision-point messages.
func WithReporter(fn domain.ReportFunc) Option {
	return func(r *Resolver) { r.report = fn }
}

// NewResolver creates a resolver over store. places is tried in order and the
// first non-empty result wins.
func NewResolver(store Store, places []domain.PlaceProvider, metrics *observability.Metrics, logger *slog.Logger, opts ...Option) *Resolver {
	r := &Resolver{
		store:   store,
		places:  places,
		clock:   clockwork.NewRealClock(),
		report:  func(string) {},
		metrics: metrics,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ResolvePlace returns the place for a coordinate. Provider failures never
// surface as errors; only a failed cache write or a cancelled context does.
// The result may be empty when every provider failed, and that empty result
// is cached too.
func (r *Resolver) ResolvePlace(ctx context.Context, lat, lon float64) (domain.PlaceResult, error) {
	primary, legacy := domain.PlaceKeys(lat, lon)

	if v, ok := r.store.Get(ctx, primary); ok && v.Place != nil {
		r.metrics.GeocodeCache.WithLabelValues("place", "hit").Inc()
		r.reportf("place cache hit (%.5f, %.5f): %s", lat, lon, describe(*v.Place))
		return *v.Place, nil
	}
	if v, ok := r.store.Get(ctx, legacy); ok && v.Place != nil {
		r.metrics.GeocodeCache.WithLabelValues("place", "legacy_hit").Inc()
		r.reportf("place cache hit on legacy key (%.5f, %.5f): %s", lat, lon, describe(*v.Place))
		return *v.Place, nil
	}
	r.metrics.GeocodeCache.WithLabelValues("place", "miss").Inc()

	result, err := r.lookupPlace(ctx, lat, lon)
	if err != nil {
		return domain.PlaceResult{}, err
	}

	if err := r.put(ctx, primary, domain.PlaceValue(result)); err != nil {
		return domain.PlaceResult{}, err
	}
	return result, nil
}

func (r *Resolver) lookupPlace(ctx context.Context, lat, lon float64) (domain.PlaceResult, error) {
	for _, p := range r.places {
		r.reportf("place cache miss (%.5f, %.5f): calling %s", lat, lon, p.Name())

		result, err := p.ResolvePlace(ctx, lat, lon)
		if ctx.Err() != nil {
			return domain.PlaceResult{}, ctx.Err()
		}
		if err != nil {
			r.providerFailed(p.Name(), lat, lon, err)
		} else if result.IsEmpty() {
			r.metrics.GeocodeRequests.WithLabelValues(p.Name(), "empty").Inc()
		} else {
			r.metrics.GeocodeRequests.WithLabelValues(p.Name(), "success").Inc()
		}

		if err := r.pause(ctx); err != nil {
			return domain.PlaceResult{}, err
		}
		if err == nil && !result.IsEmpty() {
			return result, nil
		}
	}

	r.reportf("no provider resolved (%.5f, %.5f)", lat, lon)
	return domain.PlaceResult{}, nil
}

// ResolveWater reports whether a coordinate is over water. When the water
// provider is absent or fails, the answer is derived from ResolvePlace.
// Every outcome is cached under the water namespace.
func (r *Resolver) ResolveWater(ctx context.Context, lat, lon float64) (bool, error) {
	primary, legacy := domain.WaterKeys(lat, lon)

	if v, ok := r.store.Get(ctx, primary); ok && v.Water != nil {
		r.metrics.GeocodeCache.WithLabelValues("water", "hit").Inc()
		r.reportf("water cache hit (%.5f, %.5f): %s", lat, lon, waterLabel(*v.Water))
		return *v.Water, nil
	}
	if v, ok := r.store.Get(ctx, legacy); ok && v.Water != nil {
		r.metrics.GeocodeCache.WithLabelValues("water", "legacy_hit").Inc()
		r.reportf("water cache hit on legacy key (%.5f, %.5f): %s", lat, lon, waterLabel(*v.Water))
		return *v.Water, nil
	}
	r.metrics.GeocodeCache.WithLabelValues("water", "miss").Inc()

	water, ok, err := r.lookupWater(ctx, lat, lon)
	if err != nil {
		return false, err
	}
	if !ok {
		place, err := r.ResolvePlace(ctx, lat, lon)
		if err != nil {
			return false, err
		}
		water = place.IsWater
	}

	if err := r.put(ctx, primary, domain.WaterValue(water)); err != nil {
		return false, err
	}
	return water, nil
}

// lookupWater asks the water provider. ok is false when the answer must be
// derived from a place lookup instead.
func (r *Resolver) lookupWater(ctx context.Context, lat, lon float64) (water, ok bool, err error) {
	if r.water == nil {
		r.reportf("water cache miss (%.5f, %.5f): no water provider, deriving from place", lat, lon)
		return false, false, nil
	}

	r.reportf("water cache miss (%.5f, %.5f): calling %s", lat, lon, r.water.Name())
	water, perr := r.water.IsWater(ctx, lat, lon)
	if ctx.Err() != nil {
		return false, false, ctx.Err()
	}
	if perr != nil {
		r.providerFailed(r.water.Name(), lat, lon, perr)
		r.reportf("%s failed (%.5f, %.5f): falling back to place providers", r.water.Name(), lat, lon)
		return false, false, nil
	}

	r.metrics.GeocodeRequests.WithLabelValues(r.water.Name(), "success").Inc()
	r.reportf("water check (%.5f, %.5f): %s", lat, lon, waterLabel(water))
	if err := r.pause(ctx); err != nil {
		return false, false, err
	}
	return water, true, nil
}

func (r *Resolver) providerFailed(provider string, lat, lon float64, err error) {
	outcome := string(domain.ProviderErrorKindOf(err))
	if outcome == "" {
		outcome = "error"
	}
	r.metrics.GeocodeRequests.WithLabelValues(provider, outcome).Inc()
	r.logger.Warn("provider lookup failed",
		"provider", provider,
		"lat", lat,
		"lon", lon,
		"error", err,
	)
	r.reportf("%s error (%.5f, %.5f): %v", provider, lat, lon, err)
}

func (r *Resolver) put(ctx context.Context, key string, v domain.CacheValue) error {
	if err := r.store.Put(ctx, key, v); err != nil {
		r.metrics.CacheWrites.WithLabelValues("error").Inc()
		return fmt.Errorf("write geocode cache: %w", err)
	}
	r.metrics.CacheWrites.WithLabelValues("success").Inc()
	return nil
}

// pause waits out the configured delay after a network call.
func (r *Resolver) pause(ctx context.Context) error {
	if r.delay <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-r.clock.After(r.delay):
		return nil
	}
}

func (r *Resolver) reportf(format string, args ...any) {
	r.report(fmt.Sprintf(format, args...))
}

func describe(p domain.PlaceResult) string {
	if p.IsEmpty() {
		return "unresolved"
	}
	if p.City != "" {
		return p.City
	}
	return p.Place
}

func waterLabel(w bool) string {
	if w {
		return "water"
	}
	return "land"
}
