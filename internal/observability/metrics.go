package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "location_enrich"

// Metrics holds the Prometheus counters, histograms, and gauges for the enrichment engine.
type Metrics struct {
	PointsProcessed   prometheus.Counter
	PointsUnresolved  prometheus.Counter
	AnalysesRunning   prometheus.Gauge
	AnalysisDuration  prometheus.Histogram
	SummariesReported *prometheus.CounterVec // labels: sink={report,kafka}, outcome={success,error}

	// Geocoding metrics.
	GeocodeRequests    *prometheus.CounterVec   // labels: provider, outcome={success,empty,<error kind>}
	GeocodeCache       *prometheus.CounterVec   // labels: kind={place,water}, result={hit,legacy_hit,miss}
	GeocodeAPIDuration *prometheus.HistogramVec // labels: provider
	ProviderRetries    *prometheus.CounterVec   // labels: provider
	CacheWrites        *prometheus.CounterVec   // labels: outcome={success,error}
}

// NewMetrics creates and registers all engine metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.PointsProcessed,
		m.PointsUnresolved,
		m.AnalysesRunning,
		m.AnalysisDuration,
		m.SummariesReported,
		m.GeocodeRequests,
		m.GeocodeCache,
		m.GeocodeAPIDuration,
		m.ProviderRetries,
		m.CacheWrites,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		PointsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "points_processed_total",
			Help:      "Total location points run through place resolution.",
		}),
		PointsUnresolved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "points_unresolved_total",
			Help:      "Points for which every provider failed.",
		}),
		AnalysesRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "analyses_running",
			Help:      "Number of analyses currently in progress.",
		}),
		AnalysisDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_duration_seconds",
			Help:      "Wall time of a complete analysis run.",
			Buckets:   []float64{0.1, 1, 5, 15, 60, 300, 900, 3600},
		}),
		SummariesReported: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "summaries_reported_total",
			Help:      "Summaries handed to an output sink by sink and outcome.",
		}, []string{"sink", "outcome"}),
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_requests_total",
			Help:      "Provider requests by provider and outcome.",
		}, []string{"provider", "outcome"}),
		GeocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_cache_total",
			Help:      "Cache lookups by kind and result.",
		}, []string{"kind", "result"}),
		GeocodeAPIDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "geocode_api_duration_seconds",
			Help:      "Provider API request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"provider"}),
		ProviderRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_retries_total",
			Help:      "Rate-limit retries by provider.",
		}, []string{"provider"}),
		CacheWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_writes_total",
			Help:      "Cache store writes by outcome.",
		}, []string{"outcome"}),
	}
}
