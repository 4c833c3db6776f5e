package geocode

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/location-enrichment/internal/adapter/geoapify"
	"github.com/couchcryptid/location-enrichment/internal/adapter/google"
	"github.com/couchcryptid/location-enrichment/internal/adapter/onwater"
	"github.com/couchcryptid/location-enrichment/internal/domain"
	"github.com/couchcryptid/location-enrichment/internal/observability"
)

// ProviderFactory builds the provider chain for one set of credentials. report
// receives retry-wait messages from providers that back off.
type ProviderFactory func(creds domain.Credentials, report domain.ReportFunc) ([]domain.PlaceProvider, domain.WaterProvider)

// ProviderConfig tunes the HTTP provider adapters.
type ProviderConfig struct {
	Timeout            time.Duration
	OnWaterMaxAttempts int
	OnWaterBaseDelay   time.Duration
}

// HTTPProviders returns a factory for the Geoapify, Google, and OnWater
// adapters. Place providers are ordered Geoapify then Google; any without a
// key is left out, as is OnWater.
func HTTPProviders(cfg ProviderConfig, metrics *observability.Metrics, logger *slog.Logger) ProviderFactory {
	return func(creds domain.Credentials, report domain.ReportFunc) ([]domain.PlaceProvider, domain.WaterProvider) {
		var places []domain.PlaceProvider
		if creds.Geoapify != "" {
			places = append(places, geoapify.NewClient(creds.Geoapify, cfg.Timeout, metrics, logger))
		}
		if creds.Google != "" {
			places = append(places, google.NewClient(creds.Google, cfg.Timeout, metrics, logger))
		}

		var water domain.WaterProvider
		if creds.OnWater != "" {
			water = onwater.NewClient(creds.OnWater, cfg.Timeout, metrics, logger,
				onwater.WithRetry(cfg.OnWaterMaxAttempts, cfg.OnWaterBaseDelay),
				onwater.WithRetryHook(func(attempt int, wait time.Duration, err error) {
					if report != nil {
						report(fmt.Sprintf("onwater rate limited (attempt %d): retrying in %s: %v", attempt, wait, err))
					}
				}),
			)
		}
		return places, water
	}
}
