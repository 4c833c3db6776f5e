// Package onwater classifies coordinates as water or land with the
// IsItWater API on RapidAPI.
package onwater

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/couchcryptid/storm-data-shared/retry"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/location-enrichment/internal/adapter/apiclient"
	"github.com/couchcryptid/location-enrichment/internal/domain"
	"github.com/couchcryptid/location-enrichment/internal/observability"
)

// Name identifies the provider in logs, errors, and metrics.
const Name = "onwater"

const (
	defaultBaseURL = "https://isitwater-com.p.rapidapi.com/"
	rapidAPIHost   = "isitwater-com.p.rapidapi.com"

	// DefaultMaxAttempts is the number of requests made before a rate limit is final.
	DefaultMaxAttempts = 3
	// DefaultBaseDelay is the wait after the first 429; it doubles per attempt.
	DefaultBaseDelay = time.Second
	// maxDelay caps a single backoff wait.
	maxDelay = 30 * time.Second
)

// RetryHook is called before each backoff wait.
type RetryHook func(attempt int, wait time.Duration, err error)

// Client implements domain.WaterProvider.
type Client struct {
	apiKey      string
	baseURL     string
	maxAttempts int
	baseDelay   time.Duration
	api         *apiclient.Client
	clock       clockwork.Clock
	metrics     *observability.Metrics
	logger      *slog.Logger
	onRetry     RetryHook
}

// Option customizes a Client.
type Option func(*Client)

// WithRetry sets the attempt ceiling and the initial backoff delay.
func WithRetry(maxAttempts int, baseDelay time.Duration) Option {
	return func(c *Client) {
		if maxAttempts > 0 {
			c.maxAttempts = maxAttempts
		}
		if baseDelay >= 0 {
			c.baseDelay = baseDelay
		}
	}
}

// WithClock sets the clock used for backoff waits.
func WithClock(clock clockwork.Clock) Option {
	return func(c *Client) { c.clock = clock }
}

// WithBaseURL points the client at another endpoint.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithRetryHook registers a callback run before every backoff wait.
func WithRetryHook(h RetryHook) Option {
	return func(c *Client) { c.onRetry = h }
}

// NewClient creates an OnWater client.
func NewClient(apiKey string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		apiKey:      apiKey,
		baseURL:     defaultBaseURL,
		maxAttempts: DefaultMaxAttempts,
		baseDelay:   DefaultBaseDelay,
		api:         apiclient.New(Name, timeout, metrics, logger),
		clock:       clockwork.NewRealClock(),
		metrics:     metrics,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Name() string { return Name }

// IsWater asks the API whether the coordinate is over water. HTTP 429 is
// retried with exponential backoff up to the attempt ceiling. Every other
// failure, including 403, is returned at once.
func (c *Client) IsWater(ctx context.Context, lat, lon float64) (bool, error) {
	params := url.Values{
		"latitude":  {strconv.FormatFloat(lat, 'f', -1, 64)},
		"longitude": {strconv.FormatFloat(lon, 'f', -1, 64)},
	}
	headers := map[string]string{
		"x-rapidapi-key":  c.apiKey,
		"x-rapidapi-host": rapidAPIHost,
	}

	var lastErr error
	wait := c.baseDelay
	for attempt := range c.maxAttempts {
		var resp response
		err := c.api.GetJSON(ctx, c.baseURL, params, headers, &resp)
		if err == nil {
			return resp.Water, nil
		}
		lastErr = err

		if domain.ProviderErrorKindOf(err) != domain.KindRateLimited {
			return false, err
		}
		if attempt == c.maxAttempts-1 {
			break
		}

		c.metrics.ProviderRetries.WithLabelValues(Name).Inc()
		c.logger.Warn("onwater rate limited, backing off",
			"attempt", attempt+1,
			"wait", wait,
			"lat", lat,
			"lon", lon,
		)
		if c.onRetry != nil {
			c.onRetry(attempt+1, wait, err)
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-c.clock.After(wait):
		}
		wait = retry.NextBackoff(wait, maxDelay)
	}

	return false, &domain.ProviderError{
		Provider:   Name,
		Kind:       domain.KindRateLimited,
		StatusCode: statusOf(lastErr),
		Err:        fmt.Errorf("gave up after %d attempts: %w", c.maxAttempts, lastErr),
	}
}

func statusOf(err error) int {
	var pe *domain.ProviderError
	if errors.As(err, &pe) {
		return pe.StatusCode
	}
	return 0
}

type response struct {
	Water bool `json:"water"`
}
