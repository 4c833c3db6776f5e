// Package apiclient is the shared JSON-over-HTTP transport used by the
// geocoding provider adapters.
package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/couchcryptid/location-enrichment/internal/domain"
	"github.com/couchcryptid/location-enrichment/internal/observability"
)

// DefaultTimeout bounds a single provider call.
const DefaultTimeout = 10 * time.Second

// UserAgent is sent with every provider request.
const UserAgent = "location-enrichment/1.0"

// maxErrorBody caps how much of a non-2xx body is kept in the error.
const maxErrorBody = 512

// Client performs GET requests against one provider and decodes JSON bodies.
type Client struct {
	provider   string
	httpClient *http.Client
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// New creates a client for the named provider. A zero timeout uses DefaultTimeout.
func New(provider string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		provider:   provider,
		httpClient: &http.Client{Timeout: timeout},
		metrics:    metrics,
		logger:     logger,
	}
}

// Provider returns the provider name the client reports errors under.
func (c *Client) Provider() string {
	return c.provider
}

// GetJSON issues a GET to endpoint with query and headers and decodes a 2xx
// body into target. Failures are returned as *domain.ProviderError.
func (c *Client) GetJSON(ctx context.Context, endpoint string, query url.Values, headers map[string]string, target any) error {
	reqURL, err := url.Parse(endpoint)
	if err != nil {
		return c.fail(domain.KindNetwork, 0, fmt.Errorf("parse url: %w", err))
	}
	if len(query) > 0 {
		reqURL.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return c.fail(domain.KindNetwork, 0, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.GeocodeAPIDuration.WithLabelValues(c.provider).Observe(time.Since(start).Seconds())
	if err != nil {
		return c.fail(domain.KindNetwork, 0, err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Debug("close provider response body", "provider", c.provider, "error", cerr)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return c.fail(kindForStatus(resp.StatusCode), resp.StatusCode, errors.New(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return c.fail(domain.KindDecode, resp.StatusCode, err)
	}
	return nil
}

func (c *Client) fail(kind domain.ProviderErrorKind, status int, err error) error {
	return &domain.ProviderError{
		Provider:   c.provider,
		Kind:       kind,
		StatusCode: status,
		Err:        err,
	}
}

func kindForStatus(status int) domain.ProviderErrorKind {
	switch status {
	case http.StatusTooManyRequests:
		return domain.KindRateLimited
	case http.StatusForbidden, http.StatusUnauthorized:
		return domain.KindForbidden
	default:
		return domain.KindStatus
	}
}
