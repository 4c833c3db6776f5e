// Package google reverse-geocodes coordinates with the Google Geocoding API.
package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/location-enrichment/internal/adapter/apiclient"
	"github.com/couchcryptid/location-enrichment/internal/domain"
	"github.com/couchcryptid/location-enrichment/internal/observability"
)

// Name identifies the provider in logs, errors, and metrics.
const Name = "google"

const defaultBaseURL = "https://maps.googleapis.com/maps/api/geocode/json"

// Geocoding API status values.
const (
	statusOK          = "OK"
	statusZeroResults = "ZERO_RESULTS"
)

// Client implements domain.PlaceProvider.
type Client struct {
	apiKey  string
	baseURL string
	api     *apiclient.Client
}

// NewClient creates a Google Geocoding client.
func NewClient(apiKey string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		api:     apiclient.New(Name, timeout, metrics, logger),
	}
}

func (c *Client) Name() string { return Name }

// ResolvePlace extracts state, city, and country from the first result's
// address components. City prefers locality and falls back to
// administrative_area_level_2. ZERO_RESULTS is reported as open water; any
// other non-OK status is an API error.
func (c *Client) ResolvePlace(ctx context.Context, lat, lon float64) (domain.PlaceResult, error) {
	params := url.Values{
		"latlng": {strconv.FormatFloat(lat, 'f', -1, 64) + "," + strconv.FormatFloat(lon, 'f', -1, 64)},
		"key":    {c.apiKey},
	}

	var resp response
	if err := c.api.GetJSON(ctx, c.baseURL, params, nil, &resp); err != nil {
		return domain.PlaceResult{}, err
	}

	switch resp.Status {
	case statusOK:
	case statusZeroResults:
		return domain.OpenWater(), nil
	default:
		return domain.PlaceResult{}, &domain.ProviderError{
			Provider: Name,
			Kind:     domain.KindAPI,
			Err:      fmt.Errorf("status %s: %s", resp.Status, resp.ErrorMessage),
		}
	}
	if len(resp.Results) == 0 {
		return domain.PlaceResult{}, &domain.ProviderError{
			Provider: Name,
			Kind:     domain.KindDecode,
			Err:      errors.New("status OK with no results"),
		}
	}

	first := resp.Results[0]
	var result domain.PlaceResult
	var county string
	for _, comp := range first.AddressComponents {
		if comp.has("administrative_area_level_1") {
			result.State = comp.LongName
		}
		if comp.has("locality") {
			result.City = comp.LongName
		}
		if comp.has("administrative_area_level_2") && county == "" {
			county = comp.LongName
		}
		if comp.has("country") {
			result.Country = comp.LongName
		}
	}
	if result.City == "" {
		result.City = county
	}
	result.IsWater = slices.Contains(first.Types, "natural_feature")
	result.Place = strings.ToLower(first.FormattedAddress)
	return result, nil
}

// Google Geocoding API response types.

type response struct {
	Status       string   `json:"status"`
	ErrorMessage string   `json:"error_message"`
	Results      []result `json:"results"`
}

type result struct {
	AddressComponents []addressComponent `json:"address_components"`
	FormattedAddress  string             `json:"formatted_address"`
	Types             []string           `json:"types"`
}

type addressComponent struct {
	LongName string   `json:"long_name"`
	Types    []string `json:"types"`
}

func (a addressComponent) has(t string) bool {
	return slices.Contains(a.Types, t)
}
