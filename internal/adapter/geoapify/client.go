// Package geoapify reverse-geocodes coordinates with the Geoapify API.
package geoapify

import (
	"context"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/location-enrichment/internal/adapter/apiclient"
	"github.com/couchcryptid/location-enrichment/internal/domain"
	"github.com/couchcryptid/location-enrichment/internal/observability"
)

// Name identifies the provider in logs, errors, and metrics.
const Name = "geoapify"

const defaultBaseURL = "https://api.geoapify.com/v1/geocode/reverse"

// Client implements domain.PlaceProvider.
type Client struct {
	apiKey  string
	baseURL string
	api     *apiclient.Client
}

// NewClient creates a Geoapify client.
func NewClient(apiKey string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		api:     apiclient.New(Name, timeout, metrics, logger),
	}
}

func (c *Client) Name() string { return Name }

// ResolvePlace returns the first feature's place metadata. A response with
// no features is reported as open water.
func (c *Client) ResolvePlace(ctx context.Context, lat, lon float64) (domain.PlaceResult, error) {
	params := url.Values{
		"lat":    {strconv.FormatFloat(lat, 'f', -1, 64)},
		"lon":    {strconv.FormatFloat(lon, 'f', -1, 64)},
		"apiKey": {c.apiKey},
	}

	var resp response
	if err := c.api.GetJSON(ctx, c.baseURL, params, nil, &resp); err != nil {
		return domain.PlaceResult{}, err
	}

	if len(resp.Features) == 0 {
		return domain.OpenWater(), nil
	}

	props := resp.Features[0].Properties
	name := strings.ToLower(props.Name)
	city := props.City
	if city == "" {
		city = props.County
	}
	return domain.PlaceResult{
		State:   props.State,
		City:    city,
		Country: props.Country,
		Place:   name,
		IsWater: (props.Category == "natural" && props.Class == "water") || domain.NameIndicatesWater(name),
	}, nil
}

// Geoapify API response types.

type response struct {
	Features []feature `json:"features"`
}

type feature struct {
	Properties properties `json:"properties"`
}

type properties struct {
	Name     string `json:"name"`
	City     string `json:"city"`
	County   string `json:"county"`
	State    string `json:"state"`
	Country  string `json:"country"`
	Category string `json:"category"`
	Class    string `json:"class"`
}
