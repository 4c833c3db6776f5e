package domain

import "context"

// PlaceProvider reverse-geocodes a coordinate. An empty PlaceResult with a nil
// error means the provider answered but had nothing usable.
type PlaceProvider interface {
	Name() string
	ResolvePlace(ctx context.Context, lat, lon float64) (PlaceResult, error)
}

// WaterProvider classifies a coordinate as water or land.
type WaterProvider interface {
	Name() string
	IsWater(ctx context.Context, lat, lon float64) (bool, error)
}

// Credentials holds the per-provider API keys. Each is optional.
type Credentials struct {
	Geoapify string
	Google   string
	OnWater  string
}

// Validate checks that at least one place-resolving provider can be built.
func (c Credentials) Validate() error {
	if c.Geoapify == "" && c.Google == "" {
		return ErrMissingCredentials
	}
	return nil
}
