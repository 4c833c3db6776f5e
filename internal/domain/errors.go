package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingCredentials means neither a Geoapify nor a Google key was supplied.
	ErrMissingCredentials = errors.New("at least one of the Geoapify or Google API keys is required")
	// ErrNoInput means a request carried neither a file path nor points.
	ErrNoInput = errors.New("no input: a location file or points are required")
)

// ProviderErrorKind classifies provider failures for logging and fallback decisions.
type ProviderErrorKind string

const (
	KindNetwork     ProviderErrorKind = "network"
	KindStatus      ProviderErrorKind = "status"
	KindRateLimited ProviderErrorKind = "rate_limited"
	KindForbidden   ProviderErrorKind = "forbidden"
	KindDecode      ProviderErrorKind = "decode"
	KindAPI         ProviderErrorKind = "api"
)

// ProviderError is returned by provider adapters.
type ProviderError struct {
	Provider   string
	Kind       ProviderErrorKind
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Provider, e.Kind)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// ProviderErrorKindOf returns the kind of a wrapped ProviderError, or "" if err is not one.
func ProviderErrorKindOf(err error) ProviderErrorKind {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}
