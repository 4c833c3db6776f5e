package apiclient

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/location-enrichment/internal/domain"
	"github.com/couchcryptid/location-enrichment/internal/observability"
)

func testClient() *Client {
	return New("test", 5*time.Second, observability.NewMetricsForTesting(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestGetJSON_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1.5", r.URL.Query().Get("lat"))
		assert.Equal(t, "secret", r.Header.Get("X-Key"))
		assert.Equal(t, UserAgent, r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"value": 42}`))
	}))
	defer srv.Close()

	var out struct {
		Value int `json:"value"`
	}
	err := testClient().GetJSON(context.Background(), srv.URL, url.Values{"lat": {"1.5"}}, map[string]string{"X-Key": "secret"}, &out)
	require.NoError(t, err)
	assert.Equal(t, 42, out.Value)
}

func TestGetJSON_StatusKinds(t *testing.T) {
	tests := []struct {
		status int
		want   domain.ProviderErrorKind
	}{
		{http.StatusTooManyRequests, domain.KindRateLimited},
		{http.StatusForbidden, domain.KindForbidden},
		{http.StatusUnauthorized, domain.KindForbidden},
		{http.StatusInternalServerError, domain.KindStatus},
		{http.StatusBadRequest, domain.KindStatus},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "nope", tt.status)
			}))
			defer srv.Close()

			var out map[string]any
			err := testClient().GetJSON(context.Background(), srv.URL, nil, nil, &out)
			require.Error(t, err)

			var pe *domain.ProviderError
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, tt.want, pe.Kind)
			assert.Equal(t, tt.status, pe.StatusCode)
			assert.Equal(t, "test", pe.Provider)
		})
	}
}

func TestGetJSON_DecodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html>`))
	}))
	defer srv.Close()

	var out map[string]any
	err := testClient().GetJSON(context.Background(), srv.URL, nil, nil, &out)
	assert.Equal(t, domain.KindDecode, domain.ProviderErrorKindOf(err))
}

func TestGetJSON_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	var out map[string]any
	err := testClient().GetJSON(context.Background(), srv.URL, nil, nil, &out)
	assert.Equal(t, domain.KindNetwork, domain.ProviderErrorKindOf(err))
}

func TestGetJSON_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := New("slow", 50*time.Millisecond, observability.NewMetricsForTesting(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	var out map[string]any
	err := c.GetJSON(context.Background(), srv.URL, nil, nil, &out)
	assert.Equal(t, domain.KindNetwork, domain.ProviderErrorKindOf(err))
}
