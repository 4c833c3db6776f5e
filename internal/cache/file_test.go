package cache

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/location-enrichment/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFileStore_MissingFileStartsEmpty(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "geo_cache.json"), discardLogger())
	require.NoError(t, s.Load(context.Background()))
	assert.Equal(t, 0, s.Len())
}

func TestFileStore_CorruptFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "geo_cache.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	s := NewFileStore(path, discardLogger())
	require.NoError(t, s.Load(context.Background()))
	assert.Equal(t, 0, s.Len())

	_, ok := s.Get(context.Background(), "40.0,-74.0")
	assert.False(t, ok)
}

func TestFileStore_CorruptEntriesAreSkipped(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "geo_cache.json")
	doc := `{
		"40.71278,-74.00597": {"city": "New York", "state": "New York", "country": "United States"},
		"water:40.71278,-74.00597": false,
		"41.0,-73.0": {"city": 5},
		"42.0,-72.0": 42
	}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	s := NewFileStore(path, discardLogger())
	require.NoError(t, s.Load(ctx))
	assert.Equal(t, 2, s.Len())

	got, ok := s.Get(ctx, "40.71278,-74.00597")
	require.True(t, ok)
	require.NotNil(t, got.Place)
	assert.Equal(t, "New York", got.Place.City)

	water, ok := s.Get(ctx, "water:40.71278,-74.00597")
	require.True(t, ok)
	require.NotNil(t, water.Water)
	assert.False(t, *water.Water)

	_, ok = s.Get(ctx, "41.0,-73.0")
	assert.False(t, ok)
	_, ok = s.Get(ctx, "42.0,-72.0")
	assert.False(t, ok)
}

func TestFileStore_PutIsDurable(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "geo_cache.json")

	s := NewFileStore(path, discardLogger())
	require.NoError(t, s.Load(ctx))

	place := domain.PlaceResult{City: "Hoboken", State: "New Jersey", Country: "United States"}
	require.NoError(t, s.Put(ctx, "40.74399,-74.03236", domain.PlaceValue(place)))
	require.NoError(t, s.Put(ctx, "water:40.74399,-74.03236", domain.WaterValue(false)))

	// A fresh store over the same file sees both entries.
	reloaded := NewFileStore(path, discardLogger())
	require.NoError(t, reloaded.Load(ctx))
	assert.Equal(t, 2, reloaded.Len())

	got, ok := reloaded.Get(ctx, "40.74399,-74.03236")
	require.True(t, ok)
	require.NotNil(t, got.Place)
	if diff := cmp.Diff(place, *got.Place); diff != "" {
		t.Errorf("place mismatch (-want +got):\n%s", diff)
	}

	water, ok := reloaded.Get(ctx, "water:40.74399,-74.03236")
	require.True(t, ok)
	require.NotNil(t, water.Water)
	assert.False(t, *water.Water)
}

func TestFileStore_DocumentShape(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "geo_cache.json")

	s := NewFileStore(path, discardLogger())
	require.NoError(t, s.Load(ctx))
	require.NoError(t, s.Put(ctx, "0.0,0.0", domain.PlaceValue(domain.OpenWater())))
	require.NoError(t, s.Put(ctx, "water:0.0,0.0", domain.WaterValue(true)))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, true, doc["water:0.0,0.0"])
	assert.Equal(t, map[string]any{"is_water": true, "place": "open water"}, doc["0.0,0.0"])

	matches, err := filepath.Glob(filepath.Join(filepath.Dir(path), "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, matches, "temp files are cleaned up")
}

func TestFileStore_LoadIsIdempotent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "geo_cache.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"1.0,2.0": {"city": "A"}}`), 0o600))

	s := NewFileStore(path, discardLogger())
	require.NoError(t, s.Load(ctx))
	require.NoError(t, s.Put(ctx, "3.0,4.0", domain.PlaceValue(domain.PlaceResult{City: "B"})))

	// Overwrite the file behind the store's back; a second Load must not clobber memory.
	require.NoError(t, os.WriteFile(path, []byte(`{}`), 0o600))
	require.NoError(t, s.Load(ctx))
	assert.Equal(t, 2, s.Len())
}
