// Package cache provides the durable stores behind the geocoding cache.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/couchcryptid/location-enrichment/internal/domain"
)

// FileStore keeps the whole cache in memory and persists it as one JSON
// document. Every Put rewrites the full document before returning.
type FileStore struct {
	path   string
	logger *slog.Logger

	mu      sync.Mutex
	entries map[string]domain.CacheValue
	loaded  bool
}

// NewFileStore creates a store backed by the JSON document at path.
func NewFileStore(path string, logger *slog.Logger) *FileStore {
	return &FileStore{
		path:    path,
		logger:  logger,
		entries: make(map[string]domain.CacheValue),
	}
}

// Load reads the document into memory. It runs once; later calls are no-ops.
// A missing file is an empty cache. An unreadable file or one that is not a
// JSON object is logged and also yields an empty cache. Entries that fail to
// decode are logged and dropped; the rest are kept.
func (s *FileStore) Load(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.loaded {
		return nil
	}
	s.loaded = true

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.logger.Info("no geocode cache file, starting empty", "path", s.path)
		return nil
	}
	if err != nil {
		s.logger.Warn("geocode cache unreadable, starting empty", "path", s.path, "error", err)
		return nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		s.logger.Warn("geocode cache corrupt, starting empty", "path", s.path, "error", err)
		return nil
	}

	entries := make(map[string]domain.CacheValue, len(raw))
	skipped := 0
	for key, msg := range raw {
		var v domain.CacheValue
		if err := json.Unmarshal(msg, &v); err != nil {
			s.logger.Warn("skipping corrupt geocode cache entry", "path", s.path, "key", key, "error", err)
			skipped++
			continue
		}
		entries[key] = v
	}
	s.entries = entries
	s.logger.Info("geocode cache loaded", "path", s.path, "entries", len(entries), "skipped", skipped)
	return nil
}

// Get returns the cached value for key.
func (s *FileStore) Get(_ context.Context, key string) (domain.CacheValue, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.entries[key]
	return v, ok
}

// Put stores v under key and rewrites the document.
func (s *FileStore) Put(_ context.Context, key string, v domain.CacheValue) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = v
	return s.persist()
}

// Len reports the number of cached entries.
func (s *FileStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// persist writes to a sibling temp file and renames it over the document so a
// crash mid-write never leaves a truncated cache behind.
func (s *FileStore) persist() error {
	data, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode geocode cache: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp cache file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck,gosec // write error takes precedence
		return fmt.Errorf("write geocode cache: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close() //nolint:errcheck,gosec // sync error takes precedence
		return fmt.Errorf("sync geocode cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close geocode cache: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace geocode cache: %w", err)
	}
	return nil
}
