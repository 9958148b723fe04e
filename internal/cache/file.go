package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/UnknownOlympus/pinpoint/internal/fsutil"
	"github.com/UnknownOlympus/pinpoint/internal/models"
	"github.com/spf13/afero"
)

// DefaultFileName is the sidecar file used when no path is configured.
const DefaultFileName = ".places_cache.json"

// fileRecord is the on-disk shape of one entry. Older files carry only fetched_at.
type fileRecord struct {
	Lat              float64 `json:"lat"`
	Lng              float64 `json:"lng"`
	Name             string  `json:"name"`
	FormattedAddress string  `json:"formatted_address"`
	FetchedAt        string  `json:"fetched_at"`
	ExpiresAt        string  `json:"expires_at,omitempty"`
}

// FileCache is a cache kept in a single JSON file keyed by place identifier.
type FileCache struct {
	fs   afero.Fs
	path string
	ttl  time.Duration
	now  func() time.Time
	log  *slog.Logger

	mu      sync.Mutex
	entries map[string]Entry
	loaded  bool
}

// FileOption tweaks a FileCache.
type FileOption func(*FileCache)

// WithFs replaces the filesystem, tests use an in-memory one.
func WithFs(fs afero.Fs) FileOption {
	return func(c *FileCache) { c.fs = fs }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) FileOption {
	return func(c *FileCache) { c.now = now }
}

// WithLegacyTTL sets the lifetime given to entries stored without an expiry.
func WithLegacyTTL(ttl time.Duration) FileOption {
	return func(c *FileCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// NewFileCache creates a cache backed by the file at path. The file is read on first use.
func NewFileCache(path string, log *slog.Logger, opts ...FileOption) *FileCache {
	c := &FileCache{
		fs:      afero.NewOsFs(),
		path:    path,
		ttl:     DefaultTTL,
		now:     time.Now,
		log:     log,
		entries: make(map[string]Entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Load reads the cache file. A missing file is an empty cache.
func (c *FileCache) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.load()
}

func (c *FileCache) load() error {
	c.loaded = true

	data, err := afero.ReadFile(c.fs, c.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read cache file: %w", err)
	}

	var records map[string]fileRecord
	if err = json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("failed to decode cache file %s: %w", c.path, err)
	}

	for placeID, rec := range records {
		entry := Entry{
			PlaceID:          placeID,
			Name:             rec.Name,
			FormattedAddress: rec.FormattedAddress,
			Lat:              rec.Lat,
			Lng:              rec.Lng,
		}
		fetchedAt, ok := models.ParseTimestamp(rec.FetchedAt)
		if !ok {
			c.log.Debug("Dropping cache entry without a fetch time", "place_id", placeID)
			continue
		}
		entry.FetchedAt = fetchedAt
		if expiresAt, okExp := models.ParseTimestamp(rec.ExpiresAt); okExp {
			entry.ExpiresAt = expiresAt
		} else {
			entry.ExpiresAt = fetchedAt.Add(c.ttl)
		}
		c.entries[placeID] = entry
	}

	c.log.Debug("Place cache loaded", "path", c.path, "entries", len(c.entries))
	return nil
}

func (c *FileCache) ensureLoaded() error {
	if c.loaded {
		return nil
	}
	return c.load()
}

// Get implements Cache.
func (c *FileCache) Get(_ context.Context, key string) (*Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureLoaded(); err != nil {
		return nil, err
	}
	entry, ok := c.entries[key]
	if !ok || entry.Expired(c.now()) {
		return nil, nil
	}
	return &entry, nil
}

// Put implements Cache. The file is rewritten on every call.
func (c *FileCache) Put(_ context.Context, key string, entry Entry, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureLoaded(); err != nil {
		return err
	}
	c.entries[key] = stamp(key, entry, ttl, c.now())
	return c.save()
}

// Prune removes entries that are expired at now and returns how many were dropped.
func (c *FileCache) Prune(_ context.Context, now time.Time) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureLoaded(); err != nil {
		return 0, err
	}
	removed := 0
	for key, entry := range c.entries {
		if entry.Expired(now) {
			delete(c.entries, key)
			removed++
		}
	}
	if removed == 0 {
		return 0, nil
	}
	return removed, c.save()
}

// Len returns the number of entries, expired ones included.
func (c *FileCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *FileCache) save() error {
	records := make(map[string]fileRecord, len(c.entries))
	for key, entry := range c.entries {
		records[key] = fileRecord{
			Lat:              entry.Lat,
			Lng:              entry.Lng,
			Name:             entry.Name,
			FormattedAddress: entry.FormattedAddress,
			FetchedAt:        entry.FetchedAt.UTC().Format(time.RFC3339),
			ExpiresAt:        entry.ExpiresAt.UTC().Format(time.RFC3339),
		}
	}
	if err := fsutil.WriteJSON(c.fs, c.path, records); err != nil {
		return fmt.Errorf("failed to save cache: %w", err)
	}
	return nil
}
