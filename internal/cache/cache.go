// Package cache keeps place details between runs so that repeated lookups of the
// same place identifier do not hit the API again.
package cache

import (
	"context"
	"time"

	"github.com/UnknownOlympus/pinpoint/internal/models"
)

// DefaultTTL is how long place details stay fresh.
const DefaultTTL = 30 * 24 * time.Hour

// Entry is a cached place details record.
type Entry struct {
	PlaceID          string
	Name             string
	FormattedAddress string
	Lat              float64
	Lng              float64
	FetchedAt        time.Time
	ExpiresAt        time.Time
}

// Expired reports whether the entry is stale at now. Entries without an expiry never go stale.
func (e Entry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

// Details converts the entry back into the details returned by the API.
func (e Entry) Details() *models.PlaceDetails {
	return &models.PlaceDetails{
		PlaceID:          e.PlaceID,
		Name:             e.Name,
		FormattedAddress: e.FormattedAddress,
		Coords:           models.Coordinates{Latitude: e.Lat, Longitude: e.Lng},
	}
}

// FromDetails builds an entry fetched at the given time.
func FromDetails(d *models.PlaceDetails, fetchedAt time.Time) Entry {
	return Entry{
		PlaceID:          d.PlaceID,
		Name:             d.Name,
		FormattedAddress: d.FormattedAddress,
		Lat:              d.Coords.Latitude,
		Lng:              d.Coords.Longitude,
		FetchedAt:        fetchedAt,
	}
}

// Cache stores place details by place identifier. Get returns nil without an error
// on a miss or when the entry has expired.
type Cache interface {
	Get(ctx context.Context, key string) (*Entry, error)
	Put(ctx context.Context, key string, entry Entry, ttl time.Duration) error
}

// Pruner is implemented by caches that can drop expired entries.
type Pruner interface {
	Prune(ctx context.Context, now time.Time) (int, error)
}

// stamp fills in the fetch and expiry times of an entry about to be stored.
func stamp(key string, entry Entry, ttl time.Duration, now time.Time) Entry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if entry.PlaceID == "" {
		entry.PlaceID = key
	}
	if entry.FetchedAt.IsZero() {
		entry.FetchedAt = now
	}
	entry.ExpiresAt = entry.FetchedAt.Add(ttl)
	return entry
}

// Nop never stores anything.
type Nop struct{}

// Get always misses.
func (Nop) Get(context.Context, string) (*Entry, error) { return nil, nil }

// Put discards the entry.
func (Nop) Put(context.Context, string, Entry, time.Duration) error { return nil }
