package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
)

// PostgresCache keeps place details in the place_details_cache table.
type PostgresCache struct {
	db  Database
	log *slog.Logger
	now func() time.Time
}

// NewPostgresCache creates a cache on top of an open database.
func NewPostgresCache(db Database, log *slog.Logger) *PostgresCache {
	return &PostgresCache{db: db, log: log, now: time.Now}
}

// EnsureSchema creates the cache table when it does not exist yet.
func (p *PostgresCache) EnsureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS place_details_cache (
			place_id          TEXT PRIMARY KEY,
			name              TEXT NOT NULL DEFAULT '',
			formatted_address TEXT NOT NULL DEFAULT '',
			lat               DOUBLE PRECISION NOT NULL,
			lng               DOUBLE PRECISION NOT NULL,
			fetched_at        TIMESTAMPTZ NOT NULL,
			expires_at        TIMESTAMPTZ NOT NULL
		);
	`

	if _, err := p.db.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create place cache table: %w", err)
	}
	return nil
}

// Get implements Cache.
func (p *PostgresCache) Get(ctx context.Context, key string) (*Entry, error) {
	query := `
		SELECT place_id, name, formatted_address, lat, lng, fetched_at, expires_at
		FROM place_details_cache
		WHERE place_id = $1 AND expires_at > $2;
	`

	var entry Entry
	err := p.db.QueryRow(ctx, query, key, p.now()).Scan(
		&entry.PlaceID, &entry.Name, &entry.FormattedAddress,
		&entry.Lat, &entry.Lng, &entry.FetchedAt, &entry.ExpiresAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query cached place: %w", err)
	}

	return &entry, nil
}

// Put implements Cache. An existing row for the same place is replaced.
func (p *PostgresCache) Put(ctx context.Context, key string, entry Entry, ttl time.Duration) error {
	entry = stamp(key, entry, ttl, p.now())
	query := `
		INSERT INTO place_details_cache (place_id, name, formatted_address, lat, lng, fetched_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (place_id) DO UPDATE SET
			name = EXCLUDED.name,
			formatted_address = EXCLUDED.formatted_address,
			lat = EXCLUDED.lat,
			lng = EXCLUDED.lng,
			fetched_at = EXCLUDED.fetched_at,
			expires_at = EXCLUDED.expires_at;
	`

	_, err := p.db.Exec(ctx, query,
		key, entry.Name, entry.FormattedAddress, entry.Lat, entry.Lng, entry.FetchedAt, entry.ExpiresAt)
	if err != nil {
		return fmt.Errorf("failed to store cached place: %w", err)
	}

	p.log.DebugContext(ctx, "Place details cached", "place_id", key, "expires_at", entry.ExpiresAt)
	return nil
}

// Prune deletes rows that are expired at now.
func (p *PostgresCache) Prune(ctx context.Context, now time.Time) (int, error) {
	query := `DELETE FROM place_details_cache WHERE expires_at <= $1;`

	tag, err := p.db.Exec(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("failed to prune place cache: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
