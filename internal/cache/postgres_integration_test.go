//go:build integration

package cache_test

import (
	"log/slog"
	"testing"
	"time"

	"github.com/UnknownOlympus/pinpoint/internal/cache"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

func TestPostgresCache_Integration(t *testing.T) {
	ctx := t.Context()

	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("pinpoint"),
		postgres.WithUsername("pinpoint"),
		postgres.WithPassword("pinpoint"),
		postgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	pc := cache.NewPostgresCache(pool, slog.Default())
	require.NoError(t, pc.EnsureSchema(ctx))
	require.NoError(t, pc.EnsureSchema(ctx), "schema creation must be repeatable")

	fetched := time.Now().UTC().Truncate(time.Second)
	entry := cache.Entry{Name: "Example Falls", Lat: 42.0005, Lng: -74.0005, FetchedAt: fetched}
	require.NoError(t, pc.Put(ctx, "abc123", entry, time.Hour))
	entry.Name = "Example Falls State Park"
	require.NoError(t, pc.Put(ctx, "abc123", entry, time.Hour))

	got, err := pc.Get(ctx, "abc123")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Example Falls State Park", got.Name)

	removed, err := pc.Prune(ctx, fetched.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	got, err = pc.Get(ctx, "abc123")
	require.NoError(t, err)
	assert.Nil(t, got)
}
