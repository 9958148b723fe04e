package service

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/UnknownOlympus/pinpoint/internal/geocoding"
	"github.com/UnknownOlympus/pinpoint/internal/metrics"
	"github.com/UnknownOlympus/pinpoint/internal/models"
	"github.com/UnknownOlympus/pinpoint/internal/repository"
	"github.com/UnknownOlympus/pinpoint/internal/resolver"
	"github.com/UnknownOlympus/pinpoint/internal/retry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

const dataDir = "/data"

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// memRepository creates a file repository over an in-memory filesystem holding files.
func memRepository(t *testing.T, files map[string]string) (*repository.FileRepository, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	for name, content := range files {
		require.NoError(t, afero.WriteFile(fs, filepath.Join(dataDir, name), []byte(content), 0o644))
	}
	repo := repository.NewFileRepository(dataDir, "backups", testLogger(),
		repository.WithFs(fs),
		repository.WithClock(func() time.Time { return fixedNow }))
	return repo, fs
}

func newTestRunner(repo repository.Interface, opts ...RunnerOption) (*Runner, *metrics.Metrics) {
	m := metrics.NewMetrics(prometheus.NewRegistry())
	opts = append([]RunnerOption{WithClock(func() time.Time { return fixedNow })}, opts...)
	return NewRunner(testLogger(), repo, m, opts...), m
}

func newTestSession(searcher geocoding.PlaceSearcher, fetchDetails bool, m *metrics.Metrics) *resolver.Session {
	opts := resolver.DefaultOptions()
	opts.FetchDetails = fetchDetails
	opts.Retry = fastRetry()
	return resolver.NewSession(searcher, nil, opts, testLogger(), m)
}

func fastRetry() retry.Config {
	return retry.Config{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
}

func waterfalls(file string) repository.DatasetSpec {
	return repository.DatasetSpec{File: file, Context: "waterfall", Class: resolver.ClassPOI, Layout: repository.LayoutAuto}
}

// readEntities decodes a list dataset from the filesystem.
func readEntities(t *testing.T, fs afero.Fs, name string) []map[string]any {
	t.Helper()
	data, err := afero.ReadFile(fs, filepath.Join(dataDir, name))
	require.NoError(t, err)
	var out []map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func candidate(id string, lat, lng float64) models.Candidate {
	return models.Candidate{
		PlaceID:          id,
		Name:             "Place " + id,
		FormattedAddress: "Hunter, NY 12442, USA",
		Coords:           models.Coordinates{Latitude: lat, Longitude: lng},
	}
}
