package repository_test

import (
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/UnknownOlympus/pinpoint/internal/models"
	"github.com/UnknownOlympus/pinpoint/internal/repository"
	"github.com/UnknownOlympus/pinpoint/internal/resolver"
	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const listDoc = `[
  {
    "name": "Kaaterskill Falls",
    "lat": 42.19,
    "lng": -74.06,
    "place_id": null,
    "tags": [
      "hike",
      "family & dogs"
    ]
  },
  {
    "name": "Café Lena",
    "address": "47 Phila St, Saratoga Springs"
  }
]
`

const regionsDoc = `[
  {
    "region": "Catskills",
    "trails": [
      {
        "name": "Kaaterskill Trailhead",
        "lat": 42.2,
        "lng": -74.05
      }
    ]
  },
  {
    "region": "Adirondacks",
    "note": "empty for now",
    "trails": []
  }
]
`

const citiesDoc = `{
  "version": 2,
  "cities": [
    {
      "name": "Ithaca",
      "coordinates": [
        42.44,
        -76.5
      ]
    }
  ]
}
`

func newRepo(t *testing.T, files map[string]string) (*repository.FileRepository, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	for name, content := range files {
		require.NoError(t, afero.WriteFile(fs, "/data/"+name, []byte(content), 0o644))
	}
	clock := func() time.Time { return time.Date(2025, 3, 1, 10, 20, 30, 0, time.UTC) }
	return repository.NewFileRepository("/data", "backups", slog.Default(),
		repository.WithFs(fs), repository.WithClock(clock)), fs
}

func read(t *testing.T, fs afero.Fs, path string) string {
	t.Helper()
	data, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	return string(data)
}

func TestFileRepository_List(t *testing.T) {
	t.Parallel()

	t.Run("untouched dataset is written back byte for byte", func(t *testing.T) {
		t.Parallel()
		repo, fs := newRepo(t, map[string]string{"waterfalls.json": listDoc})

		ds, err := repo.Load(t.Context(), repository.DatasetSpec{File: "waterfalls.json", Layout: repository.LayoutAuto})
		require.NoError(t, err)
		assert.Equal(t, repository.LayoutList, ds.Layout)
		require.Len(t, ds.Entities, 2)
		assert.Equal(t, "Café Lena", ds.Entities[1].Name)

		require.NoError(t, repo.Save(t.Context(), ds))

		if diff := cmp.Diff(listDoc, read(t, fs, "/data/waterfalls.json")); diff != "" {
			t.Errorf("saved dataset differs (-want +got):\n%s", diff)
		}
	})

	t.Run("enriched fields are written in place", func(t *testing.T) {
		t.Parallel()
		repo, fs := newRepo(t, map[string]string{"waterfalls.json": listDoc})
		ds, err := repo.Load(t.Context(), repository.DatasetSpec{File: "waterfalls.json"})
		require.NoError(t, err)

		ds.Entities[0].SetPlace("abc123")
		require.NoError(t, repo.Save(t.Context(), ds))

		var saved []map[string]any
		require.NoError(t, json.Unmarshal([]byte(read(t, fs, "/data/waterfalls.json")), &saved))
		assert.Equal(t, "abc123", saved[0]["place_id"])
		assert.Equal(t, models.MapsURL("abc123"), saved[0]["google_maps_url"])
		assert.Equal(t, []any{"hike", "family & dogs"}, saved[0]["tags"])
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()
		repo, _ := newRepo(t, nil)

		_, err := repo.Load(t.Context(), repository.DatasetSpec{File: "nope.json"})

		require.ErrorContains(t, err, "failed to read dataset nope.json")
	})

	t.Run("broken json", func(t *testing.T) {
		t.Parallel()
		repo, _ := newRepo(t, map[string]string{"bad.json": `[{"name": "x",]`})

		_, err := repo.Load(t.Context(), repository.DatasetSpec{File: "bad.json", Layout: repository.LayoutList})

		require.ErrorContains(t, err, "failed to decode dataset bad.json")
	})

	t.Run("object without cities", func(t *testing.T) {
		t.Parallel()
		repo, _ := newRepo(t, map[string]string{"odd.json": `{"places": []}`})

		_, err := repo.Load(t.Context(), repository.DatasetSpec{File: "odd.json"})

		require.ErrorIs(t, err, repository.ErrUnknownLayout)
	})
}

func TestFileRepository_Grouped(t *testing.T) {
	t.Parallel()

	t.Run("regions", func(t *testing.T) {
		t.Parallel()
		repo, fs := newRepo(t, map[string]string{"trail-heads.json": regionsDoc})
		ds, err := repo.Load(t.Context(), repository.DatasetSpec{File: "trail-heads.json", Class: resolver.ClassPOI})
		require.NoError(t, err)
		assert.Equal(t, repository.LayoutRegions, ds.Layout)
		require.Len(t, ds.Entities, 1)

		require.NoError(t, repo.Save(t.Context(), ds))
		assert.Equal(t, regionsDoc, read(t, fs, "/data/trail-heads.json"))

		ds.Entities[0].SetPlace("th1")
		require.NoError(t, repo.Save(t.Context(), ds))
		assert.JSONEq(t, `[
			{"region": "Catskills", "trails": [{"name": "Kaaterskill Trailhead", "lat": 42.2, "lng": -74.05,
				"place_id": "th1", "google_maps_url": "https://www.google.com/maps/place/?q=place_id:th1"}]},
			{"region": "Adirondacks", "note": "empty for now", "trails": []}
		]`, read(t, fs, "/data/trail-heads.json"))
	})

	t.Run("cities", func(t *testing.T) {
		t.Parallel()
		repo, fs := newRepo(t, map[string]string{"map-data.json": citiesDoc})
		ds, err := repo.Load(t.Context(), repository.DatasetSpec{File: "map-data.json", Class: resolver.ClassArea})
		require.NoError(t, err)
		assert.Equal(t, repository.LayoutCities, ds.Layout)
		require.Len(t, ds.Entities, 1)
		require.True(t, ds.Entities[0].HasCoordinates())

		require.NoError(t, repo.Save(t.Context(), ds))
		assert.Equal(t, citiesDoc, read(t, fs, "/data/map-data.json"))

		ds.Entities[0].SetCoordinates(models.Coordinates{Latitude: 42.444, Longitude: -76.5019})
		require.NoError(t, repo.Save(t.Context(), ds))
		assert.JSONEq(t, `{"version": 2, "cities": [{"name": "Ithaca", "coordinates": [42.444, -76.5019]}]}`,
			read(t, fs, "/data/map-data.json"))
	})
}

func TestFileRepository_Backup(t *testing.T) {
	t.Parallel()
	repo, fs := newRepo(t, map[string]string{"waterfalls.json": listDoc})
	ds, err := repo.Load(t.Context(), repository.DatasetSpec{File: "waterfalls.json"})
	require.NoError(t, err)

	path, err := repo.Backup(t.Context(), ds)

	require.NoError(t, err)
	assert.Equal(t, "/data/backups/waterfalls.json.backup_20250301_102030", path)
	assert.Equal(t, listDoc, read(t, fs, path))
}

func TestMatches(t *testing.T) {
	t.Parallel()
	spec := repository.DatasetSpec{File: "pyo/pyo_apples.json"}

	assert.True(t, repository.Matches(spec, nil))
	assert.True(t, repository.Matches(spec, []string{"pyo_apples.json"}))
	assert.True(t, repository.Matches(spec, []string{"breweries", "pyo_apples"}))
	assert.False(t, repository.Matches(spec, []string{"breweries.json"}))
}
