package service

import (
	"errors"
	"testing"

	"github.com/UnknownOlympus/pinpoint/internal/geocoding"
	"github.com/UnknownOlympus/pinpoint/internal/models"
	"github.com/UnknownOlympus/pinpoint/internal/repository"
	"github.com/UnknownOlympus/pinpoint/internal/resolver"
	"github.com/UnknownOlympus/pinpoint/test/mocks"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const restaurantsDoc = `[
  {"name": "Open Diner", "lat": 42.44, "lng": -76.5, "place_id": "r1"},
  {"name": "Snowed Inn", "lat": 42.45, "lng": -76.5, "place_id": "r2",
   "business_status": "OPERATIONAL", "closed_flag": null, "status_last_checked": "2025-05-20T08:00:00Z"},
  {"name": "Gone Grill", "lat": 42.46, "lng": -76.5, "place_id": "r3",
   "business_status": "OPERATIONAL", "closed_flag": null, "status_last_checked": "2025-04-01T08:00:00Z"},
  {"name": "Lost Cafe", "lat": 42.47, "lng": -76.5},
  {"name": "Nowhere Bistro", "lat": 42.48, "lng": -76.5}
]
`

func restaurants() repository.DatasetSpec {
	return repository.DatasetSpec{
		File:    "restaurants.json",
		Context: "restaurant",
		Class:   resolver.ClassPOI,
		Layout:  repository.LayoutAuto,
	}
}

func withStatus(d *models.PlaceDetails, status string) *models.PlaceDetails {
	d.BusinessStatus = status
	return d
}

func TestStatusService_Run(t *testing.T) {
	ctx := t.Context()
	specs := []repository.DatasetSpec{restaurants()}

	t.Run("checks due entities", func(t *testing.T) {
		repo, fs := memRepository(t, map[string]string{"restaurants.json": restaurantsDoc})
		runner, m := newTestRunner(repo, WithBackups(false))
		searcher := mocks.NewPlaceSearcher(t)
		searcher.On("PlaceDetails", mock.Anything, "r1").
			Return(withStatus(details("r1", 42.44, -76.5), models.BusinessOperational), nil).Once()
		searcher.On("PlaceDetails", mock.Anything, "r3").
			Return(withStatus(details("r3", 42.46, -76.5), models.BusinessClosedPermanently), nil).Once()
		searcher.On("SearchText", mock.Anything, queryFor("Lost Cafe")).
			Return([]models.Candidate{candidate("r4", 42.4701, -76.5)}, nil).Once()
		searcher.On("PlaceDetails", mock.Anything, "r4").
			Return(withStatus(details("r4", 42.4701, -76.5), models.BusinessClosedTemporarily), nil).Once()
		searcher.On("SearchText", mock.Anything, queryFor("Nowhere Bistro")).
			Return([]models.Candidate{}, nil).Once()

		service := NewStatusService(runner, newTestSession(searcher, false, m), nil, DefaultStatusOptions())
		report, err := service.Run(ctx, specs)

		require.NoError(t, err)
		assert.Equal(t, CommandStatus, report.Command)
		stats := report.Stats
		assert.Equal(t, 5, stats.Processed)
		assert.Equal(t, 1, stats.Skipped)
		assert.Equal(t, 3, stats.StatusChecked)
		assert.Equal(t, 3, stats.StatusChanged)
		assert.Equal(t, 1, stats.NotFound)
		assert.Equal(t, 5, stats.APICalls)
		require.Len(t, report.Failures, 1)
		assert.Equal(t, "Nowhere Bistro", report.Failures[0].Name)
		assert.Equal(t, geocoding.StatusZeroResults, report.Failures[0].Status)

		saved := readEntities(t, fs, "restaurants.json")
		assert.Equal(t, models.BusinessOperational, saved[0]["business_status"])
		assert.Contains(t, saved[0], "closed_flag")
		assert.Nil(t, saved[0]["closed_flag"])
		assert.Equal(t, "2025-06-01T12:00:00Z", saved[0]["status_last_checked"])

		assert.Equal(t, "2025-05-20T08:00:00Z", saved[1]["status_last_checked"])

		assert.Equal(t, models.BusinessClosedPermanently, saved[2]["business_status"])
		assert.Equal(t, "permanent", saved[2]["closed_flag"])

		assert.Equal(t, "r4", saved[3]["place_id"])
		assert.Equal(t, "https://www.google.com/maps/place/?q=place_id:r4", saved[3]["google_maps_url"])
		assert.Equal(t, "temporary", saved[3]["closed_flag"])

		assert.NotContains(t, saved[4], "business_status")
		assert.Equal(t, "2025-06-01T12:00:00Z", saved[4]["status_last_checked"])

		assert.InDelta(t, 3, testutil.ToFloat64(m.EntitiesProcessed.WithLabelValues(CommandStatus, statusChecked)), 0)
	})

	t.Run("force checks recent entities", func(t *testing.T) {
		doc := `[{"name": "Snowed Inn", "lat": 42.45, "lng": -76.5, "place_id": "r2",
  "business_status": "OPERATIONAL", "closed_flag": null, "status_last_checked": "2025-05-31T08:00:00Z"}]`
		repo, fs := memRepository(t, map[string]string{"restaurants.json": doc})
		runner, m := newTestRunner(repo, WithBackups(false))
		searcher := mocks.NewPlaceSearcher(t)
		searcher.On("PlaceDetails", mock.Anything, "r2").
			Return(withStatus(details("r2", 42.45, -76.5), models.BusinessOperational), nil).Once()

		opts := DefaultStatusOptions()
		opts.Force = true
		service := NewStatusService(runner, newTestSession(searcher, false, m), nil, opts)
		report, err := service.Run(ctx, specs)

		require.NoError(t, err)
		assert.Equal(t, 1, report.Stats.StatusChecked)
		assert.Equal(t, 0, report.Stats.StatusChanged)
		saved := readEntities(t, fs, "restaurants.json")
		assert.Equal(t, "2025-06-01T12:00:00Z", saved[0]["status_last_checked"])
	})

	t.Run("provider failure leaves the entity due", func(t *testing.T) {
		doc := `[{"name": "Open Diner", "lat": 42.44, "lng": -76.5, "place_id": "r1"}]`
		repo, fs := memRepository(t, map[string]string{"restaurants.json": doc})
		runner, m := newTestRunner(repo, WithBackups(false))
		searcher := mocks.NewPlaceSearcher(t)
		searcher.On("PlaceDetails", mock.Anything, "r1").
			Return(nil, errors.New("maps: OVER_QUERY_LIMIT - slow down")).Twice()

		service := NewStatusService(runner, newTestSession(searcher, false, m), nil, DefaultStatusOptions())
		report, err := service.Run(ctx, specs)

		require.NoError(t, err)
		assert.Equal(t, 1, report.Stats.Errors)
		assert.Equal(t, resolver.StatusTransient, report.Failures[0].Status)
		saved := readEntities(t, fs, "restaurants.json")
		assert.NotContains(t, saved[0], "status_last_checked")
	})

	t.Run("dry run", func(t *testing.T) {
		doc := `[{"name": "Open Diner", "lat": 42.44, "lng": -76.5, "place_id": "r1"}]`
		repo, fs := memRepository(t, map[string]string{"restaurants.json": doc})
		runner, m := newTestRunner(repo, WithDryRun(true))
		searcher := mocks.NewPlaceSearcher(t)
		searcher.On("PlaceDetails", mock.Anything, "r1").
			Return(withStatus(details("r1", 42.44, -76.5), models.BusinessClosedTemporarily), nil).Once()

		service := NewStatusService(runner, newTestSession(searcher, false, m), nil, DefaultStatusOptions())
		report, err := service.Run(ctx, specs)

		require.NoError(t, err)
		assert.True(t, report.DryRun)
		assert.Equal(t, 1, report.Stats.StatusChanged)
		saved := readEntities(t, fs, "restaurants.json")
		assert.NotContains(t, saved[0], "closed_flag")
	})
}
