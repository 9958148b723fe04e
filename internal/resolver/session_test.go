package resolver_test

import (
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/UnknownOlympus/pinpoint/internal/cache"
	"github.com/UnknownOlympus/pinpoint/internal/geocoding"
	"github.com/UnknownOlympus/pinpoint/internal/metrics"
	"github.com/UnknownOlympus/pinpoint/internal/models"
	"github.com/UnknownOlympus/pinpoint/internal/resolver"
	"github.com/UnknownOlympus/pinpoint/internal/retry"
	"github.com/UnknownOlympus/pinpoint/test/mocks"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var errQuota = errors.New("maps: OVER_QUERY_LIMIT - You have exceeded your rate-limit for this API.")

func testOptions() resolver.Options {
	opts := resolver.DefaultOptions()
	opts.FetchDetails = false
	opts.Retry = retry.Config{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
	return opts
}

func newSession(searcher geocoding.PlaceSearcher, store cache.Cache, opts resolver.Options) *resolver.Session {
	return resolver.NewSession(searcher, store, opts, slog.Default(), metrics.NewMetrics(prometheus.NewRegistry()))
}

func falls(name string) *models.Entity {
	return &models.Entity{Name: name, Coords: &models.Coordinates{Latitude: 42.0, Longitude: -74.0}}
}

func candidate(id string, lat, lng float64) models.Candidate {
	return models.Candidate{
		PlaceID:          id,
		Name:             "Candidate " + id,
		FormattedAddress: "Hunter, NY 12442, USA",
		Coords:           models.Coordinates{Latitude: lat, Longitude: lng},
	}
}

func TestResolve_Scenarios(t *testing.T) {
	t.Parallel()

	t.Run("nearby candidate is accepted", func(t *testing.T) {
		t.Parallel()
		searcher := mocks.NewPlaceSearcher(t)
		searcher.On("SearchText", mock.Anything, geocoding.SearchRequest{
			Query:  "Example Falls waterfall, NY, USA",
			Near:   &models.Coordinates{Latitude: 42.0, Longitude: -74.0},
			Radius: 2000,
			Mode:   geocoding.SearchModeText,
		}).Return([]models.Candidate{candidate("abc123", 42.0005, -74.0005)}, nil).Once()
		session := newSession(searcher, nil, testOptions())

		res, err := session.Resolve(t.Context(), falls("Example Falls"), "waterfall", resolver.ClassPOI)

		require.NoError(t, err)
		assert.Equal(t, "abc123", res.PlaceID)
		assert.Equal(t, "https://www.google.com/maps/place/?q=place_id:abc123", res.MapsURL)
		assert.InDelta(t, 69.3, res.Distance, 1)
		assert.True(t, res.Validated)
		assert.Equal(t, models.SourceTextSearch, res.Source)
		assert.Equal(t, "Example Falls waterfall, NY, USA", res.Query)
		assert.Equal(t, 1, session.Usage().APICalls)
	})

	t.Run("candidate 60 km away is rejected", func(t *testing.T) {
		t.Parallel()
		searcher := mocks.NewPlaceSearcher(t)
		searcher.On("SearchText", mock.Anything, mock.Anything).
			Return([]models.Candidate{candidate("far", 42.5396, -74.0)}, nil).Once()
		session := newSession(searcher, nil, testOptions())

		res, err := session.Resolve(t.Context(), falls("Example Falls"), "waterfall", resolver.ClassPOI)

		require.Nil(t, res)
		require.ErrorIs(t, err, resolver.ErrNotFound)
		require.NotErrorIs(t, err, resolver.ErrDuplicate)
		var nf *resolver.NotFoundError
		require.ErrorAs(t, err, &nf)
		assert.Equal(t, resolver.StatusDistanceExceeded, nf.Status)
		assert.InDelta(t, 60000, nf.Nearest, 600)
		assert.Zero(t, session.Claimed())
	})

	t.Run("second entity with the same place is a duplicate", func(t *testing.T) {
		t.Parallel()
		searcher := mocks.NewPlaceSearcher(t)
		searcher.On("SearchText", mock.Anything, mock.Anything).
			Return([]models.Candidate{candidate("dup999", 42.001, -74.001)}, nil).Twice()
		session := newSession(searcher, nil, testOptions())

		first, err := session.Resolve(t.Context(), falls("Upper Falls"), "waterfall", resolver.ClassPOI)
		require.NoError(t, err)
		assert.Equal(t, "dup999", first.PlaceID)

		second, err := session.Resolve(t.Context(), falls("Lower Falls"), "waterfall", resolver.ClassPOI)

		require.Nil(t, second)
		require.ErrorIs(t, err, resolver.ErrDuplicate)
		require.ErrorIs(t, err, resolver.ErrNotFound)
		var dup *resolver.DuplicateError
		require.ErrorAs(t, err, &dup)
		assert.Equal(t, "Upper Falls", dup.Owner)
		assert.Equal(t, resolver.StatusDuplicate, resolver.StatusOf(err))
		owner, ok := session.Owner("dup999")
		assert.True(t, ok)
		assert.Equal(t, "Upper Falls", owner)
	})
}

func TestResolve_Validation(t *testing.T) {
	t.Parallel()

	t.Run("empty name makes no call", func(t *testing.T) {
		t.Parallel()
		searcher := mocks.NewPlaceSearcher(t)
		session := newSession(searcher, nil, testOptions())

		for _, ent := range []*models.Entity{nil, {Name: "   "}} {
			res, err := session.Resolve(t.Context(), ent, "waterfall", resolver.ClassPOI)
			require.Nil(t, res)
			require.ErrorIs(t, err, resolver.ErrEmptyName)
		}
		searcher.AssertNotCalled(t, "SearchText", mock.Anything, mock.Anything)
	})

	t.Run("coordinates required", func(t *testing.T) {
		t.Parallel()
		searcher := mocks.NewPlaceSearcher(t)
		opts := testOptions()
		opts.RequireCoordinates = true
		session := newSession(searcher, nil, opts)

		_, err := session.Resolve(t.Context(), &models.Entity{Name: "Somewhere"}, "", resolver.ClassPOI)

		require.ErrorIs(t, err, resolver.ErrNoCoordinates)
	})

	t.Run("without coordinates the first result is accepted unvalidated", func(t *testing.T) {
		t.Parallel()
		searcher := mocks.NewPlaceSearcher(t)
		searcher.On("SearchText", mock.Anything, geocoding.SearchRequest{
			Query: "Somewhere brewery, NY, USA",
			Mode:  geocoding.SearchModeText,
		}).Return([]models.Candidate{candidate("first", 43, -75), candidate("second", 42, -74)}, nil).Once()
		session := newSession(searcher, nil, testOptions())

		res, err := session.Resolve(t.Context(), &models.Entity{Name: "Somewhere"}, "brewery", resolver.ClassPOI)

		require.NoError(t, err)
		assert.Equal(t, "first", res.PlaceID)
		assert.False(t, res.Validated)
		assert.Zero(t, res.Distance)
	})
}

func TestResolve_Selection(t *testing.T) {
	t.Parallel()

	t.Run("closest qualifying candidate wins", func(t *testing.T) {
		t.Parallel()
		searcher := mocks.NewPlaceSearcher(t)
		searcher.On("SearchText", mock.Anything, mock.Anything).Return([]models.Candidate{
			candidate("far", 42.02, -74.0),
			{Name: "no id", Coords: models.Coordinates{Latitude: 42.0, Longitude: -74.0}},
			candidate("near", 42.001, -74.0),
			candidate("outside", 43.0, -74.0),
		}, nil).Once()
		session := newSession(searcher, nil, testOptions())

		res, err := session.Resolve(t.Context(), falls("Example Falls"), "waterfall", resolver.ClassPOI)

		require.NoError(t, err)
		assert.Equal(t, "near", res.PlaceID)
	})

	t.Run("boundary distance is rejected", func(t *testing.T) {
		t.Parallel()
		searcher := mocks.NewPlaceSearcher(t)
		searcher.On("SearchText", mock.Anything, mock.Anything).
			Return([]models.Candidate{candidate("edge", 42.001, -74.0)}, nil).Once()
		opts := testOptions()
		opts.MaxDistancePOI = 1
		session := newSession(searcher, nil, opts)

		_, err := session.Resolve(t.Context(), falls("Example Falls"), "", resolver.ClassPOI)

		require.ErrorIs(t, err, resolver.ErrNotFound)
	})

	t.Run("areas use the wider radius and the short query", func(t *testing.T) {
		t.Parallel()
		searcher := mocks.NewPlaceSearcher(t)
		searcher.On("SearchText", mock.Anything, mock.MatchedBy(func(req geocoding.SearchRequest) bool {
			return req.Query == "Ithaca, NY"
		})).Return([]models.Candidate{candidate("ithaca", 42.444, -76.5019)}, nil).Once()
		city := &models.Entity{Name: "Ithaca", Coords: &models.Coordinates{Latitude: 42.49, Longitude: -76.5}}
		session := newSession(searcher, nil, testOptions())

		res, err := session.Resolve(t.Context(), city, "city", resolver.ClassArea)

		require.NoError(t, err)
		assert.Equal(t, "ithaca", res.PlaceID)
		assert.Greater(t, res.Distance, 3000.0)
	})

	t.Run("areas prefer the town over a sublocality", func(t *testing.T) {
		t.Parallel()
		village := candidate("dryden-village", 42.4909, -76.2971)
		village.Types = []string{"sublocality", "political"}
		town := candidate("dryden-town", 42.4867, -76.3549)
		town.Types = []string{"locality", "political"}
		searcher := mocks.NewPlaceSearcher(t)
		searcher.On("SearchText", mock.Anything, mock.Anything).
			Return([]models.Candidate{village, town}, nil).Once()
		city := &models.Entity{Name: "Dryden", Coords: &models.Coordinates{Latitude: 42.4909, Longitude: -76.2971}}
		session := newSession(searcher, nil, testOptions())

		res, err := session.Resolve(t.Context(), city, "city", resolver.ClassArea)

		require.NoError(t, err)
		assert.Equal(t, "dryden-town", res.PlaceID)
	})

	t.Run("sublocality accepted when no town qualifies", func(t *testing.T) {
		t.Parallel()
		village := candidate("village", 42.4909, -76.2971)
		village.Types = []string{"sublocality_level_1"}
		faraway := candidate("faraway", 43.5, -76.2971)
		searcher := mocks.NewPlaceSearcher(t)
		searcher.On("SearchText", mock.Anything, mock.Anything).
			Return([]models.Candidate{village, faraway}, nil).Once()
		city := &models.Entity{Name: "Dryden", Coords: &models.Coordinates{Latitude: 42.4909, Longitude: -76.2971}}
		session := newSession(searcher, nil, testOptions())

		res, err := session.Resolve(t.Context(), city, "city", resolver.ClassArea)

		require.NoError(t, err)
		assert.Equal(t, "village", res.PlaceID)
	})

	t.Run("points of interest ignore place types", func(t *testing.T) {
		t.Parallel()
		near := candidate("near", 42.0001, -74.0)
		near.Types = []string{"sublocality"}
		searcher := mocks.NewPlaceSearcher(t)
		searcher.On("SearchText", mock.Anything, mock.Anything).
			Return([]models.Candidate{near, candidate("other", 42.001, -74.0)}, nil).Once()
		session := newSession(searcher, nil, testOptions())

		res, err := session.Resolve(t.Context(), falls("Example Falls"), "waterfall", resolver.ClassPOI)

		require.NoError(t, err)
		assert.Equal(t, "near", res.PlaceID)
	})

	t.Run("find mode is passed through", func(t *testing.T) {
		t.Parallel()
		searcher := mocks.NewPlaceSearcher(t)
		searcher.On("SearchText", mock.Anything, mock.MatchedBy(func(req geocoding.SearchRequest) bool {
			return req.Mode == geocoding.SearchModeFind && req.Query == "Kaaterskill Falls, Hunter NY"
		})).Return([]models.Candidate{candidate("kf", 42.0, -74.0)}, nil).Once()
		opts := testOptions()
		opts.SearchMode = geocoding.SearchModeFind
		ent := falls("Kaaterskill Falls")
		ent.PlaceQuery = "Kaaterskill Falls, Hunter NY"
		session := newSession(searcher, nil, opts)

		res, err := session.Resolve(t.Context(), ent, "waterfall", resolver.ClassPOI)

		require.NoError(t, err)
		assert.Equal(t, "kf", res.PlaceID)
	})

	t.Run("zero results", func(t *testing.T) {
		t.Parallel()
		searcher := mocks.NewPlaceSearcher(t)
		searcher.On("SearchText", mock.Anything, mock.Anything).Return([]models.Candidate{}, nil).Once()
		session := newSession(searcher, nil, testOptions())

		_, err := session.Resolve(t.Context(), falls("Nowhere Falls"), "waterfall", resolver.ClassPOI)

		require.ErrorIs(t, err, resolver.ErrNotFound)
		assert.Equal(t, geocoding.StatusZeroResults, resolver.StatusOf(err))
	})
}

func TestResolve_Seeded(t *testing.T) {
	t.Parallel()

	t.Run("place held by another entity", func(t *testing.T) {
		t.Parallel()
		searcher := mocks.NewPlaceSearcher(t)
		searcher.On("SearchText", mock.Anything, mock.Anything).
			Return([]models.Candidate{candidate("dup999", 42.0, -74.0)}, nil).Once()
		session := newSession(searcher, nil, testOptions())
		require.True(t, session.Remember("dup999", falls("Existing Falls")))
		require.False(t, session.Remember("dup999", falls("Someone Else")))

		_, err := session.Resolve(t.Context(), falls("New Falls"), "waterfall", resolver.ClassPOI)

		require.ErrorIs(t, err, resolver.ErrDuplicate)
	})

	t.Run("entity may re-resolve to its own place", func(t *testing.T) {
		t.Parallel()
		searcher := mocks.NewPlaceSearcher(t)
		searcher.On("SearchText", mock.Anything, mock.Anything).
			Return([]models.Candidate{candidate("own1", 42.0, -74.0)}, nil).Once()
		session := newSession(searcher, nil, testOptions())
		ent := falls("Own Falls")
		ent.SetPlace("own1")
		require.True(t, session.Remember("own1", ent))

		res, err := session.Resolve(t.Context(), ent, "waterfall", resolver.ClassPOI)

		require.NoError(t, err)
		assert.Equal(t, "own1", res.PlaceID)
		assert.Equal(t, 1, session.Claimed())
	})

	t.Run("namesakes are distinct entities", func(t *testing.T) {
		t.Parallel()
		searcher := mocks.NewPlaceSearcher(t)
		searcher.On("SearchText", mock.Anything, mock.Anything).
			Return([]models.Candidate{candidate("P", 42.0, -74.0)}, nil).Twice()
		session := newSession(searcher, nil, testOptions())
		ithaca, wayland := falls("Buttermilk Falls"), falls("Buttermilk Falls")
		ithaca.SetPlace("P")
		wayland.SetPlace("P")
		require.True(t, session.Remember("P", ithaca))
		require.True(t, session.Remember("P", ithaca))
		require.False(t, session.Remember("P", wayland))

		res, err := session.Resolve(t.Context(), ithaca, "waterfall", resolver.ClassPOI)
		require.NoError(t, err)
		assert.Equal(t, "P", res.PlaceID)

		res, err = session.Resolve(t.Context(), wayland, "waterfall", resolver.ClassPOI)

		require.Nil(t, res)
		require.ErrorIs(t, err, resolver.ErrDuplicate)
		var dup *resolver.DuplicateError
		require.ErrorAs(t, err, &dup)
		assert.Equal(t, "Buttermilk Falls", dup.Owner)
	})

	t.Run("namesakes without seeding", func(t *testing.T) {
		t.Parallel()
		searcher := mocks.NewPlaceSearcher(t)
		searcher.On("SearchText", mock.Anything, mock.Anything).
			Return([]models.Candidate{candidate("P", 42.0, -74.0)}, nil).Twice()
		session := newSession(searcher, nil, testOptions())
		first, second := falls("Buttermilk Falls"), falls("Buttermilk Falls")
		first.SetPlace("P")
		second.SetPlace("P")

		_, err := session.Resolve(t.Context(), first, "waterfall", resolver.ClassPOI)
		require.NoError(t, err)
		_, err = session.Resolve(t.Context(), second, "waterfall", resolver.ClassPOI)

		require.ErrorIs(t, err, resolver.ErrDuplicate)
		assert.Equal(t, 1, session.Claimed())
	})
}

func TestResolve_Failures(t *testing.T) {
	t.Parallel()

	t.Run("transient errors are retried then reported", func(t *testing.T) {
		t.Parallel()
		searcher := mocks.NewPlaceSearcher(t)
		searcher.On("SearchText", mock.Anything, mock.Anything).Return(nil, errQuota).Twice()
		session := newSession(searcher, nil, testOptions())

		_, err := session.Resolve(t.Context(), falls("Example Falls"), "waterfall", resolver.ClassPOI)

		require.ErrorIs(t, err, resolver.ErrTransient)
		require.NotErrorIs(t, err, resolver.ErrNotFound)
		assert.Equal(t, resolver.StatusTransient, resolver.StatusOf(err))
		assert.Equal(t, 2, session.Usage().APICalls)
	})

	t.Run("transient error followed by success", func(t *testing.T) {
		t.Parallel()
		searcher := mocks.NewPlaceSearcher(t)
		searcher.On("SearchText", mock.Anything, mock.Anything).Return(nil, errQuota).Once()
		searcher.On("SearchText", mock.Anything, mock.Anything).
			Return([]models.Candidate{candidate("abc123", 42.0005, -74.0005)}, nil).Once()
		session := newSession(searcher, nil, testOptions())

		res, err := session.Resolve(t.Context(), falls("Example Falls"), "waterfall", resolver.ClassPOI)

		require.NoError(t, err)
		assert.Equal(t, "abc123", res.PlaceID)
	})

	t.Run("error status is not retried", func(t *testing.T) {
		t.Parallel()
		searcher := mocks.NewPlaceSearcher(t)
		searcher.On("SearchText", mock.Anything, mock.Anything).
			Return(nil, errors.New("maps: REQUEST_DENIED - The provided API key is invalid.")).Once()
		session := newSession(searcher, nil, testOptions())

		_, err := session.Resolve(t.Context(), falls("Example Falls"), "waterfall", resolver.ClassPOI)

		require.ErrorIs(t, err, resolver.ErrNotFound)
		assert.Equal(t, geocoding.StatusRequestDenied, resolver.StatusOf(err))
	})
}

func TestResolve_Details(t *testing.T) {
	t.Parallel()
	authoritative := &models.PlaceDetails{
		PlaceID:          "abc123",
		Name:             "Example Falls State Park",
		FormattedAddress: "Route 23A, Hunter, NY 12442, USA",
		Coords:           models.Coordinates{Latitude: 42.0004, Longitude: -74.0006},
	}
	detailsOptions := func() resolver.Options {
		opts := testOptions()
		opts.FetchDetails = true
		return opts
	}

	t.Run("details fetched and cached on a miss", func(t *testing.T) {
		t.Parallel()
		searcher := mocks.NewPlaceSearcher(t)
		searcher.On("SearchText", mock.Anything, mock.Anything).
			Return([]models.Candidate{candidate("abc123", 42.0005, -74.0005)}, nil).Once()
		searcher.On("PlaceDetails", mock.Anything, "abc123").Return(authoritative, nil).Once()
		store := mocks.NewCache(t)
		store.On("Get", mock.Anything, "abc123").Return(nil, nil).Once()
		store.On("Put", mock.Anything, "abc123", mock.MatchedBy(func(e cache.Entry) bool {
			return e.Name == authoritative.Name && e.Lat == authoritative.Coords.Latitude
		}), cache.DefaultTTL).Return(nil).Once()
		session := newSession(searcher, store, detailsOptions())

		res, err := session.Resolve(t.Context(), falls("Example Falls"), "waterfall", resolver.ClassPOI)

		require.NoError(t, err)
		assert.Equal(t, authoritative.Coords, res.Coords)
		assert.Equal(t, authoritative.FormattedAddress, res.FormattedAddress)
		assert.Equal(t, models.SourceDetails, res.Source)
		assert.Equal(t, resolver.Usage{APICalls: 2}, session.Usage())
	})

	t.Run("cache hit avoids the details call", func(t *testing.T) {
		t.Parallel()
		searcher := mocks.NewPlaceSearcher(t)
		searcher.On("SearchText", mock.Anything, mock.Anything).
			Return([]models.Candidate{candidate("abc123", 42.0005, -74.0005)}, nil).Once()
		store := mocks.NewCache(t)
		entry := cache.FromDetails(authoritative, time.Now())
		store.On("Get", mock.Anything, "abc123").Return(&entry, nil).Once()
		session := newSession(searcher, store, detailsOptions())

		res, err := session.Resolve(t.Context(), falls("Example Falls"), "waterfall", resolver.ClassPOI)

		require.NoError(t, err)
		assert.Equal(t, authoritative.Coords, res.Coords)
		assert.Equal(t, resolver.Usage{APICalls: 1, CacheHits: 1}, session.Usage())
		searcher.AssertNotCalled(t, "PlaceDetails", mock.Anything, mock.Anything)
	})

	t.Run("fresh details bypass the cache", func(t *testing.T) {
		t.Parallel()
		closed := *authoritative
		closed.BusinessStatus = models.BusinessClosedPermanently
		searcher := mocks.NewPlaceSearcher(t)
		searcher.On("PlaceDetails", mock.Anything, "abc123").Return(&closed, nil).Once()
		store := mocks.NewCache(t)
		store.On("Put", mock.Anything, "abc123", mock.Anything, cache.DefaultTTL).Return(nil).Once()
		session := newSession(searcher, store, detailsOptions())

		got, err := session.FreshDetails(t.Context(), "abc123")

		require.NoError(t, err)
		assert.Equal(t, models.BusinessClosedPermanently, got.BusinessStatus)
		assert.Equal(t, resolver.Usage{APICalls: 1}, session.Usage())
		store.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
	})

	t.Run("details failure keeps the search result", func(t *testing.T) {
		t.Parallel()
		searcher := mocks.NewPlaceSearcher(t)
		searcher.On("SearchText", mock.Anything, mock.Anything).
			Return([]models.Candidate{candidate("abc123", 42.0005, -74.0005)}, nil).Once()
		searcher.On("PlaceDetails", mock.Anything, "abc123").
			Return(nil, errors.New("maps: NOT_FOUND - place removed")).Once()
		store := mocks.NewCache(t)
		store.On("Get", mock.Anything, "abc123").Return(nil, assert.AnError).Once()
		session := newSession(searcher, store, detailsOptions())

		res, err := session.Resolve(t.Context(), falls("Example Falls"), "waterfall", resolver.ClassPOI)

		require.NoError(t, err)
		assert.Equal(t, models.Coordinates{Latitude: 42.0005, Longitude: -74.0005}, res.Coords)
		assert.Equal(t, models.SourceTextSearch, res.Source)
		assert.Equal(t, 1, session.Claimed())
	})

	t.Run("details exhausted retries are transient", func(t *testing.T) {
		t.Parallel()
		searcher := mocks.NewPlaceSearcher(t)
		searcher.On("PlaceDetails", mock.Anything, "abc123").Return(nil, errQuota).Twice()
		session := newSession(searcher, nil, detailsOptions())

		_, err := session.Details(t.Context(), "abc123")

		require.ErrorIs(t, err, resolver.ErrTransient)
	})
}
