// Package resolver maps named entities to a single place identifier, guarding
// against matches in the wrong location and against one place being assigned to
// two entities.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/UnknownOlympus/pinpoint/internal/cache"
	"github.com/UnknownOlympus/pinpoint/internal/geocoding"
	"github.com/UnknownOlympus/pinpoint/internal/metrics"
	"github.com/UnknownOlympus/pinpoint/internal/models"
	"github.com/UnknownOlympus/pinpoint/internal/retry"
	"github.com/UnknownOlympus/pinpoint/internal/spatial"
)

// Usage counts the work a session did.
type Usage struct {
	APICalls  int
	CacheHits int
}

// Session resolves entities for one run. It remembers every place identifier it
// handed out so that no two entities end up with the same place. A Session is not
// safe for concurrent use.
type Session struct {
	searcher geocoding.PlaceSearcher
	cache    cache.Cache
	opts     Options
	retry    retry.Config
	log      *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time

	used  map[string]holder // place id -> entity holding it
	usage Usage
}

// holder is the entity a place was handed to. Entities are told apart by
// identity, never by name: two waterfalls may well share one.
type holder struct {
	ent  *models.Entity
	name string
}

// NewSession creates a session. A nil cache disables caching.
func NewSession(
	searcher geocoding.PlaceSearcher,
	store cache.Cache,
	opts Options,
	log *slog.Logger,
	metrics *metrics.Metrics,
) *Session {
	if store == nil {
		store = cache.Nop{}
	}

	retryCfg := opts.Retry
	if retryCfg.Retryable == nil {
		retryCfg.Retryable = geocoding.IsTransient
	}
	if retryCfg.OnRetry == nil {
		retryCfg.OnRetry = func(err error, wait time.Duration) {
			log.Warn("Provider call failed, retrying", "error", err, "wait", wait)
		}
	}

	return &Session{
		searcher: searcher,
		cache:    store,
		opts:     opts,
		retry:    retryCfg,
		log:      log,
		metrics:  metrics,
		now:      time.Now,
		used:     make(map[string]holder),
	}
}

// Remember marks a place as held by ent, typically for identifiers already
// present in the datasets. It returns false when another entity holds it.
func (s *Session) Remember(placeID string, ent *models.Entity) bool {
	if prev, ok := s.used[placeID]; ok && prev.ent != ent {
		return false
	}
	s.used[placeID] = holder{ent: ent, name: ent.Name}
	return true
}

// Owner returns the name of the entity holding a place.
func (s *Session) Owner(placeID string) (string, bool) {
	owner, ok := s.used[placeID]
	return owner.name, ok
}

// Claimed returns the number of distinct places handed out or remembered.
func (s *Session) Claimed() int {
	return len(s.used)
}

// Usage returns the API calls and cache hits made so far.
func (s *Session) Usage() Usage {
	return s.usage
}

// Resolve finds the place an entity refers to.
//
// Candidates come from a text search biased to the entity's coordinates. The
// closest one strictly inside the class acceptance radius wins. Without
// coordinates the first candidate is accepted unvalidated, unless coordinates are
// required. The winner is claimed for the rest of the session and, when enabled,
// its authoritative location is taken from a details lookup.
func (s *Session) Resolve(
	ctx context.Context,
	ent *models.Entity,
	searchContext string,
	class Class,
) (*models.Resolution, error) {
	if ent == nil || strings.TrimSpace(ent.Name) == "" {
		return nil, ErrEmptyName
	}
	if !ent.HasCoordinates() && s.opts.RequireCoordinates {
		return nil, ErrNoCoordinates
	}

	query := BuildQuery(ent, searchContext, class, s.opts.State, s.opts.Country)
	req := geocoding.SearchRequest{Query: query, Mode: s.opts.SearchMode}
	if ent.HasCoordinates() {
		near := *ent.Coords
		req.Near = &near
		req.Radius = s.opts.SearchRadius
	}

	candidates, err := retry.DoWithResult(ctx, s.retry, func() ([]models.Candidate, error) {
		return observe(s, "search", func() ([]models.Candidate, error) {
			return s.searcher.SearchText(ctx, req)
		})
	})
	if err != nil {
		return nil, s.searchFailure(ctx, query, err)
	}

	best, distance, err := s.pick(ent, query, candidates, class)
	if err != nil {
		return nil, err
	}

	if !s.Remember(best.PlaceID, ent) {
		owner, _ := s.Owner(best.PlaceID)
		return nil, &DuplicateError{PlaceID: best.PlaceID, Name: ent.Name, Owner: owner}
	}

	res := &models.Resolution{
		PlaceID:          best.PlaceID,
		Name:             best.Name,
		Coords:           best.Coords,
		FormattedAddress: best.FormattedAddress,
		Distance:         distance,
		Validated:        ent.HasCoordinates(),
		MapsURL:          models.MapsURL(best.PlaceID),
		Source:           models.SourceTextSearch,
		Query:            query,
	}

	if !s.opts.FetchDetails {
		return res, nil
	}

	details, err := s.Details(ctx, best.PlaceID)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		s.log.WarnContext(ctx, "Place details unavailable, keeping search coordinates",
			"name", ent.Name, "place_id", best.PlaceID, "error", err)
		return res, nil
	}

	res.Coords = details.Coords
	res.Source = models.SourceDetails
	if details.Name != "" {
		res.Name = details.Name
	}
	if details.FormattedAddress != "" {
		res.FormattedAddress = details.FormattedAddress
	}
	if ent.HasCoordinates() {
		res.Distance = spatial.Distance(*ent.Coords, details.Coords)
	}
	return res, nil
}

// Details returns the authoritative record of a place, from the cache when it
// holds a fresh entry and from the provider otherwise.
func (s *Session) Details(ctx context.Context, placeID string) (*models.PlaceDetails, error) {
	entry, err := s.cache.Get(ctx, placeID)
	if err != nil {
		s.log.WarnContext(ctx, "Place cache lookup failed", "place_id", placeID, "error", err)
	}
	if entry != nil {
		s.usage.CacheHits++
		s.metrics.CacheLookups.WithLabelValues("hit").Inc()
		return entry.Details(), nil
	}
	s.metrics.CacheLookups.WithLabelValues("miss").Inc()
	return s.FreshDetails(ctx, placeID)
}

// FreshDetails always asks the provider, for fields the cache does not keep such
// as the business status. The cache entry is refreshed with the result.
func (s *Session) FreshDetails(ctx context.Context, placeID string) (*models.PlaceDetails, error) {
	details, err := retry.DoWithResult(ctx, s.retry, func() (*models.PlaceDetails, error) {
		return observe(s, "details", func() (*models.PlaceDetails, error) {
			return s.searcher.PlaceDetails(ctx, placeID)
		})
	})
	if err != nil {
		if errors.Is(err, retry.ErrExhausted) {
			return nil, fmt.Errorf("%w: %w", ErrTransient, err)
		}
		return nil, err
	}

	if errPut := s.cache.Put(ctx, placeID, cache.FromDetails(details, s.now()), s.opts.CacheTTL); errPut != nil {
		s.log.WarnContext(ctx, "Failed to cache place details", "place_id", placeID, "error", errPut)
	}
	return details, nil
}

func (s *Session) pick(
	ent *models.Entity,
	query string,
	candidates []models.Candidate,
	class Class,
) (models.Candidate, float64, error) {
	usable := make([]models.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.PlaceID != "" {
			usable = append(usable, c)
		}
	}
	if len(usable) == 0 {
		return models.Candidate{}, 0, &NotFoundError{Query: query, Status: geocoding.StatusZeroResults}
	}

	// Areas prefer a whole town over a sublocality of the same name.
	if class == ClassArea {
		whole := slices.DeleteFunc(slices.Clone(usable), subdivision)
		if len(whole) > 0 && len(whole) < len(usable) {
			if best, d, err := s.nearest(ent, query, whole, class); err == nil {
				return best, d, nil
			}
		}
	}
	return s.nearest(ent, query, usable, class)
}

func (s *Session) nearest(
	ent *models.Entity,
	query string,
	candidates []models.Candidate,
	class Class,
) (models.Candidate, float64, error) {
	if !ent.HasCoordinates() {
		return candidates[0], 0, nil
	}

	limit := s.opts.MaxDistance(class)
	bestIdx, bestDist, nearest := -1, math.Inf(1), math.Inf(1)
	for i, c := range candidates {
		d := spatial.Distance(*ent.Coords, c.Coords)
		nearest = math.Min(nearest, d)
		if d < limit && d < bestDist {
			bestIdx, bestDist = i, d
		}
	}
	if bestIdx < 0 {
		return models.Candidate{}, 0, &NotFoundError{Query: query, Status: StatusDistanceExceeded, Nearest: nearest}
	}
	return candidates[bestIdx], bestDist, nil
}

// subdivision reports whether a candidate is part of a larger locality, such as
// a village inside the town it is named after.
func subdivision(c models.Candidate) bool {
	return slices.ContainsFunc(c.Types, func(t string) bool {
		return strings.HasPrefix(t, "sublocality") || t == "neighborhood"
	})
}

func (s *Session) searchFailure(ctx context.Context, query string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, retry.ErrExhausted) {
		return fmt.Errorf("%w: %w", ErrTransient, err)
	}

	status := geocoding.Status(err)
	if status == "" {
		status = StatusError
	}
	return &NotFoundError{Query: query, Status: status, Err: err}
}

// observe counts and times one provider call.
func observe[T any](s *Session, endpoint string, call func() (T, error)) (T, error) {
	s.usage.APICalls++
	started := time.Now()
	res, err := call()
	s.metrics.ObserveRequest(s.opts.Provider, endpoint, started, err)
	return res, err
}
