package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/UnknownOlympus/pinpoint/internal/geocoding"
	"github.com/UnknownOlympus/pinpoint/internal/models"
	"github.com/UnknownOlympus/pinpoint/internal/repository"
	"github.com/UnknownOlympus/pinpoint/internal/resolver"
	"github.com/UnknownOlympus/pinpoint/internal/retry"
	"github.com/UnknownOlympus/pinpoint/internal/spatial"
)

// CommandGeocode labels address geocoding runs.
const CommandGeocode = "geocode"

// ErrOutsideRegion is returned for geocoding results that fall outside the region bounds.
var ErrOutsideRegion = errors.New("geocoded location is outside the region")

// GeocodingService fills in coordinates for entities that only carry an address.
type GeocodingService struct {
	*Runner
	provider     geocoding.Provider // Geocoding provider for external geocoding services
	providerName string             // Name of the provider for metrics labeling
	pacer        *Pacer             // Spaces out the provider requests
	retry        retry.Config       // Retry policy for transient provider errors
	envelope     spatial.Envelope   // Results outside are rejected
	state        string             // Appended to queries for more accurate geocoding
	country      string
}

// NewGeocodingService creates a new instance of GeocodingService.
func NewGeocodingService(
	runner *Runner,
	provider geocoding.Provider,
	providerName string,
	pacer *Pacer,
	retryCfg retry.Config,
	envelope spatial.Envelope,
	state, country string,
) *GeocodingService {
	if pacer == nil {
		pacer = NoPacing()
	}
	if retryCfg.Retryable == nil {
		retryCfg.Retryable = geocoding.IsTransient
	}
	return &GeocodingService{
		Runner:       runner,
		provider:     provider,
		providerName: providerName,
		pacer:        pacer,
		retry:        retryCfg,
		envelope:     envelope,
		state:        state,
		country:      country,
	}
}

// Run geocodes every entity that has an address or location but no coordinates.
func (gs *GeocodingService) Run(ctx context.Context, specs []repository.DatasetSpec) (*Report, error) {
	report := NewReport(CommandGeocode, gs.dryRun, gs.now())
	stats := report.Stats

	err := gs.forEachEntity(ctx, specs, func(ctx context.Context, ds *repository.Dataset, ent *models.Entity) (bool, error) {
		return gs.geocode(ctx, ds, ent, stats)
	})

	report.Finish(gs.now())
	stats.Log(ctx, gs.log, CommandGeocode)
	return report, err
}

// Queries returns the addresses tried for an entity, most specific first:
// "name, address, state, country", then the address with state and country.
func (gs *GeocodingService) Queries(ent *models.Entity) []string {
	address := strings.TrimSpace(ent.Address)
	if address == "" {
		address = strings.TrimSpace(ent.Location)
	}
	if address == "" {
		return nil
	}

	full := joinParts(ent.Name, address, gs.state, gs.country)
	short := joinParts(address, gs.state, gs.country)
	if short == full {
		return []string{full}
	}
	return []string{full, short}
}

func (gs *GeocodingService) geocode(
	ctx context.Context,
	ds *repository.Dataset,
	ent *models.Entity,
	stats *Stats,
) (bool, error) {
	stats.Processed++

	queries := gs.Queries(ent)
	if ent.HasCoordinates() || len(queries) == 0 {
		stats.Skipped++
		gs.done(ctx, CommandGeocode, ds, ent, statusSkipped)
		return false, nil
	}

	var lastErr error
	for _, query := range queries {
		result, err := gs.lookup(ctx, query, stats)
		if err == nil {
			ent.SetCoordinates(result.Coordinates)
			if result.DisplayName != "" {
				ent.GeocodedAddress = result.DisplayName
			}
			stats.Enriched++
			stats.CoordinatesUpdated++
			gs.done(ctx, CommandGeocode, ds, ent, statusGeocoded,
				"query", query,
				"lat", result.Latitude,
				"lng", result.Longitude)
			return true, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, ctxErr
		}
		lastErr = err
		if errors.Is(err, retry.ErrExhausted) {
			break
		}
	}

	status := statusError
	if noMatch(lastErr) || errors.Is(lastErr, ErrOutsideRegion) {
		stats.NotFound++
		status = statusNotFound
	} else {
		stats.Errors++
	}
	stats.Failures = append(stats.Failures, Failure{
		Dataset: ds.Name(),
		Name:    ent.Name,
		Reason:  lastErr.Error(),
		Status:  geocodeStatus(lastErr),
	})
	gs.done(ctx, CommandGeocode, ds, ent, status, "error", lastErr)
	return false, nil
}

// lookup geocodes one query and checks the result against the region bounds.
func (gs *GeocodingService) lookup(ctx context.Context, query string, stats *Stats) (*models.GeocodeResult, error) {
	if err := gs.pacer.Wait(ctx); err != nil {
		return nil, err
	}

	result, err := retry.DoWithResult(ctx, gs.retry, func() (*models.GeocodeResult, error) {
		stats.APICalls++
		startTime := time.Now()
		res, errGeo := gs.provider.Geocode(ctx, query)
		gs.metrics.ObserveRequest(gs.providerName, "geocode", startTime, errGeo)
		return res, errGeo
	})
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, fmt.Errorf("no result for %q", query)
	}
	if !gs.envelope.IsZero() && !gs.envelope.Contains(result.Coordinates) {
		return nil, fmt.Errorf("%w: %.5f,%.5f for %q", ErrOutsideRegion, result.Latitude, result.Longitude, query)
	}
	return result, nil
}

func geocodeStatus(err error) string {
	switch {
	case errors.Is(err, ErrOutsideRegion):
		return "OUTSIDE_REGION"
	case noMatch(err):
		return geocoding.StatusZeroResults
	case errors.Is(err, retry.ErrExhausted):
		return resolver.StatusTransient
	}
	if status := geocoding.Status(err); status != "" {
		return status
	}
	return resolver.StatusError
}

// noMatch reports whether a provider found nothing for the address.
func noMatch(err error) bool {
	return errors.Is(err, geocoding.ErrEmptyResponse) ||
		errors.Is(err, geocoding.ErrNominatimEmptyResponse) ||
		geocoding.Status(err) == geocoding.StatusZeroResults
}

func joinParts(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, ", ")
}
