package service

import (
	"context"

	"github.com/UnknownOlympus/pinpoint/internal/models"
	"github.com/UnknownOlympus/pinpoint/internal/repository"
	"github.com/UnknownOlympus/pinpoint/internal/resolver"
)

// CommandEnrich labels enrichment runs.
const CommandEnrich = "enrich"

// EnrichOptions tunes an enrichment run.
type EnrichOptions struct {
	Force               bool    // Resolve entities that already have a place identifier.
	SeedExisting        bool    // Treat identifiers already in the datasets as taken.
	CoordinateThreshold float64 // Degrees a coordinate may drift before it is replaced.
}

// EnrichmentService assigns place identifiers to the entities of the datasets.
type EnrichmentService struct {
	*Runner
	session *resolver.Session // Resolution session shared by all datasets of the run
	pacer   *Pacer            // Spaces out the search requests
	opts    EnrichOptions
}

// NewEnrichmentService creates an enrichment service.
func NewEnrichmentService(
	runner *Runner,
	session *resolver.Session,
	pacer *Pacer,
	opts EnrichOptions,
) *EnrichmentService {
	if pacer == nil {
		pacer = NoPacing()
	}
	return &EnrichmentService{Runner: runner, session: session, pacer: pacer, opts: opts}
}

// Run enriches every dataset in turn. Per-entity failures are recorded in the
// report and do not stop the run.
func (s *EnrichmentService) Run(ctx context.Context, specs []repository.DatasetSpec) (*Report, error) {
	report := NewReport(CommandEnrich, s.dryRun, s.now())
	stats := report.Stats

	var (
		pre map[string]loaded
		err error
	)
	if s.opts.SeedExisting {
		if pre, err = s.preload(ctx, specs); err == nil {
			s.seed(ctx, specs, pre)
		}
	}
	if err == nil {
		err = s.forEachDataset(ctx, specs, pre, func(ctx context.Context, ds *repository.Dataset, ent *models.Entity) (bool, error) {
			return s.enrich(ctx, ds, ent, stats)
		})
	}

	usage := s.session.Usage()
	stats.APICalls, stats.CacheHits = usage.APICalls, usage.CacheHits
	report.Finish(s.now())
	stats.Log(ctx, s.log, CommandEnrich)
	return report, err
}

// seed marks the identifiers already stored in the preloaded datasets as taken,
// so that a new match cannot reuse them. The same entities are processed
// afterwards, which lets an entity keep its own place.
func (s *EnrichmentService) seed(ctx context.Context, specs []repository.DatasetSpec, pre map[string]loaded) {
	for _, spec := range specs {
		ds := pre[spec.File].ds
		if ds == nil {
			continue
		}
		for _, ent := range ds.Entities {
			if ent.IsResolved() && !s.session.Remember(ent.PlaceID, ent) {
				owner, _ := s.session.Owner(ent.PlaceID)
				s.log.WarnContext(ctx, "Place identifier already held by another entity",
					"dataset", ds.Name(), "name", ent.Name, "place_id", ent.PlaceID, "owner", owner)
			}
		}
	}
	s.log.InfoContext(ctx, "Seeded existing place identifiers", "count", s.session.Claimed())
}

func (s *EnrichmentService) enrich(
	ctx context.Context,
	ds *repository.Dataset,
	ent *models.Entity,
	stats *Stats,
) (bool, error) {
	stats.Processed++

	if ent.IsResolved() && !s.opts.Force {
		stats.Skipped++
		stats.AddPlace(ent.PlaceID)
		if ent.GoogleMapsURL != "" {
			s.done(ctx, CommandEnrich, ds, ent, statusSkipped)
			return false, nil
		}
		ent.SetPlace(ent.PlaceID)
		s.done(ctx, CommandEnrich, ds, ent, statusSkipped, "filled", "google_maps_url")
		return true, nil
	}

	if err := s.pacer.Wait(ctx); err != nil {
		return false, err
	}

	res, err := s.session.Resolve(ctx, ent, ds.Spec.Context, ds.Spec.Class)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, ctxErr
		}
		status := stats.Fail(ds.Name(), ent.Name, err)
		s.done(ctx, CommandEnrich, ds, ent, status, "reason", resolver.StatusOf(err), "error", err)
		return false, nil
	}

	ent.SetPlace(res.PlaceID)
	if res.FormattedAddress != "" {
		ent.FormattedAddress = res.FormattedAddress
	}
	if ent.PlaceQuery == "" {
		ent.PlaceQuery = res.Query
	}

	moved := resolver.Reconcile(ent, res.Coords, resolver.DriftPolicy{Degrees: s.opts.CoordinateThreshold})
	if moved {
		stats.CoordinatesUpdated++
	}
	stats.Enriched++
	stats.AddPlace(res.PlaceID)

	s.done(ctx, CommandEnrich, ds, ent, statusEnriched,
		"place_id", res.PlaceID,
		"distance_m", int(res.Distance),
		"validated", res.Validated,
		"coordinates_updated", moved,
		"source", res.Source)
	return true, nil
}
