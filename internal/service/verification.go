package service

import (
	"context"
	"time"

	"github.com/UnknownOlympus/pinpoint/internal/models"
	"github.com/UnknownOlympus/pinpoint/internal/repository"
	"github.com/UnknownOlympus/pinpoint/internal/resolver"
	"github.com/UnknownOlympus/pinpoint/internal/spatial"
)

// CommandVerify labels verification runs.
const CommandVerify = "verify"

// VerifyOptions tunes a verification run. Distances are in meters.
type VerifyOptions struct {
	Apply      bool          // Write verified coordinates back to the datasets.
	TTL        time.Duration // Entities verified more recently than this are skipped.
	ReportPOI  float64       // Drift past which a point of interest is reported.
	ReportArea float64       // Drift past which an area is reported.
	DriftPOI   float64       // Drift past which a point of interest is moved when applying.
	DriftArea  float64       // Drift past which an area is moved when applying.
}

// DefaultVerifyOptions returns the thresholds used when nothing is configured.
func DefaultVerifyOptions() VerifyOptions {
	const verifyTTL = 180 * 24 * time.Hour
	return VerifyOptions{
		TTL:        verifyTTL,
		ReportPOI:  100,
		ReportArea: 1000,
		DriftPOI:   30,
		DriftArea:  1000,
	}
}

func (o VerifyOptions) reportThreshold(class resolver.Class) float64 {
	if class == resolver.ClassArea {
		return o.ReportArea
	}
	return o.ReportPOI
}

func (o VerifyOptions) driftPolicy(class resolver.Class) resolver.DriftPolicy {
	if class == resolver.ClassArea {
		return resolver.DriftPolicy{Meters: o.DriftArea}
	}
	return resolver.DriftPolicy{Meters: o.DriftPOI}
}

// VerificationService compares stored coordinates of resolved entities with the
// authoritative location of their place.
type VerificationService struct {
	*Runner
	session *resolver.Session
	pacer   *Pacer
	opts    VerifyOptions
}

// NewVerificationService creates a verification service.
func NewVerificationService(
	runner *Runner,
	session *resolver.Session,
	pacer *Pacer,
	opts VerifyOptions,
) *VerificationService {
	if pacer == nil {
		pacer = NoPacing()
	}
	return &VerificationService{Runner: runner, session: session, pacer: pacer, opts: opts}
}

// Run verifies every resolved entity. Discrepancies are collected in the report;
// datasets are only modified when the options ask to apply the results.
func (s *VerificationService) Run(ctx context.Context, specs []repository.DatasetSpec) (*Report, error) {
	report := NewReport(CommandVerify, s.dryRun || !s.opts.Apply, s.now())

	err := s.forEachEntity(ctx, specs, func(ctx context.Context, ds *repository.Dataset, ent *models.Entity) (bool, error) {
		return s.verify(ctx, ds, ent, report)
	})

	usage := s.session.Usage()
	report.Stats.APICalls, report.Stats.CacheHits = usage.APICalls, usage.CacheHits
	report.Finish(s.now())
	report.Stats.Log(ctx, s.log, CommandVerify)
	s.log.InfoContext(ctx, "Verification discrepancies", "count", len(report.Discrepancies))
	return report, err
}

func (s *VerificationService) verify(
	ctx context.Context,
	ds *repository.Dataset,
	ent *models.Entity,
	report *Report,
) (bool, error) {
	stats := report.Stats
	stats.Processed++

	switch {
	case !ent.IsResolved():
		stats.Skipped++
		s.done(ctx, CommandVerify, ds, ent, statusSkipped, "reason", "no place_id")
		return false, nil
	case !ent.HasCoordinates() && !s.opts.Apply:
		stats.Skipped++
		s.done(ctx, CommandVerify, ds, ent, statusSkipped, "reason", "no coordinates")
		return false, nil
	case ent.VerifiedAt != nil && s.now().Sub(*ent.VerifiedAt) < s.opts.TTL:
		stats.Skipped++
		stats.AddPlace(ent.PlaceID)
		s.done(ctx, CommandVerify, ds, ent, statusSkipped, "reason", "recently verified")
		return false, nil
	}

	if err := s.pacer.Wait(ctx); err != nil {
		return false, err
	}

	details, err := s.session.Details(ctx, ent.PlaceID)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, ctxErr
		}
		status := stats.Fail(ds.Name(), ent.Name, err)
		s.done(ctx, CommandVerify, ds, ent, status, "place_id", ent.PlaceID, "error", err)
		return false, nil
	}
	stats.Verified++
	stats.AddPlace(ent.PlaceID)

	class := ds.Spec.Class
	var drift float64
	if ent.HasCoordinates() {
		drift = spatial.Distance(*ent.Coords, details.Coords)
		if drift > s.opts.reportThreshold(class) {
			report.Discrepancies = append(report.Discrepancies, Discrepancy{
				Dataset:   ds.Name(),
				Name:      ent.Name,
				Type:      ds.Spec.Context,
				PlaceID:   ent.PlaceID,
				Current:   ent.Coords.Pair(),
				Google:    details.Coords.Pair(),
				DistanceM: drift,
			})
			s.metrics.Discrepancies.Inc()
			s.log.WarnContext(ctx, "Coordinates drifted from the place location",
				"dataset", ds.Name(), "name", ent.Name, "distance_m", int(drift))
		}
	}

	if !s.opts.Apply {
		s.done(ctx, CommandVerify, ds, ent, statusVerified, "distance_m", int(drift))
		return false, nil
	}

	moved := resolver.Reconcile(ent, details.Coords, s.opts.driftPolicy(class))
	if moved {
		stats.CoordinatesUpdated++
	}
	ent.MarkVerified(details.Coords, s.now())
	if details.FormattedAddress != "" {
		ent.FormattedAddress = details.FormattedAddress
	}

	s.done(ctx, CommandVerify, ds, ent, statusVerified, "distance_m", int(drift), "coordinates_updated", moved)
	return true, nil
}
