package service

import (
	"context"
	"errors"
	"time"

	"github.com/UnknownOlympus/pinpoint/internal/models"
	"github.com/UnknownOlympus/pinpoint/internal/repository"
	"github.com/UnknownOlympus/pinpoint/internal/resolver"
)

// CommandStatus labels business status runs.
const CommandStatus = "status"

// StatusOptions tunes a business status run.
type StatusOptions struct {
	Force    bool          // Check every entity regardless of its last check.
	Interval time.Duration // Entities checked more recently than this are skipped.
}

// DefaultStatusOptions checks each entity at most every 30 days.
func DefaultStatusOptions() StatusOptions {
	const interval = 30 * 24 * time.Hour
	return StatusOptions{Interval: interval}
}

// StatusService records whether the businesses of a dataset are still open.
type StatusService struct {
	*Runner
	session *resolver.Session
	pacer   *Pacer
	opts    StatusOptions
}

// NewStatusService creates a business status service.
func NewStatusService(runner *Runner, session *resolver.Session, pacer *Pacer, opts StatusOptions) *StatusService {
	if pacer == nil {
		pacer = NoPacing()
	}
	return &StatusService{Runner: runner, session: session, pacer: pacer, opts: opts}
}

// Run checks the business status of every entity that is due.
func (s *StatusService) Run(ctx context.Context, specs []repository.DatasetSpec) (*Report, error) {
	report := NewReport(CommandStatus, s.dryRun, s.now())
	stats := report.Stats

	err := s.forEachEntity(ctx, specs, func(ctx context.Context, ds *repository.Dataset, ent *models.Entity) (bool, error) {
		return s.check(ctx, ds, ent, stats)
	})

	usage := s.session.Usage()
	stats.APICalls, stats.CacheHits = usage.APICalls, usage.CacheHits
	report.Finish(s.now())
	stats.Log(ctx, s.log, CommandStatus)
	return report, err
}

func (s *StatusService) due(ent *models.Entity) bool {
	return s.opts.Force || ent.StatusCheckedAt == nil || s.now().Sub(*ent.StatusCheckedAt) >= s.opts.Interval
}

func (s *StatusService) check(
	ctx context.Context,
	ds *repository.Dataset,
	ent *models.Entity,
	stats *Stats,
) (bool, error) {
	stats.Processed++

	if !s.due(ent) {
		stats.Skipped++
		stats.AddPlace(ent.PlaceID)
		s.done(ctx, CommandStatus, ds, ent, statusSkipped, "reason", "recently checked")
		return false, nil
	}

	if err := s.pacer.Wait(ctx); err != nil {
		return false, err
	}

	placeID := ent.PlaceID
	if placeID == "" {
		res, err := s.session.Resolve(ctx, ent, ds.Spec.Context, ds.Spec.Class)
		if err != nil {
			return s.fail(ctx, ds, ent, stats, err)
		}
		ent.SetPlace(res.PlaceID)
		placeID = res.PlaceID
	}

	details, err := s.session.FreshDetails(ctx, placeID)
	if err != nil {
		return s.fail(ctx, ds, ent, stats, err)
	}
	stats.StatusChecked++
	stats.AddPlace(placeID)

	if details.BusinessStatus == "" {
		ent.MarkStatusChecked(s.now())
		s.done(ctx, CommandStatus, ds, ent, statusChecked, "business_status", "unknown")
		return true, nil
	}

	before, beforeFlag := ent.BusinessStatus, ent.ClosedFlag
	ent.SetBusinessStatus(details.BusinessStatus, s.now())
	changed := ent.BusinessStatus != before || ent.ClosedFlag != beforeFlag
	if changed {
		stats.StatusChanged++
	}

	s.done(ctx, CommandStatus, ds, ent, statusChecked,
		"place_id", placeID,
		"business_status", ent.BusinessStatus,
		"changed", changed)
	return true, nil
}

// fail records an entity whose status could not be read. Entities without a
// place are stamped as checked so that they wait for the next interval; other
// errors leave them due.
func (s *StatusService) fail(
	ctx context.Context,
	ds *repository.Dataset,
	ent *models.Entity,
	stats *Stats,
	err error,
) (bool, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return false, ctxErr
	}
	status := stats.Fail(ds.Name(), ent.Name, err)
	s.done(ctx, CommandStatus, ds, ent, status, "reason", resolver.StatusOf(err), "error", err)

	if !errors.Is(err, resolver.ErrNotFound) {
		return false, nil
	}
	ent.MarkStatusChecked(s.now())
	return true, nil
}
