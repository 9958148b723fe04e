// Package service runs the dataset maintenance commands: enrichment with place
// identifiers, coordinate verification, applying corrections and address geocoding.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/UnknownOlympus/pinpoint/internal/metrics"
	"github.com/UnknownOlympus/pinpoint/internal/models"
	"github.com/UnknownOlympus/pinpoint/internal/repository"
)

// ErrDatasetsFailed is returned when at least one dataset could not be loaded or saved.
// The remaining datasets are still processed.
var ErrDatasetsFailed = errors.New("one or more datasets failed")

// Progress receives a tick for every processed entity.
type Progress interface {
	Start(total int, description string)
	Add(n int)
	Finish()
}

type nopProgress struct{}

func (nopProgress) Start(int, string) {}
func (nopProgress) Add(int)           {}
func (nopProgress) Finish()           {}

// Runner holds what every command shares: dataset storage, logging, metrics and
// the dry-run and backup switches.
type Runner struct {
	log      *slog.Logger         // Logger for per-entity and per-dataset lines
	repo     repository.Interface // Dataset storage
	metrics  *metrics.Metrics     // Outcome counters
	dryRun   bool                 // Never write datasets
	backup   bool                 // Copy datasets before overwriting them
	progress Progress
	now      func() time.Time
}

// RunnerOption tweaks a Runner.
type RunnerOption func(*Runner)

// WithDryRun disables all dataset writes.
func WithDryRun(dryRun bool) RunnerOption {
	return func(r *Runner) { r.dryRun = dryRun }
}

// WithBackups controls whether datasets are backed up before they are saved.
func WithBackups(backup bool) RunnerOption {
	return func(r *Runner) { r.backup = backup }
}

// WithProgress reports progress to p.
func WithProgress(p Progress) RunnerOption {
	return func(r *Runner) {
		if p != nil {
			r.progress = p
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) RunnerOption {
	return func(r *Runner) { r.now = now }
}

// NewRunner creates a Runner. Backups are on by default.
func NewRunner(log *slog.Logger, repo repository.Interface, metrics *metrics.Metrics, opts ...RunnerOption) *Runner {
	r := &Runner{
		log:      log,
		repo:     repo,
		metrics:  metrics,
		backup:   true,
		progress: nopProgress{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// DryRun reports whether datasets are left untouched.
func (r *Runner) DryRun() bool {
	return r.dryRun
}

// LoadAll loads every dataset. Datasets that fail to load are logged and left
// out; the returned error then wraps ErrDatasetsFailed.
func (r *Runner) LoadAll(ctx context.Context, specs []repository.DatasetSpec) ([]*repository.Dataset, error) {
	var (
		datasets []*repository.Dataset
		failed   []string
	)
	for _, spec := range specs {
		if err := ctx.Err(); err != nil {
			return datasets, err
		}
		ds, err := r.repo.Load(ctx, spec)
		if err != nil {
			r.log.ErrorContext(ctx, "Failed to load dataset", "dataset", spec.Name(), "error", err)
			failed = append(failed, spec.Name())
			continue
		}
		datasets = append(datasets, ds)
	}

	if len(failed) > 0 {
		return datasets, fmt.Errorf("%w: %s", ErrDatasetsFailed, strings.Join(failed, ", "))
	}
	return datasets, nil
}

// entityFunc processes one entity and reports whether it changed.
type entityFunc func(ctx context.Context, ds *repository.Dataset, ent *models.Entity) (bool, error)

// loaded is the outcome of reading one dataset ahead of processing.
type loaded struct {
	ds  *repository.Dataset
	err error
}

// preload reads every dataset up front, for runs that must see all entities
// before changing any. Load failures are kept and reported when the dataset's
// turn comes.
func (r *Runner) preload(ctx context.Context, specs []repository.DatasetSpec) (map[string]loaded, error) {
	pre := make(map[string]loaded, len(specs))
	for _, spec := range specs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ds, err := r.repo.Load(ctx, spec)
		pre[spec.File] = loaded{ds: ds, err: err}
	}
	return pre, nil
}

// forEachEntity loads every dataset in turn, hands each entity to process and
// saves the datasets that changed.
func (r *Runner) forEachEntity(ctx context.Context, specs []repository.DatasetSpec, process entityFunc) error {
	return r.forEachDataset(ctx, specs, nil, process)
}

// forEachDataset is forEachEntity over datasets that may already be in pre. A
// dataset that cannot be loaded or saved is logged and skipped; the error
// returned at the end names all of them. Work done before a cancellation is
// still saved.
func (r *Runner) forEachDataset(
	ctx context.Context,
	specs []repository.DatasetSpec,
	pre map[string]loaded,
	process entityFunc,
) error {
	var failed []string
	for _, spec := range specs {
		if err := ctx.Err(); err != nil {
			return err
		}

		l, ok := pre[spec.File]
		if !ok {
			l.ds, l.err = r.repo.Load(ctx, spec)
		}
		if l.err != nil {
			r.log.ErrorContext(ctx, "Failed to load dataset", "dataset", spec.Name(), "error", l.err)
			r.metrics.DatasetsProcessed.WithLabelValues("failure").Inc()
			failed = append(failed, spec.Name())
			continue
		}
		ds := l.ds

		r.log.InfoContext(ctx, "Processing dataset", "dataset", ds.Name(), "entities", len(ds.Entities))
		changed, procErr := r.processDataset(ctx, ds, process)

		if err := r.commit(context.WithoutCancel(ctx), ds, changed); err != nil {
			r.log.ErrorContext(ctx, "Failed to save dataset", "dataset", ds.Name(), "error", err)
			r.metrics.DatasetsProcessed.WithLabelValues("failure").Inc()
			failed = append(failed, ds.Name())
		} else {
			r.metrics.DatasetsProcessed.WithLabelValues("success").Inc()
		}

		if procErr != nil {
			return procErr
		}
	}

	if len(failed) > 0 {
		return fmt.Errorf("%w: %s", ErrDatasetsFailed, strings.Join(failed, ", "))
	}
	return nil
}

func (r *Runner) processDataset(ctx context.Context, ds *repository.Dataset, process entityFunc) (int, error) {
	r.progress.Start(len(ds.Entities), ds.Name())
	defer r.progress.Finish()

	changed := 0
	for _, ent := range ds.Entities {
		updated, err := process(ctx, ds, ent)
		if err != nil {
			return changed, err
		}
		if updated {
			changed++
		}
		r.progress.Add(1)
	}
	return changed, nil
}

// commit backs up and saves a dataset that has changes.
func (r *Runner) commit(ctx context.Context, ds *repository.Dataset, changed int) error {
	switch {
	case changed == 0:
		r.log.DebugContext(ctx, "No changes, dataset not written", "dataset", ds.Name())
		return nil
	case r.dryRun:
		r.log.InfoContext(ctx, "Dry run, dataset not written", "dataset", ds.Name(), "changed", changed)
		return nil
	}

	if r.backup {
		path, err := r.repo.Backup(ctx, ds)
		if err != nil {
			return fmt.Errorf("failed to back up dataset: %w", err)
		}
		r.log.InfoContext(ctx, "Dataset backed up", "dataset", ds.Name(), "backup", path)
	}

	if err := r.repo.Save(ctx, ds); err != nil {
		return err
	}
	r.log.InfoContext(ctx, "Dataset saved", "dataset", ds.Name(), "changed", changed)
	return nil
}

// done logs the outcome of one entity and counts it.
func (r *Runner) done(
	ctx context.Context,
	command string,
	ds *repository.Dataset,
	ent *models.Entity,
	status string,
	attrs ...any,
) {
	r.metrics.EntitiesProcessed.WithLabelValues(command, status).Inc()

	args := append([]any{"dataset", ds.Name(), "name", ent.Name, "status", status}, attrs...)
	switch status {
	case statusSkipped:
		r.log.DebugContext(ctx, "- "+ent.Name, args...)
	case statusNotFound, statusDuplicate, statusError:
		r.log.WarnContext(ctx, "✗ "+ent.Name, args...)
	default:
		r.log.InfoContext(ctx, "✓ "+ent.Name, args...)
	}
}
