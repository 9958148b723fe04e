package cli

import (
	"context"
	"fmt"

	"github.com/UnknownOlympus/pinpoint/internal/cache"
	"github.com/UnknownOlympus/pinpoint/internal/config"
	"github.com/UnknownOlympus/pinpoint/internal/geocoding"
	"github.com/UnknownOlympus/pinpoint/internal/metrics"
	"github.com/UnknownOlympus/pinpoint/internal/repository"
	"github.com/UnknownOlympus/pinpoint/internal/resolver"
	"github.com/UnknownOlympus/pinpoint/internal/service"
)

// specs returns the datasets selected with --dataset.
func (a *app) specs() ([]repository.DatasetSpec, error) {
	specs, err := a.cfg.SelectDatasets(a.opts.datasets)
	if err != nil {
		return nil, configError(err)
	}
	return specs, nil
}

func (a *app) repository() *repository.FileRepository {
	return repository.NewFileRepository(a.cfg.Paths.DataDir, a.cfg.Paths.BackupDir, a.log, repository.WithFs(a.fs))
}

func (a *app) runner(repo repository.Interface) *service.Runner {
	return service.NewRunner(a.log, repo, a.metrics,
		service.WithDryRun(a.opts.dryRun),
		service.WithBackups(a.cfg.BackupFiles),
		service.WithProgress(newProgress(a.stderr)),
	)
}

// openCache returns the configured place details cache and a function that
// releases it.
func (a *app) openCache(ctx context.Context) (cache.Cache, func(), error) {
	switch a.cfg.Cache.Backend {
	case config.CacheFile:
		fc := cache.NewFileCache(a.cfg.Cache.File, a.log, cache.WithFs(a.fs), cache.WithLegacyTTL(a.cfg.Cache.TTL))
		if err := fc.Load(); err != nil {
			return nil, nil, err
		}
		return fc, func() {}, nil
	case config.CachePostgres:
		db := a.cfg.Database
		pool, err := cache.NewDatabase(ctx, db.Host, db.Port, db.User, db.Password, db.Name)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to the cache database: %w", err)
		}
		pc := cache.NewPostgresCache(pool, a.log)
		if err = pc.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return pc, pool.Close, nil
	default:
		return cache.Nop{}, func() {}, nil
	}
}

// session builds a resolution session on the Google Places API.
func (a *app) session(ctx context.Context) (*resolver.Session, func(), error) {
	if err := a.cfg.RequireAPIKey(); err != nil {
		return nil, nil, configError(err)
	}

	providerCfg := a.cfg.GeocodingProvider(string(geocoding.ProviderTypeGoogle))
	providerCfg.Logger = a.log
	searcher, err := geocoding.NewPlaceSearcher(providerCfg)
	if err != nil {
		return nil, nil, configError(err)
	}

	store, release, err := a.openCache(ctx)
	if err != nil {
		return nil, nil, err
	}
	return resolver.NewSession(searcher, store, a.cfg.ResolverOptions(), a.log, a.metrics), release, nil
}

// finish writes the report and the metrics textfile. runErr is returned
// unchanged unless it is nil and writing fails.
func (a *app) finish(report *service.Report, defaultReport string, runErr error) error {
	path := a.opts.reportPath
	if path == "" {
		path = defaultReport
	}
	if report != nil && path != "" {
		if err := service.WriteReport(a.fs, path, report); err != nil {
			a.log.Error("Failed to write report", "path", path, "error", err)
			if runErr == nil {
				runErr = err
			}
		} else {
			a.log.Info("Report written", "path", path)
		}
	}
	return a.flushMetrics(runErr)
}

func (a *app) flushMetrics(runErr error) error {
	if a.opts.metricsFile == "" {
		return runErr
	}
	if err := metrics.WriteTextfile(a.opts.metricsFile, a.registry); err != nil {
		a.log.Error("Failed to write metrics", "error", err)
		if runErr == nil {
			return err
		}
	}
	return runErr
}
