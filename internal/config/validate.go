package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/UnknownOlympus/pinpoint/internal/geocoding"
	"github.com/UnknownOlympus/pinpoint/internal/repository"
	"github.com/UnknownOlympus/pinpoint/internal/resolver"
)

const (
	minTimeout  = time.Second
	maxTimeout  = 300 * time.Second
	maxAttempts = 10
	maxPacing   = 10 * time.Second
)

var envs = map[string]bool{"local": true, "development": true, "production": true}

// Validate reports every problem of the configuration at once.
func (c *Config) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if !envs[c.Env] {
		fail("env: unknown environment %q", c.Env)
	}

	b := c.Region.Bounds
	if b.LatMin < -90 || b.LatMax > 90 {
		fail("region.bounds: latitude must be within -90..90")
	}
	if b.LngMin < -180 || b.LngMax > 180 {
		fail("region.bounds: longitude must be within -180..180")
	}
	if b.LatMin >= b.LatMax || b.LngMin >= b.LngMax {
		fail("region.bounds: minimums must be below maximums")
	}

	switch geocoding.ProviderType(c.Provider.Type) {
	case geocoding.ProviderTypeGoogle, geocoding.ProviderTypeNominatim:
	default:
		fail("provider.type: unknown provider %q", c.Provider.Type)
	}
	if c.Provider.Timeout < minTimeout || c.Provider.Timeout > maxTimeout {
		fail("provider.timeout: %s is outside %s..%s", c.Provider.Timeout, minTimeout, maxTimeout)
	}
	if c.Provider.RateLimit < 0 {
		fail("provider.rate_limit: must not be negative")
	}

	r := c.Resolver
	if r.SearchRadius == 0 {
		fail("resolver.search_radius: must be positive")
	}
	for name, value := range map[string]float64{
		"max_distance_poi":      r.MaxDistancePOI,
		"max_distance_area":     r.MaxDistanceArea,
		"coordinate_threshold":  r.CoordinateThreshold,
		"drift_threshold_poi":   r.DriftThresholdPOI,
		"drift_threshold_area":  r.DriftThresholdArea,
		"report_threshold_poi":  r.ReportThresholdPOI,
		"report_threshold_area": r.ReportThresholdArea,
	} {
		if value <= 0 {
			fail("resolver.%s: must be positive", name)
		}
	}
	switch geocoding.SearchMode(r.SearchMode) {
	case geocoding.SearchModeText, geocoding.SearchModeFind:
	default:
		fail("resolver.search_mode: unknown mode %q", r.SearchMode)
	}

	if c.Retry.MaxAttempts < 1 || c.Retry.MaxAttempts > maxAttempts {
		fail("retry.max_attempts: %d is outside 1..%d", c.Retry.MaxAttempts, maxAttempts)
	}
	if c.Retry.BaseDelay <= 0 || c.Retry.MaxDelay < c.Retry.BaseDelay {
		fail("retry: base_delay must be positive and not above max_delay")
	}

	p := c.Pacing
	for name, d := range map[string]time.Duration{
		"base_delay": p.BaseDelay,
		"after_5":    p.After5,
		"after_10":   p.After10,
	} {
		if d < 0 || d > maxPacing {
			fail("pacing.%s: %s is outside 0..%s", name, d, maxPacing)
		}
	}
	if p.JitterMin < 0 || p.JitterMax < p.JitterMin {
		fail("pacing: jitter range %.2f..%.2f is invalid", p.JitterMin, p.JitterMax)
	}

	switch c.Cache.Backend {
	case CacheFile:
		if c.Cache.File == "" {
			fail("cache.file: required by the file backend")
		}
	case CachePostgres:
		if c.Database.Host == "" || c.Database.Name == "" {
			fail("database: host and db_name are required by the postgres backend")
		}
	case CacheNone:
	default:
		fail("cache.backend: unknown backend %q", c.Cache.Backend)
	}
	if c.Cache.TTL <= 0 || c.Cache.VerifyTTL <= 0 {
		fail("cache: ttl and verify_ttl must be positive")
	}
	if c.Status.Interval <= 0 {
		fail("status.interval must be positive")
	}

	if strings.TrimSpace(c.Paths.DataDir) == "" {
		fail("paths.data_dir: required")
	}

	if len(c.Datasets) == 0 {
		fail("datasets: at least one dataset is required")
	}
	for i, ds := range c.Datasets {
		if strings.TrimSpace(ds.File) == "" {
			fail("datasets[%d]: file is required", i)
		}
		if _, err := resolver.ParseClass(string(ds.Class)); err != nil {
			fail("datasets[%d]: %w", i, err)
		}
		switch ds.Layout {
		case "", repository.LayoutAuto, repository.LayoutList, repository.LayoutRegions, repository.LayoutCities:
		default:
			fail("datasets[%d]: unknown layout %q", i, ds.Layout)
		}
	}

	return errors.Join(errs...)
}
