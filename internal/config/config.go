package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/UnknownOlympus/pinpoint/internal/geocoding"
	"github.com/UnknownOlympus/pinpoint/internal/repository"
	"github.com/UnknownOlympus/pinpoint/internal/resolver"
	"github.com/UnknownOlympus/pinpoint/internal/retry"
	"github.com/UnknownOlympus/pinpoint/internal/service"
	"github.com/UnknownOlympus/pinpoint/internal/spatial"
	"github.com/joho/godotenv"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. PINPOINT_PROVIDER_TYPE.
const EnvPrefix = "PINPOINT"

// Cache backends.
const (
	CacheFile     = "file"
	CachePostgres = "postgres"
	CacheNone     = "none"
)

// ErrMissingAPIKey is returned when a command needs Google and no key is configured.
var ErrMissingAPIKey = errors.New(
	"google API key is not set (GOOGLE_MAPS_API_KEY, GOOGLE_PLACES_API_KEY or PINPOINT_API_KEY)")

// Config holds the configuration settings for the dataset tool.
//
// Fields:
// - Env: The logging environment (local, development, production).
// - Region: The state and country appended to queries, and the plausible bounds.
// - Provider: Which geocoding provider to use and how to reach it.
// - Resolver: Search radius, acceptance distances and drift thresholds.
// - Retry, Pacing: How hard the APIs are hit.
// - Cache: Where place details are kept between runs.
// - Status: How often business statuses are checked, and for which datasets.
// - Paths: The data and backup directories.
// - Database: PostgreSQL connection used by the postgres cache backend.
// - Datasets: The dataset files and how their entities are searched.
type Config struct {
	Env         string                   `mapstructure:"env"`
	Region      RegionConfig             `mapstructure:"region"`
	Provider    ProviderConfig           `mapstructure:"provider"`
	Resolver    ResolverConfig           `mapstructure:"resolver"`
	Retry       RetryConfig              `mapstructure:"retry"`
	Pacing      service.PacingConfig     `mapstructure:"pacing"`
	Cache       CacheConfig              `mapstructure:"cache"`
	Status      StatusConfig             `mapstructure:"status"`
	Paths       PathsConfig              `mapstructure:"paths"`
	BackupFiles bool                     `mapstructure:"backup_files"`
	Database    PostgresConfig           `mapstructure:"database"`
	Datasets    []repository.DatasetSpec `mapstructure:"datasets"`

	settings map[string]any
}

// RegionConfig describes the area the datasets cover.
type RegionConfig struct {
	State       string       `mapstructure:"state"`
	Country     string       `mapstructure:"country"`
	CountryCode string       `mapstructure:"country_code"`
	Bounds      BoundsConfig `mapstructure:"bounds"`
}

// BoundsConfig is the plausibility envelope, in degrees.
type BoundsConfig struct {
	LatMin float64 `mapstructure:"lat_min"`
	LatMax float64 `mapstructure:"lat_max"`
	LngMin float64 `mapstructure:"lng_min"`
	LngMax float64 `mapstructure:"lng_max"`
}

type ProviderConfig struct {
	Type      string        `mapstructure:"type"`       // google or nominatim, for address geocoding
	APIKey    string        `mapstructure:"api_key"`    // Google Maps API key
	Timeout   time.Duration `mapstructure:"timeout"`    // Per-request HTTP timeout
	RateLimit int           `mapstructure:"rate_limit"` // Google requests per second
	UserAgent string        `mapstructure:"user_agent"` // Sent to Nominatim
	BaseURL   string        `mapstructure:"base_url"`
}

type ResolverConfig struct {
	SearchRadius        uint    `mapstructure:"search_radius"`
	MaxDistancePOI      float64 `mapstructure:"max_distance_poi"`
	MaxDistanceArea     float64 `mapstructure:"max_distance_area"`
	CoordinateThreshold float64 `mapstructure:"coordinate_threshold"`
	DriftThresholdPOI   float64 `mapstructure:"drift_threshold_poi"`
	DriftThresholdArea  float64 `mapstructure:"drift_threshold_area"`
	ReportThresholdPOI  float64 `mapstructure:"report_threshold_poi"`
	ReportThresholdArea float64 `mapstructure:"report_threshold_area"`
	FetchDetails        bool    `mapstructure:"fetch_details"`
	SearchMode          string  `mapstructure:"search_mode"`
	RequireCoordinates  bool    `mapstructure:"require_coordinates"`
	SeedExistingIDs     bool    `mapstructure:"seed_existing_ids"`
}

type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

type CacheConfig struct {
	Backend   string        `mapstructure:"backend"` // file, postgres or none
	File      string        `mapstructure:"file"`
	TTL       time.Duration `mapstructure:"ttl"`
	VerifyTTL time.Duration `mapstructure:"verify_ttl"` // Entities verified more recently are skipped
}

type StatusConfig struct {
	Interval time.Duration `mapstructure:"interval"` // Entities checked more recently are skipped
	Datasets []string      `mapstructure:"datasets"` // Checked when no --dataset is given
}

type PathsConfig struct {
	DataDir   string `mapstructure:"data_dir"`
	BackupDir string `mapstructure:"backup_dir"`
}

// PostgresConfig struct holds the configuration details for connecting to a PostgreSQL database.
type PostgresConfig struct {
	Host     string `mapstructure:"host"`     // Host is the database server address.
	Port     string `mapstructure:"port"`     // Port is the database server port.
	User     string `mapstructure:"user"`     // User is the database user.
	Password string `mapstructure:"password"` // Password is the database user's password.
	Name     string `mapstructure:"db_name"`  // Name is the name of the database.
}

// LoadOptions selects the files a configuration is read from.
type LoadOptions struct {
	Files   []string // Merged in order, later files win.
	EnvFile string   // Defaults to .env in the working directory, which may be absent.
	Fs      afero.Fs // Filesystem the config files are read from; the OS by default.
}

// Load builds the configuration from the defaults, the config files, the .env
// file and the environment, in increasing order of precedence. The result is
// not validated.
func Load(opts LoadOptions) (*Config, error) {
	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil {
			return nil, fmt.Errorf("failed to load env file %s: %w", opts.EnvFile, err)
		}
	} else {
		_ = godotenv.Load()
	}

	v := viper.New()
	if opts.Fs != nil {
		v.SetFs(opts.Fs)
	}
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnv(v)

	for _, file := range opts.Files {
		v.SetConfigFile(file)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	cfg.settings = v.AllSettings()

	if len(opts.Files) > 0 {
		base, err := filepath.Abs(filepath.Dir(opts.Files[0]))
		if err != nil {
			return nil, fmt.Errorf("failed to resolve config directory: %w", err)
		}
		cfg.Paths.DataDir = resolvePath(base, cfg.Paths.DataDir)
		cfg.Paths.BackupDir = resolvePath(base, cfg.Paths.BackupDir)
		cfg.Cache.File = resolvePath(base, cfg.Cache.File)
	}

	return &cfg, nil
}

func bindEnv(v *viper.Viper) {
	_ = v.BindEnv("provider.api_key", EnvPrefix+"_API_KEY", "GOOGLE_MAPS_API_KEY", "GOOGLE_PLACES_API_KEY")
	_ = v.BindEnv("database.host", EnvPrefix+"_DATABASE_HOST", "DB_HOST")
	_ = v.BindEnv("database.port", EnvPrefix+"_DATABASE_PORT", "DB_PORT")
	_ = v.BindEnv("database.user", EnvPrefix+"_DATABASE_USER", "DB_USERNAME")
	_ = v.BindEnv("database.password", EnvPrefix+"_DATABASE_PASSWORD", "DB_PASSWORD")
	_ = v.BindEnv("database.db_name", EnvPrefix+"_DATABASE_DB_NAME", "DB_NAME")
}

func resolvePath(base, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base, path)
}

// Envelope returns the plausibility bounds.
func (c *Config) Envelope() spatial.Envelope {
	b := c.Region.Bounds
	return spatial.NewEnvelope(b.LatMin, b.LatMax, b.LngMin, b.LngMax)
}

// RetryConfig returns the backoff settings for provider calls.
func (c *Config) RetryConfig() retry.Config {
	cfg := retry.DefaultConfig()
	cfg.MaxAttempts = c.Retry.MaxAttempts
	cfg.BaseDelay = c.Retry.BaseDelay
	cfg.MaxDelay = c.Retry.MaxDelay
	return cfg
}

// ResolverOptions returns the settings of a resolution session.
func (c *Config) ResolverOptions() resolver.Options {
	return resolver.Options{
		Provider:           string(geocoding.ProviderTypeGoogle),
		State:              c.Region.State,
		Country:            c.Region.Country,
		SearchRadius:       c.Resolver.SearchRadius,
		MaxDistancePOI:     c.Resolver.MaxDistancePOI,
		MaxDistanceArea:    c.Resolver.MaxDistanceArea,
		FetchDetails:       c.Resolver.FetchDetails,
		RequireCoordinates: c.Resolver.RequireCoordinates,
		SearchMode:         geocoding.SearchMode(c.Resolver.SearchMode),
		Retry:              c.RetryConfig(),
		CacheTTL:           c.Cache.TTL,
	}
}

// VerifyOptions returns the verification thresholds.
func (c *Config) VerifyOptions(apply bool) service.VerifyOptions {
	return service.VerifyOptions{
		Apply:      apply,
		TTL:        c.Cache.VerifyTTL,
		ReportPOI:  c.Resolver.ReportThresholdPOI,
		ReportArea: c.Resolver.ReportThresholdArea,
		DriftPOI:   c.Resolver.DriftThresholdPOI,
		DriftArea:  c.Resolver.DriftThresholdArea,
	}
}

// StatusOptions returns the business status check settings.
func (c *Config) StatusOptions(force bool) service.StatusOptions {
	return service.StatusOptions{Force: force, Interval: c.Status.Interval}
}

// SelectStatusDatasets is SelectDatasets with the status datasets as the
// default filter.
func (c *Config) SelectStatusDatasets(filters []string) ([]repository.DatasetSpec, error) {
	if len(filters) == 0 {
		filters = c.Status.Datasets
	}
	return c.SelectDatasets(filters)
}

// GeocodingProvider returns the settings used to build a provider of the given
// type. An empty type selects the configured one.
func (c *Config) GeocodingProvider(providerType string) geocoding.ProviderConfig {
	if providerType == "" {
		providerType = c.Provider.Type
	}
	return geocoding.ProviderConfig{
		Type:        geocoding.ProviderType(providerType),
		APIKey:      c.Provider.APIKey,
		RateLimit:   c.Provider.RateLimit,
		Timeout:     c.Provider.Timeout,
		BaseURL:     c.Provider.BaseURL,
		CountryCode: c.Region.CountryCode,
		UserAgent:   c.Provider.UserAgent,
	}
}

// RequireAPIKey fails when no Google key is configured.
func (c *Config) RequireAPIKey() error {
	if strings.TrimSpace(c.Provider.APIKey) == "" {
		return ErrMissingAPIKey
	}
	return nil
}

// SelectDatasets returns the datasets matching the file name filters, all of
// them when no filter is given.
func (c *Config) SelectDatasets(filters []string) ([]repository.DatasetSpec, error) {
	var selected []repository.DatasetSpec
	for _, spec := range c.Datasets {
		if repository.Matches(spec, filters) {
			selected = append(selected, spec)
		}
	}
	if len(selected) == 0 {
		return nil, fmt.Errorf("no dataset matches %s", strings.Join(filters, ", "))
	}
	return selected, nil
}

// Settings returns the merged settings with secrets masked.
func (c *Config) Settings() map[string]any {
	return redact(c.settings)
}

var secretKeys = map[string]bool{"api_key": true, "password": true}

func redact(settings map[string]any) map[string]any {
	out := make(map[string]any, len(settings))
	for key, value := range settings {
		switch v := value.(type) {
		case map[string]any:
			out[key] = redact(v)
		case string:
			if secretKeys[key] && v != "" {
				out[key] = "********"
			} else {
				out[key] = v
			}
		default:
			out[key] = v
		}
	}
	return out
}
