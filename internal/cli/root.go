// Package cli wires the configuration, storage and providers into the pinpoint
// commands.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/UnknownOlympus/pinpoint/internal/config"
	"github.com/UnknownOlympus/pinpoint/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

// Exit statuses.
const (
	ExitOK     = 0
	ExitFailed = 1
	ExitConfig = 2
)

// ErrConfig marks errors that happen before any dataset is touched: unreadable
// or invalid configuration, unknown datasets, missing credentials.
var ErrConfig = errors.New("configuration error")

func configError(err error) error {
	return fmt.Errorf("%w: %w", ErrConfig, err)
}

// options are the persistent flags shared by every command.
type options struct {
	configFiles []string
	envFile     string
	dryRun      bool
	metricsFile string
	reportPath  string
	verbose     bool
	datasets    []string
}

// app carries what the commands share once the configuration is loaded.
type app struct {
	opts     options
	cfg      *config.Config
	log      *slog.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	fs       afero.Fs
	stdout   io.Writer
	stderr   *os.File
}

// NewRootCommand builds the pinpoint command tree.
func NewRootCommand(version string) *cobra.Command {
	a := &app{fs: afero.NewOsFs(), stdout: os.Stdout, stderr: os.Stderr}

	root := &cobra.Command{
		Use:   "pinpoint",
		Short: "Place resolution and coordinate reconciliation for map datasets",
		Long: `
pinpoint keeps the JSON datasets of the map up to date: it assigns Google place
identifiers, verifies stored coordinates against Google, geocodes addresses and
audits the datasets for duplicates.
`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			a.stdout = cmd.OutOrStdout()
			return a.setup()
		},
	}

	flags := root.PersistentFlags()
	flags.StringArrayVar(&a.opts.configFiles, "config", nil, "config file, repeatable; later files override earlier ones")
	flags.StringVar(&a.opts.envFile, "env-file", "", "dotenv file to load (default .env when present)")
	flags.BoolVar(&a.opts.dryRun, "dry-run", false, "never write dataset files")
	flags.StringVar(&a.opts.metricsFile, "metrics-file", "", "write Prometheus metrics to this textfile")
	flags.StringVar(&a.opts.reportPath, "report", "", "write the run report to this file")
	flags.BoolVarP(&a.opts.verbose, "verbose", "v", false, "debug logging")
	flags.StringArrayVar(&a.opts.datasets, "dataset", nil, "only process this dataset file, repeatable")

	root.AddCommand(
		newEnrichCommand(a),
		newVerifyCommand(a),
		newStatusCommand(a),
		newApplyCommand(a),
		newGeocodeCommand(a),
		newAuditCommand(a),
		newExportCommand(a),
		newCacheCommand(a),
		newConfigCommand(a),
		newCheckCommand(a),
	)
	return root
}

// setup loads and validates the configuration and builds the logger and metrics.
func (a *app) setup() error {
	cfg, err := config.Load(config.LoadOptions{Files: a.opts.configFiles, EnvFile: a.opts.envFile})
	if err != nil {
		return configError(err)
	}
	if err = cfg.Validate(); err != nil {
		return configError(err)
	}
	a.cfg = cfg

	env := cfg.Env
	if a.opts.verbose {
		env = envLocal
	}
	a.log = setupLogger(env, a.stderr)

	a.registry = prometheus.NewRegistry()
	a.metrics = metrics.NewMetrics(a.registry)
	return nil
}

// Execute runs the command line and returns the process exit status.
func Execute(version string) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := NewRootCommand(version).ExecuteContext(ctx)
	if err == nil {
		return ExitOK
	}

	fmt.Fprintln(os.Stderr, "Error:", err)
	if errors.Is(err, ErrConfig) {
		return ExitConfig
	}
	return ExitFailed
}
