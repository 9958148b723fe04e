package cli

import (
	"github.com/UnknownOlympus/pinpoint/internal/geocoding"
	"github.com/UnknownOlympus/pinpoint/internal/service"
	"github.com/spf13/cobra"
)

// defaultVerifyReport is where verify writes its discrepancies when --report is not given.
const defaultVerifyReport = "verification_report.json"

func newEnrichCommand(a *app) *cobra.Command {
	var force, seed bool

	cmd := &cobra.Command{
		Use:   "enrich",
		Short: "Assign Google place identifiers to dataset entities",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			specs, err := a.specs()
			if err != nil {
				return err
			}
			session, release, err := a.session(ctx)
			if err != nil {
				return err
			}
			defer release()

			svc := service.NewEnrichmentService(a.runner(a.repository()), session, service.NewPacer(a.cfg.Pacing),
				service.EnrichOptions{
					Force:               force,
					SeedExisting:        seed || a.cfg.Resolver.SeedExistingIDs,
					CoordinateThreshold: a.cfg.Resolver.CoordinateThreshold,
				})
			report, err := svc.Run(ctx, specs)
			return a.finish(report, "", err)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "resolve entities that already have a place identifier")
	cmd.Flags().BoolVar(&seed, "seed-existing", false, "treat identifiers already in the datasets as taken")
	return cmd
}

func newVerifyCommand(a *app) *cobra.Command {
	var apply bool

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Compare stored coordinates with Google place details",
		Long: `
verify fetches the details of every resolved entity that was not verified
recently and reports those whose stored coordinates drifted past the report
threshold. With --apply the verified coordinates are written back.
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			specs, err := a.specs()
			if err != nil {
				return err
			}
			session, release, err := a.session(ctx)
			if err != nil {
				return err
			}
			defer release()

			svc := service.NewVerificationService(a.runner(a.repository()), session, service.NewPacer(a.cfg.Pacing),
				a.cfg.VerifyOptions(apply))
			report, err := svc.Run(ctx, specs)
			return a.finish(report, defaultVerifyReport, err)
		},
	}
	cmd.Flags().BoolVar(&apply, "apply", false, "write verified coordinates to the datasets")
	return cmd
}

func newStatusCommand(a *app) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Record whether businesses are open, closed temporarily or closed permanently",
		Long: `
status reads the Google business status of every entity not checked within
status.interval and writes business_status, closed_flag and status_last_checked.
Entities without a place identifier are resolved first. Without --dataset the
datasets listed in status.datasets are checked.
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			specs, err := a.cfg.SelectStatusDatasets(a.opts.datasets)
			if err != nil {
				return configError(err)
			}
			session, release, err := a.session(ctx)
			if err != nil {
				return err
			}
			defer release()

			svc := service.NewStatusService(a.runner(a.repository()), session, service.NewPacer(a.cfg.Pacing),
				a.cfg.StatusOptions(force))
			report, err := svc.Run(ctx, specs)
			return a.finish(report, "", err)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "check every entity regardless of its last check")
	return cmd
}

func newApplyCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "apply <report.json>",
		Short: "Apply the discrepancies of a verification report without calling any API",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			specs, err := a.specs()
			if err != nil {
				return err
			}
			saved, err := service.ReadReport(a.fs, args[0])
			if err != nil {
				return err
			}

			svc := service.NewCorrectionService(a.runner(a.repository()), service.DefaultCorrectionLimits(a.cfg.Envelope()))
			report, err := svc.ApplyCorrections(cmd.Context(), saved, specs)
			return a.finish(report, "", err)
		},
	}
}

func newGeocodeCommand(a *app) *cobra.Command {
	var provider string

	cmd := &cobra.Command{
		Use:   "geocode",
		Short: "Geocode the addresses of entities without coordinates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			specs, err := a.specs()
			if err != nil {
				return err
			}

			providerCfg := a.cfg.GeocodingProvider(provider)
			providerCfg.Logger = a.log
			geo, err := geocoding.NewProvider(providerCfg)
			if err != nil {
				return configError(err)
			}
			a.log.Info("Geocoding provider initialized", "type", providerCfg.Type)

			svc := service.NewGeocodingService(
				a.runner(a.repository()),
				geo,
				string(providerCfg.Type),
				service.NewPacer(a.cfg.Pacing),
				a.cfg.RetryConfig(),
				a.cfg.Envelope(),
				a.cfg.Region.State,
				a.cfg.Region.Country,
			)
			report, err := svc.Run(cmd.Context(), specs)
			return a.finish(report, "", err)
		},
	}
	cmd.Flags().StringVar(&provider, "provider", "", "google or nominatim (default from the configuration)")
	return cmd
}
