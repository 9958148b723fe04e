package cli

import (
	"fmt"
	"io"

	"github.com/UnknownOlympus/pinpoint/internal/audit"
	"github.com/UnknownOlympus/pinpoint/internal/export"
	"github.com/UnknownOlympus/pinpoint/internal/service"
	"github.com/spf13/cobra"
)

func newAuditCommand(a *app) *cobra.Command {
	var (
		radius   float64
		decimals int
		clean    bool
	)

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Find duplicate place identifiers, stacked markers and malformed entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			specs, err := a.specs()
			if err != nil {
				return err
			}

			svc := service.NewAuditService(a.runner(a.repository()), service.AuditOptions{
				Radius:   radius,
				Decimals: decimals,
				Clean:    clean,
				Envelope: a.cfg.Envelope(),
			})
			result, err := svc.Run(cmd.Context(), specs)
			if result != nil {
				printAudit(a.stdout, result)
			}
			return a.flushMetrics(err)
		},
	}
	cmd.Flags().Float64Var(&radius, "radius", audit.DefaultRadius, "meters under which two entities count as close")
	cmd.Flags().IntVar(&decimals, "decimals", audit.DefaultDecimals, "decimals kept when grouping identical coordinates")
	cmd.Flags().BoolVar(&clean, "clean", false, "clear duplicated place identifiers from all but their first holder")
	return cmd
}

func printAudit(w io.Writer, r *service.AuditResult) {
	fmt.Fprintf(w, "Duplicate place identifiers: %d\n", len(r.DuplicatePlaceIDs))
	for _, g := range r.DuplicatePlaceIDs {
		fmt.Fprintf(w, "  %s\n", g.PlaceID)
		for _, h := range g.Holders {
			fmt.Fprintf(w, "    %s: %s\n", h.Dataset, h.Name)
		}
	}

	fmt.Fprintf(w, "Identical coordinates: %d\n", len(r.CoordinateClusters))
	for _, c := range r.CoordinateClusters {
		fmt.Fprintf(w, "  %s\n", c.Key)
		for _, h := range c.Holders {
			fmt.Fprintf(w, "    %s: %s\n", h.Dataset, h.Name)
		}
	}

	fmt.Fprintf(w, "Close pairs: %d\n", len(r.ClosePairs))
	for _, p := range r.ClosePairs {
		marker := ""
		if p.SameName {
			marker = " (same name)"
		}
		fmt.Fprintf(w, "  %.0fm  %s: %s <-> %s: %s%s\n", p.Distance, p.A.Dataset, p.A.Name, p.B.Dataset, p.B.Name, marker)
	}

	fmt.Fprintf(w, "Issues: %d\n", len(r.Issues))
	for _, issue := range r.Issues {
		fmt.Fprintf(w, "  %s\n", issue)
	}

	if len(r.Cleared) > 0 {
		fmt.Fprintf(w, "Cleared place identifiers: %d\n", len(r.Cleared))
		for _, h := range r.Cleared {
			fmt.Fprintf(w, "  %s: %s (%s)\n", h.Dataset, h.Name, h.PlaceID)
		}
	}
}

func newExportCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the datasets to other formats",
	}

	var output string
	geojsonCmd := &cobra.Command{
		Use:   "geojson",
		Short: "Write every entity with coordinates as a GeoJSON FeatureCollection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			specs, err := a.specs()
			if err != nil {
				return err
			}

			datasets, loadErr := a.runner(a.repository()).LoadAll(cmd.Context(), specs)
			fc := export.GeoJSON(datasets)
			if err = export.WriteGeoJSON(a.fs, output, fc); err != nil {
				return err
			}
			a.log.Info("GeoJSON written", "path", output, "features", len(fc.Features))
			return loadErr
		},
	}
	geojsonCmd.Flags().StringVarP(&output, "output", "o", "datasets.geojson", "output file")

	cmd.AddCommand(geojsonCmd)
	return cmd
}
