package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/UnknownOlympus/pinpoint/internal/cache"
	"github.com/UnknownOlympus/pinpoint/internal/fsutil"
	"github.com/UnknownOlympus/pinpoint/internal/geocoding"
	"github.com/spf13/cobra"
)

const (
	checkAddress = "New York, NY"
	checkPlace   = "Central Park, New York, NY"
)

func newCacheCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the place details cache",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "prune",
		Short: "Remove expired cache entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, release, err := a.openCache(cmd.Context())
			if err != nil {
				return err
			}
			defer release()

			pruner, ok := store.(cache.Pruner)
			if !ok {
				fmt.Fprintf(a.stdout, "Cache backend %q keeps nothing to prune\n", a.cfg.Cache.Backend)
				return nil
			}
			removed, err := pruner.Prune(cmd.Context(), time.Now())
			if err != nil {
				return fmt.Errorf("failed to prune cache: %w", err)
			}
			fmt.Fprintf(a.stdout, "Removed %d expired entries\n", removed)
			return nil
		},
	})
	return cmd
}

func newConfigCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the configuration",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "validate",
			Short: "Check the configuration; the exit status is non-zero when it is invalid",
			Args:  cobra.NoArgs,
			RunE: func(_ *cobra.Command, _ []string) error {
				fmt.Fprintf(a.stdout, "Configuration is valid (%d datasets)\n", len(a.cfg.Datasets))
				if err := a.cfg.RequireAPIKey(); err != nil {
					fmt.Fprintf(a.stdout, "Warning: %v\n", err)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "show",
			Short: "Print the merged configuration with secrets masked",
			Args:  cobra.NoArgs,
			RunE: func(_ *cobra.Command, _ []string) error {
				out, err := fsutil.MarshalIndent(a.cfg.Settings())
				if err != nil {
					return err
				}
				_, err = a.stdout.Write(out)
				return err
			},
		},
	)
	return cmd
}

func newCheckCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check the API key by geocoding a known address and searching a known place",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			providerCfg := a.cfg.GeocodingProvider("")
			providerCfg.Logger = a.log
			geo, err := geocoding.NewProvider(providerCfg)
			if err != nil {
				return configError(err)
			}

			var failed []error
			res, err := geo.Geocode(ctx, checkAddress)
			if err != nil {
				fmt.Fprintf(a.stdout, "✗ %s geocoding: %v\n", providerCfg.Type, err)
				failed = append(failed, err)
			} else {
				fmt.Fprintf(a.stdout, "✓ %s geocoding: %s (%.5f, %.5f)\n",
					providerCfg.Type, res.DisplayName, res.Latitude, res.Longitude)
			}

			if a.cfg.RequireAPIKey() == nil {
				placesCfg := a.cfg.GeocodingProvider(string(geocoding.ProviderTypeGoogle))
				placesCfg.Logger = a.log
				searcher, errPlaces := geocoding.NewPlaceSearcher(placesCfg)
				if errPlaces != nil {
					return configError(errPlaces)
				}
				candidates, errSearch := searcher.SearchText(ctx, geocoding.SearchRequest{
					Query: checkPlace,
					Mode:  geocoding.SearchMode(a.cfg.Resolver.SearchMode),
				})
				switch {
				case errSearch != nil:
					fmt.Fprintf(a.stdout, "✗ places search: %v\n", errSearch)
					failed = append(failed, errSearch)
				case len(candidates) == 0:
					fmt.Fprintln(a.stdout, "✗ places search: no results")
					failed = append(failed, errors.New("places search returned no results"))
				default:
					fmt.Fprintf(a.stdout, "✓ places search: %s (%s)\n", candidates[0].Name, candidates[0].PlaceID)
				}
			}

			return errors.Join(failed...)
		},
	}
}
