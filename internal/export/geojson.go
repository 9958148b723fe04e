// Package export turns datasets into formats other tools can read.
package export

import (
	"fmt"

	"github.com/UnknownOlympus/pinpoint/internal/fsutil"
	"github.com/UnknownOlympus/pinpoint/internal/repository"
	geojson "github.com/paulmach/go.geojson"
	"github.com/spf13/afero"
)

// GeoJSON builds a point feature for every entity with coordinates. Entities
// without coordinates are left out.
func GeoJSON(datasets []*repository.Dataset) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, ds := range datasets {
		for _, ent := range ds.Entities {
			if !ent.HasCoordinates() {
				continue
			}

			point := geojson.NewPointFeature([]float64{ent.Coords.Longitude, ent.Coords.Latitude})
			point.SetProperty("name", ent.Name)
			point.SetProperty("dataset", ds.Name())
			point.SetProperty("category", ds.Spec.Context)
			setOptional(point, "place_id", ent.PlaceID)
			setOptional(point, "google_maps_url", ent.GoogleMapsURL)
			setOptional(point, "formatted_address", ent.FormattedAddress)

			fc.AddFeature(point)
		}
	}
	return fc
}

func setOptional(f *geojson.Feature, key, value string) {
	if value != "" {
		f.SetProperty(key, value)
	}
}

// WriteGeoJSON writes a feature collection to path.
func WriteGeoJSON(fs afero.Fs, path string, fc *geojson.FeatureCollection) error {
	raw, err := fc.MarshalJSON()
	if err != nil {
		return fmt.Errorf("failed to encode feature collection: %w", err)
	}
	if err = fsutil.WriteFileAtomic(fs, path, raw); err != nil {
		return fmt.Errorf("failed to write feature collection: %w", err)
	}
	return nil
}
