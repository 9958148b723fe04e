// Package spatial holds the small amount of geometry the enrichment tools need:
// great-circle distances, a plausibility envelope and coordinate grid keys.
package spatial

import (
	"fmt"
	"math"

	"github.com/UnknownOlympus/pinpoint/internal/models"
)

// EarthRadius is the mean Earth radius in meters.
const EarthRadius = 6371e3

// Distance returns the great-circle distance in meters between two points using
// the Haversine formula.
func Distance(a, b models.Coordinates) float64 {
	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLat := (b.Latitude - a.Latitude) * math.Pi / 180
	dLng := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)

	return 2 * EarthRadius * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// GridKey rounds a point to the given number of decimals and returns a key that is
// equal for points falling in the same grid cell.
func GridKey(c models.Coordinates, decimals int) string {
	return fmt.Sprintf("%.*f,%.*f", decimals, round(c.Latitude, decimals), decimals, round(c.Longitude, decimals))
}

func round(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}
