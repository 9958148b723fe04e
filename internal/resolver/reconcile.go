package resolver

import (
	"math"

	"github.com/UnknownOlympus/pinpoint/internal/models"
	"github.com/UnknownOlympus/pinpoint/internal/spatial"
)

// DriftPolicy decides when fresh coordinates replace stored ones. Meters, when
// set, compares the great-circle distance; otherwise Degrees bounds the change of
// each axis.
type DriftPolicy struct {
	Degrees float64
	Meters  float64
}

// Exceeded reports whether fresh moved further from stored than the policy tolerates.
func (p DriftPolicy) Exceeded(stored, fresh models.Coordinates) bool {
	if p.Meters > 0 {
		return spatial.Distance(stored, fresh) > p.Meters
	}
	return math.Abs(stored.Latitude-fresh.Latitude) > p.Degrees ||
		math.Abs(stored.Longitude-fresh.Longitude) > p.Degrees
}

// Reconcile stores fresh coordinates on the entity when it has none, or when the
// drift from the stored ones exceeds the policy. It reports whether the entity changed.
func Reconcile(ent *models.Entity, fresh models.Coordinates, policy DriftPolicy) bool {
	if ent.HasCoordinates() && !policy.Exceeded(*ent.Coords, fresh) {
		return false
	}
	ent.SetCoordinates(fresh)
	return true
}
