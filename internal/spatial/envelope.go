package spatial

import (
	"github.com/UnknownOlympus/pinpoint/internal/models"
	"github.com/go-spatial/geom"
)

// Envelope is the rectangular area in which dataset coordinates are plausible.
// Points are stored as (lat, lng) pairs.
type Envelope struct {
	extent geom.Extent
}

// NewEnvelope builds an envelope from its latitude and longitude bounds.
func NewEnvelope(latMin, latMax, lngMin, lngMax float64) Envelope {
	return Envelope{extent: geom.Extent{latMin, lngMin, latMax, lngMax}}
}

// Contains reports whether the point lies inside the envelope, borders included.
func (e Envelope) Contains(c models.Coordinates) bool {
	return e.extent.ContainsPoint([2]float64{c.Latitude, c.Longitude})
}

// IsZero reports whether the envelope was left unset.
func (e Envelope) IsZero() bool {
	return e.extent == geom.Extent{}
}
