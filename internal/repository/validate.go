package repository

import (
	"fmt"
	"strings"

	"github.com/UnknownOlympus/pinpoint/internal/models"
	"github.com/UnknownOlympus/pinpoint/internal/spatial"
)

// Issue is a problem found in a dataset. Issues are reported, never fixed.
type Issue struct {
	Dataset string
	Index   int
	Name    string
	Problem string
}

func (i Issue) String() string {
	name := i.Name
	if name == "" {
		name = fmt.Sprintf("#%d", i.Index)
	}
	return fmt.Sprintf("%s: %s: %s", i.Dataset, name, i.Problem)
}

// Validate checks names, coordinate plausibility and the consistency of maps URLs.
// A zero envelope skips the coordinate check.
func Validate(ds *Dataset, envelope spatial.Envelope) []Issue {
	var issues []Issue
	add := func(idx int, ent *models.Entity, format string, args ...any) {
		issues = append(issues, Issue{
			Dataset: ds.Name(),
			Index:   idx,
			Name:    ent.Name,
			Problem: fmt.Sprintf(format, args...),
		})
	}

	for idx, ent := range ds.Entities {
		if strings.TrimSpace(ent.Name) == "" {
			add(idx, ent, "missing name")
		}
		if ent.HasCoordinates() && !envelope.IsZero() && !envelope.Contains(*ent.Coords) {
			add(idx, ent, "coordinates %.5f,%.5f outside region bounds", ent.Coords.Latitude, ent.Coords.Longitude)
		}
		switch {
		case ent.GoogleMapsURL == "":
		case !ent.IsResolved():
			add(idx, ent, "google_maps_url without place_id")
		case ent.GoogleMapsURL != models.MapsURL(ent.PlaceID):
			add(idx, ent, "google_maps_url does not match place_id %s", ent.PlaceID)
		}
	}
	return issues
}
