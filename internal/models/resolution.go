package models

import "fmt"

// SourceDetails marks coordinates taken from a place details lookup.
const (
	SourceDetails    = "places_details_v1"
	SourceTextSearch = "text_search"
)

const mapsURLFormat = "https://www.google.com/maps/place/?q=place_id:%s"

// MapsURL builds the Google Maps link for a place identifier.
func MapsURL(placeID string) string {
	return fmt.Sprintf(mapsURLFormat, placeID)
}

// Business statuses reported by Google Places.
const (
	BusinessOperational       = "OPERATIONAL"
	BusinessClosedTemporarily = "CLOSED_TEMPORARILY"
	BusinessClosedPermanently = "CLOSED_PERMANENTLY"
)

// ClosedFlag maps a business status to the flag shown on the map: "temporary",
// "permanent", or empty for places that are open.
func ClosedFlag(status string) string {
	switch status {
	case BusinessClosedTemporarily:
		return "temporary"
	case BusinessClosedPermanently:
		return "permanent"
	default:
		return ""
	}
}

// Candidate is a single place returned by a text search.
type Candidate struct {
	PlaceID          string
	Name             string
	FormattedAddress string
	Coords           Coordinates
	Types            []string
}

// PlaceDetails holds the authoritative record of a place.
type PlaceDetails struct {
	PlaceID          string
	Name             string
	FormattedAddress string
	Coords           Coordinates
	BusinessStatus   string
}

// Resolution is the accepted match for an entity. It is never persisted on its own;
// the caller merges the fields it wants into the entity.
type Resolution struct {
	PlaceID          string
	Name             string
	Coords           Coordinates
	FormattedAddress string
	Distance         float64 // Meters between the entity's known coordinates and the match.
	Validated        bool    // False when the entity had no coordinates to compare against.
	MapsURL          string
	Source           string
	Query            string // Text the place was searched with.
}
