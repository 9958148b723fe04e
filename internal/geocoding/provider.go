package geocoding

import (
	"context"

	"github.com/UnknownOlympus/pinpoint/internal/models"
)

// Provider is an interface that defines a method for geocoding an address.
// The Geocode method takes a context and an address string as input,
// and returns the best match and an error if any occurs.
type Provider interface {
	Geocode(ctx context.Context, address string) (*models.GeocodeResult, error)
}

// SearchMode selects the Places endpoint used to look up candidates.
type SearchMode string

const (
	// SearchModeText uses Places Text Search, which returns every match near the bias point.
	SearchModeText SearchMode = "text"
	// SearchModeFind uses Find Place From Text, which returns the single best candidate.
	SearchModeFind SearchMode = "find"
)

// SearchRequest describes a place lookup.
type SearchRequest struct {
	Query  string
	Near   *models.Coordinates // Bias point; nil searches without a location.
	Radius uint                // Bias radius in meters.
	Mode   SearchMode
}

// PlaceSearcher looks up places by text and fetches their authoritative details.
// A search without matches returns an empty slice and a nil error.
type PlaceSearcher interface {
	SearchText(ctx context.Context, req SearchRequest) ([]models.Candidate, error)
	PlaceDetails(ctx context.Context, placeID string) (*models.PlaceDetails, error)
}
