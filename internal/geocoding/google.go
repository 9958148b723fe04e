package geocoding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/UnknownOlympus/pinpoint/internal/models"
	"googlemaps.github.io/maps"
)

// GoogleProvider is a struct that holds the client for Google Maps API
// and a logger for logging purposes. It serves both address geocoding and
// place searches.
type GoogleProvider struct {
	client GoogleAPIClient // client is the Google Maps API client
	log    *slog.Logger    // log is the logger for logging operations
	region string          // region is the ccTLD bias for geocoding, e.g. "us"
}

// GoogleAPIClient is the subset of *maps.Client the provider calls.
type GoogleAPIClient interface {
	Geocode(ctx context.Context, r *maps.GeocodingRequest) ([]maps.GeocodingResult, error)
	TextSearch(ctx context.Context, r *maps.TextSearchRequest) (maps.PlacesSearchResponse, error)
	FindPlaceFromText(ctx context.Context, r *maps.FindPlaceFromTextRequest) (maps.FindPlaceFromTextResponse, error)
	PlaceDetails(ctx context.Context, r *maps.PlaceDetailsRequest) (maps.PlaceDetailsResult, error)
}

// ErrEmptyResponse is returned when the Google Maps API responds with an empty result.
var ErrEmptyResponse = errors.New("get empty response from Google Maps API")

// NewGoogleProvider initializes a new GoogleProvider around an API client.
// The region is passed to geocoding requests as a bias and may be empty.
func NewGoogleProvider(client GoogleAPIClient, log *slog.Logger, region string) *GoogleProvider {
	return &GoogleProvider{client: client, log: log, region: region}
}

// Geocode takes a context and an address string as input, and returns the geographical coordinates
// of the provided address using the Google Maps Geocoding API.
// If the address cannot be geocoded or if the response is empty, it returns an appropriate error.
func (gp *GoogleProvider) Geocode(ctx context.Context, address string) (*models.GeocodeResult, error) {
	gp.log.DebugContext(ctx, "Geocoding using Google Maps", "address", address)

	req := maps.GeocodingRequest{Address: address, Region: gp.region}
	geocodeResponse, err := gp.client.Geocode(ctx, &req)
	if err != nil {
		return nil, fmt.Errorf("failed to geocode address: %w", err)
	}

	if len(geocodeResponse) == 0 {
		return nil, ErrEmptyResponse
	}
	best := geocodeResponse[0]

	return &models.GeocodeResult{
		Coordinates: models.Coordinates{Latitude: best.Geometry.Location.Lat, Longitude: best.Geometry.Location.Lng},
		DisplayName: best.FormattedAddress,
	}, nil
}
