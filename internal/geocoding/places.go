package geocoding

import (
	"context"
	"fmt"

	"github.com/UnknownOlympus/pinpoint/internal/models"
	"googlemaps.github.io/maps"
)

var detailsFields = []maps.PlaceDetailsFieldMask{
	maps.PlaceDetailsFieldMaskPlaceID,
	maps.PlaceDetailsFieldMaskName,
	maps.PlaceDetailsFieldMaskFormattedAddress,
	maps.PlaceDetailsFieldMaskGeometry,
	maps.PlaceDetailsFieldMaskBusinessStatus,
}

var findFields = []maps.PlaceSearchFieldMask{
	maps.PlaceSearchFieldMaskPlaceID,
	maps.PlaceSearchFieldMaskName,
	maps.PlaceSearchFieldMaskFormattedAddress,
	maps.PlaceSearchFieldMaskGeometry,
	maps.PlaceSearchFieldMaskTypes,
}

// SearchText runs a Places text search, or a Find Place request when the mode asks
// for it. ZERO_RESULTS is not an error: it yields an empty slice.
func (gp *GoogleProvider) SearchText(ctx context.Context, req SearchRequest) ([]models.Candidate, error) {
	if req.Mode == SearchModeFind {
		return gp.findPlace(ctx, req)
	}

	gp.log.DebugContext(ctx, "Searching Google Places", "query", req.Query, "radius", req.Radius)

	search := &maps.TextSearchRequest{Query: req.Query}
	if req.Near != nil {
		search.Location = &maps.LatLng{Lat: req.Near.Latitude, Lng: req.Near.Longitude}
		search.Radius = req.Radius
	}

	resp, err := gp.client.TextSearch(ctx, search)
	if err != nil {
		return nil, fmt.Errorf("failed to search places: %w", err)
	}

	candidates := make([]models.Candidate, 0, len(resp.Results))
	for _, res := range resp.Results {
		candidates = append(candidates, models.Candidate{
			PlaceID:          res.PlaceID,
			Name:             res.Name,
			FormattedAddress: res.FormattedAddress,
			Coords:           models.Coordinates{Latitude: res.Geometry.Location.Lat, Longitude: res.Geometry.Location.Lng},
			Types:            res.Types,
		})
	}

	return candidates, nil
}

func (gp *GoogleProvider) findPlace(ctx context.Context, req SearchRequest) ([]models.Candidate, error) {
	gp.log.DebugContext(ctx, "Finding Google place", "input", req.Query)

	find := &maps.FindPlaceFromTextRequest{
		Input:     req.Query,
		InputType: maps.FindPlaceFromTextInputTypeTextQuery,
		Fields:    findFields,
	}
	if req.Near != nil {
		find.LocationBias = maps.FindPlaceFromTextLocationBiasPoint
		find.LocationBiasPoint = &maps.LatLng{Lat: req.Near.Latitude, Lng: req.Near.Longitude}
	}

	resp, err := gp.client.FindPlaceFromText(ctx, find)
	if err != nil {
		return nil, fmt.Errorf("failed to find place: %w", err)
	}

	candidates := make([]models.Candidate, 0, len(resp.Candidates))
	for _, res := range resp.Candidates {
		candidates = append(candidates, models.Candidate{
			PlaceID:          res.PlaceID,
			Name:             res.Name,
			FormattedAddress: res.FormattedAddress,
			Coords:           models.Coordinates{Latitude: res.Geometry.Location.Lat, Longitude: res.Geometry.Location.Lng},
			Types:            res.Types,
		})
	}

	return candidates, nil
}

// PlaceDetails fetches the authoritative location, address and business status
// of a place.
func (gp *GoogleProvider) PlaceDetails(ctx context.Context, placeID string) (*models.PlaceDetails, error) {
	gp.log.DebugContext(ctx, "Fetching place details", "place_id", placeID)

	res, err := gp.client.PlaceDetails(ctx, &maps.PlaceDetailsRequest{PlaceID: placeID, Fields: detailsFields})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch place details: %w", err)
	}

	id := res.PlaceID
	if id == "" {
		id = placeID
	}

	return &models.PlaceDetails{
		PlaceID:          id,
		Name:             res.Name,
		FormattedAddress: res.FormattedAddress,
		Coords:           models.Coordinates{Latitude: res.Geometry.Location.Lat, Longitude: res.Geometry.Location.Lng},
		BusinessStatus:   res.BusinessStatus,
	}, nil
}
