package models

// Coordinates represents a geographical point defined by its latitude and longitude.
type Coordinates struct {
	Latitude  float64 `json:"lat"` // Latitude of the geographical point.
	Longitude float64 `json:"lng"` // Longitude of the geographical point.
}

// Pair returns the coordinates as a [lat, lng] pair, the shape used in reports.
func (c Coordinates) Pair() [2]float64 {
	return [2]float64{c.Latitude, c.Longitude}
}

// GeocodeResult is the answer of an address geocoding provider.
type GeocodeResult struct {
	Coordinates
	DisplayName string // Address as the provider understood it.
}
