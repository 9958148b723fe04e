package geocoding

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"googlemaps.github.io/maps"
)

// ProviderType represents the type of geocoding provider.
type ProviderType string

const (
	// ProviderTypeGoogle represents Google Maps geocoding and Places.
	ProviderTypeGoogle ProviderType = "google"
	// ProviderTypeNominatim represents OpenStreetMap Nominatim geocoding provider.
	ProviderTypeNominatim ProviderType = "nominatim"
)

// ErrPlacesUnsupported is returned when a provider cannot serve place searches.
var ErrPlacesUnsupported = errors.New("provider does not support place searches")

// ProviderConfig holds configuration for creating a geocoding provider.
type ProviderConfig struct {
	Type        ProviderType  // Type of provider to create
	APIKey      string        // API key (used by Google provider)
	RateLimit   int           // Rate limit for requests per second (used by Google provider)
	Timeout     time.Duration // Per-request HTTP timeout
	BaseURL     string        // Overrides the API endpoint, used by tests and proxies
	CountryCode string        // Region bias such as "us"
	UserAgent   string        // User-Agent for Nominatim
	Logger      *slog.Logger  // Logger for the provider
}

// NewProvider creates an address geocoding provider based on the provided configuration.
//
// Supported provider types:
// - "google": Google Maps Geocoding API (requires API key)
// - "nominatim": OpenStreetMap Nominatim API (free, no API key required)
//
// Returns an error if the provider type is unsupported or if provider creation fails.
func NewProvider(config ProviderConfig) (Provider, error) {
	switch config.Type {
	case ProviderTypeGoogle:
		gp, err := newGoogleProvider(config)
		if err != nil {
			return nil, err
		}
		return gp, nil
	case ProviderTypeNominatim:
		return newNominatimProvider(config), nil
	default:
		return nil, fmt.Errorf("unsupported provider type: %s", config.Type)
	}
}

// NewPlaceSearcher creates the provider used to resolve entities to place identifiers.
// Only Google issues identifiers that the maps URL can be built from.
func NewPlaceSearcher(config ProviderConfig) (PlaceSearcher, error) {
	switch config.Type {
	case ProviderTypeGoogle:
		gp, err := newGoogleProvider(config)
		if err != nil {
			return nil, err
		}
		return gp, nil
	case ProviderTypeNominatim:
		return nil, fmt.Errorf("%w: %s", ErrPlacesUnsupported, config.Type)
	default:
		return nil, fmt.Errorf("unsupported provider type: %s", config.Type)
	}
}

// newGoogleProvider creates a Google Maps provider.
func newGoogleProvider(config ProviderConfig) (*GoogleProvider, error) {
	if config.APIKey == "" {
		return nil, errors.New("API key is required for Google provider")
	}

	clientOpts := []maps.ClientOption{
		maps.WithAPIKey(config.APIKey),
	}

	if config.RateLimit > 0 {
		clientOpts = append(clientOpts, maps.WithRateLimit(config.RateLimit))
	}
	if config.Timeout > 0 {
		clientOpts = append(clientOpts, maps.WithHTTPClient(&http.Client{Timeout: config.Timeout}))
	}
	if config.BaseURL != "" {
		clientOpts = append(clientOpts, maps.WithBaseURL(config.BaseURL))
	}

	client, err := maps.NewClient(clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Google Maps client: %w", err)
	}

	return NewGoogleProvider(client, config.Logger, config.CountryCode), nil
}

// newNominatimProvider creates a Nominatim geocoding provider.
func newNominatimProvider(config ProviderConfig) *NominatimProvider {
	opts := []NominatimOption{
		WithUserAgent(config.UserAgent),
		WithCountryCode(config.CountryCode),
	}
	if config.Timeout > 0 {
		opts = append(opts, WithNominatimClient(&http.Client{Timeout: config.Timeout}))
	}
	return NewNominatimProvider(config.Logger, opts...)
}
