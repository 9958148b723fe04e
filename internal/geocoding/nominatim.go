package geocoding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/UnknownOlympus/pinpoint/internal/models"
	"golang.org/x/time/rate"
)

const (
	nominatimBaseURL   = "https://nominatim.openstreetmap.org/search"
	nominatimUserAgent = "pinpoint/1.0 (https://github.com/UnknownOlympus/pinpoint)"
)

// NominatimProvider implements the Provider interface using OpenStreetMap's Nominatim API.
// This is a free geocoding service with usage limits (1 request/second for fair use).
type NominatimProvider struct {
	client      HTTPClient    // HTTP client for making requests
	baseURL     string        // Base URL for the Nominatim API
	log         *slog.Logger  // Logger for logging operations
	limiter     *rate.Limiter // Keeps the provider under the fair use limit
	countryCode string        // Restricts results to one country, e.g. "us"
	// userAgent is required by Nominatim usage policy
	userAgent string
}

// HTTPClient defines the interface for making HTTP requests.
// This allows for easy mocking in tests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// NominatimOption tweaks a NominatimProvider.
type NominatimOption func(*NominatimProvider)

// WithNominatimClient replaces the HTTP client.
func WithNominatimClient(client HTTPClient) NominatimOption {
	return func(np *NominatimProvider) { np.client = client }
}

// WithNominatimLimiter replaces the request limiter.
func WithNominatimLimiter(limiter *rate.Limiter) NominatimOption {
	return func(np *NominatimProvider) { np.limiter = limiter }
}

// WithUserAgent sets the User-Agent sent with every request. It must identify the
// application and carry contact details.
func WithUserAgent(userAgent string) NominatimOption {
	return func(np *NominatimProvider) {
		if userAgent != "" {
			np.userAgent = userAgent
		}
	}
}

// WithCountryCode restricts results to a country.
func WithCountryCode(code string) NominatimOption {
	return func(np *NominatimProvider) { np.countryCode = strings.ToLower(code) }
}

// nominatimResponse represents the JSON response from Nominatim API.
type nominatimResponse struct {
	Lat         string `json:"lat"`          // Latitude as string
	Lon         string `json:"lon"`          // Longitude as string
	DisplayName string `json:"display_name"` // Full address of the match
}

// Common errors for Nominatim provider.
var (
	ErrNominatimEmptyResponse = errors.New("nominatim API returned empty response")
	ErrNominatimInvalidCoords = errors.New("nominatim API returned invalid coordinates")
)

// NewNominatimProvider creates a new Nominatim geocoding provider.
// Uses the public Nominatim API endpoint and one request per second by default.
func NewNominatimProvider(log *slog.Logger, opts ...NominatimOption) *NominatimProvider {
	const timeout = 10
	np := &NominatimProvider{
		client:    &http.Client{Timeout: timeout * time.Second},
		baseURL:   nominatimBaseURL,
		log:       log,
		limiter:   rate.NewLimiter(rate.Every(time.Second), 1),
		userAgent: nominatimUserAgent,
	}
	for _, opt := range opts {
		opt(np)
	}
	return np
}

// Geocode converts an address to geographic coordinates using the Nominatim API.
//
// Uses a progressive fallback strategy for addresses Nominatim does not know in full:
// 1. Try the full query, usually "name, street, town, state"
// 2. Drop the leading component (the business name)
// 3. Keep only the last two components (town and state)
func (np *NominatimProvider) Geocode(ctx context.Context, address string) (*models.GeocodeResult, error) {
	np.log.DebugContext(ctx, "Geocoding using Nominatim", "address", address)

	addressVariations := np.generateAddressFallbacks(address)

	for idx, addrVariation := range addressVariations {
		result, err := np.geocodeSingleAddress(ctx, addrVariation)
		if err == nil {
			if idx > 0 {
				np.log.InfoContext(ctx, "Geocoded using fallback address",
					"original", address,
					"fallback", addrVariation,
					"fallback_level", idx)
			}
			return result, nil
		}

		if !errors.Is(err, ErrNominatimEmptyResponse) {
			return nil, err
		}

		np.log.DebugContext(ctx, "Address variation returned no results, trying fallback",
			"variation", addrVariation,
			"fallback_level", idx)
	}

	np.log.WarnContext(ctx, "All address fallbacks exhausted",
		"address", address,
		"variations_tried", len(addressVariations))
	return nil, ErrNominatimEmptyResponse
}

// generateAddressFallbacks creates a list of progressively simpler address variations.
func (np *NominatimProvider) generateAddressFallbacks(address string) []string {
	if address == "" {
		return []string{""}
	}

	seen := make(map[string]bool)
	variations := []string{}
	addVariation := func(v string) {
		if v != "" && !seen[v] {
			seen[v] = true
			variations = append(variations, v)
		}
	}

	addVariation(address)

	parts := strings.Split(address, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	const townAndState = 2
	if len(parts) > townAndState {
		addVariation(strings.Join(parts[1:], ", "))
		addVariation(strings.Join(parts[len(parts)-townAndState:], ", "))
	}

	return variations
}

// geocodeSingleAddress performs a single geocoding request without fallback logic.
func (np *NominatimProvider) geocodeSingleAddress(ctx context.Context, address string) (*models.GeocodeResult, error) {
	if err := np.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait failed: %w", err)
	}

	reqURL, err := url.Parse(np.baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse base URL: %w", err)
	}

	query := reqURL.Query()
	query.Set("q", address)
	query.Set("format", "json")
	query.Set("limit", "1")
	if np.countryCode != "" {
		query.Set("countrycodes", np.countryCode)
	}
	reqURL.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", np.userAgent)

	resp, err := np.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute geocoding request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		np.log.ErrorContext(ctx, "Nominatim API error", "status", resp.StatusCode, "body", string(body))
		return nil, &StatusError{Provider: "nominatim", StatusCode: resp.StatusCode, Body: string(body)}
	}

	var results []nominatimResponse
	if err = json.Unmarshal(body, &results); err != nil {
		np.log.ErrorContext(ctx, "Failed to parse Nominatim response", "error", err, "body", string(body))
		return nil, fmt.Errorf("failed to decode nominatim response: %w", err)
	}

	if len(results) == 0 {
		return nil, ErrNominatimEmptyResponse
	}

	lat, err := strconv.ParseFloat(results[0].Lat, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid latitude: %s", ErrNominatimInvalidCoords, results[0].Lat)
	}
	lon, err := strconv.ParseFloat(results[0].Lon, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid longitude: %s", ErrNominatimInvalidCoords, results[0].Lon)
	}

	return &models.GeocodeResult{
		Coordinates: models.Coordinates{Latitude: lat, Longitude: lon},
		DisplayName: results[0].DisplayName,
	}, nil
}
