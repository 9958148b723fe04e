package resolver

import (
	"fmt"
	"strings"
	"time"

	"github.com/UnknownOlympus/pinpoint/internal/cache"
	"github.com/UnknownOlympus/pinpoint/internal/geocoding"
	"github.com/UnknownOlympus/pinpoint/internal/models"
	"github.com/UnknownOlympus/pinpoint/internal/retry"
)

// Class separates point features from administrative areas, which get a wider
// acceptance radius because their centroid can sit far from a reference point.
type Class string

const (
	ClassPOI  Class = "poi"
	ClassArea Class = "area"
)

// ParseClass converts a configuration value into a Class. An empty value means POI.
func ParseClass(s string) (Class, error) {
	switch Class(strings.ToLower(strings.TrimSpace(s))) {
	case ClassPOI, "":
		return ClassPOI, nil
	case ClassArea:
		return ClassArea, nil
	default:
		return "", fmt.Errorf("unknown entity class %q", s)
	}
}

// Options tunes a resolution session.
type Options struct {
	Provider           string // Provider name used in metrics labels.
	State              string
	Country            string
	SearchRadius       uint    // Bias radius for the text search, in meters.
	MaxDistancePOI     float64 // Acceptance radius for points of interest, in meters.
	MaxDistanceArea    float64 // Acceptance radius for areas such as cities, in meters.
	FetchDetails       bool
	RequireCoordinates bool
	SearchMode         geocoding.SearchMode
	Retry              retry.Config
	CacheTTL           time.Duration
}

// DefaultOptions returns the settings used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		Provider:        string(geocoding.ProviderTypeGoogle),
		State:           "NY",
		Country:         "USA",
		SearchRadius:    2000,
		MaxDistancePOI:  3000,
		MaxDistanceArea: 10000,
		FetchDetails:    true,
		SearchMode:      geocoding.SearchModeText,
		Retry:           retry.DefaultConfig(),
		CacheTTL:        cache.DefaultTTL,
	}
}

// MaxDistance returns the acceptance radius for a class.
func (o Options) MaxDistance(class Class) float64 {
	if class == ClassArea {
		return o.MaxDistanceArea
	}
	return o.MaxDistancePOI
}

// BuildQuery returns the text an entity is searched with. A stored place_query
// wins; areas are searched as "name, state"; everything else as
// "name context, state, country". Empty parts are left out.
func BuildQuery(ent *models.Entity, searchContext string, class Class, state, country string) string {
	if q := strings.TrimSpace(ent.PlaceQuery); q != "" {
		return q
	}

	name := strings.TrimSpace(ent.Name)
	if class == ClassArea {
		return joinNonEmpty(", ", name, state)
	}
	return joinNonEmpty(", ", joinNonEmpty(" ", name, searchContext), state, country)
}

func joinNonEmpty(sep string, parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}
