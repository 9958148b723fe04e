package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/UnknownOlympus/pinpoint/internal/resolver"
)

// Entity outcomes, used in log lines and metric labels.
const (
	statusEnriched  = "enriched"
	statusVerified  = "verified"
	statusGeocoded  = "geocoded"
	statusCorrected = "corrected"
	statusChecked   = "checked"
	statusSkipped   = "skipped"
	statusNotFound  = "not_found"
	statusDuplicate = "duplicate"
	statusError     = "error"
)

// Failure is an entity that could not be processed.
type Failure struct {
	Dataset string `json:"dataset"`
	Name    string `json:"name"`
	Reason  string `json:"reason"`
	Status  string `json:"status"`
}

// Stats counts what a run did.
type Stats struct {
	Processed           int `json:"processed"`
	Enriched            int `json:"enriched"`
	Verified            int `json:"verified,omitempty"`
	StatusChecked       int `json:"status_checked,omitempty"`
	StatusChanged       int `json:"status_changed,omitempty"`
	CoordinatesUpdated  int `json:"coordinates_updated"`
	Skipped             int `json:"skipped"`
	NotFound            int `json:"not_found"`
	DuplicatesPrevented int `json:"duplicates_prevented"`
	Errors              int `json:"errors"`
	APICalls            int `json:"api_calls"`
	CacheHits           int `json:"cache_hits"`
	UniquePlaceIDs      int `json:"unique_place_ids"`

	Failures []Failure `json:"-"`

	placeIDs map[string]struct{}
}

// AddPlace records a place identifier held by an entity after the run.
func (s *Stats) AddPlace(placeID string) {
	if placeID == "" {
		return
	}
	if s.placeIDs == nil {
		s.placeIDs = make(map[string]struct{})
	}
	s.placeIDs[placeID] = struct{}{}
	s.UniquePlaceIDs = len(s.placeIDs)
}

// Fail records a failed entity and returns the outcome it was counted as.
func (s *Stats) Fail(dataset, name string, err error) string {
	outcome := statusError
	switch {
	case errors.Is(err, resolver.ErrDuplicate):
		s.DuplicatesPrevented++
		outcome = statusDuplicate
	case errors.Is(err, resolver.ErrNotFound):
		s.NotFound++
		outcome = statusNotFound
	default:
		s.Errors++
	}

	s.Failures = append(s.Failures, Failure{
		Dataset: dataset,
		Name:    name,
		Reason:  err.Error(),
		Status:  resolver.StatusOf(err),
	})
	return outcome
}

// Log writes the summary of a run.
func (s *Stats) Log(ctx context.Context, log *slog.Logger, command string) {
	log.InfoContext(ctx, "Run finished",
		"command", command,
		"processed", s.Processed,
		"enriched", s.Enriched,
		"verified", s.Verified,
		"status_checked", s.StatusChecked,
		"status_changed", s.StatusChanged,
		"coordinates_updated", s.CoordinatesUpdated,
		"skipped", s.Skipped,
		"not_found", s.NotFound,
		"duplicates_prevented", s.DuplicatesPrevented,
		"errors", s.Errors,
		"api_calls", s.APICalls,
		"cache_hits", s.CacheHits,
		"unique_place_ids", s.UniquePlaceIDs,
	)
}
