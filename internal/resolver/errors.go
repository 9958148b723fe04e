package resolver

import (
	"errors"
	"fmt"

	"github.com/UnknownOlympus/pinpoint/internal/geocoding"
)

// Failure statuses that do not come from the provider.
const (
	StatusDistanceExceeded = "DISTANCE_EXCEEDED"
	StatusDuplicate        = "DUPLICATE"
	StatusEmptyName        = "EMPTY_NAME"
	StatusNoCoordinates    = "NO_COORDINATES"
	StatusTransient        = "TRANSIENT"
	StatusError            = "ERROR"
)

var (
	// ErrEmptyName is returned for entities without a name. No request is made.
	ErrEmptyName = errors.New("entity has no name")
	// ErrNotFound matches every resolution that produced no acceptable place.
	ErrNotFound = errors.New("place not found")
	// ErrDuplicate matches resolutions whose place was already assigned in this session.
	ErrDuplicate = errors.New("place already assigned")
	// ErrNoCoordinates is returned when coordinates are required to validate a match.
	ErrNoCoordinates = errors.New("entity has no coordinates to validate against")
	// ErrTransient is returned when the provider kept failing after every retry.
	ErrTransient = errors.New("provider unavailable")
)

// NotFoundError describes why no place was accepted.
type NotFoundError struct {
	Query   string
	Status  string  // Provider status or StatusDistanceExceeded.
	Nearest float64 // Distance of the closest rejected candidate, in meters.
	Err     error
}

func (e *NotFoundError) Error() string {
	msg := fmt.Sprintf("no place found for %q: %s", e.Query, e.Status)
	if e.Status == StatusDistanceExceeded {
		msg += fmt.Sprintf(" (nearest candidate %.0fm away)", e.Nearest)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

func (e *NotFoundError) Unwrap() error {
	return e.Err
}

// DuplicateError is returned when the best match is already held by another entity.
type DuplicateError struct {
	PlaceID string
	Name    string // Entity being resolved.
	Owner   string // Entity that claimed the place first.
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("place %s for %q is already assigned to %q", e.PlaceID, e.Name, e.Owner)
}

// Is reports a duplicate as both ErrDuplicate and ErrNotFound: the entity stays
// unresolved, but callers can still count duplicates on their own.
func (e *DuplicateError) Is(target error) bool {
	return target == ErrDuplicate || target == ErrNotFound
}

// StatusOf returns the short status recorded for a failed resolution.
func StatusOf(err error) string {
	var (
		notFound *NotFoundError
		dup      *DuplicateError
	)
	switch {
	case err == nil:
		return geocoding.StatusOK
	case errors.As(err, &dup):
		return StatusDuplicate
	case errors.As(err, &notFound):
		return notFound.Status
	case errors.Is(err, ErrEmptyName):
		return StatusEmptyName
	case errors.Is(err, ErrNoCoordinates):
		return StatusNoCoordinates
	case errors.Is(err, ErrTransient):
		return StatusTransient
	}
	if status := geocoding.Status(err); status != "" {
		return status
	}
	return StatusError
}
