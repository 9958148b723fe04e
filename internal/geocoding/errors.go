package geocoding

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"strings"
)

// Status values reported by the Google Maps web services.
const (
	StatusOK             = "OK"
	StatusZeroResults    = "ZERO_RESULTS"
	StatusOverQueryLimit = "OVER_QUERY_LIMIT"
	StatusRequestDenied  = "REQUEST_DENIED"
	StatusInvalidRequest = "INVALID_REQUEST"
	StatusUnknownError   = "UNKNOWN_ERROR"
	StatusNotFound       = "NOT_FOUND"
)

// StatusError is returned when a provider answers with a non-success HTTP code.
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s API returned status %d: %s", e.Provider, e.StatusCode, e.Body)
}

// mapsStatus matches the "maps: STATUS - message" errors of googlemaps.github.io/maps.
var mapsStatus = regexp.MustCompile(`maps: ([A-Z_]+) - `)

// Status extracts the Google status string carried by err, or "" when there is none.
func Status(err error) string {
	if err == nil {
		return ""
	}
	if m := mapsStatus.FindStringSubmatch(err.Error()); m != nil {
		return m[1]
	}
	return ""
}

// IsTransient reports whether a failed call is worth repeating: network trouble,
// rate limiting or a server-side error. Quota exhaustion for the day, denied keys
// and malformed requests are permanent.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	switch Status(err) {
	case StatusOverQueryLimit, StatusUnknownError:
		return true
	case "":
	default:
		return false
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == http.StatusTooManyRequests || statusErr.StatusCode >= http.StatusInternalServerError
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{"connection reset", "connection refused", "timeout", "eof", "too many requests"} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
