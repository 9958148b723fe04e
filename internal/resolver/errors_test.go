package resolver_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/UnknownOlympus/pinpoint/internal/resolver"
	"github.com/stretchr/testify/assert"
)

func TestStatusOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "success", err: nil, want: "OK"},
		{name: "not found", err: &resolver.NotFoundError{Status: "ZERO_RESULTS"}, want: "ZERO_RESULTS"},
		{name: "wrapped duplicate", err: fmt.Errorf("x: %w", &resolver.DuplicateError{PlaceID: "p"}), want: "DUPLICATE"},
		{name: "empty name", err: resolver.ErrEmptyName, want: "EMPTY_NAME"},
		{name: "no coordinates", err: resolver.ErrNoCoordinates, want: "NO_COORDINATES"},
		{name: "transient", err: fmt.Errorf("%w: boom", resolver.ErrTransient), want: "TRANSIENT"},
		{name: "provider status", err: errors.New("maps: INVALID_REQUEST - bad"), want: "INVALID_REQUEST"},
		{name: "anything else", err: assert.AnError, want: "ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, resolver.StatusOf(tt.err))
		})
	}
}

func TestNotFoundErrorMessage(t *testing.T) {
	t.Parallel()

	err := &resolver.NotFoundError{Query: "Example Falls", Status: resolver.StatusDistanceExceeded, Nearest: 60012}

	assert.Equal(t, `no place found for "Example Falls": DISTANCE_EXCEEDED (nearest candidate 60012m away)`, err.Error())
	assert.ErrorIs(t, err, resolver.ErrNotFound)
}
