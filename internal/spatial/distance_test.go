package spatial_test

import (
	"testing"

	"github.com/UnknownOlympus/pinpoint/internal/models"
	"github.com/UnknownOlympus/pinpoint/internal/spatial"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDistance(t *testing.T) {
	t.Parallel()

	falls := models.Coordinates{Latitude: 42.0, Longitude: -74.0}

	t.Run("zero for the same point", func(t *testing.T) {
		t.Parallel()
		assert.Zero(t, spatial.Distance(falls, falls))
	})

	t.Run("symmetric", func(t *testing.T) {
		t.Parallel()
		other := models.Coordinates{Latitude: 42.6526, Longitude: -73.7562}
		assert.InDelta(t, spatial.Distance(falls, other), spatial.Distance(other, falls), 1e-9)
	})

	t.Run("reference offsets", func(t *testing.T) {
		t.Parallel()
		tests := []struct {
			name string
			to   models.Coordinates
			want float64
		}{
			{"small diagonal offset", models.Coordinates{Latitude: 42.0005, Longitude: -74.0005}, 69.27},
			{"one degree of latitude", models.Coordinates{Latitude: 43.0, Longitude: -74.0}, 111195},
			{"sixty kilometers north", models.Coordinates{Latitude: 42.5396, Longitude: -74.0}, 60000},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				t.Parallel()
				require.InEpsilon(t, tt.want, spatial.Distance(falls, tt.to), 0.01)
			})
		}
	})
}

func TestGridKey(t *testing.T) {
	t.Parallel()

	a := models.Coordinates{Latitude: 42.123449, Longitude: -74.000049}
	b := models.Coordinates{Latitude: 42.12341, Longitude: -74.00001}

	assert.Equal(t, "42.1234,-74.0000", spatial.GridKey(a, 4))
	assert.Equal(t, spatial.GridKey(a, 4), spatial.GridKey(b, 4))
}

func TestEnvelope(t *testing.T) {
	t.Parallel()

	nys := spatial.NewEnvelope(40.4, 45.1, -79.9, -71.7)

	assert.True(t, nys.Contains(models.Coordinates{Latitude: 42.0, Longitude: -74.0}))
	assert.False(t, nys.Contains(models.Coordinates{Latitude: 34.05, Longitude: -118.24}))
	assert.False(t, nys.Contains(models.Coordinates{Latitude: -74.0, Longitude: 42.0}))
	assert.False(t, nys.IsZero())
	assert.True(t, spatial.Envelope{}.IsZero())
}
