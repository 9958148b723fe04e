package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPacer_Delay(t *testing.T) {
	pacer := NewPacer(DefaultPacing())

	assert.Equal(t, 100*time.Millisecond, pacer.Delay(0))
	assert.Equal(t, 100*time.Millisecond, pacer.Delay(4))
	assert.Equal(t, 150*time.Millisecond, pacer.Delay(5))
	assert.Equal(t, 150*time.Millisecond, pacer.Delay(9))
	assert.Equal(t, 250*time.Millisecond, pacer.Delay(10))
	assert.Equal(t, 250*time.Millisecond, pacer.Delay(500))

	t.Run("missing progressive delays fall back to the base delay", func(t *testing.T) {
		flat := NewPacer(PacingConfig{BaseDelay: time.Second})
		assert.Equal(t, time.Second, flat.Delay(12))
	})
}

func TestPacer_Wait(t *testing.T) {
	t.Run("progressive schedule", func(t *testing.T) {
		pacer := NewPacer(DefaultPacing())
		var slept []time.Duration
		pacer.rand = func() float64 { return 0.5 }
		pacer.sleep = func(_ context.Context, d time.Duration) error {
			slept = append(slept, d)
			return nil
		}

		for range 12 {
			require.NoError(t, pacer.Wait(t.Context()))
		}

		want := []time.Duration{
			100 * time.Millisecond, 100 * time.Millisecond, 100 * time.Millisecond, 100 * time.Millisecond,
			100 * time.Millisecond,
			150 * time.Millisecond, 150 * time.Millisecond, 150 * time.Millisecond, 150 * time.Millisecond,
			150 * time.Millisecond,
			250 * time.Millisecond,
		}
		assert.Equal(t, want, slept)
		assert.Equal(t, 12, pacer.Requests())
	})

	t.Run("jitter stays inside the multiplier range", func(t *testing.T) {
		pacer := NewPacer(DefaultPacing())
		var slept []time.Duration
		pacer.sleep = func(_ context.Context, d time.Duration) error {
			slept = append(slept, d)
			return nil
		}

		pacer.rand = func() float64 { return 0 }
		require.NoError(t, pacer.Wait(t.Context()))
		require.NoError(t, pacer.Wait(t.Context()))
		pacer.rand = func() float64 { return 0.999999 }
		require.NoError(t, pacer.Wait(t.Context()))

		require.Len(t, slept, 2)
		assert.Equal(t, 80*time.Millisecond, slept[0])
		assert.InDelta(t, float64(120*time.Millisecond), float64(slept[1]), float64(time.Microsecond))
	})

	t.Run("no pacing never sleeps", func(t *testing.T) {
		pacer := NoPacing()
		pacer.sleep = func(context.Context, time.Duration) error {
			t.Fatal("unexpected sleep")
			return nil
		}
		for range 3 {
			require.NoError(t, pacer.Wait(t.Context()))
		}
	})

	t.Run("cancelled context stops the wait", func(t *testing.T) {
		pacer := NewPacer(PacingConfig{BaseDelay: time.Hour})
		ctx, cancel := context.WithCancel(t.Context())
		require.NoError(t, pacer.Wait(ctx))

		cancel()
		err := pacer.Wait(ctx)

		require.ErrorIs(t, err, context.Canceled)
	})
}
