// Package retry runs operations with exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrExhausted wraps the last error of an operation that kept failing until the
// attempt budget ran out.
var ErrExhausted = errors.New("retries exhausted")

// Config defines retry behavior with exponential backoff.
type Config struct {
	MaxAttempts  int           // Total attempts, the first call included.
	BaseDelay    time.Duration // Wait before the second attempt.
	MaxDelay     time.Duration // Cap for a single wait.
	Multiplier   float64
	JitterFactor float64 // 0.0-1.0, randomizes each wait by +/- this fraction.

	// Retryable decides whether an error is worth another attempt. Nil retries every error.
	Retryable func(error) bool
	// OnRetry is called before each wait.
	OnRetry func(err error, wait time.Duration)
}

// DefaultConfig returns three attempts starting at two seconds and doubling.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		BaseDelay:    2 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 1
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = def.BaseDelay
	}
	if c.MaxDelay < c.BaseDelay {
		c.MaxDelay = c.BaseDelay
	}
	if c.Multiplier < 1 {
		c.Multiplier = def.Multiplier
	}
	if c.JitterFactor < 0 || c.JitterFactor > 1 {
		c.JitterFactor = def.JitterFactor
	}
	return c
}

// Do executes fn until it succeeds, returns a non-retryable error, runs out of
// attempts or the context is done.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	_, err := DoWithResult(ctx, cfg, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// DoWithResult executes fn like Do and returns its result. Errors that survive
// every attempt are wrapped with ErrExhausted; non-retryable errors are returned
// as they are.
func DoWithResult[T any](ctx context.Context, cfg Config, fn func() (T, error)) (T, error) {
	cfg = cfg.withDefaults()

	attempts := 0
	permanent := false
	operation := func() (T, error) {
		attempts++
		res, err := fn()
		if err != nil && cfg.Retryable != nil && !cfg.Retryable(err) {
			permanent = true
			return res, backoff.Permanent(err)
		}
		return res, err
	}

	expo := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(cfg.BaseDelay),
		backoff.WithMaxInterval(cfg.MaxDelay),
		backoff.WithMultiplier(cfg.Multiplier),
		backoff.WithRandomizationFactor(cfg.JitterFactor),
		backoff.WithMaxElapsedTime(0),
	)
	policy := backoff.WithContext(backoff.WithMaxRetries(expo, uint64(cfg.MaxAttempts-1)), ctx)

	var notify backoff.Notify
	if cfg.OnRetry != nil {
		notify = backoff.Notify(cfg.OnRetry)
	}

	res, err := backoff.RetryNotifyWithData(operation, policy, notify)
	switch {
	case err == nil, permanent:
		return res, err
	case ctx.Err() != nil:
		return res, err
	default:
		return res, fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempts, err)
	}
}
