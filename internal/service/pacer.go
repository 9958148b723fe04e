package service

import (
	"context"
	"math/rand/v2"
	"time"
)

// PacingConfig spaces out provider requests. The delay grows once a run has made
// five and then ten requests, and each delay is scaled by a random factor drawn
// from [JitterMin, JitterMax).
type PacingConfig struct {
	BaseDelay time.Duration `mapstructure:"base_delay"`
	After5    time.Duration `mapstructure:"after_5"`
	After10   time.Duration `mapstructure:"after_10"`
	JitterMin float64       `mapstructure:"jitter_min"`
	JitterMax float64       `mapstructure:"jitter_max"`
}

// DefaultPacing returns the pacing used when nothing is configured.
func DefaultPacing() PacingConfig {
	return PacingConfig{
		BaseDelay: 100 * time.Millisecond,
		After5:    150 * time.Millisecond,
		After10:   250 * time.Millisecond,
		JitterMin: 0.8,
		JitterMax: 1.2,
	}
}

// Pacer sleeps between provider requests. It is not safe for concurrent use.
type Pacer struct {
	cfg   PacingConfig
	count int
	rand  func() float64
	sleep func(ctx context.Context, d time.Duration) error
}

// NewPacer creates a pacer.
func NewPacer(cfg PacingConfig) *Pacer {
	if cfg.JitterMax < cfg.JitterMin {
		cfg.JitterMin, cfg.JitterMax = cfg.JitterMax, cfg.JitterMin
	}
	return &Pacer{cfg: cfg, rand: rand.Float64, sleep: sleepContext}
}

// NoPacing returns a pacer that never waits.
func NoPacing() *Pacer {
	return NewPacer(PacingConfig{})
}

// Delay returns the unjittered pause that follows request number n, counted from zero.
func (p *Pacer) Delay(n int) time.Duration {
	const (
		afterFive = 5
		afterTen  = 10
	)
	switch {
	case n >= afterTen && p.cfg.After10 > 0:
		return p.cfg.After10
	case n >= afterFive && p.cfg.After5 > 0:
		return p.cfg.After5
	default:
		return p.cfg.BaseDelay
	}
}

// Wait sleeps before the next request for as long as the previous one requires.
// The first request goes out immediately.
func (p *Pacer) Wait(ctx context.Context) error {
	n := p.count
	p.count++
	if n == 0 {
		return ctx.Err()
	}

	delay := p.jitter(p.Delay(n - 1))
	if delay <= 0 {
		return ctx.Err()
	}
	return p.sleep(ctx, delay)
}

// Requests returns how many requests were paced so far.
func (p *Pacer) Requests() int {
	return p.count
}

func (p *Pacer) jitter(d time.Duration) time.Duration {
	lo, hi := p.cfg.JitterMin, p.cfg.JitterMax
	if lo <= 0 && hi <= 0 {
		return d
	}
	factor := lo + p.rand()*(hi-lo)
	return time.Duration(float64(d) * factor)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
