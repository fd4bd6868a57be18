// Package backoff provides exponential backoff with jitter for tick cadence,
// stream reconnection and notification retries.
package backoff

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// Config holds the configuration for exponential backoff.
type Config struct {
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
	JitterPercent     float64 // 0.2 = 20%
}

// Backoff tracks the current delay of an exponential backoff sequence.
// Safe for concurrent use.
type Backoff struct {
	config  Config
	current time.Duration
	mu      sync.Mutex
}

// New creates a backoff starting at InitialDelay.
func New(cfg Config) (*Backoff, error) {
	if cfg.InitialDelay <= 0 {
		return nil, fmt.Errorf("initial delay must be positive, got %v", cfg.InitialDelay)
	}
	if cfg.MaxDelay < cfg.InitialDelay {
		return nil, fmt.Errorf("max delay %v is below initial delay %v", cfg.MaxDelay, cfg.InitialDelay)
	}
	if cfg.BackoffMultiplier < 1 {
		return nil, fmt.Errorf("backoff multiplier must be at least 1, got %f", cfg.BackoffMultiplier)
	}
	if cfg.JitterPercent < 0 {
		return nil, fmt.Errorf("jitter percent cannot be negative, got %f", cfg.JitterPercent)
	}

	return &Backoff{
		config:  cfg,
		current: cfg.InitialDelay,
	}, nil
}

// Next returns the current delay with jitter applied and advances the
// sequence by the multiplier, capped at MaxDelay.
func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	// backoff * (1.0 + random(0, jitterPercent))
	jitter := rand.Float64() * b.config.JitterPercent //nolint:gosec // jitter only
	delay := time.Duration(float64(b.current) * (1.0 + jitter))

	next := time.Duration(float64(b.current) * b.config.BackoffMultiplier)
	if next > b.config.MaxDelay {
		next = b.config.MaxDelay
	}
	b.current = next

	return delay
}

// Current returns the un-jittered delay the next call to Next will use.
func (b *Backoff) Current() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.current
}

// Reset resets the backoff to the initial delay.
func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.current = b.config.InitialDelay
}

// Retry calls fn up to attempts times, sleeping Next() between failures.
// Returns the last error, or ctx.Err() if the context ends while waiting.
func (b *Backoff) Retry(ctx context.Context, attempts int, fn func(context.Context) error) error {
	if attempts <= 0 {
		return fmt.Errorf("attempts must be positive, got %d", attempts)
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn(ctx)
		if err == nil {
			b.Reset()
			return nil
		}
		if attempt == attempts {
			break
		}

		err2 := Sleep(ctx, b.Next())
		if err2 != nil {
			return err2
		}
	}

	return fmt.Errorf("after %d attempts: %w", attempts, err)
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
