package surveillance

import (
	"context"
	"fmt"
	"time"

	"github.com/mselser95/polymarket-surveillance/pkg/backoff"
	"go.uber.org/zap"
)

// Run ticks until ctx is cancelled. The cadence is PollInterval while
// sources answer and backs off exponentially while every source fails.
// The in-flight tick always finishes folding before Run returns.
func (l *Loop) Run(ctx context.Context) error {
	bo, err := backoff.New(backoff.Config{
		InitialDelay:      l.cfg.PollInterval,
		MaxDelay:          l.cfg.BackoffMax,
		BackoffMultiplier: l.cfg.BackoffMultiplier,
		JitterPercent:     0.1,
	})
	if err != nil {
		return fmt.Errorf("create tick backoff: %w", err)
	}

	l.logger.Info("surveillance-loop-starting",
		zap.Duration("poll-interval", l.cfg.PollInterval),
		zap.Int("trade-sources", len(l.cfg.TradeSources)),
		zap.Int("signal-sources", len(l.cfg.SignalSources)))

	for {
		if ctx.Err() != nil {
			l.logger.Info("surveillance-loop-stopping")
			return ctx.Err()
		}

		result := l.Tick(ctx)

		delay := l.cfg.PollInterval
		if result.Failed() {
			delay = bo.Next()
			l.logger.Warn("tick-degraded-backing-off",
				zap.Int("source-errors", len(result.Errors)),
				zap.Duration("next-tick-in", delay))
		} else {
			bo.Reset()
		}

		err = backoff.Sleep(ctx, delay)
		if err != nil {
			l.logger.Info("surveillance-loop-stopping")
			return err
		}
	}
}

// Staleness reports an error when no tick has completed within maxAge.
// It backs the readiness probe.
func (l *Loop) Staleness(maxAge time.Duration) func() error {
	return func() error {
		last := l.LastTick()
		if last.IsZero() {
			return fmt.Errorf("no tick completed yet")
		}
		if age := l.now().Sub(last); age > maxAge {
			return fmt.Errorf("last tick %s ago", age.Round(time.Second))
		}
		return nil
	}
}
