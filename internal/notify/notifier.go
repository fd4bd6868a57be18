// Package notify delivers alerts to external sinks.
package notify

import (
	"context"

	"github.com/mselser95/polymarket-surveillance/pkg/types"
	"go.uber.org/zap"
)

// Notifier delivers one alert. A returned error means the alert was not
// delivered and may be retried.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, alert *types.Alert) error
	Close() error
}

// LogNotifier writes alerts to the structured log.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a log notifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Name returns "log".
func (l *LogNotifier) Name() string {
	return "log"
}

// Notify logs the alert at warn level.
func (l *LogNotifier) Notify(ctx context.Context, alert *types.Alert) error {
	l.logger.Warn("alert",
		zap.String("alert-id", alert.ID),
		zap.String("severity", alert.Severity.String()),
		zap.String("kind", string(alert.Kind)),
		zap.String("market-id", alert.MarketID),
		zap.String("market-title", alert.MarketTitle),
		zap.String("wallet", alert.WalletAddress),
		zap.String("signal-ref", alert.SignalRef),
		zap.Strings("reasons", alert.Reasons))
	return nil
}

// Close is a no-op.
func (l *LogNotifier) Close() error {
	return nil
}
