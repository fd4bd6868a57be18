package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/mselser95/polymarket-surveillance/pkg/types"
	"go.uber.org/zap"
)

const rule = "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"

//nolint:gochecknoglobals // read-only lookup
var severityEmoji = map[types.Severity]string{
	types.SeverityLow:      "⚪",
	types.SeverityMedium:   "🟡",
	types.SeverityHigh:     "🟠",
	types.SeverityCritical: "🔴",
}

// ConsoleStorage pretty-prints alerts to stdout and keeps every record in
// memory so queries work for the lifetime of the process.
type ConsoleStorage struct {
	*MemoryStorage
	out    io.Writer
	logger *zap.Logger
}

// NewConsoleStorage creates a new console storage.
func NewConsoleStorage(logger *zap.Logger) *ConsoleStorage {
	logger.Info("console-storage-initialized")
	return &ConsoleStorage{
		MemoryStorage: NewMemoryStorage(logger),
		out:           os.Stdout,
		logger:        logger,
	}
}

// SaveAlert stores the alert and pretty-prints it.
func (c *ConsoleStorage) SaveAlert(ctx context.Context, alert *types.Alert) error {
	err := c.MemoryStorage.SaveAlert(ctx, alert)
	if err != nil {
		return err
	}

	var b strings.Builder
	fmt.Fprintln(&b, "\n"+rule)
	fmt.Fprintf(&b, "%s %s ALERT - %s\n", severityEmoji[alert.Severity], alert.Severity, alert.Kind)
	fmt.Fprintln(&b, rule)
	fmt.Fprintf(&b, "ID:       %s\n", alert.ID)
	fmt.Fprintf(&b, "Market:   %s\n", alert.MarketTitle)
	fmt.Fprintf(&b, "Time:     %s\n", alert.CreatedAt.Format("2006-01-02 15:04:05"))
	if alert.WalletAddress != "" {
		fmt.Fprintf(&b, "Wallet:   %s\n", alert.WalletAddress)
	}
	if alert.SignalRef != "" {
		fmt.Fprintf(&b, "Signal:   %s\n", alert.SignalRef)
	}

	ev := alert.Evidence
	if ev.TradeSizeUSD > 0 {
		fmt.Fprintln(&b, rule)
		fmt.Fprintf(&b, "💰 TRADE\n")
		fmt.Fprintf(&b, "  %s %s @ %.3f for $%s\n", ev.Side, ev.Outcome, ev.Price, humanize.CommafWithDigits(ev.TradeSizeUSD, 2))
		if ev.WalletAgeHours != nil {
			fmt.Fprintf(&b, "  Wallet age:   %.1fh\n", *ev.WalletAgeHours)
		}
		fmt.Fprintf(&b, "  Trade count:  %d\n", ev.WalletTradeCount)
		if ev.WalletWinRate != nil {
			fmt.Fprintf(&b, "  Win rate:     %.0f%%\n", *ev.WalletWinRate*100)
		}
	}
	if ev.MatchScore != nil {
		fmt.Fprintln(&b, rule)
		fmt.Fprintf(&b, "📰 SIGNAL\n")
		fmt.Fprintf(&b, "  Confidence:   %.0f%%\n", *ev.MatchScore*100)
		fmt.Fprintf(&b, "  Reaction:     %d trades / $%s\n", ev.ReactionTrades, humanize.CommafWithDigits(ev.ReactionVolumeUSD, 0))
		fmt.Fprintf(&b, "  Smart money:  %d trades / $%s\n", ev.SmartMoneyTrades, humanize.CommafWithDigits(ev.SmartMoneyVolumeUSD, 0))
	}

	fmt.Fprintln(&b, rule)
	for _, reason := range alert.Reasons {
		fmt.Fprintf(&b, "  • %s\n", reason)
	}
	fmt.Fprintln(&b, rule)

	_, err = io.WriteString(c.out, b.String())
	if err != nil {
		c.logger.Warn("console-write-failed", zap.Error(err))
	}

	return nil
}

// Close is a no-op for console storage.
func (c *ConsoleStorage) Close() error {
	c.logger.Info("closing-console-storage")
	return nil
}
