package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// Run starts the application and blocks until shutdown.
func (a *App) Run() error {
	a.logger.Info("application-starting",
		zap.String("storage-mode", a.cfg.StorageMode),
		zap.Duration("poll-interval", a.cfg.TradePollInterval),
		zap.String("min-alert-severity", a.cfg.MinAlertSeverity),
		zap.String("log-level", a.cfg.LogLevel))

	a.restore()

	if a.opts.Once {
		return a.runOnce()
	}

	err := a.startComponents()
	if err != nil {
		return err
	}

	// Mark as ready
	a.healthChecker.SetReady(true)

	a.logger.Info("application-ready",
		zap.String("http-addr", ":"+a.cfg.HTTPPort),
		zap.Bool("live-trades", a.liveTrades != nil))

	// Wait for shutdown signal
	return a.waitForShutdown()
}

// restore rebuilds in-memory aggregates from the last persisted snapshots.
func (a *App) restore() {
	ctx, cancel := context.WithTimeout(a.ctx, 30*time.Second)
	defer cancel()

	snapshots, err := a.storage.WalletSnapshots(ctx)
	if err != nil {
		a.logger.Warn("wallet-restore-failed", zap.Error(err))
	} else if len(snapshots) > 0 {
		restored := a.ledger.Restore(snapshots)
		a.logger.Info("wallets-restored", zap.Int("wallets", restored))
	}

	points, err := a.storage.PricePoints(ctx, time.Now().Add(-a.cfg.PriceRetention))
	if err != nil {
		a.logger.Warn("price-restore-failed", zap.Error(err))
		return
	}
	if len(points) > 0 {
		restored := a.prices.Restore(points)
		a.logger.Info("price-points-restored", zap.Int("points", restored))
	}
}

// runOnce runs one tick, delivers its alerts and shuts down.
func (a *App) runOnce() error {
	a.dispatcher.Start(a.ctx)

	result := a.loop.Tick(a.ctx)
	a.logger.Info("single-tick-complete",
		zap.Int("trades-new", result.TradesNew),
		zap.Int("signals-matched", result.SignalsMatched),
		zap.Int("alerts", len(result.Alerts)),
		zap.Int("source-errors", len(result.Errors)))

	err := a.Shutdown()
	if err != nil {
		return err
	}
	if result.Failed() {
		return fmt.Errorf("every source failed during the tick")
	}
	return nil
}

func (a *App) startComponents() error {
	// Start HTTP server
	a.wg.Add(1)
	go a.runHTTPServer()

	// Give HTTP server a moment to start
	time.Sleep(100 * time.Millisecond)

	a.dispatcher.Start(a.ctx)

	if a.liveTrades != nil {
		err := a.liveTrades.Start()
		if err != nil {
			return fmt.Errorf("start live trade stream: %w", err)
		}
	}

	a.scheduler.Start()

	a.wg.Add(1)
	go a.runSurveillanceLoop()

	return nil
}

func (a *App) runHTTPServer() {
	defer a.wg.Done()
	err := a.httpServer.Start()
	if err != nil {
		a.logger.Error("http-server-error", zap.Error(err))
	}
}

func (a *App) runSurveillanceLoop() {
	defer a.wg.Done()
	err := a.loop.Run(a.ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.logger.Error("surveillance-loop-error", zap.Error(err))
	}
}

func (a *App) waitForShutdown() error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		a.logger.Info("shutdown-signal-received", zap.String("signal", sig.String()))
	case <-a.ctx.Done():
		a.logger.Info("context-cancelled")
	}

	return a.Shutdown()
}
