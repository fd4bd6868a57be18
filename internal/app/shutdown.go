package app

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Shutdown gracefully shuts down the application. The in-flight tick
// finishes folding, a final snapshot is written and queued alerts are
// delivered before sinks close.
func (a *App) Shutdown() error {
	a.logger.Info("application-shutting-down")

	a.healthChecker.SetReady(false)

	// Cancel context to signal all components
	a.cancel()

	// Shutdown components in dependency order
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Shutdown HTTP server
	err := a.shutdownHTTPServer(shutdownCtx)
	if err != nil {
		a.logger.Error("http-server-shutdown-error", zap.Error(err))
	}

	// Wait for the loop and the server goroutines
	a.wg.Wait()

	err = a.shutdownScheduler(shutdownCtx)
	if err != nil {
		a.logger.Error("scheduler-stop-error", zap.Error(err))
	}

	err = a.scheduler.Snapshot(shutdownCtx)
	if err != nil {
		a.logger.Error("final-snapshot-error", zap.Error(err))
	}

	// Close live trade stream
	err = a.shutdownLiveTrades()
	if err != nil {
		a.logger.Error("live-trades-close-error", zap.Error(err))
	}

	// Drain and close notifiers
	err = a.dispatcher.Close()
	if err != nil {
		a.logger.Error("dispatcher-close-error", zap.Error(err))
	}

	// Close storage
	err = a.storage.Close()
	if err != nil {
		a.logger.Error("storage-close-error", zap.Error(err))
	}

	for _, c := range a.caches {
		c.Close()
	}

	a.logger.Info("application-shutdown-complete")

	return nil
}

func (a *App) shutdownHTTPServer(ctx context.Context) error {
	if a.opts.Once {
		return nil
	}
	return a.httpServer.Shutdown(ctx)
}

func (a *App) shutdownScheduler(ctx context.Context) error {
	if a.opts.Once {
		return nil
	}
	return a.scheduler.Stop(ctx)
}

func (a *App) shutdownLiveTrades() error {
	if a.liveTrades == nil {
		return nil
	}
	return a.liveTrades.Close()
}
