package app

import (
	"context"
	"sync"

	"github.com/mselser95/polymarket-surveillance/internal/jobs"
	"github.com/mselser95/polymarket-surveillance/internal/ledger"
	"github.com/mselser95/polymarket-surveillance/internal/notify"
	"github.com/mselser95/polymarket-surveillance/internal/pricehistory"
	"github.com/mselser95/polymarket-surveillance/internal/storage"
	"github.com/mselser95/polymarket-surveillance/internal/surveillance"
	"github.com/mselser95/polymarket-surveillance/pkg/cache"
	"github.com/mselser95/polymarket-surveillance/pkg/config"
	"github.com/mselser95/polymarket-surveillance/pkg/healthprobe"
	"github.com/mselser95/polymarket-surveillance/pkg/httpserver"
	"github.com/mselser95/polymarket-surveillance/pkg/websocket"
	"go.uber.org/zap"
)

// App is the main application orchestrator.
type App struct {
	cfg           *config.Config
	logger        *zap.Logger
	healthChecker *healthprobe.HealthChecker
	httpServer    *httpserver.Server
	liveTrades    *websocket.Manager
	ledger        *ledger.Ledger
	prices        *pricehistory.Tracker
	loop          *surveillance.Loop
	dispatcher    *notify.Dispatcher
	scheduler     *jobs.Scheduler
	storage       storage.Storage
	caches        []cache.Cache
	opts          Options
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
}

// Options holds application options.
type Options struct {
	Once bool // run a single tick and exit
}
