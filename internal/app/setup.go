package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/mselser95/polymarket-surveillance/internal/alert"
	"github.com/mselser95/polymarket-surveillance/internal/discovery"
	"github.com/mselser95/polymarket-surveillance/internal/jobs"
	"github.com/mselser95/polymarket-surveillance/internal/ledger"
	"github.com/mselser95/polymarket-surveillance/internal/matcher"
	"github.com/mselser95/polymarket-surveillance/internal/notify"
	"github.com/mselser95/polymarket-surveillance/internal/pricehistory"
	"github.com/mselser95/polymarket-surveillance/internal/reaction"
	"github.com/mselser95/polymarket-surveillance/internal/signals"
	"github.com/mselser95/polymarket-surveillance/internal/storage"
	"github.com/mselser95/polymarket-surveillance/internal/surveillance"
	"github.com/mselser95/polymarket-surveillance/internal/trades"
	"github.com/mselser95/polymarket-surveillance/pkg/cache"
	"github.com/mselser95/polymarket-surveillance/pkg/config"
	"github.com/mselser95/polymarket-surveillance/pkg/healthprobe"
	"github.com/mselser95/polymarket-surveillance/pkg/httpserver"
	"github.com/mselser95/polymarket-surveillance/pkg/types"
	"github.com/mselser95/polymarket-surveillance/pkg/wallet"
	"github.com/mselser95/polymarket-surveillance/pkg/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// components collects what New builds so a failure part way through can
// release what was already opened.
type components struct {
	storage    storage.Storage
	notifiers  []notify.Notifier
	caches     []cache.Cache
	liveTrades *websocket.Manager
}

func (c *components) release(logger *zap.Logger) {
	for _, n := range c.notifiers {
		err := n.Close()
		if err != nil {
			logger.Warn("notifier-close-error", zap.String("notifier", n.Name()), zap.Error(err))
		}
	}
	if c.storage != nil {
		_ = c.storage.Close()
	}
	for _, ch := range c.caches {
		ch.Close()
	}
}

// New creates a new application instance.
func New(cfg *config.Config, logger *zap.Logger, opts *Options) (app *App, err error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if opts == nil {
		opts = &Options{}
	}

	built := &components{}
	defer func() {
		if err != nil {
			built.release(logger)
		}
	}()

	healthChecker := setupHealthChecker()
	httpClient := &http.Client{Timeout: 30 * time.Second}

	// Gamma and Data API budgets are separate upstream limits.
	gammaLimiter := newLimiter(cfg.APIRequestsPerMinute)
	dataLimiter := newLimiter(cfg.APIRequestsPerMinute)

	marketCache, err := setupCache("markets", 100000, 10000, logger)
	if err != nil {
		return nil, fmt.Errorf("setup market cache: %w", err)
	}
	built.caches = append(built.caches, marketCache)

	walletCache, err := setupCache("wallet-snapshots", 1000000, 100000, logger)
	if err != nil {
		return nil, fmt.Errorf("setup wallet cache: %w", err)
	}
	built.caches = append(built.caches, walletCache)

	built.storage, err = setupStorage(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("setup storage: %w", err)
	}

	built.notifiers, err = setupNotifiers(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("setup notifiers: %w", err)
	}

	dispatcher, err := setupDispatcher(cfg, logger, built.notifiers, built.storage)
	if err != nil {
		return nil, fmt.Errorf("setup dispatcher: %w", err)
	}

	directory, err := setupDiscoveryService(cfg, logger, marketCache, gammaLimiter)
	if err != nil {
		return nil, fmt.Errorf("setup discovery: %w", err)
	}

	tradeSources, err := setupTradeSources(cfg, logger, httpClient, dataLimiter, built)
	if err != nil {
		return nil, fmt.Errorf("setup trade sources: %w", err)
	}

	signalSources, err := setupSignalSources(cfg, logger, httpClient)
	if err != nil {
		return nil, fmt.Errorf("setup signal sources: %w", err)
	}

	var history surveillance.HistoryProvider
	var reportHistory jobs.HistoryProvider
	if cfg.WalletHistoryEnabled {
		historyCache, cacheErr := setupCache("wallet-history", 100000, 10000, logger)
		if cacheErr != nil {
			return nil, fmt.Errorf("setup wallet history cache: %w", cacheErr)
		}
		built.caches = append(built.caches, historyCache)

		cached, historyErr := setupWalletHistory(cfg, logger, httpClient, dataLimiter, historyCache)
		if historyErr != nil {
			return nil, fmt.Errorf("setup wallet history: %w", historyErr)
		}
		history = cached
		reportHistory = cached
	}

	walletLedger, err := ledger.New(&ledger.Config{
		Cache:    walletCache,
		CacheTTL: cfg.WalletCacheTTL,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create ledger: %w", err)
	}

	prices, err := pricehistory.New(&pricehistory.Config{
		Retention: cfg.PriceRetention,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create price tracker: %w", err)
	}

	reactions, err := reaction.New(&reaction.Config{
		Wallets:     walletLedger,
		HighWinRate: cfg.HighWinRateThreshold,
		MinTrades:   cfg.SmartMoneyMinTrades,
		Retention:   reactionRetention(cfg),
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create reaction detector: %w", err)
	}

	var signalMatcher *matcher.Matcher
	if len(signalSources) > 0 {
		signalMatcher, err = matcher.New(&matcher.Config{
			NewsKeywords:        cfg.NewsKeywords,
			SocialKeywords:      cfg.SocialKeywords,
			NewsMinConfidence:   cfg.NewsMinMatchConfidence,
			SocialMinConfidence: cfg.SocialMinMatchConfidence,
			MaxPerSignal:        cfg.MatchMaxPerSignal,
			Logger:              logger,
		})
		if err != nil {
			return nil, fmt.Errorf("create matcher: %w", err)
		}
	}

	generator, err := setupAlertGenerator(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("create alert generator: %w", err)
	}

	loop, err := surveillance.New(&surveillance.Config{
		TradeSources:          tradeSources,
		Directory:             directory,
		SignalSources:         signalSources,
		History:               history,
		HistoryWorkers:        cfg.WalletHistoryWorkers,
		Ledger:                walletLedger,
		Prices:                prices,
		Matcher:               signalMatcher,
		Reactions:             reactions,
		Alerts:                generator,
		Store:                 built.storage,
		Sink:                  dispatcher,
		MarketRefreshInterval: cfg.MarketRefreshInterval,
		OddsMoveWindow:        cfg.OddsMoveWindow,
		NewsReactionWindow:    cfg.NewsReactionWindow,
		SocialReactionWindow:  cfg.SocialReactionWindow,
		PollInterval:          cfg.TradePollInterval,
		BackoffMax:            cfg.TickBackoffMax,
		BackoffMultiplier:     cfg.TickBackoffMult,
		Logger:                logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create surveillance loop: %w", err)
	}

	scheduler, err := jobs.New(&jobs.Config{
		Storage:           built.storage,
		Ledger:            walletLedger,
		Prices:            prices,
		Reactions:         reactions,
		History:           reportHistory,
		RetentionTrades:   cfg.RetentionTrades,
		RetentionAlerts:   cfg.RetentionAlerts,
		RetentionPrices:   cfg.RetentionPrices,
		ReactionRetention: reactionRetention(cfg),
		RetentionSchedule: cfg.RetentionSchedule,
		SnapshotSchedule:  cfg.SnapshotSchedule,
		ReportSchedule:    cfg.ReportSchedule,
		Report:            jobs.ReportQuery{Workers: cfg.WalletHistoryWorkers},
		Logger:            logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create job scheduler: %w", err)
	}

	healthChecker.AddCheck("surveillance-tick", loop.Staleness(maxTickAge(cfg)))

	httpServer := setupHTTPServer(cfg, logger, healthChecker, built.storage, walletLedger, prices, loop)

	ctx, cancel := context.WithCancel(context.Background())

	return &App{
		cfg:           cfg,
		logger:        logger,
		healthChecker: healthChecker,
		httpServer:    httpServer,
		liveTrades:    built.liveTrades,
		ledger:        walletLedger,
		prices:        prices,
		loop:          loop,
		dispatcher:    dispatcher,
		scheduler:     scheduler,
		storage:       built.storage,
		caches:        built.caches,
		opts:          *opts,
		ctx:           ctx,
		cancel:        cancel,
	}, nil
}

func setupHealthChecker() *healthprobe.HealthChecker {
	return healthprobe.New()
}

// newLimiter spreads perMinute requests evenly with a small burst. Zero
// disables limiting.
func newLimiter(perMinute int) *rate.Limiter {
	if perMinute <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), max(1, perMinute/10))
}

// reactionRetention covers the widest reaction window and the odds window.
func reactionRetention(cfg *config.Config) time.Duration {
	return 2 * max(cfg.NewsReactionWindow, cfg.SocialReactionWindow, cfg.OddsMoveWindow)
}

// maxTickAge is how long readiness tolerates no completed tick: a full
// backoff cycle plus one poll.
func maxTickAge(cfg *config.Config) time.Duration {
	return cfg.TickBackoffMax + 2*cfg.TradePollInterval
}

func setupHTTPServer(
	cfg *config.Config,
	logger *zap.Logger,
	healthChecker *healthprobe.HealthChecker,
	store storage.Storage,
	walletLedger *ledger.Ledger,
	prices *pricehistory.Tracker,
	loop *surveillance.Loop,
) *httpserver.Server {
	return httpserver.New(&httpserver.Config{
		Port:           cfg.HTTPPort,
		Logger:         logger,
		HealthChecker:  healthChecker,
		Store:          store,
		Wallets:        walletLedger,
		Prices:         prices,
		Markets:        loop,
		MovementWindow: cfg.OddsMoveWindow,
	})
}

func setupCache(name string, numCounters int64, maxCost int64, logger *zap.Logger) (cache.Cache, error) {
	return cache.NewRistrettoCache(&cache.RistrettoConfig{
		Name:        name,
		NumCounters: numCounters, // 10x expected max items
		MaxCost:     maxCost,
		BufferItems: 64,
		Logger:      logger,
	})
}

func setupStorage(cfg *config.Config, logger *zap.Logger) (storage.Storage, error) {
	switch cfg.StorageMode {
	case "postgres":
		pgStorage, err := storage.NewPostgresStorage(PostgresConfig(cfg, logger))
		if err != nil {
			return nil, fmt.Errorf("create postgres storage: %w", err)
		}
		return pgStorage, nil
	case "memory":
		return storage.NewMemoryStorage(logger), nil
	}

	return storage.NewConsoleStorage(logger), nil
}

// PostgresConfig maps the environment configuration to the storage config.
func PostgresConfig(cfg *config.Config, logger *zap.Logger) *storage.PostgresConfig {
	return &storage.PostgresConfig{
		Host:        cfg.PostgresHost,
		Port:        cfg.PostgresPort,
		User:        cfg.PostgresUser,
		Password:    cfg.PostgresPass,
		Database:    cfg.PostgresDB,
		SSLMode:     cfg.PostgresSSL,
		AutoMigrate: cfg.PostgresAutoMigrate,
		Logger:      logger,
	}
}

func setupNotifiers(cfg *config.Config, logger *zap.Logger) ([]notify.Notifier, error) {
	notifiers := []notify.Notifier{notify.NewLogNotifier(logger)}

	if cfg.RedisURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		redisNotifier, err := notify.NewRedisNotifier(ctx, &notify.RedisConfig{
			URL:     cfg.RedisURL,
			Channel: cfg.RedisAlertChannel,
			Logger:  logger,
		})
		if err != nil {
			return notifiers, fmt.Errorf("create redis notifier: %w", err)
		}
		notifiers = append(notifiers, redisNotifier)
	}

	if cfg.AMQPURL != "" {
		amqpNotifier, err := notify.NewAMQPNotifier(&notify.AMQPConfig{
			URL:    cfg.AMQPURL,
			Queue:  cfg.AMQPAlertQueue,
			Logger: logger,
		})
		if err != nil {
			return notifiers, fmt.Errorf("create amqp notifier: %w", err)
		}
		notifiers = append(notifiers, amqpNotifier)
	}

	return notifiers, nil
}

func setupDispatcher(
	cfg *config.Config,
	logger *zap.Logger,
	notifiers []notify.Notifier,
	store storage.Storage,
) (*notify.Dispatcher, error) {
	minSeverity, err := types.ParseSeverity(cfg.MinAlertSeverity)
	if err != nil {
		return nil, fmt.Errorf("parse MIN_ALERT_SEVERITY: %w", err)
	}

	return notify.New(&notify.Config{
		Notifiers:   notifiers,
		Recorder:    store,
		MinSeverity: minSeverity,
		MaxAttempts: cfg.NotifyMaxAttempts,
		RetryDelay:  cfg.NotifyRetryDelay,
		Logger:      logger,
	})
}

func setupDiscoveryService(
	cfg *config.Config,
	logger *zap.Logger,
	marketCache cache.Cache,
	limiter *rate.Limiter,
) (*discovery.Service, error) {
	discoveryClient := discovery.NewClient(cfg.PolymarketGammaURL, limiter, logger)
	return discovery.New(&discovery.Config{
		Client:      discoveryClient,
		Cache:       marketCache,
		MarketLimit: cfg.DiscoveryMarketLimit,
		Logger:      logger,
	})
}

func setupTradeSources(
	cfg *config.Config,
	logger *zap.Logger,
	httpClient *http.Client,
	limiter *rate.Limiter,
	built *components,
) ([]surveillance.TradeSource, error) {
	dataAPI, err := trades.New(&trades.Config{
		BaseURL:    cfg.PolymarketDataURL,
		HTTPClient: httpClient,
		Limiter:    limiter,
		Limit:      cfg.TradeFetchLimit,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create data api trade source: %w", err)
	}
	sources := []surveillance.TradeSource{dataAPI}

	if cfg.LiveTradesEnabled {
		manager, err := websocket.New(websocket.Config{
			URL:                   cfg.PolymarketLiveWSURL,
			DialTimeout:           10 * time.Second,
			PingInterval:          10 * time.Second,
			ReconnectInitialDelay: time.Second,
			ReconnectMaxDelay:     time.Minute,
			ReconnectBackoffMult:  2.0,
			Logger:                logger,
		})
		if err != nil {
			return nil, fmt.Errorf("create live trade stream: %w", err)
		}
		built.liveTrades = manager
		sources = append(sources, manager)
	}

	return sources, nil
}

func setupWalletHistory(
	cfg *config.Config,
	logger *zap.Logger,
	httpClient *http.Client,
	limiter *rate.Limiter,
	historyCache cache.Cache,
) (*wallet.CachedClient, error) {
	client, err := wallet.NewClient(&wallet.Config{
		BaseURL:    cfg.PolymarketDataURL,
		HTTPClient: httpClient,
		Limiter:    limiter,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}
	return wallet.NewCachedClient(client, historyCache, cfg.WalletCacheTTL), nil
}

func setupSignalSources(cfg *config.Config, logger *zap.Logger, httpClient *http.Client) ([]surveillance.SignalSource, error) {
	var sources []surveillance.SignalSource

	if cfg.NewsEnabled {
		if len(cfg.NewsRSSFeeds) > 0 {
			rss, err := signals.NewRSSSource(&signals.RSSConfig{
				Feeds:      cfg.NewsRSSFeeds,
				HTTPClient: httpClient,
				Logger:     logger,
			})
			if err != nil {
				return nil, fmt.Errorf("create rss source: %w", err)
			}
			sources = append(sources, rss)
		}

		if cfg.NewsAPIKey != "" {
			newsAPI, err := signals.NewNewsAPISource(&signals.NewsAPIConfig{
				BaseURL:    cfg.NewsAPIURL,
				APIKey:     cfg.NewsAPIKey,
				Keywords:   cfg.NewsKeywords,
				HTTPClient: httpClient,
				// free tier: 100 requests a day
				Limiter: rate.NewLimiter(rate.Every(15*time.Minute), 1),
				Logger:  logger,
			})
			if err != nil {
				return nil, fmt.Errorf("create newsapi source: %w", err)
			}
			sources = append(sources, newsAPI)
		}
	}

	if cfg.SocialEnabled {
		filter := signals.SocialFilter{
			IgnoreReposts: cfg.IgnoreRetweets,
			IgnoreReplies: cfg.IgnoreReplies,
			MinEngagement: cfg.MinEngagement,
			Lookback:      cfg.SocialLookback,
		}

		if cfg.TwitterBearerToken != "" && len(cfg.MonitoredAccounts) > 0 {
			x, err := signals.NewXSource(&signals.XConfig{
				BaseURL:     cfg.TwitterAPIURL,
				BearerToken: cfg.TwitterBearerToken,
				Accounts:    cfg.MonitoredAccounts,
				Weights:     cfg.InfluentialAccounts,
				Filter:      filter,
				HTTPClient:  httpClient,
				// basic tier timeline budget
				Limiter: rate.NewLimiter(rate.Every(time.Minute), 5),
				Logger:  logger,
			})
			if err != nil {
				return nil, fmt.Errorf("create x source: %w", err)
			}
			sources = append(sources, x)
		}

		if cfg.RSSHubURL != "" && len(cfg.TruthSocialAccounts) > 0 {
			truth, err := signals.NewRSSHubSource(&signals.RSSHubConfig{
				BaseURL:    cfg.RSSHubURL,
				Accounts:   cfg.TruthSocialAccounts,
				Weights:    cfg.InfluentialAccounts,
				Filter:     filter,
				HTTPClient: httpClient,
				Logger:     logger,
			})
			if err != nil {
				return nil, fmt.Errorf("create rsshub source: %w", err)
			}
			sources = append(sources, truth)
		}
	}

	names := make([]string, 0, len(sources))
	for _, s := range sources {
		names = append(names, s.Name())
	}
	logger.Info("signal-sources-configured", zap.Strings("sources", names))

	return sources, nil
}

func setupAlertGenerator(cfg *config.Config, logger *zap.Logger) (*alert.Generator, error) {
	return alert.New(&alert.Config{
		LargeBet:               cfg.LargeBetThreshold,
		VeryLargeBet:           cfg.VeryLargeBetThreshold,
		HugeBet:                cfg.HugeBetThreshold,
		NewWalletAge:           cfg.NewWalletAge,
		VeryNewWalletAge:       cfg.VeryNewWalletAge,
		HighWinRate:            cfg.HighWinRateThreshold,
		LowTradeCount:          cfg.LowTradeCountThreshold,
		SignificantOddsMove:    cfg.SignificantOddsMove,
		OddsMoveWindow:         cfg.OddsMoveWindow,
		WatchedWallets:         cfg.WatchedWallets,
		IgnoredWallets:         cfg.IgnoredWallets,
		NewsMinConfidence:      cfg.NewsMinMatchConfidence,
		SocialMinConfidence:    cfg.SocialMinMatchConfidence,
		NewsReactionWindow:     cfg.NewsReactionWindow,
		SocialReactionWindow:   cfg.SocialReactionWindow,
		NewsHighActivity:       cfg.NewsHighActivityTrades,
		SocialHighActivity:     cfg.SocialHighActivityTrades,
		RequireTradingActivity: cfg.RequireTradingActivity,
		HighValueAccounts:      cfg.HighValueAccounts,
		HighValueMinConfidence: cfg.HighValueMinConfidence,
		SmartMoneyVolumeRatio:  cfg.SmartMoneyVolumeRatio,
		Cooldown:               cfg.AlertCooldown,
		Logger:                 logger,
	})
}
