package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Config holds all application configuration.
type Config struct {
	// Application
	LogLevel  string
	LogFormat string // "json" or "console"
	LogFile   string
	HTTPPort  string

	// Polymarket API
	PolymarketGammaURL  string
	PolymarketDataURL   string
	PolymarketLiveWSURL string

	// Polling
	TradePollInterval     time.Duration
	TradeFetchLimit       int
	MarketRefreshInterval time.Duration
	DiscoveryMarketLimit  int
	TickBackoffMax        time.Duration
	TickBackoffMult       float64
	APIRequestsPerMinute  int

	// Bet-size tiers, ascending
	LargeBetThreshold     float64
	VeryLargeBetThreshold float64
	HugeBetThreshold      float64

	// Wallet behaviour
	NewWalletAge           time.Duration
	VeryNewWalletAge       time.Duration
	HighWinRateThreshold   float64
	LowTradeCountThreshold int
	WalletCacheTTL         time.Duration
	WalletHistoryEnabled   bool
	WalletHistoryWorkers   int
	WatchedWallets         []string
	IgnoredWallets         []string

	// Price movement
	SignificantOddsMove float64
	OddsMoveWindow      time.Duration
	PriceRetention      time.Duration

	// Alerts
	AlertCooldown          time.Duration
	MinAlertSeverity       string
	RequireTradingActivity bool
	SmartMoneyVolumeRatio  float64
	SmartMoneyMinTrades    int
	MatchMaxPerSignal      int

	// News
	NewsEnabled            bool
	NewsRSSFeeds           []string
	NewsAPIKey             string
	NewsAPIURL             string
	NewsKeywords           []string
	NewsMinMatchConfidence float64
	NewsReactionWindow     time.Duration
	NewsHighActivityTrades int

	// Social
	SocialEnabled            bool
	TwitterBearerToken       string
	TwitterAPIURL            string
	RSSHubURL                string
	MonitoredAccounts        []string
	TruthSocialAccounts      []string
	InfluentialAccounts      map[string]float64
	HighValueAccounts        []string
	HighValueMinConfidence   float64
	SocialKeywords           []string
	SocialMinMatchConfidence float64
	SocialReactionWindow     time.Duration
	SocialHighActivityTrades int
	IgnoreRetweets           bool
	IgnoreReplies            bool
	MinEngagement            int
	SocialLookback           time.Duration

	// Storage
	StorageMode         string // "console", "memory" or "postgres"
	PostgresHost        string
	PostgresPort        string
	PostgresUser        string
	PostgresPass        string
	PostgresDB          string
	PostgresSSL         string
	PostgresAutoMigrate bool

	// Retention and jobs
	RetentionTrades   time.Duration
	RetentionAlerts   time.Duration
	RetentionPrices   time.Duration
	RetentionSchedule string
	SnapshotSchedule  string
	ReportSchedule    string

	// Notification
	RedisURL          string
	RedisAlertChannel string
	AMQPURL           string
	AMQPAlertQueue    string
	NotifyMaxAttempts int
	NotifyRetryDelay  time.Duration

	// Live trades
	LiveTradesEnabled bool
}

var defaultNewsKeywords = []string{
	"Trump", "Biden", "Harris", "election", "president", "congress", "primaries", "campaign", "debate",
	"Bitcoin", "BTC", "Ethereum", "ETH", "crypto", "Coinbase", "Binance", "stablecoin", "Solana",
	"Fed", "Federal Reserve", "Powell", "inflation", "recession", "rate", "rate cut", "taxes",
	"AI", "OpenAI", "Google", "Microsoft", "Anthropic", "AGI",
	"war", "Ukraine", "Russia", "China", "Taiwan", "Israel", "Venezuela", "Brazil",
	"stock market", "Nasdaq", "earnings",
}

var defaultSocialKeywords = []string{
	"tariff", "trade deal", "executive order", "announce",
	"rate cut", "rate hike", "inflation", "recession",
	"Bitcoin", "crypto", "regulation", "SEC",
	"China", "Russia", "NATO", "war",
}

var defaultRSSFeeds = []string{
	"http://feeds.bbci.co.uk/news/rss.xml",
	"https://rss.nytimes.com/services/xml/rss/nyt/World.xml",
	"https://www.theguardian.com/world/rss",
	"https://www.cnbc.com/id/100003114/device/rss/rss.html",
}

var defaultMonitoredAccounts = []string{
	"realDonaldTrump", "JoeBiden", "KamalaHarris", "SpeakerJohnson",
	"elonmusk", "VitalikButerin", "cz_binance", "brian_armstrong",
	"federalreserve", "SecYellen",
}

var defaultInfluentialAccounts = map[string]float64{
	"realDonaldTrump": 0.3,
	"JoeBiden":        0.3,
	"elonmusk":        0.25,
	"federalreserve":  0.2,
	"VitalikButerin":  0.15,
}

// LoadFromEnv loads configuration from environment variables with defaults.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		// Application defaults
		LogLevel:  getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat: getEnvOrDefault("LOG_FORMAT", "json"),
		LogFile:   os.Getenv("LOG_FILE"),
		HTTPPort:  getEnvOrDefault("HTTP_PORT", "8080"),

		// Polymarket API defaults
		PolymarketGammaURL:  getEnvOrDefault("POLYMARKET_GAMMA_API_URL", "https://gamma-api.polymarket.com"),
		PolymarketDataURL:   getEnvOrDefault("POLYMARKET_DATA_API_URL", "https://data-api.polymarket.com"),
		PolymarketLiveWSURL: getEnvOrDefault("POLYMARKET_LIVE_WS_URL", "wss://ws-live-data.polymarket.com"),

		// Polling defaults
		TradePollInterval:     getDurationOrDefault("TRADE_POLL_INTERVAL", 30*time.Second),
		TradeFetchLimit:       getIntOrDefault("TRADE_FETCH_LIMIT", 500),
		MarketRefreshInterval: getDurationOrDefault("MARKET_REFRESH_INTERVAL", 5*time.Minute),
		DiscoveryMarketLimit:  getIntOrDefault("DISCOVERY_MARKET_LIMIT", 500),
		TickBackoffMax:        getDurationOrDefault("TICK_BACKOFF_MAX", 5*time.Minute),
		TickBackoffMult:       getFloat64OrDefault("TICK_BACKOFF_MULTIPLIER", 2.0),
		APIRequestsPerMinute:  getIntOrDefault("API_REQUESTS_PER_MINUTE", 100),

		// Bet-size defaults (USDC)
		LargeBetThreshold:     getFloat64OrDefault("LARGE_BET_THRESHOLD", 5000),
		VeryLargeBetThreshold: getFloat64OrDefault("VERY_LARGE_BET_THRESHOLD", 10000),
		HugeBetThreshold:      getFloat64OrDefault("HUGE_BET_THRESHOLD", 50000),

		// Wallet defaults
		NewWalletAge:           getDurationOrDefault("NEW_WALLET_AGE", 168*time.Hour),
		VeryNewWalletAge:       getDurationOrDefault("VERY_NEW_WALLET_AGE", 24*time.Hour),
		HighWinRateThreshold:   getFloat64OrDefault("HIGH_WIN_RATE_THRESHOLD", 0.65),
		LowTradeCountThreshold: getIntOrDefault("LOW_TRADE_COUNT_THRESHOLD", 10),
		WalletCacheTTL:         getDurationOrDefault("WALLET_CACHE_TTL", 5*time.Minute),
		WalletHistoryEnabled:   getBoolOrDefault("WALLET_HISTORY_ENABLED", true),
		WalletHistoryWorkers:   getIntOrDefault("WALLET_HISTORY_WORKERS", 4),
		WatchedWallets:         getListOrDefault("WATCHED_WALLETS", nil),
		IgnoredWallets:         getListOrDefault("IGNORED_WALLETS", nil),

		// Price movement defaults
		SignificantOddsMove: getFloat64OrDefault("SIGNIFICANT_ODDS_MOVE", 0.10),
		OddsMoveWindow:      getDurationOrDefault("ODDS_MOVE_WINDOW", time.Hour),
		PriceRetention:      getDurationOrDefault("PRICE_RETENTION", 24*time.Hour),

		// Alert defaults
		AlertCooldown:          getDurationOrDefault("ALERT_COOLDOWN", time.Hour),
		MinAlertSeverity:       getEnvOrDefault("MIN_ALERT_SEVERITY", "MEDIUM"),
		RequireTradingActivity: getBoolOrDefault("REQUIRE_TRADING_ACTIVITY", true),
		SmartMoneyVolumeRatio:  getFloat64OrDefault("SMART_MONEY_VOLUME_RATIO", 0.5),
		SmartMoneyMinTrades:    getIntOrDefault("SMART_MONEY_MIN_TRADES", 10),
		MatchMaxPerSignal:      getIntOrDefault("MATCH_MAX_PER_SIGNAL", 5),

		// News defaults
		NewsEnabled:            getBoolOrDefault("NEWS_ENABLED", true),
		NewsRSSFeeds:           getListOrDefault("NEWS_RSS_FEEDS", defaultRSSFeeds),
		NewsAPIKey:             os.Getenv("NEWSAPI_KEY"),
		NewsAPIURL:             getEnvOrDefault("NEWSAPI_URL", "https://newsapi.org"),
		NewsKeywords:           getListOrDefault("NEWS_KEYWORDS", defaultNewsKeywords),
		NewsMinMatchConfidence: getFloat64OrDefault("NEWS_MIN_MATCH_CONFIDENCE", 0.7),
		NewsReactionWindow:     getDurationOrDefault("NEWS_REACTION_WINDOW", time.Hour),
		NewsHighActivityTrades: getIntOrDefault("NEWS_HIGH_ACTIVITY_TRADES", 10),

		// Social defaults
		SocialEnabled:            getBoolOrDefault("SOCIAL_ENABLED", true),
		TwitterBearerToken:       os.Getenv("TWITTER_BEARER_TOKEN"),
		TwitterAPIURL:            getEnvOrDefault("TWITTER_API_URL", "https://api.twitter.com"),
		RSSHubURL:                getEnvOrDefault("RSSHUB_URL", "https://rsshub.app"),
		MonitoredAccounts:        getListOrDefault("MONITORED_ACCOUNTS", defaultMonitoredAccounts),
		TruthSocialAccounts:      getListOrDefault("TRUTHSOCIAL_ACCOUNTS", []string{"realDonaldTrump"}),
		InfluentialAccounts:      getWeightsOrDefault("INFLUENTIAL_ACCOUNTS", defaultInfluentialAccounts),
		HighValueAccounts:        getListOrDefault("HIGH_VALUE_ACCOUNTS", []string{"realDonaldTrump", "JoeBiden"}),
		HighValueMinConfidence:   getFloat64OrDefault("HIGH_VALUE_MIN_CONFIDENCE", 0.8),
		SocialKeywords:           getListOrDefault("SOCIAL_KEYWORDS", defaultSocialKeywords),
		SocialMinMatchConfidence: getFloat64OrDefault("SOCIAL_MIN_MATCH_CONFIDENCE", 0.6),
		SocialReactionWindow:     getDurationOrDefault("SOCIAL_REACTION_WINDOW", 30*time.Minute),
		SocialHighActivityTrades: getIntOrDefault("SOCIAL_HIGH_ACTIVITY_TRADES", 5),
		IgnoreRetweets:           getBoolOrDefault("IGNORE_RETWEETS", true),
		IgnoreReplies:            getBoolOrDefault("IGNORE_REPLIES", true),
		MinEngagement:            getIntOrDefault("MIN_ENGAGEMENT", 0),
		SocialLookback:           getDurationOrDefault("SOCIAL_LOOKBACK", time.Hour),

		// Storage defaults
		StorageMode:         getEnvOrDefault("STORAGE_MODE", "console"),
		PostgresHost:        getEnvOrDefault("POSTGRES_HOST", "localhost"),
		PostgresPort:        getEnvOrDefault("POSTGRES_PORT", "5432"),
		PostgresUser:        getEnvOrDefault("POSTGRES_USER", "polymarket"),
		PostgresPass:        getEnvOrDefault("POSTGRES_PASSWORD", "polymarket123"),
		PostgresDB:          getEnvOrDefault("POSTGRES_DB", "polymarket_surveillance"),
		PostgresSSL:         getEnvOrDefault("POSTGRES_SSLMODE", "disable"),
		PostgresAutoMigrate: getBoolOrDefault("POSTGRES_AUTO_MIGRATE", true),

		// Retention defaults
		RetentionTrades:   getDurationOrDefault("RETENTION_TRADES", 90*24*time.Hour),
		RetentionAlerts:   getDurationOrDefault("RETENTION_ALERTS", 30*24*time.Hour),
		RetentionPrices:   getDurationOrDefault("RETENTION_PRICES", 7*24*time.Hour),
		RetentionSchedule: getEnvOrDefault("RETENTION_SCHEDULE", "@every 1h"),
		SnapshotSchedule:  getEnvOrDefault("SNAPSHOT_SCHEDULE", "@every 5m"),
		ReportSchedule:    getEnvOrDefault("REPORT_SCHEDULE", "0 0 9 * * *"),

		// Notification defaults
		RedisURL:          os.Getenv("REDIS_URL"),
		RedisAlertChannel: getEnvOrDefault("REDIS_ALERT_CHANNEL", "polymarket:alerts"),
		AMQPURL:           os.Getenv("AMQP_URL"),
		AMQPAlertQueue:    getEnvOrDefault("AMQP_ALERT_QUEUE", "polymarket_alerts"),
		NotifyMaxAttempts: getIntOrDefault("NOTIFY_MAX_ATTEMPTS", 3),
		NotifyRetryDelay:  getDurationOrDefault("NOTIFY_RETRY_DELAY", 2*time.Second),

		LiveTradesEnabled: getBoolOrDefault("LIVE_TRADES_ENABLED", false),
	}

	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks that configuration values are valid.
func (c *Config) Validate() error {
	if c.HTTPPort == "" {
		return fmt.Errorf("HTTP_PORT cannot be empty")
	}

	if c.PolymarketGammaURL == "" {
		return fmt.Errorf("POLYMARKET_GAMMA_API_URL cannot be empty")
	}

	if c.PolymarketDataURL == "" {
		return fmt.Errorf("POLYMARKET_DATA_API_URL cannot be empty")
	}

	if c.LiveTradesEnabled && c.PolymarketLiveWSURL == "" {
		return fmt.Errorf("POLYMARKET_LIVE_WS_URL cannot be empty when LIVE_TRADES_ENABLED is set")
	}

	if c.LogFormat != "json" && c.LogFormat != "console" {
		return fmt.Errorf("LOG_FORMAT must be 'json' or 'console', got %q", c.LogFormat)
	}

	err := c.validateThresholds()
	if err != nil {
		return err
	}

	err = c.validateIntervals()
	if err != nil {
		return err
	}

	switch c.StorageMode {
	case "console", "memory", "postgres":
	default:
		return fmt.Errorf("STORAGE_MODE must be 'console', 'memory' or 'postgres', got %q", c.StorageMode)
	}

	switch strings.ToUpper(c.MinAlertSeverity) {
	case "LOW", "MEDIUM", "HIGH", "CRITICAL":
	default:
		return fmt.Errorf("MIN_ALERT_SEVERITY must be LOW, MEDIUM, HIGH or CRITICAL, got %q", c.MinAlertSeverity)
	}

	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	schedules := map[string]string{
		"RETENTION_SCHEDULE": c.RetentionSchedule,
		"SNAPSHOT_SCHEDULE":  c.SnapshotSchedule,
		"REPORT_SCHEDULE":    c.ReportSchedule,
	}
	for name, spec := range schedules {
		_, err = parser.Parse(spec)
		if err != nil {
			return fmt.Errorf("%s %q: %w", name, spec, err)
		}
	}

	return nil
}

func (c *Config) validateThresholds() error {
	if c.LargeBetThreshold <= 0 {
		return fmt.Errorf("LARGE_BET_THRESHOLD must be positive, got %f", c.LargeBetThreshold)
	}

	if c.LargeBetThreshold >= c.VeryLargeBetThreshold {
		return fmt.Errorf("LARGE_BET_THRESHOLD must be less than VERY_LARGE_BET_THRESHOLD")
	}

	if c.VeryLargeBetThreshold >= c.HugeBetThreshold {
		return fmt.Errorf("VERY_LARGE_BET_THRESHOLD must be less than HUGE_BET_THRESHOLD")
	}

	if c.VeryNewWalletAge <= 0 || c.VeryNewWalletAge >= c.NewWalletAge {
		return fmt.Errorf("VERY_NEW_WALLET_AGE must be positive and less than NEW_WALLET_AGE")
	}

	ratios := []struct {
		name  string
		value float64
	}{
		{"HIGH_WIN_RATE_THRESHOLD", c.HighWinRateThreshold},
		{"SIGNIFICANT_ODDS_MOVE", c.SignificantOddsMove},
		{"SMART_MONEY_VOLUME_RATIO", c.SmartMoneyVolumeRatio},
		{"NEWS_MIN_MATCH_CONFIDENCE", c.NewsMinMatchConfidence},
		{"SOCIAL_MIN_MATCH_CONFIDENCE", c.SocialMinMatchConfidence},
		{"HIGH_VALUE_MIN_CONFIDENCE", c.HighValueMinConfidence},
	}
	for _, r := range ratios {
		if r.value < 0 || r.value > 1 {
			return fmt.Errorf("%s must be between 0 and 1, got %f", r.name, r.value)
		}
	}

	for account, weight := range c.InfluentialAccounts {
		if weight < 0 || weight > 1 {
			return fmt.Errorf("INFLUENTIAL_ACCOUNTS weight for %q must be between 0 and 1, got %f", account, weight)
		}
	}

	counts := []struct {
		name  string
		value int
	}{
		{"LOW_TRADE_COUNT_THRESHOLD", c.LowTradeCountThreshold},
		{"SMART_MONEY_MIN_TRADES", c.SmartMoneyMinTrades},
		{"NEWS_HIGH_ACTIVITY_TRADES", c.NewsHighActivityTrades},
		{"SOCIAL_HIGH_ACTIVITY_TRADES", c.SocialHighActivityTrades},
		{"MIN_ENGAGEMENT", c.MinEngagement},
		{"DISCOVERY_MARKET_LIMIT", c.DiscoveryMarketLimit},
	}
	for _, n := range counts {
		if n.value < 0 {
			return fmt.Errorf("%s cannot be negative, got %d", n.name, n.value)
		}
	}

	if c.MatchMaxPerSignal <= 0 {
		return fmt.Errorf("MATCH_MAX_PER_SIGNAL must be positive, got %d", c.MatchMaxPerSignal)
	}

	return nil
}

func (c *Config) validateIntervals() error {
	durations := []struct {
		name  string
		value time.Duration
	}{
		{"TRADE_POLL_INTERVAL", c.TradePollInterval},
		{"MARKET_REFRESH_INTERVAL", c.MarketRefreshInterval},
		{"TICK_BACKOFF_MAX", c.TickBackoffMax},
		{"WALLET_CACHE_TTL", c.WalletCacheTTL},
		{"ODDS_MOVE_WINDOW", c.OddsMoveWindow},
		{"PRICE_RETENTION", c.PriceRetention},
		{"ALERT_COOLDOWN", c.AlertCooldown},
		{"NEWS_REACTION_WINDOW", c.NewsReactionWindow},
		{"SOCIAL_REACTION_WINDOW", c.SocialReactionWindow},
		{"SOCIAL_LOOKBACK", c.SocialLookback},
		{"NOTIFY_RETRY_DELAY", c.NotifyRetryDelay},
	}
	for _, d := range durations {
		if d.value <= 0 {
			return fmt.Errorf("%s must be positive, got %v", d.name, d.value)
		}
	}

	if c.PriceRetention < c.OddsMoveWindow {
		return fmt.Errorf("PRICE_RETENTION (%v) must cover ODDS_MOVE_WINDOW (%v)", c.PriceRetention, c.OddsMoveWindow)
	}

	if c.TickBackoffMult < 1 {
		return fmt.Errorf("TICK_BACKOFF_MULTIPLIER must be at least 1, got %f", c.TickBackoffMult)
	}

	if c.TradeFetchLimit <= 0 {
		return fmt.Errorf("TRADE_FETCH_LIMIT must be positive, got %d", c.TradeFetchLimit)
	}

	if c.APIRequestsPerMinute <= 0 {
		return fmt.Errorf("API_REQUESTS_PER_MINUTE must be positive, got %d", c.APIRequestsPerMinute)
	}

	if c.WalletHistoryWorkers <= 0 {
		return fmt.Errorf("WALLET_HISTORY_WORKERS must be positive, got %d", c.WalletHistoryWorkers)
	}

	if c.NotifyMaxAttempts <= 0 {
		return fmt.Errorf("NOTIFY_MAX_ATTEMPTS must be positive, got %d", c.NotifyMaxAttempts)
	}

	return nil
}

// PostgresDSN builds the lib/pq connection string.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.PostgresHost, c.PostgresPort, c.PostgresUser, c.PostgresPass, c.PostgresDB, c.PostgresSSL)
}

// PostgresURL builds the URL form used by golang-migrate.
func (c *Config) PostgresURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.PostgresUser, c.PostgresPass, c.PostgresHost, c.PostgresPort, c.PostgresDB, c.PostgresSSL)
}

func getEnvOrDefault(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	intVal, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}

	return intVal
}

func getFloat64OrDefault(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	floatVal, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}

	return floatVal
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}

	return duration
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	boolVal, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}

	return boolVal
}

// getListOrDefault parses a comma-separated list, trimming blanks.
func getListOrDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return append([]string(nil), defaultValue...)
	}

	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// getWeightsOrDefault parses "name:0.3,other:0.2". Malformed entries are skipped.
func getWeightsOrDefault(key string, defaultValue map[string]float64) map[string]float64 {
	value := os.Getenv(key)
	out := make(map[string]float64)
	if value == "" {
		for k, v := range defaultValue {
			out[k] = v
		}
		return out
	}

	for _, entry := range strings.Split(value, ",") {
		name, weight, ok := strings.Cut(strings.TrimSpace(entry), ":")
		if !ok {
			continue
		}
		w, err := strconv.ParseFloat(strings.TrimSpace(weight), 64)
		if err != nil {
			continue
		}
		out[strings.TrimSpace(name)] = w
	}
	return out
}
