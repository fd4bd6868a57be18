package app

import (
	"context"
	"testing"
	"time"

	"github.com/mselser95/polymarket-surveillance/internal/storage"
	"github.com/mselser95/polymarket-surveillance/internal/testutil"
	"github.com/mselser95/polymarket-surveillance/pkg/config"
	"github.com/mselser95/polymarket-surveillance/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const whale = "0x1111111111111111111111111111111111111111"

func testConfig(t *testing.T, gammaURL string, dataURL string) *config.Config {
	t.Helper()

	t.Setenv("STORAGE_MODE", "memory")
	t.Setenv("NEWS_ENABLED", "false")
	t.Setenv("SOCIAL_ENABLED", "false")
	t.Setenv("WALLET_HISTORY_ENABLED", "false")
	t.Setenv("HTTP_PORT", "0")
	t.Setenv("API_REQUESTS_PER_MINUTE", "6000")
	t.Setenv("POLYMARKET_GAMMA_API_URL", gammaURL)
	t.Setenv("POLYMARKET_DATA_API_URL", dataURL)

	cfg, err := config.LoadFromEnv()
	require.NoError(t, err)
	return cfg
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, zap.NewNop(), nil)
	assert.EqualError(t, err, "config cannot be nil")

	cfg := testConfig(t, "http://127.0.0.1:1", "http://127.0.0.1:1")
	_, err = New(cfg, nil, nil)
	assert.EqualError(t, err, "logger cannot be nil")
}

func TestNew_SignalSourcesFromConfig(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1", "http://127.0.0.1:1")
	cfg.NewsEnabled = true
	cfg.NewsAPIKey = "key"
	cfg.SocialEnabled = true
	cfg.TwitterBearerToken = ""

	sources, err := setupSignalSources(cfg, zap.NewNop(), nil)
	require.NoError(t, err)

	var names []string
	for _, s := range sources {
		names = append(names, s.Name())
	}
	assert.Equal(t, []string{"rss", "newsapi", "rsshub-truthsocial"}, names, "x needs a bearer token")
}

func TestRunOnce_AlertsOnHugeBet(t *testing.T) {
	gamma := testutil.NewMockGammaAPI(
		[]testutil.GammaMarket{testutil.CreateGammaMarket("0xcond1", "Will the Fed cut rates in March?", 0.35)},
		nil,
	)
	defer gamma.Close()

	data := testutil.NewMockDataAPI([]map[string]interface{}{
		testutil.CreateDataAPITrade("0xtx1", whale, "0xcond1", 75000, time.Now().Add(-time.Minute)),
	})
	defer data.Close()

	cfg := testConfig(t, gamma.URL, data.URL)

	a, err := New(cfg, zap.NewNop(), &Options{Once: true})
	require.NoError(t, err)

	require.NoError(t, a.Run())

	alerts, err := a.storage.Alerts(context.Background(), storage.AlertQuery{})
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, types.KindHugeBet, alerts[0].Kind)
	assert.Equal(t, "0xcond1", alerts[0].MarketID)
	assert.Equal(t, "Will the Fed cut rates in March?", alerts[0].MarketTitle)

	snap, err := a.storage.WalletSnapshot(context.Background(), whale)
	require.NoError(t, err, "shutdown writes a final snapshot")
	assert.Equal(t, 1, snap.TradeCount)
}

func TestRunOnce_AllSourcesFailing(t *testing.T) {
	gamma := testutil.NewMockGammaAPI(nil, nil)
	gamma.SetFailing(true)
	defer gamma.Close()

	cfg := testConfig(t, gamma.URL, "http://127.0.0.1:1")

	a, err := New(cfg, zap.NewNop(), &Options{Once: true})
	require.NoError(t, err)

	err = a.Run()
	assert.Error(t, err)
}

func TestHelpers(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1", "http://127.0.0.1:1")

	assert.Nil(t, newLimiter(0))
	limiter := newLimiter(120)
	require.NotNil(t, limiter)
	assert.Equal(t, 12, limiter.Burst())
	assert.Equal(t, 1, newLimiter(5).Burst())

	assert.Equal(t, 2*time.Hour, reactionRetention(cfg), "news window is the widest")
	assert.Equal(t, cfg.TickBackoffMax+2*cfg.TradePollInterval, maxTickAge(cfg))

	pg := PostgresConfig(cfg, zap.NewNop())
	assert.Equal(t, cfg.PostgresDB, pg.Database)
	assert.True(t, pg.AutoMigrate)
}
