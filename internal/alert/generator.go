// Package alert fuses wallet, price and signal-reaction evidence into
// severity-tagged alerts.
package alert

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/mselser95/polymarket-surveillance/internal/reaction"
	"github.com/mselser95/polymarket-surveillance/pkg/types"
	"go.uber.org/zap"
)

// Generator decides whether and at what severity to raise an alert.
type Generator struct {
	config   Config
	watched  map[string]struct{}
	ignored  map[string]struct{}
	highVal  map[string]struct{}
	cooldown *Cooldown
	now      func() time.Time
	newID    func() string
	logger   *zap.Logger
}

// Config holds generator thresholds. All values are fixed at construction.
type Config struct {
	// Bet-size tiers in USD, ascending.
	LargeBet     float64
	VeryLargeBet float64
	HugeBet      float64

	NewWalletAge     time.Duration
	VeryNewWalletAge time.Duration
	HighWinRate      float64
	LowTradeCount    int

	SignificantOddsMove float64
	OddsMoveWindow      time.Duration

	WatchedWallets []string
	IgnoredWallets []string

	NewsMinConfidence      float64
	SocialMinConfidence    float64
	NewsReactionWindow     time.Duration
	SocialReactionWindow   time.Duration
	NewsHighActivity       int
	SocialHighActivity     int
	RequireTradingActivity bool
	HighValueAccounts      []string
	HighValueMinConfidence float64
	SmartMoneyVolumeRatio  float64

	Cooldown time.Duration
	Now      func() time.Time
	NewID    func() string
	Logger   *zap.Logger
}

// TradeInput is everything the trade path needs about one trade.
type TradeInput struct {
	Trade  *types.Trade
	Wallet *types.WalletSnapshot
	Market *types.Market // optional, supplies the title
	// OddsMovement is the fractional move of the traded outcome over the
	// odds window, nil when there was not enough price data.
	OddsMovement *float64
}

// SignalMatch is one matched market of a signal with its reaction.
type SignalMatch struct {
	Score    types.MatchScore
	Market   types.Market
	Reaction reaction.Reaction
	// Floor is the severity already reported for this market; only a
	// strictly higher severity raises a new alert.
	Floor types.Severity
}

// New creates a new alert generator.
func New(cfg *Config) (*Generator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if cfg.LargeBet <= 0 || cfg.LargeBet >= cfg.VeryLargeBet || cfg.VeryLargeBet >= cfg.HugeBet {
		return nil, fmt.Errorf("bet tiers must be positive and ascending: %v < %v < %v",
			cfg.LargeBet, cfg.VeryLargeBet, cfg.HugeBet)
	}
	if cfg.VeryNewWalletAge >= cfg.NewWalletAge {
		return nil, fmt.Errorf("very new wallet age %v must be below new wallet age %v",
			cfg.VeryNewWalletAge, cfg.NewWalletAge)
	}
	if cfg.Cooldown < 0 {
		return nil, fmt.Errorf("cooldown cannot be negative")
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	newID := cfg.NewID
	if newID == nil {
		newID = uuid.NewString
	}

	return &Generator{
		config:   *cfg,
		watched:  toSet(cfg.WatchedWallets, strings.ToLower),
		ignored:  toSet(cfg.IgnoredWallets, strings.ToLower),
		highVal:  toSet(cfg.HighValueAccounts, strings.ToLower),
		cooldown: NewCooldown(cfg.Cooldown, now),
		now:      now,
		newID:    newID,
		logger:   cfg.Logger,
	}, nil
}

func toSet(values []string, normalize func(string) string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		set[normalize(v)] = struct{}{}
	}
	return set
}

// EvaluateTrade runs the trade-triggered path. Bet size is a necessary
// gate: below the smallest tier no alert is raised whatever else is true.
func (g *Generator) EvaluateTrade(in *TradeInput) (*types.Alert, bool) {
	TradesEvaluatedTotal.Inc()

	trade := in.Trade
	if _, skip := g.ignored[strings.ToLower(trade.WalletAddress)]; skip {
		return nil, false
	}

	kind, severity, reason, ok := g.betTier(trade.SizeUSD)
	if !ok {
		return nil, false
	}

	reasons := []string{reason}
	flags := 0
	wallet := in.Wallet
	evidence := types.Evidence{
		TradeSizeUSD: trade.SizeUSD,
		Price:        trade.Price,
		Side:         trade.Side,
		Outcome:      trade.Outcome,
		OddsMovement: in.OddsMovement,
	}

	veryNew := false
	singleMarket := false
	if wallet != nil {
		age := wallet.AgeHours(trade.Timestamp)
		evidence.WalletAgeHours = types.Float64Ptr(age)
		evidence.WalletTradeCount = wallet.TradeCount
		winRate, winRateDefined := wallet.WinRate()
		if winRateDefined {
			evidence.WalletWinRate = types.Float64Ptr(winRate)
		}

		if age < g.config.NewWalletAge.Hours() {
			flags++
			reasons = append(reasons, fmt.Sprintf("New wallet (%.0fh old)", age))
		}
		if age < g.config.VeryNewWalletAge.Hours() {
			flags++
			veryNew = true
			reasons = append(reasons, fmt.Sprintf("Very new wallet (under %.0fh)", g.config.VeryNewWalletAge.Hours()))
		}
		if wallet.IsSingleMarket() {
			flags++
			singleMarket = true
			reasons = append(reasons, "Only trades this market")
		}
		if wallet.TradeCount < g.config.LowTradeCount && winRateDefined && winRate >= g.config.HighWinRate {
			flags++
			reasons = append(reasons, fmt.Sprintf("Only %d trades with %.0f%% win rate", wallet.TradeCount, winRate*100))
		}
	}

	if in.OddsMovement != nil && math.Abs(*in.OddsMovement) >= g.config.SignificantOddsMove {
		flags++
		reasons = append(reasons, fmt.Sprintf("Odds moved %+.1f%% in %s", *in.OddsMovement*100, g.config.OddsMoveWindow))
	}

	if _, ok := g.watched[strings.ToLower(trade.WalletAddress)]; ok {
		flags++
		reasons = append(reasons, "Watched wallet")
	}

	// Two independent escalation rules, applied in order.
	if flags >= 2 {
		severity = severity.Escalate()
	}
	if veryNew && singleMarket {
		severity = types.SeverityCritical
	}

	alert := &types.Alert{
		Severity:      severity,
		Kind:          kind,
		MarketID:      trade.MarketID,
		MarketTitle:   trade.MarketTitle,
		WalletAddress: trade.WalletAddress,
		TradeRef:      trade.TxHash,
		Reasons:       reasons,
		Evidence:      evidence,
	}
	if in.Market != nil && in.Market.Title != "" {
		alert.MarketTitle = in.Market.Title
	}

	return g.emit(alert)
}

// betTier evaluates tiers from largest to smallest; the first match wins.
func (g *Generator) betTier(size float64) (types.AlertKind, types.Severity, string, bool) {
	amount := humanize.Comma(int64(math.Round(size)))

	switch {
	case size >= g.config.HugeBet:
		return types.KindHugeBet, types.SeverityCritical, fmt.Sprintf("Huge $%s bet", amount), true
	case size >= g.config.VeryLargeBet:
		return types.KindVeryLargeBet, types.SeverityHigh, fmt.Sprintf("Very large $%s bet", amount), true
	case size >= g.config.LargeBet:
		return types.KindLargeBet, types.SeverityMedium, fmt.Sprintf("Large $%s bet", amount), true
	}

	return "", 0, "", false
}

// EvaluateSignal runs the signal-triggered path over every match at or
// above the kind's minimum confidence, producing at most one alert per
// matched market.
func (g *Generator) EvaluateSignal(signal *types.Signal, matches []SignalMatch) []*types.Alert {
	SignalsEvaluatedTotal.WithLabelValues(string(signal.Kind)).Inc()

	var alerts []*types.Alert
	for i := range matches {
		alert, ok := g.evaluateMatch(signal, &matches[i])
		if ok {
			alerts = append(alerts, alert)
		}
	}

	return alerts
}

func (g *Generator) evaluateMatch(signal *types.Signal, match *SignalMatch) (*types.Alert, bool) {
	social := signal.Kind == types.SignalSocial

	minConfidence := g.config.NewsMinConfidence
	window := g.config.NewsReactionWindow
	highActivity := g.config.NewsHighActivity
	if social {
		minConfidence = g.config.SocialMinConfidence
		window = g.config.SocialReactionWindow
		highActivity = g.config.SocialHighActivity
	}

	score := match.Score.Score
	if score < minConfidence {
		return nil, false
	}

	r := match.Reaction
	reasons := []string{signalReason(signal, score)}

	var kind types.AlertKind
	var severity types.Severity

	switch {
	case r.TradeCount == 0:
		highValue := g.isHighValue(signal) && score > g.config.HighValueMinConfidence
		if g.config.RequireTradingActivity && !highValue {
			return nil, false
		}
		kind = types.KindNewsMatch
		if social {
			kind = types.KindInfluentialPost
		}
		severity = types.SeverityLow
		if highValue {
			severity = types.SeverityMedium
			reasons = append(reasons, fmt.Sprintf("High-value account @%s", signal.Author))
		}
		reasons = append(reasons, fmt.Sprintf("No trades yet within %s", window))

	case r.SmartMoneyTradeCount > 0 && r.SmartMoneyFraction() > g.config.SmartMoneyVolumeRatio:
		kind = types.KindSmartMoneyMoving
		if social {
			kind = types.KindSmartMoneyReacting
		}
		severity = types.SeverityCritical
		reasons = append(reasons,
			activityReason(&r, window),
			fmt.Sprintf("%d smart-money trades / $%s (%.0f%% of volume)",
				r.SmartMoneyTradeCount, humanize.Comma(int64(math.Round(r.SmartMoneyVolumeUSD))), r.SmartMoneyFraction()*100))

	case r.TradeCount >= highActivity:
		kind = types.KindHighActivity
		if social {
			kind = types.KindMarketMoving
		}
		severity = types.SeverityHigh
		reasons = append(reasons, activityReason(&r, window))

	default:
		kind = types.KindNewsMatch
		if social {
			kind = types.KindInfluentialPost
		}
		severity = types.SeverityMedium
		reasons = append(reasons, activityReason(&r, window))
	}

	if severity <= match.Floor {
		return nil, false
	}

	alert := &types.Alert{
		Severity:    severity,
		Kind:        kind,
		MarketID:    match.Market.ID,
		MarketTitle: match.Market.Title,
		SignalRef:   signal.ID,
		Reasons:     reasons,
		Evidence: types.Evidence{
			MatchScore:          types.Float64Ptr(score),
			ReactionTrades:      r.TradeCount,
			ReactionVolumeUSD:   r.VolumeUSD,
			SmartMoneyTrades:    r.SmartMoneyTradeCount,
			SmartMoneyVolumeUSD: r.SmartMoneyVolumeUSD,
		},
	}
	if alert.MarketID == "" {
		alert.MarketID = match.Score.MarketID
	}

	return g.emit(alert)
}

func (g *Generator) isHighValue(signal *types.Signal) bool {
	if signal.Kind != types.SignalSocial {
		return false
	}
	_, ok := g.highVal[strings.ToLower(signal.Author)]
	return ok
}

func signalReason(signal *types.Signal, score float64) string {
	text := signal.Text
	if len(text) > 120 {
		text = text[:117] + "..."
	}
	if signal.Kind == types.SignalSocial {
		return fmt.Sprintf("@%s posted: %q (confidence %.0f%%)", signal.Author, text, score*100)
	}
	return fmt.Sprintf("%s: %q (confidence %.0f%%)", signal.Source, text, score*100)
}

func activityReason(r *reaction.Reaction, window time.Duration) string {
	return fmt.Sprintf("%d trades / $%s within %s",
		r.TradeCount, humanize.Comma(int64(math.Round(r.VolumeUSD))), window)
}

// emit stamps the alert and applies the cool-down.
func (g *Generator) emit(alert *types.Alert) (*types.Alert, bool) {
	if !g.cooldown.Allow(alert.DedupKey(), alert.Severity) {
		AlertsSuppressedTotal.WithLabelValues(string(alert.Kind)).Inc()
		g.logger.Debug("alert-suppressed-cooldown",
			zap.String("kind", string(alert.Kind)),
			zap.String("key", alert.DedupKey()))
		return nil, false
	}

	alert.ID = g.newID()
	alert.CreatedAt = g.now().UTC()

	AlertsTotal.WithLabelValues(string(alert.Kind), alert.Severity.String()).Inc()
	g.logger.Info("alert-generated",
		zap.String("alert-id", alert.ID),
		zap.String("kind", string(alert.Kind)),
		zap.String("severity", alert.Severity.String()),
		zap.String("market-id", alert.MarketID),
		zap.String("wallet", types.ShortAddress(alert.WalletAddress)),
		zap.String("signal-ref", alert.SignalRef))

	return alert, true
}
