package types

import (
	"encoding/json"
	"time"
)

// WalletSnapshot is the derived, read-only view of one wallet's aggregates.
type WalletSnapshot struct {
	Address         string    `json:"address"`
	FirstSeen       time.Time `json:"first_seen"`
	TradeCount      int       `json:"trade_count"`
	TotalVolumeUSD  float64   `json:"total_volume_usd"`
	LargestTradeUSD float64   `json:"largest_trade_usd"`
	Markets         []string  `json:"markets"`
	SettledMarkets  []string  `json:"settled_markets,omitempty"` // markets counted toward win rate
	ResolvedMarkets int       `json:"resolved_markets"`
	WinningMarkets  int       `json:"winning_markets"`
	ComputedAt      time.Time `json:"computed_at"`
}

// DistinctMarkets is the number of markets the wallet has traded.
func (s *WalletSnapshot) DistinctMarkets() int {
	return len(s.Markets)
}

// WinRate is defined only once at least one traded market has resolved.
func (s *WalletSnapshot) WinRate() (float64, bool) {
	if s.ResolvedMarkets == 0 {
		return 0, false
	}
	return float64(s.WinningMarkets) / float64(s.ResolvedMarkets), true
}

// AgeHours is the time since first sight, in hours, never negative.
func (s *WalletSnapshot) AgeHours(now time.Time) float64 {
	age := now.Sub(s.FirstSeen).Hours()
	if age < 0 {
		return 0
	}
	return age
}

// IsSingleMarket is true once a wallet has traded at least twice, all in one market.
func (s *WalletSnapshot) IsSingleMarket() bool {
	return s.DistinctMarkets() == 1 && s.TradeCount >= 2
}

// MarshalJSON adds the derived win_rate (null when undefined).
func (s WalletSnapshot) MarshalJSON() ([]byte, error) {
	type plain WalletSnapshot
	out := struct {
		plain
		DistinctMarkets int      `json:"distinct_markets"`
		WinRate         *float64 `json:"win_rate"`
	}{
		plain:           plain(s),
		DistinctMarkets: s.DistinctMarkets(),
	}
	if rate, ok := s.WinRate(); ok {
		out.WinRate = &rate
	}
	return json.Marshal(out)
}

// WalletHistory is a wallet's pre-existing record fetched from the venue,
// used to seed the ledger on first sight.
type WalletHistory struct {
	Address           string             `json:"address"`
	FirstTradeAt      time.Time          `json:"first_trade_at"`
	TradeCount        int                `json:"trade_count"`
	VolumeUSD         float64            `json:"volume_usd"`
	LargestTradeUSD   float64            `json:"largest_trade_usd"`
	Markets           []string           `json:"markets"`
	ResolvedPositions []ResolvedPosition `json:"resolved_positions"`
}

// ResolvedPosition is the outcome of one settled market for a wallet.
type ResolvedPosition struct {
	MarketID string `json:"market_id"`
	Won      bool   `json:"won"`
}

// PricePoint is one sample of an outcome price.
type PricePoint struct {
	MarketID  string    `json:"market_id"`
	Outcome   string    `json:"outcome"`
	Price     float64   `json:"price"`
	Timestamp time.Time `json:"timestamp"`
}

// NewPricePoint validates a price sample.
func NewPricePoint(marketID string, outcome string, price float64, ts time.Time) (PricePoint, error) {
	switch {
	case marketID == "":
		return PricePoint{}, recordError(ErrInvalidPricePoint, "price", "market_id", "missing")
	case outcome == "":
		return PricePoint{}, recordError(ErrInvalidPricePoint, "price", "outcome", "missing")
	case price <= 0 || price > 1:
		return PricePoint{}, recordError(ErrInvalidPricePoint, "price", "price", "out of range")
	case ts.IsZero():
		return PricePoint{}, recordError(ErrInvalidPricePoint, "price", "timestamp", "missing")
	}

	return PricePoint{
		MarketID:  marketID,
		Outcome:   outcome,
		Price:     price,
		Timestamp: ts.UTC(),
	}, nil
}
