package types

import (
	"fmt"
	"strings"
	"time"
)

// Side is the taker side of a trade.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Trade is one observed fill on the venue. Immutable once recorded and
// identified uniquely by TxHash.
type Trade struct {
	TxHash        string    `json:"tx_hash"`
	WalletAddress string    `json:"wallet_address"`
	MarketID      string    `json:"market_id"`
	MarketTitle   string    `json:"market_title,omitempty"`
	MarketSlug    string    `json:"market_slug,omitempty"`
	Side          Side      `json:"side"`
	Outcome       string    `json:"outcome"`
	Price         float64   `json:"price"`
	SizeUSD       float64   `json:"size_usd"`
	Timestamp     time.Time `json:"timestamp"`
}

// NewTrade validates the required fields and returns a normalized copy.
func NewTrade(t Trade) (Trade, error) {
	t.TxHash = strings.TrimSpace(t.TxHash)
	t.MarketID = strings.TrimSpace(t.MarketID)
	t.Outcome = strings.TrimSpace(t.Outcome)
	t.Side = Side(strings.ToUpper(strings.TrimSpace(string(t.Side))))

	if t.WalletAddress != "" {
		normalized, err := NormalizeAddress(t.WalletAddress)
		if err != nil {
			return Trade{}, recordError(ErrInvalidTrade, "trade", "wallet_address", err.Error())
		}
		t.WalletAddress = normalized
	}

	err := t.Validate()
	if err != nil {
		return Trade{}, err
	}

	t.Timestamp = t.Timestamp.UTC()
	return t, nil
}

// Validate checks the required fields of a trade.
func (t *Trade) Validate() error {
	switch {
	case t.TxHash == "":
		return recordError(ErrInvalidTrade, "trade", "tx_hash", "missing")
	case t.WalletAddress == "":
		return recordError(ErrInvalidTrade, "trade", "wallet_address", "missing")
	case t.MarketID == "":
		return recordError(ErrInvalidTrade, "trade", "market_id", "missing")
	case t.Side != SideBuy && t.Side != SideSell:
		return recordError(ErrInvalidTrade, "trade", "side", fmt.Sprintf("unknown side %q", t.Side))
	case t.Outcome == "":
		return recordError(ErrInvalidTrade, "trade", "outcome", "missing")
	case t.Price <= 0 || t.Price > 1:
		return recordError(ErrInvalidTrade, "trade", "price", fmt.Sprintf("out of range: %v", t.Price))
	case t.SizeUSD <= 0:
		return recordError(ErrInvalidTrade, "trade", "size_usd", fmt.Sprintf("must be positive: %v", t.SizeUSD))
	case t.Timestamp.IsZero():
		return recordError(ErrInvalidTrade, "trade", "timestamp", "missing")
	}

	return nil
}
