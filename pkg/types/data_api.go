package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// DataAPITrade is a trade as published by the Polymarket Data API /trades
// endpoint and by the real-time activity stream.
type DataAPITrade struct {
	ProxyWallet     string              `json:"proxyWallet"`
	Side            string              `json:"side"`
	Asset           string              `json:"asset"`
	ConditionID     string              `json:"conditionId"`
	Size            decimal.NullDecimal `json:"size"`
	UsdcSize        decimal.NullDecimal `json:"usdcSize"`
	Price           decimal.NullDecimal `json:"price"`
	Timestamp       int64               `json:"timestamp"`
	Title           string              `json:"title"`
	Slug            string              `json:"slug"`
	EventSlug       string              `json:"eventSlug"`
	Outcome         string              `json:"outcome"`
	OutcomeIndex    int                 `json:"outcomeIndex"`
	TransactionHash string              `json:"transactionHash"`
}

// millisecondThreshold separates second and millisecond unix timestamps.
const millisecondThreshold = 1_000_000_000_000

// ToTrade converts the wire record into a validated Trade. Missing price,
// size or timestamp yields a *RecordError.
func (r *DataAPITrade) ToTrade() (Trade, error) {
	if !r.Price.Valid {
		return Trade{}, recordError(ErrInvalidTrade, "trade", "price", "missing")
	}
	if r.Timestamp <= 0 {
		return Trade{}, recordError(ErrInvalidTrade, "trade", "timestamp", "missing")
	}

	notional := decimal.Zero
	switch {
	case r.UsdcSize.Valid && r.UsdcSize.Decimal.IsPositive():
		notional = r.UsdcSize.Decimal
	case r.Size.Valid:
		notional = r.Size.Decimal.Mul(r.Price.Decimal)
	default:
		return Trade{}, recordError(ErrInvalidTrade, "trade", "size", "missing")
	}

	ts := time.Unix(r.Timestamp, 0)
	if r.Timestamp >= millisecondThreshold {
		ts = time.UnixMilli(r.Timestamp)
	}

	return NewTrade(Trade{
		TxHash:        r.TransactionHash,
		WalletAddress: r.ProxyWallet,
		MarketID:      r.ConditionID,
		MarketTitle:   r.Title,
		MarketSlug:    r.Slug,
		Side:          Side(r.Side),
		Outcome:       r.Outcome,
		Price:         r.Price.Decimal.InexactFloat64(),
		SizeUSD:       notional.Round(2).InexactFloat64(),
		Timestamp:     ts,
	})
}
