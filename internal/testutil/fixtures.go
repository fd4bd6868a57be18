package testutil

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mselser95/polymarket-surveillance/pkg/types"
)

// GammaMarket is a market in the Gamma API wire shape, where outcomes,
// prices and token ids are JSON-encoded strings.
type GammaMarket struct {
	ID            string `json:"id"`
	ConditionID   string `json:"conditionId"`
	Question      string `json:"question"`
	Slug          string `json:"slug"`
	Active        bool   `json:"active"`
	Closed        bool   `json:"closed"`
	Outcomes      string `json:"outcomes"`
	OutcomePrices string `json:"outcomePrices"`
	ClobTokenIDs  string `json:"clobTokenIds"`
	EndDate       string `json:"endDate,omitempty"`
}

// CreateGammaMarket creates an active binary Yes/No market.
func CreateGammaMarket(conditionID string, question string, yesPrice float64) GammaMarket {
	no := 1 - yesPrice
	return GammaMarket{
		ID:            "g-" + conditionID,
		ConditionID:   conditionID,
		Question:      question,
		Slug:          slugify(question),
		Active:        true,
		Outcomes:      `["Yes","No"]`,
		OutcomePrices: fmt.Sprintf(`["%s","%s"]`, formatPrice(yesPrice), formatPrice(no)),
		ClobTokenIDs:  fmt.Sprintf(`["%s-yes","%s-no"]`, conditionID, conditionID),
	}
}

// CreateResolvedGammaMarket creates a closed market settled on winner.
func CreateResolvedGammaMarket(conditionID string, question string, winner string) GammaMarket {
	m := CreateGammaMarket(conditionID, question, 0)
	m.Active = false
	m.Closed = true
	if winner == "Yes" {
		m.OutcomePrices = `["1","0"]`
	} else {
		m.OutcomePrices = `["0","1"]`
	}
	return m
}

// CreateTestTrade creates a valid buy of the Yes outcome.
func CreateTestTrade(txHash string, wallet string, marketID string, sizeUSD float64, ts time.Time) types.Trade {
	return types.Trade{
		TxHash:        txHash,
		WalletAddress: wallet,
		MarketID:      marketID,
		MarketTitle:   "Test market " + marketID,
		Side:          types.SideBuy,
		Outcome:       "Yes",
		Price:         0.5,
		SizeUSD:       sizeUSD,
		Timestamp:     ts,
	}
}

// CreateDataAPITrade creates a Data API /trades record.
func CreateDataAPITrade(txHash string, wallet string, conditionID string, usdc float64, ts time.Time) map[string]interface{} {
	return map[string]interface{}{
		"proxyWallet":     wallet,
		"side":            "BUY",
		"conditionId":     conditionID,
		"size":            usdc * 2,
		"usdcSize":        usdc,
		"price":           0.5,
		"timestamp":       ts.Unix(),
		"title":           "Test market " + conditionID,
		"outcome":         "Yes",
		"transactionHash": txHash,
	}
}

func formatPrice(p float64) string {
	return strconv.FormatFloat(p, 'f', -1, 64)
}

func slugify(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('-')
		}
	}
	return b.String()
}
