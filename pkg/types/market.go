package types

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// resolvedPriceFloor is the settlement price at or above which an outcome
// of a closed market is considered the winner.
const resolvedPriceFloor = 0.99

// Market is a venue market as seen by the surveillance core. ID is the
// on-chain condition id, the key trades reference.
type Market struct {
	ID       string    `json:"id"`
	GammaID  string    `json:"gamma_id,omitempty"`
	Title    string    `json:"title"`
	Slug     string    `json:"slug,omitempty"`
	Category string    `json:"category,omitempty"`
	Active   bool      `json:"active"`
	Closed   bool      `json:"closed"`
	Outcomes []Outcome `json:"outcomes"`
	EndDate  time.Time `json:"end_date,omitempty"`
}

// Outcome is one tradable side of a market with its current price.
type Outcome struct {
	Name    string  `json:"name"`
	TokenID string  `json:"token_id,omitempty"`
	Price   float64 `json:"price"`
}

// gammaMarket is the Gamma API wire shape. outcomes, outcomePrices and
// clobTokenIds arrive as JSON-encoded strings.
type gammaMarket struct {
	ID            string `json:"id"`
	ConditionID   string `json:"conditionId"`
	Question      string `json:"question"`
	Slug          string `json:"slug"`
	Category      string `json:"category"`
	Active        bool   `json:"active"`
	Closed        bool   `json:"closed"`
	Outcomes      string `json:"outcomes"`
	OutcomePrices string `json:"outcomePrices"`
	ClobTokenIDs  string `json:"clobTokenIds"`
	EndDate       string `json:"endDate"`
}

// UnmarshalJSON accepts both the Gamma API shape and the Market's own JSON encoding.
func (m *Market) UnmarshalJSON(data []byte) error {
	var probe struct {
		ConditionID *string `json:"conditionId"`
		Question    *string `json:"question"`
	}
	err := json.Unmarshal(data, &probe)
	if err != nil {
		return err
	}

	if probe.ConditionID == nil && probe.Question == nil {
		type plain Market
		var p plain
		err = json.Unmarshal(data, &p)
		if err != nil {
			return err
		}
		*m = Market(p)
		return nil
	}

	var wire gammaMarket
	err = json.Unmarshal(data, &wire)
	if err != nil {
		return err
	}

	*m = Market{
		ID:       wire.ConditionID,
		GammaID:  wire.ID,
		Title:    wire.Question,
		Slug:     wire.Slug,
		Category: wire.Category,
		Active:   wire.Active,
		Closed:   wire.Closed,
		EndDate:  parseEndDate(wire.EndDate),
		Outcomes: parseOutcomes(wire.Outcomes, wire.OutcomePrices, wire.ClobTokenIDs),
	}

	return nil
}

func parseEndDate(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}
	}
	return ts.UTC()
}

func parseOutcomes(outcomesRaw string, pricesRaw string, tokensRaw string) []Outcome {
	var names, prices, tokens []string
	if outcomesRaw == "" || json.Unmarshal([]byte(outcomesRaw), &names) != nil {
		return nil
	}
	if pricesRaw != "" {
		_ = json.Unmarshal([]byte(pricesRaw), &prices)
	}
	if tokensRaw != "" {
		_ = json.Unmarshal([]byte(tokensRaw), &tokens)
	}

	outcomes := make([]Outcome, 0, len(names))
	for i, name := range names {
		outcome := Outcome{Name: name}
		if i < len(prices) {
			price, err := strconv.ParseFloat(prices[i], 64)
			if err == nil {
				outcome.Price = price
			}
		}
		if i < len(tokens) {
			outcome.TokenID = tokens[i]
		}
		outcomes = append(outcomes, outcome)
	}

	return outcomes
}

// Validate checks the fields the core relies on.
func (m *Market) Validate() error {
	if strings.TrimSpace(m.ID) == "" {
		return recordError(ErrInvalidMarket, "market", "id", "missing")
	}
	if strings.TrimSpace(m.Title) == "" {
		return recordError(ErrInvalidMarket, "market", "title", "missing")
	}
	return nil
}

// OutcomePrice returns the current price of an outcome (case-insensitive).
func (m *Market) OutcomePrice(name string) (float64, bool) {
	for i := range m.Outcomes {
		if strings.EqualFold(m.Outcomes[i].Name, name) {
			return m.Outcomes[i].Price, true
		}
	}
	return 0, false
}

// Resolution returns the winning outcome of a closed market. A market is
// resolved only when exactly one outcome settled at the top of the range.
func (m *Market) Resolution() (string, bool) {
	if !m.Closed {
		return "", false
	}

	winner := ""
	for i := range m.Outcomes {
		if m.Outcomes[i].Price >= resolvedPriceFloor {
			if winner != "" {
				return "", false
			}
			winner = m.Outcomes[i].Name
		}
	}

	return winner, winner != ""
}

// MarketsResponse wraps one page of Gamma API markets.
type MarketsResponse struct {
	Data   []Market `json:"data"`
	Count  int      `json:"count"`
	Limit  int      `json:"limit"`
	Offset int      `json:"offset"`
}
