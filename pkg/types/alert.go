package types

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Severity orders alerts from LOW to CRITICAL. The zero value is invalid.
type Severity int

const (
	SeverityLow Severity = iota + 1
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

var severityNames = map[Severity]string{
	SeverityLow:      "LOW",
	SeverityMedium:   "MEDIUM",
	SeverityHigh:     "HIGH",
	SeverityCritical: "CRITICAL",
}

// AllSeverities lists severities in ascending order.
func AllSeverities() []Severity {
	return []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}
}

func (s Severity) String() string {
	name, ok := severityNames[s]
	if !ok {
		return fmt.Sprintf("Severity(%d)", int(s))
	}
	return name
}

// Valid reports whether s is one of the four defined levels.
func (s Severity) Valid() bool {
	_, ok := severityNames[s]
	return ok
}

// Escalate returns the next level up, capped at CRITICAL.
func (s Severity) Escalate() Severity {
	if s >= SeverityCritical {
		return SeverityCritical
	}
	return s + 1
}

// ParseSeverity parses LOW/MEDIUM/HIGH/CRITICAL case-insensitively.
func ParseSeverity(value string) (Severity, error) {
	upper := strings.ToUpper(strings.TrimSpace(value))
	for sev, name := range severityNames {
		if name == upper {
			return sev, nil
		}
	}
	return 0, fmt.Errorf("unknown severity %q", value)
}

func (s Severity) MarshalJSON() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("marshal severity: invalid value %d", int(s))
	}
	return json.Marshal(s.String())
}

func (s *Severity) UnmarshalJSON(data []byte) error {
	var name string
	err := json.Unmarshal(data, &name)
	if err != nil {
		return err
	}
	parsed, err := ParseSeverity(name)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// AlertKind names the condition that raised an alert.
type AlertKind string

const (
	KindLargeBet     AlertKind = "LARGE_BET"
	KindVeryLargeBet AlertKind = "VERY_LARGE_BET"
	KindHugeBet      AlertKind = "HUGE_BET"

	KindNewsMatch        AlertKind = "NEWS_MATCH"
	KindHighActivity     AlertKind = "HIGH_ACTIVITY"
	KindSmartMoneyMoving AlertKind = "SMART_MONEY_MOVING"

	KindInfluentialPost    AlertKind = "INFLUENTIAL_POST"
	KindMarketMoving       AlertKind = "MARKET_MOVING"
	KindSmartMoneyReacting AlertKind = "SMART_MONEY_REACTING"
)

// Alert is created only by the alert generator and is immutable afterwards
// except for Delivered.
type Alert struct {
	ID            string    `json:"id"`
	Severity      Severity  `json:"severity"`
	Kind          AlertKind `json:"kind"`
	MarketID      string    `json:"market_id"`
	MarketTitle   string    `json:"market_title,omitempty"`
	WalletAddress string    `json:"wallet_address,omitempty"`
	TradeRef      string    `json:"trade_ref,omitempty"`
	SignalRef     string    `json:"signal_ref,omitempty"`
	Reasons       []string  `json:"reasons"`
	Evidence      Evidence  `json:"evidence"`
	CreatedAt     time.Time `json:"created_at"`
	Delivered     bool      `json:"delivered"`
}

// Evidence carries the measurements behind an alert. Pointer fields are
// nil when the value was not defined at evaluation time.
type Evidence struct {
	TradeSizeUSD        float64  `json:"trade_size_usd,omitempty"`
	Price               float64  `json:"price,omitempty"`
	Side                Side     `json:"side,omitempty"`
	Outcome             string   `json:"outcome,omitempty"`
	WalletAgeHours      *float64 `json:"wallet_age_hours,omitempty"`
	WalletTradeCount    int      `json:"wallet_trade_count,omitempty"`
	WalletWinRate       *float64 `json:"wallet_win_rate,omitempty"`
	OddsMovement        *float64 `json:"odds_movement,omitempty"`
	MatchScore          *float64 `json:"match_score,omitempty"`
	ReactionTrades      int      `json:"reaction_trades,omitempty"`
	ReactionVolumeUSD   float64  `json:"reaction_volume_usd,omitempty"`
	SmartMoneyTrades    int      `json:"smart_money_trades,omitempty"`
	SmartMoneyVolumeUSD float64  `json:"smart_money_volume_usd,omitempty"`
}

// DedupKey groups alerts for the cool-down: same kind, same market, same
// wallet or signal.
func (a *Alert) DedupKey() string {
	subject := a.WalletAddress
	if a.SignalRef != "" {
		subject = a.SignalRef
	}
	return string(a.Kind) + "|" + a.MarketID + "|" + subject
}

// Validate checks the invariants every stored alert satisfies.
func (a *Alert) Validate() error {
	switch {
	case a.ID == "":
		return recordError(ErrInvalidAlert, "alert", "id", "missing")
	case !a.Severity.Valid():
		return recordError(ErrInvalidAlert, "alert", "severity", fmt.Sprintf("invalid value %d", int(a.Severity)))
	case a.Kind == "":
		return recordError(ErrInvalidAlert, "alert", "kind", "missing")
	case a.MarketID == "":
		return recordError(ErrInvalidAlert, "alert", "market_id", "missing")
	case a.CreatedAt.IsZero():
		return recordError(ErrInvalidAlert, "alert", "created_at", "missing")
	}
	return nil
}

// Float64Ptr returns a pointer to v.
func Float64Ptr(v float64) *float64 {
	return &v
}
