package httpserver

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"
	"github.com/mselser95/polymarket-surveillance/internal/pricehistory"
	"github.com/mselser95/polymarket-surveillance/internal/storage"
	"github.com/mselser95/polymarket-surveillance/pkg/types"
	"go.uber.org/zap"
)

const (
	defaultAlertLimit = 100
	maxAlertLimit     = 1000
	defaultStatsTop   = 10
	defaultSince      = 24 * time.Hour
)

// AlertStore is the persisted state the API reads.
type AlertStore interface {
	Alerts(ctx context.Context, q storage.AlertQuery) ([]types.Alert, error)
	AlertStats(ctx context.Context, since time.Time, top int) (*storage.AlertStats, error)
	WalletSnapshot(ctx context.Context, address string) (*types.WalletSnapshot, error)
}

// WalletLookup returns live wallet aggregates.
type WalletLookup interface {
	Snapshot(address string) (types.WalletSnapshot, bool)
}

// PriceLookup measures odds movement.
type PriceLookup interface {
	MovementOver(marketID string, outcome string, window time.Duration, now time.Time) (pricehistory.Movement, bool)
}

// MarketLookup returns a known market.
type MarketLookup interface {
	Market(id string) (types.Market, bool)
}

// APIHandler serves the read-only surveillance API.
type APIHandler struct {
	store   AlertStore
	wallets WalletLookup
	prices  PriceLookup
	markets MarketLookup
	window  time.Duration
	now     func() time.Time
	logger  *zap.Logger
}

// NewAPIHandler creates a new API handler. Nil lookups disable the
// endpoints that need them.
func NewAPIHandler(cfg *Config) *APIHandler {
	window := cfg.MovementWindow
	if window <= 0 {
		window = time.Hour
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &APIHandler{
		store:   cfg.Store,
		wallets: cfg.Wallets,
		prices:  cfg.Prices,
		markets: cfg.Markets,
		window:  window,
		now:     now,
		logger:  cfg.Logger,
	}
}

// ErrorResponse represents an HTTP error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// AlertsResponse is the body of GET /api/alerts.
type AlertsResponse struct {
	Count  int           `json:"count"`
	Alerts []types.Alert `json:"alerts"`
}

// MovementResponse is the body of GET /api/markets/{marketID}/movement.
type MovementResponse struct {
	MarketID  string                  `json:"market_id"`
	Title     string                  `json:"title,omitempty"`
	Window    string                  `json:"window"`
	Movements []pricehistory.Movement `json:"movements"`
}

// Routes mounts the API on r.
func (h *APIHandler) Routes(r chi.Router) {
	if h.store != nil {
		r.Get("/api/alerts", h.HandleAlerts)
		r.Get("/api/alerts/stats", h.HandleAlertStats)
	}
	if h.store != nil || h.wallets != nil {
		r.Get("/api/wallets/{address}", h.HandleWallet)
	}
	if h.prices != nil {
		r.Get("/api/markets/{marketID}/movement", h.HandleMovement)
	}
}

// HandleAlerts handles GET /api/alerts?since=&severity=&kind=&market=&wallet=&limit=.
func (h *APIHandler) HandleAlerts(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()

	since, err := h.parseSince(params.Get("since"))
	if err != nil {
		h.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	q := storage.AlertQuery{
		Since:    since,
		Kind:     types.AlertKind(strings.ToUpper(params.Get("kind"))),
		MarketID: params.Get("market"),
		Limit:    defaultAlertLimit,
	}

	if raw := params.Get("severity"); raw != "" {
		q.MinSeverity, err = types.ParseSeverity(raw)
		if err != nil {
			h.writeError(w, "invalid severity: "+raw, http.StatusBadRequest)
			return
		}
	}
	if raw := params.Get("wallet"); raw != "" {
		q.Wallet, err = types.NormalizeAddress(raw)
		if err != nil {
			h.writeError(w, "invalid wallet address", http.StatusBadRequest)
			return
		}
	}
	if raw := params.Get("limit"); raw != "" {
		q.Limit, err = strconv.Atoi(raw)
		if err != nil || q.Limit <= 0 {
			h.writeError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		if q.Limit > maxAlertLimit {
			q.Limit = maxAlertLimit
		}
	}

	alerts, err := h.store.Alerts(r.Context(), q)
	if err != nil {
		h.logger.Error("alerts-query-failed", zap.Error(err))
		h.writeError(w, "failed to load alerts", http.StatusInternalServerError)
		return
	}
	if alerts == nil {
		alerts = []types.Alert{}
	}

	h.writeJSON(w, http.StatusOK, AlertsResponse{Count: len(alerts), Alerts: alerts})
}

// HandleAlertStats handles GET /api/alerts/stats?since=&top=.
func (h *APIHandler) HandleAlertStats(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()

	since, err := h.parseSince(params.Get("since"))
	if err != nil {
		h.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	top := defaultStatsTop
	if raw := params.Get("top"); raw != "" {
		top, err = strconv.Atoi(raw)
		if err != nil || top <= 0 {
			h.writeError(w, "top must be a positive integer", http.StatusBadRequest)
			return
		}
	}

	stats, err := h.store.AlertStats(r.Context(), since, top)
	if err != nil {
		h.logger.Error("alert-stats-failed", zap.Error(err))
		h.writeError(w, "failed to compute alert stats", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, stats)
}

// HandleWallet handles GET /api/wallets/{address}. Live ledger state wins
// over the last persisted snapshot.
func (h *APIHandler) HandleWallet(w http.ResponseWriter, r *http.Request) {
	address, err := types.NormalizeAddress(chi.URLParam(r, "address"))
	if err != nil {
		h.writeError(w, "invalid wallet address", http.StatusBadRequest)
		return
	}

	if h.wallets != nil {
		if snap, ok := h.wallets.Snapshot(address); ok {
			h.writeJSON(w, http.StatusOK, snap)
			return
		}
	}

	if h.store != nil {
		snap, err := h.store.WalletSnapshot(r.Context(), address)
		switch {
		case err == nil:
			h.writeJSON(w, http.StatusOK, snap)
			return
		case !errors.Is(err, storage.ErrNotFound):
			h.logger.Error("wallet-snapshot-failed", zap.String("wallet", address), zap.Error(err))
			h.writeError(w, "failed to load wallet", http.StatusInternalServerError)
			return
		}
	}

	h.writeError(w, "wallet not found", http.StatusNotFound)
}

// HandleMovement handles GET /api/markets/{marketID}/movement?outcome=&window=.
// Without an outcome every outcome of the known market is measured.
func (h *APIHandler) HandleMovement(w http.ResponseWriter, r *http.Request) {
	marketID := chi.URLParam(r, "marketID")
	params := r.URL.Query()

	window := h.window
	if raw := params.Get("window"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			h.writeError(w, "window must be a positive duration", http.StatusBadRequest)
			return
		}
		window = parsed
	}

	resp := MovementResponse{MarketID: marketID, Window: window.String(), Movements: []pricehistory.Movement{}}

	var outcomes []string
	if outcome := params.Get("outcome"); outcome != "" {
		outcomes = []string{outcome}
	}
	if h.markets != nil {
		if market, ok := h.markets.Market(marketID); ok {
			resp.Title = market.Title
			if len(outcomes) == 0 {
				for _, o := range market.Outcomes {
					outcomes = append(outcomes, o.Name)
				}
			}
		}
	}
	if len(outcomes) == 0 {
		h.writeError(w, "unknown market, pass an outcome", http.StatusNotFound)
		return
	}

	now := h.now()
	for _, outcome := range outcomes {
		if m, ok := h.prices.MovementOver(marketID, outcome, window, now); ok {
			resp.Movements = append(resp.Movements, m)
		}
	}
	if len(resp.Movements) == 0 {
		h.writeError(w, "not enough price samples in window", http.StatusNotFound)
		return
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// parseSince accepts a duration ("6h") or an RFC3339 timestamp.
func (h *APIHandler) parseSince(raw string) (time.Time, error) {
	if raw == "" {
		return h.now().Add(-defaultSince), nil
	}
	if d, err := time.ParseDuration(raw); err == nil && d > 0 {
		return h.now().Add(-d), nil
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, errors.New("since must be a duration or RFC3339 timestamp")
	}
	return ts, nil
}

func (h *APIHandler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		h.logger.Error("failed-to-encode-response", zap.Error(err))
	}
}

// writeError writes a JSON error response.
func (h *APIHandler) writeError(w http.ResponseWriter, message string, statusCode int) {
	h.writeJSON(w, statusCode, ErrorResponse{Error: message})
}
