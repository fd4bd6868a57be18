package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	_ "github.com/lib/pq"
	"github.com/mselser95/polymarket-surveillance/pkg/types"
	"go.uber.org/zap"
)

// PostgresStorage implements Storage using PostgreSQL.
type PostgresStorage struct {
	db     *sql.DB
	logger *zap.Logger
}

// PostgresConfig holds PostgreSQL configuration.
type PostgresConfig struct {
	Host        string
	Port        string
	User        string
	Password    string
	Database    string
	SSLMode     string
	AutoMigrate bool
	Logger      *zap.Logger
}

// DSN returns the lib/pq connection string.
func (c *PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// OpenPostgres opens and pings a database.
func OpenPostgres(cfg *PostgresConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Test connection
	err = db.Ping()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return db, nil
}

// NewPostgresStorage creates a new PostgreSQL storage, applying migrations
// first when AutoMigrate is set.
func NewPostgresStorage(cfg *PostgresConfig) (*PostgresStorage, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	db, err := OpenPostgres(cfg)
	if err != nil {
		return nil, err
	}

	if cfg.AutoMigrate {
		migrator, err := NewMigrator(db, cfg.Logger)
		if err != nil {
			db.Close()
			return nil, err
		}
		err = migrator.Up()
		if err != nil {
			db.Close()
			return nil, err
		}
	}

	cfg.Logger.Info("postgres-storage-connected",
		zap.String("host", cfg.Host),
		zap.String("database", cfg.Database))

	return &PostgresStorage{
		db:     db,
		logger: cfg.Logger,
	}, nil
}

// SaveTrade inserts a trade; a repeated tx hash is ignored.
func (p *PostgresStorage) SaveTrade(ctx context.Context, trade *types.Trade) error {
	query := `
		INSERT INTO trades (
			tx_hash, wallet_address, market_id, market_title, side, outcome, price, size_usd, traded_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (tx_hash) DO NOTHING
	`

	_, err := p.db.ExecContext(ctx, query,
		trade.TxHash,
		trade.WalletAddress,
		trade.MarketID,
		trade.MarketTitle,
		string(trade.Side),
		trade.Outcome,
		trade.Price,
		trade.SizeUSD,
		trade.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert trade: %w", err)
	}

	return nil
}

// SaveAlert inserts an alert; a repeated id is ignored.
func (p *PostgresStorage) SaveAlert(ctx context.Context, alert *types.Alert) error {
	err := alert.Validate()
	if err != nil {
		return fmt.Errorf("save alert: %w", err)
	}

	reasons, err := json.Marshal(alert.Reasons)
	if err != nil {
		return fmt.Errorf("marshal reasons: %w", err)
	}
	evidence, err := json.Marshal(alert.Evidence)
	if err != nil {
		return fmt.Errorf("marshal evidence: %w", err)
	}

	query := `
		INSERT INTO alerts (
			id, severity, kind, market_id, market_title, wallet_address,
			trade_ref, signal_ref, reasons, evidence, created_at, delivered
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO NOTHING
	`

	_, err = p.db.ExecContext(ctx, query,
		alert.ID,
		int(alert.Severity),
		string(alert.Kind),
		alert.MarketID,
		alert.MarketTitle,
		alert.WalletAddress,
		alert.TradeRef,
		alert.SignalRef,
		reasons,
		evidence,
		alert.CreatedAt,
		alert.Delivered,
	)
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}

	p.logger.Debug("alert-stored",
		zap.String("alert-id", alert.ID),
		zap.String("kind", string(alert.Kind)))

	return nil
}

// MarkAlertDelivered sets the delivered flag.
func (p *PostgresStorage) MarkAlertDelivered(ctx context.Context, id string) error {
	res, err := p.db.ExecContext(ctx,
		`UPDATE alerts SET delivered = TRUE, delivered_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark alert delivered: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark alert delivered: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("alert %s: %w", id, ErrNotFound)
	}

	return nil
}

// SaveWalletSnapshots upserts the latest snapshot per wallet in one transaction.
func (p *PostgresStorage) SaveWalletSnapshots(ctx context.Context, snapshots []types.WalletSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin snapshot tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO wallet_snapshots (address, snapshot, computed_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (address) DO UPDATE SET snapshot = EXCLUDED.snapshot, computed_at = EXCLUDED.computed_at
	`)
	if err != nil {
		return fmt.Errorf("prepare snapshot upsert: %w", err)
	}
	defer stmt.Close()

	for i := range snapshots {
		snap := &snapshots[i]
		body, err := json.Marshal(snap)
		if err != nil {
			return fmt.Errorf("marshal snapshot %s: %w", snap.Address, err)
		}
		_, err = stmt.ExecContext(ctx, snap.Address, body, snap.ComputedAt)
		if err != nil {
			return fmt.Errorf("upsert snapshot %s: %w", snap.Address, err)
		}
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("commit snapshots: %w", err)
	}

	return nil
}

// SavePricePoints inserts price samples in one transaction.
func (p *PostgresStorage) SavePricePoints(ctx context.Context, points []types.PricePoint) error {
	if len(points) == 0 {
		return nil
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin price tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO price_points (market_id, outcome, price, observed_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("prepare price insert: %w", err)
	}
	defer stmt.Close()

	for i := range points {
		pt := &points[i]
		_, err = stmt.ExecContext(ctx, pt.MarketID, pt.Outcome, pt.Price, pt.Timestamp)
		if err != nil {
			return fmt.Errorf("insert price point: %w", err)
		}
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("commit price points: %w", err)
	}

	return nil
}

// Trades returns trades matching q, newest first.
func (p *PostgresStorage) Trades(ctx context.Context, q TradeQuery) ([]types.Trade, error) {
	where := newWhere()
	where.add("wallet_address = ?", q.Wallet, q.Wallet != "")
	where.add("market_id = ?", q.MarketID, q.MarketID != "")
	where.add("traded_at >= ?", q.Since, !q.Since.IsZero())
	where.add("traded_at <= ?", q.Until, !q.Until.IsZero())

	query := `SELECT tx_hash, wallet_address, market_id, market_title, side, outcome, price, size_usd, traded_at
		FROM trades` + where.sql() + ` ORDER BY traded_at DESC, tx_hash` + where.limit(q.Limit)

	rows, err := p.db.QueryContext(ctx, query, where.args...)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	var out []types.Trade
	for rows.Next() {
		var t types.Trade
		var side string
		err = rows.Scan(&t.TxHash, &t.WalletAddress, &t.MarketID, &t.MarketTitle, &side, &t.Outcome,
			&t.Price, &t.SizeUSD, &t.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		t.Side = types.Side(side)
		t.Timestamp = t.Timestamp.UTC()
		out = append(out, t)
	}

	return out, rows.Err()
}

const alertColumns = `id, severity, kind, market_id, market_title, wallet_address, trade_ref, signal_ref,
	reasons, evidence, created_at, delivered`

// Alerts returns alerts matching q, newest first.
func (p *PostgresStorage) Alerts(ctx context.Context, q AlertQuery) ([]types.Alert, error) {
	where := newWhere()
	where.add("created_at >= ?", q.Since, !q.Since.IsZero())
	where.add("created_at <= ?", q.Until, !q.Until.IsZero())
	where.add("severity >= ?", int(q.MinSeverity), q.MinSeverity.Valid())
	where.add("kind = ?", string(q.Kind), q.Kind != "")
	where.add("market_id = ?", q.MarketID, q.MarketID != "")
	where.add("wallet_address = ?", q.Wallet, q.Wallet != "")
	where.add("delivered = ?", false, q.Undelivered)

	query := `SELECT ` + alertColumns + ` FROM alerts` + where.sql() +
		` ORDER BY created_at DESC, id` + where.limit(q.Limit)

	rows, err := p.db.QueryContext(ctx, query, where.args...)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	var out []types.Alert
	for rows.Next() {
		var a types.Alert
		var severity int
		var kind string
		var reasons, evidence []byte
		err = rows.Scan(&a.ID, &severity, &kind, &a.MarketID, &a.MarketTitle, &a.WalletAddress,
			&a.TradeRef, &a.SignalRef, &reasons, &evidence, &a.CreatedAt, &a.Delivered)
		if err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		a.Severity = types.Severity(severity)
		a.Kind = types.AlertKind(kind)
		a.CreatedAt = a.CreatedAt.UTC()
		err = json.Unmarshal(reasons, &a.Reasons)
		if err != nil {
			return nil, fmt.Errorf("decode reasons of %s: %w", a.ID, err)
		}
		err = json.Unmarshal(evidence, &a.Evidence)
		if err != nil {
			return nil, fmt.Errorf("decode evidence of %s: %w", a.ID, err)
		}
		out = append(out, a)
	}

	return out, rows.Err()
}

// AlertStats aggregates alerts created at or after since.
func (p *PostgresStorage) AlertStats(ctx context.Context, since time.Time, top int) (*AlertStats, error) {
	stats := &AlertStats{
		BySeverity: make(map[string]int),
		ByKind:     make(map[string]int),
	}

	rows, err := p.db.QueryContext(ctx, `
		SELECT severity, kind, COUNT(*) FROM alerts
		WHERE created_at >= $1
		GROUP BY severity, kind
	`, since)
	if err != nil {
		return nil, fmt.Errorf("query alert counts: %w", err)
	}
	for rows.Next() {
		var severity, n int
		var kind string
		err = rows.Scan(&severity, &kind, &n)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan alert counts: %w", err)
		}
		stats.Total += n
		stats.BySeverity[types.Severity(severity).String()] += n
		stats.ByKind[kind] += n
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return nil, err
	}

	stats.TopWallets, err = p.topCounts(ctx, `
		SELECT wallet_address, '', COUNT(*) AS n FROM alerts
		WHERE created_at >= $1 AND wallet_address <> ''
		GROUP BY wallet_address ORDER BY n DESC, wallet_address LIMIT $2
	`, since, top)
	if err != nil {
		return nil, err
	}

	stats.TopMarkets, err = p.topCounts(ctx, `
		SELECT market_id, MAX(market_title), COUNT(*) AS n FROM alerts
		WHERE created_at >= $1
		GROUP BY market_id ORDER BY n DESC, market_id LIMIT $2
	`, since, top)
	if err != nil {
		return nil, err
	}

	return stats, nil
}

func (p *PostgresStorage) topCounts(ctx context.Context, query string, since time.Time, top int) ([]Count, error) {
	if top <= 0 {
		top = 10
	}

	rows, err := p.db.QueryContext(ctx, query, since, top)
	if err != nil {
		return nil, fmt.Errorf("query top counts: %w", err)
	}
	defer rows.Close()

	var out []Count
	for rows.Next() {
		var c Count
		err = rows.Scan(&c.Key, &c.Label, &c.Count)
		if err != nil {
			return nil, fmt.Errorf("scan top counts: %w", err)
		}
		out = append(out, c)
	}

	return out, rows.Err()
}

// WalletSnapshot returns the latest snapshot of a wallet.
func (p *PostgresStorage) WalletSnapshot(ctx context.Context, address string) (*types.WalletSnapshot, error) {
	var body []byte
	err := p.db.QueryRowContext(ctx,
		`SELECT snapshot FROM wallet_snapshots WHERE address = $1`, address).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("wallet %s: %w", address, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query wallet snapshot: %w", err)
	}

	var snap types.WalletSnapshot
	err = json.Unmarshal(body, &snap)
	if err != nil {
		return nil, fmt.Errorf("decode wallet snapshot: %w", err)
	}

	return &snap, nil
}

// WalletSnapshots returns every latest snapshot ordered by address.
func (p *PostgresStorage) WalletSnapshots(ctx context.Context) ([]types.WalletSnapshot, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT snapshot FROM wallet_snapshots ORDER BY address`)
	if err != nil {
		return nil, fmt.Errorf("query wallet snapshots: %w", err)
	}
	defer rows.Close()

	var out []types.WalletSnapshot
	for rows.Next() {
		var body []byte
		err = rows.Scan(&body)
		if err != nil {
			return nil, fmt.Errorf("scan wallet snapshot: %w", err)
		}
		var snap types.WalletSnapshot
		err = json.Unmarshal(body, &snap)
		if err != nil {
			p.logger.Warn("wallet-snapshot-skipped-undecodable", zap.Error(err))
			continue
		}
		out = append(out, snap)
	}

	return out, rows.Err()
}

// PricePoints returns samples at or after since, oldest first.
func (p *PostgresStorage) PricePoints(ctx context.Context, since time.Time) ([]types.PricePoint, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT market_id, outcome, price, observed_at FROM price_points
		WHERE observed_at >= $1
		ORDER BY observed_at, market_id, outcome
	`, since)
	if err != nil {
		return nil, fmt.Errorf("query price points: %w", err)
	}
	defer rows.Close()

	var out []types.PricePoint
	for rows.Next() {
		var pt types.PricePoint
		err = rows.Scan(&pt.MarketID, &pt.Outcome, &pt.Price, &pt.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("scan price point: %w", err)
		}
		pt.Timestamp = pt.Timestamp.UTC()
		out = append(out, pt)
	}

	return out, rows.Err()
}

// ActiveWallets returns wallets with at least minTrades trades since,
// busiest first.
func (p *PostgresStorage) ActiveWallets(ctx context.Context, since time.Time, minTrades int) ([]WalletActivity, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT wallet_address, COUNT(*) AS n, SUM(size_usd), COUNT(DISTINCT market_id)
		FROM trades
		WHERE traded_at >= $1
		GROUP BY wallet_address
		HAVING COUNT(*) >= $2
		ORDER BY n DESC, wallet_address
	`, since, minTrades)
	if err != nil {
		return nil, fmt.Errorf("query active wallets: %w", err)
	}
	defer rows.Close()

	var out []WalletActivity
	for rows.Next() {
		var w WalletActivity
		err = rows.Scan(&w.Address, &w.Trades, &w.VolumeUSD, &w.Markets)
		if err != nil {
			return nil, fmt.Errorf("scan active wallet: %w", err)
		}
		out = append(out, w)
	}

	return out, rows.Err()
}

// Prune deletes records older than the cutoffs.
func (p *PostgresStorage) Prune(ctx context.Context, cutoffs PruneCutoffs) (*PruneResult, error) {
	result := &PruneResult{}

	steps := []struct {
		query  string
		cutoff time.Time
		count  *int64
	}{
		{`DELETE FROM trades WHERE traded_at < $1`, cutoffs.Trades, &result.Trades},
		{`DELETE FROM alerts WHERE created_at < $1`, cutoffs.Alerts, &result.Alerts},
		{`DELETE FROM price_points WHERE observed_at < $1`, cutoffs.Prices, &result.Prices},
	}

	for _, step := range steps {
		if step.cutoff.IsZero() {
			continue
		}
		res, err := p.db.ExecContext(ctx, step.query, step.cutoff)
		if err != nil {
			return result, fmt.Errorf("prune: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return result, fmt.Errorf("prune rows affected: %w", err)
		}
		*step.count = n
	}

	p.logger.Info("storage-pruned",
		zap.Int64("trades", result.Trades),
		zap.Int64("alerts", result.Alerts),
		zap.Int64("prices", result.Prices))

	return result, nil
}

// DB exposes the connection for migrations.
func (p *PostgresStorage) DB() *sql.DB {
	return p.db
}

// Close closes the database connection.
func (p *PostgresStorage) Close() error {
	p.logger.Info("closing-postgres-storage")
	return p.db.Close()
}

// whereClause builds numbered placeholders for optional filters.
type whereClause struct {
	parts []string
	args  []interface{}
}

func newWhere() *whereClause {
	return &whereClause{}
}

func (w *whereClause) add(cond string, arg interface{}, enabled bool) {
	if !enabled {
		return
	}
	w.args = append(w.args, arg)
	w.parts = append(w.parts, strings.Replace(cond, "?", fmt.Sprintf("$%d", len(w.args)), 1))
}

func (w *whereClause) sql() string {
	if len(w.parts) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.parts, " AND ")
}

func (w *whereClause) limit(n int) string {
	if n <= 0 {
		return ""
	}
	w.args = append(w.args, n)
	return fmt.Sprintf(" LIMIT $%d", len(w.args))
}
