// Package jobs runs the periodic maintenance work of the surveillance
// engine: retention pruning, aggregate snapshots and the daily top
// performer report.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mselser95/polymarket-surveillance/internal/ledger"
	"github.com/mselser95/polymarket-surveillance/internal/pricehistory"
	"github.com/mselser95/polymarket-surveillance/internal/reaction"
	"github.com/mselser95/polymarket-surveillance/internal/storage"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const defaultJobTimeout = 5 * time.Minute

// Config holds scheduler configuration. Empty schedules disable a job.
type Config struct {
	Storage   storage.Storage
	Ledger    *ledger.Ledger
	Prices    *pricehistory.Tracker
	Reactions *reaction.Detector // optional
	History   HistoryProvider    // optional, disables the report when nil

	RetentionTrades time.Duration
	RetentionAlerts time.Duration
	RetentionPrices time.Duration
	// ReactionRetention bounds the in-memory trades kept for reaction
	// windows; it should cover the longest reaction window.
	ReactionRetention time.Duration

	RetentionSchedule string
	SnapshotSchedule  string
	ReportSchedule    string

	Report  ReportQuery
	Timeout time.Duration
	Now     func() time.Time
	Logger  *zap.Logger
}

// Scheduler owns the cron runner and the job bodies.
type Scheduler struct {
	cfg  Config
	cron *cron.Cron

	mu           sync.Mutex
	lastSnapshot time.Time

	now    func() time.Time
	logger *zap.Logger
}

// New creates a scheduler and registers every configured job.
func New(cfg *Config) (*Scheduler, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.Storage == nil {
		return nil, errors.New("storage cannot be nil")
	}
	if cfg.Ledger == nil || cfg.Prices == nil {
		return nil, errors.New("ledger and price tracker are required")
	}

	c := *cfg
	if c.Timeout <= 0 {
		c.Timeout = defaultJobTimeout
	}
	now := c.Now
	if now == nil {
		now = time.Now
	}

	s := &Scheduler{
		cfg:    c,
		cron:   cron.New(cron.WithParser(cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor))),
		now:    now,
		logger: c.Logger,
	}

	jobs := []struct {
		name     string
		schedule string
		run      func(ctx context.Context) error
	}{
		{name: "retention", schedule: c.RetentionSchedule, run: s.runPrune},
		{name: "snapshot", schedule: c.SnapshotSchedule, run: s.Snapshot},
		{name: "report", schedule: c.ReportSchedule, run: s.runReport},
	}
	for _, job := range jobs {
		if job.schedule == "" {
			continue
		}
		if job.name == "report" && c.History == nil {
			s.logger.Info("report-job-disabled", zap.String("reason", "no wallet history provider"))
			continue
		}
		_, err := s.cron.AddFunc(job.schedule, s.wrap(job.name, job.run))
		if err != nil {
			return nil, fmt.Errorf("schedule %s job %q: %w", job.name, job.schedule, err)
		}
	}

	return s, nil
}

// Start starts the cron runner in its own goroutine.
func (s *Scheduler) Start() {
	s.logger.Info("jobs-starting", zap.Int("jobs", len(s.cron.Entries())))
	s.cron.Start()
}

// Stop stops scheduling and waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info("jobs-stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for running jobs: %w", ctx.Err())
	}
}

func (s *Scheduler) wrap(name string, run func(ctx context.Context) error) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeout)
		defer cancel()

		start := time.Now()
		err := run(ctx)
		JobDurationSeconds.WithLabelValues(name).Observe(time.Since(start).Seconds())
		if err != nil {
			JobRunsTotal.WithLabelValues(name, "error").Inc()
			s.logger.Error("job-failed", zap.String("job", name), zap.Error(err))
			return
		}
		JobRunsTotal.WithLabelValues(name, "ok").Inc()
	}
}

func (s *Scheduler) runPrune(ctx context.Context) error {
	_, err := s.Prune(ctx)
	return err
}

func (s *Scheduler) runReport(ctx context.Context) error {
	_, err := s.Report(ctx)
	return err
}

// Prune deletes persisted records past their retention and drops
// in-memory reaction trades past ReactionRetention.
func (s *Scheduler) Prune(ctx context.Context) (*storage.PruneResult, error) {
	now := s.now()

	cutoffs := storage.PruneCutoffs{}
	if s.cfg.RetentionTrades > 0 {
		cutoffs.Trades = now.Add(-s.cfg.RetentionTrades)
	}
	if s.cfg.RetentionAlerts > 0 {
		cutoffs.Alerts = now.Add(-s.cfg.RetentionAlerts)
	}
	if s.cfg.RetentionPrices > 0 {
		cutoffs.Prices = now.Add(-s.cfg.RetentionPrices)
	}

	result, err := s.cfg.Storage.Prune(ctx, cutoffs)
	if err != nil {
		return nil, fmt.Errorf("prune storage: %w", err)
	}
	RecordsPrunedTotal.WithLabelValues("trade").Add(float64(result.Trades))
	RecordsPrunedTotal.WithLabelValues("alert").Add(float64(result.Alerts))
	RecordsPrunedTotal.WithLabelValues("price").Add(float64(result.Prices))

	reactions := 0
	if s.cfg.Reactions != nil && s.cfg.ReactionRetention > 0 {
		reactions = s.cfg.Reactions.Prune(now.Add(-s.cfg.ReactionRetention))
	}

	s.logger.Info("retention-complete",
		zap.Int64("trades", result.Trades),
		zap.Int64("alerts", result.Alerts),
		zap.Int64("prices", result.Prices),
		zap.Int("reaction-trades", reactions))

	return result, nil
}

// Snapshot writes every wallet aggregate and the price samples recorded
// since the previous snapshot.
func (s *Scheduler) Snapshot(ctx context.Context) error {
	now := s.now()

	s.mu.Lock()
	since := s.lastSnapshot
	s.mu.Unlock()

	wallets := s.cfg.Ledger.Snapshots()
	if len(wallets) > 0 {
		err := s.cfg.Storage.SaveWalletSnapshots(ctx, wallets)
		if err != nil {
			return fmt.Errorf("save wallet snapshots: %w", err)
		}
	}

	points := s.cfg.Prices.Points(since)
	if len(points) > 0 {
		err := s.cfg.Storage.SavePricePoints(ctx, points)
		if err != nil {
			return fmt.Errorf("save price points: %w", err)
		}
	}

	s.mu.Lock()
	s.lastSnapshot = now
	s.mu.Unlock()

	SnapshotWalletsSaved.Set(float64(len(wallets)))
	s.logger.Info("snapshot-complete",
		zap.Int("wallets", len(wallets)),
		zap.Int("price-points", len(points)))

	return nil
}

// Report computes and logs the historical top performers.
func (s *Scheduler) Report(ctx context.Context) ([]Performer, error) {
	if s.cfg.History == nil {
		return nil, errors.New("no wallet history provider")
	}

	performers, err := TopPerformers(ctx, s.cfg.Storage, s.cfg.History, s.cfg.Report, s.now(), s.logger)
	if err != nil {
		return nil, err
	}

	TopPerformersFound.Set(float64(len(performers)))
	s.logger.Info("top-performers-report", zap.Int("wallets", len(performers)))
	for i := range performers {
		p := &performers[i]
		s.logger.Info("top-performer",
			zap.Int("rank", i+1),
			zap.String("wallet", p.Address),
			zap.String("win-rate", fmt.Sprintf("%.0f%% (%d/%d)", p.WinRate*100, p.WinningMarkets, p.ResolvedMarkets)),
			zap.Int("recent-trades", p.RecentTrades),
			zap.String("recent-volume", "$"+humanize.Comma(int64(p.RecentVolumeUSD))))
	}

	return performers, nil
}
