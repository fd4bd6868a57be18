package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mselser95/polymarket-surveillance/pkg/backoff"
	"github.com/mselser95/polymarket-surveillance/pkg/types"
	"go.uber.org/zap"
)

// DeliveryRecorder persists the delivered flag.
type DeliveryRecorder interface {
	MarkAlertDelivered(ctx context.Context, id string) error
}

// Config holds dispatcher configuration.
type Config struct {
	Notifiers   []Notifier
	Recorder    DeliveryRecorder // optional
	MinSeverity types.Severity
	MaxAttempts int
	RetryDelay  time.Duration
	QueueSize   int
	Logger      *zap.Logger
}

// Dispatcher hands alerts at or above MinSeverity to every notifier on a
// background worker, retrying each sink a bounded number of times. An
// alert is marked delivered once every sink accepted it.
type Dispatcher struct {
	notifiers   []Notifier
	recorder    DeliveryRecorder
	minSeverity types.Severity
	maxAttempts int
	retryDelay  time.Duration
	logger      *zap.Logger

	queue  chan *types.Alert
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// New creates a dispatcher. Start must be called before alerts flow.
func New(cfg *Config) (*Dispatcher, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if cfg.MaxAttempts <= 0 {
		return nil, fmt.Errorf("max attempts must be positive, got %d", cfg.MaxAttempts)
	}
	if cfg.RetryDelay <= 0 {
		return nil, fmt.Errorf("retry delay must be positive, got %v", cfg.RetryDelay)
	}

	minSeverity := cfg.MinSeverity
	if !minSeverity.Valid() {
		minSeverity = types.SeverityLow
	}

	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 256
	}

	return &Dispatcher{
		notifiers:   cfg.Notifiers,
		recorder:    cfg.Recorder,
		minSeverity: minSeverity,
		maxAttempts: cfg.MaxAttempts,
		retryDelay:  cfg.RetryDelay,
		logger:      cfg.Logger,
		queue:       make(chan *types.Alert, queueSize),
	}, nil
}

// Start starts the delivery worker. Alerts already queued when ctx ends
// are still delivered; Close waits for them.
func (d *Dispatcher) Start(ctx context.Context) {
	d.logger.Info("dispatcher-starting",
		zap.Int("notifiers", len(d.notifiers)),
		zap.String("min-severity", d.minSeverity.String()))

	d.wg.Add(1)
	go d.deliveryLoop(context.WithoutCancel(ctx))
}

func (d *Dispatcher) deliveryLoop(ctx context.Context) {
	defer d.wg.Done()

	for alert := range d.queue {
		QueueDepth.Set(float64(len(d.queue)))

		err := d.Deliver(ctx, alert)
		if err != nil {
			d.logger.Warn("alert-delivery-incomplete",
				zap.String("alert-id", alert.ID),
				zap.Error(err))
		}
	}

	d.logger.Info("dispatcher-stopped")
}

// Submit queues an alert for delivery. It returns false when the alert is
// below the notification minimum, the queue is full or the dispatcher is
// closed.
func (d *Dispatcher) Submit(alert *types.Alert) bool {
	if alert.Severity < d.minSeverity {
		AlertsBelowThresholdTotal.Inc()
		return false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return false
	}

	select {
	case d.queue <- alert:
		QueueDepth.Set(float64(len(d.queue)))
		return true
	default:
		QueueDroppedTotal.Inc()
		d.logger.Warn("alert-dropped-queue-full", zap.String("alert-id", alert.ID))
		return false
	}
}

// Deliver sends one alert to every notifier synchronously and records
// delivery when all succeed.
func (d *Dispatcher) Deliver(ctx context.Context, alert *types.Alert) error {
	var errs []error
	for _, n := range d.notifiers {
		err := d.deliverTo(ctx, n, alert)
		if err != nil {
			DeliveryFailuresTotal.WithLabelValues(n.Name()).Inc()
			errs = append(errs, fmt.Errorf("%s: %w", n.Name(), err))
			continue
		}
		AlertsDeliveredTotal.WithLabelValues(n.Name()).Inc()
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	if d.recorder != nil {
		err := d.recorder.MarkAlertDelivered(ctx, alert.ID)
		if err != nil {
			d.logger.Warn("mark-delivered-failed",
				zap.String("alert-id", alert.ID),
				zap.Error(err))
		}
	}

	return nil
}

func (d *Dispatcher) deliverTo(ctx context.Context, n Notifier, alert *types.Alert) error {
	retry, err := backoff.New(backoff.Config{
		InitialDelay:      d.retryDelay,
		MaxDelay:          d.retryDelay * 8,
		BackoffMultiplier: 2.0,
		JitterPercent:     0.2,
	})
	if err != nil {
		return err
	}

	attempt := 0
	return retry.Retry(ctx, d.maxAttempts, func(ctx context.Context) error {
		attempt++
		err := n.Notify(ctx, alert)
		if err != nil {
			d.logger.Debug("notify-attempt-failed",
				zap.String("sink", n.Name()),
				zap.String("alert-id", alert.ID),
				zap.Int("attempt", attempt),
				zap.Error(err))
		}
		return err
	})
}

// Close stops accepting alerts, waits for queued ones and closes every
// notifier.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()

	var errs []error
	for _, n := range d.notifiers {
		err := n.Close()
		if err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", n.Name(), err))
		}
	}
	return errors.Join(errs...)
}
