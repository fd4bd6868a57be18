package notify

import (
	"context"
	"fmt"
	"sync"

	json "github.com/goccy/go-json"
	"github.com/mselser95/polymarket-surveillance/pkg/types"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// channel is the subset of *amqp.Channel used for delivery.
type channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPNotifier publishes persistent alert messages to a durable queue.
type AMQPNotifier struct {
	conn     *amqp.Connection
	ch       channel
	queue    string
	declared bool
	mu       sync.Mutex
	logger   *zap.Logger
}

// AMQPConfig holds AMQP notifier configuration.
type AMQPConfig struct {
	URL    string
	Queue  string
	Logger *zap.Logger
}

// NewAMQPNotifier dials the broker and opens a channel.
func NewAMQPNotifier(cfg *AMQPConfig) (*AMQPNotifier, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if cfg.Queue == "" {
		return nil, fmt.Errorf("queue cannot be empty")
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	cfg.Logger.Info("amqp-notifier-connected", zap.String("queue", cfg.Queue))

	return &AMQPNotifier{
		conn:   conn,
		ch:     ch,
		queue:  cfg.Queue,
		logger: cfg.Logger,
	}, nil
}

// Name returns "amqp".
func (a *AMQPNotifier) Name() string {
	return "amqp"
}

// Notify declares the queue on first use and publishes the alert.
func (a *AMQPNotifier) Notify(ctx context.Context, alert *types.Alert) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.declared {
		_, err := a.ch.QueueDeclare(
			a.queue,
			true,  // durable
			false, // autoDelete
			false, // exclusive
			false, // noWait
			nil,   // args
		)
		if err != nil {
			return fmt.Errorf("declare queue: %w", err)
		}
		a.declared = true
	}

	body, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	err = a.ch.PublishWithContext(ctx,
		"",      // exchange
		a.queue, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    alert.ID,
			Timestamp:    alert.CreatedAt,
			Type:         string(alert.Kind),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish alert: %w", err)
	}

	return nil
}

// Close closes the channel and the connection.
func (a *AMQPNotifier) Close() error {
	err := a.ch.Close()
	if a.conn != nil {
		connErr := a.conn.Close()
		if err == nil {
			err = connErr
		}
	}
	return err
}
