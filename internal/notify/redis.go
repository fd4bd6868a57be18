package notify

import (
	"context"
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/mselser95/polymarket-surveillance/pkg/types"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// publisher is the subset of *redis.Client used for delivery.
type publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Close() error
}

// RedisNotifier publishes alert JSON on a Redis pub/sub channel.
type RedisNotifier struct {
	client  publisher
	channel string
	logger  *zap.Logger
}

// RedisConfig holds Redis notifier configuration.
type RedisConfig struct {
	URL     string
	Channel string
	Logger  *zap.Logger
}

// NewRedisNotifier connects to Redis and verifies the connection.
func NewRedisNotifier(ctx context.Context, cfg *RedisConfig) (*RedisNotifier, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if cfg.Channel == "" {
		return nil, fmt.Errorf("channel cannot be empty")
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	err = client.Ping(ctx).Err()
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	cfg.Logger.Info("redis-notifier-connected",
		zap.String("addr", opts.Addr),
		zap.String("channel", cfg.Channel))

	return &RedisNotifier{
		client:  client,
		channel: cfg.Channel,
		logger:  cfg.Logger,
	}, nil
}

// Name returns "redis".
func (r *RedisNotifier) Name() string {
	return "redis"
}

// Notify publishes the alert. Having no subscribers is not an error.
func (r *RedisNotifier) Notify(ctx context.Context, alert *types.Alert) error {
	body, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	receivers, err := r.client.Publish(ctx, r.channel, body).Result()
	if err != nil {
		return fmt.Errorf("publish alert: %w", err)
	}

	r.logger.Debug("alert-published",
		zap.String("alert-id", alert.ID),
		zap.String("channel", r.channel),
		zap.Int64("receivers", receivers))

	return nil
}

// Close closes the Redis client.
func (r *RedisNotifier) Close() error {
	return r.client.Close()
}
