package websocket

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/mselser95/polymarket-surveillance/pkg/backoff"
	"github.com/mselser95/polymarket-surveillance/pkg/types"
	"go.uber.org/zap"
)

// ErrNotConnected is returned by FetchTrades when the stream is down and
// nothing is buffered.
var ErrNotConnected = errors.New("live trade stream not connected")

// Manager keeps one connection to the Polymarket real-time data socket and
// buffers the trades it publishes until the next FetchTrades call.
type Manager struct {
	url        string
	conn       *websocket.Conn
	logger     *zap.Logger
	backoff    *backoff.Backoff
	config     Config
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	mu         sync.RWMutex
	writeMu    sync.Mutex
	bufMu      sync.Mutex
	buffer     []types.Trade
	connected  atomic.Bool
	lastPong   atomic.Int64
	connection atomic.Int64 // Unix timestamp of connection start
}

// Config holds live trade stream configuration.
type Config struct {
	URL                   string
	DialTimeout           time.Duration
	PingInterval          time.Duration
	ReconnectInitialDelay time.Duration
	ReconnectMaxDelay     time.Duration
	ReconnectBackoffMult  float64
	MessageBufferSize     int // max trades held between drains
	Logger                *zap.Logger
}

// envelope is the real-time data socket frame.
type envelope struct {
	Topic     string          `json:"topic"`
	Type      string          `json:"type"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

var subscribeMessage = map[string]interface{}{
	"action": "subscribe",
	"subscriptions": []map[string]string{
		{"topic": "activity", "type": "trades"},
	},
}

// New creates a new live trade stream manager.
func New(cfg Config) (*Manager, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("url cannot be empty")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if cfg.MessageBufferSize <= 0 {
		cfg.MessageBufferSize = 10000
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 10 * time.Second
	}

	bo, err := backoff.New(backoff.Config{
		InitialDelay:      cfg.ReconnectInitialDelay,
		MaxDelay:          cfg.ReconnectMaxDelay,
		BackoffMultiplier: cfg.ReconnectBackoffMult,
		JitterPercent:     0.2,
	})
	if err != nil {
		return nil, fmt.Errorf("reconnect backoff: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		url:     cfg.URL,
		logger:  cfg.Logger,
		backoff: bo,
		config:  cfg,
		ctx:     ctx,
		cancel:  cancel,
		buffer:  make([]types.Trade, 0, 64),
	}, nil
}

// Start connects, subscribes to the trade topic and starts the loops.
func (m *Manager) Start() error {
	m.logger.Info("live-trades-starting", zap.String("url", m.url))

	err := m.connect(m.ctx)
	if err != nil {
		return fmt.Errorf("initial connection: %w", err)
	}

	m.wg.Add(3)
	go m.readLoop()
	go m.pingLoop()
	go m.reconnectLoop()

	return nil
}

// connect dials the socket and sends the trade subscription.
func (m *Manager) connect(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: m.config.DialTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, m.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	conn.SetPongHandler(func(string) error {
		m.lastPong.Store(time.Now().Unix())
		return nil
	})

	m.writeMu.Lock()
	err = conn.WriteJSON(subscribeMessage)
	m.writeMu.Unlock()
	if err != nil {
		conn.Close()
		return fmt.Errorf("write subscribe message: %w", err)
	}

	m.mu.Lock()
	m.conn = conn
	m.mu.Unlock()

	now := time.Now()
	m.connected.Store(true)
	m.lastPong.Store(now.Unix())
	m.connection.Store(now.Unix())
	StreamConnected.Set(1)

	m.logger.Info("live-trades-connected")

	return nil
}

// readLoop reads frames until the connection fails.
func (m *Manager) readLoop() {
	defer m.wg.Done()

	for {
		select {
		case <-m.ctx.Done():
			return
		default:
		}

		m.mu.RLock()
		conn := m.conn
		m.mu.RUnlock()

		if conn == nil {
			time.Sleep(100 * time.Millisecond)
			continue
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			if m.ctx.Err() == nil {
				m.logger.Warn("read-error", zap.Error(err))
			}

			startTime := m.connection.Load()
			if startTime > 0 {
				SessionDuration.Observe(time.Since(time.Unix(startTime, 0)).Seconds())
			}

			m.connected.Store(false)
			StreamConnected.Set(0)
			return
		}

		m.handleMessage(message)
	}
}

// handleMessage parses one frame and buffers its trade, if any.
func (m *Manager) handleMessage(message []byte) {
	if len(message) < 10 {
		FramesReceivedTotal.WithLabelValues("heartbeat").Inc()
		return
	}

	var env envelope
	err := json.Unmarshal(message, &env)
	if err != nil {
		TradesDroppedTotal.WithLabelValues("unparseable").Inc()
		m.logger.Debug("live-trades-unparseable-message",
			zap.Error(err),
			zap.Int("bytes", len(message)))
		return
	}

	FramesReceivedTotal.WithLabelValues(env.Type).Inc()

	if env.Topic != "activity" || (env.Type != "trades" && env.Type != "orders_matched") {
		return
	}

	var wire types.DataAPITrade
	err = json.Unmarshal(env.Payload, &wire)
	if err != nil {
		TradesDroppedTotal.WithLabelValues("unparseable").Inc()
		return
	}

	trade, err := wire.ToTrade()
	if err != nil {
		TradesDroppedTotal.WithLabelValues("malformed").Inc()
		m.logger.Debug("live-trade-skipped-malformed",
			zap.String("tx-hash", wire.TransactionHash),
			zap.Error(err))
		return
	}

	m.bufMu.Lock()
	if len(m.buffer) >= m.config.MessageBufferSize {
		m.buffer = m.buffer[1:]
		TradesDroppedTotal.WithLabelValues("buffer_full").Inc()
	}
	m.buffer = append(m.buffer, trade)
	BufferedTrades.Set(float64(len(m.buffer)))
	m.bufMu.Unlock()
}

// Name identifies the stream as a trade source.
func (m *Manager) Name() string {
	return "live-stream"
}

// FetchTrades drains the trades buffered since the previous call, oldest first.
func (m *Manager) FetchTrades(ctx context.Context) ([]types.Trade, error) {
	err := ctx.Err()
	if err != nil {
		return nil, err
	}

	m.bufMu.Lock()
	trades := m.buffer
	m.buffer = make([]types.Trade, 0, cap(trades))
	BufferedTrades.Set(0)
	m.bufMu.Unlock()

	if len(trades) == 0 && !m.connected.Load() {
		return nil, ErrNotConnected
	}

	return trades, nil
}

// Connected reports whether the socket is currently up.
func (m *Manager) Connected() bool {
	return m.connected.Load()
}

// pingLoop sends periodic PING control frames.
func (m *Manager) pingLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			if !m.connected.Load() {
				continue
			}

			m.mu.RLock()
			conn := m.conn
			m.mu.RUnlock()

			if conn == nil {
				continue
			}

			m.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(time.Second))
			m.writeMu.Unlock()
			if err != nil {
				m.logger.Warn("ping-error", zap.Error(err))
			}
		}
	}
}

// reconnectLoop re-dials with backoff whenever the read loop exits.
func (m *Manager) reconnectLoop() {
	defer m.wg.Done()

	for {
		select {
		case <-m.ctx.Done():
			return
		default:
		}

		if m.connected.Load() {
			time.Sleep(time.Second)
			continue
		}

		delay := m.backoff.Next()
		m.logger.Warn("connection-lost-initiating-reconnect", zap.Duration("backoff", delay))
		StreamReconnectsTotal.WithLabelValues("attempt").Inc()

		err := backoff.Sleep(m.ctx, delay)
		if err != nil {
			return
		}

		err = m.connect(m.ctx)
		if err != nil {
			m.logger.Warn("reconnection-failed", zap.Error(err))
			StreamReconnectsTotal.WithLabelValues("failure").Inc()
			continue
		}

		m.backoff.Reset()
		m.logger.Info("reconnection-complete-restarting-read-loop")

		m.wg.Add(1)
		go m.readLoop()
	}
}

// Close gracefully closes the stream.
func (m *Manager) Close() error {
	m.logger.Info("closing-live-trades")

	m.cancel()

	m.mu.RLock()
	if m.conn != nil {
		m.conn.Close()
	}
	m.mu.RUnlock()

	m.wg.Wait()

	StreamConnected.Set(0)

	m.logger.Info("live-trades-closed")

	return nil
}
