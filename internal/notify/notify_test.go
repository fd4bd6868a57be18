package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/mselser95/polymarket-surveillance/pkg/types"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeNotifier struct {
	name     string
	failures int

	mu     sync.Mutex
	calls  int
	got    []string
	closed bool
}

func (f *fakeNotifier) Name() string { return f.name }

func (f *fakeNotifier) Notify(ctx context.Context, alert *types.Alert) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	if f.calls <= f.failures {
		return errors.New("sink unavailable")
	}
	f.got = append(f.got, alert.ID)
	return nil
}

func (f *fakeNotifier) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeNotifier) delivered() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.got...)
}

type fakeRecorder struct {
	mu  sync.Mutex
	ids []string
}

func (r *fakeRecorder) MarkAlertDelivered(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, id)
	return nil
}

func (r *fakeRecorder) marked() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ids...)
}

func newAlert(id string, sev types.Severity) *types.Alert {
	return &types.Alert{
		ID:        id,
		Severity:  sev,
		Kind:      types.KindHugeBet,
		MarketID:  "m1",
		Reasons:   []string{"Huge $75,000 bet"},
		CreatedAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func newDispatcher(t *testing.T, recorder DeliveryRecorder, notifiers ...Notifier) *Dispatcher {
	t.Helper()

	d, err := New(&Config{
		Notifiers:   notifiers,
		Recorder:    recorder,
		MinSeverity: types.SeverityMedium,
		MaxAttempts: 3,
		RetryDelay:  time.Millisecond,
		Logger:      zap.NewNop(),
	})
	require.NoError(t, err)
	return d
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  *Config
	}{
		{name: "nil-config", cfg: nil},
		{name: "nil-logger", cfg: &Config{MaxAttempts: 1, RetryDelay: time.Second}},
		{name: "zero-attempts", cfg: &Config{RetryDelay: time.Second, Logger: zap.NewNop()}},
		{name: "zero-delay", cfg: &Config{MaxAttempts: 1, Logger: zap.NewNop()}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			assert.Error(t, err)
		})
	}
}

func TestDispatcher_DeliverRetriesThenRecords(t *testing.T) {
	sink := &fakeNotifier{name: "flaky", failures: 2}
	recorder := &fakeRecorder{}
	d := newDispatcher(t, recorder, sink)

	err := d.Deliver(context.Background(), newAlert("a1", types.SeverityHigh))
	require.NoError(t, err)

	assert.Equal(t, 3, sink.calls)
	assert.Equal(t, []string{"a1"}, sink.delivered())
	assert.Equal(t, []string{"a1"}, recorder.marked())
}

func TestDispatcher_DeliverGivesUpAfterMaxAttempts(t *testing.T) {
	broken := &fakeNotifier{name: "broken", failures: 10}
	healthy := &fakeNotifier{name: "healthy"}
	recorder := &fakeRecorder{}
	d := newDispatcher(t, recorder, broken, healthy)

	err := d.Deliver(context.Background(), newAlert("a1", types.SeverityHigh))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")

	assert.Equal(t, 3, broken.calls)
	assert.Equal(t, []string{"a1"}, healthy.delivered())
	assert.Empty(t, recorder.marked(), "partially delivered alert stays undelivered")
}

func TestDispatcher_SubmitRespectsMinSeverity(t *testing.T) {
	sink := &fakeNotifier{name: "sink"}
	recorder := &fakeRecorder{}
	d := newDispatcher(t, recorder, sink)
	d.Start(context.Background())

	assert.False(t, d.Submit(newAlert("low", types.SeverityLow)))
	assert.True(t, d.Submit(newAlert("medium", types.SeverityMedium)))
	assert.True(t, d.Submit(newAlert("critical", types.SeverityCritical)))

	require.NoError(t, d.Close())

	assert.Equal(t, []string{"medium", "critical"}, sink.delivered())
	assert.Equal(t, []string{"medium", "critical"}, recorder.marked())
	assert.True(t, sink.closed)
}

func TestDispatcher_SubmitAfterClose(t *testing.T) {
	d := newDispatcher(t, nil, &fakeNotifier{name: "sink"})
	d.Start(context.Background())
	require.NoError(t, d.Close())

	assert.False(t, d.Submit(newAlert("a1", types.SeverityHigh)))
	assert.NoError(t, d.Close(), "second close is a no-op")
}

func TestDispatcher_QueueFull(t *testing.T) {
	d, err := New(&Config{
		Notifiers:   []Notifier{&fakeNotifier{name: "sink"}},
		MaxAttempts: 1,
		RetryDelay:  time.Millisecond,
		QueueSize:   1,
		Logger:      zap.NewNop(),
	})
	require.NoError(t, err)

	// Not started: the queue only fills.
	assert.True(t, d.Submit(newAlert("a1", types.SeverityHigh)))
	assert.False(t, d.Submit(newAlert("a2", types.SeverityHigh)))
}

func TestDispatcher_DrainsAfterContextCancel(t *testing.T) {
	sink := &fakeNotifier{name: "sink", failures: 1}
	d := newDispatcher(t, nil, sink)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.Start(ctx)

	assert.True(t, d.Submit(newAlert("a1", types.SeverityHigh)))
	require.NoError(t, d.Close())

	assert.Equal(t, []string{"a1"}, sink.delivered())
}

func TestLogNotifier(t *testing.T) {
	n := NewLogNotifier(zap.NewNop())
	assert.Equal(t, "log", n.Name())
	assert.NoError(t, n.Notify(context.Background(), newAlert("a1", types.SeverityLow)))
	assert.NoError(t, n.Close())
}

type fakePublisher struct {
	channel string
	body    []byte
	err     error
}

func (p *fakePublisher) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	p.channel = channel
	p.body, _ = message.([]byte)
	return redis.NewIntResult(1, p.err)
}

func (p *fakePublisher) Close() error { return nil }

func TestRedisNotifier_Notify(t *testing.T) {
	pub := &fakePublisher{}
	n := &RedisNotifier{client: pub, channel: "polymarket:alerts", logger: zap.NewNop()}

	err := n.Notify(context.Background(), newAlert("a1", types.SeverityCritical))
	require.NoError(t, err)

	assert.Equal(t, "polymarket:alerts", pub.channel)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(pub.body, &decoded))
	assert.Equal(t, "a1", decoded["id"])
	assert.Equal(t, "CRITICAL", decoded["severity"])

	pub.err = errors.New("connection refused")
	assert.Error(t, n.Notify(context.Background(), newAlert("a2", types.SeverityCritical)))
}

func TestNewRedisNotifier_Validation(t *testing.T) {
	ctx := context.Background()

	_, err := NewRedisNotifier(ctx, nil)
	assert.Error(t, err)

	_, err = NewRedisNotifier(ctx, &RedisConfig{URL: "redis://localhost:6379", Channel: "c"})
	assert.Error(t, err)

	_, err = NewRedisNotifier(ctx, &RedisConfig{URL: "not a url", Channel: "c", Logger: zap.NewNop()})
	assert.Error(t, err)
}

type fakeChannel struct {
	declared  int
	published []amqp.Publishing
	keys      []string
}

func (c *fakeChannel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	c.declared++
	return amqp.Queue{Name: name}, nil
}

func (c *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	c.keys = append(c.keys, key)
	c.published = append(c.published, msg)
	return nil
}

func (c *fakeChannel) Close() error { return nil }

func TestAMQPNotifier_Notify(t *testing.T) {
	ch := &fakeChannel{}
	n := &AMQPNotifier{ch: ch, queue: "polymarket_alerts", logger: zap.NewNop()}

	require.NoError(t, n.Notify(context.Background(), newAlert("a1", types.SeverityHigh)))
	require.NoError(t, n.Notify(context.Background(), newAlert("a2", types.SeverityHigh)))

	assert.Equal(t, 1, ch.declared, "queue declared once")
	require.Len(t, ch.published, 2)
	assert.Equal(t, []string{"polymarket_alerts", "polymarket_alerts"}, ch.keys)

	msg := ch.published[0]
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, "a1", msg.MessageId)
	assert.Equal(t, "HUGE_BET", msg.Type)

	assert.NoError(t, n.Close())
}
