package alert

import (
	"sync"
	"time"

	"github.com/mselser95/polymarket-surveillance/pkg/types"
)

// Cooldown suppresses equivalent alerts emitted within a window. An alert
// at a strictly higher severity than the last one for its key is not
// equivalent and passes.
type Cooldown struct {
	mu     sync.Mutex
	window time.Duration
	now    func() time.Time
	last   map[string]emission
}

type emission struct {
	at       time.Time
	severity types.Severity
}

// NewCooldown creates a cool-down tracker. A nil now uses time.Now.
func NewCooldown(window time.Duration, now func() time.Time) *Cooldown {
	if now == nil {
		now = time.Now
	}
	return &Cooldown{
		window: window,
		now:    now,
		last:   make(map[string]emission),
	}
}

// Allow reports whether an alert with key and severity may be emitted now
// and, if so, records the emission.
func (c *Cooldown) Allow(key string, severity types.Severity) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if prev, ok := c.last[key]; ok && now.Sub(prev.at) < c.window && severity <= prev.severity {
		return false
	}

	c.last[key] = emission{at: now, severity: severity}
	c.evictLocked(now)

	return true
}

// evictLocked drops expired keys once the map holds 1024 or more.
func (c *Cooldown) evictLocked(now time.Time) {
	if len(c.last) < 1024 {
		return
	}
	for key, e := range c.last {
		if now.Sub(e.at) >= c.window {
			delete(c.last, key)
		}
	}
}

// Len returns the number of keys currently tracked.
func (c *Cooldown) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.last)
}
