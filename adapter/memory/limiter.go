package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xctrl"
	"golang.org/x/time/rate"
)

const LimiterName = "memory"

func init() {
	if err := xctrl.RegisterLimiter(LimiterName, func(cfg map[string]any) (xctrl.Limiter, error) {
		return NewLimiter(ConfigFromMap(cfg), nil), nil
	}); err != nil {
		panic(fmt.Errorf("xctrl/memory: failed to register limiter: %w", err))
	}
}

// Config controls the in-process token buckets.
type Config struct {
	// Rate is the sustained number of dispatches per second per key (default: 1).
	Rate float64
	// Burst is the bucket size (default: 5).
	Burst int
	// IdleTTL drops buckets unused for that long (default: 10m, 0 keeps them forever).
	IdleTTL time.Duration
	// Events are the event names guarded by Use.
	Events []string
}

func Defaults() Config {
	return Config{
		Rate:    1,
		Burst:   5,
		IdleTTL: 10 * time.Minute,
	}
}

func ConfigFromMap(cfg map[string]any) Config {
	getFloat := func(k string, d float64) float64 {
		switch v := cfg[k].(type) {
		case float64:
			return v
		case float32:
			return float64(v)
		case int:
			return float64(v)
		case int64:
			return float64(v)
		}
		return d
	}

	getInt := func(k string, d int) int {
		switch v := cfg[k].(type) {
		case int:
			return v
		case int32:
			return int(v)
		case int64:
			return int(v)
		case float64:
			return int(v)
		}
		return d
	}

	getDur := func(k string, d time.Duration) time.Duration {
		switch v := cfg[k].(type) {
		case time.Duration:
			return v
		case string:
			if p, err := time.ParseDuration(v); err == nil {
				return p
			}
		case float64:
			return time.Duration(v)
		}
		return d
	}

	def := Defaults()
	c := Config{
		Rate:    getFloat("rate", def.Rate),
		Burst:   maxInt(1, getInt("burst", def.Burst)),
		IdleTTL: getDur("idle_ttl", def.IdleTTL),
	}
	if c.Rate <= 0 {
		c.Rate = def.Rate
	}
	if v, ok := cfg["events"].([]string); ok {
		c.Events = v
	}
	return c
}

// toMap converts Config to the generic map expected by the limiter factory.
func (c Config) toMap() map[string]any {
	return map[string]any{
		"rate":     c.Rate,
		"burst":    c.Burst,
		"idle_ttl": c.IdleTTL,
		"events":   c.Events,
	}
}

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// Limiter keeps one token bucket per key.
type Limiter struct {
	cfg   Config
	clock xclock.Clock

	mu      sync.Mutex
	buckets map[string]*bucket
	sweep   time.Time
	closed  bool
}

var _ xctrl.Limiter = (*Limiter)(nil)

// NewLimiter returns a token-bucket limiter. A nil clock uses xclock.Default().
func NewLimiter(cfg Config, clock xclock.Clock) *Limiter {
	if clock == nil {
		clock = xclock.Default()
	}
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}
	return &Limiter{
		cfg:     cfg,
		clock:   clock,
		buckets: make(map[string]*bucket),
	}
}

func (l *Limiter) Allow(_ context.Context, key string) (bool, error) {
	now := l.clock.Now()

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false, xctrl.ErrLimiterClosed
	}
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(rate.Limit(l.cfg.Rate), l.cfg.Burst)}
		l.buckets[key] = b
	}
	b.seen = now
	l.evictLocked(now)
	l.mu.Unlock()

	return b.lim.AllowN(now, 1), nil
}

// evictLocked drops idle buckets at most once per IdleTTL.
func (l *Limiter) evictLocked(now time.Time) {
	if l.cfg.IdleTTL <= 0 || now.Sub(l.sweep) < l.cfg.IdleTTL {
		return
	}
	l.sweep = now
	for k, b := range l.buckets {
		if now.Sub(b.seen) >= l.cfg.IdleTTL {
			delete(l.buckets, k)
		}
	}
}

// Keys returns the number of live buckets.
func (l *Limiter) Keys() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

func (l *Limiter) Close(_ context.Context) error {
	l.mu.Lock()
	l.closed = true
	l.buckets = make(map[string]*bucket)
	l.mu.Unlock()
	return nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
