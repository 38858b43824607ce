package redis

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xctrl"
)

type limiter struct {
	cfg    Config
	client redis.UniversalClient
	clock  xclock.Clock
	owned  bool
}

var _ xctrl.Limiter = (*limiter)(nil)

// NewLimiter connects to Redis and returns a fixed-window limiter.
func NewLimiter(cfg Config) (xctrl.Limiter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts := &redis.Options{
		Addr:         cfg.Addr,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   3,
		PoolSize:     10,
		MinIdleConns: 2,
	}

	if cfg.TLS {
		opts.TLSConfig = &tls.Config{
			MinVersion:    tls.VersionTLS12,
			ServerName:    cfg.TLSServerName,
			Renegotiation: tls.RenegotiateNever,
		}
	}

	client := redis.NewClient(opts)
	if err := ping(client); err != nil {
		_ = client.Close()
		return nil, err
	}
	return &limiter{cfg: cfg, client: client, clock: xclock.Default(), owned: true}, nil
}

// NewLimiterWithClient uses an existing client. Close leaves the client open.
func NewLimiterWithClient(client redis.UniversalClient, cfg Config) (xctrl.Limiter, error) {
	if client == nil {
		return nil, errors.New("redis client must not be nil")
	}
	if cfg.Addr == "" {
		cfg.Addr = "external"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &limiter{cfg: cfg, client: client, clock: xclock.Default()}, nil
}

// Allow increments the counter of key's current window and sets the window expiry
// in the same transaction. Each window has its own Redis key.
func (l *limiter) Allow(ctx context.Context, key string) (bool, error) {
	k := l.windowKey(key)

	var incr *redis.IntCmd
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, k)
		pipe.PExpire(ctx, k, l.cfg.Window)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("throttle %q: %w", key, err)
	}
	return incr.Val() <= l.cfg.Limit, nil
}

func (l *limiter) windowKey(key string) string {
	slot := l.clock.Now().UnixMilli() / l.cfg.Window.Milliseconds()
	return l.cfg.Prefix + key + ":" + strconv.FormatInt(slot, 10)
}

func (l *limiter) Close(_ context.Context) error {
	if !l.owned {
		return nil
	}
	return l.client.Close()
}

func ping(c *redis.Client) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	res, err := c.Ping(ctx).Result()
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return fmt.Errorf("redis ping timeout: %w", err)
		}
		return err
	}

	if strings.ToUpper(res) != "PONG" {
		return fmt.Errorf("unexpected redis ping result: %s", res)
	}

	return nil
}
