package redis

import (
	"context"
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/trickstertwo/xctrl"
	"github.com/trickstertwo/xlog"
)

// Limiter: Redis fixed windows (Strategy + Adapter patterns)

const LimiterName = "redis"

func init() {
	if err := xctrl.RegisterLimiter(LimiterName, func(cfg map[string]any) (xctrl.Limiter, error) {
		return NewLimiter(ConfigFromMap(cfg))
	}); err != nil {
		panic(fmt.Errorf("xctrl: failed to register limiter %q: %w", LimiterName, err))
	}
}

// ConfigFromEnv loads Config from XCTRL_REDIS_* and XCTRL_THROTTLE_* variables.
func ConfigFromEnv() (Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return c, c.Validate()
}

// Use builds a Controller whose engine companion throttles cfg.Events against Redis
// counters, and installs the companion's provider as the default.
// The returned close func closes the controller and the limiter.
func Use(cfg Config, opts ...Option) (*xctrl.Controller, func() error) {
	o := options{b: xctrl.NewBuilder()}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	lim, err := xctrl.NewLimiter(LimiterName, cfg.toMap())
	if err != nil {
		panic(fmt.Errorf("redis.Use: %w", err))
	}

	p := xctrl.NewProvider(o.companionInit)
	guard := xctrl.ThrottleGuard(lim, o.key)
	for _, event := range cfg.Events {
		if _, ok := p.Engine().Pre(context.Background(), event, guard); !ok {
			panic(fmt.Errorf("redis.Use: guard on %q was vetoed", event))
		}
	}

	ctrl, err := o.b.WithEngineScope(p).Build()
	if err != nil {
		_ = lim.Close(context.Background())
		panic(fmt.Errorf("redis.Use: %w", err))
	}

	// Install as process-wide default (replaces any existing default).
	xctrl.SetDefault(p)

	closeFn := func() error {
		ctx := context.Background()
		err := ctrl.Close(ctx)
		if cerr := p.Close(ctx); err == nil {
			err = cerr
		}
		if lerr := lim.Close(ctx); err == nil {
			err = lerr
		}
		return err
	}
	return ctrl, closeFn
}

type options struct {
	b             *xctrl.Builder
	key           xctrl.KeyFunc
	companionInit func(*xctrl.Builder)
}

// Option configures the controller built by Use.
type Option func(*options)

// WithKey selects the throttling key (default: event name).
func WithKey(fn xctrl.KeyFunc) Option {
	return func(o *options) { o.key = fn }
}

// WithLogger injects a custom xlog logger into the controller and its companion.
func WithLogger(l *xlog.Logger) Option {
	return func(o *options) {
		o.b.WithLogger(l)
		o.companionInit = func(b *xctrl.Builder) { b.WithLogger(l) }
	}
}

// WithName names the controller.
func WithName(name string) Option {
	return func(o *options) { o.b.WithName(name) }
}

// WithVerbose logs throttled dispatches.
func WithVerbose(on bool) Option {
	return func(o *options) { o.b.WithVerbose(on) }
}

// WithObserver attaches observers for dispatch lifecycle events.
func WithObserver(obs ...xctrl.Observer) Option {
	return func(o *options) { o.b.WithObserver(obs...) }
}
