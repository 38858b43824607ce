package memory

import (
	"context"
	"fmt"

	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xctrl"
	"github.com/trickstertwo/xlog"
)

// Use builds a Controller whose engine companion throttles cfg.Events with
// in-process token buckets, and installs the companion's provider as the default.
// The returned close func closes the controller, the companions and the limiter.
//
// Example:
//
//	ctrl, closeFn := memory.Use(memory.Config{
//	    Rate:   2,
//	    Burst:  5,
//	    Events: []string{"message"},
//	},
//	    memory.WithKey(xctrl.KeyByArg(0)),
//	    memory.WithLogger(logger),
//	)
//	defer closeFn()
//
// Every controller built with WithEngineScope(xctrl.Default()) shares the guard.
func Use(cfg Config, opts ...Option) (*xctrl.Controller, func() error) {
	o := options{b: xctrl.NewBuilder()}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	lim, err := xctrl.NewLimiter(LimiterName, cfg.toMap())
	if err != nil {
		panic(fmt.Errorf("memory.Use: %w", err))
	}

	p := xctrl.NewProvider(o.companionInit)
	guard := xctrl.ThrottleGuard(lim, o.key)
	for _, event := range cfg.Events {
		if _, ok := p.Engine().Pre(context.Background(), event, guard); !ok {
			panic(fmt.Errorf("memory.Use: guard on %q was vetoed", event))
		}
	}

	ctrl, err := o.b.WithEngineScope(p).Build()
	if err != nil {
		_ = lim.Close(context.Background())
		panic(fmt.Errorf("memory.Use: %w", err))
	}

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
		o.chain(func(b *xctrl.Builder) { b.WithLogger(l) })
	}
}

// WithClock injects a custom xclock clock.
func WithClock(c xclock.Clock) Option {
	return func(o *options) { o.b.WithClock(c) }
}

// WithName names the controller.
func WithName(name string) Option {
	return func(o *options) { o.b.WithName(name) }
}

// WithVerbose logs throttled dispatches.
func WithVerbose(on bool) Option {
	return func(o *options) {
		o.b.WithVerbose(on)
		o.chain(func(b *xctrl.Builder) { b.WithVerbose(on) })
	}
}

// WithObserver attaches observers for dispatch lifecycle events.
func WithObserver(obs ...xctrl.Observer) Option {
	return func(o *options) { o.b.WithObserver(obs...) }
}

// WithObserverPool configures async observer pool for non-blocking notifications.
func WithObserverPool(workers, bufferSize int) Option {
	return func(o *options) { o.b.WithObserverPool(workers, bufferSize) }
}

func (o *options) chain(fn func(*xctrl.Builder)) {
	prev := o.companionInit
	o.companionInit = func(b *xctrl.Builder) {
		if prev != nil {
			prev(b)
		}
		fn(b)
	}
}
