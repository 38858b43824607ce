package xctrl

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xlog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/trickstertwo/xctrl"

var controllerSeq atomic.Uint64

// Builder constructs Controller instances (Builder pattern).
type Builder struct {
	name     string
	metaEmit bool
	verbose  bool

	logger *xlog.Logger
	clock  xclock.Clock
	tracer trace.Tracer

	observers   []Observer
	poolWorkers int
	poolBuffer  int

	companion   *Controller
	provider    *Provider
	classKey    string
	engineScope bool

	companionRole bool
}

// NewBuilder returns a builder with meta-emit and verbose logging off.
func NewBuilder() *Builder {
	return &Builder{}
}

// WithName sets the identity used in logs, spans and observer events.
func (b *Builder) WithName(name string) *Builder {
	b.name = name
	return b
}

// WithMetaEmit wraps every dispatch in the MetaEvent envelope. There is no implied
// default per consumer; controllers that want a single observation point must opt in.
func (b *Builder) WithMetaEmit(on bool) *Builder {
	b.metaEmit = on
	return b
}

// WithVerbose logs soft vetoes in addition to hard ones.
func (b *Builder) WithVerbose(on bool) *Builder {
	b.verbose = on
	return b
}

func (b *Builder) WithLogger(l *xlog.Logger) *Builder {
	b.logger = l
	return b
}

func (b *Builder) WithClock(c xclock.Clock) *Builder {
	b.clock = c
	return b
}

// WithTracer overrides the tracer taken from the global otel provider.
func (b *Builder) WithTracer(t trace.Tracer) *Builder {
	b.tracer = t
	return b
}

func (b *Builder) WithObserver(obs ...Observer) *Builder {
	for _, o := range obs {
		if o != nil {
			b.observers = append(b.observers, o)
		}
	}
	return b
}

// WithObserverPool delivers observer events asynchronously on workers goroutines.
// Without a pool observers are called inline.
func (b *Builder) WithObserverPool(workers, bufferSize int) *Builder {
	b.poolWorkers = workers
	b.poolBuffer = bufferSize
	return b
}

// WithCompanion layers the controller above an existing companion.
func (b *Builder) WithCompanion(c *Controller) *Builder {
	b.companion = c
	return b
}

// WithClassScope uses the provider's companion for key (Tier A).
func (b *Builder) WithClassScope(p *Provider, key string) *Builder {
	b.provider = p
	b.classKey = key
	b.engineScope = false
	return b
}

// WithEngineScope uses the provider's engine-wide companion (Tier B).
func (b *Builder) WithEngineScope(p *Provider) *Builder {
	b.provider = p
	b.classKey = ""
	b.engineScope = true
	return b
}

// WithConfig applies a typed Config.
func (b *Builder) WithConfig(cfg Config) *Builder {
	if cfg.Name != "" {
		b.name = cfg.Name
	}
	b.metaEmit = cfg.MetaEmit
	b.verbose = cfg.Verbose
	if cfg.ObserverWorkers > 0 {
		b.poolWorkers = cfg.ObserverWorkers
		b.poolBuffer = cfg.ObserverBuffer
	}
	return b
}

func (b *Builder) Build() (*Controller, error) {
	companion := b.companion
	if b.provider != nil {
		if companion != nil {
			return nil, fmt.Errorf("%w: companion and provider scope are exclusive", ErrInvalidConfig)
		}
		switch {
		case b.engineScope:
			companion = b.provider.Engine()
		case b.classKey != "":
			companion = b.provider.Class(b.classKey)
		default:
			return nil, fmt.Errorf("%w: class scope requires a key", ErrInvalidConfig)
		}
	}

	name := b.name
	if name == "" {
		name = fmt.Sprintf("controller-%d", controllerSeq.Add(1))
	}

	clk := b.clock
	if clk == nil {
		clk = xclock.Default()
	}
	lg := b.logger
	if lg == nil {
		lg = xlog.Default()
	}
	tr := b.tracer
	if tr == nil {
		tr = otel.Tracer(instrumentationName)
	}

	c := &Controller{
		name:        name,
		reg:         newRegistry(),
		companion:   companion,
		isCompanion: b.companionRole,
		metaEmit:    b.metaEmit,
		verbose:     b.verbose,
		logger:      lg,
		clock:       clk,
		tracer:      tr,
		metrics:     &ctrlMetrics{},
	}
	if b.poolWorkers > 0 {
		c.observerPool = NewObserverPool(context.Background(), b.poolWorkers, b.poolBuffer)
	}

	hasLoggingObserver := false
	for _, o := range b.observers {
		if _, ok := o.(LoggingObserver); ok {
			hasLoggingObserver = true
			break
		}
	}
	if !hasLoggingObserver {
		c.AddObserver(LoggingObserver{Logger: lg})
	}
	for _, o := range b.observers {
		c.AddObserver(o)
	}
	return c, nil
}

// New constructs a Controller via Builder and returns a close func for convenience.
func New(init func(b *Builder)) (*Controller, func() error, error) {
	b := NewBuilder()
	if init != nil {
		init(b)
	}
	c, err := b.Build()
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() error { return c.Close(context.Background()) }
	return c, closeFn, nil
}
