package xctrl

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkg/errors"
)

// Limiter is the Strategy interface for throttling backends.
type Limiter interface {
	// Allow consumes one unit for key and reports whether it was available.
	Allow(ctx context.Context, key string) (bool, error)
	// Close releases resources.
	Close(ctx context.Context) error
}

// LimiterFactory constructs limiters from a config blob.
type LimiterFactory func(cfg map[string]any) (Limiter, error)

var (
	limiterRegistryMu sync.RWMutex
	limiterRegistry   = map[string]LimiterFactory{}
)

// RegisterLimiter registers a throttling backend.
func RegisterLimiter(name string, factory LimiterFactory) error {
	if name == "" {
		return errors.New("limiter name must not be empty")
	}
	if factory == nil {
		return errors.New("limiter factory must not be nil")
	}
	limiterRegistryMu.Lock()
	limiterRegistry[name] = factory
	limiterRegistryMu.Unlock()
	return nil
}

// NewLimiter constructs a limiter by name with config.
func NewLimiter(name string, cfg map[string]any) (Limiter, error) {
	limiterRegistryMu.RLock()
	f, ok := limiterRegistry[name]
	limiterRegistryMu.RUnlock()
	if !ok {
		return nil, ErrUnknownLimiter{name: name}
	}
	return f(cfg)
}

// Throttled is the soft veto reason produced by ThrottleGuard.
type Throttled struct {
	Key string
}

func (t Throttled) String() string { return "throttled: " + t.Key }

// KeyFunc derives the throttling key of a dispatch. An empty key skips throttling.
type KeyFunc func(ctx context.Context, event string, args ...any) string

// KeyByEvent throttles per event name.
func KeyByEvent() KeyFunc {
	return func(_ context.Context, event string, _ ...any) string { return event }
}

// KeyByArg throttles per event name and the i-th argument, e.g. a user or chat id.
func KeyByArg(i int) KeyFunc {
	return func(_ context.Context, event string, args ...any) string {
		if i < 0 || i >= len(args) {
			return ""
		}
		return fmt.Sprintf("%s:%v", event, args[i])
	}
}

// ThrottleGuard returns a pre-stage listener that soft-vetoes dispatches once l
// refuses their key. Backend errors let the dispatch through.
func ThrottleGuard(l Limiter, key KeyFunc) Listener {
	if key == nil {
		key = KeyByEvent()
	}
	return func(ctx context.Context, args ...any) error {
		event, _ := EventFromContext(ctx)
		k := key(ctx, event, args...)
		if k == "" {
			return nil
		}
		ok, err := l.Allow(ctx, k)
		if err != nil {
			if lg, found := LoggerFromContext(ctx); found {
				lg.Warn().Str("event", event).Str("key", k).Err(err).Msg("xctrl: limiter unavailable, allowing")
			}
			return nil
		}
		if !ok {
			return Stop(Throttled{Key: k})
		}
		return nil
	}
}
