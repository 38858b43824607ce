package xctrl

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// recorder collects observer events; inline delivery makes them visible on return.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) OnEvent(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) byType(t EventType) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func newTestController(t *testing.T, init func(b *Builder)) *Controller {
	t.Helper()
	c, closeFn, err := New(init)
	require.NoError(t, err)
	t.Cleanup(func() { _ = closeFn() })
	return c
}

type counter struct {
	mu    sync.Mutex
	calls [][]any
}

func (c *counter) listener() Listener {
	return func(_ context.Context, args ...any) error {
		c.mu.Lock()
		c.calls = append(c.calls, args)
		c.mu.Unlock()
		return nil
	}
}

func (c *counter) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

func (c *counter) last() []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.calls) == 0 {
		return nil
	}
	return c.calls[len(c.calls)-1]
}
