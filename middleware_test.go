package xctrl

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChain_Order(t *testing.T) {
	var order []string
	mw := func(name string) ListenerMiddleware {
		return func(next Listener) Listener {
			return func(ctx context.Context, args ...any) error {
				order = append(order, name)
				return next(ctx, args...)
			}
		}
	}
	l := Chain(func(context.Context, ...any) error {
		order = append(order, "listener")
		return nil
	}, mw("outer"), nil, mw("inner"))

	require.NoError(t, l(context.Background()))
	assert.Equal(t, []string{"outer", "inner", "listener"}, order)
}

func TestRecover(t *testing.T) {
	l := Chain(func(context.Context, ...any) error { panic("boom") }, Recover())
	err := l(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestTimeout(t *testing.T) {
	slow := Chain(func(ctx context.Context, _ ...any) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
			return nil
		}
	}, Timeout(10*time.Millisecond))
	assert.ErrorIs(t, slow(context.Background()), context.DeadlineExceeded)

	fast := Chain(func(context.Context, ...any) error { return nil }, Timeout(time.Second))
	assert.NoError(t, fast(context.Background()))

	failing := errors.New("failed")
	passthrough := Chain(func(context.Context, ...any) error { return failing }, Timeout(0))
	assert.ErrorIs(t, passthrough(context.Background()), failing)
}

func TestTimeout_VetoesSlowGuard(t *testing.T) {
	c := newTestController(t, nil)
	ctx := context.Background()
	_, _ = c.Pre(ctx, "x", Chain(func(ctx context.Context, _ ...any) error {
		<-ctx.Done()
		return ctx.Err()
	}, Timeout(10*time.Millisecond)))

	out := c.Emit(ctx, "x")
	require.True(t, out.Vetoed())
	assert.Equal(t, SeverityHard, out.Veto.Severity)
	assert.ErrorIs(t, out.Veto, context.DeadlineExceeded)
}
