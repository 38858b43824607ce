package xctrl

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterThenRemove_RestoresRegistry(t *testing.T) {
	c := newTestController(t, nil)
	ctx := context.Background()

	rec, ok := c.On(ctx, "message", func(context.Context, ...any) error { return nil })
	require.True(t, ok)
	require.NotNil(t, rec)
	assert.Equal(t, 1, c.ListenerCount(StageOn, "message"))
	assert.Equal(t, []string{"message"}, c.EventNames(StageOn))
	assert.Equal(t, []*EventRecord{rec}, c.Listeners(StageOn, "message"))

	assert.True(t, c.RemoveListener(ctx, StageOn, "message", rec))
	assert.Equal(t, 0, c.ListenerCount(StageOn, "message"))
	assert.Empty(t, c.EventNames(StageOn))

	// A removed token is no longer known.
	assert.False(t, c.RemoveListener(ctx, StageOn, "message", rec))
}

func TestRegister_DuplicatesAreDistinct(t *testing.T) {
	c := newTestController(t, nil)
	ctx := context.Background()
	var cnt counter
	fn := cnt.listener()

	a, _ := c.On(ctx, "x", fn)
	b, _ := c.On(ctx, "x", fn)
	assert.NotSame(t, a, b)

	c.Emit(ctx, "x")
	assert.Equal(t, 2, cnt.count())

	require.True(t, c.RemoveListener(ctx, StageOn, "x", a))
	c.Emit(ctx, "x")
	assert.Equal(t, 3, cnt.count())
}

func TestRegister_Defaults(t *testing.T) {
	c := newTestController(t, nil)
	ctx := context.Background()

	rec, ok := c.Pre(ctx, "", nil)
	require.True(t, ok)
	assert.Equal(t, UnnamedEvent, rec.Event())
	assert.Equal(t, StagePre, rec.Stage())
	assert.IsType(t, &OwnerToken{}, rec.Owner())
	assert.Same(t, c, rec.Controller())

	assert.True(t, c.Emit(ctx, UnnamedEvent).Completed())
	assert.True(t, c.RemoveListener(ctx, StagePre, "", rec))
}

func TestRegister_InvalidStage(t *testing.T) {
	c := newTestController(t, nil)
	ctx := context.Background()

	rec, ok := c.RegisterListener(ctx, StageMiddlewarePre, "x", nil)
	assert.False(t, ok)
	assert.Nil(t, rec)

	rec, ok = c.RegisterMiddleware(ctx, StageAfter, "x", nil)
	assert.False(t, ok)
	assert.Nil(t, rec)

	// Both the plain and the middleware stage name are accepted for middleware.
	rec, ok = c.RegisterMiddleware(ctx, StagePre, "x", nil)
	require.True(t, ok)
	assert.Equal(t, StageMiddlewarePre, rec.Stage())
}

func TestRegister_NonComparableOwner(t *testing.T) {
	c := newTestController(t, nil)
	rec, ok := c.On(context.Background(), "x", nil, WithOwner([]int{1}))
	assert.False(t, ok)
	assert.Nil(t, rec)
}

func TestRegistration_CanBeVetoed(t *testing.T) {
	c := newTestController(t, nil)
	ctx := context.Background()

	_, ok := c.Pre(ctx, StageOn.AddedEvent(), func(_ context.Context, args ...any) error {
		rec := args[0].(*EventRecord)
		if rec.Event() == "frozen" {
			return Stop("registry frozen")
		}
		return nil
	})
	require.True(t, ok)

	rec, ok := c.On(ctx, "frozen", nil)
	assert.False(t, ok)
	assert.NotNil(t, rec)
	assert.Equal(t, 0, c.ListenerCount(StageOn, "frozen"))

	_, ok = c.On(ctx, "open", nil)
	assert.True(t, ok)
}

func TestRegistration_MetaEventCarriesRecord(t *testing.T) {
	c := newTestController(t, nil)
	ctx := context.Background()
	var seen counter

	_, ok := c.On(ctx, StageAfter.AddedEvent(), seen.listener())
	require.True(t, ok)

	rec, ok := c.After(ctx, "x", nil)
	require.True(t, ok)
	require.Equal(t, 1, seen.count())
	// on listeners receive the record only; the result goes to after listeners.
	assert.Equal(t, []any{rec}, seen.last())
}

func TestRemoval_CanBeVetoed(t *testing.T) {
	c := newTestController(t, nil)
	ctx := context.Background()

	rec, _ := c.On(ctx, "pinned", nil)
	_, ok := c.Pre(ctx, StageOn.RemovedEvent(), func(_ context.Context, args ...any) error {
		if args[0].(*EventRecord).Event() == "pinned" {
			return Stop("pinned")
		}
		return nil
	})
	require.True(t, ok)

	assert.False(t, c.RemoveListener(ctx, StageOn, "pinned", rec))
	assert.Equal(t, 1, c.ListenerCount(StageOn, "pinned"))
}

func TestRemoval_ListenersOnRemovedEventAreKept(t *testing.T) {
	c := newTestController(t, nil)
	ctx := context.Background()

	rec, ok := c.Pre(ctx, StagePre.RemovedEvent(), nil)
	require.True(t, ok)

	assert.False(t, c.RemoveListener(ctx, StagePre, StagePre.RemovedEvent(), rec))
	assert.Equal(t, 1, c.ListenerCount(StagePre, StagePre.RemovedEvent()))
}

func TestRemoval_WrongToken(t *testing.T) {
	c := newTestController(t, nil)
	other := newTestController(t, nil)
	ctx := context.Background()

	rec, _ := other.On(ctx, "x", nil)
	_, _ = c.On(ctx, "x", nil)

	assert.False(t, c.RemoveListener(ctx, StageOn, "x", rec))
	assert.False(t, other.RemoveListener(ctx, StagePre, "x", rec))
	assert.False(t, other.RemoveListener(ctx, StageOn, "y", rec))
	assert.False(t, c.RemoveListener(ctx, StageOn, "x", nil))
	assert.Equal(t, 1, c.ListenerCount(StageOn, "x"))
	assert.Equal(t, 1, other.ListenerCount(StageOn, "x"))
}

func TestRemoveListenersByOwner(t *testing.T) {
	c := newTestController(t, nil)
	ctx := context.Background()
	a, b := NewOwner(), "module:b"

	_, _ = c.On(ctx, "x", nil, WithOwner(a))
	_, _ = c.On(ctx, "x", nil, WithOwner(a))
	kept, _ := c.On(ctx, "x", nil, WithOwner(b))

	assert.Equal(t, []bool{true, true}, c.RemoveListenersByOwner(ctx, StageOn, "x", a))
	assert.Equal(t, []*EventRecord{kept}, c.Listeners(StageOn, "x"))

	assert.Nil(t, c.RemoveListenersByOwner(ctx, StageOn, "x", a))
	assert.Nil(t, c.RemoveListenersByOwner(ctx, StageOn, "x", []string{"x"}))
	assert.Nil(t, c.RemoveListenersByOwner(ctx, StageOn, "x", nil))
}

func TestRemoveAllListeners(t *testing.T) {
	c := newTestController(t, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _ = c.Pre(ctx, "x", nil)
	}
	_, _ = c.Pre(ctx, "y", nil)

	assert.Equal(t, []bool{true, true, true}, c.RemoveAllListeners(ctx, StagePre, "x"))
	assert.Equal(t, []string{"y"}, c.EventNames(StagePre))
	assert.Nil(t, c.RemoveAllListeners(ctx, StagePre, "x"))
}

func TestRepeatCap(t *testing.T) {
	c := newTestController(t, nil)
	ctx := context.Background()
	var once, twice counter

	_, ok := c.Once(ctx, StageOn, "x", once.listener())
	require.True(t, ok)
	_, ok = c.After(ctx, "x", twice.listener(), WithRepeat(2))
	require.True(t, ok)

	for i := 0; i < 4; i++ {
		require.True(t, c.Emit(ctx, "x").Completed())
	}
	assert.Equal(t, 1, once.count())
	assert.Equal(t, 2, twice.count())
	assert.Equal(t, 0, c.ListenerCount(StageOn, "x"))
	assert.Equal(t, 0, c.ListenerCount(StageAfter, "x"))
}

func TestRepeatCap_MiddlewareExpires(t *testing.T) {
	c := newTestController(t, nil)
	ctx := context.Background()

	_, ok := c.UsePre(ctx, "x", func(_ context.Context, args ...any) ([]any, error) {
		return []any{args[0].(int) + 1}, nil
	}, WithRepeat(1))
	require.True(t, ok)

	fn := func(_ context.Context, args ...any) (any, error) { return args[0], nil }
	assert.Equal(t, 2, c.CtrlEmit(ctx, fn, "x", 1).Result)
	assert.Equal(t, 1, c.CtrlEmit(ctx, fn, "x", 1).Result)
	assert.Equal(t, 0, c.ListenerCount(StageMiddlewarePre, "x"))
}

func TestReset_OnlyCompanions(t *testing.T) {
	c := newTestController(t, nil)
	assert.ErrorIs(t, c.Reset(), ErrNotCompanion)

	p := NewProvider(nil)
	comp := p.Class("session")
	_, _ = comp.On(context.Background(), "x", nil)
	_, _ = comp.Pre(context.Background(), "y", nil)

	require.NoError(t, comp.Reset())
	assert.Equal(t, 0, comp.ListenerCount(StageOn, "x"))
	assert.Empty(t, comp.EventNames(StagePre))
}

func TestClose(t *testing.T) {
	c, closeFn, err := New(func(b *Builder) { b.WithObserverPool(2, 16) })
	require.NoError(t, err)

	require.NoError(t, closeFn())
	require.NoError(t, c.Close(context.Background()))

	out := c.Emit(context.Background(), "x")
	assert.ErrorIs(t, out.Err, ErrControllerClosed)
	assert.False(t, out.Completed())

	_, ok := c.On(context.Background(), "x", nil)
	assert.False(t, ok)

	assert.Equal(t, "unhealthy", c.Health(context.Background()).Status)
}

func TestHealthAndMetrics(t *testing.T) {
	c := newTestController(t, nil)
	ctx := context.Background()
	assert.Equal(t, "healthy", c.Health(ctx).Status)

	_, _ = c.On(ctx, "x", func(context.Context, ...any) error { return assert.AnError })
	c.Emit(ctx, "x")

	m := c.GetMetrics()
	assert.Equal(t, uint64(2), m.Dispatched)
	assert.Equal(t, uint64(2), m.Completed)
	assert.Equal(t, uint64(1), m.ListenerFaults)
	assert.Equal(t, "degraded", c.Health(ctx).Status)
}

func TestObservers(t *testing.T) {
	rec := &recorder{}
	c := newTestController(t, func(b *Builder) { b.WithObserver(rec) })
	ctx := context.Background()

	r, _ := c.On(ctx, "x", nil)
	c.Emit(ctx, "x")
	c.RemoveListener(ctx, StageOn, "x", r)

	added := rec.byType(ListenerAdded)
	require.Len(t, added, 1)
	assert.Equal(t, r.ID(), added[0].RecordID)
	assert.Equal(t, "x", added[0].EventName)

	removed := rec.byType(ListenerRemoved)
	require.Len(t, removed, 1)
	assert.Equal(t, StageOn, removed[0].Stage)

	assert.Len(t, rec.byType(DispatchStart), 3)
	assert.Len(t, rec.byType(DispatchDone), 3)

	c.RemoveObserver(rec)
	c.Emit(ctx, "x")
	assert.Len(t, rec.byType(DispatchDone), 3)
}

// vetoRemovalOf refuses the removal of exactly one record on the on stage.
func vetoRemovalOf(t *testing.T, c *Controller, target **EventRecord) {
	t.Helper()
	_, ok := c.Pre(context.Background(), StageOn.RemovedEvent(), func(_ context.Context, args ...any) error {
		if args[0].(*EventRecord) == *target {
			return Stop("pinned")
		}
		return nil
	})
	require.True(t, ok)
}

func TestRemoveListenersByOwner_PartialVeto(t *testing.T) {
	c := newTestController(t, nil)
	ctx := context.Background()
	owner := NewOwner()

	var pinned *EventRecord
	vetoRemovalOf(t, c, &pinned)

	recs := make([]*EventRecord, 3)
	for i := range recs {
		recs[i], _ = c.On(ctx, "x", nil, WithOwner(owner))
	}
	pinned = recs[1]

	results := c.RemoveListenersByOwner(ctx, StageOn, "x", owner)
	assert.Equal(t, []bool{true, false, true}, results)
	assert.Equal(t, []*EventRecord{pinned}, c.Listeners(StageOn, "x"))
}

func TestRemoveAllListeners_PartialVeto(t *testing.T) {
	c := newTestController(t, nil)
	ctx := context.Background()

	var pinned *EventRecord
	vetoRemovalOf(t, c, &pinned)

	recs := make([]*EventRecord, 3)
	for i := range recs {
		recs[i], _ = c.On(ctx, "x", nil)
	}
	pinned = recs[2]

	results := c.RemoveAllListeners(ctx, StageOn, "x")
	assert.Equal(t, []bool{true, true, false}, results)
	assert.Equal(t, []*EventRecord{pinned}, c.Listeners(StageOn, "x"))
}

func TestRepeatCap_VetoedExpiryIsRetried(t *testing.T) {
	c := newTestController(t, nil)
	ctx := context.Background()
	var calls counter

	rec, ok := c.Once(ctx, StageOn, "x", calls.listener())
	require.True(t, ok)

	var pinned atomic.Bool
	pinned.Store(true)
	_, ok = c.Pre(ctx, StageOn.RemovedEvent(), func(_ context.Context, args ...any) error {
		if args[0].(*EventRecord) == rec && pinned.Load() {
			return Stop("pinned")
		}
		return nil
	})
	require.True(t, ok)

	c.Emit(ctx, "x")
	c.Emit(ctx, "x")
	assert.Equal(t, 1, calls.count())
	assert.Equal(t, int64(1), rec.Calls())
	assert.Equal(t, 1, c.ListenerCount(StageOn, "x"))

	pinned.Store(false)
	c.Emit(ctx, "x")
	assert.Equal(t, 1, calls.count())
	assert.Equal(t, 0, c.ListenerCount(StageOn, "x"))
	assert.Empty(t, c.EventNames(StageOn))
}
