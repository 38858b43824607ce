package xctrl

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func newRec(stage Stage, event string, owner any) *EventRecord {
	return &EventRecord{stage: stage, event: event, owner: owner}
}

func TestRegistry_InsertRemovePrunes(t *testing.T) {
	r := newRegistry()
	a, b := newRec(StageOn, "x", 1), newRec(StageOn, "x", 2)
	r.insert(a)
	r.insert(b)

	assert.Equal(t, 2, r.count(StageOn, "x"))
	assert.Equal(t, []*EventRecord{a, b}, r.snapshot(StageOn, "x"))
	assert.True(t, r.contains(a))

	assert.True(t, r.remove(a))
	assert.False(t, r.remove(a))
	assert.False(t, r.contains(a))
	assert.Equal(t, []string{"x"}, r.events(StageOn))

	assert.True(t, r.remove(b))
	assert.Empty(t, r.events(StageOn))
	assert.Nil(t, r.snapshot(StageOn, "x"))
}

func TestRegistry_SnapshotIsACopy(t *testing.T) {
	r := newRegistry()
	a := newRec(StagePre, "x", 1)
	r.insert(a)

	snap := r.snapshot(StagePre, "x")
	r.insert(newRec(StagePre, "x", 2))
	r.remove(a)

	assert.Equal(t, []*EventRecord{a}, snap)
	assert.Equal(t, 1, r.count(StagePre, "x"))
}

func TestRegistry_StagesAreIndependent(t *testing.T) {
	r := newRegistry()
	r.insert(newRec(StagePre, "x", 1))
	r.insert(newRec(StageMiddlewareOn, "y", 1))

	assert.Equal(t, []string{"x"}, r.events(StagePre))
	assert.Empty(t, r.events(StageOn))
	assert.Equal(t, []string{"y"}, r.events(StageMiddlewareOn))
}

func TestRegistry_ByOwnerAndReset(t *testing.T) {
	r := newRegistry()
	r.insert(newRec(StageAfter, "x", "a"))
	r.insert(newRec(StageAfter, "x", "b"))
	r.insert(newRec(StageAfter, "x", "a"))
	r.insert(newRec(StageAfter, "z", "a"))

	assert.Len(t, r.byOwner(StageAfter, "x", "a"), 2)
	assert.Len(t, r.byOwner(StageAfter, "x", "c"), 0)

	r.reset()
	for s := StagePre; s <= StageMiddlewareOn; s++ {
		assert.Empty(t, r.events(s))
	}
}

func TestStage(t *testing.T) {
	assert.Equal(t, "middleware-pre", StageMiddlewarePre.String())
	assert.Equal(t, "new-on-listener", StageOn.AddedEvent())
	assert.Equal(t, "removed-after-listener", StageAfter.RemovedEvent())
	assert.True(t, StageMiddlewareOn.IsMiddleware())
	assert.False(t, Stage(9).Valid())

	ms, ok := middlewareStage(StageOn)
	assert.True(t, ok)
	assert.Equal(t, StageMiddlewareOn, ms)
	_, ok = middlewareStage(StageAfter)
	assert.False(t, ok)
}

func TestArg(t *testing.T) {
	args := []any{"chat", 7}

	s, ok := Arg[string](args, 0)
	assert.True(t, ok)
	assert.Equal(t, "chat", s)

	_, ok = Arg[string](args, 1)
	assert.False(t, ok)

	n, ok := Arg[int](args, 5)
	assert.False(t, ok)
	assert.Zero(t, n)
}
