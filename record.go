package xctrl

import (
	"context"
	"reflect"
	"sync/atomic"
)

// Listener reacts to a dispatch. On the pre stage a returned error vetoes the dispatch;
// on the on and after stages it is logged and otherwise ignored.
type Listener func(ctx context.Context, args ...any) error

// Middleware transforms dispatch arguments. A nil slice keeps the current arguments;
// an error is absorbed and also keeps them.
type Middleware func(ctx context.Context, args ...any) ([]any, error)

// ControlledFunc is the state change a dispatch wraps. Its result is returned to the caller.
type ControlledFunc func(ctx context.Context, args ...any) (any, error)

// OwnerToken is the default owner of a record registered without WithOwner.
type OwnerToken struct{ id uint64 }

var (
	ownerSeq  atomic.Uint64
	recordSeq atomic.Uint64
)

// NewOwner returns a fresh owner usable for grouped removal.
func NewOwner() *OwnerToken { return &OwnerToken{id: ownerSeq.Add(1)} }

// EventRecord is a single registration. The pointer is its identity and serves as the
// removal token; duplicate registrations of the same function are distinct records.
type EventRecord struct {
	id         uint64
	event      string
	stage      Stage
	listener   Listener
	middleware Middleware
	owner      any
	repeat     int
	calls      atomic.Int64
	ctrl       *Controller
}

// ID returns a process-unique sequence number, useful in logs.
func (r *EventRecord) ID() uint64 { return r.id }

// Event returns the event name the record listens on.
func (r *EventRecord) Event() string { return r.event }

// Stage returns the stage the record belongs to.
func (r *EventRecord) Stage() Stage { return r.stage }

// Owner returns the record's owner.
func (r *EventRecord) Owner() any { return r.owner }

// Repeat returns the repeat cap; 0 means unbounded.
func (r *EventRecord) Repeat() int { return r.repeat }

// Calls returns how many times the record has been invoked.
func (r *EventRecord) Calls() int64 { return r.calls.Load() }

// Controller returns the controller whose registry holds the record.
func (r *EventRecord) Controller() *Controller { return r.ctrl }

// take claims one invocation. It reports whether the record may run and whether this
// invocation exhausts the repeat cap.
func (r *EventRecord) take() (ok, last bool) {
	if r.repeat <= 0 {
		r.calls.Add(1)
		return true, false
	}
	for {
		n := r.calls.Load()
		if n >= int64(r.repeat) {
			return false, false
		}
		if r.calls.CompareAndSwap(n, n+1) {
			return true, n+1 == int64(r.repeat)
		}
	}
}

// RecordOption configures a registration.
type RecordOption func(*EventRecord)

// WithOwner groups the record under owner for RemoveListenersByOwner.
// The owner must be comparable; a non-comparable owner fails the registration.
func WithOwner(owner any) RecordOption {
	return func(r *EventRecord) { r.owner = owner }
}

// WithRepeat caps the number of invocations; the record removes itself after n calls.
func WithRepeat(n int) RecordOption {
	return func(r *EventRecord) {
		if n > 0 {
			r.repeat = n
		}
	}
}

func newRecord(c *Controller, stage Stage, event string, opts []RecordOption) (*EventRecord, error) {
	if event == "" {
		event = UnnamedEvent
	}
	r := &EventRecord{
		id:    recordSeq.Add(1),
		event: event,
		stage: stage,
		ctrl:  c,
	}
	for _, o := range opts {
		if o != nil {
			o(r)
		}
	}
	if r.owner == nil {
		r.owner = NewOwner()
	} else if !reflect.TypeOf(r.owner).Comparable() {
		return nil, ErrInvalidOwner
	}
	return r, nil
}

func noopListener(context.Context, ...any) error { return nil }

func noopControlled(context.Context, ...any) (any, error) { return nil, nil }
