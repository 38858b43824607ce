package xctrl

import (
	"context"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xlog"
	"go.opentelemetry.io/otel/trace"
)

var _ API = (*Controller)(nil)

// Controller owns a listener registry and runs every dispatch through it.
// A controller with a companion consults the companion's records before its own.
type Controller struct {
	name      string
	reg       *registry
	companion *Controller
	// isCompanion marks controllers handed out by a Provider; only they may Reset.
	isCompanion bool

	metaEmit bool
	verbose  bool

	logger *xlog.Logger
	clock  xclock.Clock
	tracer trace.Tracer

	observerPool *ObserverPool
	observersMu  sync.RWMutex
	observers    []Observer

	metrics   *ctrlMetrics
	closed    atomic.Bool
	closeOnce sync.Once
}

// ctrlMetrics uses lock-free atomics; dispatch paths never take a lock for telemetry.
type ctrlMetrics struct {
	dispatched       atomic.Uint64
	completed        atomic.Uint64
	vetoed           atomic.Uint64
	listenerFaults   atomic.Uint64
	middlewareFaults atomic.Uint64
	controlledFaults atomic.Uint64
	dispatchNs       atomic.Int64
}

// Name identifies the controller in logs, spans and observer events.
func (c *Controller) Name() string { return c.name }

// MetaEmit reports whether dispatches are wrapped in the MetaEvent envelope.
func (c *Controller) MetaEmit() bool { return c.metaEmit }

// Verbose reports whether soft vetoes are logged.
func (c *Controller) Verbose() bool { return c.verbose }

// IsCompanion reports whether the controller is a shared scope companion.
func (c *Controller) IsCompanion() bool { return c.isCompanion }

// RegisterListener adds fn to the pre, on or after stage of event.
// The insertion is dispatched as the stage's AddedEvent, so a pre listener on that
// meta event may veto it; ok is false in that case.
func (c *Controller) RegisterListener(ctx context.Context, stage Stage, event string, fn Listener, opts ...RecordOption) (*EventRecord, bool) {
	switch stage {
	case StagePre, StageOn, StageAfter:
	default:
		c.logger.Warn().Str("controller", c.name).Str("stage", stage.String()).Err(ErrInvalidStage).Msg("xctrl: register listener rejected")
		return nil, false
	}
	if fn == nil {
		fn = noopListener
	}
	rec, err := newRecord(c, stage, event, opts)
	if err != nil {
		c.logger.Warn().Str("controller", c.name).Str("event", event).Err(err).Msg("xctrl: register listener rejected")
		return nil, false
	}
	rec.listener = fn
	return rec, c.insert(ctx, rec)
}

// RegisterMiddleware adds fn to the middleware chain that runs before the given stage.
// Only StagePre and StageOn (or their middleware counterparts) are accepted.
func (c *Controller) RegisterMiddleware(ctx context.Context, stage Stage, event string, fn Middleware, opts ...RecordOption) (*EventRecord, bool) {
	ms, ok := middlewareStage(stage)
	if !ok {
		c.logger.Warn().Str("controller", c.name).Str("stage", stage.String()).Err(ErrInvalidStage).Msg("xctrl: register middleware rejected")
		return nil, false
	}
	if fn == nil {
		fn = func(context.Context, ...any) ([]any, error) { return nil, nil }
	}
	rec, err := newRecord(c, ms, event, opts)
	if err != nil {
		c.logger.Warn().Str("controller", c.name).Str("event", event).Err(err).Msg("xctrl: register middleware rejected")
		return nil, false
	}
	rec.middleware = fn
	return rec, c.insert(ctx, rec)
}

// Pre registers a pre-stage listener.
func (c *Controller) Pre(ctx context.Context, event string, fn Listener, opts ...RecordOption) (*EventRecord, bool) {
	return c.RegisterListener(ctx, StagePre, event, fn, opts...)
}

// On registers an on-stage listener.
func (c *Controller) On(ctx context.Context, event string, fn Listener, opts ...RecordOption) (*EventRecord, bool) {
	return c.RegisterListener(ctx, StageOn, event, fn, opts...)
}

// After registers an after-stage listener. It receives the arguments followed by the result.
func (c *Controller) After(ctx context.Context, event string, fn Listener, opts ...RecordOption) (*EventRecord, bool) {
	return c.RegisterListener(ctx, StageAfter, event, fn, opts...)
}

// Once registers a listener on stage that removes itself after its first call.
func (c *Controller) Once(ctx context.Context, stage Stage, event string, fn Listener, opts ...RecordOption) (*EventRecord, bool) {
	return c.RegisterListener(ctx, stage, event, fn, append(opts, WithRepeat(1))...)
}

// UsePre registers a middleware transform that runs before the pre stage.
func (c *Controller) UsePre(ctx context.Context, event string, fn Middleware, opts ...RecordOption) (*EventRecord, bool) {
	return c.RegisterMiddleware(ctx, StageMiddlewarePre, event, fn, opts...)
}

// UseOn registers a middleware transform that runs before the on stage.
func (c *Controller) UseOn(ctx context.Context, event string, fn Middleware, opts ...RecordOption) (*EventRecord, bool) {
	return c.RegisterMiddleware(ctx, StageMiddlewareOn, event, fn, opts...)
}

func (c *Controller) insert(ctx context.Context, rec *EventRecord) bool {
	out := c.CtrlEmit(ctx, func(context.Context, ...any) (any, error) {
		c.reg.insert(rec)
		c.notify(Event{Type: ListenerAdded, Controller: c.name, EventName: rec.event, Stage: rec.stage, RecordID: rec.id})
		return true, nil
	}, rec.stage.AddedEvent(), rec)
	ok, _ := out.Result.(bool)
	return ok
}

// RemoveListener removes rec from stage/event. rec is the token returned at registration.
func (c *Controller) RemoveListener(ctx context.Context, stage Stage, event string, rec *EventRecord) bool {
	if event == "" {
		event = UnnamedEvent
	}
	if rec == nil || rec.ctrl != c || rec.stage != stage || rec.event != event {
		return false
	}
	return c.removeRecord(ctx, rec)
}

// RemoveListenersByOwner removes every record on stage/event owned by owner.
// Each removal runs independently; the result holds one entry per matching record.
func (c *Controller) RemoveListenersByOwner(ctx context.Context, stage Stage, event string, owner any) []bool {
	if !stage.Valid() || owner == nil || !reflect.TypeOf(owner).Comparable() {
		return nil
	}
	if event == "" {
		event = UnnamedEvent
	}
	return c.removeEach(ctx, c.reg.byOwner(stage, event, owner))
}

// RemoveAllListeners removes every record on stage/event.
func (c *Controller) RemoveAllListeners(ctx context.Context, stage Stage, event string) []bool {
	if !stage.Valid() {
		return nil
	}
	if event == "" {
		event = UnnamedEvent
	}
	return c.removeEach(ctx, c.reg.snapshot(stage, event))
}

func (c *Controller) removeEach(ctx context.Context, recs []*EventRecord) []bool {
	if len(recs) == 0 {
		return nil
	}
	results := make([]bool, len(recs))
	var wg sync.WaitGroup
	for i, rec := range recs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = c.removeRecord(ctx, rec)
		}()
	}
	wg.Wait()
	return results
}

// removeRecord deletes rec through a dispatch of the stage's RemovedEvent.
// Records listening on that very meta event are never removed this way.
func (c *Controller) removeRecord(ctx context.Context, rec *EventRecord) bool {
	if rec.event == rec.stage.RemovedEvent() {
		return false
	}
	out := c.CtrlEmit(ctx, func(context.Context, ...any) (any, error) {
		removed := c.reg.remove(rec)
		if removed {
			c.notify(Event{Type: ListenerRemoved, Controller: c.name, EventName: rec.event, Stage: rec.stage, RecordID: rec.id})
		}
		return removed, nil
	}, rec.stage.RemovedEvent(), rec)
	ok, _ := out.Result.(bool)
	return ok
}

// expire removes a record whose repeat cap has been reached. A vetoed removal is
// retried each time a later dispatch meets the exhausted record.
func expire(ctx context.Context, rec *EventRecord) {
	if rec.ctrl == nil || !rec.ctrl.reg.contains(rec) {
		return
	}
	rec.ctrl.removeRecord(ctx, rec)
}

// ListenerCount returns the number of local records on stage/event.
func (c *Controller) ListenerCount(stage Stage, event string) int {
	if !stage.Valid() {
		return 0
	}
	return c.reg.count(stage, event)
}

// Listeners returns a copy of the local records on stage/event in registration order.
func (c *Controller) Listeners(stage Stage, event string) []*EventRecord {
	if !stage.Valid() {
		return nil
	}
	return c.reg.snapshot(stage, event)
}

// EventNames returns the sorted event names with at least one local record on stage.
func (c *Controller) EventNames(stage Stage) []string {
	if !stage.Valid() {
		return nil
	}
	return c.reg.events(stage)
}

// Reset discards every registration at once. Only companions may be reset.
func (c *Controller) Reset() error {
	if !c.isCompanion {
		return ErrNotCompanion
	}
	c.reg.reset()
	return nil
}

// GetMetrics returns current controller metrics.
func (c *Controller) GetMetrics() Metrics {
	var dropped uint64
	if c.observerPool != nil {
		dropped = c.observerPool.Stats().Dropped
	}
	return Metrics{
		Dispatched:       c.metrics.dispatched.Load(),
		Completed:        c.metrics.completed.Load(),
		Vetoed:           c.metrics.vetoed.Load(),
		ListenerFaults:   c.metrics.listenerFaults.Load(),
		MiddlewareFaults: c.metrics.middlewareFaults.Load(),
		ControlledFaults: c.metrics.controlledFaults.Load(),
		EventsDropped:    dropped,
		AvgDispatchMs:    float64(c.metrics.dispatchNs.Load()) / 1e6,
	}
}

// Health reports unhealthy once closed and degraded when more than 5% of
// dispatches had a failing listener or controlled function.
func (c *Controller) Health(_ context.Context) HealthStatus {
	if c.closed.Load() {
		return HealthStatus{
			Status:    "unhealthy",
			Timestamp: c.clock.Now(),
			Message:   "controller is closed",
		}
	}

	m := c.GetMetrics()
	status := "healthy"
	if m.Dispatched > 0 {
		faults := m.ListenerFaults + m.ControlledFaults
		if float64(faults)/float64(m.Dispatched) > 0.05 {
			status = "degraded"
		}
	}
	return HealthStatus{
		Status:    status,
		Metrics:   m,
		Timestamp: c.clock.Now(),
	}
}

// Close stops accepting dispatches and drains the observer pool. Idempotent.
// Controllers layered above a closed companion stop running its records.
func (c *Controller) Close(_ context.Context) error {
	var closeErr error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		if c.observerPool != nil {
			if err := c.observerPool.Close(5 * time.Second); err != nil {
				c.logger.Warn().Err(err).Str("controller", c.name).Msg("xctrl: observer pool shutdown timeout")
				closeErr = err
			}
		}
	})
	return closeErr
}

// AddObserver registers an observer (thread-safe).
func (c *Controller) AddObserver(obs Observer) {
	if obs == nil {
		return
	}
	c.observersMu.Lock()
	c.observers = append(c.observers, obs)
	c.observersMu.Unlock()
}

// RemoveObserver removes an observer. Observers of non-comparable types
// (such as ObserverFunc) cannot be removed.
func (c *Controller) RemoveObserver(obs Observer) {
	if obs == nil || !reflect.TypeOf(obs).Comparable() {
		return
	}
	c.observersMu.Lock()
	defer c.observersMu.Unlock()

	for i, o := range c.observers {
		if reflect.TypeOf(o).Comparable() && o == obs {
			c.observers = append(c.observers[:i:i], c.observers[i+1:]...)
			break
		}
	}
}

// notify hands e to the observer pool, or delivers inline when no pool is configured.
func (c *Controller) notify(e Event) {
	c.observersMu.RLock()
	if len(c.observers) == 0 {
		c.observersMu.RUnlock()
		return
	}
	observers := make([]Observer, len(c.observers))
	copy(observers, c.observers)
	c.observersMu.RUnlock()

	if c.observerPool != nil {
		c.observerPool.Notify(e, observers)
		return
	}
	e.observers = observers
	deliver(&e)
}

// recordDispatchTime keeps an exponential moving average of dispatch latency.
func (c *Controller) recordDispatchTime(ns int64) {
	const alpha = 0.2
	current := c.metrics.dispatchNs.Load()
	if current == 0 {
		c.metrics.dispatchNs.Store(ns)
		return
	}
	c.metrics.dispatchNs.Store(int64(float64(ns)*alpha + float64(current)*(1-alpha)))
}
