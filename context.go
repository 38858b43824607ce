package xctrl

import (
	"context"

	"github.com/trickstertwo/xlog"
)

// ctxKey is the base for all context keys in xctrl (prevents collisions).
type ctxKey string

const (
	controllerCtxKey ctxKey = "xctrl:controller"
	eventCtxKey      ctxKey = "xctrl:event"
	recordCtxKey     ctxKey = "xctrl:record"
	loggerCtxKey     ctxKey = "xctrl:logger"
)

// injectDispatch attaches the dispatching controller and event name for listeners.
func injectDispatch(ctx context.Context, c *Controller, event string) context.Context {
	ctx = context.WithValue(ctx, controllerCtxKey, c)
	ctx = context.WithValue(ctx, eventCtxKey, event)
	if c.logger != nil {
		ctx = context.WithValue(ctx, loggerCtxKey, c.logger)
	}
	return ctx
}

func injectRecord(ctx context.Context, rec *EventRecord) context.Context {
	return context.WithValue(ctx, recordCtxKey, rec)
}

// ControllerFromContext returns the controller running the current dispatch.
// Listeners registered on a companion receive the controller that dispatched,
// not the companion.
func ControllerFromContext(ctx context.Context) (*Controller, bool) {
	c, ok := ctx.Value(controllerCtxKey).(*Controller)
	return c, ok && c != nil
}

// EventFromContext returns the name of the event being dispatched.
func EventFromContext(ctx context.Context) (string, bool) {
	name, ok := ctx.Value(eventCtxKey).(string)
	return name, ok
}

// RecordFromContext returns the record whose function is running.
func RecordFromContext(ctx context.Context) (*EventRecord, bool) {
	rec, ok := ctx.Value(recordCtxKey).(*EventRecord)
	return rec, ok && rec != nil
}

func LoggerFromContext(ctx context.Context) (*xlog.Logger, bool) {
	l, ok := ctx.Value(loggerCtxKey).(*xlog.Logger)
	return l, ok && l != nil
}
