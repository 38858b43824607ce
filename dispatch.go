package xctrl

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// Emit dispatches event with a no-op controlled function.
func (c *Controller) Emit(ctx context.Context, event string, args ...any) Outcome {
	return c.CtrlEmit(ctx, noopControlled, event, args...)
}

// CtrlEmit runs fn as the controlled function of a dispatch of event.
//
// Stages run in order: pre middleware, pre listeners (any error vetoes the dispatch),
// on middleware, on listeners joined with fn, after listeners. CtrlEmit never panics;
// a veto, a failing fn or a closed controller are reported through the Outcome.
func (c *Controller) CtrlEmit(ctx context.Context, fn ControlledFunc, event string, args ...any) Outcome {
	if ctx == nil {
		ctx = context.Background()
	}
	if fn == nil {
		fn = noopControlled
	}
	if c.closed.Load() {
		return Outcome{Err: ErrControllerClosed}
	}
	if c.metaEmit && event != MetaEvent {
		return c.envelope(ctx, fn, event, args)
	}
	return c.dispatch(ctx, fn, event, args, false)
}

// envelope dispatches MetaEvent with (event, args...) and performs the named dispatch
// as its controlled function. MetaEvent itself is never enveloped, so nesting stops here.
// Metrics count the pair once: the named dispatch, or the envelope when it is vetoed.
func (c *Controller) envelope(ctx context.Context, fn ControlledFunc, event string, args []any) Outcome {
	meta := make([]any, 0, len(args)+1)
	meta = append(meta, event)
	meta = append(meta, args...)

	var inner Outcome
	outer := c.dispatch(ctx, func(ctx context.Context, _ ...any) (any, error) {
		inner = c.dispatch(ctx, fn, event, args, false)
		return inner.Result, nil
	}, MetaEvent, meta, true)
	if !outer.Completed() {
		return outer
	}
	return inner
}

func (c *Controller) dispatch(ctx context.Context, fn ControlledFunc, event string, args []any, wrapper bool) Outcome {
	ctx, span := c.tracer.Start(ctx, "xctrl.dispatch", trace.WithAttributes(
		attribute.String("xctrl.controller", c.name),
		attribute.String("xctrl.event", event),
	))
	defer span.End()

	start := c.clock.Now()
	if !wrapper {
		c.metrics.dispatched.Add(1)
	}
	c.notify(Event{Type: DispatchStart, Controller: c.name, EventName: event})
	ctx = injectDispatch(ctx, c, event)

	args = c.reduce(ctx, StageMiddlewarePre, event, args)

	if veto := c.runPre(ctx, event, args); veto != nil {
		if wrapper {
			c.metrics.dispatched.Add(1)
		}
		c.metrics.vetoed.Add(1)
		logged := c.logVeto(event, veto)
		span.SetAttributes(attribute.String("xctrl.veto", veto.Severity.String()))
		span.SetStatus(codes.Error, veto.Error())
		c.notify(Event{
			Type:       Vetoed,
			Controller: c.name,
			EventName:  event,
			Stage:      StagePre,
			Duration:   c.clock.Since(start),
			Err:        veto,
			Severity:   veto.Severity,
			Logged:     logged,
		})
		return Outcome{Veto: veto}
	}

	args = c.reduce(ctx, StageMiddlewareOn, event, args)

	result, err := c.join(ctx, fn, event, args)
	if err != nil {
		c.metrics.controlledFaults.Add(1)
		c.logger.Error().
			Str("controller", c.name).
			Str("event", event).
			Err(err).
			Str("stack", fmt.Sprintf("%+v", err)).
			Msg("xctrl: controlled function failed")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.notify(Event{Type: ControlledFault, Controller: c.name, EventName: event, Stage: StageOn, Err: err})
		return Outcome{Err: err}
	}

	afterArgs := make([]any, len(args)+1)
	copy(afterArgs, args)
	afterArgs[len(args)] = result
	c.fanOut(ctx, StageAfter, event, afterArgs)

	duration := c.clock.Since(start)
	if !wrapper {
		c.recordDispatchTime(duration.Nanoseconds())
		c.metrics.completed.Add(1)
	}
	c.notify(Event{Type: DispatchDone, Controller: c.name, EventName: event, Duration: duration})
	return Outcome{Result: result}
}

// reduce runs a middleware chain left to right. Companion transforms run first.
// Failures keep the previous arguments and are only counted.
func (c *Controller) reduce(ctx context.Context, stage Stage, event string, args []any) []any {
	for _, rec := range c.records(stage, event) {
		ok, last := rec.take()
		if !ok {
			expire(ctx, rec)
			continue
		}
		next, err := transform(ctx, rec, args)
		if last {
			expire(ctx, rec)
		}
		if err != nil {
			c.metrics.middlewareFaults.Add(1)
			continue
		}
		if next != nil {
			args = next
		}
	}
	return args
}

func transform(ctx context.Context, rec *EventRecord, args []any) (out []any, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, panicError(r)
		}
	}()
	return rec.middleware(injectRecord(ctx, rec), cloneArgs(args)...)
}

// runPre fans out to every pre listener and waits for all of them.
// The first error becomes the veto.
func (c *Controller) runPre(ctx context.Context, event string, args []any) *Veto {
	recs := c.records(StagePre, event)
	if len(recs) == 0 {
		return nil
	}
	var g errgroup.Group
	for _, rec := range recs {
		g.Go(func() error { return invoke(ctx, rec, args) })
	}
	if err := g.Wait(); err != nil {
		return asVeto(err)
	}
	return nil
}

// join runs the on listeners and fn together and waits for all of them.
func (c *Controller) join(ctx context.Context, fn ControlledFunc, event string, args []any) (result any, err error) {
	var g errgroup.Group
	for _, rec := range c.records(StageOn, event) {
		g.Go(func() error {
			if lerr := invoke(ctx, rec, args); lerr != nil {
				c.listenerFault(event, rec, lerr)
			}
			return nil
		})
	}
	g.Go(func() error {
		defer func() {
			if r := recover(); r != nil {
				result, err = nil, panicError(r)
			}
		}()
		result, err = fn(ctx, cloneArgs(args)...)
		return nil
	})
	_ = g.Wait()
	return result, err
}

// fanOut runs every listener on stage concurrently; failures are isolated.
func (c *Controller) fanOut(ctx context.Context, stage Stage, event string, args []any) {
	recs := c.records(stage, event)
	if len(recs) == 0 {
		return
	}
	var g errgroup.Group
	for _, rec := range recs {
		g.Go(func() error {
			if err := invoke(ctx, rec, args); err != nil {
				c.listenerFault(event, rec, err)
			}
			return nil
		})
	}
	_ = g.Wait()
}

func invoke(ctx context.Context, rec *EventRecord, args []any) (err error) {
	ok, last := rec.take()
	if !ok {
		expire(ctx, rec)
		return nil
	}
	if last {
		defer expire(ctx, rec)
	}
	defer func() {
		if r := recover(); r != nil {
			err = panicError(r)
		}
	}()
	return rec.listener(injectRecord(ctx, rec), cloneArgs(args)...)
}

func (c *Controller) listenerFault(event string, rec *EventRecord, err error) {
	c.metrics.listenerFaults.Add(1)
	c.logger.Warn().
		Str("controller", c.name).
		Str("event", event).
		Str("stage", rec.stage.String()).
		Err(err).
		Msg("xctrl: listener failed")
	c.notify(Event{
		Type:       ListenerFault,
		Controller: c.name,
		EventName:  event,
		Stage:      rec.stage,
		RecordID:   rec.id,
		Err:        err,
	})
}

// logVeto logs hard vetoes always and soft vetoes only when verbose.
func (c *Controller) logVeto(event string, v *Veto) bool {
	if v.Severity == SeveritySoft {
		if !c.verbose {
			return false
		}
		c.logger.Info().
			Str("controller", c.name).
			Str("event", event).
			Str("reason", fmt.Sprint(v.Reason)).
			Msg("xctrl: dispatch stopped")
		return true
	}
	c.logger.Error().
		Str("controller", c.name).
		Str("event", event).
		Err(v.Err).
		Str("stack", fmt.Sprintf("%+v", withStack(v.Err))).
		Msg("xctrl: dispatch vetoed")
	return true
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

func withStack(err error) error {
	var st stackTracer
	if errors.As(err, &st) {
		return err
	}
	return errors.WithStack(err)
}

func cloneArgs(args []any) []any {
	if len(args) == 0 {
		return nil
	}
	out := make([]any, len(args))
	copy(out, args)
	return out
}
