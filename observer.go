package xctrl

import (
	"github.com/trickstertwo/xlog"
)

// Observer receives controller lifecycle events. Implementations should be non-blocking.
type Observer interface {
	OnEvent(e Event)
}

// ObserverFunc is an Adapter that lets a plain function satisfy Observer.
type ObserverFunc func(e Event)

func (f ObserverFunc) OnEvent(e Event) { f(e) }

// LoggingObserver is an Adapter that emits controller events via xlog.
type LoggingObserver struct {
	Logger *xlog.Logger
}

// OnEvent logs at debug. Listener and controlled-function faults are skipped; the
// controller logs those where they occur.
func (o LoggingObserver) OnEvent(e Event) {
	if o.Logger == nil || e.Type == ListenerFault || e.Type == ControlledFault {
		return
	}
	ev := o.Logger.With(
		xlog.Str("type", string(e.Type)),
		xlog.Str("controller", e.Controller),
		xlog.Str("event_name", e.EventName),
		xlog.Str("stage", e.Stage.String()),
	)
	if e.Duration > 0 {
		ev = ev.With(xlog.Dur("duration", e.Duration))
	}
	ev.Debug().Msg("xctrl event")
}
