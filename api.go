package xctrl

import (
	"context"
)

// HealthChecker provides health status for production monitoring.
type HealthChecker interface {
	Health(ctx context.Context) HealthStatus
}

// API is the surface consumers use to hook into a controller.
type API interface {
	RegisterListener(ctx context.Context, stage Stage, event string, fn Listener, opts ...RecordOption) (*EventRecord, bool)
	RegisterMiddleware(ctx context.Context, stage Stage, event string, fn Middleware, opts ...RecordOption) (*EventRecord, bool)
	RemoveListener(ctx context.Context, stage Stage, event string, rec *EventRecord) bool
	RemoveListenersByOwner(ctx context.Context, stage Stage, event string, owner any) []bool
	RemoveAllListeners(ctx context.Context, stage Stage, event string) []bool

	Emit(ctx context.Context, event string, args ...any) Outcome
	CtrlEmit(ctx context.Context, fn ControlledFunc, event string, args ...any) Outcome

	ListenerCount(stage Stage, event string) int
	Listeners(stage Stage, event string) []*EventRecord
	EventNames(stage Stage) []string
	Companion() *Controller

	AddObserver(obs Observer)
	RemoveObserver(obs Observer)
	GetMetrics() Metrics
	Health(ctx context.Context) HealthStatus
	Close(ctx context.Context) error
}

var _ HealthChecker = (*Controller)(nil)
