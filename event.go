package xctrl

import (
	"time"
)

// EventType enumerates controller lifecycle events for the Observer pattern.
type EventType string

const (
	DispatchStart   EventType = "dispatch_start"
	DispatchDone    EventType = "dispatch_done"
	Vetoed          EventType = "vetoed"
	ListenerFault   EventType = "listener_fault"
	ControlledFault EventType = "controlled_fault"
	ListenerAdded   EventType = "listener_added"
	ListenerRemoved EventType = "listener_removed"
)

// Event carries telemetry for observers.
type Event struct {
	Type       EventType
	Controller string
	EventName  string
	Stage      Stage
	RecordID   uint64
	Duration   time.Duration
	Err        error
	// Severity and Logged are set on Vetoed events.
	Severity Severity
	Logged   bool

	// Internal: attached for async dispatch
	observers []Observer
}
