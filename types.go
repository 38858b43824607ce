package xctrl

import "time"

// PoolStats returns telemetry about the observer pool.
type PoolStats struct {
	Dropped      uint64 // Events dropped due to full buffer
	Processed    uint64 // Events successfully processed
	ActiveEvents int    // Current queue depth
	Workers      int    // Number of dispatch goroutines
	BufferSize   int    // Channel capacity
}

// Metrics defines observable telemetry for a controller.
type Metrics struct {
	Dispatched       uint64
	Completed        uint64
	Vetoed           uint64
	ListenerFaults   uint64
	MiddlewareFaults uint64
	ControlledFaults uint64
	EventsDropped    uint64
	AvgDispatchMs    float64
}

// HealthStatus indicates controller health.
type HealthStatus struct {
	Status    string // "healthy", "degraded", "unhealthy"
	Metrics   Metrics
	Timestamp time.Time
	Message   string
}
