package metrics

import "time"

// Sink defines the interface for recording metrics.
// All methods are fire-and-forget: implementations MUST NOT block or propagate errors.
// If the metrics backend is unavailable, implementations log warnings and continue.
type Sink interface {
	// Scheduler metrics
	TickStarted()
	TickCompleted(duration time.Duration, dispatched int, err error)
	DispatchSkipped(reason string)
	InFlightUpdate(count int)

	// Execution metrics
	ExecutionCompleted(status string, category string, duration time.Duration)
	FilesDiscovered(count int)
	FilesProcessed(count int)
	NotificationEmitted(mode string, success bool)
	AdapterRetry()

	// Leader election metrics
	LeaderStatusChanged(isLeader bool)
	LeaderAcquired()
	LeaderLost(reason string)
}
