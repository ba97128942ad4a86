package metrics

import "time"

// NoopSink is a no-op implementation of Sink.
// Used when metrics are disabled to avoid nil checks.
type NoopSink struct{}

// NewNoopSink returns a no-op metrics sink.
func NewNoopSink() *NoopSink {
	return &NoopSink{}
}

func (n *NoopSink) TickStarted()                                                        {}
func (n *NoopSink) TickCompleted(duration time.Duration, dispatched int, err error)     {}
func (n *NoopSink) DispatchSkipped(reason string)                                       {}
func (n *NoopSink) InFlightUpdate(count int)                                            {}
func (n *NoopSink) ExecutionCompleted(status string, category string, d time.Duration)  {}
func (n *NoopSink) FilesDiscovered(count int)                                           {}
func (n *NoopSink) FilesProcessed(count int)                                            {}
func (n *NoopSink) NotificationEmitted(mode string, success bool)                       {}
func (n *NoopSink) AdapterRetry()                                                       {}
func (n *NoopSink) LeaderStatusChanged(isLeader bool)                                   {}
func (n *NoopSink) LeaderAcquired()                                                     {}
func (n *NoopSink) LeaderLost(reason string)                                            {}
