package metrics

import (
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusSink implements Sink using the Prometheus client library.
// All methods are non-blocking and fire-and-forget.
// Registration errors are logged but never propagated.
type PrometheusSink struct {
	// Scheduler metrics
	ticksTotal           prometheus.Counter
	tickErrorsTotal      prometheus.Counter
	dispatchedTotal      prometheus.Counter
	tickDuration         prometheus.Histogram
	dispatchSkippedTotal *prometheus.CounterVec
	executionsInFlight   prometheus.Gauge

	// Execution metrics
	executionsTotal      *prometheus.CounterVec
	executionDuration    prometheus.Histogram
	filesDiscoveredTotal prometheus.Counter
	filesProcessedTotal  prometheus.Counter
	notificationsTotal   *prometheus.CounterVec
	adapterRetriesTotal  prometheus.Counter

	// Leader election metrics
	leaderStatus        prometheus.Gauge
	leaderAcquiredTotal prometheus.Counter
	leaderLostTotal     *prometheus.CounterVec
}

// NewPrometheusSink creates a new Prometheus metrics sink.
// If registration fails, it logs a warning and returns a functional sink.
func NewPrometheusSink(reg prometheus.Registerer) *PrometheusSink {
	s := &PrometheusSink{}
	s.initSchedulerMetrics(reg)
	s.initExecutionMetrics(reg)
	s.initLeaderMetrics(reg)
	return s
}

func (s *PrometheusSink) initSchedulerMetrics(reg prometheus.Registerer) {
	s.ticksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ingest_scheduler_ticks_total",
		Help: "Total number of scheduler ticks processed.",
	})
	s.tickErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ingest_scheduler_tick_errors_total",
		Help: "Total number of scheduler tick errors.",
	})
	s.dispatchedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ingest_scheduler_dispatched_total",
		Help: "Total number of executions dispatched to the worker pool.",
	})
	s.tickDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "ingest_scheduler_tick_duration_seconds",
		Help:    "Duration of each scheduler tick in seconds.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
	})
	s.dispatchSkippedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_scheduler_dispatch_skipped_total",
		Help: "Total number of due configurations skipped at dispatch.",
	}, []string{"reason"})
	s.executionsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ingest_scheduler_executions_in_flight",
		Help: "Number of executions currently running.",
	})

	s.register(reg, s.ticksTotal, "ingest_scheduler_ticks_total")
	s.register(reg, s.tickErrorsTotal, "ingest_scheduler_tick_errors_total")
	s.register(reg, s.dispatchedTotal, "ingest_scheduler_dispatched_total")
	s.register(reg, s.tickDuration, "ingest_scheduler_tick_duration_seconds")
	s.register(reg, s.dispatchSkippedTotal, "ingest_scheduler_dispatch_skipped_total")
	s.register(reg, s.executionsInFlight, "ingest_scheduler_executions_in_flight")
}

func (s *PrometheusSink) initExecutionMetrics(reg prometheus.Registerer) {
	s.executionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_executions_total",
		Help: "Total number of finished executions by status and error category.",
	}, []string{"status", "category"})

	s.executionDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "ingest_execution_duration_seconds",
		Help:    "Duration of one discovery execution in seconds.",
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	})

	s.filesDiscoveredTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ingest_files_discovered_total",
		Help: "Total number of files returned by adapter listings.",
	})

	s.filesProcessedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ingest_files_processed_total",
		Help: "Total number of newly processed (ledger-recorded) files.",
	})

	s.notificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_notifications_total",
		Help: "Total number of notification emissions by mode and outcome.",
	}, []string{"mode", "outcome"})

	s.adapterRetriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ingest_adapter_retries_total",
		Help: "Total number of adapter listing retries after transient errors.",
	})

	s.register(reg, s.executionsTotal, "ingest_executions_total")
	s.register(reg, s.executionDuration, "ingest_execution_duration_seconds")
	s.register(reg, s.filesDiscoveredTotal, "ingest_files_discovered_total")
	s.register(reg, s.filesProcessedTotal, "ingest_files_processed_total")
	s.register(reg, s.notificationsTotal, "ingest_notifications_total")
	s.register(reg, s.adapterRetriesTotal, "ingest_adapter_retries_total")
}

func (s *PrometheusSink) initLeaderMetrics(reg prometheus.Registerer) {
	s.leaderStatus = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ingest_leader_status",
		Help: "1 when this instance holds the leader lock, 0 otherwise.",
	})
	s.leaderAcquiredTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ingest_leader_acquired_total",
		Help: "Total number of times this instance acquired leadership.",
	})
	s.leaderLostTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_leader_lost_total",
		Help: "Total number of times this instance lost leadership, by reason.",
	}, []string{"reason"})

	s.register(reg, s.leaderStatus, "ingest_leader_status")
	s.register(reg, s.leaderAcquiredTotal, "ingest_leader_acquired_total")
	s.register(reg, s.leaderLostTotal, "ingest_leader_lost_total")
}

// register attempts to register a collector, logging any errors without propagating them.
func (s *PrometheusSink) register(reg prometheus.Registerer, c prometheus.Collector, name string) {
	if err := reg.Register(c); err != nil {
		log.Printf("metrics: failed to register %s: %v", name, err)
	}
}

// Scheduler metrics implementation

func (s *PrometheusSink) TickStarted() {
	s.ticksTotal.Inc()
}

func (s *PrometheusSink) TickCompleted(duration time.Duration, dispatched int, err error) {
	s.tickDuration.Observe(duration.Seconds())
	s.dispatchedTotal.Add(float64(dispatched))
	if err != nil {
		s.tickErrorsTotal.Inc()
	}
}

func (s *PrometheusSink) DispatchSkipped(reason string) {
	s.dispatchSkippedTotal.WithLabelValues(reason).Inc()
}

func (s *PrometheusSink) InFlightUpdate(count int) {
	s.executionsInFlight.Set(float64(count))
}

// Execution metrics implementation

func (s *PrometheusSink) ExecutionCompleted(status string, category string, duration time.Duration) {
	s.executionsTotal.WithLabelValues(status, category).Inc()
	s.executionDuration.Observe(duration.Seconds())
}

func (s *PrometheusSink) FilesDiscovered(count int) {
	s.filesDiscoveredTotal.Add(float64(count))
}

func (s *PrometheusSink) FilesProcessed(count int) {
	s.filesProcessedTotal.Add(float64(count))
}

func (s *PrometheusSink) NotificationEmitted(mode string, success bool) {
	outcome := "success"
	if !success {
		outcome = "failed"
	}
	s.notificationsTotal.WithLabelValues(mode, outcome).Inc()
}

func (s *PrometheusSink) AdapterRetry() {
	s.adapterRetriesTotal.Inc()
}

// Leader election metrics implementation

func (s *PrometheusSink) LeaderStatusChanged(isLeader bool) {
	if isLeader {
		s.leaderStatus.Set(1)
	} else {
		s.leaderStatus.Set(0)
	}
}

func (s *PrometheusSink) LeaderAcquired() {
	s.leaderAcquiredTotal.Inc()
}

func (s *PrometheusSink) LeaderLost(reason string) {
	s.leaderLostTotal.WithLabelValues(reason).Inc()
}
