// Package scheduler runs the polling control loop: on every tick it scans
// for configurations whose next scheduled run has passed and hands them to
// the orchestrator through a bounded worker pool.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub006/internal/domain"
)

// ErrBusy is returned by TriggerNow when the configuration is already
// running or no worker slot is free.
var ErrBusy = errors.New("configuration already running or worker pool full")

// Store lists active configurations that are due.
type Store interface {
	GetDueConfigurations(ctx context.Context, now time.Time, limit int) ([]domain.Configuration, error)
}

// Runner executes one discovery cycle. The scheduler never inspects the
// result; failures live in the execution record.
type Runner interface {
	ExecuteAs(ctx context.Context, cfg domain.Configuration, trigger domain.TriggerKind, executionID uuid.UUID) domain.Execution
}

// MetricsSink records scheduler metrics. All methods must be non-blocking
// and fire-and-forget.
type MetricsSink interface {
	TickStarted()
	TickCompleted(duration time.Duration, dispatched int, err error)
	DispatchSkipped(reason string)
	InFlightUpdate(count int)
}

// Skip reasons for DispatchSkipped.
const (
	SkipInFlight = "in_flight"
	SkipPoolFull = "pool_full"
)

type Config struct {
	TickInterval time.Duration
	Workers      int
	// QueryLimit caps how many due configurations one tick picks up; the
	// remainder is caught by the next tick.
	QueryLimit int
}

type Scheduler struct {
	config  Config
	store   Store
	runner  Runner
	metrics MetricsSink // optional, nil = disabled
	clock   func() time.Time

	mu       sync.Mutex
	inFlight map[uuid.UUID]struct{}

	sem chan struct{}
	wg  sync.WaitGroup
}

func New(config Config, store Store, runner Runner) *Scheduler {
	if config.Workers <= 0 {
		config.Workers = 4
	}
	if config.QueryLimit <= 0 {
		config.QueryLimit = 100
	}
	return &Scheduler{
		config:   config,
		store:    store,
		runner:   runner,
		clock:    time.Now,
		inFlight: make(map[uuid.UUID]struct{}),
		sem:      make(chan struct{}, config.Workers),
	}
}

func (s *Scheduler) WithMetrics(sink MetricsSink) *Scheduler {
	s.metrics = sink
	return s
}

// Run drives the tick loop until ctx is cancelled, then waits for in-flight
// executions to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.config.TickInterval)
	defer ticker.Stop()

	log.Printf("scheduler: started, tick=%s workers=%d", s.config.TickInterval, s.config.Workers)

	for {
		select {
		case <-ctx.Done():
			log.Println("scheduler: stopping, waiting for in-flight executions")
			s.wg.Wait()
			log.Println("scheduler: stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := s.processTick(ctx); err != nil {
				log.Printf("scheduler: tick error: %v", err)
			}
		}
	}
}

func (s *Scheduler) processTick(ctx context.Context) error {
	start := s.clock().UTC()
	if s.metrics != nil {
		s.metrics.TickStarted()
	}

	configs, err := s.store.GetDueConfigurations(ctx, start, s.config.QueryLimit)
	if err != nil {
		if s.metrics != nil {
			s.metrics.TickCompleted(s.clock().UTC().Sub(start), 0, err)
		}
		return fmt.Errorf("get due configurations: %w", err)
	}

	dispatched := 0
	for _, cfg := range configs {
		if s.dispatch(ctx, cfg, domain.TriggerScheduled, uuid.New()) {
			dispatched++
		}
	}

	if s.metrics != nil {
		s.metrics.TickCompleted(s.clock().UTC().Sub(start), dispatched, nil)
	}
	return nil
}

// dispatch hands one configuration to the worker pool. Fire-and-forget: the
// tick never blocks on a slow execution. A configuration still running from
// a prior tick is skipped, as is everything beyond the pool's capacity;
// both are picked up again on a later tick.
func (s *Scheduler) dispatch(ctx context.Context, cfg domain.Configuration, trigger domain.TriggerKind, executionID uuid.UUID) bool {
	if !s.markInFlight(cfg.ID) {
		if s.metrics != nil {
			s.metrics.DispatchSkipped(SkipInFlight)
		}
		return false
	}

	select {
	case s.sem <- struct{}{}:
	default:
		s.clearInFlight(cfg.ID)
		if s.metrics != nil {
			s.metrics.DispatchSkipped(SkipPoolFull)
		}
		return false
	}

	// The execution must outlive the caller: a manual trigger's request
	// context is cancelled the moment the response is written. The
	// orchestrator's own execution deadline bounds the run instead.
	execCtx := context.WithoutCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer func() {
			<-s.sem
			s.clearInFlight(cfg.ID)
			s.wg.Done()
		}()
		s.runner.ExecuteAs(execCtx, cfg, trigger, executionID)
	}()
	return true
}

// TriggerNow forces one immediate execution outside the schedule and
// returns its id for correlation. Fails when the configuration is already
// running or the pool is saturated.
func (s *Scheduler) TriggerNow(ctx context.Context, cfg domain.Configuration) (uuid.UUID, error) {
	executionID := uuid.New()
	if !s.dispatch(ctx, cfg, domain.TriggerManual, executionID) {
		return uuid.Nil, fmt.Errorf("configuration %s: %w", cfg.ID, ErrBusy)
	}
	return executionID, nil
}

func (s *Scheduler) markInFlight(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, running := s.inFlight[id]; running {
		return false
	}
	s.inFlight[id] = struct{}{}
	if s.metrics != nil {
		s.metrics.InFlightUpdate(len(s.inFlight))
	}
	return true
}

func (s *Scheduler) clearInFlight(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, id)
	if s.metrics != nil {
		s.metrics.InFlightUpdate(len(s.inFlight))
	}
}
