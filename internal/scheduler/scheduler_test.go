package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub006/internal/domain"
)

type mockStore struct {
	mu      sync.Mutex
	configs []domain.Configuration
}

func (s *mockStore) GetDueConfigurations(ctx context.Context, now time.Time, limit int) ([]domain.Configuration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.configs) > limit {
		return s.configs[:limit], nil
	}
	return s.configs, nil
}

// mockRunner counts executions per configuration; block makes executions
// hang until released, to exercise in-flight tracking.
type mockRunner struct {
	mu      sync.Mutex
	runs    map[uuid.UUID]int
	started atomic.Int32
	block   chan struct{}   // nil = return immediately
	lastCtx context.Context // context the latest execution ran on
}

func newMockRunner() *mockRunner {
	return &mockRunner{runs: make(map[uuid.UUID]int)}
}

func (r *mockRunner) ExecuteAs(ctx context.Context, cfg domain.Configuration, trigger domain.TriggerKind, executionID uuid.UUID) domain.Execution {
	r.mu.Lock()
	r.lastCtx = ctx
	r.mu.Unlock()
	r.started.Add(1)
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	r.runs[cfg.ID]++
	r.mu.Unlock()
	return domain.Execution{ID: executionID, ConfigurationID: cfg.ID, Status: domain.ExecutionStatusCompleted}
}

func (r *mockRunner) runCount(id uuid.UUID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runs[id]
}

func (r *mockRunner) executionCtx() context.Context {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastCtx
}

func dueConfig() domain.Configuration {
	return domain.Configuration{
		ID:       uuid.New(),
		TenantID: uuid.New(),
		Active:   true,
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never met")
}

func TestProcessTick_DispatchesDueConfigurations(t *testing.T) {
	cfgA, cfgB := dueConfig(), dueConfig()
	store := &mockStore{configs: []domain.Configuration{cfgA, cfgB}}
	runner := newMockRunner()

	s := New(Config{TickInterval: time.Second, Workers: 4}, store, runner)

	if err := s.processTick(context.Background()); err != nil {
		t.Fatalf("processTick: %v", err)
	}
	s.wg.Wait()

	if runner.runCount(cfgA.ID) != 1 || runner.runCount(cfgB.ID) != 1 {
		t.Errorf("runs = %d/%d, want 1/1", runner.runCount(cfgA.ID), runner.runCount(cfgB.ID))
	}
}

func TestProcessTick_SkipsInFlightConfiguration(t *testing.T) {
	cfg := dueConfig()
	store := &mockStore{configs: []domain.Configuration{cfg}}
	runner := newMockRunner()
	runner.block = make(chan struct{})

	s := New(Config{TickInterval: time.Second, Workers: 4}, store, runner)

	// First tick dispatches; the execution hangs.
	if err := s.processTick(context.Background()); err != nil {
		t.Fatalf("processTick: %v", err)
	}
	waitFor(t, time.Second, func() bool { return runner.started.Load() == 1 })

	// Second tick must not dispatch the same configuration again.
	if err := s.processTick(context.Background()); err != nil {
		t.Fatalf("processTick: %v", err)
	}
	if got := runner.started.Load(); got != 1 {
		t.Errorf("started = %d, want 1 (in-flight configuration skipped)", got)
	}

	close(runner.block)
	s.wg.Wait()

	// After completion the next tick picks it up again.
	runner.block = nil
	if err := s.processTick(context.Background()); err != nil {
		t.Fatalf("processTick: %v", err)
	}
	s.wg.Wait()

	if got := runner.runCount(cfg.ID); got != 2 {
		t.Errorf("runs = %d, want 2", got)
	}
}

func TestProcessTick_WorkerPoolBounded(t *testing.T) {
	var configs []domain.Configuration
	for i := 0; i < 6; i++ {
		configs = append(configs, dueConfig())
	}
	store := &mockStore{configs: configs}
	runner := newMockRunner()
	runner.block = make(chan struct{})

	s := New(Config{TickInterval: time.Second, Workers: 2}, store, runner)

	if err := s.processTick(context.Background()); err != nil {
		t.Fatalf("processTick: %v", err)
	}
	waitFor(t, time.Second, func() bool { return runner.started.Load() == 2 })

	// Only two workers: the other four were skipped, not queued.
	time.Sleep(20 * time.Millisecond)
	if got := runner.started.Load(); got != 2 {
		t.Errorf("started = %d, want 2 (pool bound)", got)
	}

	close(runner.block)
	s.wg.Wait()
}

func TestTriggerNow(t *testing.T) {
	cfg := dueConfig()
	runner := newMockRunner()
	s := New(Config{TickInterval: time.Second, Workers: 2}, &mockStore{}, runner)

	execID, err := s.TriggerNow(context.Background(), cfg)
	if err != nil {
		t.Fatalf("TriggerNow: %v", err)
	}
	if execID == uuid.Nil {
		t.Fatal("TriggerNow returned nil execution id")
	}
	s.wg.Wait()

	if got := runner.runCount(cfg.ID); got != 1 {
		t.Errorf("runs = %d, want 1", got)
	}
}

func TestTriggerNow_RejectsWhileRunning(t *testing.T) {
	cfg := dueConfig()
	runner := newMockRunner()
	runner.block = make(chan struct{})
	s := New(Config{TickInterval: time.Second, Workers: 2}, &mockStore{}, runner)

	if _, err := s.TriggerNow(context.Background(), cfg); err != nil {
		t.Fatalf("first TriggerNow: %v", err)
	}
	waitFor(t, time.Second, func() bool { return runner.started.Load() == 1 })

	if _, err := s.TriggerNow(context.Background(), cfg); !errors.Is(err, ErrBusy) {
		t.Errorf("second TriggerNow while the first is running: err = %v, want ErrBusy", err)
	}

	close(runner.block)
	s.wg.Wait()
}

func TestTriggerNow_ExecutionSurvivesCallerCancel(t *testing.T) {
	cfg := dueConfig()
	runner := newMockRunner()
	runner.block = make(chan struct{})
	s := New(Config{TickInterval: time.Second, Workers: 2}, &mockStore{}, runner)

	// An HTTP request context is cancelled as soon as the trigger response
	// is written; the execution must keep running regardless.
	ctx, cancel := context.WithCancel(context.Background())
	if _, err := s.TriggerNow(ctx, cfg); err != nil {
		t.Fatalf("TriggerNow: %v", err)
	}
	waitFor(t, time.Second, func() bool { return runner.started.Load() == 1 })

	cancel()
	time.Sleep(20 * time.Millisecond)

	if err := runner.executionCtx().Err(); err != nil {
		t.Errorf("execution context cancelled with the caller: %v", err)
	}

	close(runner.block)
	s.wg.Wait()

	if got := runner.runCount(cfg.ID); got != 1 {
		t.Errorf("runs = %d, want 1 (execution completed after caller cancel)", got)
	}
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	store := &mockStore{}
	runner := newMockRunner()
	s := New(Config{TickInterval: 10 * time.Millisecond, Workers: 2}, store, runner)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
