package reconciler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub006/internal/domain"
	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub006/internal/orchestrator"
	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub006/internal/testutil"
)

type mockStore struct {
	mu        sync.Mutex
	stale     []domain.Execution
	finalized []domain.Execution
	denyIDs   map[uuid.UUID]bool
}

func (s *mockStore) GetStaleRunningExecutions(ctx context.Context, olderThan time.Time, maxResults int) ([]domain.Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Execution
	for _, e := range s.stale {
		if e.StartedAt.Before(olderThan) {
			out = append(out, e)
		}
		if len(out) >= maxResults {
			break
		}
	}
	return out, nil
}

func (s *mockStore) FinalizeExecution(ctx context.Context, exec domain.Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.denyIDs[exec.ID] {
		return orchestrator.ErrStatusTransitionDenied
	}
	s.finalized = append(s.finalized, exec)
	return nil
}

func TestRunCycle_ClosesAbandonedExecutions(t *testing.T) {
	now := time.Date(2026, 2, 23, 12, 0, 0, 0, time.UTC)

	old := domain.Execution{
		ID:              uuid.New(),
		ConfigurationID: uuid.New(),
		Status:          domain.ExecutionStatusRunning,
		StartedAt:       now.Add(-time.Hour),
	}
	recent := domain.Execution{
		ID:        uuid.New(),
		Status:    domain.ExecutionStatusRunning,
		StartedAt: now.Add(-time.Minute),
	}

	store := &mockStore{stale: []domain.Execution{old, recent}}
	r := New(Config{Interval: time.Minute, Threshold: 15 * time.Minute, BatchSize: 10}, store)
	r.clock = testutil.NewFakeClock(now).Now

	r.runCycle(testutil.TestContext(t))

	if len(store.finalized) != 1 {
		t.Fatalf("finalized %d executions, want 1", len(store.finalized))
	}
	got := store.finalized[0]
	if got.ID != old.ID {
		t.Errorf("closed execution %s, want %s", got.ID, old.ID)
	}
	if got.Status != domain.ExecutionStatusFailed || got.ErrorCategory != domain.CategoryCancelled {
		t.Errorf("closed as %s/%s, want failed/cancelled", got.Status, got.ErrorCategory)
	}
	if got.FinishedAt == nil || !got.FinishedAt.Equal(now) {
		t.Errorf("finishedAt = %v, want %s", got.FinishedAt, now)
	}
}

func TestRunCycle_TerminalRaceIsNotAnError(t *testing.T) {
	now := time.Date(2026, 2, 23, 12, 0, 0, 0, time.UTC)
	exec := domain.Execution{
		ID:        uuid.New(),
		Status:    domain.ExecutionStatusRunning,
		StartedAt: now.Add(-time.Hour),
	}

	store := &mockStore{
		stale:   []domain.Execution{exec},
		denyIDs: map[uuid.UUID]bool{exec.ID: true},
	}
	r := New(Config{Interval: time.Minute, Threshold: 15 * time.Minute, BatchSize: 10}, store)
	r.clock = testutil.NewFakeClock(now).Now

	// Must not panic or retry endlessly; the denial means the execution
	// finished normally between read and write.
	r.runCycle(testutil.TestContext(t))

	if len(store.finalized) != 0 {
		t.Errorf("finalized %d executions, want 0", len(store.finalized))
	}
}
