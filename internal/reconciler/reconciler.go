// Package reconciler closes out abandoned executions.
//
// An execution is abandoned when it still reads running long after its
// deadline budget (e.g. the process crashed mid-cycle). The reconciler
// periodically scans for such records and finalizes them as failed with
// category cancelled, so no execution stays running forever and the
// scheduler's in-flight view converges with the store after a restart.
package reconciler

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub006/internal/domain"
	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub006/internal/orchestrator"
)

// Store provides stale-execution lookup and terminal finalization.
type Store interface {
	GetStaleRunningExecutions(ctx context.Context, olderThan time.Time, maxResults int) ([]domain.Execution, error)
	FinalizeExecution(ctx context.Context, exec domain.Execution) error
}

// Config holds reconciler configuration.
type Config struct {
	// Interval is how often the reconciler runs.
	Interval time.Duration

	// Threshold is the age after which a running execution is considered
	// abandoned. Must exceed the orchestrator's execution timeout.
	Threshold time.Duration

	// BatchSize is the maximum number of stale executions per cycle.
	BatchSize int
}

// DefaultConfig returns the default reconciler configuration.
func DefaultConfig() Config {
	return Config{
		Interval:  5 * time.Minute,
		Threshold: 15 * time.Minute,
		BatchSize: 100,
	}
}

type Reconciler struct {
	config Config
	store  Store
	clock  func() time.Time
}

func New(config Config, store Store) *Reconciler {
	return &Reconciler{
		config: config,
		store:  store,
		clock:  time.Now,
	}
}

// Run starts the reconciliation loop. It blocks until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	log.Printf("reconciler: started (interval=%s, threshold=%s, batch=%d)",
		r.config.Interval, r.config.Threshold, r.config.BatchSize)

	// Run immediately on startup, then on ticker
	r.runCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Println("reconciler: stopped")
			return
		case <-ticker.C:
			r.runCycle(ctx)
		}
	}
}

func (r *Reconciler) runCycle(ctx context.Context) {
	now := r.clock().UTC()
	threshold := now.Add(-r.config.Threshold)

	stale, err := r.store.GetStaleRunningExecutions(ctx, threshold, r.config.BatchSize)
	if err != nil {
		// DB error: log and abort cycle. Will retry next interval.
		log.Printf("reconciler: failed to fetch stale executions: %v", err)
		return
	}

	if len(stale) == 0 {
		return
	}

	log.Printf("reconciler: found %d abandoned executions", len(stale))

	closed := 0
	for _, exec := range stale {
		if ctx.Err() != nil {
			log.Printf("reconciler: cycle interrupted, closed %d/%d", closed, len(stale))
			return
		}

		finished := now
		exec.Status = domain.ExecutionStatusFailed
		exec.ErrorCategory = domain.CategoryCancelled
		exec.ErrorMessage = "execution abandoned: closed by watchdog"
		exec.FinishedAt = &finished
		exec.Duration = finished.Sub(exec.StartedAt)

		if err := r.store.FinalizeExecution(ctx, exec); err != nil {
			if errors.Is(err, orchestrator.ErrStatusTransitionDenied) {
				// Finished between our read and write. Fine.
				continue
			}
			log.Printf("reconciler: failed to close execution=%s: %v", exec.ID, err)
			continue
		}

		log.Printf("reconciler: closed abandoned execution=%s config=%s (age=%s)",
			exec.ID, exec.ConfigurationID, now.Sub(exec.StartedAt).Round(time.Second))
		closed++
	}

	log.Printf("reconciler: cycle complete, closed=%d", closed)
}
