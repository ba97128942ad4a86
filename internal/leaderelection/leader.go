// Package leaderelection elects a single active instance through a Postgres
// session advisory lock. Only the leader runs the polling scheduler and the
// execution watchdog; followers serve HTTP and wait.
//
// The lock lives as long as the dedicated database connection. There is no
// renewal and no TTL: if the connection dies, Postgres releases the lock
// server-side. The heartbeat ping only detects local connection death so the
// leader can step down promptly, it does not touch the lock.
package leaderelection

import (
	"context"
	"database/sql"
	"log"
	"time"
)

// Demotion reasons as reported to the metrics sink.
const (
	ReasonShutdown = "shutdown"
	ReasonConnLost = "conn_lost"
)

// MetricsSink records leadership transitions. All methods are non-blocking
// and fire-and-forget.
type MetricsSink interface {
	LeaderStatusChanged(isLeader bool)
	LeaderAcquired()
	LeaderLost(reason string)
}

// Elector campaigns for the advisory lock and runs leader duties while it
// holds it.
type Elector struct {
	db                *sql.DB
	lockKey           int64
	retryInterval     time.Duration // follower: pause between lock attempts
	heartbeatInterval time.Duration // leader: dedicated-connection ping cadence
	onElected         func(ctx context.Context)
	onDemoted         func()
	metrics           MetricsSink // optional, nil = disabled
}

// New builds an Elector. All instances sharing a database must campaign on
// the same lockKey.
//
// onElected runs in its own goroutine once the lock is held; its context is
// cancelled on demotion. It should start leader duties (scheduler, watchdog)
// and return. onDemoted is called synchronously on demotion, must be
// idempotent, and must not return until leader duties have fully stopped.
func New(
	db *sql.DB,
	lockKey int64,
	retryInterval, heartbeatInterval time.Duration,
	onElected func(ctx context.Context),
	onDemoted func(),
) *Elector {
	return &Elector{
		db:                db,
		lockKey:           lockKey,
		retryInterval:     retryInterval,
		heartbeatInterval: heartbeatInterval,
		onElected:         onElected,
		onDemoted:         onDemoted,
	}
}

func (e *Elector) WithMetrics(sink MetricsSink) *Elector {
	e.metrics = sink
	return e
}

// Run campaigns until ctx is cancelled, alternating between holding the lock
// and retrying after e.retryInterval.
func (e *Elector) Run(ctx context.Context) {
	log.Printf("leader: campaigning (lock_key=%d, retry=%s, heartbeat=%s)",
		e.lockKey, e.retryInterval, e.heartbeatInterval)

	for {
		if ctx.Err() != nil {
			log.Println("leader: campaign stopped")
			return
		}

		reason := e.campaign(ctx)

		if ctx.Err() != nil {
			log.Println("leader: campaign stopped")
			return
		}

		if reason != "" {
			log.Printf("leader: demoted (reason=%s), retrying in %s", reason, e.retryInterval)
		}

		select {
		case <-ctx.Done():
			log.Println("leader: campaign stopped")
			return
		case <-time.After(e.retryInterval):
		}
	}
}

// campaign makes one non-blocking attempt on the lock and, if it wins, holds
// leadership until the connection dies or ctx is cancelled. Returns the
// demotion reason, or "" when the lock was not acquired.
func (e *Elector) campaign(ctx context.Context) string {
	// Advisory locks are session-scoped, so the attempt must run on a
	// dedicated connection, not the shared pool.
	conn, err := e.db.Conn(ctx)
	if err != nil {
		log.Printf("leader: dedicated connection: %v", err)
		return ""
	}
	defer conn.Close()

	var acquired bool
	err = conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", e.lockKey).Scan(&acquired)
	if err != nil {
		log.Printf("leader: advisory lock query: %v", err)
		return ""
	}
	if !acquired {
		return ""
	}

	log.Printf("leader: acquired advisory lock %d", e.lockKey)
	if e.metrics != nil {
		e.metrics.LeaderStatusChanged(true)
		e.metrics.LeaderAcquired()
	}

	leaderCtx, cancelLeader := context.WithCancel(ctx)
	go e.onElected(leaderCtx)

	reason := e.watchConnection(ctx, conn)

	cancelLeader()
	e.onDemoted()

	if e.metrics != nil {
		e.metrics.LeaderStatusChanged(false)
		e.metrics.LeaderLost(reason)
	}

	log.Printf("leader: released advisory lock %d", e.lockKey)
	return reason
}

// watchConnection pings the lock-holding connection until it fails or ctx is
// cancelled, and names what ended the term.
func (e *Elector) watchConnection(ctx context.Context, conn *sql.Conn) string {
	ticker := time.NewTicker(e.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ReasonShutdown
		case <-ticker.C:
			if err := conn.PingContext(ctx); err != nil {
				if ctx.Err() != nil {
					return ReasonShutdown
				}
				log.Printf("leader: heartbeat ping: %v", err)
				return ReasonConnLost
			}
		}
	}
}
