// Package orchestrator drives one discovery cycle for one configuration:
// resolve patterns, list the remote store, filter against the dedup ledger,
// emit notifications, record the execution.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub006/internal/circuitbreaker"
	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub006/internal/domain"
	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub006/internal/notify"
	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub006/internal/protocol"
	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub006/internal/secrets"
	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub006/internal/tokens"
)

// ErrVersionConflict is returned by the store when an optimistic-concurrency
// write lost the race; the caller re-reads and retries, bounded.
var ErrVersionConflict = errors.New("configuration version conflict")

// ErrStatusTransitionDenied is returned when an execution update would
// regress from a terminal state. Ensures idempotency on replay.
var ErrStatusTransitionDenied = errors.New("status transition denied: execution already in terminal state")

const (
	// MaxNetworkRetries bounds adapter retries within one execution: three
	// attempts in total. Further retry happens naturally at the next due
	// cycle.
	MaxNetworkRetries = 2

	// maxVersionRetries bounds the optimistic-concurrency retry loop on
	// configuration timestamp updates.
	maxVersionRetries = 3

	defaultExecutionTimeout = 5 * time.Minute
)

// Store is the persistence the orchestrator needs: execution records, the
// dedup ledger, and configuration timestamp updates.
type Store interface {
	CreateExecution(ctx context.Context, exec domain.Execution) error
	MarkExecutionRunning(ctx context.Context, executionID uuid.UUID, startedAt time.Time) error
	// FinalizeExecution writes the terminal state. Implementations MUST
	// reject transitions out of terminal states with ErrStatusTransitionDenied.
	FinalizeExecution(ctx context.Context, exec domain.Execution) error

	// TryMarkProcessed inserts a dedup-ledger entry. created=false (no
	// error) when the tuple already exists. The uniqueness guarantee comes
	// from the store's own constraint, never from a read-then-write.
	TryMarkProcessed(ctx context.Context, rec domain.ProcessedFile) (created bool, err error)

	GetConfiguration(ctx context.Context, id uuid.UUID) (domain.Configuration, error)
	// UpdateConfigurationRun advances lastExecutedAt/nextScheduledRun iff
	// the stored version still matches; ErrVersionConflict otherwise.
	UpdateConfigurationRun(ctx context.Context, id uuid.UUID, version int64, lastExecutedAt, nextScheduledRun time.Time) error
}

// AdapterFactory builds the protocol adapter for a configuration with
// already-resolved credentials.
type AdapterFactory func(ctx context.Context, cfg domain.Configuration, creds protocol.Credentials) (protocol.Adapter, error)

// ScheduleEvaluator computes the next due instant after an execution.
type ScheduleEvaluator interface {
	NextRun(expression, timezone string, after time.Time) (time.Time, error)
}

// AnalyticsSink records discovery counts out-of-band. Optional, fire-and-forget.
type AnalyticsSink interface {
	RecordDiscoveries(ctx context.Context, tenantID, configurationID uuid.UUID, day string, count int)
}

// MetricsSink records orchestrator metrics. All methods are non-blocking
// and fire-and-forget.
type MetricsSink interface {
	ExecutionCompleted(status string, category string, duration time.Duration)
	FilesDiscovered(count int)
	FilesProcessed(count int)
	NotificationEmitted(mode string, success bool)
	AdapterRetry()
}

type Config struct {
	ExecutionTimeout time.Duration
}

type Orchestrator struct {
	config    Config
	store     Store
	secrets   secrets.Resolver
	adapters  AdapterFactory
	emitter   notify.Emitter
	evaluator ScheduleEvaluator
	analytics AnalyticsSink                  // optional, nil = disabled
	metrics   MetricsSink                    // optional, nil = disabled
	breaker   *circuitbreaker.CircuitBreaker // optional, nil = disabled
	clock     func() time.Time
}

func New(config Config, store Store, resolver secrets.Resolver, adapters AdapterFactory, emitter notify.Emitter, evaluator ScheduleEvaluator) *Orchestrator {
	if config.ExecutionTimeout == 0 {
		config.ExecutionTimeout = defaultExecutionTimeout
	}
	return &Orchestrator{
		config:    config,
		store:     store,
		secrets:   resolver,
		adapters:  adapters,
		emitter:   emitter,
		evaluator: evaluator,
		clock:     time.Now,
	}
}

func (o *Orchestrator) WithAnalytics(sink AnalyticsSink) *Orchestrator {
	o.analytics = sink
	return o
}

func (o *Orchestrator) WithMetrics(sink MetricsSink) *Orchestrator {
	o.metrics = sink
	return o
}

// WithBreaker enables per-endpoint circuit breaking around adapter calls.
func (o *Orchestrator) WithBreaker(cb *circuitbreaker.CircuitBreaker) *Orchestrator {
	o.breaker = cb
	return o
}

// Execute runs one discovery cycle. Every invocation produces exactly one
// terminal execution record; adapter and ledger failures are categorized
// here and never escape to the caller as errors.
func (o *Orchestrator) Execute(ctx context.Context, cfg domain.Configuration, trigger domain.TriggerKind) domain.Execution {
	return o.ExecuteAs(ctx, cfg, trigger, uuid.New())
}

// ExecuteAs is Execute with a caller-assigned execution id, so manual
// triggers can hand back a correlation id before the run finishes.
func (o *Orchestrator) ExecuteAs(ctx context.Context, cfg domain.Configuration, trigger domain.TriggerKind, executionID uuid.UUID) domain.Execution {
	now := o.clock().UTC()
	exec := domain.Execution{
		ID:              executionID,
		ConfigurationID: cfg.ID,
		TenantID:        cfg.TenantID,
		Trigger:         trigger,
		Status:          domain.ExecutionStatusPending,
		CreatedAt:       now,
	}

	if err := o.store.CreateExecution(ctx, exec); err != nil {
		log.Printf("orchestrator: config=%s create execution: %v", cfg.ID, err)
		exec.Status = domain.ExecutionStatusFailed
		exec.ErrorCategory = domain.CategoryInternalError
		exec.ErrorMessage = err.Error()
		return exec
	}

	ctx, cancel := context.WithTimeout(ctx, o.config.ExecutionTimeout)
	defer cancel()

	exec = o.run(ctx, cfg, exec)

	// Finalize against a fresh context: the execution deadline may already
	// have fired, and an abandoned Running record is exactly what the
	// watchdog exists to avoid.
	finalizeCtx, finalizeCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer finalizeCancel()

	if err := o.store.FinalizeExecution(finalizeCtx, exec); err != nil && !errors.Is(err, ErrStatusTransitionDenied) {
		log.Printf("orchestrator: config=%s finalize execution %s: %v", cfg.ID, exec.ID, err)
	}

	o.advanceSchedule(finalizeCtx, cfg, exec)

	if o.metrics != nil {
		o.metrics.ExecutionCompleted(string(exec.Status), string(exec.ErrorCategory), exec.Duration)
	}

	log.Printf("orchestrator: config=%s execution=%s status=%s found=%d processed=%d emitted=%d duration=%s",
		cfg.ID, exec.ID, exec.Status, exec.FilesFound, exec.FilesProcessed, exec.NotificationsEmitted, exec.Duration)
	return exec
}

func (o *Orchestrator) run(ctx context.Context, cfg domain.Configuration, exec domain.Execution) domain.Execution {
	started := o.clock().UTC()
	exec.Status = domain.ExecutionStatusRunning
	exec.StartedAt = started

	fail := func(category domain.ErrorCategory, err error) domain.Execution {
		exec.Status = domain.ExecutionStatusFailed
		exec.ErrorCategory = category
		exec.ErrorMessage = err.Error()
		return o.finish(exec)
	}

	if err := o.store.MarkExecutionRunning(ctx, exec.ID, started); err != nil {
		return fail(domain.CategoryInternalError, fmt.Errorf("mark running: %w", err))
	}

	loc, err := cfg.Location()
	if err != nil {
		// Timezone is validated at creation time; reaching this means the
		// stored configuration is damaged.
		return fail(domain.CategoryInternalError, fmt.Errorf("load timezone: %w", err))
	}
	localNow := started.In(loc)

	req := protocol.ListRequest{
		Path:        tokens.Resolve(cfg.PathPattern, localNow),
		NamePattern: tokens.Resolve(cfg.NamePattern, localNow),
		Extension:   cfg.ExtensionFilter,
	}

	creds, err := o.secrets.Resolve(ctx, cfg.CredentialHandle())
	if err != nil {
		return fail(domain.CategoryAuthFailed, fmt.Errorf("resolve credentials: %w", err))
	}

	adapter, err := o.adapters(ctx, cfg, creds)
	if err != nil {
		return fail(domain.CategoryInternalError, err)
	}

	endpoint := endpointKey(cfg)
	if o.breaker != nil {
		if err := o.breaker.Allow(endpoint); err != nil {
			return fail(domain.CategoryNetworkError, fmt.Errorf("endpoint %s: %w", endpoint, err))
		}
	}

	files, err := o.list(ctx, adapter, req)
	if o.breaker != nil {
		if err != nil && protocol.IsRetryable(err) {
			o.breaker.RecordFailure(endpoint)
		} else if err == nil {
			o.breaker.RecordSuccess(endpoint)
		}
	}
	if err != nil {
		return fail(categorize(ctx, err), err)
	}
	exec.FilesFound = len(files)
	if o.metrics != nil {
		o.metrics.FilesDiscovered(len(files))
	}

	discoveryDate := localNow.Format("2006-01-02")
	var emitErrs *multierror.Error

	for _, file := range files {
		if ctx.Err() != nil {
			return fail(domain.CategoryCancelled, ctx.Err())
		}

		created, err := o.store.TryMarkProcessed(ctx, domain.ProcessedFile{
			TenantID:        cfg.TenantID,
			ConfigurationID: cfg.ID,
			ExecutionID:     exec.ID,
			Filename:        file.Name,
			Locator:         file.Locator,
			DiscoveryDate:   discoveryDate,
			ProcessedAt:     o.clock().UTC(),
		})
		if err != nil {
			return fail(domain.CategoryInternalError, fmt.Errorf("mark processed %s: %w", file.Name, err))
		}
		if !created {
			// Seen in a prior run, or a concurrent execution won the insert.
			continue
		}

		exec.FilesProcessed++
		if o.metrics != nil {
			o.metrics.FilesProcessed(1)
		}

		// Mark-before-notify: the ledger entry above is the source of truth
		// for "handled". A partial emission failure below never unmarks the
		// file; the cost is a possibly-missed notification, never a
		// duplicate one.
		emitted, err := o.emit(ctx, cfg, exec.ID, file)
		exec.NotificationsEmitted += emitted
		if err != nil {
			emitErrs = multierror.Append(emitErrs, fmt.Errorf("file %s: %w", file.Name, err))
		}
	}

	if o.analytics != nil && exec.FilesProcessed > 0 {
		o.analytics.RecordDiscoveries(ctx, cfg.TenantID, cfg.ID, discoveryDate, exec.FilesProcessed)
	}

	if err := emitErrs.ErrorOrNil(); err != nil {
		return fail(domain.CategoryNotificationFailed, err)
	}

	exec.Status = domain.ExecutionStatusCompleted
	return o.finish(exec)
}

// list invokes the adapter with bounded exponential backoff on transient
// network failures. NotFound collapses to zero results.
func (o *Orchestrator) list(ctx context.Context, adapter protocol.Adapter, req protocol.ListRequest) ([]domain.DiscoveredFile, error) {
	var files []domain.DiscoveredFile

	operation := func() error {
		var err error
		files, err = adapter.List(ctx, req)
		if err == nil {
			return nil
		}
		if protocol.IsRetryable(err) {
			if o.metrics != nil {
				o.metrics.AdapterRetry()
			}
			return err
		}
		return backoff.Permanent(err)
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), MaxNetworkRetries),
		ctx,
	)

	err := backoff.Retry(operation, policy)
	if errors.Is(err, protocol.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return files, nil
}

// emit sends every configured target for one file. One target failing does
// not stop the others; the collected error decides the execution outcome.
func (o *Orchestrator) emit(ctx context.Context, cfg domain.Configuration, executionID uuid.UUID, file domain.DiscoveredFile) (int, error) {
	var errs *multierror.Error
	emitted := 0

	for _, target := range cfg.Targets {
		n, err := domain.BuildNotification(cfg, executionID, file, target)
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		if err := o.emitter.Emit(ctx, n); err != nil {
			if o.metrics != nil {
				o.metrics.NotificationEmitted(string(target.Mode), false)
			}
			errs = multierror.Append(errs, fmt.Errorf("target %s/%s: %w", target.Mode, target.Type, err))
			continue
		}
		emitted++
		if o.metrics != nil {
			o.metrics.NotificationEmitted(string(target.Mode), true)
		}
	}

	return emitted, errs.ErrorOrNil()
}

func (o *Orchestrator) finish(exec domain.Execution) domain.Execution {
	finished := o.clock().UTC()
	exec.FinishedAt = &finished
	exec.Duration = finished.Sub(exec.StartedAt)
	return exec
}

// advanceSchedule moves the configuration's lastExecutedAt/nextScheduledRun
// forward under optimistic concurrency: on version conflict the
// configuration is re-read and the write retried, bounded, then surfaced as
// an operational error in the log.
func (o *Orchestrator) advanceSchedule(ctx context.Context, cfg domain.Configuration, exec domain.Execution) {
	now := o.clock().UTC()
	next, err := o.evaluator.NextRun(cfg.CronExpression, cfg.Timezone, now)
	if err != nil {
		log.Printf("orchestrator: config=%s compute next run: %v", cfg.ID, err)
		return
	}

	version := cfg.Version
	for attempt := 0; attempt <= maxVersionRetries; attempt++ {
		err := o.store.UpdateConfigurationRun(ctx, cfg.ID, version, exec.StartedAt, next)
		if err == nil {
			return
		}
		if !errors.Is(err, ErrVersionConflict) {
			log.Printf("orchestrator: config=%s update schedule: %v", cfg.ID, err)
			return
		}

		fresh, readErr := o.store.GetConfiguration(ctx, cfg.ID)
		if readErr != nil {
			log.Printf("orchestrator: config=%s re-read after conflict: %v", cfg.ID, readErr)
			return
		}
		version = fresh.Version
	}

	log.Printf("orchestrator: config=%s schedule update abandoned after %d version conflicts", cfg.ID, maxVersionRetries+1)
}

// endpointKey names the remote endpoint a configuration talks to, at the
// granularity the circuit breaker tracks failures on.
func endpointKey(cfg domain.Configuration) string {
	switch cfg.Protocol {
	case domain.ProtocolFTP:
		if cfg.FTP != nil {
			return fmt.Sprintf("ftp:%s:%d", cfg.FTP.Host, cfg.FTP.Port)
		}
	case domain.ProtocolWeb:
		if cfg.Web != nil {
			return "web:" + cfg.Web.BaseURL
		}
	case domain.ProtocolBlob:
		if cfg.Blob != nil {
			return "blob:" + cfg.Blob.Container
		}
	}
	return string(cfg.Protocol) + ":" + cfg.ID.String()
}

// categorize maps an adapter failure onto an execution error category.
func categorize(ctx context.Context, err error) domain.ErrorCategory {
	switch {
	// The execution's own deadline takes precedence: a retryable error
	// observed after the budget is spent is still a cancellation.
	case ctx.Err() != nil:
		return domain.CategoryCancelled
	case errors.Is(err, protocol.ErrAuthFailed):
		return domain.CategoryAuthFailed
	case protocol.IsRetryable(err):
		return domain.CategoryNetworkError
	case errors.Is(err, context.Canceled):
		return domain.CategoryCancelled
	default:
		return domain.CategoryProtocolError
	}
}
