package postgres

import (
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub006/internal/api"
	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub006/internal/domain"
	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub006/internal/orchestrator"
	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub006/internal/reconciler"
	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub006/internal/scheduler"
)

// Store implements the scheduler, orchestrator, reconciler and api store
// contracts using PostgreSQL.
type Store struct {
	db *sql.DB
}

// New creates a new PostgreSQL store with the given database connection.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// GetDueConfigurations returns active configurations whose next scheduled
// run is at or before now, oldest due first.
func (s *Store) GetDueConfigurations(ctx context.Context, now time.Time, limit int) ([]domain.Configuration, error) {
	rows, err := s.db.QueryContext(ctx, queryGetDueConfigurations, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Configuration
	for rows.Next() {
		cfg, err := scanConfiguration(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, cfg)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// GetConfiguration returns a configuration by its ID.
func (s *Store) GetConfiguration(ctx context.Context, id uuid.UUID) (domain.Configuration, error) {
	row := s.db.QueryRowContext(ctx, queryGetConfiguration, id)
	return scanConfiguration(row)
}

// CreateConfiguration inserts a new configuration at version 1.
func (s *Store) CreateConfiguration(ctx context.Context, cfg domain.Configuration) error {
	settings, err := marshalSettings(cfg)
	if err != nil {
		return err
	}
	targets, err := json.Marshal(cfg.Targets)
	if err != nil {
		return fmt.Errorf("marshal targets: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO configurations (
    id, tenant_id, name, protocol, settings,
    path_pattern, name_pattern, extension_filter,
    cron_expression, timezone, active, targets,
    created_by, modified_by, created_at, updated_at,
    next_scheduled_run, version
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, 1)`,
		cfg.ID, cfg.TenantID, cfg.Name, string(cfg.Protocol), settings,
		cfg.PathPattern, cfg.NamePattern, cfg.ExtensionFilter,
		cfg.CronExpression, cfg.Timezone, cfg.Active, targets,
		cfg.CreatedBy, cfg.ModifiedBy, cfg.CreatedAt, cfg.UpdatedAt,
		cfg.NextScheduledRun,
	)
	return err
}

// UpdateConfigurationRun advances the schedule bookkeeping after an
// execution, guarded by the optimistic version token. Returns
// orchestrator.ErrVersionConflict when the stored version moved on.
func (s *Store) UpdateConfigurationRun(ctx context.Context, id uuid.UUID, version int64, lastExecutedAt, nextScheduledRun time.Time) error {
	result, err := s.db.ExecContext(ctx, queryUpdateConfigurationRun,
		lastExecutedAt, nextScheduledRun, time.Now().UTC(), id, version)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		// Either the row is gone or the version moved. Distinguish by
		// checking existence.
		var current int64
		err := s.db.QueryRowContext(ctx, queryConfigurationExists, id).Scan(&current)
		if err == sql.ErrNoRows {
			return sql.ErrNoRows
		}
		if err != nil {
			return err
		}
		return orchestrator.ErrVersionConflict
	}

	return nil
}

// CreateExecution inserts a new execution record in its initial status.
func (s *Store) CreateExecution(ctx context.Context, exec domain.Execution) error {
	_, err := s.db.ExecContext(ctx, queryInsertExecution,
		exec.ID,
		exec.ConfigurationID,
		exec.TenantID,
		string(exec.Trigger),
		string(exec.Status),
		exec.StartedAt,
		exec.CreatedAt,
	)
	return err
}

// MarkExecutionRunning transitions a pending execution to running.
func (s *Store) MarkExecutionRunning(ctx context.Context, executionID uuid.UUID, startedAt time.Time) error {
	result, err := s.db.ExecContext(ctx, queryMarkExecutionRunning, executionID, startedAt)
	if err != nil {
		return err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return fmt.Errorf("execution %s is not pending", executionID)
	}
	return nil
}

// FinalizeExecution writes the terminal state and counts.
// Returns orchestrator.ErrStatusTransitionDenied if the execution is already
// terminal. The guard lives in the UPDATE's WHERE clause, so concurrent
// finalizers serialize on the row lock instead of racing a read-then-write.
func (s *Store) FinalizeExecution(ctx context.Context, exec domain.Execution) error {
	result, err := s.db.ExecContext(ctx, queryFinalizeExecution,
		exec.ID,
		string(exec.Status),
		exec.FinishedAt,
		exec.Duration.Milliseconds(),
		exec.FilesFound,
		exec.FilesProcessed,
		exec.NotificationsEmitted,
		string(exec.ErrorCategory),
		exec.ErrorMessage,
	)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		var currentStatus string
		err := s.db.QueryRowContext(ctx, queryGetExecutionStatus, exec.ID).Scan(&currentStatus)
		if err == sql.ErrNoRows {
			return sql.ErrNoRows
		}
		if err != nil {
			return err
		}
		return orchestrator.ErrStatusTransitionDenied
	}

	return nil
}

// GetExecution returns an execution by its ID.
func (s *Store) GetExecution(ctx context.Context, id uuid.UUID) (domain.Execution, error) {
	row := s.db.QueryRowContext(ctx, queryGetExecution, id)
	return scanExecution(row)
}

// GetStaleRunningExecutions returns executions stuck in running that started
// before the threshold, oldest first.
func (s *Store) GetStaleRunningExecutions(ctx context.Context, olderThan time.Time, maxResults int) ([]domain.Execution, error) {
	rows, err := s.db.QueryContext(ctx, queryGetStaleRunningExecutions, olderThan, maxResults)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Execution
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, exec)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// TryMarkProcessed inserts a dedup-ledger entry. The unique index on
// (tenant_id, configuration_id, locator, discovery_date) makes the insert a
// no-op for duplicates; created reports whether this call won the row.
func (s *Store) TryMarkProcessed(ctx context.Context, rec domain.ProcessedFile) (bool, error) {
	result, err := s.db.ExecContext(ctx, queryInsertProcessedFile,
		rec.TenantID,
		rec.ConfigurationID,
		rec.ExecutionID,
		rec.Filename,
		rec.Locator,
		rec.DiscoveryDate,
		rec.ProcessedAt,
	)
	if err != nil {
		// ON CONFLICT DO NOTHING swallows the unique violation, but keep the
		// classification for stores running without the index in place.
		if isDuplicateKeyError(err) {
			return false, nil
		}
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rowsAffected == 1, nil
}

// ListProcessedFiles returns the ledger entries recorded by one execution.
func (s *Store) ListProcessedFiles(ctx context.Context, executionID uuid.UUID, limit int) ([]domain.ProcessedFile, error) {
	rows, err := s.db.QueryContext(ctx, queryListProcessedFilesByExecution, executionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.ProcessedFile
	for rows.Next() {
		var rec domain.ProcessedFile
		err := rows.Scan(
			&rec.TenantID,
			&rec.ConfigurationID,
			&rec.ExecutionID,
			&rec.Filename,
			&rec.Locator,
			&rec.DiscoveryDate,
			&rec.ProcessedAt,
		)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// QueryProcessedFiles looks up ledger entries for a configuration, filtered
// by filename or execution, newest first, with keyset pagination.
func (s *Store) QueryProcessedFiles(ctx context.Context, configurationID uuid.UUID, q api.ProcessedFileQuery) ([]domain.ProcessedFile, string, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = api.DefaultLimit
	}

	var sb strings.Builder
	sb.WriteString(`
SELECT id, tenant_id, configuration_id, execution_id,
       filename, locator, discovery_date, processed_at
FROM processed_files
WHERE configuration_id = $1`)
	args := []any{configurationID}

	if q.Filename != "" {
		args = append(args, q.Filename)
		fmt.Fprintf(&sb, " AND filename = $%d", len(args))
	}
	if q.ExecutionID != uuid.Nil {
		args = append(args, q.ExecutionID)
		fmt.Fprintf(&sb, " AND execution_id = $%d", len(args))
	}
	if q.PageToken != "" {
		afterID, err := decodeLedgerToken(q.PageToken)
		if err != nil {
			return nil, "", err
		}
		args = append(args, afterID)
		fmt.Fprintf(&sb, " AND id < $%d", len(args))
	}

	args = append(args, limit+1)
	fmt.Fprintf(&sb, " ORDER BY id DESC LIMIT $%d", len(args))

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()

	var result []domain.ProcessedFile
	var rowIDs []int64
	for rows.Next() {
		var rec domain.ProcessedFile
		var rowID int64
		err := rows.Scan(
			&rowID,
			&rec.TenantID,
			&rec.ConfigurationID,
			&rec.ExecutionID,
			&rec.Filename,
			&rec.Locator,
			&rec.DiscoveryDate,
			&rec.ProcessedAt,
		)
		if err != nil {
			return nil, "", err
		}
		result = append(result, rec)
		rowIDs = append(rowIDs, rowID)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}

	nextToken := ""
	if len(result) > limit {
		result = result[:limit]
		nextToken = encodeLedgerToken(rowIDs[limit-1])
	}
	return result, nextToken, nil
}

// ListExecutions returns one page of a configuration's execution history,
// newest first, filtered by q. The continuation token is a keyset cursor
// over (created_at, id).
func (s *Store) ListExecutions(ctx context.Context, configurationID uuid.UUID, q api.ExecutionQuery) ([]domain.Execution, string, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = api.DefaultLimit
	}

	var sb strings.Builder
	sb.WriteString("SELECT" + executionColumns + "\nFROM executions\nWHERE configuration_id = $1")
	args := []any{configurationID}

	if q.Status != "" {
		args = append(args, string(q.Status))
		fmt.Fprintf(&sb, " AND status = $%d", len(args))
	}
	if !q.From.IsZero() {
		args = append(args, q.From)
		fmt.Fprintf(&sb, " AND created_at >= $%d", len(args))
	}
	if !q.To.IsZero() {
		args = append(args, q.To)
		fmt.Fprintf(&sb, " AND created_at < $%d", len(args))
	}
	if q.PageToken != "" {
		cursor, err := decodeExecutionToken(q.PageToken)
		if err != nil {
			return nil, "", err
		}
		args = append(args, cursor.CreatedAt, cursor.ID)
		fmt.Fprintf(&sb, " AND (created_at, id) < ($%d, $%d)", len(args)-1, len(args))
	}

	args = append(args, limit+1)
	fmt.Fprintf(&sb, " ORDER BY created_at DESC, id DESC LIMIT $%d", len(args))

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()

	var result []domain.Execution
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, "", err
		}
		result = append(result, exec)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}

	nextToken := ""
	if len(result) > limit {
		result = result[:limit]
		last := result[len(result)-1]
		nextToken = encodeExecutionToken(executionCursor{
			CreatedAt: last.CreatedAt,
			ID:        last.ID,
		})
	}
	return result, nextToken, nil
}

// AggregateMetrics computes the execution metrics for one configuration over
// [from, to) from the stored records. Nothing is pre-aggregated.
func (s *Store) AggregateMetrics(ctx context.Context, configurationID uuid.UUID, from, to time.Time) (domain.ExecutionMetrics, error) {
	m := domain.ExecutionMetrics{From: from, To: to}

	var avgDurationMs float64
	err := s.db.QueryRowContext(ctx, queryAggregateExecutions, configurationID, from, to).Scan(
		&m.Executions,
		&m.Completed,
		&m.Failed,
		&avgDurationMs,
		&m.FilesDiscovered,
		&m.FilesProcessed,
	)
	if err != nil {
		return domain.ExecutionMetrics{}, err
	}
	m.AverageDuration = time.Duration(avgDurationMs * float64(time.Millisecond))

	if terminal := m.Completed + m.Failed; terminal > 0 {
		m.SuccessRate = float64(m.Completed) / float64(terminal)
	}

	rows, err := s.db.QueryContext(ctx, queryFilesPerDay, configurationID, from, to)
	if err != nil {
		return domain.ExecutionMetrics{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var dc domain.DailyCount
		if err := rows.Scan(&dc.Date, &dc.Count); err != nil {
			return domain.ExecutionMetrics{}, err
		}
		m.FilesPerDay = append(m.FilesPerDay, dc)
	}
	if err := rows.Err(); err != nil {
		return domain.ExecutionMetrics{}, err
	}

	return m, nil
}

// scanner covers *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanConfiguration(row scanner) (domain.Configuration, error) {
	var cfg domain.Configuration
	var protocol string
	var settings, targets []byte
	var lastExecutedAt sql.NullTime

	err := row.Scan(
		&cfg.ID,
		&cfg.TenantID,
		&cfg.Name,
		&protocol,
		&settings,
		&cfg.PathPattern,
		&cfg.NamePattern,
		&cfg.ExtensionFilter,
		&cfg.CronExpression,
		&cfg.Timezone,
		&cfg.Active,
		&targets,
		&cfg.CreatedBy,
		&cfg.ModifiedBy,
		&cfg.CreatedAt,
		&cfg.UpdatedAt,
		&lastExecutedAt,
		&cfg.NextScheduledRun,
		&cfg.Version,
	)
	if err != nil {
		return domain.Configuration{}, err
	}

	cfg.Protocol = domain.Protocol(protocol)
	if lastExecutedAt.Valid {
		t := lastExecutedAt.Time
		cfg.LastExecutedAt = &t
	}
	if err := unmarshalSettings(&cfg, settings); err != nil {
		return domain.Configuration{}, err
	}
	if err := json.Unmarshal(targets, &cfg.Targets); err != nil {
		return domain.Configuration{}, fmt.Errorf("unmarshal targets for %s: %w", cfg.ID, err)
	}

	return cfg, nil
}

func scanExecution(row scanner) (domain.Execution, error) {
	var exec domain.Execution
	var trigger, status string
	var finishedAt sql.NullTime
	var durationMs int64

	err := row.Scan(
		&exec.ID,
		&exec.ConfigurationID,
		&exec.TenantID,
		&trigger,
		&status,
		&exec.StartedAt,
		&finishedAt,
		&durationMs,
		&exec.FilesFound,
		&exec.FilesProcessed,
		&exec.NotificationsEmitted,
		&exec.ErrorCategory,
		&exec.ErrorMessage,
		&exec.CreatedAt,
	)
	if err != nil {
		return domain.Execution{}, err
	}

	exec.Trigger = domain.TriggerKind(trigger)
	exec.Status = domain.ExecutionStatus(status)
	exec.Duration = time.Duration(durationMs) * time.Millisecond
	if finishedAt.Valid {
		t := finishedAt.Time
		exec.FinishedAt = &t
	}
	return exec, nil
}

// marshalSettings serializes the protocol settings matching cfg.Protocol.
func marshalSettings(cfg domain.Configuration) ([]byte, error) {
	var v any
	switch cfg.Protocol {
	case domain.ProtocolFTP:
		v = cfg.FTP
	case domain.ProtocolWeb:
		v = cfg.Web
	case domain.ProtocolBlob:
		v = cfg.Blob
	default:
		return nil, fmt.Errorf("unknown protocol %q", cfg.Protocol)
	}
	if v == nil {
		return nil, fmt.Errorf("configuration %s: missing %s settings", cfg.ID, cfg.Protocol)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal %s settings: %w", cfg.Protocol, err)
	}
	return data, nil
}

func unmarshalSettings(cfg *domain.Configuration, data []byte) error {
	var err error
	switch cfg.Protocol {
	case domain.ProtocolFTP:
		cfg.FTP = &domain.FTPSettings{}
		err = json.Unmarshal(data, cfg.FTP)
	case domain.ProtocolWeb:
		cfg.Web = &domain.WebSettings{}
		err = json.Unmarshal(data, cfg.Web)
	case domain.ProtocolBlob:
		cfg.Blob = &domain.BlobSettings{}
		err = json.Unmarshal(data, cfg.Blob)
	default:
		return fmt.Errorf("configuration %s: unknown protocol %q", cfg.ID, cfg.Protocol)
	}
	if err != nil {
		return fmt.Errorf("unmarshal %s settings for %s: %w", cfg.Protocol, cfg.ID, err)
	}
	return nil
}

// executionCursor is the keyset position encoded in a continuation token.
type executionCursor struct {
	CreatedAt time.Time `json:"t"`
	ID        uuid.UUID `json:"id"`
}

func encodeExecutionToken(c executionCursor) string {
	data, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(data)
}

func decodeExecutionToken(token string) (executionCursor, error) {
	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return executionCursor{}, api.ErrBadPageToken
	}
	var c executionCursor
	if err := json.Unmarshal(data, &c); err != nil {
		return executionCursor{}, api.ErrBadPageToken
	}
	if c.CreatedAt.IsZero() || c.ID == uuid.Nil {
		return executionCursor{}, api.ErrBadPageToken
	}
	return c, nil
}

func encodeLedgerToken(rowID int64) string {
	return base64.RawURLEncoding.EncodeToString([]byte(strconv.FormatInt(rowID, 10)))
}

func decodeLedgerToken(token string) (int64, error) {
	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return 0, api.ErrBadPageToken
	}
	rowID, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil || rowID <= 0 {
		return 0, api.ErrBadPageToken
	}
	return rowID, nil
}

// isDuplicateKeyError checks for a PostgreSQL unique violation (23505).
func isDuplicateKeyError(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// Compile-time interface assertions
var (
	_ scheduler.Store    = (*Store)(nil)
	_ orchestrator.Store = (*Store)(nil)
	_ reconciler.Store   = (*Store)(nil)
	_ api.Store          = (*Store)(nil)
)
