package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// Schema is applied idempotently at startup. The unique index on
// processed_files is the dedup-ledger invariant; everything else is layout.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS configurations (
    id                 UUID PRIMARY KEY,
    tenant_id          UUID NOT NULL,
    name               TEXT NOT NULL,
    protocol           TEXT NOT NULL,
    settings           JSONB NOT NULL,
    path_pattern       TEXT NOT NULL,
    name_pattern       TEXT NOT NULL,
    extension_filter   TEXT NOT NULL DEFAULT '',
    cron_expression    TEXT NOT NULL,
    timezone           TEXT NOT NULL DEFAULT 'UTC',
    active             BOOLEAN NOT NULL DEFAULT true,
    targets            JSONB NOT NULL DEFAULT '[]',
    created_by         TEXT NOT NULL DEFAULT '',
    modified_by        TEXT NOT NULL DEFAULT '',
    created_at         TIMESTAMPTZ NOT NULL,
    updated_at         TIMESTAMPTZ NOT NULL,
    last_executed_at   TIMESTAMPTZ,
    next_scheduled_run TIMESTAMPTZ NOT NULL,
    version            BIGINT NOT NULL DEFAULT 1
)`,
	`CREATE INDEX IF NOT EXISTS idx_configurations_due
    ON configurations (next_scheduled_run)
    WHERE active = true`,

	`CREATE TABLE IF NOT EXISTS executions (
    id                    UUID PRIMARY KEY,
    configuration_id      UUID NOT NULL,
    tenant_id             UUID NOT NULL,
    trigger_kind          TEXT NOT NULL,
    status                TEXT NOT NULL,
    started_at            TIMESTAMPTZ NOT NULL,
    finished_at           TIMESTAMPTZ,
    duration_ms           BIGINT NOT NULL DEFAULT 0,
    files_found           INTEGER NOT NULL DEFAULT 0,
    files_processed       INTEGER NOT NULL DEFAULT 0,
    notifications_emitted INTEGER NOT NULL DEFAULT 0,
    error_category        TEXT NOT NULL DEFAULT '',
    error_message         TEXT NOT NULL DEFAULT '',
    created_at            TIMESTAMPTZ NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_executions_configuration
    ON executions (configuration_id, created_at DESC, id DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_executions_stale
    ON executions (started_at)
    WHERE status = 'running'`,

	`CREATE TABLE IF NOT EXISTS processed_files (
    id               BIGSERIAL PRIMARY KEY,
    tenant_id        UUID NOT NULL,
    configuration_id UUID NOT NULL,
    execution_id     UUID NOT NULL,
    filename         TEXT NOT NULL,
    locator          TEXT NOT NULL,
    discovery_date   TEXT NOT NULL,
    processed_at     TIMESTAMPTZ NOT NULL
)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_processed_files_ledger
    ON processed_files (tenant_id, configuration_id, locator, discovery_date)`,
	`CREATE INDEX IF NOT EXISTS idx_processed_files_execution
    ON processed_files (execution_id)`,
}

// EnsureSchema creates the tables and indexes if they do not exist.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
