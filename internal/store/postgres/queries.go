package postgres

const configurationColumns = `
    id, tenant_id, name, protocol, settings,
    path_pattern, name_pattern, extension_filter,
    cron_expression, timezone, active, targets,
    created_by, modified_by, created_at, updated_at,
    last_executed_at, next_scheduled_run, version`

const queryGetDueConfigurations = `
SELECT` + configurationColumns + `
FROM configurations
WHERE active = true
  AND next_scheduled_run <= $1
ORDER BY next_scheduled_run ASC
LIMIT $2
`

const queryGetConfiguration = `
SELECT` + configurationColumns + `
FROM configurations
WHERE id = $1
`

const queryUpdateConfigurationRun = `
UPDATE configurations
SET last_executed_at = $1,
    next_scheduled_run = $2,
    updated_at = $3,
    version = version + 1
WHERE id = $4
  AND version = $5
`

const queryConfigurationExists = `
SELECT version FROM configurations WHERE id = $1
`

const executionColumns = `
    id, configuration_id, tenant_id, trigger_kind, status,
    started_at, finished_at, duration_ms,
    files_found, files_processed, notifications_emitted,
    error_category, error_message, created_at`

const queryInsertExecution = `
INSERT INTO executions (
    id, configuration_id, tenant_id, trigger_kind, status,
    started_at, duration_ms,
    files_found, files_processed, notifications_emitted,
    error_category, error_message, created_at
)
VALUES ($1, $2, $3, $4, $5, $6, 0, 0, 0, 0, '', '', $7)
`

const queryMarkExecutionRunning = `
UPDATE executions
SET status = 'running', started_at = $2
WHERE id = $1
  AND status = 'pending'
`

const queryFinalizeExecution = `
UPDATE executions
SET status = $2,
    finished_at = $3,
    duration_ms = $4,
    files_found = $5,
    files_processed = $6,
    notifications_emitted = $7,
    error_category = $8,
    error_message = $9
WHERE id = $1
  AND status NOT IN ('completed', 'failed')
`

const queryGetExecutionStatus = `
SELECT status FROM executions WHERE id = $1
`

const queryGetExecution = `
SELECT` + executionColumns + `
FROM executions
WHERE id = $1
`

const queryGetStaleRunningExecutions = `
SELECT` + executionColumns + `
FROM executions
WHERE status = 'running'
  AND started_at < $1
ORDER BY started_at ASC
LIMIT $2
`

const queryInsertProcessedFile = `
INSERT INTO processed_files (
    tenant_id, configuration_id, execution_id,
    filename, locator, discovery_date, processed_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (tenant_id, configuration_id, locator, discovery_date) DO NOTHING
`

const queryListProcessedFilesByExecution = `
SELECT tenant_id, configuration_id, execution_id,
       filename, locator, discovery_date, processed_at
FROM processed_files
WHERE execution_id = $1
ORDER BY processed_at ASC, filename ASC
LIMIT $2
`

const queryAggregateExecutions = `
SELECT
    COUNT(*),
    COUNT(*) FILTER (WHERE status = 'completed'),
    COUNT(*) FILTER (WHERE status = 'failed'),
    COALESCE(AVG(duration_ms) FILTER (WHERE status IN ('completed', 'failed')), 0),
    COALESCE(SUM(files_found), 0),
    COALESCE(SUM(files_processed), 0)
FROM executions
WHERE configuration_id = $1
  AND created_at >= $2
  AND created_at < $3
`

const queryFilesPerDay = `
SELECT discovery_date, COUNT(*)
FROM processed_files
WHERE configuration_id = $1
  AND processed_at >= $2
  AND processed_at < $3
GROUP BY discovery_date
ORDER BY discovery_date ASC
`
