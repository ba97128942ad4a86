package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub006/internal/domain"
)

// parseExecutionQuery extracts listing filters from query parameters.
// Accepted: status, from, to (RFC3339), limit, page_token.
func parseExecutionQuery(r *http.Request) (ExecutionQuery, error) {
	q := ExecutionQuery{Limit: DefaultLimit}
	values := r.URL.Query()

	if s := values.Get("status"); s != "" {
		status := domain.ExecutionStatus(s)
		switch status {
		case domain.ExecutionStatusPending, domain.ExecutionStatusRunning,
			domain.ExecutionStatusCompleted, domain.ExecutionStatusFailed:
			q.Status = status
		default:
			return ExecutionQuery{}, fmt.Errorf("unknown status %q", s)
		}
	}

	var err error
	if q.From, err = parseTimeParam(values.Get("from")); err != nil {
		return ExecutionQuery{}, fmt.Errorf("invalid from: %w", err)
	}
	if q.To, err = parseTimeParam(values.Get("to")); err != nil {
		return ExecutionQuery{}, fmt.Errorf("invalid to: %w", err)
	}
	if !q.From.IsZero() && !q.To.IsZero() && q.To.Before(q.From) {
		return ExecutionQuery{}, fmt.Errorf("to must not precede from")
	}

	if raw := values.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			return ExecutionQuery{}, fmt.Errorf("invalid limit: %w", err)
		}
		if limit < 0 {
			return ExecutionQuery{}, fmt.Errorf("limit must not be negative")
		}
		if limit > MaxLimit {
			return ExecutionQuery{}, fmt.Errorf("limit exceeds maximum of %d", MaxLimit)
		}
		if limit > 0 {
			q.Limit = limit
		}
	}

	q.PageToken = values.Get("page_token")
	return q, nil
}

// parseProcessedFileQuery extracts ledger filters from query parameters.
// Accepted: filename, execution_id, limit, page_token.
func parseProcessedFileQuery(r *http.Request) (ProcessedFileQuery, error) {
	q := ProcessedFileQuery{Limit: DefaultLimit}
	values := r.URL.Query()

	q.Filename = values.Get("filename")

	if raw := values.Get("execution_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return ProcessedFileQuery{}, fmt.Errorf("invalid execution_id: %w", err)
		}
		q.ExecutionID = id
	}

	if raw := values.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			return ProcessedFileQuery{}, fmt.Errorf("invalid limit: %w", err)
		}
		if limit < 0 {
			return ProcessedFileQuery{}, fmt.Errorf("limit must not be negative")
		}
		if limit > MaxLimit {
			return ProcessedFileQuery{}, fmt.Errorf("limit exceeds maximum of %d", MaxLimit)
		}
		if limit > 0 {
			q.Limit = limit
		}
	}

	q.PageToken = values.Get("page_token")
	return q, nil
}

func parseTimeParam(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, raw)
}

// parseWindow parses a metrics window such as "24h", "7d" or "30d".
func parseWindow(raw string) (time.Duration, error) {
	var window time.Duration

	// time.ParseDuration has no day unit; accept "<n>d" explicitly.
	if n := len(raw); n > 1 && raw[n-1] == 'd' {
		days, err := strconv.Atoi(raw[:n-1])
		if err != nil {
			return 0, fmt.Errorf("invalid window %q", raw)
		}
		window = time.Duration(days) * 24 * time.Hour
	} else {
		var err error
		window, err = time.ParseDuration(raw)
		if err != nil {
			return 0, fmt.Errorf("invalid window %q", raw)
		}
	}

	if window <= 0 {
		return 0, fmt.Errorf("window must be positive")
	}
	if window > MaxMetricsWindow {
		return 0, fmt.Errorf("window exceeds maximum of %s", MaxMetricsWindow)
	}
	return window, nil
}
