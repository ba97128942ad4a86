package api

import (
	"time"

	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub006/internal/domain"
)

type TriggerResponse struct {
	ExecutionID string `json:"execution_id"`
	Status      string `json:"status"`
}

type ExecutionResponse struct {
	ID              string `json:"id"`
	ConfigurationID string `json:"configuration_id"`
	TenantID        string `json:"tenant_id"`
	Trigger         string `json:"trigger"`
	Status          string `json:"status"`

	StartedAt  string `json:"started_at"`
	FinishedAt string `json:"finished_at,omitempty"`
	DurationMs int64  `json:"duration_ms"`

	FilesFound           int `json:"files_found"`
	FilesProcessed       int `json:"files_processed"`
	NotificationsEmitted int `json:"notifications_emitted"`

	ErrorCategory string `json:"error_category,omitempty"`
	ErrorMessage  string `json:"error_message,omitempty"`
}

type ExecutionDetailResponse struct {
	ExecutionResponse
	ProcessedFiles []ProcessedFileResponse `json:"processed_files"`
}

type ProcessedFileResponse struct {
	ExecutionID   string `json:"execution_id,omitempty"`
	Filename      string `json:"filename"`
	Locator       string `json:"locator"`
	DiscoveryDate string `json:"discovery_date"`
	ProcessedAt   string `json:"processed_at"`
}

type ListProcessedFilesResponse struct {
	ProcessedFiles []ProcessedFileResponse `json:"processed_files"`
	NextPageToken  string                  `json:"next_page_token,omitempty"`
}

type ListExecutionsResponse struct {
	Executions    []ExecutionResponse `json:"executions"`
	NextPageToken string              `json:"next_page_token,omitempty"`
}

type MetricsResponse struct {
	From string `json:"from"`
	To   string `json:"to"`

	Executions  int     `json:"executions"`
	Completed   int     `json:"completed"`
	Failed      int     `json:"failed"`
	SuccessRate float64 `json:"success_rate"`

	AverageDurationMs int64 `json:"average_duration_ms"`

	FilesDiscovered int                  `json:"files_discovered"`
	FilesProcessed  int                  `json:"files_processed"`
	FilesPerDay     []DailyCountResponse `json:"files_per_day"`
}

type DailyCountResponse struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func toExecutionResponse(exec domain.Execution) ExecutionResponse {
	resp := ExecutionResponse{
		ID:                   exec.ID.String(),
		ConfigurationID:      exec.ConfigurationID.String(),
		TenantID:             exec.TenantID.String(),
		Trigger:              string(exec.Trigger),
		Status:               string(exec.Status),
		StartedAt:            formatTime(exec.StartedAt),
		DurationMs:           exec.Duration.Milliseconds(),
		FilesFound:           exec.FilesFound,
		FilesProcessed:       exec.FilesProcessed,
		NotificationsEmitted: exec.NotificationsEmitted,
		ErrorCategory:        string(exec.ErrorCategory),
		ErrorMessage:         exec.ErrorMessage,
	}
	if exec.FinishedAt != nil {
		resp.FinishedAt = formatTime(*exec.FinishedAt)
	}
	return resp
}

// toProcessedFileResponse renders a ledger entry for the configuration-wide
// listing; the per-execution detail view omits the redundant execution id.
func toProcessedFileResponse(f domain.ProcessedFile) ProcessedFileResponse {
	return ProcessedFileResponse{
		ExecutionID:   f.ExecutionID.String(),
		Filename:      f.Filename,
		Locator:       f.Locator,
		DiscoveryDate: f.DiscoveryDate,
		ProcessedAt:   formatTime(f.ProcessedAt),
	}
}

func toMetricsResponse(m domain.ExecutionMetrics) MetricsResponse {
	resp := MetricsResponse{
		From:              formatTime(m.From),
		To:                formatTime(m.To),
		Executions:        m.Executions,
		Completed:         m.Completed,
		Failed:            m.Failed,
		SuccessRate:       m.SuccessRate,
		AverageDurationMs: m.AverageDuration.Milliseconds(),
		FilesDiscovered:   m.FilesDiscovered,
		FilesProcessed:    m.FilesProcessed,
		FilesPerDay:       make([]DailyCountResponse, len(m.FilesPerDay)),
	}
	for i, d := range m.FilesPerDay {
		resp.FilesPerDay[i] = DailyCountResponse{Date: d.Date, Count: d.Count}
	}
	return resp
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
