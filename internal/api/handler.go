package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub006/internal/domain"
	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub006/internal/scheduler"
)

// Pagination defaults and limits.
const (
	DefaultLimit = 100
	MaxLimit     = 1000

	// DefaultMetricsWindow is used when no window is given on the metrics
	// endpoint.
	DefaultMetricsWindow = 7 * 24 * time.Hour
	MaxMetricsWindow     = 90 * 24 * time.Hour
)

// ExecutionQuery filters an execution listing. PageToken is an opaque
// continuation token from a previous response; zero-value fields are
// unconstrained.
type ExecutionQuery struct {
	Status    domain.ExecutionStatus
	From      time.Time
	To        time.Time
	Limit     int
	PageToken string
}

// ProcessedFileQuery filters an operational ledger lookup. Zero-value fields
// are unconstrained.
type ProcessedFileQuery struct {
	Filename    string
	ExecutionID uuid.UUID
	Limit       int
	PageToken   string
}

// ErrBadPageToken is returned by the store when a continuation token cannot
// be decoded.
var ErrBadPageToken = errors.New("invalid page token")

type Store interface {
	GetConfiguration(ctx context.Context, id uuid.UUID) (domain.Configuration, error)
	GetExecution(ctx context.Context, id uuid.UUID) (domain.Execution, error)
	// ListExecutions returns a page of executions plus the continuation
	// token for the next page ("" when exhausted).
	ListExecutions(ctx context.Context, configurationID uuid.UUID, q ExecutionQuery) ([]domain.Execution, string, error)
	ListProcessedFiles(ctx context.Context, executionID uuid.UUID, limit int) ([]domain.ProcessedFile, error)
	// QueryProcessedFiles searches a configuration's ledger, newest first,
	// with the same continuation-token contract as ListExecutions.
	QueryProcessedFiles(ctx context.Context, configurationID uuid.UUID, q ProcessedFileQuery) ([]domain.ProcessedFile, string, error)
	AggregateMetrics(ctx context.Context, configurationID uuid.UUID, from, to time.Time) (domain.ExecutionMetrics, error)
}

// Trigger forces one immediate execution of a configuration.
type Trigger interface {
	TriggerNow(ctx context.Context, cfg domain.Configuration) (uuid.UUID, error)
}

// HealthChecker provides database health status for the /health endpoint.
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

type Handler struct {
	store   Store
	trigger Trigger
	db      HealthChecker
	clock   func() time.Time
}

func NewHandler(store Store, trigger Trigger) *Handler {
	return &Handler{store: store, trigger: trigger, clock: time.Now}
}

// WithHealthChecker sets the database health checker for verbose /health responses.
func (h *Handler) WithHealthChecker(db HealthChecker) *Handler {
	h.db = db
	return h
}

// Routes builds the HTTP surface. Configuration management is out of scope;
// this serves triggering and the execution history.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/health", h.health)
	r.Route("/configurations/{id}", func(r chi.Router) {
		r.Post("/trigger", h.triggerConfiguration)
		r.Get("/executions", h.listExecutions)
		r.Get("/processed-files", h.listProcessedFiles)
		r.Get("/metrics", h.metrics)
	})
	r.Get("/executions/{id}", h.getExecution)

	return r
}

// HealthResponse represents the /health endpoint response.
type HealthResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components,omitempty"`
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	verbose := r.URL.Query().Get("verbose") == "true"

	if !verbose || h.db == nil {
		writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
		return
	}

	resp := HealthResponse{
		Status:     "ok",
		Components: make(map[string]string),
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.db.PingContext(ctx); err != nil {
		resp.Status = "degraded"
		resp.Components["database"] = "unhealthy: " + err.Error()
	} else {
		resp.Components["database"] = "healthy"
	}

	statusCode := http.StatusOK
	if resp.Status == "degraded" {
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, statusCode, resp)
}

func (h *Handler) triggerConfiguration(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid configuration id")
		return
	}

	cfg, err := h.store.GetConfiguration(r.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "configuration not found")
			return
		}
		log.Printf("api: get configuration error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to load configuration")
		return
	}

	executionID, err := h.trigger.TriggerNow(r.Context(), cfg)
	if err != nil {
		if errors.Is(err, scheduler.ErrBusy) {
			writeError(w, http.StatusConflict, "configuration is already running")
			return
		}
		log.Printf("api: trigger error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to trigger execution")
		return
	}

	writeJSON(w, http.StatusAccepted, TriggerResponse{
		ExecutionID: executionID.String(),
		Status:      string(domain.ExecutionStatusPending),
	})
}

func (h *Handler) listExecutions(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid configuration id")
		return
	}

	q, err := parseExecutionQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	executions, nextToken, err := h.store.ListExecutions(r.Context(), id, q)
	if err != nil {
		if errors.Is(err, ErrBadPageToken) {
			writeError(w, http.StatusBadRequest, "invalid page_token")
			return
		}
		log.Printf("api: list executions error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list executions")
		return
	}

	resp := ListExecutionsResponse{
		Executions:    make([]ExecutionResponse, len(executions)),
		NextPageToken: nextToken,
	}
	for i, exec := range executions {
		resp.Executions[i] = toExecutionResponse(exec)
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) listProcessedFiles(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid configuration id")
		return
	}

	q, err := parseProcessedFileQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	files, nextToken, err := h.store.QueryProcessedFiles(r.Context(), id, q)
	if err != nil {
		if errors.Is(err, ErrBadPageToken) {
			writeError(w, http.StatusBadRequest, "invalid page_token")
			return
		}
		log.Printf("api: query processed files error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to query processed files")
		return
	}

	resp := ListProcessedFilesResponse{
		ProcessedFiles: make([]ProcessedFileResponse, len(files)),
		NextPageToken:  nextToken,
	}
	for i, f := range files {
		resp.ProcessedFiles[i] = toProcessedFileResponse(f)
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) getExecution(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid execution id")
		return
	}

	exec, err := h.store.GetExecution(r.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "execution not found")
			return
		}
		log.Printf("api: get execution error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to load execution")
		return
	}

	files, err := h.store.ListProcessedFiles(r.Context(), id, MaxLimit)
	if err != nil {
		log.Printf("api: list processed files error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to load processed files")
		return
	}

	resp := ExecutionDetailResponse{
		ExecutionResponse: toExecutionResponse(exec),
		ProcessedFiles:    make([]ProcessedFileResponse, len(files)),
	}
	for i, f := range files {
		resp.ProcessedFiles[i] = ProcessedFileResponse{
			Filename:      f.Filename,
			Locator:       f.Locator,
			DiscoveryDate: f.DiscoveryDate,
			ProcessedAt:   formatTime(f.ProcessedAt),
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) metrics(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid configuration id")
		return
	}

	window := DefaultMetricsWindow
	if raw := r.URL.Query().Get("window"); raw != "" {
		window, err = parseWindow(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	to := h.clock().UTC()
	from := to.Add(-window)

	m, err := h.store.AggregateMetrics(r.Context(), id, from, to)
	if err != nil {
		log.Printf("api: aggregate metrics error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to compute metrics")
		return
	}

	writeJSON(w, http.StatusOK, toMetricsResponse(m))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: json encode error: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
