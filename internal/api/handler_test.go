package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub006/internal/domain"
	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub006/internal/scheduler"
)

type mockStore struct {
	configurations map[uuid.UUID]domain.Configuration
	executions     map[uuid.UUID]domain.Execution
	listed         []domain.Execution
	listedToken    string
	lastQuery      ExecutionQuery
	files          []domain.ProcessedFile
	queried        []domain.ProcessedFile
	queriedToken   string
	lastFileQuery  ProcessedFileQuery
	metrics        domain.ExecutionMetrics
	listErr        error
}

func (s *mockStore) GetConfiguration(ctx context.Context, id uuid.UUID) (domain.Configuration, error) {
	cfg, ok := s.configurations[id]
	if !ok {
		return domain.Configuration{}, sql.ErrNoRows
	}
	return cfg, nil
}

func (s *mockStore) GetExecution(ctx context.Context, id uuid.UUID) (domain.Execution, error) {
	exec, ok := s.executions[id]
	if !ok {
		return domain.Execution{}, sql.ErrNoRows
	}
	return exec, nil
}

func (s *mockStore) ListExecutions(ctx context.Context, configurationID uuid.UUID, q ExecutionQuery) ([]domain.Execution, string, error) {
	s.lastQuery = q
	if s.listErr != nil {
		return nil, "", s.listErr
	}
	return s.listed, s.listedToken, nil
}

func (s *mockStore) ListProcessedFiles(ctx context.Context, executionID uuid.UUID, limit int) ([]domain.ProcessedFile, error) {
	return s.files, nil
}

func (s *mockStore) QueryProcessedFiles(ctx context.Context, configurationID uuid.UUID, q ProcessedFileQuery) ([]domain.ProcessedFile, string, error) {
	s.lastFileQuery = q
	if s.listErr != nil {
		return nil, "", s.listErr
	}
	return s.queried, s.queriedToken, nil
}

func (s *mockStore) AggregateMetrics(ctx context.Context, configurationID uuid.UUID, from, to time.Time) (domain.ExecutionMetrics, error) {
	return s.metrics, nil
}

type mockTrigger struct {
	executionID uuid.UUID
	err         error
	triggered   []uuid.UUID
}

func (t *mockTrigger) TriggerNow(ctx context.Context, cfg domain.Configuration) (uuid.UUID, error) {
	t.triggered = append(t.triggered, cfg.ID)
	if t.err != nil {
		return uuid.Nil, t.err
	}
	return t.executionID, nil
}

func serve(h *Handler, method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)
	return rec
}

func TestTrigger_ReturnsExecutionID(t *testing.T) {
	cfgID := uuid.New()
	execID := uuid.New()

	store := &mockStore{configurations: map[uuid.UUID]domain.Configuration{
		cfgID: {ID: cfgID, Name: "nightly-settlements"},
	}}
	trigger := &mockTrigger{executionID: execID}
	h := NewHandler(store, trigger)

	rec := serve(h, http.MethodPost, "/configurations/"+cfgID.String()+"/trigger")

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202, body: %s", rec.Code, rec.Body.String())
	}
	var resp TriggerResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ExecutionID != execID.String() {
		t.Errorf("execution_id = %s, want %s", resp.ExecutionID, execID)
	}
	if len(trigger.triggered) != 1 || trigger.triggered[0] != cfgID {
		t.Errorf("triggered = %v, want [%s]", trigger.triggered, cfgID)
	}
}

func TestTrigger_UnknownConfigurationIs404(t *testing.T) {
	h := NewHandler(&mockStore{}, &mockTrigger{})

	rec := serve(h, http.MethodPost, "/configurations/"+uuid.NewString()+"/trigger")

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestTrigger_BusyIs409(t *testing.T) {
	cfgID := uuid.New()
	store := &mockStore{configurations: map[uuid.UUID]domain.Configuration{
		cfgID: {ID: cfgID},
	}}
	h := NewHandler(store, &mockTrigger{err: scheduler.ErrBusy})

	rec := serve(h, http.MethodPost, "/configurations/"+cfgID.String()+"/trigger")

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestListExecutions_PassesFiltersAndToken(t *testing.T) {
	cfgID := uuid.New()
	finished := time.Date(2026, 2, 23, 4, 0, 3, 0, time.UTC)
	store := &mockStore{
		listed: []domain.Execution{{
			ID:              uuid.New(),
			ConfigurationID: cfgID,
			Status:          domain.ExecutionStatusCompleted,
			StartedAt:       finished.Add(-3 * time.Second),
			FinishedAt:      &finished,
			Duration:        3 * time.Second,
			FilesFound:      2,
			FilesProcessed:  2,
		}},
		listedToken: "next-page",
	}
	h := NewHandler(store, &mockTrigger{})

	rec := serve(h, http.MethodGet,
		"/configurations/"+cfgID.String()+"/executions?status=completed&limit=10&page_token=abc")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body: %s", rec.Code, rec.Body.String())
	}
	if store.lastQuery.Status != domain.ExecutionStatusCompleted {
		t.Errorf("status filter = %q, want completed", store.lastQuery.Status)
	}
	if store.lastQuery.Limit != 10 {
		t.Errorf("limit = %d, want 10", store.lastQuery.Limit)
	}
	if store.lastQuery.PageToken != "abc" {
		t.Errorf("page token = %q, want abc", store.lastQuery.PageToken)
	}

	var resp ListExecutionsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Executions) != 1 {
		t.Fatalf("got %d executions, want 1", len(resp.Executions))
	}
	if resp.NextPageToken != "next-page" {
		t.Errorf("next_page_token = %q, want next-page", resp.NextPageToken)
	}
	if resp.Executions[0].FinishedAt == "" {
		t.Errorf("finished_at missing on completed execution")
	}
}

func TestListExecutions_BadStatusIs400(t *testing.T) {
	h := NewHandler(&mockStore{}, &mockTrigger{})

	rec := serve(h, http.MethodGet,
		"/configurations/"+uuid.NewString()+"/executions?status=exploded")

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestListExecutions_BadPageTokenIs400(t *testing.T) {
	h := NewHandler(&mockStore{listErr: ErrBadPageToken}, &mockTrigger{})

	rec := serve(h, http.MethodGet,
		"/configurations/"+uuid.NewString()+"/executions?page_token=garbage")

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestListProcessedFiles_PassesFiltersAndToken(t *testing.T) {
	cfgID := uuid.New()
	execID := uuid.New()
	store := &mockStore{
		queried: []domain.ProcessedFile{{
			ExecutionID:   execID,
			Filename:      "report_20260223.csv",
			Locator:       "ftp://ftp.example.com/out/report_20260223.csv",
			DiscoveryDate: "2026-02-23",
			ProcessedAt:   time.Date(2026, 2, 23, 4, 0, 1, 0, time.UTC),
		}},
		queriedToken: "next-page",
	}
	h := NewHandler(store, &mockTrigger{})

	rec := serve(h, http.MethodGet,
		"/configurations/"+cfgID.String()+"/processed-files?filename=report_20260223.csv&execution_id="+execID.String()+"&limit=10&page_token=abc")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body: %s", rec.Code, rec.Body.String())
	}
	if store.lastFileQuery.Filename != "report_20260223.csv" {
		t.Errorf("filename filter = %q", store.lastFileQuery.Filename)
	}
	if store.lastFileQuery.ExecutionID != execID {
		t.Errorf("execution_id filter = %s, want %s", store.lastFileQuery.ExecutionID, execID)
	}
	if store.lastFileQuery.Limit != 10 {
		t.Errorf("limit = %d, want 10", store.lastFileQuery.Limit)
	}
	if store.lastFileQuery.PageToken != "abc" {
		t.Errorf("page token = %q, want abc", store.lastFileQuery.PageToken)
	}

	var resp ListProcessedFilesResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.ProcessedFiles) != 1 {
		t.Fatalf("got %d processed files, want 1", len(resp.ProcessedFiles))
	}
	if resp.ProcessedFiles[0].ExecutionID != execID.String() {
		t.Errorf("execution_id = %q, want %s", resp.ProcessedFiles[0].ExecutionID, execID)
	}
	if resp.NextPageToken != "next-page" {
		t.Errorf("next_page_token = %q, want next-page", resp.NextPageToken)
	}
}

func TestListProcessedFiles_BadExecutionIDIs400(t *testing.T) {
	h := NewHandler(&mockStore{}, &mockTrigger{})

	rec := serve(h, http.MethodGet,
		"/configurations/"+uuid.NewString()+"/processed-files?execution_id=not-a-uuid")

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestListProcessedFiles_BadPageTokenIs400(t *testing.T) {
	h := NewHandler(&mockStore{listErr: ErrBadPageToken}, &mockTrigger{})

	rec := serve(h, http.MethodGet,
		"/configurations/"+uuid.NewString()+"/processed-files?page_token=garbage")

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestGetExecution_IncludesProcessedFiles(t *testing.T) {
	execID := uuid.New()
	store := &mockStore{
		executions: map[uuid.UUID]domain.Execution{
			execID: {ID: execID, Status: domain.ExecutionStatusCompleted, FilesProcessed: 1},
		},
		files: []domain.ProcessedFile{{
			ExecutionID:   execID,
			Filename:      "report_20260223.csv",
			Locator:       "ftp://ftp.example.com/out/report_20260223.csv",
			DiscoveryDate: "2026-02-23",
			ProcessedAt:   time.Date(2026, 2, 23, 4, 0, 1, 0, time.UTC),
		}},
	}
	h := NewHandler(store, &mockTrigger{})

	rec := serve(h, http.MethodGet, "/executions/"+execID.String())

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body: %s", rec.Code, rec.Body.String())
	}
	var resp ExecutionDetailResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.ProcessedFiles) != 1 {
		t.Fatalf("got %d processed files, want 1", len(resp.ProcessedFiles))
	}
	if resp.ProcessedFiles[0].Filename != "report_20260223.csv" {
		t.Errorf("filename = %q", resp.ProcessedFiles[0].Filename)
	}
}

func TestGetExecution_UnknownIs404(t *testing.T) {
	h := NewHandler(&mockStore{}, &mockTrigger{})

	rec := serve(h, http.MethodGet, "/executions/"+uuid.NewString())

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestMetrics_DefaultWindow(t *testing.T) {
	cfgID := uuid.New()
	now := time.Date(2026, 2, 23, 12, 0, 0, 0, time.UTC)
	store := &mockStore{metrics: domain.ExecutionMetrics{
		From:            now.Add(-DefaultMetricsWindow),
		To:              now,
		Executions:      10,
		Completed:       9,
		Failed:          1,
		SuccessRate:     0.9,
		AverageDuration: 2 * time.Second,
	}}
	h := NewHandler(store, &mockTrigger{})
	h.clock = func() time.Time { return now }

	rec := serve(h, http.MethodGet, "/configurations/"+cfgID.String()+"/metrics")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body: %s", rec.Code, rec.Body.String())
	}
	var resp MetricsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.SuccessRate != 0.9 {
		t.Errorf("success_rate = %v, want 0.9", resp.SuccessRate)
	}
	if resp.AverageDurationMs != 2000 {
		t.Errorf("average_duration_ms = %d, want 2000", resp.AverageDurationMs)
	}
}

func TestMetrics_BadWindowIs400(t *testing.T) {
	h := NewHandler(&mockStore{}, &mockTrigger{})

	rec := serve(h, http.MethodGet,
		"/configurations/"+uuid.NewString()+"/metrics?window=yesterday")

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHealth_Simple(t *testing.T) {
	h := NewHandler(&mockStore{}, &mockTrigger{})

	rec := serve(h, http.MethodGet, "/health")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

type failingPinger struct{}

func (failingPinger) PingContext(ctx context.Context) error {
	return context.DeadlineExceeded
}

func TestHealth_VerboseDegraded(t *testing.T) {
	h := NewHandler(&mockStore{}, &mockTrigger{}).WithHealthChecker(failingPinger{})

	rec := serve(h, http.MethodGet, "/health?verbose=true")

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	var resp HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "degraded" {
		t.Errorf("status = %q, want degraded", resp.Status)
	}
}
