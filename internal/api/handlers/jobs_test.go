package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/finsight/statement-pipeline/internal/domain"
	"github.com/finsight/statement-pipeline/internal/jobs"
	"github.com/finsight/statement-pipeline/internal/jobs/inmemory"
)

type stubPublisher struct {
	submitted *jobs.AnalysisJob
	err       error
}

func (p *stubPublisher) Submit(ctx context.Context, job *jobs.AnalysisJob) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	p.submitted = job
	if job.JobID == "" {
		job.JobID = "generated-id"
	}
	return job.JobID, nil
}

func (p *stubPublisher) Close() error { return nil }

func submitBody(t *testing.T, overrides map[string]interface{}) *strings.Reader {
	t.Helper()

	body := map[string]interface{}{
		"user_id":   "user-1",
		"file_name": "statement.csv",
		"file_type": "text/csv",
		"file_data": base64.StdEncoding.EncodeToString([]byte("Date,Description\n")),
	}
	for k, v := range overrides {
		body[k] = v
	}
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	return strings.NewReader(string(raw))
}

func TestSubmitJobAccepted(t *testing.T) {
	publisher := &stubPublisher{}
	h := NewJobsHandler(publisher, inmemory.NewStore(), zerolog.Nop())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/jobs", submitBody(t, nil))
	h.SubmitJob(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body.String())
	}

	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp["job_id"] == "" {
		t.Fatal("expected a job_id in the response")
	}
	if resp["status"] != string(jobs.StatusPending) {
		t.Fatalf("status = %s, want pending", resp["status"])
	}
	if publisher.submitted.Priority != jobs.PriorityUser {
		t.Fatalf("default priority = %v, want user", publisher.submitted.Priority)
	}
}

func TestSubmitJobAdminPriority(t *testing.T) {
	publisher := &stubPublisher{}
	h := NewJobsHandler(publisher, inmemory.NewStore(), zerolog.Nop())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/jobs",
		submitBody(t, map[string]interface{}{"admin": true}))
	h.SubmitJob(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	if publisher.submitted.Priority != jobs.PriorityAdmin {
		t.Fatalf("priority = %v, want admin", publisher.submitted.Priority)
	}
}

func TestSubmitJobValidation(t *testing.T) {
	tests := []struct {
		name      string
		overrides map[string]interface{}
	}{
		{"missing file_type", map[string]interface{}{"file_type": ""}},
		{"missing payload", map[string]interface{}{"file_data": "", "source_uri": ""}},
		{"bad base64", map[string]interface{}{"file_data": "not base64!!"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewJobsHandler(&stubPublisher{}, inmemory.NewStore(), zerolog.Nop())

			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/jobs", submitBody(t, tt.overrides))
			h.SubmitJob(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestSubmitJobQueueClosed(t *testing.T) {
	h := NewJobsHandler(&stubPublisher{err: jobs.ErrQueueClosed}, inmemory.NewStore(), zerolog.Nop())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/jobs", submitBody(t, nil))
	h.SubmitJob(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestGetJobNotFound(t *testing.T) {
	h := NewJobsHandler(&stubPublisher{}, inmemory.NewStore(), zerolog.Nop())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/jobs/missing", nil)
	h.GetJob(rec, req, "missing")

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestGetJobFailedHidesInternals(t *testing.T) {
	store := inmemory.NewStore()
	ctx := context.Background()

	job := &jobs.AnalysisJob{
		JobID:       "job-1",
		UserID:      "user-1",
		FileName:    "statement.csv",
		FileType:    "text/csv",
		Status:      jobs.StatusFailed,
		Attempts:    3,
		MaxAttempts: 3,
		Error:       "stage parse: invalid CSV\ngoroutine 12 [running]:\ninternal/stack/frame.go:42",
		CreatedAt:   time.Now(),
	}
	if err := store.CreateJob(ctx, job); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	h := NewJobsHandler(&stubPublisher{}, store, zerolog.Nop())
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/jobs/job-1", nil)
	h.GetJob(rec, req, "job-1")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	errMsg, _ := resp["error"].(string)
	if errMsg != "stage parse: invalid CSV" {
		t.Fatalf("error = %q, want first line only", errMsg)
	}
	if strings.Contains(rec.Body.String(), "goroutine") {
		t.Fatal("stack trace leaked into the API response")
	}
	if resp["attempts"] != float64(3) {
		t.Fatalf("attempts = %v, want 3", resp["attempts"])
	}
}

func TestGetJobCompletedIncludesMetadata(t *testing.T) {
	store := inmemory.NewStore()
	ctx := context.Background()

	now := time.Now()
	job := &jobs.AnalysisJob{
		JobID:       "job-1",
		UserID:      "user-1",
		FileName:    "statement.csv",
		FileType:    "text/csv",
		Status:      jobs.StatusCompleted,
		Progress:    100,
		CompletedAt: &now,
		Metadata: &domain.AnalysisMetadata{
			TransactionCount: 4,
			Summary:          domain.FinancialSummary{TotalIncome: 60000},
		},
		CreatedAt: now,
	}
	if err := store.CreateJob(ctx, job); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	h := NewJobsHandler(&stubPublisher{}, store, zerolog.Nop())
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/jobs/job-1", nil)
	h.GetJob(rec, req, "job-1")

	var resp map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	meta, ok := resp["metadata"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected metadata object, got %v", resp["metadata"])
	}
	if meta["transaction_count"] != float64(4) {
		t.Fatalf("transaction_count = %v, want 4", meta["transaction_count"])
	}
}

func TestListJobsFiltersByQuery(t *testing.T) {
	store := inmemory.NewStore()
	ctx := context.Background()
	for _, spec := range []struct {
		id   string
		user string
	}{
		{"job-1", "alice"},
		{"job-2", "bob"},
	} {
		job := &jobs.AnalysisJob{
			JobID:     spec.id,
			UserID:    spec.user,
			FileName:  "statement.csv",
			FileType:  "text/csv",
			Status:    jobs.StatusPending,
			CreatedAt: time.Now(),
		}
		if err := store.CreateJob(ctx, job); err != nil {
			t.Fatalf("CreateJob: %v", err)
		}
	}

	h := NewJobsHandler(&stubPublisher{}, store, zerolog.Nop())
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/jobs?user_id=alice", nil)
	h.ListJobs(rec, req)

	var resp struct {
		Jobs  []jobs.AnalysisJob `json:"jobs"`
		Count int                `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Count != 1 || resp.Jobs[0].UserID != "alice" {
		t.Fatalf("expected only alice's job, got %+v", resp)
	}
}
