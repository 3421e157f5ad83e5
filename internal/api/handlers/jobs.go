package handlers

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/finsight/statement-pipeline/internal/api/middleware"
	"github.com/finsight/statement-pipeline/internal/jobs"
)

// JobsHandler serves the job submission and status endpoints.
type JobsHandler struct {
	publisher jobs.Publisher
	store     jobs.Store
	log       zerolog.Logger
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(publisher jobs.Publisher, store jobs.Store, log zerolog.Logger) *JobsHandler {
	return &JobsHandler{
		publisher: publisher,
		store:     store,
		log:       log,
	}
}

type submitJobRequest struct {
	JobID       string `json:"job_id,omitempty"`
	UserID      string `json:"user_id"`
	FileName    string `json:"file_name"`
	FileType    string `json:"file_type"`
	SourceURI   string `json:"source_uri,omitempty"`
	FileData    string `json:"file_data,omitempty"` // base64
	Password    string `json:"password,omitempty"`
	ReportName  string `json:"report_name,omitempty"`
	ReferenceID string `json:"reference_id,omitempty"`
	Admin       bool   `json:"admin,omitempty"`
}

// SubmitJob handles POST /api/jobs
func (h *JobsHandler) SubmitJob(w http.ResponseWriter, r *http.Request) {
	var req submitJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.FileType == "" {
		middleware.WriteError(w, http.StatusBadRequest, "file_type is required")
		return
	}
	if req.SourceURI == "" && req.FileData == "" {
		middleware.WriteError(w, http.StatusBadRequest, "source_uri or file_data is required")
		return
	}

	var fileData []byte
	if req.FileData != "" {
		decoded, err := base64.StdEncoding.DecodeString(req.FileData)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "file_data must be base64 encoded")
			return
		}
		fileData = decoded
	}

	priority := jobs.PriorityUser
	if req.Admin {
		priority = jobs.PriorityAdmin
	}

	job := &jobs.AnalysisJob{
		JobID:       req.JobID,
		UserID:      req.UserID,
		FileName:    req.FileName,
		FileType:    req.FileType,
		SourceURI:   req.SourceURI,
		FileData:    fileData,
		Password:    req.Password,
		ReportName:  req.ReportName,
		ReferenceID: req.ReferenceID,
		Priority:    priority,
	}

	jobID, err := h.publisher.Submit(r.Context(), job)
	if err != nil {
		if errors.Is(err, jobs.ErrQueueClosed) {
			middleware.WriteError(w, http.StatusServiceUnavailable, "Queue is shutting down")
			return
		}
		h.log.Error().Err(err).Msg("Failed to submit job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to submit job")
		return
	}

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id": jobID,
		"status": string(jobs.StatusPending),
	})
}

// GetJob handles GET /api/jobs/:jobId
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request, jobID string) {
	job, err := h.store.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, jobs.ErrJobNotFound) {
			middleware.WriteError(w, http.StatusNotFound, "Job not found")
			return
		}
		h.log.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get job")
		return
	}

	resp := map[string]interface{}{
		"job_id":   job.JobID,
		"status":   job.Status,
		"progress": job.Progress,
	}
	if job.Status == jobs.StatusFailed {
		// Short summary only; no stack traces or internal paths.
		resp["error"] = errorSummary(job.Error)
		resp["attempts"] = job.Attempts
	}
	if job.Status == jobs.StatusCompleted {
		resp["metadata"] = job.Metadata
		resp["completed_at"] = job.CompletedAt
	}

	middleware.WriteJSON(w, http.StatusOK, resp)
}

// ListJobs handles GET /api/jobs
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	filter := jobs.JobFilter{
		UserID: r.URL.Query().Get("user_id"),
		Status: jobs.Status(r.URL.Query().Get("status")),
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			filter.Limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			filter.Offset = n
		}
	}

	list, err := h.store.ListJobs(r.Context(), filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  list,
		"count": len(list),
	})
}

// QueueStats handles GET /api/queue/stats
func (h *JobsHandler) QueueStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.QueueStats(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get queue stats")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get queue stats")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, stats)
}

// errorSummary trims a stored error down to its first line.
func errorSummary(msg string) string {
	if idx := strings.IndexByte(msg, '\n'); idx >= 0 {
		msg = msg[:idx]
	}
	const maxLen = 200
	if len(msg) > maxLen {
		msg = msg[:maxLen]
	}
	return msg
}
