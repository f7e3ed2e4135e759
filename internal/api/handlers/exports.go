package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/dvloznov/smartfinance/internal/api/middleware"
	"github.com/dvloznov/smartfinance/internal/jobs"
	"github.com/dvloznov/smartfinance/internal/logger"
	"github.com/go-chi/chi/v5"
)

// ExportsHandler enqueues ledger exports and reports their status.
type ExportsHandler struct {
	publisher jobs.Publisher
	store     jobs.JobStore
	enabled   func(jobs.ExportTarget) bool
}

// NewExportsHandler creates an exports handler. enabled reports which
// targets are configured.
func NewExportsHandler(publisher jobs.Publisher, store jobs.JobStore, enabled func(jobs.ExportTarget) bool) *ExportsHandler {
	return &ExportsHandler{publisher: publisher, store: store, enabled: enabled}
}

// CreateExport handles POST /api/exports
func (h *ExportsHandler) CreateExport(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Target jobs.ExportTarget `json:"target"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if !req.Target.Valid() {
		middleware.WriteError(w, http.StatusBadRequest, "target must be gcs or bigquery")
		return
	}
	if !h.enabled(req.Target) {
		middleware.WriteError(w, http.StatusServiceUnavailable, fmt.Sprintf("Export to %s is not configured", req.Target))
		return
	}

	job := &jobs.ExportLedgerJob{
		UserID: middleware.UserID(r.Context()),
		Target: req.Target,
	}
	if err := h.publisher.PublishExport(r.Context(), job); err != nil {
		writeServiceError(w, r, err, "Failed to enqueue export")
		return
	}

	log := logger.FromContext(r.Context())
	log.Info().Str("job_id", job.JobID).Str("target", string(job.Target)).Msg("Export enqueued")

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id": job.JobID,
		"target": string(job.Target),
		"status": string(job.Status),
	})
}

// GetExport handles GET /api/exports/{id}. Other users' jobs are reported
// as not found.
func (h *ExportsHandler) GetExport(w http.ResponseWriter, r *http.Request) {
	job, err := h.store.GetJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err, "Failed to get export")
		return
	}
	if job.UserID != middleware.UserID(r.Context()) {
		middleware.WriteError(w, http.StatusNotFound, "Export not found")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListExports handles GET /api/exports
func (h *ExportsHandler) ListExports(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := jobs.JobFilter{
		UserID: middleware.UserID(r.Context()),
		Status: jobs.JobStatus(query.Get("status")),
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}

	if offsetStr := query.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			filter.Offset = offset
		}
	}

	jobsList, err := h.store.ListJobs(r.Context(), filter)
	if err != nil {
		writeServiceError(w, r, err, "Failed to list exports")
		return
	}
	if jobsList == nil {
		jobsList = []*jobs.ExportLedgerJob{}
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"exports": jobsList,
		"count":   len(jobsList),
	})
}
