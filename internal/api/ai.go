package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"churchsite/internal/dispatch"
	"churchsite/internal/models"
	"churchsite/internal/registry"
)

type askAIResponse struct {
	Success bool             `json:"success"`
	JobID   string           `json:"job_id"`
	Status  models.JobStatus `json:"status"`
	Message string           `json:"message"`
}

// handleAskAI accepts every request, even one without a usable body; the
// job then runs with an empty prompt.
func (s *Server) handleAskAI(w http.ResponseWriter, r *http.Request) {
	var req models.AIRequest
	decodeBody(r, &req)

	id, err := s.dispatcher.Submit(r.Context(), req)
	if errors.Is(err, dispatch.ErrClosed) {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "Server is shutting down"})
		return
	}
	if err != nil {
		s.logger.Error("submit ai job", "err", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Failed to start AI task"})
		return
	}
	writeJSON(w, http.StatusAccepted, askAIResponse{
		Success: true,
		JobID:   id,
		Status:  models.JobProcessing,
		Message: "AI task started in background",
	})
}

func (s *Server) handleAIStatus(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobs.Get(chi.URLParam(r, "id"))
	if errors.Is(err, registry.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Job not found"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, job)
}

type historyResponse struct {
	Success bool                 `json:"success"`
	History []models.AuditRecord `json:"history"`
	Total   int64                `json:"total"`
	Error   string               `json:"error,omitempty"`
}

// handleAIHistory never fails the request: a storage error yields an empty
// page carrying the error text.
func (s *Server) handleAIHistory(w http.ResponseWriter, r *http.Request) {
	page, limit := pageParams(r, 20)
	records, total, err := s.store.ListAudit(r.Context(), limit, (page-1)*limit)
	if err != nil {
		s.logger.Error("list ai history", "err", err)
		writeJSON(w, http.StatusOK, historyResponse{Success: true, History: []models.AuditRecord{}, Error: err.Error()})
		return
	}
	if records == nil {
		records = []models.AuditRecord{}
	}
	writeJSON(w, http.StatusOK, historyResponse{Success: true, History: records, Total: total})
}

type linkCommitRequest struct {
	CommitHash *string `json:"commit_hash"`
}

func (s *Server) handleLinkCommit(w http.ResponseWriter, r *http.Request) {
	var req linkCommitRequest
	decodeBody(r, &req)

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err == nil {
		err = s.store.UpdateAuditCommit(r.Context(), id, req.CommitHash)
	}
	if err != nil {
		s.logger.Error("link commit", "id", chi.URLParam(r, "id"), "err", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Update failed"})
		return
	}
	writeJSON(w, http.StatusOK, okResponse)
}
