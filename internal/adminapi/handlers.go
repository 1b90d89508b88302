// Copyright 2025 James Ross
package adminapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/holocron/orchestrator/internal/admin"
)

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	res, err := admin.Stats(ctx, s.backend)
	if err != nil {
		s.log.Error("admin api: stats failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to retrieve stats")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleListWorkItems(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	status, err := admin.ResolveWorkItemStatus(r.URL.Query().Get("status"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit := parseLimit(r)

	items, err := admin.ListWorkItems(ctx, s.backend, status, limit)
	if err != nil {
		s.log.Error("admin api: list work items failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list work items")
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	status, err := admin.ResolveJobStatus(r.URL.Query().Get("status"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit := parseLimit(r)

	jobs, err := admin.ListJobs(ctx, s.backend, status, limit)
	if err != nil {
		s.log.Error("admin api: list jobs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (s *Server) handleInspectJob(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	jobID := mux.Vars(r)["job_id"]
	detail, err := admin.InspectJob(ctx, s.backend, jobID)
	if err != nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleSearchJobs(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	q := r.URL.Query().Get("q")
	if q == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}
	results, err := admin.SearchJobs(ctx, s.backend, q, 500)
	if err != nil {
		s.log.Error("admin api: search jobs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to search jobs")
		return
	}
	writeJSON(w, http.StatusOK, results)
}

type markSourceFailedRequest struct {
	SourceSystem string `json:"source_system"`
	SourceName   string `json:"source_name"`
	Reason       string `json:"reason"`
}

func (s *Server) handleMarkSourceFailed(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	var req markSourceFailedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	n, err := admin.MarkSourceFailed(ctx, s.backend, req.SourceSystem, req.SourceName, req.Reason)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"updated": n})
}

func (s *Server) handleResetCompletedToPending(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	n, err := admin.ResetCompletedToPending(ctx, s.backend)
	if err != nil {
		s.log.Error("admin api: reset completed to pending failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to reset completed work items")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"updated": n})
}

func (s *Server) handlePurgeDeadJobs(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	n, err := admin.PurgeDeadJobs(ctx, s.backend)
	if err != nil {
		s.log.Error("admin api: purge dead jobs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to purge dead jobs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"purged": n})
}

func parseLimit(r *http.Request) int {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0
	}
	return n
}
