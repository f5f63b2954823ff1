package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/uncommonlabs/catalog-crawler/internal/catalog"
	"github.com/uncommonlabs/catalog-crawler/internal/runner"
	"github.com/uncommonlabs/catalog-crawler/internal/store"
)

const (
	defaultJobLimit = 20
	maxJobLimit     = 100
)

type scrapeRequest struct {
	URL         string `json:"url"`
	MaxProducts *int   `json:"max_products"`
}

type scrapeResponse struct {
	JobID     string `json:"job_id"`
	Status    string `json:"status"`
	TargetURL string `json:"target_url"`
}

// startScrape handles POST /v1/scrape. It responds 202 with the pending
// job, 409 while a crawl is active, and 400 for malformed bodies.
func (s *Server) startScrape(w http.ResponseWriter, r *http.Request) {
	var req scrapeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.MaxProducts != nil && *req.MaxProducts < 0 {
		writeError(w, http.StatusBadRequest, "max_products must be zero or positive")
		return
	}

	job, err := s.trigger.Start(r.Context(), req.URL, req.MaxProducts)
	if err != nil {
		if errors.Is(err, runner.ErrBusy) {
			writeError(w, http.StatusConflict, "a crawl is already running")
			return
		}
		s.logger.Error("start crawl failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to start crawl")
		return
	}

	writeJSON(w, http.StatusAccepted, scrapeResponse{
		JobID:     job.ID,
		Status:    string(job.Status),
		TargetURL: job.TargetURL,
	})
}

// getJob handles GET /v1/jobs/{job_id}.
func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	if _, err := uuid.Parse(jobID); err != nil {
		writeError(w, http.StatusBadRequest, "invalid job_id")
		return
	}

	job, err := s.jobs.Get(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		s.logger.Error("get job failed", zap.String("job_id", jobID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load job")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// listJobs handles GET /v1/jobs?limit=N, newest first.
func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	limit := defaultJobLimit
	if limStr := r.URL.Query().Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		if val > maxJobLimit {
			val = maxJobLimit
		}
		limit = val
	}

	jobs, err := s.jobs.List(r.Context(), limit)
	if err != nil {
		s.logger.Error("list jobs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}
	if jobs == nil {
		jobs = []catalog.Job{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}
