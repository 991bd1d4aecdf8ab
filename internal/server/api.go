// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dsget/dsget/pkg/dsget"
)

// FetchRequest is the request body for starting a URL-list fetch.
// Note: the output path is NOT configurable via API for security reasons.
// The server uses its configured ImagesDir.
type FetchRequest struct {
	URLs  []string `json:"urls"`
	Force bool     `json:"force,omitempty"`
}

// DatasetRequest is the request body for loading a dataset split.
// The server uses its configured DatasetsDir.
type DatasetRequest struct {
	Name     string `json:"name"`
	Config   string `json:"config,omitempty"`
	Split    string `json:"split,omitempty"`
	Revision string `json:"revision,omitempty"`
}

// SettingsResponse represents current settings.
type SettingsResponse struct {
	Token       string `json:"token,omitempty"`
	ImagesDir   string `json:"imagesDir"`
	DatasetsDir string `json:"datasetsDir"`
	MaxActive   int    `json:"maxActive"`
	Verify      string `json:"verify"`
	Retries     int    `json:"retries"`
	Endpoint    string `json:"endpoint,omitempty"`
}

// ErrorResponse represents an API error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// SuccessResponse represents a simple success message.
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// --- Handlers ---

// handleHealth returns server health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// handleStartFetch starts a new URL-list fetch job.
func (s *Server) handleStartFetch(w http.ResponseWriter, r *http.Request) {
	var req FetchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	if len(req.URLs) == 0 {
		writeError(w, http.StatusBadRequest, "Missing required field: urls", "")
		return
	}

	job, wasExisting := s.jobs.CreateFetchJob(req)
	if wasExisting {
		writeJSON(w, http.StatusOK, map[string]any{
			"job":     job,
			"message": "Fetch already in progress",
		})
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

// handleStartDataset starts a new dataset load job.
func (s *Server) handleStartDataset(w http.ResponseWriter, r *http.Request) {
	var req DatasetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "Missing required field: name", "")
		return
	}
	if !dsget.IsValidDatasetName(req.Name) {
		writeError(w, http.StatusBadRequest, "Invalid dataset name", "Expected name or owner/name")
		return
	}
	if req.Split != "" {
		if _, err := dsget.ParseSplit(req.Split); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid split expression", err.Error())
			return
		}
	}

	job, wasExisting := s.jobs.CreateDatasetJob(req)
	if wasExisting {
		writeJSON(w, http.StatusOK, map[string]any{
			"job":     job,
			"message": "Load already in progress",
		})
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

// handlePlan resolves a dataset plan without starting the download.
func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	var req DatasetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "Missing required field: name", "")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 60*time.Second)
	defer cancel()

	plan, err := dsget.PlanDataset(ctx, dsget.DatasetJob{
		Name:     req.Name,
		Config:   req.Config,
		Split:    req.Split,
		Revision: req.Revision,
	}, dsget.Settings{
		Token:    s.config.Token,
		Endpoint: s.config.Endpoint,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to resolve plan", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, plan)
}

// handleListJobs returns all jobs.
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs := s.jobs.ListJobs()
	writeJSON(w, http.StatusOK, map[string]any{
		"jobs":  jobs,
		"count": len(jobs),
	})
}

// handleGetJob returns a specific job.
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "Missing job ID", "")
		return
	}

	job, ok := s.jobs.GetJob(id)
	if !ok {
		writeError(w, http.StatusNotFound, "Job not found", "")
		return
	}

	writeJSON(w, http.StatusOK, job)
}

// handleCancelJob cancels a job.
func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "Missing job ID", "")
		return
	}

	if s.jobs.CancelJob(id) {
		writeJSON(w, http.StatusOK, SuccessResponse{
			Success: true,
			Message: "Job cancelled",
		})
	} else {
		writeError(w, http.StatusNotFound, "Job not found or already completed", "")
	}
}

// handleDeleteJob cancels a job if still active and removes it from the list.
func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "Missing job ID", "")
		return
	}

	if s.jobs.DeleteJob(id) {
		writeJSON(w, http.StatusOK, SuccessResponse{
			Success: true,
			Message: "Job deleted",
		})
	} else {
		writeError(w, http.StatusNotFound, "Job not found", "")
	}
}

// handleGetSettings returns current settings.
func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	// Don't expose the full token, just indicate if set
	tokenStatus := ""
	if s.config.Token != "" {
		tokenStatus = "********" + s.config.Token[max(0, len(s.config.Token)-4):]
	}

	resp := SettingsResponse{
		Token:       tokenStatus,
		ImagesDir:   s.config.ImagesDir,
		DatasetsDir: s.config.DatasetsDir,
		MaxActive:   s.config.MaxActive,
		Verify:      s.config.Verify,
		Retries:     s.config.Retries,
		Endpoint:    s.config.Endpoint,
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleUpdateSettings updates settings.
// Note: output directories cannot be changed via API for security.
func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token     *string `json:"token,omitempty"`
		MaxActive *int    `json:"maxActive,omitempty"`
		Verify    *string `json:"verify,omitempty"`
		Retries   *int    `json:"retries,omitempty"`
		// ImagesDir and DatasetsDir are NOT updatable via API
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	if req.Token != nil {
		s.config.Token = *req.Token
	}
	if req.MaxActive != nil && *req.MaxActive > 0 {
		s.config.MaxActive = *req.MaxActive
	}
	if req.Verify != nil && *req.Verify != "" {
		s.config.Verify = *req.Verify
	}
	if req.Retries != nil && *req.Retries > 0 {
		s.config.Retries = *req.Retries
	}

	// Also update job manager config
	s.jobs.config = s.config

	writeJSON(w, http.StatusOK, SuccessResponse{
		Success: true,
		Message: "Settings updated",
	})
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message, details string) {
	writeJSON(w, status, ErrorResponse{
		Error:   message,
		Details: details,
	})
}
