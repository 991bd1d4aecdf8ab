// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := Config{
		Addr:        "127.0.0.1",
		Port:        0, // Random port
		ImagesDir:   t.TempDir(),
		DatasetsDir: t.TempDir(),
		MaxActive:   1,
	}
	return New(cfg)
}

func TestAPI_Health(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest("GET", "/api/health", nil)
	w := httptest.NewRecorder()

	srv.handleHealth(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}

	var resp map[string]any
	json.Unmarshal(w.Body.Bytes(), &resp)

	if resp["status"] != "ok" {
		t.Errorf("Expected status ok, got %v", resp["status"])
	}
}

func TestAPI_GetSettings(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest("GET", "/api/settings", nil)
	w := httptest.NewRecorder()

	srv.handleGetSettings(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}

	var resp SettingsResponse
	json.Unmarshal(w.Body.Bytes(), &resp)

	if resp.ImagesDir != srv.config.ImagesDir {
		t.Errorf("Expected imagesDir %s, got %s", srv.config.ImagesDir, resp.ImagesDir)
	}
	if resp.DatasetsDir != srv.config.DatasetsDir {
		t.Errorf("Expected datasetsDir %s, got %s", srv.config.DatasetsDir, resp.DatasetsDir)
	}
}

func TestAPI_GetSettings_TokenMasked(t *testing.T) {
	cfg := Config{
		ImagesDir: t.TempDir(),
		Token:     "hf_abcdefghijklmnop",
	}
	srv := New(cfg)

	req := httptest.NewRequest("GET", "/api/settings", nil)
	w := httptest.NewRecorder()

	srv.handleGetSettings(w, req)

	var resp SettingsResponse
	json.Unmarshal(w.Body.Bytes(), &resp)

	// Token should be masked, not exposed
	if resp.Token == "hf_abcdefghijklmnop" {
		t.Error("Token should be masked, not exposed in full")
	}
	if resp.Token != "********mnop" {
		t.Errorf("Expected masked token ********mnop, got %s", resp.Token)
	}
}

func TestAPI_UpdateSettings(t *testing.T) {
	srv := newTestServer(t)

	body := `{"maxActive": 8, "retries": 2}`
	req := httptest.NewRequest("POST", "/api/settings", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	srv.handleUpdateSettings(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}

	if srv.config.MaxActive != 8 {
		t.Errorf("Expected maxActive 8, got %d", srv.config.MaxActive)
	}
	if srv.config.Retries != 2 {
		t.Errorf("Expected retries 2, got %d", srv.config.Retries)
	}
}

func TestAPI_UpdateSettings_CantChangeOutputDir(t *testing.T) {
	srv := newTestServer(t)
	originalImages := srv.config.ImagesDir

	// Try to inject a different output path (should be ignored)
	body := `{"imagesDir": "/etc/passwd", "datasetsDir": "/tmp/evil"}`
	req := httptest.NewRequest("POST", "/api/settings", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	srv.handleUpdateSettings(w, req)

	// Paths should NOT have changed
	if srv.config.ImagesDir != originalImages {
		t.Errorf("ImagesDir should not be changeable via API! Got %s", srv.config.ImagesDir)
	}
}

func TestAPI_StartFetch_Validates(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name     string
		body     string
		wantCode int
	}{
		{
			name:     "missing urls",
			body:     `{}`,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "empty urls",
			body:     `{"urls": []}`,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "valid",
			body:     `{"urls": ["http://127.0.0.1:1/a.zip"]}`,
			wantCode: http.StatusAccepted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/api/fetch", bytes.NewBufferString(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()

			srv.handleStartFetch(w, req)

			if w.Code != tt.wantCode {
				t.Errorf("Expected %d, got %d. Body: %s", tt.wantCode, w.Code, w.Body.String())
			}
		})
	}
}

func TestAPI_StartFetch_OutputIgnored(t *testing.T) {
	srv := newTestServer(t)

	// Try to specify a custom output path
	body := `{"urls": ["http://127.0.0.1:1/b.zip"], "outputDir": "/etc/evil"}`
	req := httptest.NewRequest("POST", "/api/fetch", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	srv.handleStartFetch(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d", w.Code)
	}

	var resp Job
	json.Unmarshal(w.Body.Bytes(), &resp)

	// Output should be server-controlled, not from request
	if resp.OutputDir == "/etc/evil" {
		t.Error("Output path from request should be ignored!")
	}
	if resp.OutputDir != srv.config.ImagesDir {
		t.Errorf("Expected server-controlled output, got %s", resp.OutputDir)
	}
}

func TestAPI_StartDataset_Validates(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name     string
		body     string
		wantCode int
	}{
		{
			name:     "missing name",
			body:     `{}`,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "invalid name",
			body:     `{"name": "a/b/c"}`,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "invalid split",
			body:     `{"name": "owner/set", "split": "train[x:y]"}`,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "valid",
			body:     `{"name": "owner/set", "split": "train[:160]"}`,
			wantCode: http.StatusAccepted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/api/datasets", bytes.NewBufferString(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()

			srv.handleStartDataset(w, req)

			if w.Code != tt.wantCode {
				t.Errorf("Expected %d, got %d. Body: %s", tt.wantCode, w.Code, w.Body.String())
			}
		})
	}
}

func TestAPI_StartDataset_UsesDatasetsDir(t *testing.T) {
	srv := newTestServer(t)

	body := `{"name": "owner/set"}`
	req := httptest.NewRequest("POST", "/api/datasets", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	srv.handleStartDataset(w, req)

	var resp Job
	json.Unmarshal(w.Body.Bytes(), &resp)

	if resp.OutputDir != srv.config.DatasetsDir {
		t.Errorf("Dataset should use datasets dir, got %s", resp.OutputDir)
	}
}

func TestAPI_StartFetch_DuplicateReturnsExisting(t *testing.T) {
	srv := newTestServer(t)

	body := `{"urls": ["http://127.0.0.1:1/dup.zip"]}`

	// First request
	req1 := httptest.NewRequest("POST", "/api/fetch", bytes.NewBufferString(body))
	req1.Header.Set("Content-Type", "application/json")
	w1 := httptest.NewRecorder()
	srv.handleStartFetch(w1, req1)

	if w1.Code != http.StatusAccepted {
		t.Fatalf("First request should return 202, got %d", w1.Code)
	}

	var job1 Job
	json.Unmarshal(w1.Body.Bytes(), &job1)

	// Second request (duplicate)
	req2 := httptest.NewRequest("POST", "/api/fetch", bytes.NewBufferString(body))
	req2.Header.Set("Content-Type", "application/json")
	w2 := httptest.NewRecorder()
	srv.handleStartFetch(w2, req2)

	if w2.Code != http.StatusOK {
		t.Fatalf("Duplicate request should return 200, got %d", w2.Code)
	}

	var resp map[string]any
	json.Unmarshal(w2.Body.Bytes(), &resp)

	if resp["message"] != "Fetch already in progress" {
		t.Errorf("Expected duplicate message, got %v", resp["message"])
	}

	jobMap := resp["job"].(map[string]any)
	if jobMap["id"] != job1.ID {
		t.Error("Duplicate should return same job ID")
	}
}

func TestAPI_ListJobs(t *testing.T) {
	srv := newTestServer(t)

	// Create a job first
	body := `{"name": "owner/listed"}`
	req := httptest.NewRequest("POST", "/api/datasets", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.handleStartDataset(w, req)

	// List jobs
	listReq := httptest.NewRequest("GET", "/api/jobs", nil)
	listW := httptest.NewRecorder()
	srv.handleListJobs(listW, listReq)

	if listW.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", listW.Code)
	}

	var resp map[string]any
	json.Unmarshal(listW.Body.Bytes(), &resp)

	count := int(resp["count"].(float64))
	if count < 1 {
		t.Error("Expected at least 1 job")
	}
}

func TestAPI_GetJob_ViaRouter(t *testing.T) {
	srv := newTestServer(t)
	handler := srv.Handler()

	body := `{"name": "owner/routed"}`
	req := httptest.NewRequest("POST", "/api/datasets", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	var job Job
	json.Unmarshal(w.Body.Bytes(), &job)
	if job.ID == "" {
		t.Fatalf("job creation failed: %s", w.Body.String())
	}

	t.Run("found", func(t *testing.T) {
		getReq := httptest.NewRequest("GET", "/api/jobs/"+job.ID, nil)
		getW := httptest.NewRecorder()
		handler.ServeHTTP(getW, getReq)

		if getW.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", getW.Code)
		}
		var got Job
		json.Unmarshal(getW.Body.Bytes(), &got)
		if got.ID != job.ID {
			t.Errorf("Expected job %s, got %s", job.ID, got.ID)
		}
	})

	t.Run("missing", func(t *testing.T) {
		getReq := httptest.NewRequest("GET", "/api/jobs/nonexistent", nil)
		getW := httptest.NewRecorder()
		handler.ServeHTTP(getW, getReq)

		if getW.Code != http.StatusNotFound {
			t.Errorf("Expected 404, got %d", getW.Code)
		}
	})
}

func TestAPI_CancelAndDeleteJob_ViaRouter(t *testing.T) {
	srv := newTestServer(t)
	handler := srv.Handler()

	startJob := func(t *testing.T, url string) Job {
		t.Helper()
		body := `{"urls": ["` + url + `"]}`
		req := httptest.NewRequest("POST", "/api/fetch", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		var job Job
		json.Unmarshal(w.Body.Bytes(), &job)
		if job.ID == "" {
			t.Fatalf("job creation failed: %s", w.Body.String())
		}
		return job
	}

	t.Run("cancel keeps job listed", func(t *testing.T) {
		job := startJob(t, "http://127.0.0.1:1/cancel-me.zip")

		req := httptest.NewRequest("POST", "/api/jobs/"+job.ID+"/cancel", nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
		}

		got, ok := srv.jobs.GetJob(job.ID)
		if !ok {
			t.Fatal("Cancelled job should still be listed")
		}
		if got.Status != JobStatusCancelled {
			t.Errorf("Expected cancelled status, got %s", got.Status)
		}
	})

	t.Run("delete removes job", func(t *testing.T) {
		job := startJob(t, "http://127.0.0.1:1/delete-me.zip")

		req := httptest.NewRequest("DELETE", "/api/jobs/"+job.ID, nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
		}
		if _, ok := srv.jobs.GetJob(job.ID); ok {
			t.Error("Deleted job should be gone")
		}
	})

	t.Run("delete missing job", func(t *testing.T) {
		req := httptest.NewRequest("DELETE", "/api/jobs/nonexistent", nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		if w.Code != http.StatusNotFound {
			t.Errorf("Expected 404, got %d", w.Code)
		}
	})
}
