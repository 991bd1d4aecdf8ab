// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package dsget

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
)

func TestFetch_DownloadsIntoFreshDir(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("payload for " + r.URL.Path))
	}))
	defer srv.Close()

	dir := filepath.Join(t.TempDir(), "task_images")
	job := FetchJob{
		URLs: []string{srv.URL + "/a.jpg", srv.URL + "/b.jpg", srv.URL + "/c.jpg"},
		Dir:  dir,
	}

	var mu sync.Mutex
	var done []string
	progress := func(e ProgressEvent) {
		if e.Event == "file_done" {
			mu.Lock()
			done = append(done, e.Path)
			mu.Unlock()
		}
	}

	if err := Fetch(context.Background(), job, Settings{}, progress); err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	// Directory exists afterward and holds one file per URL.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("cache dir missing after fetch: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 files, got %d", len(entries))
	}
	if len(done) != 3 {
		t.Errorf("expected 3 file_done events, got %d", len(done))
	}

	b, err := os.ReadFile(filepath.Join(dir, "a.jpg"))
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "payload for /a.jpg" {
		t.Errorf("unexpected content: %q", b)
	}
}

func TestFetch_CollidingBasenames(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("payload for " + r.URL.Path))
	}))
	defer srv.Close()

	// Distinct URLs, same last path segment. Each must land in its own file.
	dir := filepath.Join(t.TempDir(), "images")
	job := FetchJob{
		URLs: []string{srv.URL + "/batch-a/img.jpg", srv.URL + "/batch-b/img.jpg"},
		Dir:  dir,
	}

	if err := Fetch(context.Background(), job, Settings{}, nil); err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 files for 2 distinct URLs, got %d", len(entries))
	}

	contents := map[string]bool{}
	for _, e := range entries {
		b, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			t.Fatal(err)
		}
		contents[string(b)] = true
	}
	if !contents["payload for /batch-a/img.jpg"] || !contents["payload for /batch-b/img.jpg"] {
		t.Errorf("missing payloads, got %v", contents)
	}
}

func TestFetch_DuplicateURLsCollapse(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write([]byte("x"))
	}))
	defer srv.Close()

	dir := filepath.Join(t.TempDir(), "images")
	job := FetchJob{
		URLs: []string{srv.URL + "/a.jpg", srv.URL + "/a.jpg"},
		Dir:  dir,
	}

	if err := Fetch(context.Background(), job, Settings{}, nil); err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if n := atomic.LoadInt32(&hits); n != 1 {
		t.Errorf("expected 1 request for a repeated URL, got %d", n)
	}
}

func TestFetch_SkipsWhenDirExists(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write([]byte("x"))
	}))
	defer srv.Close()

	dir := t.TempDir() // already exists
	job := FetchJob{URLs: []string{srv.URL + "/a.jpg"}, Dir: dir}

	var last ProgressEvent
	err := Fetch(context.Background(), job, Settings{}, func(e ProgressEvent) { last = e })
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	if n := atomic.LoadInt32(&hits); n != 0 {
		t.Errorf("expected no network traffic for a present cache dir, got %d requests", n)
	}
	if last.Event != "done" || last.Message != "skip (cache directory present)" {
		t.Errorf("unexpected final event: %+v", last)
	}
}

func TestFetch_ForceRechecksFiles(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write([]byte("fresh"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	// One file already present, one missing.
	if err := os.WriteFile(filepath.Join(dir, "a.jpg"), []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	job := FetchJob{
		URLs:  []string{srv.URL + "/a.jpg", srv.URL + "/b.jpg"},
		Dir:   dir,
		Force: true,
	}

	var skips, downloads int
	progress := func(e ProgressEvent) {
		if e.Event == "file_done" {
			if e.Message == "" {
				downloads++
			} else {
				skips++
			}
		}
	}

	if err := Fetch(context.Background(), job, Settings{}, progress); err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if skips != 1 || downloads != 1 {
		t.Errorf("expected 1 skip and 1 download, got %d/%d", skips, downloads)
	}
	if n := atomic.LoadInt32(&hits); n != 1 {
		t.Errorf("expected exactly 1 request, got %d", n)
	}
}

func TestFetch_RetriesOnServerError(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	dir := filepath.Join(t.TempDir(), "images")
	job := FetchJob{URLs: []string{srv.URL + "/a.bin"}, Dir: dir}
	cfg := Settings{Retries: 4, BackoffInitial: "1ms", BackoffMax: "5ms"}

	var retries int
	progress := func(e ProgressEvent) {
		if e.Event == "retry" {
			retries++
		}
	}

	if err := Fetch(context.Background(), job, cfg, progress); err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if retries != 2 {
		t.Errorf("expected 2 retry events, got %d", retries)
	}

	b, err := os.ReadFile(filepath.Join(dir, "a.bin"))
	if err != nil || string(b) != "ok" {
		t.Errorf("file not downloaded after retries: %q, %v", b, err)
	}
}

func TestFetch_ErrorPropagates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	dir := filepath.Join(t.TempDir(), "images")
	job := FetchJob{URLs: []string{srv.URL + "/gone.jpg"}, Dir: dir}
	cfg := Settings{Retries: 1, BackoffInitial: "1ms", BackoffMax: "2ms"}

	err := Fetch(context.Background(), job, cfg, nil)
	if err == nil {
		t.Fatal("expected error for 404 response")
	}

	var de *DownloadError
	if !errors.As(err, &de) {
		t.Fatalf("expected DownloadError, got %T: %v", err, err)
	}
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound in chain, got %v", err)
	}

	// No completed file should remain.
	if _, err := os.Stat(filepath.Join(dir, "gone.jpg")); err == nil {
		t.Error("failed download left a completed file behind")
	}
}

func TestFetch_Validation(t *testing.T) {
	if err := Fetch(context.Background(), FetchJob{}, Settings{}, nil); !errors.Is(err, ErrMissingDir) {
		t.Errorf("expected ErrMissingDir, got %v", err)
	}

	job := FetchJob{Dir: filepath.Join(t.TempDir(), "x"), URLs: []string{" "}}
	if err := Fetch(context.Background(), job, Settings{}, nil); err == nil {
		t.Error("expected error for blank URL")
	}
}

func TestFetch_CanceledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("x"))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	dir := filepath.Join(t.TempDir(), "images")
	job := FetchJob{URLs: []string{srv.URL + "/a"}, Dir: dir}

	if err := Fetch(ctx, job, Settings{}, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
