// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dsget/dsget/pkg/dsget"
)

// JobKind distinguishes URL-list fetches from hub dataset loads.
type JobKind string

const (
	JobKindFetch   JobKind = "fetch"
	JobKindDataset JobKind = "dataset"
)

// JobStatus represents the state of a job.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Job represents a fetch or dataset job.
type Job struct {
	ID        string            `json:"id"`
	Kind      JobKind           `json:"kind"`
	URLs      []string          `json:"urls,omitempty"`
	Dataset   string            `json:"dataset,omitempty"`
	Config    string            `json:"config,omitempty"`
	Split     string            `json:"split,omitempty"`
	Revision  string            `json:"revision,omitempty"`
	Force     bool              `json:"force,omitempty"`
	OutputDir string            `json:"outputDir"`
	Status    JobStatus         `json:"status"`
	Progress  JobProgress       `json:"progress"`
	Error     string            `json:"error,omitempty"`
	Rows      int               `json:"rows,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
	StartedAt *time.Time        `json:"startedAt,omitempty"`
	EndedAt   *time.Time        `json:"endedAt,omitempty"`
	Files     []JobFileProgress `json:"files,omitempty"`

	cancel context.CancelFunc
}

// key identifies a job for dedup: the same work queued twice runs once.
func (j *Job) key() string {
	if j.Kind == JobKindFetch {
		return "fetch|" + j.OutputDir + "|" + strings.Join(j.URLs, ",")
	}
	return "dataset|" + j.Dataset + "|" + j.Config + "|" + j.Split + "|" + j.Revision
}

func (j *Job) active() bool {
	return j.Status == JobStatusQueued || j.Status == JobStatusRunning
}

// clone snapshots a job for callers outside the manager lock. Everything the
// manager hands out or broadcasts is a clone, so encoders never race with a
// running job's progress callback.
func (j *Job) clone() *Job {
	c := *j
	c.cancel = nil
	c.URLs = append([]string(nil), j.URLs...)
	c.Files = append([]JobFileProgress(nil), j.Files...)
	return &c
}

// JobProgress holds aggregate progress info.
type JobProgress struct {
	TotalFiles      int   `json:"totalFiles"`
	CompletedFiles  int   `json:"completedFiles"`
	TotalBytes      int64 `json:"totalBytes"`
	DownloadedBytes int64 `json:"downloadedBytes"`
}

// JobFileProgress holds per-file progress.
type JobFileProgress struct {
	Path       string `json:"path"`
	TotalBytes int64  `json:"totalBytes"`
	Downloaded int64  `json:"downloaded"`
	Status     string `json:"status"` // pending, active, complete, error
}

// JobManager manages jobs.
type JobManager struct {
	mu         sync.RWMutex
	jobs       map[string]*Job
	config     Config
	listeners  []chan *Job
	listenerMu sync.RWMutex
	wsHub      *WSHub
}

// NewJobManager creates a new job manager.
func NewJobManager(cfg Config, wsHub *WSHub) *JobManager {
	return &JobManager{
		jobs:   make(map[string]*Job),
		config: cfg,
		wsHub:  wsHub,
	}
}

// CreateFetchJob queues a URL-list fetch. If an identical fetch is already
// queued or running the existing job is returned instead.
func (m *JobManager) CreateFetchJob(req FetchRequest) (*Job, bool) {
	job := &Job{
		ID:        uuid.NewString(),
		Kind:      JobKindFetch,
		URLs:      req.URLs,
		Force:     req.Force,
		OutputDir: m.config.ImagesDir, // server-controlled, not from request
		Status:    JobStatusQueued,
		CreatedAt: time.Now(),
	}
	return m.enqueue(job)
}

// CreateDatasetJob queues a dataset load. If the same dataset+split is
// already queued or running the existing job is returned instead.
func (m *JobManager) CreateDatasetJob(req DatasetRequest) (*Job, bool) {
	job := &Job{
		ID:        uuid.NewString(),
		Kind:      JobKindDataset,
		Dataset:   req.Name,
		Config:    defaultStr(req.Config, "default"),
		Split:     defaultStr(req.Split, "train"),
		Revision:  defaultStr(req.Revision, "main"),
		OutputDir: m.config.DatasetsDir, // server-controlled, not from request
		Status:    JobStatusQueued,
		CreatedAt: time.Now(),
	}
	return m.enqueue(job)
}

func (m *JobManager) enqueue(job *Job) (*Job, bool) {
	m.mu.Lock()
	for _, existing := range m.jobs {
		if existing.active() && existing.key() == job.key() {
			snap := existing.clone()
			m.mu.Unlock()
			return snap, true
		}
	}
	m.jobs[job.ID] = job
	snap := job.clone()
	m.mu.Unlock()

	go m.runJob(job)
	return snap, false
}

// GetJob retrieves a snapshot of a job by ID.
func (m *JobManager) GetJob(id string) (*Job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, false
	}
	return job.clone(), true
}

// ListJobs returns snapshots of all jobs.
func (m *JobManager) ListJobs() []*Job {
	m.mu.RLock()
	defer m.mu.RUnlock()

	jobs := make([]*Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		jobs = append(jobs, job.clone())
	}
	return jobs
}

// CancelJob cancels a running or queued job.
func (m *JobManager) CancelJob(id string) bool {
	m.mu.Lock()

	job, ok := m.jobs[id]
	if !ok || !job.active() {
		m.mu.Unlock()
		return false
	}

	if job.cancel != nil {
		job.cancel()
	}
	job.Status = JobStatusCancelled
	now := time.Now()
	job.EndedAt = &now
	snap := job.clone()
	m.mu.Unlock()

	m.notifyListeners(snap)
	return true
}

// DeleteJob removes a job from the list.
func (m *JobManager) DeleteJob(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return false
	}

	if job.cancel != nil && job.active() {
		job.cancel()
	}

	delete(m.jobs, id)
	return true
}

// Subscribe adds a listener for job updates.
func (m *JobManager) Subscribe() chan *Job {
	ch := make(chan *Job, 100)
	m.listenerMu.Lock()
	m.listeners = append(m.listeners, ch)
	m.listenerMu.Unlock()
	return ch
}

// Unsubscribe removes a listener.
func (m *JobManager) Unsubscribe(ch chan *Job) {
	m.listenerMu.Lock()
	defer m.listenerMu.Unlock()

	for i, listener := range m.listeners {
		if listener == ch {
			m.listeners = append(m.listeners[:i], m.listeners[i+1:]...)
			close(ch)
			return
		}
	}
}

func (m *JobManager) notifyListeners(job *Job) {
	m.listenerMu.RLock()
	for _, ch := range m.listeners {
		select {
		case ch <- job:
		default:
			// Listener is slow, skip
		}
	}
	m.listenerMu.RUnlock()

	if m.wsHub != nil {
		m.wsHub.BroadcastJob(job)
	}
}

// settings builds the engine settings for a job.
func (m *JobManager) settings(job *Job) dsget.Settings {
	return dsget.Settings{
		OutputDir:          job.OutputDir,
		MaxActiveDownloads: m.config.MaxActive,
		Token:              m.config.Token,
		Verify:             defaultStr(m.config.Verify, "size"),
		Retries:            m.config.Retries,
		BackoffInitial:     "400ms",
		BackoffMax:         "10s",
		Endpoint:           m.config.Endpoint,
	}
}

// runJob executes the job.
func (m *JobManager) runJob(job *Job) {
	ctx, cancel := context.WithCancel(context.Background())

	m.mu.Lock()
	job.cancel = cancel
	job.Status = JobStatusRunning
	now := time.Now()
	job.StartedAt = &now
	snap := job.clone()
	m.mu.Unlock()
	m.notifyListeners(snap)

	// Progress callback - must not hold the lock when calling notifyListeners
	progressFunc := func(evt dsget.ProgressEvent) {
		m.mu.Lock()

		switch evt.Event {
		case "plan_item":
			job.Progress.TotalFiles++
			job.Progress.TotalBytes += evt.Total
			job.Files = append(job.Files, JobFileProgress{
				Path:       evt.Path,
				TotalBytes: evt.Total,
				Status:     "pending",
			})

		case "file_start":
			for i := range job.Files {
				if job.Files[i].Path == evt.Path {
					job.Files[i].Status = "active"
					break
				}
			}

		case "file_progress":
			for i := range job.Files {
				if job.Files[i].Path == evt.Path {
					job.Files[i].Downloaded = evt.Downloaded
					break
				}
			}
			var total int64
			for _, f := range job.Files {
				total += f.Downloaded
			}
			job.Progress.DownloadedBytes = total

		case "file_done":
			for i := range job.Files {
				if job.Files[i].Path == evt.Path {
					job.Files[i].Status = "complete"
					job.Files[i].Downloaded = job.Files[i].TotalBytes
					break
				}
			}
			job.Progress.CompletedFiles++
			var total int64
			for _, f := range job.Files {
				total += f.Downloaded
			}
			job.Progress.DownloadedBytes = total
		}

		snap := job.clone()
		m.mu.Unlock()
		m.notifyListeners(snap)
	}

	var err error
	switch job.Kind {
	case JobKindFetch:
		err = dsget.Fetch(ctx, dsget.FetchJob{
			URLs:  job.URLs,
			Dir:   job.OutputDir,
			Force: job.Force,
		}, m.settings(job), progressFunc)

	case JobKindDataset:
		var ds *dsget.Dataset
		ds, err = dsget.LoadDataset(ctx, dsget.DatasetJob{
			Name:     job.Dataset,
			Config:   job.Config,
			Split:    job.Split,
			Revision: job.Revision,
		}, m.settings(job), progressFunc)
		if err == nil {
			m.mu.Lock()
			job.Rows = ds.Rows
			m.mu.Unlock()
		}
	}

	m.mu.Lock()
	endTime := time.Now()
	if job.EndedAt == nil {
		job.EndedAt = &endTime
	}
	if job.Status != JobStatusCancelled {
		if ctx.Err() != nil {
			job.Status = JobStatusCancelled
		} else if err != nil {
			job.Status = JobStatusFailed
			job.Error = err.Error()
		} else {
			job.Status = JobStatusCompleted
		}
	}
	snap = job.clone()
	m.mu.Unlock()

	m.notifyListeners(snap)
}

func defaultStr(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
