// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package dsget

import "time"

// FetchJob describes a URL-list fetch into a local image cache directory.
//
// The cache policy is intentionally coarse: when Dir already exists the whole
// job is assumed complete from a prior run and nothing is downloaded. Set
// Force to bypass the check and re-examine every file individually.
//
// Example:
//
//	job := dsget.FetchJob{
//	    URLs: []string{"https://example.org/images/batch-000.zip"},
//	    Dir:  "/tmp/task_images",
//	}
type FetchJob struct {
	// URLs is the list of files to download. Order is preserved in the
	// emitted plan_item events.
	URLs []string

	// Dir is the destination cache directory. This field is required.
	Dir string

	// Force skips the directory-existence short circuit and checks each
	// file against the filesystem instead.
	Force bool
}

// DatasetJob describes loading a named dataset split from the hub.
//
// Name accepts either a canonical dataset name ("scene_parse_150") or an
// "owner/name" id. Split is a split expression; see ParseSplit.
//
// Example:
//
//	job := dsget.DatasetJob{
//	    Name:  "scene_parse_150",
//	    Split: "train[:160]",
//	}
type DatasetJob struct {
	// Name is the dataset id: "name" or "owner/name". Required.
	Name string

	// Config is the dataset configuration. Defaults to "default".
	Config string

	// Split is the split expression: "train", "train[:160]", "validation",
	// and so on. Defaults to "train".
	Split string

	// Revision is the branch, tag, or commit to read. Defaults to "main".
	Revision string
}

// Settings configures download behavior for both job kinds.
//
// All fields have defaults; the zero value works for public datasets:
//
//	cfg := dsget.Settings{OutputDir: "./Data"}
type Settings struct {
	// OutputDir is the base directory for dataset downloads. FetchJob.Dir
	// is independent of this. If empty, defaults to "Data".
	OutputDir string

	// MaxActiveDownloads limits how many files download simultaneously.
	// If <= 0, defaults to 3.
	MaxActiveDownloads int

	// Verify controls post-download checks for files with known metadata:
	//   - "none": trust the transfer
	//   - "size": compare file size when the hub reported one (default)
	//   - "sha256": full hash comparison when the hub reported a digest
	Verify string

	// Retries is the maximum number of retry attempts per HTTP request.
	// If <= 0, defaults to 4.
	Retries int

	// BackoffInitial is the delay before the first retry ("400ms" form).
	// If empty, defaults to "400ms".
	BackoffInitial string

	// BackoffMax caps the exponential retry delay. Defaults to "10s".
	BackoffMax string

	// Token is a hub access token for private or gated datasets.
	// Can also be provided via the HF_TOKEN environment variable.
	Token string

	// Endpoint overrides the hub URL, for mirrors. Defaults to
	// https://huggingface.co.
	Endpoint string

	// RowsEndpoint overrides the rows API URL used for bounded split
	// slices. Defaults to https://datasets-server.huggingface.co.
	RowsEndpoint string
}

// DefaultSettings returns Settings with the defaults filled in.
func DefaultSettings() Settings {
	return Settings{
		OutputDir:          "Data",
		MaxActiveDownloads: 3,
		Verify:             "size",
		Retries:            4,
		BackoffInitial:     "400ms",
		BackoffMax:         "10s",
	}
}

// Dataset is the handle returned by LoadDataset: where the split landed on
// disk and what it contains.
type Dataset struct {
	// Name is the dataset id as requested.
	Name string `json:"name"`

	// Split is the parsed split expression.
	Split Split `json:"split"`

	// Dir is the local directory holding the downloaded files.
	Dir string `json:"dir"`

	// Files are the relative paths of the downloaded files, in download
	// order.
	Files []string `json:"files"`

	// Rows is the number of materialized examples when the loader went
	// through the rows API, or -1 when only data files were downloaded
	// and the row count is not known locally.
	Rows int `json:"rows"`
}

// ProgressEvent is a progress update emitted during fetch or load.
//
// Event values:
//   - "scan_start": hub resolution has begun
//   - "plan_item": a file was added to the download plan
//   - "file_start": a file download started
//   - "file_progress": periodic byte-count update
//   - "file_done": a file finished (Message carries "skip (reason)" if skipped)
//   - "retry": a retry attempt is being made
//   - "error": an error occurred
//   - "done": the job finished
type ProgressEvent struct {
	// Time is when the event occurred.
	Time time.Time `json:"time"`

	// Level is "debug", "info", "warn" or "error". Empty means "info".
	Level string `json:"level,omitempty"`

	// Event is the event type identifier.
	Event string `json:"event"`

	// Name is the dataset id or cache directory the job is about.
	Name string `json:"name,omitempty"`

	// Path is the file the event refers to, relative to the destination.
	Path string `json:"path,omitempty"`

	// Total is the expected size in bytes, when known.
	Total int64 `json:"total,omitempty"`

	// Downloaded is the cumulative bytes downloaded so far.
	Downloaded int64 `json:"downloaded,omitempty"`

	// Attempt is the 1-based retry attempt, set on "retry" events.
	Attempt int `json:"attempt,omitempty"`

	// Message carries additional context or error details.
	Message string `json:"message,omitempty"`
}

// ProgressFunc receives progress events. It may be called from multiple
// goroutines and must be safe for concurrent use.
type ProgressFunc func(ProgressEvent)
