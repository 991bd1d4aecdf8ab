// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

/*
Package dsget downloads image datasets for training runs: plain URL lists
into a local cache directory, and named dataset splits from the Hugging Face
Hub.

# URL-list fetch

Fetch applies a deliberately coarse cache policy: if the destination
directory already exists the job is assumed complete from a prior run and
nothing is downloaded. Otherwise the directory is created and every URL is
fetched.

	job := dsget.FetchJob{
	    URLs: urls,
	    Dir:  "/tmp/task_images",
	}
	err := dsget.Fetch(ctx, job, dsget.DefaultSettings(), func(e dsget.ProgressEvent) {
	    fmt.Printf("[%s] %s\n", e.Event, e.Path)
	})

# Loading dataset splits

LoadDataset resolves a dataset by name and downloads one split:

	ds, err := dsget.LoadDataset(ctx, dsget.DatasetJob{
	    Name:  "scene_parse_150",
	    Split: "train",
	}, dsget.DefaultSettings(), nil)

Split expressions follow slice syntax. A bounded absolute slice such as
"train[:160]" is served through the hub's rows API and written as a JSON
lines file, so a small sample never pulls whole data shards:

	ds, err := dsget.LoadDataset(ctx, dsget.DatasetJob{
	    Name:  "scene_parse_150",
	    Split: "train[:160]",
	}, cfg, nil)
	// ds.Rows == 160, ds.Files == []string{"train_0_160.jsonl"}

# Progress events

The ProgressFunc callback receives events throughout a job:

  - scan_start: hub resolution has begun
  - plan_item: a file was added to the download plan
  - file_start, file_progress, file_done: per-file lifecycle
  - retry: a retry attempt is being made
  - error: an error occurred
  - done: the job finished

# Retries and verification

Each HTTP request retries with exponential backoff and jitter (Settings.
Retries, BackoffInitial, BackoffMax). Files download through a ".part" temp
file and are renamed into place only on success. Post-download verification
is configurable via Settings.Verify: "none", "size" (default), or "sha256"
when the hub reported a digest.

# Authentication

For private or gated datasets set Settings.Token, or export HF_TOKEN when
using the CLI.
*/
package dsget
