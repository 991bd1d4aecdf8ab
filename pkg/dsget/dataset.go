// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package dsget

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// LoadDataset loads a named dataset split from the hub into the local cache.
//
// Full or open-ended splits resolve the dataset's file tree and download the
// split's data files. Bounded absolute slices ("train[:160]") go through the
// rows API instead and materialize exactly the requested examples as a JSON
// lines file, which is much cheaper than pulling whole shards for a few
// examples.
//
// The returned Dataset describes what landed on disk.
func LoadDataset(ctx context.Context, job DatasetJob, cfg Settings, progress ProgressFunc) (*Dataset, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := validateDataset(job); err != nil {
		return nil, err
	}

	job.Config = defaultString(job.Config, "default")
	job.Revision = defaultString(job.Revision, "main")
	cfg.OutputDir = defaultString(cfg.OutputDir, "Data")
	if cfg.MaxActiveDownloads <= 0 {
		cfg.MaxActiveDownloads = 3
	}

	sp, err := ParseSplit(defaultString(job.Split, "train"))
	if err != nil {
		return nil, err
	}

	emit := func(ev ProgressEvent) {
		if progress != nil {
			if ev.Time.IsZero() {
				ev.Time = time.Now()
			}
			if ev.Name == "" {
				ev.Name = job.Name
			}
			progress(ev)
		}
	}

	dir := filepath.Join(cfg.OutputDir, filepath.FromSlash(job.Name), job.Config, splitDirName(sp))
	if err := ensureDir(dir); err != nil {
		return nil, err
	}

	client := newHubClient(cfg)
	emit(ProgressEvent{Event: "scan_start", Message: "resolving " + job.Name + "@" + job.Revision})

	if sp.Bounded() && !sp.Percent && sp.End >= 0 {
		return loadRows(ctx, client, job, sp, dir, emit)
	}

	items, err := client.planSplit(ctx, job, sp)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: no files matched split %q (config %q)", ErrNotFound, sp.Name, job.Config)
	}

	if err := downloadAll(ctx, client.httpc, client.token, items, dir, cfg, true, emit); err != nil {
		return nil, err
	}

	ds := &Dataset{Name: job.Name, Split: sp, Dir: dir, Rows: -1}
	for _, it := range items {
		ds.Files = append(ds.Files, it.RelativePath)
	}
	return ds, nil
}

// loadRows materializes a bounded slice through the rows API as JSON lines.
func loadRows(ctx context.Context, client *hubClient, job DatasetJob, sp Split, dir string, emit func(ProgressEvent)) (*Dataset, error) {
	name := splitDirName(sp) + ".jsonl"
	dst := filepath.Join(dir, name)
	want := sp.End - sp.Start

	emit(ProgressEvent{Event: "plan_item", Path: name})
	emit(ProgressEvent{Event: "file_start", Path: name})

	tmp := dst + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return nil, err
	}
	defer out.Close()

	written := 0
	var bytes int64
	for written < want {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		length := want - written
		if length > rowsPageSize {
			length = rowsPageSize
		}
		page, err := client.splitRows(ctx, job, sp, sp.Start+written, length)
		if err != nil {
			return nil, err
		}
		if len(page.Rows) == 0 {
			// Split exhausted before the requested bound.
			break
		}
		for _, row := range page.Rows {
			n, err := out.Write(append(row.Row, '\n'))
			if err != nil {
				return nil, err
			}
			bytes += int64(n)
			written++
			if written >= want {
				break
			}
		}
		emit(ProgressEvent{Event: "file_progress", Path: name, Downloaded: bytes})

		if page.NumRowsTotal > 0 && sp.Start+written >= page.NumRowsTotal {
			break
		}
	}

	if err := out.Close(); err != nil {
		return nil, err
	}
	if err := os.Rename(tmp, dst); err != nil {
		return nil, err
	}

	emit(ProgressEvent{Event: "file_done", Path: name})
	emit(ProgressEvent{Event: "done", Message: fmt.Sprintf("loaded %d examples", written)})

	return &Dataset{
		Name:  job.Name,
		Split: sp,
		Dir:   dir,
		Files: []string{name},
		Rows:  written,
	}, nil
}

// splitDirName flattens a split expression into a filesystem-safe name.
func splitDirName(sp Split) string {
	if !sp.Bounded() {
		return sp.Name
	}
	pct := ""
	if sp.Percent {
		pct = "pct"
	}
	end := "end"
	if sp.End >= 0 {
		end = fmt.Sprint(sp.End)
	}
	return fmt.Sprintf("%s_%d_%s%s", sp.Name, sp.Start, end, pct)
}
