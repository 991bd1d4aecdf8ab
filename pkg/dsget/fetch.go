// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package dsget

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"
)

// progressReader wraps an io.Reader and emits progress events during reads.
type progressReader struct {
	reader     io.Reader
	total      int64
	downloaded int64
	path       string
	emit       func(ProgressEvent)
	lastEmit   time.Time
	interval   time.Duration
}

func newProgressReader(r io.Reader, total int64, path string, emit func(ProgressEvent)) *progressReader {
	return &progressReader{
		reader:   r,
		total:    total,
		path:     path,
		emit:     emit,
		lastEmit: time.Now(),
		interval: 200 * time.Millisecond, // at most 5 emissions per second
	}
}

func (pr *progressReader) Read(p []byte) (n int, err error) {
	n, err = pr.reader.Read(p)
	if n > 0 {
		pr.downloaded += int64(n)
		if time.Since(pr.lastEmit) >= pr.interval || err == io.EOF {
			pr.emit(ProgressEvent{
				Event:      "file_progress",
				Path:       pr.path,
				Downloaded: pr.downloaded,
				Total:      pr.total,
			})
			pr.lastEmit = time.Now()
		}
	}
	return n, err
}

// Fetch downloads a list of URLs into a local cache directory.
//
// The cache test is a single directory-existence check: when job.Dir already
// exists (and job.Force is false) the whole job is treated as complete from a
// prior run and nothing is downloaded. Otherwise the directory is created and
// every URL is fetched, with progress events along the way.
//
// Cancellation: all loops, sleeps and requests are tied to ctx.
func Fetch(ctx context.Context, job FetchJob, cfg Settings, progress ProgressFunc) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := validateFetch(job); err != nil {
		return err
	}
	if cfg.MaxActiveDownloads <= 0 {
		cfg.MaxActiveDownloads = 3
	}

	emit := func(ev ProgressEvent) {
		if progress != nil {
			if ev.Time.IsZero() {
				ev.Time = time.Now()
			}
			if ev.Name == "" {
				ev.Name = job.Dir
			}
			progress(ev)
		}
	}

	// Prior run detected; assume its downloads are complete.
	if !job.Force && Cached(job.Dir) {
		emit(ProgressEvent{Event: "done", Message: "skip (cache directory present)"})
		return nil
	}

	if err := ensureDir(job.Dir); err != nil {
		return err
	}

	items := buildFetchPlan(job.URLs)

	httpc := buildHTTPClient()
	err := downloadAll(ctx, httpc, "", items, job.Dir, cfg, job.Force, emit)
	if err != nil {
		return err
	}
	return ctx.Err()
}

// buildFetchPlan maps each URL to a local name. Repeated URLs collapse to a
// single plan item; distinct URLs that share a basename fall back to a hashed
// name so they never write to the same path.
func buildFetchPlan(urls []string) []planItem {
	items := make([]planItem, 0, len(urls))
	seenURL := make(map[string]struct{}, len(urls))
	seenName := make(map[string]struct{}, len(urls))

	for _, u := range urls {
		if _, ok := seenURL[u]; ok {
			continue
		}
		seenURL[u] = struct{}{}

		name := LocalName(u)
		if _, taken := seenName[name]; taken {
			name = hashedLocalName(u)
		}
		seenName[name] = struct{}{}
		items = append(items, planItem{RelativePath: name, URL: u})
	}
	return items
}

// downloadAll runs the plan through a bounded pool of workers. Shared by URL
// fetches and dataset file downloads.
func downloadAll(ctx context.Context, httpc *http.Client, token string, items []planItem, base string, cfg Settings, recheck bool, emit func(ProgressEvent)) error {
	type slot struct{}
	lim := make(chan slot, cfg.MaxActiveDownloads)

	var wg sync.WaitGroup
	errCh := make(chan error, len(items))

	var skippedCount int64
	var downloadedCount int64

LOOP:
	for _, item := range items {
		select {
		case <-ctx.Done():
			break LOOP
		default:
		}

		it := item
		emit(ProgressEvent{Event: "plan_item", Path: it.RelativePath, Total: it.Size})

		select {
		case lim <- slot{}:
		case <-ctx.Done():
			break LOOP
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-lim }()

			dst := filepath.Join(base, filepath.FromSlash(it.RelativePath))
			if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
				select {
				case errCh <- err:
				default:
				}
				return
			}

			if recheck {
				if ok, reason := shouldSkipLocal(it, dst); ok {
					emit(ProgressEvent{Event: "file_done", Path: it.RelativePath, Message: "skip (" + reason + ")"})
					atomic.AddInt64(&skippedCount, 1)
					return
				}
			}

			emit(ProgressEvent{Event: "file_start", Path: it.RelativePath, Total: it.Size})

			if err := downloadSingle(ctx, httpc, token, it, dst, cfg, emit); err != nil {
				select {
				case errCh <- &DownloadError{Path: it.RelativePath, Err: err}:
				default:
				}
				return
			}

			if err := verifyDownload(it, dst, cfg); err != nil {
				select {
				case errCh <- err:
				default:
				}
				return
			}

			emit(ProgressEvent{Event: "file_done", Path: it.RelativePath})
			atomic.AddInt64(&downloadedCount, 1)
		}()
	}

	wg.Wait()
	close(errCh)

	var firstErr error
	for e := range errCh {
		if e != nil {
			firstErr = e
			break
		}
	}
	if firstErr != nil {
		emit(ProgressEvent{Level: "error", Event: "error", Message: firstErr.Error()})
		return firstErr
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	emit(ProgressEvent{
		Event:   "done",
		Message: fmt.Sprintf("fetch complete (downloaded %d, skipped %d)", downloadedCount, skippedCount),
	})
	return nil
}

// downloadSingle streams one URL to disk through a temp file, retrying with
// backoff on failure.
func downloadSingle(ctx context.Context, httpc *http.Client, token string, it planItem, dst string, cfg Settings, emit func(ProgressEvent)) error {
	retries := cfg.Retries
	if retries <= 0 {
		retries = 4
	}

	tmp := dst + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	defer out.Close()

	retry := newRetry(cfg)
	var lastErr error

	for attempt := 0; attempt <= retries; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		req, _ := http.NewRequestWithContext(ctx, "GET", it.URL, nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		req.Header.Set("User-Agent", "dsget/1")

		resp, err := httpc.Do(req)
		if err != nil {
			lastErr = err
		} else {
			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				apiErr := &APIError{StatusCode: resp.StatusCode, Status: resp.Status, URL: it.URL}
				resp.Body.Close()
				if !apiErr.IsRetryable() {
					return apiErr
				}
				lastErr = apiErr
			} else {
				if _, err := out.Seek(0, io.SeekStart); err != nil {
					resp.Body.Close()
					return err
				}
				if err := out.Truncate(0); err != nil {
					resp.Body.Close()
					return err
				}
				pr := newProgressReader(resp.Body, it.Size, it.RelativePath, emit)
				_, cerr := io.Copy(out, pr)
				resp.Body.Close()
				if cerr == nil {
					out.Close()
					return os.Rename(tmp, dst)
				}
				lastErr = cerr
			}
		}

		if attempt < retries {
			emit(ProgressEvent{Event: "retry", Path: it.RelativePath, Attempt: attempt + 1, Message: lastErr.Error()})
			if d := retry.Next(); !sleepCtx(ctx, d) {
				return ctx.Err()
			}
		}
	}
	return lastErr
}
