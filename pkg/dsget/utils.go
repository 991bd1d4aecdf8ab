// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package dsget

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// IsValidDatasetName checks a dataset id: "name" or "owner/name".
func IsValidDatasetName(name string) bool {
	if name == "" {
		return false
	}
	parts := strings.Split(name, "/")
	switch len(parts) {
	case 1:
		return parts[0] != ""
	case 2:
		return parts[0] != "" && parts[1] != ""
	default:
		return false
	}
}

func validateFetch(job FetchJob) error {
	if job.Dir == "" {
		return ErrMissingDir
	}
	for _, u := range job.URLs {
		if strings.TrimSpace(u) == "" {
			return fmt.Errorf("empty URL in fetch list")
		}
	}
	return nil
}

func validateDataset(job DatasetJob) error {
	if job.Name == "" {
		return ErrMissingDataset
	}
	if !IsValidDatasetName(job.Name) {
		return fmt.Errorf("%w: %q (expected name or owner/name)", ErrInvalidDataset, job.Name)
	}
	return nil
}

// backoff implements exponential backoff with jitter.
type backoff struct {
	next   time.Duration
	max    time.Duration
	mult   float64
	jitter time.Duration
}

// newRetry creates a backoff instance from settings.
func newRetry(cfg Settings) *backoff {
	init := 400 * time.Millisecond
	max := 10 * time.Second
	if d, err := time.ParseDuration(defaultString(cfg.BackoffInitial, "400ms")); err == nil {
		init = d
	}
	if d, err := time.ParseDuration(defaultString(cfg.BackoffMax, "10s")); err == nil {
		max = d
	}
	return &backoff{next: init, max: max, mult: 1.6, jitter: 120 * time.Millisecond}
}

// Next returns the next backoff duration.
func (b *backoff) Next() time.Duration {
	d := b.next + time.Duration(int64(b.jitter)*int64(time.Now().UnixNano()%3)/2)
	b.next = time.Duration(float64(b.next) * b.mult)
	if b.next > b.max {
		b.next = b.max
	}
	return d
}

// sleepCtx waits for d or returns false if ctx is canceled first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// defaultString returns s if non-empty, otherwise def.
func defaultString(s string, def string) string {
	if s == "" {
		return def
	}
	return s
}
