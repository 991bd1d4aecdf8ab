// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package dsget

import (
	"errors"
	"fmt"
)

// Common errors returned by the library.
var (
	// ErrMissingDir is returned when a fetch job has no destination directory.
	ErrMissingDir = errors.New("missing destination directory")

	// ErrMissingDataset is returned when no dataset name is specified.
	ErrMissingDataset = errors.New("missing dataset name")

	// ErrInvalidDataset is returned for dataset ids that are neither "name"
	// nor "owner/name".
	ErrInvalidDataset = errors.New("invalid dataset id")

	// ErrInvalidSplit is returned for malformed split expressions.
	ErrInvalidSplit = errors.New("invalid split expression")

	// ErrUnauthorized is returned when the hub requires a token.
	ErrUnauthorized = errors.New("unauthorized: dataset requires authentication")

	// ErrNotFound is returned when the dataset, config, or revision does not exist.
	ErrNotFound = errors.New("dataset or revision not found")

	// ErrRateLimited is returned when the hub rate limit is exceeded.
	ErrRateLimited = errors.New("rate limited: too many requests")
)

// DownloadError wraps an error with file context.
type DownloadError struct {
	Path string
	Err  error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download %s: %v", e.Path, e.Err)
}

func (e *DownloadError) Unwrap() error {
	return e.Err
}

// VerificationError is returned when a post-download check fails.
type VerificationError struct {
	Path     string
	Method   string // "sha256" or "size"
	Expected string
	Actual   string
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("verification failed for %s: %s mismatch (expected %s, got %s)",
		e.Path, e.Method, e.Expected, e.Actual)
}

// APIError represents a non-2xx response from the hub.
type APIError struct {
	StatusCode int
	Status     string
	Message    string
	URL        string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("hub API error %d (%s): %s", e.StatusCode, e.Status, e.Message)
	}
	return fmt.Sprintf("hub API error %d: %s", e.StatusCode, e.Status)
}

// IsRetryable reports whether the request might succeed on retry.
func (e *APIError) IsRetryable() bool {
	switch e.StatusCode {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// Is maps hub status codes onto the sentinel errors.
func (e *APIError) Is(target error) bool {
	switch e.StatusCode {
	case 401, 403:
		return errors.Is(target, ErrUnauthorized)
	case 404:
		return errors.Is(target, ErrNotFound)
	case 429:
		return errors.Is(target, ErrRateLimited)
	default:
		return false
	}
}
