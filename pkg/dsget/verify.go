// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package dsget

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
)

// verifySHA256 computes the SHA256 of a file and compares it to expected.
func verifySHA256(path string, expected string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return err
	}

	sum := hex.EncodeToString(h.Sum(nil))
	if !strings.EqualFold(sum, expected) {
		return &VerificationError{Path: path, Method: "sha256", Expected: expected, Actual: sum}
	}
	return nil
}

// verifyDownload runs the configured post-download check for a file.
func verifyDownload(it planItem, dst string, cfg Settings) error {
	switch cfg.Verify {
	case "", "size":
		if it.Size > 0 {
			fi, err := os.Stat(dst)
			if err != nil {
				return err
			}
			if fi.Size() != it.Size {
				return &VerificationError{
					Path:     it.RelativePath,
					Method:   "size",
					Expected: fmt.Sprint(it.Size),
					Actual:   fmt.Sprint(fi.Size()),
				}
			}
		}
	case "sha256":
		if it.SHA256 != "" {
			if err := verifySHA256(dst, it.SHA256); err != nil {
				return err
			}
		}
	}
	return nil
}

// shouldSkipLocal checks whether a file on disk already satisfies a plan
// item. Size wins when known; a known sha256 settles ties. With no metadata
// at all, any non-empty file counts.
func shouldSkipLocal(it planItem, dst string) (bool, string) {
	fi, err := os.Stat(dst)
	if err != nil {
		return false, ""
	}

	if it.Size > 0 && fi.Size() != it.Size {
		return false, ""
	}

	if it.SHA256 != "" {
		if err := verifySHA256(dst, it.SHA256); err == nil {
			return true, "sha256 match"
		}
		return false, ""
	}

	if it.Size > 0 && fi.Size() == it.Size {
		return true, "size match"
	}
	if it.Size == 0 && fi.Size() > 0 {
		return true, "exists"
	}
	return false, ""
}
