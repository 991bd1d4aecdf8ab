// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package dsget

import (
	"fmt"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Cached reports whether the cache directory exists. This is the whole
// cache-hit test for fetch jobs: a present directory is taken as evidence of
// a completed prior run, with no inspection of its contents.
func Cached(dir string) bool {
	fi, err := os.Stat(dir)
	return err == nil && fi.IsDir()
}

// ensureDir creates the cache directory and any missing parents.
func ensureDir(dir string) error {
	return os.MkdirAll(dir, 0o755)
}

// LocalName derives the file name a URL is cached under.
//
// The last path segment is used when it looks like a file name. URLs with an
// empty or directory-like path get a stable name from the hash of the full
// URL. Two different URLs can still share a basename; planning resolves such
// collisions with hashedLocalName.
func LocalName(rawURL string) string {
	hashed := fmt.Sprintf("url-%016x", xxhash.Sum64String(rawURL))

	u, err := url.Parse(rawURL)
	if err != nil {
		return hashed
	}
	base := path.Base(u.Path)
	if base == "" || base == "." || base == "/" {
		return hashed
	}
	// Query-dependent URLs ("?id=7") need the hash to stay distinct.
	if u.RawQuery != "" {
		ext := path.Ext(base)
		return strings.TrimSuffix(base, ext) + "-" + hashed[4:12] + ext
	}
	return base
}

// hashedLocalName inserts a short hash of the full URL before the extension,
// giving a stable name that cannot collide with another URL's basename.
func hashedLocalName(rawURL string) string {
	base := LocalName(rawURL)
	hashed := fmt.Sprintf("%016x", xxhash.Sum64String(rawURL))
	ext := path.Ext(base)
	return strings.TrimSuffix(base, ext) + "-" + hashed[:8] + ext
}
