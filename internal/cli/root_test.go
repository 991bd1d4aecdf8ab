// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dsget/dsget/pkg/dsget"
)

func TestReadURLsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "urls.txt")
	content := `# image batches
https://example.org/images/batch-000.zip
https://example.org/images/batch-001.zip  # second batch

   https://example.org/images/batch-002.zip
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	urls, err := readURLsFile(path)
	if err != nil {
		t.Fatalf("readURLsFile failed: %v", err)
	}

	want := []string{
		"https://example.org/images/batch-000.zip",
		"https://example.org/images/batch-001.zip",
		"https://example.org/images/batch-002.zip",
	}
	if len(urls) != len(want) {
		t.Fatalf("expected %d urls, got %d: %v", len(want), len(urls), urls)
	}
	for i := range want {
		if urls[i] != want[i] {
			t.Errorf("url %d: got %q, want %q", i, urls[i], want[i])
		}
	}
}

func TestReadURLsFile_Missing(t *testing.T) {
	if _, err := readURLsFile(filepath.Join(t.TempDir(), "nope.txt")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestFinalizeFetch(t *testing.T) {
	t.Run("no urls", func(t *testing.T) {
		_, _, err := finalizeFetch(&RootOpts{}, nil, "", &dsget.FetchJob{}, &dsget.Settings{})
		if err == nil {
			t.Error("expected error with no URLs")
		}
	})

	t.Run("args become urls", func(t *testing.T) {
		job, _, err := finalizeFetch(&RootOpts{}, []string{"https://example.org/a.zip"}, "", &dsget.FetchJob{}, &dsget.Settings{})
		if err != nil {
			t.Fatalf("finalizeFetch failed: %v", err)
		}
		if len(job.URLs) != 1 || job.URLs[0] != "https://example.org/a.zip" {
			t.Errorf("unexpected URLs: %v", job.URLs)
		}
	})

	t.Run("token from flag", func(t *testing.T) {
		_, cfg, err := finalizeFetch(&RootOpts{Token: " tok "}, []string{"u"}, "", &dsget.FetchJob{}, &dsget.Settings{})
		if err != nil {
			t.Fatalf("finalizeFetch failed: %v", err)
		}
		if cfg.Token != "tok" {
			t.Errorf("expected trimmed token, got %q", cfg.Token)
		}
	})
}

func TestDefaultConfig_CoversSettingsFlags(t *testing.T) {
	cfg := DefaultConfig()
	for _, key := range []string{"output", "max-active", "verify", "retries", "backoff-initial", "backoff-max", "token"} {
		if _, ok := cfg[key]; !ok {
			t.Errorf("default config missing %q", key)
		}
	}
}
