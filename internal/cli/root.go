// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/dsget/dsget/internal/logging"
	"github.com/dsget/dsget/pkg/dsget"
)

// RootOpts holds global CLI options.
type RootOpts struct {
	Token    string
	JSONOut  bool
	Quiet    bool
	Verbose  bool
	Config   string
	LogLevel string

	log zerolog.Logger
}

// Execute runs the CLI with the given version string.
func Execute(version string) error {
	ro := &RootOpts{}
	ctx, cancel := signalContext(context.Background())
	defer cancel()

	root := &cobra.Command{
		Use:           "dsget",
		Short:         "Cache-aware downloader for image sets and hub dataset splits",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := ro.LogLevel
			if ro.Verbose {
				level = "debug"
			}
			ro.log = logging.New(logging.Config{
				Level:     level,
				Console:   !ro.JSONOut,
				Component: "cli",
			}, os.Stderr)
		},
	}

	// Global flags
	root.PersistentFlags().StringVarP(&ro.Token, "token", "t", "", "Hub access token (also reads HF_TOKEN env)")
	root.PersistentFlags().BoolVar(&ro.JSONOut, "json", false, "Emit machine-readable JSON events (progress, results)")
	root.PersistentFlags().BoolVarP(&ro.Quiet, "quiet", "q", false, "Quiet mode (minimal output)")
	root.PersistentFlags().BoolVarP(&ro.Verbose, "verbose", "v", false, "Verbose logs (debug details)")
	root.PersistentFlags().StringVar(&ro.Config, "config", "", "Path to config file (JSON or YAML)")
	root.PersistentFlags().StringVar(&ro.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")

	// Add commands
	fetchCmd := newFetchCmd(ctx, ro)
	root.AddCommand(fetchCmd)
	root.AddCommand(newDatasetCmd(ctx, ro))
	root.AddCommand(newServeCmd(ro))
	root.AddCommand(newConfigCmd())
	root.AddCommand(newVersionCmd(version))

	// Make fetch the default command when no subcommand is given
	root.RunE = fetchCmd.RunE
	root.SetHelpCommand(&cobra.Command{Use: "help", Hidden: true})

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return err
	}
	return nil
}

func newFetchCmd(ctx context.Context, ro *RootOpts) *cobra.Command {
	job := &dsget.FetchJob{}
	cfg := &dsget.Settings{}
	var urlsFile string

	cmd := &cobra.Command{
		Use:   "fetch [URL...]",
		Short: "Download a list of URLs into a local cache directory",
		Long: `Download a list of URLs into a cache directory.

If the directory already exists the whole job is assumed complete from a
prior run and nothing is downloaded. Pass --force to re-check every file
individually instead.

URLs come from positional arguments and/or --urls-file (one URL per line,
'#' starts a comment).`,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return applySettingsDefaults(cmd, ro, cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			finalJob, finalCfg, err := finalizeFetch(ro, args, urlsFile, job, cfg)
			if err != nil {
				return err
			}

			ro.log.Info().Str("dir", finalJob.Dir).Int("urls", len(finalJob.URLs)).Msg("starting fetch")

			progress, closeProgress := selectProgress(ro, len(finalJob.URLs))
			defer closeProgress()

			return dsget.Fetch(ctx, finalJob, finalCfg, progress)
		},
	}

	// Job flags
	cmd.Flags().StringVarP(&job.Dir, "output", "o", "Data/images", "Destination cache directory")
	cmd.Flags().BoolVar(&job.Force, "force", false, "Skip the directory-existence short circuit and re-check each file")
	cmd.Flags().StringVar(&urlsFile, "urls-file", "", "File with one URL per line ('#' comments allowed)")

	addSettingsFlags(cmd, cfg)

	return cmd
}

// addSettingsFlags registers the download-engine flags shared by fetch and
// dataset.
func addSettingsFlags(cmd *cobra.Command, cfg *dsget.Settings) {
	cmd.Flags().IntVar(&cfg.MaxActiveDownloads, "max-active", 3, "Maximum number of files downloading at once")
	cmd.Flags().StringVar(&cfg.Verify, "verify", "size", "Post-download check: none|size|sha256")
	cmd.Flags().IntVar(&cfg.Retries, "retries", 4, "Max retry attempts per HTTP request")
	cmd.Flags().StringVar(&cfg.BackoffInitial, "backoff-initial", "400ms", "Initial retry backoff duration")
	cmd.Flags().StringVar(&cfg.BackoffMax, "backoff-max", "10s", "Maximum retry backoff duration")
	cmd.Flags().StringVar(&cfg.Endpoint, "endpoint", "", "Hub endpoint override (mirrors)")
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-ch:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

func finalizeFetch(ro *RootOpts, args []string, urlsFile string, job *dsget.FetchJob, cfg *dsget.Settings) (dsget.FetchJob, dsget.Settings, error) {
	j := *job
	c := *cfg
	c.Token = resolveToken(ro)

	j.URLs = append(j.URLs, args...)
	if urlsFile != "" {
		urls, err := readURLsFile(urlsFile)
		if err != nil {
			return j, c, err
		}
		j.URLs = append(j.URLs, urls...)
	}

	if len(j.URLs) == 0 {
		return j, c, fmt.Errorf("no URLs given: pass them as arguments or via --urls-file")
	}
	return j, c, nil
}

func resolveToken(ro *RootOpts) string {
	tok := strings.TrimSpace(ro.Token)
	if tok == "" {
		tok = strings.TrimSpace(os.Getenv("HF_TOKEN"))
	}
	return tok
}

// readURLsFile loads one URL per line. Blank lines and '#' comments are
// skipped, as is anything after an inline '#'.
func readURLsFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var urls []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if i := strings.Index(line, "#"); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		urls = append(urls, line)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return urls, nil
}

func applySettingsDefaults(cmd *cobra.Command, ro *RootOpts, dst *dsget.Settings) error {
	path := ro.Config
	if path == "" {
		home, _ := os.UserHomeDir()
		// Try JSON first, then YAML
		jsonPath := filepath.Join(home, ".config", "dsget.json")
		yamlPath := filepath.Join(home, ".config", "dsget.yaml")
		ymlPath := filepath.Join(home, ".config", "dsget.yml")

		if _, err := os.Stat(jsonPath); err == nil {
			path = jsonPath
		} else if _, err := os.Stat(yamlPath); err == nil {
			path = yamlPath
		} else if _, err := os.Stat(ymlPath); err == nil {
			path = ymlPath
		}
	}
	if path == "" {
		return nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var cfg map[string]any

	// Parse based on file extension
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return fmt.Errorf("invalid YAML config file: %w", err)
		}
	default: // .json or unknown
		if err := json.Unmarshal(b, &cfg); err != nil {
			return fmt.Errorf("invalid JSON config file: %w", err)
		}
	}

	setStr := func(flagName string, set func(string)) {
		if cmd.Flags().Changed(flagName) {
			return
		}
		if v, ok := cfg[flagName]; ok && v != nil {
			set(fmt.Sprint(v))
		}
	}
	setInt := func(flagName string, set func(int)) {
		if cmd.Flags().Changed(flagName) {
			return
		}
		if v, ok := cfg[flagName]; ok && v != nil {
			var x int
			fmt.Sscan(fmt.Sprint(v), &x)
			set(x)
		}
	}

	setStr("output", func(v string) { dst.OutputDir = v })
	setInt("max-active", func(v int) { dst.MaxActiveDownloads = v })
	setStr("verify", func(v string) { dst.Verify = v })
	setInt("retries", func(v int) { dst.Retries = v })
	setStr("backoff-initial", func(v string) { dst.BackoffInitial = v })
	setStr("backoff-max", func(v string) { dst.BackoffMax = v })
	setStr("endpoint", func(v string) { dst.Endpoint = v })

	if !cmd.Flags().Changed("token") && os.Getenv("HF_TOKEN") == "" {
		if v, ok := cfg["token"]; ok && v != nil {
			ro.Token = fmt.Sprint(v)
		}
	}

	return nil
}

// selectProgress picks the progress handler for the current output mode. The
// returned func finishes/flushes the handler.
func selectProgress(ro *RootOpts, plannedFiles int) (dsget.ProgressFunc, func()) {
	if ro.JSONOut {
		return jsonProgress(os.Stdout), func() {}
	}
	if ro.Quiet {
		return cliProgress(), func() {}
	}
	return barProgress(plannedFiles)
}

// cliProgress returns a simple text-based progress handler.
func cliProgress() dsget.ProgressFunc {
	return func(ev dsget.ProgressEvent) {
		switch ev.Event {
		case "scan_start":
			fmt.Println(ev.Message)
		case "retry":
			fmt.Printf("retry %s (attempt %d): %s\n", ev.Path, ev.Attempt, ev.Message)
		case "file_start":
			fmt.Printf("downloading: %s (%d bytes)\n", ev.Path, ev.Total)
		case "file_done":
			if strings.HasPrefix(ev.Message, "skip") {
				fmt.Printf("skip: %s %s\n", ev.Path, ev.Message)
			} else {
				fmt.Printf("done: %s\n", ev.Path)
			}
		case "error":
			fmt.Fprintf(os.Stderr, "error: %s\n", ev.Message)
		case "done":
			fmt.Println(ev.Message)
		}
	}
}

// jsonProgress returns a JSON-lines progress handler.
func jsonProgress(w io.Writer) dsget.ProgressFunc {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	var mu sync.Mutex
	return func(ev dsget.ProgressEvent) {
		mu.Lock()
		_ = enc.Encode(ev)
		mu.Unlock()
	}
}
