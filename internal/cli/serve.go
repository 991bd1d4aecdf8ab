// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dsget/dsget/internal/server"
)

func newServeCmd(ro *RootOpts) *cobra.Command {
	var (
		addr        string
		port        int
		imagesDir   string
		datasetsDir string
		active      int
		endpoint    string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP server for remote-controlled downloads",
		Long: `Start an HTTP server that provides:
  - REST API for fetch and dataset jobs
  - WebSocket for live progress updates

Output paths are configured server-side only (not via API) for security.

Example:
  dsget serve
  dsget serve --port 3000
  dsget serve --images-dir ./Data/images --datasets-dir ./Data`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := server.Config{
				Addr:        addr,
				Port:        port,
				ImagesDir:   imagesDir,
				DatasetsDir: datasetsDir,
				MaxActive:   active,
				Endpoint:    endpoint,
				Token:       resolveToken(ro),
			}

			srv := server.New(cfg)

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			fmt.Printf("dsget serving on %s:%d\n", cfg.Addr, cfg.Port)

			return srv.ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "0.0.0.0", "Address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "Port to listen on")
	cmd.Flags().StringVar(&imagesDir, "images-dir", "./Data/images", "Output directory for URL-list fetches")
	cmd.Flags().StringVar(&datasetsDir, "datasets-dir", "./Data", "Output directory for dataset splits")
	cmd.Flags().IntVar(&active, "max-active", 3, "Max concurrent file downloads")
	cmd.Flags().StringVar(&endpoint, "endpoint", "", "Hub endpoint override (mirrors)")

	return cmd
}
