// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dsget/dsget/pkg/dsget"
)

// smallSplit is the slice used by --small: enough examples to exercise a
// training pipeline without pulling the full split.
const smallSplit = "train[:160]"

func newDatasetCmd(ctx context.Context, ro *RootOpts) *cobra.Command {
	job := &dsget.DatasetJob{}
	cfg := &dsget.Settings{}
	var small bool

	cmd := &cobra.Command{
		Use:   "dataset NAME",
		Short: "Load a named dataset split from the hub into the local cache",
		Long: `Load a dataset split from the hub.

Full splits ("train", "validation") download the split's data files into the
cache. Bounded slices ("train[:160]") stream just those examples through the
rows API into a single JSON lines file, which is much cheaper for smoke runs.

--small is shorthand for --split ` + smallSplit + `.`,
		Args: cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return applySettingsDefaults(cmd, ro, cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			j := *job
			c := *cfg
			j.Name = args[0]
			c.Token = resolveToken(ro)

			if small {
				if cmd.Flags().Changed("split") {
					return fmt.Errorf("--small and --split are mutually exclusive")
				}
				j.Split = smallSplit
			}

			ro.log.Info().Str("dataset", j.Name).Str("split", j.Split).Msg("loading dataset")

			progress, closeProgress := selectProgress(ro, 0)
			ds, err := dsget.LoadDataset(ctx, j, c, progress)
			closeProgress()
			if err != nil {
				return err
			}

			if ro.JSONOut {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(ds)
			}
			if ds.Rows >= 0 {
				fmt.Printf("%s %s: %d examples in %s\n", ds.Name, ds.Split, ds.Rows, ds.Dir)
			} else {
				fmt.Printf("%s %s: %d files in %s\n", ds.Name, ds.Split, len(ds.Files), ds.Dir)
			}
			return nil
		},
	}

	// Job flags
	cmd.Flags().StringVarP(&job.Split, "split", "s", "train", "Split expression (e.g. train, validation, train[:160])")
	cmd.Flags().BoolVar(&small, "small", false, "Shorthand for --split "+smallSplit)
	cmd.Flags().StringVar(&job.Config, "dataset-config", "default", "Dataset configuration name")
	cmd.Flags().StringVarP(&job.Revision, "revision", "b", "main", "Revision/branch to load")

	cmd.Flags().StringVarP(&cfg.OutputDir, "output", "o", "Data", "Cache base directory")
	addSettingsFlags(cmd, cfg)

	return cmd
}
