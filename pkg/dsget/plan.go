// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package dsget

import (
	"context"
	"fmt"
)

// PlanFile is one file a dataset job would produce.
type PlanFile struct {
	Path   string `json:"path"`
	Size   int64  `json:"size,omitempty"`
	SHA256 string `json:"sha256,omitempty"`
}

// Plan describes what a dataset job would download, without downloading.
type Plan struct {
	Name     string     `json:"name"`
	Config   string     `json:"config"`
	Split    string     `json:"split"`
	Revision string     `json:"revision"`
	Items    []PlanFile `json:"items"`
	Rows     int        `json:"rows,omitempty"`
}

// PlanDataset resolves the file list for a dataset job without downloading
// anything. Bounded absolute slices plan a single JSON lines file whose size
// is unknown until the rows are streamed; the requested row count is reported
// instead.
func PlanDataset(ctx context.Context, job DatasetJob, cfg Settings) (*Plan, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := validateDataset(job); err != nil {
		return nil, err
	}

	job.Config = defaultString(job.Config, "default")
	job.Revision = defaultString(job.Revision, "main")

	sp, err := ParseSplit(defaultString(job.Split, "train"))
	if err != nil {
		return nil, err
	}

	p := &Plan{
		Name:     job.Name,
		Config:   job.Config,
		Split:    sp.String(),
		Revision: job.Revision,
	}

	if sp.Bounded() && !sp.Percent && sp.End >= 0 {
		p.Items = []PlanFile{{Path: splitDirName(sp) + ".jsonl"}}
		p.Rows = sp.End - sp.Start
		return p, nil
	}

	client := newHubClient(cfg)
	items, err := client.planSplit(ctx, job, sp)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: no files matched split %q (config %q)", ErrNotFound, sp.Name, job.Config)
	}

	for _, it := range items {
		p.Items = append(p.Items, PlanFile{Path: it.RelativePath, Size: it.Size, SHA256: it.SHA256})
	}
	return p, nil
}
