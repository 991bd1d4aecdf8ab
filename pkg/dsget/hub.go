// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package dsget

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultEndpoint is the default hub URL. Override via Settings.Endpoint for
// mirrors or enterprise deployments.
const DefaultEndpoint = "https://huggingface.co"

// DefaultRowsEndpoint is the default rows API URL, used for bounded split
// slices.
const DefaultRowsEndpoint = "https://datasets-server.huggingface.co"

// rowsPageSize is the largest page the rows API serves per request.
const rowsPageSize = 100

// hubNode is a file or directory in the dataset repo tree.
type hubNode struct {
	Type   string      `json:"type"` // "file"|"directory" (sometimes "blob"|"tree")
	Path   string      `json:"path"`
	Size   int64       `json:"size,omitempty"`
	LFS    *hubLfsInfo `json:"lfs,omitempty"`
	Sha256 string      `json:"sha256,omitempty"`
}

// hubLfsInfo carries LFS metadata for large files.
type hubLfsInfo struct {
	Oid    string `json:"oid,omitempty"`
	Size   int64  `json:"size,omitempty"`
	Sha256 string `json:"sha256,omitempty"`
}

// planItem is a single file selected for download.
type planItem struct {
	RelativePath string
	URL          string
	Size         int64
	SHA256       string
}

// hubClient talks to the dataset hub. Tree listings are memoized in an LRU so
// that planning and downloading the same revision does not re-walk the tree.
type hubClient struct {
	httpc    *http.Client
	token    string
	endpoint string
	rowsEP   string
	trees    *lru.Cache[string, []hubNode]
}

func newHubClient(cfg Settings) *hubClient {
	trees, _ := lru.New[string, []hubNode](128)
	return &hubClient{
		httpc:    buildHTTPClient(),
		token:    cfg.Token,
		endpoint: strings.TrimSuffix(defaultString(cfg.Endpoint, DefaultEndpoint), "/"),
		rowsEP:   strings.TrimSuffix(defaultString(cfg.RowsEndpoint, DefaultRowsEndpoint), "/"),
		trees:    trees,
	}
}

// buildHTTPClient creates an HTTP client with sensible defaults.
func buildHTTPClient() *http.Client {
	tr := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          64,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{Transport: tr}
}

// addAuth adds authentication and user-agent headers to a request.
func (c *hubClient) addAuth(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("User-Agent", "dsget/1")
}

// listTree fetches one directory level of the dataset tree, memoized.
func (c *hubClient) listTree(ctx context.Context, job DatasetJob, prefix string) ([]hubNode, error) {
	key := job.Name + "@" + job.Revision + "/" + prefix
	if nodes, ok := c.trees.Get(key); ok {
		return nodes, nil
	}

	reqURL := c.treeURL(job, prefix)
	req, _ := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	c.addAuth(req)
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			URL:        reqURL,
		}
	}

	var nodes []hubNode
	if err := json.NewDecoder(resp.Body).Decode(&nodes); err != nil {
		return nil, fmt.Errorf("tree API: %w", err)
	}
	c.trees.Add(key, nodes)
	return nodes, nil
}

// walkTree recursively walks the dataset repo tree.
func (c *hubClient) walkTree(ctx context.Context, job DatasetJob, prefix string, fn func(hubNode) error) error {
	nodes, err := c.listTree(ctx, job, prefix)
	if err != nil {
		return err
	}
	for _, n := range nodes {
		switch n.Type {
		case "directory", "tree":
			if err := c.walkTree(ctx, job, n.Path, fn); err != nil {
				return err
			}
		default:
			if err := fn(n); err != nil {
				return err
			}
		}
	}
	return nil
}

// planSplit selects the data files belonging to a split.
func (c *hubClient) planSplit(ctx context.Context, job DatasetJob, sp Split) ([]planItem, error) {
	var items []planItem
	seen := make(map[string]struct{})

	err := c.walkTree(ctx, job, "", func(n hubNode) error {
		if n.Type != "file" && n.Type != "blob" {
			return nil
		}
		rel := n.Path
		if _, ok := seen[rel]; ok {
			return nil
		}
		seen[rel] = struct{}{}

		if !matchesSplit(rel, job.Config, sp.Name) {
			return nil
		}

		// For LFS files the node size is the pointer file, not the blob.
		size := n.Size
		if n.LFS != nil && n.LFS.Size > 0 {
			size = n.LFS.Size
		}
		sha := n.Sha256
		if sha == "" && n.LFS != nil {
			sha = n.LFS.Sha256
		}
		if sha == "" && n.LFS != nil {
			sha = n.LFS.Oid
		}

		var fileURL string
		if n.LFS != nil {
			fileURL = c.resolveURL(job, rel)
		} else {
			fileURL = c.rawURL(job, rel)
		}

		items = append(items, planItem{
			RelativePath: rel,
			URL:          fileURL,
			Size:         size,
			SHA256:       sha,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

// matchesSplit decides whether a repo file belongs to the given config and
// split. Hub datasets lay data files out either as <config>/<split>/shard or
// as data/<split>-00000-of-00010.<ext>; both forms are recognized, as are
// root-level files named after the split.
func matchesSplit(rel, config, split string) bool {
	segs := strings.Split(rel, "/")

	if len(segs) > 1 {
		first := segs[0]
		if first != config && first != "data" && first != split {
			return false
		}
	}

	for _, seg := range segs[:len(segs)-1] {
		if seg == split {
			return true
		}
	}

	base := segs[len(segs)-1]
	if !strings.HasPrefix(base, split) {
		return false
	}
	rest := base[len(split):]
	if rest == "" {
		return true
	}
	switch rest[0] {
	case '-', '.', '_':
		return true
	default:
		return false
	}
}

// hubRow is one example returned by the rows API.
type hubRow struct {
	RowIdx int             `json:"row_idx"`
	Row    json.RawMessage `json:"row"`
}

// hubRowsPage is one page of the rows API response.
type hubRowsPage struct {
	Rows         []hubRow `json:"rows"`
	NumRowsTotal int      `json:"num_rows_total"`
}

// splitRows fetches one page of examples for a split.
func (c *hubClient) splitRows(ctx context.Context, job DatasetJob, sp Split, offset, length int) (*hubRowsPage, error) {
	reqURL := c.rowsURL(job, sp, offset, length)
	req, _ := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	c.addAuth(req)
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			URL:        reqURL,
		}
	}

	var page hubRowsPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("rows API: %w", err)
	}
	return &page, nil
}

// URL builders. The dataset id contains "/" for owner/name repos, which the
// hub requires as a literal slash.

func (c *hubClient) treeURL(job DatasetJob, prefix string) string {
	rev := url.PathEscape(defaultString(job.Revision, "main"))
	if prefix == "" {
		return fmt.Sprintf("%s/api/datasets/%s/tree/%s", c.endpoint, job.Name, rev)
	}
	return fmt.Sprintf("%s/api/datasets/%s/tree/%s/%s", c.endpoint, job.Name, rev, pathEscapeAll(prefix))
}

func (c *hubClient) rawURL(job DatasetJob, rel string) string {
	rev := url.PathEscape(defaultString(job.Revision, "main"))
	return fmt.Sprintf("%s/datasets/%s/raw/%s/%s", c.endpoint, job.Name, rev, pathEscapeAll(rel))
}

func (c *hubClient) resolveURL(job DatasetJob, rel string) string {
	rev := url.PathEscape(defaultString(job.Revision, "main"))
	return fmt.Sprintf("%s/datasets/%s/resolve/%s/%s", c.endpoint, job.Name, rev, pathEscapeAll(rel))
}

func (c *hubClient) rowsURL(job DatasetJob, sp Split, offset, length int) string {
	q := url.Values{}
	q.Set("dataset", job.Name)
	q.Set("config", defaultString(job.Config, "default"))
	q.Set("split", sp.Name)
	q.Set("offset", fmt.Sprint(offset))
	q.Set("length", fmt.Sprint(length))
	return c.rowsEP + "/rows?" + q.Encode()
}

func pathEscapeAll(p string) string {
	segs := strings.Split(p, "/")
	for i := range segs {
		segs[i] = url.PathEscape(segs[i])
	}
	return strings.Join(segs, "/")
}
