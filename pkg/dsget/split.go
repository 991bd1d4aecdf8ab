// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package dsget

import (
	"fmt"
	"strconv"
	"strings"
)

// Split is a parsed split expression.
//
// Bounds follow slice semantics: Start is inclusive, End exclusive, and -1
// means an open bound. When Percent is true the bounds are percentages of the
// split (0..100) rather than absolute example indices.
type Split struct {
	Name    string `json:"name"`
	Start   int    `json:"start"`
	End     int    `json:"end"`
	Percent bool   `json:"percent,omitempty"`
}

// Bounded reports whether the split selects a strict subset of examples.
func (s Split) Bounded() bool {
	return s.Start > 0 || s.End >= 0
}

// Limit returns the number of selected examples for an absolute bounded
// split, or -1 when the split is open-ended or percent-based.
func (s Split) Limit() int {
	if s.Percent || s.End < 0 {
		return -1
	}
	return s.End - s.Start
}

func (s Split) String() string {
	if !s.Bounded() {
		return s.Name
	}
	pct := ""
	if s.Percent {
		pct = "%"
	}
	start := ""
	if s.Start > 0 {
		start = strconv.Itoa(s.Start) + pct
	}
	end := ""
	if s.End >= 0 {
		end = strconv.Itoa(s.End) + pct
	}
	return fmt.Sprintf("%s[%s:%s]", s.Name, start, end)
}

// ParseSplit parses a split expression.
//
// Accepted forms:
//
//	train
//	train[:160]
//	train[160:]
//	train[10:20]
//	train[:10%]   train[80%:]   train[10%:20%]
//
// Mixing percent and absolute bounds in one expression is rejected, as are
// negative bounds and end < start.
func ParseSplit(expr string) (Split, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return Split{}, fmt.Errorf("%w: empty expression", ErrInvalidSplit)
	}

	open := strings.IndexByte(expr, '[')
	if open < 0 {
		if strings.ContainsAny(expr, "]:%") {
			return Split{}, fmt.Errorf("%w: %q", ErrInvalidSplit, expr)
		}
		return Split{Name: expr, Start: 0, End: -1}, nil
	}
	if !strings.HasSuffix(expr, "]") || open == 0 {
		return Split{}, fmt.Errorf("%w: %q", ErrInvalidSplit, expr)
	}

	name := expr[:open]
	body := expr[open+1 : len(expr)-1]
	colon := strings.IndexByte(body, ':')
	if colon < 0 {
		return Split{}, fmt.Errorf("%w: %q (missing ':')", ErrInvalidSplit, expr)
	}

	startStr := strings.TrimSpace(body[:colon])
	endStr := strings.TrimSpace(body[colon+1:])
	if startStr == "" && endStr == "" {
		return Split{Name: name, Start: 0, End: -1}, nil
	}

	sp := Split{Name: name, Start: 0, End: -1}

	startPct := strings.HasSuffix(startStr, "%")
	endPct := strings.HasSuffix(endStr, "%")
	if startStr != "" && endStr != "" && startPct != endPct {
		return Split{}, fmt.Errorf("%w: %q (mixed %% and absolute bounds)", ErrInvalidSplit, expr)
	}
	sp.Percent = startPct || endPct

	if startStr != "" {
		n, err := parseBound(strings.TrimSuffix(startStr, "%"))
		if err != nil {
			return Split{}, fmt.Errorf("%w: %q: %v", ErrInvalidSplit, expr, err)
		}
		sp.Start = n
	}
	if endStr != "" {
		n, err := parseBound(strings.TrimSuffix(endStr, "%"))
		if err != nil {
			return Split{}, fmt.Errorf("%w: %q: %v", ErrInvalidSplit, expr, err)
		}
		sp.End = n
	}

	if sp.End >= 0 && sp.End < sp.Start {
		return Split{}, fmt.Errorf("%w: %q (end before start)", ErrInvalidSplit, expr)
	}
	if sp.Percent {
		if sp.Start > 100 || sp.End > 100 {
			return Split{}, fmt.Errorf("%w: %q (percent out of range)", ErrInvalidSplit, expr)
		}
	}
	return sp, nil
}

func parseBound(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("bad bound %q", s)
	}
	if n < 0 {
		return 0, fmt.Errorf("negative bound %d", n)
	}
	return n, nil
}
