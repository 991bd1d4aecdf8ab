// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/cheggaaa/pb/v3"

	"github.com/dsget/dsget/pkg/dsget"
)

// barProgress renders a file-count progress bar. plannedFiles may be zero
// when the plan is discovered while running (dataset jobs); the total grows
// with each plan_item event.
func barProgress(plannedFiles int) (dsget.ProgressFunc, func()) {
	tmpl := `{{ bar . "[" "=" ">" "." "]" }} {{ counters . }} files {{ percent . }}`
	bar := pb.New(plannedFiles)
	bar.SetTemplateString(tmpl)
	bar.SetWriter(os.Stderr)
	bar.Start()

	var mu sync.Mutex
	handler := func(ev dsget.ProgressEvent) {
		mu.Lock()
		defer mu.Unlock()
		switch ev.Event {
		case "plan_item":
			if plannedFiles == 0 {
				bar.SetTotal(bar.Total() + 1)
			}
		case "file_done":
			bar.Increment()
			if strings.HasPrefix(ev.Message, "skip") {
				fmt.Fprintf(os.Stderr, "skip: %s %s\n", ev.Path, ev.Message)
			}
		case "retry":
			fmt.Fprintf(os.Stderr, "retry %s (attempt %d): %s\n", ev.Path, ev.Attempt, ev.Message)
		case "error":
			fmt.Fprintf(os.Stderr, "error: %s\n", ev.Message)
		case "done":
			fmt.Fprintln(os.Stderr, ev.Message)
		}
	}
	return handler, func() { bar.Finish() }
}
