package poller

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/Nexora-Open-Source/catalog-bulk-backend/types"
)

// Renderer presents poll progress to the user
type Renderer interface {
	Initializing(key types.ProgressKey)
	Update(snap types.ProgressSnapshot)
	Done(snap types.ProgressSnapshot)
	// Failed receives the last snapshot seen, which may be nil
	Failed(last *types.ProgressSnapshot, err error)
	// Cancelled receives the last snapshot seen, which may be nil
	Cancelled(last *types.ProgressSnapshot)
}

// NopRenderer discards everything
type NopRenderer struct{}

func (NopRenderer) Initializing(types.ProgressKey) {}
func (NopRenderer) Update(types.ProgressSnapshot) {}
func (NopRenderer) Done(types.ProgressSnapshot) {}
func (NopRenderer) Failed(*types.ProgressSnapshot, error) {}
func (NopRenderer) Cancelled(*types.ProgressSnapshot) {}

const (
	barWidth     = 30
	recentErrors = 5
)

// TerminalRenderer draws a single self-overwriting progress line
type TerminalRenderer struct {
	mu  sync.Mutex
	out io.Writer
	key types.ProgressKey
}

// NewTerminalRenderer writes to out
func NewTerminalRenderer(out io.Writer) *TerminalRenderer {
	return &TerminalRenderer{out: out}
}

func (r *TerminalRenderer) Initializing(key types.ProgressKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.key = key
	fmt.Fprintf(r.out, "Bulk job %s queued, waiting for progress...\n", key)
}

func (r *TerminalRenderer) Update(snap types.ProgressSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, "\r%s", progressLine(snap))
}

func (r *TerminalRenderer) Done(snap types.ProgressSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, "\r%s\n", progressLine(snap))
	fmt.Fprintf(r.out, "Completed: %d succeeded, %d failed of %d\n", snap.Success, snap.Failed, snap.Total)
	r.writeErrors(snap.Errors)
}

func (r *TerminalRenderer) Failed(last *types.ProgressSnapshot, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if last != nil {
		fmt.Fprintf(r.out, "\r%s\n", progressLine(*last))
	}
	fmt.Fprintf(r.out, "Bulk job %s did not complete: %v\n", r.key, err)
	if last != nil {
		r.writeErrors(last.Errors)
	}
}

func (r *TerminalRenderer) Cancelled(last *types.ProgressSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if last != nil {
		fmt.Fprintln(r.out)
	}
	fmt.Fprintf(r.out, "Stopped following %s; the job keeps running on the server\n", r.key)
}

func (r *TerminalRenderer) writeErrors(errs []types.ProgressError) {
	if len(errs) == 0 {
		return
	}
	start := 0
	if len(errs) > recentErrors {
		start = len(errs) - recentErrors
		fmt.Fprintf(r.out, "Recent errors (%d more not shown):\n", start)
	} else {
		fmt.Fprintln(r.out, "Errors:")
	}
	for _, e := range errs[start:] {
		title := e.Title
		if title == "" {
			title = "untitled"
		}
		fmt.Fprintf(r.out, "  #%d %s: %s\n", e.ID, title, e.Error)
	}
}

// progressLine renders e.g. "[===============>              ]  50%  5/10  ok 4  failed 1  batch 1/2"
func progressLine(snap types.ProgressSnapshot) string {
	filled := snap.Percentage * barWidth / 100
	if filled > barWidth {
		filled = barWidth
	}
	bar := strings.Repeat("=", filled)
	if filled < barWidth {
		bar += ">" + strings.Repeat(" ", barWidth-filled-1)
	}
	return fmt.Sprintf("[%s] %3d%%  %d/%d  ok %d  failed %d  batch %d/%d",
		bar, snap.Percentage, snap.Processed, snap.Total, snap.Success, snap.Failed, snap.CurrentBatch, snap.TotalBatches)
}
