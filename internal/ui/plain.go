package ui

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// PlainRenderer prints one line per event.
type PlainRenderer struct {
	mu  sync.Mutex
	out io.Writer
}

// NewPlainRenderer creates a plain text renderer.
func NewPlainRenderer(cfg Config) *PlainRenderer {
	return &PlainRenderer{out: cfg.Output}
}

// Start implements Renderer.
func (r *PlainRenderer) Start(context.Context) error {
	return nil
}

// UpdateProgress implements Renderer. Events without a file are not
// printed.
func (r *PlainRenderer) UpdateProgress(event ProgressEvent) {
	if event.CurrentFile == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if event.Total > 0 {
		_, _ = fmt.Fprintf(r.out, "[%s] %d/%d %s (%d chunks)\n",
			event.Stage.Icon(), event.Current, event.Total, event.CurrentFile, event.Chunks)
		return
	}
	_, _ = fmt.Fprintf(r.out, "[%s] %s (%d chunks)\n", event.Stage.Icon(), event.CurrentFile, event.Chunks)
}

// AddError implements Renderer.
func (r *PlainRenderer) AddError(event ErrorEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if event.File != "" {
		_, _ = fmt.Fprintf(r.out, "ERROR: %s: %v\n", event.File, event.Err)
		return
	}
	_, _ = fmt.Fprintf(r.out, "ERROR: %v\n", event.Err)
}

// Complete implements Renderer.
func (r *PlainRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, _ = fmt.Fprintf(r.out, "Complete: %d files, %d chunks in %s",
		stats.Files, stats.Chunks, stats.Duration.Round(time.Millisecond))
	if stats.Errors > 0 {
		_, _ = fmt.Fprintf(r.out, " (%d errors)", stats.Errors)
	}
	_, _ = fmt.Fprintln(r.out)
}

// Stop implements Renderer.
func (r *PlainRenderer) Stop() error {
	return nil
}

var _ Renderer = (*PlainRenderer)(nil)
