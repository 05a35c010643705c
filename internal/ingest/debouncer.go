package ingest

import (
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"
)

// Op is a file system operation seen by the watcher.
type Op int

const (
	OpCreate Op = iota
	OpModify
	OpDelete
)

func (op Op) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// Event is a file change.
type Event struct {
	Path string
	Op   Op
}

// Debouncer coalesces rapid events for the same path. Within the window:
//   - CREATE + MODIFY = CREATE (file is still new)
//   - CREATE + DELETE = nothing
//   - MODIFY + DELETE = DELETE
//   - DELETE + CREATE = MODIFY (file was replaced)
//
// Batches are emitted sorted by path once no event arrived for a window.
type Debouncer struct {
	window  time.Duration
	pending map[string]*pendingEvent
	mu      sync.Mutex
	output  chan []Event
	timer   *time.Timer
	stopped bool
}

type pendingEvent struct {
	event   Event
	firstOp Op
}

// NewDebouncer creates a debouncer with the given window.
func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{
		window:  window,
		pending: make(map[string]*pendingEvent),
		output:  make(chan []Event, 16),
	}
}

// Add queues an event, coalescing it with any pending event for the path.
func (d *Debouncer) Add(event Event) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	if existing, ok := d.pending[event.Path]; ok {
		coalesced, keep := coalesce(existing.firstOp, event)
		if !keep {
			delete(d.pending, event.Path)
		} else {
			existing.event = coalesced
		}
	} else {
		d.pending[event.Path] = &pendingEvent{event: event, firstOp: event.Op}
	}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
}

// coalesce merges next into a pending event whose first operation was
// first. keep is false when the two cancel out.
func coalesce(first Op, next Event) (merged Event, keep bool) {
	switch first {
	case OpCreate:
		switch next.Op {
		case OpModify:
			return Event{Path: next.Path, Op: OpCreate}, true
		case OpDelete:
			return Event{}, false
		}
	case OpDelete:
		if next.Op == OpCreate {
			return Event{Path: next.Path, Op: OpModify}, true
		}
	}
	return next, true
}

func (d *Debouncer) flush() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped || len(d.pending) == 0 {
		return
	}

	events := make([]Event, 0, len(d.pending))
	for _, pe := range d.pending {
		events = append(events, pe.event)
	}
	slices.SortFunc(events, func(a, b Event) int { return strings.Compare(a.Path, b.Path) })
	d.pending = make(map[string]*pendingEvent)

	select {
	case d.output <- events:
	default:
		slog.Warn("debouncer_output_full", "dropped", len(events))
	}
}

// Output returns the channel of debounced batches.
func (d *Debouncer) Output() <-chan []Event {
	return d.output
}

// Stop stops the debouncer and closes the output channel. Safe to call
// multiple times.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	close(d.output)
}
