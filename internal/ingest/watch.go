package ingest

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/SakshamDixitSBH/docrag/internal/errors"
)

// DefaultDebounce is the quiet period before a batch of changes is ingested.
const DefaultDebounce = 500 * time.Millisecond

// DefaultSettle is how long a new file's size and modification time must
// stay unchanged before it is ingested.
const DefaultSettle = time.Second

// Watcher ingests files created under watched directories.
//
// The index is append-only, so each new file is ingested once, after it has
// settled. Files that existed when watching started, or that were already
// ingested, are skipped when modified. Deleted files are skipped.
type Watcher struct {
	Pipeline *Pipeline
	Debounce time.Duration
	Settle   time.Duration
	Logger   *slog.Logger

	// OnBatch, if set, is called after each ingested batch.
	OnBatch func(*Report, error)

	// ready, if set, is closed once all directories are watched.
	ready chan struct{}
}

// watchState is the bookkeeping of one Run.
type watchState struct {
	// known holds files that existed at start or were ingested.
	known map[string]bool
	// settling holds new files waiting to stop changing.
	settling map[string]*settleState
}

type settleState struct {
	size  int64
	mod   time.Time
	since time.Time
}

// Run watches dirs recursively until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context, dirs ...string) error {
	logger := w.logger()

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.InternalError("failed to start file watcher", err)
	}
	defer func() { _ = fsw.Close() }()

	st := &watchState{known: make(map[string]bool), settling: make(map[string]*settleState)}
	for _, dir := range dirs {
		err := addRecursive(fsw, dir, func(path string) {
			if w.Pipeline.Extractors.Recognized(path) {
				st.known[path] = true
			}
		})
		if err != nil {
			return errors.New(errors.ErrCodeInvalidPath, "cannot watch "+dir, err)
		}
	}

	window := w.Debounce
	if window <= 0 {
		window = DefaultDebounce
	}
	settle := w.Settle
	if settle <= 0 {
		settle = DefaultSettle
	}
	debouncer := NewDebouncer(window)
	defer debouncer.Stop()
	ticker := time.NewTicker(min(window, settle))
	defer ticker.Stop()

	logger.Info("watch_started", "dirs", dirs, "debounce", window.String(), "settle", settle.String())
	if w.ready != nil {
		close(w.ready)
	}

	for {
		select {
		case <-ctx.Done():
			logger.Info("watch_stopped")
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handle(fsw, debouncer, event)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watch_error", "error", err)
		case batch, ok := <-debouncer.Output():
			if !ok {
				return nil
			}
			w.enqueue(st, batch, time.Now())
		case now := <-ticker.C:
			if paths := st.settled(now, settle, logger); len(paths) > 0 {
				w.ingest(ctx, st, paths)
			}
		}
	}
}

func (w *Watcher) handle(fsw *fsnotify.Watcher, d *Debouncer, event fsnotify.Event) {
	info, statErr := os.Stat(event.Name)
	isDir := statErr == nil && info.IsDir()

	var op Op
	switch {
	case event.Has(fsnotify.Create):
		op = OpCreate
		if isDir {
			// Files already inside a created or moved-in directory produce
			// no events of their own.
			err := addRecursive(fsw, event.Name, func(path string) {
				if w.Pipeline.Extractors.Recognized(path) {
					d.Add(Event{Path: path, Op: OpCreate})
				}
			})
			if err != nil {
				w.logger().Warn("watch_add_failed", "path", event.Name, "error", err)
			}
			return
		}
	case event.Has(fsnotify.Write):
		op = OpModify
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		op = OpDelete
	default:
		return
	}

	if isDir || !w.Pipeline.Extractors.Recognized(event.Name) {
		return
	}
	d.Add(Event{Path: event.Name, Op: op})
}

// enqueue moves debounced events into the settling set. A modification of
// a file that is neither known nor settling counts as a creation.
func (w *Watcher) enqueue(st *watchState, batch []Event, now time.Time) {
	logger := w.logger()
	for _, ev := range batch {
		switch {
		case ev.Op == OpDelete:
			delete(st.settling, ev.Path)
			delete(st.known, ev.Path)
			logger.Debug("watch_event_skipped", "path", ev.Path, "op", ev.Op.String())
		case st.known[ev.Path]:
			logger.Debug("watch_event_skipped", "path", ev.Path, "op", ev.Op.String())
		case st.settling[ev.Path] == nil:
			st.settling[ev.Path] = &settleState{size: -1, since: now}
		}
	}
}

// settled returns, sorted, the settling files whose size and modification
// time have not changed for settle.
func (st *watchState) settled(now time.Time, settle time.Duration, logger *slog.Logger) []string {
	var ready []string
	for path, s := range st.settling {
		info, err := os.Stat(path)
		if err != nil {
			logger.Debug("watch_file_vanished", "path", path, "error", err)
			delete(st.settling, path)
			continue
		}
		if info.Size() != s.size || !info.ModTime().Equal(s.mod) {
			s.size, s.mod, s.since = info.Size(), info.ModTime(), now
			continue
		}
		if now.Sub(s.since) >= settle {
			ready = append(ready, path)
			delete(st.settling, path)
		}
	}
	slices.Sort(ready)
	return ready
}

// ingest runs the pipeline on settled files. Files that failed stay
// unknown, so a later write retries them.
func (w *Watcher) ingest(ctx context.Context, st *watchState, paths []string) {
	report, err := w.Pipeline.Run(ctx, paths...)
	if err != nil {
		w.logger().Error("watch_ingest_failed", errors.LogAttrs(err)...)
	}
	if report != nil && err == nil {
		failed := make(map[string]bool, len(report.Errors))
		for _, fe := range report.Errors {
			failed[fe.Path] = true
		}
		for _, path := range paths {
			if !failed[path] {
				st.known[path] = true
			}
		}
	}
	if w.OnBatch != nil {
		w.OnBatch(report, err)
	}
}

// addRecursive watches dir and its subdirectories, skipping hidden ones.
// file is called for every file found.
func addRecursive(fsw *fsnotify.Watcher, dir string, file func(path string)) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			file(path)
			return nil
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			return fs.SkipDir
		}
		return fsw.Add(path)
	})
}

func (w *Watcher) logger() *slog.Logger {
	if w.Logger != nil {
		return w.Logger
	}
	return slog.Default()
}
