package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SakshamDixitSBH/docrag/internal/store"
)

func collect(t *testing.T, d *Debouncer) []Event {
	t.Helper()
	select {
	case batch := <-d.Output():
		return batch
	case <-time.After(2 * time.Second):
		t.Fatal("no batch emitted")
		return nil
	}
}

func TestDebouncer_Coalesces(t *testing.T) {
	tests := []struct {
		name string
		ops  []Op
		want []Event
	}{
		{"create then modify", []Op{OpCreate, OpModify, OpModify}, []Event{{Path: "a", Op: OpCreate}}},
		{"modify then delete", []Op{OpModify, OpDelete}, []Event{{Path: "a", Op: OpDelete}}},
		{"delete then create", []Op{OpDelete, OpCreate}, []Event{{Path: "a", Op: OpModify}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDebouncer(20 * time.Millisecond)
			defer d.Stop()
			for _, op := range tt.ops {
				d.Add(Event{Path: "a", Op: op})
			}
			assert.Equal(t, tt.want, collect(t, d))
		})
	}
}

func TestDebouncer_CreateThenDeleteCancels(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	defer d.Stop()

	d.Add(Event{Path: "gone", Op: OpCreate})
	d.Add(Event{Path: "gone", Op: OpDelete})
	d.Add(Event{Path: "kept", Op: OpCreate})

	assert.Equal(t, []Event{{Path: "kept", Op: OpCreate}}, collect(t, d))
}

func TestDebouncer_BatchSortedByPath(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	defer d.Stop()

	for _, p := range []string{"c", "a", "b"} {
		d.Add(Event{Path: p, Op: OpCreate})
	}
	batch := collect(t, d)
	require.Len(t, batch, 3)
	assert.Equal(t, "a", batch[0].Path)
	assert.Equal(t, "c", batch[2].Path)
}

func TestDebouncer_StopIsIdempotent(t *testing.T) {
	d := NewDebouncer(time.Hour)
	d.Add(Event{Path: "a", Op: OpCreate})
	d.Stop()
	d.Stop()
	d.Add(Event{Path: "b", Op: OpCreate})

	_, ok := <-d.Output()
	assert.False(t, ok)
}

func TestWatcher_Run_IngestsNewFiles(t *testing.T) {
	// Given: a watcher on an empty folder
	dir := t.TempDir()
	p := newPipeline(t, 1)

	batches := make(chan *Report, 4)
	w := &Watcher{
		Pipeline: p,
		Debounce: 50 * time.Millisecond,
		OnBatch: func(r *Report, err error) {
			assert.NoError(t, err)
			batches <- r
		},
		ready: make(chan struct{}),
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, dir) }()
	<-w.ready

	// When: an email is dropped into the folder
	writeEmail(t, filepath.Join(dir, "new.eml"), "Fresh", "just arrived")

	// Then: it is ingested
	select {
	case r := <-batches:
		assert.Equal(t, 1, r.Files)
	case <-time.After(5 * time.Second):
		t.Fatal("file was not ingested")
	}
	hits := p.Index.Search("arrived", store.KindAll, 1)
	require.Len(t, hits, 1)
	assert.Equal(t, "Fresh", hits[0].Metadata[store.MetaSubject])

	cancel()
	assert.NoError(t, <-done)
}

func TestWatcher_Run_MissingDir(t *testing.T) {
	w := &Watcher{Pipeline: newPipeline(t, 1)}
	err := w.Run(context.Background(), filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

// startWatcher runs w on dir until the test ends and returns the channel of
// ingested batches.
func startWatcher(t *testing.T, w *Watcher, dir string) <-chan *Report {
	t.Helper()
	batches := make(chan *Report, 8)
	w.OnBatch = func(r *Report, err error) {
		assert.NoError(t, err)
		batches <- r
	}
	w.ready = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, dir) }()
	<-w.ready
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
	})
	return batches
}

func waitBatch(t *testing.T, batches <-chan *Report) *Report {
	t.Helper()
	select {
	case r := <-batches:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("nothing was ingested")
		return nil
	}
}

func TestWatcher_Run_IngestsMovedInDirectory(t *testing.T) {
	// Given: a watched folder and a populated folder elsewhere
	dir := t.TempDir()
	outside := filepath.Join(t.TempDir(), "archive")
	writeEmail(t, filepath.Join(outside, "a.eml"), "Archived", "moved folder content")
	writeEmail(t, filepath.Join(outside, "nested", "b.eml"), "Nested", "deeper folder content")

	p := newPipeline(t, 1)
	batches := startWatcher(t, &Watcher{Pipeline: p, Debounce: 50 * time.Millisecond, Settle: 100 * time.Millisecond}, dir)

	// When: the folder is moved in
	require.NoError(t, os.Rename(outside, filepath.Join(dir, "archive")))

	// Then: the files already inside it are ingested
	r := waitBatch(t, batches)
	assert.Equal(t, 2, r.Files)
	assert.Equal(t, []string{"Archived", "Nested"}, insertionOrder(p.Index))
}

func TestWatcher_Run_WaitsForSlowWriter(t *testing.T) {
	// Given: a watcher with a short debounce
	dir := t.TempDir()
	p := newPipeline(t, 1)
	batches := startWatcher(t, &Watcher{Pipeline: p, Debounce: 50 * time.Millisecond, Settle: 500 * time.Millisecond}, dir)

	// When: a file is written in two halves with a pause between them
	path := filepath.Join(dir, "slow.eml")
	f, err := os.Create(path)
	require.NoError(t, err)
	_, err = f.WriteString("From: a@example.com\r\nSubject: Slow\r\n\r\nfirsthalf")
	require.NoError(t, err)
	time.Sleep(300 * time.Millisecond)
	_, err = f.WriteString(" secondhalf\r\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	// Then: it is ingested once, complete
	r := waitBatch(t, batches)
	assert.Equal(t, 1, r.Files)
	require.Equal(t, 1, p.Index.Len())
	hits := p.Index.Search("secondhalf", store.KindAll, 1)
	require.Len(t, hits, 1)
	assert.Contains(t, hits[0].Text, "firsthalf secondhalf")
}

func TestWatcher_Run_SkipsPreexistingFiles(t *testing.T) {
	// Given: a file that exists before watching starts
	dir := t.TempDir()
	old := filepath.Join(dir, "old.eml")
	writeEmail(t, old, "Old", "already here")

	p := newPipeline(t, 1)
	batches := startWatcher(t, &Watcher{Pipeline: p, Debounce: 20 * time.Millisecond, Settle: 50 * time.Millisecond}, dir)

	// When: it is rewritten and a new file arrives afterwards
	writeEmail(t, old, "Old", "already here, edited")
	time.Sleep(300 * time.Millisecond)
	writeEmail(t, filepath.Join(dir, "new.eml"), "New", "fresh")

	// Then: only the new file is ingested
	r := waitBatch(t, batches)
	assert.Equal(t, 1, r.Files)
	assert.Equal(t, []string{"New"}, insertionOrder(p.Index))
}
