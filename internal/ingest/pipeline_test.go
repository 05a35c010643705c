package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SakshamDixitSBH/docrag/internal/chunk"
	"github.com/SakshamDixitSBH/docrag/internal/errors"
	"github.com/SakshamDixitSBH/docrag/internal/extract"
	"github.com/SakshamDixitSBH/docrag/internal/store"
)

func newPipeline(t *testing.T, workers int) *Pipeline {
	t.Helper()
	ix, err := store.Open(context.Background(), store.Options{Backend: store.BackendMemory})
	require.NoError(t, err)
	t.Cleanup(func() { _ = ix.Close() })
	return &Pipeline{
		Index:      ix,
		Chunker:    chunk.New(chunk.DefaultOptions()),
		Extractors: extract.Default(),
		Workers:    workers,
	}
}

func writeEmail(t *testing.T, path, subject, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	msg := fmt.Sprintf("From: a@example.com\r\nSubject: %s\r\n\r\n%s\r\n", subject, body)
	require.NoError(t, os.WriteFile(path, []byte(msg), 0o644))
}

// insertionOrder returns the subjects of all entries in insertion order,
// relying on zero-score hits keeping that order.
func insertionOrder(ix *store.Index) []string {
	var subjects []string
	for _, h := range ix.Search("zzzznomatch", store.KindAll, ix.Len()) {
		subjects = append(subjects, h.Metadata[store.MetaSubject])
	}
	return subjects
}

func TestPipeline_Run_WalksDirectory(t *testing.T) {
	// Given: a folder with emails, an unreadable format, an unrelated file
	// and a hidden directory
	dir := t.TempDir()
	writeEmail(t, filepath.Join(dir, "a.eml"), "Alpha", "quarterly budget review")
	writeEmail(t, filepath.Join(dir, "sub", "b.eml"), "Beta", "holiday schedule")
	writeEmail(t, filepath.Join(dir, ".cache", "c.eml"), "Hidden", "should not be read")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "old.msg"), []byte("binary"), 0o644))

	p := newPipeline(t, 2)

	// When
	report, err := p.Run(context.Background(), dir)

	// Then: both emails are indexed in path order and the .msg is reported
	require.NoError(t, err)
	assert.Equal(t, 2, report.Files)
	assert.Equal(t, 2, report.Chunks)
	assert.Equal(t, 2, report.ByKind[store.KindEmail])
	require.Len(t, report.Errors, 1)
	assert.Equal(t, filepath.Join(dir, "old.msg"), report.Errors[0].Path)
	assert.Equal(t, errors.ErrCodeUnsupportedFormat, errors.GetCode(report.Errors[0].Err))

	assert.Equal(t, []string{"Alpha", "Beta"}, insertionOrder(p.Index))

	hits := p.Index.Search("budget", store.KindEmail, 1)
	require.Len(t, hits, 1)
	assert.Equal(t, "Alpha", hits[0].Metadata[store.MetaSubject])
	assert.Equal(t, "0", hits[0].Metadata[store.MetaChunk])
}

func TestPipeline_Run_PreservesOrderUnderParallelism(t *testing.T) {
	dir := t.TempDir()
	var want []string
	for i := range 12 {
		subject := fmt.Sprintf("msg-%02d", i)
		want = append(want, subject)
		writeEmail(t, filepath.Join(dir, subject+".eml"), subject, "body text")
	}

	p := newPipeline(t, 4)
	var seen atomic.Int32
	planned := -1
	p.OnPlan = func(files int) { planned = files }
	p.OnFile = func(r FileResult) {
		seen.Add(1)
		assert.NoError(t, r.Err)
		assert.Equal(t, 1, r.Chunks)
	}

	report, err := p.Run(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 12, report.Files)
	assert.Equal(t, int32(12), seen.Load())
	assert.Equal(t, 12, planned)
	assert.Equal(t, want, insertionOrder(p.Index))
}

func TestPipeline_Run_ExplicitPaths(t *testing.T) {
	dir := t.TempDir()
	eml := filepath.Join(dir, "a.eml")
	writeEmail(t, eml, "Alpha", "body")
	txt := filepath.Join(dir, "readme.txt")
	require.NoError(t, os.WriteFile(txt, []byte("x"), 0o644))
	missing := filepath.Join(dir, "missing.pdf")

	p := newPipeline(t, 1)
	report, err := p.Run(context.Background(), eml, eml, txt, missing)
	require.NoError(t, err)

	// The duplicate is ingested once
	assert.Equal(t, 1, report.Files)
	assert.Equal(t, 1, p.Index.Len())

	require.Len(t, report.Errors, 2)
	codes := map[string]string{}
	for _, fe := range report.Errors {
		codes[fe.Path] = errors.GetCode(fe.Err)
	}
	assert.Equal(t, errors.ErrCodeInvalidPath, codes[missing])
	assert.Equal(t, errors.ErrCodeUnsupportedFormat, codes[txt])
}

func TestPipeline_Run_DeduplicatesPathSpellings(t *testing.T) {
	// Given: a folder named once as a directory and once through its file
	// with a redundant path element
	dir := t.TempDir()
	eml := filepath.Join(dir, "a.eml")
	writeEmail(t, eml, "Alpha", "body")

	p := newPipeline(t, 1)

	// When
	report, err := p.Run(context.Background(), dir, dir+string(filepath.Separator)+"."+string(filepath.Separator)+"a.eml")

	// Then: the file is indexed once
	require.NoError(t, err)
	assert.Equal(t, 1, report.Files)
	assert.Equal(t, 1, p.Index.Len())
}

func TestPipeline_Run_NothingToDo(t *testing.T) {
	p := newPipeline(t, 1)
	report, err := p.Run(context.Background(), t.TempDir())
	require.NoError(t, err)
	assert.Zero(t, report.Files)
	assert.Empty(t, report.Errors)
	assert.True(t, p.Index.IsEmpty())
}

func TestPipeline_Run_Cancelled(t *testing.T) {
	dir := t.TempDir()
	writeEmail(t, filepath.Join(dir, "a.eml"), "Alpha", "body")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := newPipeline(t, 1)
	_, err := p.Run(ctx, dir)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, p.Index.IsEmpty())
}

func TestPipeline_Run_RequiresIndex(t *testing.T) {
	p := &Pipeline{Extractors: extract.Default()}
	_, err := p.Run(context.Background(), t.TempDir())
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInternal, errors.GetCode(err))
}

func TestFileError_MarshalJSON(t *testing.T) {
	data, err := json.Marshal(FileError{Path: "a.pdf", Err: fmt.Errorf("boom")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"path":"a.pdf","error":"boom"}`, string(data))
}
