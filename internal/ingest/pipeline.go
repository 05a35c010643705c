// Package ingest feeds source files through extraction and chunking into
// the lexical index.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/SakshamDixitSBH/docrag/internal/chunk"
	"github.com/SakshamDixitSBH/docrag/internal/errors"
	"github.com/SakshamDixitSBH/docrag/internal/extract"
	"github.com/SakshamDixitSBH/docrag/internal/store"
)

// Pipeline extracts, chunks and indexes files.
type Pipeline struct {
	Index      *store.Index
	Chunker    *chunk.Chunker
	Extractors extract.Set

	// Workers bounds parallel extraction. Values below 1 mean GOMAXPROCS.
	Workers int

	Logger *slog.Logger

	// OnPlan, if set, is called once with the number of files to
	// extract, before extraction starts.
	OnPlan func(files int)

	// OnFile, if set, is called after each file is extracted, in
	// completion order. It must be safe for concurrent use.
	OnFile func(FileResult)
}

// FileResult is the outcome of extracting one file.
type FileResult struct {
	Path   string
	Chunks int
	Err    error
}

// FileError records a file that could not be ingested.
type FileError struct {
	Path string
	Err  error
}

func (e FileError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

// MarshalJSON renders the error as {"path": ..., "error": ...}.
func (e FileError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Path  string `json:"path"`
		Error string `json:"error"`
	}{e.Path, e.Err.Error()})
}

// Report summarizes a pipeline run.
type Report struct {
	Files  int                `json:"files"`
	Chunks int                `json:"chunks"`
	ByKind map[store.Kind]int `json:"by_kind"`
	Errors []FileError        `json:"errors,omitempty"`
}

// Run ingests paths. Directories are walked in lexical order and only
// files with a recognized extension are picked up; files named
// explicitly are always attempted. Extraction runs in parallel but chunks
// are added with a single Index.Add in path order. Per-file failures are
// collected in the report; index failures abort the run.
func (p *Pipeline) Run(ctx context.Context, paths ...string) (*Report, error) {
	if p.Index == nil || p.Chunker == nil {
		return nil, errors.InternalError("pipeline is missing its index or chunker", nil)
	}
	logger := p.logger()

	report := &Report{ByKind: make(map[store.Kind]int)}
	files, walkErrs := p.expand(paths)
	report.Errors = append(report.Errors, walkErrs...)
	if p.OnPlan != nil {
		p.OnPlan(len(files))
	}
	if len(files) == 0 {
		return report, nil
	}

	results := make([][]store.Chunk, len(files))
	fileErrs := make([]error, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers())
	for i, path := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			segs, err := p.Extractors.Extract(gctx, path)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				fileErrs[i] = err
			} else {
				results[i] = p.Chunker.ChunkAll(segs)
			}
			if p.OnFile != nil {
				p.OnFile(FileResult{Path: path, Chunks: len(results[i]), Err: err})
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []store.Chunk
	for i, path := range files {
		if err := fileErrs[i]; err != nil {
			logger.Warn("ingest_file_failed", append([]any{"path", path}, errors.LogAttrs(err)...)...)
			report.Errors = append(report.Errors, FileError{Path: path, Err: err})
			continue
		}
		report.Files++
		for _, c := range results[i] {
			report.ByKind[c.Metadata.Kind()]++
		}
		all = append(all, results[i]...)
		logger.Debug("ingest_file_done", "path", path, "chunks", len(results[i]))
	}
	report.Chunks = len(all)

	if err := p.Index.Add(ctx, all); err != nil {
		return report, err
	}

	logger.Info("ingest_completed",
		"files", report.Files,
		"chunks", report.Chunks,
		"errors", len(report.Errors),
		"entries", p.Index.Len(),
	)
	return report, nil
}

// expand resolves paths into the sorted list of files to extract. A file
// reached through several spellings of its path is kept once, under the
// first spelling seen.
func (p *Pipeline) expand(paths []string) ([]string, []FileError) {
	var (
		files []string
		errs  []FileError
		seen  = make(map[string]bool)
	)
	add := func(path string) {
		key := filepath.Clean(path)
		if abs, err := filepath.Abs(path); err == nil {
			key = abs
		}
		if !seen[key] {
			seen[key] = true
			files = append(files, path)
		}
	}

	for _, root := range paths {
		info, err := os.Stat(root)
		if err != nil {
			errs = append(errs, FileError{Path: root, Err: errors.New(errors.ErrCodeInvalidPath, "cannot read path", err)})
			continue
		}
		if !info.IsDir() {
			add(root)
			continue
		}

		var found []string
		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				errs = append(errs, FileError{Path: path, Err: errors.New(errors.ErrCodeInvalidPath, "cannot read path", err)})
				if d != nil && d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
			if d.IsDir() {
				if path != root && strings.HasPrefix(d.Name(), ".") {
					return fs.SkipDir
				}
				return nil
			}
			if p.Extractors.Recognized(path) {
				found = append(found, path)
			}
			return nil
		})
		if err != nil {
			errs = append(errs, FileError{Path: root, Err: err})
		}
		slices.Sort(found)
		for _, path := range found {
			add(path)
		}
	}
	return files, errs
}

func (p *Pipeline) workers() int {
	if p.Workers > 0 {
		return p.Workers
	}
	return runtime.GOMAXPROCS(0)
}

func (p *Pipeline) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}
