package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/SakshamDixitSBH/docrag/internal/extract"
	"github.com/SakshamDixitSBH/docrag/internal/ingest"
	"github.com/SakshamDixitSBH/docrag/internal/output"
	"github.com/SakshamDixitSBH/docrag/internal/store"
	"github.com/SakshamDixitSBH/docrag/internal/ui"
)

type ingestOptions struct {
	pdfs    []string
	emails  []string
	watch   bool
	jsonOut bool
	quiet   bool
}

// ingestGroup is a set of paths ingested with one extractor set.
type ingestGroup struct {
	paths      []string
	extractors extract.Set
}

func newIngestCmd() *cobra.Command {
	opts := &ingestOptions{}

	cmd := &cobra.Command{
		Use:   "ingest [paths...]",
		Short: "Add PDFs and email to the index",
		Long: `Extract, chunk and index files.

Directories are walked recursively, skipping hidden directories, and every
file with a recognized extension (.pdf, .eml, .mbox) is picked up. Files
named explicitly are always attempted. Use --pdf or --email to restrict a
path to one source kind.

The index is append-only: ingesting the same file twice adds it twice.
Use 'docrag reset' to start over.

With --watch, docrag keeps running after the initial pass and ingests new
files created under the given directories.`,
		Example: `  docrag ingest ./docs
  docrag ingest --pdf ./contracts --email ./mail/archive.mbox
  docrag ingest ./inbox --watch`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd.Context(), cmd, args, opts)
		},
	}

	cmd.Flags().StringArrayVar(&opts.pdfs, "pdf", nil, "PDF file or directory of PDFs (repeatable)")
	cmd.Flags().StringArrayVar(&opts.emails, "email", nil, "Email file (.eml, .mbox) or directory of them (repeatable)")
	cmd.Flags().BoolVarP(&opts.watch, "watch", "w", false, "Keep watching directories for new files")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "Print the ingest report as JSON")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "Only print the summary")

	return cmd
}

func runIngest(ctx context.Context, cmd *cobra.Command, args []string, opts *ingestOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	out := output.New(cmd.OutOrStdout())

	groups := []ingestGroup{
		{paths: args, extractors: extract.Default()},
		{paths: opts.pdfs, extractors: extract.Set{extract.NewPDFExtractor()}},
		{paths: opts.emails, extractors: extract.Set{extract.NewEmailExtractor()}},
	}
	total := len(args) + len(opts.pdfs) + len(opts.emails)
	if total == 0 {
		return fmt.Errorf("no paths given: pass files or directories, or use --pdf/--email")
	}

	proj, err := loadProject()
	if err != nil {
		return err
	}
	ix, err := proj.openIndex(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = ix.Close() }()

	var renderer ui.Renderer = nopRenderer{}
	if !opts.quiet && !opts.jsonOut {
		renderer = ui.NewRenderer(ui.Config{
			Output:  cmd.OutOrStdout(),
			NoColor: output.DetectNoColor(),
			Title:   "docrag ingest • " + proj.Root,
		})
	}
	progress := newIngestProgress(renderer)
	if err := renderer.Start(ctx); err != nil {
		return err
	}

	started := time.Now()
	report := &ingest.Report{ByKind: make(map[store.Kind]int)}
	for _, g := range groups {
		if len(g.paths) == 0 {
			continue
		}
		p := proj.pipeline(ix, g.extractors)
		p.OnPlan = progress.plan
		p.OnFile = progress.file
		r, err := p.Run(ctx, g.paths...)
		if r != nil {
			mergeReports(report, r)
		}
		if err != nil {
			_ = renderer.Stop()
			return err
		}
	}

	renderer.Complete(ui.CompletionStats{
		Files:    report.Files,
		Chunks:   report.Chunks,
		Errors:   len(report.Errors),
		Duration: time.Since(started),
	})
	_ = renderer.Stop()

	if opts.jsonOut {
		if err := out.JSON(report); err != nil {
			return err
		}
	} else {
		printReport(out, report, ix, progress.reported)
	}

	if !opts.watch {
		return nil
	}
	return runWatch(ctx, out, proj, ix, groups)
}

func mergeReports(dst, src *ingest.Report) {
	dst.Files += src.Files
	dst.Chunks += src.Chunks
	for k, n := range src.ByKind {
		dst.ByKind[k] += n
	}
	dst.Errors = append(dst.Errors, src.Errors...)
}

// printReport prints the summary. Errors already shown by the renderer
// are only counted.
func printReport(out *output.Writer, r *ingest.Report, ix *store.Index, reported map[string]bool) {
	out.Newline()
	if r.Files == 0 && len(r.Errors) == 0 {
		out.Warning("No supported files found")
		return
	}
	out.Successf("Ingested %d file(s), %d chunk(s)", r.Files, r.Chunks)
	for _, kind := range []store.Kind{store.KindPDF, store.KindEmail} {
		if n := r.ByKind[kind]; n > 0 {
			out.KeyValue(string(kind)+" chunks", n)
		}
	}
	out.KeyValue("index entries", ix.Len())
	for _, fe := range r.Errors {
		if !reported[fe.Path] {
			out.Errorf("%s: %v", fe.Path, fe.Err)
		}
	}
	if len(r.Errors) > 0 {
		out.Warningf("%d file(s) failed", len(r.Errors))
	}
}

// ingestProgress feeds pipeline callbacks from every group into one
// renderer.
type ingestProgress struct {
	mu       sync.Mutex
	renderer ui.Renderer
	planned  int
	done     int
	reported map[string]bool
}

func newIngestProgress(r ui.Renderer) *ingestProgress {
	return &ingestProgress{renderer: r, reported: make(map[string]bool)}
}

func (p *ingestProgress) plan(files int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.planned += files
	p.renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageExtracting, Current: p.done, Total: p.planned})
}

func (p *ingestProgress) file(r ingest.FileResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done++
	if r.Err != nil {
		p.reported[r.Path] = true
		p.renderer.AddError(ui.ErrorEvent{File: r.Path, Err: r.Err})
		p.renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageExtracting, Current: p.done, Total: p.planned})
		return
	}
	p.renderer.UpdateProgress(ui.ProgressEvent{
		Stage:       ui.StageExtracting,
		Current:     p.done,
		Total:       p.planned,
		CurrentFile: r.Path,
		Chunks:      r.Chunks,
	})
}

// nopRenderer discards progress for --quiet and --json.
type nopRenderer struct{}

func (nopRenderer) Start(context.Context) error      { return nil }
func (nopRenderer) UpdateProgress(ui.ProgressEvent) {}
func (nopRenderer) AddError(ui.ErrorEvent)          {}
func (nopRenderer) Complete(ui.CompletionStats)     {}
func (nopRenderer) Stop() error                     { return nil }

// runWatch watches the directories among the ingested paths until
// interrupted. Each group keeps its own extractor set.
func runWatch(ctx context.Context, out *output.Writer, proj *project, ix *store.Index, groups []ingestGroup) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var mu sync.Mutex
	onBatch := func(r *ingest.Report, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			out.Errorf("watch ingest failed: %v", err)
			return
		}
		out.Successf("Ingested %d new file(s), %d chunk(s)", r.Files, r.Chunks)
		for _, fe := range r.Errors {
			out.Errorf("%s: %v", fe.Path, fe.Err)
		}
	}

	eg, egctx := errgroup.WithContext(ctx)
	watching := 0
	for _, grp := range groups {
		dirs := directories(grp.paths)
		if len(dirs) == 0 {
			continue
		}
		w := &ingest.Watcher{
			Pipeline: proj.pipeline(ix, grp.extractors),
			Debounce: proj.Config.WatchDebounce(),
			Settle:   proj.Config.WatchSettle(),
			Logger:   slog.Default(),
			OnBatch:  onBatch,
		}
		eg.Go(func() error { return w.Run(egctx, dirs...) })
		watching += len(dirs)
	}
	if watching == 0 {
		return fmt.Errorf("--watch needs at least one directory")
	}

	out.Statusf("👀", "Watching %d dir(s) for new files (Ctrl+C to stop)", watching)
	return eg.Wait()
}

func directories(paths []string) []string {
	var dirs []string
	for _, p := range paths {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			dirs = append(dirs, p)
		}
	}
	return dirs
}
