package cmd

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/SakshamDixitSBH/docrag/internal/answer"
	"github.com/SakshamDixitSBH/docrag/internal/chunk"
	"github.com/SakshamDixitSBH/docrag/internal/config"
	"github.com/SakshamDixitSBH/docrag/internal/errors"
	"github.com/SakshamDixitSBH/docrag/internal/extract"
	"github.com/SakshamDixitSBH/docrag/internal/ingest"
	"github.com/SakshamDixitSBH/docrag/internal/store"
)

// project is the resolved project root and its configuration.
type project struct {
	Root   string
	Config *config.Config
}

// projectRoot returns --config-dir, or the project root discovered from
// the working directory.
func projectRoot() (string, error) {
	root := configDir
	if root == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", errors.InternalError("failed to get working directory", err)
		}
		root, err = config.FindProjectRoot(cwd)
		if err != nil {
			return "", errors.New(errors.ErrCodeInvalidPath, "failed to find project root", err)
		}
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", errors.New(errors.ErrCodeInvalidPath, "invalid project directory", err)
	}
	return abs, nil
}

// loadProject resolves the project root and loads its configuration.
func loadProject() (*project, error) {
	root, err := projectRoot()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(root)
	if err != nil {
		return nil, errors.ConfigError("failed to load configuration", err).
			WithSuggestion("check " + filepath.Join(root, config.ProjectFile) + " and " + config.GetUserConfigPath())
	}
	return &project{Root: root, Config: cfg}, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// openIndex opens the project's index with the configured backend.
func (p *project) openIndex(ctx context.Context) (*store.Index, error) {
	backend, err := store.ParseBackend(p.Config.Index.Backend)
	if err != nil {
		return nil, err
	}
	cacheSize := p.Config.Index.CacheSize
	if cacheSize < 0 {
		cacheSize = 0
	}
	return store.Open(ctx, store.Options{
		Dir:       p.Config.IndexDir(p.Root),
		Backend:   backend,
		CacheSize: cacheSize,
		Logger:    slog.Default(),
	})
}

// pipeline builds an ingestion pipeline over ix using extractors.
func (p *project) pipeline(ix *store.Index, extractors extract.Set) *ingest.Pipeline {
	return &ingest.Pipeline{
		Index: ix,
		Chunker: chunk.New(chunk.Options{
			TargetTokens:  p.Config.Chunking.TargetTokens,
			OverlapTokens: p.Config.Chunking.OverlapTokens,
		}),
		Extractors: extractors,
		Workers:    p.Config.Ingest.Workers,
		Logger:     slog.Default(),
	}
}

// answerService wires the configured generator to ix.
func (p *project) answerService(ix *store.Index) (*answer.Service, error) {
	gen, err := answer.NewOpenAIGenerator(answer.OpenAIConfig{
		Model:     p.Config.Answer.Model,
		BaseURL:   p.Config.Answer.BaseURL,
		APIKeyEnv: p.Config.Answer.APIKeyEnv,
		Retry:     errors.DefaultRetryConfig(),
	})
	if err != nil {
		return nil, err
	}
	return &answer.Service{
		Searcher:    ix,
		Generator:   gen,
		ContextHits: p.Config.Answer.ContextHits,
		Timeout:     p.Config.AnswerTimeout(),
		Logger:      slog.Default(),
	}, nil
}

// resolveK returns k when the flag was given, else the configured default.
func (p *project) resolveK(cmd *cobra.Command, k int) int {
	if !cmd.Flags().Changed("k") {
		return p.Config.Search.DefaultK
	}
	return k
}
