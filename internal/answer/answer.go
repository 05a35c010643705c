// Package answer generates grounded answers from retrieved chunks with an
// OpenAI-compatible chat model.
package answer

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/SakshamDixitSBH/docrag/internal/errors"
	"github.com/SakshamDixitSBH/docrag/internal/store"
)

// NoContext is the answer given when retrieval finds nothing.
const NoContext = "No context found."

// Searcher ranks stored chunks against a query.
type Searcher interface {
	Search(query string, kind store.Kind, k int) []store.Hit
}

// Generator completes a prompt.
type Generator interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

// Answer is a generated answer with the hits it was grounded on.
type Answer struct {
	Question string      `json:"question"`
	Text     string      `json:"answer"`
	Hits     []store.Hit `json:"hits"`
}

// Service retrieves context and asks the generator.
type Service struct {
	Searcher  Searcher
	Generator Generator

	// ContextHits caps how many hits go into the prompt.
	ContextHits int

	// Timeout bounds a single generation, retries included. Zero means no
	// limit beyond ctx.
	Timeout time.Duration

	Logger *slog.Logger
}

// Ask answers question from the top k hits of the given kind. When no
// hits are found the generator is not called and the answer is NoContext.
func (s *Service) Ask(ctx context.Context, question string, kind store.Kind, k int) (*Answer, error) {
	if strings.TrimSpace(question) == "" {
		return nil, errors.New(errors.ErrCodeInvalidQuery, "question is empty", nil)
	}

	hits := s.Searcher.Search(question, kind, k)
	ans := &Answer{Question: question, Hits: hits}
	if len(hits) == 0 {
		ans.Text = NoContext
		return ans, nil
	}

	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	prompt := BuildPrompt(question, hits, s.ContextHits)
	start := time.Now()
	text, err := s.Generator.Generate(ctx, SystemPrompt, prompt)
	if err != nil {
		s.logger().Error("answer_failed", errors.LogAttrs(err)...)
		return nil, err
	}
	s.logger().Info("answer_generated",
		"hits", len(hits),
		"prompt_chars", len(prompt),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	ans.Text = strings.TrimSpace(text)
	return ans, nil
}

func (s *Service) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
