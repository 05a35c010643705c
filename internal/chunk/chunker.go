package chunk

import (
	"strconv"
	"strings"

	"github.com/SakshamDixitSBH/docrag/internal/store"
)

// token is a word of the flattened stream. breakAfter marks the last word
// of a paragraph.
type token struct {
	text       string
	breakAfter bool
}

func flatten(paragraphs []string) []token {
	var stream []token
	for _, p := range paragraphs {
		words := strings.Fields(p)
		if len(words) == 0 {
			continue
		}
		for _, w := range words {
			stream = append(stream, token{text: w})
		}
		stream[len(stream)-1].breakAfter = true
	}
	return stream
}

// Window cuts paragraphs into windows of at most targetSize tokens, where
// consecutive windows share overlapSize tokens. A window is shortened to
// end on a paragraph boundary when that boundary lies past the window's
// midpoint. Sizes are clamped as described on Options.
//
// Paragraph breaks are flags on words, not tokens of their own: they count
// toward neither the target nor the overlap, so a document with fewer than
// targetSize words is always a single window.
//
// Every token of the input appears in at least one window, and windows
// appear in input order.
func Window(paragraphs []string, targetSize, overlapSize int) []string {
	opts := Options{TargetTokens: targetSize, OverlapTokens: overlapSize}.clamp()
	target, overlap := opts.TargetTokens, opts.OverlapTokens

	stream := flatten(paragraphs)
	n := len(stream)
	var windows []string

	for start := 0; start < n; {
		end := min(n, start+target)

		cut := end
		for cut > start && cut < n && !stream[cut-1].breakAfter {
			cut--
		}
		if 2*cut <= 2*start+target {
			cut = end
		}

		words := make([]string, 0, cut-start)
		for _, tok := range stream[start:cut] {
			words = append(words, tok.text)
		}
		if text := strings.Join(words, " "); text != "" {
			windows = append(windows, text)
		}

		if cut >= n {
			break
		}
		start = max(cut-overlap, start+1)
	}
	return windows
}

// Chunker turns segments into index chunks.
type Chunker struct {
	opts Options
}

// New creates a Chunker. Out-of-range sizes are clamped.
func New(opts Options) *Chunker {
	return &Chunker{opts: opts.clamp()}
}

// Options returns the effective (clamped) options.
func (c *Chunker) Options() Options {
	return c.opts
}

// Chunk windows one segment. Each chunk carries a copy of the segment
// metadata plus its zero-based sequence number under "chunk".
func (c *Chunker) Chunk(seg Segment) []store.Chunk {
	windows := Window(SplitParagraphs(seg.Text), c.opts.TargetTokens, c.opts.OverlapTokens)
	chunks := make([]store.Chunk, 0, len(windows))
	for i, text := range windows {
		meta := seg.Metadata.Clone()
		meta[store.MetaChunk] = strconv.Itoa(i)
		chunks = append(chunks, store.Chunk{Text: text, Metadata: meta})
	}
	return chunks
}

// ChunkAll windows each segment in order.
func (c *Chunker) ChunkAll(segs []Segment) []store.Chunk {
	var chunks []store.Chunk
	for _, seg := range segs {
		chunks = append(chunks, c.Chunk(seg)...)
	}
	return chunks
}
