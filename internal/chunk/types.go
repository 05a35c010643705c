// Package chunk splits extracted text into overlapping, paragraph-aware
// windows ready for the lexical index.
package chunk

import "github.com/SakshamDixitSBH/docrag/internal/store"

// Window size defaults, in whitespace tokens.
const (
	DefaultTargetTokens  = 180
	DefaultOverlapTokens = 40
)

// Segment is one unit of extracted text (a PDF page, an email message)
// with the metadata every chunk cut from it inherits.
type Segment struct {
	Text     string
	Metadata store.Metadata
}

// Options configures a Chunker.
type Options struct {
	// TargetTokens is the maximum window size. Values below 1 mean
	// DefaultTargetTokens.
	TargetTokens int

	// OverlapTokens is how many tokens consecutive windows share.
	// Negative values mean 0; values >= TargetTokens mean TargetTokens-1.
	OverlapTokens int
}

// DefaultOptions returns the default window sizes (180/40).
func DefaultOptions() Options {
	return Options{TargetTokens: DefaultTargetTokens, OverlapTokens: DefaultOverlapTokens}
}

// clamp applies the size rules documented on Options.
func (o Options) clamp() Options {
	if o.TargetTokens < 1 {
		o.TargetTokens = DefaultTargetTokens
	}
	if o.OverlapTokens < 0 {
		o.OverlapTokens = 0
	}
	if o.OverlapTokens >= o.TargetTokens {
		o.OverlapTokens = o.TargetTokens - 1
	}
	return o
}
