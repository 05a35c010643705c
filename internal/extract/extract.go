// Package extract turns source files (PDFs, email exports) into text
// segments carrying provenance metadata.
package extract

import (
	"context"
	"path/filepath"
	"slices"
	"strings"

	"github.com/SakshamDixitSBH/docrag/internal/chunk"
	"github.com/SakshamDixitSBH/docrag/internal/errors"
)

// Extractor reads one file into segments.
type Extractor interface {
	// Extract returns the segments of the file at path. Failures are
	// reported as extraction errors naming the path.
	Extract(ctx context.Context, path string) ([]chunk.Segment, error)

	// Supports reports whether the extractor handles path, by extension.
	Supports(path string) bool
}

// unsupportedExts are formats recognised but not readable. They are
// reported instead of being silently skipped.
var unsupportedExts = []string{".msg", ".pst"}

// Set dispatches files to the first extractor that supports them.
type Set []Extractor

// Default returns the PDF and email extractors.
func Default() Set {
	return Set{NewPDFExtractor(), NewEmailExtractor()}
}

// For returns the extractor for path, or nil.
func (s Set) For(path string) Extractor {
	for _, e := range s {
		if e.Supports(path) {
			return e
		}
	}
	return nil
}

// Supports reports whether any extractor in the set handles path.
func (s Set) Supports(path string) bool {
	return s.For(path) != nil
}

// Extract runs the matching extractor, or fails with an unsupported
// format error.
func (s Set) Extract(ctx context.Context, path string) ([]chunk.Segment, error) {
	e := s.For(path)
	if e == nil {
		return nil, errors.UnsupportedFormatError(path)
	}
	return e.Extract(ctx, path)
}

// Recognized reports whether path has an extension the set either reads
// or explicitly rejects. Directory walks use it to pick files.
func (s Set) Recognized(path string) bool {
	return s.Supports(path) || slices.Contains(unsupportedExts, ext(path))
}

func ext(path string) string {
	return strings.ToLower(filepath.Ext(path))
}

// absolute resolves path for the "source" metadata key, falling back to
// the cleaned input.
func absolute(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}
