package extract

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/SakshamDixitSBH/docrag/internal/chunk"
	"github.com/SakshamDixitSBH/docrag/internal/errors"
	"github.com/SakshamDixitSBH/docrag/internal/store"
)

// PDFExtractor produces one segment per page that has text.
type PDFExtractor struct{}

// NewPDFExtractor creates a PDF extractor.
func NewPDFExtractor() *PDFExtractor {
	return &PDFExtractor{}
}

// Supports implements Extractor.
func (e *PDFExtractor) Supports(path string) bool {
	return ext(path) == ".pdf"
}

// Extract implements Extractor. Pages are numbered from 1; pages without
// extractable text are skipped.
func (e *PDFExtractor) Extract(ctx context.Context, path string) (segs []chunk.Segment, err error) {
	// The pdf reader panics on some malformed files.
	defer func() {
		if r := recover(); r != nil {
			segs = nil
			err = errors.ExtractionError(path, fmt.Errorf("malformed pdf: %v", r))
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, errors.ExtractionError(path, err)
	}
	defer func() { _ = f.Close() }()

	source := absolute(path)
	for i := 1; i <= r.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, errors.ExtractionError(path, fmt.Errorf("page %d: %w", i, err))
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		segs = append(segs, chunk.Segment{
			Text: text,
			Metadata: store.Metadata{
				store.MetaSourceKind: string(store.KindPDF),
				store.MetaSource:     source,
				store.MetaPage:       strconv.Itoa(i),
			},
		})
	}
	return segs, nil
}
