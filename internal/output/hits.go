package output

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/SakshamDixitSBH/docrag/internal/store"
)

// snippetWidth is the number of characters of chunk text shown per hit.
const snippetWidth = 240

// Provenance describes where a chunk came from, e.g.
// "report.pdf p.3" or "Re: invoice (alice@example.com)".
func Provenance(meta store.Metadata) string {
	switch meta.Kind() {
	case store.KindPDF:
		name := filepath.Base(meta[store.MetaSource])
		if page := meta[store.MetaPage]; page != "" {
			return fmt.Sprintf("%s p.%s", name, page)
		}
		return name
	case store.KindEmail:
		subject := meta[store.MetaSubject]
		if subject == "" {
			subject = "(no subject)"
		}
		if from := meta[store.MetaFrom]; from != "" {
			return fmt.Sprintf("%s (%s)", subject, from)
		}
		return subject
	default:
		return meta[store.MetaSource]
	}
}

// Snippet collapses whitespace and truncates text to width runes.
func Snippet(text string, width int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if width <= 0 || len(runes) <= width {
		return text
	}
	return string(runes[:width-1]) + "…"
}

// Hits prints ranked search results.
func (w *Writer) Hits(query string, hits []store.Hit) {
	if len(hits) == 0 {
		w.Warningf("No results for %q", query)
		return
	}
	for _, h := range hits {
		rank := w.styles.Rank.Render(fmt.Sprintf("%2d.", h.Rank))
		kind := w.styles.Source.Render(fmt.Sprintf("[%s]", h.Metadata.Kind()))
		score := w.styles.Dim.Render(fmt.Sprintf("score %.3f", h.Score))
		_, _ = fmt.Fprintf(w.out, "%s %s %s  %s\n", rank, kind, Provenance(h.Metadata), score)
		_, _ = fmt.Fprintf(w.out, "    %s\n", Snippet(h.Text, snippetWidth))
	}
}

// Stats prints an index summary.
func (w *Writer) Stats(s store.Stats) {
	w.Header("Index")
	w.KeyValue("Backend", s.Backend)
	if s.Location != "" {
		w.KeyValue("Location", s.Location)
	}
	w.KeyValue("State", s.State)
	w.KeyValue("Entries", s.Entries)
	w.KeyValue("PDF chunks", s.ByKind[store.KindPDF])
	w.KeyValue("Email chunks", s.ByKind[store.KindEmail])
	w.KeyValue("Avg length", fmt.Sprintf("%.1f tokens", s.AvgDocLength))
	w.KeyValue("Generation", s.Generation)
}

// JSON writes v as indented JSON.
func (w *Writer) JSON(v any) error {
	enc := json.NewEncoder(w.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
