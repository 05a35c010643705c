package answer

import (
	"fmt"
	"strings"

	"github.com/SakshamDixitSBH/docrag/internal/store"
)

// SystemPrompt frames the model as a grounded assistant.
const SystemPrompt = "You are a precise assistant that answers questions about policy documents and email correspondence."

// Citation returns the inline source tag for a chunk, e.g. "[pdf p.3]"
// or "[email]".
func Citation(meta store.Metadata) string {
	kind := string(meta.Kind())
	if kind == "" {
		kind = "unknown"
	}
	if page := meta[store.MetaPage]; page != "" {
		return fmt.Sprintf("[%s p.%s]", kind, page)
	}
	return fmt.Sprintf("[%s]", kind)
}

// BuildPrompt renders the question and the first topN hits as a prompt
// that restricts the model to the given context. topN < 1 uses all hits.
func BuildPrompt(question string, hits []store.Hit, topN int) string {
	if topN < 1 || topN > len(hits) {
		topN = len(hits)
	}

	blocks := make([]string, 0, topN)
	for _, h := range hits[:topN] {
		blocks = append(blocks, Citation(h.Metadata)+" "+h.Text)
	}

	var sb strings.Builder
	sb.WriteString("Use ONLY the context below to answer the question. If the answer is not clearly supported,\n")
	sb.WriteString("say you cannot answer based on the available documents and emails.\n\n")
	sb.WriteString("Question: ")
	sb.WriteString(strings.TrimSpace(question))
	sb.WriteString("\n\nContext:\n")
	sb.WriteString(strings.Join(blocks, "\n\n"))
	sb.WriteString("\n\nAnswer with:\n")
	sb.WriteString("  - A concise answer in 2-4 sentences.\n")
	sb.WriteString("  - Cite sources inline like [pdf p.X] or [email] when relevant.\n")
	return sb.String()
}
