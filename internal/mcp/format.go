package mcp

import (
	"fmt"
	"strings"

	"github.com/SakshamDixitSBH/docrag/internal/answer"
	"github.com/SakshamDixitSBH/docrag/internal/store"
)

// FormatSearchResults formats hits as markdown for clients that only read
// text content.
func FormatSearchResults(query string, hits []store.Hit) string {
	if len(hits) == 0 {
		return fmt.Sprintf("No results found for \"%s\"", query)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Search Results for \"%s\"\n\n", query)
	fmt.Fprintf(&sb, "Found %d result", len(hits))
	if len(hits) != 1 {
		sb.WriteString("s")
	}
	sb.WriteString("\n\n")

	for _, h := range hits {
		formatHit(&sb, h)
	}
	return sb.String()
}

// FormatAnswer formats a generated answer followed by its sources.
func FormatAnswer(ans *answer.Answer) string {
	var sb strings.Builder
	sb.WriteString(ans.Text)
	if len(ans.Hits) == 0 {
		return sb.String()
	}
	sb.WriteString("\n\n### Sources\n\n")
	for _, h := range ans.Hits {
		fmt.Fprintf(&sb, "%d. %s %s\n", h.Rank, answer.Citation(h.Metadata), describe(h.Metadata))
	}
	return sb.String()
}

func formatHit(sb *strings.Builder, h store.Hit) {
	fmt.Fprintf(sb, "### %d. %s %s\n", h.Rank, answer.Citation(h.Metadata), describe(h.Metadata))
	fmt.Fprintf(sb, "Score: %.3f\n\n", h.Score)
	sb.WriteString("```\n")
	sb.WriteString(h.Text)
	if !strings.HasSuffix(h.Text, "\n") {
		sb.WriteString("\n")
	}
	sb.WriteString("```\n\n")
}

// describe names the document a chunk came from.
func describe(meta store.Metadata) string {
	if meta.Kind() == store.KindEmail {
		parts := []string{}
		if s := meta[store.MetaSubject]; s != "" {
			parts = append(parts, fmt.Sprintf("%q", s))
		}
		if f := meta[store.MetaFrom]; f != "" {
			parts = append(parts, "from "+f)
		}
		if d := meta[store.MetaSentAt]; d != "" {
			parts = append(parts, d)
		}
		return strings.Join(parts, ", ")
	}
	return meta[store.MetaSource]
}

func toResultOutputs(hits []store.Hit) []SearchResultOutput {
	out := make([]SearchResultOutput, 0, len(hits))
	for _, h := range hits {
		out = append(out, SearchResultOutput{
			Rank:     h.Rank,
			Text:     h.Text,
			Citation: answer.Citation(h.Metadata),
			Score:    h.Score,
			Distance: h.Distance,
			Metadata: h.Metadata,
		})
	}
	return out
}
