package chunk

import (
	"regexp"
	"strings"
)

var (
	// Horizontal whitespace, including NBSP and other space separators.
	horizontalSpace = regexp.MustCompile(`[\p{Zs}\t\v\f\r]+`)

	spaceBeforeNewline = regexp.MustCompile(` +\n`)

	paragraphBreak = regexp.MustCompile(`\n{2,}`)
)

// Normalize collapses horizontal whitespace runs to one space, removes
// spaces before newlines and trims the result. Newlines are kept, so
// paragraph breaks survive. Normalize(Normalize(s)) == Normalize(s).
func Normalize(text string) string {
	text = horizontalSpace.ReplaceAllString(text, " ")
	text = spaceBeforeNewline.ReplaceAllString(text, "\n")
	return strings.TrimSpace(text)
}

// SplitParagraphs normalizes text and splits it on blank lines.
// Empty paragraphs are dropped.
func SplitParagraphs(text string) []string {
	text = Normalize(text)
	if text == "" {
		return nil
	}
	parts := paragraphBreak.Split(text, -1)
	paragraphs := make([]string, 0, len(parts))
	for _, part := range parts {
		if p := strings.TrimSpace(part); p != "" {
			paragraphs = append(paragraphs, p)
		}
	}
	return paragraphs
}
