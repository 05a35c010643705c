package store

import "strings"

// TokenizerVersion identifies the tokenization rules used for stored token
// counts. Bump it whenever Tokenize changes; indexes persisted with another
// version have their counts recomputed on load.
const TokenizerVersion = 1

// Tokenize lowercases text and splits it on whitespace.
// The same function is used at insertion and at query time.
func Tokenize(text string) []string {
	return strings.Fields(strings.ToLower(text))
}

// queryTerm is a distinct query token with its multiplicity.
type queryTerm struct {
	term string
	qf   int
}

// queryTerms returns the distinct tokens of q in first-occurrence order.
// A fixed order keeps floating-point sums identical across calls.
func queryTerms(q string) []queryTerm {
	tokens := Tokenize(q)
	pos := make(map[string]int, len(tokens))
	terms := make([]queryTerm, 0, len(tokens))
	for _, tok := range tokens {
		if i, ok := pos[tok]; ok {
			terms[i].qf++
			continue
		}
		pos[tok] = len(terms)
		terms = append(terms, queryTerm{term: tok, qf: 1})
	}
	return terms
}

// termFrequencies counts occurrences of each token.
func termFrequencies(tokens []string) map[string]int {
	tf := make(map[string]int, len(tokens))
	for _, tok := range tokens {
		tf[tok]++
	}
	return tf
}
