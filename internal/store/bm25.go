package store

// BM25 parameters.
const (
	DefaultK1 = 1.5
	DefaultB  = 0.75
)

// BM25 holds the scoring parameters. The index scores without an IDF
// factor: every matching term contributes only its saturated, length
// normalized frequency, weighted by how often it appears in the query.
type BM25 struct {
	K1 float64
	B  float64
}

// DefaultBM25 returns the standard parameters (k1=1.5, b=0.75).
func DefaultBM25() BM25 {
	return BM25{K1: DefaultK1, B: DefaultB}
}

// termScore returns the contribution of one term occurring tf times in a
// document of docLen tokens. A zero avgdl disables scoring.
func (p BM25) termScore(tf, docLen int, avgdl float64) float64 {
	if tf <= 0 || avgdl <= 0 {
		return 0
	}
	f := float64(tf)
	norm := p.K1 * (1 - p.B + p.B*float64(docLen)/avgdl)
	return f * (p.K1 + 1) / (f + norm)
}

// posting records that a term occurs tf times in entry.
type posting struct {
	entry int
	tf    int
}

// postings maps a term to the entries containing it, in insertion order.
type postings map[string][]posting

// add indexes the tokens of one entry.
func (p postings) add(entry int, tokens []string) {
	for term, tf := range termFrequencies(tokens) {
		p[term] = append(p[term], posting{entry: entry, tf: tf})
	}
}

// averageLength returns the mean of counts, or 0 for an empty slice.
func averageLength(counts []int) float64 {
	if len(counts) == 0 {
		return 0
	}
	total := 0
	for _, c := range counts {
		total += c
	}
	return float64(total) / float64(len(counts))
}
