package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"lowercases", "The Quick FOX", []string{"the", "quick", "fox"}},
		{"mixed whitespace", "a\tb\n\nc  d", []string{"a", "b", "c", "d"}},
		{"punctuation kept", "fox, dog.", []string{"fox,", "dog."}},
		{"blank", "   ", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Tokenize(tt.in)
			if len(tt.want) == 0 {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestQueryTerms_FirstOccurrenceOrder(t *testing.T) {
	terms := queryTerms("dog Quick dog fox quick dog")
	assert.Equal(t, []queryTerm{
		{term: "dog", qf: 3},
		{term: "quick", qf: 2},
		{term: "fox", qf: 1},
	}, terms)
}

func TestBM25_TermScore(t *testing.T) {
	p := DefaultBM25()

	// Average-length document, single occurrence: (1*2.5)/(1+1.5) = 1
	assert.InDelta(t, 1.0, p.termScore(1, 4, 4), 1e-12)

	// Saturation: more occurrences score higher but below k1+1
	two := p.termScore(2, 4, 4)
	assert.Greater(t, two, 1.0)
	assert.Less(t, p.termScore(100, 4, 4), p.K1+1)

	// Longer documents score lower for the same frequency
	assert.Less(t, p.termScore(1, 8, 4), p.termScore(1, 2, 4))

	// Zero avgdl or absent term disables scoring
	assert.Equal(t, 0.0, p.termScore(1, 4, 0))
	assert.Equal(t, 0.0, p.termScore(0, 4, 4))
}

func TestAverageLength(t *testing.T) {
	assert.Equal(t, 0.0, averageLength(nil))
	assert.InDelta(t, 2.5, averageLength([]int{1, 2, 3, 4}), 1e-12)
}

func TestPostings_Add(t *testing.T) {
	p := make(postings)
	p.add(0, Tokenize("a b a"))
	p.add(1, Tokenize("b c"))

	assert.Equal(t, []posting{{entry: 0, tf: 2}}, p["a"])
	assert.Equal(t, []posting{{entry: 0, tf: 1}, {entry: 1, tf: 1}}, p["b"])
	assert.Equal(t, []posting{{entry: 1, tf: 1}}, p["c"])
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		in      string
		want    Kind
		wantErr bool
	}{
		{"", KindAll, false},
		{"all", KindAll, false},
		{"PDF", KindPDF, false},
		{" email ", KindEmail, false},
		{"msg", "", true},
	}
	for _, tt := range tests {
		got, err := ParseKind(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		assert.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestKind_Matches(t *testing.T) {
	pdf := Metadata{MetaSourceKind: "pdf"}
	assert.True(t, KindAll.Matches(pdf))
	assert.True(t, KindPDF.Matches(pdf))
	assert.False(t, KindEmail.Matches(pdf))
	assert.True(t, KindAll.Matches(nil))
	assert.False(t, KindAll.Valid())
	assert.True(t, KindEmail.Valid())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "ready", StateReady.String())
	assert.Equal(t, "degraded", StateDegraded.String())
	assert.Equal(t, "state(9)", State(9).String())
}
