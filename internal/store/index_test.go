package store

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SakshamDixitSBH/docrag/internal/errors"
)

func newMemoryIndex(t *testing.T, cacheSize int) *Index {
	t.Helper()
	ix, err := Open(context.Background(), Options{Backend: BackendMemory, CacheSize: cacheSize})
	require.NoError(t, err)
	t.Cleanup(func() { _ = ix.Close() })
	return ix
}

func quickDogCorpus() []Chunk {
	return []Chunk{
		{Text: "The quick brown fox", Metadata: Metadata{MetaSourceKind: "pdf", MetaSource: "a.pdf", MetaPage: "1"}},
		{Text: "A lazy dog sleeps", Metadata: Metadata{MetaSourceKind: "email", MetaMessageID: "msg-1"}},
		{Text: "The quick dog runs", Metadata: Metadata{MetaSourceKind: "pdf", MetaSource: "a.pdf", MetaPage: "2"}},
	}
}

// TS01: Hand-computed BM25 expectation
func TestIndex_Search_QuickDogScenario(t *testing.T) {
	// Given: three four-token entries, avgdl = 4
	ix := newMemoryIndex(t, 0)
	require.NoError(t, ix.Add(context.Background(), quickDogCorpus()))
	assert.InDelta(t, 4.0, ix.Stats().AvgDocLength, 1e-9)

	// When: searching for "quick dog"
	hits := ix.Search("quick dog", KindAll, 2)

	// Then: the entry matching both terms ranks first with score 2
	require.Len(t, hits, 2)
	assert.Equal(t, "The quick dog runs", hits[0].Text)
	assert.Equal(t, 1, hits[0].Rank)
	assert.InDelta(t, 2.0, hits[0].Score, 1e-9)
	assert.InDelta(t, 1.0/3.0, hits[0].Distance, 1e-9)

	// And: the tie at score 1 is broken by insertion order
	assert.Equal(t, "The quick brown fox", hits[1].Text)
	assert.Equal(t, 2, hits[1].Rank)
	assert.InDelta(t, 1.0, hits[1].Score, 1e-9)

	for _, h := range hits {
		assert.NotEqual(t, "A lazy dog sleeps", h.Text)
	}
}

// TS02: Kind filter applies while walking the ranking
func TestIndex_Search_KindFilter(t *testing.T) {
	ix := newMemoryIndex(t, 0)
	require.NoError(t, ix.Add(context.Background(), quickDogCorpus()))

	pdf := ix.Search("quick dog", KindPDF, 10)
	require.Len(t, pdf, 2)
	for i, h := range pdf {
		assert.Equal(t, KindPDF, h.Metadata.Kind())
		assert.Equal(t, i+1, h.Rank)
	}

	email := ix.Search("quick dog", KindEmail, 10)
	require.Len(t, email, 1)
	assert.Equal(t, "A lazy dog sleeps", email[0].Text)
	assert.Equal(t, 1, email[0].Rank)
}

func TestIndex_Search_ResultBound(t *testing.T) {
	ix := newMemoryIndex(t, 0)
	require.NoError(t, ix.Add(context.Background(), quickDogCorpus()))

	tests := []struct {
		name string
		kind Kind
		k    int
		want int
	}{
		{"k below corpus", KindAll, 1, 1},
		{"k above corpus", KindAll, 10, 3},
		{"k above filtered", KindPDF, 10, 2},
		{"zero k", KindAll, 0, 0},
		{"negative k", KindAll, -3, 0},
		{"unknown kind", Kind("fax"), 10, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hits := ix.Search("quick", tt.kind, tt.k)
			assert.NotNil(t, hits)
			assert.Len(t, hits, tt.want)
		})
	}
}

func TestIndex_Search_ZeroScoreEntriesFillResults(t *testing.T) {
	// Given: a query matching only one entry
	ix := newMemoryIndex(t, 0)
	require.NoError(t, ix.Add(context.Background(), quickDogCorpus()))

	// When: asking for more results than matches
	hits := ix.Search("fox", KindAll, 3)

	// Then: non-matching entries follow with score 0 in insertion order
	require.Len(t, hits, 3)
	assert.Equal(t, "The quick brown fox", hits[0].Text)
	assert.Equal(t, 0.0, hits[1].Score)
	assert.Equal(t, 1.0, hits[1].Distance)
	assert.Equal(t, "A lazy dog sleeps", hits[1].Text)
	assert.Equal(t, "The quick dog runs", hits[2].Text)
}

func TestIndex_Search_EmptyCases(t *testing.T) {
	ix := newMemoryIndex(t, 0)

	// Empty corpus
	assert.True(t, ix.IsEmpty())
	assert.Empty(t, ix.Search("anything", KindAll, 5))

	require.NoError(t, ix.Add(context.Background(), quickDogCorpus()))
	assert.False(t, ix.IsEmpty())

	// Blank query
	assert.Empty(t, ix.Search("", KindAll, 5))
	assert.Empty(t, ix.Search("  \t\n", KindAll, 5))
}

func TestIndex_Search_QueryIsCaseInsensitive(t *testing.T) {
	ix := newMemoryIndex(t, 0)
	require.NoError(t, ix.Add(context.Background(), quickDogCorpus()))

	lower := ix.Search("quick dog", KindAll, 3)
	upper := ix.Search("QUICK Dog", KindAll, 3)
	assert.Equal(t, lower, upper)
}

func TestIndex_Search_RepeatedQueryTermsWeighMore(t *testing.T) {
	ix := newMemoryIndex(t, 0)
	require.NoError(t, ix.Add(context.Background(), quickDogCorpus()))

	// "fox fox dog": fox entry scores 2, dog entries score 1
	hits := ix.Search("fox fox dog", KindAll, 3)
	require.Len(t, hits, 3)
	assert.Equal(t, "The quick brown fox", hits[0].Text)
	assert.InDelta(t, 2.0, hits[0].Score, 1e-9)
	assert.Equal(t, "A lazy dog sleeps", hits[1].Text)
	assert.Equal(t, "The quick dog runs", hits[2].Text)
}

func TestIndex_Search_Deterministic(t *testing.T) {
	ix := newMemoryIndex(t, 0)
	var chunks []Chunk
	for i := 0; i < 200; i++ {
		chunks = append(chunks, Chunk{
			Text:     fmt.Sprintf("alpha beta gamma %d delta %s", i%7, repeat("beta", i%5)),
			Metadata: Metadata{MetaSourceKind: "pdf"},
		})
	}
	require.NoError(t, ix.Add(context.Background(), chunks))

	first := ix.Search("beta gamma delta 3", KindAll, 50)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, ix.Search("beta gamma delta 3", KindAll, 50))
	}
}

func TestIndex_Search_MatchesLinearScan(t *testing.T) {
	ix := newMemoryIndex(t, 0)
	texts := []string{
		"contract renewal terms for the vendor",
		"renewal renewal renewal",
		"the vendor sent an invoice",
		"meeting notes about nothing in particular at all today",
		"terms",
	}
	for _, text := range texts {
		require.NoError(t, ix.Add(context.Background(), []Chunk{{Text: text, Metadata: Metadata{MetaSourceKind: "pdf"}}}))
	}

	query := "vendor renewal terms"
	hits := ix.Search(query, KindAll, len(texts))
	require.Len(t, hits, len(texts))

	// Linear scan over the same formula
	counts := make([]int, len(texts))
	for i, text := range texts {
		counts[i] = len(Tokenize(text))
	}
	avgdl := averageLength(counts)
	params := DefaultBM25()
	want := make(map[string]float64)
	for i, text := range texts {
		tf := termFrequencies(Tokenize(text))
		var score float64
		for _, qt := range queryTerms(query) {
			score += float64(qt.qf) * params.termScore(tf[qt.term], counts[i], avgdl)
		}
		want[text] = score
	}

	for i, h := range hits {
		assert.InDelta(t, want[h.Text], h.Score, 1e-12)
		if i > 0 {
			assert.GreaterOrEqual(t, hits[i-1].Score, h.Score)
		}
	}
}

func TestIndex_Add_RecomputesAverageLength(t *testing.T) {
	ix := newMemoryIndex(t, 0)
	ctx := context.Background()

	require.NoError(t, ix.Add(ctx, []Chunk{{Text: "one two", Metadata: Metadata{MetaSourceKind: "pdf"}}}))
	assert.InDelta(t, 2.0, ix.Stats().AvgDocLength, 1e-9)

	require.NoError(t, ix.Add(ctx, []Chunk{{Text: "one two three four", Metadata: Metadata{MetaSourceKind: "email"}}}))
	stats := ix.Stats()
	assert.InDelta(t, 3.0, stats.AvgDocLength, 1e-9)
	assert.Equal(t, 2, stats.Entries)
	assert.Equal(t, map[Kind]int{KindPDF: 1, KindEmail: 1}, stats.ByKind)
	assert.Equal(t, uint64(2), stats.Generation)
}

func TestIndex_Add_SkipsBlankText(t *testing.T) {
	ix := newMemoryIndex(t, 0)

	err := ix.Add(context.Background(), []Chunk{
		{Text: "   ", Metadata: Metadata{MetaSourceKind: "pdf"}},
		{Text: "", Metadata: nil},
		{Text: "kept", Metadata: Metadata{MetaSourceKind: "pdf"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, ix.Len())
	assert.Equal(t, uint64(1), ix.Stats().Generation)

	// An all-blank batch is a no-op
	require.NoError(t, ix.Add(context.Background(), []Chunk{{Text: "\n"}}))
	assert.Equal(t, uint64(1), ix.Stats().Generation)
}

func TestIndex_Add_RejectsInvalidSourceKind(t *testing.T) {
	ix := newMemoryIndex(t, 0)

	err := ix.Add(context.Background(), []Chunk{
		{Text: "fine", Metadata: Metadata{MetaSourceKind: "pdf"}},
		{Text: "no kind", Metadata: Metadata{MetaSource: "x"}},
	})
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))

	// Whole batch rejected
	assert.True(t, ix.IsEmpty())
}

func TestIndex_AddTexts_LengthMismatch(t *testing.T) {
	ix := newMemoryIndex(t, 0)

	err := ix.AddTexts(context.Background(), []string{"a", "b"}, []Metadata{{MetaSourceKind: "pdf"}})
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
	assert.True(t, ix.IsEmpty())

	err = ix.AddTexts(context.Background(), []string{"a b"}, []Metadata{{MetaSourceKind: "email"}})
	require.NoError(t, err)
	assert.Equal(t, 1, ix.Len())
}

func TestIndex_Add_CallerMetadataIsCopied(t *testing.T) {
	ix := newMemoryIndex(t, 0)
	meta := Metadata{MetaSourceKind: "pdf", MetaPage: "1"}
	require.NoError(t, ix.Add(context.Background(), []Chunk{{Text: "copied", Metadata: meta}}))

	meta[MetaPage] = "99"
	hits := ix.Search("copied", KindAll, 1)
	require.Len(t, hits, 1)
	assert.Equal(t, "1", hits[0].Metadata[MetaPage])

	// Mutating a hit does not leak into the index either
	hits[0].Metadata[MetaPage] = "42"
	assert.Equal(t, "1", ix.Search("copied", KindAll, 1)[0].Metadata[MetaPage])
}

func TestIndex_Search_CacheInvalidatedOnAdd(t *testing.T) {
	ix := newMemoryIndex(t, 16)
	ctx := context.Background()
	require.NoError(t, ix.Add(ctx, quickDogCorpus()))

	before := ix.Search("zebra", KindAll, 1)
	require.Len(t, before, 1)
	assert.Equal(t, 0.0, before[0].Score)

	require.NoError(t, ix.Add(ctx, []Chunk{{Text: "zebra crossing", Metadata: Metadata{MetaSourceKind: "pdf"}}}))
	after := ix.Search("zebra", KindAll, 1)
	require.Len(t, after, 1)
	assert.Equal(t, "zebra crossing", after[0].Text)
	assert.Greater(t, after[0].Score, 0.0)
}

// failingPersister fails every Save until healed.
type failingPersister struct {
	*MemoryPersister
	mu   sync.Mutex
	fail bool
}

func (f *failingPersister) Save(ctx context.Context, snap *Snapshot) error {
	f.mu.Lock()
	fail := f.fail
	f.mu.Unlock()
	if fail {
		return fmt.Errorf("disk full")
	}
	return f.MemoryPersister.Save(ctx, snap)
}

func TestIndex_Add_PersistenceFailureDegrades(t *testing.T) {
	// Given: a persister that fails
	p := &failingPersister{MemoryPersister: NewMemoryPersister(), fail: true}
	ix, err := Open(context.Background(), Options{Persister: p})
	require.NoError(t, err)
	assert.Equal(t, StateReady, ix.State())

	// When: adding
	err = ix.Add(context.Background(), quickDogCorpus())

	// Then: a retryable PersistenceError, index degraded but queryable
	require.Error(t, err)
	assert.True(t, errors.IsPersistence(err))
	assert.True(t, errors.IsRetryable(err))
	assert.Equal(t, StateDegraded, ix.State())
	assert.Len(t, ix.Search("quick", KindAll, 3), 3)

	// When: the next add persists
	p.mu.Lock()
	p.fail = false
	p.mu.Unlock()
	require.NoError(t, ix.Add(context.Background(), []Chunk{{Text: "more", Metadata: Metadata{MetaSourceKind: "email"}}}))

	// Then: ready again with the full corpus persisted
	assert.Equal(t, StateReady, ix.State())
	snap, err := p.Load(context.Background())
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, 4, snap.Len())
}

func TestIndex_Reset(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	ix, err := Open(ctx, Options{Dir: dir, Backend: BackendFile})
	require.NoError(t, err)
	require.NoError(t, ix.Add(ctx, quickDogCorpus()))

	require.NoError(t, ix.Reset(ctx))
	assert.True(t, ix.IsEmpty())
	require.NoError(t, ix.Close())

	reopened, err := Open(ctx, Options{Dir: dir, Backend: BackendFile})
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()
	assert.True(t, reopened.IsEmpty())
}

func TestIndex_Add_AfterClose(t *testing.T) {
	ix, err := Open(context.Background(), Options{Backend: BackendMemory})
	require.NoError(t, err)
	require.NoError(t, ix.Close())

	err = ix.Add(context.Background(), quickDogCorpus())
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInternal, errors.GetCode(err))
}

func TestIndex_ConcurrentAddAndSearch(t *testing.T) {
	ix := newMemoryIndex(t, 8)
	ctx := context.Background()

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				chunk := Chunk{
					Text:     fmt.Sprintf("worker %d item %d shared", w, i),
					Metadata: Metadata{MetaSourceKind: "pdf"},
				}
				assert.NoError(t, ix.Add(ctx, []Chunk{chunk}))
			}
		}(w)
	}
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				hits := ix.Search("shared item", KindAll, 5)
				assert.LessOrEqual(t, len(hits), 5)
				_ = ix.Stats()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, ix.Len())
	assert.Len(t, ix.Search("shared", KindAll, 200), 100)
}

func repeat(word string, n int) string {
	out := ""
	for i := 0; i < n; i++ {
		out += word + " "
	}
	return out
}
