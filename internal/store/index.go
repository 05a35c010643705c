package store

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/SakshamDixitSBH/docrag/internal/errors"
)

// DefaultCacheSize is the number of cached search results.
const DefaultCacheSize = 256

// Options configures an Index.
type Options struct {
	// Dir is the directory holding persisted artifacts. Required unless
	// Backend is BackendMemory or Persister is set.
	Dir string

	// Backend selects the persister when Persister is nil.
	Backend Backend

	// Persister overrides Backend.
	Persister Persister

	// CacheSize bounds the search result cache. Zero disables caching.
	CacheSize int

	// BM25 parameters. Zero value means DefaultBM25().
	BM25 BM25

	Logger *slog.Logger
}

type searchKey struct {
	query string
	kind  Kind
	k     int
}

// Index is an append-only BM25 index over chunks.
//
// Add holds the write lock across mutation, recomputation and persistence.
// Search, IsEmpty and Stats hold the read lock, so a query never observes
// a partially applied batch.
type Index struct {
	mu sync.RWMutex

	persister Persister
	dirLock   *DirLock
	params    BM25
	logger    *slog.Logger
	cache     *lru.Cache[searchKey, []Hit]

	texts       []string
	metas       []Metadata
	tokenCounts []int
	avgdl       float64
	post        postings
	generation  uint64
	state       State

	// savedGeneration and savedLen describe the persisted state this index
	// last loaded or wrote. Entries past savedLen are not on disk yet.
	savedGeneration uint64
	savedLen        int
	closed      bool
}

// Open creates an index and rehydrates it from persisted state.
// Corrupt or partial state is logged, discarded, and the index starts empty.
func Open(ctx context.Context, opts Options) (*Index, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	params := opts.BM25
	if params == (BM25{}) {
		params = DefaultBM25()
	}

	persister := opts.Persister
	if persister == nil {
		var err error
		persister, err = NewPersister(opts.Backend, opts.Dir)
		if err != nil {
			return nil, err
		}
	}

	ix := &Index{
		persister: persister,
		params:    params,
		logger:    logger,
		post:      postings{},
		state:     StateUninitialized,
	}
	if opts.CacheSize > 0 {
		cache, err := lru.New[searchKey, []Hit](opts.CacheSize)
		if err != nil {
			return nil, errors.InternalError("cannot create search cache", err)
		}
		ix.cache = cache
	}
	if persister.Backend() != BackendMemory && opts.Dir != "" {
		ix.dirLock = NewDirLock(opts.Dir)
	}

	if err := ix.load(ctx); err != nil {
		_ = persister.Close()
		return nil, err
	}
	return ix, nil
}

// load rehydrates the corpus under a shared directory lock. Corrupt state
// is discarded under the exclusive lock.
func (ix *Index) load(ctx context.Context) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	ix.state = StateLoading
	snap, err := ix.readShared(ctx)
	if errors.IsCorruptState(err) {
		ix.logger.Warn("index_corrupt_state_discarded",
			append(errors.LogAttrs(err), "location", ix.persister.Location())...)
		snap, err = ix.discardCorrupt(ctx)
	}
	if err != nil {
		if errors.IsPersistence(err) {
			return err
		}
		return errors.PersistenceError("cannot load index", err)
	}

	if snap != nil {
		ix.texts = snap.Documents
		ix.metas = snap.Metadatas
		ix.generation = snap.Generation
		ix.recomputeLocked()
		if snap.TokenizerVersion != TokenizerVersion || !slices.Equal(snap.TokenCounts, ix.tokenCounts) {
			ix.logger.Info("index_lengths_recomputed",
				"stored_tokenizer_version", snap.TokenizerVersion,
				"tokenizer_version", TokenizerVersion)
		}
	}
	ix.savedGeneration = ix.generation
	ix.savedLen = len(ix.texts)

	ix.state = StateReady
	ix.logger.Debug("index_loaded",
		"entries", len(ix.texts),
		"generation", ix.generation,
		"backend", string(ix.persister.Backend()))
	return nil
}

func (ix *Index) readShared(ctx context.Context) (*Snapshot, error) {
	if ix.dirLock != nil {
		if err := ix.dirLock.RLock(ctx); err != nil {
			return nil, errors.PersistenceError("cannot lock index directory", err)
		}
		defer func() { _ = ix.dirLock.Unlock() }()
	}
	return ix.persister.Load(ctx)
}

// discardCorrupt removes corrupt artifacts while holding the exclusive
// lock. State is read again first, since another process may have saved a
// good snapshot between the two locks.
func (ix *Index) discardCorrupt(ctx context.Context) (*Snapshot, error) {
	if ix.dirLock != nil {
		if err := ix.dirLock.Lock(ctx); err != nil {
			return nil, errors.PersistenceError("cannot lock index directory", err)
		}
		defer func() { _ = ix.dirLock.Unlock() }()
	}

	snap, err := ix.persister.Load(ctx)
	if err == nil || !errors.IsCorruptState(err) {
		return snap, err
	}
	if resetErr := ix.persister.Reset(ctx); resetErr != nil {
		ix.logger.Error("index_reset_failed", errors.LogAttrs(resetErr)...)
	}
	return nil, nil
}

// syncLocked rebases the corpus onto the persisted one when another
// process has saved since this index last loaded or saved. Entries added
// here but never persisted are kept after the persisted ones. Callers hold
// the write lock and the exclusive directory lock.
func (ix *Index) syncLocked(ctx context.Context) error {
	snap, err := ix.persister.Load(ctx)
	switch {
	case errors.IsCorruptState(err):
		ix.logger.Warn("index_corrupt_state_overwritten",
			append(errors.LogAttrs(err), "location", ix.persister.Location())...)
		return nil
	case err != nil:
		return errors.PersistenceError("cannot load index", err)
	}

	var (
		generation uint64
		texts      []string
		metas      []Metadata
	)
	if snap != nil {
		generation, texts, metas = snap.Generation, snap.Documents, snap.Metadatas
	}
	if generation == ix.savedGeneration {
		return nil
	}

	unsaved := len(ix.texts) - ix.savedLen
	ix.texts = append(texts, ix.texts[ix.savedLen:]...)
	ix.metas = append(metas, ix.metas[ix.savedLen:]...)
	ix.generation = generation
	ix.savedGeneration = generation
	ix.savedLen = len(texts)
	ix.logger.Info("index_rebased",
		"generation", generation,
		"persisted_entries", len(texts),
		"unsaved_entries", unsaved)
	return nil
}

// recomputeLocked rebuilds token counts, avgdl and postings from the stored
// texts. Callers hold the write lock.
func (ix *Index) recomputeLocked() {
	counts := make([]int, len(ix.texts))
	post := make(postings)
	for i, text := range ix.texts {
		tokens := Tokenize(text)
		counts[i] = len(tokens)
		post.add(i, tokens)
	}
	ix.tokenCounts = counts
	ix.post = post
	ix.avgdl = averageLength(counts)
}

// Add appends chunks, recomputes corpus statistics and persists the full
// snapshot. For on-disk backends the corpus is first rebased onto what
// another process may have saved, so concurrent writers never drop each
// other's entries. Chunks with blank text are skipped. A chunk without a
// valid source_kind rejects the whole batch before anything is mutated.
//
// If persisting fails the chunks remain searchable, the index enters
// StateDegraded and a PersistenceError is returned.
func (ix *Index) Add(ctx context.Context, chunks []Chunk) error {
	texts := make([]string, 0, len(chunks))
	metas := make([]Metadata, 0, len(chunks))
	for i, c := range chunks {
		if strings.TrimSpace(c.Text) == "" {
			continue
		}
		if !c.Metadata.Kind().Valid() {
			return errors.ValidationError(
				fmt.Sprintf("chunk %d has invalid %s %q", i, MetaSourceKind, c.Metadata.Kind()), nil)
		}
		texts = append(texts, c.Text)
		metas = append(metas, c.Metadata.Clone())
	}
	if len(texts) == 0 {
		return nil
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	if ix.closed {
		return errors.InternalError("index is closed", nil)
	}

	if ix.dirLock != nil {
		if err := ix.dirLock.Lock(ctx); err != nil {
			ix.logger.Error("index_lock_failed", "error", err)
			return errors.PersistenceError("cannot lock index directory", err)
		}
		defer func() { _ = ix.dirLock.Unlock() }()
		if err := ix.syncLocked(ctx); err != nil {
			return err
		}
	}

	ix.texts = append(ix.texts, texts...)
	ix.metas = append(ix.metas, metas...)
	ix.recomputeLocked()
	ix.generation++
	if ix.cache != nil {
		ix.cache.Purge()
	}

	if err := ix.persistLocked(ctx); err != nil {
		ix.state = StateDegraded
		ix.logger.Error("index_persist_failed",
			append(errors.LogAttrs(err), "entries", len(ix.texts))...)
		return err
	}
	ix.savedGeneration = ix.generation
	ix.savedLen = len(ix.texts)
	ix.state = StateReady
	ix.logger.Debug("index_add",
		"added", len(texts),
		"entries", len(ix.texts),
		"avgdl", ix.avgdl)
	return nil
}

// AddTexts is Add for parallel text and metadata sequences.
func (ix *Index) AddTexts(ctx context.Context, texts []string, metas []Metadata) error {
	if len(texts) != len(metas) {
		return errors.ValidationError(
			fmt.Sprintf("got %d texts but %d metadatas", len(texts), len(metas)), nil)
	}
	chunks := make([]Chunk, len(texts))
	for i := range texts {
		chunks[i] = Chunk{Text: texts[i], Metadata: metas[i]}
	}
	return ix.Add(ctx, chunks)
}

// persistLocked saves the full snapshot. Callers hold the write lock and,
// for on-disk backends, the exclusive directory lock.
func (ix *Index) persistLocked(ctx context.Context) error {
	snap := &Snapshot{
		Generation:       ix.generation,
		TokenizerVersion: TokenizerVersion,
		Documents:        ix.texts,
		Metadatas:        ix.metas,
		TokenCounts:      ix.tokenCounts,
		AvgDocLength:     ix.avgdl,
	}
	if err := ix.persister.Save(ctx, snap); err != nil {
		if errors.IsPersistence(err) {
			return err
		}
		return errors.PersistenceError("cannot save index", err)
	}
	return nil
}

// IsEmpty reports whether the index holds no entries.
func (ix *Index) IsEmpty() bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.texts) == 0
}

// Len returns the number of entries.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.texts)
}

// Search returns up to k entries ranked by BM25 score, restricted to kind.
// Ties keep insertion order. Entries that match no query term score 0 and
// can still be returned when fewer than k entries match. Search never
// fails: a blank query, k <= 0 or an empty index yield an empty slice.
func (ix *Index) Search(query string, kind Kind, k int) []Hit {
	if k <= 0 || strings.TrimSpace(query) == "" {
		return []Hit{}
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if len(ix.texts) == 0 {
		return []Hit{}
	}

	key := searchKey{query: query, kind: kind, k: k}
	if ix.cache != nil {
		if hits, ok := ix.cache.Get(key); ok {
			return cloneHits(hits)
		}
	}

	scores := ix.scoreLocked(queryTerms(query))

	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return cmp.Compare(scores[b], scores[a])
	})

	hits := make([]Hit, 0, min(k, len(order)))
	for _, i := range order {
		if len(hits) == k {
			break
		}
		if !kind.Matches(ix.metas[i]) {
			continue
		}
		score := scores[i]
		hits = append(hits, Hit{
			Rank:     len(hits) + 1,
			Text:     ix.texts[i],
			Metadata: ix.metas[i].Clone(),
			Score:    score,
			Distance: 1 / (1 + max(score, 0)),
		})
	}

	if ix.cache != nil {
		ix.cache.Add(key, cloneHits(hits))
	}
	return hits
}

// scoreLocked returns the BM25 score of every entry. Terms are applied in
// query order, so each entry's sum is the same as a linear scan.
func (ix *Index) scoreLocked(terms []queryTerm) []float64 {
	scores := make([]float64, len(ix.texts))
	for _, qt := range terms {
		for _, p := range ix.post[qt.term] {
			scores[p.entry] += float64(qt.qf) * ix.params.termScore(p.tf, ix.tokenCounts[p.entry], ix.avgdl)
		}
	}
	return scores
}

func cloneHits(hits []Hit) []Hit {
	out := make([]Hit, len(hits))
	for i, h := range hits {
		out[i] = h
		out[i].Metadata = h.Metadata.Clone()
	}
	return out
}

// State returns the lifecycle state.
func (ix *Index) State() State {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.state
}

// Stats summarizes the index.
func (ix *Index) Stats() Stats {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	byKind := make(map[Kind]int)
	for _, m := range ix.metas {
		byKind[m.Kind()]++
	}
	return Stats{
		Entries:      len(ix.texts),
		ByKind:       byKind,
		AvgDocLength: ix.avgdl,
		Generation:   ix.generation,
		State:        ix.state.String(),
		Backend:      ix.persister.Backend(),
		Location:     ix.persister.Location(),
	}
}

// Reset discards all entries and removes persisted state.
func (ix *Index) Reset(ctx context.Context) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if ix.dirLock != nil {
		if err := ix.dirLock.Lock(ctx); err != nil {
			return errors.PersistenceError("cannot lock index directory", err)
		}
		defer func() { _ = ix.dirLock.Unlock() }()
	}
	if err := ix.persister.Reset(ctx); err != nil {
		return err
	}

	ix.texts = nil
	ix.metas = nil
	ix.generation = 0
	ix.savedGeneration = 0
	ix.savedLen = 0
	ix.recomputeLocked()
	if ix.cache != nil {
		ix.cache.Purge()
	}
	ix.state = StateReady
	ix.logger.Info("index_reset", "location", ix.persister.Location())
	return nil
}

// Close releases the persister. The index must not be used afterwards.
func (ix *Index) Close() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if ix.closed {
		return nil
	}
	ix.closed = true
	return ix.persister.Close()
}
