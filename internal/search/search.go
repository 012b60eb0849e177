// Package search is the read-side retriever: a deterministic BM25 keyword
// path, a cosine semantic path over stored vectors, and fusion of the two
// into one ranked list. It only ever reads committed store state.
package search

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ahollis/treeline/internal/store"
)

// Mode selects which retrieval paths run.
type Mode string

const (
	ModeAuto     Mode = "auto"
	ModeKeyword  Mode = "keyword"
	ModeSemantic Mode = "semantic"
	ModeHybrid   Mode = "hybrid"
)

// TimeoutError reports one retrieval path exceeding its bound. The query
// still answers from the other path; callers see this in Result.Degraded.
type TimeoutError struct {
	Path    string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s path exceeded %s", e.Path, e.Timeout)
}

// Options tunes the searcher; zero values mean the documented defaults.
type Options struct {
	Fusion         Fusion        // default FusionWeighted
	Alpha          float64       // keyword weight under weighted fusion
	RRFK           int           // RRF dampening constant
	PathTimeout    time.Duration // per-path bound, default 2s
	QueryCacheSize int           // query embedding LRU entries, default 256
}

// Hit is one ranked result with per-path provenance: where the symbol ranked
// on each path that saw it, zero when a path did not.
type Hit struct {
	Symbol *store.Symbol
	Score  float64

	KeywordRank   int
	KeywordScore  float64
	SemanticRank  int
	SemanticScore float64
}

// Result is a ranked answer. Partial means a path degraded; Degraded says
// which and why.
type Result struct {
	Hits     []Hit
	Mode     Mode // the mode that actually ran, auto resolved
	Alpha    float64
	Partial  bool
	Degraded []string
}

// Searcher answers ranked queries against the store. Safe for concurrent
// use; the lexical index rebuilds lazily after Invalidate.
type Searcher struct {
	store    *store.Store
	embedder Embedder // nil disables the semantic path
	opts     Options

	mu    sync.Mutex
	idx   *lexIndex
	dirty bool

	queryCache *lru.Cache[string, []float32]
}

func NewSearcher(s *store.Store, embedder Embedder, opts Options) *Searcher {
	if opts.Fusion == "" {
		opts.Fusion = FusionWeighted
	}
	if opts.Alpha <= 0 || opts.Alpha > 1 {
		opts.Alpha = DefaultAlpha
	}
	if opts.RRFK <= 0 {
		opts.RRFK = DefaultRRFK
	}
	if opts.PathTimeout <= 0 {
		opts.PathTimeout = 2 * time.Second
	}
	if opts.QueryCacheSize <= 0 {
		opts.QueryCacheSize = 256
	}
	cache, _ := lru.New[string, []float32](opts.QueryCacheSize)
	return &Searcher{store: s, embedder: embedder, opts: opts, dirty: true, queryCache: cache}
}

// Invalidate marks the lexical index stale. The updater calls this after
// every cycle; the next search rebuilds.
func (s *Searcher) Invalidate() {
	s.mu.Lock()
	s.dirty = true
	s.mu.Unlock()
}

// Search runs the query and returns a ranked, fused result. A failing or
// slow path degrades to the other path with Partial set; Search errors only
// when no path can answer.
func (s *Searcher) Search(ctx context.Context, query string, mode Mode, limit int) (*Result, error) {
	if limit <= 0 {
		limit = 10
	}

	alpha := s.opts.Alpha
	if mode == "" || mode == ModeAuto {
		if s.embedder == nil {
			mode = ModeKeyword
		} else {
			mode = ModeHybrid
			alpha = classifyQuery(query)
		}
	}
	if mode == ModeSemantic && s.embedder == nil {
		return nil, fmt.Errorf("semantic search requires an embedding provider")
	}

	// Over-fetch per path so fusion has candidates beyond the cut line.
	fetch := limit * 3

	var (
		wg                  sync.WaitGroup
		keyword, semantic   []scored
		keyErr, semErr      error
		wantKey             = mode != ModeSemantic
		wantSem             = mode != ModeKeyword && s.embedder != nil
	)

	if wantKey {
		wg.Add(1)
		go func() {
			defer wg.Done()
			keyword, keyErr = s.keywordPath(ctx, query, fetch)
		}()
	}
	if wantSem {
		wg.Add(1)
		go func() {
			defer wg.Done()
			semantic, semErr = s.semanticPath(ctx, query, fetch)
		}()
	}
	wg.Wait()

	res := &Result{Mode: mode, Alpha: alpha}
	if wantKey && keyErr != nil {
		if !wantSem || semErr != nil {
			return nil, keyErr
		}
		res.Partial = true
		res.Degraded = append(res.Degraded, "keyword: "+keyErr.Error())
	}
	if wantSem && semErr != nil {
		if !wantKey {
			return nil, semErr
		}
		res.Partial = true
		res.Degraded = append(res.Degraded, "semantic: "+semErr.Error())
	}

	var fused []scored
	switch {
	case keyErr == nil && wantKey && (semErr != nil || !wantSem):
		fused = keyword
	case semErr == nil && wantSem && (keyErr != nil || !wantKey):
		fused = semantic
	case s.opts.Fusion == FusionRRF:
		fused = fuseRRF(s.opts.RRFK, keyword, semantic)
	default:
		fused = fuseWeighted(alpha, keyword, semantic)
	}
	if len(fused) > limit {
		fused = fused[:limit]
	}

	hits, err := s.materialize(fused, keyword, semantic)
	if err != nil {
		return nil, err
	}
	res.Hits = hits
	return res, nil
}

func (s *Searcher) keywordPath(ctx context.Context, query string, limit int) ([]scored, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.PathTimeout)
	defer cancel()

	idx, err := s.ensureIndex(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &TimeoutError{Path: "keyword", Timeout: s.opts.PathTimeout}
		}
		return nil, err
	}
	return idx.search(query, limit), nil
}

func (s *Searcher) semanticPath(ctx context.Context, query string, limit int) ([]scored, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.PathTimeout)
	defer cancel()

	vec, ok := s.queryCache.Get(query)
	if !ok {
		vecs, err := s.embedder.Embed(ctx, []string{query})
		if err != nil {
			if ctx.Err() != nil {
				return nil, &TimeoutError{Path: "semantic", Timeout: s.opts.PathTimeout}
			}
			return nil, err
		}
		vec = vecs[0]
		s.queryCache.Add(query, vec)
	}

	results, err := semanticSearch(ctx, s.store, vec, limit)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &TimeoutError{Path: "semantic", Timeout: s.opts.PathTimeout}
		}
		return nil, err
	}
	return results, nil
}

func (s *Searcher) ensureIndex(ctx context.Context) (*lexIndex, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.idx != nil && !s.dirty {
		return s.idx, nil
	}
	idx, err := buildLexIndex(ctx, s.store)
	if err != nil {
		return nil, err
	}
	s.idx = idx
	s.dirty = false
	return idx, nil
}

// materialize loads symbols for the fused ranking and attaches per-path
// ranks and scores.
func (s *Searcher) materialize(fused, keyword, semantic []scored) ([]Hit, error) {
	if len(fused) == 0 {
		return nil, nil
	}

	ids := make([]int64, len(fused))
	for i, item := range fused {
		ids[i] = item.symbolID
	}
	syms, err := s.store.SymbolsByIDs(ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]*store.Symbol, len(syms))
	for _, sym := range syms {
		byID[sym.ID] = sym
	}

	keyRank := rankOf(keyword)
	semRank := rankOf(semantic)

	hits := make([]Hit, 0, len(fused))
	for _, item := range fused {
		sym := byID[item.symbolID]
		if sym == nil {
			continue // deleted between ranking and load
		}
		hit := Hit{Symbol: sym, Score: item.score}
		if r, ok := keyRank[item.symbolID]; ok {
			hit.KeywordRank = r.rank
			hit.KeywordScore = r.score
		}
		if r, ok := semRank[item.symbolID]; ok {
			hit.SemanticRank = r.rank
			hit.SemanticScore = r.score
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

type rankEntry struct {
	rank  int
	score float64
}

func rankOf(list []scored) map[int64]rankEntry {
	out := make(map[int64]rankEntry, len(list))
	for i, item := range list {
		out[item.symbolID] = rankEntry{rank: i + 1, score: item.score}
	}
	return out
}

// SyncEmbeddings vectorizes up to limit symbols that have no live embedding
// yet. Fail-soft: the updater calls this after cycles and ignores provider
// outages, since search degrades to keyword-only without vectors.
func (s *Searcher) SyncEmbeddings(ctx context.Context, limit int) (int, error) {
	if s.embedder == nil {
		return 0, nil
	}
	ids, err := s.store.SymbolsMissingEmbeddings(limit)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	syms, err := s.store.SymbolsByIDs(ids)
	if err != nil {
		return 0, err
	}
	texts := make([]string, len(syms))
	for i, sym := range syms {
		texts[i] = embeddingText(sym)
	}
	vecs, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return 0, err
	}
	for i, sym := range syms {
		if err := s.store.UpsertEmbedding(sym.ID, vecs[i]); err != nil {
			return i, err
		}
	}
	return len(syms), nil
}

// compactionThreshold is the tombstone share past which the vector set gets
// rewritten.
const compactionThreshold = 0.5

// MaybeCompact reclaims tombstoned vectors once they outnumber live use.
func (s *Searcher) MaybeCompact() (int64, error) {
	ratio, err := s.store.TombstoneRatio()
	if err != nil {
		return 0, err
	}
	if ratio < compactionThreshold {
		return 0, nil
	}
	return s.store.CompactVectors()
}
