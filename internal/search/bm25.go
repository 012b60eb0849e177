package search

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/ahollis/treeline/internal/store"
)

// Okapi BM25 parameters, the usual defaults.
const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

// nameFieldWeight repeats name tokens in the document so a hit on the
// symbol's own name outweighs a hit buried in its signature or doc text.
const nameFieldWeight = 3

// exactNameBonus multiplies the score of a document whose symbol name equals
// the query verbatim (case-insensitive). Identifier queries should pin their
// symbol to the top regardless of corpus statistics.
const exactNameBonus = 2.0

type lexDoc struct {
	symbolID int64
	name     string
	length   int
}

// lexIndex is an in-memory inverted index over symbol name, signature, and
// leading doc text. It is rebuilt from the store after update cycles; scoring
// it is pure and deterministic.
type lexIndex struct {
	docs     []lexDoc
	postings map[string][]posting // token -> sorted by doc ordinal
	avgLen   float64
}

type posting struct {
	doc int32
	tf  int32
}

// buildLexIndex streams every symbol once and never materializes row sets.
func buildLexIndex(ctx context.Context, s *store.Store) (*lexIndex, error) {
	idx := &lexIndex{postings: make(map[string][]posting)}
	var totalLen int

	err := s.StreamSymbols(ctx, store.SymbolFilter{}, func(sym *store.Symbol) error {
		tf := make(map[string]int32)
		length := 0
		addTokens := func(text string, weight int) {
			for _, tok := range tokenize(text) {
				tf[tok] += int32(weight)
				length += weight
			}
		}
		addTokens(sym.Name, nameFieldWeight)
		addTokens(sym.Signature, 1)
		addTokens(leadingDoc(sym.Doc), 1)

		ord := int32(len(idx.docs))
		idx.docs = append(idx.docs, lexDoc{symbolID: sym.ID, name: sym.Name, length: length})
		totalLen += length
		for tok, n := range tf {
			idx.postings[tok] = append(idx.postings[tok], posting{doc: ord, tf: n})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(idx.docs) > 0 {
		idx.avgLen = float64(totalLen) / float64(len(idx.docs))
	}
	return idx, nil
}

// leadingDoc keeps the first paragraph of a doc comment; the rest is usually
// detail that drowns the lexical signal.
func leadingDoc(doc string) string {
	if i := strings.Index(doc, "\n\n"); i >= 0 {
		return doc[:i]
	}
	if len(doc) > 400 {
		return doc[:400]
	}
	return doc
}

type scored struct {
	symbolID int64
	score    float64
}

// search scores the query against the index with Okapi BM25 and returns the
// top results, best first. Ties break on symbol ID so output order is stable.
func (idx *lexIndex) search(query string, limit int) []scored {
	if len(idx.docs) == 0 {
		return nil
	}

	queryTokens := tokenize(query)
	if len(queryTokens) == 0 {
		return nil
	}

	n := float64(len(idx.docs))
	acc := make(map[int32]float64)
	for _, tok := range dedup(queryTokens) {
		plist := idx.postings[tok]
		if len(plist) == 0 {
			continue
		}
		df := float64(len(plist))
		idf := math.Log(1 + (n-df+0.5)/(df+0.5))
		for _, p := range plist {
			tf := float64(p.tf)
			dl := float64(idx.docs[p.doc].length)
			norm := tf * (bm25K1 + 1) / (tf + bm25K1*(1-bm25B+bm25B*dl/idx.avgLen))
			acc[p.doc] += idf * norm
		}
	}

	lowered := strings.ToLower(strings.TrimSpace(query))
	results := make([]scored, 0, len(acc))
	for doc, score := range acc {
		if strings.ToLower(idx.docs[doc].name) == lowered {
			score *= exactNameBonus
		}
		results = append(results, scored{symbolID: idx.docs[doc].symbolID, score: score})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].score != results[j].score {
			return results[i].score > results[j].score
		}
		return results[i].symbolID < results[j].symbolID
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}

func dedup(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	out := tokens[:0]
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
