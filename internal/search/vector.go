package search

import (
	"context"
	"math"
	"sort"

	"github.com/ahollis/treeline/internal/store"
)

// semanticSearch embeds the query and scans live vectors with cosine
// similarity, streaming so the vector set never lives in memory at once.
func semanticSearch(ctx context.Context, s *store.Store, queryVec []float32, limit int) ([]scored, error) {
	var results []scored
	err := s.StreamEmbeddings(ctx, func(symbolID int64, vector []float32) error {
		if sim := cosine(queryVec, vector); sim > 0 {
			results = append(results, scored{symbolID: symbolID, score: sim})
		}
		return nil
	})
	if err != nil {
		return nil, err
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
	return results, nil
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// embeddingText is what gets vectorized for one symbol: name, signature, and
// doc, the same fields the lexical path indexes.
func embeddingText(sym *store.Symbol) string {
	text := sym.Name
	if sym.Signature != "" {
		text += "\n" + sym.Signature
	}
	if sym.Doc != "" {
		text += "\n" + leadingDoc(sym.Doc)
	}
	return text
}
