package search

import "sort"

// Fusion selects how the keyword and semantic rankings merge.
type Fusion string

const (
	// FusionRRF is reciprocal rank fusion: score(d) = sum 1/(k + rank_i(d)).
	// Rank-only, so mismatched score scales cannot skew it.
	FusionRRF Fusion = "rrf"
	// FusionWeighted min-max normalizes both score lists and blends them:
	// alpha*keyword + (1-alpha)*semantic.
	FusionWeighted Fusion = "weighted"
)

const (
	// DefaultRRFK is the standard RRF dampening constant.
	DefaultRRFK = 60
	// DefaultAlpha is the keyword share under weighted fusion.
	DefaultAlpha = 0.5
)

// fuseRRF merges ranked lists by reciprocal rank. Ties break on symbol ID.
func fuseRRF(k int, lists ...[]scored) []scored {
	if k <= 0 {
		k = DefaultRRFK
	}
	acc := make(map[int64]float64)
	for _, list := range lists {
		for rank, item := range list {
			acc[item.symbolID] += 1.0 / float64(k+rank+1)
		}
	}
	return sortScored(acc)
}

// fuseWeighted blends min-max normalized scores. A document absent from one
// list contributes zero on that side rather than being dropped.
func fuseWeighted(alpha float64, keyword, semantic []scored) []scored {
	kw := normalize(keyword)
	sem := normalize(semantic)

	acc := make(map[int64]float64, len(kw)+len(sem))
	for id, score := range kw {
		acc[id] += alpha * score
	}
	for id, score := range sem {
		acc[id] += (1 - alpha) * score
	}
	return sortScored(acc)
}

// normalize min-max scales scores into [0,1] over the candidate set. A
// single-element or constant list maps to 1.
func normalize(list []scored) map[int64]float64 {
	if len(list) == 0 {
		return nil
	}
	lo, hi := list[0].score, list[0].score
	for _, item := range list[1:] {
		if item.score < lo {
			lo = item.score
		}
		if item.score > hi {
			hi = item.score
		}
	}
	out := make(map[int64]float64, len(list))
	for _, item := range list {
		if hi == lo {
			out[item.symbolID] = 1
		} else {
			out[item.symbolID] = (item.score - lo) / (hi - lo)
		}
	}
	return out
}

func sortScored(acc map[int64]float64) []scored {
	out := make([]scored, 0, len(acc))
	for id, score := range acc {
		out = append(out, scored{symbolID: id, score: score})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		return out[i].symbolID < out[j].symbolID
	})
	return out
}
