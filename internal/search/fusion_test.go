package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rankIn(list []scored, id int64) int {
	for i, item := range list {
		if item.symbolID == id {
			return i
		}
	}
	return -1
}

func TestFuseRRF(t *testing.T) {
	keyword := []scored{{1, 10}, {2, 5}, {3, 1}}
	semantic := []scored{{3, 0.9}, {1, 0.8}, {4, 0.1}}

	fused := fuseRRF(DefaultRRFK, keyword, semantic)

	// 1 ranks first in keyword and second in semantic: best overall
	assert.EqualValues(t, 1, fused[0].symbolID)
	// every candidate from either list survives fusion
	assert.Len(t, fused, 4)
	// 3 (rank 2 + rank 0) beats 2 (rank 1 only)
	assert.Less(t, rankIn(fused, 3), rankIn(fused, 2))
}

func TestFuseRRFIgnoresScoreScale(t *testing.T) {
	small := []scored{{1, 0.002}, {2, 0.001}}
	big := []scored{{1, 9000}, {2, 4000}}
	assert.Equal(t, fuseRRF(DefaultRRFK, small), fuseRRF(DefaultRRFK, big))
}

func TestFuseWeightedBlends(t *testing.T) {
	keyword := []scored{{1, 4}, {2, 2}, {3, 0}}
	semantic := []scored{{3, 1.0}, {2, 0.5}, {1, 0.0}}

	// alpha 1.0 is pure keyword ordering
	fused := fuseWeighted(1.0, keyword, semantic)
	assert.EqualValues(t, 1, fused[0].symbolID)

	// alpha 0 is pure semantic ordering
	fused = fuseWeighted(0, keyword, semantic)
	assert.EqualValues(t, 3, fused[0].symbolID)

	// the midpoint balances: 2 is middling on both sides, never first
	fused = fuseWeighted(0.5, keyword, semantic)
	assert.NotEqualValues(t, 2, fused[0].symbolID)
}

func TestFuseWeightedAbsentSideContributesZero(t *testing.T) {
	keyword := []scored{{1, 4}, {2, 2}}
	semantic := []scored{{9, 0.9}}

	fused := fuseWeighted(0.5, keyword, semantic)
	require.Len(t, fused, 3)
	// 9 only scores on the semantic half: 0.5*1.0, same as keyword-best 1
	assert.InDelta(t, 0.5, fused[rankIn(fused, 9)].score, 1e-9)
}

func TestFuseWeightedMonotoneInAlpha(t *testing.T) {
	keyword := []scored{{1, 10}, {2, 8}, {3, 3}}
	semantic := []scored{{3, 0.95}, {2, 0.9}, {1, 0.2}}

	// raising alpha never worsens the keyword-best document's rank
	prev := len(keyword)
	for _, alpha := range []float64{0, 0.25, 0.5, 0.75, 1} {
		fused := fuseWeighted(alpha, keyword, semantic)
		r := rankIn(fused, 1)
		assert.LessOrEqual(t, r, prev, "alpha %v", alpha)
		prev = r
	}
}

func TestNormalizeConstantList(t *testing.T) {
	out := normalize([]scored{{1, 7}, {2, 7}})
	assert.Equal(t, map[int64]float64{1: 1, 2: 1}, out)
	assert.Nil(t, normalize(nil))
}
