package resolve

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahollis/treeline/internal/store"
)

func addCallRef(t *testing.T, s *store.Store, fileID, from, to int64, line int) {
	t.Helper()
	_, err := s.InsertReference(&store.Reference{
		SourceSymbolID: &from, SourceFileID: fileID, SourceLine: line,
		Name: "callee", TargetSymbolID: &to,
		ReferenceType: store.RefCall, Confidence: 1.0, ResolutionMethod: store.MethodExact,
	})
	require.NoError(t, err)
}

func nodeIDs(g *CallGraph) []int64 {
	ids := make([]int64, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		ids = append(ids, n.SymbolID)
	}
	return ids
}

func TestCallGraphCallees(t *testing.T) {
	s := newTestStore(t)
	f := addFile(t, s, "a.py", "python")
	main := addSymbol(t, s, f, "main", "function", 1, nil)
	mid := addSymbol(t, s, f, "mid", "function", 10, nil)
	leaf := addSymbol(t, s, f, "leaf", "function", 20, nil)
	addCallRef(t, s, f, main, mid, 2)
	addCallRef(t, s, f, mid, leaf, 11)

	g, err := BuildCallGraph(context.Background(), s, main, Callees, 5)
	require.NoError(t, err)
	assert.Equal(t, main, g.Root)
	assert.Equal(t, 2, g.Depth)
	assert.ElementsMatch(t, []int64{main, mid, leaf}, nodeIDs(g))
	assert.Len(t, g.Edges, 2)
}

func TestCallGraphDepthBound(t *testing.T) {
	s := newTestStore(t)
	f := addFile(t, s, "a.py", "python")
	main := addSymbol(t, s, f, "main", "function", 1, nil)
	mid := addSymbol(t, s, f, "mid", "function", 10, nil)
	leaf := addSymbol(t, s, f, "leaf", "function", 20, nil)
	addCallRef(t, s, f, main, mid, 2)
	addCallRef(t, s, f, mid, leaf, 11)

	g, err := BuildCallGraph(context.Background(), s, main, Callees, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, g.Depth)
	assert.ElementsMatch(t, []int64{main, mid}, nodeIDs(g))
}

func TestCallGraphCallersReversesEdges(t *testing.T) {
	s := newTestStore(t)
	f := addFile(t, s, "a.py", "python")
	caller1 := addSymbol(t, s, f, "one", "function", 1, nil)
	caller2 := addSymbol(t, s, f, "two", "function", 10, nil)
	target := addSymbol(t, s, f, "shared", "function", 20, nil)
	addCallRef(t, s, f, caller1, target, 2)
	addCallRef(t, s, f, caller2, target, 11)

	g, err := BuildCallGraph(context.Background(), s, target, Callers, 3)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{target, caller1, caller2}, nodeIDs(g))
}

func TestCallGraphCycleIsTerminal(t *testing.T) {
	s := newTestStore(t)
	f := addFile(t, s, "a.py", "python")
	ping := addSymbol(t, s, f, "ping", "function", 1, nil)
	pong := addSymbol(t, s, f, "pong", "function", 10, nil)
	addCallRef(t, s, f, ping, pong, 2)
	addCallRef(t, s, f, pong, ping, 11)

	g, err := BuildCallGraph(context.Background(), s, ping, Callees, 10)
	require.NoError(t, err)
	require.Len(t, g.Nodes, 2)

	var cycled bool
	for _, n := range g.Nodes {
		if n.SymbolID == ping {
			cycled = n.Cycle
		}
	}
	assert.True(t, cycled, "back-edge target should be marked as cycle terminal")
}

func TestCallGraphDiamondVisitedOnce(t *testing.T) {
	s := newTestStore(t)
	f := addFile(t, s, "a.py", "python")
	top := addSymbol(t, s, f, "top", "function", 1, nil)
	left := addSymbol(t, s, f, "left", "function", 10, nil)
	right := addSymbol(t, s, f, "right", "function", 20, nil)
	bottom := addSymbol(t, s, f, "bottom", "function", 30, nil)
	addCallRef(t, s, f, top, left, 2)
	addCallRef(t, s, f, top, right, 3)
	addCallRef(t, s, f, left, bottom, 11)
	addCallRef(t, s, f, right, bottom, 21)

	g, err := BuildCallGraph(context.Background(), s, top, Callees, 5)
	require.NoError(t, err)
	assert.Len(t, g.Nodes, 4) // bottom appears once
	assert.Len(t, g.Edges, 4) // both edges into bottom survive

	for _, n := range g.Nodes {
		assert.False(t, n.Cycle, "diamond join is not a cycle")
	}
}

func TestCallGraphMissingSeed(t *testing.T) {
	s := newTestStore(t)
	g, err := BuildCallGraph(context.Background(), s, 999, Callees, 3)
	require.NoError(t, err)
	assert.Nil(t, g)
}
