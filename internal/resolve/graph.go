package resolve

import (
	"context"
	"fmt"

	"github.com/ahollis/treeline/internal/store"
)

// Direction selects which way a call-graph walk follows edges.
type Direction string

const (
	Callees Direction = "callees" // what does this symbol call
	Callers Direction = "callers" // who calls this symbol
)

// maxCallGraphDepth caps traversal regardless of what the caller asks for.
const maxCallGraphDepth = 100

// CallGraph is the bounded subgraph reachable from one seed symbol.
type CallGraph struct {
	Root  int64
	Nodes []CallGraphNode
	Edges []CallGraphEdge
	Depth int // deepest level actually reached
}

// CallGraphNode is one symbol in the walk. Cycle marks a node whose
// expansion was cut because it was already on the path: traversal treats it
// as terminal instead of recursing.
type CallGraphNode struct {
	SymbolID int64
	Depth    int
	Cycle    bool
}

// CallGraphEdge carries the resolved call fact, confidence included, so
// consumers can judge how much to trust each hop.
type CallGraphEdge struct {
	FromID     int64
	ToID       int64
	FileID     int64
	Line       int
	Confidence float64
}

// BuildCallGraph walks resolved call references from seed, breadth-first,
// out to maxDepth hops. Diamond paths are visited once; cycles become
// terminal nodes. Edges with unresolved targets are not part of the graph.
func BuildCallGraph(ctx context.Context, s *store.Store, seed int64, direction Direction, maxDepth int) (*CallGraph, error) {
	if maxDepth < 0 {
		return nil, fmt.Errorf("call graph: depth must be non-negative, got %d", maxDepth)
	}
	if maxDepth > maxCallGraphDepth {
		maxDepth = maxCallGraphDepth
	}

	root, err := s.SymbolByID(seed)
	if err != nil {
		return nil, fmt.Errorf("call graph: %w", err)
	}
	if root == nil {
		return nil, nil
	}

	adj, edgeIndex, err := loadCallAdjacency(ctx, s, direction)
	if err != nil {
		return nil, err
	}

	graph := &CallGraph{Root: seed}
	visited := map[int64]bool{seed: true}
	frontier := []int64{seed}
	graph.Nodes = append(graph.Nodes, CallGraphNode{SymbolID: seed, Depth: 0})

	for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var next []int64
		for _, from := range frontier {
			for _, to := range adj[from] {
				for _, e := range edgeIndex[pair{from, to}] {
					graph.Edges = append(graph.Edges, e)
				}
				if visited[to] {
					// Already reached by another path: either a diamond join
					// (skip quietly) or a back-edge, which we mark terminal.
					markCycleIfAncestor(graph, to, depth+1)
					continue
				}
				visited[to] = true
				graph.Nodes = append(graph.Nodes, CallGraphNode{SymbolID: to, Depth: depth + 1})
				graph.Depth = depth + 1
				next = append(next, to)
			}
		}
		frontier = next
	}
	return graph, nil
}

type pair struct{ from, to int64 }

// loadCallAdjacency bulk-loads all resolved call references once, so the BFS
// never issues per-node queries.
func loadCallAdjacency(ctx context.Context, s *store.Store, direction Direction) (map[int64][]int64, map[pair][]CallGraphEdge, error) {
	adj := make(map[int64][]int64)
	edges := make(map[pair][]CallGraphEdge)

	err := s.StreamReferences(ctx, nil, func(ref *store.Reference) error {
		if ref.ReferenceType != store.RefCall || ref.TargetSymbolID == nil || ref.SourceSymbolID == nil {
			return nil
		}
		from, to := *ref.SourceSymbolID, *ref.TargetSymbolID
		if direction == Callers {
			from, to = to, from
		}
		key := pair{from, to}
		if len(edges[key]) == 0 {
			adj[from] = append(adj[from], to)
		}
		edges[key] = append(edges[key], CallGraphEdge{
			FromID:     from,
			ToID:       to,
			FileID:     ref.SourceFileID,
			Line:       ref.SourceLine,
			Confidence: ref.Confidence,
		})
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("call graph: load references: %w", err)
	}
	return adj, edges, nil
}

// markCycleIfAncestor flags a node as a cycle terminal when it reappears at
// a deeper level than it was first seen, which means a back-edge closed a
// loop through it.
func markCycleIfAncestor(g *CallGraph, symbolID int64, atDepth int) {
	for i := range g.Nodes {
		if g.Nodes[i].SymbolID == symbolID && g.Nodes[i].Depth < atDepth {
			g.Nodes[i].Cycle = true
			return
		}
	}
}
