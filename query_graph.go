package treeline

import (
	"context"

	"github.com/ahollis/treeline/internal/resolve"
)

// CallGraphFrom walks resolved call references out from a seed symbol.
// Direction Callees follows calls made; Callers follows calls received.
// Depth bounds the walk; diamond paths dedupe and cycles become terminal
// nodes instead of recursing.
func (q *QueryBuilder) CallGraphFrom(ctx context.Context, symbolID int64, direction resolve.Direction, depth int) (*CallGraph, error) {
	return resolve.BuildCallGraph(ctx, q.store, symbolID, direction, depth)
}
