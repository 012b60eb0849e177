package treeline

import (
	"github.com/ahollis/treeline/internal/resolve"
	"github.com/ahollis/treeline/internal/search"
	"github.com/ahollis/treeline/internal/store"
)

// Re-exported data types. The internal packages own the definitions; callers
// outside the module see them through these names.
type (
	Symbol          = store.Symbol
	FileRecord      = store.FileRecord
	Reference       = store.Reference
	ImportLink      = store.ImportLink
	TypeInfo        = store.TypeInfo
	InheritanceEdge = store.InheritanceEdge
	IndexMetadata   = store.IndexMetadata
	SymbolHint      = store.SymbolHint

	CallGraph     = resolve.CallGraph
	CallGraphNode = resolve.CallGraphNode
	CallGraphEdge = resolve.CallGraphEdge

	SearchResult = search.Result
	SearchHit    = search.Hit
	Embedder     = search.Embedder
	Mode         = search.Mode
)

// Search modes and fusion strategies.
const (
	ModeAuto     = search.ModeAuto
	ModeKeyword  = search.ModeKeyword
	ModeSemantic = search.ModeSemantic
	ModeHybrid   = search.ModeHybrid
)

// Call graph directions.
const (
	Callees = resolve.Callees
	Callers = resolve.Callers
)

// Error types callers are expected to inspect.
type (
	IndexWriteError        = store.IndexWriteError
	IndexCorruptionError   = store.IndexCorruptionError
	AmbiguousSymbolError   = store.AmbiguousSymbolError
	CyclicInheritanceError = resolve.CyclicInheritanceError
	AmbiguousTypeError     = resolve.AmbiguousTypeError
)
