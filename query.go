package treeline

import (
	"fmt"
	"sort"

	"github.com/ahollis/treeline/internal/resolve"
	"github.com/ahollis/treeline/internal/store"
)

// QueryBuilder is the read-side facade consumers use: symbol lookup,
// reference traversal, types. It only ever reads committed state.
type QueryBuilder struct {
	store *store.Store
}

// GetSymbol finds a symbol by name. When several match, it returns
// *AmbiguousSymbolError carrying every candidate; the hint narrows by path
// prefix and kind. It never picks one for you.
func (q *QueryBuilder) GetSymbol(name string, hint SymbolHint) (*Symbol, error) {
	return q.store.GetSymbol(name, hint)
}

// SymbolsNamed returns every symbol with the given name.
func (q *QueryBuilder) SymbolsNamed(name string) ([]*Symbol, error) {
	return q.store.SymbolsByName(name)
}

// SymbolsInFile returns a file's symbols in declaration order.
func (q *QueryBuilder) SymbolsInFile(path string) ([]*Symbol, error) {
	f, err := q.store.FileByPath(path)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, fmt.Errorf("file not indexed: %s", path)
	}
	return q.store.SymbolsByFile(f.ID)
}

// References returns every reference resolved to the symbol, each carrying
// its confidence and resolution method.
func (q *QueryBuilder) References(symbolID int64) ([]*Reference, error) {
	return q.store.ReferencesByTarget(symbolID)
}

// ReferencesByName returns references by callee/target name, including
// unresolved ones. Useful when the target itself is ambiguous or missing.
func (q *QueryBuilder) ReferencesByName(name string) ([]*Reference, error) {
	return q.store.ReferencesByName(name)
}

// Dependents lists the paths of files holding references to the symbol,
// the gate an edit layer checks before touching something heavily used.
func (q *QueryBuilder) Dependents(symbolID int64) ([]string, error) {
	fileIDs, err := q.store.FilesReferencingSymbols([]int64{symbolID})
	if err != nil {
		return nil, err
	}
	paths, err := q.store.FilePaths()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(fileIDs))
	for _, id := range fileIDs {
		if p, ok := paths[id]; ok {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out, nil
}

// FileImports returns a file's import links with their resolution state.
func (q *QueryBuilder) FileImports(path string) ([]*ImportLink, error) {
	f, err := q.store.FileByPath(path)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, fmt.Errorf("file not indexed: %s", path)
	}
	return q.store.ImportsByFile(f.ID)
}

// ResolvedType returns the winning type fact for a symbol, or nil when
// nothing is known. Two equal-confidence disagreeing facts surface as
// *AmbiguousTypeError rather than an arbitrary pick.
func (q *QueryBuilder) ResolvedType(symbolID int64) (*TypeInfo, error) {
	return resolve.ResolvedType(q.store, symbolID)
}

// Metadata returns the index's single metadata row.
func (q *QueryBuilder) Metadata() (*IndexMetadata, error) {
	return q.store.Metadata()
}
