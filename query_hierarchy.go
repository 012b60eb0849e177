package treeline

import (
	"github.com/ahollis/treeline/internal/resolve"
	"github.com/ahollis/treeline/internal/store"
)

// MRO is a class's method resolution order, the class itself first.
type MRO struct {
	Class *Symbol
	Order []*Symbol
	Names []string
}

// ResolveInheritance computes the MRO for a class found by name. Ambiguous
// names return *AmbiguousSymbolError; an inheritance cycle returns
// *CyclicInheritanceError for that class while the rest of the index stays
// queryable.
func (q *QueryBuilder) ResolveInheritance(className string, hint SymbolHint) (*MRO, error) {
	class, err := q.store.GetSymbol(className, hint)
	if err != nil {
		return nil, err
	}
	if class == nil {
		return nil, nil
	}

	order, err := resolve.Linearize(q.store, class.ID)
	if err != nil {
		return nil, err
	}

	syms, err := q.store.SymbolsByIDs(order)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]*store.Symbol, len(syms))
	for _, sym := range syms {
		byID[sym.ID] = sym
	}

	mro := &MRO{Class: class}
	for _, id := range order {
		sym := byID[id]
		if sym == nil {
			continue
		}
		mro.Order = append(mro.Order, sym)
		mro.Names = append(mro.Names, sym.Name)
	}
	return mro, nil
}

// Superclasses returns a class's direct bases in declaration order, resolved
// where resolution succeeded.
func (q *QueryBuilder) Superclasses(classID int64) ([]*InheritanceEdge, error) {
	return q.store.InheritanceEdgesBySubclass(classID)
}

// Subclasses returns the classes directly inheriting from the given one.
func (q *QueryBuilder) Subclasses(classID int64) ([]*Symbol, error) {
	edges, err := q.store.AllInheritanceEdges()
	if err != nil {
		return nil, err
	}
	var ids []int64
	for _, e := range edges {
		if e.ResolvedSuperclassSymbolID != nil && *e.ResolvedSuperclassSymbolID == classID {
			ids = append(ids, e.SubclassSymbolID)
		}
	}
	return q.store.SymbolsByIDs(ids)
}
