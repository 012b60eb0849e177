package resolve

import (
	"errors"

	"github.com/ahollis/treeline/internal/store"
)

// resolveCalls is pass 4: turn each raw call edge into a reference row. A
// bare call resolves by name; a receiver call resolves the receiver's type
// first, then looks the method up on that type and its ancestors. Every
// heuristic step taken shaves confidence; an unresolvable call still gets a
// reference row with a nil target, because "we saw this call and cannot
// place it" is a fact consumers need.
func (p *pass) resolveCalls(fileID int64) error {
	edges, err := p.store.CallEdgesByFile(fileID)
	if err != nil {
		return err
	}
	if len(edges) == 0 {
		return nil
	}
	fileSyms, err := p.store.SymbolsByFile(fileID)
	if err != nil {
		return err
	}
	imports, err := p.store.ImportsByFile(fileID)
	if err != nil {
		return err
	}

	for _, edge := range edges {
		var (
			target     *int64
			confidence float64
			method     string
		)
		if edge.ReceiverExpr == "" && edge.ReceiverType == "" {
			target, confidence, method, err = p.resolveName(edge.CalleeName, fileID, fileSyms, imports)
		} else {
			target, confidence, method, err = p.resolveMethodCall(edge, fileSyms, imports)
		}
		if err != nil {
			return err
		}
		if _, err := p.store.InsertReference(&store.Reference{
			SourceSymbolID:   edge.CallerSymbolID,
			SourceFileID:     edge.FileID,
			SourceLine:       edge.Line,
			Name:             edge.CalleeName,
			TargetSymbolID:   target,
			ReferenceType:    store.RefCall,
			Confidence:       confidence,
			ResolutionMethod: method,
		}); err != nil {
			return err
		}
	}
	return nil
}

// resolveName places a bare name: same file beats import binding beats a
// unique global candidate.
func (p *pass) resolveName(name string, fileID int64, fileSyms []*store.Symbol, imports []*store.ImportLink) (*int64, float64, string, error) {
	for _, sym := range fileSyms {
		if sym.Name == name && sym.ParentSymbolID == nil {
			return &sym.ID, ConfExact, store.MethodExact, nil
		}
	}
	for _, imp := range imports {
		bound := imp.ImportedName
		if imp.Alias != "" {
			bound = imp.Alias
		}
		if bound == name && imp.ResolvedTargetSymbolID != nil {
			return imp.ResolvedTargetSymbolID, ConfImport, store.MethodImport, nil
		}
	}
	candidates, err := p.symbolsNamed(name)
	if err != nil {
		return nil, 0, "", err
	}
	topLevel := topLevelOnly(candidates)
	if len(topLevel) == 1 {
		return &topLevel[0].ID, ConfHeuristic, store.MethodHeuristic, nil
	}
	return nil, ConfUnresolved, store.MethodUnresolved, nil
}

// resolveMethodCall resolves {receiver}.{method}. Confidence starts from how
// the receiver's type was learned and decays with each further step.
func (p *pass) resolveMethodCall(edge *store.CallEdge, fileSyms []*store.Symbol, imports []*store.ImportLink) (*int64, float64, string, error) {
	typeNameStr, typeConf, err := p.receiverType(edge, fileSyms)
	if err != nil {
		return nil, 0, "", err
	}
	if typeNameStr == "" {
		return nil, ConfUnresolved, store.MethodUnresolved, nil
	}

	classID, _, _, err := p.resolveName(typeNameStr, edge.FileID, fileSyms, imports)
	if err != nil {
		return nil, 0, "", err
	}
	if classID == nil {
		return nil, ConfUnresolved, store.MethodUnresolved, nil
	}

	methodID, steps, err := p.lookupMethod(*classID, edge.CalleeName)
	if err != nil {
		return nil, 0, "", err
	}
	if methodID == nil {
		return nil, ConfUnresolved, store.MethodUnresolved, nil
	}

	confidence := typeConf * methodStepFactor
	for range steps {
		confidence *= ancestorStepFactor
	}
	return methodID, confidence, store.MethodHeuristic, nil
}

// receiverType determines the receiver's type name and how much to trust it.
// A type recorded on the edge itself (constructor receiver like Child())
// is syntactically certain; a named variable goes through tracked TypeInfo.
func (p *pass) receiverType(edge *store.CallEdge, fileSyms []*store.Symbol) (string, float64, error) {
	if edge.ReceiverType != "" {
		return edge.ReceiverType, ConfExact, nil
	}
	for _, sym := range fileSyms {
		if sym.Name != edge.ReceiverExpr {
			continue
		}
		ti, err := resolvedTypeOrNone(p.store, sym.ID)
		if err != nil {
			return "", 0, err
		}
		if ti != nil {
			return typeName(ti), ti.Confidence, nil
		}
	}
	return "", 0, nil
}

// lookupMethod finds a method on the class or, walking the MRO, on an
// ancestor. steps counts inheritance hops taken. A hierarchy cycle makes the
// method unresolvable here; the cycle itself surfaces when the class is
// linearized directly.
func (p *pass) lookupMethod(classID int64, methodName string) (*int64, int, error) {
	mro, err := Linearize(p.store, classID)
	if err != nil {
		var cyc *CyclicInheritanceError
		if errors.As(err, &cyc) {
			return nil, 0, nil // cycle: degrade this call, do not fail the pass
		}
		return nil, 0, err
	}
	for steps, ancestorID := range mro {
		methods, err := p.methodsOf(ancestorID)
		if err != nil {
			return nil, 0, err
		}
		for _, m := range methods {
			if m.Name == methodName {
				return &m.ID, steps, nil
			}
		}
	}
	return nil, 0, nil
}

func (p *pass) methodsOf(classID int64) ([]*store.Symbol, error) {
	cls, err := p.store.SymbolByID(classID)
	if err != nil || cls == nil {
		return nil, err
	}
	syms, err := p.store.SymbolsByFile(cls.FileID)
	if err != nil {
		return nil, err
	}
	var methods []*store.Symbol
	for _, s := range syms {
		if s.ParentSymbolID != nil && *s.ParentSymbolID == classID {
			methods = append(methods, s)
		}
	}
	return methods, nil
}
