package resolve

import "github.com/ahollis/treeline/internal/store"

// resolveImports is pass 1: map each of a file's import links to a concrete
// symbol. Module-path + name agreement is an exact match (1.0); a unique
// name-only candidate is a heuristic match (0.6); anything else stays
// unresolved at confidence zero; multiple equally plausible candidates are
// never guessed between.
func (p *pass) resolveImports(fileID int64) error {
	imports, err := p.store.ImportsByFile(fileID)
	if err != nil {
		return err
	}
	for _, imp := range imports {
		target, confidence, err := p.resolveImportTarget(imp)
		if err != nil {
			return err
		}
		if err := p.store.UpdateImportResolution(imp.ID, target, confidence); err != nil {
			return err
		}
	}
	return nil
}

func (p *pass) resolveImportTarget(imp *store.ImportLink) (*int64, float64, error) {
	candidates, err := p.symbolsNamed(imp.ImportedName)
	if err != nil {
		return nil, 0, err
	}
	if len(candidates) == 0 {
		return nil, ConfUnresolved, nil
	}

	// Exact: the candidate's defining file matches the declared module path.
	var exact []*store.Symbol
	for _, c := range candidates {
		if moduleMatchesPath(imp.SourceModule, p.filePaths[c.FileID]) {
			exact = append(exact, c)
		}
	}
	if len(exact) == 1 {
		return &exact[0].ID, ConfExact, nil
	}
	if len(exact) > 1 {
		// Same module path holds several same-named symbols; ambiguous.
		return nil, ConfUnresolved, nil
	}

	// Heuristic: the name exists in exactly one place, module path unknown.
	topLevel := topLevelOnly(candidates)
	if len(topLevel) == 1 {
		return &topLevel[0].ID, ConfHeuristic, nil
	}
	return nil, ConfUnresolved, nil
}

// topLevelOnly drops nested symbols (methods, inner classes): imports bind
// module-level names.
func topLevelOnly(syms []*store.Symbol) []*store.Symbol {
	var out []*store.Symbol
	for _, s := range syms {
		if s.ParentSymbolID == nil {
			out = append(out, s)
		}
	}
	return out
}
