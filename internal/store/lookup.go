package store

import (
	"fmt"
	"strings"
)

// SymbolHint narrows a name lookup when several definitions share a name.
type SymbolHint struct {
	PathHint string // substring of the defining file's path
	Kind     string // exact symbol kind
}

// GetSymbol returns the one symbol matching name under the hint, nil when
// nothing matches, or *AmbiguousSymbolError carrying every candidate when
// the hint does not pin a single definition. It never guesses.
func (s *Store) GetSymbol(name string, hint SymbolHint) (*Symbol, error) {
	candidates, err := s.SymbolsByName(name)
	if err != nil {
		return nil, fmt.Errorf("get symbol: %w", err)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	if hint.Kind != "" {
		candidates = filterSymbols(candidates, func(sym *Symbol) bool {
			return sym.Kind == hint.Kind
		})
	}
	if hint.PathHint != "" && len(candidates) > 1 {
		paths, err := s.FilePaths()
		if err != nil {
			return nil, fmt.Errorf("get symbol: %w", err)
		}
		narrowed := filterSymbols(candidates, func(sym *Symbol) bool {
			return strings.Contains(paths[sym.FileID], hint.PathHint)
		})
		if len(narrowed) > 0 {
			candidates = narrowed
		}
	}

	switch len(candidates) {
	case 0:
		return nil, nil
	case 1:
		return candidates[0], nil
	default:
		return nil, &AmbiguousSymbolError{Name: name, Candidates: candidates}
	}
}

func filterSymbols(syms []*Symbol, keep func(*Symbol) bool) []*Symbol {
	var out []*Symbol
	for _, s := range syms {
		if keep(s) {
			out = append(out, s)
		}
	}
	return out
}
