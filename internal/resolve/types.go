package resolve

import (
	"errors"

	"github.com/ahollis/treeline/internal/store"
)

// propagateImportTypes is pass 2's write half: when a symbol's only type
// evidence names an imported symbol, record a propagated fact at import
// confidence. Reading the winning fact happens in ResolvedType.
func (p *pass) propagateImportTypes(fileID int64) error {
	imports, err := p.store.ImportsByFile(fileID)
	if err != nil {
		return err
	}
	importedTypes := make(map[string]bool)
	for _, imp := range imports {
		if imp.ResolvedTargetSymbolID == nil {
			continue
		}
		importedTypes[imp.ImportedName] = true
		if imp.Alias != "" {
			importedTypes[imp.Alias] = true
		}
	}
	if len(importedTypes) == 0 {
		return nil
	}

	syms, err := p.store.SymbolsByFile(fileID)
	if err != nil {
		return err
	}
	for _, sym := range syms {
		infos, err := p.store.TypeInfoByOwner(sym.ID)
		if err != nil {
			return err
		}
		for _, ti := range infos {
			if ti.Source != store.TypeSourceInstantiation && ti.Source != store.TypeSourceAnnotation {
				continue
			}
			name := typeName(ti)
			if name == "" || !importedTypes[name] {
				continue
			}
			// Type named through an import: the fact's provenance crosses a
			// module boundary, so a propagated copy at import confidence makes
			// the chain visible to consumers.
			if _, err := p.store.InsertTypeInfo(&store.TypeInfo{
				OwnerSymbolID: sym.ID,
				InferredType:  name,
				Source:        store.TypeSourceImport,
				Confidence:    ConfImportType,
			}); err != nil {
				return err
			}
			break
		}
	}
	return nil
}

// deriveTypeReferences materializes instantiation and annotation facts as
// reference rows so "who uses this type" queries see them alongside calls.
func (p *pass) deriveTypeReferences(fileID int64) error {
	fileSyms, err := p.store.SymbolsByFile(fileID)
	if err != nil {
		return err
	}
	imports, err := p.store.ImportsByFile(fileID)
	if err != nil {
		return err
	}
	for _, sym := range fileSyms {
		infos, err := p.store.TypeInfoByOwner(sym.ID)
		if err != nil {
			return err
		}
		for _, ti := range infos {
			var refType string
			switch ti.Source {
			case store.TypeSourceInstantiation:
				refType = store.RefInstantiate
			case store.TypeSourceAnnotation:
				refType = store.RefTypeAnnotation
			default:
				continue
			}
			name := typeName(ti)
			if name == "" {
				continue
			}
			target, confidence, method, err := p.resolveName(name, fileID, fileSyms, imports)
			if err != nil {
				return err
			}
			ownerID := sym.ID
			if _, err := p.store.InsertReference(&store.Reference{
				SourceSymbolID:   &ownerID,
				SourceFileID:     fileID,
				SourceLine:       sym.StartLine,
				Name:             name,
				TargetSymbolID:   target,
				ReferenceType:    refType,
				Confidence:       confidence,
				ResolutionMethod: method,
			}); err != nil {
				return err
			}
		}
	}
	return nil
}

// ResolvedType picks the winning type fact for a symbol: highest confidence,
// with equal-confidence disagreement surfaced as *AmbiguousTypeError rather
// than arbitrated. A nil TypeInfo result means no evidence at all.
func ResolvedType(s *store.Store, symbolID int64) (*store.TypeInfo, error) {
	infos, err := s.TypeInfoByOwner(symbolID)
	if err != nil {
		return nil, err
	}
	if len(infos) == 0 {
		return nil, nil
	}

	best := infos[0] // rows come back ordered by confidence DESC
	for _, ti := range infos[1:] {
		if ti.Confidence < best.Confidence {
			break
		}
		if typeName(ti) != typeName(best) {
			return nil, &AmbiguousTypeError{
				SymbolID:   symbolID,
				TypeA:      typeName(best),
				TypeB:      typeName(ti),
				Confidence: best.Confidence,
			}
		}
	}
	return best, nil
}

// typeName returns the fact's effective type: declared wins over inferred.
func typeName(ti *store.TypeInfo) string {
	if ti.DeclaredType != "" {
		return ti.DeclaredType
	}
	return ti.InferredType
}

// resolvedTypeOrNone swallows ambiguity into "no answer" for callers that
// only degrade (call resolution); the ambiguity itself stays queryable.
func resolvedTypeOrNone(s *store.Store, symbolID int64) (*store.TypeInfo, error) {
	ti, err := ResolvedType(s, symbolID)
	var ambiguous *AmbiguousTypeError
	if errors.As(err, &ambiguous) {
		return nil, nil
	}
	return ti, err
}
