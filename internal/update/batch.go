package update

import (
	"github.com/ahollis/treeline/internal/facts"
	"github.com/ahollis/treeline/internal/resolve"
	"github.com/ahollis/treeline/internal/store"
)

// batchFromFacts converts one file's extraction output into a store batch.
// Only extraction-domain rows are produced here; references are derived later
// by the resolver from these rows.
func batchFromFacts(fx *facts.FileFacts) *store.Batch {
	batch := store.NewBatch()

	// Symbols first, so every other fact can point at a fake ID. A parent may
	// be declared after its child in the fact slice, so allocate IDs for all
	// symbols before patching parents in.
	fakeIDs := make([]int64, len(fx.Symbols))
	for i, sf := range fx.Symbols {
		fakeIDs[i] = batch.AddSymbol(store.Symbol{
			Name:          sf.Name,
			Kind:          sf.Kind,
			Language:      fx.Language,
			Signature:     sf.Signature,
			Doc:           sf.Doc,
			ReturnType:    sf.ReturnType,
			Parameters:    paramsFromFacts(sf.Params),
			StartLine:     sf.StartLine,
			EndLine:       sf.EndLine,
			SignatureHash: store.ComputeSignatureHash(sf.Name, sf.Kind, sf.Signature, sf.ReturnType, paramsFromFacts(sf.Params)),
		})
	}
	for i, sf := range fx.Symbols {
		if sf.Parent != facts.NoSymbol {
			parent := fakeIDs[sf.Parent]
			batch.Symbols[i].ParentSymbolID = &parent
		}
	}

	refID := func(ref facts.SymbolRef) *int64 {
		if ref == facts.NoSymbol {
			return nil
		}
		id := fakeIDs[ref]
		return &id
	}

	for _, imp := range fx.Imports {
		batch.AddImportLink(store.ImportLink{
			ImportedName: imp.ImportedName,
			SourceModule: imp.SourceModule,
			Alias:        imp.Alias,
			Confidence:   resolve.ConfUnresolved,
		})
	}
	for _, call := range fx.Calls {
		batch.AddCallEdge(store.CallEdge{
			CallerSymbolID: refID(call.Caller),
			CalleeName:     call.CalleeName,
			ReceiverExpr:   call.ReceiverExpr,
			ReceiverType:   call.ReceiverType,
			Line:           call.Line,
		})
	}
	for _, ann := range fx.Annotations {
		if ann.Owner == facts.NoSymbol {
			continue
		}
		batch.AddTypeInfo(store.TypeInfo{
			OwnerSymbolID: fakeIDs[ann.Owner],
			DeclaredType:  ann.TypeExpr,
			Source:        store.TypeSourceAnnotation,
			Confidence:    resolve.ConfAnnotation,
		})
	}
	for _, inst := range fx.Instantiations {
		if inst.Owner == facts.NoSymbol {
			continue
		}
		batch.AddTypeInfo(store.TypeInfo{
			OwnerSymbolID: fakeIDs[inst.Owner],
			InferredType:  inst.TypeName,
			Source:        store.TypeSourceInstantiation,
			Confidence:    resolve.ConfInstantiation,
		})
	}
	for _, base := range fx.Bases {
		batch.AddInheritanceEdge(store.InheritanceEdge{
			SubclassSymbolID: fakeIDs[base.Subclass],
			SuperclassName:   base.SuperclassName,
			Position:         base.Position,
		})
	}
	return batch
}

func paramsFromFacts(params []facts.ParamFact) []store.Param {
	if len(params) == 0 {
		return nil
	}
	out := make([]store.Param, len(params))
	for i, p := range params {
		out[i] = store.Param{Name: p.Name, TypeExpr: p.TypeExpr}
	}
	return out
}
