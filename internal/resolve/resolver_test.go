package resolve

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahollis/treeline/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func addFile(t *testing.T, s *store.Store, path, language string) int64 {
	t.Helper()
	id, err := s.InsertFile(&store.FileRecord{Path: path, Language: language, ContentHash: path})
	require.NoError(t, err)
	return id
}

func addSymbol(t *testing.T, s *store.Store, fileID int64, name, kind string, line int, parent *int64) int64 {
	t.Helper()
	id, err := s.InsertSymbol(&store.Symbol{
		FileID: fileID, Name: name, Kind: kind, Language: "python",
		StartLine: line, EndLine: line + 3, ParentSymbolID: parent,
		SignatureHash: store.ComputeSignatureHash(name, kind, "", "", nil),
	})
	require.NoError(t, err)
	return id
}

func addCall(t *testing.T, s *store.Store, fileID int64, caller *int64, callee, receiver string, line int) {
	t.Helper()
	_, err := s.InsertCallEdge(&store.CallEdge{
		CallerSymbolID: caller, FileID: fileID,
		CalleeName: callee, ReceiverExpr: receiver, Line: line,
	})
	require.NoError(t, err)
}

func refByName(t *testing.T, refs []*store.Reference, name string) *store.Reference {
	t.Helper()
	for _, r := range refs {
		if r.Name == name {
			return r
		}
	}
	t.Fatalf("no reference named %q", name)
	return nil
}

func TestCallConfidenceOrdering(t *testing.T) {
	s := newTestStore(t)

	lib := addFile(t, s, "pkg/lib.py", "python")
	compute := addSymbol(t, s, lib, "compute", "function", 1, nil)
	addSymbol(t, s, lib, "unique_helper", "function", 10, nil)
	addCall(t, s, lib, &compute, "compute", "", 2) // same-file recursion

	app := addFile(t, s, "app.py", "python")
	_, err := s.InsertImportLink(&store.ImportLink{
		FileID: app, ImportedName: "compute", SourceModule: "pkg.lib",
	})
	require.NoError(t, err)
	addCall(t, s, app, nil, "compute", "", 3)       // via import
	addCall(t, s, app, nil, "unique_helper", "", 4) // unique global, no import
	addCall(t, s, app, nil, "mystery", "", 5)       // nowhere

	require.NoError(t, New(s).Run(context.Background(), nil))

	libRefs, err := s.ReferencesByFile(lib)
	require.NoError(t, err)
	exact := refByName(t, libRefs, "compute")
	assert.Equal(t, ConfExact, exact.Confidence)
	assert.Equal(t, store.MethodExact, exact.ResolutionMethod)
	require.NotNil(t, exact.TargetSymbolID)
	assert.Equal(t, compute, *exact.TargetSymbolID)

	appRefs, err := s.ReferencesByFile(app)
	require.NoError(t, err)

	imported := refByName(t, appRefs, "compute")
	assert.Equal(t, ConfImport, imported.Confidence)
	assert.Equal(t, store.MethodImport, imported.ResolutionMethod)
	require.NotNil(t, imported.TargetSymbolID)
	assert.Equal(t, compute, *imported.TargetSymbolID)

	heuristic := refByName(t, appRefs, "unique_helper")
	assert.Equal(t, ConfHeuristic, heuristic.Confidence)
	assert.Equal(t, store.MethodHeuristic, heuristic.ResolutionMethod)

	unresolved := refByName(t, appRefs, "mystery")
	assert.Equal(t, ConfUnresolved, unresolved.Confidence)
	assert.Equal(t, store.MethodUnresolved, unresolved.ResolutionMethod)
	assert.Nil(t, unresolved.TargetSymbolID)
}

func TestAmbiguousNameStaysUnresolved(t *testing.T) {
	s := newTestStore(t)

	f1 := addFile(t, s, "a/util.py", "python")
	addSymbol(t, s, f1, "parse", "function", 1, nil)
	f2 := addFile(t, s, "b/util.py", "python")
	addSymbol(t, s, f2, "parse", "function", 1, nil)

	app := addFile(t, s, "main.py", "python")
	addCall(t, s, app, nil, "parse", "", 2)

	require.NoError(t, New(s).Run(context.Background(), nil))

	refs, err := s.ReferencesByFile(app)
	require.NoError(t, err)
	ref := refByName(t, refs, "parse")
	assert.Nil(t, ref.TargetSymbolID)
	assert.Equal(t, ConfUnresolved, ref.Confidence)
}

func TestImportResolutionModulePathBeatsHeuristic(t *testing.T) {
	s := newTestStore(t)

	f1 := addFile(t, s, "a/util.py", "python")
	want := addSymbol(t, s, f1, "parse", "function", 1, nil)
	f2 := addFile(t, s, "b/util.py", "python")
	addSymbol(t, s, f2, "parse", "function", 1, nil)

	app := addFile(t, s, "main.py", "python")
	impID, err := s.InsertImportLink(&store.ImportLink{
		FileID: app, ImportedName: "parse", SourceModule: "a.util",
	})
	require.NoError(t, err)

	require.NoError(t, New(s).Run(context.Background(), nil))

	imports, err := s.ImportsByFile(app)
	require.NoError(t, err)
	require.Len(t, imports, 1)
	require.Equal(t, impID, imports[0].ID)
	require.NotNil(t, imports[0].ResolvedTargetSymbolID)
	assert.Equal(t, want, *imports[0].ResolvedTargetSymbolID)
	assert.Equal(t, ConfExact, imports[0].Confidence)
}

func TestMethodCallConfidenceDecay(t *testing.T) {
	s := newTestStore(t)

	lib := addFile(t, s, "widgets.py", "python")
	widget := addSymbol(t, s, lib, "Widget", "class", 1, nil)
	render := addSymbol(t, s, lib, "render", "method", 3, &widget)
	base := addSymbol(t, s, lib, "Base", "class", 20, nil)
	greet := addSymbol(t, s, lib, "greet", "method", 22, &base)
	_, err := s.InsertInheritanceEdge(&store.InheritanceEdge{
		SubclassSymbolID: widget, SuperclassName: "Base", Position: 0,
	})
	require.NoError(t, err)

	app := addFile(t, s, "app.py", "python")
	w := addSymbol(t, s, app, "w", "variable", 1, nil)
	_, err = s.InsertTypeInfo(&store.TypeInfo{
		OwnerSymbolID: w, DeclaredType: "Widget",
		Source: store.TypeSourceAnnotation, Confidence: ConfAnnotation,
	})
	require.NoError(t, err)
	addCall(t, s, app, nil, "render", "w", 5)
	addCall(t, s, app, nil, "greet", "w", 6)

	require.NoError(t, New(s).Run(context.Background(), nil))

	refs, err := s.ReferencesByFile(app)
	require.NoError(t, err)

	// own method: annotation confidence x one method step
	own := refByName(t, refs, "render")
	require.NotNil(t, own.TargetSymbolID)
	assert.Equal(t, render, *own.TargetSymbolID)
	assert.InDelta(t, 1.0*0.9, own.Confidence, 1e-9)

	// inherited method: one ancestor hop shaves a further 5%
	inherited := refByName(t, refs, "greet")
	require.NotNil(t, inherited.TargetSymbolID)
	assert.Equal(t, greet, *inherited.TargetSymbolID)
	assert.InDelta(t, 1.0*0.9*0.95, inherited.Confidence, 1e-9)
	assert.GreaterOrEqual(t, inherited.Confidence, 0.8)
}

func TestMethodCallOnCyclicHierarchyDegrades(t *testing.T) {
	s := newTestStore(t)

	lib := addFile(t, s, "cycle.py", "python")
	ouro := addSymbol(t, s, lib, "Ouro", "class", 1, nil)
	boros := addSymbol(t, s, lib, "Boros", "class", 10, nil)
	addSymbol(t, s, lib, "spin", "method", 3, &ouro)
	addBase(t, s, ouro, "Boros", 0)
	addBase(t, s, boros, "Ouro", 0)

	app := addFile(t, s, "app.py", "python")
	obj := addSymbol(t, s, app, "obj", "variable", 1, nil)
	_, err := s.InsertTypeInfo(&store.TypeInfo{
		OwnerSymbolID: obj, DeclaredType: "Ouro",
		Source: store.TypeSourceAnnotation, Confidence: ConfAnnotation,
	})
	require.NoError(t, err)
	addCall(t, s, app, nil, "spin", "obj", 3)

	// the hierarchy cycle degrades this one call; the pass itself succeeds
	require.NoError(t, New(s).Run(context.Background(), nil))

	refs, err := s.ReferencesByFile(app)
	require.NoError(t, err)
	call := refByName(t, refs, "spin")
	assert.Nil(t, call.TargetSymbolID)
	assert.Equal(t, ConfUnresolved, call.Confidence)
}

func TestInstantiationTypeDrivesMethodCall(t *testing.T) {
	s := newTestStore(t)

	lib := addFile(t, s, "models.py", "python")
	user := addSymbol(t, s, lib, "User", "class", 1, nil)
	save := addSymbol(t, s, lib, "save", "method", 3, &user)

	app := addFile(t, s, "app.py", "python")
	u := addSymbol(t, s, app, "u", "variable", 2, nil)
	_, err := s.InsertTypeInfo(&store.TypeInfo{
		OwnerSymbolID: u, InferredType: "User",
		Source: store.TypeSourceInstantiation, Confidence: ConfInstantiation,
	})
	require.NoError(t, err)
	addCall(t, s, app, nil, "save", "u", 4)

	require.NoError(t, New(s).Run(context.Background(), nil))

	refs, err := s.ReferencesByFile(app)
	require.NoError(t, err)
	ref := refByName(t, refs, "save")
	require.NotNil(t, ref.TargetSymbolID)
	assert.Equal(t, save, *ref.TargetSymbolID)
	assert.InDelta(t, 0.8*0.9, ref.Confidence, 1e-9)
}

func TestRunIsIdempotent(t *testing.T) {
	s := newTestStore(t)

	lib := addFile(t, s, "lib.py", "python")
	addSymbol(t, s, lib, "fn", "function", 1, nil)
	app := addFile(t, s, "app.py", "python")
	addCall(t, s, app, nil, "fn", "", 2)

	r := New(s)
	require.NoError(t, r.Run(context.Background(), nil))
	require.NoError(t, r.Run(context.Background(), nil))

	refs, err := s.ReferencesByFile(app)
	require.NoError(t, err)
	assert.Len(t, refs, 1)
}

func TestResolvedTypeAnnotationWins(t *testing.T) {
	s := newTestStore(t)
	f := addFile(t, s, "a.py", "python")
	v := addSymbol(t, s, f, "v", "variable", 1, nil)

	_, err := s.InsertTypeInfo(&store.TypeInfo{
		OwnerSymbolID: v, InferredType: "Guess",
		Source: store.TypeSourceInstantiation, Confidence: ConfInstantiation,
	})
	require.NoError(t, err)
	_, err = s.InsertTypeInfo(&store.TypeInfo{
		OwnerSymbolID: v, DeclaredType: "Declared",
		Source: store.TypeSourceAnnotation, Confidence: ConfAnnotation,
	})
	require.NoError(t, err)

	ti, err := ResolvedType(s, v)
	require.NoError(t, err)
	require.NotNil(t, ti)
	assert.Equal(t, "Declared", ti.DeclaredType)
}

func TestResolvedTypeEqualConfidenceConflict(t *testing.T) {
	s := newTestStore(t)
	f := addFile(t, s, "a.py", "python")
	v := addSymbol(t, s, f, "v", "variable", 1, nil)

	for _, typ := range []string{"A", "B"} {
		_, err := s.InsertTypeInfo(&store.TypeInfo{
			OwnerSymbolID: v, InferredType: typ,
			Source: store.TypeSourceInstantiation, Confidence: ConfInstantiation,
		})
		require.NoError(t, err)
	}

	_, err := ResolvedType(s, v)
	var ambiguous *AmbiguousTypeError
	require.ErrorAs(t, err, &ambiguous)
	assert.Equal(t, v, ambiguous.SymbolID)
}
