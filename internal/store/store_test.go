package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func insertTestFile(t *testing.T, s *Store, path string) int64 {
	t.Helper()
	id, err := s.InsertFile(&FileRecord{
		Path:        path,
		Language:    "go",
		Size:        100,
		Mtime:       time.Now(),
		ContentHash: "hash-" + path,
	})
	require.NoError(t, err)
	return id
}

func insertTestSymbol(t *testing.T, s *Store, fileID int64, name, kind string, line int) int64 {
	t.Helper()
	id, err := s.InsertSymbol(&Symbol{
		FileID:        fileID,
		Name:          name,
		Kind:          kind,
		Language:      "go",
		StartLine:     line,
		EndLine:       line + 5,
		SignatureHash: ComputeSignatureHash(name, kind, "", "", nil),
	})
	require.NoError(t, err)
	return id
}

func TestOpenCreatesSchema(t *testing.T) {
	s := newTestStore(t)

	meta, err := s.Metadata()
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, meta.SchemaVersion)
	assert.Empty(t, meta.LastIndexedCommit)
	assert.Zero(t, meta.TotalSymbols)
}

func TestOpenIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.db")

	s1, err := Open(path)
	require.NoError(t, err)
	insertTestFile(t, s1, "a.go")
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	n, err := s2.CountFiles()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestOpenRejectsSchemaMismatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.db")

	s, err := Open(path)
	require.NoError(t, err)
	insertTestFile(t, s, "a.go")
	_, err = s.db.Exec("UPDATE index_metadata SET schema_version = ? WHERE id = 1", SchemaVersion+1)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = Open(path)
	var corrupt *IndexCorruptionError
	require.ErrorAs(t, err, &corrupt)
	assert.Equal(t, path, corrupt.Path)
	assert.Contains(t, corrupt.Reason, "schema version")
}

func TestFileRoundTrip(t *testing.T) {
	s := newTestStore(t)
	insertTestFile(t, s, "pkg/a.go")

	f, err := s.FileByPath("pkg/a.go")
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, "go", f.Language)
	assert.Equal(t, "hash-pkg/a.go", f.ContentHash)

	missing, err := s.FileByPath("pkg/missing.go")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSymbolLookupWithHints(t *testing.T) {
	s := newTestStore(t)
	fa := insertTestFile(t, s, "services/auth.go")
	fb := insertTestFile(t, s, "models/user.go")
	insertTestSymbol(t, s, fa, "Validate", "function", 10)
	insertTestSymbol(t, s, fb, "Validate", "method", 20)

	// bare name is ambiguous
	_, err := s.GetSymbol("Validate", SymbolHint{})
	var amb *AmbiguousSymbolError
	require.ErrorAs(t, err, &amb)
	assert.Len(t, amb.Candidates, 2)

	// path hint pins it down
	sym, err := s.GetSymbol("Validate", SymbolHint{PathHint: "models"})
	require.NoError(t, err)
	require.NotNil(t, sym)
	assert.Equal(t, "method", sym.Kind)

	// kind hint works too
	sym, err = s.GetSymbol("Validate", SymbolHint{Kind: "function"})
	require.NoError(t, err)
	assert.Equal(t, fa, sym.FileID)

	// no match is nil, not an error
	sym, err = s.GetSymbol("Nothing", SymbolHint{})
	require.NoError(t, err)
	assert.Nil(t, sym)
}

func TestDeleteFileCascades(t *testing.T) {
	s := newTestStore(t)
	fa := insertTestFile(t, s, "a.py")
	fb := insertTestFile(t, s, "b.py")
	target := insertTestSymbol(t, s, fa, "helper", "function", 1)
	caller := insertTestSymbol(t, s, fb, "main", "function", 1)

	_, err := s.InsertReference(&Reference{
		SourceSymbolID:   &caller,
		SourceFileID:     fb,
		SourceLine:       3,
		Name:             "helper",
		TargetSymbolID:   &target,
		ReferenceType:    RefCall,
		Confidence:       1.0,
		ResolutionMethod: MethodExact,
	})
	require.NoError(t, err)

	require.NoError(t, s.DeleteFile("a.py"))

	// a's symbols are gone, b's survive
	syms, err := s.SymbolsByFile(fa)
	require.NoError(t, err)
	assert.Empty(t, syms)
	syms, err = s.SymbolsByFile(fb)
	require.NoError(t, err)
	assert.Len(t, syms, 1)

	// the inbound reference lost its target and went stale
	refs, err := s.ReferencesByFile(fb)
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Nil(t, refs[0].TargetSymbolID)
	assert.True(t, refs[0].Stale)
}

func TestDeleteFileMissingIsNoError(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.DeleteFile("never/indexed.go"))
}

func TestAdvanceCommitAndMetadata(t *testing.T) {
	s := newTestStore(t)
	fa := insertTestFile(t, s, "a.go")
	insertTestSymbol(t, s, fa, "A", "function", 1)

	require.NoError(t, s.AdvanceCommit("abc123"))

	commit, err := s.LastIndexedCommit()
	require.NoError(t, err)
	assert.Equal(t, "abc123", commit)

	meta, err := s.Metadata()
	require.NoError(t, err)
	assert.Equal(t, 1, meta.TotalFiles)
	assert.Equal(t, 1, meta.TotalSymbols)
}

func TestMarkReferencesStaleByName(t *testing.T) {
	s := newTestStore(t)
	fa := insertTestFile(t, s, "a.go")
	sym := insertTestSymbol(t, s, fa, "caller", "function", 1)

	_, err := s.InsertReference(&Reference{
		SourceSymbolID:   &sym,
		SourceFileID:     fa,
		SourceLine:       2,
		Name:             "NewWidget",
		ReferenceType:    RefCall,
		ResolutionMethod: MethodUnresolved,
	})
	require.NoError(t, err)

	require.NoError(t, s.MarkReferencesStaleByName([]string{"NewWidget"}))

	stale, err := s.StaleReferences()
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "NewWidget", stale[0].Name)
}

func TestFilesImportingNames(t *testing.T) {
	s := newTestStore(t)
	fa := insertTestFile(t, s, "a.go")
	fb := insertTestFile(t, s, "b.go")
	insertTestFile(t, s, "c.go")

	_, err := s.InsertImportLink(&ImportLink{FileID: fa, ImportedName: "parse", SourceModule: "lib"})
	require.NoError(t, err)
	_, err = s.InsertImportLink(&ImportLink{FileID: fb, ImportedName: "other", Alias: "parse"})
	require.NoError(t, err)

	ids, err := s.FilesImportingNames([]string{"parse"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{fa, fb}, ids)

	ids, err = s.FilesImportingNames(nil)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestStreamSymbolsFilters(t *testing.T) {
	s := newTestStore(t)
	fa := insertTestFile(t, s, "api/server.go")
	fb := insertTestFile(t, s, "core/model.py")
	insertTestSymbol(t, s, fa, "Serve", "function", 1)
	insertTestSymbol(t, s, fb, "Model", "class", 1)
	insertTestSymbol(t, s, fb, "save", "method", 10)

	collect := func(filter SymbolFilter) []string {
		var names []string
		err := s.StreamSymbols(context.Background(), filter, func(sym *Symbol) error {
			names = append(names, sym.Name)
			return nil
		})
		require.NoError(t, err)
		return names
	}

	assert.Len(t, collect(SymbolFilter{}), 3)
	assert.Equal(t, []string{"Model"}, collect(SymbolFilter{Kinds: []string{"class"}}))
	assert.Len(t, collect(SymbolFilter{PathPrefix: "core"}), 2)
	assert.Equal(t, []string{"Serve"}, collect(SymbolFilter{FileID: &fa}))
}

func TestSignatureHashIgnoresLocation(t *testing.T) {
	params := []Param{{Name: "id", TypeExpr: "int"}}
	a := ComputeSignatureHash("getUser", "function", "getUser(id int)", "User", params)
	b := ComputeSignatureHash("getUser", "function", "getUser(id int)", "User", params)
	assert.Equal(t, a, b)

	changed := ComputeSignatureHash("getUser", "function", "getUser(id int64)", "User", nil)
	assert.NotEqual(t, a, changed)
}
