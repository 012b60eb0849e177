package update

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahollis/treeline/internal/diff"
	"github.com/ahollis/treeline/internal/facts"
	"github.com/ahollis/treeline/internal/store"
)

// lineExtractor parses a tiny line-oriented fixture language (.zz files):
// "func NAME" declares a top-level function, "call NAME" a module-level
// call site, "import NAME MODULE" an import link. It keeps updater tests
// independent of real grammars.
type lineExtractor struct{}

func (lineExtractor) Supports(path string) bool { return strings.HasSuffix(path, ".zz") }

func (lineExtractor) Extract(path string, content []byte) (*facts.FileFacts, error) {
	sum := sha256.Sum256(content)
	fx := &facts.FileFacts{Path: path, Language: "zz", ContentHash: hex.EncodeToString(sum[:]), Size: int64(len(content))}
	for i, line := range strings.Split(string(content), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		switch fields[0] {
		case "func":
			fx.Symbols = append(fx.Symbols, facts.SymbolFact{
				Name: fields[1], Kind: "function", Signature: line,
				StartLine: i + 1, EndLine: i + 1, Parent: facts.NoSymbol,
			})
		case "call":
			fx.Calls = append(fx.Calls, facts.CallFact{
				Caller: facts.NoSymbol, CalleeName: fields[1], Line: i + 1,
			})
		case "import":
			imp := facts.ImportFact{ImportedName: fields[1]}
			if len(fields) > 2 {
				imp.SourceModule = fields[2]
			}
			fx.Imports = append(fx.Imports, imp)
		}
	}
	return fx, nil
}

type fixture struct {
	root    string
	store   *store.Store
	updater *Updater
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	s, err := store.Open(filepath.Join(root, "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	discover := func() ([]string, error) {
		entries, err := os.ReadDir(root)
		if err != nil {
			return nil, err
		}
		var paths []string
		for _, e := range entries {
			if strings.HasSuffix(e.Name(), ".zz") {
				paths = append(paths, e.Name())
			}
		}
		return paths, nil
	}
	u := New(s, lineExtractor{}, Options{Root: root, Discover: discover})
	return &fixture{root: root, store: s, updater: u}
}

func (f *fixture) write(t *testing.T, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(f.root, name), []byte(content), 0o644))
}

func (f *fixture) remove(t *testing.T, name string) {
	t.Helper()
	require.NoError(t, os.Remove(filepath.Join(f.root, name)))
}

func changes(to string, cc ...diff.FileChange) *diff.ChangeSet {
	return &diff.ChangeSet{To: to, Changes: cc}
}

func TestFullReindex(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.zz", "func alpha\nfunc beta\n")
	f.write(t, "b.zz", "call alpha\n")

	rep, err := f.updater.FullReindex(context.Background(), "c1")
	require.NoError(t, err)
	assert.True(t, rep.Full)
	assert.Equal(t, 2, rep.FilesIndexed)
	assert.Equal(t, 2, rep.SymbolsAdded)

	n, err := f.store.CountSymbols()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	commit, err := f.store.LastIndexedCommit()
	require.NoError(t, err)
	assert.Equal(t, "c1", commit)

	// the module-level call resolved against alpha
	fb, err := f.store.FileByPath("b.zz")
	require.NoError(t, err)
	refs, err := f.store.ReferencesByFile(fb.ID)
	require.NoError(t, err)
	require.Len(t, refs, 1)
	require.NotNil(t, refs[0].TargetSymbolID)
	assert.Equal(t, 0.6, refs[0].Confidence) // unique global candidate, heuristic match
}

func TestReindexIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.zz", "func alpha\n")

	_, err := f.updater.FullReindex(context.Background(), "c1")
	require.NoError(t, err)

	rep, err := f.updater.FullReindex(context.Background(), "c1")
	require.NoError(t, err)
	assert.Zero(t, rep.FilesIndexed, "unchanged content re-indexes nothing")

	n, err := f.store.CountSymbols()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestIncrementalModify(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.zz", "func alpha\n")
	f.write(t, "b.zz", "func other\n")
	f.write(t, "c.zz", "func third\n")
	f.write(t, "d.zz", "func fourth\n")
	_, err := f.updater.FullReindex(context.Background(), "c1")
	require.NoError(t, err)

	f.write(t, "a.zz", "func alpha\nfunc gamma\n")
	rep, err := f.updater.ApplyIncrementalUpdate(context.Background(),
		changes("c2", diff.FileChange{Path: "a.zz", Type: diff.Modified}))
	require.NoError(t, err)
	assert.False(t, rep.Full)
	assert.Equal(t, 1, rep.FilesIndexed)
	assert.Equal(t, 1, rep.SymbolsAdded)
	assert.Zero(t, rep.SymbolsRemoved)

	sym, err := f.store.GetSymbol("gamma", store.SymbolHint{})
	require.NoError(t, err)
	require.NotNil(t, sym)

	commit, err := f.store.LastIndexedCommit()
	require.NoError(t, err)
	assert.Equal(t, "c2", commit)
}

func TestIncrementalDeleteAndRename(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.zz", "func alpha\n")
	f.write(t, "b.zz", "func beta\n")
	f.write(t, "c.zz", "func unchanged\n")
	f.write(t, "d.zz", "func untouched\n")
	f.write(t, "e.zz", "func still\n")
	f.write(t, "f.zz", "func quiet\n")
	f.write(t, "g.zz", "func calm\n")
	_, err := f.updater.FullReindex(context.Background(), "c1")
	require.NoError(t, err)

	f.remove(t, "a.zz")
	f.write(t, "moved.zz", "func beta\n")
	f.remove(t, "b.zz")

	rep, err := f.updater.ApplyIncrementalUpdate(context.Background(), changes("c2",
		diff.FileChange{Path: "a.zz", Type: diff.Deleted},
		diff.FileChange{Path: "moved.zz", OldPath: "b.zz", Type: diff.Renamed},
	))
	require.NoError(t, err)
	assert.Equal(t, 2, rep.FilesDeleted)
	assert.Equal(t, 1, rep.FilesIndexed)

	gone, err := f.store.FileByPath("a.zz")
	require.NoError(t, err)
	assert.Nil(t, gone)
	old, err := f.store.FileByPath("b.zz")
	require.NoError(t, err)
	assert.Nil(t, old)
	moved, err := f.store.FileByPath("moved.zz")
	require.NoError(t, err)
	require.NotNil(t, moved)

	sym, err := f.store.GetSymbol("beta", store.SymbolHint{})
	require.NoError(t, err)
	require.NotNil(t, sym)
	assert.Equal(t, moved.ID, sym.FileID)
}

func TestFallbackWhenTooManyFilesChange(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.zz", "func alpha\n")
	f.write(t, "b.zz", "func beta\n")
	_, err := f.updater.FullReindex(context.Background(), "c1")
	require.NoError(t, err)

	// both of two files changed: ratio 1.0 > 0.30
	f.write(t, "a.zz", "func alpha2\n")
	f.write(t, "b.zz", "func beta2\n")
	rep, err := f.updater.ApplyIncrementalUpdate(context.Background(), changes("c2",
		diff.FileChange{Path: "a.zz", Type: diff.Modified},
		diff.FileChange{Path: "b.zz", Type: diff.Modified},
	))
	require.NoError(t, err)
	assert.True(t, rep.Full, "past the threshold the cycle falls back to a full reindex")
}

func TestUnsupportedFileIsSkipped(t *testing.T) {
	f := newFixture(t)
	f.write(t, "notes.txt", "not code")

	rep, err := f.updater.ApplyIncrementalUpdate(context.Background(),
		changes("c1", diff.FileChange{Path: "notes.txt", Type: diff.Added}))
	require.NoError(t, err)
	require.Len(t, rep.Skipped, 1)
	assert.Equal(t, "notes.txt", rep.Skipped[0].Path)
	assert.Contains(t, rep.Skipped[0].Reason, "unsupported")
}

func TestEmptyChangeSetAdvancesCommit(t *testing.T) {
	f := newFixture(t)
	rep, err := f.updater.ApplyIncrementalUpdate(context.Background(), changes("c9"))
	require.NoError(t, err)
	assert.Zero(t, rep.FilesIndexed)

	commit, err := f.store.LastIndexedCommit()
	require.NoError(t, err)
	assert.Equal(t, "c9", commit)
}

func TestNewDefinitionResolvesStaleReference(t *testing.T) {
	f := newFixture(t)
	f.write(t, "app.zz", "call helper\n")
	f.write(t, "x1.zz", "func x1\n")
	f.write(t, "x2.zz", "func x2\n")
	f.write(t, "x3.zz", "func x3\n")
	_, err := f.updater.FullReindex(context.Background(), "c1")
	require.NoError(t, err)

	app, err := f.store.FileByPath("app.zz")
	require.NoError(t, err)
	refs, err := f.store.ReferencesByFile(app.ID)
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Nil(t, refs[0].TargetSymbolID)

	// only lib.zz is touched; app.zz is never re-parsed, yet its dangling
	// reference picks up the new definition through re-resolution
	f.write(t, "lib.zz", "func helper\n")
	rep, err := f.updater.ApplyIncrementalUpdate(context.Background(),
		changes("c2", diff.FileChange{Path: "lib.zz", Type: diff.Added}))
	require.NoError(t, err)
	assert.Equal(t, 1, rep.FilesIndexed)
	assert.GreaterOrEqual(t, rep.FilesResolved, 2, "dependent file re-resolves without re-parsing")

	refs, err = f.store.ReferencesByFile(app.ID)
	require.NoError(t, err)
	require.Len(t, refs, 1)
	require.NotNil(t, refs[0].TargetSymbolID)
	assert.False(t, refs[0].Stale)
	assert.Positive(t, refs[0].Confidence)
}

func TestDeletedDefinitionResolvesAmbiguousReference(t *testing.T) {
	f := newFixture(t)
	f.write(t, "app.zz", "call helper\n")
	f.write(t, "lib1.zz", "func helper\n")
	f.write(t, "lib2.zz", "func helper\n")
	f.write(t, "pad.zz", "func pad\n")
	_, err := f.updater.FullReindex(context.Background(), "c1")
	require.NoError(t, err)

	app, err := f.store.FileByPath("app.zz")
	require.NoError(t, err)
	refs, err := f.store.ReferencesByFile(app.ID)
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Nil(t, refs[0].TargetSymbolID, "two candidates: never guessed between")

	// deleting one definition leaves a unique candidate; the untouched
	// reference must pick it up, matching what a full reindex would say
	f.remove(t, "lib2.zz")
	rep, err := f.updater.ApplyIncrementalUpdate(context.Background(),
		changes("c2", diff.FileChange{Path: "lib2.zz", Type: diff.Deleted}))
	require.NoError(t, err)
	assert.False(t, rep.Full)

	survivor, err := f.store.GetSymbol("helper", store.SymbolHint{})
	require.NoError(t, err)
	require.NotNil(t, survivor)

	refs, err = f.store.ReferencesByFile(app.ID)
	require.NoError(t, err)
	require.Len(t, refs, 1)
	require.NotNil(t, refs[0].TargetSymbolID)
	assert.Equal(t, survivor.ID, *refs[0].TargetSymbolID)
	assert.Equal(t, 0.6, refs[0].Confidence)
	assert.False(t, refs[0].Stale)
}

func TestAddedDefinitionResolvesUnusedImport(t *testing.T) {
	f := newFixture(t)
	f.write(t, "app.zz", "import helper lib\n")
	f.write(t, "p1.zz", "func p1\n")
	f.write(t, "p2.zz", "func p2\n")
	f.write(t, "p3.zz", "func p3\n")
	_, err := f.updater.FullReindex(context.Background(), "c1")
	require.NoError(t, err)

	app, err := f.store.FileByPath("app.zz")
	require.NoError(t, err)
	imps, err := f.store.ImportsByFile(app.ID)
	require.NoError(t, err)
	require.Len(t, imps, 1)
	assert.Nil(t, imps[0].ResolvedTargetSymbolID)

	// nothing in app.zz references helper, so name-staled references alone
	// never reach it; the import link itself puts app.zz in the blast radius
	f.write(t, "lib.zz", "func helper\n")
	rep, err := f.updater.ApplyIncrementalUpdate(context.Background(),
		changes("c2", diff.FileChange{Path: "lib.zz", Type: diff.Added}))
	require.NoError(t, err)
	assert.False(t, rep.Full)
	assert.GreaterOrEqual(t, rep.FilesResolved, 2)

	imps, err = f.store.ImportsByFile(app.ID)
	require.NoError(t, err)
	require.Len(t, imps, 1)
	require.NotNil(t, imps[0].ResolvedTargetSymbolID)
	assert.Equal(t, 1.0, imps[0].Confidence)
}

// indexSnapshot flattens the queryable state of an index into comparable
// rows keyed by file path. Symbol IDs differ between independently built
// indexes, so reference and import targets are described by name and
// defining path.
func indexSnapshot(t *testing.T, s *store.Store) map[string][]string {
	t.Helper()
	paths, err := s.FilePaths()
	require.NoError(t, err)

	describe := func(id *int64) string {
		if id == nil {
			return "-"
		}
		sym, err := s.SymbolByID(*id)
		require.NoError(t, err)
		require.NotNil(t, sym)
		return sym.Name + "@" + paths[sym.FileID]
	}

	out := make(map[string][]string, len(paths))
	for fileID, path := range paths {
		var rows []string
		syms, err := s.SymbolsByFile(fileID)
		require.NoError(t, err)
		for _, sym := range syms {
			rows = append(rows, fmt.Sprintf("sym %s %s %d-%d", sym.Name, sym.Kind, sym.StartLine, sym.EndLine))
		}
		refs, err := s.ReferencesByFile(fileID)
		require.NoError(t, err)
		for _, ref := range refs {
			rows = append(rows, fmt.Sprintf("ref %s %s %.2f %s stale=%v",
				ref.Name, ref.ReferenceType, ref.Confidence, describe(ref.TargetSymbolID), ref.Stale))
		}
		imps, err := s.ImportsByFile(fileID)
		require.NoError(t, err)
		for _, imp := range imps {
			rows = append(rows, fmt.Sprintf("imp %s %s %.2f %s",
				imp.ImportedName, imp.SourceModule, imp.Confidence, describe(imp.ResolvedTargetSymbolID)))
		}
		sort.Strings(rows)
		out[path] = rows
	}
	return out
}

func TestIncrementalMatchesFullReindex(t *testing.T) {
	ctx := context.Background()
	treeA := map[string]string{
		"app.zz":  "import helper lib\ncall helper\ncall shared\n",
		"lib.zz":  "func other\n",
		"dup1.zz": "func shared\n",
		"dup2.zz": "func shared\n",
		"p1.zz":   "func p1\n",
		"p2.zz":   "func p2\n",
		"p3.zz":   "func p3\n",
	}
	treeB := map[string]string{
		"app.zz":  treeA["app.zz"],
		"lib.zz":  "func other\nfunc helper\n",
		"dup1.zz": treeA["dup1.zz"],
		"p1.zz":   treeA["p1.zz"],
		"p2.zz":   treeA["p2.zz"],
		"p3.zz":   treeA["p3.zz"],
	}

	f := newFixture(t)
	for name, content := range treeA {
		f.write(t, name, content)
	}
	_, err := f.updater.FullReindex(ctx, "c1")
	require.NoError(t, err)

	// lib gains the imported definition, one duplicate definition dies;
	// 2 of 7 files stays under the fallback ratio
	f.write(t, "lib.zz", treeB["lib.zz"])
	f.remove(t, "dup2.zz")
	rep, err := f.updater.ApplyIncrementalUpdate(ctx, changes("c2",
		diff.FileChange{Path: "lib.zz", Type: diff.Modified},
		diff.FileChange{Path: "dup2.zz", Type: diff.Deleted},
	))
	require.NoError(t, err)
	require.False(t, rep.Full)

	g := newFixture(t)
	for name, content := range treeB {
		g.write(t, name, content)
	}
	_, err = g.updater.FullReindex(ctx, "c2")
	require.NoError(t, err)

	assert.Equal(t, indexSnapshot(t, g.store), indexSnapshot(t, f.store))
}

func TestReportSumsTouchedLines(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.zz", "func alpha\n")
	f.write(t, "b.zz", "func beta\n")
	f.write(t, "c.zz", "func third\n")
	f.write(t, "d.zz", "func fourth\n")
	_, err := f.updater.FullReindex(context.Background(), "c1")
	require.NoError(t, err)

	f.write(t, "a.zz", "func alpha\nfunc gamma\n")
	rep, err := f.updater.ApplyIncrementalUpdate(context.Background(), changes("c2",
		diff.FileChange{
			Path: "a.zz", Type: diff.Modified,
			TouchedLines: []diff.LineRange{{Start: 2, End: 2}, {Start: 5, End: 7}},
		},
	))
	require.NoError(t, err)
	assert.Equal(t, 4, rep.LinesTouched)
}

func TestSnapshotDiff(t *testing.T) {
	before := symbolSnapshot{
		"function\x00keep":   "h1",
		"function\x00change": "h2",
		"function\x00drop":   "h3",
	}
	after := symbolSnapshot{
		"function\x00keep":   "h1",
		"function\x00change": "h2x",
		"function\x00fresh":  "h4",
	}

	delta := diffSnapshots(before, after)
	assert.Equal(t, 1, delta.added)
	assert.Equal(t, 1, delta.removed)
	assert.Equal(t, 1, delta.changed)
	// only appearing and vanishing names shift candidate sets elsewhere
	assert.ElementsMatch(t, []string{"fresh", "drop"}, delta.shiftedNames)
}
