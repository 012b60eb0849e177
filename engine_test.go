package treeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const modelsPy = `MAX_DEPTH = 10


class Base:
    def ping(self):
        return 1


class Child(Base):
    """A child."""

    def greet(self):
        return self.ping()
`

const appPy = `from models import Child


def main():
    return Child().greet()
`

const utilPy = `def helper():
    return 1
`

const constantsPy = `LIMIT = 5
`

func writeProject(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

func openProject(t *testing.T, files map[string]string) (*Engine, string) {
	t.Helper()
	root := writeProject(t, files)
	eng, err := Open(root)
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })
	return eng, root
}

func TestEngineFullReindexAndQueries(t *testing.T) {
	ctx := context.Background()
	eng, _ := openProject(t, map[string]string{
		"models.py": modelsPy,
		"app.py":    appPy,
	})

	rep, err := eng.FullReindex(ctx)
	require.NoError(t, err)
	require.True(t, rep.Full)
	require.Equal(t, 2, rep.FilesIndexed)
	require.Greater(t, rep.SymbolsAdded, 0)

	q := eng.Query()

	child, err := q.GetSymbol("Child", SymbolHint{})
	require.NoError(t, err)
	require.NotNil(t, child)
	require.Equal(t, "class", child.Kind)
	require.Equal(t, "A child.", child.Doc)

	mro, err := q.ResolveInheritance("Child", SymbolHint{Kind: "class"})
	require.NoError(t, err)
	require.NotNil(t, mro)
	require.Equal(t, []string{"Child", "Base"}, mro.Names)

	// Child().greet() carries its receiver type syntactically.
	refs, err := q.ReferencesByName("greet")
	require.NoError(t, err)
	require.Len(t, refs, 1)
	require.Equal(t, "call", refs[0].ReferenceType)
	require.NotNil(t, refs[0].TargetSymbolID)
	require.Greater(t, refs[0].Confidence, 0.0)

	deps, err := q.Dependents(child.ID)
	require.NoError(t, err)
	require.Contains(t, deps, "app.py")

	imports, err := q.FileImports("app.py")
	require.NoError(t, err)
	require.Len(t, imports, 1)
	require.Equal(t, "Child", imports[0].ImportedName)
	require.NotNil(t, imports[0].ResolvedTargetSymbolID)
}

func TestEngineSearchKeyword(t *testing.T) {
	ctx := context.Background()
	eng, _ := openProject(t, map[string]string{
		"models.py": modelsPy,
		"app.py":    appPy,
	})
	_, err := eng.FullReindex(ctx)
	require.NoError(t, err)

	res, err := eng.Search(ctx, "greet", ModeKeyword, 5)
	require.NoError(t, err)
	require.NotEmpty(t, res.Hits)
	require.Equal(t, "greet", res.Hits[0].Symbol.Name)

	// Without an embedder auto mode settles on keyword and stays whole.
	res, err = eng.Search(ctx, "greet", ModeAuto, 5)
	require.NoError(t, err)
	require.Equal(t, ModeKeyword, res.Mode)
	require.False(t, res.Partial)
}

func TestEngineIncrementalUpdate(t *testing.T) {
	ctx := context.Background()
	eng, root := openProject(t, map[string]string{
		"models.py":    modelsPy,
		"app.py":       appPy,
		"util.py":      utilPy,
		"constants.py": constantsPy,
	})
	_, err := eng.FullReindex(ctx)
	require.NoError(t, err)

	extended := appPy + "\n\ndef extra():\n    return main()\n"
	require.NoError(t, os.WriteFile(filepath.Join(root, "app.py"), []byte(extended), 0o644))

	rep, err := eng.Update(ctx)
	require.NoError(t, err)
	require.False(t, rep.Full)
	require.Equal(t, 1, rep.FilesIndexed)

	q := eng.Query()
	extra, err := q.GetSymbol("extra", SymbolHint{})
	require.NoError(t, err)
	require.NotNil(t, extra)

	// No changes on disk: the next cycle is a no-op that still succeeds.
	rep, err = eng.Update(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, rep.FilesIndexed)
}

func TestEngineDeleteStalesDependents(t *testing.T) {
	ctx := context.Background()
	eng, root := openProject(t, map[string]string{
		"models.py":    modelsPy,
		"app.py":       appPy,
		"util.py":      utilPy,
		"constants.py": constantsPy,
	})
	_, err := eng.FullReindex(ctx)
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(root, "models.py")))
	_, err = eng.Update(ctx)
	require.NoError(t, err)

	q := eng.Query()
	child, err := q.GetSymbol("Child", SymbolHint{})
	require.NoError(t, err)
	require.Nil(t, child)

	refs, err := q.ReferencesByName("Child")
	require.NoError(t, err)
	for _, ref := range refs {
		require.Nil(t, ref.TargetSymbolID)
	}
}

func TestEngineWithDBPath(t *testing.T) {
	ctx := context.Background()
	root := writeProject(t, map[string]string{"models.py": modelsPy})
	dbPath := filepath.Join(t.TempDir(), "custom", "index.db")

	eng, err := Open(root, WithDBPath(dbPath))
	require.NoError(t, err)
	defer eng.Close()

	_, err = eng.FullReindex(ctx)
	require.NoError(t, err)

	_, err = os.Stat(dbPath)
	require.NoError(t, err)
}

func TestEngineReopenSeesExistingIndex(t *testing.T) {
	ctx := context.Background()
	root := writeProject(t, map[string]string{"models.py": modelsPy})

	eng, err := Open(root)
	require.NoError(t, err)
	_, err = eng.FullReindex(ctx)
	require.NoError(t, err)
	require.NoError(t, eng.Close())

	eng, err = Open(root)
	require.NoError(t, err)
	defer eng.Close()

	sym, err := eng.Query().GetSymbol("Base", SymbolHint{})
	require.NoError(t, err)
	require.NotNil(t, sym)
}
