// Package resolve turns raw extraction facts into the resolved half of the
// index: import targets, tracked types, call references, and the class
// hierarchy. It runs in four ordered passes; later passes consume earlier
// outputs, so incremental updates re-run passes for any file whose inputs
// changed even when the file itself did not.
package resolve

import (
	"context"
	"fmt"
	"strings"

	"github.com/ahollis/treeline/internal/store"
)

// Confidence levels. The ordering is the contract: exact > import-resolved >
// heuristic > unresolved.
const (
	ConfExact      = 1.0
	ConfImport     = 0.8
	ConfHeuristic  = 0.6
	ConfUnresolved = 0.0

	// Type fact confidences by source.
	ConfAnnotation    = 1.0
	ConfInstantiation = 0.8
	ConfImportType    = 0.6

	// Per-step decay applied in receiver/method resolution.
	methodStepFactor   = 0.9
	ancestorStepFactor = 0.95
)

// Resolver derives resolution rows from extraction rows. It holds no state
// between runs beyond the store handle.
type Resolver struct {
	store *store.Store
}

func New(s *store.Store) *Resolver {
	return &Resolver{store: s}
}

// Run re-derives all resolution data for the given files; nil means every
// indexed file. Derived rows for those files are dropped first, then the
// four passes rebuild them from stored extraction facts without re-parsing
// any source file.
func (r *Resolver) Run(ctx context.Context, fileIDs []int64) error {
	if fileIDs == nil {
		files, err := r.store.AllFiles()
		if err != nil {
			return fmt.Errorf("resolve: list files: %w", err)
		}
		for _, f := range files {
			fileIDs = append(fileIDs, f.ID)
		}
	}
	if len(fileIDs) == 0 {
		return nil
	}

	if err := r.store.DeleteResolutionDataForFiles(fileIDs); err != nil {
		return fmt.Errorf("resolve: clear derived rows: %w", err)
	}

	p, err := r.newPass(ctx)
	if err != nil {
		return err
	}

	for _, fileID := range fileIDs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.resolveImports(fileID); err != nil {
			return fmt.Errorf("resolve imports (file %d): %w", fileID, err)
		}
	}
	for _, fileID := range fileIDs {
		if err := p.propagateImportTypes(fileID); err != nil {
			return fmt.Errorf("resolve types (file %d): %w", fileID, err)
		}
	}
	// Inheritance binds before calls: method resolution walks the MRO, which
	// needs resolved superclass links in place.
	for _, fileID := range fileIDs {
		if err := p.resolveInheritance(fileID); err != nil {
			return fmt.Errorf("resolve inheritance (file %d): %w", fileID, err)
		}
	}
	for _, fileID := range fileIDs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.resolveCalls(fileID); err != nil {
			return fmt.Errorf("resolve calls (file %d): %w", fileID, err)
		}
		if err := p.deriveTypeReferences(fileID); err != nil {
			return fmt.Errorf("derive type references (file %d): %w", fileID, err)
		}
	}
	return nil
}

// pass carries the per-run lookup caches shared by all four passes.
type pass struct {
	ctx   context.Context
	store *store.Store

	filePaths map[int64]string
	byName    map[string][]*store.Symbol // lazy, filled per lookup
}

func (r *Resolver) newPass(ctx context.Context) (*pass, error) {
	paths, err := r.store.FilePaths()
	if err != nil {
		return nil, fmt.Errorf("resolve: load file paths: %w", err)
	}
	return &pass{
		ctx:       ctx,
		store:     r.store,
		filePaths: paths,
		byName:    make(map[string][]*store.Symbol),
	}, nil
}

// symbolsNamed memoizes name lookups for the duration of one run.
func (p *pass) symbolsNamed(name string) ([]*store.Symbol, error) {
	if syms, ok := p.byName[name]; ok {
		return syms, nil
	}
	syms, err := p.store.SymbolsByName(name)
	if err != nil {
		return nil, err
	}
	p.byName[name] = syms
	return syms, nil
}

// moduleMatchesPath reports whether an import's module spec plausibly names
// the given file. Both dotted (a.b.mod) and slashed (a/b/mod) specs are
// compared against the path with its extension stripped.
func moduleMatchesPath(module, path string) bool {
	if module == "" || path == "" {
		return false
	}
	normalized := strings.ReplaceAll(module, ".", "/")
	normalized = strings.TrimPrefix(normalized, "//") // "..mod" relative imports
	normalized = strings.Trim(normalized, "/")
	if normalized == "" {
		return false
	}

	stem := path
	if i := strings.LastIndex(stem, "."); i > strings.LastIndex(stem, "/") {
		stem = stem[:i]
	}
	stem = strings.Trim(stem, "/")

	if stem == normalized || strings.HasSuffix(stem, "/"+normalized) {
		return true
	}
	// Package imports name the directory: "a/b" matches "a/b/__init__.py".
	if strings.HasSuffix(stem, "/__init__") {
		dir := strings.TrimSuffix(stem, "/__init__")
		return dir == normalized || strings.HasSuffix(dir, "/"+normalized)
	}
	return false
}
