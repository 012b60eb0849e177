// Package update drives the index lifecycle: diff classification, surgical
// per-file replacement, dependent re-resolution, and the full-reindex
// fallback. All mutation funnels through here so the commit watermark only
// advances after a cycle fully lands.
package update

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ahollis/treeline/internal/diff"
	"github.com/ahollis/treeline/internal/facts"
	"github.com/ahollis/treeline/internal/resolve"
	"github.com/ahollis/treeline/internal/store"
)

// DefaultFallbackThreshold is the changed-file ratio above which a surgical
// update costs more than starting over.
const DefaultFallbackThreshold = 0.30

// Options configures an Updater.
type Options struct {
	// Root is the directory file paths in change sets are relative to.
	Root string

	// FallbackThreshold overrides DefaultFallbackThreshold when > 0.
	FallbackThreshold float64

	// Discover lists every indexable path under Root, relative with forward
	// slashes. Required for the full-reindex fallback.
	Discover func() ([]string, error)
}

// Updater applies change sets to the store and keeps resolution data
// consistent with whatever extraction data changed underneath it.
type Updater struct {
	store     *store.Store
	resolver  *resolve.Resolver
	extractor facts.Extractor
	opts      Options
}

func New(s *store.Store, ex facts.Extractor, opts Options) *Updater {
	if opts.FallbackThreshold <= 0 {
		opts.FallbackThreshold = DefaultFallbackThreshold
	}
	return &Updater{
		store:     s,
		resolver:  resolve.New(s),
		extractor: ex,
		opts:      opts,
	}
}

// SkipRecord explains why one file in a cycle was not indexed. Skips never
// fail the cycle.
type SkipRecord struct {
	Path   string
	Reason string
}

// Report summarizes one update cycle.
type Report struct {
	Commit   string
	Full     bool
	Duration time.Duration

	FilesIndexed int
	FilesDeleted int
	Skipped      []SkipRecord

	SymbolsAdded   int
	SymbolsRemoved int
	SymbolsChanged int

	// LinesTouched sums the changed-line spans the diff reported, when the
	// diff source provides them.
	LinesTouched int

	FilesResolved int
}

// ApplyIncrementalUpdate runs one cycle against a change set. When the set
// touches more than the fallback threshold's share of indexed files, the
// whole tree is reindexed instead. The commit watermark advances only after
// every write and re-resolution has landed, so an interrupted cycle replays
// the same diff on the next run.
func (u *Updater) ApplyIncrementalUpdate(ctx context.Context, cs *diff.ChangeSet) (*Report, error) {
	start := time.Now()

	if cs.Empty() {
		rep := &Report{Commit: cs.To}
		if cs.To != "" {
			if err := u.store.AdvanceCommit(cs.To); err != nil {
				return nil, err
			}
		}
		rep.Duration = time.Since(start)
		return rep, nil
	}

	total, err := u.store.CountFiles()
	if err != nil {
		return nil, err
	}
	if total > 0 && float64(len(cs.Changes))/float64(total) > u.opts.FallbackThreshold {
		return u.FullReindex(ctx, cs.To)
	}

	rep := &Report{Commit: cs.To}
	var (
		indexedIDs []int64
		shifted    []string
	)

	for _, change := range cs.Changes {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("update cycle: %w", err)
		}
		for _, span := range change.TouchedLines {
			rep.LinesTouched += span.End - span.Start + 1
		}

		switch change.Type {
		case diff.Deleted:
			names, err := u.deleteFile(change.Path, rep)
			if err != nil {
				return nil, err
			}
			shifted = append(shifted, names...)
		case diff.Renamed:
			// Renames carry no identity: the old path dies and the new path
			// is indexed from scratch.
			names, err := u.deleteFile(change.OldPath, rep)
			if err != nil {
				return nil, err
			}
			shifted = append(shifted, names...)
			fileID, gained, err := u.indexFile(ctx, change.Path, rep)
			if err != nil {
				return nil, err
			}
			shifted = append(shifted, gained...)
			if fileID != 0 {
				indexedIDs = append(indexedIDs, fileID)
			}
		default:
			fileID, gained, err := u.indexFile(ctx, change.Path, rep)
			if err != nil {
				return nil, err
			}
			shifted = append(shifted, gained...)
			if fileID != 0 {
				indexedIDs = append(indexedIDs, fileID)
			}
		}
	}

	affected, err := u.affectedFiles(indexedIDs, shifted)
	if err != nil {
		return nil, err
	}
	rep.FilesResolved = len(affected)
	if len(affected) > 0 {
		if err := u.resolver.Run(ctx, affected); err != nil {
			return nil, err
		}
	}

	if cs.To != "" {
		if err := u.store.AdvanceCommit(cs.To); err != nil {
			return nil, err
		}
	}
	rep.Duration = time.Since(start)
	return rep, nil
}

// FullReindex rebuilds the entire index from the discovered file list. Each
// file commits independently, so a cancelled run leaves a consistent index
// whose watermark still names the previous commit.
func (u *Updater) FullReindex(ctx context.Context, commit string) (*Report, error) {
	if u.opts.Discover == nil {
		return nil, errors.New("full reindex requires a Discover option")
	}
	start := time.Now()
	rep := &Report{Commit: commit, Full: true}

	paths, err := u.opts.Discover()
	if err != nil {
		return nil, fmt.Errorf("discover files: %w", err)
	}

	// Every discovered path counts as present, skipped or not, so the prune
	// below only removes files that actually left the tree.
	seen := make(map[string]struct{}, len(paths))
	resolved := 0
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("full reindex: %w", err)
		}
		seen[path] = struct{}{}
		fileID, _, err := u.indexFile(ctx, path, rep)
		if err != nil {
			return nil, err
		}
		if fileID != 0 {
			resolved++
		}
	}

	// Prune records for files that vanished from the tree.
	indexed, err := u.store.FilePaths()
	if err != nil {
		return nil, err
	}
	for _, path := range indexed {
		if _, ok := seen[path]; !ok {
			if _, err := u.deleteFile(path, rep); err != nil {
				return nil, err
			}
		}
	}

	if err := u.resolver.Run(ctx, nil); err != nil {
		return nil, err
	}
	rep.FilesResolved = resolved

	if commit != "" {
		if err := u.store.AdvanceCommit(commit); err != nil {
			return nil, err
		}
	}
	rep.Duration = time.Since(start)
	return rep, nil
}

// indexFile replaces one file's rows from a fresh parse, returning the new
// file ID and the symbol names whose definition set shifted. It returns 0
// when the file was skipped: unsupported language, unreadable, unparseable,
// or byte-identical to what the index already holds.
func (u *Updater) indexFile(ctx context.Context, path string, rep *Report) (int64, []string, error) {
	if !u.extractor.Supports(path) {
		rep.Skipped = append(rep.Skipped, SkipRecord{Path: path, Reason: "unsupported language"})
		return 0, nil, nil
	}

	abs := filepath.Join(u.opts.Root, filepath.FromSlash(path))
	content, err := os.ReadFile(abs)
	if err != nil {
		rep.Skipped = append(rep.Skipped, SkipRecord{Path: path, Reason: fmt.Sprintf("read: %v", err)})
		return 0, nil, nil
	}

	sum := sha256.Sum256(content)
	hash := hex.EncodeToString(sum[:])

	existing, err := u.store.FileByPath(path)
	if err != nil {
		return 0, nil, err
	}
	if existing != nil && existing.ContentHash == hash {
		return 0, nil, nil
	}

	fx, err := u.extractor.Extract(path, content)
	if err != nil {
		var perr *facts.ParseError
		if errors.As(err, &perr) {
			rep.Skipped = append(rep.Skipped, SkipRecord{Path: path, Reason: perr.Error()})
			return 0, nil, nil
		}
		return 0, nil, fmt.Errorf("extract %s: %w", path, err)
	}
	if err := fx.Validate(); err != nil {
		rep.Skipped = append(rep.Skipped, SkipRecord{Path: path, Reason: err.Error()})
		return 0, nil, nil
	}

	var before symbolSnapshot
	if existing != nil {
		before, err = captureSnapshot(u.store, existing.ID)
		if err != nil {
			return 0, nil, err
		}
	}

	info, _ := os.Stat(abs)
	record := &store.FileRecord{
		Path:        path,
		Language:    fx.Language,
		Size:        int64(len(content)),
		ContentHash: hash,
	}
	if info != nil {
		record.Mtime = info.ModTime()
	}

	fileID, err := u.store.ReplaceFileData(ctx, record, batchFromFacts(fx))
	if err != nil {
		return 0, nil, err
	}

	after, err := captureSnapshot(u.store, fileID)
	if err != nil {
		return 0, nil, err
	}
	delta := diffSnapshots(before, after)
	rep.SymbolsAdded += delta.added
	rep.SymbolsRemoved += delta.removed
	rep.SymbolsChanged += delta.changed
	rep.FilesIndexed++

	// Unresolved references elsewhere that mention a name this file gained or
	// lost may now resolve differently.
	if len(delta.shiftedNames) > 0 {
		if err := u.store.MarkReferencesStaleByName(delta.shiftedNames); err != nil {
			return 0, nil, err
		}
	}
	return fileID, delta.shiftedNames, nil
}

// deleteFile removes one file's rows and returns the names it defined: every
// definition that dies shifts the candidate set for that name everywhere
// else, exactly as a definition appearing does.
func (u *Updater) deleteFile(path string, rep *Report) ([]string, error) {
	existing, err := u.store.FileByPath(path)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, nil
	}
	syms, err := u.store.SymbolsByFile(existing.ID)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(syms))
	seen := make(map[string]struct{}, len(syms))
	for _, sym := range syms {
		if _, ok := seen[sym.Name]; ok {
			continue
		}
		seen[sym.Name] = struct{}{}
		names = append(names, sym.Name)
	}

	if err := u.store.DeleteFile(path); err != nil {
		return nil, err
	}
	rep.FilesDeleted++

	// References elsewhere that were ambiguous between this file's
	// definitions and survivors may now resolve to a unique survivor.
	if err := u.store.MarkReferencesStaleByName(names); err != nil {
		return nil, err
	}
	return names, nil
}

// affectedFiles is the blast radius of a surgical cycle: every file that was
// rewritten, every file holding a reference the rewrites staled, and every
// file importing a name whose definition set shifted.
func (u *Updater) affectedFiles(indexedIDs []int64, shiftedNames []string) ([]int64, error) {
	set := make(map[int64]struct{}, len(indexedIDs))
	for _, id := range indexedIDs {
		set[id] = struct{}{}
	}

	stale, err := u.store.StaleReferences()
	if err != nil {
		return nil, err
	}
	for _, ref := range stale {
		set[ref.SourceFileID] = struct{}{}
	}

	importers, err := u.store.FilesImportingNames(shiftedNames)
	if err != nil {
		return nil, err
	}
	for _, id := range importers {
		set[id] = struct{}{}
	}

	out := make([]int64, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out, nil
}
