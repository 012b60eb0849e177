package treeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/ahollis/treeline/internal/config"
	"github.com/ahollis/treeline/internal/diff"
	"github.com/ahollis/treeline/internal/extract"
	"github.com/ahollis/treeline/internal/search"
	"github.com/ahollis/treeline/internal/store"
	"github.com/ahollis/treeline/internal/update"
	"github.com/ahollis/treeline/internal/watcher"
)

// Engine is the index handle: one project root, one database, one update
// pipeline. There is no ambient global; every operation goes through an
// Engine the caller opened and will close.
type Engine struct {
	root     string
	cfg      *config.Config
	store    *store.Store
	updater  *update.Updater
	searcher *search.Searcher
	git      *diff.Git

	queue *update.Queue
	watch *watcher.Watcher
}

// Option configures an Engine.
type Option func(*engineOpts)

type engineOpts struct {
	configPath string
	dbPath     string
	embedder   search.Embedder
}

// WithConfigFile loads configuration from an explicit path instead of the
// root's treeline.yml.
func WithConfigFile(path string) Option {
	return func(o *engineOpts) { o.configPath = path }
}

// WithDBPath overrides the configured database location.
func WithDBPath(path string) Option {
	return func(o *engineOpts) { o.dbPath = path }
}

// WithEmbedder enables the semantic search path. Without one, search runs
// keyword-only.
func WithEmbedder(e Embedder) Option {
	return func(o *engineOpts) { o.embedder = e }
}

// Open creates an Engine for the project at root, creating the index
// database if needed. A schema mismatch or failed integrity check surfaces
// as *IndexCorruptionError; the remedy is deleting the database and
// reindexing.
func Open(root string, opts ...Option) (*Engine, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("treeline: resolve root: %w", err)
	}

	var eo engineOpts
	for _, opt := range opts {
		opt(&eo)
	}

	cfg, err := config.Load(abs, eo.configPath)
	if err != nil {
		return nil, fmt.Errorf("treeline: %w", err)
	}
	if eo.embedder == nil && cfg.Search.Embeddings.Model != "" {
		ec := cfg.Search.Embeddings
		apiKey := ""
		if ec.APIKeyEnv != "" {
			apiKey = os.Getenv(ec.APIKeyEnv)
		}
		eo.embedder = search.NewHTTPEmbedder(ec.BaseURL, apiKey, ec.Model, ec.Dimension)
	}

	dbPath := eo.dbPath
	if dbPath == "" {
		dbPath = cfg.DBPath
	}
	if !filepath.IsAbs(dbPath) {
		dbPath = filepath.Join(abs, dbPath)
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("treeline: create db dir: %w", err)
	}

	s, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("treeline: %w", err)
	}

	e := &Engine{
		root:  abs,
		cfg:   cfg,
		store: s,
		git:   &diff.Git{Root: abs},
	}
	e.updater = update.New(s, extract.New(), update.Options{
		Root:              abs,
		FallbackThreshold: cfg.Update.FallbackThreshold,
		Discover:          e.discoverFiles,
	})
	e.searcher = search.NewSearcher(s, eo.embedder, search.Options{
		Fusion:      search.Fusion(cfg.Search.Fusion),
		Alpha:       cfg.Search.Alpha,
		PathTimeout: cfg.Search.PathTimeout,
	})
	return e, nil
}

// Close stops any watcher and releases the database.
func (e *Engine) Close() error {
	if e.watch != nil {
		e.watch.Stop()
		e.watch = nil
	}
	if e.queue != nil {
		e.queue.Stop()
		e.queue = nil
	}
	return e.store.Close()
}

// Store exposes the underlying store for direct reads.
func (e *Engine) Store() *store.Store { return e.store }

// Query returns a read-side facade over the index.
func (e *Engine) Query() *QueryBuilder { return &QueryBuilder{store: e.store} }

// FullReindex rebuilds the whole index from the current tree.
func (e *Engine) FullReindex(ctx context.Context) (*update.Report, error) {
	commit := ""
	if e.git.Available() {
		commit, _ = e.git.Head()
	}
	rep, err := e.updater.FullReindex(ctx, commit)
	if err != nil {
		return nil, err
	}
	e.afterCycle(ctx)
	return rep, nil
}

// Update computes the diff since the last indexed commit and applies it. In
// a git tree the diff comes from git; elsewhere it falls back to comparing
// stored content hashes against the files on disk.
func (e *Engine) Update(ctx context.Context) (*update.Report, error) {
	cs, err := e.pendingChanges()
	if err != nil {
		return nil, err
	}
	rep, err := e.updater.ApplyIncrementalUpdate(ctx, cs)
	if err != nil {
		return nil, err
	}
	e.afterCycle(ctx)
	return rep, nil
}

func (e *Engine) pendingChanges() (*diff.ChangeSet, error) {
	if e.git.Available() {
		from, err := e.store.LastIndexedCommit()
		if err != nil {
			return nil, err
		}
		to, err := e.git.Head()
		if err != nil {
			return nil, err
		}
		cs, err := e.git.Changes(from, to)
		if err != nil {
			return nil, err
		}
		cs.Changes = e.filterChanges(cs.Changes)
		return cs, nil
	}

	// No version control: diff stored hashes against the live tree.
	indexed := make(map[string]string)
	files, err := e.store.AllFiles()
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		indexed[f.Path] = f.ContentHash
	}

	paths, err := e.discoverFiles()
	if err != nil {
		return nil, err
	}
	current := make(map[string]string, len(paths))
	for _, rel := range paths {
		content, err := os.ReadFile(filepath.Join(e.root, filepath.FromSlash(rel)))
		if err != nil {
			continue
		}
		sum := sha256.Sum256(content)
		current[rel] = hex.EncodeToString(sum[:])
	}
	return diff.FromHashes(indexed, current), nil
}

func (e *Engine) filterChanges(changes []diff.FileChange) []diff.FileChange {
	out := changes[:0]
	for _, c := range changes {
		if e.cfg.Match(c.Path) || (c.Type == diff.Renamed && e.cfg.Match(c.OldPath)) {
			out = append(out, c)
		}
	}
	return out
}

// ApplyChanges runs one update cycle over an explicit change list, as the
// watcher queue delivers them.
func (e *Engine) ApplyChanges(ctx context.Context, changes []diff.FileChange) (*update.Report, error) {
	commit := ""
	if e.git.Available() {
		commit, _ = e.git.Head()
	}
	cs := &diff.ChangeSet{To: commit, Changes: e.filterChanges(changes)}
	rep, err := e.updater.ApplyIncrementalUpdate(ctx, cs)
	if err != nil {
		return nil, err
	}
	e.afterCycle(ctx)
	return rep, nil
}

// afterCycle refreshes the read side: the lexical index rebuilds lazily, new
// symbols get vectors, and tombstoned vectors compact once they dominate.
// Embedding work is fail-soft; an unreachable provider never fails a cycle.
func (e *Engine) afterCycle(ctx context.Context) {
	e.searcher.Invalidate()
	_, _ = e.searcher.SyncEmbeddings(ctx, 512)
	_, _ = e.searcher.MaybeCompact()
}

// Watch starts the filesystem watcher, feeding debounced change batches into
// serialized update cycles until ctx ends or Close is called. onCycle may be
// nil; when set it observes each cycle's report or error.
func (e *Engine) Watch(ctx context.Context, onCycle func(*update.Report, error)) error {
	if e.watch != nil {
		return fmt.Errorf("treeline: already watching")
	}

	e.queue = update.NewQueue(e.cfg.Update.DebounceWindow, func(changes []diff.FileChange) {
		rep, err := e.ApplyChanges(ctx, changes)
		if onCycle != nil {
			onCycle(rep, err)
		}
	})

	w, err := watcher.New(e.root, e.cfg, e.queue)
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		return err
	}
	e.watch = w
	return nil
}

// Search answers a query against the committed index.
func (e *Engine) Search(ctx context.Context, query string, mode search.Mode, limit int) (*SearchResult, error) {
	return e.searcher.Search(ctx, query, mode, limit)
}

// discoverFiles lists indexable files relative to the root. Inside a git
// repository the listing respects .gitignore; otherwise it walks the tree.
// Config include/exclude globs and the size cap apply either way.
func (e *Engine) discoverFiles() ([]string, error) {
	var candidates []string
	if e.git.Available() {
		listed, err := e.git.LsFiles()
		if err == nil {
			candidates = listed
		}
	}
	if candidates == nil {
		err := filepath.WalkDir(e.root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if path != e.root && filepath.Base(path)[0] == '.' {
					return filepath.SkipDir
				}
				return nil
			}
			rel, err := filepath.Rel(e.root, path)
			if err != nil {
				return err
			}
			candidates = append(candidates, filepath.ToSlash(rel))
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", e.root, err)
		}
	}

	var paths []string
	for _, rel := range candidates {
		if !e.cfg.Match(rel) {
			continue
		}
		if e.cfg.MaxFileSize > 0 {
			if info, err := os.Stat(filepath.Join(e.root, filepath.FromSlash(rel))); err != nil || info.Size() > e.cfg.MaxFileSize {
				continue
			}
		}
		paths = append(paths, rel)
	}
	return paths, nil
}
