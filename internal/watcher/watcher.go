// Package watcher bridges filesystem notifications into the update queue.
// It owns recursion over directories and the mapping of raw fsnotify events
// onto file changes; debounce timing belongs to the queue it feeds.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/ahollis/treeline/internal/config"
	"github.com/ahollis/treeline/internal/diff"
)

// Notifier is the downstream the watcher feeds, satisfied by update.Queue.
type Notifier interface {
	Notify(change diff.FileChange)
}

type Watcher struct {
	root string
	cfg  *config.Config
	sink Notifier

	fs *fsnotify.Watcher

	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool
	done    chan struct{}
}

func New(root string, cfg *config.Config, sink Notifier) (*Watcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{root: root, cfg: cfg, sink: sink, fs: fs}, nil
}

// Start registers the root tree and begins forwarding events. Directories
// created later are picked up as their create events arrive.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})
	w.mu.Unlock()

	if err := w.watchTree(w.root); err != nil {
		return err
	}
	go w.loop(ctx)
	return nil
}

func (w *Watcher) watchTree(dir string) error {
	if err := w.fs.Add(dir); err != nil {
		return err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		sub := filepath.Join(dir, entry.Name())
		if w.ignoreDir(sub) {
			continue
		}
		// keep descending even if one subtree is unreadable
		_ = w.watchTree(sub)
	}
	return nil
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.handle(event)
		case _, ok := <-w.fs.Errors:
			if !ok {
				return
			}
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if !w.ignoreDir(event.Name) {
				_ = w.watchTree(event.Name)
			}
			return
		}
	}

	rel, err := filepath.Rel(w.root, event.Name)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)
	if !w.cfg.Match(rel) {
		return
	}

	change := diff.FileChange{Path: rel}
	switch {
	case event.Has(fsnotify.Create):
		change.Type = diff.Added
	case event.Has(fsnotify.Write):
		change.Type = diff.Modified
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		// fsnotify reports a rename as Rename on the old path and Create on
		// the new one, so the old path is a plain delete here.
		change.Type = diff.Deleted
	default:
		return
	}
	w.sink.Notify(change)
}

// ignoreDir prunes directories that could never contain indexable files,
// keeping the inotify watch count sane on big trees.
func (w *Watcher) ignoreDir(dir string) bool {
	base := filepath.Base(dir)
	if strings.HasPrefix(base, ".") {
		return true
	}
	rel, err := filepath.Rel(w.root, dir)
	if err != nil {
		return true
	}
	rel = filepath.ToSlash(rel)
	for _, pattern := range w.cfg.Exclude {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
		if ok, _ := doublestar.Match(pattern, rel+"/"); ok {
			return true
		}
	}
	return false
}

func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.cancel()
	w.mu.Unlock()

	err := w.fs.Close()
	<-w.done
	return err
}
