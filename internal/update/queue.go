package update

import (
	"sync"
	"time"

	"github.com/ahollis/treeline/internal/diff"
)

// DefaultQueueWindow is how long the queue waits for the storm of events a
// single save or branch switch produces to settle before running a cycle.
const DefaultQueueWindow = 500 * time.Millisecond

// Queue coalesces file-change notifications and hands them to a single
// worker, so update cycles never run concurrently. Events arriving while a
// cycle runs fold into the next batch.
type Queue struct {
	window time.Duration
	run    func([]diff.FileChange)

	mu      sync.Mutex
	pending map[string]diff.FileChange
	timer   *time.Timer
	stopped bool

	kick chan struct{}
	done chan struct{}
	wg   sync.WaitGroup
}

// NewQueue starts the drain worker. run receives each settled batch in
// arrival order; it must not be nil.
func NewQueue(window time.Duration, run func([]diff.FileChange)) *Queue {
	if window <= 0 {
		window = DefaultQueueWindow
	}
	q := &Queue{
		window:  window,
		run:     run,
		pending: make(map[string]diff.FileChange),
		kick:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	q.wg.Add(1)
	go q.drain()
	return q
}

// Notify records one change, collapsing repeated events on the same path so
// a save storm becomes at most one entry per file.
func (q *Queue) Notify(change diff.FileChange) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopped {
		return
	}

	if prev, ok := q.pending[change.Path]; ok {
		change = coalesce(prev, change)
		if change.Type == "" {
			// added then deleted within one window: nothing happened
			delete(q.pending, change.Path)
			return
		}
	}
	q.pending[change.Path] = change

	if q.timer != nil {
		q.timer.Stop()
	}
	q.timer = time.AfterFunc(q.window, func() {
		select {
		case q.kick <- struct{}{}:
		default:
		}
	})
}

// coalesce folds a newer event for a path onto an older one. A create
// followed by a delete cancels out, signalled by an empty change type.
func coalesce(old, new diff.FileChange) diff.FileChange {
	switch {
	case old.Type == diff.Added && new.Type == diff.Deleted:
		return diff.FileChange{Path: old.Path}
	case old.Type == diff.Added && new.Type == diff.Modified:
		new.Type = diff.Added
	case old.Type == diff.Deleted && new.Type == diff.Added:
		new.Type = diff.Modified
	}
	return new
}

func (q *Queue) drain() {
	defer q.wg.Done()
	for {
		select {
		case <-q.kick:
			q.flush()
		case <-q.done:
			q.flush()
			return
		}
	}
}

func (q *Queue) flush() {
	q.mu.Lock()
	if len(q.pending) == 0 {
		q.mu.Unlock()
		return
	}
	batch := make([]diff.FileChange, 0, len(q.pending))
	for _, change := range q.pending {
		batch = append(batch, change)
	}
	q.pending = make(map[string]diff.FileChange)
	q.mu.Unlock()

	q.run(batch)
}

// Stop flushes whatever is pending and waits for the worker to exit. The
// queue cannot be restarted.
func (q *Queue) Stop() {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	q.stopped = true
	if q.timer != nil {
		q.timer.Stop()
	}
	q.mu.Unlock()

	close(q.done)
	q.wg.Wait()
}
