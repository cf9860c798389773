// Package watcher polls configured library directories for newly created
// or moved-in files. Polling, not fsnotify, is used deliberately: target
// filesystems may be network mounts that never deliver native inotify or
// FSEvents notifications.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shrync/shrync/internal/library"
	"github.com/shrync/shrync/internal/logger"
	"github.com/shrync/shrync/internal/profile"
	"github.com/shrync/shrync/internal/store"
)

const pollInterval = 10 * time.Second
const stabilityWait = 10 * time.Second

// CodecChecker is the subset of *ffmpeg.Prober the watcher needs to apply
// eligibility rule 6 (already-converted detection).
type CodecChecker interface {
	CodecOf(ctx context.Context, path string) string
}

// Watcher polls one library's directory tree for new files.
type Watcher struct {
	libraryID string
	path      string
	store     store.Store
	prober    CodecChecker
	cacheDir  func() string

	pendingMu sync.Mutex
	pending   map[string]struct{}

	seenMu sync.Mutex
	seen   map[string]struct{}

	cancel context.CancelFunc
	done   chan struct{}
}

// New returns a Watcher bound to libraryID's path. cacheDir is called on
// every check rather than captured once.
func New(libraryID, path string, st store.Store, prober CodecChecker, cacheDir func() string) *Watcher {
	return &Watcher{
		libraryID: libraryID,
		path:      path,
		store:     st,
		prober:    prober,
		cacheDir:  cacheDir,
		pending:   make(map[string]struct{}),
		seen:      make(map[string]struct{}),
	}
}

// Start begins polling in a background goroutine. Stop must be called to
// release it.
func (w *Watcher) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})

	go func() {
		defer close(w.done)
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.poll(ctx)
			}
		}
	}()
}

// Stop halts polling and waits for the background goroutine to exit.
func (w *Watcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	if w.done != nil {
		<-w.done
	}
}

// Path returns the directory this watcher polls.
func (w *Watcher) Path() string { return w.path }

// Alive reports whether the polling goroutine is still running. A
// Watcher that was never started, or whose poll loop has exited (its
// context was cancelled, or it panicked), reports false.
func (w *Watcher) Alive() bool {
	if w.done == nil {
		return false
	}
	select {
	case <-w.done:
		return false
	default:
		return true
	}
}

// poll walks the tree once, looking for files not previously observed.
func (w *Watcher) poll(ctx context.Context) {
	err := filepath.WalkDir(w.path, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if w.markSeen(path) {
			return nil // already known from a previous poll
		}
		w.consider(ctx, path)
		return nil
	})
	if err != nil {
		logger.Warn("watcher: poll failed", "library_id", w.libraryID, "path", w.path, "error", err)
	}
}

// markSeen returns true if path was already recorded as seen, and records
// it if not.
func (w *Watcher) markSeen(path string) bool {
	w.seenMu.Lock()
	defer w.seenMu.Unlock()
	if _, ok := w.seen[path]; ok {
		return true
	}
	w.seen[path] = struct{}{}
	return false
}

// consider reacts to a newly observed file, rejecting non-video files
// and otherwise scheduling a deferred, stability-checked enqueue.
func (w *Watcher) consider(ctx context.Context, path string) {
	name := filepath.Base(path)
	if !library.HasVideoExtension(name) {
		return
	}
	if library.IsTempArtifact(name) {
		return
	}
	if library.UnderCacheDir(path, w.cacheDir()) {
		return
	}

	w.pendingMu.Lock()
	w.pending[path] = struct{}{}
	w.pendingMu.Unlock()

	logger.Info("watcher: new file detected", "path", path)
	go w.delayedEnqueue(ctx, path)
}

// delayedEnqueue implements the two-sample size-stability check: wait,
// sample, wait again, sample again. Equal sizes mean the file is no
// longer being written to.
func (w *Watcher) delayedEnqueue(ctx context.Context, path string) {
	select {
	case <-time.After(stabilityWait):
	case <-ctx.Done():
		return
	}

	w.pendingMu.Lock()
	_, stillPending := w.pending[path]
	delete(w.pending, path)
	w.pendingMu.Unlock()
	if !stillPending {
		return
	}

	size1, err := fileSize(path)
	if err != nil {
		return
	}
	select {
	case <-time.After(stabilityWait):
	case <-ctx.Done():
		return
	}
	size2, err := fileSize(path)
	if err != nil {
		return
	}
	if size1 != size2 {
		logger.Info("watcher: file still being written", "path", path)
		return
	}

	if err := w.tryEnqueue(ctx, path); err != nil {
		logger.Warn("watcher: enqueue failed", "path", path, "error", err)
	}
}

// tryEnqueue re-applies eligibility rules 4-6 of the scanner's filter and
// inserts a pending queue row if the file still qualifies.
func (w *Watcher) tryEnqueue(ctx context.Context, path string) error {
	active, err := w.store.HasActiveJobForPath(path)
	if err != nil {
		return err
	}
	if active {
		return nil
	}

	done, err := w.store.HasSuccessfulHistoryForPath(path)
	if err != nil {
		return err
	}
	if done {
		return nil
	}

	profileID, _, err := w.store.GetSetting("conversion_profile")
	if err != nil {
		return err
	}
	if profileID == "" {
		profileID = profile.DefaultID
	}
	targetCodec := profile.Get(profileID).VideoCodec
	codec := w.prober.CodecOf(ctx, path)
	if library.MatchesProfileFamily(codec, targetCodec) {
		return nil
	}

	size, err := fileSize(path)
	if err != nil {
		return err
	}

	libraryID := w.libraryID
	job := &store.QueueJob{
		ID:        uuid.NewString(),
		LibraryID: &libraryID,
		FilePath:  path,
		FileSize:  size,
		Status:    store.QueuePending,
	}
	if err := w.store.EnqueueJob(job); err != nil {
		return err
	}
	logger.Info("watcher: file added to queue", "path", path)
	return nil
}

func fileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}
