// Package supervisor owns process-lifetime orchestration: startup
// recovery, the initial per-library scan fan-out, watcher liveness, and
// keeping the worker pool sized to the max_workers setting.
package supervisor

import (
	"context"
	"os"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/shrync/shrync/internal/ffmpeg"
	"github.com/shrync/shrync/internal/jobs"
	"github.com/shrync/shrync/internal/library"
	"github.com/shrync/shrync/internal/logger"
	"github.com/shrync/shrync/internal/store"
	"github.com/shrync/shrync/internal/watcher"
)

const watcherMonitorInterval = 30 * time.Second

// Config carries the runtime knobs the supervisor needs to start the
// transcoder and probe, and to resolve the cache directory for
// already-eligible-for-cleanup checks.
type Config struct {
	FFmpegPath  string
	FFprobePath string
	CacheDir    string
	GPUMode     string
}

// Supervisor wires together recovery, scanning, watching and the worker
// pool into one type that also owns the watcher fleet.
type Supervisor struct {
	store   store.Store
	scanner *library.Scanner
	pool    *jobs.Pool
	cfg     func() Config

	mu       sync.Mutex
	watchers map[string]*watcher.Watcher

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New returns a Supervisor over the given store, scanner and worker pool.
// cfg is called on every use rather than captured once; its values come
// from the process configuration, not from the settings table.
func New(st store.Store, scanner *library.Scanner, pool *jobs.Pool, cfg func() Config) *Supervisor {
	return &Supervisor{
		store:    st,
		scanner:  scanner,
		pool:     pool,
		cfg:      cfg,
		watchers: make(map[string]*watcher.Watcher),
	}
}

// Start runs crash recovery, fans out an initial scan across all enabled
// libraries, starts a watcher per library, sizes the worker pool from the
// max_workers setting, and starts the watcher liveness monitor.
func (s *Supervisor) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.recover()

	libs, err := s.store.ListEnabledLibraries()
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, lib := range libs {
		lib := lib
		g.Go(func() error {
			if err := s.scanner.ScanLibrary(gctx, lib.ID, s.cfg().CacheDir); err != nil {
				logger.Warn("supervisor: initial scan failed", "library_id", lib.ID, "error", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logger.Warn("supervisor: initial scan fan-out reported an error", "error", err)
	}

	s.startWatchers(ctx, libs)
	s.resizePoolFromSettings()

	s.wg.Add(1)
	go s.watcherMonitor(ctx)

	return nil
}

// Stop halts the watcher monitor, every watcher, and the worker pool.
func (s *Supervisor) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()

	s.mu.Lock()
	for id, w := range s.watchers {
		w.Stop()
		delete(s.watchers, id)
	}
	s.mu.Unlock()

	s.pool.Stop()
}

// recover resets any queue row left in `processing` from an unclean
// shutdown back to `pending`, and removes its stale temp artifact so a
// half-written file never shadows the original on the next scan.
func (s *Supervisor) recover() {
	stale, err := s.store.ResetProcessingJobs()
	if err != nil {
		logger.Error("supervisor: recovery failed", "error", err)
		return
	}
	for _, job := range stale {
		tempPath := ffmpeg.BuildTempPath(job.FilePath, s.cfg().CacheDir, job.ID)
		if err := os.Remove(tempPath); err != nil && !os.IsNotExist(err) {
			logger.Warn("supervisor: failed to remove stale temp artifact", "path", tempPath, "error", err)
		}
	}
	if len(stale) > 0 {
		logger.Info("supervisor: recovered interrupted jobs", "count", len(stale))
	}
}

// startWatchers reconciles the running watcher fleet against libs,
// touching only what actually changed: a library with no watcher yet, a
// watcher whose path no longer matches its library, or a watcher whose
// poll loop has died gets (re)started. A healthy watcher whose library
// is still enabled and unchanged is left running, so its seen map
// survives — restarting it would make every already-known file look
// newly observed again on the next poll.
func (s *Supervisor) startWatchers(ctx context.Context, libs []*store.Library) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool, len(libs))
	for _, lib := range libs {
		seen[lib.ID] = true
		if existing, ok := s.watchers[lib.ID]; ok {
			if existing.Alive() && existing.Path() == lib.Path {
				continue
			}
			existing.Stop()
			delete(s.watchers, lib.ID)
		}
		prober := &probeAdapter{cfg: s.cfg}
		w := watcher.New(lib.ID, lib.Path, s.store, prober, func() string { return s.cfg().CacheDir })
		w.Start(ctx)
		s.watchers[lib.ID] = w
	}
	for id, w := range s.watchers {
		if !seen[id] {
			w.Stop()
			delete(s.watchers, id)
		}
	}
}

// RestartWatchers re-reads the enabled library list and reconciles the
// watcher fleet against it, used after a library is created, updated or
// deleted via the API.
func (s *Supervisor) RestartWatchers(ctx context.Context) error {
	libs, err := s.store.ListEnabledLibraries()
	if err != nil {
		return err
	}
	s.startWatchers(ctx, libs)
	return nil
}

// watcherMonitor periodically reconciles the watcher fleet, mirroring the
// original's background thread that re-establishes watches if one dies
// silently. startWatchers only touches libraries that are new, moved, or
// whose watcher has actually died, so a healthy watcher's seen map
// survives each tick.
func (s *Supervisor) watcherMonitor(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(watcherMonitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			libs, err := s.store.ListEnabledLibraries()
			if err != nil {
				logger.Warn("supervisor: watcher monitor failed to list libraries", "error", err)
				continue
			}
			s.startWatchers(ctx, libs)
		}
	}
}

// ResizePool clamps and applies a new worker count, used directly by the
// settings API handler.
func (s *Supervisor) ResizePool(n int) {
	s.pool.Resize(n)
}

func (s *Supervisor) resizePoolFromSettings() {
	raw, ok, err := s.store.GetSetting("max_workers")
	if err != nil || !ok {
		s.pool.Resize(jobs.MinWorkers)
		return
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		n = jobs.MinWorkers
	}
	s.pool.Resize(n)
}

// probeAdapter implements watcher.CodecChecker by resolving a fresh
// *ffmpeg.Prober from cfg's FFprobePath on every call.
type probeAdapter struct {
	cfg func() Config
}

func (p *probeAdapter) CodecOf(ctx context.Context, path string) string {
	return ffmpeg.NewProber(p.cfg().FFprobePath).CodecOf(ctx, path)
}
