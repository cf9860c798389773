// Package schedule drives periodic per-library rescans from each
// Library's scan_interval setting, using robfig/cron as the timing
// engine and syncing entries from the store on a fixed interval so
// library changes take effect without a restart.
package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shrync/shrync/internal/logger"
	"github.com/shrync/shrync/internal/store"
)

const syncInterval = time.Minute

// ScanFunc runs one library's scan. Supplied by the caller so this
// package has no direct dependency on internal/library's Scanner type.
type ScanFunc func(ctx context.Context, libraryID string) error

// Scheduler keeps one cron entry per enabled library, firing scan_interval
// apart, and resyncs that set from the store every minute.
type Scheduler struct {
	store store.Store
	scan  ScanFunc

	mu        sync.Mutex
	cron      *cron.Cron
	entries   map[string]cron.EntryID
	intervals map[string]int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New returns a Scheduler that calls scan for each enabled library on its
// own scan_interval cadence.
func New(st store.Store, scan ScanFunc) *Scheduler {
	return &Scheduler{
		store:     st,
		scan:      scan,
		cron:      cron.New(cron.WithSeconds()),
		entries:   make(map[string]cron.EntryID),
		intervals: make(map[string]int),
	}
}

// Start loads the current set of enabled libraries, registers a cron
// entry per library, and starts the resync loop.
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)

	if err := s.sync(); err != nil {
		logger.Error("schedule: initial sync failed", "error", err)
	}
	s.cron.Start()

	s.wg.Add(1)
	go s.syncLoop()
}

// Stop halts the resync loop and the cron engine, waiting for any
// in-progress cron job to return.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.wg.Wait()
}

func (s *Scheduler) syncLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(syncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if err := s.sync(); err != nil {
				logger.Error("schedule: sync failed", "error", err)
			}
		}
	}
}

// sync reconciles cron entries with the current set of enabled libraries.
func (s *Scheduler) sync() error {
	libs, err := s.store.ListEnabledLibraries()
	if err != nil {
		return fmt.Errorf("list enabled libraries: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool, len(libs))
	for _, lib := range libs {
		seen[lib.ID] = true
		interval := lib.ScanInterval
		if interval <= 0 {
			interval = 3600
		}

		if _, ok := s.entries[lib.ID]; ok && s.intervals[lib.ID] == interval {
			// Entry already exists with the same interval — leave it in
			// place. robfig/cron computes an @every entry's next fire time
			// as "now + interval" when it is (re-)added, so removing and
			// re-adding an unchanged entry on every resync tick would keep
			// pushing its fire time out and it would never elapse.
			continue
		}
		if entryID, ok := s.entries[lib.ID]; ok {
			s.cron.Remove(entryID)
			delete(s.entries, lib.ID)
		}

		spec := fmt.Sprintf("@every %ds", interval)
		libraryID := lib.ID
		entryID, err := s.cron.AddFunc(spec, func() {
			if err := s.scan(context.Background(), libraryID); err != nil {
				logger.Error("schedule: scan failed", "library_id", libraryID, "error", err)
			}
		})
		if err != nil {
			logger.Error("schedule: invalid interval", "library_id", libraryID, "interval", interval, "error", err)
			continue
		}
		s.entries[lib.ID] = entryID
		s.intervals[lib.ID] = interval
	}

	for id, entryID := range s.entries {
		if !seen[id] {
			s.cron.Remove(entryID)
			delete(s.entries, id)
			delete(s.intervals, id)
		}
	}
	return nil
}
