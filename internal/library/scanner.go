package library

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shrync/shrync/internal/logger"
	"github.com/shrync/shrync/internal/profile"
	"github.com/shrync/shrync/internal/store"
)

// ScanStatus is a snapshot of one library's in-progress or most recent scan.
// It is held in memory only — restarting the process loses history of a
// scan in progress, which is acceptable since a fresh scan can always be
// triggered again.
type ScanStatus struct {
	Status            string `json:"status"` // "scanning", "done", "error"
	Scanned           int    `json:"scanned"`
	Added             int    `json:"added"`
	Skipped           int    `json:"skipped"`
	AlreadyConverted  int    `json:"already_converted"`
	CurrentFile       string `json:"current_file"`
	Path              string `json:"path"`
	Error             string `json:"error,omitempty"`
}

// Scanner walks library directories and enqueues eligible files.
type Scanner struct {
	store  store.Store
	prober ffmpegProber

	mu     sync.Mutex
	status map[string]*ScanStatus
}

// ffmpegProber is the subset of *ffmpeg.Prober the scanner needs, declared
// locally so tests can substitute a fake without importing os/exec.
type ffmpegProber interface {
	CodecOf(ctx context.Context, path string) string
}

// New returns a Scanner backed by st for persistence and prober for codec
// inspection.
func New(st store.Store, prober ffmpegProber) *Scanner {
	return &Scanner{
		store:  st,
		prober: prober,
		status: make(map[string]*ScanStatus),
	}
}

// Status returns the current scan status for libraryID, if any scan has
// ever been started for it in this process.
func (s *Scanner) Status(libraryID string) (ScanStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.status[libraryID]
	if !ok {
		return ScanStatus{}, false
	}
	return *st, true
}

// AllStatus returns a snapshot of every library's scan status.
func (s *Scanner) AllStatus() map[string]ScanStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]ScanStatus, len(s.status))
	for k, v := range s.status {
		out[k] = *v
	}
	return out
}

func (s *Scanner) setStatus(libraryID string, fn func(*ScanStatus)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.status[libraryID]
	if !ok {
		st = &ScanStatus{}
		s.status[libraryID] = st
	}
	fn(st)
}

// ScanLibrary walks libraryID's path recursively, filtering files through
// the eligibility rules and enqueueing each eligible one as it is found.
func (s *Scanner) ScanLibrary(ctx context.Context, libraryID, cacheDir string) error {
	lib, err := s.store.GetLibrary(libraryID)
	if err != nil {
		return fmt.Errorf("get library: %w", err)
	}

	s.setStatus(libraryID, func(st *ScanStatus) {
		*st = ScanStatus{Status: "scanning", Path: lib.Path}
	})

	info, err := os.Stat(lib.Path)
	if err != nil || !info.IsDir() {
		s.setStatus(libraryID, func(st *ScanStatus) {
			st.Status = "error"
			st.Error = fmt.Sprintf("map niet gevonden: %s", lib.Path)
		})
		return fmt.Errorf("library root not found: %s", lib.Path)
	}

	profileID, _, _ := s.store.GetSetting("conversion_profile")
	if profileID == "" {
		profileID = profile.DefaultID
	}
	targetCodec := profile.Get(profileID).VideoCodec

	var scanned, added, skipped, alreadyConverted int

	walkErr := filepath.WalkDir(lib.Path, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if path == lib.Path {
				return err
			}
			logger.Warn("scan: cannot read entry", "path", path, "error", err)
			return nil
		}
		if d.IsDir() {
			if d.Name() != filepath.Base(lib.Path) && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}

		name := d.Name()
		if !HasVideoExtension(name) {
			return nil
		}
		if IsTempArtifact(name) {
			return nil
		}
		if UnderCacheDir(path, cacheDir) {
			return nil
		}

		scanned++
		s.setStatus(libraryID, func(st *ScanStatus) {
			st.Scanned = scanned
			st.CurrentFile = name
		})

		active, err := s.store.HasActiveJobForPath(path)
		if err != nil {
			logger.Warn("scan: store check failed", "path", path, "error", err)
			return nil
		}
		if active {
			skipped++
			s.setStatus(libraryID, func(st *ScanStatus) { st.Skipped = skipped })
			return nil
		}

		done, err := s.store.HasSuccessfulHistoryForPath(path)
		if err != nil {
			logger.Warn("scan: store check failed", "path", path, "error", err)
			return nil
		}
		if done {
			skipped++
			s.setStatus(libraryID, func(st *ScanStatus) { st.Skipped = skipped })
			return nil
		}

		codec := s.prober.CodecOf(ctx, path)
		if MatchesProfileFamily(codec, targetCodec) {
			alreadyConverted++
			s.setStatus(libraryID, func(st *ScanStatus) { st.AlreadyConverted = alreadyConverted })
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			logger.Warn("scan: stat failed", "path", path, "error", err)
			return nil
		}

		job := &store.QueueJob{
			ID:       uuid.NewString(),
			LibraryID: &libraryID,
			FilePath: path,
			FileSize: fi.Size(),
			Status:   store.QueuePending,
		}
		if err := s.store.EnqueueJob(job); err != nil {
			logger.Warn("scan: enqueue failed", "path", path, "error", err)
			return nil
		}
		added++
		s.setStatus(libraryID, func(st *ScanStatus) { st.Added = added })
		return nil
	})

	if walkErr != nil {
		s.setStatus(libraryID, func(st *ScanStatus) {
			st.Status = "error"
			st.Error = walkErr.Error()
		})
		return walkErr
	}

	if err := s.store.TouchLastScan(libraryID, time.Now().UTC()); err != nil {
		logger.Warn("scan: touch last_scan failed", "library_id", libraryID, "error", err)
	}

	s.setStatus(libraryID, func(st *ScanStatus) {
		st.Status = "done"
		st.CurrentFile = ""
	})
	logger.Info("scan complete", "library_id", libraryID, "scanned", scanned, "added", added,
		"skipped", skipped, "already_converted", alreadyConverted)
	return nil
}
