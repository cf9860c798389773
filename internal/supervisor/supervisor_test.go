package supervisor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shrync/shrync/internal/ffmpeg"
	"github.com/shrync/shrync/internal/jobs"
	"github.com/shrync/shrync/internal/library"
	"github.com/shrync/shrync/internal/store"
)

type fakeStore struct {
	store.Store
	libs     []*store.Library
	stale    []*store.QueueJob
	settings map[string]string
}

func (f *fakeStore) ListEnabledLibraries() ([]*store.Library, error) { return f.libs, nil }

func (f *fakeStore) ResetProcessingJobs() ([]*store.QueueJob, error) {
	stale := f.stale
	f.stale = nil
	return stale, nil
}

func (f *fakeStore) GetSetting(key string) (string, bool, error) {
	v, ok := f.settings[key]
	return v, ok, nil
}

func (f *fakeStore) GetLibrary(id string) (*store.Library, error) {
	for _, l := range f.libs {
		if l.ID == id {
			return l, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) HasActiveJobForPath(string) (bool, error)         { return false, nil }
func (f *fakeStore) HasSuccessfulHistoryForPath(string) (bool, error) { return false, nil }
func (f *fakeStore) EnqueueJob(*store.QueueJob) error                 { return nil }
func (f *fakeStore) TouchLastScan(string, time.Time) error            { return nil }

func newSupervisor(t *testing.T, st *fakeStore) *Supervisor {
	t.Helper()
	prober := ffmpeg.NewProber("/bin/true")
	scanner := library.New(st, prober)
	pool := jobs.NewPool(st, prober, ffmpeg.NewTranscoder(), func() jobs.Config {
		return jobs.Config{FFmpegPath: "/bin/true", FFprobePath: "/bin/true"}
	})
	return New(st, scanner, pool, func() Config {
		return Config{FFmpegPath: "/bin/true", FFprobePath: "/bin/true"}
	})
}

func TestRecoverRemovesStaleTempArtifact(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "movie.mkv")
	os.WriteFile(source, []byte("data"), 0o644)

	job := &store.QueueJob{ID: uuid.NewString(), FilePath: source}
	tempPath := ffmpeg.BuildTempPath(job.FilePath, "", job.ID)
	os.WriteFile(tempPath, []byte("partial"), 0o644)

	st := &fakeStore{stale: []*store.QueueJob{job}, settings: map[string]string{}}
	s := newSupervisor(t, st)

	s.recover()

	if _, err := os.Stat(tempPath); !os.IsNotExist(err) {
		t.Errorf("expected stale temp artifact removed, stat error: %v", err)
	}
	if _, err := os.Stat(source); err != nil {
		t.Errorf("expected original source untouched: %v", err)
	}
}

func TestStartStartsOneWatcherPerEnabledLibrary(t *testing.T) {
	dir := t.TempDir()
	st := &fakeStore{
		libs: []*store.Library{
			{ID: "lib-1", Path: dir, Enabled: true, ScanInterval: 3600},
		},
		settings: map[string]string{"max_workers": "1"},
	}
	s := newSupervisor(t, st)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	s.mu.Lock()
	n := len(s.watchers)
	s.mu.Unlock()
	if n != 1 {
		t.Errorf("expected 1 watcher started, got %d", n)
	}
}

func TestRestartWatchersDropsWatcherForRemovedLibrary(t *testing.T) {
	dir := t.TempDir()
	st := &fakeStore{
		libs:     []*store.Library{{ID: "lib-1", Path: dir, Enabled: true, ScanInterval: 3600}},
		settings: map[string]string{},
	}
	s := newSupervisor(t, st)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	st.libs = nil
	if err := s.RestartWatchers(context.Background()); err != nil {
		t.Fatalf("RestartWatchers: %v", err)
	}

	s.mu.Lock()
	n := len(s.watchers)
	s.mu.Unlock()
	if n != 0 {
		t.Errorf("expected watcher fleet emptied after library removal, got %d", n)
	}
}

func TestStartWatchersLeavesHealthyUnchangedWatcherRunning(t *testing.T) {
	dir := t.TempDir()
	st := &fakeStore{
		libs:     []*store.Library{{ID: "lib-1", Path: dir, Enabled: true, ScanInterval: 3600}},
		settings: map[string]string{},
	}
	s := newSupervisor(t, st)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	s.mu.Lock()
	before := s.watchers["lib-1"]
	s.mu.Unlock()

	// A resync tick with the same library set must not replace a watcher
	// that is still alive and watching the same path — doing so would
	// drop its seen map and re-surface every already-known file.
	s.startWatchers(context.Background(), st.libs)

	s.mu.Lock()
	after := s.watchers["lib-1"]
	s.mu.Unlock()

	if before != after {
		t.Error("expected the same watcher instance to survive an unchanged resync")
	}
}

func TestStartWatchersReplacesWatcherWhosePathChanged(t *testing.T) {
	dir1 := t.TempDir()
	dir2 := t.TempDir()
	st := &fakeStore{
		libs:     []*store.Library{{ID: "lib-1", Path: dir1, Enabled: true, ScanInterval: 3600}},
		settings: map[string]string{},
	}
	s := newSupervisor(t, st)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	st.libs[0].Path = dir2
	s.startWatchers(context.Background(), st.libs)

	s.mu.Lock()
	w := s.watchers["lib-1"]
	s.mu.Unlock()
	if w.Path() != dir2 {
		t.Errorf("expected watcher replaced with new path, got %q", w.Path())
	}
}

func TestResizePoolFromSettingsDefaultsToMinWorkersWithoutSetting(t *testing.T) {
	st := &fakeStore{settings: map[string]string{}}
	s := newSupervisor(t, st)

	// Exercise the unexported default path directly; a missing max_workers
	// setting must not block startup.
	s.resizePoolFromSettings()
	s.pool.Stop()
}
