package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shrync/shrync/internal/ffmpeg"
	"github.com/shrync/shrync/internal/jobs"
	"github.com/shrync/shrync/internal/library"
	"github.com/shrync/shrync/internal/store"
	"github.com/shrync/shrync/internal/supervisor"
)

type fakeStore struct {
	store.Store
	libs     map[string]*store.Library
	queue    map[string]*store.QueueJob
	settings map[string]string
	history  []*store.HistoryEntry
	stats    store.Stats
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		libs:     make(map[string]*store.Library),
		queue:    make(map[string]*store.QueueJob),
		settings: make(map[string]string),
	}
}

func (f *fakeStore) Stats() (store.Stats, error) { return f.stats, nil }

func (f *fakeStore) RecentSuccesses(limit int) ([]*store.HistoryEntry, error) {
	if len(f.history) > limit {
		return f.history[:limit], nil
	}
	return f.history, nil
}

func (f *fakeStore) Savings() (store.SavingsTotals, []store.LibrarySavings, []store.DailySavings, error) {
	return store.SavingsTotals{}, nil, nil, nil
}

func (f *fakeStore) ListLibraries() ([]*store.Library, error) {
	out := make([]*store.Library, 0, len(f.libs))
	for _, l := range f.libs {
		out = append(out, l)
	}
	return out, nil
}

func (f *fakeStore) ListEnabledLibraries() ([]*store.Library, error) { return nil, nil }

func (f *fakeStore) CreateLibrary(lib *store.Library) error {
	f.libs[lib.ID] = lib
	return nil
}

func (f *fakeStore) GetLibrary(id string) (*store.Library, error) {
	l, ok := f.libs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return l, nil
}

func (f *fakeStore) UpdateLibrary(lib *store.Library) error {
	f.libs[lib.ID] = lib
	return nil
}

func (f *fakeStore) DeleteLibrary(id string) error {
	delete(f.libs, id)
	return nil
}

func (f *fakeStore) ListQueueJobs(status store.QueueStatus) ([]*store.QueueJob, error) {
	out := make([]*store.QueueJob, 0, len(f.queue))
	for _, j := range f.queue {
		if status == "" || j.Status == status {
			out = append(out, j)
		}
	}
	return out, nil
}

func (f *fakeStore) GetQueueJob(id string) (*store.QueueJob, error) {
	j, ok := f.queue[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return j, nil
}

func (f *fakeStore) DeleteQueueJob(id string) error {
	delete(f.queue, id)
	return nil
}

func (f *fakeStore) EnqueueJob(job *store.QueueJob) error {
	f.queue[job.ID] = job
	return nil
}

func (f *fakeStore) HasActiveJobForPath(path string) (bool, error) {
	for _, j := range f.queue {
		if j.FilePath == path {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) HasSuccessfulHistoryForPath(string) (bool, error) { return false, nil }

func (f *fakeStore) AllSettings() (map[string]string, error) { return f.settings, nil }

func (f *fakeStore) GetSetting(key string) (string, bool, error) {
	v, ok := f.settings[key]
	return v, ok, nil
}

func (f *fakeStore) SetSetting(key, value string) error {
	f.settings[key] = value
	return nil
}

func (f *fakeStore) ListHistory(page, perPage int) ([]*store.HistoryEntry, int, error) {
	return f.history, len(f.history), nil
}

func (f *fakeStore) ClearHistory() error {
	f.history = nil
	return nil
}

func setupTestHandler(t *testing.T) (*Handler, *fakeStore) {
	t.Helper()
	st := newFakeStore()
	prober := ffmpeg.NewProber("/bin/true")
	scanner := library.New(st, prober)
	pool := jobs.NewPool(st, prober, ffmpeg.NewTranscoder(), func() jobs.Config {
		return jobs.Config{FFmpegPath: "/bin/true", FFprobePath: "/bin/true"}
	})
	super := supervisor.New(st, scanner, pool, func() supervisor.Config {
		return supervisor.Config{FFmpegPath: "/bin/true", FFprobePath: "/bin/true"}
	})
	runtime := func() RuntimeInfo {
		return RuntimeInfo{GPUMode: "cpu", CacheDir: "", FFmpegPath: "/bin/true", FFprobePath: "/bin/true"}
	}
	return NewHandler(st, scanner, pool, super, runtime), st
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
}

func TestStatsEndpoint(t *testing.T) {
	h, st := setupTestHandler(t)
	st.stats = store.Stats{Pending: 2, Processing: 1, BytesSaved: 5000}

	rr := httptest.NewRecorder()
	h.Stats(rr, httptest.NewRequest(http.MethodGet, "/api/stats", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var body map[string]any
	decodeJSON(t, rr, &body)
	if int(body["pending"].(float64)) != 2 {
		t.Errorf("unexpected body: %v", body)
	}
}

func TestCreateLibraryRejectsMissingPath(t *testing.T) {
	h, _ := setupTestHandler(t)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/libraries", bytes.NewBufferString(`{"name":"TV"}`))
	h.CreateLibrary(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing path, got %d", rr.Code)
	}
}

func TestCreateLibraryReturnsID(t *testing.T) {
	h, st := setupTestHandler(t)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/libraries", bytes.NewBufferString(`{"name":"TV","path":"/media/tv"}`))
	h.CreateLibrary(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var body map[string]string
	decodeJSON(t, rr, &body)
	if body["id"] == "" {
		t.Fatal("expected a generated id")
	}
	if len(st.libs) != 1 {
		t.Errorf("expected library persisted, got %d", len(st.libs))
	}
}

func TestAddQueueJobRejectsMissingFile(t *testing.T) {
	h, _ := setupTestHandler(t)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/queue/add", bytes.NewBufferString(`{"path":"/does/not/exist.mkv"}`))
	h.AddQueueJob(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing file, got %d", rr.Code)
	}
}

func TestAddQueueJobRejectsAlreadyQueuedPath(t *testing.T) {
	h, st := setupTestHandler(t)
	st.queue["existing"] = &store.QueueJob{ID: "existing", FilePath: "/media/movie.mkv", Status: store.QueuePending}

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/queue/add", bytes.NewBufferString(`{"path":"/media/movie.mkv"}`))
	h.AddQueueJob(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for duplicate path, got %d", rr.Code)
	}
}

func TestDeleteQueueJobKillsActiveTranscode(t *testing.T) {
	h, st := setupTestHandler(t)
	st.queue["job-1"] = &store.QueueJob{ID: "job-1", Status: store.QueueProcessing}
	killed := false
	h.pool.Slots().Set("Worker-1", "job-1", killerFunc(func() error { killed = true; return nil }))

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/api/queue/job-1", nil)
	req.SetPathValue("id", "job-1")
	h.DeleteQueueJob(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !killed {
		t.Error("expected the active transcoder to be killed")
	}
	if _, ok := st.queue["job-1"]; ok {
		t.Error("expected queue row removed")
	}
}

type killerFunc func() error

func (k killerFunc) Kill() error { return k() }

func TestUpdateSettingsResizesPoolOnMaxWorkers(t *testing.T) {
	h, st := setupTestHandler(t)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/settings", bytes.NewBufferString(`{"max_workers":"2"}`))
	h.UpdateSettings(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if st.settings["max_workers"] != "2" {
		t.Errorf("expected setting persisted, got %q", st.settings["max_workers"])
	}
	// give the resized pool's workers a moment to start, then stop them.
	time.Sleep(10 * time.Millisecond)
	h.pool.Stop()
}

func TestWorkersPauseResumeStatus(t *testing.T) {
	h, _ := setupTestHandler(t)

	rr := httptest.NewRecorder()
	h.PauseWorkers(rr, httptest.NewRequest(http.MethodPost, "/api/workers/pause", nil))
	if !h.pool.Paused() {
		t.Fatal("expected pool paused")
	}

	rr = httptest.NewRecorder()
	h.ResumeWorkers(rr, httptest.NewRequest(http.MethodPost, "/api/workers/resume", nil))
	if h.pool.Paused() {
		t.Fatal("expected pool resumed")
	}

	rr = httptest.NewRecorder()
	h.WorkersStatus(rr, httptest.NewRequest(http.MethodGet, "/api/workers/status", nil))
	var body map[string]any
	decodeJSON(t, rr, &body)
	if body["paused"].(bool) {
		t.Error("expected status to reflect resumed state")
	}
}

func TestConfigEndpointReflectsGPUMode(t *testing.T) {
	h, _ := setupTestHandler(t)

	rr := httptest.NewRecorder()
	h.Config(rr, httptest.NewRequest(http.MethodGet, "/api/config", nil))

	var body map[string]any
	decodeJSON(t, rr, &body)
	if body["gpu_available"].(bool) {
		t.Error("expected gpu_available false under cpu mode")
	}
	if body["gpu_mode"] != "cpu" {
		t.Errorf("expected gpu_mode cpu, got %v", body["gpu_mode"])
	}
}
