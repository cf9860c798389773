package jobs

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shrync/shrync/internal/ffmpeg"
	"github.com/shrync/shrync/internal/store"
)

type memStore struct {
	store.Store
	jobs     map[string]*store.QueueJob
	settings map[string]string
	history  []*store.HistoryEntry
}

func newMemStore() *memStore {
	return &memStore{jobs: make(map[string]*store.QueueJob), settings: make(map[string]string)}
}

func (m *memStore) GetQueueJob(id string) (*store.QueueJob, error) {
	j, ok := m.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return j, nil
}

func (m *memStore) GetSetting(key string) (string, bool, error) {
	v, ok := m.settings[key]
	return v, ok, nil
}

func (m *memStore) MarkProcessing(id string, startedAt time.Time, originalSize int64) error {
	j := m.jobs[id]
	j.Status = store.QueueProcessing
	j.StartedAt = &startedAt
	j.OriginalSize = originalSize
	return nil
}

func (m *memStore) UpdateProgress(id string, progress int, fps float64, eta string) error {
	j := m.jobs[id]
	j.Progress = progress
	j.FPS = fps
	j.ETA = eta
	return nil
}

func (m *memStore) AppendHistory(entry *store.HistoryEntry) error {
	m.history = append(m.history, entry)
	return nil
}

func (m *memStore) DeleteQueueJob(id string) error {
	delete(m.jobs, id)
	return nil
}

func writeScript(t *testing.T, name, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func TestTranscodeFileNotFoundRecordsDutchMessage(t *testing.T) {
	st := newMemStore()
	job := &store.QueueJob{ID: "job1", FilePath: "/does/not/exist.mkv", FileSize: 100}
	st.jobs[job.ID] = job

	prober := ffmpeg.NewProber("/bin/true")
	transcoder := ffmpeg.NewTranscoder()
	slots := NewSlots()

	Transcode(context.Background(), st, prober, transcoder, slots, "Worker-1", job.ID, Config{})

	if len(st.history) != 1 {
		t.Fatalf("expected one history entry, got %d", len(st.history))
	}
	if st.history[0].Status != store.HistoryError || *st.history[0].ErrorMsg != msgFileNotFound {
		t.Errorf("unexpected history entry: %+v", st.history[0])
	}
	if _, ok := st.jobs[job.ID]; ok {
		t.Error("expected queue job to be deleted")
	}
}

func TestTranscodeSuccessReplacesSourceAndRecordsHistory(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "movie.mkv")
	if err := os.WriteFile(source, []byte("0123456789"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}

	ffprobe := writeScript(t, "ffprobe", "#!/bin/sh\necho '{\"format\":{\"duration\":\"10\"},\"streams\":[]}'\n")
	// The fake ffmpeg writes the expected temp output file and reports progress.
	ffmpeg_ := writeScript(t, "ffmpeg", `#!/bin/bash
out="${!#}"
echo "smaller" > "$out"
echo "out_time_us=10000000"
echo "fps=25.0"
echo "progress=end"
exit 0
`)

	st := newMemStore()
	job := &store.QueueJob{ID: "job1", FilePath: source, FileSize: 10}
	st.jobs[job.ID] = job

	prober := ffmpeg.NewProber(ffprobe)
	transcoder := ffmpeg.NewTranscoder()
	slots := NewSlots()

	Transcode(context.Background(), st, prober, transcoder, slots, "Worker-1", job.ID,
		Config{FFmpegPath: ffmpeg_, FFprobePath: ffprobe, CacheDir: "", GPUMode: "cpu"})

	if len(st.history) != 1 || st.history[0].Status != store.HistorySuccess {
		t.Fatalf("expected one success history entry, got %+v", st.history)
	}
	data, err := os.ReadFile(source)
	if err != nil {
		t.Fatalf("read source after transcode: %v", err)
	}
	if string(data) != "smaller\n" {
		t.Errorf("expected source replaced with transcoded content, got %q", data)
	}
	if _, ok := st.jobs[job.ID]; ok {
		t.Error("expected queue job to be deleted on success")
	}
}

func TestTranscodeEncodeFailureRecordsErrorAndCleansTemp(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "movie.mkv")
	os.WriteFile(source, []byte("data"), 0o644)

	ffprobe := writeScript(t, "ffprobe", "#!/bin/sh\necho '{\"format\":{\"duration\":\"10\"},\"streams\":[]}'\n")
	// The fake ffmpeg leaves a partial temp output behind, then fails.
	ffmpegFail := writeScript(t, "ffmpeg", "#!/bin/bash\nout=\"${!#}\"\necho partial > \"$out\"\necho 'encoder not found' 1>&2\nexit 1\n")

	st := newMemStore()
	job := &store.QueueJob{ID: "job1", FilePath: source, FileSize: 4}
	st.jobs[job.ID] = job

	prober := ffmpeg.NewProber(ffprobe)
	transcoder := ffmpeg.NewTranscoder()
	slots := NewSlots()

	Transcode(context.Background(), st, prober, transcoder, slots, "Worker-1", job.ID,
		Config{FFmpegPath: ffmpegFail, FFprobePath: ffprobe, GPUMode: "cpu"})

	if len(st.history) != 1 || st.history[0].Status != store.HistoryError {
		t.Fatalf("expected one error history entry, got %+v", st.history)
	}
	if _, ok := st.jobs[job.ID]; ok {
		t.Error("expected queue job to be deleted after spawn/codec failure")
	}
	// source file must survive an encode failure
	if _, err := os.Stat(source); err != nil {
		t.Errorf("expected original source to survive failure, stat error: %v", err)
	}
	tempPath := ffmpeg.BuildTempPath(source, "", job.ID)
	if _, err := os.Stat(tempPath); !os.IsNotExist(err) {
		t.Errorf("expected temp output removed after failure, stat error: %v", err)
	}
}
