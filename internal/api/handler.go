// Package api implements the small JSON HTTP surface over the transcode
// engine: library CRUD, queue and history inspection, settings, worker
// pause/resume, and diagnostics. Everything here is a thin, mechanical
// layer over internal/store, internal/library, internal/jobs and
// internal/supervisor — no business logic lives in a handler.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/shrync/shrync/internal/jobs"
	"github.com/shrync/shrync/internal/library"
	"github.com/shrync/shrync/internal/profile"
	"github.com/shrync/shrync/internal/store"
	"github.com/shrync/shrync/internal/supervisor"
	"github.com/shrync/shrync/internal/version"
)

// RuntimeInfo is the static, non-store-backed part of GET /api/config.
type RuntimeInfo struct {
	GPUMode     string
	CacheDir    string
	FFmpegPath  string
	FFprobePath string
}

// Handler holds every collaborator an HTTP route needs. Beyond what
// store/library/jobs expose, handlers only stat a path (AddQueueJob) and
// read library directories (Diagnostics).
type Handler struct {
	store      store.Store
	scanner    *library.Scanner
	pool       *jobs.Pool
	supervisor *supervisor.Supervisor
	runtime    func() RuntimeInfo
}

// NewHandler wires a Handler over the engine's running components.
// runtime is called on every request rather than captured once; the
// values it returns come from the process configuration, not from the
// settings table.
func NewHandler(st store.Store, scanner *library.Scanner, pool *jobs.Pool, super *supervisor.Supervisor, runtime func() RuntimeInfo) *Handler {
	return &Handler{store: st, scanner: scanner, pool: pool, supervisor: super, runtime: runtime}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// Stats handles GET /api/stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.Stats()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"pending":          stats.Pending,
		"processing":       stats.Processing,
		"successes_today":  stats.SuccessesToday,
		"total_errors":     stats.TotalErrors,
		"bytes_saved":      stats.BytesSaved,
		"bytes_saved_human": humanize.Bytes(uint64(max64(stats.BytesSaved, 0))),
		"active_libraries": stats.ActiveLibraries,
	})
}

// Recent handles GET /api/recent.
func (h *Handler) Recent(w http.ResponseWriter, r *http.Request) {
	entries, err := h.store.RecentSuccesses(5)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// Savings handles GET /api/savings.
func (h *Handler) Savings(w http.ResponseWriter, r *http.Request) {
	totals, byLibrary, byDay, err := h.store.Savings()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"totals": map[string]any{
			"total_files":     totals.TotalFiles,
			"total_original":  totals.TotalOriginal,
			"total_new":       totals.TotalNew,
			"total_saved":     totals.TotalSaved,
			"total_saved_human": humanize.Bytes(uint64(max64(totals.TotalSaved, 0))),
		},
		"by_library": byLibrary,
		"by_day":     byDay,
	})
}

// Index handles GET / with a minimal placeholder — the HTML/static UI is
// an external collaborator this edition does not ship.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintln(w, "shrync API - no bundled UI in this build")
}

// ListLibraries handles GET /api/libraries.
func (h *Handler) ListLibraries(w http.ResponseWriter, r *http.Request) {
	libs, err := h.store.ListLibraries()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, libs)
}

type libraryRequest struct {
	Name         string `json:"name"`
	Path         string `json:"path"`
	Enabled      *bool  `json:"enabled"`
	ScanInterval int    `json:"scan_interval"`
}

// CreateLibrary handles POST /api/libraries: creates the row, kicks off a
// background scan, and restarts the watcher fleet so the new directory is
// observed immediately.
func (h *Handler) CreateLibrary(w http.ResponseWriter, r *http.Request) {
	var req libraryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	lib := &store.Library{
		ID:           uuid.NewString(),
		Name:         req.Name,
		Path:         req.Path,
		Enabled:      enabled,
		ScanInterval: req.ScanInterval,
	}
	if err := h.store.CreateLibrary(lib); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	cacheDir := h.runtime().CacheDir
	go h.scanner.ScanLibrary(context.Background(), lib.ID, cacheDir)
	if err := h.supervisor.RestartWatchers(context.Background()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"id": lib.ID})
}

// UpdateLibrary handles PUT /api/libraries/{id}.
func (h *Handler) UpdateLibrary(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	lib, err := h.store.GetLibrary(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "library not found")
		return
	}

	var req libraryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name != "" {
		lib.Name = req.Name
	}
	if req.Path != "" {
		lib.Path = req.Path
	}
	if req.Enabled != nil {
		lib.Enabled = *req.Enabled
	}
	if req.ScanInterval > 0 {
		lib.ScanInterval = req.ScanInterval
	}

	if err := h.store.UpdateLibrary(lib); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := h.supervisor.RestartWatchers(context.Background()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, lib)
}

// DeleteLibrary handles DELETE /api/libraries/{id}. This does not cascade
// to queue/history rows referencing the deleted library.
func (h *Handler) DeleteLibrary(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.store.DeleteLibrary(id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := h.supervisor.RestartWatchers(context.Background()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// TriggerScan handles POST /api/libraries/{id}/scan.
func (h *Handler) TriggerScan(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := h.store.GetLibrary(id); err != nil {
		writeError(w, http.StatusNotFound, "library not found")
		return
	}
	cacheDir := h.runtime().CacheDir
	go h.scanner.ScanLibrary(context.Background(), id, cacheDir)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "scanning"})
}

// LibraryScanStatus handles GET /api/libraries/{id}/scan-status.
func (h *Handler) LibraryScanStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	status, ok := h.scanner.Status(id)
	if !ok {
		writeError(w, http.StatusNotFound, "no scan has run for this library")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// AllScanStatus handles GET /api/scan-status.
func (h *Handler) AllScanStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.scanner.AllStatus())
}

// ListQueue handles GET /api/queue?status=.
func (h *Handler) ListQueue(w http.ResponseWriter, r *http.Request) {
	status := store.QueueStatus(r.URL.Query().Get("status"))
	jobsList, err := h.store.ListQueueJobs(status)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, jobsList)
}

// DeleteQueueJob handles DELETE /api/queue/{id}: if the job is currently
// processing, its transcoder is killed before the row is removed.
func (h *Handler) DeleteQueueJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := h.store.GetQueueJob(id); err != nil {
		writeError(w, http.StatusNotFound, "queue job not found")
		return
	}
	h.pool.Slots().Kill(id)
	if err := h.store.DeleteQueueJob(id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

type addQueueRequest struct {
	Path string `json:"path"`
}

// AddQueueJob handles POST /api/queue/add: enqueues an arbitrary path,
// rejecting a missing file or one already tracked.
func (h *Handler) AddQueueJob(w http.ResponseWriter, r *http.Request) {
	var req addQueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}

	active, err := h.store.HasActiveJobForPath(req.Path)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if active {
		writeError(w, http.StatusBadRequest, "path already queued")
		return
	}

	size, err := fileSize(req.Path)
	if err != nil {
		writeError(w, http.StatusBadRequest, "file not found")
		return
	}

	job := &store.QueueJob{
		ID:       uuid.NewString(),
		FilePath: req.Path,
		FileSize: size,
		Status:   store.QueuePending,
	}
	if err := h.store.EnqueueJob(job); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": job.ID})
}

// GetSettings handles GET /api/settings.
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.store.AllSettings()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// UpdateSettings handles POST /api/settings: writing max_workers resizes
// the worker pool immediately.
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req map[string]string
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	for k, v := range req {
		if err := h.store.SetSetting(k, v); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	if raw, ok := req["max_workers"]; ok {
		if n, err := strconv.Atoi(raw); err == nil {
			h.supervisor.ResizePool(n)
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// PauseWorkers handles POST /api/workers/pause.
func (h *Handler) PauseWorkers(w http.ResponseWriter, r *http.Request) {
	h.pool.Pause()
	writeJSON(w, http.StatusOK, map[string]string{"status": "paused"})
}

// ResumeWorkers handles POST /api/workers/resume.
func (h *Handler) ResumeWorkers(w http.ResponseWriter, r *http.Request) {
	h.pool.Resume()
	writeJSON(w, http.StatusOK, map[string]string{"status": "resumed"})
}

// WorkersStatus handles GET /api/workers/status.
func (h *Handler) WorkersStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"paused":     h.pool.Paused(),
		"active_job_ids": h.pool.Slots().ActiveJobIDs(),
	})
}

// Profiles handles GET /api/profiles.
func (h *Handler) Profiles(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, profile.List())
}

// Config handles GET /api/config.
func (h *Handler) Config(w http.ResponseWriter, r *http.Request) {
	runtime := h.runtime()
	writeJSON(w, http.StatusOK, map[string]any{
		"gpu_available": runtime.GPUMode == "nvidia",
		"gpu_mode":      runtime.GPUMode,
		"cache_dir":     runtime.CacheDir,
		"version":       version.Version,
	})
}

// History handles GET /api/history?page=&per_page=.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	page := intQuery(r, "page", 1)
	perPage := intQuery(r, "per_page", 50)
	entries, total, err := h.store.ListHistory(page, perPage)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"total":   total,
		"page":    page,
		"per_page": perPage,
	})
}

// ClearHistory handles DELETE /api/history.
func (h *Handler) ClearHistory(w http.ResponseWriter, r *http.Request) {
	if err := h.store.ClearHistory(); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func intQuery(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func fileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}
