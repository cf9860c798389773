package api

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/shrync/shrync/internal/library"
)

const sampleLimit = 5

// libraryDiagnostic is one row of GET /api/diagnostics' library breakdown.
type libraryDiagnostic struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	Path             string   `json:"path"`
	Error            string   `json:"error,omitempty"`
	TopLevelCount    int      `json:"top_level_count,omitempty"`
	TopLevelSample   []string `json:"top_level_sample,omitempty"`
	VideoFilesFound  int      `json:"video_files_found"`
	VideoSample      []string `json:"video_sample"`
}

// Diagnostics handles GET /api/diagnostics, surfacing what the running
// process actually sees on disk for each configured library — useful for
// debugging container mount mismatches.
func (h *Handler) Diagnostics(w http.ResponseWriter, r *http.Request) {
	libs, err := h.store.ListLibraries()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	results := make([]libraryDiagnostic, 0, len(libs))
	for _, lib := range libs {
		results = append(results, diagnoseLibrary(lib.ID, lib.Name, lib.Path))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"libraries": results,
		"cache_dir": h.runtime().CacheDir,
	})
}

func diagnoseLibrary(id, name, path string) libraryDiagnostic {
	d := libraryDiagnostic{ID: id, Name: name, Path: path, VideoSample: []string{}}

	info, err := os.Stat(path)
	if err != nil {
		d.Error = "path does not exist in container: " + path
		return d
	}
	if !info.IsDir() {
		d.Error = "path is not a directory: " + path
		return d
	}

	top, err := os.ReadDir(path)
	if err != nil {
		d.Error = "cannot read directory: " + err.Error()
		return d
	}
	d.TopLevelCount = len(top)
	for i, entry := range top {
		if i >= 20 {
			break
		}
		d.TopLevelSample = append(d.TopLevelSample, entry.Name())
	}

	filepath.WalkDir(path, func(p string, entry os.DirEntry, err error) error {
		if err != nil || entry.IsDir() {
			return nil
		}
		if !library.HasVideoExtension(entry.Name()) {
			return nil
		}
		d.VideoFilesFound++
		if len(d.VideoSample) < sampleLimit {
			d.VideoSample = append(d.VideoSample, p)
		}
		return nil
	})

	return d
}
