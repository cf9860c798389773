package api

import "net/http"

// NewRouter registers every route in the HTTP API on a stdlib ServeMux
// using Go 1.22+ method-pattern routing.
func NewRouter(h *Handler) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", h.Index)

	mux.HandleFunc("GET /api/stats", h.Stats)
	mux.HandleFunc("GET /api/recent", h.Recent)
	mux.HandleFunc("GET /api/savings", h.Savings)

	mux.HandleFunc("GET /api/libraries", h.ListLibraries)
	mux.HandleFunc("POST /api/libraries", h.CreateLibrary)
	mux.HandleFunc("PUT /api/libraries/{id}", h.UpdateLibrary)
	mux.HandleFunc("DELETE /api/libraries/{id}", h.DeleteLibrary)
	mux.HandleFunc("POST /api/libraries/{id}/scan", h.TriggerScan)
	mux.HandleFunc("GET /api/libraries/{id}/scan-status", h.LibraryScanStatus)
	mux.HandleFunc("GET /api/scan-status", h.AllScanStatus)

	mux.HandleFunc("GET /api/queue", h.ListQueue)
	mux.HandleFunc("DELETE /api/queue/{id}", h.DeleteQueueJob)
	mux.HandleFunc("POST /api/queue/add", h.AddQueueJob)

	mux.HandleFunc("GET /api/settings", h.GetSettings)
	mux.HandleFunc("POST /api/settings", h.UpdateSettings)

	mux.HandleFunc("POST /api/workers/pause", h.PauseWorkers)
	mux.HandleFunc("POST /api/workers/resume", h.ResumeWorkers)
	mux.HandleFunc("GET /api/workers/status", h.WorkersStatus)

	mux.HandleFunc("GET /api/profiles", h.Profiles)
	mux.HandleFunc("GET /api/config", h.Config)
	mux.HandleFunc("GET /api/diagnostics", h.Diagnostics)

	mux.HandleFunc("GET /api/history", h.History)
	mux.HandleFunc("DELETE /api/history", h.ClearHistory)

	return mux
}
