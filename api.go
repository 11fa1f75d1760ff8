package main

import (
	"encoding/json"
	"log"
	"net/http"
	"runtime/debug"
)

// writeJSON renders v with an explicit status code. Every API response
// goes through here so the content type is always set.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to write JSON response: %v", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// withRecovery wraps an HTTP handler with panic recovery. Downstream
// faults become a structured JSON 500, never a blank response.
func withRecovery(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				log.Printf("PANIC: %v\n%s", err, debug.Stack())
				writeJSONError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next(w, r)
	}
}

type listResponse struct {
	Files []FileEntry `json:"files"`
}

// handleListCIFs serves the merged library+generated listing, newest
// first. Missing directories degrade to an empty list by design.
func (a *app) handleListCIFs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, listResponse{Files: mergedListing(a.cfg)})
}

// handleListGenerated serves the generated-only listing.
func (a *app) handleListGenerated(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, listResponse{Files: generatedListing(a.cfg)})
}

// handleGenerate triggers one external generator run and reports the
// resulting file. Concurrent requests each get their own process,
// bounded by the configured semaphore.
func (a *app) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	res, err := a.runGenerator(r.Context())
	if err != nil {
		log.Printf("Generation failed: %v", err)
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	entry, err := a.entryForResult(res)
	if err != nil {
		log.Printf("Generation succeeded but result is unusable: %v", err)
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"file": entry,
		"raw":  res,
	})
}

// registerRoutes wires every route onto the mux. API routes dispatch
// first; anything unmatched falls through to the embedded viewer
// assets at "/".
func (a *app) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/cifs", withRecovery(a.handleListCIFs))
	mux.HandleFunc("/api/generated-cifs", withRecovery(a.handleListGenerated))
	mux.HandleFunc("/api/generate-cof", withRecovery(a.handleGenerate))

	mux.Handle(urlPrefixLibrary+"/", newSafeFileHandler(a.cfg.LibraryDir, urlPrefixLibrary))
	mux.Handle(urlPrefixGenerated+"/", newSafeFileHandler(a.cfg.GeneratedDir, urlPrefixGenerated))

	mux.HandleFunc("/events", withRecovery(a.handleEvents))
	mux.HandleFunc("/about", withRecovery(a.handleAbout))

	mux.Handle("/", http.FileServer(http.FS(a.viewerFS)))
}
