package main

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

var (
	errForbidden = errors.New("path escapes base directory")
	errBadPath   = errors.New("malformed path")
)

// URL prefixes the two file roots are mounted under.
const (
	urlPrefixLibrary   = "/cifs"
	urlPrefixGenerated = "/generated_cofs"
)

// safeFileHandler serves opaque text files from a single base
// directory mounted under a URL prefix. Requests whose resolved path
// would land outside the base directory are refused.
type safeFileHandler struct {
	baseDir   string
	urlPrefix string
}

func newSafeFileHandler(baseDir, urlPrefix string) *safeFileHandler {
	return &safeFileHandler{baseDir: baseDir, urlPrefix: urlPrefix}
}

func (h *safeFileHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resolved, err := h.resolve(r.URL.EscapedPath())
	if err != nil {
		log.Printf("Security: refused %s (%v)", r.URL.Path, err)
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	f, err := os.Open(resolved)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		http.NotFound(w, r)
		return
	}

	// CIF payloads are opaque text to the server; never reinterpret.
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Length", fmt.Sprintf("%d", info.Size()))

	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}

	if _, err := io.Copy(w, f); err != nil {
		log.Printf("Failed to stream %s: %v", resolved, err)
	}
}

// resolve maps the escaped request path to an absolute filesystem path
// under the base directory. The suffix after the URL prefix is
// percent-decoded, normalized, stripped of leading parent escapes, and
// joined to the base; the result (with symlinks resolved, when the
// target exists) must stay inside the base directory.
func (h *safeFileHandler) resolve(escapedPath string) (string, error) {
	suffix := strings.TrimPrefix(escapedPath, h.urlPrefix)
	suffix = strings.TrimPrefix(suffix, "/")

	decoded, err := url.PathUnescape(suffix)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errBadPath, err)
	}

	cleaned := path.Clean(decoded)
	for strings.HasPrefix(cleaned, "../") {
		cleaned = cleaned[3:]
	}
	if cleaned == ".." || cleaned == "." || cleaned == "" {
		return "", errBadPath
	}

	joined := filepath.Join(h.baseDir, filepath.FromSlash(cleaned))
	resolved, err := filepath.Abs(joined)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errBadPath, err)
	}

	if !isWithinDir(h.baseDir, resolved) {
		return "", errForbidden
	}

	// Follow symlinks and re-check containment so a link inside the
	// base directory cannot point back out of it.
	if target, err := filepath.EvalSymlinks(resolved); err == nil {
		realBase, baseErr := filepath.EvalSymlinks(h.baseDir)
		if baseErr != nil {
			realBase = h.baseDir
		}
		if !isWithinDir(realBase, target) {
			return "", errForbidden
		}
	}

	return resolved, nil
}

// isWithinDir reports whether p is base itself or a descendant of it.
func isWithinDir(base, p string) bool {
	rel, err := filepath.Rel(base, p)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
