package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// newTestApp builds an app rooted in a fresh temp directory with both
// file directories present and a generator that fails fast unless a
// test stubs it.
func newTestApp(t *testing.T) *app {
	t.Helper()

	root := t.TempDir()
	cfg := appConfig{
		RootDir:      root,
		LibraryDir:   filepath.Join(root, "public", "cifs"),
		GeneratedDir: filepath.Join(root, "generated_cofs"),
		Generator: generatorConfig{
			Command: []string{"false"},
			Timeout: 5 * time.Second,
		},
	}
	if err := os.MkdirAll(cfg.LibraryDir, 0755); err != nil {
		t.Fatalf("failed to create library dir: %v", err)
	}
	if err := os.MkdirAll(cfg.GeneratedDir, 0755); err != nil {
		t.Fatalf("failed to create generated dir: %v", err)
	}

	a, err := newApp(cfg)
	if err != nil {
		t.Fatalf("failed to create app: %v", err)
	}
	return a
}

// stubGenerator installs a shell script as the app's generator command.
func stubGenerator(t *testing.T, a *app, script string) {
	t.Helper()
	path := filepath.Join(a.cfg.RootDir, "stub_generator.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0755); err != nil {
		t.Fatalf("failed to write stub generator: %v", err)
	}
	a.cfg.Generator.Command = []string{"/bin/sh", path}
}

// writeCIF creates a structure file and returns its path.
func writeCIF(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to create test file %s: %v", path, err)
	}
	return path
}

// writeCIFAt creates a structure file with a fixed modification time.
func writeCIFAt(t *testing.T, dir, name, content string, modTime time.Time) string {
	t.Helper()
	path := writeCIF(t, dir, name, content)
	if err := os.Chtimes(path, modTime, modTime); err != nil {
		t.Fatalf("failed to set mtime on %s: %v", path, err)
	}
	return path
}

// decodeListResponse parses a {files: [...]} body.
func decodeListResponse(t *testing.T, body []byte) listResponse {
	t.Helper()
	var resp listResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("failed to decode listing response: %v\nbody: %s", err, body)
	}
	return resp
}

// decodeErrorResponse parses an {error: ...} body.
func decodeErrorResponse(t *testing.T, body []byte) string {
	t.Helper()
	var resp struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("failed to decode error response: %v\nbody: %s", err, body)
	}
	return resp.Error
}

// assertContains is a helper for checking string containment with clear error messages
func assertContains(t *testing.T, s, substr string) {
	t.Helper()
	if !strings.Contains(s, substr) {
		t.Errorf("expected string to contain %q, got: %s", substr, s)
	}
}

// assertNotContains is a helper for checking string non-containment
func assertNotContains(t *testing.T, s, substr string) {
	t.Helper()
	if strings.Contains(s, substr) {
		t.Errorf("expected string NOT to contain %q, but it does", substr)
	}
}

// assertStatusCode checks HTTP status code with clear error message
func assertStatusCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("expected status code %d, got %d", want, got)
	}
}

// assertJSONContentType checks the response carries a JSON content type
func assertJSONContentType(t *testing.T, resp *http.Response) {
	t.Helper()
	ct := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "application/json") {
		t.Errorf("expected application/json content type, got %q", ct)
	}
}

// successScript returns a stub generator body that creates a file in
// the generated directory and reports it on the final stdout line.
func successScript(a *app, name string) string {
	target := filepath.Join(a.cfg.GeneratedDir, name)
	return fmt.Sprintf(`echo "building candidate..."
printf '%s' > %q
echo '{"ok": true, "path": %q, "filename": %q}'
`, "data_generated\\n", target, target, name)
}
