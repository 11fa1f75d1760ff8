package main

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// doRequest runs one request through the fully wired mux.
func doRequest(t *testing.T, a *app, method, target string) *http.Response {
	t.Helper()
	mux := http.NewServeMux()
	a.registerRoutes(mux)

	req := httptest.NewRequest(method, target, nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w.Result()
}

// TestHandleListCIFs_Merged tests the combined listing over HTTP.
func TestHandleListCIFs_Merged(t *testing.T) {
	a := newTestApp(t)

	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	writeCIFAt(t, a.cfg.LibraryDir, "bundled.cif", testCIFSimple, base)
	writeCIFAt(t, a.cfg.GeneratedDir, "fresh.cif", testCIFGenerated, base.Add(time.Hour))

	resp := doRequest(t, a, http.MethodGet, "/api/cifs")
	assertStatusCode(t, resp.StatusCode, http.StatusOK)
	assertJSONContentType(t, resp)

	body, _ := io.ReadAll(resp.Body)
	list := decodeListResponse(t, body)
	if len(list.Files) != 2 {
		t.Fatalf("expected 2 files, got %d: %s", len(list.Files), body)
	}
	if list.Files[0].Name != "fresh" || list.Files[0].Source != sourceGenerated {
		t.Errorf("newest generated file should come first, got %+v", list.Files[0])
	}
	if list.Files[1].Name != "bundled" || list.Files[1].Source != sourceLibrary {
		t.Errorf("library file should come second, got %+v", list.Files[1])
	}
}

// TestHandleListCIFs_LibraryMissing tests that an absent library
// directory still yields a 200 with whatever exists.
func TestHandleListCIFs_LibraryMissing(t *testing.T) {
	a := newTestApp(t)
	if err := os.RemoveAll(a.cfg.LibraryDir); err != nil {
		t.Fatalf("failed to remove library dir: %v", err)
	}
	writeCIF(t, a.cfg.GeneratedDir, "solo.cif", testCIFGenerated)

	resp := doRequest(t, a, http.MethodGet, "/api/cifs")
	assertStatusCode(t, resp.StatusCode, http.StatusOK)

	body, _ := io.ReadAll(resp.Body)
	list := decodeListResponse(t, body)
	if len(list.Files) != 1 || list.Files[0].Name != "solo" {
		t.Errorf("expected only the generated file, got %s", body)
	}
}

// TestHandleListCIFs_EmptyIsArray tests that an empty listing encodes
// as [] rather than null, which would break the viewer.
func TestHandleListCIFs_EmptyIsArray(t *testing.T) {
	a := newTestApp(t)

	resp := doRequest(t, a, http.MethodGet, "/api/cifs")
	body, _ := io.ReadAll(resp.Body)

	assertContains(t, string(body), `"files":[]`)
	assertNotContains(t, string(body), "null")
}

// TestHandleListGenerated tests that the generated-only listing
// excludes library files.
func TestHandleListGenerated(t *testing.T) {
	a := newTestApp(t)
	writeCIF(t, a.cfg.LibraryDir, "lib.cif", testCIFSimple)
	writeCIF(t, a.cfg.GeneratedDir, "gen.cif", testCIFGenerated)

	resp := doRequest(t, a, http.MethodGet, "/api/generated-cifs")
	assertStatusCode(t, resp.StatusCode, http.StatusOK)

	body, _ := io.ReadAll(resp.Body)
	list := decodeListResponse(t, body)
	if len(list.Files) != 1 || list.Files[0].Name != "gen" {
		t.Errorf("expected only gen.cif, got %s", body)
	}
}

// TestHandleGenerate_MethodNotAllowed tests verb enforcement on the
// generation endpoint.
func TestHandleGenerate_MethodNotAllowed(t *testing.T) {
	a := newTestApp(t)

	for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodDelete} {
		resp := doRequest(t, a, method, "/api/generate-cof")
		if resp.StatusCode != http.StatusMethodNotAllowed {
			t.Errorf("%s: expected 405, got %d", method, resp.StatusCode)
		}
		assertJSONContentType(t, resp)
		if allow := resp.Header.Get("Allow"); allow != "POST" {
			t.Errorf("%s: expected Allow: POST, got %q", method, allow)
		}
	}
}

// TestHandleGenerate_Success runs the full POST flow against a stub
// generator.
func TestHandleGenerate_Success(t *testing.T) {
	a := newTestApp(t)
	stubGenerator(t, a, successScript(a, "new_structure.cif"))

	resp := doRequest(t, a, http.MethodPost, "/api/generate-cof")
	assertStatusCode(t, resp.StatusCode, http.StatusOK)
	assertJSONContentType(t, resp)

	body, _ := io.ReadAll(resp.Body)
	assertContains(t, string(body), `"name":"new_structure"`)
	assertContains(t, string(body), `"path":"/generated_cofs/new_structure.cif"`)
	assertContains(t, string(body), `"source":"generated"`)

	// The file must be fetchable at the path the response advertises.
	fetch := doRequest(t, a, http.MethodGet, "/generated_cofs/new_structure.cif")
	assertStatusCode(t, fetch.StatusCode, http.StatusOK)
}

// TestHandleGenerate_Failure tests that a failing generator surfaces
// its diagnostic in the error envelope.
func TestHandleGenerate_Failure(t *testing.T) {
	a := newTestApp(t)
	stubGenerator(t, a, `echo '{"ok": false, "error": "no valid linker for core T3_BENZ"}'`)

	resp := doRequest(t, a, http.MethodPost, "/api/generate-cof")
	assertStatusCode(t, resp.StatusCode, http.StatusInternalServerError)
	assertJSONContentType(t, resp)

	body, _ := io.ReadAll(resp.Body)
	msg := decodeErrorResponse(t, body)
	if msg != "no valid linker for core T3_BENZ" {
		t.Errorf("unexpected error message %q", msg)
	}
}

// TestHandleGenerate_CrashedGenerator tests the non-zero-exit flow
// over HTTP.
func TestHandleGenerate_CrashedGenerator(t *testing.T) {
	a := newTestApp(t)
	stubGenerator(t, a, `echo "Traceback (most recent call last):" >&2
echo "ValueError: unknown topology HCB_X" >&2
exit 1
`)

	resp := doRequest(t, a, http.MethodPost, "/api/generate-cof")
	assertStatusCode(t, resp.StatusCode, http.StatusInternalServerError)

	body, _ := io.ReadAll(resp.Body)
	msg := decodeErrorResponse(t, body)
	if msg != "ValueError: unknown topology HCB_X" {
		t.Errorf("unexpected error message %q", msg)
	}
}

// TestWithRecovery tests that a panicking handler becomes a JSON 500.
func TestWithRecovery(t *testing.T) {
	handler := withRecovery(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})

	req := httptest.NewRequest(http.MethodGet, "/api/cifs", nil)
	w := httptest.NewRecorder()
	handler(w, req)
	resp := w.Result()

	assertStatusCode(t, resp.StatusCode, http.StatusInternalServerError)
	assertJSONContentType(t, resp)

	body, _ := io.ReadAll(resp.Body)
	if msg := decodeErrorResponse(t, body); msg != "internal server error" {
		t.Errorf("unexpected error message %q", msg)
	}
}

// TestHandleAbout tests README rendering and the missing-README case.
func TestHandleAbout(t *testing.T) {
	a := newTestApp(t)
	readme := filepath.Join(a.cfg.RootDir, "README.md")
	if err := os.WriteFile(readme, []byte("# cofview\n\nExplore **COF** structures.\n"), 0644); err != nil {
		t.Fatalf("failed to write README: %v", err)
	}

	resp := doRequest(t, a, http.MethodGet, "/about")
	assertStatusCode(t, resp.StatusCode, http.StatusOK)

	body, _ := io.ReadAll(resp.Body)
	assertContains(t, string(body), "<h1")
	assertContains(t, string(body), "<strong>COF</strong>")
	assertContains(t, string(body), "back to viewer")
}

func TestHandleAbout_MissingReadme(t *testing.T) {
	a := newTestApp(t)
	resp := doRequest(t, a, http.MethodGet, "/about")
	assertStatusCode(t, resp.StatusCode, http.StatusNotFound)
}

// TestViewerAssets tests that the embedded frontend is served at the
// root.
func TestViewerAssets(t *testing.T) {
	a := newTestApp(t)

	resp := doRequest(t, a, http.MethodGet, "/")
	assertStatusCode(t, resp.StatusCode, http.StatusOK)
	body, _ := io.ReadAll(resp.Body)
	assertContains(t, string(body), "<title>")

	for _, asset := range []string{"/app.js", "/style.css"} {
		resp := doRequest(t, a, http.MethodGet, asset)
		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", asset, resp.StatusCode)
		}
	}
}

// TestWriteManifest tests the static fallback manifest.
func TestWriteManifest(t *testing.T) {
	a := newTestApp(t)
	writeCIF(t, a.cfg.LibraryDir, "COF-1.cif", testCIFSimple)
	writeCIF(t, a.cfg.LibraryDir, "COF-5.cif", testCIFSimple)

	if err := writeManifest(a.cfg); err != nil {
		t.Fatalf("writeManifest failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(a.cfg.LibraryDir, "manifest.json"))
	if err != nil {
		t.Fatalf("manifest not written: %v", err)
	}

	list := decodeListResponse(t, data)
	if len(list.Files) != 2 {
		t.Fatalf("expected 2 manifest entries, got %d", len(list.Files))
	}
	for _, f := range list.Files {
		if f.Source != sourceBundled {
			t.Errorf("manifest entries should be tagged bundled, got %+v", f)
		}
		// Static deployments serve relative to public/, so no leading
		// slash here.
		if f.Path != "cifs/"+f.Name+".cif" {
			t.Errorf("unexpected manifest path %q", f.Path)
		}
	}
}
