package main

import (
	"os"
	"sort"
	"strings"
)

const cifExtension = ".cif"

// Origin tags for FileEntry.Source.
const (
	sourceLibrary   = "library"
	sourceGenerated = "generated"
	sourceBundled   = "bundled"
)

// FileEntry describes one discoverable structure file. Path is the
// root-relative URL the viewer fetches the raw CIF text from; Name is
// the filename with the extension stripped.
type FileEntry struct {
	Name       string `json:"name"`
	Path       string `json:"path"`
	Source     string `json:"source"`
	ModifiedAt int64  `json:"modifiedAt"`
}

// listCIFFiles enumerates every regular *.cif file (case-insensitive)
// directly inside dir. A missing or unreadable directory yields an
// empty listing: both the library and generated directories are
// optional, and callers must not fail because one is absent.
func listCIFFiles(dir, urlPrefix, source string) []FileEntry {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	var files []FileEntry
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(strings.ToLower(name), cifExtension) {
			continue
		}

		// If the stat races with a deletion, keep the entry with a
		// zero timestamp rather than dropping it.
		var modified int64
		if info, err := entry.Info(); err == nil {
			modified = info.ModTime().UnixMilli()
		}

		files = append(files, FileEntry{
			Name:       name[:len(name)-len(cifExtension)],
			Path:       urlPrefix + "/" + name,
			Source:     source,
			ModifiedAt: modified,
		})
	}
	return files
}

// sortByRecency orders entries newest-first. The sort is stable so
// that entries with identical timestamps keep their enumeration order.
func sortByRecency(entries []FileEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].ModifiedAt > entries[j].ModifiedAt
	})
}

// mergedListing concatenates the library and generated listings and
// applies a single recency sort across the combined slice.
func mergedListing(cfg appConfig) []FileEntry {
	// Non-nil so an empty listing marshals as [] rather than null.
	files := make([]FileEntry, 0)
	files = append(files, listCIFFiles(cfg.LibraryDir, urlPrefixLibrary, sourceLibrary)...)
	files = append(files, listCIFFiles(cfg.GeneratedDir, urlPrefixGenerated, sourceGenerated)...)
	sortByRecency(files)
	return files
}

// generatedListing lists only the generator output directory.
func generatedListing(cfg appConfig) []FileEntry {
	files := make([]FileEntry, 0)
	files = append(files, listCIFFiles(cfg.GeneratedDir, urlPrefixGenerated, sourceGenerated)...)
	sortByRecency(files)
	return files
}
