package main

import (
	"context"
	"embed"
	"encoding/json"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"
)

//go:embed viewer/*
var viewerAssets embed.FS

var (
	// Build info (set via ldflags)
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// app owns the process-wide state: configuration fixed at startup, the
// SSE hub, the embedded viewer assets, and the generator semaphore.
// Handlers are methods on app; nothing lives in package globals.
type app struct {
	cfg      appConfig
	hub      *eventHub
	viewerFS fs.FS
	// genSem bounds concurrent generator processes; nil means unlimited.
	genSem chan struct{}
}

func newApp(cfg appConfig) (*app, error) {
	viewerFS, err := fs.Sub(viewerAssets, "viewer")
	if err != nil {
		return nil, fmt.Errorf("embedded viewer assets missing: %w", err)
	}

	a := &app{
		cfg:      cfg,
		hub:      newEventHub(),
		viewerFS: viewerFS,
	}
	if cfg.Generator.MaxConcurrent > 0 {
		a.genSem = make(chan struct{}, cfg.Generator.MaxConcurrent)
	}
	return a, nil
}

// writeManifest enumerates the library directory and writes a static
// manifest the viewer falls back to when no live API is present (e.g.
// a static deployment of public/).
func writeManifest(cfg appConfig) error {
	files := listCIFFiles(cfg.LibraryDir, "cifs", sourceBundled)
	sortByRecency(files)

	out, err := json.MarshalIndent(listResponse{Files: files}, "", "  ")
	if err != nil {
		return err
	}
	manifestPath := filepath.Join(cfg.LibraryDir, "manifest.json")
	if err := os.WriteFile(manifestPath, append(out, '\n'), 0644); err != nil {
		return err
	}
	fmt.Printf("Wrote %s (%d files)\n", manifestPath, len(files))
	return nil
}

func main() {
	port := flag.Int("port", 5173, "Port to serve on")
	root := flag.String("root", ".", "Project root directory")
	openBrowserFlag := flag.Bool("browser", true, "Open browser automatically")
	showVersion := flag.Bool("version", false, "Show version information")
	manifestOnly := flag.Bool("write-manifest", false, "Write the static library manifest and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("cofview %s (commit: %s, built: %s)\n", version, commit, date)
		os.Exit(0)
	}

	cfg, err := loadConfig(*root)
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	if *manifestOnly {
		if err := writeManifest(cfg); err != nil {
			log.Fatalf("Cannot write manifest: %v", err)
		}
		return
	}

	// The generated directory is read-write and created on demand; the
	// library directory is optional and never created.
	if err := os.MkdirAll(cfg.GeneratedDir, 0755); err != nil {
		log.Fatalf("Cannot create generated directory: %v", err)
	}

	a, err := newApp(cfg)
	if err != nil {
		log.Fatal(err)
	}

	ctx, cancelWatch := context.WithCancel(context.Background())
	if err := a.watchGenerated(ctx); err != nil {
		log.Printf("Warning: Cannot watch generated directory for changes: %v", err)
	}

	mux := http.NewServeMux()
	a.registerRoutes(mux)

	addr := fmt.Sprintf("localhost:%d", *port)
	url := fmt.Sprintf("http://%s", addr)

	fmt.Printf("cofview at %s\n", url)
	fmt.Printf("Library: %s\nGenerated: %s\n", cfg.LibraryDir, cfg.GeneratedDir)
	fmt.Println("Press Ctrl+C to quit")

	if *openBrowserFlag {
		go func() {
			time.Sleep(500 * time.Millisecond)
			openURL(url)
		}()
	}

	server := &http.Server{
		Addr:        addr,
		Handler:     mux,
		ReadTimeout: 15 * time.Second,
		// WriteTimeout intentionally omitted: /events streams SSE and
		// /api/generate-cof can legitimately take the full generator
		// timeout before responding.
		IdleTimeout: 60 * time.Second,
	}

	sigint := make(chan os.Signal, 1)
	signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigint

		log.Println("\nShutting down gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		cancelWatch()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatal(err)
	}
}

func openURL(url string) {
	var cmd string
	var args []string

	switch {
	case fileExists("/usr/bin/open"): // macOS
		cmd = "open"
		args = []string{url}
	case fileExists("/usr/bin/xdg-open"): // Linux
		cmd = "xdg-open"
		args = []string{url}
	default: // Windows
		cmd = "cmd"
		args = []string{"/c", "start", url}
	}

	launcher := exec.Command(cmd, args...)
	if err := launcher.Start(); err != nil {
		log.Printf("Failed to open URL %s: %v", url, err)
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
