package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
)

const (
	defaultLibrarySubdir   = "public/cifs"
	defaultGeneratedSubdir = "generated_cofs"
	defaultGenTimeout      = 60 * time.Second
	defaultMaxConcurrent   = 2

	configFileName = "cofview.toml"
)

// appConfig holds all process-wide configuration. It is built once in
// main and passed into every component; nothing reads it ambiently.
type appConfig struct {
	RootDir      string
	LibraryDir   string
	GeneratedDir string
	Generator    generatorConfig
}

type generatorConfig struct {
	// Command is the generator argv. The invoker appends
	// "--output-dir <GeneratedDir>" on every run.
	Command []string
	Timeout time.Duration
	// MaxConcurrent caps simultaneous generator processes (0 = unlimited).
	MaxConcurrent int
}

// configFile mirrors the optional cofview.toml in the root directory.
// Relative directory paths are resolved against the root.
type configFile struct {
	Directories struct {
		Library   string `toml:"library"`
		Generated string `toml:"generated"`
	} `toml:"directories"`
	Generator struct {
		Command        []string `toml:"command"`
		TimeoutSeconds int      `toml:"timeout_seconds"`
		MaxConcurrent  *int     `toml:"max_concurrent"`
	} `toml:"generator"`
}

// loadConfig builds the effective configuration for a root directory:
// defaults first, then overrides from cofview.toml if one exists.
func loadConfig(rootDir string) (appConfig, error) {
	absRoot, err := filepath.Abs(rootDir)
	if err != nil {
		return appConfig{}, fmt.Errorf("invalid root directory: %w", err)
	}

	cfg := appConfig{
		RootDir:      absRoot,
		LibraryDir:   filepath.Join(absRoot, defaultLibrarySubdir),
		GeneratedDir: filepath.Join(absRoot, defaultGeneratedSubdir),
		Generator: generatorConfig{
			Command:       []string{"python3", "scripts/random_cof_generator.py", "--json"},
			Timeout:       defaultGenTimeout,
			MaxConcurrent: defaultMaxConcurrent,
		},
	}

	data, err := os.ReadFile(filepath.Join(absRoot, configFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // config file is optional
		}
		return appConfig{}, fmt.Errorf("cannot read %s: %w", configFileName, err)
	}

	var file configFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return appConfig{}, fmt.Errorf("cannot parse %s: %w", configFileName, err)
	}

	if file.Directories.Library != "" {
		cfg.LibraryDir = resolveAgainst(absRoot, file.Directories.Library)
	}
	if file.Directories.Generated != "" {
		cfg.GeneratedDir = resolveAgainst(absRoot, file.Directories.Generated)
	}
	if len(file.Generator.Command) > 0 {
		cfg.Generator.Command = file.Generator.Command
	}
	if file.Generator.TimeoutSeconds > 0 {
		cfg.Generator.Timeout = time.Duration(file.Generator.TimeoutSeconds) * time.Second
	}
	if file.Generator.MaxConcurrent != nil {
		if *file.Generator.MaxConcurrent < 0 {
			return appConfig{}, fmt.Errorf("generator.max_concurrent cannot be negative")
		}
		cfg.Generator.MaxConcurrent = *file.Generator.MaxConcurrent
	}

	return cfg, nil
}

func resolveAgainst(root, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(root, p)
}
