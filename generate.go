package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// GenerationResult is the machine-readable payload the generator
// prints as the last line of its stdout. OK is a pointer so a missing
// field can be told apart from an explicit false.
type GenerationResult struct {
	OK       *bool  `json:"ok"`
	Path     string `json:"path,omitempty"`
	Filename string `json:"filename,omitempty"`
	Error    string `json:"error,omitempty"`
}

var errParseOutput = errors.New("could not parse generator output")

// runGenerator launches one external generator process and waits for
// it. The process inherits the request context, so a client that
// abandons the request tears the subprocess down instead of leaking
// it; a hard timeout bounds the call either way.
func (a *app) runGenerator(ctx context.Context) (GenerationResult, error) {
	if a.genSem != nil {
		select {
		case a.genSem <- struct{}{}:
			defer func() { <-a.genSem }()
		case <-ctx.Done():
			return GenerationResult{}, fmt.Errorf("generation cancelled while queued: %w", ctx.Err())
		}
	}

	ctx, cancel := context.WithTimeout(ctx, a.cfg.Generator.Timeout)
	defer cancel()

	argv := append([]string{}, a.cfg.Generator.Command...)
	argv = append(argv, "--output-dir", a.cfg.GeneratedDir)

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = a.cfg.RootDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()

	switch ctx.Err() {
	case context.DeadlineExceeded:
		return GenerationResult{}, fmt.Errorf("generator timed out after %s", a.cfg.Generator.Timeout)
	case context.Canceled:
		return GenerationResult{}, fmt.Errorf("generation cancelled")
	}

	if runErr != nil {
		return GenerationResult{}, generatorExitError(runErr, stdout.Bytes(), stderr.Bytes())
	}

	res, err := parseGeneratorOutput(stdout.Bytes())
	if err != nil {
		return GenerationResult{}, err
	}
	if !*res.OK {
		msg := res.Error
		if msg == "" {
			msg = "generator reported failure"
		}
		return res, errors.New(msg)
	}

	log.Printf("Generator produced %s in %s", res.Filename, time.Since(start).Round(time.Millisecond))
	return res, nil
}

// generatorExitError picks the most specific diagnostic available:
// last non-empty stderr line, else last non-empty stdout line, else a
// generic exit-code message.
func generatorExitError(runErr error, stdout, stderr []byte) error {
	var exitErr *exec.ExitError
	if !errors.As(runErr, &exitErr) {
		return fmt.Errorf("cannot run generator: %w", runErr)
	}
	if line := lastNonEmptyLine(stderr); line != "" {
		return errors.New(line)
	}
	if line := lastNonEmptyLine(stdout); line != "" {
		return errors.New(line)
	}
	return fmt.Errorf("generator exited with code %d", exitErr.ExitCode())
}

// parseGeneratorOutput decodes the last non-empty stdout line as a
// GenerationResult. Earlier lines are tolerated as diagnostics; only
// the final line carries the payload. The shape is validated
// explicitly: a decode that lacks the ok flag, or claims success
// without naming a file, is rejected rather than trusted.
func parseGeneratorOutput(stdout []byte) (GenerationResult, error) {
	line := lastNonEmptyLine(stdout)
	if line == "" {
		return GenerationResult{}, errParseOutput
	}

	var res GenerationResult
	if err := json.Unmarshal([]byte(line), &res); err != nil {
		return GenerationResult{}, fmt.Errorf("%w: %v", errParseOutput, err)
	}
	if res.OK == nil {
		return GenerationResult{}, fmt.Errorf("%w: missing ok field", errParseOutput)
	}
	if *res.OK && res.Path == "" && res.Filename == "" {
		return GenerationResult{}, fmt.Errorf("%w: success without a file", errParseOutput)
	}
	return res, nil
}

func lastNonEmptyLine(b []byte) string {
	lines := strings.Split(string(b), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}

// entryForResult rebases a successful generator result under the
// generated-files URL prefix. The generator reports an absolute or
// root-relative path; if that path already lives in the generated
// directory its basename is used directly, if it lives elsewhere the
// file is copied in under a collision-free name, and if the path is
// unusable the reported filename is trusted as a last resort.
func (a *app) entryForResult(res GenerationResult) (FileEntry, error) {
	name := ""

	if res.Path != "" {
		p := res.Path
		if !filepath.IsAbs(p) {
			p = filepath.Join(a.cfg.RootDir, p)
		}
		if dir := filepath.Dir(p); dir == filepath.Clean(a.cfg.GeneratedDir) {
			name = filepath.Base(p)
		} else if _, err := os.Stat(p); err == nil {
			imported, err := a.importGenerated(p)
			if err != nil {
				return FileEntry{}, fmt.Errorf("cannot import generated file: %w", err)
			}
			name = imported
		}
	}

	if name == "" {
		name = filepath.Base(res.Filename)
	}
	if name == "" || name == "." {
		return FileEntry{}, errors.New("generator did not report a usable file")
	}

	entry := FileEntry{
		Name:   strings.TrimSuffix(name, filepath.Ext(name)),
		Path:   urlPrefixGenerated + "/" + name,
		Source: sourceGenerated,
	}
	if info, err := os.Stat(filepath.Join(a.cfg.GeneratedDir, name)); err == nil {
		entry.ModifiedAt = info.ModTime().UnixMilli()
	}
	return entry, nil
}

// importGenerated copies src into the generated directory, never
// overwriting an existing file. On a name collision a new candidate is
// derived from a timestamp and a short random token until an unused
// name is found.
func (a *app) importGenerated(src string) (string, error) {
	if err := os.MkdirAll(a.cfg.GeneratedDir, 0755); err != nil {
		return "", err
	}

	name := filepath.Base(src)
	for {
		dst := filepath.Join(a.cfg.GeneratedDir, name)
		out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if err != nil {
			if os.IsExist(err) {
				name = decollideName(filepath.Base(src))
				continue
			}
			return "", err
		}

		in, err := os.Open(src)
		if err != nil {
			out.Close()
			os.Remove(dst)
			return "", err
		}
		_, copyErr := io.Copy(out, in)
		in.Close()
		if closeErr := out.Close(); copyErr == nil {
			copyErr = closeErr
		}
		if copyErr != nil {
			os.Remove(dst)
			return "", copyErr
		}
		return name, nil
	}
}

// decollideName derives a fresh candidate filename from a taken one.
func decollideName(base string) string {
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	token := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s_%d_%s%s", stem, time.Now().UnixMilli(), token, ext)
}
