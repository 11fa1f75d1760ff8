package main

import (
	"bytes"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"

	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
)

// newMarkdownRenderer creates a configured goldmark renderer.
func newMarkdownRenderer() goldmark.Markdown {
	return goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			extension.Typographer,
			highlighting.NewHighlighting(
				highlighting.WithFormatOptions(
					chromahtml.WithClasses(true),
				),
			),
		),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
		goldmark.WithRendererOptions(
			html.WithUnsafe(),
		),
	)
}

const aboutShell = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>About - cofview</title>
    <link rel="stylesheet" href="/style.css">
</head>
<body class="about-body">
    <div class="about-container">
        <p><a href="/">&larr; back to viewer</a></p>
%s
    </div>
</body>
</html>`

// handleAbout renders the project README (usage, generator setup) as
// the viewer's help page.
func (a *app) handleAbout(w http.ResponseWriter, r *http.Request) {
	content, err := os.ReadFile(filepath.Join(a.cfg.RootDir, "README.md"))
	if err != nil {
		http.NotFound(w, r)
		return
	}

	md := newMarkdownRenderer()
	var buf bytes.Buffer
	if err := md.Convert(content, &buf); err != nil {
		log.Printf("Error rendering README: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	page := fmt.Sprintf(aboutShell, buf.String())
	if _, err := w.Write([]byte(page)); err != nil {
		log.Printf("Failed to write about page: %v", err)
	}
}
