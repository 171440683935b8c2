// Package ui renders the single page and the HTML fragments pushed to it.
package ui

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"net/http"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// Event types understood by static/app.js.
const (
	EventPanel = "panel"
	EventAudio = "audio"
	EventState = "state"
)

// Event is one message pushed to a browser session.
type Event struct {
	Type string `json:"type"`
	HTML string `json:"html,omitempty"`
}

// PageData drives the full page render.
type PageData struct {
	Active      bool
	HasLogo     bool
	LocalCamera bool
	ICEServers  []string
	Panel       Panel
	Year        int
}

// Panel is the stats pane content. Detected is false until the first
// count arrives.
type Panel struct {
	Detected bool
	Count    int
	Word     string
}

// Renderer executes the embedded templates.
type Renderer struct {
	tmpl *template.Template
}

// New parses the embedded templates.
func New() (*Renderer, error) {
	tmpl, err := template.New("ui").Funcs(template.FuncMap{
		"progress": Progress,
	}).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return &Renderer{tmpl: tmpl}, nil
}

// Page writes the complete document.
func (r *Renderer) Page(w io.Writer, data PageData) error {
	return r.tmpl.ExecuteTemplate(w, "page", data)
}

// Panel renders the stats pane fragment.
func (r *Renderer) Panel(p Panel) (string, error) {
	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, "panel", p); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Progress maps a finger count to a bar width in percent. Ten fingers fill
// the bar; values outside 0..10 are clamped.
func Progress(count int) int {
	pct := count * 10
	switch {
	case pct < 0:
		return 0
	case pct > 100:
		return 100
	}
	return pct
}

// Static serves the embedded stylesheet and script.
func Static() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return http.FileServerFS(sub)
}
