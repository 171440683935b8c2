package ui

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newRenderer(t *testing.T) *Renderer {
	t.Helper()
	r, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return r
}

func TestProgress(t *testing.T) {
	tests := []struct {
		count int
		want  int
	}{
		{count: 0, want: 0},
		{count: 3, want: 30},
		{count: 5, want: 50},
		{count: 10, want: 100},
		{count: 12, want: 100},
		{count: -1, want: 0},
	}

	for _, tt := range tests {
		if got := Progress(tt.count); got != tt.want {
			t.Errorf("Progress(%d) = %d, want %d", tt.count, got, tt.want)
		}
	}
}

func TestRenderer_Panel(t *testing.T) {
	r := newRenderer(t)

	t.Run("waiting", func(t *testing.T) {
		html, err := r.Panel(Panel{})
		if err != nil {
			t.Fatalf("Panel() error = %v", err)
		}
		if !strings.Contains(html, "Waiting for hand...") {
			t.Errorf("expected waiting message, got %s", html)
		}
	})

	t.Run("detected", func(t *testing.T) {
		html, err := r.Panel(Panel{Detected: true, Count: 3, Word: "three"})
		if err != nil {
			t.Fatalf("Panel() error = %v", err)
		}
		for _, want := range []string{`<div class="number-display">3</div>`, "three", "width: 30%"} {
			if !strings.Contains(html, want) {
				t.Errorf("panel missing %q: %s", want, html)
			}
		}
	})

	t.Run("full bar at ten", func(t *testing.T) {
		html, err := r.Panel(Panel{Detected: true, Count: 10, Word: "ten"})
		if err != nil {
			t.Fatalf("Panel() error = %v", err)
		}
		if !strings.Contains(html, "width: 100%") || !strings.Contains(html, `aria-valuenow="100"`) {
			t.Errorf("expected full progress bar: %s", html)
		}
	})
}

func TestRenderer_Page(t *testing.T) {
	r := newRenderer(t)

	tests := []struct {
		name    string
		data    PageData
		want    []string
		notWant []string
	}{
		{
			name:    "idle",
			data:    PageData{Year: 2025},
			want:    []string{"Welcome!", "Camera Inactive", "status-inactive", "© 2025 UFirm Technologies"},
			notWant: []string{`id="stats"`, `class="logo-img"`},
		},
		{
			name:    "streaming over webrtc",
			data:    PageData{Active: true, HasLogo: true, ICEServers: []string{"stun:stun.l.google.com:19302"}},
			want:    []string{"Camera Active", `id="camera"`, `id="stats"`, "Waiting for hand...", `class="logo-img"`, "stun:stun.l.google.com:19302"},
			notWant: []string{"Welcome!", "/api/stream"},
		},
		{
			name:    "streaming from local camera",
			data:    PageData{Active: true, LocalCamera: true},
			want:    []string{`src="/api/stream"`},
			notWant: []string{`id="camera"`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := r.Page(&buf, tt.data); err != nil {
				t.Fatalf("Page() error = %v", err)
			}
			html := buf.String()
			for _, want := range tt.want {
				if !strings.Contains(html, want) {
					t.Errorf("page missing %q", want)
				}
			}
			for _, notWant := range tt.notWant {
				if strings.Contains(html, notWant) {
					t.Errorf("page should not contain %q", notWant)
				}
			}
		})
	}
}

func TestStatic(t *testing.T) {
	srv := httptest.NewServer(http.StripPrefix("/static/", Static()))
	defer srv.Close()

	for _, name := range []string{"app.js", "style.css"} {
		resp, err := http.Get(srv.URL + "/static/" + name)
		if err != nil {
			t.Fatalf("GET %s: %v", name, err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode != http.StatusOK || len(body) == 0 {
			t.Errorf("GET %s = %d (%d bytes)", name, resp.StatusCode, len(body))
		}
	}
}
