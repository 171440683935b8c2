package server

import (
	"fmt"
	"net/http"
	"time"
)

// FrameSource yields the most recent annotated JPEG, or nil.
type FrameSource interface {
	LastFrame() []byte
}

// StreamHandler serves the local camera's annotated frames as MJPEG.
type StreamHandler struct {
	source   func() FrameSource
	interval time.Duration
}

// NewStreamHandler creates a StreamHandler. source is consulted per frame so
// the camera can be toggled while clients are connected.
func NewStreamHandler(source func() FrameSource, fps int) *StreamHandler {
	if fps <= 0 {
		fps = 15
	}
	return &StreamHandler{
		source:   source,
		interval: time.Second / time.Duration(fps),
	}
}

// ServeHTTP streams MJPEG frames to connected clients.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if h.current() == nil {
		http.Error(w, "Local camera is not running", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	var last []byte
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}

		src := h.current()
		if src == nil {
			return
		}

		jpeg := src.LastFrame()
		if len(jpeg) == 0 || sameFrame(jpeg, last) {
			continue
		}
		last = jpeg

		fmt.Fprintf(w, "--frame\r\n")
		fmt.Fprintf(w, "Content-Type: image/jpeg\r\n")
		fmt.Fprintf(w, "Content-Length: %d\r\n\r\n", len(jpeg))
		if _, err := w.Write(jpeg); err != nil {
			return
		}
		fmt.Fprintf(w, "\r\n")

		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
	}
}

func (h *StreamHandler) current() FrameSource {
	if h.source == nil {
		return nil
	}
	return h.source()
}

// sameFrame reports whether a and b are the same slice. The processor swaps
// in a fresh slice per frame, so identity is enough.
func sameFrame(a, b []byte) bool {
	return len(a) == len(b) && len(a) > 0 && &a[0] == &b[0]
}
