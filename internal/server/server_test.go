package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ufirm/fingercounter/internal/app"
	"github.com/ufirm/fingercounter/internal/detector"
	"github.com/ufirm/fingercounter/internal/rtc"
	"github.com/ufirm/fingercounter/internal/speech"
	"github.com/ufirm/fingercounter/internal/store"
)

type testEnv struct {
	srv   *Server
	app   *app.App
	det   *detector.MockDetector
	store *store.Store
	synth *countingSynth
}

type countingSynth struct {
	calls chan string
}

func (c *countingSynth) Synthesize(ctx context.Context, req speech.Request) ([]byte, error) {
	select {
	case c.calls <- req.Text:
	default:
	}
	return []byte("mp3:" + req.Text), nil
}

func newTestEnv(t *testing.T, logo string) *testEnv {
	t.Helper()
	dir := t.TempDir()

	st, err := store.New(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	t.Cleanup(func() { st.Close() })

	synth := &countingSynth{calls: make(chan string, 16)}
	cache, err := speech.NewCache(speech.Config{Dir: filepath.Join(dir, "audio_cache")}, synth, st.Speech())
	if err != nil {
		t.Fatalf("NewCache() error = %v", err)
	}

	hub := NewHub()
	det := detector.NewMockDetector()
	a, err := app.New(app.Config{
		Detectors: detector.MockFactory(det),
		Speaker:   cache,
		Publisher: hub,
	})
	if err != nil {
		t.Fatalf("app.New() error = %v", err)
	}
	t.Cleanup(func() { a.Close() })

	srv := New(Config{
		App:        a,
		Hub:        hub,
		Negotiator: rtc.NewNegotiator(nil),
		Store:      st,
		LogoPath:   logo,
	})
	t.Cleanup(srv.Close)

	return &testEnv{srv: srv, app: a, det: det, store: st, synth: synth}
}

// do runs a request carrying the given session cookie.
func (e *testEnv) do(method, target, session string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	if session != "" {
		req.AddCookie(&http.Cookie{Name: SessionCookie, Value: session})
	}
	rec := httptest.NewRecorder()
	e.srv.ServeHTTP(rec, req)
	return rec
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == SessionCookie {
			return c.Value
		}
	}
	t.Fatal("response did not set a session cookie")
	return ""
}

func TestServer_Health(t *testing.T) {
	s := New(Config{})

	t.Run("returns 200 with JSON response", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
		}

		contentType := rec.Header().Get("Content-Type")
		if contentType != "application/json" {
			t.Errorf("expected Content-Type application/json, got %s", contentType)
		}

		var response map[string]interface{}
		if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}

		if response["status"] != "ok" {
			t.Errorf("expected status 'ok', got %v", response["status"])
		}

		if _, exists := response["uptime"]; !exists {
			t.Error("expected 'uptime' field in response")
		}
	})

	t.Run("only allows GET method", func(t *testing.T) {
		methods := []string{http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch}

		for _, method := range methods {
			req := httptest.NewRequest(method, "/api/health", nil)
			rec := httptest.NewRecorder()

			s.ServeHTTP(rec, req)

			if rec.Code != http.StatusMethodNotAllowed {
				t.Errorf("method %s: expected status %d, got %d", method, http.StatusMethodNotAllowed, rec.Code)
			}
		}
	})

	t.Run("reports sessions when wired to an app", func(t *testing.T) {
		e := newTestEnv(t, "")
		rec := e.do(http.MethodGet, "/api/health", "")

		var response map[string]interface{}
		json.NewDecoder(rec.Body).Decode(&response)
		if _, ok := response["sessions"]; !ok {
			t.Error("expected 'sessions' field in response")
		}
		if response["local_camera"] != false {
			t.Errorf("local_camera = %v, want false", response["local_camera"])
		}
	})
}

func TestServer_NotFound(t *testing.T) {
	e := newTestEnv(t, "")

	for _, path := range []string{"/api/nonexistent", "/nonexistent.html"} {
		rec := e.do(http.MethodGet, path, "")
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s: expected status %d, got %d", path, http.StatusNotFound, rec.Code)
		}
	}
}

func TestServer_NoApp(t *testing.T) {
	s := New(Config{})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("root path without app: expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
}

func TestServer_Static(t *testing.T) {
	s := New(Config{})

	for _, path := range []string{"/static/app.js", "/static/style.css"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Accept-Encoding", "gzip")
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("%s: expected status %d, got %d", path, http.StatusOK, rec.Code)
		}
		if rec.Header().Get("Content-Encoding") != "gzip" {
			t.Errorf("%s: expected gzip encoding", path)
		}
	}
}

func TestServer_Logo(t *testing.T) {
	t.Run("missing logo is skipped", func(t *testing.T) {
		e := newTestEnv(t, filepath.Join(t.TempDir(), "missing.png"))

		if rec := e.do(http.MethodGet, "/logo", ""); rec.Code != http.StatusNotFound {
			t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
		}
		if page := e.do(http.MethodGet, "/", "").Body.String(); strings.Contains(page, `class="logo-img"`) {
			t.Error("page should not reference a missing logo")
		}
	})

	t.Run("existing logo is served", func(t *testing.T) {
		logo := filepath.Join(t.TempDir(), "logo.png")
		if err := os.WriteFile(logo, []byte("\x89PNG"), 0644); err != nil {
			t.Fatalf("write logo: %v", err)
		}
		e := newTestEnv(t, logo)

		if rec := e.do(http.MethodGet, "/logo", ""); rec.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
		}
		if page := e.do(http.MethodGet, "/", "").Body.String(); !strings.Contains(page, `class="logo-img"`) {
			t.Error("page should show the logo")
		}
	})
}

func TestServer_SessionLifecycle(t *testing.T) {
	e := newTestEnv(t, "")

	rec := e.do(http.MethodGet, "/", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET / status = %d", rec.Code)
	}
	id := sessionCookie(t, rec)
	if !strings.Contains(rec.Body.String(), "Welcome!") {
		t.Error("idle page should show instructions")
	}

	t.Run("start redirects and activates", func(t *testing.T) {
		rec := e.do(http.MethodPost, "/session/start", id)
		if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/" {
			t.Errorf("start = %d %s, want 303 to /", rec.Code, rec.Header().Get("Location"))
		}

		page := e.do(http.MethodGet, "/", id).Body.String()
		if !strings.Contains(page, "Camera Active") || !strings.Contains(page, "Waiting for hand...") {
			t.Error("streaming page should show active status and waiting panel")
		}
	})

	t.Run("session API", func(t *testing.T) {
		rec := e.do(http.MethodGet, "/api/session", id)
		var response sessionResponse
		if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if response.ID != id || !response.CameraActive {
			t.Errorf("unexpected session: %+v", response)
		}
		if response.LastSpoken == nil || *response.LastSpoken != 0 {
			t.Errorf("LastSpoken = %v, want seeded 0", response.LastSpoken)
		}
	})

	t.Run("stop redirects and deactivates", func(t *testing.T) {
		rec := e.do(http.MethodPost, "/session/stop", id)
		if rec.Code != http.StatusSeeOther {
			t.Errorf("stop status = %d", rec.Code)
		}
		page := e.do(http.MethodGet, "/", id).Body.String()
		if !strings.Contains(page, "Camera Inactive") {
			t.Error("page should show inactive status after stop")
		}
	})

	t.Run("controls reject GET", func(t *testing.T) {
		for _, path := range []string{"/session/start", "/session/stop"} {
			if rec := e.do(http.MethodGet, path, id); rec.Code != http.StatusMethodNotAllowed {
				t.Errorf("GET %s = %d, want 405", path, rec.Code)
			}
		}
	})
}

func TestServer_StaleCookieReplaced(t *testing.T) {
	e := newTestEnv(t, "")

	rec := e.do(http.MethodGet, "/", "not-a-uuid")
	if id := sessionCookie(t, rec); id == "not-a-uuid" {
		t.Error("stale cookie should be replaced")
	}
}

func TestServer_Offer(t *testing.T) {
	e := newTestEnv(t, "")
	id := sessionCookie(t, e.do(http.MethodGet, "/", ""))

	t.Run("idle session is rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/rtc/offer", strings.NewReader(`{"type":"offer","sdp":"v=0"}`))
		req.AddCookie(&http.Cookie{Name: SessionCookie, Value: id})
		rec := httptest.NewRecorder()
		e.srv.ServeHTTP(rec, req)

		if rec.Code != http.StatusConflict {
			t.Errorf("expected status %d, got %d", http.StatusConflict, rec.Code)
		}
	})

	e.do(http.MethodPost, "/session/start", id)

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{name: "invalid json", body: `{`, status: http.StatusBadRequest},
		{name: "bad sdp", body: `{"type":"offer","sdp":"garbage"}`, status: http.StatusBadRequest},
		{name: "answer instead of offer", body: `{"type":"answer","sdp":"v=0"}`, status: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/rtc/offer", strings.NewReader(tt.body))
			req.AddCookie(&http.Cookie{Name: SessionCookie, Value: id})
			rec := httptest.NewRecorder()
			e.srv.ServeHTTP(rec, req)

			if rec.Code != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, rec.Code)
			}
		})
	}

	t.Run("only allows POST", func(t *testing.T) {
		if rec := e.do(http.MethodGet, "/api/rtc/offer", id); rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("expected status %d, got %d", http.StatusMethodNotAllowed, rec.Code)
		}
	})
}

func TestServer_SpeechAPI(t *testing.T) {
	e := newTestEnv(t, "")
	e.store.Speech().RecordSynthesis("four", "en", "com", "/cache/four_en.mp3", 100)

	rec := e.do(http.MethodGet, "/api/speech", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"word":"four"`) {
		t.Errorf("listing missing entry: %s", rec.Body.String())
	}
}

func TestServer_StreamWithoutCamera(t *testing.T) {
	e := newTestEnv(t, "")

	if rec := e.do(http.MethodGet, "/api/stream", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status %d, got %d", http.StatusServiceUnavailable, rec.Code)
	}
}

func TestNew(t *testing.T) {
	s := New(Config{})
	if s == nil {
		t.Fatal("expected non-nil server")
	}
	if s.Hub() == nil {
		t.Error("expected a default hub")
	}
	if s.mux == nil {
		t.Error("expected mux to be initialized")
	}
}
