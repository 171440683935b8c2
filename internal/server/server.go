// Package server provides the HTTP server for the finger counter: the page,
// session controls, the websocket event channel, WebRTC signalling and the
// JSON API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/klauspost/compress/gzhttp"
	"github.com/pion/webrtc/v4"

	"github.com/ufirm/fingercounter/internal/app"
	"github.com/ufirm/fingercounter/internal/rtc"
	"github.com/ufirm/fingercounter/internal/server/api"
	"github.com/ufirm/fingercounter/internal/store"
	"github.com/ufirm/fingercounter/internal/ui"
)

// SessionCookie names the browser session cookie.
const SessionCookie = "fc_session"

const (
	maxOfferSize   = 1 << 20
	offerTimeout   = 15 * time.Second
	shutdownWindow = 5 * time.Second
)

// Config holds the server configuration.
type Config struct {
	App        *app.App
	Hub        *Hub
	Renderer   *ui.Renderer
	Negotiator *rtc.Negotiator
	Store      *store.Store

	// LogoPath is served at /logo when the file exists.
	LogoPath  string
	CameraFPS int
}

// Server represents the HTTP server for the finger counter.
type Server struct {
	config Config
	mux    *http.ServeMux
	start  time.Time
	logger *log.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	if config.Hub == nil {
		config.Hub = NewHub()
	}
	if config.Renderer == nil {
		if r, err := ui.New(); err == nil {
			config.Renderer = r
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		start:  time.Now(),
		logger: log.WithPrefix("server"),
		ctx:    ctx,
		cancel: cancel,
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	gz := gzhttp.GzipHandler

	s.mux.Handle("/api/health", gz(http.HandlerFunc(s.handleHealth)))
	s.mux.Handle("/static/", gz(http.StripPrefix("/static/", ui.Static())))
	s.mux.HandleFunc("/logo", s.handleLogo)

	if s.config.Store != nil {
		speechHandler := api.NewSpeechHandler(s.config.Store)
		s.mux.Handle("/api/speech", gz(speechHandler))
		s.mux.Handle("/api/speech/", gz(speechHandler))
	}

	if s.config.App != nil {
		s.mux.Handle("/{$}", gz(http.HandlerFunc(s.handlePage)))
		s.mux.HandleFunc("/session/start", s.handleStart)
		s.mux.HandleFunc("/session/stop", s.handleStop)
		s.mux.Handle("/api/session", gz(http.HandlerFunc(s.handleSession)))
		s.mux.HandleFunc("/ws", s.handleWS)
		s.mux.Handle("/api/stream", NewStreamHandler(s.localFrames, s.config.CameraFPS))

		if s.config.Negotiator != nil {
			s.mux.HandleFunc("/api/rtc/offer", s.handleOffer)
		}
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully and closes every websocket and stream.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.Close()
		return err
	case <-ctx.Done():
	}

	s.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownWindow)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close ends all WebRTC streams and websocket connections.
func (s *Server) Close() {
	s.cancel()
	s.config.Hub.Close()
}

// Hub returns the websocket hub.
func (s *Server) Hub() *Hub {
	return s.config.Hub
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.start).Round(time.Second).String(),
	}
	if s.config.App != nil {
		response["sessions"] = s.config.App.Sessions().Len()
		response["active_sessions"] = len(s.config.App.Sessions().Active())
		response["local_camera"] = s.config.App.CameraRunning()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

// handlePage renders the single page for the caller's session.
func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.config.Renderer == nil {
		http.Error(w, "Renderer unavailable", http.StatusInternalServerError)
		return
	}

	sess := s.session(w, r)
	data := ui.PageData{
		Active:      sess.State().CameraActive,
		HasLogo:     s.hasLogo(),
		LocalCamera: s.config.App.CameraRunning(),
		Year:        time.Now().Year(),
	}
	if s.config.Negotiator != nil {
		for _, server := range s.config.Negotiator.ICEServers() {
			data.ICEServers = append(data.ICEServers, server.URLs...)
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := s.config.Renderer.Page(w, data); err != nil {
		s.logger.Error("render page", "err", err)
	}
}

// handleStart handles POST /session/start.
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	sess := s.session(w, r)
	s.config.App.StartSession(sess.ID)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// handleStop handles POST /session/stop.
func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	sess := s.session(w, r)
	s.config.App.StopSession(sess.ID)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

type sessionResponse struct {
	ID           string `json:"id"`
	CameraActive bool   `json:"camera_active"`
	Streaming    bool   `json:"streaming"`
	LastSpoken   *int   `json:"last_spoken"`
	Connections  int    `json:"connections"`
}

// handleSession handles GET /api/session.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sess := s.session(w, r)
	st := sess.State()
	response := sessionResponse{
		ID:           sess.ID,
		CameraActive: st.CameraActive,
		Streaming:    sess.Streaming(),
		Connections:  s.config.Hub.Count(sess.ID),
	}
	if st.HasSpoken {
		last := st.LastSpoken
		response.LastSpoken = &last
	}
	api.WriteJSON(w, http.StatusOK, response)
}

// handleWS upgrades /ws for the caller's session.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	s.config.Hub.Serve(w, r, sess.ID)
}

// handleOffer answers a browser WebRTC offer and attaches the resulting
// stream to the caller's session.
func (s *Server) handleOffer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sess := s.session(w, r)
	if !sess.State().CameraActive {
		api.WriteError(w, http.StatusConflict, "Camera is not active for this session")
		return
	}

	var offer webrtc.SessionDescription
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxOfferSize)).Decode(&offer); err != nil {
		api.WriteError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	proc, err := s.config.App.NewProcessor()
	if err != nil {
		s.logger.Error("create processor", "err", err)
		api.WriteError(w, http.StatusServiceUnavailable, "Hand detector unavailable")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), offerTimeout)
	defer cancel()

	peer, err := s.config.Negotiator.Answer(ctx, offer, proc)
	if err != nil {
		proc.Close()
		s.logger.Warn("negotiate", "session", sess.ID, "err", err)
		api.WriteError(w, http.StatusBadRequest, "Could not negotiate connection")
		return
	}

	streamCtx, stop := context.WithCancel(s.ctx)
	done, err := s.config.App.Stream(streamCtx, sess.ID, proc)
	if err != nil {
		stop()
		peer.Close()
		proc.Close()
		api.WriteError(w, http.StatusConflict, err.Error())
		return
	}

	go func() {
		select {
		case <-peer.Done():
		case <-done:
		}
		stop()
		peer.Close()
		proc.Close()
		s.logger.Info("stream ended", "session", sess.ID, "frames", proc.Frames(), "reason", peer.Err())
	}()

	s.logger.Info("stream negotiated", "session", sess.ID)
	api.WriteJSON(w, http.StatusOK, peer.LocalDescription())
}

// handleLogo serves the sidebar logo when the file exists.
func (s *Server) handleLogo(w http.ResponseWriter, r *http.Request) {
	if !s.hasLogo() {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, s.config.LogoPath)
}

func (s *Server) hasLogo() bool {
	if s.config.LogoPath == "" {
		return false
	}
	info, err := os.Stat(s.config.LogoPath)
	return err == nil && !info.IsDir()
}

func (s *Server) localFrames() FrameSource {
	if p := s.config.App.LocalProcessor(); p != nil {
		return p
	}
	return nil
}

// session resolves the caller's session from its cookie, issuing a new
// cookie when missing or stale.
func (s *Server) session(w http.ResponseWriter, r *http.Request) *app.Session {
	var id string
	if c, err := r.Cookie(SessionCookie); err == nil {
		id = c.Value
	}

	sess := s.config.App.Sessions().GetOrCreate(id)
	if sess.ID != id {
		http.SetCookie(w, &http.Cookie{
			Name:     SessionCookie,
			Value:    sess.ID,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}
	return sess
}
