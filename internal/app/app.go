// Package app orchestrates browser sessions: it tracks each session's
// Idle/Streaming state, runs the per-session poll loop that pushes the result
// panel and spoken numbers, and drives the optional local camera.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/ufirm/fingercounter/internal/capture"
	"github.com/ufirm/fingercounter/internal/detector"
	"github.com/ufirm/fingercounter/internal/ui"
	"github.com/ufirm/fingercounter/internal/vision"
)

// DefaultPollInterval is the panel refresh cadence.
const DefaultPollInterval = 100 * time.Millisecond

// DefaultSessionTTL is how long an idle session without connections is
// kept after its last request.
const DefaultSessionTTL = 30 * time.Minute

// ErrSessionIdle is returned when a stream is attached to a session whose
// camera is off.
var ErrSessionIdle = errors.New("session camera is not active")

// CountSource publishes the latest finger count of one video stream.
type CountSource interface {
	Latest() (int, bool)
	Subscribe() (<-chan struct{}, func())
}

// Speaker resolves a number word to an autoplaying audio element.
type Speaker interface {
	AudioTag(ctx context.Context, word string) (string, error)
}

// Publisher delivers events to the browser of one session.
type Publisher interface {
	Publish(sessionID string, ev ui.Event)
}

// Config holds the collaborators of an App.
type Config struct {
	// Detectors creates one detector per video stream.
	Detectors detector.Factory
	Speaker   Speaker
	Publisher Publisher
	Renderer  *ui.Renderer

	PollInterval time.Duration
	JPEGQuality  int

	// SessionTTL bounds how long idle sessions are remembered.
	SessionTTL time.Duration

	// Camera is the optional local camera. Nil disables local mode.
	Camera capture.Camera
}

// App owns the sessions and the local camera pipeline.
type App struct {
	config   Config
	sessions *Manager
	logger   *log.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.RWMutex
	local    *vision.Processor
	stopCh   chan struct{}
	pipeDone chan struct{}
	onSpoken []func(count int, word string)
}

// New creates an App.
func New(config Config) (*App, error) {
	if config.Detectors == nil {
		return nil, errors.New("app: detector factory is required")
	}
	if config.Speaker == nil || config.Publisher == nil {
		return nil, errors.New("app: speaker and publisher are required")
	}
	if config.Renderer == nil {
		r, err := ui.New()
		if err != nil {
			return nil, err
		}
		config.Renderer = r
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}
	if config.SessionTTL <= 0 {
		config.SessionTTL = DefaultSessionTTL
	}

	ctx, cancel := context.WithCancel(context.Background())
	a := &App{
		config:   config,
		sessions: NewManager(),
		logger:   log.WithPrefix("app"),
		ctx:      ctx,
		cancel:   cancel,
	}
	go a.janitor()
	return a, nil
}

// connectionCounter is implemented by publishers that know whether a
// browser is still listening.
type connectionCounter interface {
	Count(sessionID string) int
}

// PruneSessions forgets idle sessions not requested within the session TTL
// and without open connections. It returns how many were removed.
func (a *App) PruneSessions() int {
	var keep func(*Session) bool
	if cc, ok := a.config.Publisher.(connectionCounter); ok {
		keep = func(s *Session) bool { return cc.Count(s.ID) > 0 }
	}

	removed := a.sessions.Prune(time.Now().Add(-a.config.SessionTTL), keep)
	if len(removed) > 0 {
		a.logger.Debug("pruned idle sessions", "count", len(removed), "remaining", a.sessions.Len())
	}
	return len(removed)
}

func (a *App) janitor() {
	ticker := time.NewTicker(a.config.SessionTTL / 2)
	defer ticker.Stop()

	for {
		select {
		case <-a.ctx.Done():
			return
		case <-ticker.C:
			a.PruneSessions()
		}
	}
}

// Sessions returns the session manager.
func (a *App) Sessions() *Manager {
	return a.sessions
}

// OnSpoken registers fn to run after audio for count was pushed.
func (a *App) OnSpoken(fn func(count int, word string)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onSpoken = append(a.onSpoken, fn)
}

// NewProcessor creates a frame processor with its own detector.
func (a *App) NewProcessor() (*vision.Processor, error) {
	d, err := a.config.Detectors()
	if err != nil {
		return nil, fmt.Errorf("create detector: %w", err)
	}
	return vision.NewProcessor(d, a.config.JPEGQuality), nil
}

// StartSession switches the session to streaming. When the local camera is
// running the session is attached to it right away.
func (a *App) StartSession(id string) *Session {
	s := a.sessions.GetOrCreate(id)

	s.mu.Lock()
	s.state = s.state.Start()
	s.mu.Unlock()
	a.logger.Info("session started", "session", s.ID)

	if local := a.LocalProcessor(); local != nil {
		if _, err := a.Stream(a.ctx, s.ID, local); err != nil {
			a.logger.Warn("attach local camera", "session", s.ID, "err", err)
		}
	}
	return s
}

// StopSession switches the session to idle and waits for its loop to exit.
func (a *App) StopSession(id string) *Session {
	s := a.sessions.GetOrCreate(id)

	s.mu.Lock()
	s.state = s.state.Stop()
	done := s.detach()
	s.mu.Unlock()

	if done != nil {
		<-done
	}
	a.logger.Info("session stopped", "session", s.ID)
	return s
}

// Stream runs the poll loop of session id against src until ctx is
// cancelled or the session stops. A previous loop of the same session is
// replaced. The returned channel is closed when the loop exits.
func (a *App) Stream(ctx context.Context, id string, src CountSource) (<-chan struct{}, error) {
	s, ok := a.sessions.Get(id)
	if !ok {
		return nil, fmt.Errorf("unknown session %q", id)
	}

	s.mu.Lock()
	if !s.state.CameraActive {
		s.mu.Unlock()
		return nil, ErrSessionIdle
	}
	prev := s.detach()

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	s.source = src
	s.mu.Unlock()

	if prev != nil {
		<-prev
	}

	go a.run(loopCtx, s, src, done)
	return done, nil
}

// Close stops every session loop and the local camera.
func (a *App) Close() error {
	a.cancel()
	for _, s := range a.sessions.Active() {
		s.mu.Lock()
		done := s.detach()
		s.mu.Unlock()
		if done != nil {
			<-done
		}
	}
	return a.StopCamera()
}

func (a *App) spoken(count int, word string) {
	a.mu.RLock()
	fns := a.onSpoken
	a.mu.RUnlock()
	for _, fn := range fns {
		fn(count, word)
	}
}
