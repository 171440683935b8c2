package app

import (
	"errors"
	"time"

	"github.com/ufirm/fingercounter/internal/capture"
	"github.com/ufirm/fingercounter/internal/ui"
	"github.com/ufirm/fingercounter/internal/vision"
)

// ErrNoCamera is returned by StartCamera when no local camera is configured.
var ErrNoCamera = errors.New("no local camera configured")

// StartCamera opens the local camera and feeds its frames to a shared
// processor. Active sessions are attached to it.
func (a *App) StartCamera() error {
	if a.config.Camera == nil {
		return ErrNoCamera
	}

	a.mu.Lock()
	if a.stopCh != nil {
		a.mu.Unlock()
		return nil
	}

	proc, err := a.NewProcessor()
	if err != nil {
		a.mu.Unlock()
		return err
	}

	if err := a.config.Camera.Open(); err != nil {
		proc.Close()
		a.mu.Unlock()
		return err
	}

	a.local = proc
	a.stopCh = make(chan struct{})
	a.pipeDone = make(chan struct{})
	go a.runPipeline(proc, a.stopCh, a.pipeDone)
	a.mu.Unlock()

	a.logger.Info("local camera started", "fps", a.config.Camera.FPS())

	for _, s := range a.sessions.Active() {
		if s.Streaming() {
			continue
		}
		if _, err := a.Stream(a.ctx, s.ID, proc); err != nil {
			a.logger.Warn("attach local camera", "session", s.ID, "err", err)
		}
	}
	return nil
}

// StopCamera halts the pipeline and releases the camera and its detector.
// Sessions fed by the camera are returned to idle.
func (a *App) StopCamera() error {
	a.mu.Lock()
	if a.stopCh == nil {
		a.mu.Unlock()
		return nil
	}
	close(a.stopCh)
	done := a.pipeDone
	proc := a.local
	a.stopCh = nil
	a.pipeDone = nil
	a.local = nil
	a.mu.Unlock()

	<-done

	for _, s := range a.sessions.Active() {
		if s.Source() != CountSource(proc) {
			continue
		}
		a.StopSession(s.ID)
		a.config.Publisher.Publish(s.ID, ui.Event{Type: ui.EventState})
	}

	err := a.config.Camera.Close()
	if cerr := proc.Close(); err == nil {
		err = cerr
	}
	a.logger.Info("local camera stopped")
	return err
}

// CameraRunning reports whether the local pipeline is active.
func (a *App) CameraRunning() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.stopCh != nil
}

// LocalProcessor returns the processor fed by the local camera, or nil.
func (a *App) LocalProcessor() *vision.Processor {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.local
}

// runPipeline reads frames at the camera rate and hands them to the local
// processor. Read errors are logged and the frame skipped; detector errors
// stop the pipeline.
func (a *App) runPipeline(proc *vision.Processor, stopCh, done chan struct{}) {
	defer close(done)

	fps := a.config.Camera.FPS()
	if fps <= 0 {
		fps = capture.DefaultFPS
	}
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			frame, err := a.config.Camera.ReadFrame()
			if err != nil {
				a.logger.Debug("read frame", "err", err)
				continue
			}

			_, _, err = proc.HandleMat(*frame)
			frame.Close()
			if err != nil {
				a.logger.Error("local pipeline stopped", "err", err)
				go a.StopCamera()
				<-stopCh
				return
			}
		}
	}
}
