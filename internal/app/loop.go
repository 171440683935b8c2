package app

import (
	"context"
	"time"

	"github.com/ufirm/fingercounter/internal/ui"
)

// run is the session poll loop. Count notifications mark the loop dirty and
// the ticker flushes at most one update per interval, so the panel refreshes
// on the same 100ms buckets whether frames arrive fast or slow.
func (a *App) run(ctx context.Context, s *Session, src CountSource, done chan struct{}) {
	defer close(done)
	defer s.release(done)

	ticker := time.NewTicker(a.config.PollInterval)
	defer ticker.Stop()

	updates, unsubscribe := src.Subscribe()
	defer unsubscribe()
	_, pending := src.Latest()

	for {
		select {
		case <-ctx.Done():
			return
		case <-updates:
			pending = true
		case <-ticker.C:
			if !pending {
				continue
			}
			pending = false
			a.tick(ctx, s, src)
		}
	}
}

func (a *App) tick(ctx context.Context, s *Session, src CountSource) {
	count, ok := src.Latest()
	u := s.tick(count, ok)
	if !u.Render {
		return
	}

	html, err := a.config.Renderer.Panel(ui.Panel{Detected: true, Count: u.Count, Word: u.Word})
	if err != nil {
		a.logger.Error("render panel", "err", err)
		return
	}
	a.config.Publisher.Publish(s.ID, ui.Event{Type: ui.EventPanel, HTML: html})

	if !u.Speak {
		return
	}

	tag, err := a.config.Speaker.AudioTag(ctx, u.Word)
	if err != nil {
		a.logger.Warn("no audio for count", "count", u.Count, "word", u.Word, "err", err)
		return
	}
	a.config.Publisher.Publish(s.ID, ui.Event{Type: ui.EventAudio, HTML: tag})
	a.spoken(u.Count, u.Word)
}
