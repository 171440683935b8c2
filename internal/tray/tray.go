// Package tray provides a system tray menu for toggling the local camera of
// the finger counter.
package tray

import (
	"sync"

	"github.com/getlantern/systray"
)

// Tray represents the system tray application.
type Tray struct {
	onToggle func(active bool) error
	onOpen   func()
	onQuit   func()
	active   bool
	mu       sync.RWMutex

	menuToggle *systray.MenuItem
	menuLast   *systray.MenuItem
}

// New creates a Tray with the camera stopped.
func New() *Tray {
	return &Tray{}
}

// OnToggle sets the callback run when the camera item is clicked. A
// returned error leaves the state unchanged.
func (t *Tray) OnToggle(fn func(active bool) error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onToggle = fn
}

// OnOpen sets the callback run when "Open in Browser" is clicked.
func (t *Tray) OnOpen(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onOpen = fn
}

// OnQuit sets the callback run when the quit item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray. It blocks until Quit.
func (t *Tray) Run() {
	systray.Run(t.onReady, func() {})
}

// Quit removes the tray icon and unblocks Run.
func (t *Tray) Quit() {
	systray.Quit()
}

func (t *Tray) onReady() {
	systray.SetTitle("✋")
	systray.SetTooltip("AI Finger Counter")

	t.mu.Lock()
	t.menuToggle = systray.AddMenuItem(toggleTitle(t.active), "Start or stop the local camera")
	systray.AddSeparator()
	t.menuLast = systray.AddMenuItem("Last: none", "Last spoken number")
	t.menuLast.Disable()
	t.mu.Unlock()
	systray.AddSeparator()

	menuOpen := systray.AddMenuItem("Open in Browser", "Open the finger counter page")
	systray.AddSeparator()
	menuQuit := systray.AddMenuItem("Quit", "Quit the finger counter")

	go func() {
		for {
			select {
			case <-t.menuToggle.ClickedCh:
				t.handleToggle()
			case <-menuOpen.ClickedCh:
				t.handleOpen()
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

func (t *Tray) handleToggle() {
	t.mu.RLock()
	next := !t.active
	callback := t.onToggle
	t.mu.RUnlock()

	if callback != nil {
		if err := callback(next); err != nil {
			return
		}
	}
	t.SetActive(next)
}

func (t *Tray) handleOpen() {
	t.mu.RLock()
	callback := t.onOpen
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

func (t *Tray) handleQuit() {
	t.mu.RLock()
	callback := t.onQuit
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
	systray.Quit()
}

// SetActive records the camera state and updates the menu.
func (t *Tray) SetActive(active bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.active = active
	if t.menuToggle != nil {
		t.menuToggle.SetTitle(toggleTitle(active))
	}
}

// SetLastSpoken updates the last spoken word shown in the menu.
func (t *Tray) SetLastSpoken(word string) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.menuLast != nil {
		t.menuLast.SetTitle(lastTitle(word))
	}
}

// IsActive reports whether the local camera is running.
func (t *Tray) IsActive() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.active
}

func toggleTitle(active bool) string {
	if active {
		return "● Camera On"
	}
	return "○ Camera Off"
}

func lastTitle(word string) string {
	if word == "" {
		return "Last: none"
	}
	return "Last: " + word
}
