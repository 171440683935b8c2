package app

import "github.com/ufirm/fingercounter/internal/speech"

// State is one browser session's UI state.
type State struct {
	// CameraActive is true between Start Video and Stop Video.
	CameraActive bool

	// LastSpoken is the count whose audio was pushed last. It is only
	// meaningful when HasSpoken is set.
	LastSpoken int
	HasSpoken  bool
}

// Start switches to streaming. The first Start of a session seeds the last
// spoken number with 0 so an empty frame stays silent; later restarts keep
// whatever was spoken before.
func (s State) Start() State {
	s.CameraActive = true
	if !s.HasSpoken {
		s.LastSpoken = 0
		s.HasSpoken = true
	}
	return s
}

// Stop switches back to idle.
func (s State) Stop() State {
	s.CameraActive = false
	return s
}

// Update is what one poll tick asks the page to show.
type Update struct {
	// Render is false when there is nothing to show this tick.
	Render bool
	Count  int
	Word   string

	// Speak is set when the count differs from the last spoken one and has
	// a word to say.
	Speak bool
}

// Tick folds the latest count into s. ok reports whether any count has been
// published yet.
func Tick(s State, count int, ok bool) (State, Update) {
	if !s.CameraActive || !ok {
		return s, Update{}
	}

	word, _ := speech.Word(count)
	u := Update{Render: true, Count: count, Word: word}

	if !s.HasSpoken || count != s.LastSpoken {
		s.LastSpoken = count
		s.HasSpoken = true
		u.Speak = word != ""
	}
	return s, u
}
