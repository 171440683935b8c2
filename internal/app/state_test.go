package app

import "testing"

func TestState_StartStop(t *testing.T) {
	var s State
	if s.CameraActive {
		t.Fatal("zero state should be idle")
	}

	s = s.Start()
	if !s.CameraActive || !s.HasSpoken || s.LastSpoken != 0 {
		t.Errorf("Start() = %+v", s)
	}

	s = s.Stop()
	if s.CameraActive {
		t.Error("Stop() should clear CameraActive")
	}
}

func TestTick_Idle(t *testing.T) {
	s, u := Tick(State{}, 3, true)
	if u.Render || u.Speak {
		t.Errorf("idle tick produced update %+v", u)
	}
	if s != (State{}) {
		t.Errorf("idle tick changed state: %+v", s)
	}
}

func TestTick_NoCountYet(t *testing.T) {
	s := State{}.Start()
	next, u := Tick(s, 0, false)
	if u.Render {
		t.Error("tick without a count should not render")
	}
	if next != s {
		t.Errorf("state changed: %+v", next)
	}
}

func TestTick_SpeaksOnTransitionsOnly(t *testing.T) {
	s := State{}.Start()

	var spoken []string
	for _, count := range []int{0, 0, 3, 3, 5} {
		var u Update
		s, u = Tick(s, count, true)
		if !u.Render || u.Count != count {
			t.Errorf("Tick(%d) = %+v, want render of %d", count, u, count)
		}
		if u.Speak {
			spoken = append(spoken, u.Word)
		}
	}

	if len(spoken) != 2 || spoken[0] != "three" || spoken[1] != "five" {
		t.Errorf("spoken = %v, want [three five]", spoken)
	}
	if s.LastSpoken != 5 {
		t.Errorf("LastSpoken = %d, want 5", s.LastSpoken)
	}
}

func TestTick_Words(t *testing.T) {
	tests := []struct {
		count int
		word  string
		speak bool
	}{
		{count: 5, word: "five", speak: true},
		{count: 10, word: "ten", speak: true},
		{count: 11, word: "", speak: false},
	}

	for _, tt := range tests {
		s := State{}.Start()
		s, u := Tick(s, tt.count, true)
		if u.Word != tt.word || u.Speak != tt.speak {
			t.Errorf("Tick(%d) = %+v, want word %q speak %v", tt.count, u, tt.word, tt.speak)
		}
		if s.LastSpoken != tt.count {
			t.Errorf("LastSpoken = %d, want %d", s.LastSpoken, tt.count)
		}
	}
}

func TestTick_WithoutSeedSpeaksFirstCount(t *testing.T) {
	s := State{CameraActive: true}
	_, u := Tick(s, 0, true)
	if !u.Speak || u.Word != "zero" {
		t.Errorf("first tick without seed = %+v, want zero spoken", u)
	}
}

func TestTick_RestartKeepsLastSpoken(t *testing.T) {
	s := State{}.Start()
	s, u := Tick(s, 3, true)
	if !u.Speak {
		t.Fatal("first 3 should be spoken")
	}

	s = s.Stop().Start()
	if s.LastSpoken != 3 {
		t.Errorf("LastSpoken after restart = %d, want 3", s.LastSpoken)
	}

	s, u = Tick(s, 3, true)
	if u.Speak {
		t.Error("unchanged count must stay silent after stop and start")
	}

	_, u = Tick(s, 0, true)
	if !u.Speak || u.Word != "zero" {
		t.Errorf("Tick(0) after restart = %+v, want zero spoken", u)
	}
}
