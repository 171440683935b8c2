package app

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestManager_GetOrCreate(t *testing.T) {
	m := NewManager()

	t.Run("empty id gets a fresh uuid", func(t *testing.T) {
		s := m.GetOrCreate("")
		if _, err := uuid.Parse(s.ID); err != nil {
			t.Errorf("ID %q is not a UUID", s.ID)
		}
	})

	t.Run("garbage id is replaced", func(t *testing.T) {
		s := m.GetOrCreate("../../etc")
		if s.ID == "../../etc" {
			t.Error("non-UUID id should not be kept")
		}
	})

	t.Run("known id is reused", func(t *testing.T) {
		id := uuid.New().String()
		a := m.GetOrCreate(id)
		b := m.GetOrCreate(id)
		if a != b || a.ID != id {
			t.Error("expected the same session for the same id")
		}
	})

	if m.Len() != 3 {
		t.Errorf("Len() = %d, want 3", m.Len())
	}
}

func TestManager_ActiveAndRemove(t *testing.T) {
	m := NewManager()
	idle := m.GetOrCreate("")
	active := m.GetOrCreate("")
	active.state = active.state.Start()

	got := m.Active()
	if len(got) != 1 || got[0] != active {
		t.Errorf("Active() = %v, want only the started session", got)
	}

	m.Remove(idle.ID)
	if _, ok := m.Get(idle.ID); ok {
		t.Error("removed session still present")
	}
}

func TestManager_Prune(t *testing.T) {
	m := NewManager()
	idle := m.GetOrCreate("")
	active := m.GetOrCreate("")
	active.state = active.state.Start()
	connected := m.GetOrCreate("")
	keep := func(s *Session) bool { return s == connected }

	if removed := m.Prune(time.Now().Add(-time.Minute), keep); len(removed) != 0 {
		t.Errorf("recently seen sessions pruned: %v", removed)
	}

	removed := m.Prune(time.Now().Add(time.Minute), keep)
	if len(removed) != 1 || removed[0] != idle.ID {
		t.Errorf("Prune() = %v, want only the idle session", removed)
	}
	if _, ok := m.Get(active.ID); !ok {
		t.Error("active session must survive")
	}
	if _, ok := m.Get(connected.ID); !ok {
		t.Error("kept session must survive")
	}
}

func TestManager_GetOrCreateRefreshesSeen(t *testing.T) {
	m := NewManager()
	s := m.GetOrCreate("")
	cutoff := time.Now().Add(time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	m.GetOrCreate(s.ID)
	if removed := m.Prune(cutoff, nil); len(removed) != 0 {
		t.Error("a session requested after the cutoff should be kept")
	}
}
