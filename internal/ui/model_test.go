package ui

import (
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/0xlemi/riyaaz/internal/audio"
	"github.com/0xlemi/riyaaz/internal/config"
	"github.com/0xlemi/riyaaz/internal/engine"
)

func newTestModel(t *testing.T) Model {
	t.Helper()
	sink := func() (audio.Sink, error) { return nopSink{}, nil }
	eng, err := engine.New(config.Default(),
		engine.WithCapturer(audio.NewMockCapturer(44100, 2048)),
		engine.WithSinkFactory(sink))
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	t.Cleanup(func() {
		if err := eng.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return NewModel(eng, "Aaroh", 80, 4)
}

type nopSink struct{}

func (nopSink) Write([]float32) error { return nil }
func (nopSink) Close() error          { return nil }

func TestViewBeforeAnySample(t *testing.T) {
	m := newTestModel(t)
	view := m.View()
	if !strings.Contains(view, "Listening") {
		t.Errorf("idle view missing listening prompt:\n%s", view)
	}
	if !strings.Contains(view, "220.0 Hz") {
		t.Errorf("idle view missing tonic:\n%s", view)
	}
}

func TestQuitKey(t *testing.T) {
	m := newTestModel(t)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil {
		t.Fatal("q produced no command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q did not quit")
	}
}

func TestTargetKeysSetAndClear(t *testing.T) {
	m := newTestModel(t)
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'5'}})
	m = next.(Model)
	if !m.hasTarget || m.target != 7 {
		t.Fatalf("key 5 set target %d (has=%v), want Pa (7)", m.target, m.hasTarget)
	}
	if !strings.Contains(m.View(), "Target Pa") {
		t.Error("view missing target line")
	}
	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'0'}})
	m = next.(Model)
	if m.hasTarget {
		t.Error("key 0 did not clear the target")
	}
}

func TestToggleKeysStayOffWhenStartFails(t *testing.T) {
	badSink := func() (audio.Sink, error) { return nil, errors.New("no output device") }
	eng, err := engine.New(config.Default(),
		engine.WithCapturer(audio.NewMockCapturer(44100, 2048)),
		engine.WithSinkFactory(badSink))
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	t.Cleanup(func() {
		if err := eng.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	m := NewModel(eng, "Aaroh", 80, 4)

	for _, key := range []rune{'d', 'b'} {
		next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{key}})
		m = next.(Model)
		if m.droneOn || m.metroOn {
			t.Fatalf("key %q left voice marked on after failed start", key)
		}
		if m.lastErr == "" {
			t.Fatalf("key %q swallowed the start error", key)
		}
		// A second press must retry Start, not Stop a voice that never
		// started.
		m.lastErr = ""
		next, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{key}})
		m = next.(Model)
		if m.droneOn || m.metroOn {
			t.Fatalf("key %q retry left voice marked on", key)
		}
		if m.lastErr == "" {
			t.Fatalf("key %q retry did not surface the start error", key)
		}
	}
}

func TestRetuneKeys(t *testing.T) {
	m := newTestModel(t)
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{']'}})
	m = next.(Model)
	got := m.eng.Tonic()
	if got < 233 || got > 234 {
		t.Errorf("tonic after ] = %.2f, want ~233.08", got)
	}
}
