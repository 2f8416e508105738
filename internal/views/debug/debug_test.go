package debug

import (
	"strings"
	"testing"
	"time"
)

func fixedModel(at time.Time) Model {
	m := New()
	m.now = func() time.Time { return at }
	return m
}

func TestAddEntry(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 30, 15, 0, time.UTC)
	m := fixedModel(at)
	m.Addf(KindStream, "status %s", "Connected (Live)")
	if len(m.Entries) != 1 {
		t.Fatalf("len(Entries) = %d, want 1", len(m.Entries))
	}
	e := m.Entries[0]
	if e.Kind != KindStream || e.Message != "status Connected (Live)" || !e.Time.Equal(at) {
		t.Errorf("entry = %+v", e)
	}
}

func TestEntriesCapped(t *testing.T) {
	m := New()
	for i := 0; i < maxEntries+25; i++ {
		m.Addf(KindForm, "submit %d", i)
	}
	if len(m.Entries) != maxEntries {
		t.Fatalf("len(Entries) = %d, want %d", len(m.Entries), maxEntries)
	}
	if got := m.Entries[0].Message; got != "submit 25" {
		t.Errorf("oldest entry = %q, want submit 25", got)
	}
}

func TestScroll(t *testing.T) {
	tests := []struct {
		name    string
		entries int
		up      int
		down    int
		want    int
	}{
		{name: "up", entries: 20, up: 5, want: 5},
		{name: "up then down", entries: 20, up: 5, down: 3, want: 2},
		{name: "down floors at zero", entries: 20, up: 2, down: 10, want: 0},
		{name: "up capped at len-1", entries: 5, up: 100, want: 4},
		{name: "empty log", entries: 0, up: 3, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New()
			for i := 0; i < tt.entries; i++ {
				m.Addf(KindStream, "msg %d", i)
			}
			m.ScrollUp(tt.up)
			m.ScrollDown(tt.down)
			if m.Offset != tt.want {
				t.Errorf("Offset = %d, want %d", m.Offset, tt.want)
			}
		})
	}
}

func TestAddResetsScroll(t *testing.T) {
	m := New()
	for i := 0; i < 10; i++ {
		m.Addf(KindStream, "msg %d", i)
	}
	m.ScrollUp(5)
	m.Add(KindNav, "session expired")
	if m.Offset != 0 {
		t.Errorf("Offset = %d after Add, want 0", m.Offset)
	}
}

func TestView(t *testing.T) {
	m := New()
	if v := m.View(80, 20); !strings.Contains(v, "No events") {
		t.Errorf("empty view missing placeholder:\n%s", v)
	}

	m.Add(KindStream, "Connected (Live)")
	m.Add(KindError, "load devices: request failed (500)")
	v := m.View(100, 20)
	for _, want := range []string{"Connected (Live)", "request failed (500)", "2 of 2 entries"} {
		if !strings.Contains(v, want) {
			t.Errorf("view missing %q:\n%s", want, v)
		}
	}
}

func TestRepeatsFolded(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	m := New()
	m.now = func() time.Time { return at }
	m.Add(KindError, "Error: database unavailable")
	at = at.Add(5 * time.Second)
	m.Add(KindError, "Error: database unavailable")
	m.Add(KindError, "Error: database unavailable")
	m.Add(KindStream, "Connected (Live)")
	m.Add(KindError, "Error: database unavailable")

	if len(m.Entries) != 3 {
		t.Fatalf("len(Entries) = %d, want 3", len(m.Entries))
	}
	first := m.Entries[0]
	if first.Repeats != 2 || !first.Time.Equal(at) {
		t.Errorf("folded entry = %+v, want 2 repeats at %v", first, at)
	}
	if m.Entries[2].Repeats != 0 {
		t.Error("entry after a different event was folded")
	}
	if v := m.View(120, 20); !strings.Contains(v, "(x3)") {
		t.Errorf("view missing repeat count:\n%s", v)
	}
}

func TestFilter(t *testing.T) {
	m := New()
	m.Add(KindStream, "Connecting...")
	m.Add(KindNav, "signed in as admin")
	m.Add(KindStream, "Connected (Live)")
	m.Add(KindForm, "Update Device: Operation successful")

	want := []string{KindStream, KindNav, KindForm, KindLoad, KindError, ""}
	for _, w := range want {
		m.CycleFilter()
		if m.Filter != w {
			t.Fatalf("Filter = %q, want %q", m.Filter, w)
		}
	}

	m.CycleFilter()
	got := m.Visible()
	if len(got) != 2 || got[0].Message != "Connecting..." || got[1].Message != "Connected (Live)" {
		t.Errorf("stream entries = %+v", got)
	}
	v := m.View(120, 20)
	if strings.Contains(v, "signed in") || !strings.Contains(v, "2 of 4 entries") {
		t.Errorf("filtered view:\n%s", v)
	}

	m.ScrollUp(10)
	if m.Offset != 1 {
		t.Errorf("Offset = %d, want capped at 1 for two visible entries", m.Offset)
	}
	m.CycleFilter()
	if m.Offset != 0 {
		t.Error("changing the filter kept the scroll offset")
	}
}
