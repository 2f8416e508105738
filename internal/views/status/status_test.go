package status

import (
	"strings"
	"testing"
	"time"

	"github.com/wsmd/console/internal/stream"
)

func TestSetStatus(t *testing.T) {
	m := New()

	m.SetStatus(stream.Status{State: stream.Connected, Text: stream.StatusConnected})
	m.SetStatus(stream.Status{State: stream.Connected, Text: "Error: database locked", Alert: true})
	if m.Status.Text != stream.StatusConnected {
		t.Errorf("alert replaced connection status: %+v", m.Status)
	}
	if m.Alert != "Error: database locked" {
		t.Errorf("Alert = %q", m.Alert)
	}

	m.SetStatus(stream.Status{State: stream.Disconnected, Text: stream.StatusDisconnected})
	if m.Alert == "" {
		t.Error("alert cleared by disconnect")
	}
	m.SetStatus(stream.Status{State: stream.Connected, Text: stream.StatusConnected})
	if m.Alert != "" {
		t.Errorf("alert %q survived reconnect", m.Alert)
	}
}

func TestView(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*Model)
		want  []string
	}{
		{
			name: "connecting",
			want: []string{stream.StatusConnecting, "Last update: never"},
		},
		{
			name: "connected with update",
			setup: func(m *Model) {
				m.SetStatus(stream.Status{State: stream.Connected, Text: stream.StatusConnected})
				m.LastUpdate = time.Date(2024, 1, 2, 9, 8, 7, 0, time.Local)
			},
			want: []string{stream.StatusConnected, "Last update: 09:08:07"},
		},
		{
			name: "user and warnings",
			setup: func(m *Model) {
				m.Username = "admin"
				m.KeyUser = true
				m.OverLimit = 2
				m.SetStatus(stream.Status{State: stream.Disconnected, Text: stream.StatusDisconnected})
			},
			want: []string{stream.StatusDisconnected, "admin", "[key]", "2 over limit"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New()
			m.Width = 160
			if tt.setup != nil {
				tt.setup(&m)
			}
			v := m.View()
			for _, want := range tt.want {
				if !strings.Contains(v, want) {
					t.Errorf("view missing %q:\n%s", want, v)
				}
			}
		})
	}
}
