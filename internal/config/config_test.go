package config

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
backend:
  url: "https://wsmd.example.com"
stream:
  transport: websocket
mock:
  port: 9090
  users:
    - username: root
      password: toor
      is_key_user: true
  devices:
    - mac_address: "AA:BB:CC:DD:EE:FF"
      max_hits: 3
`)

	cfg, err := LoadWith(context.Background(), path, envconfig.MapLookuper(nil))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Backend.URL != "https://wsmd.example.com" {
		t.Errorf("Backend.URL = %q", cfg.Backend.URL)
	}
	if cfg.Stream.Transport != TransportWebSocket {
		t.Errorf("Stream.Transport = %q, want websocket", cfg.Stream.Transport)
	}
	if cfg.Mock.Port != 9090 {
		t.Errorf("Mock.Port = %d, want 9090", cfg.Mock.Port)
	}
	if len(cfg.Mock.Users) != 1 || cfg.Mock.Users[0].Username != "root" || !cfg.Mock.Users[0].IsKeyUser {
		t.Errorf("Mock.Users = %+v", cfg.Mock.Users)
	}
	if len(cfg.Mock.Devices) != 1 || cfg.Mock.Devices[0].MaxHits != 3 {
		t.Errorf("Mock.Devices = %+v", cfg.Mock.Devices)
	}

	// Defaults should still be applied for unspecified fields.
	if cfg.Stream.IdleTimeout != 45*time.Second {
		t.Errorf("Stream.IdleTimeout = %v, want 45s", cfg.Stream.IdleTimeout)
	}
	if cfg.Mock.PollInterval != 3*time.Second {
		t.Errorf("Mock.PollInterval = %v, want 3s", cfg.Mock.PollInterval)
	}
	if cfg.Mock.HeartbeatEvery != 5 {
		t.Errorf("Mock.HeartbeatEvery = %d, want 5", cfg.Mock.HeartbeatEvery)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
backend:
  url: "http://from-file:8000"
mock:
  port: 9090
`)
	env := envconfig.MapLookuper(map[string]string{
		"WSMD_BACKEND_URL":         "http://from-env:8001",
		"WSMD_STREAM_IDLE_TIMEOUT": "10s",
		"WSMD_MOCK_PORT":           "7000",
		"WSMD_SIMULATE":            "true",
	})

	cfg, err := LoadWith(context.Background(), path, env)
	if err != nil {
		t.Fatalf("LoadWith() error: %v", err)
	}
	if cfg.Backend.URL != "http://from-env:8001" {
		t.Errorf("Backend.URL = %q, want env value", cfg.Backend.URL)
	}
	if cfg.Stream.IdleTimeout != 10*time.Second {
		t.Errorf("Stream.IdleTimeout = %v, want 10s", cfg.Stream.IdleTimeout)
	}
	if cfg.Mock.Port != 7000 {
		t.Errorf("Mock.Port = %d, want 7000", cfg.Mock.Port)
	}
	if !cfg.Mock.Simulate.Enabled {
		t.Error("Mock.Simulate.Enabled = false, want true")
	}
	// Untouched by env.
	if cfg.Stream.Transport != TransportSSE {
		t.Errorf("Stream.Transport = %q, want default sse", cfg.Stream.Transport)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Fatal("Load() on missing file should return error")
	}
}

func TestLoadOrDefaultMissingFile(t *testing.T) {
	cfg, err := LoadOrDefault("/nonexistent/path/config.yaml")
	if err != nil {
		t.Fatalf("LoadOrDefault() error: %v", err)
	}
	if cfg.Backend.URL != "http://127.0.0.1:8000" {
		t.Errorf("Backend.URL = %q, want default", cfg.Backend.URL)
	}
	if cfg.Mock.TokenTTL != 24*time.Hour {
		t.Errorf("Mock.TokenTTL = %v, want 24h", cfg.Mock.TokenTTL)
	}
	if len(cfg.Mock.Users) == 0 {
		t.Error("default seed users missing")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeConfig(t, ":::not valid yaml")
	if _, err := Load(path); err == nil {
		t.Fatal("Load() with invalid YAML should return error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "bad scheme", mutate: func(c *Config) { c.Backend.URL = "ftp://host" }, wantErr: true},
		{name: "no host", mutate: func(c *Config) { c.Backend.URL = "http://" }, wantErr: true},
		{name: "bad transport", mutate: func(c *Config) { c.Stream.Transport = "longpoll" }, wantErr: true},
		{name: "negative idle", mutate: func(c *Config) { c.Stream.IdleTimeout = -time.Second }, wantErr: true},
		{name: "idle disabled", mutate: func(c *Config) { c.Stream.IdleTimeout = 0 }},
		{name: "zero poll", mutate: func(c *Config) { c.Mock.PollInterval = 0 }, wantErr: true},
		{name: "zero heartbeat", mutate: func(c *Config) { c.Mock.HeartbeatEvery = 0 }, wantErr: true},
		{name: "bad log level", mutate: func(c *Config) { c.Log.Level = "chatty" }, wantErr: true},
		{name: "debug log level", mutate: func(c *Config) { c.Log.Level = "debug" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestStreamURL(t *testing.T) {
	tests := []struct {
		base, transport, want string
	}{
		{"http://127.0.0.1:8000", TransportSSE, "http://127.0.0.1:8000/admin/events"},
		{"http://127.0.0.1:8000", TransportWebSocket, "ws://127.0.0.1:8000/admin/ws"},
		{"https://wsmd.example.com", TransportWebSocket, "wss://wsmd.example.com/admin/ws"},
	}
	for _, tt := range tests {
		cfg := defaultConfig()
		cfg.Backend.URL = tt.base
		cfg.Stream.Transport = tt.transport
		if got := cfg.StreamURL(); got != tt.want {
			t.Errorf("StreamURL(%s, %s) = %q, want %q", tt.base, tt.transport, got, tt.want)
		}
	}
}

func TestGenerateToken(t *testing.T) {
	tok, err := GenerateToken()
	if err != nil {
		t.Fatalf("GenerateToken() error: %v", err)
	}
	if len(tok) != 64 { // 32 bytes = 64 hex chars
		t.Errorf("token length = %d, want 64", len(tok))
	}

	tok2, _ := GenerateToken()
	if tok == tok2 {
		t.Error("two generated tokens should not be identical")
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	log, err := LogConfig{Level: "warn"}.NewLogger(&buf)
	if err != nil {
		t.Fatal(err)
	}
	log.Info("hidden")
	log.Warn("shown", "device", "AA:BB")
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "device=AA:BB") {
		t.Errorf("log output = %q", out)
	}

	if lvl, _ := (LogConfig{}).ParseLevel(); lvl != slog.LevelInfo {
		t.Errorf("empty level = %v, want info", lvl)
	}
}
