package config

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"time"

	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"
)

// Transport names accepted by stream.transport.
const (
	TransportSSE       = "sse"
	TransportWebSocket = "websocket"
)

type Config struct {
	Backend BackendConfig `yaml:"backend"`
	Stream  StreamConfig  `yaml:"stream"`
	Log     LogConfig     `yaml:"log"`
	Mock    MockConfig    `yaml:"mock"`
}

type BackendConfig struct {
	URL     string        `yaml:"url" env:"WSMD_BACKEND_URL,overwrite"`
	Timeout time.Duration `yaml:"timeout" env:"WSMD_BACKEND_TIMEOUT,overwrite"`
}

type StreamConfig struct {
	Transport string `yaml:"transport" env:"WSMD_STREAM_TRANSPORT,overwrite"`
	// IdleTimeout fails a connection that has been silent for this long.
	// The backend heartbeats every few seconds; zero disables the check.
	IdleTimeout time.Duration `yaml:"idle_timeout" env:"WSMD_STREAM_IDLE_TIMEOUT,overwrite"`
}

type LogConfig struct {
	File  string `yaml:"file" env:"WSMD_LOG_FILE,overwrite"`
	Level string `yaml:"level" env:"WSMD_LOG_LEVEL,overwrite"`
}

type MockConfig struct {
	Host      string        `yaml:"host" env:"WSMD_MOCK_HOST,overwrite"`
	Port      int           `yaml:"port" env:"WSMD_MOCK_PORT,overwrite"`
	JWTSecret string        `yaml:"jwt_secret" env:"WSMD_JWT_SECRET,overwrite"`
	TokenTTL  time.Duration `yaml:"token_ttl" env:"WSMD_TOKEN_TTL,overwrite"`
	// PollInterval is how often each stream connection checks for changes.
	PollInterval time.Duration `yaml:"poll_interval" env:"WSMD_POLL_INTERVAL,overwrite"`
	// HeartbeatEvery sends a heartbeat once per this many polls.
	HeartbeatEvery int `yaml:"heartbeat_every" env:"WSMD_HEARTBEAT_EVERY,overwrite"`
	// AllowedOrigins limits websocket upgrades. Empty allows same-host only.
	AllowedOrigins []string       `yaml:"allowed_origins"`
	Simulate       SimulateConfig `yaml:"simulate"`
	Users          []SeedUser     `yaml:"users"`
	Devices        []SeedDevice   `yaml:"devices"`
}

type SimulateConfig struct {
	Enabled  bool          `yaml:"enabled" env:"WSMD_SIMULATE,overwrite"`
	Interval time.Duration `yaml:"interval" env:"WSMD_SIMULATE_INTERVAL,overwrite"`
	Devices  int           `yaml:"devices"`
}

type SeedUser struct {
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	IsKeyUser bool   `yaml:"is_key_user"`
}

type SeedDevice struct {
	MACAddress string `yaml:"mac_address"`
	Name       string `yaml:"name"`
	MaxHits    int    `yaml:"max_hits"`
}

func defaultConfig() *Config {
	return &Config{
		Backend: BackendConfig{
			URL:     "http://127.0.0.1:8000",
			Timeout: 10 * time.Second,
		},
		Stream: StreamConfig{
			Transport:   TransportSSE,
			IdleTimeout: 45 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
		Mock: MockConfig{
			Host:           "127.0.0.1",
			Port:           8000,
			TokenTTL:       24 * time.Hour,
			PollInterval:   3 * time.Second,
			HeartbeatEvery: 5,
			Simulate: SimulateConfig{
				Interval: 2 * time.Second,
				Devices:  4,
			},
			Users: []SeedUser{
				{Username: "admin", Password: "admin", IsKeyUser: true},
				{Username: "operator", Password: "operator"},
			},
		},
	}
}

// Load reads the YAML file at path over the defaults, then applies
// environment overrides.
func Load(path string) (*Config, error) {
	return LoadWith(context.Background(), path, envconfig.OsLookuper())
}

// LoadOrDefault is Load, except that a missing file yields the defaults.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg = defaultConfig()
		if err := applyEnv(context.Background(), cfg, envconfig.OsLookuper()); err != nil {
			return nil, err
		}
		return cfg, cfg.Validate()
	}
	return cfg, err
}

// LoadWith is Load with an explicit environment source.
func LoadWith(ctx context.Context, path string, env envconfig.Lookuper) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := applyEnv(ctx, cfg, env); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(ctx context.Context, cfg *Config, env envconfig.Lookuper) error {
	if err := envconfig.ProcessWith(ctx, cfg, env); err != nil {
		return fmt.Errorf("environment: %w", err)
	}
	return nil
}

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Backend.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("backend.url %q: must be an http(s) URL", c.Backend.URL)
	}
	switch c.Stream.Transport {
	case TransportSSE, TransportWebSocket:
	default:
		return fmt.Errorf("stream.transport %q: must be %q or %q", c.Stream.Transport, TransportSSE, TransportWebSocket)
	}
	if c.Stream.IdleTimeout < 0 {
		return fmt.Errorf("stream.idle_timeout must not be negative")
	}
	if c.Mock.PollInterval <= 0 {
		return fmt.Errorf("mock.poll_interval must be positive")
	}
	if _, err := c.Log.ParseLevel(); err != nil {
		return err
	}
	if c.Mock.HeartbeatEvery < 1 {
		return fmt.Errorf("mock.heartbeat_every must be at least 1")
	}
	return nil
}

// ParseLevel parses Level. Empty means info.
func (l LogConfig) ParseLevel() (slog.Level, error) {
	var lvl slog.Level
	if l.Level == "" {
		return slog.LevelInfo, nil
	}
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("log.level %q: %w", l.Level, err)
	}
	return lvl, nil
}

// NewLogger builds a text logger writing to w at the configured level.
func (l LogConfig) NewLogger(w io.Writer) (*slog.Logger, error) {
	lvl, err := l.ParseLevel()
	if err != nil {
		return nil, err
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})), nil
}

// StreamURL returns the push endpoint for the configured transport.
func (c *Config) StreamURL() string {
	u, _ := url.Parse(c.Backend.URL)
	if c.Stream.Transport == TransportWebSocket {
		if u.Scheme == "https" {
			u.Scheme = "wss"
		} else {
			u.Scheme = "ws"
		}
		u.Path = "/admin/ws"
		return u.String()
	}
	u.Path = "/admin/events"
	return u.String()
}

// GenerateToken returns a random hex string, used as the mock backend's
// signing secret when none is configured.
func GenerateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
