package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Stream.Transport != TransportSSE {
		t.Errorf("Transport = %q, want %q", cfg.Stream.Transport, TransportSSE)
	}
	if !cfg.Stream.AutoReconnect || !cfg.Stream.InitialState {
		t.Errorf("defaults = %+v, want reconnect and initial state on", cfg.Stream)
	}
	if cfg.Stream.BaseDelay != time.Second || cfg.Stream.StuckWindow != 5*time.Second {
		t.Errorf("delays = %v/%v, want 1s/5s", cfg.Stream.BaseDelay, cfg.Stream.StuckWindow)
	}
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
backend:
  url: https://staging.dealdesk.io
stream:
  transport: ws
  auto_reconnect: false
  base_delay: 250ms
  stuck_attempts: 1
  stuck_window: 30s
relay:
  nats_url: nats://localhost:4222
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Stream.Transport != TransportWebSocket {
		t.Errorf("Transport = %q, want ws", cfg.Stream.Transport)
	}
	if cfg.Stream.AutoReconnect {
		t.Error("AutoReconnect = true, want false")
	}
	if !cfg.Stream.InitialState {
		t.Error("InitialState should keep its default")
	}

	p := cfg.Stream.ReconnectPolicy()
	if p.BaseDelay != 250*time.Millisecond || p.MaxAttempts != 5 || p.StuckAttempts != 1 || p.StuckWindow != 30*time.Second {
		t.Errorf("ReconnectPolicy() = %+v", p)
	}
	if cfg.Relay.NATSURL != "nats://localhost:4222" || cfg.Relay.SubjectPrefix != "dealstream.jobs" {
		t.Errorf("Relay = %+v", cfg.Relay)
	}

	t.Setenv(EnvBackendURL, "")
	if got := cfg.BackendURL(false); got != "https://staging.dealdesk.io" {
		t.Errorf("BackendURL(false) = %q", got)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad yaml", "stream: [unclosed"},
		{"bad transport", "stream:\n  transport: carrier-pigeon\n"},
		{"negative attempts", "stream:\n  max_attempts: -1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0600); err != nil {
				t.Fatal(err)
			}
			if _, err := Load(path); err == nil {
				t.Errorf("Load(%q) expected error", tt.content)
			}
		})
	}
}

func TestWrite_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Default()
	cfg.Stream.MaxAttempts = 9
	cfg.Stream.BaseDelay = 2 * time.Second

	if err := Write(path, cfg); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Stream.MaxAttempts != 9 || got.Stream.BaseDelay != 2*time.Second {
		t.Errorf("round trip = %+v", got.Stream)
	}
}

func TestGetBackendURL(t *testing.T) {
	t.Setenv(EnvBackendURL, "")
	if got := GetBackendURL(false); got != ProdBackendURL {
		t.Errorf("GetBackendURL(false) = %q, want %q", got, ProdBackendURL)
	}

	t.Setenv(EnvBackendPort, "9123")
	if got := GetBackendURL(true); got != "http://localhost:9123" {
		t.Errorf("GetBackendURL(true) = %q, want http://localhost:9123", got)
	}

	t.Setenv(EnvBackendURL, "http://example.test/")
	if got := GetBackendURL(true); got != "http://example.test" {
		t.Errorf("GetBackendURL with override = %q", got)
	}
}

func TestWebSocketURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"https://api.dealdesk.io", "wss://api.dealdesk.io"},
		{"http://localhost:8000", "ws://localhost:8000"},
		{"ws://already", "ws://already"},
	}
	for _, tt := range tests {
		if got := WebSocketURL(tt.in); got != tt.want {
			t.Errorf("WebSocketURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("DEALSTREAM_TEST_VALUE=from-file\nDEALSTREAM_TEST_KEEP=from-file\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("DEALSTREAM_TEST_VALUE", "")
	os.Unsetenv("DEALSTREAM_TEST_VALUE")
	t.Setenv("DEALSTREAM_TEST_KEEP", "from-env")

	if err := LoadDotEnv(path, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("LoadDotEnv() error = %v", err)
	}
	if got := os.Getenv("DEALSTREAM_TEST_VALUE"); got != "from-file" {
		t.Errorf("DEALSTREAM_TEST_VALUE = %q, want from-file", got)
	}
	if got := os.Getenv("DEALSTREAM_TEST_KEEP"); got != "from-env" {
		t.Errorf("DEALSTREAM_TEST_KEEP = %q, want from-env", got)
	}
}
