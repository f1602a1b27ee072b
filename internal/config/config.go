package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/dealdesk/dealstream/internal/errors"
	"github.com/dealdesk/dealstream/internal/jobstream"
)

// Transport names accepted in the stream section.
const (
	TransportSSE       = "sse"
	TransportWebSocket = "ws"
)

// Config represents ~/.dealstream/config.yaml.
type Config struct {
	// Backend selects the API server.
	Backend BackendConfig `yaml:"backend,omitempty"`

	// Stream tunes job progress streams.
	Stream StreamConfig `yaml:"stream"`

	// Relay optionally republishes stream events to NATS.
	Relay RelayConfig `yaml:"relay,omitempty"`
}

// BackendConfig contains backend connection settings.
type BackendConfig struct {
	// URL overrides the production backend. Empty means the default.
	URL string `yaml:"url,omitempty"`
}

// StreamConfig contains job stream settings.
type StreamConfig struct {
	// Transport is "sse" (default) or "ws".
	Transport string `yaml:"transport"`

	// AutoReconnect re-establishes dropped streams.
	AutoReconnect bool `yaml:"auto_reconnect"`

	// InitialState reconciles with the status endpoint before streaming.
	InitialState bool `yaml:"initial_state"`

	// BaseDelay is the first reconnect delay; it doubles per attempt.
	BaseDelay time.Duration `yaml:"base_delay"`

	// MaxAttempts caps reconnects for a job that is making progress.
	MaxAttempts int `yaml:"max_attempts"`

	// StuckAttempts caps reconnects for a job with no recent progress.
	StuckAttempts int `yaml:"stuck_attempts"`

	// StuckWindow is how recent progress must be for MaxAttempts to apply.
	StuckWindow time.Duration `yaml:"stuck_window"`
}

// RelayConfig contains NATS relay settings.
type RelayConfig struct {
	// NATSURL enables the relay when set.
	NATSURL string `yaml:"nats_url,omitempty"`

	// SubjectPrefix is prepended to every published subject.
	SubjectPrefix string `yaml:"subject_prefix,omitempty"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	p := jobstream.DefaultReconnectPolicy()
	return &Config{
		Stream: StreamConfig{
			Transport:     TransportSSE,
			AutoReconnect: true,
			InitialState:  true,
			BaseDelay:     p.BaseDelay,
			MaxAttempts:   p.MaxAttempts,
			StuckAttempts: p.StuckAttempts,
			StuckWindow:   p.StuckWindow,
		},
		Relay: RelayConfig{
			SubjectPrefix: "dealstream.jobs",
		},
	}
}

// ReconnectPolicy returns the stream section as a jobstream policy.
func (c StreamConfig) ReconnectPolicy() jobstream.ReconnectPolicy {
	return jobstream.ReconnectPolicy{
		BaseDelay:     c.BaseDelay,
		MaxAttempts:   c.MaxAttempts,
		StuckAttempts: c.StuckAttempts,
		StuckWindow:   c.StuckWindow,
	}
}

// Validate checks values that cannot be defaulted.
func (c *Config) Validate() error {
	switch c.Stream.Transport {
	case TransportSSE, TransportWebSocket:
	default:
		return errors.Newf("stream.transport must be %q or %q, got %q", TransportSSE, TransportWebSocket, c.Stream.Transport)
	}
	if c.Stream.BaseDelay < 0 || c.Stream.StuckWindow < 0 {
		return errors.New("stream delays must not be negative")
	}
	if c.Stream.MaxAttempts < 0 || c.Stream.StuckAttempts < 0 {
		return errors.New("stream attempt caps must not be negative")
	}
	return nil
}

// BackendURL resolves the backend: env override, then the file, then the
// dev/prod default.
func (c *Config) BackendURL(devMode bool) string {
	if os.Getenv(EnvBackendURL) == "" && c.Backend.URL != "" && !devMode {
		return c.Backend.URL
	}
	return GetBackendURL(devMode)
}

// DefaultPath returns ~/.dealstream/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "failed to get home directory")
	}
	return filepath.Join(home, ".dealstream", "config.yaml"), nil
}

// Load reads the config file at path over the defaults. A missing file is
// not an error.
//
// Parameters:
//   - path: Path to the YAML file
//
// Returns:
//   - *Config: The merged configuration
//   - error: Any read, parse or validation error
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, errors.Wrap(err, "failed to read config file")
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid config file %s", path)
	}
	return cfg, nil
}

// Write saves cfg to path, creating the directory if needed.
func Write(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return errors.Wrap(err, "failed to create config directory")
	}

	header := "# dealstream configuration\n\n"
	if err := os.WriteFile(path, []byte(header+string(data)), 0600); err != nil {
		return errors.Wrap(err, "failed to write config file")
	}
	return nil
}

// Marshal renders cfg as YAML.
func Marshal(cfg *Config) ([]byte, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal config")
	}
	return data, nil
}

// LoadDotEnv loads .env files into the process environment without
// overriding variables that are already set. Missing files are skipped.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	var existing []string
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return errors.Wrap(err, "failed to load .env")
	}
	return nil
}
