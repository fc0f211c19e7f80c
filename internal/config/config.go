package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"
)

const (
	// ConfigFileName is the name of the configuration file.
	ConfigFileName = "palantir.json"

	// DefaultServer is the default server endpoint.
	DefaultServer = "wss://palantir.example.com/ws"

	// DefaultKeepalive is the default keepalive interval.
	DefaultKeepalive = "10s"

	// DefaultAckTimeout is the default room operation ack window.
	DefaultAckTimeout = "1s"
)

// Config represents the complete palantir.json configuration.
type Config struct {
	// Server is the websocket endpoint (ws:// or wss://).
	Server string `json:"server,omitempty"`

	// Username is the display name sent during login.
	Username string `json:"username,omitempty"`

	// APIKey authenticates the login. Optional; omitted from the login
	// message when empty.
	APIKey string `json:"apiKey,omitempty"`

	// Keepalive is the liveness interval as a duration string (e.g. "10s").
	Keepalive string `json:"keepalive,omitempty"`

	// AckTimeout is the room operation acknowledgment window (e.g. "1s").
	AckTimeout string `json:"ackTimeout,omitempty"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `json:"logLevel,omitempty"`

	// Metrics contains the metrics endpoint configuration.
	Metrics MetricsConfig `json:"metrics,omitempty"`

	// configPath stores the path where the config was loaded from.
	configPath string
}

// MetricsConfig configures the local metrics listener.
type MetricsConfig struct {
	// Enabled controls whether the listener is started.
	Enabled bool `json:"enabled,omitempty"`

	// Addr is the listen address (default: "localhost:9189").
	Addr string `json:"addr,omitempty"`
}

// New creates a new Config with default values.
func New() *Config {
	return &Config{
		Server:     DefaultServer,
		Keepalive:  DefaultKeepalive,
		AckTimeout: DefaultAckTimeout,
		LogLevel:   "info",
		Metrics: MetricsConfig{
			Addr: "localhost:9189",
		},
	}
}

// Load reads configuration from the specified directory.
// It looks for palantir.json in the directory.
func Load(dir string) (*Config, error) {
	return LoadFile(filepath.Join(dir, ConfigFileName))
}

// LoadFile reads configuration from the specified file path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no %s found in %s", ConfigFileName, filepath.Dir(path))
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := New()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", ConfigFileName, err)
	}

	cfg.configPath = path
	cfg.applyDefaults()

	return cfg, nil
}

// Save writes the configuration to the file it was loaded from.
func (c *Config) Save() error {
	if c.configPath == "" {
		return fmt.Errorf("no config path set")
	}
	return c.SaveTo(c.configPath)
}

// SaveTo writes the configuration to the specified path.
func (c *Config) SaveTo(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	c.configPath = path
	return nil
}

// Path returns the path where the config was loaded from.
func (c *Config) Path() string {
	return c.configPath
}

// applyDefaults fills in default values for empty fields.
func (c *Config) applyDefaults() {
	if c.Server == "" {
		c.Server = DefaultServer
	}
	if c.Keepalive == "" {
		c.Keepalive = DefaultKeepalive
	}
	if c.AckTimeout == "" {
		c.AckTimeout = DefaultAckTimeout
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = "localhost:9189"
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Server)
	if err != nil {
		return fmt.Errorf("invalid server url %q: %w", c.Server, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("server url %q: scheme must be ws or wss", c.Server)
	}
	if c.Username == "" {
		return fmt.Errorf("username is required")
	}
	if _, err := time.ParseDuration(c.Keepalive); err != nil {
		return fmt.Errorf("invalid keepalive %q: %w", c.Keepalive, err)
	}
	if _, err := time.ParseDuration(c.AckTimeout); err != nil {
		return fmt.Errorf("invalid ackTimeout %q: %w", c.AckTimeout, err)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logLevel %q", c.LogLevel)
	}
	return nil
}

// KeepaliveInterval returns Keepalive parsed as a duration. Call Validate
// first; invalid values fall back to the default.
func (c *Config) KeepaliveInterval() time.Duration {
	d, err := time.ParseDuration(c.Keepalive)
	if err != nil || d <= 0 {
		d, _ = time.ParseDuration(DefaultKeepalive)
	}
	return d
}

// AckWindow returns AckTimeout parsed as a duration, falling back to the
// default for invalid values.
func (c *Config) AckWindow() time.Duration {
	d, err := time.ParseDuration(c.AckTimeout)
	if err != nil || d <= 0 {
		d, _ = time.ParseDuration(DefaultAckTimeout)
	}
	return d
}

// Exists checks if a config file exists in the given directory.
func Exists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ConfigFileName))
	return err == nil
}

// FindConfig looks for palantir.json in the given directory, then in the
// user's config directory. Returns the file path, or an error if neither
// location has one.
func FindConfig(startDir string) (string, error) {
	if Exists(startDir) {
		return filepath.Join(startDir, ConfigFileName), nil
	}
	if home, err := os.UserConfigDir(); err == nil {
		path := filepath.Join(home, "palantir", ConfigFileName)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("no %s found in %s or the user config directory", ConfigFileName, startDir)
}
