// Package config loads qpanel settings from YAML with environment overrides.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Console variants.
const (
	VariantQpackt = "qpackt"
	VariantVaden  = "vaden"
)

// Environment variables consulted by Load.
const (
	EnvServer   = "QPANEL_SERVER"
	EnvPassword = "QPANEL_PASSWORD"
	EnvVariant  = "QPANEL_VARIANT"
	EnvLogLevel = "QPANEL_LOG_LEVEL"
)

// Config holds all qpanel configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Variant string        `yaml:"variant"` // qpackt or vaden
	Auth    AuthConfig    `yaml:"auth"`
	Logging LoggingConfig `yaml:"logging"`
	Beacon  BeaconConfig  `yaml:"beacon"`
	Export  ExportConfig  `yaml:"export"`
}

// ServerConfig locates the panel API.
type ServerConfig struct {
	BaseURL string `yaml:"base_url"`
	Timeout string `yaml:"timeout"` // per request
}

// AuthConfig configures the login flow used by the navigation guard.
type AuthConfig struct {
	// Password is exchanged for a token. Empty means the console asks for it.
	Password     string `yaml:"password,omitempty"`
	LoginTimeout string `yaml:"login_timeout"`
	// Speculative enables background logins while browsing public views.
	Speculative bool `yaml:"speculative"`
}

// BeaconConfig configures analytics event delivery.
type BeaconConfig struct {
	Endpoint string `yaml:"endpoint"` // path on the server, or an absolute URL
	Cookie   string `yaml:"cookie"`   // cookie carrying the served version
	Timeout  string `yaml:"timeout"`
}

// ExportConfig configures file exports.
type ExportConfig struct {
	Dir string `yaml:"dir"` // where CSV exports are written
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			BaseURL: "http://localhost:9443",
			Timeout: "15s",
		},
		Variant: VariantQpackt,
		Auth: AuthConfig{
			LoginTimeout: "30s",
			Speculative:  true,
		},
		Logging: LoggingConfig{
			Level:  "warn",
			Format: "json",
		},
		Beacon: BeaconConfig{
			Endpoint: "/qpackt/event",
			Cookie:   "QPACKT_VERSION",
			Timeout:  "5s",
		},
		Export: ExportConfig{
			Dir: ".",
		},
	}
}

// DefaultPath returns the per-user config location.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "qpanel.yaml"
	}
	return filepath.Join(dir, "qpanel", "config.yaml")
}

// Load loads configuration from a YAML file. A missing file yields defaults.
// Environment overrides apply in both cases.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// the file may hold the panel password
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(EnvServer); v != "" {
		c.Server.BaseURL = v
	}
	if v := os.Getenv(EnvPassword); v != "" {
		c.Auth.Password = v
	}
	if v := os.Getenv(EnvVariant); v != "" {
		c.Variant = strings.ToLower(v)
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks the fields the console cannot run without.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Server.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid server base_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return fmt.Errorf("invalid server base_url %q: need an absolute http(s) URL", c.Server.BaseURL)
	}
	switch c.Variant {
	case VariantQpackt, VariantVaden:
	default:
		return fmt.Errorf("invalid variant %q (valid: %s, %s)", c.Variant, VariantQpackt, VariantVaden)
	}
	return nil
}

// IsVaden reports whether the console runs against the deployment engine.
func (c *Config) IsVaden() bool {
	return c.Variant == VariantVaden
}

// GetRequestTimeout returns the per request timeout as a duration.
func (c *Config) GetRequestTimeout() time.Duration {
	return parseDuration(c.Server.Timeout, 15*time.Second)
}

// GetLoginTimeout returns the login flow timeout as a duration.
func (c *Config) GetLoginTimeout() time.Duration {
	return parseDuration(c.Auth.LoginTimeout, 30*time.Second)
}

// GetBeaconTimeout returns the beacon delivery timeout as a duration.
func (c *Config) GetBeaconTimeout() time.Duration {
	return parseDuration(c.Beacon.Timeout, 5*time.Second)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
