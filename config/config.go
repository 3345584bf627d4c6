// Package config provides configuration loading for the fxaccount CLI.
//
// Configuration is loaded from a single YAML file over built-in defaults.
// Command-line flags override individual values after loading.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Backend names accepted by Config.Backend.
const (
	BackendFile = "file"
	BackendBolt = "bolt"
)

const (
	DefaultAuthServerURL    = "https://api.accounts.firefox.com"
	DefaultAutopushEndpoint = "https://updates.push.services.mozilla.com"
)

// Config is the configuration for the fxaccount CLI.
type Config struct {
	// DataDir holds the account and push documents.
	DataDir string `yaml:"data_dir"`

	// AuthServerURL is the base URL of the accounts auth server.
	AuthServerURL string `yaml:"auth_server_url"`

	// AutopushEndpoint is the push server used when a profile is configured
	// without an explicit endpoint.
	AutopushEndpoint string `yaml:"autopush_endpoint"`

	// PushDebug selects the debug sender ID for new registrations.
	PushDebug bool `yaml:"push_debug"`

	SenderID      string `yaml:"sender_id"`
	DebugSenderID string `yaml:"debug_sender_id"`

	// CertificateDuration is the lifetime requested when signing a
	// certificate, as a Go duration string.
	CertificateDuration string `yaml:"certificate_duration"`

	// UAIDRefreshInterval is how long a push user agent ID is trusted before
	// it is re-registered.
	UAIDRefreshInterval string `yaml:"uaid_refresh_interval"`

	// Backend is "file" (one JSON document per store) or "bolt" (a single
	// bbolt database).
	Backend string `yaml:"backend"`

	// WrappingKeyFile, when set, names a file holding a hex AES-256 key used
	// to seal documents at rest.
	WrappingKeyFile string `yaml:"wrapping_key_file"`

	// WrappingPassphraseEnv, when set, names an environment variable holding
	// a passphrase the wrapping key is derived from. Exclusive with
	// WrappingKeyFile.
	WrappingPassphraseEnv string `yaml:"wrapping_passphrase_env"`

	LogLevel string `yaml:"log_level"`
}

// Default returns the default configuration.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()

	return &Config{
		DataDir:             filepath.Join(homeDir, ".local", "share", "fxaccount"),
		AuthServerURL:       DefaultAuthServerURL,
		AutopushEndpoint:    DefaultAutopushEndpoint,
		SenderID:            "fxaccount",
		DebugSenderID:       "fxaccount-debug",
		CertificateDuration: "12h",
		UAIDRefreshInterval: "168h",
		Backend:             BackendFile,
		LogLevel:            "info",
	}
}

// LoadFile loads configuration from path over the defaults. An empty path
// returns the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.DataDir = expandHome(cfg.DataDir)
	cfg.WrappingKeyFile = expandHome(cfg.WrappingKeyFile)
	return cfg, nil
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return os.ExpandEnv(p)
}

// Validate checks the configuration and returns every problem found.
func (c *Config) Validate() error {
	var errs []error

	if c.DataDir == "" {
		errs = append(errs, fmt.Errorf("data_dir is required"))
	}
	if err := validateURL(c.AuthServerURL); err != nil {
		errs = append(errs, fmt.Errorf("auth_server_url: %w", err))
	}
	if err := validateURL(c.AutopushEndpoint); err != nil {
		errs = append(errs, fmt.Errorf("autopush_endpoint: %w", err))
	}
	if c.SenderID == "" {
		errs = append(errs, fmt.Errorf("sender_id is required"))
	}
	if c.DebugSenderID == "" {
		errs = append(errs, fmt.Errorf("debug_sender_id is required"))
	}
	if _, err := positiveDuration(c.CertificateDuration); err != nil {
		errs = append(errs, fmt.Errorf("certificate_duration: %w", err))
	}
	if _, err := positiveDuration(c.UAIDRefreshInterval); err != nil {
		errs = append(errs, fmt.Errorf("uaid_refresh_interval: %w", err))
	}
	if c.Backend != BackendFile && c.Backend != BackendBolt {
		errs = append(errs, fmt.Errorf("backend must be one of: %s, %s", BackendFile, BackendBolt))
	}
	if c.WrappingKeyFile != "" && c.WrappingPassphraseEnv != "" {
		errs = append(errs, fmt.Errorf("wrapping_key_file and wrapping_passphrase_env are exclusive"))
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// CertificateTTL returns CertificateDuration parsed. Call Validate first.
func (c *Config) CertificateTTL() time.Duration {
	d, _ := positiveDuration(c.CertificateDuration)
	return d
}

// RefreshInterval returns UAIDRefreshInterval parsed. Call Validate first.
func (c *Config) RefreshInterval() time.Duration {
	d, _ := positiveDuration(c.UAIDRefreshInterval)
	return d
}

// SlogLevel returns LogLevel as a slog.Level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	l, err := parseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return l
}

// EnsureDataDir creates the data directory if it does not exist.
func (c *Config) EnsureDataDir() error {
	if err := os.MkdirAll(c.DataDir, 0o700); err != nil {
		return fmt.Errorf("creating data dir %s: %w", c.DataDir, err)
	}
	return nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host")
	}
	return nil
}

func positiveDuration(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("must be positive, got %s", s)
	}
	return d, nil
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log_level: %w", err)
	}
	return l, nil
}
