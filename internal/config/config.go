// Package config loads and validates the trailsync YAML configuration.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultRequestTimeout = 30 * time.Second
	defaultPollInterval   = 15 * time.Minute
	defaultImagesFolder   = "mhike_observations"
	defaultRetryAttempts  = 1
	maxRetryAttempts      = 5
)

// Config holds the full application configuration loaded from YAML.
type Config struct {
	// APIURL is the base URL of the remote hike service.
	APIURL string `yaml:"api_url"`

	// UserID identifies the account that owns uploaded records.
	UserID string `yaml:"user_id"`

	// Token is the bearer token for the remote service. It may be left empty
	// and supplied through the TRAILSYNC_TOKEN environment variable instead.
	Token string `yaml:"token,omitempty"`

	// DBPath is the SQLite database file. Empty means the store default.
	DBPath string `yaml:"db_path,omitempty"`

	// ImagesDir receives downloaded observation images.
	// Defaults to ~/.local/share/trailsync/images.
	ImagesDir string `yaml:"images_dir,omitempty"`

	// RequestTimeout bounds each remote call. 1s to 5m, default 30s.
	RequestTimeout time.Duration `yaml:"request_timeout,omitempty"`

	// RetryAttempts is how often an idempotent remote call (list, update,
	// delete) is tried within one run. 1 to 5, default 1. Creates are never
	// retried.
	RetryAttempts int `yaml:"retry_attempts,omitempty"`

	// PollInterval is how often the daemon syncs. 1m to 24h, default 15m.
	PollInterval time.Duration `yaml:"poll_interval,omitempty"`

	// Images configures the object store used for observation images.
	Images ImagesConfig `yaml:"images"`

	// Telemetry configures optional OpenTelemetry export via OTLP gRPC.
	// Omit the block entirely to disable telemetry.
	Telemetry *TelemetryConfig `yaml:"telemetry,omitempty"`
}

// ImagesConfig describes the unsigned upload endpoint of the object store.
type ImagesConfig struct {
	UploadURL    string `yaml:"upload_url"`
	UploadPreset string `yaml:"upload_preset,omitempty"`
	Folder       string `yaml:"folder,omitempty"`
}

// TelemetryConfig holds optional OpenTelemetry settings.
type TelemetryConfig struct {
	// OTLPEndpoint is the gRPC host:port of the OTLP collector (e.g. "localhost:4317").
	OTLPEndpoint string `yaml:"otlp_endpoint"`

	// Insecure disables TLS for the collector connection. Use for local collectors.
	Insecure bool `yaml:"insecure,omitempty"`

	// ServiceName overrides the OTel service.name attribute. Defaults to "trailsync".
	ServiceName string `yaml:"service_name,omitempty"`

	// Headers are sent as gRPC metadata on every OTLP request, e.g.
	//   Authorization: "Bearer <token>"
	Headers map[string]string `yaml:"headers,omitempty"`
}

// DefaultPath returns the default config file path: ~/.config/trailsync/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".config", "trailsync", "config.yaml"), nil
}

// DefaultImagesDir returns ~/.local/share/trailsync/images.
func DefaultImagesDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "trailsync", "images"), nil
}

// Load reads and validates the configuration file at the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening config file %q: %w", path, err)
	}
	defer f.Close()

	var cfg Config
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true) // reject unknown keys to catch typos early
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %q: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// Write validates c and saves it to path with owner-only permissions,
// creating parent directories as needed.
func (c *Config) Write(path string) error {
	if err := c.validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config file %q: %w", path, err)
	}
	return nil
}

// validate checks required fields and fills in defaults.
func (c *Config) validate() error {
	if err := checkURL("api_url", c.APIURL); err != nil {
		return err
	}
	if strings.TrimSpace(c.UserID) == "" {
		return fmt.Errorf("user_id is required")
	}

	if c.RequestTimeout == 0 {
		c.RequestTimeout = defaultRequestTimeout
	}
	if c.RequestTimeout < time.Second || c.RequestTimeout > 5*time.Minute {
		return fmt.Errorf("request_timeout %v is out of range (1s to 5m)", c.RequestTimeout)
	}

	if c.RetryAttempts == 0 {
		c.RetryAttempts = defaultRetryAttempts
	}
	if c.RetryAttempts < 1 || c.RetryAttempts > maxRetryAttempts {
		return fmt.Errorf("retry_attempts %d is out of range (1 to %d)", c.RetryAttempts, maxRetryAttempts)
	}

	if c.PollInterval == 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.PollInterval < time.Minute {
		return fmt.Errorf("poll_interval %v is too short (minimum 1m)", c.PollInterval)
	}
	if c.PollInterval > 24*time.Hour {
		return fmt.Errorf("poll_interval %v is too long (maximum 24h)", c.PollInterval)
	}

	if err := checkURL("images.upload_url", c.Images.UploadURL); err != nil {
		return err
	}
	if c.Images.Folder == "" {
		c.Images.Folder = defaultImagesFolder
	}

	var err error
	if c.DBPath, err = expandHome(c.DBPath); err != nil {
		return err
	}
	if c.ImagesDir == "" {
		if c.ImagesDir, err = DefaultImagesDir(); err != nil {
			return err
		}
	} else if c.ImagesDir, err = expandHome(c.ImagesDir); err != nil {
		return err
	}

	if c.Telemetry != nil {
		if c.Telemetry.OTLPEndpoint == "" {
			return fmt.Errorf("telemetry.otlp_endpoint is required when telemetry is configured")
		}
	}

	return nil
}

func checkURL(key, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", key)
	}
	u, err := url.ParseRequestURI(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s %q must be a valid http or https URL", key, raw)
	}
	return nil
}

// expandHome replaces a leading "~/" with the user's home directory.
func expandHome(p string) (string, error) {
	if !strings.HasPrefix(p, "~/") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, p[2:]), nil
}
