// Package config loads the browser server configuration from a YAML file,
// environment variables and defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/entrhq/commonplayer/pkg/logging"
)

// Backend names a browser automation backend.
type Backend string

const (
	// BackendPlaywright drives chromium, firefox or webkit through Playwright.
	BackendPlaywright Backend = "playwright"
	// BackendRod drives chrome over the DevTools protocol with go-rod.
	BackendRod Backend = "rod"
)

// Environment variables that override file values.
const (
	EnvSocket   = "COMMONPLAYER_SOCKET"
	EnvBackend  = "COMMONPLAYER_BACKEND"
	EnvHeadless = "COMMONPLAYER_HEADLESS"
)

// Config is the complete server configuration.
type Config struct {
	// SocketPath is where the server listens
	SocketPath string `yaml:"socket_path"`

	// Browser settings
	Backend      Backend  `yaml:"backend"`
	Browser      string   `yaml:"browser"`
	Headless     bool     `yaml:"headless"`
	Extensions   []string `yaml:"extensions"`
	BrowserBin   string   `yaml:"browser_bin"`   // rod only
	BrowserFlags []string `yaml:"browser_flags"` // rod only

	// InstallDriver downloads Playwright and its browser before first use
	InstallDriver bool `yaml:"install_driver"`

	// Timeouts
	NavigationTimeout time.Duration `yaml:"navigation_timeout"`
	ComponentTimeout  time.Duration `yaml:"component_timeout"`
	ConsentTimeout    time.Duration `yaml:"consent_timeout"`
	IdleTimeout       time.Duration `yaml:"idle_timeout"`

	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig defines logging configuration
type LoggingConfig struct {
	// Level is one of debug, info, warn or error
	Level string `yaml:"level"`
	// Dir holds session log files; empty means ~/.commonplayer/logs
	Dir string `yaml:"dir"`
	// Stderr logs to standard error instead of a file
	Stderr bool `yaml:"stderr"`
}

// DefaultSocketPath returns the socket path used when none is configured.
func DefaultSocketPath() string {
	return filepath.Join(os.TempDir(), "commonplayer", "browser.sock")
}

// Default returns a configuration suitable for most use cases.
func Default() *Config {
	return &Config{
		SocketPath:        DefaultSocketPath(),
		Backend:           BackendPlaywright,
		Browser:           "chromium",
		NavigationTimeout: 30 * time.Second,
		ComponentTimeout:  5 * time.Second,
		ConsentTimeout:    10 * time.Second,
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads the YAML file at path over the defaults. An empty path
// returns the defaults. Relative extension paths are resolved against the
// file's directory.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	base := filepath.Dir(path)
	for i, ext := range cfg.Extensions {
		cfg.Extensions[i] = resolvePath(base, ext)
	}
	return cfg, nil
}

func resolvePath(base, p string) string {
	if strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, p[2:])
		}
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

// ApplyEnv overrides fields from environment variables found by lookup,
// normally os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvSocket); ok && v != "" {
		c.SocketPath = v
	}
	if v, ok := lookup(EnvBackend); ok && v != "" {
		c.Backend = Backend(strings.ToLower(v))
	}
	if v, ok := lookup(EnvHeadless); ok && v != "" {
		headless, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvHeadless, err)
		}
		c.Headless = headless
	}
	return nil
}

// Validate validates the configuration and reports the first invalid field.
func (c *Config) Validate() error {
	if c.SocketPath == "" {
		return fmt.Errorf("socket_path is required")
	}

	switch c.Backend {
	case BackendPlaywright:
		switch c.Browser {
		case "chromium", "firefox", "webkit":
		default:
			return fmt.Errorf("invalid browser: %s (must be 'chromium', 'firefox' or 'webkit')", c.Browser)
		}
		if c.Browser != "chromium" && len(c.Extensions) > 0 {
			return fmt.Errorf("extensions require the chromium browser")
		}
	case BackendRod:
		if c.Browser != "" && c.Browser != "chromium" {
			return fmt.Errorf("invalid browser: %s (rod backend only drives chromium)", c.Browser)
		}
		if c.InstallDriver {
			return fmt.Errorf("install_driver only applies to the playwright backend")
		}
	default:
		return fmt.Errorf("invalid backend: %s (must be 'playwright' or 'rod')", c.Backend)
	}

	durations := []struct {
		name  string
		value time.Duration
	}{
		{"navigation_timeout", c.NavigationTimeout},
		{"component_timeout", c.ComponentTimeout},
		{"consent_timeout", c.ConsentTimeout},
		{"idle_timeout", c.IdleTimeout},
	}
	for _, d := range durations {
		if d.value < 0 {
			return fmt.Errorf("%s cannot be negative", d.name)
		}
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("invalid logging level: %s (must be 'debug', 'info', 'warn' or 'error')", c.Logging.Level)
	}

	return nil
}
