// Package config loads pagecov configuration: defaults, an optional YAML
// file, then PAGECOV_* environment overrides, in that precedence order.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full pagecov configuration.
type Config struct {
	Browser BrowserConfig `yaml:"browser"`
	Scripts ScriptConfig  `yaml:"scripts"`
	Styles  StyleConfig   `yaml:"styles"`
	Report  ReportConfig  `yaml:"report"`
	Debug   DebugConfig   `yaml:"debug"`
}

// BrowserConfig locates the monitored browser.
type BrowserConfig struct {
	// Endpoint is the DevTools HTTP endpoint used for target discovery,
	// e.g. http://127.0.0.1:9222. Ignored when WebSocketURL is set.
	Endpoint string `yaml:"endpoint"`

	// WebSocketURL is an explicit page-target websocket URL.
	WebSocketURL string `yaml:"websocket_url"`

	// DialTimeout bounds connection establishment.
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

// UnmarshalYAML accepts dial_timeout in time.ParseDuration notation ("10s")
// while leaving absent keys at their defaults.
func (b *BrowserConfig) UnmarshalYAML(value *yaml.Node) error {
	type raw struct {
		Endpoint     *string `yaml:"endpoint"`
		WebSocketURL *string `yaml:"websocket_url"`
		DialTimeout  *string `yaml:"dial_timeout"`
	}
	var r raw
	if err := value.Decode(&r); err != nil {
		return err
	}
	if r.Endpoint != nil {
		b.Endpoint = *r.Endpoint
	}
	if r.WebSocketURL != nil {
		b.WebSocketURL = *r.WebSocketURL
	}
	if r.DialTimeout != nil {
		d, err := time.ParseDuration(*r.DialTimeout)
		if err != nil {
			return fmt.Errorf("invalid dial_timeout: %w", err)
		}
		b.DialTimeout = d
	}
	return nil
}

// ScriptConfig mirrors coverage.ScriptOptions.
type ScriptConfig struct {
	ResetOnNavigation bool `yaml:"reset_on_navigation"`
	ReportAnonymous   bool `yaml:"report_anonymous"`
}

// StyleConfig mirrors coverage.StyleOptions.
type StyleConfig struct {
	ResetOnNavigation bool `yaml:"reset_on_navigation"`
}

// ReportConfig controls where and how the coverage report is written.
type ReportConfig struct {
	// Path is the output file; "-" or empty writes to stdout.
	Path string `yaml:"path"`

	Pretty bool `yaml:"pretty"`
}

// DebugConfig configures the optional debug HTTP server.
type DebugConfig struct {
	// Addr enables the server when non-empty, e.g. 127.0.0.1:6060.
	Addr string `yaml:"addr"`
}

// DefaultConfig returns the recommended defaults.
func DefaultConfig() *Config {
	return &Config{
		Browser: BrowserConfig{
			Endpoint:    "http://127.0.0.1:9222",
			DialTimeout: 10 * time.Second,
		},
		Scripts: ScriptConfig{
			ResetOnNavigation: true,
		},
		Styles: StyleConfig{
			ResetOnNavigation: true,
		},
		Report: ReportConfig{
			Path: "-",
		},
	}
}

// Load builds a Config from defaults, an optional file at path, and
// environment overrides. An empty path skips the file layer.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		if err := loadAndMerge(cfg, path); err != nil {
			return nil, fmt.Errorf("loading config from %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

func loadAndMerge(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PAGECOV_ENDPOINT"); v != "" {
		cfg.Browser.Endpoint = v
	}
	if v := os.Getenv("PAGECOV_WEBSOCKET_URL"); v != "" {
		cfg.Browser.WebSocketURL = v
	}
	if v := os.Getenv("PAGECOV_REPORT_PATH"); v != "" {
		cfg.Report.Path = v
	}
	if v := os.Getenv("PAGECOV_DEBUG_ADDR"); v != "" {
		cfg.Debug.Addr = v
	}
	if v, ok := envBool("PAGECOV_REPORT_ANONYMOUS"); ok {
		cfg.Scripts.ReportAnonymous = v
	}
	if v, ok := envBool("PAGECOV_RESET_ON_NAVIGATION"); ok {
		cfg.Scripts.ResetOnNavigation = v
		cfg.Styles.ResetOnNavigation = v
	}
}

func envBool(name string) (bool, bool) {
	v := os.Getenv(name)
	if v == "" {
		return false, false
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return false, false
	}
	return parsed, true
}

// Validate checks the configuration for usability.
func (c *Config) Validate() error {
	if c.Browser.WebSocketURL == "" && c.Browser.Endpoint == "" {
		return fmt.Errorf("browser endpoint or websocket_url is required")
	}
	if c.Browser.WebSocketURL != "" {
		u, err := url.Parse(c.Browser.WebSocketURL)
		if err != nil {
			return fmt.Errorf("invalid websocket_url: %w", err)
		}
		if u.Scheme != "ws" && u.Scheme != "wss" {
			return fmt.Errorf("websocket_url must use ws or wss scheme, got %q", u.Scheme)
		}
	}
	if c.Browser.Endpoint != "" {
		u, err := url.Parse(c.Browser.Endpoint)
		if err != nil {
			return fmt.Errorf("invalid endpoint: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("endpoint must use http or https scheme, got %q", u.Scheme)
		}
	}
	if c.Browser.DialTimeout < 0 {
		return fmt.Errorf("dial_timeout must not be negative")
	}
	return nil
}
