// Package config loads civicfetch settings from a YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pevans/civicfetch/browser/chrome"
	"github.com/pevans/civicfetch/download"
	"github.com/pevans/civicfetch/portal"
)

// Backend names accepted in browser.backend.
const (
	BackendChrome = "chromedp"
	BackendStatic = "static"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CIVICFETCH_"

// PortalConfig points the scraper at a CivicClerk tenant.
type PortalConfig struct {
	BaseURL    string           `yaml:"base_url"`
	APIBaseURL string           `yaml:"api_base_url"`
	Selectors  portal.Selectors `yaml:"selectors"`
}

// BrowserConfig selects and tunes the browser backend.
type BrowserConfig struct {
	Backend     string `yaml:"backend"`
	Headless    bool   `yaml:"headless"`
	ExecPath    string `yaml:"exec_path"`
	UserAgent   string `yaml:"user_agent"`
	Locale      string `yaml:"locale"`
	Timezone    string `yaml:"timezone"`
	SnapshotDir string `yaml:"snapshot_dir"` // static backend only
}

// DownloadConfig controls where files land and how long a fetch may take.
type DownloadConfig struct {
	Dir     string        `yaml:"dir"`
	Timeout time.Duration `yaml:"timeout"`
}

// StoreConfig locates the run history database.
type StoreConfig struct {
	DSN string `yaml:"dsn"`
}

// LogConfig controls log output.
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// FeedConfig names an RSS/Atom calendar feed used in place of the portal
// index when set.
type FeedConfig struct {
	URL string `yaml:"url"`
}

// Config represents the structure of ~/.civicfetch/config.yaml.
type Config struct {
	Portal   PortalConfig   `yaml:"portal"`
	Browser  BrowserConfig  `yaml:"browser"`
	Download DownloadConfig `yaml:"download"`
	Store    StoreConfig    `yaml:"store"`
	Log      LogConfig      `yaml:"log"`
	Feed     FeedConfig     `yaml:"feed"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Portal: PortalConfig{
			BaseURL:    portal.DefaultBaseURL,
			APIBaseURL: portal.DefaultAPIBase,
			Selectors:  portal.DefaultSelectors(),
		},
		Browser: BrowserConfig{
			Backend:   BackendChrome,
			Headless:  true,
			UserAgent: chrome.DefaultUserAgent,
			Locale:    chrome.DefaultLocale,
			Timezone:  chrome.DefaultTimezone,
		},
		Download: DownloadConfig{
			Dir:     "downloads",
			Timeout: download.DefaultTimeout,
		},
		Store: StoreConfig{
			DSN: defaultStoreDSN(),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Dir returns ~/.civicfetch.
func Dir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".civicfetch"), nil
}

// Path returns the default config file location.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func defaultStoreDSN() string {
	dir, err := Dir()
	if err != nil {
		return "civicfetch.db"
	}
	return filepath.Join(dir, "civicfetch.db")
}

// LoadFile reads path over the defaults. A missing file is not an error;
// the defaults are returned. An empty path means the default location.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		p, err := Path()
		if err != nil {
			return nil, err
		}
		path = p
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	cfg.Portal.Selectors = cfg.Portal.Selectors.Merge()

	return cfg, nil
}

// Load resolves configuration with precedence:
// 1. Environment variables (highest priority)
// 2. Configuration file
// 3. Default values (lowest priority)
// Command-line flags are applied by the caller on top of the result.
func Load(path string) (*Config, error) {
	cfg, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overlays CIVICFETCH_* variables read through getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	str := func(name string, dst *string) {
		if val := getenv(EnvPrefix + name); val != "" {
			*dst = val
		}
	}
	boolean := func(name string, dst *bool) error {
		val := getenv(EnvPrefix + name)
		if val == "" {
			return nil
		}
		b, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("invalid %s%s: %w", EnvPrefix, name, err)
		}
		*dst = b
		return nil
	}

	str("BASE_URL", &c.Portal.BaseURL)
	str("API_BASE_URL", &c.Portal.APIBaseURL)
	str("BACKEND", &c.Browser.Backend)
	str("CHROME_PATH", &c.Browser.ExecPath)
	str("SNAPSHOT_DIR", &c.Browser.SnapshotDir)
	str("DOWNLOAD_DIR", &c.Download.Dir)
	str("STORE_DSN", &c.Store.DSN)
	str("LOG_LEVEL", &c.Log.Level)
	str("FEED_URL", &c.Feed.URL)

	if err := boolean("HEADLESS", &c.Browser.Headless); err != nil {
		return err
	}
	if err := boolean("LOG_JSON", &c.Log.JSON); err != nil {
		return err
	}

	if val := getenv(EnvPrefix + "DOWNLOAD_TIMEOUT"); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("invalid %sDOWNLOAD_TIMEOUT: %w", EnvPrefix, err)
		}
		c.Download.Timeout = d
	}

	return nil
}

// Validate checks the settings that cannot be defaulted at use.
func (c *Config) Validate() error {
	switch c.Browser.Backend {
	case BackendChrome, BackendStatic:
	default:
		return fmt.Errorf("unknown browser backend %q (want %s or %s)",
			c.Browser.Backend, BackendChrome, BackendStatic)
	}

	if !strings.HasPrefix(c.Portal.BaseURL, "http://") && !strings.HasPrefix(c.Portal.BaseURL, "https://") {
		return fmt.Errorf("portal base_url must be an http(s) URL: %q", c.Portal.BaseURL)
	}

	if c.Download.Timeout <= 0 {
		return fmt.Errorf("download timeout must be positive, got %s", c.Download.Timeout)
	}

	return nil
}

const defaultFile = `# civicfetch configuration
#
# Environment variables (CIVICFETCH_*) override these values, and
# command-line flags override both.

portal:
  base_url: %q
  api_base_url: %q
  # selectors:
  #   files:
  #     placeholder_label: "No Attachment File"

browser:
  backend: chromedp   # or "static"
  headless: true
  # exec_path: /usr/bin/chromium
  # snapshot_dir: ./snapshots

download:
  dir: downloads
  timeout: 60s

store:
  dsn: %q

log:
  level: info
  json: false

# feed:
#   url: https://example.portal.civicclerk.com/feed
`

// WriteDefault writes a commented starter file to path. It reports false
// without touching the file when one already exists and force is unset.
func WriteDefault(path string, force bool) (bool, error) {
	if path == "" {
		p, err := Path()
		if err != nil {
			return false, err
		}
		path = p
	}

	if _, err := os.Stat(path); err == nil && !force {
		return false, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return false, fmt.Errorf("failed to create config directory: %w", err)
	}

	content := fmt.Sprintf(defaultFile, portal.DefaultBaseURL, portal.DefaultAPIBase, defaultStoreDSN())
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return false, fmt.Errorf("failed to write config file: %w", err)
	}
	return true, nil
}
