package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Duration lets durations be written as strings like "15m" in TOML
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// TomlServer configures the HTTP server
type TomlServer struct {
	Hostname string `toml:"hostname"`
	Port     int    `toml:"port"`
	// BaseURL is the public address used for self links, e.g. https://rss.example.com
	BaseURL         string   `toml:"base_url"`
	CacheExpiration Duration `toml:"cache_expiration"`
}

// TomlUpstream configures the Mastodon compatible API feeds are read from
type TomlUpstream struct {
	BaseURL       string   `toml:"base_url"`
	Timeout       Duration `toml:"timeout"`
	UserAgent     string   `toml:"user_agent"`
	StatusesLimit int      `toml:"statuses_limit"`
}

// TomlRefresh configures the periodic refresh of all feeds
type TomlRefresh struct {
	Interval       Duration `toml:"interval"`
	Workers        int      `toml:"workers"`
	MaxRetries     uint64   `toml:"max_retries"`
	InitialBackoff Duration `toml:"initial_backoff"`
}

type TomlLanguage struct {
	Default    string   `toml:"default"`
	Candidates []string `toml:"candidates"`
}

type TomlTidy struct {
	KeepEntries int `toml:"keep_entries"`
}

// TomlConfig represents the top-level configuration
type TomlConfig struct {
	Database string       `toml:"database"`
	Server   TomlServer   `toml:"server"`
	Upstream TomlUpstream `toml:"upstream"`
	Refresh  TomlRefresh  `toml:"refresh"`
	Language TomlLanguage `toml:"language"`
	Tidy     TomlTidy     `toml:"tidy"`
}

// Default returns the configuration used when nothing else is set
func Default() *TomlConfig {
	return &TomlConfig{
		Database: "threadsrss.db",
		Server: TomlServer{
			Hostname:        "localhost",
			Port:            3000,
			CacheExpiration: Duration{time.Minute},
		},
		Upstream: TomlUpstream{
			BaseURL:       "https://mastodon.social/api/v1",
			Timeout:       Duration{30 * time.Second},
			UserAgent:     "threadsrss",
			StatusesLimit: 40,
		},
		Refresh: TomlRefresh{
			Interval:       Duration{15 * time.Minute},
			Workers:        4,
			MaxRetries:     3,
			InitialBackoff: Duration{time.Second},
		},
		Language: TomlLanguage{
			Default:    "en",
			Candidates: []string{"en", "es", "pt", "de", "fr", "it", "ja", "ko", "nb"},
		},
		Tidy: TomlTidy{
			KeepEntries: 200,
		},
	}
}

// LoadConfig reads path on top of the defaults. A missing file is not an
// error and leaves the defaults untouched.
func LoadConfig(path string) (*TomlConfig, error) {
	config := Default()
	if path == "" {
		return config, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return config, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return config, nil
}

// Addr is the address the HTTP server listens on
func (c *TomlConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Hostname, c.Server.Port)
}

// PublicBaseURL is the base of every link handed out to clients
func (c *TomlConfig) PublicBaseURL() string {
	if c.Server.BaseURL != "" {
		return c.Server.BaseURL
	}
	return fmt.Sprintf("http://%s", c.Addr())
}
