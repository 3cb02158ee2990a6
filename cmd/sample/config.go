package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// Config is the sample server configuration. Every field has a default, so
// the config file is optional.
type Config struct {
	Addr           string          `yaml:"addr"`
	BodyLimit      ByteSize        `yaml:"body_limit"`
	Timeout        time.Duration   `yaml:"timeout"`
	TrustRequestID bool            `yaml:"trust_request_id"`
	StrictRequests bool            `yaml:"strict_requests"`
	LogLevel       string          `yaml:"log_level"`
	RateLimit      RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig configures the per-client rate limiter. A zero Rate
// disables it.
type RateLimitConfig struct {
	Rate  float64 `yaml:"rate"`
	Burst int     `yaml:"burst"`
}

func defaultConfig() *Config {
	return &Config{
		Addr:      ":8080",
		BodyLimit: ByteSize(humanize.MiByte),
		Timeout:   30 * time.Second,
		LogLevel:  "info",
		RateLimit: RateLimitConfig{Rate: 20, Burst: 40},
	}
}

// loadConfig reads path over the defaults. A missing file is not an error.
func loadConfig(path string) (*Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path) //nolint:gosec // user-provided CLI flag
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(c.LogLevel))); err != nil {
		return 0, fmt.Errorf("log_level: %w", err)
	}
	return l, nil
}

// ByteSize is a byte count written in human form, e.g. "1MiB" or "512 kB".
type ByteSize uint64

func (b ByteSize) String() string { return humanize.IBytes(uint64(b)) }

// UnmarshalText lets kong parse ByteSize flags.
func (b *ByteSize) UnmarshalText(data []byte) error {
	n, err := humanize.ParseBytes(string(data))
	if err != nil {
		return fmt.Errorf("invalid byte size %q: %w", data, err)
	}
	*b = ByteSize(n)
	return nil
}

func (b *ByteSize) UnmarshalYAML(node *yaml.Node) error {
	return b.UnmarshalText([]byte(node.Value))
}

func (b ByteSize) MarshalYAML() (any, error) {
	return b.String(), nil
}
