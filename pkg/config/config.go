// Package config holds application configuration: built-in defaults,
// optionally overridden by a YAML file, optionally overridden by flags.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration for YAML round-tripping of values like "10s".
type Duration time.Duration

// UnmarshalYAML parses a Go duration string.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := time.ParseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", node.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders the duration as a string.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the standard-library form.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config holds application configuration.
type Config struct {
	LogLevel       string   `yaml:"log_level" default:"info"`
	OutputFormat   string   `yaml:"output_format" default:"table"` // table, json
	MTU            int      `yaml:"mtu" default:"517"`
	ScanTimeout    Duration `yaml:"scan_timeout"`
	ConnectTimeout Duration `yaml:"connect_timeout"`
	ReadTimeout    Duration `yaml:"read_timeout"`
}

// Default returns the built-in configuration values.
func Default() *Config {
	c := &Config{}
	defaults.SetDefaults(c)
	// Durations are named types, outside go-defaults' tag support.
	c.ScanTimeout = Duration(10 * time.Second)
	c.ConnectTimeout = Duration(30 * time.Second)
	c.ReadTimeout = Duration(5 * time.Second)
	return c
}

// Load reads a YAML config file over the defaults.
func Load(path string) (*Config, error) {
	c := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("failed to parse config %q: %w", path, err)
	}

	return c, nil
}

// LoadOrDefault reads the config file when it exists and silently falls back
// to defaults when it does not. Parse errors are still reported.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}
	return Load(path)
}

// NewLogger creates a logger configured from the config.
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}
