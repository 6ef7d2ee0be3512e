package cliconfig

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// DefaultStartupTimeout is how long the CLI waits for the repository.
const DefaultStartupTimeout = 10 * time.Minute

// Config holds CLI configuration for repoboot.
type Config struct {
	Home           string
	StartupTimeout time.Duration
	LogLevel       string
	MetricsAddr    string
	Watch          bool
	Once           bool
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		StartupTimeout: DefaultStartupTimeout,
		LogLevel:       "info",
		Watch:          true,
	}
}

// Validate checks the configuration for errors and sets derived defaults.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Home) == "" {
		return fmt.Errorf("home is required")
	}
	c.Home = filepath.Clean(c.Home)

	if c.StartupTimeout <= 0 {
		return fmt.Errorf("startup timeout must be positive")
	}

	switch strings.ToLower(c.LogLevel) {
	case "":
		c.LogLevel = "info"
	case "debug", "info", "warn", "warning", "error":
		c.LogLevel = strings.ToLower(c.LogLevel)
	default:
		return fmt.Errorf("unknown log level %q", c.LogLevel)
	}

	return nil
}

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

// newConfigSetter creates a new setter with the given changed flags map.
func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setDuration parses and sets a duration from string if valid and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

// setBool sets a bool value from a pointer if not nil and flag not changed.
func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setBoolFromString parses a string to bool and sets the destination.
// Accepts "true", "1" as true, anything else as false.
// Used for environment variables that come as strings.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}
