package assembly

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// DefaultStartupTimeout is used when Config.StartupTimeout is not set.
const DefaultStartupTimeout = 10 * time.Minute

// Registry property keys derived from the home directory.
const (
	PropHome          = "repository.home"
	PropBundleDir     = "bundles.dir"
	PropConfigDir     = "config.dir"
	PropRepositoryDir = "repository.dir"
)

// Config identifies the assembled resource and bounds its startup.
type Config struct {
	// Home is the root directory for everything the registry's components
	// keep on disk. Required.
	Home string

	// StartupTimeout bounds the wait for dependencies.
	// Default: 10 minutes
	StartupTimeout time.Duration

	// Name identifies the registry in logs. Defaults to the base of Home.
	Name string
}

// Validate checks required parameters and sets derived defaults.
func (c *Config) Validate() error {
	home := strings.TrimSpace(c.Home)
	if home == "" {
		return fmt.Errorf("%w: home directory not set", ErrConfigurationMissing)
	}
	c.Home = filepath.Clean(home)

	if c.StartupTimeout <= 0 {
		c.StartupTimeout = DefaultStartupTimeout
	}
	if c.Name == "" {
		c.Name = filepath.Base(c.Home)
	}
	return nil
}

// BundleDir holds component state owned by activators.
func (c Config) BundleDir() string { return filepath.Join(c.Home, "bundles") }

// ConfigDir holds component descriptors.
func (c Config) ConfigDir() string { return filepath.Join(c.Home, "config") }

// RepositoryDir holds the product's own data.
func (c Config) RepositoryDir() string { return filepath.Join(c.Home, "repository") }

// Properties returns the registry properties derived from c.
func (c Config) Properties() map[string]string {
	return map[string]string{
		PropHome:          c.Home,
		PropBundleDir:     c.BundleDir(),
		PropConfigDir:     c.ConfigDir(),
		PropRepositoryDir: c.RepositoryDir(),
	}
}
