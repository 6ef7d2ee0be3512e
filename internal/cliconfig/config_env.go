package cliconfig

import "os"

// ApplyEnvConfig applies configuration from environment variables (REPOBOOT_*).
// It respects flags that have been explicitly set (changed map).
// Returns error if any environment variable has an invalid format.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("home", os.Getenv("REPOBOOT_HOME"), &cfg.Home)
	s.setString("log-level", os.Getenv("REPOBOOT_LOG_LEVEL"), &cfg.LogLevel)
	s.setString("metrics-addr", os.Getenv("REPOBOOT_METRICS_ADDR"), &cfg.MetricsAddr)

	if err := s.setDuration("startup-timeout", os.Getenv("REPOBOOT_STARTUP_TIMEOUT"), &cfg.StartupTimeout); err != nil {
		return err
	}

	s.setBoolFromString("watch", os.Getenv("REPOBOOT_WATCH"), &cfg.Watch)
	s.setBoolFromString("once", os.Getenv("REPOBOOT_ONCE"), &cfg.Once)

	return nil
}
