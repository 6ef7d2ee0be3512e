package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/bft-labs/repoboot"
	"github.com/bft-labs/repoboot/internal/cliconfig"
	"github.com/bft-labs/repoboot/pkg/assembly"
	"github.com/bft-labs/repoboot/pkg/content"
	"github.com/bft-labs/repoboot/pkg/lifecycle"
	logAdapter "github.com/bft-labs/repoboot/pkg/log"
)

const helpDescription = `
Boot a content repository from components declared in its home directory.

The repository starts once a node store and a security provider are
registered. Declare them as TOML descriptors in <home>/config:

  # <home>/config/store.toml
  component = "nodestore.memory"

  # <home>/config/security.toml
  component = "security.static"
  [properties]
  admin = "admin"

Descriptors are watched: rewriting one replaces its component and deleting
it withdraws the component.
`

var exampleUsage = strings.TrimSpace(`
  repoboot --home /srv/repo
  repoboot --home /srv/repo --startup-timeout 30s --metrics-addr :9090
  repoboot --config $HOME/.repoboot/config.toml --once
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

// phaseLogger reports startup phases.
type phaseLogger struct {
	log zerolog.Logger
}

func (p phaseLogger) OnPhaseChange(previous, current assembly.Phase, reason string) {
	p.log.Info().
		Str("from", previous.String()).
		Str("to", current.String()).
		Str("reason", reason).
		Msg("startup phase")
}

func main() {
	cfg := cliconfig.DefaultConfig()
	var cfgPath string

	root := &cobra.Command{
		Use:     "repoboot",
		Short:   "Boot a content repository from registry components",
		Long:    strings.TrimSpace(helpDescription),
		Example: exampleUsage,
		Version: fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfig(cmd, &cfg, cfgPath); err != nil {
				return err
			}
			return run(cfg)
		},
	}

	root.Flags().StringVar(&cfgPath, "config", "", "path to config file (default: $HOME/.repoboot/config.toml)")
	root.Flags().StringVar(&cfg.Home, "home", cfg.Home, "repository home directory")
	root.Flags().DurationVar(&cfg.StartupTimeout, "startup-timeout", cfg.StartupTimeout, "how long to wait for the repository dependencies")
	root.Flags().StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	root.Flags().StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "address to serve Prometheus metrics on (disabled when empty)")
	root.Flags().BoolVar(&cfg.Watch, "watch", cfg.Watch, "install components from descriptors in <home>/config")
	root.Flags().BoolVar(&cfg.Once, "once", cfg.Once, "exit after the repository started")

	if err := root.Execute(); err != nil {
		logger := cliconfig.Logger("error")
		logger.Error().Err(err).Msg("repoboot")
		os.Exit(1)
	}
}

// loadConfig applies file and environment configuration below explicitly
// set flags.
func loadConfig(cmd *cobra.Command, cfg *cliconfig.Config, cfgPath string) error {
	cfgFile := cfgPath
	if cfgFile == "" {
		cfgFile = cliconfig.DefaultConfigPath()
	}

	changed := map[string]bool{}
	cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

	if cfgFile != "" && cliconfig.FileExists(cfgFile) {
		fc, err := cliconfig.LoadFileConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := cliconfig.ApplyFileConfig(cfg, fc, changed); err != nil {
			return err
		}
	}

	if err := cliconfig.ApplyEnvConfig(cfg, changed); err != nil {
		return err
	}
	return cfg.Validate()
}

func run(cfg cliconfig.Config) error {
	log := cliconfig.Logger(cfg.LogLevel)
	log.Info().Interface("config", cfg).Msg("configuration")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("metrics server")
			}
		}()
		log.Info().Str("addr", cfg.MetricsAddr).Msg("serving metrics")
	}
	defer func() {
		if metricsSrv != nil {
			_ = metricsSrv.Close()
		}
	}()

	repo, err := repoboot.Open(ctx, repoboot.Config{
		Home:           cfg.Home,
		StartupTimeout: cfg.StartupTimeout,
		Watch:          cfg.Watch,
	},
		repoboot.WithLogger(logAdapter.NewZerologAdapterWithLogger(log)),
		repoboot.WithObserver(phaseLogger{log: log}),
	)
	if err != nil {
		var fe *assembly.FailedError
		if errors.As(err, &fe) && fe.Registry != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), lifecycle.ShutdownTimeout)
			defer cancel()
			_ = fe.Registry.Shutdown(shutdownCtx)
		}
		return fmt.Errorf("open repository: %w", err)
	}

	keys, _ := repo.DescriptorKeys()
	for _, k := range keys {
		v, _ := repo.Descriptor(k)
		log.Info().Str("key", k).Str("value", v).Msg("repository descriptor")
	}
	log.Info().
		Int("node_stores", len(repo.Registry().LookupAll(content.TypeNodeStore))).
		Int("security_providers", len(repo.Registry().LookupAll(content.TypeSecurityProvider))).
		Msg("repository started")

	if !cfg.Once {
		<-ctx.Done()
		log.Info().Msg("received signal, stopping...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), lifecycle.ShutdownTimeout)
	defer cancel()
	if err := repo.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown repository: %w", err)
	}
	return nil
}
