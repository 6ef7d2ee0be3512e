package repoboot

import (
	"context"
	"fmt"
	"maps"
	"time"

	"github.com/bft-labs/repoboot/pkg/assembly"
	"github.com/bft-labs/repoboot/pkg/content"
	"github.com/bft-labs/repoboot/pkg/fileinstall"
	"github.com/bft-labs/repoboot/pkg/log"
	"github.com/bft-labs/repoboot/pkg/registry"
)

// Config holds the repository startup parameters.
type Config struct {
	// Home is the repository home directory. Required.
	Home string

	// StartupTimeout bounds the wait for the node store and security
	// provider.
	// Default: 10 minutes
	StartupTimeout time.Duration

	// Watch installs components from descriptor files in <home>/config.
	Watch bool

	// DebounceDelay is the delay after a descriptor change before it is
	// reloaded.
	// Default: 100 milliseconds
	DebounceDelay time.Duration
}

type component struct {
	typ      registry.ComponentType
	instance any
	opts     []registry.RegisterOption
}

type options struct {
	logger     log.Logger
	observer   assembly.Observer
	components []component
	activators []registry.Activator
	factories  fileinstall.Factories
}

// Option configures Open.
type Option func(*options)

// WithLogger sets the logger for the repository and its registry.
func WithLogger(logger log.Logger) Option {
	return func(o *options) {
		o.logger = log.OrNoop(logger)
	}
}

// WithObserver receives the startup phase transitions.
func WithObserver(obs assembly.Observer) Option {
	return func(o *options) {
		o.observer = obs
	}
}

// WithComponent registers instance under t once the registry has started.
func WithComponent(t registry.ComponentType, instance any, opts ...registry.RegisterOption) Option {
	return func(o *options) {
		o.components = append(o.components, component{typ: t, instance: instance, opts: opts})
	}
}

// WithActivator starts a with the registry.
func WithActivator(a registry.Activator) Option {
	return func(o *options) {
		o.activators = append(o.activators, a)
	}
}

// WithFactories adds descriptor factories next to the built-in ones.
func WithFactories(f fileinstall.Factories) Option {
	return func(o *options) {
		maps.Copy(o.factories, f)
	}
}

// Open starts a registry for cfg and waits until a repository could be
// assembled from its components.
func Open(ctx context.Context, cfg Config, opts ...Option) (*Repository, error) {
	o := options{
		logger:    log.NewNoopLogger(),
		factories: content.Factories(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	plan := assembly.Plan[content.Repository]{
		Required:    content.Required,
		ProductType: content.TypeRepository,
		Build:       content.Build,
		PostProcess: func(ctx context.Context, reg *registry.Registry) error {
			for _, c := range o.components {
				if _, err := reg.Register(c.typ, c.instance, c.opts...); err != nil {
					return fmt.Errorf("register %s: %w", c.typ, err)
				}
			}
			return nil
		},
	}

	asmOpts := []assembly.Option{assembly.WithLogger(o.logger)}
	if o.observer != nil {
		asmOpts = append(asmOpts, assembly.WithObserver(o.observer))
	}
	for _, a := range o.activators {
		asmOpts = append(asmOpts, assembly.WithActivator(a))
	}
	if cfg.Watch {
		asmOpts = append(asmOpts, assembly.WithActivator(fileinstall.New(fileinstall.Config{
			DebounceDelay: cfg.DebounceDelay,
			Factories:     o.factories,
			Logger:        o.logger,
		})))
	}

	res, err := assembly.Assemble(ctx, assembly.Config{
		Home:           cfg.Home,
		StartupTimeout: cfg.StartupTimeout,
	}, plan, asmOpts...)
	if err != nil {
		return nil, err
	}
	return &Repository{res: res}, nil
}
