package assembly

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bft-labs/repoboot/pkg/gate"
	"github.com/bft-labs/repoboot/pkg/lifecycle"
	"github.com/bft-labs/repoboot/pkg/livehandle"
	"github.com/bft-labs/repoboot/pkg/log"
	"github.com/bft-labs/repoboot/pkg/registry"
)

// Plan describes what to assemble.
type Plan[T any] struct {
	// Required types must all be registered before Build runs.
	Required []registry.ComponentType

	// ProductType is the type the product is registered under.
	ProductType registry.ComponentType

	Build gate.Builder[T]

	// PostProcess runs after the registry has started and before the gate
	// is installed. It typically registers components programmatically.
	PostProcess func(ctx context.Context, reg *registry.Registry) error
}

func (p Plan[T]) validate() error {
	if p.ProductType == "" {
		return fmt.Errorf("%w: product type not set", ErrConfigurationMissing)
	}
	if p.Build == nil {
		return fmt.Errorf("%w: builder not set", ErrConfigurationMissing)
	}
	return nil
}

type options struct {
	logger          log.Logger
	observer        Observer
	registryOpts    []registry.Option
	gateOpts        []gate.Option
	shutdownTimeout time.Duration
}

// Option configures an Assemble call.
type Option func(*options)

// WithLogger sets the logger used by the registry, the gate and the
// factory. Defaults to a no-op logger.
func WithLogger(logger log.Logger) Option {
	return func(o *options) {
		o.logger = log.OrNoop(logger)
	}
}

// WithObserver receives every phase transition.
func WithObserver(obs Observer) Option {
	return func(o *options) {
		o.observer = obs
	}
}

// WithActivator starts a with the registry.
func WithActivator(a registry.Activator) Option {
	return func(o *options) {
		o.registryOpts = append(o.registryOpts, registry.WithActivator(a))
	}
}

// WithRegistryOptions passes options through to registry.New.
func WithRegistryOptions(opts ...registry.Option) Option {
	return func(o *options) {
		o.registryOpts = append(o.registryOpts, opts...)
	}
}

// WithGateOptions passes options through to gate.New.
func WithGateOptions(opts ...gate.Option) Option {
	return func(o *options) {
		o.gateOpts = append(o.gateOpts, opts...)
	}
}

// WithShutdownTimeout bounds the best-effort shutdown after a timeout or
// interruption.
// Default: 30 seconds
func WithShutdownTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.shutdownTimeout = d
		}
	}
}

// Factory assembles resources from a fixed plan.
type Factory[T any] struct {
	plan Plan[T]
	opts []Option
}

// NewFactory returns a factory for plan.
func NewFactory[T any](plan Plan[T], opts ...Option) *Factory[T] {
	return &Factory[T]{plan: plan, opts: opts}
}

// Assemble runs one assembly with cfg. extra options apply after the
// factory's own.
func (f *Factory[T]) Assemble(ctx context.Context, cfg Config, extra ...Option) (*Resource[T], error) {
	opts := append(append([]Option(nil), f.opts...), extra...)
	return Assemble(ctx, cfg, f.plan, opts...)
}

// Assemble starts a registry for cfg, waits up to cfg.StartupTimeout for the
// plan's product and returns it as a managed resource.
func Assemble[T any](ctx context.Context, cfg Config, plan Plan[T], opts ...Option) (*Resource[T], error) {
	o := options{
		logger:          log.NewNoopLogger(),
		shutdownTimeout: lifecycle.ShutdownTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}

	a := newAttempt(o.logger, o.observer)

	if err := cfg.Validate(); err != nil {
		a.enter(PhaseFailed, err.Error())
		return nil, err
	}
	if err := plan.validate(); err != nil {
		a.enter(PhaseFailed, err.Error())
		return nil, err
	}

	logger := o.logger
	logger.Info("assembling",
		log.String("home", cfg.Home),
		log.String("product", string(plan.ProductType)),
		log.Duration("timeout", cfg.StartupTimeout))

	regOpts := append([]registry.Option{registry.WithLogger(logger)}, o.registryOpts...)
	reg := registry.New(registry.Config{Name: cfg.Name, Properties: cfg.Properties()}, regOpts...)
	if err := reg.Start(ctx); err != nil {
		a.enter(PhaseFailed, "registry start failed")
		return nil, &FailedError{Cause: err}
	}

	if plan.PostProcess != nil {
		if err := plan.PostProcess(ctx, reg); err != nil {
			shutdownErr := shutdownBestEffort(reg, o.shutdownTimeout)
			a.enter(PhaseFailed, "post-process failed")
			return nil, &FailedError{Cause: errors.Join(fmt.Errorf("post-process: %w", err), shutdownErr)}
		}
	}

	gateOpts := append([]gate.Option{
		gate.WithLogger(logger),
		gate.WithContext(context.WithoutCancel(ctx)),
	}, o.gateOpts...)
	g, err := gate.New(reg, gate.Config[T]{
		Required:    plan.Required,
		ProductType: plan.ProductType,
		Build:       plan.Build,
	}, gateOpts...)
	if err != nil {
		shutdownErr := shutdownBestEffort(reg, o.shutdownTimeout)
		a.enter(PhaseFailed, "gate setup failed")
		return nil, &FailedError{Cause: errors.Join(err, shutdownErr)}
	}

	a.enter(PhaseWaitingForDependencies, "gate installed")

	waitCtx, cancel := context.WithTimeout(ctx, cfg.StartupTimeout)
	product, err := g.Handoff().AwaitContext(waitCtx)
	cancel()

	switch {
	case err == nil:
	case isContextErr(err) && ctx.Err() != nil:
		g.Close()
		shutdownErr := shutdownBestEffort(reg, o.shutdownTimeout)
		if shutdownErr != nil {
			logger.Warn("error shutting down registry after interruption", log.Err(shutdownErr))
		}
		a.enter(PhaseFailed, "interrupted")
		return nil, fmt.Errorf("%w: %w", ErrInterrupted, ctx.Err())
	case isContextErr(err):
		g.Close()
		shutdownErr := shutdownBestEffort(reg, o.shutdownTimeout)
		if shutdownErr != nil {
			logger.Warn("error shutting down registry after startup timeout", log.Err(shutdownErr))
		}
		a.enter(PhaseTimedOut, fmt.Sprintf("not started in %s", cfg.StartupTimeout))
		logger.Error("dependencies not available in time",
			log.Strings("required", typeNames(plan.Required)),
			log.Duration("timeout", cfg.StartupTimeout))
		return nil, &TimeoutError{Timeout: cfg.StartupTimeout, Shutdown: shutdownErr}
	default:
		// The registry stays up so its other components remain usable.
		g.Close()
		a.enter(PhaseFailed, err.Error())
		logger.Error("assembly failed", log.Err(err))
		return nil, &FailedError{Cause: err, Registry: reg}
	}

	// The gate only counts product changes after publishing, so the
	// generation at publish time is always zero.
	handle := livehandle.New[T](g, product, 0)

	a.enter(PhaseAssembled, "product published")
	logger.Info("assembled",
		log.String("product", string(plan.ProductType)),
		log.Duration("elapsed", time.Since(a.started)))

	return newResource(reg, g, handle, logger), nil
}

// isContextErr reports whether err came from the wait context rather than
// from the handoff. Build failures are always wrapped by the gate.
func isContextErr(err error) bool {
	return err == context.DeadlineExceeded || err == context.Canceled
}

func shutdownBestEffort(reg *registry.Registry, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return reg.Shutdown(ctx)
}

func typeNames(types []registry.ComponentType) []string {
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	return names
}
