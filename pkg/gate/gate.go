package gate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/bft-labs/repoboot/pkg/handoff"
	"github.com/bft-labs/repoboot/pkg/log"
	"github.com/bft-labs/repoboot/pkg/registry"
)

var (
	// ErrBuilderPanic wraps a panic raised by the builder.
	ErrBuilderPanic = errors.New("gate: builder panicked")

	// ErrNoProduct is returned when the builder returns a nil product
	// without an error.
	ErrNoProduct = errors.New("gate: builder returned no product")
)

// Builder constructs the product from a snapshot in which every required
// type is present.
type Builder[T any] func(ctx context.Context, snap registry.Snapshot) (T, error)

// Config describes what a gate waits for and what it builds.
type Config[T any] struct {
	// Required types must all be present before Build runs.
	Required []registry.ComponentType

	// ProductType is the type the product is registered and looked up under.
	ProductType registry.ComponentType

	Build Builder[T]
}

type options struct {
	logger          log.Logger
	ctx             context.Context
	registerProduct bool
}

// Option configures optional behavior of a Gate.
type Option func(*options)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(logger log.Logger) Option {
	return func(o *options) {
		o.logger = log.OrNoop(logger)
	}
}

// WithContext sets the parent of the context handed to the builder.
func WithContext(ctx context.Context) Option {
	return func(o *options) {
		o.ctx = ctx
	}
}

// WithoutProductRegistration leaves registering the product to the builder.
// By default the gate registers the product under ProductType before
// publishing it.
func WithoutProductRegistration() Option {
	return func(o *options) {
		o.registerProduct = false
	}
}

// Gate waits for a dependency set and builds a product exactly once.
type Gate[T any] struct {
	reg         *registry.Registry
	required    []registry.ComponentType
	requiredSet map[registry.ComponentType]struct{}
	productType registry.ComponentType
	build       Builder[T]
	opts        options
	ctx         context.Context
	cancel      context.CancelFunc

	result *handoff.Handoff[T]

	// buildMu serializes the evaluate-and-build critical section; built is
	// the lock-free fast path once it has run.
	buildMu sync.Mutex
	built   atomic.Bool
	builds  atomic.Int32

	mu         sync.Mutex
	published  bool
	baseline   uint64
	watchers   map[uint64]func(registry.Event)
	watcherSeq uint64

	sub *registry.Subscription
}

// New creates a gate and starts observing reg immediately.
func New[T any](reg *registry.Registry, cfg Config[T], opts ...Option) (*Gate[T], error) {
	if reg == nil {
		return nil, errors.New("gate: nil registry")
	}
	if cfg.ProductType == "" {
		return nil, errors.New("gate: product type is required")
	}
	if cfg.Build == nil {
		return nil, errors.New("gate: builder is required")
	}

	o := options{
		logger:          log.NewNoopLogger(),
		ctx:             context.Background(),
		registerProduct: true,
	}
	for _, opt := range opts {
		opt(&o)
	}

	g := &Gate[T]{
		reg:         reg,
		requiredSet: make(map[registry.ComponentType]struct{}, len(cfg.Required)),
		productType: cfg.ProductType,
		build:       cfg.Build,
		opts:        o,
		result:      handoff.New[T](),
		watchers:    make(map[uint64]func(registry.Event)),
	}
	for _, t := range cfg.Required {
		if _, dup := g.requiredSet[t]; dup {
			continue
		}
		g.requiredSet[t] = struct{}{}
		g.required = append(g.required, t)
	}
	g.ctx, g.cancel = context.WithCancel(o.ctx)

	watch := append([]registry.ComponentType{cfg.ProductType}, g.required...)
	sub, err := reg.Subscribe(watch, g.handle)
	if err != nil {
		g.cancel()
		return nil, fmt.Errorf("gate: subscribe: %w", err)
	}
	g.sub = sub

	g.opts.logger.Info("waiting for dependencies",
		log.String("product", string(g.productType)),
		log.Strings("required", typeNames(g.required)))

	// Replayed events cover components already present. An empty required
	// set has no events to wait for, so the build is queued directly.
	if len(g.required) == 0 {
		if err := reg.Dispatch(g.evaluate); err != nil {
			sub.Close()
			g.cancel()
			return nil, fmt.Errorf("gate: schedule build: %w", err)
		}
	}
	return g, nil
}

// Handoff returns the cell the product or build failure is published to.
func (g *Gate[T]) Handoff() *handoff.Handoff[T] {
	return g.result
}

// ProductType returns the type the product is looked up under.
func (g *Gate[T]) ProductType() registry.ComponentType {
	return g.productType
}

// Built reports whether the builder has been invoked.
func (g *Gate[T]) Built() bool {
	return g.built.Load()
}

// BuildCount returns how many times the builder ran; never more than one.
func (g *Gate[T]) BuildCount() int {
	return int(g.builds.Load())
}

// Satisfied reports whether every required type is currently present.
func (g *Gate[T]) Satisfied() bool {
	return g.reg.Snapshot(g.required...).Satisfies(g.required)
}

// Current returns the registry's current product instance.
func (g *Gate[T]) Current() (T, bool) {
	var zero T
	v, ok := g.reg.Lookup(g.productType)
	if !ok {
		return zero, false
	}
	p, ok := v.(T)
	if !ok {
		return zero, false
	}
	return p, true
}

// Generation counts product-type registrations and removals since publish,
// excluding the gate's own registration. It stays zero until the product is
// replaced or withdrawn and moves before Unregister returns.
func (g *Gate[T]) Generation() uint64 {
	g.mu.Lock()
	published, baseline := g.published, g.baseline
	g.mu.Unlock()
	if !published {
		return 0
	}
	return g.reg.Revision(g.productType) - baseline
}

// OnProductChange registers fn for product-type events after publish. The
// returned function removes it.
func (g *Gate[T]) OnProductChange(fn func(registry.Event)) (cancel func()) {
	g.mu.Lock()
	g.watcherSeq++
	id := g.watcherSeq
	g.watchers[id] = fn
	g.mu.Unlock()

	return func() {
		g.mu.Lock()
		delete(g.watchers, id)
		g.mu.Unlock()
	}
}

// Close stops observing the registry and cancels the builder context.
func (g *Gate[T]) Close() {
	if g.sub != nil {
		g.sub.Close()
	}
	g.cancel()
}

// HandleEvent processes a registry event. The registry calls it on its
// dispatcher goroutine; it is safe to call from several goroutines.
func (g *Gate[T]) HandleEvent(ev registry.Event) {
	g.handle(ev)
}

func (g *Gate[T]) handle(ev registry.Event) {
	if ev.Type() == g.productType {
		g.observeProduct(ev)
	}
	if _, ok := g.requiredSet[ev.Type()]; ok {
		g.evaluate()
	}
}

func (g *Gate[T]) observeProduct(ev registry.Event) {
	g.mu.Lock()
	if !g.published {
		g.mu.Unlock()
		return
	}
	// Registrations up to publish, ours included, are not replacements.
	if ev.Kind == registry.Added && ev.Reference.Revision() <= g.baseline {
		g.mu.Unlock()
		return
	}
	watchers := make([]func(registry.Event), 0, len(g.watchers))
	for _, fn := range g.watchers {
		watchers = append(watchers, fn)
	}
	g.mu.Unlock()

	g.opts.logger.Info("product changed",
		log.String("product", string(g.productType)),
		log.String("kind", ev.Kind.String()),
		log.Uint64("generation", g.Generation()))

	for _, fn := range watchers {
		fn(ev)
	}
}

// evaluate builds and publishes the product if the required set is
// satisfied and nothing has been built yet.
func (g *Gate[T]) evaluate() {
	if g.built.Load() {
		return
	}

	g.buildMu.Lock()
	defer g.buildMu.Unlock()

	if g.built.Load() {
		return
	}
	snap := g.reg.Snapshot(g.required...)
	if !snap.Satisfies(g.required) {
		return
	}
	g.built.Store(true)
	g.builds.Add(1)

	g.opts.logger.Info("dependencies satisfied, building product",
		log.String("product", string(g.productType)))

	product, err := g.runBuilder(snap)
	if err != nil {
		g.opts.logger.Error("product build failed",
			log.String("product", string(g.productType)),
			log.Err(err))
		g.result.Fail(err)
		return
	}

	var ref *registry.Reference
	if g.opts.registerProduct {
		ref, err = g.reg.Register(g.productType, product, registry.WithSource("gate"))
		if err != nil {
			// The product still works through the handle's fallback.
			g.opts.logger.Warn("product registration failed",
				log.String("product", string(g.productType)),
				log.Err(err))
		}
	}

	baseline := g.reg.Revision(g.productType)
	if ref != nil {
		baseline = ref.Revision()
	}

	g.mu.Lock()
	g.published = true
	g.baseline = baseline
	g.mu.Unlock()

	g.result.Publish(product)
	g.opts.logger.Info("product published", log.String("product", string(g.productType)))
}

// runBuilder converts builder panics into errors so they never reach the
// registry dispatcher.
func (g *Gate[T]) runBuilder(snap registry.Snapshot) (product T, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			product = zero
			err = fmt.Errorf("%w: %v", ErrBuilderPanic, r)
		}
	}()

	product, err = g.build(g.ctx, snap)
	if err != nil {
		return product, fmt.Errorf("build %s: %w", g.productType, err)
	}
	if any(product) == nil {
		return product, ErrNoProduct
	}
	return product, nil
}

func typeNames(types []registry.ComponentType) []string {
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = string(t)
	}
	return out
}
