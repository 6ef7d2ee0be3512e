package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/bft-labs/repoboot/pkg/lifecycle"
	"github.com/bft-labs/repoboot/pkg/log"
)

// DefaultDrainTimeout bounds how long Shutdown waits for pending events.
const DefaultDrainTimeout = lifecycle.ShutdownTimeout

// Config holds the static registry configuration.
type Config struct {
	// Name identifies the registry in logs.
	Name string

	// Properties are made available to activators through Property.
	Properties map[string]string
}

// Option configures optional behavior of a Registry.
type Option func(*Registry)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(logger log.Logger) Option {
	return func(r *Registry) {
		r.logger = log.OrNoop(logger)
	}
}

// WithActivator adds an activator. Activators start in the order added.
func WithActivator(a Activator) Option {
	return func(r *Registry) {
		r.activators = append(r.activators, a)
	}
}

// WithDrainTimeout bounds how long Shutdown waits for the dispatcher.
func WithDrainTimeout(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.drainTimeout = d
		}
	}
}

// WithStateEmitter receives registry lifecycle transitions.
func WithStateEmitter(e lifecycle.EventEmitter) Option {
	return func(r *Registry) {
		r.emitter = e
	}
}

// Registry is a concurrent collection of typed components.
type Registry struct {
	cfg          Config
	logger       log.Logger
	activators   []Activator
	drainTimeout time.Duration
	emitter      lifecycle.EventEmitter
	lifecycle    *lifecycle.DefaultManager

	// stopMu serializes Start and Shutdown.
	stopMu  sync.Mutex
	started []Activator
	cancel  context.CancelFunc

	mu         sync.RWMutex
	refs       map[ComponentType][]*Reference
	revs       map[ComponentType]uint64
	seq        uint64
	subs       map[uint64]*Subscription
	subSeq     uint64
	dispatcher *dispatcher
}

// New creates a registry in StateStopped. Call Start before registering.
func New(cfg Config, opts ...Option) *Registry {
	r := &Registry{
		cfg:          cfg,
		logger:       log.NewNoopLogger(),
		drainTimeout: DefaultDrainTimeout,
		refs:         make(map[ComponentType][]*Reference),
		revs:         make(map[ComponentType]uint64),
		subs:         make(map[uint64]*Subscription),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.cfg.Name == "" {
		r.cfg.Name = "registry"
	}
	r.lifecycle = lifecycle.NewManager(r.cfg.Name, r.logger, r.emitter)
	return r
}

// Name returns the configured registry name.
func (r *Registry) Name() string { return r.cfg.Name }

// Property returns a configuration property, or "" when unset.
func (r *Registry) Property(key string) string {
	return r.cfg.Properties[key]
}

// State returns the registry lifecycle state.
func (r *Registry) State() lifecycle.State {
	return r.lifecycle.State()
}

// Start launches the dispatcher and then every activator in order. ctx
// bounds startup only; the registry runs until Shutdown. If an activator
// fails, those already started are stopped and the registry ends Crashed.
func (r *Registry) Start(ctx context.Context) error {
	r.stopMu.Lock()
	defer r.stopMu.Unlock()

	if !r.lifecycle.CanStart() {
		return lifecycle.ErrAlreadyRunning
	}
	if err := r.lifecycle.TransitionTo(lifecycle.StateStarting, "Start() called"); err != nil {
		return err
	}

	d := newDispatcher(r.logger)
	r.mu.Lock()
	r.dispatcher = d
	r.mu.Unlock()

	r.lifecycle.AddWorker()
	go func() {
		defer r.lifecycle.WorkerDone()
		d.run()
	}()

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r.cancel = cancel

	for _, a := range r.activators {
		err := ctx.Err()
		if err == nil {
			err = a.Start(runCtx, r)
		}
		if err != nil {
			r.logger.Error("activator start failed",
				log.String("registry", r.cfg.Name),
				log.String("activator", a.Name()),
				log.Err(err))
			_ = r.lifecycle.TransitionTo(lifecycle.StateCrashed, "activator start failed: "+a.Name())
			if errs := r.teardown(context.Background()); len(errs) > 0 {
				r.logger.Warn("cleanup after failed start incomplete",
					log.String("registry", r.cfg.Name),
					log.Err(&ShutdownError{Errs: errs}))
			}
			return fmt.Errorf("registry: start activator %s: %w", a.Name(), err)
		}
		r.started = append(r.started, a)
		r.logger.Info("activator started",
			log.String("registry", r.cfg.Name),
			log.String("activator", a.Name()))
	}

	return r.lifecycle.TransitionTo(lifecycle.StateRunning, "activators started")
}

// Shutdown stops the registry. It is a no-op when already stopped. Secondary
// failures are returned as a *ShutdownError after the shutdown completes.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.stopMu.Lock()
	defer r.stopMu.Unlock()

	state := r.lifecycle.State()
	if state == lifecycle.StateStopped {
		return nil
	}
	if !r.lifecycle.CanStop() {
		return ErrNotRunning
	}
	if err := r.lifecycle.TransitionTo(lifecycle.StateStopping, "Shutdown() called"); err != nil {
		return err
	}

	errs := r.teardown(ctx)

	final := lifecycle.StateStopped
	for _, err := range errs {
		if errors.Is(err, lifecycle.ErrShutdownTimeout) {
			final = lifecycle.StateCrashed
		}
	}
	_ = r.lifecycle.TransitionTo(final, "shutdown complete")

	if len(errs) > 0 {
		return &ShutdownError{Errs: errs}
	}
	r.logger.Info("registry stopped", log.String("registry", r.cfg.Name))
	return nil
}

// teardown stops activators, removes all components and drains the
// dispatcher. Callers hold stopMu.
func (r *Registry) teardown(ctx context.Context) []error {
	var errs []error

	for i := len(r.started) - 1; i >= 0; i-- {
		a := r.started[i]
		if err := a.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop activator %s: %w", a.Name(), err))
			r.logger.Error("activator stop failed",
				log.String("activator", a.Name()),
				log.Err(err))
		}
	}
	r.started = nil

	r.mu.Lock()
	var all []*Reference
	for _, refs := range r.refs {
		all = append(all, refs...)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].seq > all[j].seq })
	for _, ref := range all {
		r.removeLocked(ref)
	}
	d := r.dispatcher
	r.dispatcher = nil
	r.mu.Unlock()

	for _, ref := range all {
		s, ok := ref.Instance.(Stopper)
		if !ok {
			continue
		}
		if err := s.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop component %s: %w", ref.Type, err))
			r.logger.Error("component stop failed",
				log.String("type", string(ref.Type)),
				log.String("source", ref.Source),
				log.Err(err))
		}
	}

	if d != nil {
		d.close()
		if err := r.lifecycle.WaitWithTimeout(r.drainTimeout); err != nil {
			errs = append(errs, fmt.Errorf("drain events: %w", err))
		}
	}

	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	return errs
}

func (r *Registry) accepting() bool {
	return r.lifecycle.State().Accepting()
}

// Register adds instance under t and notifies subscribers.
func (r *Registry) Register(t ComponentType, instance any, opts ...RegisterOption) (*Reference, error) {
	if t == "" || instance == nil {
		return nil, ErrInvalidComponent
	}

	ref := &Reference{
		ID:       uuid.New(),
		Type:     t,
		Instance: instance,
	}
	for _, opt := range opts {
		opt(ref)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Checked under mu so a concurrent Shutdown sweep cannot miss it.
	if !r.accepting() || r.dispatcher == nil {
		return nil, ErrNotRunning
	}

	r.seq++
	ref.seq = r.seq
	r.revs[t]++
	ref.rev = r.revs[t]
	r.refs[t] = append(r.refs[t], ref)
	componentsRegistered.WithLabelValues(string(t)).Inc()
	r.dispatcher.enqueue(delivery{
		ev:      Event{Kind: Added, Reference: ref},
		targets: r.targetsLocked(t),
	})

	r.logger.Debug("component registered",
		log.String("type", string(t)),
		log.String("id", ref.ID.String()),
		log.String("source", ref.Source))
	return ref, nil
}

// Unregister removes the registration of instance under t.
func (r *Registry) Unregister(t ComponentType, instance any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, ref := range r.refs[t] {
		if sameInstance(ref.Instance, instance) {
			r.removeLocked(ref)
			return nil
		}
	}
	return ErrNotRegistered
}

// UnregisterRef removes a specific registration.
func (r *Registry) UnregisterRef(ref *Reference) error {
	if ref == nil {
		return ErrNotRegistered
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, cur := range r.refs[ref.Type] {
		if cur == ref {
			r.removeLocked(ref)
			return nil
		}
	}
	return ErrNotRegistered
}

func (r *Registry) removeLocked(ref *Reference) {
	refs := r.refs[ref.Type]
	for i, cur := range refs {
		if cur != ref {
			continue
		}
		refs = append(refs[:i:i], refs[i+1:]...)
		break
	}
	if len(refs) == 0 {
		delete(r.refs, ref.Type)
	} else {
		r.refs[ref.Type] = refs
	}
	r.revs[ref.Type]++
	componentsRegistered.WithLabelValues(string(ref.Type)).Dec()

	if r.dispatcher != nil {
		r.dispatcher.enqueue(delivery{
			ev:      Event{Kind: Removed, Reference: ref},
			targets: r.targetsLocked(ref.Type),
		})
	}
	r.logger.Debug("component unregistered",
		log.String("type", string(ref.Type)),
		log.String("id", ref.ID.String()))
}

// Revision counts the registrations and removals of t so far. It changes
// before Register or Unregister returns, ahead of event delivery.
func (r *Registry) Revision(t ComponentType) uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.revs[t]
}

// Dispatch runs fn on the dispatcher goroutine after every event already
// queued. A panic in fn is logged and does not stop delivery.
func (r *Registry) Dispatch(fn func()) error {
	if fn == nil {
		return errors.New("registry: nil function")
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.accepting() || r.dispatcher == nil {
		return ErrNotRunning
	}
	if !r.dispatcher.enqueue(delivery{fn: fn}) {
		return ErrNotRunning
	}
	return nil
}

// Lookup returns the preferred instance of t.
func (r *Registry) Lookup(t ComponentType) (any, bool) {
	ref, ok := r.LookupRef(t)
	if !ok {
		return nil, false
	}
	return ref.Instance, true
}

// LookupRef returns the preferred registration of t.
func (r *Registry) LookupRef(t ComponentType) (*Reference, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var best *Reference
	for _, ref := range r.refs[t] {
		if best == nil || better(ref, best) {
			best = ref
		}
	}
	return best, best != nil
}

// LookupAll returns every instance of t, preferred first.
func (r *Registry) LookupAll(t ComponentType) []any {
	return r.Snapshot(t).All(t)
}

// Snapshot captures the registrations of the given types atomically.
func (r *Registry) Snapshot(types ...ComponentType) Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := Snapshot{refs: make(map[ComponentType][]*Reference, len(types))}
	for _, t := range types {
		refs := append([]*Reference(nil), r.refs[t]...)
		sortPreferred(refs)
		s.refs[t] = refs
	}
	return s
}

// Subscription is a registered listener. Close it to stop delivery.
type Subscription struct {
	id       uint64
	types    map[ComponentType]struct{}
	listener Listener
	closed   atomic.Bool
	reg      *Registry
}

func (s *Subscription) matches(t ComponentType) bool {
	if len(s.types) == 0 {
		return true
	}
	_, ok := s.types[t]
	return ok
}

// Close stops delivery to the listener. Events already being delivered may
// still arrive.
func (s *Subscription) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	s.reg.mu.Lock()
	delete(s.reg.subs, s.id)
	s.reg.mu.Unlock()
}

// Subscribe registers listener for events on the given types; no types means
// every type. Components already present are replayed as Added events.
func (r *Registry) Subscribe(types []ComponentType, listener Listener) (*Subscription, error) {
	if listener == nil {
		return nil, errors.New("registry: nil listener")
	}

	sub := &Subscription{
		types:    make(map[ComponentType]struct{}, len(types)),
		listener: listener,
		reg:      r,
	}
	for _, t := range types {
		sub.types[t] = struct{}{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.accepting() || r.dispatcher == nil {
		return nil, ErrNotRunning
	}

	r.subSeq++
	sub.id = r.subSeq
	r.subs[sub.id] = sub

	var existing []*Reference
	for t, refs := range r.refs {
		if sub.matches(t) {
			existing = append(existing, refs...)
		}
	}
	sort.Slice(existing, func(i, j int) bool { return existing[i].seq < existing[j].seq })
	target := []*Subscription{sub}
	for _, ref := range existing {
		r.dispatcher.enqueue(delivery{ev: Event{Kind: Added, Reference: ref}, targets: target})
	}

	return sub, nil
}

func (r *Registry) targetsLocked(t ComponentType) []*Subscription {
	var out []*Subscription
	for _, sub := range r.subs {
		if sub.matches(t) {
			out = append(out, sub)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}
