package assembly

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/bft-labs/repoboot/pkg/gate"
	"github.com/bft-labs/repoboot/pkg/livehandle"
	"github.com/bft-labs/repoboot/pkg/log"
	"github.com/bft-labs/repoboot/pkg/registry"
)

// Resource owns an assembled product together with the registry that
// supplies it. Calls are forwarded to the live product instance.
type Resource[T any] struct {
	reg    *registry.Registry
	gate   *gate.Gate[T]
	handle *livehandle.Handle[T]
	logger log.Logger

	closed atomic.Bool
	once   sync.Once
	err    error
}

func newResource[T any](reg *registry.Registry, g *gate.Gate[T], h *livehandle.Handle[T], logger log.Logger) *Resource[T] {
	return &Resource[T]{
		reg:    reg,
		gate:   g,
		handle: h,
		logger: logger,
	}
}

// Get returns the live product instance.
func (r *Resource[T]) Get() (T, error) {
	if r.closed.Load() {
		var zero T
		return zero, ErrResourceClosed
	}
	v, err := r.handle.Get()
	if errors.Is(err, livehandle.ErrClosed) {
		return v, ErrResourceClosed
	}
	return v, err
}

// Do calls fn with the live product instance.
func (r *Resource[T]) Do(fn func(T) error) error {
	v, err := r.Get()
	if err != nil {
		return err
	}
	return fn(v)
}

// Call invokes fn on the live product instance of r and returns its result.
func Call[T, R any](r *Resource[T], fn func(T) (R, error)) (R, error) {
	v, err := r.Get()
	if err != nil {
		var zero R
		return zero, err
	}
	return fn(v)
}

// Registry returns the registry backing the resource.
func (r *Resource[T]) Registry() *registry.Registry {
	return r.reg
}

// OnProductChange calls fn for every product registration change after the
// product was published. The returned func stops the notifications.
func (r *Resource[T]) OnProductChange(fn func(registry.Event)) (cancel func()) {
	return r.gate.OnProductChange(fn)
}

// Closed reports whether Shutdown has been called.
func (r *Resource[T]) Closed() bool {
	return r.closed.Load()
}

// Shutdown stops the registry, which unregisters and stops the product and
// its dependencies. Only the first call has any effect; later calls return
// nil.
func (r *Resource[T]) Shutdown(ctx context.Context) error {
	first := false
	r.once.Do(func() {
		first = true
		r.closed.Store(true)
		r.logger.Info("shutting down", log.String("registry", r.reg.Name()))

		r.err = r.reg.Shutdown(ctx)
		r.gate.Close()
		r.handle.Close()

		if r.err != nil {
			r.logger.Warn("shutdown finished with errors", log.Err(r.err))
		}
	})
	if !first {
		return nil
	}
	return r.err
}
