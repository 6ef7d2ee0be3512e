package livehandle

import (
	"errors"
	"sync"
)

var (
	// ErrNoActiveInstance is returned when neither a current instance nor a
	// valid fallback exists. A later call may succeed once a new instance
	// is registered.
	ErrNoActiveInstance = errors.New("livehandle: no active instance")

	// ErrClosed is returned by every call after Close.
	ErrClosed = errors.New("livehandle: handle closed")
)

// Source resolves the current instance and reports how many product
// changes it has seen. Generation must move as soon as a change is applied.
type Source[T any] interface {
	Current() (T, bool)
	Generation() uint64
}

// Handle delegates to the source's current instance. Until the source
// observes its first change after the handle was issued, the instance
// captured at publish time serves as a fallback.
type Handle[T any] struct {
	src Source[T]

	mu         sync.Mutex
	initial    T
	hasInitial bool
	baseline   uint64
	closed     bool
}

// New returns a handle whose fallback is initial. baseline is the source
// generation at the moment initial was published.
func New[T any](src Source[T], initial T, baseline uint64) *Handle[T] {
	return &Handle[T]{
		src:        src,
		initial:    initial,
		hasInitial: true,
		baseline:   baseline,
	}
}

// Get resolves the instance a call should be forwarded to.
func (h *Handle[T]) Get() (T, error) {
	var zero T

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return zero, ErrClosed
	}
	h.dropStaleLocked()
	h.mu.Unlock()

	if v, ok := h.src.Current(); ok {
		return v, nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return zero, ErrClosed
	}
	h.dropStaleLocked()
	if h.hasInitial {
		return h.initial, nil
	}
	return zero, ErrNoActiveInstance
}

// HasFallback reports whether the publish-time instance is still usable.
func (h *Handle[T]) HasFallback() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropStaleLocked()
	return h.hasInitial && !h.closed
}

// Close releases the fallback; every later call fails with ErrClosed.
func (h *Handle[T]) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	var zero T
	h.closed = true
	h.initial = zero
	h.hasInitial = false
}

// dropStaleLocked clears the fallback once the source has seen any change.
// The fallback never comes back.
func (h *Handle[T]) dropStaleLocked() {
	if !h.hasInitial || h.src.Generation() == h.baseline {
		return
	}
	var zero T
	h.initial = zero
	h.hasInitial = false
}

// Do forwards fn to the current instance. Errors from fn are returned
// unchanged.
func (h *Handle[T]) Do(fn func(T) error) error {
	v, err := h.Get()
	if err != nil {
		return err
	}
	return fn(v)
}

// Call forwards fn to the current instance of h and returns its result.
func Call[T, R any](h *Handle[T], fn func(T) (R, error)) (R, error) {
	v, err := h.Get()
	if err != nil {
		var zero R
		return zero, err
	}
	return fn(v)
}
