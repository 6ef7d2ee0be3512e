package handoff

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrTimeout is returned by Await when no result arrives in time.
var ErrTimeout = errors.New("handoff: timed out waiting for result")

// Handoff holds at most one terminal value. The first Publish or Fail wins;
// later calls are ignored. The zero value is not usable; call New.
type Handoff[T any] struct {
	mu    sync.Mutex
	set   bool
	value T
	err   error
	done  chan struct{}
}

// New returns an empty Handoff.
func New[T any]() *Handoff[T] {
	return &Handoff[T]{done: make(chan struct{})}
}

// Publish sets the result. It reports whether this call won the assignment.
func (h *Handoff[T]) Publish(v T) bool {
	return h.complete(v, nil)
}

// Fail sets a failure. A nil cause is replaced with a generic error so the
// failure branch never carries a nil error. It reports whether this call won.
func (h *Handoff[T]) Fail(cause error) bool {
	if cause == nil {
		cause = errors.New("handoff: failed")
	}
	var zero T
	return h.complete(zero, cause)
}

func (h *Handoff[T]) complete(v T, err error) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.set {
		return false
	}
	h.set = true
	h.value = v
	h.err = err
	close(h.done)
	return true
}

// Done is closed once a result or failure is set.
func (h *Handoff[T]) Done() <-chan struct{} {
	return h.done
}

// IsSet reports whether a result or failure has been set.
func (h *Handoff[T]) IsSet() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.set
}

// Await blocks until a result is set or timeout elapses. It returns the
// published value, the published failure, or ErrTimeout.
func (h *Handoff[T]) Await(timeout time.Duration) (T, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-h.done:
		return h.load()
	case <-timer.C:
		// A result that raced the timer still wins.
		select {
		case <-h.done:
			return h.load()
		default:
		}
		var zero T
		return zero, ErrTimeout
	}
}

// AwaitContext blocks until a result is set or ctx is done, in which case
// the context error is returned.
func (h *Handoff[T]) AwaitContext(ctx context.Context) (T, error) {
	select {
	case <-h.done:
		return h.load()
	case <-ctx.Done():
		select {
		case <-h.done:
			return h.load()
		default:
		}
		var zero T
		return zero, ctx.Err()
	}
}

func (h *Handoff[T]) load() (T, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.value, h.err
}
