package registry

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotRunning is returned when the registry cannot accept the request
	// in its current lifecycle state.
	ErrNotRunning = errors.New("registry: not running")

	// ErrNotRegistered is returned when unregistering an unknown component.
	ErrNotRegistered = errors.New("registry: component not registered")

	// ErrInvalidComponent is returned for an empty type or a nil instance.
	ErrInvalidComponent = errors.New("registry: invalid component")
)

// ShutdownError collects the secondary failures encountered while stopping
// the registry. The registry still completes its shutdown.
type ShutdownError struct {
	Errs []error
}

func (e *ShutdownError) Error() string {
	msgs := make([]string, 0, len(e.Errs))
	for _, err := range e.Errs {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("registry: shutdown: %s", strings.Join(msgs, "; "))
}

// Unwrap exposes the individual failures to errors.Is and errors.As.
func (e *ShutdownError) Unwrap() []error {
	return e.Errs
}
