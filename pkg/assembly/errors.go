package assembly

import (
	"errors"
	"fmt"
	"time"

	"github.com/bft-labs/repoboot/pkg/livehandle"
	"github.com/bft-labs/repoboot/pkg/registry"
)

var (
	// ErrConfigurationMissing is returned when a required startup parameter
	// is absent. Nothing has been started.
	ErrConfigurationMissing = errors.New("assembly: configuration missing")

	// ErrAssemblyTimeout is matched by *TimeoutError.
	ErrAssemblyTimeout = errors.New("assembly: timed out waiting for dependencies")

	// ErrAssemblyFailed is matched by *FailedError.
	ErrAssemblyFailed = errors.New("assembly: failed")

	// ErrInterrupted is returned when the caller's context ends the wait.
	ErrInterrupted = errors.New("assembly: interrupted")

	// ErrResourceClosed is returned by Resource calls after Shutdown.
	ErrResourceClosed = errors.New("assembly: resource shut down")

	// ErrNoActiveInstance is returned when no live product instance exists.
	ErrNoActiveInstance = livehandle.ErrNoActiveInstance
)

// TimeoutError reports that the required dependencies were not available
// within Timeout. The registry has been shut down; Shutdown holds any
// secondary failure from doing so.
type TimeoutError struct {
	Timeout  time.Duration
	Shutdown error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: not started in %s", ErrAssemblyTimeout, e.Timeout)
}

// Is matches ErrAssemblyTimeout. The shutdown failure is not part of the
// chain.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrAssemblyTimeout
}

// FailedError reports that assembly could not complete.
type FailedError struct {
	Cause error

	// Registry is still running when the builder failed, so other components
	// remain usable. It is nil when the registry never came up.
	Registry *registry.Registry
}

func (e *FailedError) Error() string {
	return fmt.Sprintf("%s: %v", ErrAssemblyFailed, e.Cause)
}

func (e *FailedError) Is(target error) bool {
	return target == ErrAssemblyFailed
}

func (e *FailedError) Unwrap() error {
	return e.Cause
}
