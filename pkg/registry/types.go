package registry

import (
	"context"
	"reflect"

	"github.com/google/uuid"
)

// ComponentType identifies what a component provides. Lookups and
// subscriptions are keyed by it.
type ComponentType string

// EventKind distinguishes additions from removals.
type EventKind int

const (
	Added EventKind = iota + 1
	Removed
)

func (k EventKind) String() string {
	switch k {
	case Added:
		return "added"
	case Removed:
		return "removed"
	default:
		return "unknown"
	}
}

// Reference describes one registration. The same instance registered twice
// yields two references with distinct IDs.
type Reference struct {
	ID       uuid.UUID
	Type     ComponentType
	Instance any
	Ranking  int
	// Source names whoever registered the component, e.g. a descriptor file.
	Source string

	seq uint64
	rev uint64
}

// Revision is the type revision this registration produced.
func (r *Reference) Revision() uint64 { return r.rev }

// Event reports a change to the registry.
type Event struct {
	Kind      EventKind
	Reference *Reference
}

// Type returns the component type the event is about.
func (e Event) Type() ComponentType { return e.Reference.Type }

// Instance returns the component instance the event is about.
func (e Event) Instance() any { return e.Reference.Instance }

// Listener receives registry events. It is called on the dispatcher
// goroutine and must not block for long.
type Listener func(Event)

// Stopper is implemented by components that hold resources. The registry
// calls Stop when it shuts down with the component still registered.
type Stopper interface {
	Stop(ctx context.Context) error
}

// Activator contributes components to the registry for its whole lifetime.
type Activator interface {
	// Name identifies the activator in logs and errors.
	Name() string

	// Start is called while the registry starts. The context stays valid
	// until the registry shuts down.
	Start(ctx context.Context, reg *Registry) error

	// Stop is called, in reverse start order, when the registry shuts down.
	Stop(ctx context.Context) error
}

// RegisterOption customizes a registration.
type RegisterOption func(*Reference)

// WithRanking sets the registration ranking; higher wins in Lookup.
func WithRanking(ranking int) RegisterOption {
	return func(r *Reference) {
		r.Ranking = ranking
	}
}

// WithSource records who registered the component.
func WithSource(source string) RegisterOption {
	return func(r *Reference) {
		r.Source = source
	}
}

// sameInstance reports whether a and b are the same component value without
// panicking on uncomparable dynamic types.
func sameInstance(a, b any) bool {
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || ta == nil || !ta.Comparable() {
		return false
	}
	return a == b
}

// better reports whether a should be preferred over b by Lookup.
func better(a, b *Reference) bool {
	if a.Ranking != b.Ranking {
		return a.Ranking > b.Ranking
	}
	return a.seq < b.seq
}
