package content

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/bft-labs/repoboot/pkg/registry"
)

// Descriptor keys every repository reports.
const (
	DescRepositoryName = "jcr.repository.name"
	DescVendor         = "jcr.repository.vendor"
	DescSpecVersion    = "jcr.specification.version"
	DescNodeStore      = "repoboot.nodestore"
)

// Build is the gate builder for Repository. It seeds the root node when the
// store is empty.
func Build(ctx context.Context, snap registry.Snapshot) (Repository, error) {
	store, err := lookup[NodeStore](snap, TypeNodeStore)
	if err != nil {
		return nil, err
	}
	security, err := lookup[SecurityProvider](snap, TypeSecurityProvider)
	if err != nil {
		return nil, err
	}

	if _, ok := store.Read("/"); !ok {
		if err := store.Write("/", map[string]string{PropPrimaryType: RootType}); err != nil {
			return nil, fmt.Errorf("seed root: %w", err)
		}
	}

	desc := map[string]string{
		DescRepositoryName: "repoboot",
		DescVendor:         "bft-labs",
		DescSpecVersion:    "2.0",
	}
	if n, ok := store.(interface{ Name() string }); ok {
		desc[DescNodeStore] = n.Name()
	}
	return NewContentRepository(store, security, desc), nil
}

func lookup[T any](snap registry.Snapshot, t registry.ComponentType) (T, error) {
	var zero T
	v, ok := snap.Lookup(t)
	if !ok {
		return zero, fmt.Errorf("%w: %s", ErrMissingComponent, t)
	}
	c, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s has type %T", ErrMissingComponent, t, v)
	}
	return c, nil
}

// ContentRepository serves sessions over a node store.
type ContentRepository struct {
	store       NodeStore
	security    SecurityProvider
	descriptors map[string]string

	stopped  atomic.Bool
	mu       sync.Mutex
	sessions map[*Session]struct{}
}

var _ Repository = (*ContentRepository)(nil)

// NewContentRepository returns a repository over store.
func NewContentRepository(store NodeStore, security SecurityProvider, descriptors map[string]string) *ContentRepository {
	return &ContentRepository{
		store:       store,
		security:    security,
		descriptors: maps.Clone(descriptors),
		sessions:    make(map[*Session]struct{}),
	}
}

// Login authenticates user and opens a session.
func (r *ContentRepository) Login(user, password string) (*Session, error) {
	if r.stopped.Load() {
		return nil, ErrRepositoryStopped
	}
	if err := r.security.Authenticate(user, password); err != nil {
		return nil, err
	}

	s := &Session{user: user, repo: r}
	r.mu.Lock()
	r.sessions[s] = struct{}{}
	r.mu.Unlock()
	return s, nil
}

func (r *ContentRepository) Descriptor(key string) string {
	return r.descriptors[key]
}

func (r *ContentRepository) DescriptorKeys() []string {
	var keys []string
	for k := range r.descriptors {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// ActiveSessions returns the number of sessions not yet logged out.
func (r *ContentRepository) ActiveSessions() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Stop logs out every session. Later logins fail with ErrRepositoryStopped.
func (r *ContentRepository) Stop(ctx context.Context) error {
	if !r.stopped.CompareAndSwap(false, true) {
		return nil
	}
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[*Session]struct{})
	r.mu.Unlock()

	for s := range sessions {
		s.closed.Store(true)
	}
	return nil
}

func (r *ContentRepository) release(s *Session) {
	r.mu.Lock()
	delete(r.sessions, s)
	r.mu.Unlock()
}
