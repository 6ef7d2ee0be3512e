package content

import (
	"fmt"
	"maps"
	"path"
	"sync/atomic"
)

// Session is an authenticated view of a repository.
type Session struct {
	user   string
	repo   *ContentRepository
	closed atomic.Bool
}

// UserID returns the authenticated user.
func (s *Session) UserID() string { return s.user }

// Live reports whether the session can still be used.
func (s *Session) Live() bool { return !s.closed.Load() }

func (s *Session) check() error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	return nil
}

// NodeExists reports whether a node exists at p.
func (s *Session) NodeExists(p string) (bool, error) {
	if err := s.check(); err != nil {
		return false, err
	}
	_, ok := s.repo.store.Read(p)
	return ok, nil
}

// AddNode creates a node of primaryType at p.
func (s *Session) AddNode(p, primaryType string) error {
	if err := s.check(); err != nil {
		return err
	}
	if _, ok := s.repo.store.Read(p); ok {
		return fmt.Errorf("%w: %s", ErrNodeExists, p)
	}
	if primaryType == "" {
		primaryType = UnstructuredType
	}
	return s.repo.store.Write(p, map[string]string{PropPrimaryType: primaryType})
}

// RemoveNode deletes the node at p and its descendants.
func (s *Session) RemoveNode(p string) error {
	if err := s.check(); err != nil {
		return err
	}
	if path.Clean(p) == "/" {
		return fmt.Errorf("%w: cannot remove root", ErrInvalidPath)
	}
	return s.repo.store.Remove(p)
}

// Property returns the value of name on the node at p.
func (s *Session) Property(p, name string) (string, bool, error) {
	if err := s.check(); err != nil {
		return "", false, err
	}
	n, ok := s.repo.store.Read(p)
	if !ok {
		return "", false, fmt.Errorf("%w: %s", ErrNodeNotFound, p)
	}
	v, ok := n.Properties[name]
	return v, ok, nil
}

// SetProperty sets name to value on the node at p.
func (s *Session) SetProperty(p, name, value string) error {
	if err := s.check(); err != nil {
		return err
	}
	n, ok := s.repo.store.Read(p)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, p)
	}
	props := maps.Clone(n.Properties)
	props[name] = value
	return s.repo.store.Write(n.Path, props)
}

// Children returns the child paths of the node at p.
func (s *Session) Children(p string) ([]string, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	if _, ok := s.repo.store.Read(p); !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, p)
	}
	return s.repo.store.Children(p), nil
}

// Logout closes the session. It is safe to call more than once.
func (s *Session) Logout() {
	if s.closed.CompareAndSwap(false, true) {
		s.repo.release(s)
	}
}
