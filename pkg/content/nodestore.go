package content

import (
	"context"
	"fmt"
	"maps"
	"path"
	"sort"
	"strings"
	"sync"
)

// MemoryNodeStore keeps nodes in a map.
type MemoryNodeStore struct {
	name string

	mu    sync.RWMutex
	nodes map[string]map[string]string
}

// NewMemoryNodeStore returns an empty store.
func NewMemoryNodeStore(name string) *MemoryNodeStore {
	return &MemoryNodeStore{
		name:  name,
		nodes: make(map[string]map[string]string),
	}
}

// Name identifies the store.
func (s *MemoryNodeStore) Name() string { return s.name }

func cleanPath(p string) (string, error) {
	if !strings.HasPrefix(p, "/") {
		return "", fmt.Errorf("%w: %q is not absolute", ErrInvalidPath, p)
	}
	return path.Clean(p), nil
}

func (s *MemoryNodeStore) Read(p string) (Node, bool) {
	p, err := cleanPath(p)
	if err != nil {
		return Node{}, false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	props, ok := s.nodes[p]
	if !ok {
		return Node{}, false
	}
	return Node{Path: p, Properties: maps.Clone(props)}, true
}

func (s *MemoryNodeStore) Write(p string, props map[string]string) error {
	p, err := cleanPath(p)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if p != "/" {
		if _, ok := s.nodes[path.Dir(p)]; !ok {
			return fmt.Errorf("%w: parent of %s", ErrNodeNotFound, p)
		}
	}
	if props == nil {
		props = map[string]string{}
	}
	s.nodes[p] = maps.Clone(props)
	return nil
}

func (s *MemoryNodeStore) Remove(p string) error {
	p, err := cleanPath(p)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.nodes[p]; !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, p)
	}
	prefix := strings.TrimSuffix(p, "/") + "/"
	for k := range s.nodes {
		if k == p || strings.HasPrefix(k, prefix) {
			delete(s.nodes, k)
		}
	}
	return nil
}

func (s *MemoryNodeStore) Children(p string) []string {
	p, err := cleanPath(p)
	if err != nil {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for k := range s.nodes {
		if k != "/" && path.Dir(k) == p {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// Stop drops all nodes.
func (s *MemoryNodeStore) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.nodes = make(map[string]map[string]string)
	s.mu.Unlock()
	return nil
}
