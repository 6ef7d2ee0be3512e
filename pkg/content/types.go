package content

import (
	"context"
	"errors"

	"github.com/bft-labs/repoboot/pkg/registry"
)

// Component types used in the registry.
const (
	TypeNodeStore        registry.ComponentType = "content.NodeStore"
	TypeSecurityProvider registry.ComponentType = "content.SecurityProvider"
	TypeRepository       registry.ComponentType = "content.Repository"
)

// Required lists the types Build needs.
var Required = []registry.ComponentType{TypeNodeStore, TypeSecurityProvider}

var (
	ErrNodeNotFound      = errors.New("content: node not found")
	ErrNodeExists        = errors.New("content: node already exists")
	ErrInvalidPath       = errors.New("content: invalid path")
	ErrLoginFailed       = errors.New("content: login failed")
	ErrSessionClosed     = errors.New("content: session closed")
	ErrRepositoryStopped = errors.New("content: repository stopped")
	ErrMissingComponent  = errors.New("content: missing component")
)

// Well-known property names.
const (
	PropPrimaryType  = "jcr:primaryType"
	RootType         = "rep:root"
	UnstructuredType = "nt:unstructured"
)

// Node is a copy of a stored node.
type Node struct {
	Path       string
	Properties map[string]string
}

// NodeStore persists nodes by absolute path.
type NodeStore interface {
	// Read returns a copy of the node at path.
	Read(path string) (Node, bool)

	// Write creates or replaces the node at path. The parent must exist.
	Write(path string, props map[string]string) error

	// Remove deletes the node at path together with its descendants.
	Remove(path string) error

	// Children returns the paths of the direct children of path, sorted.
	Children(path string) []string
}

// SecurityProvider authenticates users.
type SecurityProvider interface {
	Authenticate(user, password string) error
}

// Repository is the product capability interface.
type Repository interface {
	Login(user, password string) (*Session, error)
	Descriptor(key string) string
	DescriptorKeys() []string
	Stop(ctx context.Context) error
}
