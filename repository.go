package repoboot

import (
	"context"

	"github.com/bft-labs/repoboot/pkg/assembly"
	"github.com/bft-labs/repoboot/pkg/content"
	"github.com/bft-labs/repoboot/pkg/registry"
)

// Repository forwards every call to the currently registered
// content.Repository. Calls fail with ErrNoActiveInstance while no instance
// is registered and with ErrResourceClosed after Shutdown.
type Repository struct {
	res *assembly.Resource[content.Repository]
}

// Login opens a session on the live repository.
func (r *Repository) Login(user, password string) (*content.Session, error) {
	return assembly.Call(r.res, func(repo content.Repository) (*content.Session, error) {
		return repo.Login(user, password)
	})
}

// Descriptor returns the value of a repository descriptor.
func (r *Repository) Descriptor(key string) (string, error) {
	return assembly.Call(r.res, func(repo content.Repository) (string, error) {
		return repo.Descriptor(key), nil
	})
}

// DescriptorKeys returns the names of all repository descriptors.
func (r *Repository) DescriptorKeys() ([]string, error) {
	return assembly.Call(r.res, func(repo content.Repository) ([]string, error) {
		return repo.DescriptorKeys(), nil
	})
}

// Registry returns the component registry behind the repository.
func (r *Repository) Registry() *registry.Registry {
	return r.res.Registry()
}

// Shutdown stops the registry together with the repository and every
// component. Calls after the first have no effect.
func (r *Repository) Shutdown(ctx context.Context) error {
	return r.res.Shutdown(ctx)
}
