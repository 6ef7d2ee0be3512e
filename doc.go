// Package repoboot boots an in-memory content repository whose node store
// and security provider are supplied through a component registry.
//
// Basic usage:
//
//	repo, err := repoboot.Open(ctx, repoboot.Config{Home: "/srv/repo", Watch: true})
//	if err != nil {
//	    return err
//	}
//	defer repo.Shutdown(context.Background())
//
//	session, err := repo.Login("admin", "admin")
//
// With Watch set, components are declared as descriptor files in
// <home>/config (see package fileinstall). Components can also be supplied
// programmatically with WithComponent.
//
// The returned Repository always forwards to the repository instance that
// is currently registered, so a replacement registered later is picked up
// without reopening.
package repoboot
