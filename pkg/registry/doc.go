// Package registry provides an in-process registry of typed components with
// change notifications.
//
// Components are registered under a ComponentType. Several instances of the
// same type may coexist; Lookup returns the one with the highest ranking,
// breaking ties by registration order, so repeated lookups are stable until
// the registry changes.
//
// Subscribers receive Added and Removed events on a single dispatcher
// goroutine, in the order the changes were applied. A new subscription is
// first replayed an Added event for every matching component already present.
//
//	reg := registry.New(registry.Config{Name: "repo"},
//	    registry.WithLogger(logger),
//	    registry.WithActivator(watcher),
//	)
//	if err := reg.Start(ctx); err != nil {
//	    return err
//	}
//	defer reg.Shutdown(context.Background())
//
//	sub, err := reg.Subscribe([]registry.ComponentType{"nodestore"}, func(ev registry.Event) {
//	    // runs on the dispatcher goroutine
//	})
//
// # Activators
//
// An Activator is started with the registry and stopped, in reverse order,
// when the registry shuts down. Activators are how components enter the
// registry at unpredictable times: they may register and unregister
// components from their own goroutines for as long as the registry runs.
//
// # Shutdown
//
// Shutdown stops activators, unregisters every remaining component (calling
// Stop on those implementing Stopper) and drains pending events. Failures
// along the way are collected into a *ShutdownError.
package registry
