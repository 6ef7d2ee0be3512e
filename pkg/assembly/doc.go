// Package assembly bootstraps a product whose dependencies arrive
// asynchronously in a component registry.
//
// Assemble starts a registry, waits for a gate over the required component
// types to publish the product, and returns a Resource that always forwards
// to the live product instance:
//
//	res, err := assembly.Assemble(ctx, assembly.Config{Home: "/srv/repo"}, assembly.Plan[content.Repository]{
//	    Required:    []registry.ComponentType{content.TypeNodeStore, content.TypeSecurityProvider},
//	    ProductType: content.TypeRepository,
//	    Build:       content.Build,
//	})
//	if err != nil {
//	    return err
//	}
//	defer res.Shutdown(context.Background())
//
// # Failures
//
// Assemble returns a working resource or exactly one failure:
//   - ErrConfigurationMissing: Home is unset; nothing was started.
//   - ErrAssemblyTimeout (*TimeoutError): dependencies never became available;
//     the registry has been shut down.
//   - ErrAssemblyFailed (*FailedError): the builder failed; the registry is
//     left running and reachable through FailedError.Registry.
//   - ErrInterrupted: ctx was cancelled while waiting; the registry has been
//     shut down.
//
// # Phases
//
// Each call moves through Starting, WaitingForDependencies and one of
// Assembled, TimedOut or Failed. Use WithObserver to follow the transitions.
package assembly
