// Package gate builds a product once a fixed set of component types is
// simultaneously present in a registry.
//
// A Gate subscribes to the registry for its required types and re-evaluates
// on every event. The first time every required type has at least one
// instance, the builder runs on the delivering goroutine and its result is
// published to the gate's Handoff. The builder runs at most once per Gate,
// even when qualifying events race on different goroutines.
//
// The builder never runs on the goroutine that calls New, so a caller
// waiting on the Handoff bounds the build with its own deadline.
//
// After publishing, the gate keeps watching the product type. Every later
// add or remove bumps the product generation, which live handles use to
// drop the instance captured at publish time. The generation follows the
// registry's revision of the product type, so it moves as soon as
// Unregister returns rather than when the event is delivered.
package gate
