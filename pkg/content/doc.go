// Package content is a small in-memory content repository assembled from a
// NodeStore and a SecurityProvider found in the component registry.
//
// Build is the gate builder: it runs once both dependencies are registered,
// seeds the root node and returns a Repository. Factories exposes
// constructors for the components so they can be declared in descriptor
// files.
package content
