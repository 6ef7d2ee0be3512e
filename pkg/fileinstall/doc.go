// Package fileinstall provisions registry components from descriptor files.
//
// The activator watches a directory (the registry's config.dir property by
// default) for *.toml files of the form
//
//	component = "nodestore.memory"
//	ranking = 10
//
//	[properties]
//	name = "main"
//
// Each file yields one component, created by the factory registered under
// its component name. Rewriting a file replaces the component; deleting or
// renaming it unregisters the component.
package fileinstall
