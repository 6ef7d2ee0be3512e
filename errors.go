package repoboot

import "github.com/bft-labs/repoboot/pkg/assembly"

// Errors returned by Open and Repository.
var (
	ErrConfigurationMissing = assembly.ErrConfigurationMissing
	ErrAssemblyTimeout      = assembly.ErrAssemblyTimeout
	ErrAssemblyFailed       = assembly.ErrAssemblyFailed
	ErrInterrupted          = assembly.ErrInterrupted
	ErrResourceClosed       = assembly.ErrResourceClosed
	ErrNoActiveInstance     = assembly.ErrNoActiveInstance
)
