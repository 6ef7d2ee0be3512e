package content

import (
	"errors"

	"github.com/bft-labs/repoboot/pkg/fileinstall"
)

// Component names accepted in descriptor files.
const (
	ComponentMemoryNodeStore = "nodestore.memory"
	ComponentStaticSecurity  = "security.static"
)

// Factories returns the descriptor factories for the components of this
// package.
//
// nodestore.memory reads the optional "name" property. security.static
// treats every property as a user name with its password.
func Factories() fileinstall.Factories {
	return fileinstall.Factories{
		ComponentMemoryNodeStore: {
			Type: TypeNodeStore,
			New: func(props map[string]string) (any, error) {
				name := props["name"]
				if name == "" {
					name = "default"
				}
				return NewMemoryNodeStore(name), nil
			},
		},
		ComponentStaticSecurity: {
			Type: TypeSecurityProvider,
			New: func(props map[string]string) (any, error) {
				if len(props) == 0 {
					return nil, errors.New("security.static: no users declared")
				}
				return NewStaticSecurityProvider(props), nil
			},
		},
	}
}
