package fileinstall

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/bft-labs/repoboot/pkg/registry"
)

// Ext is the extension of descriptor files.
const Ext = ".toml"

var (
	// ErrUnknownComponent is returned for descriptors naming no factory.
	ErrUnknownComponent = errors.New("fileinstall: unknown component")

	// ErrInvalidDescriptor is returned for descriptors that cannot be used.
	ErrInvalidDescriptor = errors.New("fileinstall: invalid descriptor")
)

// Factory creates instances of one component type.
type Factory struct {
	Type registry.ComponentType
	New  func(props map[string]string) (any, error)
}

// Factories maps component names used in descriptors to factories.
type Factories map[string]Factory

// Descriptor is the content of a descriptor file.
type Descriptor struct {
	Component  string            `toml:"component"`
	Ranking    int               `toml:"ranking"`
	Properties map[string]string `toml:"properties"`
}

// ParseDescriptor decodes and validates a descriptor.
func ParseDescriptor(data []byte) (Descriptor, error) {
	var d Descriptor
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&d); err != nil {
		return Descriptor{}, fmt.Errorf("%w: %w", ErrInvalidDescriptor, err)
	}
	d.Component = strings.TrimSpace(d.Component)
	if d.Component == "" {
		return Descriptor{}, fmt.Errorf("%w: component not set", ErrInvalidDescriptor)
	}
	if d.Properties == nil {
		d.Properties = map[string]string{}
	}
	return d, nil
}

// parsed is a descriptor file read from disk.
type parsed struct {
	name string
	sum  [sha256.Size]byte
	desc Descriptor
	err  error
}

func readDescriptor(path, name string) (parsed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return parsed{name: name}, err
	}
	p := parsed{name: name, sum: sha256.Sum256(data)}
	p.desc, p.err = ParseDescriptor(data)
	return p, nil
}
