// Package builtin registers the node types shipped with enkfcore.
package builtin

import (
	"enkfcore/internal/node/field"
	"enkfcore/internal/node/genkw"
	"enkfcore/internal/node/summary"
	"enkfcore/pkg/nodeapi"
)

// Types returns the builtin node types.
func Types() []nodeapi.Type {
	return []nodeapi.Type{field.Type{}, genkw.Type{}, summary.Type{}}
}

// Register installs the builtin node types into reg.
func Register(reg *nodeapi.Registry) error {
	for _, typ := range Types() {
		if err := reg.Register(typ); err != nil {
			return err
		}
	}
	return nil
}

// NewRegistry returns a registry holding the builtin node types.
func NewRegistry() *nodeapi.Registry {
	reg := nodeapi.NewRegistry()
	if err := Register(reg); err != nil {
		panic(err) // builtin impls are distinct constants
	}
	return reg
}
