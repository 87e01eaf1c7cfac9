// Package nodeapi defines the contract every ensemble node type implements.
//
// A node type is split in two halves. The Config is built once per ensemble
// key and shared by every member; the Node holds the member specific state
// and a reference to the Config it was allocated from. Generic ensemble code
// only ever talks to the interfaces in this package.
package nodeapi

import (
	"io"
	"math/rand"
	"strconv"
)

// ImplType identifies a node variant. The value is written into every
// serialized frame so readers can reject state written by another variant.
type ImplType uint32

const (
	ImplField   ImplType = 104
	ImplGenKW   ImplType = 107
	ImplSummary ImplType = 110
)

var implNames = map[ImplType]string{
	ImplField:   "FIELD",
	ImplGenKW:   "GEN_KW",
	ImplSummary: "SUMMARY",
}

func (t ImplType) String() string {
	if name, ok := implNames[t]; ok {
		return name
	}
	return "IMPL(" + strconv.FormatUint(uint64(t), 10) + ")"
}

// Config is the shared, read-only configuration of one ensemble key.
type Config interface {
	Impl() ImplType
	Key() string
	Validate() error
}

// Node is one ensemble member's instance of a node type.
//
// ReadFrom and WriteTo must agree on the encoding: writing a node and reading
// the bytes back into a node allocated from the same Config yields an equal
// node. ReadFrom consumes exactly one frame and leaves the node unchanged on
// error.
type Node interface {
	Impl() ImplType
	Config() Config
	io.ReaderFrom
	io.WriterTo
}

// Type allocates nodes of one variant.
type Type interface {
	Impl() ImplType
	Name() string
	Alloc(cfg Config) (Node, error)
}

// Cloner is implemented by nodes that can produce a deep copy sharing the
// same Config.
type Cloner interface {
	Clone() Node
}

// Clearer is implemented by nodes that can reset their state to zero values.
type Clearer interface {
	Clear()
}

// Initializer is implemented by nodes that draw their initial state from a
// prior.
type Initializer interface {
	Initialize(member int, rng *rand.Rand) error
}

// Equaler is implemented by nodes that can report observable equality.
type Equaler interface {
	Equal(other Node) bool
}
