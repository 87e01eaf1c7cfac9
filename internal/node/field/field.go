package field

import (
	"fmt"
	"io"
	"math"

	"enkfcore/internal/codec"
	"enkfcore/pkg/nodeapi"
)

var (
	_ nodeapi.Type    = Type{}
	_ nodeapi.Node    = (*Node)(nil)
	_ nodeapi.Cloner  = (*Node)(nil)
	_ nodeapi.Clearer = (*Node)(nil)
	_ nodeapi.Equaler = (*Node)(nil)
)

// Type allocates FIELD nodes.
type Type struct{}

func (Type) Impl() nodeapi.ImplType { return nodeapi.ImplField }

func (Type) Name() string { return "FIELD" }

// Alloc returns a zero valued node sized to the active cells of cfg.
func (Type) Alloc(cfg nodeapi.Config) (nodeapi.Node, error) {
	if err := nodeapi.CheckConfig(nodeapi.ImplField, cfg); err != nil {
		return nil, err
	}
	c, ok := cfg.(*Config)
	if !ok {
		return nil, &nodeapi.TypeMismatchError{Want: nodeapi.ImplField, Got: cfg.Impl(), Err: fmt.Errorf("unsupported config %T", cfg)}
	}
	return New(c), nil
}

// Node holds one member's field values in active cell order.
type Node struct {
	cfg  *Config
	data []float64
}

// New allocates a zero valued node for cfg.
func New(cfg *Config) *Node {
	return &Node{cfg: cfg, data: make([]float64, cfg.ActiveSize())}
}

func (n *Node) Impl() nodeapi.ImplType { return nodeapi.ImplField }

func (n *Node) Config() nodeapi.Config { return n.cfg }

// Get returns the value of cell (i, j, k).
func (n *Node) Get(i, j, k int) (float64, error) {
	idx, ok := n.cfg.Index(i, j, k)
	if !ok {
		return 0, fmt.Errorf("field %s: cell (%d,%d,%d) is not active", n.cfg.key, i, j, k)
	}
	return n.data[idx], nil
}

// Set assigns the value of cell (i, j, k).
func (n *Node) Set(i, j, k int, v float64) error {
	idx, ok := n.cfg.Index(i, j, k)
	if !ok {
		return fmt.Errorf("field %s: cell (%d,%d,%d) is not active", n.cfg.key, i, j, k)
	}
	n.data[idx] = v
	return nil
}

// Values returns a copy of the active cell values.
func (n *Node) Values() []float64 { return append([]float64(nil), n.data...) }

// SetValues replaces all active cell values.
func (n *Node) SetValues(vs []float64) error {
	if len(vs) != len(n.data) {
		return fmt.Errorf("field %s: got %d values for %d active cells", n.cfg.key, len(vs), len(n.data))
	}
	copy(n.data, vs)
	return nil
}

// Export returns the values after truncation and the output transform.
func (n *Node) Export() []float64 {
	out := make([]float64, len(n.data))
	for i, v := range n.data {
		out[i] = n.cfg.export(v)
	}
	return out
}

func (n *Node) Clear() {
	for i := range n.data {
		n.data[i] = 0
	}
}

func (n *Node) Clone() nodeapi.Node {
	return &Node{cfg: n.cfg, data: n.Values()}
}

// Equal reports whether other is a FIELD node on the same config with
// bitwise identical values.
func (n *Node) Equal(other nodeapi.Node) bool {
	o, ok := other.(*Node)
	if !ok || o.cfg != n.cfg || len(o.data) != len(n.data) {
		return false
	}
	for i := range n.data {
		if math.Float64bits(n.data[i]) != math.Float64bits(o.data[i]) {
			return false
		}
	}
	return true
}

func (n *Node) WriteTo(w io.Writer) (int64, error) {
	enc := codec.NewEncoder(w)
	enc.Header(nodeapi.ImplField)
	enc.Float64s(n.data)
	return enc.Close()
}

func (n *Node) ReadFrom(r io.Reader) (int64, error) {
	dec := codec.NewDecoder(r, nodeapi.ImplField, n.cfg.key)
	dec.Header()
	data := dec.Float64s()
	if dec.Err() == nil && len(data) != n.cfg.ActiveSize() {
		dec.Fail("stored %d values, config has %d active cells", len(data), n.cfg.ActiveSize())
	}
	read, err := dec.Close()
	if err != nil {
		return read, err
	}
	n.data = data
	return read, nil
}
