// Package summary implements the SUMMARY node: a sparse per report step
// series of one summary vector such as WOPR:OP_1.
package summary

import (
	"fmt"
	"io"
	"math"
	"sort"

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

// Config names the summary vector.
type Config struct {
	key      string
	required bool
}

// Option customises a Config.
type Option func(*Config)

// WithRequired marks the vector as one the caller expects every member to
// produce.
func WithRequired(required bool) Option {
	return func(c *Config) { c.required = required }
}

// NewConfig builds a validated summary configuration.
func NewConfig(key string, opts ...Option) (*Config, error) {
	c := &Config{key: key}
	for _, opt := range opts {
		opt(c)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) Impl() nodeapi.ImplType { return nodeapi.ImplSummary }

func (c *Config) Key() string { return c.key }

func (c *Config) Required() bool { return c.required }

func (c *Config) Validate() error {
	if c.key == "" {
		return fmt.Errorf("summary key required")
	}
	return nil
}

// Type allocates SUMMARY nodes.
type Type struct{}

func (Type) Impl() nodeapi.ImplType { return nodeapi.ImplSummary }

func (Type) Name() string { return "SUMMARY" }

func (Type) Alloc(cfg nodeapi.Config) (nodeapi.Node, error) {
	if err := nodeapi.CheckConfig(nodeapi.ImplSummary, cfg); err != nil {
		return nil, err
	}
	c, ok := cfg.(*Config)
	if !ok {
		return nil, &nodeapi.TypeMismatchError{Want: nodeapi.ImplSummary, Got: cfg.Impl(), Err: fmt.Errorf("unsupported config %T", cfg)}
	}
	return New(c), nil
}

// Node holds the values reported so far, keyed by report step.
type Node struct {
	cfg    *Config
	values map[int]float64
}

// New allocates an empty series for cfg.
func New(cfg *Config) *Node {
	return &Node{cfg: cfg, values: make(map[int]float64)}
}

func (n *Node) Impl() nodeapi.ImplType { return nodeapi.ImplSummary }

func (n *Node) Config() nodeapi.Config { return n.cfg }

// Set records the value at report step.
func (n *Node) Set(step int, v float64) error {
	if step < 0 || step > math.MaxInt32 {
		return fmt.Errorf("summary %s: invalid report step %d", n.cfg.key, step)
	}
	n.values[step] = v
	return nil
}

// Get returns the value at report step.
func (n *Node) Get(step int) (float64, bool) {
	v, ok := n.values[step]
	return v, ok
}

// Steps returns the report steps holding a value, ascending.
func (n *Node) Steps() []int {
	steps := make([]int, 0, len(n.values))
	for step := range n.values {
		steps = append(steps, step)
	}
	sort.Ints(steps)
	return steps
}

func (n *Node) Len() int { return len(n.values) }

func (n *Node) Clear() { n.values = make(map[int]float64) }

func (n *Node) Clone() nodeapi.Node {
	cp := New(n.cfg)
	for step, v := range n.values {
		cp.values[step] = v
	}
	return cp
}

func (n *Node) Equal(other nodeapi.Node) bool {
	o, ok := other.(*Node)
	if !ok || o.cfg != n.cfg || len(o.values) != len(n.values) {
		return false
	}
	for step, v := range n.values {
		ov, ok := o.values[step]
		if !ok || math.Float64bits(ov) != math.Float64bits(v) {
			return false
		}
	}
	return true
}

func (n *Node) WriteTo(w io.Writer) (int64, error) {
	enc := codec.NewEncoder(w)
	enc.Header(nodeapi.ImplSummary)
	steps := n.Steps()
	enc.Uint32(uint32(len(steps)))
	for _, step := range steps {
		enc.Int32(int32(step))
		enc.Float64(n.values[step])
	}
	return enc.Close()
}

func (n *Node) ReadFrom(r io.Reader) (int64, error) {
	dec := codec.NewDecoder(r, nodeapi.ImplSummary, n.cfg.key)
	dec.Header()
	count := dec.Len()
	values := make(map[int]float64, min(count, 1024))
	prev := -1
	for i := 0; i < count && dec.Err() == nil; i++ {
		step := int(dec.Int32())
		v := dec.Float64()
		if dec.Err() != nil {
			break
		}
		if step <= prev {
			dec.Fail("report step %d follows %d", step, prev)
			break
		}
		values[step] = v
		prev = step
	}
	read, err := dec.Close()
	if err != nil {
		return read, err
	}
	n.values = values
	return read, nil
}
