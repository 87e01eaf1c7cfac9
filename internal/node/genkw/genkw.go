// Package genkw implements the GEN_KW node: a set of named scalar
// parameters, each with a prior distribution. Members store latent standard
// normal values; Transformed maps them into parameter space.
package genkw

import (
	"fmt"
	"io"
	"math"
	"math/rand"

	"enkfcore/internal/codec"
	"enkfcore/pkg/nodeapi"
)

var (
	_ nodeapi.Type        = Type{}
	_ nodeapi.Node        = (*Node)(nil)
	_ nodeapi.Initializer = (*Node)(nil)
	_ nodeapi.Cloner      = (*Node)(nil)
	_ nodeapi.Clearer     = (*Node)(nil)
	_ nodeapi.Equaler     = (*Node)(nil)
)

// Keyword is one named parameter.
type Keyword struct {
	Name  string
	Prior Prior
}

// Config lists the keywords shared by every member.
type Config struct {
	key      string
	keywords []Keyword
	index    map[string]int
}

// NewConfig builds a validated configuration. keywords is deep copied.
func NewConfig(key string, keywords []Keyword) (*Config, error) {
	c := &Config{key: key, index: make(map[string]int, len(keywords))}
	for i, kw := range keywords {
		kw.Prior.Params = append([]float64(nil), kw.Prior.Params...)
		c.keywords = append(c.keywords, kw)
		if _, dup := c.index[kw.Name]; !dup {
			c.index[kw.Name] = i
		}
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) Impl() nodeapi.ImplType { return nodeapi.ImplGenKW }

func (c *Config) Key() string { return c.key }

func (c *Config) Validate() error {
	if c.key == "" {
		return fmt.Errorf("gen_kw key required")
	}
	if len(c.keywords) == 0 {
		return fmt.Errorf("gen_kw %s: no keywords", c.key)
	}
	if len(c.index) != len(c.keywords) {
		return fmt.Errorf("gen_kw %s: duplicate keyword names", c.key)
	}
	for _, kw := range c.keywords {
		if kw.Name == "" {
			return fmt.Errorf("gen_kw %s: empty keyword name", c.key)
		}
		if err := kw.Prior.Validate(); err != nil {
			return fmt.Errorf("gen_kw %s: keyword %s: %w", c.key, kw.Name, err)
		}
	}
	return nil
}

// Keywords returns a deep copy of the keyword list.
func (c *Config) Keywords() []Keyword {
	out := make([]Keyword, len(c.keywords))
	for i, kw := range c.keywords {
		kw.Prior.Params = append([]float64(nil), kw.Prior.Params...)
		out[i] = kw
	}
	return out
}

func (c *Config) Len() int { return len(c.keywords) }

// Type allocates GEN_KW nodes.
type Type struct{}

func (Type) Impl() nodeapi.ImplType { return nodeapi.ImplGenKW }

func (Type) Name() string { return "GEN_KW" }

func (Type) Alloc(cfg nodeapi.Config) (nodeapi.Node, error) {
	if err := nodeapi.CheckConfig(nodeapi.ImplGenKW, cfg); err != nil {
		return nil, err
	}
	c, ok := cfg.(*Config)
	if !ok {
		return nil, &nodeapi.TypeMismatchError{Want: nodeapi.ImplGenKW, Got: cfg.Impl(), Err: fmt.Errorf("unsupported config %T", cfg)}
	}
	return New(c), nil
}

// Node holds one latent value per keyword.
type Node struct {
	cfg    *Config
	latent []float64
}

// New allocates a node with all latent values at zero, i.e. the prior median.
func New(cfg *Config) *Node {
	return &Node{cfg: cfg, latent: make([]float64, cfg.Len())}
}

func (n *Node) Impl() nodeapi.ImplType { return nodeapi.ImplGenKW }

func (n *Node) Config() nodeapi.Config { return n.cfg }

// Value returns the latent value of keyword name.
func (n *Node) Value(name string) (float64, error) {
	i, ok := n.cfg.index[name]
	if !ok {
		return 0, fmt.Errorf("gen_kw %s: unknown keyword %s", n.cfg.key, name)
	}
	return n.latent[i], nil
}

// SetValue assigns the latent value of keyword name.
func (n *Node) SetValue(name string, v float64) error {
	i, ok := n.cfg.index[name]
	if !ok {
		return fmt.Errorf("gen_kw %s: unknown keyword %s", n.cfg.key, name)
	}
	n.latent[i] = v
	return nil
}

// Latent returns a copy of the latent values in keyword order.
func (n *Node) Latent() []float64 { return append([]float64(nil), n.latent...) }

// Transformed returns the parameter values keyed by keyword name.
func (n *Node) Transformed() map[string]float64 {
	out := make(map[string]float64, len(n.latent))
	for i, kw := range n.cfg.keywords {
		out[kw.Name] = kw.Prior.Transform(n.latent[i])
	}
	return out
}

// Initialize draws every latent value from N(0,1).
func (n *Node) Initialize(_ int, rng *rand.Rand) error {
	if rng == nil {
		return fmt.Errorf("gen_kw %s: nil random source", n.cfg.key)
	}
	for i := range n.latent {
		n.latent[i] = rng.NormFloat64()
	}
	return nil
}

func (n *Node) Clear() {
	for i := range n.latent {
		n.latent[i] = 0
	}
}

func (n *Node) Clone() nodeapi.Node { return &Node{cfg: n.cfg, latent: n.Latent()} }

func (n *Node) Equal(other nodeapi.Node) bool {
	o, ok := other.(*Node)
	if !ok || o.cfg != n.cfg || len(o.latent) != len(n.latent) {
		return false
	}
	for i := range n.latent {
		if math.Float64bits(n.latent[i]) != math.Float64bits(o.latent[i]) {
			return false
		}
	}
	return true
}

func (n *Node) WriteTo(w io.Writer) (int64, error) {
	enc := codec.NewEncoder(w)
	enc.Header(nodeapi.ImplGenKW)
	enc.Float64s(n.latent)
	return enc.Close()
}

func (n *Node) ReadFrom(r io.Reader) (int64, error) {
	dec := codec.NewDecoder(r, nodeapi.ImplGenKW, n.cfg.key)
	dec.Header()
	latent := dec.Float64s()
	if dec.Err() == nil && len(latent) != n.cfg.Len() {
		dec.Fail("stored %d keywords, config has %d", len(latent), n.cfg.Len())
	}
	read, err := dec.Close()
	if err != nil {
		return read, err
	}
	n.latent = latent
	return read, nil
}
