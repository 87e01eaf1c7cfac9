// Package field implements the FIELD node: one value per active cell of a
// three dimensional grid, e.g. porosity or permeability.
package field

import (
	"fmt"
	"math"
	"strings"

	"enkfcore/pkg/nodeapi"
)

// MaxCells bounds nx*ny*nz of a grid.
const MaxCells = 1 << 28

// Output transforms applied by Node.Export.
const (
	TransformNone  = ""
	TransformExp   = "exp"
	TransformLog   = "log"
	TransformPow10 = "pow10"
)

var transforms = map[string]func(float64) float64{
	TransformNone:  func(v float64) float64 { return v },
	TransformExp:   math.Exp,
	TransformLog:   math.Log,
	TransformPow10: func(v float64) float64 { return math.Pow(10, v) },
}

// Config is the grid description shared by every member of a field.
type Config struct {
	key        string
	nx, ny, nz int
	size       int // nx*ny*nz, 0 when the dimensions are invalid
	active     []bool
	index      []int // global cell -> active index, -1 when inactive
	activeSize int
	transform  string
	truncate   bool
	lo, hi     float64
}

// Option customises a Config.
type Option func(*Config)

// WithTransform selects the output transform applied by Export.
func WithTransform(name string) Option {
	return func(c *Config) { c.transform = strings.ToLower(name) }
}

// WithTruncation clamps exported values to [lo, hi].
func WithTruncation(lo, hi float64) Option {
	return func(c *Config) {
		c.truncate = true
		c.lo, c.hi = lo, hi
	}
}

// NewConfig builds a validated field configuration. A nil active mask marks
// every cell active. The mask is copied.
func NewConfig(key string, nx, ny, nz int, active []bool, opts ...Option) (*Config, error) {
	c := &Config{key: key, nx: nx, ny: ny, nz: nz}
	for _, opt := range opts {
		opt(c)
	}
	if size, ok := CellCount(nx, ny, nz); ok {
		c.size = size
		if active == nil {
			c.active = make([]bool, size)
			for i := range c.active {
				c.active[i] = true
			}
		} else {
			c.active = append([]bool(nil), active...)
		}
		if len(c.active) == size {
			c.index = make([]int, size)
			for i, on := range c.active {
				if on {
					c.index[i] = c.activeSize
					c.activeSize++
				} else {
					c.index[i] = -1
				}
			}
		}
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) Impl() nodeapi.ImplType { return nodeapi.ImplField }

func (c *Config) Key() string { return c.key }

// Validate reports whether the configuration can allocate nodes.
func (c *Config) Validate() error {
	if c.key == "" {
		return fmt.Errorf("field key required")
	}
	if c.size == 0 {
		return fmt.Errorf("field %s: invalid dimensions %dx%dx%d (each positive, at most %d cells)", c.key, c.nx, c.ny, c.nz, MaxCells)
	}
	if len(c.active) != c.size {
		return fmt.Errorf("field %s: active mask has %d cells, grid has %d", c.key, len(c.active), c.size)
	}
	if c.activeSize == 0 {
		return fmt.Errorf("field %s: no active cells", c.key)
	}
	if _, ok := transforms[c.transform]; !ok {
		return fmt.Errorf("field %s: unknown transform %q", c.key, c.transform)
	}
	if c.truncate && !(c.lo < c.hi) {
		return fmt.Errorf("field %s: truncation min %g must be below max %g", c.key, c.lo, c.hi)
	}
	return nil
}

// CellCount returns nx*ny*nz. It reports false when a dimension is not
// positive or the product exceeds MaxCells.
func CellCount(nx, ny, nz int) (int, bool) {
	if nx <= 0 || ny <= 0 || nz <= 0 {
		return 0, false
	}
	size := nx
	for _, d := range []int{ny, nz} {
		if d > MaxCells/size {
			return 0, false
		}
		size *= d
	}
	return size, size <= MaxCells
}

// Dims returns the grid dimensions.
func (c *Config) Dims() (nx, ny, nz int) { return c.nx, c.ny, c.nz }

// ActiveSize returns the number of active cells.
func (c *Config) ActiveSize() int { return c.activeSize }

// ActiveMask returns a copy of the active mask in global cell order.
func (c *Config) ActiveMask() []bool { return append([]bool(nil), c.active...) }

// Transform returns the output transform name.
func (c *Config) Transform() string { return c.transform }

// Truncation returns the export clamp and whether it is enabled.
func (c *Config) Truncation() (lo, hi float64, ok bool) { return c.lo, c.hi, c.truncate }

// Index maps grid coordinates to the active index.
func (c *Config) Index(i, j, k int) (int, bool) {
	if i < 0 || j < 0 || k < 0 || i >= c.nx || j >= c.ny || k >= c.nz {
		return 0, false
	}
	idx := c.index[i+c.nx*(j+c.ny*k)]
	return idx, idx >= 0
}

// IsActive reports whether the cell at (i, j, k) carries a value.
func (c *Config) IsActive(i, j, k int) bool {
	_, ok := c.Index(i, j, k)
	return ok
}

func (c *Config) export(v float64) float64 {
	if c.truncate {
		v = math.Min(math.Max(v, c.lo), c.hi)
	}
	return transforms[c.transform](v)
}
