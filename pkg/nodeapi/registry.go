package nodeapi

import (
	"fmt"
	"sort"
	"sync"
)

// Registry maps impl types to the Type that allocates them.
type Registry struct {
	mu    sync.RWMutex
	types map[ImplType]Type
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{types: make(map[ImplType]Type)}
}

// Register adds typ to the registry.
func (r *Registry) Register(typ Type) error {
	if typ == nil {
		return fmt.Errorf("node type cannot be nil")
	}
	if typ.Impl() == 0 {
		return fmt.Errorf("node type %q has zero impl", typ.Name())
	}
	if typ.Name() == "" {
		return fmt.Errorf("node type %d has empty name", uint32(typ.Impl()))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.types[typ.Impl()]; ok {
		return fmt.Errorf("impl %d already registered by %s", uint32(typ.Impl()), existing.Name())
	}
	r.types[typ.Impl()] = typ
	return nil
}

// Lookup returns the Type registered for impl.
func (r *Registry) Lookup(impl ImplType) (Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	typ, ok := r.types[impl]
	return typ, ok
}

// Types returns the registered types ordered by impl.
func (r *Registry) Types() []Type {
	r.mu.RLock()
	out := make([]Type, 0, len(r.types))
	for _, typ := range r.types {
		out = append(out, typ)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Impl() < out[j].Impl() })
	return out
}

// Alloc allocates a node for cfg using the Type registered for cfg.Impl().
func (r *Registry) Alloc(cfg Config) (Node, error) {
	if cfg == nil {
		return nil, &TypeMismatchError{}
	}
	typ, ok := r.Lookup(cfg.Impl())
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, cfg.Impl())
	}
	return typ.Alloc(cfg)
}
