// Package ensemble manages the members of one ensemble key. It only talks to
// nodes through the nodeapi contract, so any registered variant works.
package ensemble

import (
	"context"
	"fmt"
	"math/rand"
	"runtime"
	"sync"

	"enkfcore/pkg/nodeapi"

	"golang.org/x/sync/errgroup"
)

// Ensemble holds size members allocated from one shared Config.
//
// The Config is never modified. Each member must only be used by one
// goroutine at a time; distinct members may be used concurrently.
type Ensemble struct {
	cfg     nodeapi.Config
	typ     nodeapi.Type
	workers int

	mu      sync.RWMutex
	members []nodeapi.Node
}

// Option customises an Ensemble.
type Option func(*Ensemble)

// WithWorkers bounds the number of members processed concurrently.
// Values below one select GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(e *Ensemble) { e.workers = n }
}

// New allocates size members for cfg using the Type registered in reg.
func New(reg *nodeapi.Registry, cfg nodeapi.Config, size int, opts ...Option) (*Ensemble, error) {
	if reg == nil {
		return nil, fmt.Errorf("registry required")
	}
	if cfg == nil {
		return nil, &nodeapi.TypeMismatchError{}
	}
	if size <= 0 {
		return nil, fmt.Errorf("ensemble %s: size must be positive, got %d", cfg.Key(), size)
	}
	typ, ok := reg.Lookup(cfg.Impl())
	if !ok {
		return nil, fmt.Errorf("ensemble %s: %w: %s", cfg.Key(), nodeapi.ErrUnknownType, cfg.Impl())
	}
	e := &Ensemble{cfg: cfg, typ: typ, members: make([]nodeapi.Node, size)}
	for _, opt := range opts {
		opt(e)
	}
	if e.workers < 1 {
		e.workers = runtime.GOMAXPROCS(0)
	}
	for iens := range e.members {
		node, err := typ.Alloc(cfg)
		if err != nil {
			return nil, fmt.Errorf("ensemble %s: allocate member %d: %w", cfg.Key(), iens, err)
		}
		e.members[iens] = node
	}
	return e, nil
}

func (e *Ensemble) Config() nodeapi.Config { return e.cfg }

func (e *Ensemble) Key() string { return e.cfg.Key() }

func (e *Ensemble) Impl() nodeapi.ImplType { return e.cfg.Impl() }

func (e *Ensemble) Size() int { return len(e.members) }

func (e *Ensemble) Workers() int { return e.workers }

// Member returns member iens.
func (e *Ensemble) Member(iens int) (nodeapi.Node, error) {
	if iens < 0 || iens >= len(e.members) {
		return nil, fmt.Errorf("ensemble %s: member %d out of range [0,%d)", e.Key(), iens, len(e.members))
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.members[iens], nil
}

// Members returns a snapshot of the member slice.
func (e *Ensemble) Members() []nodeapi.Node {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]nodeapi.Node(nil), e.members...)
}

// Alloc allocates a detached node from the shared Config. Callers use it to
// read state into a fresh instance before committing it with Replace.
func (e *Ensemble) Alloc() (nodeapi.Node, error) { return e.typ.Alloc(e.cfg) }

// Replace installs node as member iens. node must have been allocated from
// the ensemble's Config.
func (e *Ensemble) Replace(iens int, node nodeapi.Node) error {
	if iens < 0 || iens >= len(e.members) {
		return fmt.Errorf("ensemble %s: member %d out of range [0,%d)", e.Key(), iens, len(e.members))
	}
	if node == nil || node.Config() != e.cfg {
		return fmt.Errorf("ensemble %s: member %d: node does not share the ensemble config", e.Key(), iens)
	}
	e.mu.Lock()
	e.members[iens] = node
	e.mu.Unlock()
	return nil
}

// Reset replaces member iens with a freshly allocated node.
func (e *Ensemble) Reset(iens int) error {
	node, err := e.Alloc()
	if err != nil {
		return err
	}
	return e.Replace(iens, node)
}

// Each calls fn for every member on at most Workers goroutines. The first
// error cancels the context passed to the remaining calls and is returned.
func (e *Ensemble) Each(ctx context.Context, fn func(ctx context.Context, iens int, node nodeapi.Node) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for iens, node := range e.Members() {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return fn(gctx, iens, node)
		})
	}
	return g.Wait()
}

// Initialize draws the initial state of every member that implements
// nodeapi.Initializer. Member iens uses the source seed+iens, so results do
// not depend on scheduling. It reports whether the variant supports
// initialization.
func (e *Ensemble) Initialize(ctx context.Context, seed int64) (bool, error) {
	if _, ok := e.members[0].(nodeapi.Initializer); !ok {
		return false, nil
	}
	err := e.Each(ctx, func(_ context.Context, iens int, node nodeapi.Node) error {
		initializer, ok := node.(nodeapi.Initializer)
		if !ok {
			return fmt.Errorf("member %d does not support initialization", iens)
		}
		if err := initializer.Initialize(iens, rand.New(rand.NewSource(seed+int64(iens)))); err != nil {
			return fmt.Errorf("ensemble %s: initialize member %d: %w", e.Key(), iens, err)
		}
		return nil
	})
	return true, err
}
