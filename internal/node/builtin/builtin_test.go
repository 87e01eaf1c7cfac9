package builtin

import (
	"bytes"
	"math/rand"
	"testing"

	"enkfcore/internal/node/field"
	"enkfcore/internal/node/genkw"
	"enkfcore/internal/node/summary"
	"enkfcore/pkg/nodeapi"
)

func TestRegistryHoldsBuiltins(t *testing.T) {
	reg := NewRegistry()
	types := reg.Types()
	if len(types) != 3 {
		t.Fatalf("expected 3 types, got %d", len(types))
	}
	want := []nodeapi.ImplType{nodeapi.ImplField, nodeapi.ImplGenKW, nodeapi.ImplSummary}
	for i, typ := range types {
		if typ.Impl() != want[i] || typ.Name() != want[i].String() {
			t.Fatalf("type %d: unexpected %s/%s", i, typ.Impl(), typ.Name())
		}
	}
	if err := Register(reg); err == nil {
		t.Fatalf("expected duplicate registration error")
	}
}

// Every builtin obeys the round trip law through the generic interfaces.
func TestRoundTripThroughRegistry(t *testing.T) {
	fcfg, err := field.NewConfig("PERMX", 3, 1, 1, []bool{true, false, true})
	if err != nil {
		t.Fatalf("field: %v", err)
	}
	gcfg, err := genkw.NewConfig("MULT", []genkw.Keyword{{Name: "A", Prior: genkw.Prior{Dist: genkw.DistNormal, Params: []float64{0, 1}}}})
	if err != nil {
		t.Fatalf("genkw: %v", err)
	}
	scfg, err := summary.NewConfig("FOPR")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	reg := NewRegistry()
	rng := rand.New(rand.NewSource(1))
	for _, cfg := range []nodeapi.Config{fcfg, gcfg, scfg} {
		src, err := reg.Alloc(cfg)
		if err != nil {
			t.Fatalf("%s alloc: %v", cfg.Key(), err)
		}
		switch n := src.(type) {
		case *field.Node:
			_ = n.SetValues([]float64{1.5, -2})
		case *summary.Node:
			_ = n.Set(3, 9)
		case nodeapi.Initializer:
			_ = n.Initialize(0, rng)
		}
		var buf bytes.Buffer
		if _, err := src.WriteTo(&buf); err != nil {
			t.Fatalf("%s write: %v", cfg.Key(), err)
		}
		dst, err := reg.Alloc(cfg)
		if err != nil {
			t.Fatalf("%s alloc: %v", cfg.Key(), err)
		}
		if _, err := dst.ReadFrom(&buf); err != nil {
			t.Fatalf("%s read: %v", cfg.Key(), err)
		}
		if !src.(nodeapi.Equaler).Equal(dst) {
			t.Fatalf("%s: round trip mismatch", cfg.Key())
		}
	}
}
