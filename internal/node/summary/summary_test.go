package summary

import (
	"bytes"
	"errors"
	"testing"

	"enkfcore/internal/codec"
	"enkfcore/pkg/nodeapi"

	"github.com/google/go-cmp/cmp"
)

func mustConfig(t *testing.T) *Config {
	t.Helper()
	cfg, err := NewConfig("WOPR:OP_1", WithRequired(true))
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	return cfg
}

func TestConfig(t *testing.T) {
	if _, err := NewConfig(""); err == nil {
		t.Fatalf("expected empty key error")
	}
	cfg := mustConfig(t)
	if !cfg.Required() || cfg.Key() != "WOPR:OP_1" || cfg.Impl() != nodeapi.ImplSummary {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestSetGetSteps(t *testing.T) {
	n := New(mustConfig(t))
	for _, step := range []int{5, 0, 3} {
		if err := n.Set(step, float64(step)*10); err != nil {
			t.Fatalf("set: %v", err)
		}
	}
	if err := n.Set(-1, 0); err == nil {
		t.Fatalf("expected negative step error")
	}
	if diff := cmp.Diff([]int{0, 3, 5}, n.Steps()); diff != "" {
		t.Fatalf("steps (-want +got):\n%s", diff)
	}
	if v, ok := n.Get(3); !ok || v != 30 {
		t.Fatalf("get: %v %v", v, ok)
	}
	if _, ok := n.Get(4); ok {
		t.Fatalf("expected missing step")
	}
}

func TestRoundTrip(t *testing.T) {
	cfg := mustConfig(t)
	for _, steps := range [][]int{nil, {0}, {1, 2, 10, 400}} {
		src := New(cfg)
		for _, s := range steps {
			_ = src.Set(s, float64(s)+0.5)
		}
		var buf bytes.Buffer
		if _, err := src.WriteTo(&buf); err != nil {
			t.Fatalf("write: %v", err)
		}
		dst, err := (Type{}).Alloc(cfg)
		if err != nil {
			t.Fatalf("alloc: %v", err)
		}
		if _, err := dst.ReadFrom(&buf); err != nil {
			t.Fatalf("read: %v", err)
		}
		if !src.Equal(dst) {
			t.Fatalf("round trip mismatch for %v", steps)
		}
	}
}

func TestReadFromRejectsUnorderedSteps(t *testing.T) {
	var buf bytes.Buffer
	enc := codec.NewEncoder(&buf)
	enc.Header(nodeapi.ImplSummary)
	enc.Uint32(2)
	enc.Int32(4)
	enc.Float64(1)
	enc.Int32(4)
	enc.Float64(2)
	if _, err := enc.Close(); err != nil {
		t.Fatalf("encode: %v", err)
	}
	n := New(mustConfig(t))
	_ = n.Set(1, 1)
	if _, err := n.ReadFrom(&buf); !errors.Is(err, nodeapi.ErrDecode) {
		t.Fatalf("expected decode error, got %v", err)
	}
	if n.Len() != 1 {
		t.Fatalf("failed read must leave node unchanged")
	}
}

func TestReadFromTruncated(t *testing.T) {
	src := New(mustConfig(t))
	_ = src.Set(2, 1)
	var buf bytes.Buffer
	if _, err := src.WriteTo(&buf); err != nil {
		t.Fatalf("write: %v", err)
	}
	frame := buf.Bytes()
	for cut := 0; cut < len(frame); cut++ {
		if _, err := New(src.cfg).ReadFrom(bytes.NewReader(frame[:cut])); !errors.Is(err, nodeapi.ErrDecode) {
			t.Fatalf("cut %d: expected decode error, got %v", cut, err)
		}
	}
}

func TestCloneAndClear(t *testing.T) {
	a := New(mustConfig(t))
	_ = a.Set(1, 1)
	b := a.Clone().(*Node)
	_ = b.Set(2, 2)
	if a.Len() != 1 || b.Len() != 2 {
		t.Fatalf("clone shares state")
	}
	b.Clear()
	if b.Len() != 0 || a.Len() != 1 {
		t.Fatalf("clear affected wrong node")
	}
	if a.Equal(b) {
		t.Fatalf("expected inequality")
	}
}
