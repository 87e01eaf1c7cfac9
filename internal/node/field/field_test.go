package field

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"enkfcore/internal/node/summary"
	"enkfcore/pkg/nodeapi"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func mustConfig(t *testing.T, opts ...Option) *Config {
	t.Helper()
	// 2x2x1 grid with cell (1,0,0) inactive
	cfg, err := NewConfig("PORO", 2, 2, 1, []bool{true, false, true, true}, opts...)
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	return cfg
}

func TestConfigValidation(t *testing.T) {
	cases := []struct {
		name   string
		key    string
		dims   [3]int
		active []bool
		opts   []Option
	}{
		{"empty key", "", [3]int{1, 1, 1}, nil, nil},
		{"zero dim", "K", [3]int{0, 1, 1}, nil, nil},
		{"mask size", "K", [3]int{2, 1, 1}, []bool{true}, nil},
		{"no active", "K", [3]int{2, 1, 1}, []bool{false, false}, nil},
		{"transform", "K", [3]int{1, 1, 1}, nil, []Option{WithTransform("sqrt")}},
		{"truncation", "K", [3]int{1, 1, 1}, nil, []Option{WithTruncation(1, 1)}},
		{"overflow", "K", [3]int{1<<62 + 1, 2, 1}, nil, nil},
		{"too many cells", "K", [3]int{MaxCells, 2, 1}, nil, nil},
		{"negative product", "K", [3]int{-3, -1, 1}, nil, nil},
	}
	for _, tc := range cases {
		if _, err := NewConfig(tc.key, tc.dims[0], tc.dims[1], tc.dims[2], tc.active, tc.opts...); err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
	}
	cfg, err := NewConfig("K", 3, 2, 2, nil, WithTransform("EXP"))
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	if cfg.ActiveSize() != 12 || cfg.Transform() != TransformExp {
		t.Fatalf("unexpected config %d %q", cfg.ActiveSize(), cfg.Transform())
	}
}

func TestCellCount(t *testing.T) {
	cases := []struct {
		dims [3]int
		want int
		ok   bool
	}{
		{[3]int{2, 3, 4}, 24, true},
		{[3]int{MaxCells, 1, 1}, MaxCells, true},
		{[3]int{MaxCells + 1, 1, 1}, 0, false},
		{[3]int{1 << 20, 1 << 20, 1 << 20}, 0, false},
		{[3]int{math.MaxInt, math.MaxInt, 2}, 0, false},
		{[3]int{1, 0, 1}, 0, false},
	}
	for _, tc := range cases {
		got, ok := CellCount(tc.dims[0], tc.dims[1], tc.dims[2])
		if got != tc.want || ok != tc.ok {
			t.Fatalf("CellCount%v = %d, %t; want %d, %t", tc.dims, got, ok, tc.want, tc.ok)
		}
	}
}

func TestConfigIsolatedFromCaller(t *testing.T) {
	mask := []bool{true, true}
	cfg, err := NewConfig("K", 2, 1, 1, mask)
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	mask[0] = false
	if !cfg.IsActive(0, 0, 0) {
		t.Fatalf("config must copy the caller's mask")
	}
	got := cfg.ActiveMask()
	got[1] = false
	if !cfg.IsActive(1, 0, 0) {
		t.Fatalf("ActiveMask must return a copy")
	}
}

func TestAllocRejectsWrongConfig(t *testing.T) {
	other, err := summary.NewConfig("WOPR:P1")
	if err != nil {
		t.Fatalf("summary config: %v", err)
	}
	if _, err := (Type{}).Alloc(other); !errors.Is(err, nodeapi.ErrTypeMismatch) {
		t.Fatalf("expected mismatch, got %v", err)
	}
	if _, err := (Type{}).Alloc(nil); !errors.Is(err, nodeapi.ErrTypeMismatch) {
		t.Fatalf("expected mismatch for nil, got %v", err)
	}
	if _, err := (Type{}).Alloc(&Config{key: "broken"}); !errors.Is(err, nodeapi.ErrTypeMismatch) {
		t.Fatalf("expected mismatch for malformed config, got %v", err)
	}
}

func TestAllocDoesNotMutateConfig(t *testing.T) {
	cfg := mustConfig(t, WithTruncation(0, 1))
	before := *cfg
	before.active = cfg.ActiveMask()
	before.index = append([]int(nil), cfg.index...)
	if _, err := (Type{}).Alloc(cfg); err != nil {
		t.Fatalf("alloc: %v", err)
	}
	if diff := cmp.Diff(before, *cfg, cmp.AllowUnexported(Config{})); diff != "" {
		t.Fatalf("config mutated (-before +after):\n%s", diff)
	}
}

func TestGetSet(t *testing.T) {
	n := New(mustConfig(t))
	if err := n.Set(1, 1, 0, 0.25); err != nil {
		t.Fatalf("set: %v", err)
	}
	v, err := n.Get(1, 1, 0)
	if err != nil || v != 0.25 {
		t.Fatalf("get: %v %v", v, err)
	}
	if err := n.Set(1, 0, 0, 1); err == nil {
		t.Fatalf("expected inactive cell error")
	}
	if _, err := n.Get(5, 0, 0); err == nil {
		t.Fatalf("expected out of range error")
	}
	if err := n.SetValues([]float64{1}); err == nil {
		t.Fatalf("expected length error")
	}
}

func TestRoundTrip(t *testing.T) {
	cfg := mustConfig(t)
	src := New(cfg)
	if err := src.SetValues([]float64{0.1, math.Inf(-1), math.NaN()}); err != nil {
		t.Fatalf("set values: %v", err)
	}
	var buf bytes.Buffer
	wrote, err := src.WriteTo(&buf)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	dst, err := (Type{}).Alloc(cfg)
	if err != nil {
		t.Fatalf("alloc: %v", err)
	}
	read, err := dst.ReadFrom(&buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if read != wrote {
		t.Fatalf("read %d bytes, wrote %d", read, wrote)
	}
	if !src.Equal(dst) {
		t.Fatalf("round trip mismatch: %v vs %v", src.Values(), dst.(*Node).Values())
	}
}

func TestReadFromTruncatedLeavesNodeUnchanged(t *testing.T) {
	cfg := mustConfig(t)
	src := New(cfg)
	_ = src.SetValues([]float64{1, 2, 3})
	var buf bytes.Buffer
	if _, err := src.WriteTo(&buf); err != nil {
		t.Fatalf("write: %v", err)
	}
	frame := buf.Bytes()
	dst := New(cfg)
	_ = dst.SetValues([]float64{7, 8, 9})
	for cut := 0; cut < len(frame); cut++ {
		if _, err := dst.ReadFrom(bytes.NewReader(frame[:cut])); !errors.Is(err, nodeapi.ErrDecode) {
			t.Fatalf("cut %d: expected decode error, got %v", cut, err)
		}
		if diff := cmp.Diff([]float64{7, 8, 9}, dst.Values()); diff != "" {
			t.Fatalf("cut %d: node changed (-want +got):\n%s", cut, diff)
		}
	}
}

func TestReadFromRejectsSizeMismatch(t *testing.T) {
	big, err := NewConfig("PORO", 2, 2, 1, nil)
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	var buf bytes.Buffer
	if _, err := New(big).WriteTo(&buf); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := New(mustConfig(t)).ReadFrom(&buf); !errors.Is(err, nodeapi.ErrDecode) {
		t.Fatalf("expected decode error, got %v", err)
	}
}

func TestReadFromRejectsOtherVariant(t *testing.T) {
	cfg, err := summary.NewConfig("FOPT")
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	var buf bytes.Buffer
	if _, err := summary.New(cfg).WriteTo(&buf); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err = New(mustConfig(t)).ReadFrom(&buf)
	if !errors.Is(err, nodeapi.ErrDecode) || !errors.Is(err, nodeapi.ErrTypeMismatch) {
		t.Fatalf("expected decode+mismatch, got %v", err)
	}
}

func TestInstancesAreIndependent(t *testing.T) {
	cfg := mustConfig(t)
	a, b := New(cfg), New(cfg)
	_ = a.Set(0, 0, 0, 5)
	if v, _ := b.Get(0, 0, 0); v != 0 {
		t.Fatalf("instances share state")
	}
	c := a.Clone().(*Node)
	_ = c.Set(0, 0, 0, 6)
	if v, _ := a.Get(0, 0, 0); v != 5 {
		t.Fatalf("clone shares state")
	}
	if c.Config() != a.Config() {
		t.Fatalf("clone must share config")
	}
	a.Clear()
	if diff := cmp.Diff([]float64{0, 0, 0}, a.Values()); diff != "" {
		t.Fatalf("clear (-want +got):\n%s", diff)
	}
}

func TestExport(t *testing.T) {
	n := New(mustConfig(t, WithTransform(TransformPow10), WithTruncation(-1, 1)))
	_ = n.SetValues([]float64{-3, 0, 2})
	if diff := cmp.Diff([]float64{0.1, 1, 10}, n.Export(), cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		t.Fatalf("export (-want +got):\n%s", diff)
	}
}
