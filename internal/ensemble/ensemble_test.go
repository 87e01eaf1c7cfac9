package ensemble

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"enkfcore/internal/node/builtin"
	"enkfcore/internal/node/field"
	"enkfcore/internal/node/genkw"
	"enkfcore/pkg/nodeapi"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func genkwConfig(t *testing.T) *genkw.Config {
	t.Helper()
	cfg, err := genkw.NewConfig("MULTZ", []genkw.Keyword{
		{Name: "Z1", Prior: genkw.Prior{Dist: genkw.DistUniform, Params: []float64{0, 1}}},
		{Name: "Z2", Prior: genkw.Prior{Dist: genkw.DistNormal, Params: []float64{1, 0.1}}},
	})
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	return cfg
}

func TestNewSharesConfig(t *testing.T) {
	cfg := genkwConfig(t)
	ens, err := New(builtin.NewRegistry(), cfg, 4, WithWorkers(2))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if ens.Size() != 4 || ens.Workers() != 2 || ens.Key() != "MULTZ" || ens.Impl() != nodeapi.ImplGenKW {
		t.Fatalf("unexpected ensemble %d %d %s", ens.Size(), ens.Workers(), ens.Key())
	}
	for iens, node := range ens.Members() {
		if node.Config() != nodeapi.Config(cfg) {
			t.Fatalf("member %d does not share the config", iens)
		}
	}
	if _, err := ens.Member(4); err == nil {
		t.Fatalf("expected out of range error")
	}
}

func TestNewErrors(t *testing.T) {
	reg := builtin.NewRegistry()
	if _, err := New(nil, genkwConfig(t), 1); err == nil {
		t.Fatalf("expected nil registry error")
	}
	if _, err := New(reg, nil, 1); !errors.Is(err, nodeapi.ErrTypeMismatch) {
		t.Fatalf("expected mismatch for nil config, got %v", err)
	}
	if _, err := New(reg, genkwConfig(t), 0); err == nil {
		t.Fatalf("expected size error")
	}
	if _, err := New(nodeapi.NewRegistry(), genkwConfig(t), 1); !errors.Is(err, nodeapi.ErrUnknownType) {
		t.Fatalf("expected unknown type, got %v", err)
	}
}

func TestInitializeDeterministicPerMember(t *testing.T) {
	reg := builtin.NewRegistry()
	cfg := genkwConfig(t)
	a, err := New(reg, cfg, 8, WithWorkers(3))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	b, err := New(reg, cfg, 8, WithWorkers(1))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	for _, ens := range []*Ensemble{a, b} {
		ok, err := ens.Initialize(context.Background(), 100)
		if err != nil || !ok {
			t.Fatalf("initialize: %v %v", ok, err)
		}
	}
	am, bm := a.Members(), b.Members()
	for iens := range am {
		if !am[iens].(nodeapi.Equaler).Equal(bm[iens]) {
			t.Fatalf("member %d differs across worker counts", iens)
		}
	}
	if am[0].(nodeapi.Equaler).Equal(am[1]) {
		t.Fatalf("members must use distinct seeds")
	}
}

func TestInitializeUnsupported(t *testing.T) {
	cfg, err := field.NewConfig("PORO", 1, 1, 1, nil)
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	ens, err := New(builtin.NewRegistry(), cfg, 2)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ok, err := ens.Initialize(context.Background(), 1)
	if ok || err != nil {
		t.Fatalf("expected unsupported without error, got %v %v", ok, err)
	}
}

func TestReplaceAndReset(t *testing.T) {
	reg := builtin.NewRegistry()
	cfg := genkwConfig(t)
	ens, err := New(reg, cfg, 2)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	member, _ := ens.Member(1)
	_ = member.(*genkw.Node).SetValue("Z1", 3)
	if err := ens.Reset(1); err != nil {
		t.Fatalf("reset: %v", err)
	}
	fresh, _ := ens.Member(1)
	if v, _ := fresh.(*genkw.Node).Value("Z1"); v != 0 {
		t.Fatalf("reset must install a fresh node")
	}

	foreign, err := reg.Alloc(genkwConfig(t))
	if err != nil {
		t.Fatalf("alloc: %v", err)
	}
	if err := ens.Replace(0, foreign); err == nil {
		t.Fatalf("expected config mismatch error")
	}
	if err := ens.Replace(5, fresh); err == nil {
		t.Fatalf("expected range error")
	}
}

func TestEachStopsOnError(t *testing.T) {
	ens, err := New(builtin.NewRegistry(), genkwConfig(t), 16, WithWorkers(1))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	boom := errors.New("boom")
	var calls atomic.Int32
	err = ens.Each(context.Background(), func(_ context.Context, iens int, _ nodeapi.Node) error {
		calls.Add(1)
		if iens == 2 {
			return boom
		}
		return nil
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if calls.Load() == 16 {
		t.Fatalf("expected remaining members to be skipped")
	}
}
