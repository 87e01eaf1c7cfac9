package memory

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"enkfcore/internal/blob/core"
)

func TestMemoryStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	s := New()
	if s.Driver() != core.DriverMemory {
		t.Fatalf("unexpected driver %s", s.Driver())
	}
	meta := map[string]string{"impl": "FIELD"}
	info, err := s.Put(ctx, "case/PORO/0/member-0000", bytes.NewReader([]byte{1, 2, 3}), core.PutOptions{Metadata: meta})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	meta["impl"] = "mutated"
	if info.Size != 3 {
		t.Fatalf("expected size 3, got %d", info.Size)
	}
	if _, err := s.Put(ctx, "case/PORO/0/member-0000", bytes.NewReader(nil), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	got, rc, err := s.Get(ctx, "case/PORO/0/member-0000")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	data, _ := io.ReadAll(rc)
	_ = rc.Close()
	if !bytes.Equal(data, []byte{1, 2, 3}) {
		t.Fatalf("unexpected data %v", data)
	}
	if got.Metadata["impl"] != "FIELD" {
		t.Fatalf("metadata not isolated from caller: %v", got.Metadata)
	}
	got.Metadata["impl"] = "x"
	head, err := s.Head(ctx, "case/PORO/0/member-0000")
	if err != nil || head.Metadata["impl"] != "FIELD" {
		t.Fatalf("metadata not isolated from reader: %v %v", head, err)
	}
	_, _ = s.Put(ctx, "case/PORO/0/member-0001", bytes.NewReader([]byte{4}), core.PutOptions{})
	_, _ = s.Put(ctx, "other/PORO/0/member-0000", bytes.NewReader([]byte{5}), core.PutOptions{})
	list, err := s.List(ctx, "case/")
	if err != nil || len(list) != 2 || list[0].Key != "case/PORO/0/member-0000" {
		t.Fatalf("unexpected list %v %v", list, err)
	}
	existed, err := s.Delete(ctx, "case/PORO/0/member-0000")
	if err != nil || !existed {
		t.Fatalf("delete: %v %v", existed, err)
	}
	existed, _ = s.Delete(ctx, "case/PORO/0/member-0000")
	if existed {
		t.Fatalf("second delete should report absence")
	}
	if _, _, err := s.Get(ctx, "case/PORO/0/member-0000"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.Head(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.Put(ctx, " ", bytes.NewReader(nil), core.PutOptions{}); err == nil {
		t.Fatalf("expected empty key error")
	}
}

func TestMemoryStorePutHonoursCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New().Put(ctx, "k", bytes.NewReader(nil), core.PutOptions{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
