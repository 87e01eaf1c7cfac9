package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"enkfcore/internal/catalog/core"
	"enkfcore/pkg/nodeapi"
)

func entry(c string, step, member int) core.Entry {
	return core.Entry{Case: c, Key: "PORO", Impl: nodeapi.ImplField, Step: step, Member: member, Size: 8, Checksum: "ff", StoredAt: time.Now().UTC()}
}

func TestStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "catalog.db")
	s, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if s.Driver() != core.DriverSQLite || s.Path() != path {
		t.Fatalf("unexpected driver/path %s %s", s.Driver(), s.Path())
	}
	if err := s.Record(ctx, entry("prior", 0, 0), entry("prior", 0, 1), entry("posterior", 1, 0)); err != nil {
		t.Fatalf("record: %v", err)
	}
	if n, err := s.Delete(ctx, "posterior", "PORO", 1); err != nil || n != 1 {
		t.Fatalf("delete: %d %v", n, err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s, err = Open(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = s.Close() }()
	cases, _ := s.Cases(ctx)
	if len(cases) != 1 || cases[0] != "prior" {
		t.Fatalf("expected only prior to survive, got %v", cases)
	}
	list, _ := s.List(ctx, "prior", "PORO")
	if len(list) != 2 || list[1].Member != 1 || list[1].Checksum != "ff" {
		t.Fatalf("unexpected entries %+v", list)
	}
	var rows int
	if err := s.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM state`).Scan(&rows); err != nil || rows != 1 {
		t.Fatalf("expected one snapshot row, got %d %v", rows, err)
	}
}

func TestStoreRejectsInvalidWithoutPersisting(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, filepath.Join(t.TempDir(), "c.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = s.Close() }()
	if err := s.Record(ctx, entry("", 0, 0)); err == nil {
		t.Fatalf("expected validation error")
	}
	var rows int
	_ = s.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM state`).Scan(&rows)
	if rows != 0 {
		t.Fatalf("expected no rows, got %d", rows)
	}
}
