package catalog

import (
	"context"
	"path/filepath"
	"testing"

	"enkfcore/internal/config"
)

func TestOpenSelectsDriver(t *testing.T) {
	ctx := context.Background()
	mem, err := Open(ctx, config.Catalog{Driver: "memory"})
	if err != nil || mem.Driver() != DriverMemory {
		t.Fatalf("memory: %v", err)
	}
	lite, err := Open(ctx, config.Catalog{Driver: "sqlite", SQLitePath: filepath.Join(t.TempDir(), "c.db")})
	if err != nil {
		t.Fatalf("sqlite: %v", err)
	}
	defer func() { _ = lite.Close() }()
	if lite.Driver() != DriverSQLite {
		t.Fatalf("expected sqlite, got %s", lite.Driver())
	}
	if _, err := Open(ctx, config.Catalog{Driver: "mongo"}); err == nil {
		t.Fatalf("expected unknown driver error")
	}
}
