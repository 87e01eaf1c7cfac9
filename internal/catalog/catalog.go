// Package catalog re-exports the catalog abstractions and opens the
// configured driver.
package catalog

import (
	"context"
	"fmt"

	"enkfcore/internal/catalog/core"
	"enkfcore/internal/config"
	"enkfcore/internal/infra/catalog/postgres"
	"enkfcore/internal/infra/catalog/sqlite"
)

type (
	Entry   = core.Entry
	Catalog = core.Catalog
	Driver  = core.Driver
)

const (
	DriverMemory   = core.DriverMemory
	DriverSQLite   = core.DriverSQLite
	DriverPostgres = core.DriverPostgres
)

var ErrInvalidEntry = core.ErrInvalidEntry

// NewMemory returns a volatile catalog.
func NewMemory() Catalog { return core.NewMemory() }

// Open constructs the catalog selected by cfg.Driver.
func Open(ctx context.Context, cfg config.Catalog) (Catalog, error) {
	switch Driver(cfg.Driver) {
	case DriverMemory:
		return core.NewMemory(), nil
	case DriverSQLite, "":
		st, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return st, nil
	case DriverPostgres:
		st, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown catalog driver %s", cfg.Driver)
	}
}
