// Package postgres persists the catalog to a Postgres state table through the
// pgx database/sql driver.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"enkfcore/internal/catalog/core"
	"enkfcore/internal/infra/catalog/sqlstate"
)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/enkfcore?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

var dialect = sqlstate.Dialect{
	Driver: core.DriverPostgres,
	CreateDDL: `CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload JSONB NOT NULL
	)`,
	SelectAll:  `SELECT bucket, payload FROM state`,
	Upsert:     `INSERT INTO state(bucket,payload) VALUES($1,$2) ON CONFLICT (bucket) DO UPDATE SET payload = EXCLUDED.payload`,
	DeleteCase: `DELETE FROM state WHERE bucket = $1`,
}

// Store is a snapshotting Postgres catalog.
type Store struct {
	*sqlstate.Store
}

// Open connects with dsn (falling back to a local default), ensures the state
// table and hydrates the catalog.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	st, err := sqlstate.Open(ctx, db, dialect)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{Store: st}, nil
}

// OverrideSQLOpen swaps the sql.Open hook and returns a restore func.
func OverrideSQLOpen(fn func(driverName, dsn string) (*sql.DB, error)) func() {
	openMu.Lock()
	prev := sqlOpen
	sqlOpen = fn
	openMu.Unlock()
	return func() {
		openMu.Lock()
		sqlOpen = prev
		openMu.Unlock()
	}
}
