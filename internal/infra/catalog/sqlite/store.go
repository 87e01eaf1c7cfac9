// Package sqlite persists the catalog to a single SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"enkfcore/internal/catalog/core"
	"enkfcore/internal/infra/catalog/sqlstate"
)

var dialect = sqlstate.Dialect{
	Driver: core.DriverSQLite,
	CreateDDL: `CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`,
	SelectAll:  `SELECT bucket, payload FROM state`,
	Upsert:     `INSERT INTO state(bucket,payload) VALUES(?,?) ON CONFLICT(bucket) DO UPDATE SET payload=excluded.payload`,
	DeleteCase: `DELETE FROM state WHERE bucket = ?`,
}

// Store is a snapshotting SQLite catalog.
type Store struct {
	*sqlstate.Store
	path string
}

// Open opens (or creates) the catalog database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		path = "enkfcore.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer; the memory catalog serves reads.
	db.SetMaxOpenConns(1)
	st, err := sqlstate.Open(ctx, db, dialect)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{Store: st, path: path}, nil
}

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }
