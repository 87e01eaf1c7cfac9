// Package sqlstate implements the snapshotting catalog shared by the SQL
// drivers: the in-memory catalog stays authoritative and every change
// rewrites the JSON snapshot of the affected cases in the
// state(bucket, payload) table, one row per case.
package sqlstate

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	"enkfcore/internal/catalog/core"
)

// Dialect carries the driver-specific statements.
type Dialect struct {
	Driver     core.Driver
	CreateDDL  string
	SelectAll  string
	Upsert     string // args: bucket, payload
	DeleteCase string // args: bucket
}

// Store wraps core.Memory and persists it after each change.
type Store struct {
	*core.Memory
	db      *sql.DB
	dialect Dialect
	mu      sync.Mutex // serializes changes with their snapshot
}

// Open ensures the state table exists and hydrates the memory catalog.
func Open(ctx context.Context, db *sql.DB, d Dialect) (*Store, error) {
	if _, err := db.ExecContext(ctx, d.CreateDDL); err != nil {
		return nil, fmt.Errorf("create state table: %w", err)
	}
	s := &Store{Memory: core.NewMemory(), db: db, dialect: d}
	if err := s.load(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, s.dialect.SelectAll)
	if err != nil {
		return fmt.Errorf("select state: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var (
			bucket  string
			payload []byte
		)
		if err := rows.Scan(&bucket, &payload); err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		var entries []core.Entry
		if err := json.Unmarshal(payload, &entries); err != nil {
			return fmt.Errorf("decode case %s: %w", bucket, err)
		}
		if err := s.ImportCase(bucket, entries); err != nil {
			return fmt.Errorf("import case %s: %w", bucket, err)
		}
	}
	return rows.Err()
}

func (s *Store) Driver() core.Driver { return s.dialect.Driver }

// Record updates memory, then snapshots the touched cases. When the
// snapshot fails the touched cases are rolled back in memory too.
func (s *Store) Record(ctx context.Context, entries ...core.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cases := core.AffectedCases(entries)
	saved := s.exportCases(cases)
	if err := s.Memory.Record(ctx, entries...); err != nil {
		return err
	}
	if err := s.persist(ctx, cases...); err != nil {
		s.restore(saved)
		return err
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, caseName, key string, step int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	saved := s.exportCases([]string{caseName})
	n, err := s.Memory.Delete(ctx, caseName, key, step)
	if err != nil || n == 0 {
		return n, err
	}
	if err := s.persist(ctx, caseName); err != nil {
		s.restore(saved)
		return 0, err
	}
	return n, nil
}

func (s *Store) exportCases(cases []string) map[string][]core.Entry {
	out := make(map[string][]core.Entry, len(cases))
	for _, name := range cases {
		out[name] = s.ExportCase(name)
	}
	return out
}

// restore puts back cases captured by exportCases. The entries were valid
// when exported, so ImportCase cannot fail here.
func (s *Store) restore(saved map[string][]core.Entry) {
	for name, entries := range saved {
		_ = s.ImportCase(name, entries)
	}
}

// persist rewrites the snapshot rows of cases. Callers hold s.mu.
func (s *Store) persist(ctx context.Context, cases ...string) (retErr error) {
	if len(cases) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	for _, name := range cases {
		entries := s.ExportCase(name)
		if len(entries) == 0 {
			if _, err := tx.ExecContext(ctx, s.dialect.DeleteCase, name); err != nil {
				return fmt.Errorf("delete case %s: %w", name, err)
			}
			continue
		}
		payload, err := json.Marshal(entries)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, s.dialect.Upsert, name, payload); err != nil {
			return fmt.Errorf("upsert case %s: %w", name, err)
		}
	}
	return tx.Commit()
}

// DB exposes the underlying sql.DB for tests.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Close() error { return s.db.Close() }
