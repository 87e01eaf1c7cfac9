// Package core defines the catalog of stored node frames and its in-memory
// implementation. Durable drivers under internal/infra/catalog wrap Memory
// and snapshot it per case.
package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"enkfcore/pkg/nodeapi"
)

// Driver identifies a catalog backend.
type Driver string

const (
	DriverMemory   Driver = "memory"
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

var ErrInvalidEntry = errors.New("catalog: invalid entry")

// Entry indexes one stored member frame.
type Entry struct {
	Case     string           `json:"case"`
	Key      string           `json:"key"`
	Impl     nodeapi.ImplType `json:"impl"`
	Step     int              `json:"step"`
	Member   int              `json:"member"`
	Size     int64            `json:"size"`
	Checksum string           `json:"checksum"`
	Blob     string           `json:"blob,omitempty"` // blob key holding the frame
	StoredAt time.Time        `json:"stored_at"`
}

// Validate rejects entries that could not address a blob.
func (e Entry) Validate() error {
	switch {
	case strings.TrimSpace(e.Case) == "" || strings.ContainsAny(e.Case, "/\\"):
		return fmt.Errorf("%w: case %q", ErrInvalidEntry, e.Case)
	case strings.TrimSpace(e.Key) == "" || strings.ContainsAny(e.Key, "/\\"):
		return fmt.Errorf("%w: key %q", ErrInvalidEntry, e.Key)
	case e.Step < 0 || e.Member < 0:
		return fmt.Errorf("%w: step %d member %d", ErrInvalidEntry, e.Step, e.Member)
	}
	return nil
}

// Catalog indexes stored frames by (case, key, step, member).
type Catalog interface {
	// Record inserts or replaces entries atomically.
	Record(ctx context.Context, entries ...Entry) error
	Lookup(ctx context.Context, caseName, key string, step, member int) (Entry, bool, error)
	// List returns the entries of a case ordered by key, step and member.
	// An empty key lists every key.
	List(ctx context.Context, caseName, key string) ([]Entry, error)
	// Delete removes every member of one step and returns how many were removed.
	Delete(ctx context.Context, caseName, key string, step int) (int, error)
	Cases(ctx context.Context) ([]string, error)
	Driver() Driver
	Close() error
}

type slot struct {
	key    string
	step   int
	member int
}

// Memory is the authoritative in-process catalog.
type Memory struct {
	mu    sync.RWMutex
	cases map[string]map[slot]Entry
}

// NewMemory returns an empty in-memory catalog.
func NewMemory() *Memory {
	return &Memory{cases: make(map[string]map[slot]Entry)}
}

func (m *Memory) Driver() Driver { return DriverMemory }

func (m *Memory) Close() error { return nil }

func (m *Memory) Record(_ context.Context, entries ...Entry) error {
	for _, e := range entries {
		if err := e.Validate(); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		c, ok := m.cases[e.Case]
		if !ok {
			c = make(map[slot]Entry)
			m.cases[e.Case] = c
		}
		c[slot{e.Key, e.Step, e.Member}] = e
	}
	return nil
}

func (m *Memory) Lookup(_ context.Context, caseName, key string, step, member int) (Entry, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.cases[caseName][slot{key, step, member}]
	return e, ok, nil
}

func (m *Memory) List(_ context.Context, caseName, key string) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Entry
	for s, e := range m.cases[caseName] {
		if key == "" || s.key == key {
			out = append(out, e)
		}
	}
	SortEntries(out)
	return out, nil
}

func (m *Memory) Delete(_ context.Context, caseName, key string, step int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.cases[caseName]
	n := 0
	for s := range c {
		if s.key == key && s.step == step {
			delete(c, s)
			n++
		}
	}
	if len(c) == 0 {
		delete(m.cases, caseName)
	}
	return n, nil
}

func (m *Memory) Cases(context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.cases))
	for name := range m.cases {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

// ExportCase returns a sorted copy of one case's entries for snapshotting.
func (m *Memory) ExportCase(caseName string) []Entry {
	out, _ := m.List(context.Background(), caseName, "")
	return out
}

// ImportCase replaces one case with entries.
func (m *Memory) ImportCase(caseName string, entries []Entry) error {
	c := make(map[slot]Entry, len(entries))
	for _, e := range entries {
		if e.Case != caseName {
			return fmt.Errorf("%w: entry for case %q in snapshot of %q", ErrInvalidEntry, e.Case, caseName)
		}
		if err := e.Validate(); err != nil {
			return err
		}
		c[slot{e.Key, e.Step, e.Member}] = e
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(c) == 0 {
		delete(m.cases, caseName)
		return nil
	}
	m.cases[caseName] = c
	return nil
}

// SortEntries orders entries by case, key, step and member.
func SortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Case != b.Case {
			return a.Case < b.Case
		}
		if a.Key != b.Key {
			return a.Key < b.Key
		}
		if a.Step != b.Step {
			return a.Step < b.Step
		}
		return a.Member < b.Member
	})
}

// AffectedCases returns the distinct, sorted case names of entries.
func AffectedCases(entries []Entry) []string {
	seen := make(map[string]struct{}, 1)
	var out []string
	for _, e := range entries {
		if _, ok := seen[e.Case]; !ok {
			seen[e.Case] = struct{}{}
			out = append(out, e.Case)
		}
	}
	sort.Strings(out)
	return out
}
