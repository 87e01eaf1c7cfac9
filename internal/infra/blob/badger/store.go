// Package badger implements core.Store on an embedded badger database.
package badger

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"enkfcore/internal/blob/core"
)

// Each blob occupies two keys written in one transaction:
//   - "data:<key>" holds the raw bytes
//   - "meta:<key>" holds a JSON record
const (
	dataPrefix = "data:"
	metaPrefix = "meta:"
)

// Store keeps blobs in a single badger database directory.
type Store struct {
	db *badger.DB
}

type record struct {
	ContentType string            `json:"content_type,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	ETag        string            `json:"etag"`
	Size        int64             `json:"size"`
	CreatedAt   time.Time         `json:"created_at"`
}

func (r record) info(key string) core.Info {
	return core.Info{Key: key, Size: r.Size, ContentType: r.ContentType, ETag: r.ETag, Metadata: core.CloneMetadata(r.Metadata), LastModified: r.CreatedAt}
}

// Open opens (or creates) the database at path. An empty path keeps the
// database in memory.
func Open(path string) (*Store, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Driver() core.Driver { return core.DriverBadger }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Put(ctx context.Context, key string, r io.Reader, opts core.PutOptions) (core.Info, error) {
	if strings.TrimSpace(key) == "" {
		return core.Info{}, fmt.Errorf("empty key")
	}
	if err := ctx.Err(); err != nil {
		return core.Info{}, err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return core.Info{}, err
	}
	sum := sha256.Sum256(data)
	rec := record{
		ContentType: opts.ContentType,
		Metadata:    core.CloneMetadata(opts.Metadata),
		ETag:        hex.EncodeToString(sum[:]),
		Size:        int64(len(data)),
		CreatedAt:   time.Now().UTC(),
	}
	buf, err := json.Marshal(rec)
	if err != nil {
		return core.Info{}, err
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(metaPrefix + key)); err == nil {
			return fmt.Errorf("blob %s: %w", key, core.ErrExists)
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := txn.Set([]byte(dataPrefix+key), data); err != nil {
			return err
		}
		return txn.Set([]byte(metaPrefix+key), buf)
	})
	if err != nil {
		return core.Info{}, err
	}
	return rec.info(key), nil
}

func (s *Store) Get(_ context.Context, key string) (core.Info, io.ReadCloser, error) {
	var (
		rec  record
		data []byte
	)
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		if rec, err = readRecord(txn, key); err != nil {
			return err
		}
		item, err := txn.Get([]byte(dataPrefix + key))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return core.Info{}, nil, notFound(key, err)
	}
	return rec.info(key), io.NopCloser(bytes.NewReader(data)), nil
}

func (s *Store) Head(_ context.Context, key string) (core.Info, error) {
	var rec record
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		rec, err = readRecord(txn, key)
		return err
	})
	if err != nil {
		return core.Info{}, notFound(key, err)
	}
	return rec.info(key), nil
}

func (s *Store) Delete(_ context.Context, key string) (bool, error) {
	existed := false
	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(metaPrefix + key)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		existed = true
		if err := txn.Delete([]byte(dataPrefix + key)); err != nil {
			return err
		}
		return txn.Delete([]byte(metaPrefix + key))
	})
	return existed, err
}

// List iterates the metadata keyspace; badger yields keys in byte order.
func (s *Store) List(_ context.Context, prefix string) ([]core.Info, error) {
	var infos []core.Info
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: true, PrefetchSize: 100})
		defer it.Close()
		p := []byte(metaPrefix + prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			item := it.Item()
			key := strings.TrimPrefix(string(item.Key()), metaPrefix)
			var rec record
			if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &rec) }); err != nil {
				return fmt.Errorf("decode %s: %w", key, err)
			}
			infos = append(infos, rec.info(key))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return infos, nil
}

func readRecord(txn *badger.Txn, key string) (record, error) {
	var rec record
	item, err := txn.Get([]byte(metaPrefix + key))
	if err != nil {
		return rec, err
	}
	err = item.Value(func(val []byte) error { return json.Unmarshal(val, &rec) })
	return rec, err
}

func notFound(key string, err error) error {
	if errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("blob %s: %w", key, core.ErrNotFound)
	}
	return err
}
