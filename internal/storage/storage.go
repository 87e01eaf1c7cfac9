// Package storage persists ensembles: every member frame goes to the blob
// store and is indexed in the catalog with its size and sha256 checksum.
package storage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"enkfcore/internal/blob"
	"enkfcore/internal/catalog"
	"enkfcore/internal/ensemble"
	"enkfcore/internal/log"
	"enkfcore/internal/metrics"
	"enkfcore/pkg/nodeapi"
)

// ContentType tags stored node frames.
const ContentType = "application/x-enkf-node"

var (
	// ErrNotStored is returned for a member the catalog does not know.
	ErrNotStored = errors.New("storage: member not stored")
	// ErrChecksum is wrapped in a *nodeapi.DecodeError when a frame does not
	// match the checksum recorded at save time.
	ErrChecksum = errors.New("checksum mismatch")
)

// MemberError attributes a failure to one ensemble member.
type MemberError struct {
	Member int
	Err    error
}

func (e *MemberError) Error() string { return fmt.Sprintf("member %d: %v", e.Member, e.Err) }

func (e *MemberError) Unwrap() error { return e.Err }

// Store ties a blob store, a catalog and a metrics recorder together.
type Store struct {
	blobs    blob.Store
	catalog  catalog.Catalog
	recorder metrics.Recorder
	logger   zerolog.Logger
}

// Option customises a Store.
type Option func(*Store)

// WithRecorder observes every member read and write.
func WithRecorder(r metrics.Recorder) Option {
	return func(s *Store) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithLogger replaces the component logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// New builds a Store. Both backends are owned by the Store and released by
// Close.
func New(blobs blob.Store, cat catalog.Catalog, opts ...Option) (*Store, error) {
	if blobs == nil || cat == nil {
		return nil, fmt.Errorf("storage: blob store and catalog required")
	}
	s := &Store{blobs: blobs, catalog: cat, recorder: metrics.Nop{}, logger: log.WithComponent("storage")}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// BlobKey returns the blob key of one member frame. The key carries a
// checksum prefix so a new frame never overwrites the one the catalog
// currently points at. Step and member are zero-padded so listings sort
// numerically for typical sizes. An empty checksum yields the member prefix.
func BlobKey(caseName, key string, step, iens int, checksum string) string {
	return fmt.Sprintf("%s/%s/%04d/member-%04d-%s", caseName, key, step, iens, checksum[:min(len(checksum), 16)])
}

func stepPrefix(caseName, key string, step int) string {
	return fmt.Sprintf("%s/%s/%04d/", caseName, key, step)
}

func checkAddress(caseName, key string, step int) error {
	return catalog.Entry{Case: caseName, Key: key, Step: step}.Validate()
}

// Save writes every member of ens for (caseName, step), replacing what was
// stored before. New frames are written next to the old ones and the
// catalog is switched over in one Record once every member is stored; only
// then are the superseded frames deleted. A failed Save removes the frames
// it wrote and leaves the previously stored step readable. Saves of the same
// step must not run concurrently.
func (s *Store) Save(ctx context.Context, caseName string, step int, ens *ensemble.Ensemble) error {
	if err := checkAddress(caseName, ens.Key(), step); err != nil {
		return err
	}
	logger := log.FromContext(ctx, s.logger)
	started := time.Now()
	entries := make([]catalog.Entry, ens.Size())
	created := make([]string, ens.Size())
	err := ens.Each(ctx, func(ctx context.Context, iens int, node nodeapi.Node) error {
		entry, fresh, err := s.saveMember(ctx, caseName, step, iens, node)
		if err != nil {
			return &MemberError{Member: iens, Err: err}
		}
		entries[iens] = entry
		if fresh {
			created[iens] = entry.Blob
		}
		return nil
	})
	if err != nil {
		s.discard(ctx, logger, created)
		logger.Error().Err(err).Str("case", caseName).Str("key", ens.Key()).Int("step", step).Msg("save failed")
		return err
	}
	previous := make([]catalog.Entry, len(entries))
	for iens, e := range entries {
		prev, _, err := s.catalog.Lookup(ctx, caseName, e.Key, step, iens)
		if err != nil {
			s.discard(ctx, logger, created)
			return fmt.Errorf("lookup %s/%s step %d: %w", caseName, e.Key, step, err)
		}
		previous[iens] = prev
	}
	if err := s.catalog.Record(ctx, entries...); err != nil {
		s.discard(ctx, logger, created)
		return fmt.Errorf("record %s/%s step %d: %w", caseName, ens.Key(), step, err)
	}
	var stale []string
	for iens, prev := range previous {
		if prev.Blob != "" && prev.Blob != entries[iens].Blob {
			stale = append(stale, prev.Blob)
		}
	}
	s.discard(ctx, logger, stale)
	var total int64
	for _, e := range entries {
		total += e.Size
	}
	logger.Info().
		Str("case", caseName).
		Str("key", ens.Key()).
		Stringer("impl", ens.Impl()).
		Int("step", step).
		Int("members", len(entries)).
		Int64("bytes", total).
		Dur("elapsed", time.Since(started)).
		Msg("ensemble saved")
	return nil
}

// saveMember stores one frame and reports whether it created the blob; an
// identical frame already stored under the same key is reused.
func (s *Store) saveMember(ctx context.Context, caseName string, step, iens int, node nodeapi.Node) (entry catalog.Entry, created bool, err error) {
	impl := node.Impl()
	started := time.Now()
	var size int64
	defer func() { s.recorder.Observe(metrics.OpWrite, impl, size, time.Since(started), err) }()

	var buf bytes.Buffer
	if size, err = node.WriteTo(&buf); err != nil {
		return entry, false, err
	}
	sum := sha256.Sum256(buf.Bytes())
	checksum := hex.EncodeToString(sum[:])
	key := node.Config().Key()
	blobKey := BlobKey(caseName, key, step, iens, checksum)
	_, err = s.blobs.Put(ctx, blobKey, bytes.NewReader(buf.Bytes()), blob.PutOptions{
		ContentType: ContentType,
		Metadata: map[string]string{
			"impl":     strconv.FormatUint(uint64(impl), 10),
			"checksum": checksum,
		},
	})
	switch {
	case err == nil:
		created = true
	case errors.Is(err, blob.ErrExists):
		err = nil
	default:
		return entry, false, &nodeapi.IOError{Op: "put", Err: err}
	}
	return catalog.Entry{
		Case:     caseName,
		Key:      key,
		Impl:     impl,
		Step:     step,
		Member:   iens,
		Size:     size,
		Checksum: checksum,
		Blob:     blobKey,
		StoredAt: time.Now().UTC(),
	}, created, nil
}

// discard deletes blobs best effort; failures only leave orphans that Drop
// removes with the rest of the step.
func (s *Store) discard(ctx context.Context, logger zerolog.Logger, keys []string) {
	ctx = context.WithoutCancel(ctx)
	for _, key := range keys {
		if key == "" {
			continue
		}
		if _, err := s.blobs.Delete(ctx, key); err != nil {
			logger.Warn().Err(err).Str("blob", key).Msg("delete blob")
		}
	}
}

// Load reads every member of (caseName, step) into ens. Each member is
// decoded into a freshly allocated node that replaces the ensemble member
// only on success, so a failed member keeps its previous state. Failures
// are returned as *MemberError values joined with errors.Join; the members
// that loaded stay loaded.
func (s *Store) Load(ctx context.Context, caseName string, step int, ens *ensemble.Ensemble) error {
	if err := checkAddress(caseName, ens.Key(), step); err != nil {
		return err
	}
	logger := log.FromContext(ctx, s.logger)
	errs := make([]error, ens.Size())
	_ = ens.Each(ctx, func(ctx context.Context, iens int, _ nodeapi.Node) error {
		if err := s.loadMember(ctx, caseName, step, iens, ens); err != nil {
			errs[iens] = &MemberError{Member: iens, Err: err}
		}
		return nil
	})
	if err := ctx.Err(); err != nil {
		return err
	}
	failed := 0
	for _, err := range errs {
		if err != nil {
			failed++
		}
	}
	ev := logger.Info()
	if failed > 0 {
		ev = logger.Warn()
	}
	ev.Str("case", caseName).Str("key", ens.Key()).Int("step", step).Int("members", ens.Size()).Int("failed", failed).Msg("ensemble loaded")
	return errors.Join(errs...)
}

func (s *Store) loadMember(ctx context.Context, caseName string, step, iens int, ens *ensemble.Ensemble) (err error) {
	impl := ens.Impl()
	started := time.Now()
	var size int64
	defer func() { s.recorder.Observe(metrics.OpRead, impl, size, time.Since(started), err) }()

	entry, ok, err := s.catalog.Lookup(ctx, caseName, ens.Key(), step, iens)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s/%s step %d", ErrNotStored, caseName, ens.Key(), step)
	}
	if entry.Impl != impl {
		return &nodeapi.DecodeError{Impl: impl, Key: ens.Key(), Err: &nodeapi.TypeMismatchError{Want: impl, Got: entry.Impl}}
	}
	if entry.Blob == "" {
		return &nodeapi.DecodeError{Impl: impl, Key: ens.Key(), Err: errors.New("catalog entry has no blob key")}
	}
	_, rc, err := s.blobs.Get(ctx, entry.Blob)
	if err != nil {
		return &nodeapi.IOError{Op: "get", Err: err}
	}
	data, err := io.ReadAll(rc)
	_ = rc.Close()
	if err != nil {
		return &nodeapi.IOError{Op: "read", Err: err}
	}
	size = int64(len(data))
	sum := sha256.Sum256(data)
	if hex.EncodeToString(sum[:]) != entry.Checksum {
		return &nodeapi.DecodeError{Impl: impl, Key: ens.Key(), Err: ErrChecksum}
	}
	node, err := ens.Alloc()
	if err != nil {
		return err
	}
	r := bytes.NewReader(data)
	if _, err := node.ReadFrom(r); err != nil {
		return err
	}
	if r.Len() != 0 {
		return &nodeapi.DecodeError{Impl: impl, Key: ens.Key(), Err: fmt.Errorf("%d trailing bytes", r.Len())}
	}
	return ens.Replace(iens, node)
}

// Has reports whether member iens of (caseName, key, step) is stored.
func (s *Store) Has(ctx context.Context, caseName, key string, step, iens int) (bool, error) {
	_, ok, err := s.catalog.Lookup(ctx, caseName, key, step, iens)
	return ok, err
}

// Entries lists the catalog entries of a case; an empty key lists all keys.
func (s *Store) Entries(ctx context.Context, caseName, key string) ([]catalog.Entry, error) {
	return s.catalog.List(ctx, caseName, key)
}

// Cases lists the cases with stored frames.
func (s *Store) Cases(ctx context.Context) ([]string, error) {
	return s.catalog.Cases(ctx)
}

// Drop removes every stored frame of (caseName, key, step) and returns the
// number of catalog entries removed.
func (s *Store) Drop(ctx context.Context, caseName, key string, step int) (int, error) {
	if err := checkAddress(caseName, key, step); err != nil {
		return 0, err
	}
	infos, err := s.blobs.List(ctx, stepPrefix(caseName, key, step))
	if err != nil {
		return 0, &nodeapi.IOError{Op: "list", Err: err}
	}
	for _, info := range infos {
		if _, err := s.blobs.Delete(ctx, info.Key); err != nil {
			return 0, &nodeapi.IOError{Op: "delete", Err: err}
		}
	}
	n, err := s.catalog.Delete(ctx, caseName, key, step)
	if err != nil {
		return n, err
	}
	logger := log.FromContext(ctx, s.logger)
	logger.Info().Str("case", caseName).Str("key", key).Int("step", step).Int("members", n).Msg("step dropped")
	return n, nil
}

// Close releases the blob store and the catalog.
func (s *Store) Close() error {
	return errors.Join(s.blobs.Close(), s.catalog.Close())
}
