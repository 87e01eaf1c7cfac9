package fs

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"enkfcore/internal/blob/core"
)

func newTempStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return store
}

func TestStore_PutGetHeadListDelete(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t)
	payload := []byte("ENKF\x01\x00frame")
	sum := sha256.Sum256(payload)
	info, err := store.Put(ctx, "prior/PORO/0/member-0000", bytes.NewReader(payload), core.PutOptions{ContentType: "application/octet-stream", Metadata: map[string]string{"impl": "FIELD"}})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Size != int64(len(payload)) || info.ETag != hex.EncodeToString(sum[:]) {
		t.Fatalf("unexpected info %+v", info)
	}
	if _, err := store.Put(ctx, "prior/PORO/0/member-0000", bytes.NewReader([]byte("x")), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	h, err := store.Head(ctx, "prior/PORO/0/member-0000")
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	g, rc, err := store.Get(ctx, "prior/PORO/0/member-0000")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	b, _ := io.ReadAll(rc)
	if err := rc.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !bytes.Equal(b, payload) || g.ETag != h.ETag || g.Metadata["impl"] != "FIELD" {
		t.Fatalf("unexpected get artifacts %+v", g)
	}
	if _, err := store.Put(ctx, "prior/PORO/0/member-0001", bytes.NewReader([]byte("y")), core.PutOptions{}); err != nil {
		t.Fatalf("put second: %v", err)
	}
	if _, err := store.Put(ctx, "posterior/PORO/0/member-0000", bytes.NewReader([]byte("z")), core.PutOptions{}); err != nil {
		t.Fatalf("put other case: %v", err)
	}
	list, err := store.List(ctx, "prior/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].Key != "prior/PORO/0/member-0000" || list[1].Key != "prior/PORO/0/member-0001" {
		t.Fatalf("unexpected list %+v", list)
	}
	ok, err := store.Delete(ctx, "prior/PORO/0/member-0000")
	if err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}
	ok, err = store.Delete(ctx, "prior/PORO/0/member-0000")
	if err != nil || ok {
		t.Fatalf("second delete should be false")
	}
	if _, _, err := store.Get(ctx, "prior/PORO/0/member-0000"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := store.Head(ctx, "prior/PORO/0/member-0000"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound from head, got %v", err)
	}
}

func TestStore_RejectsBadKeys(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t)
	for _, key := range []string{"", "  ", "../escape", "/abs", "a/../../b", "case/x.meta"} {
		if _, err := store.Put(ctx, key, bytes.NewReader([]byte("x")), core.PutOptions{}); err == nil {
			t.Fatalf("expected error for key %q", key)
		}
	}
}

func TestStore_FailedPutLeavesNothing(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t)
	boom := errors.New("boom")
	r := io.MultiReader(bytes.NewReader([]byte("partial")), &failingReader{err: boom})
	if _, err := store.Put(ctx, "c/K/0/member-0000", r, core.PutOptions{}); !errors.Is(err, boom) {
		t.Fatalf("expected reader error, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(store.root, "c", "K", "0", "member-0000")); !os.IsNotExist(err) {
		t.Fatalf("partial blob left behind: %v", err)
	}
	list, err := store.List(ctx, "")
	if err != nil || len(list) != 0 {
		t.Fatalf("expected empty listing, got %v %v", list, err)
	}
}

func TestStore_DefaultRoot(t *testing.T) {
	t.Chdir(t.TempDir())
	store, err := New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := os.Stat(store.root); err != nil {
		t.Fatalf("default root not created: %v", err)
	}
}

type failingReader struct{ err error }

func (f *failingReader) Read([]byte) (int, error) { return 0, f.err }
