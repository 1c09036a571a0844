package fs

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"raceview/internal/blob/core"
)

func newTempStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return store
}

func TestStore_PutGetHeadList(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t)
	info, err := store.Put(ctx, "datasets/races.json", bytes.NewReader([]byte("[]")), core.PutOptions{ContentType: "application/json", Metadata: map[string]string{"k": "v"}})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Key != "datasets/races.json" || info.Size != 2 || info.ETag == "" {
		t.Fatalf("unexpected info %+v", info)
	}
	if _, err := store.Put(ctx, "datasets/races.json", bytes.NewReader([]byte("x")), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	h, err := store.Head(ctx, "datasets/races.json")
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	if h.ContentType != "application/json" || h.Metadata["k"] != "v" {
		t.Fatalf("unexpected head %+v", h)
	}
	_, rc, err := store.Get(ctx, "datasets/races.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	b, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(b) != "[]" {
		t.Fatalf("unexpected body %q", b)
	}
	list, err := store.List(ctx, "datasets/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].Key != "datasets/races.json" {
		t.Fatalf("unexpected list %+v", list)
	}
}

func TestStore_OverwriteUpdatesETag(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t)
	first, err := store.Put(ctx, "races.json", bytes.NewReader([]byte("[]")), core.PutOptions{})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	second, err := store.Put(ctx, "races.json", bytes.NewReader([]byte("[{}]")), core.PutOptions{Overwrite: true})
	if err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if first.ETag == second.ETag || second.Size != 4 {
		t.Fatalf("expected new content, got %+v then %+v", first, second)
	}
}

func TestStore_HandPlacedFileWithoutSidecar(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t)
	if err := os.WriteFile(filepath.Join(store.Root(), "races.json"), []byte("[1]"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	info, rc, err := store.Get(ctx, "races.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	_ = rc.Close()
	if info.Size != 3 || info.ContentType != "" {
		t.Fatalf("unexpected info %+v", info)
	}
	p, err := store.Path("races.json")
	if err != nil || p != filepath.Join(store.Root(), "races.json") {
		t.Fatalf("path: %q %v", p, err)
	}
}

func TestStore_MissingAndInvalidKeys(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t)
	if _, err := store.Head(ctx, "missing.json"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, _, err := store.Get(ctx, "missing.json"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	for _, key := range []string{"", "../escape", "/abs", "x.meta"} {
		if _, err := store.Put(ctx, key, bytes.NewReader(nil), core.PutOptions{}); err == nil {
			t.Fatalf("expected error for key %q", key)
		}
	}
}

func TestStore_CorruptSidecar(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t)
	if _, err := store.Put(ctx, "a.json", bytes.NewReader([]byte("[]")), core.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	p, _ := store.Path("a.json")
	if err := os.WriteFile(p+".meta", []byte("{"), 0o644); err != nil {
		t.Fatalf("write meta: %v", err)
	}
	if _, err := store.Head(ctx, "a.json"); err == nil {
		t.Fatalf("expected decode error")
	}
}
