package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"testing"

	"raceview/internal/blob/core"
)

func TestStore_MockedBasicFlow(t *testing.T) {
	store := NewMockForTests()
	ctx := context.Background()
	info, err := store.Put(ctx, "datasets/races.json", bytes.NewReader([]byte("[]")), core.PutOptions{
		ContentType: "application/json",
		Metadata:    map[string]string{"origin": "cli"},
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Key != "datasets/races.json" || info.ContentType != "application/json" || info.Size != 2 {
		t.Fatalf("unexpected info %#v", info)
	}
	if info.Metadata["origin"] != "cli" {
		t.Fatalf("metadata not round-tripped: %#v", info.Metadata)
	}
	if _, err := store.Put(ctx, "datasets/races.json", bytes.NewReader([]byte("ignored")), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	if _, err := store.Put(ctx, "datasets/races.json", bytes.NewReader([]byte(`[{}]`)), core.PutOptions{Overwrite: true}); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	_, rc, err := store.Get(ctx, "datasets/races.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	data, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(data) != `[{}]` {
		t.Fatalf("get mismatch: %q", string(data))
	}
	list, err := store.List(ctx, "datasets/")
	if err != nil || len(list) != 1 {
		t.Fatalf("list: %v %+v", err, list)
	}
}

func TestStore_MissingKeysMapToErrNotFound(t *testing.T) {
	store := NewMockForTests()
	ctx := context.Background()
	if _, err := store.Head(ctx, "nope"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("head: expected ErrNotFound, got %v", err)
	}
	if _, _, err := store.Get(ctx, "nope"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("get: expected ErrNotFound, got %v", err)
	}
}

func TestStore_ListOrderedAndEmpty(t *testing.T) {
	store := NewMockForTests()
	ctx := context.Background()
	for _, k := range []string{"exports/b.csv", "exports/a.csv", "other.txt"} {
		if _, err := store.Put(ctx, k, bytes.NewReader([]byte("x")), core.PutOptions{}); err != nil {
			t.Fatalf("put %s: %v", k, err)
		}
	}
	list, err := store.List(ctx, "exports/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].Key != "exports/a.csv" || list[1].Key != "exports/b.csv" {
		t.Fatalf("unexpected list %+v", list)
	}
	if list, err := store.List(ctx, "no-such-prefix/"); err != nil || len(list) != 0 {
		t.Fatalf("expected empty list: %v %+v", err, list)
	}
}

func TestNew(t *testing.T) {
	s, err := New(context.Background(), Config{
		Bucket: "bkt", Endpoint: "https://mock.s3.local", PathStyle: true,
		AccessKeyID: "AKIA", SecretAccessKey: "SECRET",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if s.Driver() != core.DriverS3 {
		t.Fatalf("expected DriverS3")
	}
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatalf("expected error for missing bucket")
	}
}

func TestDecodeChunked(t *testing.T) {
	if _, ok := decodeChunked([]byte("not-chunked")); ok {
		t.Fatalf("expected plain body to be rejected")
	}
	if _, ok := decodeChunked([]byte("5\r\nabc\r\n0\r\n")); ok {
		t.Fatalf("size mismatch should fail")
	}
	if b, ok := decodeChunked([]byte("5\r\nhello\r\n0\r\n")); !ok || string(b) != "hello" {
		t.Fatalf("expected decode hello, got %q %v", b, ok)
	}
	if b, ok := decodeChunked([]byte("2;chunk-signature=abc\r\n[]\r\n0\r\nx-amz-checksum-crc32:AAAA\r\n\r\n")); !ok || string(b) != "[]" {
		t.Fatalf("expected decode with trailer, got %q %v", b, ok)
	}
}

func TestMockRoundTripperUnsupported(t *testing.T) {
	rt := &mockRoundTripper{state: make(map[string]mockObj)}
	req, _ := http.NewRequest(http.MethodPatch, "https://mock.s3.local/bucket/key", nil)
	resp, _ := rt.RoundTrip(req)
	if resp.StatusCode != http.StatusNotImplemented {
		t.Fatalf("expected 501, got %d", resp.StatusCode)
	}
}
