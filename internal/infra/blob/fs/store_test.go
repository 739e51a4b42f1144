package fs

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"crosswalk/internal/blob/core"
)

func newTempStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	store.now = func() time.Time { return time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC) }
	return store
}

func TestStore_PutGetHeadListDelete(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t)
	key := "mutations/20240301T000000Z.xlsx"
	info, err := store.Put(ctx, key, bytes.NewReader([]byte("sheet")), core.PutOptions{ContentType: "application/vnd.ms-excel", Metadata: map[string]string{"to": "2024-03-01"}})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Key != key || info.Size != 5 || info.ETag == "" {
		t.Fatalf("unexpected info %+v", info)
	}
	if _, err := store.Put(ctx, key, bytes.NewReader([]byte("x")), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	h, err := store.Head(ctx, key)
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	g, rc, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	b, _ := io.ReadAll(rc)
	if err := rc.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if string(b) != "sheet" || g.ETag != h.ETag || g.Metadata["to"] != "2024-03-01" {
		t.Fatalf("unexpected get artifacts %+v", g)
	}
	if !h.LastModified.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected last modified %v", h.LastModified)
	}
	list, err := store.List(ctx, "mutations/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].Key != key {
		t.Fatalf("unexpected list %+v", list)
	}
	if other, _ := store.List(ctx, "roster/"); len(other) != 0 {
		t.Fatalf("expected empty roster listing, got %+v", other)
	}
	ok, err := store.Delete(ctx, key)
	if err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}
	ok, err = store.Delete(ctx, key)
	if err != nil || ok {
		t.Fatalf("second delete should report missing: %v %v", ok, err)
	}
	if _, err := store.Head(ctx, key); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if _, _, err := store.Get(ctx, key); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound from get, got %v", err)
	}
}

func TestStore_InvalidKeys(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t)
	for _, key := range []string{"", "/abs", "../escape", "a/../../b"} {
		if _, err := store.Put(ctx, key, bytes.NewReader(nil), core.PutOptions{}); !errors.Is(err, core.ErrInvalidKey) {
			t.Fatalf("put %q: expected ErrInvalidKey, got %v", key, err)
		}
		if _, err := store.Head(ctx, key); !errors.Is(err, core.ErrInvalidKey) {
			t.Fatalf("head %q: expected ErrInvalidKey, got %v", key, err)
		}
	}
}

func TestStore_ListCorruptSidecar(t *testing.T) {
	store := newTempStore(t)
	data := filepath.Join(store.Root(), "bad.xlsx")
	if err := os.WriteFile(data, []byte("data"), 0o644); err != nil {
		t.Fatalf("write data: %v", err)
	}
	if err := os.WriteFile(data+metaSuffix, []byte("{"), 0o644); err != nil {
		t.Fatalf("write meta: %v", err)
	}
	if _, err := store.List(context.Background(), ""); err == nil {
		t.Fatalf("expected list error on corrupt sidecar")
	}
	if _, err := store.Head(context.Background(), "bad.xlsx"); err == nil || errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected decode error, got %v", err)
	}
}

func TestStore_MarshalFailure(t *testing.T) {
	prev := jsonMarshal
	jsonMarshal = func(any) ([]byte, error) { return nil, errors.New("marshal") }
	t.Cleanup(func() { jsonMarshal = prev })
	store := newTempStore(t)
	if _, err := store.Put(context.Background(), "x", bytes.NewReader([]byte("1")), core.PutOptions{}); err == nil {
		t.Fatalf("expected marshal failure")
	}
}

func TestStore_PresignURL(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t)
	u, err := store.PresignURL(ctx, "exports/id/crosswalk.csv", core.SignedURLOptions{})
	if err != nil || u != "file://local.blob/exports/id/crosswalk.csv" {
		t.Fatalf("unexpected url %q %v", u, err)
	}
	if _, err := store.PresignURL(ctx, "x", core.SignedURLOptions{Method: "PUT"}); !errors.Is(err, core.ErrUnsupported) {
		t.Fatalf("expected unsupported, got %v", err)
	}
}

func TestNewDefaultsRoot(t *testing.T) {
	t.Chdir(t.TempDir())
	store, err := New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if store.Root() != DefaultRoot || store.Driver() != core.DriverFilesystem {
		t.Fatalf("unexpected store %+v", store)
	}
	if _, err := os.Stat(DefaultRoot); err != nil {
		t.Fatalf("expected default root created: %v", err)
	}
}
