package cache

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestStoreWriteAndRead(t *testing.T) {
	store := newTestStore(t)
	locator := Locator{Namespace: "Images", Key: "/poster1.jpg"}

	payload := []byte("payload")
	if err := store.Write(context.Background(), locator, payload); err != nil {
		t.Fatalf("write error: %v", err)
	}

	got, err := store.Read(context.Background(), locator)
	if err != nil {
		t.Fatalf("read error: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("cached payload mismatch: %s", string(got))
	}
	if !store.Exists(context.Background(), locator) {
		t.Fatalf("entry should exist after write")
	}
}

func TestStorePutSetsModTime(t *testing.T) {
	store := newTestStore(t)
	locator := Locator{Namespace: "data", Key: "lists/42.json"}

	modTime := time.Now().Add(-time.Hour).UTC()
	entry, err := store.Put(context.Background(), locator, bytes.NewReader([]byte("[]")), PutOptions{ModTime: modTime})
	if err != nil {
		t.Fatalf("put error: %v", err)
	}
	if entry.SizeBytes != 2 {
		t.Fatalf("size mismatch: %d", entry.SizeBytes)
	}
	info, err := os.Stat(entry.FilePath)
	if err != nil {
		t.Fatalf("stat error: %v", err)
	}
	if !info.ModTime().Equal(modTime) {
		t.Fatalf("modtime mismatch: expected %v got %v", modTime, info.ModTime())
	}
}

func TestStoreWriteOverwrites(t *testing.T) {
	store := newTestStore(t)
	locator := Locator{Namespace: "data", Key: "genres.json"}

	for _, body := range []string{"first-and-longer", "second"} {
		if err := store.Write(context.Background(), locator, []byte(body)); err != nil {
			t.Fatalf("write error: %v", err)
		}
	}
	got, err := store.Read(context.Background(), locator)
	if err != nil {
		t.Fatalf("read error: %v", err)
	}
	if string(got) != "second" {
		t.Fatalf("expected full overwrite, got %q", string(got))
	}

	dir := filepath.Dir(store.(*fileStore).mustPath(t, locator))
	leftovers, _ := filepath.Glob(filepath.Join(dir, ".cache-*"))
	if len(leftovers) != 0 {
		t.Fatalf("temp files left behind: %v", leftovers)
	}
}

func TestStoreReadMissing(t *testing.T) {
	store := newTestStore(t)
	got, err := store.Read(context.Background(), Locator{Namespace: "Images", Key: "/missing.jpg"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if got != nil {
		t.Fatalf("missing entry must not return a value, got %q", got)
	}
	if store.Exists(context.Background(), Locator{Namespace: "Images", Key: "/missing.jpg"}) {
		t.Fatalf("missing entry should not exist")
	}
}

func TestStoreRemove(t *testing.T) {
	store := newTestStore(t)
	locator := Locator{Namespace: "Images", Key: "/cache/remove.jpg"}
	if err := store.Write(context.Background(), locator, []byte("data")); err != nil {
		t.Fatalf("write error: %v", err)
	}
	if err := store.Remove(context.Background(), locator); err != nil {
		t.Fatalf("remove error: %v", err)
	}
	if _, err := store.Read(context.Background(), locator); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found after remove, got %v", err)
	}
	if err := store.Remove(context.Background(), locator); err != nil {
		t.Fatalf("removing a missing entry should succeed, got %v", err)
	}
}

func TestStoreIgnoresDirectories(t *testing.T) {
	store := newTestStore(t)
	locator := Locator{Namespace: "Images", Key: "/t/p"}

	filePath := store.(*fileStore).mustPath(t, locator)
	if err := os.MkdirAll(filePath, 0o755); err != nil {
		t.Fatalf("mkdir error: %v", err)
	}

	if _, err := store.Read(context.Background(), locator); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for directory, got %v", err)
	}
	if store.Exists(context.Background(), locator) {
		t.Fatalf("directory should not count as an entry")
	}
}

func TestStoreKeysStayInsideNamespace(t *testing.T) {
	store := newTestStore(t).(*fileStore)
	filePath, err := store.entryPath(Locator{Namespace: "Images", Key: "../../etc/passwd"})
	if err != nil {
		t.Fatalf("path error: %v", err)
	}
	want := filepath.Join(store.basePath, "Images", "etc", "passwd")
	if filePath != want {
		t.Fatalf("expected %s, got %s", want, filePath)
	}
	if _, err := store.entryPath(Locator{Namespace: "Images", Key: "/"}); err == nil {
		t.Fatalf("empty key should be rejected")
	}
}

func TestNewStoreCreatesNamespaces(t *testing.T) {
	root := filepath.Join(t.TempDir(), "Cache")
	if _, err := NewStore(root, "Images", "data"); err != nil {
		t.Fatalf("store error: %v", err)
	}
	for _, ns := range []string{"Images", "data"} {
		info, err := os.Stat(filepath.Join(root, ns))
		if err != nil || !info.IsDir() {
			t.Fatalf("namespace %s not created: %v", ns, err)
		}
	}
}

func TestNewStoreUnavailable(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatalf("write blocker: %v", err)
	}
	_, err := NewStore(filepath.Join(blocker, "Cache"), "Images")
	if !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable, got %v", err)
	}
}

func TestDecodeJSONCorrupt(t *testing.T) {
	if _, err := DecodeJSON[map[int]string]([]byte(`{"28": "Action"`)); !errors.Is(err, ErrCorruptData) {
		t.Fatalf("expected ErrCorruptData for truncated blob, got %v", err)
	}
	if _, err := DecodeJSON[map[int]string](nil); !errors.Is(err, ErrCorruptData) {
		t.Fatalf("expected ErrCorruptData for empty blob, got %v", err)
	}

	blob, err := EncodeJSON(map[int]string{28: "Action"})
	if err != nil {
		t.Fatalf("encode error: %v", err)
	}
	got, err := DecodeJSON[map[int]string](blob)
	if err != nil || got[28] != "Action" {
		t.Fatalf("unexpected decode result %v (%v)", got, err)
	}
}

// newTestStore returns a Store backed by a temporary directory.
func newTestStore(t *testing.T) Store {
	t.Helper()
	store, err := NewStore(t.TempDir(), "Images", "data")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return store
}

func (s *fileStore) mustPath(t *testing.T, locator Locator) string {
	t.Helper()
	filePath, err := s.entryPath(locator)
	if err != nil {
		t.Fatalf("path error: %v", err)
	}
	return filePath
}
