package local

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aibom-registry/aibom-registry/internal/config"
	"github.com/aibom-registry/aibom-registry/internal/storage"
)

func newTestStorage(t *testing.T) (*LocalStorage, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := New(&config.LocalStorageConfig{BasePath: dir})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s, dir
}

// ---------------------------------------------------------------------------
// New
// ---------------------------------------------------------------------------

func TestNew_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "snapshots")
	if _, err := New(&config.LocalStorageConfig{BasePath: dir}); err != nil {
		t.Fatalf("New: %v", err)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Errorf("base path not created: %v", err)
	}
}

func TestNew_RequiresBasePath(t *testing.T) {
	if _, err := New(&config.LocalStorageConfig{}); err == nil {
		t.Error("New() = nil error, want error for empty base path")
	}
}

// ---------------------------------------------------------------------------
// Put / Get / Stat
// ---------------------------------------------------------------------------

func TestPutGetStat(t *testing.T) {
	s, dir := newTestStorage(t)
	ctx := context.Background()
	data := []byte(`{"format":"aibom-snapshot"}`)

	obj, err := s.Put(ctx, "snapshots/2026/01.json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if obj.Size != int64(len(data)) || obj.Checksum != storage.Checksum(data) {
		t.Errorf("Put result = %+v", obj)
	}
	if _, err := os.Stat(filepath.Join(dir, "snapshots", "2026", "01.json")); err != nil {
		t.Errorf("file not written: %v", err)
	}

	rc, err := s.Get(ctx, "snapshots/2026/01.json")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	got, _ := io.ReadAll(rc)
	rc.Close()
	if !bytes.Equal(got, data) {
		t.Errorf("Get = %q", got)
	}

	st, err := s.Stat(ctx, "snapshots/2026/01.json")
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if st.Checksum != obj.Checksum || st.Size != obj.Size {
		t.Errorf("Stat = %+v, want %+v", st, obj)
	}
}

func TestPut_Overwrites(t *testing.T) {
	s, _ := newTestStorage(t)
	ctx := context.Background()
	s.Put(ctx, "k", bytes.NewReader([]byte("first")))
	s.Put(ctx, "k", bytes.NewReader([]byte("second")))

	rc, _ := s.Get(ctx, "k")
	got, _ := io.ReadAll(rc)
	rc.Close()
	if string(got) != "second" {
		t.Errorf("Get = %q, want second", got)
	}
}

func TestNotFound(t *testing.T) {
	s, _ := newTestStorage(t)
	ctx := context.Background()
	if _, err := s.Get(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Get = %v, want ErrNotFound", err)
	}
	if _, err := s.Stat(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Stat = %v, want ErrNotFound", err)
	}
}

func TestPathTraversalRejected(t *testing.T) {
	s, _ := newTestStorage(t)
	if _, err := s.Put(context.Background(), "../escape", bytes.NewReader(nil)); err == nil {
		t.Error("Put outside root = nil error, want error")
	}
}

// ---------------------------------------------------------------------------
// List / Delete
// ---------------------------------------------------------------------------

func TestListAndDelete(t *testing.T) {
	s, dir := newTestStorage(t)
	ctx := context.Background()
	for _, k := range []string{"snapshots/b.json", "snapshots/a.json", "keys/c"} {
		if _, err := s.Put(ctx, k, bytes.NewReader([]byte(k))); err != nil {
			t.Fatalf("Put %s: %v", k, err)
		}
	}

	objs, err := s.List(ctx, "snapshots/")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(objs) != 2 || objs[0].Key != "snapshots/a.json" || objs[1].Key != "snapshots/b.json" {
		t.Fatalf("List = %+v", objs)
	}

	if err := s.Delete(ctx, "keys/c"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "keys")); !os.IsNotExist(err) {
		t.Error("empty parent directory not removed")
	}
	if err := s.Delete(ctx, "keys/c"); err != nil {
		t.Errorf("Delete missing = %v, want nil", err)
	}
}
