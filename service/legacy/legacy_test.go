package legacy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/layerfs/scmstore/api"
	"github.com/layerfs/scmstore/service/backend"
)

func TestGetHitAndMiss(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "dir", "file.txt"), nil, 0o644); err == nil {
		t.Fatal("expected write to a nonexistent subdirectory to fail")
	}
	if err := os.MkdirAll(filepath.Join(dir, "dir"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "dir", "file.txt"), []byte("legacy content"), 0o644); err != nil {
		t.Fatal(err)
	}

	s := New(dir)
	key := backend.StoreKey{Key: api.Key{Path: "dir/file.txt"}}

	data, ok, err := s.Get(key)
	if err != nil {
		t.Fatal(err)
	}
	if !ok || string(data) != "legacy content" {
		t.Fatalf("unexpected result: ok=%v data=%q", ok, data)
	}

	missKey := backend.StoreKey{Key: api.Key{Path: "missing.txt"}}
	_, ok, err = s.Get(missKey)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected miss")
	}

	if s.FallbackStats().Fetch() != 2 {
		t.Fatalf("expected 2 fetches recorded, got %d", s.FallbackStats().Fetch())
	}
	if s.FallbackStats().FetchHitContent() != 1 {
		t.Fatalf("expected 1 content hit, got %d", s.FallbackStats().FetchHitContent())
	}
	if s.FallbackStats().FetchMiss() != 1 {
		t.Fatalf("expected 1 miss, got %d", s.FallbackStats().FetchMiss())
	}
}

func TestGetMeta(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "file.bin"), []byte("12345"), 0o644); err != nil {
		t.Fatal(err)
	}

	s := New(dir)
	meta, ok, err := s.GetMeta(backend.StoreKey{Key: api.Key{Path: "file.bin"}})
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected hit")
	}
	if meta.Size != 5 {
		t.Fatalf("expected size 5, got %d", meta.Size)
	}
}
