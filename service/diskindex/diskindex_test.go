package diskindex

import (
	"path/filepath"
	"testing"

	"github.com/layerfs/scmstore/api"
	"github.com/layerfs/scmstore/internal/contenthash"
	"github.com/layerfs/scmstore/service/backend"
	"github.com/layerfs/scmstore/service/lazyvalue"
)

func TestPutGetRoundTrip(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "store.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	key := api.Key{Path: "dir/file.txt", ContentId: contenthash.Sum([]byte("dir/file.txt"))}
	entry := backend.IndexedEntry{Key: key, Content: []byte("hello"), Meta: lazyvalue.Metadata{Size: 5}}

	if err := s.PutEntry(entry); err != nil {
		t.Fatal(err)
	}
	got, ok, err := s.GetRawEntry(key)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected entry to be found")
	}
	if string(got.Content) != "hello" {
		t.Fatalf("unexpected content: %q", got.Content)
	}
}

func TestGetMiss(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "store.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	_, ok, err := s.GetRawEntry(api.Key{Path: "missing"})
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected miss")
	}
}

// A Store opened with plain Open has no watcher, so Refresh is always a
// no-op rather than needlessly reopening its own handle.
func TestRefreshNoopWithoutWatcher(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "store.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if err := s.Refresh(); err != nil {
		t.Fatal(err)
	}
}

// A Store opened with OpenWatched reopens its bbolt handle once its
// watcher has observed a change, and keeps serving previously written
// entries across the reopen.
func TestRefreshReopensOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.db")
	s, err := OpenWatched(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	key := api.Key{Path: "a", ContentId: contenthash.Sum([]byte("a"))}
	entry := backend.IndexedEntry{Key: key, Content: []byte("v1"), Meta: lazyvalue.Metadata{Size: 2}}
	if err := s.PutEntry(entry); err != nil {
		t.Fatal(err)
	}

	s.markChanged()
	if err := s.Refresh(); err != nil {
		t.Fatal(err)
	}

	got, ok, err := s.GetRawEntry(key)
	if err != nil {
		t.Fatal(err)
	}
	if !ok || string(got.Content) != "v1" {
		t.Fatalf("expected reopened db to still serve prior writes, got %+v ok=%v", got, ok)
	}
}
