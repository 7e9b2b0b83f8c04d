package memcache

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/layerfs/scmstore/api"
	"github.com/layerfs/scmstore/internal/contenthash"
	"github.com/layerfs/scmstore/service/backend"
	"github.com/layerfs/scmstore/service/lazyvalue"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return New(rdb, "scmstore-test")
}

func TestAddThenGetRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	key := api.Key{Path: "dir/file.txt", ContentId: contenthash.Sum([]byte("dir/file.txt"))}
	entry := backend.McData{Key: key, Content: []byte("hello"), Meta: lazyvalue.Metadata{Size: 5, Flags: 1}}

	if err := s.AddMcData(ctx, entry); err != nil {
		t.Fatal(err)
	}

	results, err := s.GetDataIter(ctx, []api.Key{key})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Err != nil {
		t.Fatal(results[0].Err)
	}
	if string(results[0].Value.Content) != "hello" {
		t.Fatalf("unexpected content: %q", results[0].Value.Content)
	}
	if results[0].Value.Meta.Size != 5 || results[0].Value.Meta.Flags != 1 {
		t.Fatalf("unexpected meta: %+v", results[0].Value.Meta)
	}
}

func TestGetDataIterSkipsMisses(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	present := api.Key{Path: "present", ContentId: contenthash.Sum([]byte("present"))}
	missing := api.Key{Path: "missing", ContentId: contenthash.Sum([]byte("missing"))}

	if err := s.AddMcData(ctx, backend.McData{Key: present, Content: []byte("x")}); err != nil {
		t.Fatal(err)
	}

	results, err := s.GetDataIter(ctx, []api.Key{present, missing})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("expected only the present key to be returned, got %d results", len(results))
	}
	if results[0].Key.Path != "present" {
		t.Fatalf("unexpected key in result: %+v", results[0].Key)
	}
}
