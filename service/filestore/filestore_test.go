package filestore

import (
	"context"
	"testing"

	"github.com/layerfs/scmstore/api"
	"github.com/layerfs/scmstore/service/backend"
)

func TestFetchSingleReturnsErrorOnMiss(t *testing.T) {
	store := New(WithLocalIndexed(newMemIndexedStore(), nil))
	_, err := store.FetchSingle(context.Background(), keyFor("missing.txt"), api.Content)
	if err == nil {
		t.Fatal("expected an error for a key no tier can resolve")
	}
}

func TestFetchMissingReturnsOnlyUnresolvedKeys(t *testing.T) {
	local := newMemIndexedStore()
	hit := keyFor("hit.txt")
	miss := keyFor("miss.txt")
	local.entries[hit] = backend.IndexedEntry{Key: hit, Content: []byte("present")}

	store := New(WithLocalIndexed(local, nil))
	missing := store.FetchMissing(context.Background(), []api.Key{hit, miss}, api.Content)

	if len(missing) != 1 || missing[0] != miss {
		t.Fatalf("expected only %v to be missing, got %v", miss, missing)
	}
}

func TestWriteBatchRequiresLocalIndexedStore(t *testing.T) {
	store := New()
	err := store.WriteBatch([]WriteEntry{{Key: keyFor("x")}})
	if err == nil {
		t.Fatal("expected a policy error when no local indexed store is configured")
	}
	if _, ok := err.(*PolicyError); !ok {
		t.Fatalf("expected *PolicyError, got %T", err)
	}
}

func TestFlushAttemptsEveryConfiguredTier(t *testing.T) {
	store := New(WithAuxData(newMemIndexedStore(), newMemIndexedStore()))
	if errs := store.Flush(); len(errs) != 0 {
		t.Fatalf("expected no flush errors from no-op fakes, got %v", errs)
	}
}
