// Package treestore implements the tree-manifest counterpart to
// service/filestore: the same probe shape, restricted to content only —
// no large-file indirection, no aux-data derivation, no legacy fallback.
package treestore

import (
	"context"
	"fmt"

	"github.com/layerfs/scmstore/api"
	"github.com/layerfs/scmstore/service/backend"
)

// TreeList is an opaque serialized tree manifest; the core never
// interprets its contents.
type TreeList []byte

// Backends holds the subset of tiers relevant to trees: the file-content
// indexed logs, the distributed cache, and the remote API. Large-file and
// legacy tiers don't apply to trees.
type Backends struct {
	LocalIndexedLocal backend.LocalIndexedStore
	LocalIndexedCache backend.LocalIndexedStore
	DistributedCache  backend.DistributedMemoryCache
	RemoteApi         backend.RemoteApiFileStore
}

func (b Backends) local() Backends {
	return Backends{LocalIndexedLocal: b.LocalIndexedLocal}
}

// TreeStore is the top-level handle, mirroring FileStore's shape with a
// narrower backend set.
type TreeStore struct {
	backends Backends
}

// Option configures a TreeStore at construction time.
type Option func(*TreeStore)

func WithLocalIndexed(local, cache backend.LocalIndexedStore) Option {
	return func(t *TreeStore) {
		t.backends.LocalIndexedLocal = local
		t.backends.LocalIndexedCache = cache
	}
}

func WithDistributedCache(cache backend.DistributedMemoryCache) Option {
	return func(t *TreeStore) { t.backends.DistributedCache = cache }
}

func WithRemoteApi(remote backend.RemoteApiFileStore) Option {
	return func(t *TreeStore) { t.backends.RemoteApi = remote }
}

func New(opts ...Option) *TreeStore {
	t := &TreeStore{}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Local returns a view with every remote tier stripped.
func (t *TreeStore) Local() *TreeStore {
	return &TreeStore{backends: t.backends.local()}
}

// GetTree resolves a single tree key.
func (t *TreeStore) GetTree(ctx context.Context, key api.Key, localOnly bool) (TreeList, error) {
	store := t
	if localOnly {
		store = t.Local()
	}
	results := store.fetch(ctx, []api.Key{key})
	r := results[0]
	if r.Err != nil {
		return nil, r.Err
	}
	if r.Value == nil {
		return nil, fmt.Errorf("treestore: %s: not found", key.Path)
	}
	return r.Value, nil
}

// treeResult is the per-key outcome of a batch fetch: Value is nil (not
// found) or the resolved tree; Err is non-nil only for an actual failure.
type treeResult struct {
	Key   api.Key
	Value TreeList
	Err   error
}

// GetTreeBatch resolves keys, invoking resolve(index, result) for each in
// input order so callers can correlate results with their original
// positions and observe per-key errors without stopping the batch.
func (t *TreeStore) GetTreeBatch(ctx context.Context, keys []api.Key, localOnly bool, resolve func(index int, result TreeList, err error)) {
	store := t
	if localOnly {
		store = t.Local()
	}
	results := store.fetch(ctx, keys)
	byKey := make(map[api.Key]treeResult, len(results))
	for _, r := range results {
		byKey[r.Key] = r
	}
	for i, key := range keys {
		r := byKey[key]
		resolve(i, r.Value, r.Err)
	}
}

// fetch runs the probe order over keys: indexed-cache, indexed-local,
// distributed cache, remote API. Unlike FileStore there is no derivation
// pass and no writeback beyond the distributed-cache/remote-api copy into
// the indexed-log cache, mirroring FetchState.writeToCache's first two
// buckets.
func (t *TreeStore) fetch(ctx context.Context, keys []api.Key) []treeResult {
	pending := make(map[api.Key]struct{}, len(keys))
	found := make(map[api.Key]TreeList, len(keys))
	errs := make(map[api.Key]error, len(keys))
	foundInRemoteApi := make(map[api.Key]struct{})
	foundInDistributedCache := make(map[api.Key]struct{})
	for _, k := range keys {
		pending[k] = struct{}{}
	}

	probeIndexed := func(store backend.LocalIndexedStore, tier string) {
		if store == nil {
			return
		}
		for key := range pending {
			entry, ok, err := store.GetRawEntry(key)
			if err != nil {
				errs[key] = err
				continue
			}
			if !ok {
				continue
			}
			found[key] = entry.Content
			delete(pending, key)
		}
	}
	probeIndexed(t.backends.LocalIndexedCache, "local-indexed-cache")
	probeIndexed(t.backends.LocalIndexedLocal, "local-indexed-local")

	if store := t.backends.DistributedCache; store != nil && len(pending) > 0 {
		pendingKeys := make([]api.Key, 0, len(pending))
		for k := range pending {
			pendingKeys = append(pendingKeys, k)
		}
		results, err := store.GetDataIter(ctx, pendingKeys)
		if err != nil {
			for key := range pending {
				errs[key] = err
			}
		} else {
			for _, r := range results {
				if r.Err != nil {
					errs[r.Key] = r.Err
					continue
				}
				found[r.Key] = r.Value.Content
				foundInDistributedCache[r.Key] = struct{}{}
				delete(pending, r.Key)
			}
		}
	}

	if store := t.backends.RemoteApi; store != nil && len(pending) > 0 {
		storeKeys := make([]backend.StoreKey, 0, len(pending))
		for k := range pending {
			storeKeys = append(storeKeys, backend.StoreKey{Key: k})
		}
		entries, err := store.FilesBlocking(ctx, storeKeys)
		if err != nil {
			for key := range pending {
				errs[key] = err
			}
		} else {
			for _, e := range entries {
				found[e.Key] = e.Content
				foundInRemoteApi[e.Key] = struct{}{}
				delete(pending, e.Key)
			}
		}
	}

	t.writeToCache(found, foundInRemoteApi, foundInDistributedCache)

	out := make([]treeResult, 0, len(keys))
	for _, key := range keys {
		if tl, ok := found[key]; ok {
			out = append(out, treeResult{Key: key, Value: tl})
			continue
		}
		out = append(out, treeResult{Key: key, Err: errs[key]})
	}
	return out
}

func (t *TreeStore) writeToCache(found map[api.Key]TreeList, remoteApi, distributedCache map[api.Key]struct{}) {
	store := t.backends.LocalIndexedCache
	if store == nil {
		return
	}
	for key := range remoteApi {
		store.PutEntry(backend.IndexedEntry{Key: key, Content: found[key]})
	}
	for key := range distributedCache {
		store.PutEntry(backend.IndexedEntry{Key: key, Content: found[key]})
	}
}
