package filestore

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/layerfs/scmstore/api"
	"github.com/layerfs/scmstore/internal/contenthash"
	"github.com/layerfs/scmstore/internal/logging"
	"github.com/layerfs/scmstore/service/backend"
	"github.com/layerfs/scmstore/service/lazyvalue"
)

// pendingLfs is the mirror of pendingNonLfs: pending keys whose pointer is
// already known and which still need an attribute in fetchable. Only these
// keys are fed to the large-file tiers.
func (fs *FetchState) pendingLfs(fetchable api.FileAttributes) []api.Key {
	all := fs.pendingAll(fetchable)
	var out []api.Key
	for _, key := range all {
		if _, isPtr := fs.lfsPointers[key]; isPtr {
			out = append(out, key)
		}
	}
	return out
}

// --- steps 1-2: aux data indexed logs -------------------------------------

func (fs *FetchState) probeAuxDataCache() { fs.probeAuxIndexed(fs.backends.AuxDataCache, api.OriginCache, "aux-data-cache") }
func (fs *FetchState) probeAuxDataLocal() { fs.probeAuxIndexed(fs.backends.AuxDataLocal, api.OriginLocal, "aux-data-local") }

func (fs *FetchState) probeAuxIndexed(store backend.LocalIndexedStore, origin api.TierOrigin, tier string) {
	if store == nil {
		return
	}
	keys := fs.pendingAll(api.AuxData)
	for _, key := range keys {
		entry, ok, err := store.GetRawEntry(key)
		if err != nil {
			fs.errs.keyedError(key, tier, err)
			continue
		}
		if !ok || len(entry.Content) != contenthash.Size {
			continue
		}
		digest, err := contenthash.New(entry.Content)
		if err != nil {
			fs.errs.keyedError(key, tier, err)
			continue
		}
		fs.foundAttributes(key, lazyvalue.StoreFile{AuxData: &api.AuxData{ContentSha256: digest}}, origin)
	}
}

// --- steps 3-4: file-content indexed logs ---------------------------------

func (fs *FetchState) probeLocalIndexedCache() {
	fs.probeContentIndexed(fs.backends.LocalIndexedCache, api.OriginCache, "local-indexed-cache")
}
func (fs *FetchState) probeLocalIndexedLocal() {
	fs.probeContentIndexed(fs.backends.LocalIndexedLocal, api.OriginLocal, "local-indexed-local")
}

func (fs *FetchState) probeContentIndexed(store backend.LocalIndexedStore, origin api.TierOrigin, tier string) {
	if store == nil {
		return
	}
	keys := fs.pendingNonLfs(api.Content)
	for _, key := range keys {
		entry, ok, err := store.GetRawEntry(key)
		if err != nil {
			fs.errs.keyedError(key, tier, err)
			continue
		}
		if !ok {
			continue
		}
		if entry.IsLFS {
			if fs.extstoredPolicy != ExtStoredUse {
				continue
			}
			ptr, err := parsePointer(entry.Content, key)
			if err != nil {
				fs.errs.keyedError(key, tier, err)
				continue
			}
			fs.foundPointer(key, ptr, origin)
			continue
		}
		v := lazyvalue.FromLocalIndex(entry.Content, entry.Meta, nil)
		fs.foundAttributes(key, lazyvalue.StoreFile{Content: &v}, origin)
	}
}

// --- steps 5-6: large-file local stores -----------------------------------

func (fs *FetchState) probeLargeFileCache() {
	fs.probeLargeFile(fs.backends.LargeFileCache, api.OriginCache, "large-file-cache")
}
func (fs *FetchState) probeLargeFileLocal() {
	fs.probeLargeFile(fs.backends.LargeFileLocal, api.OriginLocal, "large-file-local")
}

func (fs *FetchState) probeLargeFile(store backend.LargeFileStore, origin api.TierOrigin, tier string) {
	if store == nil {
		return
	}
	keys := fs.pendingLfs(api.Content)
	for _, key := range keys {
		ptr := fs.lfsPointers[key]
		entry, ok, err := store.FetchAvailable(backend.StoreKey{Key: key, ContentHash: ptr.ContentHash, ByHash: true})
		if err != nil {
			fs.errs.keyedError(key, tier, err)
			continue
		}
		if !ok || !entry.HasBlob {
			continue
		}
		contentId := ptr.ContentId
		v := lazyvalue.FromLargeFile(entry.Blob, contentId)
		fs.pointerOrigin.insertOrRaise(ptr.ContentHash, origin)
		fs.foundAttributes(key, lazyvalue.StoreFile{Content: &v}, origin)
	}
}

// --- step 7: distributed memory cache -------------------------------------

func (fs *FetchState) probeDistributedMemoryCache(ctx context.Context) {
	store := fs.backends.DistributedCache
	if store == nil {
		return
	}
	keys := fs.pendingNonLfs(api.Content)
	if len(keys) == 0 {
		return
	}
	results, err := store.GetDataIter(ctx, keys)
	if err != nil {
		fs.errs.otherError("distributed-memory-cache", err)
		return
	}
	for _, res := range results {
		if res.Err != nil {
			fs.errs.keyedError(res.Key, "distributed-memory-cache", res.Err)
			continue
		}
		v := lazyvalue.FromDistributedCache(res.Value.Content, res.Value.Meta)
		fs.foundAttributes(res.Key, lazyvalue.StoreFile{Content: &v}, api.OriginCache)
		fs.foundInDistributedCache[res.Key] = struct{}{}
	}
}

// --- step 8: remote API ----------------------------------------------------

func (fs *FetchState) probeRemoteApi(ctx context.Context) {
	store := fs.backends.RemoteApi
	if store == nil {
		return
	}
	keys := fs.pendingNonLfs(api.Content)
	if len(keys) == 0 {
		return
	}
	entries, err := store.FilesBlocking(ctx, fs.pendingStorekey(keys))
	if err != nil {
		fs.errs.otherError("remote-api", err)
		return
	}
	for _, entry := range entries {
		if entry.IsLFS {
			if fs.extstoredPolicy != ExtStoredUse {
				continue
			}
			ptr, err := parsePointer(entry.Content, entry.Key)
			if err != nil {
				fs.errs.keyedError(entry.Key, "remote-api", err)
				continue
			}
			fs.foundPointer(entry.Key, ptr, api.OriginCache)
			continue
		}
		v := lazyvalue.FromRemoteApi(entry.Content, entry.Meta, nil)
		fs.foundAttributes(entry.Key, lazyvalue.StoreFile{Content: &v}, api.OriginCache)
		fs.foundInRemoteApi[entry.Key] = struct{}{}
	}
}

// --- step 9: large-file remote, then re-probe local large-file tiers -----

func (fs *FetchState) probeLargeFileRemote(ctx context.Context) {
	remote := fs.backends.LargeFileRemote
	if remote == nil {
		return
	}
	keys := fs.pendingLfs(api.Content)
	if len(keys) == 0 {
		return
	}

	wanted := make([]backend.ContentHashAndSize, 0, len(keys))
	seen := make(map[contenthash.Hash]struct{}, len(keys))
	for _, key := range keys {
		ptr := fs.lfsPointers[key]
		if _, dup := seen[ptr.ContentHash]; dup {
			continue
		}
		seen[ptr.ContentHash] = struct{}{}
		wanted = append(wanted, backend.ContentHashAndSize{ContentHash: ptr.ContentHash, Size: ptr.Size})
	}

	err := remote.BatchFetch(ctx, wanted, func(blob backend.LargeFileBlob) error {
		origin, ok := fs.pointerOrigin.get(blob.ContentHash)
		if !ok {
			origin = api.OriginCache
		}
		var store backend.LargeFileStore
		if origin == api.OriginLocal {
			store = fs.backends.LargeFileLocal
		} else {
			store = fs.backends.LargeFileCache
		}
		if store == nil {
			return nil
		}
		if err := store.AddBlob(blob.ContentHash, blob.Data); err != nil {
			return fmt.Errorf("writing large-file blob %s: %w", blob.ContentHash, err)
		}
		return nil
	})
	if err != nil {
		fs.errs.otherError("large-file-remote", err)
	}

	// Re-probe so content comes back memory-mapped rather than held
	// in-process from the remote response.
	fs.probeLargeFileCache()
	fs.probeLargeFileLocal()
}

// --- step 10: legacy fallback ----------------------------------------------

func (fs *FetchState) probeLegacyFallback() {
	store := fs.backends.Legacy
	if store == nil {
		return
	}
	keys := fs.pendingAll(fs.requestAttrs)
	for _, key := range keys {
		sk := backend.StoreKey{Key: key}
		if ptr, ok := fs.lfsPointers[key]; ok {
			sk = backend.StoreKey{Key: key, ContentHash: ptr.ContentHash, ByHash: true}
		}
		content, ok, err := store.Get(sk)
		if err != nil {
			fs.errs.keyedError(key, "legacy-fallback", err)
			continue
		}
		if !ok {
			continue
		}
		meta, _, err := store.GetMeta(sk)
		if err != nil {
			fs.errs.keyedError(key, "legacy-fallback", err)
		}
		v := lazyvalue.FromLegacy(content, meta)
		// Legacy content is never copied into the indexed-log or
		// distributed caches. Its key origin is recorded as Cache, so
		// aux_data derived from it is written to the aux-data cache.
		fs.foundAttributes(key, lazyvalue.StoreFile{Content: &v}, api.OriginCache)
		logging.Basicf("resolved %s via legacy fallback", key.Path)
	}
}

func parsePointer(raw []byte, key api.Key) (api.LargeFilePointer, error) {
	if len(raw) < contenthash.Size+8 {
		return api.LargeFilePointer{}, fmt.Errorf("%s: lfs pointer too short: %d bytes", key.Path, len(raw))
	}
	hash, err := contenthash.New(raw[:contenthash.Size])
	if err != nil {
		return api.LargeFilePointer{}, err
	}
	size := int64(binary.LittleEndian.Uint64(raw[contenthash.Size : contenthash.Size+8]))
	return api.LargeFilePointer{ContentHash: hash, Size: size, ContentId: key.ContentId}, nil
}

// encodePointer is the inverse of parsePointer: the indexed-log record
// WriteBatch writes for an entry routed to the large-file tier.
func encodePointer(ptr api.LargeFilePointer) []byte {
	out := make([]byte, contenthash.Size+8)
	copy(out, ptr.ContentHash.Bytes())
	binary.LittleEndian.PutUint64(out[contenthash.Size:], uint64(ptr.Size))
	return out
}
