package filestore

import (
	"context"

	"github.com/layerfs/scmstore/api"
	"github.com/layerfs/scmstore/service/backend"
	"github.com/layerfs/scmstore/service/lazyvalue"
)

// writeToCache runs once, after derivation, copying newly discovered
// attributes into warmer tiers. Large-file content never flows through
// here (it's written directly by probeLargeFileRemote); the legacy
// fallback does its own caching and is never written through either.
func (fs *FetchState) writeToCache(ctx context.Context) {
	for key := range fs.foundInRemoteApi {
		sf, ok := fs.found[key]
		if !ok || sf.Content == nil {
			continue
		}
		cacheEntry, ok := sf.Content.IndexedLogCacheEntry()
		if !ok {
			continue
		}
		fs.putIndexed(fs.backends.LocalIndexedCache, "local-indexed-cache", backend.IndexedEntry{
			Key: key, Content: cacheEntry.Content, Meta: cacheEntry.Meta, IsLFS: cacheEntry.IsLFS,
		})
		if fs.cacheToMemcache && fs.backends.DistributedCache != nil {
			fs.putMemcache(ctx, key, cacheEntry)
		}
	}

	for key := range fs.foundInDistributedCache {
		sf, ok := fs.found[key]
		if !ok || sf.Content == nil {
			continue
		}
		cacheEntry, ok := sf.Content.IndexedLogCacheEntry()
		if !ok {
			continue
		}
		fs.putIndexed(fs.backends.LocalIndexedCache, "local-indexed-cache", backend.IndexedEntry{
			Key: key, Content: cacheEntry.Content, Meta: cacheEntry.Meta, IsLFS: cacheEntry.IsLFS,
		})
	}

	for key, origin := range fs.computedAuxData {
		sf, ok := fs.found[key]
		if !ok || sf.AuxData == nil {
			continue
		}
		store := fs.backends.AuxDataCache
		tier := "aux-data-cache"
		if origin == api.OriginLocal {
			store, tier = fs.backends.AuxDataLocal, "aux-data-local"
		}
		fs.putIndexed(store, tier, backend.IndexedEntry{
			Key:     key,
			Content: sf.AuxData.ContentSha256.Bytes(),
		})
	}
}

func (fs *FetchState) putIndexed(store backend.LocalIndexedStore, tier string, entry backend.IndexedEntry) {
	if store == nil {
		return
	}
	if err := store.PutEntry(entry); err != nil {
		fs.errs.otherError(tier, err)
	}
}

func (fs *FetchState) putMemcache(ctx context.Context, key api.Key, entry lazyvalue.IndexedCacheEntry) {
	mcEntry := backend.McData{Key: key, Content: entry.Content, Meta: entry.Meta}
	if err := fs.backends.DistributedCache.AddMcData(ctx, mcEntry); err != nil {
		fs.errs.otherError("distributed-memory-cache", err)
	}
}
