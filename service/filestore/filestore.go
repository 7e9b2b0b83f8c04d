// Package filestore implements the fetch orchestrator (FetchState) and the
// top-level FileStore handle that drives it.
package filestore

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/layerfs/scmstore/api"
	"github.com/layerfs/scmstore/internal/contenthash"
	"github.com/layerfs/scmstore/internal/logging"
	"github.com/layerfs/scmstore/service/backend"
	"github.com/layerfs/scmstore/service/lazyvalue"
)

// Option configures a FileStore at construction time.
type Option func(*FileStore)

// WithAuxData backends configures the two aux-data indexed-log roles.
func WithAuxData(local, cache backend.LocalIndexedStore) Option {
	return func(fs *FileStore) {
		fs.backends.AuxDataLocal = local
		fs.backends.AuxDataCache = cache
	}
}

// WithLocalIndexed configures the two file-content indexed-log roles.
func WithLocalIndexed(local, cache backend.LocalIndexedStore) Option {
	return func(fs *FileStore) {
		fs.backends.LocalIndexedLocal = local
		fs.backends.LocalIndexedCache = cache
	}
}

// WithLargeFile configures the two local large-file stores.
func WithLargeFile(local, cache backend.LargeFileStore) Option {
	return func(fs *FileStore) {
		fs.backends.LargeFileLocal = local
		fs.backends.LargeFileCache = cache
	}
}

// WithLargeFileRemote configures the remote large-file transfer client.
func WithLargeFileRemote(remote backend.LargeFileRemote) Option {
	return func(fs *FileStore) { fs.backends.LargeFileRemote = remote }
}

// WithDistributedCache configures the distributed memory cache.
func WithDistributedCache(cache backend.DistributedMemoryCache) Option {
	return func(fs *FileStore) { fs.backends.DistributedCache = cache }
}

// WithRemoteApi configures the remote API file store.
func WithRemoteApi(remote backend.RemoteApiFileStore) Option {
	return func(fs *FileStore) { fs.backends.RemoteApi = remote }
}

// WithLegacyFallback configures the last-resort legacy store.
func WithLegacyFallback(legacy backend.LegacyFallback) Option {
	return func(fs *FileStore) { fs.backends.Legacy = legacy }
}

// WithComputeAuxData controls whether the derivation pass runs. Defaults to
// enabled; disable only for callers that never request aux_data.
func WithComputeAuxData(enabled bool) Option {
	return func(fs *FileStore) { fs.cfg.computeAuxData = enabled }
}

// WithExtStoredPolicy controls how is_lfs-flagged entries are interpreted.
func WithExtStoredPolicy(policy ExtStoredPolicy) Option {
	return func(fs *FileStore) { fs.cfg.extstoredPolicy = policy }
}

// WithCacheToMemcache enables mirroring remote-api writeback into the
// distributed memory cache, in addition to the local indexed-log cache.
func WithCacheToMemcache(enabled bool) Option {
	return func(fs *FileStore) { fs.cfg.cacheToMemcache = enabled }
}

// WithLargeFileThreshold routes WriteBatch entries larger than bytes into
// the large-file local store (a pointer record in the local indexed log,
// the blob itself in LargeFileLocal) instead of writing the content
// inline. A threshold of 0 disables the split; every entry is written
// inline regardless of size.
func WithLargeFileThreshold(bytes int64) Option {
	return func(fs *FileStore) { fs.cfg.largeFileThresholdBytes = bytes }
}

// FileStore is the top-level handle: it holds optional references to each
// configured backend and runs a FetchState per batched request.
type FileStore struct {
	backends Backends
	cfg      fetchConfig
}

// New constructs a FileStore. Every tier is optional; pass only the
// options for backends you have configured.
func New(opts ...Option) *FileStore {
	fs := &FileStore{cfg: fetchConfig{computeAuxData: true, extstoredPolicy: ExtStoredUse}}
	for _, opt := range opts {
		opt(fs)
	}
	return fs
}

// FileStoreFetch is the result of Fetch: complete and incomplete keys plus
// tier-level errors.
type FileStoreFetch struct {
	Complete    map[api.Key]lazyvalue.StoreFile
	Incomplete  map[api.Key][]error
	OtherErrors []error
}

// Results iterates complete and incomplete entries as uniform triples, for
// callers that want a single stream instead of two maps (mirrors the
// original FileStoreFetch::results accessor).
func (r FileStoreFetch) Results() []ResultEntry {
	out := make([]ResultEntry, 0, len(r.Complete)+len(r.Incomplete))
	for key, sf := range r.Complete {
		out = append(out, ResultEntry{Key: key, StoreFile: sf})
	}
	for key, errs := range r.Incomplete {
		var err error
		if len(errs) > 0 {
			err = errs[len(errs)-1]
		}
		out = append(out, ResultEntry{Key: key, Err: err})
	}
	return out
}

// ResultEntry is one (key, value-or-error) pair from Results.
type ResultEntry struct {
	Key       api.Key
	StoreFile lazyvalue.StoreFile
	Err       error
}

// Fetch resolves keys against every configured tier, in the fixed probe
// order, for the requested attribute mask.
func (s *FileStore) Fetch(ctx context.Context, keys []api.Key, attrs api.FileAttributes) FileStoreFetch {
	fstate := newFetchState(s.backends, keys, attrs, s.cfg)
	result := fstate.Fetch(ctx)
	return FileStoreFetch{Complete: result.Complete, Incomplete: result.Incomplete, OtherErrors: result.OtherErrors}
}

// FetchSingle resolves exactly one key, returning its error (if any) as a
// plain Go error rather than the full fetch-result shape.
func (s *FileStore) FetchSingle(ctx context.Context, key api.Key, attrs api.FileAttributes) (lazyvalue.StoreFile, error) {
	r := s.Fetch(ctx, []api.Key{key}, attrs)
	if sf, ok := r.Complete[key]; ok {
		return sf, nil
	}
	if errs := r.Incomplete[key]; len(errs) > 0 {
		return lazyvalue.StoreFile{}, errs[len(errs)-1]
	}
	return lazyvalue.StoreFile{}, fmt.Errorf("filestore: %s: not found", key.Path)
}

// FetchMissing returns the subset of keys that could not be fully resolved
// for the requested attributes.
func (s *FileStore) FetchMissing(ctx context.Context, keys []api.Key, attrs api.FileAttributes) []api.Key {
	r := s.Fetch(ctx, keys, attrs)
	out := make([]api.Key, 0, len(r.Incomplete))
	for key := range r.Incomplete {
		out = append(out, key)
	}
	return out
}

// WriteEntry is one (key, content, metadata) triple for WriteBatch.
type WriteEntry struct {
	Key     api.Key
	Content []byte
	Meta    lazyvalue.Metadata
}

// WriteBatch writes entries to the local indexed-log tier. Entries whose
// content exceeds the configured large-file threshold (see
// WithLargeFileThreshold) are instead split: the blob goes to
// LargeFileLocal and a pointer record, flagged IsLFS, goes to the indexed
// log in its place. It is a policy error to call this without a
// configured local indexed store.
func (s *FileStore) WriteBatch(entries []WriteEntry) error {
	store := s.backends.LocalIndexedLocal
	if store == nil {
		return &PolicyError{Reason: "write_batch requires a configured local indexed store"}
	}
	for _, e := range entries {
		if s.cfg.largeFileThresholdBytes > 0 && int64(len(e.Content)) > s.cfg.largeFileThresholdBytes {
			if err := s.writeLargeFileEntry(store, e); err != nil {
				return err
			}
			continue
		}
		if err := store.PutEntry(backend.IndexedEntry{Key: e.Key, Content: e.Content, Meta: e.Meta}); err != nil {
			return fmt.Errorf("write_batch: %s: %w", e.Key.Path, err)
		}
	}
	return nil
}

// writeLargeFileEntry implements the oversized branch of WriteBatch: add
// the blob and its pointer to the large-file local store, then record a
// pointer-only entry in the indexed log so later fetches know to probe
// the large-file tier for this key.
func (s *FileStore) writeLargeFileEntry(store backend.LocalIndexedStore, e WriteEntry) error {
	large := s.backends.LargeFileLocal
	if large == nil {
		return &PolicyError{Reason: "write_batch: entry exceeds the large-file threshold but no large-file local store is configured"}
	}
	hash := contenthash.Sum(e.Content)
	ptr := api.LargeFilePointer{ContentHash: hash, Size: int64(len(e.Content)), ContentId: e.Key.ContentId}
	if err := large.AddBlob(hash, e.Content); err != nil {
		return fmt.Errorf("write_batch: %s: large-file blob: %w", e.Key.Path, err)
	}
	if err := large.AddPointer(ptr); err != nil {
		return fmt.Errorf("write_batch: %s: large-file pointer: %w", e.Key.Path, err)
	}
	if err := store.PutEntry(backend.IndexedEntry{Key: e.Key, Content: encodePointer(ptr), Meta: e.Meta, IsLFS: true}); err != nil {
		return fmt.Errorf("write_batch: %s: pointer record: %w", e.Key.Path, err)
	}
	return nil
}

// Local returns a view of this store with every remote tier stripped,
// used by "missing-keys" probes that must not trigger network I/O.
func (s *FileStore) Local() *FileStore {
	return &FileStore{backends: s.backends.Local(), cfg: s.cfg}
}

// Flush flushes every configured log and large-file store concurrently —
// each tier's flush is independent I/O, so there's no reason to serialize
// them. Errors are aggregated but every backend is still attempted.
func (s *FileStore) Flush() []error {
	var mu sync.Mutex
	var errs []error
	record := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		errs = append(errs, err)
	}

	var g errgroup.Group
	flushLog := func(tier string, store backend.LocalIndexedStore) {
		if store == nil {
			return
		}
		g.Go(func() error {
			if err := store.FlushLog(); err != nil {
				record(&FlushError{Tier: tier, Cause: err})
			}
			return nil
		})
	}
	flushLarge := func(tier string, store backend.LargeFileStore) {
		if store == nil {
			return
		}
		g.Go(func() error {
			if err := store.Flush(); err != nil {
				record(&FlushError{Tier: tier, Cause: err})
			}
			return nil
		})
	}
	flushLog("aux-data-local", s.backends.AuxDataLocal)
	flushLog("aux-data-cache", s.backends.AuxDataCache)
	flushLog("local-indexed-local", s.backends.LocalIndexedLocal)
	flushLog("local-indexed-cache", s.backends.LocalIndexedCache)
	flushLarge("large-file-local", s.backends.LargeFileLocal)
	flushLarge("large-file-cache", s.backends.LargeFileCache)
	_ = g.Wait()
	return errs
}

// Refreshable is implemented by backends that support rescanning on-disk
// state written by another process (see service/diskindex).
type Refreshable interface {
	Refresh() error
}

// Refresh forces every refreshable configured tier to rescan its on-disk
// packs/indexes, concurrently, for the same reason Flush does.
func (s *FileStore) Refresh() []error {
	var mu sync.Mutex
	var errs []error
	var g errgroup.Group
	tryRefresh := func(tier string, v interface{}) {
		r, ok := v.(Refreshable)
		if !ok || r == nil {
			return
		}
		g.Go(func() error {
			if err := r.Refresh(); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("refresh %s: %w", tier, err))
				mu.Unlock()
			}
			return nil
		})
	}
	tryRefresh("aux-data-local", s.backends.AuxDataLocal)
	tryRefresh("aux-data-cache", s.backends.AuxDataCache)
	tryRefresh("local-indexed-local", s.backends.LocalIndexedLocal)
	tryRefresh("local-indexed-cache", s.backends.LocalIndexedCache)
	tryRefresh("large-file-local", s.backends.LargeFileLocal)
	tryRefresh("large-file-cache", s.backends.LargeFileCache)
	_ = g.Wait()
	if len(errs) > 0 {
		logging.Warningf("refresh encountered %d error(s)", len(errs))
	}
	return errs
}
