// Package backend defines the six capability contracts FetchState probes.
// Each interface is defined purely by the operations the orchestrator
// needs; concrete implementations (service/diskindex, service/largefile,
// service/remoteapi, service/memcache, service/legacy) are swappable and
// independently optional.
package backend

import (
	"context"

	"github.com/layerfs/scmstore/api"
	"github.com/layerfs/scmstore/internal/contenthash"
	"github.com/layerfs/scmstore/service/lazyvalue"
)

// IndexedEntry is a single record read from or written to a
// LocalIndexedStore.
type IndexedEntry struct {
	Key     api.Key
	Content []byte
	Meta    lazyvalue.Metadata
	IsLFS   bool
}

// LocalIndexedStore backs both the file-content indexed logs (Local and
// Cache role) and the aux-data indexed logs (Local and Cache role) — the
// same contract serves all four probe steps with a different instance per
// role.
type LocalIndexedStore interface {
	GetRawEntry(key api.Key) (IndexedEntry, bool, error)
	PutEntry(entry IndexedEntry) error
	FlushLog() error
}

// LfsStoreEntry is what a LargeFileStore probe returns: a pointer alone
// (blob not locally present) or a pointer with its resolved blob.
type LfsStoreEntry struct {
	Pointer api.LargeFilePointer
	Blob    []byte
	HasBlob bool
}

// StoreKey is the projection used by stores that accept either form of
// addressing: by the original key's content id, or — once a pointer is
// known — by the large-file content hash.
type StoreKey struct {
	Key         api.Key
	ContentHash contenthash.Hash
	ByHash      bool
}

// LargeFileStore is content-addressed by sha256; Local and Cache roles are
// separate instances of the same contract.
type LargeFileStore interface {
	FetchAvailable(key StoreKey) (LfsStoreEntry, bool, error)
	AddBlob(hash contenthash.Hash, data []byte) error
	AddPointer(ptr api.LargeFilePointer) error
	Flush() error
}

// McData is a single entry returned by the distributed memory cache.
type McData struct {
	Key     api.Key
	Content []byte
	Meta    lazyvalue.Metadata
}

// DistributedMemoryCache is best-effort: per-key errors are non-fatal.
type DistributedMemoryCache interface {
	GetDataIter(ctx context.Context, keys []api.Key) ([]Result[McData], error)
	AddMcData(ctx context.Context, entry McData) error
}

// RemoteEntry is a single entry returned by the remote API store. If IsLFS
// is set, Content carries a serialized pointer instead of file bytes.
type RemoteEntry struct {
	Key     api.Key
	Content []byte
	Meta    lazyvalue.Metadata
	IsLFS   bool
}

// RemoteApiFileStore performs one batch fetch per FetchState probe.
type RemoteApiFileStore interface {
	FilesBlocking(ctx context.Context, keys []StoreKey) ([]RemoteEntry, error)
}

// LargeFileBlob is a single resolved blob streamed back from
// LargeFileRemote.BatchFetch.
type LargeFileBlob struct {
	ContentHash contenthash.Hash
	Data        []byte
}

// LargeFileRemote streams blobs back one at a time via callback, so the
// orchestrator can write each blob to a large-file store as it arrives
// instead of holding the whole batch. Each blob is delivered whole.
type LargeFileRemote interface {
	BatchFetch(ctx context.Context, wanted []ContentHashAndSize, onBlob func(LargeFileBlob) error) error
}

// ContentHashAndSize identifies an outstanding large-file fetch.
type ContentHashAndSize struct {
	ContentHash contenthash.Hash
	Size        int64
}

// LegacyFallback is the last-resort tier; it always returns a result
// (possibly empty) rather than a hard miss, matching its always-caching
// behavior which makes it unsafe to writeback through.
type LegacyFallback interface {
	Prefetch(keys []StoreKey) error
	Get(key StoreKey) ([]byte, bool, error)
	GetMeta(key StoreKey) (lazyvalue.Metadata, bool, error)
}

// Result pairs a value with an error for iterator-style batch responses,
// mirroring the "iter<Result<T>>" shape used throughout the backend
// contracts (and TreeStore.GetTreeBatch's resolve callback).
type Result[T any] struct {
	Key   api.Key
	Value T
	Err   error
}
