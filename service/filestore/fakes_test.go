package filestore

import (
	"context"
	"sync"

	"github.com/layerfs/scmstore/api"
	"github.com/layerfs/scmstore/internal/contenthash"
	"github.com/layerfs/scmstore/service/backend"
	"github.com/layerfs/scmstore/service/lazyvalue"
)

// memIndexedStore is an in-memory backend.LocalIndexedStore for tests.
type memIndexedStore struct {
	mu      sync.Mutex
	entries map[api.Key]backend.IndexedEntry
}

func newMemIndexedStore() *memIndexedStore {
	return &memIndexedStore{entries: make(map[api.Key]backend.IndexedEntry)}
}

func (m *memIndexedStore) GetRawEntry(key api.Key) (backend.IndexedEntry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	return e, ok, nil
}

func (m *memIndexedStore) PutEntry(entry backend.IndexedEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[entry.Key] = entry
	return nil
}

func (m *memIndexedStore) FlushLog() error { return nil }

func (m *memIndexedStore) has(key api.Key) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[key]
	return ok
}

var _ backend.LocalIndexedStore = (*memIndexedStore)(nil)

// memRemoteApi is a fake backend.RemoteApiFileStore serving a fixed table
// of responses and counting how many times it was called.
type memRemoteApi struct {
	mu     sync.Mutex
	calls  int
	byPath map[string]backend.RemoteEntry
}

func newMemRemoteApi() *memRemoteApi {
	return &memRemoteApi{byPath: make(map[string]backend.RemoteEntry)}
}

func (m *memRemoteApi) set(path string, content []byte) {
	m.byPath[path] = backend.RemoteEntry{
		Content: content,
		Meta:    lazyvalue.Metadata{Size: int64(len(content))},
	}
}

func (m *memRemoteApi) FilesBlocking(ctx context.Context, keys []backend.StoreKey) ([]backend.RemoteEntry, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	var out []backend.RemoteEntry
	for _, sk := range keys {
		entry, ok := m.byPath[sk.Key.Path]
		if !ok {
			continue
		}
		entry.Key = sk.Key
		out = append(out, entry)
	}
	return out, nil
}

func (m *memRemoteApi) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

var _ backend.RemoteApiFileStore = (*memRemoteApi)(nil)

// memLargeFileStore is an in-memory backend.LargeFileStore keyed by
// content hash.
type memLargeFileStore struct {
	mu    sync.Mutex
	blobs map[contenthash.Hash][]byte
}

func newMemLargeFileStore() *memLargeFileStore {
	return &memLargeFileStore{blobs: make(map[contenthash.Hash][]byte)}
}

func (m *memLargeFileStore) FetchAvailable(key backend.StoreKey) (backend.LfsStoreEntry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.blobs[key.ContentHash]
	if !ok {
		return backend.LfsStoreEntry{}, false, nil
	}
	ptr := api.LargeFilePointer{ContentHash: key.ContentHash, Size: int64(len(data))}
	return backend.LfsStoreEntry{Pointer: ptr, Blob: data, HasBlob: true}, true, nil
}

func (m *memLargeFileStore) AddBlob(hash contenthash.Hash, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[hash] = append([]byte(nil), data...)
	return nil
}

func (m *memLargeFileStore) AddPointer(ptr api.LargeFilePointer) error { return nil }
func (m *memLargeFileStore) Flush() error                              { return nil }

var _ backend.LargeFileStore = (*memLargeFileStore)(nil)

// memLargeFileRemote serves blobs from a fixed table via BatchFetch.
type memLargeFileRemote struct {
	blobs map[contenthash.Hash][]byte
}

func newMemLargeFileRemote() *memLargeFileRemote {
	return &memLargeFileRemote{blobs: make(map[contenthash.Hash][]byte)}
}

func (m *memLargeFileRemote) BatchFetch(ctx context.Context, wanted []backend.ContentHashAndSize, onBlob func(backend.LargeFileBlob) error) error {
	for _, w := range wanted {
		data, ok := m.blobs[w.ContentHash]
		if !ok {
			continue
		}
		if err := onBlob(backend.LargeFileBlob{ContentHash: w.ContentHash, Data: data}); err != nil {
			return err
		}
	}
	return nil
}

var _ backend.LargeFileRemote = (*memLargeFileRemote)(nil)

// memLegacy is a fake backend.LegacyFallback serving a fixed table.
type memLegacy struct {
	byPath map[string][]byte
}

func newMemLegacy() *memLegacy {
	return &memLegacy{byPath: make(map[string][]byte)}
}

func (m *memLegacy) Prefetch(keys []backend.StoreKey) error { return nil }

func (m *memLegacy) Get(key backend.StoreKey) ([]byte, bool, error) {
	data, ok := m.byPath[key.Key.Path]
	return data, ok, nil
}

func (m *memLegacy) GetMeta(key backend.StoreKey) (lazyvalue.Metadata, bool, error) {
	data, ok := m.byPath[key.Key.Path]
	if !ok {
		return lazyvalue.Metadata{}, false, nil
	}
	return lazyvalue.Metadata{Size: int64(len(data))}, true, nil
}

var _ backend.LegacyFallback = (*memLegacy)(nil)

func keyFor(path string) api.Key {
	return api.Key{Path: path, ContentId: contenthash.Sum([]byte(path))}
}
