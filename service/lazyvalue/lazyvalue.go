// Package lazyvalue implements the tagged-variant file payload that the
// fetch orchestrator produces: a value whose origin tier is known but
// whose decoded content and metadata are produced on demand.
package lazyvalue

import (
	"fmt"

	"github.com/layerfs/scmstore/api"
	"github.com/layerfs/scmstore/internal/contenthash"
)

// Metadata carries the size and flags embedded alongside content in most
// backend entries.
type Metadata struct {
	Size  int64
	Flags uint32
}

// source identifies which backend produced a Value.
type source int

const (
	sourceLegacy source = iota
	sourceLocalIndex
	sourceLargeFile
	sourceRemoteApi
	sourceDistributedCache
)

// IndexedCacheEntry is the representation written into a LocalIndexedStore
// when a Value is eligible for the indexed-log writeback path.
type IndexedCacheEntry struct {
	Content []byte
	Meta    Metadata
	IsLFS   bool
}

// Value is the tagged variant over the five origin tiers. Only the
// LocalIndex and RemoteApi variants can carry a pointer (when flagged
// large-file); the rest are opaque blobs with metadata. Construct one with the
// From* functions rather than the struct literal.
type Value struct {
	src      source
	raw      []byte // on-disk hg-format bytes, including any copy header
	meta     Metadata
	pointer  *api.LargeFilePointer
	contentId *contenthash.Hash
}

// FromLegacy wraps a blob fetched from the legacy fallback store.
func FromLegacy(raw []byte, meta Metadata) Value {
	return Value{src: sourceLegacy, raw: raw, meta: meta}
}

// FromLocalIndex wraps an entry read from a local or cache indexed log. If
// ptr is non-nil the entry is a large-file pointer, not inline content.
func FromLocalIndex(raw []byte, meta Metadata, ptr *api.LargeFilePointer) Value {
	return Value{src: sourceLocalIndex, raw: raw, meta: meta, pointer: ptr}
}

// FromLargeFile wraps a blob resolved from a large-file store by content
// hash; contentId is attached when the caller already knows it (from the
// originating pointer).
func FromLargeFile(raw []byte, contentId contenthash.Hash) Value {
	return Value{src: sourceLargeFile, raw: raw, meta: Metadata{Size: int64(len(raw))}, contentId: &contentId}
}

// FromRemoteApi wraps an entry returned by the remote API store. If ptr is
// non-nil the entry is a large-file pointer.
func FromRemoteApi(raw []byte, meta Metadata, ptr *api.LargeFilePointer) Value {
	return Value{src: sourceRemoteApi, raw: raw, meta: meta, pointer: ptr}
}

// FromDistributedCache wraps an entry returned by the distributed memory
// cache.
func FromDistributedCache(raw []byte, meta Metadata) Value {
	return Value{src: sourceDistributedCache, raw: raw, meta: meta}
}

// HgContent returns the raw on-disk bytes, including any copy header.
func (v Value) HgContent() []byte { return v.raw }

// FileContent returns the stripped bytes as the working copy would see
// them: the hg copy-header, when present, is a "\x01\n"-delimited prefix
// block that is never part of the working-copy view.
func (v Value) FileContent() []byte {
	return stripCopyHeader(v.raw)
}

// Metadata returns the embedded size/flags.
func (v Value) Metadata() Metadata { return v.meta }

// Pointer returns the large-file pointer carried by this value, if any.
func (v Value) Pointer() (api.LargeFilePointer, bool) {
	if v.pointer == nil {
		return api.LargeFilePointer{}, false
	}
	return *v.pointer, true
}

// ContentId returns this value's content id, when determinable without a
// backend call (large-file blobs resolved via a known pointer carry one
// directly; other variants return false).
func (v Value) ContentId() (contenthash.Hash, bool) {
	if v.contentId == nil {
		return contenthash.Hash{}, false
	}
	return *v.contentId, true
}

// IndexedLogCacheEntry returns the representation to persist to an
// indexed-log cache during writeback, or false for variants that must not
// be cached by that path (large-file and legacy origins manage their own
// persistence).
func (v Value) IndexedLogCacheEntry() (IndexedCacheEntry, bool) {
	switch v.src {
	case sourceLargeFile, sourceLegacy:
		return IndexedCacheEntry{}, false
	default:
		_, isPtr := v.Pointer()
		return IndexedCacheEntry{Content: v.raw, Meta: v.meta, IsLFS: isPtr}, true
	}
}

func stripCopyHeader(raw []byte) []byte {
	const header = "\x01\n"
	if len(raw) < 2 || string(raw[:2]) != header {
		return raw
	}
	rest := raw[2:]
	for i := 0; i+1 < len(rest); i++ {
		if rest[i] == '\x01' && rest[i+1] == '\n' {
			return rest[i+2:]
		}
	}
	return raw
}

func (v Value) String() string {
	return fmt.Sprintf("lazyvalue{src=%d, size=%d}", v.src, v.meta.Size)
}
