package filestore

import "github.com/layerfs/scmstore/service/backend"

// ExtStoredPolicy controls whether an is_lfs-flagged entry is parsed as a
// pointer or ignored outright (treated as a miss).
type ExtStoredPolicy int

const (
	// ExtStoredUse parses is_lfs entries as large-file pointers.
	ExtStoredUse ExtStoredPolicy = iota
	// ExtStoredIgnore treats is_lfs entries as misses.
	ExtStoredIgnore
)

// Backends holds an optional reference to every configured tier. Each
// field is independently nilable; probes short-circuit when their backend
// is unconfigured, per the "deep option fields" design note.
type Backends struct {
	AuxDataCache       backend.LocalIndexedStore
	AuxDataLocal       backend.LocalIndexedStore
	LocalIndexedCache  backend.LocalIndexedStore
	LocalIndexedLocal  backend.LocalIndexedStore
	LargeFileCache     backend.LargeFileStore
	LargeFileLocal     backend.LargeFileStore
	DistributedCache   backend.DistributedMemoryCache
	RemoteApi          backend.RemoteApiFileStore
	LargeFileRemote    backend.LargeFileRemote
	Legacy             backend.LegacyFallback
}

// Local returns a copy of b with every non-local tier stripped, used to
// implement FileStore.Local()'s "missing-keys" probe.
func (b Backends) Local() Backends {
	return Backends{
		AuxDataCache:      nil,
		AuxDataLocal:      b.AuxDataLocal,
		LocalIndexedCache: nil,
		LocalIndexedLocal: b.LocalIndexedLocal,
		LargeFileCache:    nil,
		LargeFileLocal:    b.LargeFileLocal,
	}
}
