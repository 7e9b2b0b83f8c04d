package filestore

import (
	"context"

	"github.com/layerfs/scmstore/api"
	"github.com/layerfs/scmstore/internal/contenthash"
	"github.com/layerfs/scmstore/internal/logging"
	"github.com/layerfs/scmstore/service/backend"
	"github.com/layerfs/scmstore/service/lazyvalue"
)

// FetchState is the per-request state machine: constructed with all keys
// pending, mutated only by its own probe methods, and consumed exactly
// once by finish(). It is not safe to reuse across requests.
type FetchState struct {
	backends Backends

	pending      map[api.Key]struct{}
	requestAttrs api.FileAttributes

	found       map[api.Key]lazyvalue.StoreFile
	lfsPointers map[api.Key]api.LargeFilePointer
	keyOrigin   map[api.Key]api.TierOrigin

	pointerOrigin *pointerOrigin

	errs *FetchErrors

	foundInRemoteApi        map[api.Key]struct{}
	foundInDistributedCache map[api.Key]struct{}
	computedAuxData         map[api.Key]api.TierOrigin

	computeAuxData      bool
	extstoredPolicy     ExtStoredPolicy
	cacheToMemcache     bool
}

func newFetchState(backends Backends, keys []api.Key, attrs api.FileAttributes, cfg fetchConfig) *FetchState {
	pending := make(map[api.Key]struct{}, len(keys))
	for _, k := range keys {
		pending[k] = struct{}{}
	}
	return &FetchState{
		backends:                backends,
		pending:                 pending,
		requestAttrs:            attrs,
		found:                   make(map[api.Key]lazyvalue.StoreFile),
		lfsPointers:             make(map[api.Key]api.LargeFilePointer),
		keyOrigin:               make(map[api.Key]api.TierOrigin),
		pointerOrigin:           newPointerOrigin(),
		errs:                    newFetchErrors(),
		foundInRemoteApi:        make(map[api.Key]struct{}),
		foundInDistributedCache: make(map[api.Key]struct{}),
		computedAuxData:         make(map[api.Key]api.TierOrigin),
		computeAuxData:          cfg.computeAuxData,
		extstoredPolicy:         cfg.extstoredPolicy,
		cacheToMemcache:         cfg.cacheToMemcache,
	}
}

// fetchConfig bundles the policy knobs a FileStore hands to every
// FetchState it constructs, plus the write-path knobs FileStore itself
// consults directly (largeFileThresholdBytes is never read by FetchState).
type fetchConfig struct {
	computeAuxData          bool
	extstoredPolicy         ExtStoredPolicy
	cacheToMemcache         bool
	largeFileThresholdBytes int64
}

// isComplete reports whether key's found attributes already satisfy the
// request.
func (fs *FetchState) isComplete(key api.Key) bool {
	sf, ok := fs.found[key]
	if !ok {
		return false
	}
	return sf.Attrs().WithComputable().Has(fs.requestAttrs)
}

// markComplete removes key from pending once its found attributes cover
// the request, dropping any accumulated keyed errors for it.
func (fs *FetchState) markComplete(key api.Key) {
	if fs.isComplete(key) {
		delete(fs.pending, key)
		fs.errs.drop(key)
	}
}

// pendingAll returns pending keys for which some attribute in fetchable is
// still missing, after accounting for what's computable from what's
// already found.
func (fs *FetchState) pendingAll(fetchable api.FileAttributes) []api.Key {
	var out []api.Key
	for key := range fs.pending {
		have := fs.found[key].Attrs().WithComputable()
		if !have.Has(fetchable.And(fs.requestAttrs)) {
			out = append(out, key)
		}
	}
	return out
}

// pendingNonLfs is pendingAll minus keys already resolved to a pointer:
// their content must come from the large-file tier, not this one.
func (fs *FetchState) pendingNonLfs(fetchable api.FileAttributes) []api.Key {
	all := fs.pendingAll(fetchable)
	out := all[:0:0]
	for _, key := range all {
		if _, isPtr := fs.lfsPointers[key]; isPtr {
			continue
		}
		out = append(out, key)
	}
	return out
}

// pendingStorekey projects pending keys to the dual-form StoreKey that
// stores accepting both hg-id and content-hash addressing expect: once a
// pointer is known for a key, it's addressed by content hash instead.
func (fs *FetchState) pendingStorekey(keys []api.Key) []backend.StoreKey {
	out := make([]backend.StoreKey, 0, len(keys))
	for _, key := range keys {
		if ptr, ok := fs.lfsPointers[key]; ok {
			out = append(out, backend.StoreKey{Key: key, ContentHash: ptr.ContentHash, ByHash: true})
		} else {
			out = append(out, backend.StoreKey{Key: key})
		}
	}
	return out
}

// foundPointer records a pointer discovered for key without marking it
// complete: its content still lives in the large-file tier. The pointer's
// origin is recorded (raised, never lowered) in pointerOrigin.
func (fs *FetchState) foundPointer(key api.Key, ptr api.LargeFilePointer, origin api.TierOrigin) {
	fs.lfsPointers[key] = ptr
	fs.pointerOrigin.insertOrRaise(ptr.ContentHash, origin)
	fs.recordKeyOrigin(key, origin)
}

// foundAttributes merges newly discovered attributes into found, records
// key origin, and marks the key complete if now satisfied.
func (fs *FetchState) foundAttributes(key api.Key, sf lazyvalue.StoreFile, origin api.TierOrigin) {
	existing := fs.found[key]
	fs.found[key] = existing.Union(sf)
	fs.recordKeyOrigin(key, origin)
	fs.markComplete(key)
}

func (fs *FetchState) recordKeyOrigin(key api.Key, origin api.TierOrigin) {
	if existing, ok := fs.keyOrigin[key]; ok {
		fs.keyOrigin[key] = api.Raise(existing, origin)
		return
	}
	fs.keyOrigin[key] = origin
}

// Fetch runs the full ten-step probe order, the derivation pass, and
// writeback, then returns finish()'s result.
func (fs *FetchState) Fetch(ctx context.Context) FetchResult {
	fs.probeAuxDataCache()
	fs.probeAuxDataLocal()
	fs.probeLocalIndexedCache()
	fs.probeLocalIndexedLocal()
	fs.probeLargeFileCache()
	fs.probeLargeFileLocal()
	fs.probeDistributedMemoryCache(ctx)
	fs.probeRemoteApi(ctx)
	fs.probeLargeFileRemote(ctx)
	fs.probeLegacyFallback()

	fs.deriveComputable()
	fs.writeToCache(ctx)

	return fs.finish()
}

// deriveComputable walks found; for each entry whose attrs, once widened
// by WithComputable, cover a requested attribute not yet present, computes
// it. Today the only computable attribute is aux_data = sha256(content).
func (fs *FetchState) deriveComputable() {
	if !fs.computeAuxData {
		return
	}
	for key, sf := range fs.found {
		if sf.AuxData != nil {
			continue
		}
		if !fs.requestAttrs.Has(api.AuxData) {
			continue
		}
		if sf.Content == nil {
			continue
		}
		if !sf.Attrs().WithComputable().Has(api.AuxData) {
			continue
		}
		digest := contenthash.Sum(sf.Content.FileContent())
		aux := api.AuxData{ContentSha256: digest}
		sf.AuxData = &aux
		fs.found[key] = sf

		origin := fs.keyOrigin[key]
		fs.computedAuxData[key] = origin
		fs.markComplete(key)
		logging.Debugf("derived aux_data for %s from content", key.Path)
	}
}

// FetchResult is what finish() produces: attribute-masked complete
// entries, incomplete keys with their (possibly empty) error lists, and
// tier-level errors orthogonal to any single key.
type FetchResult struct {
	Complete     map[api.Key]lazyvalue.StoreFile
	Incomplete   map[api.Key][]error
	OtherErrors  []error
}

// finish moves remaining pending keys into incomplete, strips per-key
// error lists for resolved keys, masks every found entry down to the
// requested attributes, and returns the assembled result. FetchState must
// not be used afterwards.
func (fs *FetchState) finish() FetchResult {
	complete := make(map[api.Key]lazyvalue.StoreFile, len(fs.found))
	for key, sf := range fs.found {
		if _, stillPending := fs.pending[key]; stillPending {
			continue
		}
		complete[key] = sf.Mask(fs.requestAttrs)
	}

	incomplete := make(map[api.Key][]error, len(fs.pending))
	for key := range fs.pending {
		incomplete[key] = fs.errs.forKey(key)
	}

	return FetchResult{
		Complete:    complete,
		Incomplete:  incomplete,
		OtherErrors: fs.errs.other,
	}
}
