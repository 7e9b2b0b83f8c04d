// Package legacy implements the last-resort LegacyFallback tier: a minimal
// flat-file store standing in for whatever pre-existing storage system a
// deployment is migrating away from. Its internals are explicitly out of
// scope; what matters to the orchestrator is its always-returns-a-result
// semantics and that it never participates in writeback (it does its own
// internal caching already).
package legacy

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/layerfs/scmstore/service/backend"
	"github.com/layerfs/scmstore/service/lazyvalue"
)

// Store is a flat-file fallback store keyed by path, rooted at a single
// directory. It is intentionally simple: no bucketing, no staging
// rename, no content-hash verification — those belong to the tiers a
// deployment is migrating *to*, not the one it's migrating *away from*.
type Store struct {
	rootDir string
	stats   FallbackStats
}

// FallbackStats mirrors the original ContentStoreFallbacks counters: how
// often the legacy tier is still being hit, broken down by outcome, so
// operators can track migration progress off of it.
type FallbackStats struct {
	fetch           atomic.Int64
	fetchMiss       atomic.Int64
	fetchHitPointer atomic.Int64
	fetchHitContent atomic.Int64
}

// Fetch returns the total number of Get calls made.
func (s *FallbackStats) Fetch() int64 { return s.fetch.Load() }

// FetchMiss returns the number of calls that found nothing.
func (s *FallbackStats) FetchMiss() int64 { return s.fetchMiss.Load() }

// FetchHitPointer returns the number of calls that resolved to a large-file
// pointer rather than inline content.
func (s *FallbackStats) FetchHitPointer() int64 { return s.fetchHitPointer.Load() }

// FetchHitContent returns the number of calls that resolved to inline
// content.
func (s *FallbackStats) FetchHitContent() int64 { return s.fetchHitContent.Load() }

// New creates a Store rooted at dir. The directory must already exist;
// legacy storage roots are provisioned by whatever system owns them, not
// by this module.
func New(dir string) *Store {
	return &Store{rootDir: dir}
}

func (s *Store) pathFor(key backend.StoreKey) string {
	if key.ByHash {
		return filepath.Join(s.rootDir, "by-hash", key.ContentHash.Hex())
	}
	return filepath.Join(s.rootDir, filepath.FromSlash(key.Key.Path))
}

// FallbackStats exposes the fetch/miss/hit counters for monitoring.
func (s *Store) FallbackStats() *FallbackStats { return &s.stats }

// Prefetch is a best-effort warm-up hint; the flat-file store has nothing
// smarter to do than touch each path, so a miss here is not an error —
// Get will simply report the miss again when actually needed.
func (s *Store) Prefetch(keys []backend.StoreKey) error {
	for _, key := range keys {
		if _, err := os.Stat(s.pathFor(key)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("legacy: prefetch %s: %w", key.Key.Path, err)
		}
	}
	return nil
}

// Get implements backend.LegacyFallback. A pointer-shaped file (one
// containing a serialized LargeFilePointer rather than raw content) is
// returned as-is; FetchState's legacy probe treats whatever Get returns as
// file content and does not parse it as a pointer.
func (s *Store) Get(key backend.StoreKey) ([]byte, bool, error) {
	s.stats.fetch.Add(1)
	data, err := os.ReadFile(s.pathFor(key))
	if err != nil {
		if os.IsNotExist(err) {
			s.stats.fetchMiss.Add(1)
			return nil, false, nil
		}
		return nil, false, err
	}
	if key.ByHash {
		s.stats.fetchHitPointer.Add(1)
	} else {
		s.stats.fetchHitContent.Add(1)
	}
	return data, true, nil
}

// GetMeta implements backend.LegacyFallback by deriving size from the file
// on disk; the legacy tier carries no flags of its own.
func (s *Store) GetMeta(key backend.StoreKey) (lazyvalue.Metadata, bool, error) {
	info, err := os.Stat(s.pathFor(key))
	if err != nil {
		if os.IsNotExist(err) {
			return lazyvalue.Metadata{}, false, nil
		}
		return lazyvalue.Metadata{}, false, err
	}
	return lazyvalue.Metadata{Size: info.Size()}, true, nil
}

var _ backend.LegacyFallback = (*Store)(nil)
