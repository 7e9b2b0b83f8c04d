// Package api defines the value types and set-algebra shared across the
// fetch orchestrator: keys, attribute masks, tier origins, large-file
// pointers, and aux data. It has no dependencies on the rest of the module.
package api

import "github.com/layerfs/scmstore/internal/contenthash"

// Key identifies a single file revision: a path plus a content id. Paths
// may be empty for trees addressed by hash alone.
type Key struct {
	Path      string
	ContentId contenthash.Hash
}

// HasPath reports whether this key carries a working-copy path.
func (k Key) HasPath() bool { return k.Path != "" }

// TierOrigin tags where an attribute or pointer was discovered, which
// determines writeback eligibility and eviction policy.
type TierOrigin int

const (
	// OriginLocal marks a writeable, non-evictable tier.
	OriginLocal TierOrigin = iota
	// OriginCache marks a writeable, evictable tier.
	OriginCache
)

func (o TierOrigin) String() string {
	switch o {
	case OriginLocal:
		return "local"
	case OriginCache:
		return "cache"
	default:
		return "unknown"
	}
}

// Raise returns the more durable-tracking of the two origins: once an
// attribute or pointer has been seen at Cache it sticks, even if a later
// sighting of the same key comes from Local. Cache wins if either side
// is Cache; only Local+Local stays Local.
func Raise(existing, next TierOrigin) TierOrigin {
	if existing == OriginCache || next == OriginCache {
		return OriginCache
	}
	return OriginLocal
}

// LargeFilePointer stands in for file content stored out-of-band, addressed
// by content hash, when content exceeds the large-file threshold.
type LargeFilePointer struct {
	ContentHash contenthash.Hash
	Size        int64
	ContentId   contenthash.Hash
}

// Equivalent reports whether two pointers address the same blob.
func (p LargeFilePointer) Equivalent(other LargeFilePointer) bool {
	return p.ContentHash.Equals(other.ContentHash)
}

// AuxData holds lightweight derived facts about a file's content.
// The type is intentionally narrow today but extensible: new fields here
// are the only change needed to grow the derivable set, alongside
// FileAttributes.WithComputable.
type AuxData struct {
	ContentSha256 contenthash.Hash
}

// Equals reports whether two AuxData values carry the same digest.
func (a AuxData) Equals(other AuxData) bool {
	return a.ContentSha256.Equals(other.ContentSha256)
}
