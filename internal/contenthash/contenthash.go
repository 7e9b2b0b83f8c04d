// Package contenthash provides the fixed-width content hash used to
// address both file content (Key.ContentId) and large-file blobs
// (LargeFilePointer.ContentHash).
package contenthash

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
)

// Size is the number of bytes in a Hash (SHA-256).
const Size = 32

// Hash is a fixed-width content hash. The zero value is Uninitialized.
type Hash struct {
	bytes [Size]byte
}

// zeroSizedHash is the well-known SHA-256 digest of an empty byte string.
var zeroSizedHash = Hash{bytes: [Size]byte{
	0xe3, 0xb0, 0xc4, 0x42, 0x98, 0xfc, 0x1c, 0x14,
	0x9a, 0xfb, 0xf4, 0xc8, 0x99, 0x6f, 0xb9, 0x24,
	0x27, 0xae, 0x41, 0xe4, 0x64, 0x9b, 0x93, 0x4c,
	0xa4, 0x95, 0x99, 0x1b, 0x78, 0x52, 0xb8, 0x55,
}}

// New builds a Hash from a raw byte slice, which must be exactly Size bytes.
func New(raw []byte) (Hash, error) {
	if len(raw) != Size {
		return Hash{}, fmt.Errorf("contenthash: wrong hash length: got %d, want %d", len(raw), Size)
	}
	var h Hash
	copy(h.bytes[:], raw)
	return h, nil
}

// FromHex parses a lowercase hex-encoded hash.
func FromHex(s string) (Hash, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return Hash{}, fmt.Errorf("contenthash: invalid hex %q: %w", s, err)
	}
	return New(raw)
}

// Sum computes the content hash of data.
func Sum(data []byte) Hash {
	digest := sha256.Sum256(data)
	return Hash{bytes: digest}
}

// Hasher wraps crypto/sha256 to produce a Hash instead of a raw byte slice.
// It implements io.Writer, so it composes with io.MultiWriter and io.Copy
// when the full content isn't available as a single slice.
type Hasher struct {
	h hash.Hash
}

// NewHasher returns a streaming hasher.
func NewHasher() *Hasher {
	return &Hasher{h: sha256.New()}
}

func (h *Hasher) Write(p []byte) (int, error) { return h.h.Write(p) }

// Sum finalizes the hash. Callers should discard the Hasher afterwards.
func (h *Hasher) Sum() Hash {
	var out Hash
	copy(out.bytes[:], h.h.Sum(nil))
	return out
}

// Bytes returns the raw hash bytes.
func (h Hash) Bytes() []byte { return h.bytes[:] }

// Hex returns the lowercase hex encoding of the hash.
func (h Hash) Hex() string { return hex.EncodeToString(h.bytes[:]) }

// String implements fmt.Stringer.
func (h Hash) String() string { return h.Hex() }

// Equals reports whether two hashes are byte-for-byte identical.
func (h Hash) Equals(other Hash) bool {
	return bytes.Equal(h.bytes[:], other.bytes[:])
}

// Uninitialized reports whether h is the zero value (never computed).
func (h Hash) Uninitialized() bool {
	return h.Equals(Hash{})
}

// ZeroSizedContent reports whether h is the well-known digest of empty content.
func (h Hash) ZeroSizedContent() bool {
	return h.Equals(zeroSizedHash)
}
