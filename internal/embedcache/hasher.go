package embedcache

import (
	"fmt"

	"github.com/OneOfOne/xxhash"
)

// Hasher produces the content hash used as cache key within a model
// partition: XXH32 (seed 0) of the raw UTF-8 text as 8 lowercase hex digits.
// Colliding texts share a slot; the last write wins.
//
// Build one with NewHasher at startup and hand it to every component that
// addresses the cache.
type Hasher struct{}

func NewHasher() *Hasher {
	return &Hasher{}
}

func (h *Hasher) Hash(text string) string {
	return fmt.Sprintf("%08x", xxhash.ChecksumString32(text))
}
