package store

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// readCacheKey identifies a bulk-read container range together with the
// container's compaction generation at the time of the read, so a GC
// rewrite (which bumps the generation) can never serve stale bytes out of
// the cache — the stale entry simply becomes unreachable under its old key
// and is evicted by LRU pressure like any other cold entry.
type readCacheKey struct {
	container  string
	generation uint64
	offset     int64
	length     int
}

func (k readCacheKey) String() string {
	return fmt.Sprintf("%s@%d[%d:%d]", k.container, k.generation, k.offset, k.offset+int64(k.length))
}

// readCache is a small bounded cache of recently bulk-read container
// ranges, the same role restic's bloblru/blobcache packages play for
// decrypted blob bytes (here there is nothing to decrypt, so the cache
// simply holds the raw container slice).
type readCache struct {
	cache *lru.Cache[readCacheKey, []byte]
}

// defaultReadCacheEntries bounds the cache by entry count rather than
// bytes. Each entry is one bulk read of the read path's run-coalescing,
// which covers a whole run of physically contiguous chunks and so can be
// many chunks long; the cache does no byte accounting.
const defaultReadCacheEntries = 256

func newReadCache() *readCache {
	c, err := lru.New[readCacheKey, []byte](defaultReadCacheEntries)
	if err != nil {
		// Only returns an error for a non-positive size, which
		// defaultReadCacheEntries never is.
		panic(err)
	}
	return &readCache{cache: c}
}

func (rc *readCache) get(k readCacheKey) ([]byte, bool) {
	return rc.cache.Get(k)
}

func (rc *readCache) put(k readCacheKey, data []byte) {
	rc.cache.Add(k, data)
}
