// Package dedup discards stale account updates. The host may redeliver or
// reorder updates across forks; only monotonic-per-pubkey write versions may
// reach the store.
package dedup

import (
	"hash/fnv"
	"sync"

	"github.com/vietddude/geyserpg/internal/core/domain"
)

const shardCount = 32

type shard struct {
	mu       sync.Mutex
	versions map[[domain.PubkeyLen]byte]uint64
}

// WriteVersionCache keeps the highest write version accepted per pubkey,
// sharded so producer-side calls for different pubkeys do not contend on one
// lock.
type WriteVersionCache struct {
	shards [shardCount]*shard
}

// NewWriteVersionCache creates an empty cache.
func NewWriteVersionCache() *WriteVersionCache {
	c := &WriteVersionCache{}
	for i := range c.shards {
		c.shards[i] = &shard{versions: make(map[[domain.PubkeyLen]byte]uint64)}
	}
	return c
}

func (c *WriteVersionCache) shardFor(pubkey [domain.PubkeyLen]byte) *shard {
	h := fnv.New32a()
	_, _ = h.Write(pubkey[:])
	return c.shards[h.Sum32()%shardCount]
}

// Accept returns true iff writeVersion exceeds the highest version previously
// accepted for pubkey, and if so records it as the new high-water mark. The
// check and the update are atomic per pubkey.
func (c *WriteVersionCache) Accept(pubkey [domain.PubkeyLen]byte, writeVersion uint64) bool {
	s := c.shardFor(pubkey)
	s.mu.Lock()
	defer s.mu.Unlock()

	if high, ok := s.versions[pubkey]; ok && writeVersion <= high {
		return false
	}
	s.versions[pubkey] = writeVersion
	return true
}

// Highest returns the accepted high-water mark for pubkey, if any.
func (c *WriteVersionCache) Highest(pubkey [domain.PubkeyLen]byte) (uint64, bool) {
	s := c.shardFor(pubkey)
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.versions[pubkey]
	return v, ok
}

// Size returns the number of tracked pubkeys.
func (c *WriteVersionCache) Size() int {
	total := 0
	for _, s := range c.shards {
		s.mu.Lock()
		total += len(s.versions)
		s.mu.Unlock()
	}
	return total
}
