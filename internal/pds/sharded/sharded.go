// Package sharded wraps the single-threaded structures of internal/pds for
// concurrent use.
//
// Sharding Strategy
// =================
//
// Bloom and CountMin partition the key space across N independent shards,
// each with its own mutex. Two concurrent writes to different keys will
// typically hit different shards and proceed in parallel.
//
// Keys are assigned to shards with xxhash modulo N. The shard hash is
// deliberately a different function from the MurmurHash64A digests the
// structures use for their bit positions: reusing the same bits to pick the
// shard would leave each shard's filter or sketch seeing a biased slice of its
// own index space.
//
// Because a key always routes to the same shard, a query only ever consults
// one shard, and the answer is exactly what that shard's structure would give
// on its own. No cross-shard merge is ever needed.
//
// HLL is the exception: splitting an HLL by key and summing the shard counts
// would compound the per-shard errors, and combining register arrays is a
// merge. It is a single HLL behind a mutex instead.
package sharded

import (
	"errors"
	"fmt"
	"sync"

	"github.com/cespare/xxhash/v2"

	"sketch.lopezb.com/internal/pds/bloom"
	"sketch.lopezb.com/internal/pds/cms"
	"sketch.lopezb.com/internal/pds/hyperloglog"
)

// ErrInvalidShards is returned when the shard count is not positive.
var ErrInvalidShards = errors.New("sharded: shard count must be >= 1")

// shardIndex maps key to one of n shards.
func shardIndex(key []byte, n int) int {
	return int(xxhash.Sum64(key) % uint64(n))
}

type bloomShard struct {
	mu     sync.RWMutex
	filter *bloom.Filter
}

// Bloom is a Bloom filter split into independently locked shards.
type Bloom struct {
	shards []*bloomShard
}

// NewBloom creates a sharded filter for expectedItems elements in total at the
// target false positive rate. Each shard is sized for its share of the items.
func NewBloom(shards int, expectedItems uint64, fpRate float64) (*Bloom, error) {
	if shards < 1 {
		return nil, fmt.Errorf("%w, got %d", ErrInvalidShards, shards)
	}

	perShard := (expectedItems + uint64(shards) - 1) / uint64(shards)

	b := &Bloom{shards: make([]*bloomShard, shards)}
	for i := range b.shards {
		f, err := bloom.NewOptimal(perShard, fpRate)
		if err != nil {
			return nil, err
		}
		b.shards[i] = &bloomShard{filter: f}
	}
	return b, nil
}

// Insert adds key to its shard.
func (b *Bloom) Insert(key []byte) {
	sh := b.shards[shardIndex(key, len(b.shards))]
	sh.mu.Lock()
	sh.filter.Insert(key)
	sh.mu.Unlock()
}

// Query reports whether key is possibly present.
func (b *Bloom) Query(key []byte) bool {
	sh := b.shards[shardIndex(key, len(b.shards))]
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	return sh.filter.Query(key)
}

// InsertIfAbsent inserts key and reports whether it was (probably) new. The
// test and the insert happen under the same shard lock.
func (b *Bloom) InsertIfAbsent(key []byte) bool {
	sh := b.shards[shardIndex(key, len(b.shards))]
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if sh.filter.Query(key) {
		return false
	}
	sh.filter.Insert(key)
	return true
}

// NumItems returns the total number of Insert calls across shards.
func (b *Bloom) NumItems() uint64 {
	var n uint64
	for _, sh := range b.shards {
		sh.mu.RLock()
		n += sh.filter.NumItems()
		sh.mu.RUnlock()
	}
	return n
}

// MemoryUsage returns the combined bit array size in bytes.
func (b *Bloom) MemoryUsage() uint64 {
	var n uint64
	for _, sh := range b.shards {
		// Sizes are fixed at construction; no lock needed.
		n += sh.filter.MemoryUsage()
	}
	return n
}

// Shards returns the number of shards.
func (b *Bloom) Shards() int { return len(b.shards) }

type cmsShard struct {
	mu     sync.RWMutex
	sketch *cms.Sketch
}

// CountMin is a Count-Min Sketch split into independently locked shards.
//
// Every shard keeps the full width and depth, so the epsilon*N bound of a
// shard holds with N being that shard's total, which is never more than the
// overall total.
type CountMin struct {
	shards []*cmsShard
}

// NewCountMin creates a sharded sketch with the dimensions derived from
// epsilon and delta.
func NewCountMin(shards int, epsilon, delta float64) (*CountMin, error) {
	if shards < 1 {
		return nil, fmt.Errorf("%w, got %d", ErrInvalidShards, shards)
	}

	width, depth, err := cms.DimensionsFromProb(epsilon, delta)
	if err != nil {
		return nil, err
	}

	c := &CountMin{shards: make([]*cmsShard, shards)}
	for i := range c.shards {
		s, err := cms.New(width, depth)
		if err != nil {
			return nil, err
		}
		c.shards[i] = &cmsShard{sketch: s}
	}
	return c, nil
}

// Update adds count to key in its shard.
func (c *CountMin) Update(key []byte, count int32) {
	sh := c.shards[shardIndex(key, len(c.shards))]
	sh.mu.Lock()
	sh.sketch.Update(key, count)
	sh.mu.Unlock()
}

// UpdateConservative performs a conservative increment of key in its shard.
func (c *CountMin) UpdateConservative(key []byte, delta uint32) bool {
	sh := c.shards[shardIndex(key, len(c.shards))]
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return sh.sketch.UpdateConservative(key, delta)
}

// Query returns the estimated count of key.
func (c *CountMin) Query(key []byte) uint32 {
	sh := c.shards[shardIndex(key, len(c.shards))]
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	return sh.sketch.Query(key)
}

// Total returns the sum of all counts across shards.
func (c *CountMin) Total() int64 {
	var n int64
	for _, sh := range c.shards {
		sh.mu.RLock()
		n += sh.sketch.Total()
		sh.mu.RUnlock()
	}
	return n
}

// MemoryUsage returns the combined counter table size in bytes.
func (c *CountMin) MemoryUsage() uint64 {
	var n uint64
	for _, sh := range c.shards {
		n += sh.sketch.MemoryUsage()
	}
	return n
}

// Shards returns the number of shards.
func (c *CountMin) Shards() int { return len(c.shards) }

// HLL is a HyperLogLog guarded by a mutex.
type HLL struct {
	mu  sync.Mutex
	hll *hyperloglog.HLL
}

// NewHLL creates a concurrent HLL with 2^precision registers.
func NewHLL(precision uint8) (*HLL, error) {
	h, err := hyperloglog.New(precision)
	if err != nil {
		return nil, err
	}
	return &HLL{hll: h}, nil
}

// Add incorporates key into the estimate.
func (h *HLL) Add(key []byte) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hll.Add(key)
}

// Count returns the estimated number of distinct keys.
func (h *HLL) Count() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hll.Count()
}

// MemoryUsage returns the register array size in bytes.
func (h *HLL) MemoryUsage() uint64 { return h.hll.MemoryUsage() }
