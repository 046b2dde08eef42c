// Package exact provides map-backed exact answers for the questions the
// probabilistic structures approximate. The command line tools run both side
// by side to measure error and memory savings.
package exact

// bytesPerEntry is the rough per-entry cost of a Go map[string]T on top of the
// key bytes: bucket slot, tophash and string header.
const bytesPerEntry = 48

// Set is an exact membership set, the counterpart of a Bloom filter and an
// HLL. It is not safe for concurrent use.
type Set struct {
	items    map[string]struct{}
	keyBytes uint64
}

// NewSet creates an empty set.
func NewSet() *Set {
	return &Set{items: make(map[string]struct{})}
}

// Add inserts key and returns true if it was not already present.
func (s *Set) Add(key []byte) bool {
	if _, exists := s.items[string(key)]; exists {
		return false
	}
	s.items[string(key)] = struct{}{}
	s.keyBytes += uint64(len(key))
	return true
}

// Contains reports whether key was added.
func (s *Set) Contains(key []byte) bool {
	_, exists := s.items[string(key)]
	return exists
}

// Len returns the number of distinct keys.
func (s *Set) Len() int { return len(s.items) }

// MemoryUsage returns approximate memory usage in bytes.
func (s *Set) MemoryUsage() uint64 {
	return s.keyBytes + uint64(len(s.items))*bytesPerEntry
}

// Counter is an exact frequency table, the counterpart of a Count-Min Sketch.
// It is not safe for concurrent use.
type Counter struct {
	counts   map[string]uint64
	total    uint64
	keyBytes uint64
}

// NewCounter creates an empty counter.
func NewCounter() *Counter {
	return &Counter{counts: make(map[string]uint64)}
}

// Add adds n to the count of key.
func (c *Counter) Add(key []byte, n uint64) {
	k := string(key)
	if _, exists := c.counts[k]; !exists {
		c.keyBytes += uint64(len(key))
	}
	c.counts[k] += n
	c.total += n
}

// Get returns the exact count of key.
func (c *Counter) Get(key []byte) uint64 { return c.counts[string(key)] }

// Len returns the number of distinct keys.
func (c *Counter) Len() int { return len(c.counts) }

// Total returns the sum of all counts.
func (c *Counter) Total() uint64 { return c.total }

// Each calls fn for every key and its count, in no particular order.
func (c *Counter) Each(fn func(key string, n uint64)) {
	for k, n := range c.counts {
		fn(k, n)
	}
}

// MemoryUsage returns approximate memory usage in bytes.
func (c *Counter) MemoryUsage() uint64 {
	return c.keyBytes + uint64(len(c.counts))*(bytesPerEntry+8)
}
