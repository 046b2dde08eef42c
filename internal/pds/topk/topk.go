// Package topk tracks the k most frequent keys of a stream.
//
// A Count-Min Sketch estimates every key's frequency, and a min-heap of size k
// holds the keys with the largest estimates seen so far. The heap root is the
// weakest tracked key: a new key enters only if its estimate beats the root,
// which it then replaces.
//
// Because the sketch uses conservative update and never underestimates, a key
// whose true count exceeds every other key's estimate is guaranteed to be in
// the heap. Keys near the cut-off may be swapped for keys with inflated
// estimates; widening the sketch reduces that effect.
package topk

import (
	"errors"
	"fmt"
	"sort"

	"sketch.lopezb.com/internal/pds/cms"
	"sketch.lopezb.com/internal/pds/hash"
)

// ErrInvalidK is returned when k is not positive.
var ErrInvalidK = errors.New("topk: k must be >= 1")

// AddResult describes the heap change caused by Add. When Expelled is true,
// Key and Count name the item that is not (or no longer) in the top k: either
// the evicted root or the added key itself when it failed to enter.
type AddResult struct {
	Expelled bool
	Key      string
	Count    uint64
}

// TopK is a heavy hitter tracker. It is not safe for concurrent use.
type TopK struct {
	k      int
	sketch *cms.Sketch
	heap   list
}

// New creates a tracker for the k heaviest keys backed by a width x depth
// Count-Min Sketch.
func New(k int, width, depth uint32) (*TopK, error) {
	if k < 1 {
		return nil, fmt.Errorf("%w, got %d", ErrInvalidK, k)
	}

	sketch, err := cms.New(width, depth)
	if err != nil {
		return nil, err
	}

	return &TopK{
		k:      k,
		sketch: sketch,
		heap:   make(list, 0, k),
	}, nil
}

// Add records n occurrences of key and updates the heap.
func (tk *TopK) Add(key []byte, n uint32) AddResult {
	if n == 0 {
		return AddResult{}
	}

	tk.sketch.UpdateConservative(key, n)
	count := uint64(tk.sketch.Query(key))

	s := string(key)
	idx, found := tk.heap.linearSearch(s)

	if found {
		if count > tk.heap[idx].Count {
			tk.heap[idx].Count = count
			tk.heap.fix(idx)
		}
		return AddResult{}
	}

	if len(tk.heap) < tk.k {
		tk.heap.push(Item{Key: s, Count: count, fingerprint: hash.Sum64(key, 0)})
		return AddResult{}
	}

	// Not strictly heavier than the weakest tracked key: stay out.
	if count <= tk.heap[0].Count {
		return AddResult{Expelled: true, Key: s, Count: count}
	}

	minItem := tk.heap[0]
	tk.heap[0] = Item{Key: s, Count: count, fingerprint: hash.Sum64(key, 0)}
	tk.heap.fix(0)
	return AddResult{Expelled: true, Key: minItem.Key, Count: minItem.Count}
}

// Query returns the tracked count of key and whether it is in the top k.
func (tk *TopK) Query(key []byte) (bool, uint64) {
	idx, found := tk.heap.linearSearch(string(key))
	if !found {
		return false, 0
	}
	return true, tk.heap[idx].Count
}

// Estimate returns the sketch estimate of key, tracked or not.
func (tk *TopK) Estimate(key []byte) uint64 {
	return uint64(tk.sketch.Query(key))
}

// List returns the tracked items sorted by count descending, ties by key.
func (tk *TopK) List() []Item {
	result := make([]Item, len(tk.heap))
	copy(result, tk.heap)
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Key < result[j].Key
	})
	return result
}

// K returns the maximum number of tracked items.
func (tk *TopK) K() int { return tk.k }

// Total returns the sum of all counts added.
func (tk *TopK) Total() int64 { return tk.sketch.Total() }

// MemoryUsage approximates the bytes held by the sketch and the heap keys.
func (tk *TopK) MemoryUsage() uint64 {
	size := tk.sketch.MemoryUsage()
	for _, it := range tk.heap {
		size += uint64(len(it.Key))
	}
	return size
}
