// Package skiplist implements an ordered map on a probabilistic skip list.
//
// ============================================================================
// STRUCTURE
// ============================================================================
//
// Every node sits on level 1 and is promoted to each further level with
// probability 1/2, up to MaxLevel. A search starts at the highest level of the
// head sentinel and drops one level whenever the next node's key would
// overshoot, so search, insert and delete take O(log n) expected steps.
//
// Range walks level 1 from the first key >= low, which makes ordered scans
// linear in the number of keys returned.
package skiplist

import (
	"cmp"
	"math/rand/v2"
)

// MaxLevel bounds the tower height of any node.
const MaxLevel = 16

// bytesPerNode is the rough fixed cost of a node without its forward
// pointers: key, value, slice header and allocation overhead for small K, V.
const bytesPerNode = 48

type node[K cmp.Ordered, V any] struct {
	key     K
	value   V
	forward []*node[K, V]
}

// List is an ordered map from K to V. It is not safe for concurrent use.
type List[K cmp.Ordered, V any] struct {
	head  *node[K, V]
	level int
	len   int
	links int
	rng   *rand.Rand
}

// New creates an empty list. Passing a seeded rng makes tower heights, and so
// Level and MemoryUsage, reproducible; a nil rng uses a randomly seeded source.
func New[K cmp.Ordered, V any](rng *rand.Rand) *List[K, V] {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &List[K, V]{
		head:  &node[K, V]{forward: make([]*node[K, V], MaxLevel)},
		level: 1,
		rng:   rng,
	}
}

// randomLevel draws a tower height in [1, MaxLevel] with P(h > i) = 2^-i.
func (l *List[K, V]) randomLevel() int {
	level := 1
	for level < MaxLevel && l.rng.Uint64()&1 == 1 {
		level++
	}
	return level
}

// findUpdate fills update with the rightmost node before key on every level
// and returns the level-1 successor, the only candidate for an exact match.
func (l *List[K, V]) findUpdate(key K, update *[MaxLevel]*node[K, V]) *node[K, V] {
	x := l.head
	for i := l.level - 1; i >= 0; i-- {
		for x.forward[i] != nil && cmp.Less(x.forward[i].key, key) {
			x = x.forward[i]
		}
		update[i] = x
	}
	return x.forward[0]
}

// Insert stores value under key. It returns true if key was new and false if
// an existing value was replaced.
func (l *List[K, V]) Insert(key K, value V) bool {
	var update [MaxLevel]*node[K, V]
	if x := l.findUpdate(key, &update); x != nil && x.key == key {
		x.value = value
		return false
	}

	level := l.randomLevel()
	if level > l.level {
		for i := l.level; i < level; i++ {
			update[i] = l.head
		}
		l.level = level
	}

	x := &node[K, V]{key: key, value: value, forward: make([]*node[K, V], level)}
	for i := range level {
		x.forward[i] = update[i].forward[i]
		update[i].forward[i] = x
	}
	l.len++
	l.links += level
	return true
}

// Get returns the value stored under key.
func (l *List[K, V]) Get(key K) (V, bool) {
	x := l.head
	for i := l.level - 1; i >= 0; i-- {
		for x.forward[i] != nil && cmp.Less(x.forward[i].key, key) {
			x = x.forward[i]
		}
	}
	if x = x.forward[0]; x != nil && x.key == key {
		return x.value, true
	}
	var zero V
	return zero, false
}

// Delete removes key and reports whether it was present.
func (l *List[K, V]) Delete(key K) bool {
	var update [MaxLevel]*node[K, V]
	x := l.findUpdate(key, &update)
	if x == nil || x.key != key {
		return false
	}

	for i := range x.forward {
		update[i].forward[i] = x.forward[i]
	}
	for l.level > 1 && l.head.forward[l.level-1] == nil {
		l.level--
	}
	l.len--
	l.links -= len(x.forward)
	return true
}

// Range calls fn for every key in [low, high] in ascending order until fn
// returns false. It returns the number of calls made.
func (l *List[K, V]) Range(low, high K, fn func(key K, value V) bool) int {
	x := l.head
	for i := l.level - 1; i >= 0; i-- {
		for x.forward[i] != nil && cmp.Less(x.forward[i].key, low) {
			x = x.forward[i]
		}
	}

	n := 0
	for x = x.forward[0]; x != nil && cmp.Compare(x.key, high) <= 0; x = x.forward[0] {
		n++
		if !fn(x.key, x.value) {
			break
		}
	}
	return n
}

// Len returns the number of keys.
func (l *List[K, V]) Len() int { return l.len }

// Level returns the current height of the list, at least 1.
func (l *List[K, V]) Level() int { return l.level }

// MemoryUsage returns approximate memory usage in bytes: a fixed cost per
// node plus one pointer per forward link, including the head sentinel.
func (l *List[K, V]) MemoryUsage() uint64 {
	return uint64(l.len+1)*bytesPerNode + uint64(l.links+MaxLevel)*8
}
