// Package sampling implements reservoir sampling over streams of unknown
// length.
//
// Algorithm R keeps the first k elements, then replaces a uniformly chosen
// slot with the n-th element with probability k/n. After any number of
// elements every element seen so far is in the reservoir with the same
// probability k/n.
package sampling

import (
	"errors"
	"math/rand/v2"
)

// ErrInvalidSize is returned when the reservoir capacity is not positive.
var ErrInvalidSize = errors.New("sampling: reservoir size must be >= 1")

// Reservoir holds a uniform random sample of at most k elements.
// It is not safe for concurrent use.
type Reservoir[T any] struct {
	items []T
	k     int
	seen  uint64
	rng   *rand.Rand
}

// NewReservoir creates a reservoir of capacity k. Passing a seeded rng makes
// the sample reproducible; a nil rng uses a randomly seeded source.
func NewReservoir[T any](k int, rng *rand.Rand) (*Reservoir[T], error) {
	if k < 1 {
		return nil, ErrInvalidSize
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Reservoir[T]{
		items: make([]T, 0, k),
		k:     k,
		rng:   rng,
	}, nil
}

// Add offers x to the reservoir.
func (r *Reservoir[T]) Add(x T) {
	r.seen++
	if len(r.items) < r.k {
		r.items = append(r.items, x)
		return
	}

	// Keep x with probability k/seen, in a uniformly chosen slot.
	if j := r.rng.Uint64N(r.seen); j < uint64(r.k) {
		r.items[j] = x
	}
}

// Sample returns a copy of the current sample.
func (r *Reservoir[T]) Sample() []T {
	out := make([]T, len(r.items))
	copy(out, r.items)
	return out
}

// Seen returns the number of elements offered so far.
func (r *Reservoir[T]) Seen() uint64 { return r.seen }

// Cap returns the reservoir capacity k.
func (r *Reservoir[T]) Cap() int { return r.k }
