// Package bloom implements a classic Bloom filter and a Counting Bloom filter.
//
// A Bloom filter is a probabilistic data structure that answers set membership
// queries with one of two results: the element is *definitely not* in the set,
// or it is *possibly* in the set. It never produces false negatives, uses a
// small fraction of the memory an exact set would need, and does not support
// deletion.
//
// The Algorithm
// =============
//
// The filter is an array of m bits, all initially zero, and k bit positions
// per element. Inserting an element sets its k bits. Querying an element checks
// its k bits and reports "possibly present" only when all of them are set.
//
// The k positions are derived with the Kirsch-Mitzenmacher construction from
// package hash:
//
//	idx_i = (h1 + i*h2) mod m,    i = 0 .. k-1
//
// so each operation hashes the key exactly twice regardless of k.
//
// Sizing
// ======
//
// For n expected elements and a target false positive rate p, the optimal
// parameters are:
//
//	m = ceil(-n * ln(p) / ln(2)^2)
//	k = ceil((m / n) * ln(2))
//
// Some examples:
//
//	n=1000,    p=0.01   -> m=9586 bits (~1.2KB),  k=7
//	n=1000000, p=0.01   -> m=9585059 bits (~1.1MB), k=7
//	n=1000,    p=0.001  -> m=14378 bits (~1.8KB), k=10
//
// Memory Model
// ============
//
// Bits are packed into a bitset.BitSet (64 bits per word). The filter owns the
// bitset exclusively and never hands out references to it: every accessor
// returns a copied value. Bits are only ever set, so the population of the
// array grows monotonically.
//
// The Counting Bloom filter (see counting.go) trades 4x memory for deletion
// support by replacing every bit with a 4-bit saturating counter.
package bloom

import (
	"errors"
	"fmt"
	"math"

	"github.com/bits-and-blooms/bitset"

	"sketch.lopezb.com/internal/pds/hash"
)

const (
	// MaxBits is a safety break on the size of a single filter (8 GiB of
	// bits). Requests above it are refused before any memory is allocated.
	MaxBits = 1 << 36
)

var (
	// ErrInvalidParameter is returned when a constructor receives a size,
	// hash count or false positive rate outside its valid domain.
	ErrInvalidParameter = errors.New("bloom: invalid parameter")

	// ErrTooLarge is returned when the requested bit array exceeds MaxBits.
	ErrTooLarge = errors.New("bloom: filter too large")
)

// Filter is a fixed-size Bloom filter.
type Filter struct {
	bits      *bitset.BitSet
	numBits   uint64
	numHashes uint64

	// numItems counts Insert calls. It feeds FalsePositiveRate and is
	// otherwise diagnostic only.
	numItems uint64
}

// New creates an empty filter with numBits bits and numHashes hash positions per
// element. Both must be at least 1.
func New(numBits, numHashes uint64) (*Filter, error) {
	if numBits < 1 {
		return nil, fmt.Errorf("%w: num_bits must be >= 1", ErrInvalidParameter)
	}
	if numHashes < 1 {
		return nil, fmt.Errorf("%w: num_hashes must be >= 1", ErrInvalidParameter)
	}
	if numBits > MaxBits {
		return nil, fmt.Errorf("%w: %d bits requested, limit is %d", ErrTooLarge, numBits, uint64(MaxBits))
	}

	return &Filter{
		bits:      bitset.New(uint(numBits)),
		numBits:   numBits,
		numHashes: numHashes,
	}, nil
}

// NewOptimal creates a filter sized for expectedItems elements at the given
// target false positive rate. See EstimateParameters for the formulas.
func NewOptimal(expectedItems uint64, falsePositiveRate float64) (*Filter, error) {
	m, k, err := EstimateParameters(expectedItems, falsePositiveRate)
	if err != nil {
		return nil, err
	}
	return New(m, k)
}

// EstimateParameters calculates the optimal bit count m and hash count k for
// n expected elements and a target false positive rate p.
//
// n must be at least 1 and p must lie strictly between 0 and 1. k is never
// less than 1.
func EstimateParameters(n uint64, p float64) (m, k uint64, err error) {
	if n < 1 {
		return 0, 0, fmt.Errorf("%w: expected_items must be >= 1", ErrInvalidParameter)
	}
	// Written as a negated conjunction so NaN is rejected too.
	if !(p > 0 && p < 1) {
		return 0, 0, fmt.Errorf("%w: false_positive_rate must be in (0, 1), got %v", ErrInvalidParameter, p)
	}

	// Standard Bloom Filter formula: m = -(n * ln(p)) / (ln(2)^2)
	ln2 := math.Ln2
	bits := math.Ceil(-float64(n) * math.Log(p) / (ln2 * ln2))
	if bits > MaxBits {
		return 0, 0, fmt.Errorf("%w: %.0f bits needed, limit is %d", ErrTooLarge, bits, uint64(MaxBits))
	}
	m = uint64(bits)

	// k = (m/n) * ln(2), computed from the rounded m.
	k = uint64(math.Ceil(float64(m) / float64(n) * ln2))
	if k < 1 {
		k = 1
	}

	return m, k, nil
}

// Insert adds data to the filter. Inserting the same element twice has the
// same observable effect as inserting it once, but NumItems counts both calls.
func (f *Filter) Insert(data []byte) {
	h1, h2 := hash.Pair(data)
	for i := uint64(0); i < f.numHashes; i++ {
		idx := hash.Nth(h1, h2, i) % f.numBits
		f.bits.Set(uint(idx))
	}
	f.numItems++
}

// Query reports whether data is possibly in the set. A false result is
// definite; a true result may be a false positive.
func (f *Filter) Query(data []byte) bool {
	h1, h2 := hash.Pair(data)
	for i := uint64(0); i < f.numHashes; i++ {
		idx := hash.Nth(h1, h2, i) % f.numBits
		if !f.bits.Test(uint(idx)) {
			return false
		}
	}
	return true
}

// FalsePositiveRate estimates the current false positive probability given
// the number of insertions performed so far:
//
//	(1 - e^(-k*n/m))^k
//
// This differs from the target rate used at construction whenever the filter
// holds more or fewer elements than it was sized for.
func (f *Filter) FalsePositiveRate() float64 {
	k := float64(f.numHashes)
	n := float64(f.numItems)
	m := float64(f.numBits)
	return math.Pow(1-math.Exp(-k*n/m), k)
}

// NumBits returns m, the size of the bit array.
func (f *Filter) NumBits() uint64 { return f.numBits }

// NumHashes returns k, the number of bit positions per element.
func (f *Filter) NumHashes() uint64 { return f.numHashes }

// NumItems returns the number of Insert calls performed.
func (f *Filter) NumItems() uint64 { return f.numItems }

// BitsSet returns the number of bits currently set.
func (f *Filter) BitsSet() uint64 { return uint64(f.bits.Count()) }

// MemoryUsage returns the packed size of the bit array in bytes.
func (f *Filter) MemoryUsage() uint64 {
	return (f.numBits + 7) / 8
}
