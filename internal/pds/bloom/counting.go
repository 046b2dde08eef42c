package bloom

import (
	"fmt"

	"sketch.lopezb.com/internal/pds/hash"
)

// counterMax is the saturation value of a 4-bit counter.
const counterMax = 15

// CountingFilter is a Bloom filter whose bits are replaced by 4-bit counters,
// which makes deletion possible.
//
// Counters are packed two per byte: even indexes use the low nibble, odd
// indexes the high nibble. A counter saturates at 15 and is never incremented
// past it; a saturated counter is still decremented by Delete, so deleting an
// element that shares a saturated counter can in rare cases introduce a false
// negative. This is the standard trade-off of 4-bit counting filters.
type CountingFilter struct {
	counters    []byte
	numCounters uint64
	numHashes   uint64
	numItems    uint64
}

// NewCounting creates an empty counting filter with numCounters 4-bit
// counters and numHashes counter positions per element.
func NewCounting(numCounters, numHashes uint64) (*CountingFilter, error) {
	if numCounters < 1 {
		return nil, fmt.Errorf("%w: num_counters must be >= 1", ErrInvalidParameter)
	}
	if numHashes < 1 {
		return nil, fmt.Errorf("%w: num_hashes must be >= 1", ErrInvalidParameter)
	}
	// Four bits per counter, so the same byte budget as MaxBits/4 counters.
	if numCounters > MaxBits/4 {
		return nil, fmt.Errorf("%w: %d counters requested", ErrTooLarge, numCounters)
	}

	return &CountingFilter{
		counters:    make([]byte, (numCounters+1)/2),
		numCounters: numCounters,
		numHashes:   numHashes,
	}, nil
}

func (cf *CountingFilter) get(idx uint64) uint8 {
	b := cf.counters[idx/2]
	if idx%2 == 0 {
		return b & 0x0F
	}
	return b >> 4
}

func (cf *CountingFilter) set(idx uint64, v uint8) {
	i := idx / 2
	if idx%2 == 0 {
		cf.counters[i] = (cf.counters[i] & 0xF0) | v
	} else {
		cf.counters[i] = (cf.counters[i] & 0x0F) | (v << 4)
	}
}

// Insert increments the k counters of data.
func (cf *CountingFilter) Insert(data []byte) {
	h1, h2 := hash.Pair(data)
	for i := uint64(0); i < cf.numHashes; i++ {
		idx := hash.Nth(h1, h2, i) % cf.numCounters
		if v := cf.get(idx); v < counterMax {
			cf.set(idx, v+1)
		}
	}
	cf.numItems++
}

// Delete decrements the k counters of data. Counters already at zero stay at
// zero. Deleting an element that was never inserted corrupts the filter for
// the elements it collides with; callers should only delete what they added.
func (cf *CountingFilter) Delete(data []byte) {
	h1, h2 := hash.Pair(data)
	for i := uint64(0); i < cf.numHashes; i++ {
		idx := hash.Nth(h1, h2, i) % cf.numCounters
		if v := cf.get(idx); v > 0 {
			cf.set(idx, v-1)
		}
	}
	if cf.numItems > 0 {
		cf.numItems--
	}
}

// Query reports whether data is possibly in the set.
func (cf *CountingFilter) Query(data []byte) bool {
	h1, h2 := hash.Pair(data)
	for i := uint64(0); i < cf.numHashes; i++ {
		idx := hash.Nth(h1, h2, i) % cf.numCounters
		if cf.get(idx) == 0 {
			return false
		}
	}
	return true
}

// NumCounters returns the number of 4-bit counters.
func (cf *CountingFilter) NumCounters() uint64 { return cf.numCounters }

// NumHashes returns the number of counter positions per element.
func (cf *CountingFilter) NumHashes() uint64 { return cf.numHashes }

// NumItems returns insertions minus deletions, floored at zero.
func (cf *CountingFilter) NumItems() uint64 { return cf.numItems }

// MemoryUsage returns the size of the counter array in bytes.
func (cf *CountingFilter) MemoryUsage() uint64 { return uint64(len(cf.counters)) }
