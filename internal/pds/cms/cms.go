// Package cms implements the Count-Min Sketch data structure.
//
// The Count-Min Sketch (CMS) is a probabilistic data structure used to estimate
// the frequency of events in a data stream. Unlike exact counters, CMS uses
// sub-linear space at the cost of some accuracy - it may overestimate
// frequencies but, for non-negative streams, never underestimates them.
//
// Layout
// ======
//
// The sketch is a table of d rows by w columns of uint32 counters:
//
//	         col 0   col 1   ...   col w-1
//	row 0  [  c00  |  c01  | ... |  c0w  ]
//	row 1  [  c10  |  c11  | ... |  c1w  ]
//	 ...
//	row d-1[  cd0  |  cd1  | ... |  cdw  ]
//
// Row i of an item x is addressed at column
//
//	h_i(x) = (h1(x) + i*h2(x)) mod w
//
// using the double hashing pair from package hash, so an update hashes the
// item twice regardless of depth.
//
// Error Bounds
// ============
//
// With w = ceil(e/epsilon) and d = ceil(ln(1/delta)), for a stream of
// non-negative updates with total N:
//
//	true(x) <= Query(x) <= true(x) + epsilon*N    with probability >= 1-delta
//
// Signed Updates
// ==============
//
// Update accepts a signed count. Counters are unsigned 32-bit values and all
// arithmetic wraps around: adding -1 to a zero counter yields 4294967295.
// Decrements below the true count therefore produce huge estimates rather
// than negative ones. Callers that need turnstile semantics must keep every
// item's net count non-negative.
//
// Conservative Update
// ===================
//
// UpdateConservative is an alternative, increment-only update. It finds the
// current minimum m over the item's d counters and raises only the counters
// below m+delta to that value. Counters already at or above the target are
// left untouched. This keeps heavy hitters from inflating the counters they
// share with rare items, and significantly reduces over-counting on skewed
// (Zipfian) streams.
package cms

import (
	"errors"
	"fmt"
	"math"

	"sketch.lopezb.com/internal/pds/hash"
)

const (
	// MaxCells caps width*depth (4 GiB of counters).
	MaxCells = 1 << 30

	// counterSize is the size of a single counter in bytes.
	counterSize = 4
)

var (
	// ErrInvalidParameter is returned when a dimension or error bound is out
	// of range.
	ErrInvalidParameter = errors.New("cms: invalid parameter")

	// ErrTooLarge is returned when the requested table exceeds MaxCells.
	ErrTooLarge = errors.New("cms: sketch too large")
)

// Sketch is a Count-Min Sketch.
type Sketch struct {
	table [][]uint32
	width uint32
	depth uint32

	// total is the signed sum of every count passed to Update and every
	// delta applied by UpdateConservative.
	total int64
}

// New creates a zeroed sketch with depth rows of width counters.
//
// Memory usage: width * depth * 4 bytes
//
// Typical values:
//   - width=1000, depth=5 for ~20KB, ~0.27% error rate
//   - width=10000, depth=7 for ~280KB, ~0.027% error rate
func New(width, depth uint32) (*Sketch, error) {
	if width < 1 {
		return nil, fmt.Errorf("%w: width must be >= 1", ErrInvalidParameter)
	}
	if depth < 1 {
		return nil, fmt.Errorf("%w: depth must be >= 1", ErrInvalidParameter)
	}
	if cells := uint64(width) * uint64(depth); cells > MaxCells {
		return nil, fmt.Errorf("%w: %d counters requested, limit is %d", ErrTooLarge, cells, uint64(MaxCells))
	}

	// One contiguous allocation, sliced into rows.
	cells := make([]uint32, int(width)*int(depth))
	table := make([][]uint32, depth)
	for i := range table {
		table[i] = cells[i*int(width) : (i+1)*int(width) : (i+1)*int(width)]
	}

	return &Sketch{
		table: table,
		width: width,
		depth: depth,
	}, nil
}

// NewOptimal creates a sketch whose dimensions guarantee an overestimate of at
// most epsilon*N with probability at least 1-delta. See DimensionsFromProb.
func NewOptimal(epsilon, delta float64) (*Sketch, error) {
	width, depth, err := DimensionsFromProb(epsilon, delta)
	if err != nil {
		return nil, err
	}
	return New(width, depth)
}

// Update adds count to the item's counter in every row. Negative counts
// decrement with 32-bit wraparound.
func (s *Sketch) Update(data []byte, count int32) {
	h1, h2 := hash.Pair(data)
	for i := uint32(0); i < s.depth; i++ {
		idx := s.index(h1, h2, i)
		// uint32(count) of a negative value is its two's complement, so the
		// addition wraps to the right result.
		s.table[i][idx] += uint32(count)
	}
	s.total += int64(count)
}

// UpdateConservative performs a Conservative Update increment on the item.
// It returns true if any counter was modified.
func (s *Sketch) UpdateConservative(data []byte, delta uint32) bool {
	//
	// DESIGN
	// ------
	//
	// We first scan all d rows to find the minimum counter value for this
	// item. This minimum is the best estimate we have of the item's true
	// frequency.
	//
	// We then compute a target value (min + delta) and only raise counters
	// that fall below it. Counters already at or above the target are left
	// untouched: their surplus comes from collisions with other items, and
	// adding to it would only inflate the estimates of those items further.
	//

	if delta == 0 {
		return false
	}

	h1, h2 := hash.Pair(data)
	minVal := s.min(h1, h2)

	// Saturate instead of wrapping.
	target := uint32(math.MaxUint32)
	if uint64(minVal)+uint64(delta) <= math.MaxUint32 {
		target = minVal + delta
	}

	changed := false
	for i := uint32(0); i < s.depth; i++ {
		idx := s.index(h1, h2, i)
		if s.table[i][idx] < target {
			s.table[i][idx] = target
			changed = true
		}
	}

	if changed {
		s.total += int64(delta)
	}
	return changed
}

// Query returns the estimated frequency of the item: the minimum of its
// counters across all rows. Items never updated return 0 unless every one of
// their counters collides with another item.
func (s *Sketch) Query(data []byte) uint32 {
	h1, h2 := hash.Pair(data)
	return s.min(h1, h2)
}

func (s *Sketch) min(h1, h2 uint64) uint32 {
	minVal := uint32(math.MaxUint32)
	for i := uint32(0); i < s.depth; i++ {
		if v := s.table[i][s.index(h1, h2, i)]; v < minVal {
			minVal = v
		}
	}
	return minVal
}

// index computes the column for row i: (h1 + i*h2) mod width.
func (s *Sketch) index(h1, h2 uint64, i uint32) uint32 {
	return uint32(hash.Nth(h1, h2, uint64(i)) % uint64(s.width))
}

// Width returns the number of columns per row.
func (s *Sketch) Width() uint32 { return s.width }

// Depth returns the number of rows.
func (s *Sketch) Depth() uint32 { return s.depth }

// Total returns the signed sum of all counts applied to the sketch.
func (s *Sketch) Total() int64 { return s.total }

// MemoryUsage returns the size of the counter table in bytes.
func (s *Sketch) MemoryUsage() uint64 {
	return uint64(s.width) * uint64(s.depth) * counterSize
}
