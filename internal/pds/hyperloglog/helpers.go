package hyperloglog

import (
	"math/bits"

	"sketch.lopezb.com/internal/pds/hash"
)

// alpha returns the bias correction constant for 2^p registers.
func alpha(p uint8) float64 {
	switch p {
	case 4:
		return 0.673
	case 5:
		return 0.697
	case 6:
		return 0.709
	default:
		m := float64(uint32(1) << p)
		return 0.7213 / (1 + 1.079/m)
	}
}

// hashToIndexAndRank computes the HLL register index and rank for a given item.
// It is a pure function that encapsulates the hashing and bit-splitting logic,
// which is the first step of the Add operation.
func hashToIndexAndRank(data []byte, p uint8) (index uint32, rank uint8) {
	//
	// DESIGN
	// ------
	//
	// When an item is added, its 64-bit hash is split into two parts. The `p`
	// most significant bits select one of the `m` registers. The remaining
	// `64-p` bits are used to find the position of the most significant `1`
	// bit, which determines the rank. The rank is the number of leading zeros
	// plus one.
	//
	// Each register stores the maximum rank ever observed for an item hashing
	// to it. A higher maximum rank is statistically less likely and indicates
	// that more unique items have likely been seen.
	//

	h := hash.Sum64(data, Seed)

	// The top p bits are the register index.
	index = uint32(h >> (64 - p))

	// Shift the index bits out, leaving the remaining 64-p bits at the top.
	//
	// We then set a guard bit at position p-1. The value can never be zero,
	// and once the 64-p remaining bits are exhausted the leading zero count
	// stops at 64-p. The maximum possible rank is therefore 64-p+1.
	w := (h << p) | uint64(1)<<(p-1)
	rank = uint8(bits.LeadingZeros64(w)) + 1

	return index, rank
}
