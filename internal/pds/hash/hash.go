// Package hash implements the hashing primitives shared by every structure in
// internal/pds.
//
// All structures consume the same two building blocks:
//
//  1. Sum64, a 64-bit MurmurHash64A digest of an arbitrary byte sequence.
//  2. Derive, an indexed family of digests built from two Sum64 evaluations
//     using the Kirsch-Mitzenmacher construction.
//
// The Algorithm
// =============
//
// MurmurHash64A consumes the input in 8-byte blocks. Each block is read as a
// little-endian uint64, scrambled with a multiply/xor-shift round and folded
// into the running state. The 0-7 trailing bytes are packed into a final word
// and folded the same way. A last avalanche (xor-shift, multiply, xor-shift)
// spreads every input bit over the whole output.
//
// The computation is pure integer arithmetic with 64-bit wraparound, so the
// same (data, seed) pair yields the same digest on every platform and across
// runs. Blocks are decoded explicitly as little endian instead of being cast
// from memory, which keeps big-endian hosts bit-compatible.
//
// Double Hashing
// ==============
//
// A Bloom filter needs k bit positions per key and a Count-Min Sketch needs d
// column indexes. Hashing the key k (or d) times is wasteful for long keys.
// Kirsch and Mitzenmacher showed that
//
//	g_i(x) = h1(x) + i * h2(x)
//
// behaves like i independent hash functions for these structures. We compute
// h1 = Sum64(data, 0) and h2 = Sum64(data, h1), so any number of positions costs
// exactly two passes over the key.
//
// [1] A. Kirsch, M. Mitzenmacher. "Less Hashing, Same Performance: Building a
// Better Bloom Filter".
package hash

import "encoding/binary"

const (
	// m and r are the MurmurHash64A mixing constants.
	m = 0xc6a4a7935bd1e995
	r = 47
)

// Sum64 returns the MurmurHash64A digest of data using the given seed.
//
// It never fails and never allocates. An empty input hashes to a value that
// depends only on the seed (zero for seed zero).
func Sum64(data []byte, seed uint64) uint64 {
	n := len(data)
	h := seed ^ (uint64(n) * m)

	// Body: full 8-byte blocks.
	nblocks := n / 8
	for i := 0; i < nblocks; i++ {
		k := binary.LittleEndian.Uint64(data[i*8:])
		k *= m
		k ^= k >> r
		k *= m

		h ^= k
		h *= m
	}

	// Tail: the last 0-7 bytes, packed little endian into a single word.
	tail := data[nblocks*8:]
	if len(tail) > 0 {
		var k uint64
		for i := len(tail) - 1; i >= 0; i-- {
			k = k<<8 | uint64(tail[i])
		}
		k *= m
		h ^= k
	}

	// Finalization.
	h ^= h >> r
	h *= m
	h ^= h >> r

	return h
}

// Pair returns the two base digests used for double hashing.
// h2 is seeded with h1 so the two values are decorrelated.
func Pair(data []byte) (h1, h2 uint64) {
	h1 = Sum64(data, 0)
	h2 = Sum64(data, h1)
	return h1, h2
}

// Nth combines a pair produced by Pair into the i-th derived digest.
// Arithmetic wraps around at 64 bits.
func Nth(h1, h2, i uint64) uint64 {
	return h1 + i*h2
}

// Derive returns the i-th derived digest of data: Sum64(data, 0) + i*h2.
//
// Callers probing several indexes for the same key should call Pair once and
// Nth for each index instead, which gives identical results.
func Derive(data []byte, i uint64) uint64 {
	h1, h2 := Pair(data)
	return Nth(h1, h2, i)
}
