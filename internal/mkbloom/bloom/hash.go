package bloom

import (
	"github.com/dchest/siphash"
)

// hashPair computes the two base hashes of item with independent SipHash-2-4
// keys.
func hashPair(keys *[SeedCount]SipKey, item []byte) (h1, h2 uint64) {
	h1 = siphash.Hash(keys[0].K0, keys[0].K1, item)
	h2 = siphash.Hash(keys[1].K0, keys[1].K1, item)
	return h1, h2
}

// locations calls fn with the k bit indexes of an item using enhanced double
// hashing (Dillinger & Manolios, "Bloom Filters in Probabilistic
// Verification"):
//
//	idx_i = a_i mod m
//	a_{i+1} = a_i + b_i
//	b_{i+1} = b_i + (i + 1)
//
// starting from a_0 = h1, b_0 = h2, with uint64 wrap-around. The growing
// stride keeps the sequence from cycling when h2 mod m is small. Any querier
// must reproduce this sequence exactly. fn returns false to stop early.
func locations(h1, h2, m uint64, k uint32, fn func(idx uint64) bool) {
	a, b := h1, h2
	for i := uint32(0); i < k; i++ {
		if !fn(a % m) {
			return
		}
		a += b
		b += uint64(i) + 1
	}
}
