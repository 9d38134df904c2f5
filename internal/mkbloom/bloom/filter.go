// Package bloom builds classic (unblocked) Bloom filters whose bitmap is meant
// to be written to disk verbatim and reloaded later by a separate querier.
//
// A Bloom filter is a probabilistic data structure that allows checking if an
// element is *definitely not* in a set or *probably* in a set. It never
// reports a false negative, does not support deletion, and its false positive
// rate is tuned by the bitmap size m and the number of hash rounds k.
//
// Lifecycle
// =========
//
// A Filter goes through three phases and never returns to an earlier one:
//
//  1. Creation: New allocates a zeroed bitmap of exactly m bits and draws two
//     SipHash keys from a SeedSource. The keys are never regenerated.
//
//  2. Population: Insert sets k bits per item. Bits only ever transition from
//     0 to 1, so inserting the same item twice is a no-op.
//
//  3. Frozen: Freeze packs the bitmap into bytes, computes its digest, and
//     returns a read-only Frozen view. The Filter refuses further inserts.
//
// Population is single-writer and performs no locking. A Frozen view holds no
// mutable state and may be shared by any number of readers.
//
// The Algorithm
// =============
//
// Items are normalized with strings.TrimSpace, so "apple\n" and "apple" are
// the same element. The normalized bytes are hashed twice with SipHash-2-4
// under two independent 128-bit keys, giving h1 and h2. The k bit positions
// are derived from that pair with enhanced double hashing (see locations).
//
// Data Layout
// ===========
//
// The serialized bitmap is ceil(m/8) raw bytes with no header or footer.
// Bits are numbered LSB0: bit j lives in byte j/8 under mask 1<<(j%8). Bits at
// positions >= m in the final byte are always zero.
//
// Everything needed to reinterpret the bytes (m, k, both keys, and a SHA-256
// digest of the bytes) is carried by Metadata, which is persisted next to the
// bitmap as JSON.
package bloom

import (
	"bytes"
	"encoding/binary"
	"io"
	"strings"

	"github.com/bits-and-blooms/bitset"
)

// Filter is a Bloom filter under construction.
type Filter struct {
	params Parameters
	keys   [SeedCount]SipKey
	bits   *bitset.BitSet

	// frozen is set once by Freeze. Insert panics after that point.
	frozen *Frozen
}

// New allocates an empty filter shaped by params and keyed by src.
//
// The only failure mode is the seed source itself; callers treat it as fatal.
func New(params Parameters, src SeedSource) (*Filter, error) {
	if params.BitmapBits == 0 {
		params.BitmapBits = 1
	}
	if params.HashFunctions == 0 {
		params.HashFunctions = 1
	}

	keys, err := src.Seeds()
	if err != nil {
		return nil, err
	}

	return &Filter{
		params: params,
		keys:   keys,
		bits:   bitset.New(uint(params.BitmapBits)),
	}, nil
}

// Parameters returns the shape of the filter.
func (f *Filter) Parameters() Parameters { return f.params }

// Keys returns the SipHash keys drawn at creation time.
func (f *Filter) Keys() [SeedCount]SipKey { return f.keys }

// Insert adds item, after trimming surrounding whitespace.
func (f *Filter) Insert(item string) {
	f.add([]byte(strings.TrimSpace(item)))
}

// InsertBytes is Insert for callers that already hold the item as bytes, such
// as a line scanner. item is not retained.
func (f *Filter) InsertBytes(item []byte) {
	f.add(bytes.TrimSpace(item))
}

func (f *Filter) add(item []byte) {
	if f.frozen != nil {
		panic(ErrFrozen)
	}
	h1, h2 := hashPair(&f.keys, item)
	locations(h1, h2, f.params.BitmapBits, f.params.HashFunctions, func(idx uint64) bool {
		f.bits.Set(uint(idx))
		return true
	})
}

// MaybeContains reports whether item may have been inserted. A false result
// is definite.
func (f *Filter) MaybeContains(item string) bool {
	return test(f.bits, f.params, &f.keys, []byte(strings.TrimSpace(item)))
}

// Freeze ends the population phase and returns the read-only view of the
// filter. Calling Freeze again returns the same view.
func (f *Filter) Freeze() *Frozen {
	if f.frozen != nil {
		return f.frozen
	}

	packed := packLSB0(f.bits, f.params.BitmapBytes())
	f.frozen = &Frozen{
		params: f.params,
		keys:   f.keys,
		bits:   f.bits,
		bitmap: packed,
		meta:   NewMetadata(packed, f.params, f.keys),
	}
	return f.frozen
}

// Serialize freezes the filter and returns the bitmap bytes together with the
// metadata describing them.
func (f *Filter) Serialize() ([]byte, Metadata) {
	fr := f.Freeze()
	return fr.Bytes(), fr.Metadata()
}

// Frozen is an immutable Bloom filter, either produced by Freeze or rebuilt
// from persisted bytes by Open.
type Frozen struct {
	params Parameters
	keys   [SeedCount]SipKey
	bits   *bitset.BitSet
	bitmap []byte
	meta   Metadata
}

// Parameters returns the shape of the filter.
func (fr *Frozen) Parameters() Parameters { return fr.params }

// Bytes returns the packed bitmap. The slice is shared and must not be
// modified.
func (fr *Frozen) Bytes() []byte { return fr.bitmap }

// Metadata returns the descriptor of Bytes.
func (fr *Frozen) Metadata() Metadata { return fr.meta }

// WriteTo writes the packed bitmap to w.
func (fr *Frozen) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(fr.bitmap)
	return int64(n), err
}

// MaybeContains reports whether item may have been inserted. A false result
// is definite.
func (fr *Frozen) MaybeContains(item string) bool {
	return test(fr.bits, fr.params, &fr.keys, []byte(strings.TrimSpace(item)))
}

// Stats describes how full a bitmap is.
type Stats struct {
	SetBits   uint64
	FillRatio float64

	// FalsePositiveRate is the probability that a random non-member passes
	// all k probes at the observed fill ratio.
	FalsePositiveRate float64
}

// Stats counts the set bits of the bitmap.
func (fr *Frozen) Stats() Stats {
	set := uint64(fr.bits.Count())
	m := fr.params.BitmapBits
	return Stats{
		SetBits:           set,
		FillRatio:         float64(set) / float64(m),
		FalsePositiveRate: FillFalsePositiveRate(set, m, fr.params.HashFunctions),
	}
}

func test(bits *bitset.BitSet, params Parameters, keys *[SeedCount]SipKey, item []byte) bool {
	h1, h2 := hashPair(keys, item)
	present := true
	locations(h1, h2, params.BitmapBits, params.HashFunctions, func(idx uint64) bool {
		if !bits.Test(uint(idx)) {
			present = false
		}
		return present
	})
	return present
}

// packLSB0 lays the bitset words out as little-endian bytes, which yields the
// LSB0 bit numbering, truncated to n bytes.
func packLSB0(bits *bitset.BitSet, n uint64) []byte {
	out := make([]byte, n)
	var word [8]byte
	for i, w := range bits.Words() {
		off := uint64(i) * 8
		if off >= n {
			break
		}
		binary.LittleEndian.PutUint64(word[:], w)
		copy(out[off:], word[:])
	}
	return out
}

// unpackLSB0 is the inverse of packLSB0.
func unpackLSB0(b []byte, m uint64) *bitset.BitSet {
	words := make([]uint64, (len(b)+7)/8)
	var word [8]byte
	for i := range words {
		clear(word[:])
		copy(word[:], b[i*8:])
		words[i] = binary.LittleEndian.Uint64(word[:])
	}
	return bitset.FromWithLength(uint(m), words)
}
