package bloom

import (
	"math"
)

// Parameters holds the two values that fully determine the shape of a filter:
// the bitmap length in bits (m) and the number of hash rounds (k).
type Parameters struct {
	BitmapBits    uint64
	HashFunctions uint32
}

// MaxBitmapBits is the largest bitmap length a filter or its metadata may
// declare.
const MaxBitmapBits uint64 = math.MaxUint64 - 7

// BitmapBytes returns ceil(m/8), the exact length of the serialized bitmap.
// It does not overflow for any m.
func (p Parameters) BitmapBytes() uint64 {
	n := p.BitmapBits / 8
	if p.BitmapBits%8 != 0 {
		n++
	}
	return n
}

// DeriveParameters calculates the optimal bitmap size and hash count for n
// expected items at a target false positive rate p.
//
//	m = ceil(-(n * ln(p)) / (ln(2)^2))
//	k = round((m / n) * ln(2)), at least 1
//
// The result depends only on its inputs. The caller is responsible for
// ensuring 0 < p < 1; ValidateRate can be used to check that. An item count of
// zero is sized as a single item so the bitmap is never empty. A size that
// does not fit in 64 bits is clamped to MaxBitmapBits.
func DeriveParameters(n uint64, p float64) Parameters {
	if n == 0 {
		n = 1
	}

	ln2 := math.Ln2
	mf := math.Ceil(-float64(n) * math.Log(p) / (ln2 * ln2))

	var m uint64
	switch {
	case mf >= float64(MaxBitmapBits):
		m = MaxBitmapBits
	case mf < 1:
		m = 1
	default:
		m = uint64(mf)
	}

	k := math.Round(float64(m) / float64(n) * ln2)
	if k < 1 {
		k = 1
	}

	return Parameters{BitmapBits: m, HashFunctions: uint32(k)}
}

// ValidateRate reports whether p can be used as a target false positive rate.
func ValidateRate(p float64) error {
	if math.IsNaN(p) || p <= 0 || p >= 1 {
		return ErrInvalidRate
	}
	return nil
}

// EstimateFalsePositiveRate returns the expected false positive probability
// of a filter with m bits and k hash rounds after n distinct insertions:
//
//	(1 - e^(-k*n/m))^k
func EstimateFalsePositiveRate(m uint64, k uint32, n uint64) float64 {
	if m == 0 {
		return 1
	}
	exp := math.Exp(-float64(k) * float64(n) / float64(m))
	return math.Pow(1-exp, float64(k))
}

// FillFalsePositiveRate estimates the false positive probability from the
// observed fill ratio of a populated bitmap, which is what a querier will see
// regardless of how many duplicates the corpus contained.
func FillFalsePositiveRate(setBits, m uint64, k uint32) float64 {
	if m == 0 {
		return 1
	}
	return math.Pow(float64(setBits)/float64(m), float64(k))
}
