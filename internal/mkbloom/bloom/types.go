package bloom

import "errors"

// SeedCount is the number of independent keyed hash functions combined by
// double hashing.
const SeedCount = 2

var (
	ErrInvalidRate = errors.New("bloom: false positive rate must be in (0, 1)")
	ErrFrozen      = errors.New("bloom: insert into frozen filter")
	ErrSeedSource  = errors.New("bloom: seed source failed")

	ErrBadBits        = errors.New("bloom: metadata bitmap_bits invalid")
	ErrBadK           = errors.New("bloom: metadata k_num invalid")
	ErrBadDigest      = errors.New("bloom: metadata sha256sum malformed")
	ErrBadSipKey      = errors.New("bloom: metadata sip_keys malformed")
	ErrSizeMismatch   = errors.New("bloom: bitmap length does not match bitmap_bits")
	ErrDigestMismatch = errors.New("bloom: bitmap digest mismatch")
	ErrTrailingBits   = errors.New("bloom: bits set beyond bitmap_bits")
)
