package bloom

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
)

// SipKey is one 128-bit SipHash key, split into its two 64-bit halves.
type SipKey struct {
	K0 uint64
	K1 uint64
}

// SeedSource supplies the keys of a new filter. Keys are drawn exactly once
// per filter, at creation time.
type SeedSource interface {
	Seeds() ([SeedCount]SipKey, error)
}

// CryptoSeeds draws keys from the operating system entropy pool.
type CryptoSeeds struct {
	// Reader overrides crypto/rand.Reader when set.
	Reader io.Reader
}

// Seeds implements SeedSource.
func (c CryptoSeeds) Seeds() ([SeedCount]SipKey, error) {
	r := c.Reader
	if r == nil {
		r = rand.Reader
	}

	var buf [SeedCount * 16]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return [SeedCount]SipKey{}, fmt.Errorf("%w: %w", ErrSeedSource, err)
	}

	var keys [SeedCount]SipKey
	for i := range keys {
		off := i * 16
		keys[i] = SipKey{
			K0: binary.LittleEndian.Uint64(buf[off : off+8]),
			K1: binary.LittleEndian.Uint64(buf[off+8 : off+16]),
		}
	}
	return keys, nil
}

// FixedSeeds always returns the same keys. It exists for tests and for
// reconstructing a filter from persisted metadata.
type FixedSeeds [SeedCount]SipKey

// Seeds implements SeedSource.
func (f FixedSeeds) Seeds() ([SeedCount]SipKey, error) {
	return [SeedCount]SipKey(f), nil
}
