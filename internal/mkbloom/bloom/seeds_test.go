package bloom

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCryptoSeeds_Layout(t *testing.T) {
	raw := make([]byte, 32)
	for i := range raw {
		raw[i] = byte(i)
	}

	keys, err := CryptoSeeds{Reader: bytes.NewReader(raw)}.Seeds()
	require.NoError(t, err)
	require.Equal(t, [SeedCount]SipKey{
		{K0: 0x0706050403020100, K1: 0x0f0e0d0c0b0a0908},
		{K0: 0x1716151413121110, K1: 0x1f1e1d1c1b1a1918},
	}, keys)
}

func TestCryptoSeeds_Fresh(t *testing.T) {
	a, err := CryptoSeeds{}.Seeds()
	require.NoError(t, err)
	b, err := CryptoSeeds{}.Seeds()
	require.NoError(t, err)

	// 256 bits of entropy colliding would mean a broken entropy source.
	require.NotEqual(t, a, b)
	require.NotEqual(t, a[0], a[1])
}

func TestCryptoSeeds_ShortRead(t *testing.T) {
	_, err := CryptoSeeds{Reader: bytes.NewReader(make([]byte, 31))}.Seeds()
	require.ErrorIs(t, err, ErrSeedSource)
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)

	boom := errors.New("entropy exhausted")
	_, err = CryptoSeeds{Reader: errReader{boom}}.Seeds()
	require.ErrorIs(t, err, ErrSeedSource)
	require.ErrorIs(t, err, boom)
}

type errReader struct{ err error }

func (r errReader) Read([]byte) (int, error) { return 0, r.err }

func TestFixedSeeds(t *testing.T) {
	keys, err := testSeeds.Seeds()
	require.NoError(t, err)
	require.Equal(t, [SeedCount]SipKey(testSeeds), keys)

	// Two filters keyed alike hash alike.
	a, err := New(DeriveParameters(10, 0.01), testSeeds)
	require.NoError(t, err)
	b, err := New(DeriveParameters(10, 0.01), testSeeds)
	require.NoError(t, err)
	a.Insert("same")
	b.Insert("same")

	ab, _ := a.Serialize()
	bb, _ := b.Serialize()
	require.Equal(t, ab, bb)
}
