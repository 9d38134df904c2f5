package main

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"mkbloom.lopezb.com/internal/mkbloom/artifact"
	"mkbloom.lopezb.com/internal/mkbloom/bloom"
)

func buildFixture(t *testing.T, items ...string) ([]byte, bloom.Metadata) {
	t.Helper()
	f, err := bloom.New(bloom.DeriveParameters(uint64(len(items)), 0.01), bloom.FixedSeeds{{K0: 1, K1: 2}, {K0: 3, K1: 4}})
	require.NoError(t, err)
	for _, it := range items {
		f.Insert(it)
	}
	fr := f.Freeze()
	return fr.Bytes(), fr.Metadata()
}

func TestCheck_Valid(t *testing.T) {
	bitmap, meta := buildFixture(t, "apple", "banana")

	rep, err := check(bytes.NewReader(bitmap), meta)
	require.NoError(t, err)
	require.Equal(t, int64(len(bitmap)), rep.bytes)
	require.Equal(t, meta.SHA256Sum, rep.digest)
	require.Equal(t, bitmap, rep.preview)

	var want uint64
	for _, b := range bitmap {
		for ; b != 0; b &= b - 1 {
			want++
		}
	}
	require.Equal(t, want, rep.setBits)
	require.NotZero(t, rep.setBits)
}

func TestCheck_PreviewIsCapped(t *testing.T) {
	items := make([]string, 200)
	for i := range items {
		items[i] = string(rune('a'+i%26)) + string(rune('A'+i/26))
	}
	bitmap, meta := buildFixture(t, items...)
	require.Greater(t, len(bitmap), previewBytes)

	rep, err := check(bytes.NewReader(bitmap), meta)
	require.NoError(t, err)
	require.Equal(t, bitmap[:previewBytes], rep.preview)
}

func TestCheck_Truncated(t *testing.T) {
	bitmap, meta := buildFixture(t, "apple", "banana", "cherry")

	_, err := check(bytes.NewReader(bitmap[:len(bitmap)-1]), meta)
	require.ErrorIs(t, err, bloom.ErrSizeMismatch)

	var ce *checkError
	require.True(t, errors.As(err, &ce))
	require.Equal(t, int64(len(bitmap)-1), ce.offset)
}

func TestCheck_TooLong(t *testing.T) {
	bitmap, meta := buildFixture(t, "apple")

	_, err := check(bytes.NewReader(append(bitmap, 0)), meta)
	require.ErrorIs(t, err, bloom.ErrSizeMismatch)
}

func TestCheck_DigestMismatch(t *testing.T) {
	bitmap, meta := buildFixture(t, "apple", "banana")
	bitmap[0] ^= 0x01

	_, err := check(bytes.NewReader(bitmap), meta)
	require.ErrorIs(t, err, bloom.ErrDigestMismatch)
	require.Contains(t, err.Error(), "Digest MISMATCH")
}

func TestCheck_UppercaseDigest(t *testing.T) {
	bitmap, meta := buildFixture(t, "apple", "banana")
	meta.SHA256Sum = strings.ToUpper(meta.SHA256Sum)

	rep, err := check(bytes.NewReader(bitmap), meta)
	require.NoError(t, err)
	require.Equal(t, strings.ToLower(meta.SHA256Sum), rep.digest)
}

func TestCheck_HugeBitmapBits(t *testing.T) {
	empty := sha256.Sum256(nil)
	meta := bloom.Metadata{
		SHA256Sum: hex.EncodeToString(empty[:]),
		KNum:      1,
		SipKeys:   [bloom.SeedCount][2]string{{"1", "2"}, {"3", "4"}},
	}

	meta.BitmapBits = math.MaxUint64
	_, err := check(bytes.NewReader(nil), meta)
	require.ErrorIs(t, err, bloom.ErrBadBits)

	// The largest accepted size still needs 2^61 bytes, not zero.
	meta.BitmapBits = bloom.MaxBitmapBits
	_, err = check(bytes.NewReader(nil), meta)
	require.ErrorIs(t, err, bloom.ErrSizeMismatch)

	var ce *checkError
	require.True(t, errors.As(err, &ce))
	require.Equal(t, int64(0), ce.offset)
}

func TestPrintKeys(t *testing.T) {
	_, meta := buildFixture(t, "apple")

	var buf bytes.Buffer
	require.NoError(t, printKeys(&buf, meta))
	require.Equal(t, "  sip_key[0]: k0=1 k1=2\n  sip_key[1]: k0=3 k1=4\n", buf.String())

	buf.Reset()
	meta.SipKeys[1][0] = "-1"
	err := printKeys(&buf, meta)
	require.ErrorIs(t, err, bloom.ErrBadSipKey)
	require.Empty(t, buf.String())
}

func TestCheck_PaddingBits(t *testing.T) {
	// n=3, p=0.01 gives 29 bits; the top three bits of byte 3 are padding.
	bitmap, _ := buildFixture(t, "apple", "banana", "cherry")
	require.Len(t, bitmap, 4)
	bitmap[3] |= 0x80

	params := bloom.Parameters{BitmapBits: 29, HashFunctions: 7}
	meta := bloom.NewMetadata(bitmap, params, [bloom.SeedCount]bloom.SipKey{{K0: 1, K1: 2}, {K0: 3, K1: 4}})

	_, err := check(bytes.NewReader(bitmap), meta)
	require.ErrorIs(t, err, bloom.ErrTrailingBits)
}

func TestLoadMetadata(t *testing.T) {
	dir := t.TempDir()
	bitmap, meta := buildFixture(t, "apple")
	path := artifact.MetadataPath(filepath.Join(dir, "fruit.bloom"))

	var buf bytes.Buffer
	require.NoError(t, meta.Encode(&buf))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	got, err := loadMetadata(path)
	require.NoError(t, err)
	require.Equal(t, meta, got)

	_, err = check(bytes.NewReader(bitmap), got)
	require.NoError(t, err)
}

func TestLoadMetadata_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := loadMetadata(filepath.Join(dir, "missing.json"))
	require.ErrorIs(t, err, os.ErrNotExist)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"sha256sum":"zz","bitmap_bits":0,"k_num":0,"sip_keys":[["1","2"],["3","4"]]}`), 0o644))
	_, err = loadMetadata(bad)
	require.Error(t, err)
	require.Contains(t, err.Error(), "Invalid metadata")

	garbage := filepath.Join(dir, "garbage.json")
	require.NoError(t, os.WriteFile(garbage, []byte("not json"), 0o644))
	_, err = loadMetadata(garbage)
	require.Error(t, err)
}

func TestCountReader(t *testing.T) {
	cr := &CountReader{r: bytes.NewReader(make([]byte, 100))}
	buf := make([]byte, 30)
	for {
		if _, err := cr.Read(buf); err != nil {
			break
		}
	}
	require.Equal(t, int64(100), cr.count)
}
