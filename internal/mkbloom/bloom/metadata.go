package bloom

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
)

// Metadata is the JSON sidecar written next to a bitmap. Field names are part
// of the on-disk format.
//
// SipKeys holds each key half as a decimal string so that JSON readers which
// parse numbers as float64 do not lose precision.
type Metadata struct {
	SHA256Sum  string               `json:"sha256sum"`
	BitmapBits uint64               `json:"bitmap_bits"`
	KNum       uint32               `json:"k_num"`
	SipKeys    [SeedCount][2]string `json:"sip_keys"`
}

// NewMetadata describes bitmap, the packed form of a filter shaped by params
// and keyed by keys.
func NewMetadata(bitmap []byte, params Parameters, keys [SeedCount]SipKey) Metadata {
	sum := sha256.Sum256(bitmap)
	m := Metadata{
		SHA256Sum:  hex.EncodeToString(sum[:]),
		BitmapBits: params.BitmapBits,
		KNum:       params.HashFunctions,
	}
	for i, k := range keys {
		m.SipKeys[i] = [2]string{
			strconv.FormatUint(k.K0, 10),
			strconv.FormatUint(k.K1, 10),
		}
	}
	return m
}

// Parameters returns the filter shape recorded in the metadata.
func (m Metadata) Parameters() Parameters {
	return Parameters{BitmapBits: m.BitmapBits, HashFunctions: m.KNum}
}

// Keys parses the recorded SipHash keys.
func (m Metadata) Keys() ([SeedCount]SipKey, error) {
	var keys [SeedCount]SipKey
	for i, pair := range m.SipKeys {
		k0, err := strconv.ParseUint(pair[0], 10, 64)
		if err != nil {
			return keys, fmt.Errorf("%w: key %d: %w", ErrBadSipKey, i, err)
		}
		k1, err := strconv.ParseUint(pair[1], 10, 64)
		if err != nil {
			return keys, fmt.Errorf("%w: key %d: %w", ErrBadSipKey, i, err)
		}
		keys[i] = SipKey{K0: k0, K1: k1}
	}
	return keys, nil
}

// Validate checks the fields for values no builder would produce.
func (m Metadata) Validate() error {
	if m.BitmapBits == 0 || m.BitmapBits > MaxBitmapBits {
		return ErrBadBits
	}
	if m.KNum == 0 {
		return ErrBadK
	}
	if len(m.SHA256Sum) != hex.EncodedLen(sha256.Size) {
		return ErrBadDigest
	}
	if _, err := hex.DecodeString(m.SHA256Sum); err != nil {
		return fmt.Errorf("%w: %w", ErrBadDigest, err)
	}
	if _, err := m.Keys(); err != nil {
		return err
	}
	return nil
}

// Verify checks that bitmap is exactly the byte sequence the metadata was
// computed from.
func (m Metadata) Verify(bitmap []byte) error {
	if want := m.Parameters().BitmapBytes(); uint64(len(bitmap)) != want {
		return fmt.Errorf("%w: got %d bytes, want %d", ErrSizeMismatch, len(bitmap), want)
	}

	sum := sha256.Sum256(bitmap)
	want, err := hex.DecodeString(m.SHA256Sum)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBadDigest, err)
	}
	if !bytes.Equal(sum[:], want) {
		return fmt.Errorf("%w: got %x, want %s", ErrDigestMismatch, sum, m.SHA256Sum)
	}
	return nil
}

// Encode writes the metadata as a single JSON document.
func (m Metadata) Encode(w io.Writer) error {
	return json.NewEncoder(w).Encode(m)
}

// DecodeMetadata reads a metadata document written by Encode.
func DecodeMetadata(r io.Reader) (Metadata, error) {
	var m Metadata
	if err := json.NewDecoder(r).Decode(&m); err != nil {
		return Metadata{}, fmt.Errorf("bloom: decode metadata: %w", err)
	}
	return m, nil
}

// Open rebuilds a read-only filter from a persisted bitmap and its metadata.
// The bitmap is verified against the recorded digest before it is trusted.
func Open(bitmap []byte, meta Metadata) (*Frozen, error) {
	if err := meta.Validate(); err != nil {
		return nil, err
	}
	if err := meta.Verify(bitmap); err != nil {
		return nil, err
	}

	params := meta.Parameters()
	if rem := params.BitmapBits % 8; rem != 0 {
		if bitmap[len(bitmap)-1]&^byte(1<<rem-1) != 0 {
			return nil, ErrTrailingBits
		}
	}

	keys, err := meta.Keys()
	if err != nil {
		return nil, err
	}

	return &Frozen{
		params: params,
		keys:   keys,
		bits:   unpackLSB0(bitmap, params.BitmapBits),
		bitmap: bitmap,
		meta:   meta,
	}, nil
}
