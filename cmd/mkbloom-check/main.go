// mkbloom-check is a diagnostic tool for validating a bitmap/metadata pair
// produced by mkbloom. It streams the bitmap once, checking its length and
// SHA-256 digest against the metadata without loading it into memory.
//
// This tool is meant to run after copying a filter between machines or
// before publishing it to a query service. It answers questions like:
//
//   - Is the bitmap truncated or corrupted?
//   - Does the metadata belong to this bitmap?
//   - How full is the bitmap, and what false positive rate does that imply?
//
// Usage Examples
// ==============
//
// Basic validation (metadata is read from BITMAP.json):
//
//	mkbloom-check fruit.bloom
//
// Explicit metadata path and verbose output (prints the keys and the first
// bytes of the bitmap):
//
//	mkbloom-check --metadata meta.json --verbose fruit.bloom
//
// Exit Codes
// ==========
//
// 0: The pair is valid.
// 1: The pair is corrupted or unreadable (digest mismatch, truncated, bad
// metadata, etc.)

package main

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math/bits"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jpillora/opts"

	"mkbloom.lopezb.com/internal/mkbloom/artifact"
	"mkbloom.lopezb.com/internal/mkbloom/bloom"
)

var version = "0.0.0-src" // set with ldflags

// previewBytes is how much of the bitmap verbose mode prints.
const previewBytes = 32

type config struct {
	Bitmap   string `opts:"mode=arg" help:"bitmap file written by mkbloom"`
	Metadata string `help:"metadata file (default: BITMAP.json)"`
	Verbose  bool   `help:"print the hash keys and the first bytes of the bitmap"`
}

// CountReader wraps an io.Reader to track the cumulative byte offset. This is
// used to report the exact file position in error messages.
type CountReader struct {
	r     io.Reader
	count int64
}

// Read implements io.Reader, passing through to the underlying reader while
// accumulating the byte count.
func (cr *CountReader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	cr.count += int64(n)
	return n, err
}

// report is what a successful check learned about the bitmap.
type report struct {
	bytes   int64
	setBits uint64
	digest  string
	preview []byte
}

// checkError carries the file offset at which the check failed.
type checkError struct {
	offset int64
	msg    string
	err    error
}

func (e *checkError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("[offset %d] Fatal: %s: %v", e.offset, e.msg, e.err)
	}
	return fmt.Sprintf("[offset %d] Fatal: %s", e.offset, e.msg)
}

func (e *checkError) Unwrap() error { return e.err }

func main() {
	var cfg config
	opts.New(&cfg).
		Name("mkbloom-check").
		Version(version).
		Summary("Validates a Bloom filter bitmap against its metadata.").
		Parse()

	if cfg.Metadata == "" {
		cfg.Metadata = artifact.MetadataPath(cfg.Bitmap)
	}

	meta, err := loadMetadata(cfg.Metadata)
	if err != nil {
		die(err)
	}

	f, err := os.Open(cfg.Bitmap)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[err] Cannot open file: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = f.Close() }()

	fmt.Printf("[offset 0] Checking bloom filter %s (metadata %s)\n", cfg.Bitmap, cfg.Metadata)
	fmt.Printf("[meta] bitmap_bits=%d k_num=%d expected_bytes=%d\n",
		meta.BitmapBits, meta.KNum, meta.Parameters().BitmapBytes())

	start := time.Now()
	rep, err := check(f, meta)
	if err != nil {
		die(err)
	}

	fmt.Printf("[offset %d] Size OK (%d bytes)\n", rep.bytes, rep.bytes)
	fmt.Printf("[offset %d] Digest OK (%s)\n", rep.bytes, rep.digest)

	if cfg.Verbose {
		if err := printKeys(os.Stdout, meta); err != nil {
			die(err)
		}
		fmt.Printf("  first %d bytes: %s\n", len(rep.preview), hex.EncodeToString(rep.preview))
	}

	m := meta.BitmapBits
	fmt.Println("\nSummary:")
	fmt.Printf("  Process Time:    %v\n", time.Since(start))
	fmt.Printf("  Bitmap Size:     %s (%d bits)\n", humanize.IBytes(uint64(rep.bytes)), m)
	fmt.Printf("  Hash Functions:  %d\n", meta.KNum)
	fmt.Printf("  Set Bits:        %d (%.2f%%)\n", rep.setBits, 100*float64(rep.setBits)/float64(m))
	fmt.Printf("  Est. FP Rate:    %.6g\n", bloom.FillFalsePositiveRate(rep.setBits, m, meta.KNum))
}

// loadMetadata reads and validates the sidecar.
func loadMetadata(path string) (bloom.Metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return bloom.Metadata{}, &checkError{msg: "Cannot open metadata", err: err}
	}
	defer func() { _ = f.Close() }()

	meta, err := bloom.DecodeMetadata(f)
	if err != nil {
		return bloom.Metadata{}, &checkError{msg: "Invalid metadata", err: err}
	}
	if err := meta.Validate(); err != nil {
		return bloom.Metadata{}, &checkError{msg: "Invalid metadata", err: err}
	}
	return meta, nil
}

// printKeys writes the two SipHash keys of meta.
func printKeys(w io.Writer, meta bloom.Metadata) error {
	keys, err := meta.Keys()
	if err != nil {
		return &checkError{msg: "Invalid metadata", err: err}
	}
	for i, k := range keys {
		fmt.Fprintf(w, "  sip_key[%d]: k0=%d k1=%d\n", i, k.K0, k.K1)
	}
	return nil
}

// check streams the bitmap once, feeding every byte to the digest and the
// popcount, and compares the result with meta.
func check(r io.Reader, meta bloom.Metadata) (*report, error) {
	if err := meta.Validate(); err != nil {
		return nil, &checkError{msg: "Invalid metadata", err: err}
	}
	expected, err := hex.DecodeString(meta.SHA256Sum)
	if err != nil {
		return nil, &checkError{msg: "Invalid metadata", err: err}
	}
	want := int64(meta.Parameters().BitmapBytes())

	hasher := sha256.New()
	counter := &CountReader{r: r}
	reader := bufio.NewReader(counter)

	rep := &report{}
	buf := make([]byte, 32*1024)
	var last byte

	for {
		n, err := reader.Read(buf)
		chunk := buf[:n]
		hasher.Write(chunk)

		for _, b := range chunk {
			rep.setBits += uint64(bits.OnesCount8(b))
		}
		if n > 0 {
			last = chunk[n-1]
		}
		if room := previewBytes - len(rep.preview); room > 0 {
			rep.preview = append(rep.preview, chunk[:min(room, n)]...)
		}
		rep.bytes += int64(n)

		if rep.bytes > want {
			return nil, &checkError{offset: want, msg: "Bitmap longer than bitmap_bits allows", err: bloom.ErrSizeMismatch}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &checkError{offset: counter.count, msg: "Failed reading bitmap", err: err}
		}
	}

	if rep.bytes < want {
		return nil, &checkError{
			offset: rep.bytes,
			msg:    fmt.Sprintf("Truncated bitmap: expected %d bytes, got %d", want, rep.bytes),
			err:    bloom.ErrSizeMismatch,
		}
	}

	sum := hasher.Sum(nil)
	rep.digest = hex.EncodeToString(sum)
	if !bytes.Equal(sum, expected) {
		return nil, &checkError{
			offset: rep.bytes,
			msg:    fmt.Sprintf("Digest MISMATCH (file %s, metadata %s)", rep.digest, meta.SHA256Sum),
			err:    bloom.ErrDigestMismatch,
		}
	}

	if rem := meta.BitmapBits % 8; rem != 0 && last&^byte(1<<rem-1) != 0 {
		return nil, &checkError{offset: rep.bytes - 1, msg: "Padding bits set in final byte", err: bloom.ErrTrailingBits}
	}

	return rep, nil
}

// die prints a fatal error and exits. checkErrors already carry their offset.
func die(err error) {
	var ce *checkError
	if errors.As(err, &ce) {
		fmt.Fprintln(os.Stderr, ce.Error())
	} else {
		fmt.Fprintf(os.Stderr, "[err] %v\n", err)
	}
	os.Exit(1)
}
