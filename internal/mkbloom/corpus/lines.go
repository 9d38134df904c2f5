// Package corpus reads newline-delimited text corpora in the two passes a
// Bloom filter build needs: one pass to count the items (which sizes the
// bitmap) and one pass to insert them.
//
// The two passes must see the same item sequence, otherwise the bitmap was
// sized for a different corpus than the one inserted. Every pass therefore
// produces a Pass summary carrying an xxHash fingerprint of the sequence, and
// Replay refuses to succeed when the populate pass disagrees with the count
// pass.
package corpus

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/cespare/xxhash/v2"
)

// ErrCorpusChanged reports that the corpus differed between the count pass and
// the populate pass.
var ErrCorpusChanged = errors.New("corpus: input changed between passes")

const readBufferSize = 64 * 1024

// Pass summarizes one full read of a corpus.
type Pass struct {
	// Lines is the number of items, counted the way a line iterator yields
	// them: a final line without a trailing newline still counts, an empty
	// input has zero lines.
	Lines uint64

	// Bytes is the raw size of the input, separators included.
	Bytes uint64

	// Fingerprint is xxHash64 over every line followed by '\n', with line
	// endings normalized, so it identifies the item sequence independently of
	// a missing final newline or CRLF endings.
	Fingerprint uint64
}

// ForEachLine calls fn for every line of r, without its "\n" or "\r\n"
// terminator. The slice passed to fn is only valid during the call. Lines may
// be arbitrarily long.
func ForEachLine(r io.Reader, fn func(line []byte)) (Pass, error) {
	var (
		pass    Pass
		digest  = xxhash.New()
		reader  = bufio.NewReaderSize(r, readBufferSize)
		scratch []byte
	)

	for {
		chunk, err := reader.ReadSlice('\n')
		pass.Bytes += uint64(len(chunk))

		// A line longer than the buffer arrives in pieces; stitch them
		// together before handing it out.
		if errors.Is(err, bufio.ErrBufferFull) {
			scratch = append(scratch, chunk...)
			continue
		}

		line := chunk
		if len(scratch) > 0 {
			scratch = append(scratch, chunk...)
			line = scratch
		}

		if len(line) > 0 {
			line = bytes.TrimSuffix(line, []byte{'\n'})
			line = bytes.TrimSuffix(line, []byte{'\r'})

			pass.Lines++
			_, _ = digest.Write(line)
			_, _ = digest.Write([]byte{'\n'})
			if fn != nil {
				fn(line)
			}
		}
		scratch = scratch[:0]

		if err == io.EOF {
			break
		}
		if err != nil {
			return pass, err
		}
	}

	pass.Fingerprint = digest.Sum64()
	return pass, nil
}

// Count runs the sizing pass over src.
func Count(src Source) (Pass, error) {
	return Scan(src, nil)
}

// Scan opens src and feeds every line to fn.
func Scan(src Source, fn func(line []byte)) (Pass, error) {
	rc, err := src.Open()
	if err != nil {
		return Pass{}, err
	}
	defer func() { _ = rc.Close() }()

	return ForEachLine(rc, fn)
}

// Replay runs the populate pass over src and checks that it observed the same
// item sequence as the earlier pass want.
func Replay(src Source, want Pass, fn func(line []byte)) (Pass, error) {
	got, err := Scan(src, fn)
	if err != nil {
		return got, err
	}
	if got.Lines != want.Lines || got.Fingerprint != want.Fingerprint {
		return got, fmt.Errorf("%w: counted %d lines (%016x), read %d lines (%016x)",
			ErrCorpusChanged, want.Lines, want.Fingerprint, got.Lines, got.Fingerprint)
	}
	return got, nil
}
