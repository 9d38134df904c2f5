// Package artifact persists the output pair of a Bloom filter build: the raw
// bitmap file and its JSON metadata sidecar.
//
// The metadata embeds the digest of the bitmap, so a metadata file next to a
// missing, stale or half-written bitmap is worse than no metadata at all. The
// writer therefore follows a stage-then-commit protocol:
//
//  1. Stage: each file is written to a temporary file in its destination
//     directory, flushed, fsynced and closed. If the bitmap cannot be staged,
//     the metadata is never written.
//
//  2. Commit: any previous metadata is removed, then the bitmap and finally
//     the metadata are moved into place with atomic renames.
//
// A crash or error at any point leaves either the previous files, a bitmap
// without metadata, or the complete new pair. Temporary files are removed on
// every error path.
package artifact

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Resource labels used in error messages.
const (
	ResourceBitmap   = "OUTFILE"
	ResourceMetadata = "metadata file OUTFILE.json"
)

const filePerm = 0o644

// MetadataPath returns the sidecar path for a bitmap file.
func MetadataPath(bitmapPath string) string {
	return bitmapPath + ".json"
}

// Error identifies which output could not be written.
type Error struct {
	Resource string
	Path     string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (%s): %v", e.Resource, e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Encoder is implemented by values that serialize themselves, such as
// bloom.Metadata.
type Encoder interface {
	Encode(w io.Writer) error
}

// Pair names the two output files of a build.
type Pair struct {
	BitmapPath   string
	MetadataPath string
}

// NewPair returns the pair for outfile and its ".json" sidecar.
func NewPair(outfile string) Pair {
	return Pair{BitmapPath: outfile, MetadataPath: MetadataPath(outfile)}
}

// Preflight checks that both outputs can be created, so a long build does not
// end in an unwritable destination.
func (p Pair) Preflight() error {
	if err := Preflight(p.BitmapPath); err != nil {
		return &Error{Resource: ResourceBitmap, Path: p.BitmapPath, Err: err}
	}
	if err := Preflight(p.MetadataPath); err != nil {
		return &Error{Resource: ResourceMetadata, Path: p.MetadataPath, Err: err}
	}
	return nil
}

// Write stages and commits the bitmap and the metadata.
func (p Pair) Write(bitmap io.WriterTo, meta Encoder) error {
	bm, err := stage(p.BitmapPath, func(w io.Writer) error {
		_, err := bitmap.WriteTo(w)
		return err
	})
	if err != nil {
		return &Error{Resource: ResourceBitmap, Path: p.BitmapPath, Err: err}
	}
	defer bm.discard()

	md, err := stage(p.MetadataPath, meta.Encode)
	if err != nil {
		return &Error{Resource: ResourceMetadata, Path: p.MetadataPath, Err: err}
	}
	defer md.discard()

	// Drop the old sidecar first: it describes the bitmap about to be replaced.
	if err := os.Remove(p.MetadataPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return &Error{Resource: ResourceMetadata, Path: p.MetadataPath, Err: err}
	}
	if err := bm.commit(); err != nil {
		return &Error{Resource: ResourceBitmap, Path: p.BitmapPath, Err: err}
	}
	if err := md.commit(); err != nil {
		return &Error{Resource: ResourceMetadata, Path: p.MetadataPath, Err: err}
	}
	return nil
}

// WriteFileAtomic replaces path with the bytes produced by write. On error the
// destination is untouched.
func WriteFileAtomic(path string, write func(io.Writer) error) error {
	s, err := stage(path, write)
	if err != nil {
		return err
	}
	defer s.discard()
	return s.commit()
}

// Preflight reports whether path could be created or replaced: it must not be
// a directory, and its parent directory must accept new files.
func Preflight(path string) error {
	if fi, err := os.Stat(path); err == nil && fi.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}

	f, err := os.CreateTemp(filepath.Dir(path), tempPattern(path))
	if err != nil {
		return err
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name)
}

func tempPattern(path string) string {
	return "." + filepath.Base(path) + ".*.tmp"
}

// staged is a fully written temporary file waiting to be renamed over dst.
type staged struct {
	tmp       string
	dst       string
	committed bool
}

func stage(dst string, write func(io.Writer) error) (*staged, error) {
	f, err := os.CreateTemp(filepath.Dir(dst), tempPattern(dst))
	if err != nil {
		return nil, err
	}
	s := &staged{tmp: f.Name(), dst: dst}

	// fileClosed guards against a double close in the cleanup path.
	fileClosed := false
	defer func() {
		if !fileClosed {
			_ = f.Close()
			_ = os.Remove(s.tmp)
		}
	}()

	bw := bufio.NewWriter(f)
	if err := write(bw); err != nil {
		return nil, err
	}
	if err := bw.Flush(); err != nil {
		return nil, err
	}
	if err := f.Chmod(filePerm); err != nil {
		return nil, err
	}
	if err := f.Sync(); err != nil {
		return nil, err
	}

	fileClosed = true
	if err := f.Close(); err != nil {
		_ = os.Remove(s.tmp)
		return nil, err
	}
	return s, nil
}

func (s *staged) commit() error {
	if err := os.Rename(s.tmp, s.dst); err != nil {
		return err
	}
	s.committed = true
	return nil
}

// discard removes the temporary file unless it was committed.
func (s *staged) discard() {
	if !s.committed {
		_ = os.Remove(s.tmp)
	}
}
