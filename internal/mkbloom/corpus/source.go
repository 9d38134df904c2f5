package corpus

import (
	"bytes"
	"io"
	"os"
)

// Source can be opened any number of times, each time from the start. The
// count and populate passes each open it once.
type Source interface {
	Open() (io.ReadCloser, error)
}

// FileSource re-opens a file by path for every pass.
type FileSource string

// Open implements Source.
func (f FileSource) Open() (io.ReadCloser, error) {
	return os.Open(string(f))
}

// BytesSource serves an in-memory corpus.
type BytesSource []byte

// Open implements Source.
func (b BytesSource) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(b)), nil
}
