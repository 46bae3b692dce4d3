package intake

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/joseph-ayodele/bill-extractor/constants"
)

// File is one upload candidate. Implementations exist for local paths, in-memory
// bytes and (in the browser build) DOM File handles.
type File interface {
	Name() string
	Size() int64
	Open() (io.ReadCloser, error)
}

// Ext returns the normalized extension of f's name.
func Ext(f File) string {
	return constants.ExtOf(f.Name())
}

// SizeLabel formats a byte count as megabytes with one decimal, e.g. "1.5MB".
// Halves round up.
func SizeLabel(size int64) string {
	mb := math.Round(float64(size)/1024/1024*10) / 10
	return fmt.Sprintf("%.1fMB", mb)
}

type bytesFile struct {
	name string
	data []byte
}

// NewBytesFile wraps in-memory content as a File.
func NewBytesFile(name string, data []byte) File {
	return &bytesFile{name: name, data: data}
}

func (f *bytesFile) Name() string { return f.name }
func (f *bytesFile) Size() int64  { return int64(len(f.data)) }
func (f *bytesFile) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(f.data)), nil
}

type localFile struct {
	path string
	size int64
}

// NewLocalFile stats path and returns a File reading from disk on Open.
func NewLocalFile(path string) (File, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	st, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if st.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	return &localFile{path: abs, size: st.Size()}, nil
}

func (f *localFile) Name() string                 { return filepath.Base(f.path) }
func (f *localFile) Size() int64                  { return f.size }
func (f *localFile) Open() (io.ReadCloser, error) { return os.Open(f.path) }
