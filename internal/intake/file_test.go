package intake

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSizeLabel(t *testing.T) {
	tests := map[int64]string{
		0:        "0.0MB",
		1048576:  "1.0MB",
		1572864:  "1.5MB",
		52428:    "0.0MB",
		104857:   "0.1MB",
		10485760: "10.0MB",
		// exact halves
		262144:   "0.3MB",
		1310720:  "1.3MB",
		2359296:  "2.3MB",
	}
	for size, want := range tests {
		assert.Equal(t, want, SizeLabel(size), "size %d", size)
	}
}

func TestNewLocalFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Bill.PDF")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o600))

	f, err := NewLocalFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Bill.PDF", f.Name())
	assert.Equal(t, int64(5), f.Size())
	assert.Equal(t, "pdf", Ext(f))

	rc, err := f.Open()
	require.NoError(t, err)
	defer rc.Close()
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(b))

	_, err = NewLocalFile(dir)
	assert.Error(t, err)

	_, err = NewLocalFile(filepath.Join(dir, "missing.pdf"))
	assert.Error(t, err)
}
