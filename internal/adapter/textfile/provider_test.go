package textfile

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProvider_Extract(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "doc.txt"), []byte("hello world"), 0o644))

	p := New(root)
	text, err := p.Extract(context.Background(), "doc.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello world", text)
}

func TestProvider_RejectsEscapingPaths(t *testing.T) {
	root := t.TempDir()
	p := New(root)

	_, err := p.Extract(context.Background(), "../../etc/passwd")
	assert.Error(t, err)
}

func TestProvider_RejectsInvalidUTF8(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "bin.dat"), []byte{0xff, 0xfe, 0x00}, 0o644))

	p := New(root)
	_, err := p.Extract(context.Background(), "bin.dat")
	assert.ErrorContains(t, err, "not valid UTF-8")
}

func TestProvider_MissingFile(t *testing.T) {
	p := New(t.TempDir())
	_, err := p.Extract(context.Background(), "absent.txt")
	assert.Error(t, err)
}
