package fsutil

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListDirs(t *testing.T) {
	base := t.TempDir()
	for _, name := range []string{"b", "a", "010"} {
		require.NoError(t, os.Mkdir(filepath.Join(base, name), 0755))
	}
	require.NoError(t, os.WriteFile(filepath.Join(base, "file.txt"), []byte("x"), 0644))

	dirs, err := ListDirs(base)
	require.NoError(t, err)
	assert.Equal(t, []string{"010", "a", "b"}, dirs)

	dirs, err = ListDirs(filepath.Join(base, "missing"))
	require.NoError(t, err)
	assert.Empty(t, dirs)
}

func TestListFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.png", "a.PNG", "c.jpg"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "d.png"), 0755))
	files, err := ListFiles(dir, ".png")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.PNG"), filepath.Join(dir, "b.png")}, files)
}

func TestWriteAtomic(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "out.txt")
	require.NoError(t, os.WriteFile(target, []byte("old"), 0644))

	// A failing writer leaves the previous file untouched and no temporary files behind.
	err := WriteAtomic(target, func(w io.Writer) error {
		_, _ = w.Write([]byte("partial"))
		return errors.New("boom")
	})
	require.Error(t, err)
	contents, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "old", string(contents))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	require.NoError(t, WriteAtomic(target, func(w io.Writer) error {
		_, err := w.Write([]byte("new"))
		return err
	}))
	contents, err = os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "new", string(contents))
}

func TestReplaceTildeInDir(t *testing.T) {
	dir, err := ReplaceTildeInDir("/abs/path")
	require.NoError(t, err)
	assert.Equal(t, "/abs/path", dir)

	dir, err = ReplaceTildeInDir("~/models")
	require.NoError(t, err)
	assert.NotContains(t, dir, "~")
	assert.Equal(t, "models", filepath.Base(dir))
}
